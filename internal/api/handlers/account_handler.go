package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/adpulse/internal/service"
	"github.com/maheshrc27/adpulse/internal/transfer"
	"github.com/maheshrc27/adpulse/pkg/admetrics"
)

type AccountHandler struct {
	s  service.AccountService
	ts service.TagService
}

func NewAccountHandler(service service.AccountService, ts service.TagService) *AccountHandler {
	return &AccountHandler{s: service, ts: ts}
}

func (h *AccountHandler) ListAccounts(c *fiber.Ctx) error {
	accounts, err := h.s.List(c.Context())
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"data": accounts})
}

func (h *AccountHandler) CreateAccount(c *fiber.Ctx) error {
	var req transfer.AccountCreateRequest
	if err := parseBody(c, &req); err != nil {
		return ErrorResponse(c, err)
	}

	a, err := h.s.Create(c.Context(), req.ID, req.Name)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.Status(fiber.StatusCreated).JSON(a)
}

func (h *AccountHandler) UpdateAccount(c *fiber.Ctx) error {
	var req transfer.AccountSettingsRequest
	if err := parseBody(c, &req); err != nil {
		return ErrorResponse(c, err)
	}

	in := service.AccountSettings{
		Name:           req.Name,
		IsActive:       req.IsActive,
		ScaleThreshold: req.ScaleThreshold,
		KillThreshold:  req.KillThreshold,
		SpendThreshold: req.SpendThreshold,
		DateRangeDays:  req.DateRangeDays,
		ReportSchedule: req.ReportSchedule,
	}
	if req.WinnerKPI != nil {
		kpi := admetrics.KPI(*req.WinnerKPI)
		in.WinnerKPI = &kpi
	}
	if req.KPIDirection != nil {
		dir := admetrics.Direction(*req.KPIDirection)
		in.KPIDirection = &dir
	}

	a, err := h.s.UpdateSettings(c.Context(), c.Params("id"), in)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(a)
}

func (h *AccountHandler) Retag(c *fiber.Ctx) error {
	id := c.Params("id")
	if _, err := h.s.Get(c.Context(), id); err != nil {
		return ErrorResponse(c, err)
	}

	res, err := h.ts.RetagAccount(c.Context(), id)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(res)
}

func (h *AccountHandler) Summary(c *fiber.Ctx) error {
	r, err := parseDateRange(c)
	if err != nil {
		return ErrorResponse(c, err)
	}

	summary, err := h.s.Summary(c.Context(), c.Params("id"), r)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(summary)
}

func (h *AccountHandler) Trends(c *fiber.Ctx) error {
	r, err := parseDateRange(c)
	if err != nil {
		return ErrorResponse(c, err)
	}

	points, err := h.s.Trends(c.Context(), c.Params("id"), r)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"data": points})
}
