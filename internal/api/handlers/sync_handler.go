package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/adpulse/internal/service"
	"github.com/maheshrc27/adpulse/internal/transfer"
)

type SyncHandler struct {
	s service.SyncService
}

func NewSyncHandler(service service.SyncService) *SyncHandler {
	return &SyncHandler{s: service}
}

func (h *SyncHandler) StartSync(c *fiber.Ctx) error {
	var req transfer.StartSyncRequest
	if err := parseBody(c, &req); err != nil {
		return ErrorResponse(c, err)
	}

	l, err := h.s.Start(c.Context(), service.StartSyncRequest{
		AccountKey: req.AccountID,
		SyncType:   req.SyncType,
		Since:      req.Since,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}

	return c.Status(fiber.StatusAccepted).JSON(transfer.StartSyncResponse{
		SyncID: l.ID,
		Status: l.Status,
	})
}

func (h *SyncHandler) GetSync(c *fiber.Ctx) error {
	id, err := c.ParamsInt("id")
	if err != nil || id <= 0 {
		return ErrorResponse(c, &service.ValidationError{Field: "id", Message: "must be a positive integer"})
	}

	l, err := h.s.Get(c.Context(), int64(id))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(l)
}

func (h *SyncHandler) ListSyncs(c *fiber.Ctx) error {
	logs, err := h.s.List(c.Context(), c.Query("account_id"), c.QueryInt("limit", 20))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"data": logs})
}

func (h *SyncHandler) CancelSync(c *fiber.Ctx) error {
	var req transfer.CancelSyncRequest
	if err := parseBody(c, &req); err != nil {
		return ErrorResponse(c, err)
	}

	if req.SyncID != 0 {
		ok, err := h.s.Cancel(c.Context(), req.SyncID)
		if err != nil {
			return ErrorResponse(c, err)
		}
		cancelled := 0
		if ok {
			cancelled = 1
		}
		return c.JSON(fiber.Map{"cancelled": cancelled})
	}

	n, err := h.s.CancelAccount(c.Context(), req.AccountID)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"cancelled": n})
}
