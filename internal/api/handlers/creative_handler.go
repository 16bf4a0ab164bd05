package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/adpulse/internal/models"
	"github.com/maheshrc27/adpulse/internal/service"
	"github.com/maheshrc27/adpulse/internal/transfer"
	"github.com/maheshrc27/adpulse/pkg/tagparser"
)

type CreativeHandler struct {
	s service.CreativeService
}

func NewCreativeHandler(service service.CreativeService) *CreativeHandler {
	return &CreativeHandler{s: service}
}

func (h *CreativeHandler) ListCreatives(c *fiber.Ctx) error {
	from, err := parseDate(c, "date_from")
	if err != nil {
		return ErrorResponse(c, err)
	}
	to, err := parseDate(c, "date_to")
	if err != nil {
		return ErrorResponse(c, err)
	}

	list, err := h.s.List(c.Context(), models.CreativeFilter{
		AccountID: c.Query("account_id"),
		DateFrom:  from,
		DateTo:    to,
		Search:    c.Query("search"),
		TagSource: tagparser.Source(c.Query("tag_source")),
		Limit:     c.QueryInt("limit", 50),
		Offset:    c.QueryInt("offset", 0),
	})
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(list)
}

func (h *CreativeHandler) UpdateCreative(c *fiber.Ctx) error {
	var req transfer.CreativeUpdateRequest
	if err := parseBody(c, &req); err != nil {
		return ErrorResponse(c, err)
	}

	creative, err := h.s.Update(c.Context(), c.Params("ad_id"), models.CreativeUpdate{
		AdType:  req.AdType,
		Person:  req.Person,
		Style:   req.Style,
		Product: req.Product,
		Hook:    req.Hook,
		Theme:   req.Theme,
		Notes:   req.Notes,
	})
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(creative)
}

func (h *CreativeHandler) BulkUntag(c *fiber.Ctx) error {
	var req transfer.BulkUntagRequest
	if err := parseBody(c, &req); err != nil {
		return ErrorResponse(c, err)
	}

	n, err := h.s.BulkUntag(c.Context(), req.AdIDs)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"updated": n})
}
