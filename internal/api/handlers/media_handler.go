package handlers

import (
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/adpulse/internal/service"
)

type MediaHandler struct {
	s service.MediaCacheService
}

func NewMediaHandler(service service.MediaCacheService) *MediaHandler {
	return &MediaHandler{s: service}
}

func (h *MediaHandler) RefreshMedia(c *fiber.Ctx) error {
	summary, err := h.s.Run(c.Context())
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(summary)
}

func (h *MediaHandler) LatestRefresh(c *fiber.Ctx) error {
	l, err := h.s.Latest(c.Context())
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(l)
}
