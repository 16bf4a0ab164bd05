package handlers

import (
	"context"

	"github.com/gofiber/fiber/v2"
)

type HealthHandler struct {
	ping func(ctx context.Context) error
}

// NewHealthHandler takes the store's ping; nil means nothing to check.
func NewHealthHandler(ping func(ctx context.Context) error) *HealthHandler {
	return &HealthHandler{ping: ping}
}

func (h *HealthHandler) Healthz(c *fiber.Ctx) error {
	if h.ping != nil {
		if err := h.ping(c.Context()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
				"error":  err.Error(),
			})
		}
	}
	return c.JSON(fiber.Map{"status": "ok"})
}
