package handlers

import (
	"errors"
	"log/slog"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/adpulse/internal/service"
)

const dateLayout = "2006-01-02"

var validate = validator.New()

// ErrorResponse maps a service error onto its HTTP status.
func ErrorResponse(c *fiber.Ctx, err error) error {
	var (
		ve *service.ValidationError
		ce *service.ConflictError
	)
	switch {
	case errors.As(err, &ve):
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{"error": ve.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{"error": "not found"})
	case errors.As(err, &ce):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{"error": ce.Error()})
	default:
		slog.Error("request failed", "method", c.Method(), "path", c.Path(), "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{"error": err.Error()})
	}
}

// parseBody decodes and validates a JSON request body.
func parseBody(c *fiber.Ctx, out interface{}) error {
	if err := c.BodyParser(out); err != nil {
		return &service.ValidationError{Field: "body", Message: "unable to parse json"}
	}
	if err := validate.Struct(out); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return &service.ValidationError{Field: verrs[0].Field(), Message: "failed " + verrs[0].Tag() + " check"}
		}
		return &service.ValidationError{Message: err.Error()}
	}
	return nil
}

func parseDate(c *fiber.Ctx, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(dateLayout, v)
	if err != nil {
		return nil, &service.ValidationError{Field: key, Message: "must be YYYY-MM-DD"}
	}
	return &t, nil
}

// parseDateRange reads date_from and date_to. Both or neither must be set.
func parseDateRange(c *fiber.Ctx) (*service.DateRange, error) {
	from, err := parseDate(c, "date_from")
	if err != nil {
		return nil, err
	}
	to, err := parseDate(c, "date_to")
	if err != nil {
		return nil, err
	}
	if from == nil && to == nil {
		return nil, nil
	}
	if from == nil || to == nil {
		return nil, &service.ValidationError{Field: "date_from", Message: "date_from and date_to must be given together"}
	}
	return &service.DateRange{From: *from, To: *to}, nil
}
