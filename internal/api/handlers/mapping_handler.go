package handlers

import (
	"bytes"
	"io"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/maheshrc27/adpulse/internal/service"
)

type MappingHandler struct {
	s service.MappingService
}

func NewMappingHandler(service service.MappingService) *MappingHandler {
	return &MappingHandler{s: service}
}

// ImportNameMappings accepts a multipart "file" field or the CSV as the raw body.
func (h *MappingHandler) ImportNameMappings(c *fiber.Ctx) error {
	var r io.Reader
	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		fileHeader, err := c.FormFile("file")
		if err != nil {
			return ErrorResponse(c, &service.ValidationError{Field: "file", Message: "multipart field is missing"})
		}
		file, err := fileHeader.Open()
		if err != nil {
			return ErrorResponse(c, err)
		}
		defer file.Close()
		r = file
	} else {
		r = bytes.NewReader(c.Body())
	}

	res, err := h.s.ImportCSV(c.Context(), c.Params("id"), r)
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(res)
}

func (h *MappingHandler) ListNameMappings(c *fiber.Ctx) error {
	mappings, err := h.s.List(c.Context(), c.Params("id"))
	if err != nil {
		return ErrorResponse(c, err)
	}
	return c.JSON(fiber.Map{"data": mappings})
}
