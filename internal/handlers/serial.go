package handlers

import (
	"errors"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/metrics"
	"github.com/reportdesk/backend/internal/middleware"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/services"
)

type SerialHandler struct {
	serials *services.SerialRegistry
	auditor *middleware.Auditor
}

func NewSerialHandler(serials *services.SerialRegistry, auditor *middleware.Auditor) *SerialHandler {
	return &SerialHandler{serials: serials, auditor: auditor}
}

// Validate redeems a serial. A serial is valid exactly once.
func (h *SerialHandler) Validate(c *fiber.Ctx) error {
	var req struct {
		Serial string `json:"serial"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	if err := h.serials.Redeem(c.UserContext(), req.Serial); err != nil {
		if errors.Is(err, services.ErrInvalidSerial) {
			metrics.SerialRedemptions.WithLabelValues("invalid").Inc()
		} else {
			metrics.SerialRedemptions.WithLabelValues("error").Inc()
		}
		return serviceError(c, err)
	}
	metrics.SerialRedemptions.WithLabelValues("valid").Inc()

	h.auditor.Record(c, middleware.AuditEntry{
		Action:      models.AuditActionRedeem,
		EntityType:  "serial",
		EntityID:    req.Serial,
		Description: "Serial redeemed",
	})

	return c.JSON(fiber.Map{
		"success": true,
		"valid":   true,
	})
}

// Generate issues a batch of fresh serials
func (h *SerialHandler) Generate(c *fiber.Ctx) error {
	var req struct {
		Count int `json:"count"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	serials, err := h.serials.IssueBatch(c.UserContext(), req.Count)
	if err != nil {
		return serviceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "Serials generated successfully",
		"data":    serials,
	})
}

// List returns unredeemed serials, newest first
func (h *SerialHandler) List(c *fiber.Ctx) error {
	serials, err := h.serials.List(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    serials,
		"meta": fiber.Map{
			"total": len(serials),
		},
	})
}
