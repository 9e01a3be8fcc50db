package handlers

import (
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/middleware"
	"github.com/reportdesk/backend/internal/services"
)

type UserHandler struct {
	users *services.CredentialStore
}

func NewUserHandler(users *services.CredentialStore) *UserHandler {
	return &UserHandler{users: users}
}

// UpdateReports appends a report ID to the caller's list if it is not there yet
func (h *UserHandler) UpdateReports(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	var req struct {
		ReportID string `json:"report_id"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	added, err := h.users.AppendReport(c.UserContext(), user.ID, strings.TrimSpace(req.ReportID))
	if err != nil {
		return serviceError(c, err)
	}

	updated, err := h.users.FindByUsername(c.UserContext(), user.Username)
	if err != nil {
		return serviceError(c, err)
	}

	message := "Report added"
	if !added {
		message = "Report already in list"
	}
	return c.JSON(fiber.Map{
		"success": true,
		"message": message,
		"data":    newUserResponse(updated),
	})
}

// RemoveReport drops a report ID from the caller's own list
func (h *UserHandler) RemoveReport(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	removed, err := h.users.RemoveReport(c.UserContext(), user.ID, c.Params("id"))
	if err != nil {
		return serviceError(c, err)
	}
	if !removed {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Report not in your list",
		})
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Report removed",
	})
}

// SetAdmin grants or revokes admin rights
func (h *UserHandler) SetAdmin(c *fiber.Ctx) error {
	var req struct {
		IsAdmin *bool `json:"is_admin"`
	}
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}
	if req.IsAdmin == nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "is_admin is required",
		})
	}

	username := c.Params("username")
	if current := middleware.GetCurrentUser(c); current.Username == username && !*req.IsAdmin {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Cannot remove your own admin rights",
		})
	}

	user, err := h.users.SetAdmin(c.UserContext(), username, *req.IsAdmin)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "User updated successfully",
		"data":    newUserResponse(user),
	})
}
