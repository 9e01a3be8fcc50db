package handlers

import (
	"errors"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/auth"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/services"
)

// UserResponse is the public view of a user
type UserResponse struct {
	ID               uint       `json:"id"`
	Username         string     `json:"username"`
	Email            string     `json:"email"`
	IsAdmin          bool       `json:"is_admin"`
	ReportIDList     string     `json:"report_id_list"`
	TwoFactorEnabled bool       `json:"two_factor_enabled"`
	LastLogin        *time.Time `json:"last_login"`
	CreatedAt        time.Time  `json:"created_at"`
	UpdatedAt        time.Time  `json:"updated_at"`
}

func newUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:               u.ID,
		Username:         u.Username,
		Email:            u.Email,
		IsAdmin:          u.IsAdmin,
		ReportIDList:     u.ReportIDList(),
		TwoFactorEnabled: u.TwoFactorEnabled,
		LastLogin:        u.LastLogin,
		CreatedAt:        u.CreatedAt,
		UpdatedAt:        u.UpdatedAt,
	}
}

// serviceError maps domain errors to HTTP statuses. Anything unknown is logged and hidden.
func serviceError(c *fiber.Ctx, err error) error {
	status := fiber.StatusInternalServerError
	message := "Internal server error"

	switch {
	case errors.Is(err, services.ErrInvalidSerial),
		errors.Is(err, services.ErrInvalidCount),
		errors.Is(err, services.ErrMissingReportID),
		errors.Is(err, services.ErrDuplicateUsername),
		errors.Is(err, services.ErrDuplicateEmail):
		status = fiber.StatusBadRequest
		message = capitalize(err.Error())
	case errors.Is(err, auth.ErrUnauthenticated):
		status = fiber.StatusUnauthorized
		message = capitalize(err.Error())
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
	case errors.Is(err, services.ErrReportNotFound),
		errors.Is(err, services.ErrUserNotFound):
		status = fiber.StatusNotFound
		message = capitalize(err.Error())
	default:
		log.Printf("Handler: %s %s failed: %v", c.Method(), c.Path(), err)
	}

	return c.Status(status).JSON(fiber.Map{
		"success": false,
		"message": message,
	})
}

func capitalize(s string) string {
	if s == "" || s[0] < 'a' || s[0] > 'z' {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
