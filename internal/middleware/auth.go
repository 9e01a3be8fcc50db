package middleware

import (
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/auth"
	"github.com/reportdesk/backend/internal/models"
)

const (
	localsUser  = "user"
	localsToken = "token"
)

// AuthRequired middleware to protect routes
func AuthRequired(authService *auth.Service) fiber.Handler {
	return func(c *fiber.Ctx) error {
		tokenString, ok := bearerToken(c.Get(fiber.HeaderAuthorization))
		if !ok {
			c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Not authenticated",
			})
		}

		user, err := authService.ResolveToken(c.UserContext(), tokenString)
		if err != nil {
			if errors.Is(err, auth.ErrUnauthenticated) {
				c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
				return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
					"success": false,
					"message": "Could not validate credentials",
				})
			}
			log.Printf("Auth: token resolution failed: %v", err)
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"success": false,
				"message": "Internal server error",
			})
		}

		// Store user info in context
		c.Locals(localsUser, user)
		c.Locals(localsToken, tokenString)

		return c.Next()
	}
}

// AdminOnly middleware to restrict to admin users. Must run after AuthRequired.
func AdminOnly() fiber.Handler {
	return func(c *fiber.Ctx) error {
		user := GetCurrentUser(c)
		if user == nil || !user.IsAdmin {
			return c.Status(fiber.StatusForbidden).JSON(fiber.Map{
				"success": false,
				"message": "Admin access required",
			})
		}
		return c.Next()
	}
}

// GetCurrentUser returns the current user from context
func GetCurrentUser(c *fiber.Ctx) *models.User {
	user, ok := c.Locals(localsUser).(*models.User)
	if !ok {
		return nil
	}
	return user
}

// GetCurrentToken returns the bearer token the request was authenticated with
func GetCurrentToken(c *fiber.Ctx) string {
	token, _ := c.Locals(localsToken).(string)
	return token
}

// bearerToken extracts the token from "Bearer <token>"
func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(header, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
