package handlers

import (
	"net/mail"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pquerna/otp/totp"
	"github.com/reportdesk/backend/internal/auth"
	"github.com/reportdesk/backend/internal/config"
	"github.com/reportdesk/backend/internal/middleware"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/services"
)

const (
	maxLoginAttempts  = 5
	loginBlockWindow  = 15 * time.Minute
	minPasswordLength = 6
)

// loginGuard tracks failed login attempts per client IP
type loginGuard struct {
	mu       sync.Mutex
	attempts map[string]*loginAttempt
}

type loginAttempt struct {
	count   int
	lastTry time.Time
}

func newLoginGuard() *loginGuard {
	return &loginGuard{attempts: make(map[string]*loginAttempt)}
}

func (g *loginGuard) blocked(ip string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[ip]
	if !ok {
		return false
	}
	if time.Since(a.lastTry) > loginBlockWindow {
		delete(g.attempts, ip)
		return false
	}
	return a.count >= maxLoginAttempts
}

func (g *loginGuard) fail(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	a, ok := g.attempts[ip]
	if !ok {
		a = &loginAttempt{}
		g.attempts[ip] = a
	}
	a.count++
	a.lastTry = time.Now()
}

func (g *loginGuard) clear(ip string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.attempts, ip)
}

type AuthHandler struct {
	cfg     *config.Config
	users   *services.CredentialStore
	auth    *auth.Service
	auditor *middleware.Auditor
	guard   *loginGuard
}

func NewAuthHandler(cfg *config.Config, users *services.CredentialStore, authService *auth.Service, auditor *middleware.Auditor) *AuthHandler {
	return &AuthHandler{
		cfg:     cfg,
		users:   users,
		auth:    authService,
		auditor: auditor,
		guard:   newLoginGuard(),
	}
}

// RegisterRequest represents register request body
type RegisterRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// TokenResponse follows the OAuth2 password-grant response shape
type TokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// Register creates a new account
func (h *AuthHandler) Register(c *fiber.Ctx) error {
	var req RegisterRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "Invalid request body",
		})
	}

	req.Username = strings.TrimSpace(req.Username)
	req.Email = strings.TrimSpace(req.Email)
	if msg := validateRegistration(req); msg != "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": msg,
		})
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return serviceError(c, err)
	}

	user, err := h.users.Create(c.UserContext(), req.Username, req.Email, hash, h.cfg.IsAdminUsername(req.Username))
	if err != nil {
		return serviceError(c, err)
	}

	h.auditor.Record(c, middleware.AuditEntry{
		User:        user,
		Action:      models.AuditActionCreate,
		EntityType:  "user",
		EntityID:    user.Username,
		Description: "User registered",
	})

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"success": true,
		"message": "User registered successfully",
		"data":    newUserResponse(user),
	})
}

func validateRegistration(req RegisterRequest) string {
	switch {
	case req.Username == "" || req.Email == "" || req.Password == "":
		return "Username, email and password are required"
	case len(req.Username) > 50:
		return "Username must be at most 50 characters"
	case len(req.Email) > 100:
		return "Email must be at most 100 characters"
	case len(req.Password) < minPasswordLength:
		return "Password must be at least 6 characters"
	}
	if addr, err := mail.ParseAddress(req.Email); err != nil || addr.Address != req.Email {
		return "Invalid email address"
	}
	return ""
}

// Token issues an access token for the OAuth2 password grant (form encoded)
func (h *AuthHandler) Token(c *fiber.Ctx) error {
	clientIP := c.IP()
	if h.guard.blocked(clientIP) {
		return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{
			"success": false,
			"message": "Too many failed login attempts. Please try again later",
		})
	}

	if grantType := c.FormValue("grant_type"); grantType != "" && grantType != "password" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": "Only 'password' grant type is supported",
		})
	}

	username := c.FormValue("username")
	password := c.FormValue("password")
	if username == "" || password == "" {
		return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
			"success": false,
			"message": "Username and password are required",
		})
	}

	user, err := h.auth.Authenticate(c.UserContext(), username, password)
	if err != nil {
		h.guard.fail(clientIP)
		c.Set(fiber.HeaderWWWAuthenticate, "Bearer")
		return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
			"success": false,
			"message": "Incorrect username or password",
		})
	}

	// Check if 2FA is enabled for this user
	if user.TwoFactorEnabled {
		code := c.FormValue("two_fa_code")
		if code == "" {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success":      false,
				"requires_2fa": true,
				"message":      "2FA code required",
			})
		}
		if !totp.Validate(code, user.TwoFactorSecret) {
			h.guard.fail(clientIP)
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"success": false,
				"message": "Invalid 2FA code",
			})
		}
	}

	h.guard.clear(clientIP)

	token, err := h.auth.IssueToken(user)
	if err != nil {
		return serviceError(c, err)
	}

	if err := h.users.TouchLastLogin(c.UserContext(), user.ID); err != nil {
		return serviceError(c, err)
	}
	h.auditor.Record(c, middleware.AuditEntry{
		User:        user,
		Action:      models.AuditActionLogin,
		EntityType:  "user",
		EntityID:    user.Username,
		Description: "User logged in",
	})

	return c.JSON(TokenResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresIn:   int(h.auth.TTL().Seconds()),
	})
}

// Me returns the authenticated user
func (h *AuthHandler) Me(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	return c.JSON(fiber.Map{
		"success": true,
		"data":    newUserResponse(user),
	})
}

// Logout revokes the token used for this request
func (h *AuthHandler) Logout(c *fiber.Ctx) error {
	if err := h.auth.Revoke(c.UserContext(), middleware.GetCurrentToken(c)); err != nil {
		return serviceError(c, err)
	}

	h.auditor.Record(c, middleware.AuditEntry{
		User:        middleware.GetCurrentUser(c),
		Action:      models.AuditActionLogout,
		EntityType:  "user",
		EntityID:    middleware.GetCurrentUser(c).Username,
		Description: "User logged out",
	})

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Logged out successfully",
	})
}
