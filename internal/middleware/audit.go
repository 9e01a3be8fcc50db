package middleware

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// sensitiveFields never reach the audit payload
var sensitiveFields = []string{"password", "hashed_password", "two_fa_code", "code", "secret", "access_token"}

// AuditEntry is what a caller knows about a mutation
type AuditEntry struct {
	User        *models.User
	Action      models.AuditAction
	EntityType  string
	EntityID    string
	Description string
	Payload     interface{}
}

// Auditor writes audit_logs rows
type Auditor struct {
	db *gorm.DB
}

func NewAuditor(db *gorm.DB) *Auditor {
	return &Auditor{db: db}
}

// Audit middleware records a successful mutation on the route it guards. The
// entity ID is taken from the named route parameter, if any.
func (a *Auditor) Audit(action models.AuditAction, entityType, idParam string) fiber.Handler {
	return func(c *fiber.Ctx) error {
		body := append([]byte(nil), c.Body()...)
		entityID := ""
		if idParam != "" {
			entityID = c.Params(idParam)
		}

		// Execute the request
		err := c.Next()

		// Only log successful responses
		status := c.Response().StatusCode()
		if err != nil || status < 200 || status >= 400 {
			return err
		}

		user := GetCurrentUser(c)
		a.Record(c, AuditEntry{
			User:        user,
			Action:      action,
			EntityType:  entityType,
			EntityID:    entityID,
			Description: describe(action, entityType, entityID, user),
			Payload:     payloadFromBody(body, string(c.Request().Header.ContentType())),
		})
		return nil
	}
}

// Record inserts one audit row. Failures are logged, never returned to the client.
func (a *Auditor) Record(c *fiber.Ctx, entry AuditEntry) {
	auditLog := models.AuditLog{
		Action:      entry.Action,
		EntityType:  entry.EntityType,
		EntityID:    entry.EntityID,
		Description: entry.Description,
		IPAddress:   c.IP(),
		UserAgent:   truncate(c.Get(fiber.HeaderUserAgent), 255),
	}
	if entry.User != nil {
		auditLog.UserID = entry.User.ID
		auditLog.Username = entry.User.Username
	}
	if entry.Payload != nil {
		if raw, err := json.Marshal(entry.Payload); err == nil {
			auditLog.Payload = datatypes.JSON(raw)
		}
	}

	if err := a.db.WithContext(c.UserContext()).Create(&auditLog).Error; err != nil {
		log.Printf("Audit: failed to record %s %s: %v", entry.Action, entry.EntityType, err)
	}
}

func describe(action models.AuditAction, entityType, entityID string, user *models.User) string {
	actor := "anonymous"
	if user != nil {
		actor = user.Username
	}
	if entityID == "" {
		return fmt.Sprintf("%s: %s %s", actor, action, entityType)
	}
	return fmt.Sprintf("%s: %s %s %s", actor, action, entityType, entityID)
}

// payloadFromBody keeps a JSON object body minus sensitive keys. Other bodies are not stored.
func payloadFromBody(body []byte, contentType string) interface{} {
	if len(body) == 0 || !strings.HasPrefix(contentType, fiber.MIMEApplicationJSON) {
		return nil
	}
	var obj map[string]interface{}
	if err := json.Unmarshal(body, &obj); err != nil {
		return nil
	}
	for _, key := range sensitiveFields {
		delete(obj, key)
	}
	return obj
}

func truncate(s string, n int) string {
	if len(s) > n {
		return s[:n]
	}
	return s
}
