package handlers

import (
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/metrics"
	"github.com/reportdesk/backend/internal/services"
)

type WebhookHandler struct {
	ledger *services.ReportLedger
	cache  *database.Cache
}

func NewWebhookHandler(ledger *services.ReportLedger, cache *database.Cache) *WebhookHandler {
	return &WebhookHandler{ledger: ledger, cache: cache}
}

// Plagwise receives provider status pushes. The provider only checks for HTTP 200,
// so failures are reported in the body.
func (h *WebhookHandler) Plagwise(c *fiber.Ctx) error {
	fields, err := formFields(c)
	if err != nil {
		metrics.WebhookEvents.WithLabelValues("fail").Inc()
		log.Printf("Webhook: unreadable body: %v", err)
		return c.JSON(fiber.Map{"msg": "fail", "error": err.Error()})
	}

	snap := services.SnapshotFromForm(fields)
	if _, err := h.ledger.Upsert(c.UserContext(), snap); err != nil {
		metrics.WebhookEvents.WithLabelValues("fail").Inc()
		log.Printf("Webhook: upsert of %q failed: %v", snap.ReportID, err)
		return c.JSON(fiber.Map{"msg": "fail", "error": err.Error()})
	}

	if err := h.cache.InvalidateReportStatus(c.UserContext(), snap.ReportID); err != nil {
		log.Printf("Webhook: failed to invalidate status cache for %s: %v", snap.ReportID, err)
	}
	metrics.WebhookEvents.WithLabelValues("success").Inc()

	return c.JSON(fiber.Map{"msg": "success", "data": fields})
}

// formFields flattens a urlencoded or multipart body, keeping the first value per key
func formFields(c *fiber.Ctx) (map[string]string, error) {
	fields := make(map[string]string)

	if strings.HasPrefix(c.Get(fiber.HeaderContentType), fiber.MIMEMultipartForm) {
		form, err := c.MultipartForm()
		if err != nil {
			return nil, err
		}
		for key, values := range form.Value {
			if len(values) > 0 {
				fields[key] = values[0]
			}
		}
		return fields, nil
	}

	c.Request().PostArgs().VisitAll(func(key, value []byte) {
		k := string(key)
		if _, seen := fields[k]; !seen {
			fields[k] = string(value)
		}
	})
	return fields, nil
}
