package handlers

import (
	"context"
	"errors"
	"log"
	"strings"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/middleware"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/services"
	"github.com/reportdesk/backend/internal/upstream"
)

// Upstream is the part of the provider API the submission endpoints use
type Upstream interface {
	SubmitFile(ctx context.Context, body []byte, contentType string) (*upstream.SubmitResponse, error)
	GetStatus(ctx context.Context, reportID string) (map[string]interface{}, error)
}

type SubmissionHandler struct {
	upstream Upstream
	ledger   *services.ReportLedger
	users    *services.CredentialStore
	archive  *services.SubmissionArchive
	cache    *database.Cache
}

func NewSubmissionHandler(up Upstream, ledger *services.ReportLedger, users *services.CredentialStore, archive *services.SubmissionArchive, cache *database.Cache) *SubmissionHandler {
	return &SubmissionHandler{
		upstream: up,
		ledger:   ledger,
		users:    users,
		archive:  archive,
		cache:    cache,
	}
}

// Submit forwards a multipart upload to the provider and returns its answer unchanged.
// An accepted submission is recorded in the ledger and the caller's report list.
func (h *SubmissionHandler) Submit(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	contentType := c.Get(fiber.HeaderContentType)
	if !strings.HasPrefix(contentType, fiber.MIMEMultipartForm) {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"success": false,
			"message": "multipart/form-data body required",
		})
	}
	body := append([]byte(nil), c.Body()...)

	resp, err := h.upstream.SubmitFile(c.UserContext(), body, contentType)
	if err != nil {
		log.Printf("Submissions: upstream submit failed for %s: %v", user.Username, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Upstream submission failed",
			"error":   err.Error(),
		})
	}

	// Rejected uploads are not kept
	if resp.Accepted() {
		h.record(c, user, resp)
		h.archiveFiles(c, user)
	}

	return c.Status(resp.StatusCode).JSON(resp.Body)
}

// record mirrors an accepted submission locally. Failures are logged and do not
// change the response.
func (h *SubmissionHandler) record(c *fiber.Ctx, user *models.User, resp *upstream.SubmitResponse) {
	snap := services.SnapshotFromJSON(resp.Result())
	snap.ReportID = resp.ReportID()

	if _, err := h.ledger.Upsert(c.UserContext(), snap); err != nil {
		log.Printf("Submissions: failed to record report %s: %v", snap.ReportID, err)
	}
	if _, err := h.users.AppendReport(c.UserContext(), user.ID, snap.ReportID); err != nil {
		log.Printf("Submissions: failed to add report %s to %s: %v", snap.ReportID, user.Username, err)
	}
}

func (h *SubmissionHandler) archiveFiles(c *fiber.Ctx, user *models.User) {
	if !h.archive.Enabled() {
		return
	}
	form, err := c.MultipartForm()
	if err != nil {
		log.Printf("Submissions: cannot parse upload for archiving: %v", err)
		return
	}
	for _, files := range form.File {
		for _, fh := range files {
			f, err := fh.Open()
			if err != nil {
				log.Printf("Submissions: cannot open %s for archiving: %v", fh.Filename, err)
				continue
			}
			key, err := h.archive.Store(c.UserContext(), user.ID, fh.Filename, fh.Header.Get(fiber.HeaderContentType), f)
			f.Close()
			if err != nil {
				log.Printf("Submissions: %v", err)
				continue
			}
			log.Printf("Submissions: archived %s as %s", fh.Filename, key)
		}
	}
}

// Status looks up a report upstream, caching the answer briefly, and folds it into the ledger
func (h *SubmissionHandler) Status(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)
	reportID := c.Params("id")

	if !user.IsAdmin && !ownsReport(user, reportID) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"success": false,
			"message": "Report not found",
		})
	}

	cacheKey := database.CacheKeyReportStatus + reportID
	var cached map[string]interface{}
	if h.cache.Get(c.UserContext(), cacheKey, &cached) {
		return c.JSON(fiber.Map{
			"success": true,
			"data":    cached,
			"cached":  true,
		})
	}

	result, err := h.upstream.GetStatus(c.UserContext(), reportID)
	if err != nil {
		var statusErr *upstream.StatusError
		switch {
		case errors.Is(err, upstream.ErrNoResult):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Upstream has no result for this report",
			})
		case errors.As(err, &statusErr) && statusErr.StatusCode == fiber.StatusNotFound:
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"success": false,
				"message": "Report not found upstream",
			})
		}
		log.Printf("Submissions: status lookup for %s failed: %v", reportID, err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"success": false,
			"message": "Upstream status lookup failed",
			"error":   err.Error(),
		})
	}

	snap := services.SnapshotFromJSON(result)
	snap.ReportID = reportID
	if _, err := h.ledger.Upsert(c.UserContext(), snap); err != nil {
		return serviceError(c, err)
	}
	if err := h.cache.Set(c.UserContext(), cacheKey, result, database.CacheTTLReportStatus); err != nil {
		log.Printf("Submissions: failed to cache status for %s: %v", reportID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    result,
		"cached":  false,
	})
}

func ownsReport(user *models.User, reportID string) bool {
	for _, id := range user.ReportIDs() {
		if id == reportID {
			return true
		}
	}
	return false
}
