package handlers

import (
	"bytes"
	"log"
	"path/filepath"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/middleware"
	"github.com/reportdesk/backend/internal/services"
)

type ReportHandler struct {
	ledger   *services.ReportLedger
	sync     *services.ReportSyncService
	exporter *services.LedgerExportService
	cache    *database.Cache
}

func NewReportHandler(ledger *services.ReportLedger, sync *services.ReportSyncService, exporter *services.LedgerExportService, cache *database.Cache) *ReportHandler {
	return &ReportHandler{ledger: ledger, sync: sync, exporter: exporter, cache: cache}
}

// List returns the caller's reports in the order they were added
func (h *ReportHandler) List(c *fiber.Ctx) error {
	user := middleware.GetCurrentUser(c)

	reports, err := h.ledger.ListForUser(c.UserContext(), user.ID)
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    reports,
	})
}

// Delete removes a report from the ledger
func (h *ReportHandler) Delete(c *fiber.Ctx) error {
	reportID := c.Params("id")
	if err := h.ledger.Delete(c.UserContext(), reportID); err != nil {
		return serviceError(c, err)
	}

	if err := h.cache.InvalidateReportStatus(c.UserContext(), reportID); err != nil {
		log.Printf("Reports: failed to invalidate status cache for %s: %v", reportID, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Report deleted",
	})
}

// SyncNow runs one sync cycle inline
func (h *ReportHandler) SyncNow(c *fiber.Ctx) error {
	attempted, updated := h.sync.RunOnce(c.UserContext())

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"attempted": attempted,
			"updated":   updated,
		},
	})
}

// Stats returns report counts per status
func (h *ReportHandler) Stats(c *fiber.Ctx) error {
	counts, err := h.ledger.StatusCounts(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}

	var total int64
	for _, n := range counts {
		total += n
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data": fiber.Map{
			"total":     total,
			"by_status": counts,
		},
	})
}

// Export downloads the whole ledger as json or csv
func (h *ReportHandler) Export(c *fiber.Ctx) error {
	format := c.Query("format", "json") // json, csv

	reports, err := h.ledger.All(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}

	if format == "csv" {
		var buf bytes.Buffer
		if err := services.WriteLedgerCSV(&buf, reports); err != nil {
			return serviceError(c, err)
		}
		c.Set(fiber.HeaderContentType, "text/csv")
		c.Set(fiber.HeaderContentDisposition, "attachment; filename=reports.csv")
		return c.Send(buf.Bytes())
	}

	return c.JSON(fiber.Map{
		"success": true,
		"data":    reports,
	})
}

// RunExport writes an export file now, uploading it when FTP is configured
func (h *ReportHandler) RunExport(c *fiber.Ctx) error {
	path, err := h.exporter.RunExport(c.UserContext())
	if err != nil {
		return serviceError(c, err)
	}

	return c.JSON(fiber.Map{
		"success": true,
		"message": "Export completed",
		"data": fiber.Map{
			"file": filepath.Base(path),
		},
	})
}
