package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/testutil"
)

func TestUpdateReportsAndList(t *testing.T) {
	env := setupTestApp(t, nil)
	testutil.CreateTestUser(t, env.db, "alice", false)
	token := env.login(t, "alice")

	resp := env.do(t, testutil.MakeRequest(http.MethodPost, "/api/users/update-reports", map[string]string{}, token))
	testutil.AssertStatus(t, resp, fiber.StatusBadRequest)
	var missing envelope
	testutil.DecodeJSON(t, resp, &missing)
	if missing.Message != "Report ID is required" {
		t.Fatalf("unexpected message %q", missing.Message)
	}

	for _, id := range []string{"r-1", "r-2", "r-1"} {
		resp = env.do(t, testutil.MakeRequest(http.MethodPost, "/api/users/update-reports", map[string]string{"report_id": id}, token))
		testutil.AssertStatus(t, resp, fiber.StatusOK)
	}
	var updated struct {
		Message string       `json:"message"`
		Data    UserResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &updated)
	if updated.Data.ReportIDList != "r-1;r-2" {
		t.Fatalf("expected r-1;r-2, got %q", updated.Data.ReportIDList)
	}
	if updated.Message != "Report already in list" {
		t.Fatalf("expected duplicate append to be reported, got %q", updated.Message)
	}

	// Only r-2 has a ledger row, r-1 is dropped from the listing
	testutil.CreateTestReport(t, env.db, "r-2", testutil.Ptr("processing"))
	resp = env.do(t, testutil.MakeRequest(http.MethodGet, "/api/reports", nil, token))
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	var listed struct {
		Data []models.Report `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &listed)
	if len(listed.Data) != 1 || listed.Data[0].ReportID != "r-2" {
		t.Fatalf("expected only r-2, got %+v", listed.Data)
	}

	resp = env.do(t, testutil.MakeRequest(http.MethodDelete, "/api/users/reports/r-2", nil, token))
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	resp = env.do(t, testutil.MakeRequest(http.MethodDelete, "/api/users/reports/r-2", nil, token))
	testutil.AssertStatus(t, resp, fiber.StatusNotFound)

	var rows int64
	env.db.Model(&models.Report{}).Where("report_id = ?", "r-2").Count(&rows)
	if rows != 1 {
		t.Fatalf("removing from a list must not delete the report row")
	}
}

func TestDeleteReport(t *testing.T) {
	env := setupTestApp(t, nil)
	testutil.CreateTestUser(t, env.db, "admin", true)
	token := env.login(t, "admin")
	testutil.CreateTestReport(t, env.db, "r-1", nil)

	resp := env.do(t, testutil.MakeRequest(http.MethodDelete, "/api/reports/r-1", nil, token))
	testutil.AssertStatus(t, resp, fiber.StatusOK)

	resp = env.do(t, testutil.MakeRequest(http.MethodDelete, "/api/reports/r-1", nil, token))
	testutil.AssertStatus(t, resp, fiber.StatusNotFound)

	var audits int64
	env.db.Model(&models.AuditLog{}).Where("action = ? AND entity_id = ?", models.AuditActionDelete, "r-1").Count(&audits)
	if audits != 1 {
		t.Fatalf("expected one delete audit row, got %d", audits)
	}
}

func TestSetAdmin(t *testing.T) {
	env := setupTestApp(t, nil)
	testutil.CreateTestUser(t, env.db, "admin", true)
	testutil.CreateTestUser(t, env.db, "bob", false)
	token := env.login(t, "admin")

	resp := env.do(t, testutil.MakeRequest(http.MethodPut, "/api/users/bob/admin", map[string]bool{"is_admin": true}, token))
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	var body struct {
		Data UserResponse `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)
	if !body.Data.IsAdmin {
		t.Fatalf("expected bob to be admin")
	}

	resp = env.do(t, testutil.MakeRequest(http.MethodPut, "/api/users/admin/admin", map[string]bool{"is_admin": false}, token))
	testutil.AssertStatus(t, resp, fiber.StatusBadRequest)

	resp = env.do(t, testutil.MakeRequest(http.MethodPut, "/api/users/ghost/admin", map[string]bool{"is_admin": true}, token))
	testutil.AssertStatus(t, resp, fiber.StatusNotFound)

	resp = env.do(t, testutil.MakeRequest(http.MethodPut, "/api/users/bob/admin", map[string]string{}, token))
	testutil.AssertStatus(t, resp, fiber.StatusBadRequest)
}

func TestSyncNow(t *testing.T) {
	var calls int32
	env := setupTestApp(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{"status": "completed", "similarity_percent": 7},
		})
	})
	testutil.CreateTestUser(t, env.db, "admin", true)
	token := env.login(t, "admin")
	testutil.CreateTestReport(t, env.db, "p-1", testutil.Ptr("processing"))
	testutil.CreateTestReport(t, env.db, "p-2", nil)
	testutil.CreateTestReport(t, env.db, "done", testutil.Ptr(models.ReportStatusCompleted))

	resp := env.do(t, testutil.MakeRequest(http.MethodPost, "/api/reports/sync", nil, token))
	testutil.AssertStatus(t, resp, fiber.StatusOK)
	var body struct {
		Data struct {
			Attempted int `json:"attempted"`
			Updated   int `json:"updated"`
		} `json:"data"`
	}
	testutil.DecodeJSON(t, resp, &body)
	if body.Data.Attempted != 2 || body.Data.Updated != 2 {
		t.Fatalf("expected 2/2, got %+v", body.Data)
	}
	if atomic.LoadInt32(&calls) != 2 {
		t.Fatalf("completed report must not be fetched, got %d calls", calls)
	}

	var report models.Report
	env.db.Where("report_id = ?", "p-2").First(&report)
	if report.Status == nil || *report.Status != "completed" || report.SimilarityPercent == nil || *report.SimilarityPercent != "7" {
		t.Fatalf("unexpected synced report %+v", report)
	}
}

func TestWebhookUpsert(t *testing.T) {
	env := setupTestApp(t, nil)

	post := func(form url.Values) map[string]interface{} {
		req := httptest.NewRequest(http.MethodPost, "/webhook/plagwise", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		resp := env.do(t, req)
		testutil.AssertStatus(t, resp, fiber.StatusOK)
		var body map[string]interface{}
		testutil.DecodeJSON(t, resp, &body)
		return body
	}

	body := post(url.Values{
		"report_id":          {"w-1"},
		"status":             {"processing"},
		"submitted_file_url": {"https://bucket.example.com/submitted_files/essay.docx?X-Amz-Algorithm=AWS4-HMAC-SHA256&X-Amz-Date=1"},
		"slots_balance":      {"12"},
	})
	if body["msg"] != "success" {
		t.Fatalf("expected success, got %v", body)
	}
	data, _ := body["data"].(map[string]interface{})
	if data["report_id"] != "w-1" {
		t.Fatalf("expected form fields echoed back, got %v", body["data"])
	}

	var report models.Report
	env.db.Where("report_id = ?", "w-1").First(&report)
	if report.SubmittedFile == nil || *report.SubmittedFile != "essay.docx" {
		t.Fatalf("expected short filename essay.docx, got %v", report.SubmittedFile)
	}
	if report.SlotsBalance == nil || *report.SlotsBalance != 12 {
		t.Fatalf("expected slots balance 12, got %v", report.SlotsBalance)
	}
	createdAt := report.CreatedAt

	post(url.Values{
		"report_id":             {"w-1"},
		"status":                {"completed"},
		"similarity_percent":    {"18"},
		"plagiarism_report_url": {"https://example.com/r.pdf"},
	})
	env.db.Where("report_id = ?", "w-1").First(&report)
	if *report.Status != "completed" || *report.SimilarityPercent != "18" {
		t.Fatalf("expected updated report, got %+v", report)
	}
	if report.SlotsBalance != nil || report.Error != nil {
		t.Fatalf("absent webhook fields must be stored as NULL")
	}
	if report.SubmittedFileURL == nil || *report.SubmittedFileURL != "" || report.SubmittedFile == nil || *report.SubmittedFile != "" {
		t.Fatalf("absent submitted_file_url must clear both file columns to empty strings")
	}
	if !report.CreatedAt.Equal(createdAt) {
		t.Fatalf("created_at changed on upsert")
	}

	var count int64
	env.db.Model(&models.Report{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected a single row after two deliveries, got %d", count)
	}

	body = post(url.Values{"status": {"completed"}})
	if body["msg"] != "fail" || body["error"] == "" {
		t.Fatalf("expected fail payload without report_id, got %v", body)
	}
}
