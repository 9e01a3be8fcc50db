package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strconv"
	"strings"

	"github.com/reportdesk/backend/internal/models"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	submittedFilesMarker = "submitted_files/"
	presignMarker        = "?X-Amz-Algorithm"
)

// mutableReportColumns are overwritten on every observation; created_at never is
var mutableReportColumns = []string{
	"status",
	"error",
	"submitted_file_url",
	"submitted_file",
	"plagiarism_report_url",
	"ai_report_url",
	"similarity_percent",
	"ai_percent",
	"slots_balance",
}

// ReportSnapshot is one observation of a report, from a webhook, a poll or a submission.
// Nil fields are stored as NULL.
type ReportSnapshot struct {
	ReportID            string
	Status              *string
	Error               *string
	SubmittedFileURL    *string
	PlagiarismReportURL *string
	AIReportURL         *string
	SimilarityPercent   *string
	AIPercent           *string
	SlotsBalance        *int
}

// DeriveShortFilename extracts the object name between "submitted_files/" and the
// presigned query string. It returns "" when the marker is absent.
func DeriveShortFilename(url string) string {
	start := strings.Index(url, submittedFilesMarker)
	if start == -1 {
		return ""
	}
	rest := url[start+len(submittedFilesMarker):]
	if end := strings.Index(rest, presignMarker); end != -1 {
		return rest[:end]
	}
	return rest
}

// SnapshotFromForm reads webhook form fields. Absent fields become NULL, except
// submitted_file_url which defaults to "" (and so does the derived short name).
func SnapshotFromForm(fields map[string]string) ReportSnapshot {
	get := func(key string) *string {
		if v, ok := fields[key]; ok {
			return &v
		}
		return nil
	}

	snap := ReportSnapshot{
		ReportID:            strings.TrimSpace(fields["report_id"]),
		Status:              get("status"),
		Error:               get("error"),
		SubmittedFileURL:    new(string),
		PlagiarismReportURL: get("plagiarism_report_url"),
		AIReportURL:         get("ai_report_url"),
		SimilarityPercent:   get("similarity_percent"),
		AIPercent:           get("ai_percent"),
	}
	if v, ok := fields["submitted_file_url"]; ok {
		snap.SubmittedFileURL = &v
	}
	if v, ok := fields["slots_balance"]; ok {
		snap.SlotsBalance = parseSlots(v)
	}
	return snap
}

// SnapshotFromJSON reads an upstream "result" object whose values may be strings or numbers
func SnapshotFromJSON(fields map[string]interface{}) ReportSnapshot {
	snap := ReportSnapshot{
		Status:              jsonString(fields["status"]),
		Error:               jsonString(fields["error"]),
		SubmittedFileURL:    jsonString(fields["submitted_file_url"]),
		PlagiarismReportURL: jsonString(fields["plagiarism_report_url"]),
		AIReportURL:         jsonString(fields["ai_report_url"]),
		SimilarityPercent:   jsonString(fields["similarity_percent"]),
		AIPercent:           jsonString(fields["ai_percent"]),
	}
	if id := jsonString(fields["report_id"]); id != nil {
		snap.ReportID = strings.TrimSpace(*id)
	}

	switch v := fields["slots_balance"].(type) {
	case float64:
		n := int(v)
		snap.SlotsBalance = &n
	case json.Number:
		snap.SlotsBalance = parseSlots(v.String())
	case string:
		snap.SlotsBalance = parseSlots(v)
	}
	return snap
}

func jsonString(v interface{}) *string {
	var s string
	switch t := v.(type) {
	case nil:
		return nil
	case string:
		s = t
	case float64:
		s = strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		s = t.String()
	case bool:
		s = strconv.FormatBool(t)
	default:
		s = fmt.Sprint(t)
	}
	return &s
}

func parseSlots(v string) *int {
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		if f, ferr := strconv.ParseFloat(strings.TrimSpace(v), 64); ferr == nil {
			n = int(f)
			return &n
		}
		return nil
	}
	return &n
}

func (s ReportSnapshot) toModel() models.Report {
	report := models.Report{
		ReportID:            s.ReportID,
		Status:              s.Status,
		Error:               s.Error,
		SubmittedFileURL:    s.SubmittedFileURL,
		PlagiarismReportURL: s.PlagiarismReportURL,
		AIReportURL:         s.AIReportURL,
		SimilarityPercent:   s.SimilarityPercent,
		AIPercent:           s.AIPercent,
		SlotsBalance:        s.SlotsBalance,
	}
	if s.SubmittedFileURL != nil {
		short := DeriveShortFilename(*s.SubmittedFileURL)
		report.SubmittedFile = &short
	}
	return report
}

// ReportLedger is the local mirror of upstream report status
type ReportLedger struct {
	db *gorm.DB
}

func NewReportLedger(db *gorm.DB) *ReportLedger {
	return &ReportLedger{db: db}
}

// Upsert inserts the report or overwrites its mutable columns in one statement
func (l *ReportLedger) Upsert(ctx context.Context, snap ReportSnapshot) (*models.Report, error) {
	if snap.ReportID == "" {
		return nil, ErrMissingReportID
	}

	report := snap.toModel()
	err := l.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "report_id"}},
			DoUpdates: clause.AssignmentColumns(mutableReportColumns),
		}).
		Create(&report).Error
	if err != nil {
		return nil, fmt.Errorf("upsert report %s: %w", snap.ReportID, err)
	}
	return l.Get(ctx, snap.ReportID)
}

func (l *ReportLedger) Get(ctx context.Context, reportID string) (*models.Report, error) {
	var report models.Report
	err := l.db.WithContext(ctx).Where("report_id = ?", reportID).First(&report).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrReportNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get report %s: %w", reportID, err)
	}
	return &report, nil
}

// Pending returns reports the sync loop still has to poll
func (l *ReportLedger) Pending(ctx context.Context) ([]models.Report, error) {
	var reports []models.Report
	err := l.db.WithContext(ctx).
		Where("status IS NULL OR status NOT IN ?", models.TerminalReportStatuses).
		Order("created_at ASC").
		Find(&reports).Error
	if err != nil {
		return nil, fmt.Errorf("load pending reports: %w", err)
	}
	return reports, nil
}

// ListForUser returns the user's reports in append order. IDs without a row are skipped.
func (l *ReportLedger) ListForUser(ctx context.Context, userID uint) ([]models.Report, error) {
	var ids []string
	err := l.db.WithContext(ctx).
		Model(&models.UserReport{}).
		Where("user_id = ?", userID).
		Order("position ASC").
		Pluck("report_id", &ids).Error
	if err != nil {
		return nil, fmt.Errorf("list report ids: %w", err)
	}
	if len(ids) == 0 {
		return []models.Report{}, nil
	}

	var rows []models.Report
	if err := l.db.WithContext(ctx).Where("report_id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}

	byID := make(map[string]models.Report, len(rows))
	for _, r := range rows {
		byID[r.ReportID] = r
	}
	reports := make([]models.Report, 0, len(rows))
	var missing []string
	for _, id := range ids {
		if r, ok := byID[id]; ok {
			reports = append(reports, r)
		} else {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		log.Printf("ReportLedger: user %d references %d unknown report(s): %s", userID, len(missing), strings.Join(missing, ","))
	}
	return reports, nil
}

// All returns every report, oldest first
func (l *ReportLedger) All(ctx context.Context) ([]models.Report, error) {
	var reports []models.Report
	if err := l.db.WithContext(ctx).Order("created_at ASC").Find(&reports).Error; err != nil {
		return nil, fmt.Errorf("load reports: %w", err)
	}
	return reports, nil
}

// StatusCounts returns the number of reports per status. NULL status is counted as "pending".
func (l *ReportLedger) StatusCounts(ctx context.Context) (map[string]int64, error) {
	var rows []struct {
		Status *string
		Count  int64
	}
	err := l.db.WithContext(ctx).
		Model(&models.Report{}).
		Select("status, COUNT(*) AS count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("count reports by status: %w", err)
	}

	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		key := "pending"
		if r.Status != nil {
			key = *r.Status
		}
		counts[key] += r.Count
	}
	return counts, nil
}

func (l *ReportLedger) Delete(ctx context.Context, reportID string) error {
	res := l.db.WithContext(ctx).Where("report_id = ?", reportID).Delete(&models.Report{})
	if res.Error != nil {
		return fmt.Errorf("delete report %s: %w", reportID, res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrReportNotFound
	}
	return nil
}
