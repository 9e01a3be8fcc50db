package models

import "time"

const (
	ReportStatusCompleted = "completed"
	ReportStatusError     = "error"
)

// TerminalReportStatuses are never polled again
var TerminalReportStatuses = []string{ReportStatusCompleted, ReportStatusError}

// Report mirrors the status of a submission tracked by the upstream provider
type Report struct {
	ReportID            string    `gorm:"column:report_id;primaryKey;size:255" json:"report_id"`
	Status              *string   `gorm:"column:status;size:50;index" json:"status"`
	Error               *string   `gorm:"column:error;type:text" json:"error"`
	SubmittedFileURL    *string   `gorm:"column:submitted_file_url;type:text" json:"submitted_file_url"`
	SubmittedFile       *string   `gorm:"column:submitted_file;size:255" json:"submitted_file"`
	PlagiarismReportURL *string   `gorm:"column:plagiarism_report_url;type:text" json:"plagiarism_report_url"`
	AIReportURL         *string   `gorm:"column:ai_report_url;type:text" json:"ai_report_url"`
	SimilarityPercent   *string   `gorm:"column:similarity_percent;size:50" json:"similarity_percent"`
	AIPercent           *string   `gorm:"column:ai_percent;size:50" json:"ai_percent"`
	SlotsBalance        *int      `gorm:"column:slots_balance" json:"slots_balance"`
	CreatedAt           time.Time `gorm:"column:created_at" json:"created_at"`
}

// IsTerminal reports whether the upstream has finished with this report
func (r *Report) IsTerminal() bool {
	if r.Status == nil {
		return false
	}
	for _, s := range TerminalReportStatuses {
		if *r.Status == s {
			return true
		}
	}
	return false
}

func (Report) TableName() string {
	return "reports"
}
