package services

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/reportdesk/backend/internal/config"
	"github.com/reportdesk/backend/internal/metrics"
	"github.com/reportdesk/backend/internal/models"
)

const (
	exportFilePrefix = "reports-"
	exportRetention  = 7 * 24 * time.Hour
)

var ledgerCSVHeader = []string{
	"report_id",
	"status",
	"error",
	"submitted_file",
	"submitted_file_url",
	"plagiarism_report_url",
	"ai_report_url",
	"similarity_percent",
	"ai_percent",
	"slots_balance",
	"created_at",
}

// FTPTarget is where finished exports are uploaded. An empty Host disables upload.
type FTPTarget struct {
	Host     string
	Port     int
	Username string
	Password string
	Path     string
}

// LedgerExportService periodically writes the report ledger to CSV and ships it over FTP
type LedgerExportService struct {
	ledger   *ReportLedger
	dir      string
	interval time.Duration
	ftp      FTPTarget
	now      func() time.Time
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// NewLedgerExportService creates a new ledger export service
func NewLedgerExportService(ledger *ReportLedger, cfg *config.Config) *LedgerExportService {
	return &LedgerExportService{
		ledger:   ledger,
		dir:      cfg.ExportDir,
		interval: cfg.ExportInterval,
		ftp: FTPTarget{
			Host:     cfg.FTPHost,
			Port:     cfg.FTPPort,
			Username: cfg.FTPUser,
			Password: cfg.FTPPassword,
			Path:     cfg.FTPPath,
		},
		now:      time.Now,
		stopChan: make(chan struct{}),
	}
}

// Start runs exports on the configured interval. A zero interval disables the scheduler.
func (s *LedgerExportService) Start() {
	if s.interval <= 0 {
		log.Println("LedgerExport: disabled (EXPORT_INTERVAL not set)")
		return
	}
	log.Printf("LedgerExport: started, exporting every %s to %s", s.interval, s.dir)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-s.stopChan:
				log.Println("LedgerExport: stopped")
				return
			case <-ticker.C:
				if _, err := s.RunExport(context.Background()); err != nil {
					log.Printf("LedgerExport: export failed: %v", err)
				}
			}
		}
	}()
}

// Stop stops the scheduler and waits for a running export to finish
func (s *LedgerExportService) Stop() {
	select {
	case <-s.stopChan:
	default:
		close(s.stopChan)
	}
	s.wg.Wait()
}

// RunExport writes one CSV snapshot, uploads it when FTP is configured and
// prunes old local files. It returns the local path.
func (s *LedgerExportService) RunExport(ctx context.Context) (string, error) {
	reports, err := s.ledger.All(ctx)
	if err != nil {
		metrics.LedgerExports.WithLabelValues("failed").Inc()
		return "", err
	}

	if err := os.MkdirAll(s.dir, 0755); err != nil {
		metrics.LedgerExports.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("create export dir: %w", err)
	}

	filename := exportFilePrefix + s.now().UTC().Format("20060102-150405") + ".csv"
	localPath := filepath.Join(s.dir, filename)

	f, err := os.Create(localPath)
	if err != nil {
		metrics.LedgerExports.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("create export file: %w", err)
	}
	if err := WriteLedgerCSV(f, reports); err != nil {
		f.Close()
		metrics.LedgerExports.WithLabelValues("failed").Inc()
		return "", err
	}
	if err := f.Close(); err != nil {
		metrics.LedgerExports.WithLabelValues("failed").Inc()
		return "", fmt.Errorf("close export file: %w", err)
	}

	if s.ftp.Host != "" {
		if err := s.uploadToFTP(localPath, filename); err != nil {
			metrics.LedgerExports.WithLabelValues("upload_failed").Inc()
			log.Printf("LedgerExport: FTP upload failed for %s: %v", filename, err)
		}
	}

	s.cleanOldExports()
	metrics.LedgerExports.WithLabelValues("ok").Inc()
	log.Printf("LedgerExport: wrote %d reports to %s", len(reports), localPath)
	return localPath, nil
}

// WriteLedgerCSV renders reports as CSV with a header row. NULL columns are empty.
func WriteLedgerCSV(w io.Writer, reports []models.Report) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(ledgerCSVHeader); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}

	for _, r := range reports {
		slots := ""
		if r.SlotsBalance != nil {
			slots = strconv.Itoa(*r.SlotsBalance)
		}
		record := []string{
			r.ReportID,
			deref(r.Status),
			deref(r.Error),
			deref(r.SubmittedFile),
			deref(r.SubmittedFileURL),
			deref(r.PlagiarismReportURL),
			deref(r.AIReportURL),
			deref(r.SimilarityPercent),
			deref(r.AIPercent),
			slots,
			r.CreatedAt.UTC().Format(time.RFC3339),
		}
		if err := cw.Write(record); err != nil {
			return fmt.Errorf("write csv row %s: %w", r.ReportID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// uploadToFTP uploads a file to FTP server
func (s *LedgerExportService) uploadToFTP(localPath, filename string) error {
	addr := fmt.Sprintf("%s:%d", s.ftp.Host, s.ftp.Port)
	conn, err := ftp.Dial(addr, ftp.DialWithTimeout(30*time.Second))
	if err != nil {
		return fmt.Errorf("FTP connection failed: %w", err)
	}
	defer conn.Quit()

	if err := conn.Login(s.ftp.Username, s.ftp.Password); err != nil {
		return fmt.Errorf("FTP login failed: %w", err)
	}

	// Change to export directory, creating it if needed
	if s.ftp.Path != "" && s.ftp.Path != "/" {
		if err := conn.ChangeDir(s.ftp.Path); err != nil {
			if err := conn.MakeDir(s.ftp.Path); err != nil {
				log.Printf("LedgerExport: FTP mkdir %s failed: %v", s.ftp.Path, err)
			}
			if err := conn.ChangeDir(s.ftp.Path); err != nil {
				return fmt.Errorf("FTP directory change failed: %w", err)
			}
		}
	}

	file, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open local file: %w", err)
	}
	defer file.Close()

	if err := conn.Stor(filename, file); err != nil {
		return fmt.Errorf("FTP upload failed: %w", err)
	}

	log.Printf("LedgerExport: Uploaded %s to FTP %s", filename, s.ftp.Host)
	return nil
}

// cleanOldExports removes local exports older than the retention period
func (s *LedgerExportService) cleanOldExports() {
	cutoff := s.now().Add(-exportRetention)

	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return
	}
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasPrefix(name, exportFilePrefix) || !strings.HasSuffix(name, ".csv") {
			continue
		}
		info, err := entry.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, name)); err == nil {
			log.Printf("LedgerExport: Deleted old export %s", name)
		}
	}
}
