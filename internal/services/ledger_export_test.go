package services

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/reportdesk/backend/internal/config"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/testutil"
)

func TestWriteLedgerCSV(t *testing.T) {
	created := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	reports := []models.Report{
		{
			ReportID:          "r1",
			Status:            testutil.Ptr("completed"),
			SubmittedFile:     testutil.Ptr("essay, final.docx"),
			SimilarityPercent: testutil.Ptr("12"),
			SlotsBalance:      testutil.Ptr(3),
			CreatedAt:         created,
		},
		{ReportID: "r2", CreatedAt: created},
	}

	var buf bytes.Buffer
	if err := WriteLedgerCSV(&buf, reports); err != nil {
		t.Fatalf("WriteLedgerCSV: %v", err)
	}

	rows, err := csv.NewReader(&buf).ReadAll()
	if err != nil {
		t.Fatalf("output is not valid CSV: %v", err)
	}
	if len(rows) != 3 || rows[0][0] != "report_id" {
		t.Fatalf("expected header plus 2 rows, got %v", rows)
	}
	if rows[1][3] != "essay, final.docx" || rows[1][9] != "3" || rows[1][10] != "2024-03-01T12:00:00Z" {
		t.Fatalf("unexpected first row %v", rows[1])
	}
	if rows[2][1] != "" || rows[2][9] != "" {
		t.Fatalf("NULL columns must be empty, got %v", rows[2])
	}
}

func TestRunExportWritesFile(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := NewReportLedger(db)
	testutil.CreateTestReport(t, db, "r1", testutil.Ptr("processing"))

	dir := t.TempDir()
	stale := filepath.Join(dir, "reports-20000101-000000.csv")
	os.WriteFile(stale, []byte("old"), 0644)
	old := time.Now().Add(-30 * 24 * time.Hour)
	os.Chtimes(stale, old, old)

	svc := NewLedgerExportService(ledger, &config.Config{ExportDir: dir})
	path, err := svc.RunExport(context.Background())
	if err != nil {
		t.Fatalf("RunExport: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read export: %v", err)
	}
	if !strings.Contains(string(data), "r1,processing") {
		t.Fatalf("expected report row in export, got %s", data)
	}
	if _, err := os.Stat(stale); !os.IsNotExist(err) {
		t.Fatal("expected exports past retention to be pruned")
	}
}

func TestExportSchedulerDisabled(t *testing.T) {
	svc := NewLedgerExportService(nil, &config.Config{})
	svc.Start()
	svc.Stop()
	svc.Stop()
}

// serveReadOnlyFTP answers a single FTP session that refuses every directory command.
func serveReadOnlyFTP(t *testing.T) (*net.TCPAddr, <-chan []string) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	cmds := make(chan []string, 1)
	go func() {
		var seen []string
		defer func() { cmds <- seen }()

		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()

		r := bufio.NewReader(conn)
		fmt.Fprint(conn, "220 ready\r\n")
		for {
			line, err := r.ReadString('\n')
			if err != nil {
				return
			}
			fields := strings.Fields(line)
			if len(fields) == 0 {
				continue
			}
			verb := fields[0]
			seen = append(seen, verb)
			switch verb {
			case "USER":
				fmt.Fprint(conn, "331 password required\r\n")
			case "PASS":
				fmt.Fprint(conn, "230 logged in\r\n")
			case "FEAT":
				fmt.Fprint(conn, "502 not implemented\r\n")
			case "TYPE":
				fmt.Fprint(conn, "200 type set\r\n")
			case "CWD", "MKD":
				fmt.Fprint(conn, "550 permission denied\r\n")
			case "QUIT":
				fmt.Fprint(conn, "221 bye\r\n")
				return
			default:
				fmt.Fprint(conn, "502 not implemented\r\n")
			}
		}
	}()

	return ln.Addr().(*net.TCPAddr), cmds
}

func TestUploadToFTPLogsMkdirFailure(t *testing.T) {
	addr, cmds := serveReadOnlyFTP(t)

	var logs bytes.Buffer
	log.SetOutput(&logs)
	t.Cleanup(func() { log.SetOutput(os.Stderr) })

	local := filepath.Join(t.TempDir(), "reports.csv")
	if err := os.WriteFile(local, []byte("report_id\n"), 0644); err != nil {
		t.Fatalf("write local file: %v", err)
	}

	svc := &LedgerExportService{
		ftp: FTPTarget{Host: "127.0.0.1", Port: addr.Port, Username: "u", Password: "p", Path: "exports"},
	}
	if err := svc.uploadToFTP(local, "reports.csv"); err == nil {
		t.Fatal("expected upload to fail when the export directory is unreachable")
	}

	select {
	case seen := <-cmds:
		if !strings.Contains(strings.Join(seen, " "), "MKD") {
			t.Fatalf("expected MKD to be attempted, got %v", seen)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("FTP session did not finish")
	}

	if !strings.Contains(logs.String(), "FTP mkdir exports failed") {
		t.Fatalf("expected mkdir failure to be logged, got %q", logs.String())
	}
}
