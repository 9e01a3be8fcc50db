package services

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/models"
	"github.com/reportdesk/backend/internal/testutil"
)

type fakeFetcher struct {
	mu       sync.Mutex
	calls    []string
	results  map[string]map[string]interface{}
	failures map[string]error
	panics   map[string]bool
	delay    time.Duration

	inFlight    int32
	maxInFlight int32
}

func (f *fakeFetcher) GetStatus(ctx context.Context, reportID string) (map[string]interface{}, error) {
	n := atomic.AddInt32(&f.inFlight, 1)
	defer atomic.AddInt32(&f.inFlight, -1)
	for {
		peak := atomic.LoadInt32(&f.maxInFlight)
		if n <= peak || atomic.CompareAndSwapInt32(&f.maxInFlight, peak, n) {
			break
		}
	}

	f.mu.Lock()
	f.calls = append(f.calls, reportID)
	f.mu.Unlock()

	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.panics[reportID] {
		panic("boom")
	}
	if err := f.failures[reportID]; err != nil {
		return nil, err
	}
	if r, ok := f.results[reportID]; ok {
		return r, nil
	}
	return map[string]interface{}{"status": "processing"}, nil
}

func (f *fakeFetcher) called(id string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.calls {
		if c == id {
			return true
		}
	}
	return false
}

func TestRunOnceSkipsTerminalReports(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := NewReportLedger(db)
	testutil.CreateTestReport(t, db, "done", testutil.Ptr(models.ReportStatusCompleted))
	testutil.CreateTestReport(t, db, "failed", testutil.Ptr(models.ReportStatusError))
	testutil.CreateTestReport(t, db, "running", testutil.Ptr("processing"))

	fetcher := &fakeFetcher{results: map[string]map[string]interface{}{
		"running": {
			"status":             "completed",
			"submitted_file_url": "https://x/submitted_files/paper.pdf?X-Amz-Algorithm=1",
			"similarity_percent": 42,
		},
	}}
	svc := NewReportSyncService(ledger, fetcher, nil, time.Hour, 4)

	attempted, updated := svc.RunOnce(context.Background())
	if attempted != 1 || updated != 1 {
		t.Fatalf("expected 1/1, got %d/%d", attempted, updated)
	}
	if fetcher.called("done") || fetcher.called("failed") {
		t.Fatal("terminal reports must not be fetched")
	}

	r, _ := ledger.Get(context.Background(), "running")
	if *r.Status != "completed" || *r.SubmittedFile != "paper.pdf" || *r.SimilarityPercent != "42" {
		t.Fatalf("unexpected stored report %+v", r)
	}

	// Now completed, so the next cycle has nothing to do
	attempted, _ = svc.RunOnce(context.Background())
	if attempted != 0 {
		t.Fatalf("expected no pending reports, got %d", attempted)
	}
}

func TestRunOnceIsolatesFailures(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := NewReportLedger(db)
	for _, id := range []string{"ok", "broken", "panicky"} {
		testutil.CreateTestReport(t, db, id, nil)
	}

	fetcher := &fakeFetcher{
		failures: map[string]error{"broken": errors.New("upstream down")},
		panics:   map[string]bool{"panicky": true},
	}
	svc := NewReportSyncService(ledger, fetcher, nil, time.Hour, 2)

	attempted, updated := svc.RunOnce(context.Background())
	if attempted != 3 || updated != 1 {
		t.Fatalf("expected 3 attempted, 1 updated, got %d/%d", attempted, updated)
	}

	r, _ := ledger.Get(context.Background(), "broken")
	if r.Status != nil {
		t.Fatalf("failed fetch must leave the row untouched, got %q", *r.Status)
	}
}

func TestRunOnceBoundsConcurrency(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := NewReportLedger(db)
	for i := 0; i < 12; i++ {
		testutil.CreateTestReport(t, db, string(rune('a'+i)), nil)
	}

	fetcher := &fakeFetcher{delay: 20 * time.Millisecond}
	svc := NewReportSyncService(ledger, fetcher, nil, time.Hour, 3)

	attempted, updated := svc.RunOnce(context.Background())
	if attempted != 12 || updated != 12 {
		t.Fatalf("expected 12/12, got %d/%d", attempted, updated)
	}
	if peak := atomic.LoadInt32(&fetcher.maxInFlight); peak > 3 {
		t.Fatalf("expected at most 3 concurrent fetches, saw %d", peak)
	}
}

func TestRunOnceInvalidatesCache(t *testing.T) {
	db := testutil.SetupTestDB(t)
	rdb, mr := testutil.SetupTestRedis(t)
	ledger := NewReportLedger(db)
	testutil.CreateTestReport(t, db, "r1", nil)
	mr.Set(database.CacheKeyReportStatus+"r1", `{"status":"stale"}`)

	svc := NewReportSyncService(ledger, &fakeFetcher{}, database.NewCache(rdb), time.Hour, 1)
	svc.RunOnce(context.Background())

	if mr.Exists(database.CacheKeyReportStatus + "r1") {
		t.Fatal("expected cached status to be invalidated after update")
	}
}

func TestStartStop(t *testing.T) {
	db := testutil.SetupTestDB(t)
	ledger := NewReportLedger(db)
	testutil.CreateTestReport(t, db, "r1", nil)

	fetcher := &fakeFetcher{results: map[string]map[string]interface{}{"r1": {"status": "completed"}}}
	svc := NewReportSyncService(ledger, fetcher, nil, time.Hour, 1)
	svc.Start(context.Background())

	deadline := time.Now().Add(2 * time.Second)
	for !fetcher.called("r1") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}

	done := make(chan struct{})
	go func() {
		svc.Stop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if !fetcher.called("r1") {
		t.Fatal("expected the first cycle to run immediately on Start")
	}
}
