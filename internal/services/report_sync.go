package services

import (
	"context"
	"log"
	"runtime/debug"
	"sync"
	"time"

	"github.com/reportdesk/backend/internal/database"
	"github.com/reportdesk/backend/internal/metrics"
	"golang.org/x/sync/errgroup"
)

// StatusFetcher returns the upstream "result" object for one report
type StatusFetcher interface {
	GetStatus(ctx context.Context, reportID string) (map[string]interface{}, error)
}

// ReportSyncService polls the upstream for every non-terminal report and
// writes what it learns into the ledger
type ReportSyncService struct {
	ledger   *ReportLedger
	fetcher  StatusFetcher
	cache    *database.Cache
	interval time.Duration
	workers  int

	cycleMu sync.Mutex
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// NewReportSyncService creates a new report sync service
func NewReportSyncService(ledger *ReportLedger, fetcher StatusFetcher, cache *database.Cache, interval time.Duration, workers int) *ReportSyncService {
	if workers < 1 {
		workers = 1
	}
	return &ReportSyncService{
		ledger:   ledger,
		fetcher:  fetcher,
		cache:    cache,
		interval: interval,
		workers:  workers,
	}
}

// Start launches the loop. The first cycle runs immediately.
func (s *ReportSyncService) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	log.Printf("ReportSync: started, interval %s, %d workers", s.interval, s.workers)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		timer := time.NewTimer(0)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				log.Println("ReportSync: stopped")
				return
			case <-timer.C:
				s.RunOnce(ctx)
				timer.Reset(s.interval)
			}
		}
	}()
}

// Stop cancels in-flight fetches and waits for the loop to exit
func (s *ReportSyncService) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// RunOnce performs one full cycle. Cycles never overlap.
func (s *ReportSyncService) RunOnce(ctx context.Context) (attempted, updated int) {
	s.cycleMu.Lock()
	defer s.cycleMu.Unlock()

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			metrics.SyncCyclePanics.Inc()
			log.Printf("ReportSync: cycle panicked: %v\n%s", r, debug.Stack())
		}
		metrics.SyncCycles.Inc()
		metrics.SyncDuration.Observe(time.Since(start).Seconds())
	}()

	pending, err := s.ledger.Pending(ctx)
	if err != nil {
		log.Printf("ReportSync: failed to load pending reports: %v", err)
		return 0, 0
	}
	metrics.SyncPending.Set(float64(len(pending)))
	if len(pending) == 0 {
		return 0, 0
	}

	var (
		mu         sync.Mutex
		updatedIDs []string
	)

	var g errgroup.Group
	g.SetLimit(s.workers)
	for i := range pending {
		reportID := pending[i].ReportID
		g.Go(func() error {
			if s.syncOne(ctx, reportID) {
				mu.Lock()
				updatedIDs = append(updatedIDs, reportID)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	if err := s.cache.InvalidateReportStatus(ctx, updatedIDs...); err != nil {
		log.Printf("ReportSync: failed to invalidate status cache: %v", err)
	}

	attempted, updated = len(pending), len(updatedIDs)
	log.Printf("ReportSync: cycle done, attempted %d, updated %d in %s", attempted, updated, time.Since(start).Round(time.Millisecond))
	return attempted, updated
}

// syncOne fetches and stores one report. Any failure is confined to this report.
func (s *ReportSyncService) syncOne(ctx context.Context, reportID string) (ok bool) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SyncCyclePanics.Inc()
			log.Printf("ReportSync: fetch for %s panicked: %v", reportID, r)
			ok = false
		}
	}()

	result, err := s.fetcher.GetStatus(ctx, reportID)
	if err != nil {
		metrics.SyncFetches.WithLabelValues("fetch_failed").Inc()
		log.Printf("ReportSync: status fetch for %s failed: %v", reportID, err)
		return false
	}

	snap := SnapshotFromJSON(result)
	snap.ReportID = reportID
	if _, err := s.ledger.Upsert(ctx, snap); err != nil {
		metrics.SyncFetches.WithLabelValues("store_failed").Inc()
		log.Printf("ReportSync: failed to store %s: %v", reportID, err)
		return false
	}

	metrics.SyncFetches.WithLabelValues("updated").Inc()
	return true
}
