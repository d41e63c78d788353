package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"policy_sync/internal/config"
	"policy_sync/internal/domain"
	"policy_sync/internal/fingerprint"
)

// SyncService drives one full CDC cycle: fetch pages, append them to the
// raw zone, reconcile every record against staging, apply NEW/CHANGED to
// core, publish change events, and deactivate records that disappeared.
type SyncService struct {
	source     Source
	raw        RawPageStore
	reconciler Reconciler
	upserter   Upserter
	policies   PolicyStore
	runs       SyncRunStore
	publisher  Publisher
	logger     *slog.Logger
	config     config.SyncConfig
}

func NewSyncService(
	source Source,
	raw RawPageStore,
	reconciler Reconciler,
	upserter Upserter,
	policies PolicyStore,
	runs SyncRunStore,
	publisher Publisher,
	logger *slog.Logger,
	cfg config.SyncConfig,
) *SyncService {
	return &SyncService{
		source:     source,
		raw:        raw,
		reconciler: reconciler,
		upserter:   upserter,
		policies:   policies,
		runs:       runs,
		publisher:  publisher,
		logger:     logger.With("source", source.ID()),
		config:     cfg,
	}
}

func (s *SyncService) Sync(ctx context.Context) (*domain.SyncStats, error) {
	startTime := time.Now()
	s.logger.Info("starting sync",
		"source_name", s.source.Name(),
		"max_pages", s.config.MaxPagesPerSync,
		"workers", s.config.Workers,
	)

	pages, fetchErr := s.source.FetchPages(ctx, s.config.MaxPagesPerSync)

	// Every fetched page goes to the raw zone first, failed fetches included.
	records, complete := s.appendRawPages(ctx, pages)

	if fetchErr != nil {
		if len(records) == 0 {
			return nil, fmt.Errorf("fetch pages: %w", fetchErr)
		}
		s.logger.Warn("fetch incomplete, processing partial batch",
			"pages", len(pages),
			"error", fetchErr,
		)
	}

	stats := &domain.SyncStats{
		SourceID: s.source.ID(),
		Pages:    len(pages),
		Fetched:  len(records),
	}

	s.processBatch(ctx, records, stats)

	// Removal detection needs a complete crawl: a partial batch must not
	// deactivate everything it did not reach. An empty batch is treated the
	// same way, upstream glitches should not wipe the staging zone.
	if fetchErr == nil && complete && len(records) > 0 && ctx.Err() == nil {
		s.markRemoved(ctx, records, stats)
	}

	stats.Duration = time.Since(startTime)

	if err := s.runs.Record(ctx, stats); err != nil {
		s.logger.Error("failed to record sync run", "error", err)
	}

	s.logger.Info("sync completed",
		"new", stats.New,
		"changed", stats.Changed,
		"unchanged", stats.Unchanged,
		"removed", stats.Removed,
		"errors", stats.Errors,
		"published", stats.Published,
		"unresolved", stats.Unresolved,
		"duration", stats.Duration,
	)

	return stats, nil
}

func (s *SyncService) appendRawPages(ctx context.Context, pages []domain.FetchedPage) ([]*domain.LandingRecord, bool) {
	var records []*domain.LandingRecord
	complete := true

	for i := range pages {
		page := &pages[i]

		ingestID, err := s.raw.Append(ctx, &page.Page)
		if err != nil {
			s.logger.Error("failed to append raw page",
				"page", page.Page.PageNo,
				"error", err,
			)
			complete = false
			continue
		}

		for j := range page.Records {
			page.Records[j].RawIngestID = ingestID
			page.Records[j].IngestedAt = page.Page.IngestedAt
			records = append(records, &page.Records[j])
		}
	}

	return records, complete
}

// processBatch reconciles and applies records on a bounded worker pool.
// The staging row lock serializes workers that hit the same policy id.
func (s *SyncService) processBatch(ctx context.Context, records []*domain.LandingRecord, stats *domain.SyncStats) {
	workers := s.config.Workers
	if workers < 1 {
		workers = 1
	}

	var mu sync.Mutex
	jobs := make(chan *domain.LandingRecord)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for rec := range jobs {
				s.processRecord(ctx, rec, stats, &mu)
			}
		}()
	}

	for _, rec := range records {
		if ctx.Err() != nil {
			break
		}
		jobs <- rec
	}
	close(jobs)
	wg.Wait()
}

func (s *SyncService) processRecord(ctx context.Context, rec *domain.LandingRecord, stats *domain.SyncStats, mu *sync.Mutex) {
	digest, err := fingerprint.Sum(rec.RawJSON)
	if err != nil {
		// Skipped records are naturally re-fetched on the next cycle.
		s.logger.Warn("failed to fingerprint record",
			"policy_id", rec.PolicyID,
			"error", err,
		)
		mu.Lock()
		stats.Errors++
		mu.Unlock()
		return
	}
	rec.RecordHash = digest

	class, err := s.reconciler.Classify(ctx, rec)
	if err != nil {
		s.logger.Error("failed to classify record",
			"policy_id", rec.PolicyID,
			"error", err,
		)
		mu.Lock()
		stats.Errors++
		mu.Unlock()
		return
	}

	if class == domain.ClassUnchanged {
		mu.Lock()
		stats.Unchanged++
		mu.Unlock()
		return
	}

	policy, unresolved, err := s.upserter.Apply(ctx, class, rec)
	if err != nil {
		s.logger.Error("failed to apply record",
			"policy_id", rec.PolicyID,
			"classification", class,
			"error", err,
		)
		mu.Lock()
		stats.Errors++
		mu.Unlock()
		return
	}

	for _, ref := range unresolved {
		s.logger.Warn("unresolved taxonomy reference",
			"policy_id", rec.PolicyID,
			"kind", ref.Kind,
			"value", ref.Value,
		)
	}

	// Publish failures do not undo the committed record; they only count
	// against the run.
	published := false
	publishFailed := false
	if s.publisher != nil {
		if err := s.publisher.Publish(ctx, policy, class == domain.ClassNew); err != nil {
			s.logger.Error("failed to publish change event",
				"policy_id", rec.PolicyID,
				"error", err,
			)
			publishFailed = true
		} else {
			published = true
		}
	}

	mu.Lock()
	defer mu.Unlock()
	stats.Unresolved += len(unresolved)
	if publishFailed {
		stats.Errors++
	}
	if class == domain.ClassNew {
		stats.New++
	} else {
		stats.Changed++
	}
	if published {
		stats.Published++
	}
}

func (s *SyncService) markRemoved(ctx context.Context, records []*domain.LandingRecord, stats *domain.SyncStats) {
	seen := make([]string, 0, len(records))
	seenSet := make(map[string]struct{}, len(records))
	for _, rec := range records {
		if _, ok := seenSet[rec.PolicyID]; ok {
			continue
		}
		seenSet[rec.PolicyID] = struct{}{}
		seen = append(seen, rec.PolicyID)
	}

	removed, err := s.reconciler.MarkRemoved(ctx, seen)
	if err != nil {
		s.logger.Error("failed to mark removed policies", "error", err)
		stats.Errors++
		return
	}
	stats.Removed = len(removed)

	if s.config.RemovedStatus == "" || len(removed) == 0 {
		return
	}

	if err := s.policies.UpdateStatus(ctx, s.source.ID(), removed, s.config.RemovedStatus); err != nil {
		s.logger.Error("failed to update removed policy status", "error", err)
		stats.Errors++
	}
}
