package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"policy_sync/internal/domain"
)

// SyncRunStore keeps per-cycle bookkeeping in the staging zone.
type SyncRunStore struct {
	db *sqlx.DB
}

func NewSyncRunStore(db *sqlx.DB) *SyncRunStore {
	return &SyncRunStore{db: db}
}

// Record appends one row describing a completed sync cycle.
func (s *SyncRunStore) Record(ctx context.Context, stats *domain.SyncStats) error {
	query := `
		INSERT INTO stg.sync_run (
			source_id, ran_at, pages, fetched, new_count, changed_count,
			unchanged_count, removed_count, error_count, published_count,
			unresolved_count, duration_ms
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, query,
		stats.SourceID,
		time.Now().UTC(),
		stats.Pages,
		stats.Fetched,
		stats.New,
		stats.Changed,
		stats.Unchanged,
		stats.Removed,
		stats.Errors,
		stats.Published,
		stats.Unresolved,
		stats.Duration.Milliseconds(),
	)
	return err
}

// LastRun returns the timestamp of the most recent recorded cycle for a
// source, or the zero time when none exists.
func (s *SyncRunStore) LastRun(ctx context.Context, sourceID string) (time.Time, error) {
	var ranAt time.Time
	err := s.db.GetContext(ctx, &ranAt,
		"SELECT COALESCE(MAX(ran_at), 'epoch'::timestamptz) FROM stg.sync_run WHERE source_id = $1",
		sourceID,
	)
	return ranAt, err
}
