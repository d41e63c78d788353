package postgres

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"

	"policy_sync/internal/domain"
)

// LandingStore records each observed version of a policy in the staging
// landing table, keyed by (policy_id, record_hash).
type LandingStore struct {
	db *sqlx.DB
}

func NewLandingStore(db *sqlx.DB) *LandingStore {
	return &LandingStore{db: db}
}

// Insert appends one observed version. Re-ingesting an identical version is
// a no-op, so replays stay idempotent.
func (s *LandingStore) Insert(ctx context.Context, rec *domain.LandingRecord) error {
	if rec.IngestedAt.IsZero() {
		rec.IngestedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO stg.policy_landing (
			policy_id, record_hash, raw_json, ingested_at, raw_ingest_id, page_no
		) VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (policy_id, record_hash) DO NOTHING`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.PolicyID,
		rec.RecordHash,
		[]byte(rec.RawJSON),
		rec.IngestedAt,
		rec.RawIngestID,
		rec.PageNo,
	)
	return err
}

// CountVersions returns the number of distinct observed versions for a policy.
func (s *LandingStore) CountVersions(ctx context.Context, policyID string) (int, error) {
	var count int
	err := s.db.GetContext(ctx, &count,
		"SELECT COUNT(*) FROM stg.policy_landing WHERE policy_id = $1",
		policyID,
	)
	return count, err
}
