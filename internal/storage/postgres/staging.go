package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"policy_sync/internal/domain"
)

// StagingStore tracks the latest known fingerprint per external policy id.
type StagingStore struct {
	db *sqlx.DB
}

func NewStagingStore(db *sqlx.DB) *StagingStore {
	return &StagingStore{db: db}
}

// GetForUpdate returns the staging record for a policy id, or nil when the
// id has never been seen. Inside a transaction the row is locked, which
// serializes concurrent reconciliation of the same policy id.
func (s *StagingStore) GetForUpdate(ctx context.Context, policyID string) (*domain.StagingRecord, error) {
	query := `
		SELECT policy_id, record_hash, first_seen, last_seen, lifecycle
		FROM stg.policy_state
		WHERE policy_id = $1`
	if GetTxFromContext(ctx) != nil {
		query += " FOR UPDATE"
	}

	var rec domain.StagingRecord
	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &rec, query, policyID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

// Insert creates the staging record for a policy id seen for the first time.
func (s *StagingStore) Insert(ctx context.Context, rec *domain.StagingRecord) error {
	query := `
		INSERT INTO stg.policy_state (policy_id, record_hash, first_seen, last_seen, lifecycle)
		VALUES ($1, $2, $3, $4, $5)`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.PolicyID,
		rec.RecordHash,
		rec.FirstSeen,
		rec.LastSeen,
		rec.Lifecycle,
	)
	return err
}

// Update advances the hash, last_seen and lifecycle. first_seen is immutable.
func (s *StagingStore) Update(ctx context.Context, rec *domain.StagingRecord) error {
	query := `
		UPDATE stg.policy_state
		SET record_hash = $2, last_seen = $3, lifecycle = $4
		WHERE policy_id = $1`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		rec.PolicyID,
		rec.RecordHash,
		rec.LastSeen,
		rec.Lifecycle,
	)
	return err
}

// Touch advances last_seen only, for unchanged re-observations.
func (s *StagingStore) Touch(ctx context.Context, policyID string, at time.Time) error {
	_, err := GetExecutor(ctx, s.db).ExecContext(ctx,
		"UPDATE stg.policy_state SET last_seen = $2 WHERE policy_id = $1",
		policyID, at,
	)
	return err
}

// MarkMissing flips every active staging record whose policy id was not part
// of the batch to the inactive lifecycle and returns the affected ids. Rows
// are never deleted, so a policy can reappear later.
func (s *StagingStore) MarkMissing(ctx context.Context, seen []string) ([]string, error) {
	query := `
		UPDATE stg.policy_state
		SET lifecycle = $1
		WHERE lifecycle = $2 AND NOT (policy_id = ANY($3))
		RETURNING policy_id`

	rows, err := s.db.QueryContext(ctx, query,
		domain.LifecycleInactive,
		domain.LifecycleActive,
		pq.Array(seen),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var removed []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		removed = append(removed, id)
	}

	return removed, rows.Err()
}
