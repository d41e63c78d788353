package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"policy_sync/internal/domain"
)

// PolicyStore is the sole writer of the normalized core policy tables.
type PolicyStore struct {
	db *sqlx.DB
}

func NewPolicyStore(db *sqlx.DB) *PolicyStore {
	return &PolicyStore{db: db}
}

// Upsert inserts or updates a policy keyed by (source_id, external_id).
// When the stored content hash already matches, the update is skipped and
// updated_at stays untouched; the existing id is still returned. A changed
// record also rewrites status, so a policy flagged by UpdateStatus goes
// back to its feed status once it reappears with new content.
func (s *PolicyStore) Upsert(ctx context.Context, policy *domain.Policy) (int64, error) {
	query := `
		INSERT INTO core.policy (
			source_id, external_id, title, summary, ai_summary, description,
			support_content, status, apply_start, apply_end, view_count,
			supervising_org, operating_org, apply_url, ref_url1, ref_url2,
			content_hash, raw_json
		) VALUES (
			$1, $2, $3, $4, $5, $6, $7, COALESCE($8, 'active'), $9, $10, $11, $12, $13, $14, $15, $16, $17, $18
		)
		ON CONFLICT (source_id, external_id) DO UPDATE SET
			title = EXCLUDED.title,
			summary = EXCLUDED.summary,
			description = EXCLUDED.description,
			support_content = EXCLUDED.support_content,
			status = EXCLUDED.status,
			apply_start = EXCLUDED.apply_start,
			apply_end = EXCLUDED.apply_end,
			view_count = EXCLUDED.view_count,
			supervising_org = EXCLUDED.supervising_org,
			operating_org = EXCLUDED.operating_org,
			apply_url = EXCLUDED.apply_url,
			ref_url1 = EXCLUDED.ref_url1,
			ref_url2 = EXCLUDED.ref_url2,
			content_hash = EXCLUDED.content_hash,
			raw_json = EXCLUDED.raw_json,
			updated_at = now()
		WHERE core.policy.content_hash IS DISTINCT FROM EXCLUDED.content_hash
		RETURNING id`

	var id int64
	err := GetExecutor(ctx, s.db).QueryRowxContext(ctx, query,
		policy.SourceID,
		policy.ExternalID,
		policy.Title,
		policy.Summary,
		policy.AISummary,
		policy.Description,
		policy.SupportContent,
		policy.Status,
		policy.ApplyStart,
		policy.ApplyEnd,
		policy.ViewCount,
		policy.SupervisingOrg,
		policy.OperatingOrg,
		policy.ApplyURL,
		policy.RefURL1,
		policy.RefURL2,
		policy.ContentHash,
		[]byte(policy.RawJSON),
	).Scan(&id)

	// The conditional update returns no row when the hash is unchanged.
	if errors.Is(err, sql.ErrNoRows) {
		err = sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &id,
			"SELECT id FROM core.policy WHERE source_id = $1 AND external_id = $2",
			policy.SourceID, policy.ExternalID,
		)
	}

	if err != nil {
		return 0, err
	}

	policy.ID = id
	return id, nil
}

// UpsertEligibility writes the one-to-one eligibility record for a policy.
func (s *PolicyStore) UpsertEligibility(ctx context.Context, elig *domain.Eligibility) error {
	query := `
		INSERT INTO core.policy_eligibility (
			policy_id, marital_status, min_age, max_age, income_type,
			income_min, income_max, income_text, additional_info, restriction
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (policy_id) DO UPDATE SET
			marital_status = EXCLUDED.marital_status,
			min_age = EXCLUDED.min_age,
			max_age = EXCLUDED.max_age,
			income_type = EXCLUDED.income_type,
			income_min = EXCLUDED.income_min,
			income_max = EXCLUDED.income_max,
			income_text = EXCLUDED.income_text,
			additional_info = EXCLUDED.additional_info,
			restriction = EXCLUDED.restriction`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		elig.PolicyID,
		elig.MaritalStatus,
		elig.MinAge,
		elig.MaxAge,
		elig.IncomeType,
		elig.IncomeMin,
		elig.IncomeMax,
		elig.IncomeText,
		elig.AdditionalInfo,
		elig.Restriction,
	)
	return err
}

// UpdateStatus sets the status of the given external ids, used when removed
// policies should be flagged with a configured status.
func (s *PolicyStore) UpdateStatus(ctx context.Context, sourceID string, externalIDs []string, status string) error {
	if len(externalIDs) == 0 {
		return nil
	}

	query := `
		UPDATE core.policy
		SET status = $3, updated_at = now()
		WHERE source_id = $1 AND external_id = ANY($2)`

	_, err := s.db.ExecContext(ctx, query, sourceID, pq.Array(externalIDs), status)
	return err
}

// GetByExternalID loads one policy row, mainly for tests and tooling.
func (s *PolicyStore) GetByExternalID(ctx context.Context, sourceID, externalID string) (*domain.Policy, error) {
	query := `
		SELECT id, source_id, external_id, title, summary, ai_summary, description,
			support_content, status, apply_start, apply_end, view_count,
			supervising_org, operating_org, apply_url, ref_url1, ref_url2,
			content_hash, raw_json, created_at, updated_at
		FROM core.policy
		WHERE source_id = $1 AND external_id = $2`

	row := s.db.QueryRowxContext(ctx, query, sourceID, externalID)

	var p domain.Policy
	var raw []byte
	err := row.Scan(
		&p.ID, &p.SourceID, &p.ExternalID, &p.Title, &p.Summary, &p.AISummary,
		&p.Description, &p.SupportContent, &p.Status, &p.ApplyStart, &p.ApplyEnd,
		&p.ViewCount, &p.SupervisingOrg, &p.OperatingOrg, &p.ApplyURL,
		&p.RefURL1, &p.RefURL2, &p.ContentHash, &raw, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	p.RawJSON = raw
	return &p, nil
}
