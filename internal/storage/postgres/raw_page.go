package postgres

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"policy_sync/internal/domain"
)

// RawPageStore is the append-only landing area for fetched API pages.
// There is deliberately no update or delete operation.
type RawPageStore struct {
	db *sqlx.DB
}

func NewRawPageStore(db *sqlx.DB) *RawPageStore {
	return &RawPageStore{db: db}
}

// Append durably records one fetched page and returns its ingest id.
// Pages are recorded verbatim, including failed fetches.
func (s *RawPageStore) Append(ctx context.Context, page *domain.RawPage) (uuid.UUID, error) {
	page.IngestID = uuid.New()
	page.IngestedAt = time.Now().UTC()

	// Failed fetches can carry non-JSON bodies; wrap those so the jsonb
	// column still accepts the page verbatim.
	payload := []byte(page.Payload)
	if !json.Valid(payload) {
		payload, _ = json.Marshal(string(page.Payload))
	}

	query := `
		INSERT INTO raw.api_page (
			ingest_id, ingested_at, base_url, http_status, page_no, page_size,
			query_params, payload
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.db.ExecContext(ctx, query,
		page.IngestID,
		page.IngestedAt,
		page.BaseURL,
		page.HTTPStatus,
		page.PageNo,
		page.PageSize,
		[]byte(page.QueryParams),
		payload,
	)
	if err != nil {
		return uuid.Nil, err
	}

	return page.IngestID, nil
}
