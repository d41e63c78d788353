package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// RawPage is one fetched API page, recorded verbatim in the raw landing zone.
// Pages are append-only and never mutated, even when the fetch failed.
type RawPage struct {
	IngestID    uuid.UUID
	IngestedAt  time.Time
	BaseURL     string
	HTTPStatus  int
	PageNo      int
	PageSize    int
	QueryParams json.RawMessage
	Payload     json.RawMessage
}

// LandingRecord is one logical policy record extracted from a raw page.
// The same policy id may land multiple times with different hashes, each
// a distinct observed version.
type LandingRecord struct {
	PolicyID    string
	RecordHash  string
	RawJSON     json.RawMessage
	IngestedAt  time.Time
	RawIngestID uuid.UUID
	PageNo      int
}

// FetchedPage bundles a raw page with the records split out of its payload.
type FetchedPage struct {
	Page    RawPage
	Records []LandingRecord
}

// Lifecycle is the soft-delete state of a staging record.
type Lifecycle string

const (
	LifecycleActive   Lifecycle = "active"
	LifecycleInactive Lifecycle = "inactive"
)

// StagingRecord tracks the latest known fingerprint per external policy id.
// FirstSeen is immutable after creation; LastSeen advances on every
// observation, including unchanged re-observations.
type StagingRecord struct {
	PolicyID   string    `db:"policy_id"`
	RecordHash string    `db:"record_hash"`
	FirstSeen  time.Time `db:"first_seen"`
	LastSeen   time.Time `db:"last_seen"`
	Lifecycle  Lifecycle `db:"lifecycle"`
}

// Classification is the CDC verdict for one incoming landing record.
type Classification string

const (
	ClassNew       Classification = "new"
	ClassChanged   Classification = "changed"
	ClassUnchanged Classification = "unchanged"
	ClassRemoved   Classification = "removed"
)
