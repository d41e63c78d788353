package domain

import (
	"encoding/json"
	"time"
)

// Policy is the normalized core record derived from the latest accepted
// landing record of an external policy.
type Policy struct {
	ID             int64
	SourceID       string // identifies the feed (e.g., "youthcenter")
	ExternalID     string
	Title          string
	Summary        *string
	AISummary      *string
	Description    *string
	SupportContent *string
	Status         *string
	ApplyStart     *time.Time
	ApplyEnd       *time.Time
	ViewCount      int64
	SupervisingOrg *string
	OperatingOrg   *string
	ApplyURL       *string
	RefURL1        *string
	RefURL2        *string
	ContentHash    string
	RawJSON        json.RawMessage
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Eligibility holds the structured eligibility constraints, one-to-one with Policy.
type Eligibility struct {
	PolicyID       int64
	MaritalStatus  *string
	MinAge         *int
	MaxAge         *int
	IncomeType     *string
	IncomeMin      *int64
	IncomeMax      *int64
	IncomeText     *string
	AdditionalInfo *string
	Restriction    *string
}

// TaxonomyKind names one of the master reference tables a policy links to.
type TaxonomyKind string

const (
	KindRegion         TaxonomyKind = "region"
	KindCategory       TaxonomyKind = "category"
	KindKeyword        TaxonomyKind = "keyword"
	KindEducation      TaxonomyKind = "education"
	KindMajor          TaxonomyKind = "major"
	KindJobStatus      TaxonomyKind = "job_status"
	KindSpecialization TaxonomyKind = "specialization"
)

// Kinds lists every taxonomy kind in a stable order.
var Kinds = []TaxonomyKind{
	KindRegion,
	KindCategory,
	KindKeyword,
	KindEducation,
	KindMajor,
	KindJobStatus,
	KindSpecialization,
}

// TaxonomyValues are the categorical values extracted from a raw payload,
// per kind, prior to resolution against the master tables.
type TaxonomyValues map[TaxonomyKind][]string

// UnresolvedRef reports a closed-vocabulary value that has no master entry.
type UnresolvedRef struct {
	Kind  TaxonomyKind
	Value string
}
