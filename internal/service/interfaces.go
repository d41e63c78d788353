package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"
	"time"

	"github.com/google/uuid"

	"policy_sync/internal/domain"
)

type Source interface {
	ID() string
	Name() string
	FetchPages(ctx context.Context, maxPages int) ([]domain.FetchedPage, error)
}

type Parser interface {
	Parse(rec *domain.LandingRecord) (*domain.Policy, *domain.Eligibility, domain.TaxonomyValues, error)
}

type RawPageStore interface {
	Append(ctx context.Context, page *domain.RawPage) (uuid.UUID, error)
}

type LandingStore interface {
	Insert(ctx context.Context, rec *domain.LandingRecord) error
}

type StagingStore interface {
	GetForUpdate(ctx context.Context, policyID string) (*domain.StagingRecord, error)
	Insert(ctx context.Context, rec *domain.StagingRecord) error
	Update(ctx context.Context, rec *domain.StagingRecord) error
	Touch(ctx context.Context, policyID string, at time.Time) error
	MarkMissing(ctx context.Context, seen []string) ([]string, error)
}

type PolicyStore interface {
	Upsert(ctx context.Context, policy *domain.Policy) (int64, error)
	UpsertEligibility(ctx context.Context, elig *domain.Eligibility) error
	UpdateStatus(ctx context.Context, sourceID string, externalIDs []string, status string) error
}

type TaxonomyStore interface {
	Lookup(ctx context.Context, kind domain.TaxonomyKind) (map[string]int64, error)
	CreateKeyword(ctx context.Context, name string) (int64, error)
	ReplaceLinks(ctx context.Context, policyID int64, kind domain.TaxonomyKind, ids []int64) error
}

type SyncRunStore interface {
	Record(ctx context.Context, stats *domain.SyncStats) error
}

type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error
}

type Publisher interface {
	Publish(ctx context.Context, policy *domain.Policy, isNew bool) error
	Close() error
}

// Reconciler classifies incoming landing records against staging state.
type Reconciler interface {
	Classify(ctx context.Context, rec *domain.LandingRecord) (domain.Classification, error)
	MarkRemoved(ctx context.Context, seen []string) ([]string, error)
}

// Upserter applies NEW/CHANGED classifications to the core tables.
type Upserter interface {
	Apply(ctx context.Context, class domain.Classification, rec *domain.LandingRecord) (*domain.Policy, []domain.UnresolvedRef, error)
}

// Linker resolves extracted categorical values and rewrites junction rows.
type Linker interface {
	Link(ctx context.Context, policyID int64, values domain.TaxonomyValues) ([]domain.UnresolvedRef, error)
}

// Catalog is the read-mostly lookup over the master reference tables.
type Catalog interface {
	Resolve(ctx context.Context, kind domain.TaxonomyKind, value string) (int64, bool, error)
	EnsureKeyword(ctx context.Context, name string) (int64, error)
}
