package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lib/pq"

	"policy_sync/internal/domain"
)

// CoreUpserter applies classified changes to the normalized core tables.
// One Apply call is one transaction: policy, eligibility and all junction
// rewrites commit together or not at all.
type CoreUpserter struct {
	policies PolicyStore
	linker   Linker
	parser   Parser
	tx       TransactionManager
	logger   *slog.Logger
}

func NewCoreUpserter(
	policies PolicyStore,
	linker Linker,
	parser Parser,
	tx TransactionManager,
	logger *slog.Logger,
) *CoreUpserter {
	return &CoreUpserter{
		policies: policies,
		linker:   linker,
		parser:   parser,
		tx:       tx,
		logger:   logger.With("component", "upserter"),
	}
}

// Apply derives the core policy from a NEW or CHANGED landing record.
// Upsert semantics make the two classifications converge: a CHANGED record
// whose core row is missing is inserted, which self-heals partial prior
// failures. Unresolved closed-vocabulary references are returned rather
// than failing the record.
func (u *CoreUpserter) Apply(ctx context.Context, class domain.Classification, rec *domain.LandingRecord) (*domain.Policy, []domain.UnresolvedRef, error) {
	policy, elig, values, err := u.parser.Parse(rec)
	if err != nil {
		return nil, nil, fmt.Errorf("parse payload: %w", err)
	}

	var unresolved []domain.UnresolvedRef
	apply := func() error {
		return u.tx.WithTransaction(ctx, func(txCtx context.Context) error {
			id, err := u.policies.Upsert(txCtx, policy)
			if err != nil {
				return fmt.Errorf("upsert policy: %w", err)
			}
			policy.ID = id

			elig.PolicyID = id
			if err := u.policies.UpsertEligibility(txCtx, elig); err != nil {
				return fmt.Errorf("upsert eligibility: %w", err)
			}

			refs, err := u.linker.Link(txCtx, id, values)
			if err != nil {
				return fmt.Errorf("link taxonomies: %w", err)
			}
			unresolved = refs

			return nil
		})
	}

	err = apply()
	if err != nil && isRetryableConflict(err) {
		u.logger.Warn("transaction conflict, retrying once",
			"policy_id", rec.PolicyID,
			"classification", class,
			"error", err,
		)
		err = apply()
	}
	if err != nil {
		return nil, nil, err
	}

	return policy, unresolved, nil
}

// isRetryableConflict reports unique-violation and serialization errors,
// the two conflicts a concurrent duplicate upsert can produce.
func isRetryableConflict(err error) bool {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pqErr.Code == "23505" || pqErr.Code == "40001"
	}
	return false
}
