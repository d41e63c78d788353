package service

import (
	"context"
	"fmt"
	"log/slog"

	"policy_sync/internal/domain"
)

// TaxonomyLinker resolves extracted categorical values against the master
// tables and rewrites the policy's junction rows per kind.
type TaxonomyLinker struct {
	catalog Catalog
	store   TaxonomyStore
	logger  *slog.Logger
}

func NewTaxonomyLinker(catalog Catalog, store TaxonomyStore, logger *slog.Logger) *TaxonomyLinker {
	return &TaxonomyLinker{
		catalog: catalog,
		store:   store,
		logger:  logger.With("component", "linker"),
	}
}

// Link replaces the junction rows of every kind so they reflect only the
// latest extraction. Keywords are an open vocabulary and are created on
// miss; every other kind is closed, and unknown values are reported as
// unresolved references without failing the record.
func (l *TaxonomyLinker) Link(ctx context.Context, policyID int64, values domain.TaxonomyValues) ([]domain.UnresolvedRef, error) {
	var unresolved []domain.UnresolvedRef

	for _, kind := range domain.Kinds {
		ids := make([]int64, 0, len(values[kind]))

		for _, value := range values[kind] {
			if kind == domain.KindKeyword {
				id, err := l.catalog.EnsureKeyword(ctx, value)
				if err != nil {
					return unresolved, fmt.Errorf("ensure keyword %q: %w", value, err)
				}
				ids = append(ids, id)
				continue
			}

			id, ok, err := l.catalog.Resolve(ctx, kind, value)
			if err != nil {
				return unresolved, fmt.Errorf("resolve %s %q: %w", kind, value, err)
			}
			if !ok {
				unresolved = append(unresolved, domain.UnresolvedRef{Kind: kind, Value: value})
				continue
			}
			ids = append(ids, id)
		}

		// Called even when ids is empty so stale links from a prior version
		// are cleared.
		if err := l.store.ReplaceLinks(ctx, policyID, kind, ids); err != nil {
			return unresolved, fmt.Errorf("replace %s links: %w", kind, err)
		}
	}

	return unresolved, nil
}
