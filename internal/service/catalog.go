package service

import (
	"context"
	"log/slog"
	"sync"

	"policy_sync/internal/domain"
)

// TaxonomyCatalog caches the master reference tables per kind. Reads are
// served from memory; keyword creation writes through the store and updates
// the cache, keeping the reload-on-write contract explicit.
type TaxonomyCatalog struct {
	store  TaxonomyStore
	logger *slog.Logger

	mu    sync.RWMutex
	cache map[domain.TaxonomyKind]map[string]int64
}

func NewTaxonomyCatalog(store TaxonomyStore, logger *slog.Logger) *TaxonomyCatalog {
	return &TaxonomyCatalog{
		store:  store,
		logger: logger.With("component", "catalog"),
		cache:  make(map[domain.TaxonomyKind]map[string]int64),
	}
}

// Resolve maps a lookup value to its taxonomy id. The kind's table is
// loaded lazily on first use. The inner map is only ever read under the
// mutex: EnsureKeyword mutates it concurrently from the worker pool.
func (c *TaxonomyCatalog) Resolve(ctx context.Context, kind domain.TaxonomyKind, value string) (int64, bool, error) {
	c.mu.RLock()
	table, loaded := c.cache[kind]
	if loaded {
		id, ok := table[value]
		c.mu.RUnlock()
		return id, ok, nil
	}
	c.mu.RUnlock()

	if err := c.load(ctx, kind); err != nil {
		return 0, false, err
	}

	c.mu.RLock()
	id, ok := c.cache[kind][value]
	c.mu.RUnlock()
	return id, ok, nil
}

// EnsureKeyword resolves an open-vocabulary keyword, creating it when
// absent. The store insert is conflict-safe, so concurrent creation of the
// same name converges on one id.
func (c *TaxonomyCatalog) EnsureKeyword(ctx context.Context, name string) (int64, error) {
	id, ok, err := c.Resolve(ctx, domain.KindKeyword, name)
	if err != nil {
		return 0, err
	}
	if ok {
		return id, nil
	}

	id, err = c.store.CreateKeyword(ctx, name)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	if table := c.cache[domain.KindKeyword]; table != nil {
		table[name] = id
	}
	c.mu.Unlock()

	c.logger.Debug("created keyword", "name", name, "id", id)
	return id, nil
}

// Reload drops and refetches every cached kind.
func (c *TaxonomyCatalog) Reload(ctx context.Context) error {
	for _, kind := range domain.Kinds {
		if err := c.load(ctx, kind); err != nil {
			return err
		}
	}
	return nil
}

func (c *TaxonomyCatalog) load(ctx context.Context, kind domain.TaxonomyKind) error {
	table, err := c.store.Lookup(ctx, kind)
	if err != nil {
		return err
	}

	c.mu.Lock()
	c.cache[kind] = table
	c.mu.Unlock()

	c.logger.Debug("loaded taxonomy", "kind", kind, "entries", len(table))
	return nil
}
