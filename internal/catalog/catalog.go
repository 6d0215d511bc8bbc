// Package catalog implements the Model Catalog: a read-mostly table
// of models, aliases and pricing history. All callers route through
// Resolve before entering the Provider Pool.
package catalog

import (
	"context"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// Store is the persistence surface catalog needs; satisfied by
// *Repository (pgx-backed, see repo.go) or a fake in tests.
type Store interface {
	ListModels(ctx context.Context) ([]domain.Model, error)
	PricingHistory(ctx context.Context, modelID string) ([]domain.Pricing, error)
}

// Catalog resolves model names/aliases to canonical records and serves
// pricing lookups, cached in memory and refreshed periodically.
type Catalog struct {
	store Store

	mu       sync.RWMutex
	byName   map[string]domain.Model // canonical name -> Model
	byAlias  map[string]string       // alias -> canonical name
	pricing  map[string][]domain.Pricing // model id -> history, newest first

	resolveCache *lru.Cache[string, domain.Model]
}

// New constructs a Catalog; call Refresh before serving traffic (and on
// an interval thereafter — the gateway wires this next to the Provider
// Pool's own refresh loop).
func New(store Store) (*Catalog, error) {
	cache, err := lru.New[string, domain.Model](4096)
	if err != nil {
		return nil, err
	}

	return &Catalog{
		store:        store,
		byName:       map[string]domain.Model{},
		byAlias:      map[string]string{},
		pricing:      map[string][]domain.Pricing{},
		resolveCache: cache,
	}, nil
}

// Refresh reloads the catalog from the store. Safe to call concurrently
// with Resolve/ListPublic/PricingAt; publishes a fully-built snapshot
// under a single write lock.
func (c *Catalog) Refresh(ctx context.Context) error {
	models, err := c.store.ListModels(ctx)
	if err != nil {
		return err
	}

	byName := make(map[string]domain.Model, len(models))
	byAlias := make(map[string]string)
	pricing := make(map[string][]domain.Pricing, len(models))

	for _, m := range models {
		byName[m.CanonicalName] = m

		for _, alias := range m.Aliases {
			byAlias[alias] = m.CanonicalName
		}

		hist, err := c.store.PricingHistory(ctx, m.ID)
		if err != nil {
			return err
		}

		pricing[m.ID] = hist
	}

	c.mu.Lock()
	c.byName = byName
	c.byAlias = byAlias
	c.pricing = pricing
	c.mu.Unlock()

	c.resolveCache.Purge()

	return nil
}

// Resolve accepts a canonical name or alias and returns the canonical
// Model record. Accepts only active, non-deleted models.
func (c *Catalog) Resolve(_ context.Context, name string) (domain.Model, error) {
	if cached, ok := c.resolveCache.Get(name); ok {
		return cached, nil
	}

	c.mu.RLock()
	defer c.mu.RUnlock()

	canonical := name
	if target, ok := c.byAlias[name]; ok {
		canonical = target
	}

	m, ok := c.byName[canonical]
	if !ok || !m.Active || m.DeletedAt != nil {
		return domain.Model{}, xerrors.New(xerrors.KindNotFound, "model not found: "+name)
	}

	c.resolveCache.Add(name, m)

	return m, nil
}

// ListPublic returns the active, non-deleted catalog.
func (c *Catalog) ListPublic(_ context.Context) ([]domain.Model, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]domain.Model, 0, len(c.byName))

	for _, m := range c.byName {
		if m.Active && m.DeletedAt == nil {
			out = append(out, m)
		}
	}

	return out, nil
}

// PricingAt reads the pricing row effective at instant t, closed by
// EffectiveUntil, so billing can replay historical prices.
func (c *Catalog) PricingAt(_ context.Context, modelID string, t time.Time) (domain.Pricing, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, p := range c.pricing[modelID] {
		if p.EffectiveFrom.After(t) {
			continue
		}

		if p.EffectiveUntil == nil || p.EffectiveUntil.After(t) {
			return p, nil
		}
	}

	return domain.Pricing{}, xerrors.New(xerrors.KindNotFound, "no pricing effective at requested instant")
}
