package catalog

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/domain"
)

type fakeStore struct {
	models  []domain.Model
	pricing map[string][]domain.Pricing
}

func (f *fakeStore) ListModels(context.Context) ([]domain.Model, error) { return f.models, nil }

func (f *fakeStore) PricingHistory(_ context.Context, modelID string) ([]domain.Pricing, error) {
	return f.pricing[modelID], nil
}

func newTestCatalog(t *testing.T) *Catalog {
	t.Helper()

	now := time.Now()

	store := &fakeStore{
		models: []domain.Model{
			{
				ID: "model_1", CanonicalName: "llama-3", Aliases: []string{"llama3", "llama-3-latest"},
				Active: true, ProviderKind: domain.ProviderKindInternalStreaming, Verifiable: true,
			},
			{ID: "model_2", CanonicalName: "retired-model", Active: false},
		},
		pricing: map[string][]domain.Pricing{
			"model_1": {
				{ModelID: "model_1", InputCostNano: 1000, OutputCostNano: 2000, EffectiveFrom: now.Add(-time.Hour)},
				{
					ModelID: "model_1", InputCostNano: 500, OutputCostNano: 1000,
					EffectiveFrom: now.Add(-48 * time.Hour), EffectiveUntil: timePtr(now.Add(-time.Hour)),
				},
			},
		},
	}

	c, err := New(store)
	require.NoError(t, err)
	require.NoError(t, c.Refresh(context.Background()))

	return c
}

func timePtr(t time.Time) *time.Time { return &t }

func TestResolve_CanonicalAndAlias(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	m, err := c.Resolve(ctx, "llama-3")
	require.NoError(t, err)
	require.Equal(t, "llama-3", m.CanonicalName)

	m, err = c.Resolve(ctx, "llama3")
	require.NoError(t, err)
	require.Equal(t, "llama-3", m.CanonicalName, "alias must resolve to the canonical record")
}

func TestResolve_InactiveOrMissingIsNotFound(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	_, err := c.Resolve(ctx, "retired-model")
	require.Error(t, err)

	_, err = c.Resolve(ctx, "does-not-exist")
	require.Error(t, err)
}

func TestListPublic_FiltersInactive(t *testing.T) {
	c := newTestCatalog(t)

	models, err := c.ListPublic(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "llama-3", models[0].CanonicalName)
}

func TestPricingAt_ReplaysHistory(t *testing.T) {
	c := newTestCatalog(t)
	ctx := context.Background()

	now := time.Now()

	current, err := c.PricingAt(ctx, "model_1", now)
	require.NoError(t, err)
	require.Equal(t, int64(1000), current.InputCostNano)

	historical, err := c.PricingAt(ctx, "model_1", now.Add(-24*time.Hour))
	require.NoError(t, err)
	require.Equal(t, int64(500), historical.InputCostNano, "must replay the price effective at the requested instant")
}
