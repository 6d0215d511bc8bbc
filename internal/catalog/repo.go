package catalog

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/teeinfer/gateway/internal/domain"
)

// Repository is the pgx-backed Store implementation, one repository per
// entity, speaking SQL directly instead of an ent-generated client — see
// DESIGN.md for why code generation isn't an option here.
type Repository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) ListModels(ctx context.Context) ([]domain.Model, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, canonical_name, aliases, context_length, verifiable,
		       owned_by, provider_kind, active, deleted_at
		FROM models`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Model

	for rows.Next() {
		var m domain.Model

		var providerKind string

		if err := rows.Scan(
			&m.ID, &m.CanonicalName, &m.Aliases, &m.ContextLength, &m.Verifiable,
			&m.OwnedBy, &providerKind, &m.Active, &m.DeletedAt,
		); err != nil {
			return nil, err
		}

		m.ProviderKind = domain.ProviderKind(providerKind)
		out = append(out, m)
	}

	return out, rows.Err()
}

func (r *Repository) PricingHistory(ctx context.Context, modelID string) ([]domain.Pricing, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT model_id, input_cost_nano, output_cost_nano, image_cost_nano,
		       effective_from, effective_until
		FROM model_pricing_history
		WHERE model_id = $1
		ORDER BY effective_from DESC`, modelID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Pricing

	for rows.Next() {
		var p domain.Pricing
		if err := rows.Scan(
			&p.ModelID, &p.InputCostNano, &p.OutputCostNano, &p.ImageCostNano,
			&p.EffectiveFrom, &p.EffectiveUntil,
		); err != nil {
			return nil, err
		}

		out = append(out, p)
	}

	return out, rows.Err()
}
