package ledger

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"

	"github.com/teeinfer/gateway/internal/db"
	"github.com/teeinfer/gateway/internal/domain"
)

// Repository is the pgx-backed Store.
type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetOrganizationBalance(ctx context.Context, orgID string) (domain.OrganizationBalance, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT organization_id, total_spent_nano, last_usage_at, total_requests, total_tokens
		FROM organization_balances
		WHERE organization_id = $1
	`, orgID)

	var b domain.OrganizationBalance

	err := row.Scan(&b.OrganizationID, &b.TotalSpentNano, &b.LastUsageAt, &b.TotalRequests, &b.TotalTokens)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.OrganizationBalance{OrganizationID: orgID}, nil
	}

	if err != nil {
		return domain.OrganizationBalance{}, err
	}

	return b, nil
}

func (r *Repository) GetAPIKeySpent(ctx context.Context, keyID string) (int64, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT COALESCE(SUM(total_cost_nano), 0)
		FROM usage_log_entries
		WHERE api_key_id = $1
	`, keyID)

	var spent int64

	if err := row.Scan(&spent); err != nil {
		return 0, err
	}

	return spent, nil
}

// InsertUsageIdempotent inserts entry, returning (false, nil) when a row
// with the same (organization_id, inference_id) already exists — the
// no-op path that makes Record safe to call twice for the same
// inference.
func (r *Repository) InsertUsageIdempotent(ctx context.Context, q db.Querier, entry domain.UsageLogEntry) (bool, error) {
	tag, err := q.Exec(ctx, `
		INSERT INTO usage_log_entries
			(id, organization_id, workspace_id, api_key_id, response_id, model_id, model_name,
			 input_tokens, output_tokens, total_tokens, input_cost_nano, output_cost_nano,
			 total_cost_nano, kind, inference_id, provider_request_id, stop_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (organization_id, inference_id) WHERE inference_id IS NOT NULL DO NOTHING
	`,
		entry.ID, entry.OrganizationID, entry.WorkspaceID, entry.APIKeyID, entry.ResponseID,
		entry.ModelID, entry.ModelName, entry.InputTokens, entry.OutputTokens, entry.TotalTokens,
		entry.InputCostNano, entry.OutputCostNano, entry.TotalCostNano, entry.Kind,
		entry.InferenceID, entry.ProviderRequestID, entry.StopReason, entry.CreatedAt,
	)
	if err != nil {
		return false, err
	}

	return tag.RowsAffected() == 1, nil
}

func (r *Repository) IncrementBalance(ctx context.Context, q db.Querier, orgID string, amountNano int64) error {
	_, err := q.Exec(ctx, `
		INSERT INTO organization_balances (organization_id, total_spent_nano, total_requests, total_tokens, last_usage_at)
		VALUES ($1, $2, 1, 0, now())
		ON CONFLICT (organization_id) DO UPDATE SET
			total_spent_nano = organization_balances.total_spent_nano + EXCLUDED.total_spent_nano,
			total_requests = organization_balances.total_requests + 1,
			last_usage_at = now()
	`, orgID, amountNano)

	return err
}
