// Package orgs looks up the Organization and Workspace rows an
// authenticated principal belongs to. It has no business logic of its
// own; the ledger and auth services are the ones that interpret these
// rows.
package orgs

import (
	"context"

	"github.com/teeinfer/gateway/internal/db"
	"github.com/teeinfer/gateway/internal/domain"
)

type Store interface {
	GetOrganization(ctx context.Context, id string) (domain.Organization, error)
	GetWorkspace(ctx context.Context, id string) (domain.Workspace, error)
}

type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) GetOrganization(ctx context.Context, id string) (domain.Organization, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, display_name, active, rate_limit_rpm, spend_limit_nano, created_at
		FROM organizations
		WHERE id = $1
	`, id)

	var org domain.Organization

	err := row.Scan(&org.ID, &org.DisplayName, &org.Active, &org.RateLimitRPM, &org.SpendLimitNano, &org.CreatedAt)
	if err != nil {
		return domain.Organization{}, err
	}

	return org, nil
}

func (r *Repository) GetWorkspace(ctx context.Context, id string) (domain.Workspace, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, organization_id, name, created_at, deleted_at
		FROM workspaces
		WHERE id = $1
	`, id)

	var ws domain.Workspace

	err := row.Scan(&ws.ID, &ws.OrganizationID, &ws.Name, &ws.CreatedAt, &ws.DeletedAt)
	if err != nil {
		return domain.Workspace{}, err
	}

	return ws, nil
}
