package auth

import (
	"context"
	"time"

	"github.com/teeinfer/gateway/internal/db"
	"github.com/teeinfer/gateway/internal/domain"
)

// Repository is the pgx-backed KeyStore/SessionStore.
type Repository struct {
	pool db.Querier
}

func NewRepository(pool db.Querier) *Repository {
	return &Repository{pool: pool}
}

func (r *Repository) FindAPIKeyByContentHash(ctx context.Context, hash string) (domain.APIKey, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, organization_id, prefix, content_hash, active,
		       deleted_at, expires_at, spend_limit_nano, last_used_at, created_at
		FROM api_keys
		WHERE content_hash = $1
	`, hash)

	var k domain.APIKey

	err := row.Scan(&k.ID, &k.WorkspaceID, &k.OrganizationID, &k.Prefix, &k.ContentHash,
		&k.Active, &k.DeletedAt, &k.ExpiresAt, &k.SpendLimitNano, &k.LastUsedAt, &k.CreatedAt)
	if err != nil {
		return domain.APIKey{}, err
	}

	return k, nil
}

func (r *Repository) TouchLastUsed(ctx context.Context, keyID string, at time.Time) error {
	_, err := r.pool.Exec(ctx, `UPDATE api_keys SET last_used_at = $1 WHERE id = $2`, at, keyID)
	return err
}

func (r *Repository) FindSessionByContentHash(ctx context.Context, hash string) (Session, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT user_id, email, user_agent, expires_at, revoked_at
		FROM sessions
		WHERE content_hash = $1
	`, hash)

	var s Session

	err := row.Scan(&s.UserID, &s.Email, &s.UserAgent, &s.ExpiresAt, &s.RevokedAt)
	if err != nil {
		return Session{}, err
	}

	return s, nil
}
