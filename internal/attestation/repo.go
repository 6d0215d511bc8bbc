package attestation

import (
	"context"

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

func (r *Repository) UpsertChatSignature(ctx context.Context, sig domain.ChatSignature) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO chat_signatures (chat_id, signing_algo, text, signature, signing_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (chat_id, signing_algo) DO UPDATE SET
			text = EXCLUDED.text,
			signature = EXCLUDED.signature,
			signing_address = EXCLUDED.signing_address,
			created_at = EXCLUDED.created_at
	`, sig.ChatID, sig.SigningAlgo, sig.Text, sig.Signature, sig.SigningAddress, sig.CreatedAt)

	return err
}

func (r *Repository) GetChatSignature(ctx context.Context, chatID, signingAlgo string) (domain.ChatSignature, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT chat_id, signing_algo, text, signature, signing_address, created_at
		FROM chat_signatures
		WHERE chat_id = $1 AND signing_algo = $2
	`, chatID, signingAlgo)

	var sig domain.ChatSignature

	err := row.Scan(&sig.ChatID, &sig.SigningAlgo, &sig.Text, &sig.Signature, &sig.SigningAddress, &sig.CreatedAt)
	if err != nil {
		return domain.ChatSignature{}, err
	}

	return sig, nil
}
