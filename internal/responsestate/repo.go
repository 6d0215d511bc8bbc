package responsestate

import (
	"context"
	"encoding/json"

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

func (r *Repository) GetResponse(ctx context.Context, id string) (domain.Response, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, api_key_id, model_id, status, conversation_id,
		       previous_response_id, child_response_ids, metadata, created_at, updated_at
		FROM responses WHERE id = $1
	`, id)

	var resp domain.Response

	var metadataJSON, childIDsJSON []byte

	err := row.Scan(&resp.ID, &resp.WorkspaceID, &resp.APIKeyID, &resp.ModelID, &resp.Status,
		&resp.ConversationID, &resp.PreviousResponseID, &childIDsJSON, &metadataJSON,
		&resp.CreatedAt, &resp.UpdatedAt)
	if err != nil {
		return domain.Response{}, err
	}

	_ = json.Unmarshal(metadataJSON, &resp.Metadata)
	_ = json.Unmarshal(childIDsJSON, &resp.ChildResponseIDs)

	return resp, nil
}

func (r *Repository) InsertResponse(ctx context.Context, resp domain.Response) error {
	metadataJSON, _ := json.Marshal(resp.Metadata)
	childIDsJSON, _ := json.Marshal(resp.ChildResponseIDs)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO responses
			(id, workspace_id, api_key_id, model_id, status, conversation_id,
			 previous_response_id, child_response_ids, metadata, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`, resp.ID, resp.WorkspaceID, resp.APIKeyID, resp.ModelID, resp.Status, resp.ConversationID,
		resp.PreviousResponseID, childIDsJSON, metadataJSON, resp.CreatedAt, resp.UpdatedAt)

	return err
}

func (r *Repository) UpdateResponseStatus(ctx context.Context, id string, status domain.ResponseStatus, usage *domain.Usage) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE responses
		SET status = $1, updated_at = now(),
		    input_tokens = $2, output_tokens = $3, total_tokens = $4,
		    input_cost_nano = $5, output_cost_nano = $6, total_cost_nano = $7
		WHERE id = $8
	`, status, usageField(usage, func(u domain.Usage) int64 { return u.InputTokens }),
		usageField(usage, func(u domain.Usage) int64 { return u.OutputTokens }),
		usageField(usage, func(u domain.Usage) int64 { return u.TotalTokens }),
		usageField(usage, func(u domain.Usage) int64 { return u.InputCostNano }),
		usageField(usage, func(u domain.Usage) int64 { return u.OutputCostNano }),
		usageField(usage, func(u domain.Usage) int64 { return u.TotalCostNano }),
		id)

	return err
}

func usageField(usage *domain.Usage, get func(domain.Usage) int64) *int64 {
	if usage == nil {
		return nil
	}

	v := get(*usage)

	return &v
}

func (r *Repository) AppendChildResponseID(ctx context.Context, parentID, childID string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE responses
		SET child_response_ids = child_response_ids || to_jsonb($1::text)
		WHERE id = $2
	`, childID, parentID)

	return err
}

func (r *Repository) InsertResponseItem(ctx context.Context, item domain.ResponseItem) error {
	payloadJSON, _ := json.Marshal(item.Payload)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO response_items (id, response_id, kind, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, item.ID, item.ResponseID, item.Kind, payloadJSON, item.CreatedAt)

	return err
}

func (r *Repository) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT id, workspace_id, metadata, pinned_at, archived_at, deleted_at,
		       cloned_from_id, created_at, updated_at
		FROM conversations WHERE id = $1
	`, id)

	var c domain.Conversation

	var metadataJSON []byte

	err := row.Scan(&c.ID, &c.WorkspaceID, &metadataJSON, &c.PinnedAt, &c.ArchivedAt,
		&c.DeletedAt, &c.ClonedFromID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return domain.Conversation{}, err
	}

	_ = json.Unmarshal(metadataJSON, &c.Metadata)

	return c, nil
}

func (r *Repository) InsertConversation(ctx context.Context, c domain.Conversation) error {
	metadataJSON, _ := json.Marshal(c.Metadata)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversations
			(id, workspace_id, metadata, cloned_from_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, c.ID, c.WorkspaceID, metadataJSON, c.ClonedFromID, c.CreatedAt, c.UpdatedAt)

	return err
}

func (r *Repository) SetConversationRootResponse(ctx context.Context, conversationID, responseID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE conversations
		SET metadata = jsonb_set(metadata, '{root_response_id}', to_jsonb($1::text))
		WHERE id = $2 AND NOT (metadata ? 'root_response_id')
	`, responseID, conversationID)
	if err != nil {
		return err
	}

	if tag.RowsAffected() == 0 {
		return errAlreadyHasRoot
	}

	return nil
}

// AssociateResponse re-associates an existing response row with a
// conversation (e.g. a clone) without touching the row's own
// conversation_id or duplicating it: the response keeps its original
// id, its items, and its token usage, and simply becomes listable
// under one more conversation.
func (r *Repository) AssociateResponse(ctx context.Context, conversationID, responseID string) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO conversation_responses (conversation_id, response_id)
		VALUES ($1, $2)
		ON CONFLICT DO NOTHING
	`, conversationID, responseID)

	return err
}

func (r *Repository) ListResponsesByConversation(ctx context.Context, conversationID string) ([]domain.Response, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, workspace_id, api_key_id, model_id, status, conversation_id,
		       previous_response_id, child_response_ids, metadata, created_at, updated_at
		FROM responses WHERE conversation_id = $1
		UNION
		SELECT r.id, r.workspace_id, r.api_key_id, r.model_id, r.status, r.conversation_id,
		       r.previous_response_id, r.child_response_ids, r.metadata, r.created_at, r.updated_at
		FROM responses r
		JOIN conversation_responses cr ON cr.response_id = r.id
		WHERE cr.conversation_id = $1
	`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Response

	for rows.Next() {
		var resp domain.Response

		var metadataJSON, childIDsJSON []byte

		if err := rows.Scan(&resp.ID, &resp.WorkspaceID, &resp.APIKeyID, &resp.ModelID, &resp.Status,
			&resp.ConversationID, &resp.PreviousResponseID, &childIDsJSON, &metadataJSON,
			&resp.CreatedAt, &resp.UpdatedAt); err != nil {
			return nil, err
		}

		_ = json.Unmarshal(metadataJSON, &resp.Metadata)
		_ = json.Unmarshal(childIDsJSON, &resp.ChildResponseIDs)

		out = append(out, resp)
	}

	return out, rows.Err()
}

func (r *Repository) ListItemsByResponse(ctx context.Context, responseID string) ([]domain.ResponseItem, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, response_id, kind, payload, created_at
		FROM response_items WHERE response_id = $1
	`, responseID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.ResponseItem

	for rows.Next() {
		var item domain.ResponseItem

		var payloadJSON []byte

		if err := rows.Scan(&item.ID, &item.ResponseID, &item.Kind, &payloadJSON, &item.CreatedAt); err != nil {
			return nil, err
		}

		_ = json.Unmarshal(payloadJSON, &item.Payload)

		out = append(out, item)
	}

	return out, rows.Err()
}

func (r *Repository) DeleteConversation(ctx context.Context, id string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE conversations SET deleted_at = now() WHERE id = $1 AND deleted_at IS NULL
	`, id)

	return err
}

type sentinelError string

func (e sentinelError) Error() string { return string(e) }

const errAlreadyHasRoot = sentinelError("conversation already has a root response")
