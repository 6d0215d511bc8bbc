// Package responsestate implements the Response State Machine: the
// in_progress -> {completed, failed, cancelled} lifecycle, conversation
// timeline ordering, and clone semantics.
package responsestate

import (
	"context"
	"sort"
	"time"

	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/idgen"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// allowedTransitions enumerates the only legal state changes. A response
// that reaches a terminal state never leaves it — there
// is deliberately no entry keyed by a terminal status.
var allowedTransitions = map[domain.ResponseStatus][]domain.ResponseStatus{
	domain.ResponseStatusInProgress: {
		domain.ResponseStatusCompleted,
		domain.ResponseStatusFailed,
		domain.ResponseStatusCancelled,
	},
}

func canTransition(from, to domain.ResponseStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// Store is the persistence surface the state machine needs.
type Store interface {
	GetResponse(ctx context.Context, id string) (domain.Response, error)
	InsertResponse(ctx context.Context, r domain.Response) error
	UpdateResponseStatus(ctx context.Context, id string, status domain.ResponseStatus, usage *domain.Usage) error
	AppendChildResponseID(ctx context.Context, parentID, childID string) error
	InsertResponseItem(ctx context.Context, item domain.ResponseItem) error
	GetConversation(ctx context.Context, id string) (domain.Conversation, error)
	InsertConversation(ctx context.Context, c domain.Conversation) error
	SetConversationRootResponse(ctx context.Context, conversationID, responseID string) error
	AssociateResponse(ctx context.Context, conversationID, responseID string) error
	ListResponsesByConversation(ctx context.Context, conversationID string) ([]domain.Response, error)
	ListItemsByResponse(ctx context.Context, responseID string) ([]domain.ResponseItem, error)
	DeleteConversation(ctx context.Context, id string) error
}

// Machine drives response lifecycle transitions.
type Machine struct {
	store Store
}

func New(store Store) *Machine {
	return &Machine{store: store}
}

// Begin creates a new in_progress Response. When conversationID is set
// and the conversation has no root response yet, this response becomes
// the root; a concurrent race for the root slot is resolved by retrying
// as a non-root response rather than failing the request (open
// question: resolved in favor of availability over a global monotonic
// root assignment — see DESIGN.md).
func (m *Machine) Begin(ctx context.Context, workspaceID, apiKeyID, modelID string, conversationID, previousResponseID *string) (domain.Response, error) {
	now := time.Now()

	resp := domain.Response{
		ID:                 idgen.New("resp"),
		WorkspaceID:        workspaceID,
		APIKeyID:           apiKeyID,
		ModelID:            modelID,
		Status:             domain.ResponseStatusInProgress,
		ConversationID:     conversationID,
		PreviousResponseID: previousResponseID,
		Metadata:           map[string]any{},
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	if conversationID != nil {
		conv, err := m.store.GetConversation(ctx, *conversationID)
		if err != nil {
			return domain.Response{}, xerrors.Wrap(xerrors.KindNotFound, "conversation not found", err)
		}

		if _, hasRoot := conv.RootResponseID(); !hasRoot {
			// Claim the root slot before the row exists: the conversation
			// row's conditional UPDATE is the atomic point, so a race loser
			// never persists metadata it didn't actually win.
			if err := m.store.SetConversationRootResponse(ctx, *conversationID, resp.ID); err == nil {
				resp.Metadata["root_response"] = true
			}
		}
	}

	if err := m.store.InsertResponse(ctx, resp); err != nil {
		return domain.Response{}, xerrors.Wrap(xerrors.KindInternal, "insert response", err)
	}

	if previousResponseID != nil {
		_ = m.store.AppendChildResponseID(ctx, *previousResponseID, resp.ID)
	}

	return resp, nil
}

// Get returns a response by id.
func (m *Machine) Get(ctx context.Context, id string) (domain.Response, error) {
	resp, err := m.store.GetResponse(ctx, id)
	if err != nil {
		return domain.Response{}, xerrors.Wrap(xerrors.KindNotFound, "response not found", err)
	}

	return resp, nil
}

// Items returns the ordered output items recorded under a response.
func (m *Machine) Items(ctx context.Context, responseID string) ([]domain.ResponseItem, error) {
	return m.store.ListItemsByResponse(ctx, responseID)
}

// GetConversation returns a conversation by id.
func (m *Machine) GetConversation(ctx context.Context, id string) (domain.Conversation, error) {
	conv, err := m.store.GetConversation(ctx, id)
	if err != nil {
		return domain.Conversation{}, xerrors.Wrap(xerrors.KindNotFound, "conversation not found", err)
	}

	return conv, nil
}

// CreateConversation starts a new, empty conversation in workspaceID.
func (m *Machine) CreateConversation(ctx context.Context, workspaceID string) (domain.Conversation, error) {
	now := time.Now()
	conv := domain.Conversation{
		ID:          idgen.New("conv"),
		WorkspaceID: workspaceID,
		Metadata:    map[string]any{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	if err := m.store.InsertConversation(ctx, conv); err != nil {
		return domain.Conversation{}, xerrors.Wrap(xerrors.KindInternal, "insert conversation", err)
	}

	return conv, nil
}

// DeleteConversation soft-deletes a conversation; its responses and
// items are left intact for audit, only the conversation row is marked.
func (m *Machine) DeleteConversation(ctx context.Context, id string) error {
	return m.store.DeleteConversation(ctx, id)
}

// Complete transitions id to completed, recording final usage.
func (m *Machine) Complete(ctx context.Context, id string, usage domain.Usage) error {
	return m.transition(ctx, id, domain.ResponseStatusCompleted, &usage)
}

// Fail transitions id to failed and writes a sanitized error ResponseItem
// into the conversation: callers always
// get a visible record of what happened, never a silently vanished
// response.
func (m *Machine) Fail(ctx context.Context, id string, reason string) error {
	if err := m.transition(ctx, id, domain.ResponseStatusFailed, nil); err != nil {
		return err
	}

	item := domain.ResponseItem{
		ID:         idgen.New("item"),
		ResponseID: id,
		Kind:       domain.ItemKindError,
		Payload:    map[string]any{"message": xerrors.Sanitize(reason)},
		CreatedAt:  time.Now(),
	}

	return m.store.InsertResponseItem(ctx, item)
}

// Cancel transitions id to cancelled, e.g. on client disconnect or an
// admin-initiated cancel. A response already in a terminal state is left
// untouched and Cancel returns nil: cancelling a completed or failed
// response is a no-op, not a conflict.
func (m *Machine) Cancel(ctx context.Context, id string) error {
	resp, err := m.store.GetResponse(ctx, id)
	if err != nil {
		return xerrors.Wrap(xerrors.KindNotFound, "response not found", err)
	}

	if resp.Status.Terminal() {
		return nil
	}

	return m.transitionFrom(ctx, resp, domain.ResponseStatusCancelled, nil)
}

func (m *Machine) transition(ctx context.Context, id string, to domain.ResponseStatus, usage *domain.Usage) error {
	resp, err := m.store.GetResponse(ctx, id)
	if err != nil {
		return xerrors.Wrap(xerrors.KindNotFound, "response not found", err)
	}

	return m.transitionFrom(ctx, resp, to, usage)
}

func (m *Machine) transitionFrom(ctx context.Context, resp domain.Response, to domain.ResponseStatus, usage *domain.Usage) error {
	if resp.Status.Terminal() {
		return xerrors.New(xerrors.KindConflict, "response already in a terminal state")
	}

	if !canTransition(resp.Status, to) {
		return xerrors.New(xerrors.KindConflict, "illegal response state transition")
	}

	return m.store.UpdateResponseStatus(ctx, resp.ID, to, usage)
}

// Clone duplicates a conversation, re-associating its existing response
// rows into a fresh conversation with ClonedFromID set, per the
// POST /conversations/:id/clone operation. Responses and their items are
// a shallow reference: the same ids are re-associated and no token data
// is duplicated.
func (m *Machine) Clone(ctx context.Context, conversationID string) (domain.Conversation, error) {
	src, err := m.store.GetConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, xerrors.Wrap(xerrors.KindNotFound, "conversation not found", err)
	}

	now := time.Now()
	clone := domain.Conversation{
		ID:           idgen.New("conv"),
		WorkspaceID:  src.WorkspaceID,
		Metadata:     map[string]any{},
		ClonedFromID: &conversationID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := m.store.InsertConversation(ctx, clone); err != nil {
		return domain.Conversation{}, xerrors.Wrap(xerrors.KindInternal, "insert cloned conversation", err)
	}

	responses, err := m.store.ListResponsesByConversation(ctx, conversationID)
	if err != nil {
		return domain.Conversation{}, xerrors.Wrap(xerrors.KindInternal, "list responses to clone", err)
	}

	var rootID string

	for _, r := range orderedByTimeline(responses) {
		if err := m.store.AssociateResponse(ctx, clone.ID, r.ID); err != nil {
			return domain.Conversation{}, xerrors.Wrap(xerrors.KindInternal, "associate response with clone", err)
		}

		if root, _ := r.Metadata["root_response"].(bool); root {
			rootID = r.ID
		}
	}

	if rootID != "" {
		if err := m.store.SetConversationRootResponse(ctx, clone.ID, rootID); err == nil {
			clone.Metadata["root_response_id"] = rootID
		}
	}

	return clone, nil
}

// orderedByTimeline sorts responses for deterministic playback: by
// created_at, tied responses broken by id, matching the conversation
// timeline ordering rule.
func orderedByTimeline(responses []domain.Response) []domain.Response {
	out := make([]domain.Response, len(responses))
	copy(out, responses)

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}

		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})

	return out
}
