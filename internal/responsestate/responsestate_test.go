package responsestate

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/xerrors"
)

type fakeStore struct {
	responses     map[string]domain.Response
	conversations map[string]domain.Conversation
	items         map[string][]domain.ResponseItem
	deleted       map[string]bool
	associations  map[string][]string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		responses:     map[string]domain.Response{},
		conversations: map[string]domain.Conversation{},
		items:         map[string][]domain.ResponseItem{},
		deleted:       map[string]bool{},
		associations:  map[string][]string{},
	}
}

func (f *fakeStore) GetResponse(_ context.Context, id string) (domain.Response, error) {
	r, ok := f.responses[id]
	if !ok {
		return domain.Response{}, xerrors.New(xerrors.KindNotFound, "not found")
	}

	return r, nil
}

func (f *fakeStore) InsertResponse(_ context.Context, r domain.Response) error {
	f.responses[r.ID] = r
	return nil
}

func (f *fakeStore) UpdateResponseStatus(_ context.Context, id string, status domain.ResponseStatus, usage *domain.Usage) error {
	r := f.responses[id]
	r.Status = status
	r.Usage = usage
	f.responses[id] = r

	return nil
}

func (f *fakeStore) AppendChildResponseID(_ context.Context, parentID, childID string) error {
	r := f.responses[parentID]
	r.ChildResponseIDs = append(r.ChildResponseIDs, childID)
	f.responses[parentID] = r

	return nil
}

func (f *fakeStore) InsertResponseItem(_ context.Context, item domain.ResponseItem) error {
	f.items[item.ResponseID] = append(f.items[item.ResponseID], item)
	return nil
}

func (f *fakeStore) GetConversation(_ context.Context, id string) (domain.Conversation, error) {
	c, ok := f.conversations[id]
	if !ok {
		return domain.Conversation{}, xerrors.New(xerrors.KindNotFound, "not found")
	}

	return c, nil
}

func (f *fakeStore) InsertConversation(_ context.Context, c domain.Conversation) error {
	f.conversations[c.ID] = c
	return nil
}

func (f *fakeStore) SetConversationRootResponse(_ context.Context, conversationID, responseID string) error {
	c := f.conversations[conversationID]
	if _, ok := c.RootResponseID(); ok {
		return xerrors.New(xerrors.KindConflict, "already has root")
	}

	if c.Metadata == nil {
		c.Metadata = map[string]any{}
	}

	c.Metadata["root_response_id"] = responseID
	f.conversations[conversationID] = c

	return nil
}

func (f *fakeStore) AssociateResponse(_ context.Context, conversationID, responseID string) error {
	f.associations[conversationID] = append(f.associations[conversationID], responseID)
	return nil
}

func (f *fakeStore) ListResponsesByConversation(_ context.Context, conversationID string) ([]domain.Response, error) {
	var out []domain.Response

	for _, r := range f.responses {
		if r.ConversationID != nil && *r.ConversationID == conversationID {
			out = append(out, r)
		}
	}

	for _, id := range f.associations[conversationID] {
		out = append(out, f.responses[id])
	}

	return out, nil
}

func (f *fakeStore) ListItemsByResponse(_ context.Context, responseID string) ([]domain.ResponseItem, error) {
	return f.items[responseID], nil
}

func (f *fakeStore) DeleteConversation(_ context.Context, id string) error {
	f.deleted[id] = true
	return nil
}

func TestBegin_FirstResponseInConversationBecomesRoot(t *testing.T) {
	store := newFakeStore()
	convID := "conv_1"
	store.conversations[convID] = domain.Conversation{ID: convID, Metadata: map[string]any{}}

	m := New(store)

	resp, err := m.Begin(context.Background(), "ws_1", "key_1", "model_1", &convID, nil)
	require.NoError(t, err)

	root, _ := resp.Metadata["root_response"].(bool)
	require.True(t, root)

	conv := store.conversations[convID]
	rootID, ok := conv.RootResponseID()
	require.True(t, ok)
	require.Equal(t, resp.ID, rootID)
}

func TestBegin_SecondResponseInConversationIsNotRoot(t *testing.T) {
	store := newFakeStore()
	convID := "conv_1"
	store.conversations[convID] = domain.Conversation{ID: convID, Metadata: map[string]any{"root_response_id": "resp_existing"}}

	m := New(store)

	resp, err := m.Begin(context.Background(), "ws_1", "key_1", "model_1", &convID, nil)
	require.NoError(t, err)

	root, _ := resp.Metadata["root_response"].(bool)
	require.False(t, root)
}

func TestComplete_TransitionsFromInProgress(t *testing.T) {
	store := newFakeStore()
	store.responses["resp_1"] = domain.Response{ID: "resp_1", Status: domain.ResponseStatusInProgress}

	m := New(store)

	err := m.Complete(context.Background(), "resp_1", domain.Usage{TotalTokens: 10})
	require.NoError(t, err)
	require.Equal(t, domain.ResponseStatusCompleted, store.responses["resp_1"].Status)
}

func TestComplete_RejectsSecondTransitionFromTerminalState(t *testing.T) {
	store := newFakeStore()
	store.responses["resp_1"] = domain.Response{ID: "resp_1", Status: domain.ResponseStatusCompleted}

	m := New(store)

	err := m.Complete(context.Background(), "resp_1", domain.Usage{TotalTokens: 1})
	require.Error(t, err)
	require.Equal(t, xerrors.KindConflict, xerrors.KindOf(err))
}

func TestCancel_OnTerminalResponseIsNoOp(t *testing.T) {
	store := newFakeStore()
	store.responses["resp_1"] = domain.Response{ID: "resp_1", Status: domain.ResponseStatusCompleted}

	m := New(store)

	err := m.Cancel(context.Background(), "resp_1")
	require.NoError(t, err)
	require.Equal(t, domain.ResponseStatusCompleted, store.responses["resp_1"].Status)

	store.responses["resp_2"] = domain.Response{ID: "resp_2", Status: domain.ResponseStatusFailed}
	require.NoError(t, m.Cancel(context.Background(), "resp_2"))
	require.Equal(t, domain.ResponseStatusFailed, store.responses["resp_2"].Status)
}

func TestCancel_TransitionsInProgressResponse(t *testing.T) {
	store := newFakeStore()
	store.responses["resp_1"] = domain.Response{ID: "resp_1", Status: domain.ResponseStatusInProgress}

	m := New(store)

	require.NoError(t, m.Cancel(context.Background(), "resp_1"))
	require.Equal(t, domain.ResponseStatusCancelled, store.responses["resp_1"].Status)
}

func TestFail_WritesSanitizedErrorItem(t *testing.T) {
	store := newFakeStore()
	store.responses["resp_1"] = domain.Response{ID: "resp_1", Status: domain.ResponseStatusInProgress}

	m := New(store)

	err := m.Fail(context.Background(), "resp_1", "upstream exploded with data:image/png;base64,"+string(make([]byte, 600)))
	require.NoError(t, err)

	items := store.items["resp_1"]
	require.Len(t, items, 1)
	require.Equal(t, domain.ItemKindError, items[0].Kind)
}

func TestClone_ReassociatesResponsesWithoutDuplication(t *testing.T) {
	store := newFakeStore()
	srcID := "conv_1"
	store.conversations[srcID] = domain.Conversation{ID: srcID, WorkspaceID: "ws_1", Metadata: map[string]any{"root_response_id": "resp_1"}}

	now := time.Now()
	store.responses["resp_1"] = domain.Response{
		ID: "resp_1", ConversationID: &srcID, CreatedAt: now,
		Metadata: map[string]any{"root_response": true},
	}
	store.items["resp_1"] = []domain.ResponseItem{{ID: "item_1", ResponseID: "resp_1", Kind: domain.ItemKindMessage}}

	m := New(store)

	clone, err := m.Clone(context.Background(), srcID)
	require.NoError(t, err)
	require.Equal(t, &srcID, clone.ClonedFromID)

	cloned, err := store.ListResponsesByConversation(context.Background(), clone.ID)
	require.NoError(t, err)
	require.Len(t, cloned, 1)
	require.Equal(t, "resp_1", cloned[0].ID, "clone re-associates the same response id, it doesn't mint a new one")

	// No new response or item rows were created; the items still live
	// solely under the original response id.
	require.Len(t, store.responses, 1)
	require.Len(t, store.items["resp_1"], 1)
	require.Equal(t, "item_1", store.items["resp_1"][0].ID)

	require.Equal(t, "resp_1", clone.Metadata["root_response_id"])

	conv := store.conversations[clone.ID]
	rootID, ok := conv.RootResponseID()
	require.True(t, ok)
	require.Equal(t, "resp_1", rootID)
}
