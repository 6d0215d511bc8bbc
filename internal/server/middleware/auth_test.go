package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/auth"
	"github.com/teeinfer/gateway/internal/contexts"
	"github.com/teeinfer/gateway/internal/domain"
)

type fakeKeyStore struct {
	byHash map[string]domain.APIKey
}

func (f *fakeKeyStore) FindAPIKeyByContentHash(_ context.Context, hash string) (domain.APIKey, error) {
	k, ok := f.byHash[hash]
	if !ok {
		return domain.APIKey{}, http.ErrNoCookie
	}

	return k, nil
}

func (f *fakeKeyStore) TouchLastUsed(_ context.Context, _ string, _ time.Time) error { return nil }

type fakeSessionStore struct{}

func (fakeSessionStore) FindSessionByContentHash(_ context.Context, _ string) (auth.Session, error) {
	return auth.Session{}, http.ErrNoCookie
}

type fakeOrgStore struct {
	orgs map[string]domain.Organization
}

func (f *fakeOrgStore) GetOrganization(_ context.Context, id string) (domain.Organization, error) {
	org, ok := f.orgs[id]
	if !ok {
		return domain.Organization{}, http.ErrNoCookie
	}

	return org, nil
}

func (f *fakeOrgStore) GetWorkspace(_ context.Context, id string) (domain.Workspace, error) {
	return domain.Workspace{ID: id}, nil
}

func newTestContext(req *http.Request) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)

	rec := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(rec)
	c.Request = req

	return c, rec
}

func TestWithAPIKeyAuth_ResolvesKeyOrgAndIdempotencyKey(t *testing.T) {
	secret := "sk-live-abc123"
	hash := auth.ContentHash(secret)

	keys := &fakeKeyStore{byHash: map[string]domain.APIKey{
		hash: {ID: "key_1", OrganizationID: "org_1", WorkspaceID: "ws_1", Active: true, ContentHash: hash},
	}}

	svc, err := auth.New(keys, fakeSessionStore{}, nil)
	require.NoError(t, err)

	orgStore := &fakeOrgStore{orgs: map[string]domain.Organization{
		"org_1": {ID: "org_1", DisplayName: "Acme", Active: true},
	}}

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	req.Header.Set("Authorization", "Bearer "+secret)
	req.Header.Set("Idempotency-Key", "idem-123")

	c, rec := newTestContext(req)

	handler := WithAPIKeyAuth(svc, orgStore)
	handler(c)
	captured := c.Request

	require.False(t, c.IsAborted())
	require.Equal(t, http.StatusOK, rec.Code) // handler never wrote a response

	key, ok := contexts.GetAPIKey(captured.Context())
	require.True(t, ok)
	require.Equal(t, "key_1", key.ID)

	org, ok := contexts.GetOrganization(captured.Context())
	require.True(t, ok)
	require.Equal(t, "org_1", org.ID)

	idem, ok := contexts.GetIdempotencyKey(captured.Context())
	require.True(t, ok)
	require.Equal(t, "idem-123", idem)
}

func TestWithAPIKeyAuth_RejectsMissingCredentials(t *testing.T) {
	svc, err := auth.New(&fakeKeyStore{byHash: map[string]domain.APIKey{}}, fakeSessionStore{}, nil)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/v1/chat/completions", nil)
	c, rec := newTestContext(req)

	WithAPIKeyAuth(svc, &fakeOrgStore{orgs: map[string]domain.Organization{}})(c)

	require.True(t, c.IsAborted())
	require.NotEqual(t, http.StatusOK, rec.Code)
}
