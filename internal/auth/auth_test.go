package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/xerrors"
)

type fakeKeyStore struct {
	byHash  map[string]domain.APIKey
	touched []string
}

func (f *fakeKeyStore) FindAPIKeyByContentHash(_ context.Context, hash string) (domain.APIKey, error) {
	k, ok := f.byHash[hash]
	if !ok {
		return domain.APIKey{}, xerrors.New(xerrors.KindNotFound, "no such key")
	}

	return k, nil
}

func (f *fakeKeyStore) TouchLastUsed(_ context.Context, keyID string, _ time.Time) error {
	f.touched = append(f.touched, keyID)
	return nil
}

type fakeSessionStore struct {
	byHash map[string]Session
}

func (f *fakeSessionStore) FindSessionByContentHash(_ context.Context, hash string) (Session, error) {
	s, ok := f.byHash[hash]
	if !ok {
		return Session{}, xerrors.New(xerrors.KindNotFound, "no such session")
	}

	return s, nil
}

func TestAuthenticateAPIKey_ValidKey(t *testing.T) {
	secret := "sk-live-abc123"
	hash := ContentHash(secret)

	keys := &fakeKeyStore{byHash: map[string]domain.APIKey{
		hash: {ID: "key_1", Active: true, ContentHash: hash},
	}}

	svc, err := New(keys, &fakeSessionStore{}, nil)
	require.NoError(t, err)

	key, err := svc.AuthenticateAPIKey(context.Background(), secret)
	require.NoError(t, err)
	require.Equal(t, "key_1", key.ID)
}

func TestAuthenticateAPIKey_UnknownSecretIsUnauthorized(t *testing.T) {
	keys := &fakeKeyStore{byHash: map[string]domain.APIKey{}}

	svc, err := New(keys, &fakeSessionStore{}, nil)
	require.NoError(t, err)

	_, err = svc.AuthenticateAPIKey(context.Background(), "sk-bogus")
	require.Error(t, err)
	require.Equal(t, xerrors.KindUnauthorized, xerrors.KindOf(err))
}

func TestAuthenticateAPIKey_DeletedKeyRejected(t *testing.T) {
	secret := "sk-live-deleted"
	hash := ContentHash(secret)
	deletedAt := time.Now().Add(-time.Hour)

	keys := &fakeKeyStore{byHash: map[string]domain.APIKey{
		hash: {ID: "key_2", Active: true, DeletedAt: &deletedAt},
	}}

	svc, err := New(keys, &fakeSessionStore{}, nil)
	require.NoError(t, err)

	_, err = svc.AuthenticateAPIKey(context.Background(), secret)
	require.Error(t, err)
}

func TestAuthenticateAPIKey_ExpiredKeyRejected(t *testing.T) {
	secret := "sk-live-expired"
	hash := ContentHash(secret)
	expiresAt := time.Now().Add(-time.Minute)

	keys := &fakeKeyStore{byHash: map[string]domain.APIKey{
		hash: {ID: "key_3", Active: true, ExpiresAt: &expiresAt},
	}}

	svc, err := New(keys, &fakeSessionStore{}, nil)
	require.NoError(t, err)

	_, err = svc.AuthenticateAPIKey(context.Background(), secret)
	require.Error(t, err)
}

func TestAuthenticateAPIKey_EmptySecretRejected(t *testing.T) {
	svc, err := New(&fakeKeyStore{byHash: map[string]domain.APIKey{}}, &fakeSessionStore{}, nil)
	require.NoError(t, err)

	_, err = svc.AuthenticateAPIKey(context.Background(), "")
	require.Error(t, err)
}

func TestAuthenticateSession_UserAgentMismatchRejected(t *testing.T) {
	cookie := "sess-abc"
	hash := ContentHash(cookie)

	sessions := &fakeSessionStore{byHash: map[string]Session{
		hash: {UserID: "user_1", UserAgent: "curl/8.0", ExpiresAt: time.Now().Add(time.Hour)},
	}}

	svc, err := New(&fakeKeyStore{byHash: map[string]domain.APIKey{}}, sessions, nil)
	require.NoError(t, err)

	_, err = svc.AuthenticateSession(context.Background(), cookie, "different-agent")
	require.Error(t, err)
}

func TestAuthenticateSession_ValidMatchingUserAgent(t *testing.T) {
	cookie := "sess-def"
	hash := ContentHash(cookie)

	sessions := &fakeSessionStore{byHash: map[string]Session{
		hash: {UserID: "user_2", UserAgent: "curl/8.0", ExpiresAt: time.Now().Add(time.Hour)},
	}}

	svc, err := New(&fakeKeyStore{byHash: map[string]domain.APIKey{}}, sessions, nil)
	require.NoError(t, err)

	sess, err := svc.AuthenticateSession(context.Background(), cookie, "curl/8.0")
	require.NoError(t, err)
	require.Equal(t, "user_2", sess.UserID)
}

func TestAuthenticateSession_ExpiredRejected(t *testing.T) {
	cookie := "sess-expired"
	hash := ContentHash(cookie)

	sessions := &fakeSessionStore{byHash: map[string]Session{
		hash: {UserID: "user_3", ExpiresAt: time.Now().Add(-time.Minute)},
	}}

	svc, err := New(&fakeKeyStore{byHash: map[string]domain.APIKey{}}, sessions, nil)
	require.NoError(t, err)

	_, err = svc.AuthenticateSession(context.Background(), cookie, "")
	require.Error(t, err)
}

func TestAuthenticateSession_RevokedRejected(t *testing.T) {
	cookie := "sess-revoked"
	hash := ContentHash(cookie)
	revokedAt := time.Now().Add(-time.Minute)

	sessions := &fakeSessionStore{byHash: map[string]Session{
		hash: {UserID: "user_4", ExpiresAt: time.Now().Add(time.Hour), RevokedAt: &revokedAt},
	}}

	svc, err := New(&fakeKeyStore{byHash: map[string]domain.APIKey{}}, sessions, nil)
	require.NoError(t, err)

	_, err = svc.AuthenticateSession(context.Background(), cookie, "")
	require.Error(t, err)
}

func TestIsAdmin(t *testing.T) {
	svc, err := New(&fakeKeyStore{byHash: map[string]domain.APIKey{}}, &fakeSessionStore{}, []string{"Example.com"})
	require.NoError(t, err)

	require.True(t, svc.IsAdmin("alice@example.com"))
	require.False(t, svc.IsAdmin("alice@other.com"))
	require.False(t, svc.IsAdmin("not-an-email"))
}
