// Package auth implements the Auth Front-Door: resolving a
// Session(user_id) or Key(api_key_id, workspace, organization) principal
// per request, with the two kinds mutually exclusive per route.
package auth

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"strings"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// KeyStore looks up an API key by its content hash. Deleted/expired/
// inactive filtering happens in the caller (Service), not the store,
// so the active/not-deleted/not-expired invariant is enforced in one place.
type KeyStore interface {
	FindAPIKeyByContentHash(ctx context.Context, hash string) (domain.APIKey, error)
	TouchLastUsed(ctx context.Context, keyID string, at time.Time) error
}

// Session is the persisted session row the auth service resolves against.
type Session struct {
	UserID    string
	Email     string
	UserAgent string
	ExpiresAt time.Time
	RevokedAt *time.Time
}

// SessionStore looks up a session by its cookie's content hash.
type SessionStore interface {
	FindSessionByContentHash(ctx context.Context, hash string) (Session, error)
}

// Service resolves principals from bearer keys or session cookies.
type Service struct {
	keys         KeyStore
	sessions     SessionStore
	adminDomains map[string]struct{}

	// negativeCache remembers content hashes known not to authenticate.
	// It is only ever a hint to skip a lookup, never relied on to accept
	// a key.
	negativeCache *lru.Cache[string, time.Time]
}

// New constructs a Service. adminDomains are bare email suffixes (e.g.
// "example.com"), matching the auth.admin_domains configuration key.
func New(keys KeyStore, sessions SessionStore, adminDomains []string) (*Service, error) {
	cache, err := lru.New[string, time.Time](8192)
	if err != nil {
		return nil, err
	}

	domains := make(map[string]struct{}, len(adminDomains))
	for _, d := range adminDomains {
		domains[strings.ToLower(d)] = struct{}{}
	}

	return &Service{keys: keys, sessions: sessions, adminDomains: domains, negativeCache: cache}, nil
}

// ContentHash returns the 64-hex sha256 digest of a raw bearer secret.
// Cryptographic hashing of a secret uses the standard library's sha256
// rather than a third-party hash package (see DESIGN.md): this is the
// one deliberate place this gateway reaches for stdlib over an
// ecosystem library.
func ContentHash(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// AuthenticateAPIKey resolves secret to a usable APIKey, applying the
// active/not-deleted/not-expired invariant so only one place in
// the codebase makes that decision.
func (s *Service) AuthenticateAPIKey(ctx context.Context, secret string) (domain.APIKey, error) {
	if secret == "" {
		return domain.APIKey{}, xerrors.New(xerrors.KindUnauthorized, "missing API key")
	}

	hash := ContentHash(secret)

	if until, ok := s.negativeCache.Get(hash); ok && time.Now().Before(until) {
		return domain.APIKey{}, xerrors.New(xerrors.KindUnauthorized, "invalid API key")
	}

	key, err := s.keys.FindAPIKeyByContentHash(ctx, hash)
	if err != nil {
		s.negativeCache.Add(hash, time.Now().Add(30*time.Second))
		return domain.APIKey{}, xerrors.Wrap(xerrors.KindUnauthorized, "invalid API key", err)
	}

	if !key.Usable(time.Now()) {
		return domain.APIKey{}, xerrors.New(xerrors.KindUnauthorized, "invalid API key")
	}

	go func() {
		_ = s.keys.TouchLastUsed(detachedContext(), key.ID, time.Now())
	}()

	return key, nil
}

// AuthenticateSession resolves a session cookie to its Session row.
// The request's user agent MUST match the session's recorded user agent
// (when non-empty) to defeat cookie theft cross-device.
func (s *Service) AuthenticateSession(ctx context.Context, cookie, userAgent string) (Session, error) {
	if cookie == "" {
		return Session{}, xerrors.New(xerrors.KindUnauthorized, "missing session")
	}

	hash := ContentHash(cookie)

	sess, err := s.sessions.FindSessionByContentHash(ctx, hash)
	if err != nil {
		return Session{}, xerrors.Wrap(xerrors.KindUnauthorized, "invalid session", err)
	}

	if sess.RevokedAt != nil || !sess.ExpiresAt.After(time.Now()) {
		return Session{}, xerrors.New(xerrors.KindUnauthorized, "invalid session")
	}

	if sess.UserAgent != "" && sess.UserAgent != userAgent {
		return Session{}, xerrors.New(xerrors.KindUnauthorized, "session user agent mismatch")
	}

	return sess, nil
}

// IsAdmin reports whether email's domain is on the configured allow-list.
func (s *Service) IsAdmin(email string) bool {
	parts := strings.SplitN(email, "@", 2)
	if len(parts) != 2 {
		return false
	}

	_, ok := s.adminDomains[strings.ToLower(parts[1])]

	return ok
}

// detachedContext is used for the best-effort last-used stamp, which must
// not be cancelled just because the inbound request context is.
func detachedContext() context.Context { return context.Background() }
