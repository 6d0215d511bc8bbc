// Package contexts carries request-scoped values — the authenticated
// principal, the resolved organization/workspace, the inbound request
// source — so downstream services never need an explicit parameter for
// "who is calling".
package contexts

import (
	"context"

	"github.com/teeinfer/gateway/internal/domain"
)

type (
	apiKeyKey      struct{}
	orgKey         struct{}
	sessionKey     struct{}
	orgIDKey       struct{}
	workspaceIDKey struct{}
	idempotencyKey struct{}
)

// SessionPrincipal is the subset of a user session a request handler needs.
type SessionPrincipal struct {
	UserID string
	Email  string
}

// WithAPIKey stores the full authenticated key, not just its id, so
// handlers that need SpendLimitNano or ExpiresAt don't re-query it.
func WithAPIKey(ctx context.Context, key domain.APIKey) context.Context {
	return context.WithValue(ctx, apiKeyKey{}, key)
}

func GetAPIKey(ctx context.Context) (domain.APIKey, bool) {
	v, ok := ctx.Value(apiKeyKey{}).(domain.APIKey)
	return v, ok
}

// WithOrganization stores the key's parent organization, resolved once by
// the auth middleware so PreflightCheck never needs its own lookup.
func WithOrganization(ctx context.Context, org domain.Organization) context.Context {
	return context.WithValue(ctx, orgKey{}, org)
}

func GetOrganization(ctx context.Context) (domain.Organization, bool) {
	v, ok := ctx.Value(orgKey{}).(domain.Organization)
	return v, ok
}

func WithSession(ctx context.Context, s SessionPrincipal) context.Context {
	return context.WithValue(ctx, sessionKey{}, s)
}

func GetSession(ctx context.Context) (SessionPrincipal, bool) {
	v, ok := ctx.Value(sessionKey{}).(SessionPrincipal)
	return v, ok
}

func WithOrganizationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, orgIDKey{}, id)
}

func GetOrganizationID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(orgIDKey{}).(string)
	return v, ok && v != ""
}

func WithWorkspaceID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, workspaceIDKey{}, id)
}

func GetWorkspaceID(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(workspaceIDKey{}).(string)
	return v, ok && v != ""
}

// WithIdempotencyKey stores the client-supplied Idempotency-Key header,
// mapped later to UsageLogEntry.inference_id.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, idempotencyKey{}, key)
}

func GetIdempotencyKey(ctx context.Context) (string, bool) {
	v, ok := ctx.Value(idempotencyKey{}).(string)
	return v, ok && v != ""
}
