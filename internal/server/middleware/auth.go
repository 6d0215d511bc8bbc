package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/auth"
	"github.com/teeinfer/gateway/internal/contexts"
	"github.com/teeinfer/gateway/internal/orgs"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// WithAPIKeyAuth resolves the bearer secret into a domain.APIKey and its
// parent Organization, rejecting the request if either step fails.
func WithAPIKeyAuth(svc *auth.Service, orgStore orgs.Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		secret, err := ExtractBearerToken(c.Request)
		if err != nil {
			AbortWithError(c, xerrors.Wrap(xerrors.KindUnauthorized, "extract bearer token", err))
			return
		}

		key, err := svc.AuthenticateAPIKey(c.Request.Context(), secret)
		if err != nil {
			AbortWithError(c, err)
			return
		}

		org, err := orgStore.GetOrganization(c.Request.Context(), key.OrganizationID)
		if err != nil {
			AbortWithError(c, xerrors.Wrap(xerrors.KindUnauthorized, "resolve organization", err))
			return
		}

		ctx := contexts.WithAPIKey(c.Request.Context(), key)
		ctx = contexts.WithOrganization(ctx, org)
		ctx = contexts.WithOrganizationID(ctx, key.OrganizationID)
		ctx = contexts.WithWorkspaceID(ctx, key.WorkspaceID)

		if idem := c.GetHeader("Idempotency-Key"); idem != "" {
			ctx = contexts.WithIdempotencyKey(ctx, idem)
		}

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// WithSessionAuth resolves the session cookie into a SessionPrincipal.
// SetupRoutes installs it on no route; every /v1 route uses
// WithAPIKeyAuth.
func WithSessionAuth(svc *auth.Service, cookieName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		cookie, err := c.Cookie(cookieName)
		if err != nil || cookie == "" {
			AbortWithError(c, xerrors.New(xerrors.KindUnauthorized, "no session cookie"))
			return
		}

		session, err := svc.AuthenticateSession(c.Request.Context(), cookie, c.Request.UserAgent())
		if err != nil {
			AbortWithError(c, err)
			return
		}

		ctx := contexts.WithSession(c.Request.Context(), contexts.SessionPrincipal{
			UserID: session.UserID,
			Email:  session.Email,
		})

		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

// RequireAdmin rejects requests whose session email is not in the admin
// allow-list. Must run after WithSessionAuth.
func RequireAdmin(svc *auth.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := contexts.GetSession(c.Request.Context())
		if !ok || !svc.IsAdmin(session.Email) {
			AbortWithError(c, xerrors.New(xerrors.KindForbidden, "admin access required"))
			return
		}

		c.Next()
	}
}
