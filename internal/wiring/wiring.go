// Package wiring assembles the gateway's domain services into the fx
// graph and adapts their concrete types onto the narrow interfaces the
// Streaming Pipeline declares for itself (Ledger, RateLimiter, Catalog,
// Pool, StateMachine, Attester, ClientResolver). Kept separate from
// cmd/gatewayd so the dependency graph is unit-testable on its own.
package wiring

import (
	"context"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/fx"

	"github.com/teeinfer/gateway/internal/attestation"
	"github.com/teeinfer/gateway/internal/auth"
	"github.com/teeinfer/gateway/internal/backendclient"
	"github.com/teeinfer/gateway/internal/catalog"
	"github.com/teeinfer/gateway/internal/config"
	"github.com/teeinfer/gateway/internal/db"
	"github.com/teeinfer/gateway/internal/ledger"
	"github.com/teeinfer/gateway/internal/orgs"
	"github.com/teeinfer/gateway/internal/providerpool"
	"github.com/teeinfer/gateway/internal/ratelimit"
	"github.com/teeinfer/gateway/internal/responsestate"
	"github.com/teeinfer/gateway/internal/streaming"
)

// Module provides every domain service plus the interface adapters
// streaming.New needs. A constructor that takes a concrete type and
// returns the narrower interface (e.g. asLedger) is how this gateway
// satisfies fx's exact-type matching without making the domain packages
// depend on the streaming package's interfaces.
var Module = fx.Module("wiring",
	fx.Provide(db.NewPool),
	fx.Provide(asQuerier),

	fx.Provide(orgs.NewRepository, fx.As(new(orgs.Store))),
	fx.Provide(catalog.NewRepository, fx.As(new(catalog.Store))),
	fx.Provide(catalog.New),
	fx.Provide(catalog.NewRefreshScheduler),
	fx.Invoke(startCatalogRefresh),
	fx.Provide(auth.NewRepository, fx.As(new(auth.KeyStore), new(auth.SessionStore))),
	fx.Provide(NewAuthService),
	fx.Provide(ledger.NewRepository, fx.As(new(ledger.Store))),
	fx.Provide(ledger.New),
	fx.Provide(NewRateLimiter),
	fx.Provide(responsestate.NewRepository, fx.As(new(responsestate.Store))),
	fx.Provide(responsestate.New),
	fx.Provide(attestation.NewRepository, fx.As(new(attestation.Store))),
	fx.Provide(attestation.New),
	fx.Provide(NewDiscoverer),
	fx.Provide(NewProviderPool),
	fx.Provide(NewResolver),

	fx.Provide(asLedger),
	fx.Provide(asRateLimiter),
	fx.Provide(asCatalog),
	fx.Provide(asPool),
	fx.Provide(asStateMachine),
	fx.Provide(asAttester),
	fx.Provide(asClientResolver),

	fx.Provide(streaming.New),
)

func asQuerier(pool *pgxpool.Pool) db.Querier { return pool }

// startCatalogRefresh hooks the catalog's scheduled reload into the fx
// lifecycle: loaded once before OnStart returns, refreshed on cron
// thereafter, shut down on OnStop.
func startCatalogRefresh(lc fx.Lifecycle, cat *catalog.Catalog, sched *catalog.RefreshScheduler, cfg config.Config) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			return sched.Start(ctx, cat, cfg.Catalog.CRON)
		},
		OnStop: func(ctx context.Context) error {
			return sched.Stop(ctx)
		},
	})
}

func NewAuthService(keys auth.KeyStore, sessions auth.SessionStore, cfg config.Config) (*auth.Service, error) {
	return auth.New(keys, sessions, cfg.Auth.AdminDomains)
}

func NewRateLimiter(cfg config.Config) (*ratelimit.Limiter, error) {
	return ratelimit.New(ratelimit.Config{
		TextPerMinute:  cfg.RateLimit.TextPerMinute,
		ImagePerMinute: cfg.RateLimit.ImagePerMinute,
	})
}

func NewDiscoverer(cfg config.Config) *providerpool.HTTPDiscoverer {
	return providerpool.NewHTTPDiscoverer(cfg.Discovery.BaseURL, cfg.Discovery.AuthToken, http.DefaultClient)
}

func NewProviderPool(cfg config.Config, discoverer *providerpool.HTTPDiscoverer) *providerpool.Pool {
	return providerpool.New(discoverer, cfg.Discovery.RefreshInterval)
}

func NewResolver() *backendclient.Resolver {
	return backendclient.NewResolver(http.DefaultClient)
}

func asLedger(svc *ledger.Service) streaming.Ledger                       { return svc }
func asRateLimiter(l *ratelimit.Limiter) streaming.RateLimiter            { return l }
func asCatalog(cat *catalog.Catalog) streaming.Catalog                    { return cat }
func asPool(pool *providerpool.Pool) streaming.Pool                       { return pool }
func asStateMachine(m *responsestate.Machine) streaming.StateMachine      { return m }
func asAttester(b *attestation.Binder) streaming.Attester                 { return b }
func asClientResolver(r *backendclient.Resolver) streaming.ClientResolver { return r }
