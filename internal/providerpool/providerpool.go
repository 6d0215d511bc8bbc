// Package providerpool implements the Provider Pool: the
// process-wide mapping from model name to live backend endpoints, kept
// fresh by periodic discovery and read lock-free on the hot path via a
// copy-on-write snapshot of models and backends. Refresh swaps the
// snapshot pointer; readers dereference it without locking.
package providerpool

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/log"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// ErrNoProvider is returned by Select when no healthy backend serves the
// requested model; callers surface this as a retryable upstream error.
var ErrNoProvider = xerrors.New(xerrors.KindUpstreamUnavailable, "no healthy provider for model")

// Discoverer fetches the live backend topology from the configured
// discovery endpoint.
type Discoverer interface {
	Discover(ctx context.Context) ([]DiscoveredModel, error)
}

// DiscoveredModel is one row of the discovery response:
// GET {discovery_base}/models -> [{model_id, endpoints:[url], ...}].
type DiscoveredModel struct {
	ModelName string
	Endpoints []string
}

// poolSnapshot is the immutable structure swapped in by refresh. Readers
// only ever see a fully-built snapshot, never a partially-updated one.
type poolSnapshot struct {
	models      map[string][]string        // canonical model name -> ordered backend ids
	backends    map[string]*domain.Backend  // backend id -> Backend
	nextIndex   map[string]*atomic.Uint64   // per-model round-robin cursor
}

func newEmptySnapshot() *poolSnapshot {
	return &poolSnapshot{
		models:    map[string][]string{},
		backends:  map[string]*domain.Backend{},
		nextIndex: map[string]*atomic.Uint64{},
	}
}

// Pool is the single process-wide Provider Pool instance.
type Pool struct {
	discoverer      Discoverer
	refreshInterval time.Duration

	snapshot atomic.Pointer[poolSnapshot]

	refreshMu     sync.Mutex // serializes refresh() calls only
	lastRefreshAt atomic.Int64

	stickyMu sync.RWMutex
	sticky   map[string]string // conversation_id -> backend_id

	cancel context.CancelFunc
}

// New constructs a Pool with an empty snapshot; call Refresh (or Start)
// before serving traffic.
func New(discoverer Discoverer, refreshInterval time.Duration) *Pool {
	if refreshInterval <= 0 {
		refreshInterval = 5 * time.Minute
	}

	p := &Pool{
		discoverer:      discoverer,
		refreshInterval: refreshInterval,
		sticky:          map[string]string{},
	}
	p.snapshot.Store(newEmptySnapshot())

	return p
}

// Start runs one Refresh synchronously (logging, not returning, a
// failure) and then launches the background discovery loop; it exits when ctx is
// cancelled, so the discovery task observes the same signal as the rest
// of the process and exits cleanly during shutdown.
func (p *Pool) Start(ctx context.Context) {
	if err := p.Refresh(ctx); err != nil {
		log.Warn(ctx, "initial provider pool refresh failed", log.Cause(err))
	}

	loopCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	go func() {
		ticker := time.NewTicker(p.refreshInterval)
		defer ticker.Stop()

		for {
			select {
			case <-loopCtx.Done():
				return
			case <-ticker.C:
				if err := p.Refresh(loopCtx); err != nil {
					log.Warn(loopCtx, "provider pool refresh failed", log.Cause(err))
				}
			}
		}
	}()
}

// Stop signals the discovery loop to exit.
func (p *Pool) Stop() {
	if p.cancel != nil {
		p.cancel()
	}
}

// Refresh fetches the catalog from the discovery endpoint and publishes a
// new snapshot under a narrow write lock (refreshMu only guards the
// compute-and-swap, never the read path). Refresh is idempotent and safe
// to run concurrently with in-flight dispatches.
func (p *Pool) Refresh(ctx context.Context) error {
	discovered, err := p.discoverer.Discover(ctx)
	if err != nil {
		return err
	}

	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	prev := p.snapshot.Load()
	next := newEmptySnapshot()

	for _, row := range discovered {
		var ids []string

		for _, endpoint := range row.Endpoints {
			backendID := backendIDFor(endpoint)

			existing, ok := prev.backends[backendID]
			if !ok {
				existing = &domain.Backend{
					ID:      backendID,
					BaseURL: endpoint,
					Healthy: true,
				}
			}

			b := *existing
			if !b.Healthy && time.Since(b.UnhealthySince) >= p.refreshInterval {
				// One full refresh cycle has elapsed since the failure;
				// discovery still lists it, so give it another chance.
				b.Healthy = true
			}

			b.Models = appendUnique(b.Models, row.ModelName)
			next.backends[backendID] = &b

			ids = append(ids, backendID)
		}

		next.models[row.ModelName] = ids

		if cursor, ok := prev.nextIndex[row.ModelName]; ok {
			next.nextIndex[row.ModelName] = cursor
		} else {
			next.nextIndex[row.ModelName] = &atomic.Uint64{}
		}
	}

	p.snapshot.Store(next)
	p.lastRefreshAt.Store(time.Now().UnixMilli())

	p.evictStaleSticky(next)

	return nil
}

func (p *Pool) evictStaleSticky(next *poolSnapshot) {
	p.stickyMu.Lock()
	defer p.stickyMu.Unlock()

	for conv, backendID := range p.sticky {
		if _, ok := next.backends[backendID]; !ok {
			delete(p.sticky, conv)
		}
	}
}

// Select resolves model -> backend. If a sticky entry exists for
// conversationID and points to a healthy backend serving this model, it
// is returned; otherwise the round-robin cursor advances past unhealthy
// backends. Returns ErrNoProvider if no healthy backend is available.
func (p *Pool) Select(_ context.Context, modelName string, conversationID string) (*domain.Backend, error) {
	snap := p.snapshot.Load()

	ids := snap.models[modelName]
	if len(ids) == 0 {
		return nil, ErrNoProvider
	}

	if conversationID != "" {
		p.stickyMu.RLock()
		stickyID, ok := p.sticky[conversationID]
		p.stickyMu.RUnlock()

		if ok {
			if b, healthy := healthyBackend(snap, stickyID, modelName); healthy {
				return b, nil
			}
		}
	}

	cursor := snap.nextIndex[modelName]
	if cursor == nil {
		cursor = &atomic.Uint64{}
	}

	for attempt := 0; attempt < len(ids); attempt++ {
		idx := cursor.Add(1) - 1
		backendID := ids[idx%uint64(len(ids))]

		b, ok := snap.backends[backendID]
		if !ok || !b.Healthy {
			continue
		}

		if conversationID != "" {
			p.stickyMu.Lock()
			p.sticky[conversationID] = backendID
			p.stickyMu.Unlock()
		}

		return b, nil
	}

	return nil, ErrNoProvider
}

func healthyBackend(snap *poolSnapshot, backendID, modelName string) (*domain.Backend, bool) {
	b, ok := snap.backends[backendID]
	if !ok || !b.Healthy {
		return nil, false
	}

	for _, m := range snap.models[modelName] {
		if m == backendID {
			return b, true
		}
	}

	return nil, false
}

// ReportFailure marks a backend unhealthy and stamps UnhealthySince.
// Refresh's copy step checks that timestamp against the refresh
// interval and flips Healthy back to true once one full cycle has
// passed and discovery still lists the backend — that's the cooldown a
// failed backend needs before it's eligible for selection again.
func (p *Pool) ReportFailure(backendID string) {
	snap := p.snapshot.Load()

	b, ok := snap.backends[backendID]
	if !ok {
		return
	}

	cp := *b
	cp.Healthy = false
	cp.UnhealthySince = time.Now()

	// Swap in a snapshot that differs only in this backend's health flag.
	// This is a narrow, explicit exception to "refresh is the only
	// writer": health flips must take effect immediately, not on the next
	// discovery tick, so a backend that just 5xx'd isn't selected again
	// before the next refresh interval elapses.
	p.refreshMu.Lock()
	defer p.refreshMu.Unlock()

	next := cloneSnapshot(snap)
	next.backends[backendID] = &cp
	p.snapshot.Store(next)
}

func cloneSnapshot(s *poolSnapshot) *poolSnapshot {
	next := &poolSnapshot{
		models:    make(map[string][]string, len(s.models)),
		backends:  make(map[string]*domain.Backend, len(s.backends)),
		nextIndex: s.nextIndex,
	}

	for k, v := range s.models {
		next.models[k] = v
	}

	for k, v := range s.backends {
		next.backends[k] = v
	}

	return next
}

func appendUnique(models []string, name string) []string {
	for _, m := range models {
		if m == name {
			return models
		}
	}

	return append(models, name)
}

func backendIDFor(endpoint string) string {
	return "back_" + hashString(endpoint)
}
