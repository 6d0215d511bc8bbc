// Package backendclient turns a domain.Backend the Provider Pool
// selected into a ready shared.Client, caching one client per backend id
// so repeated dispatches to the same backend reuse its connection.
package backendclient

import (
	"net/http"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/teeinfer/gateway/internal/backendclient/internalstream"
	"github.com/teeinfer/gateway/internal/backendclient/shared"
	"github.com/teeinfer/gateway/internal/domain"
)

// Resolver implements streaming.ClientResolver. Every discovered backend
// is treated as an internal-streaming endpoint — the discovery protocol
// has no external-provider variant — so this resolver only ever builds
// internalstream clients; it never constructs an external.Client.
type Resolver struct {
	doer shared.HTTPDoer

	mu      sync.RWMutex
	clients map[string]shared.Client
	group   singleflight.Group
}

func NewResolver(doer shared.HTTPDoer) *Resolver {
	if doer == nil {
		doer = http.DefaultClient
	}

	return &Resolver{doer: doer, clients: map[string]shared.Client{}}
}

// ClientFor returns the cached client for backend, constructing one on
// first use. Concurrent first-uses of the same backend id are collapsed
// into a single construction via singleflight rather than a second
// double-checked-locking path.
func (r *Resolver) ClientFor(backend domain.Backend) (shared.Client, error) {
	r.mu.RLock()
	client, ok := r.clients[backend.ID]
	r.mu.RUnlock()

	if ok {
		return client, nil
	}

	v, err, _ := r.group.Do(backend.ID, func() (interface{}, error) {
		r.mu.Lock()
		defer r.mu.Unlock()

		if client, ok := r.clients[backend.ID]; ok {
			return client, nil
		}

		client := internalstream.New(backend.BaseURL, r.doer)
		r.clients[backend.ID] = client

		return client, nil
	})
	if err != nil {
		return nil, err
	}

	return v.(shared.Client), nil
}
