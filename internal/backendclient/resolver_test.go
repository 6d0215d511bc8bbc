package backendclient

import (
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/teeinfer/gateway/internal/domain"
)

func TestClientFor_CachesPerBackend(t *testing.T) {
	r := NewResolver(http.DefaultClient)

	backend := domain.Backend{ID: "backend_1", BaseURL: "http://localhost:9000"}

	first, err := r.ClientFor(backend)
	require.NoError(t, err)

	second, err := r.ClientFor(backend)
	require.NoError(t, err)

	require.Same(t, first, second, "repeated calls for the same backend must reuse the cached client")
}

func TestClientFor_ConcurrentFirstUseConstructsOnce(t *testing.T) {
	r := NewResolver(http.DefaultClient)
	backend := domain.Backend{ID: "backend_1", BaseURL: "http://localhost:9000"}

	const n = 16

	results := make([]interface{}, n)

	var wg sync.WaitGroup

	wg.Add(n)

	for i := 0; i < n; i++ {
		go func(i int) {
			defer wg.Done()

			client, err := r.ClientFor(backend)
			require.NoError(t, err)
			results[i] = client
		}(i)
	}

	wg.Wait()

	for i := 1; i < n; i++ {
		require.Same(t, results[0], results[i])
	}
}
