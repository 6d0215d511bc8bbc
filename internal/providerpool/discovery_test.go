package providerpool

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPDiscoverer_Discover(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/models", r.URL.Path)
		require.Equal(t, "Bearer secret", r.Header.Get("Authorization"))

		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"model_id": "llama-3", "endpoints": []string{"http://a", "http://b"}},
		})
	}))
	defer srv.Close()

	d := NewHTTPDiscoverer(srv.URL, "secret", srv.Client())

	models, err := d.Discover(context.Background())
	require.NoError(t, err)
	require.Len(t, models, 1)
	require.Equal(t, "llama-3", models[0].ModelName)
	require.Equal(t, []string{"http://a", "http://b"}, models[0].Endpoints)
}

func TestHTTPDiscoverer_NonOKStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	d := NewHTTPDiscoverer(srv.URL, "", srv.Client())

	_, err := d.Discover(context.Background())
	require.Error(t, err)
}
