package providerpool

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teeinfer/gateway/internal/backendclient/shared"
)

// HTTPDiscoverer fetches the backend topology from a configured discovery
// endpoint: GET {baseURL}/models -> [{model_id, endpoints:[url]}].
type HTTPDiscoverer struct {
	baseURL   string
	authToken string
	doer      shared.HTTPDoer
}

func NewHTTPDiscoverer(baseURL, authToken string, doer shared.HTTPDoer) *HTTPDiscoverer {
	if doer == nil {
		doer = http.DefaultClient
	}

	return &HTTPDiscoverer{baseURL: baseURL, authToken: authToken, doer: doer}
}

type discoveryEntry struct {
	ModelID   string   `json:"model_id"`
	Endpoints []string `json:"endpoints"`
}

func (d *HTTPDiscoverer) Discover(ctx context.Context) ([]DiscoveredModel, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.baseURL+"/models", nil)
	if err != nil {
		return nil, fmt.Errorf("build discovery request: %w", err)
	}

	if d.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+d.authToken)
	}

	resp, err := d.doer.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch discovery catalog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("discovery endpoint returned status %d", resp.StatusCode)
	}

	var entries []discoveryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, fmt.Errorf("decode discovery response: %w", err)
	}

	out := make([]DiscoveredModel, len(entries))
	for i, e := range entries {
		out[i] = DiscoveredModel{ModelName: e.ModelID, Endpoints: e.Endpoints}
	}

	return out, nil
}
