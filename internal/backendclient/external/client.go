// Package external implements the external-provider backend variant:
// an OpenAI-compatible, Anthropic, or Gemini-flavored endpoint. These
// never support attestation — Verifiable() is always false, and calling
// AttestationReport is a classification error, not a crash.
package external

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teeinfer/gateway/internal/backendclient/shared"
	"github.com/teeinfer/gateway/internal/idgen"
)

// Flavor selects the upstream's accepted temperature range and wire
// shape — one normalizer per provider family (openai, anthropic, gemini).
type Flavor string

const (
	FlavorOpenAI    Flavor = "openai"
	FlavorAnthropic Flavor = "anthropic"
	FlavorGemini    Flavor = "gemini"
)

// temperatureRange returns the [min,max] this flavor accepts, so
// Submit can rewrite an out-of-range client value before forwarding it.
func (f Flavor) temperatureRange() (float64, float64) {
	switch f {
	case FlavorAnthropic:
		return 0, 1
	case FlavorGemini:
		return 0, 2
	default: // OpenAI-compatible
		return 0, 2
	}
}

func (f Flavor) chatPath() string {
	switch f {
	case FlavorAnthropic:
		return "/v1/messages"
	case FlavorGemini:
		return "/v1beta/models/generateContent"
	default:
		return "/v1/chat/completions"
	}
}

// Client talks to one external provider endpoint.
type Client struct {
	baseURL string
	apiKey  string
	flavor  Flavor
	doer    shared.HTTPDoer
}

func New(baseURL, apiKey string, flavor Flavor, doer shared.HTTPDoer) *Client {
	return &Client{baseURL: baseURL, apiKey: apiKey, flavor: flavor, doer: doer}
}

func (c *Client) Verifiable() bool { return false }

type wireRequest struct {
	Model       string           `json:"model"`
	Messages    []shared.Message `json:"messages"`
	Stream      bool             `json:"stream"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

func (c *Client) Submit(ctx context.Context, req shared.Request) (string, shared.FrameStream, *shared.CompleteResult, error) {
	lo, hi := c.flavor.temperatureRange()
	req = shared.ClampRange(req, lo, hi)

	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshal external request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+c.flavor.chatPath(), bytes.NewReader(body))
	if err != nil {
		return "", nil, nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return "", nil, nil, err
	}

	requestID := resp.Header.Get("X-Request-Id")
	if requestID == "" {
		requestID = idgen.New("req")
	}

	if !req.Stream {
		defer resp.Body.Close()

		var complete struct {
			Content    string       `json:"content"`
			Usage      shared.Usage `json:"usage"`
			StopReason string       `json:"stop_reason"`
		}

		if err := json.NewDecoder(resp.Body).Decode(&complete); err != nil {
			return "", nil, nil, fmt.Errorf("decode external response: %w", err)
		}

		return requestID, nil, &shared.CompleteResult{
			RequestID:  requestID,
			Content:    complete.Content,
			Usage:      complete.Usage,
			StopReason: complete.StopReason,
		}, nil
	}

	return requestID, shared.NewSSEFrameStream(ctx, requestID, resp.Body), nil, nil
}

// AttestationReport is unsupported on external providers: this is a
// classification error surfaced to callers, not a panic or crash.
func (c *Client) AttestationReport(context.Context) ([]byte, []byte, error) {
	return nil, nil, shared.ErrNotVerifiable
}

func (c *Client) HealthProbe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/models", nil)
	if err != nil {
		return err
	}

	httpReq.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("backend unhealthy: status %d", resp.StatusCode)
	}

	return nil
}
