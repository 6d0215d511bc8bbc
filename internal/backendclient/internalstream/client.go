// Package internalstream implements the internal-streaming backend
// variant: a TEE-hosted inference server that also exposes an
// attestation endpoint. Temperature is clamped to [0,1] per the
// example upstream contract.
package internalstream

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/teeinfer/gateway/internal/backendclient/shared"
	"github.com/teeinfer/gateway/internal/idgen"
)

const (
	minTemperature = 0.0
	maxTemperature = 1.0
)

// Client talks to one internal-streaming backend endpoint.
type Client struct {
	baseURL string
	doer    shared.HTTPDoer
}

func New(baseURL string, doer shared.HTTPDoer) *Client {
	return &Client{baseURL: baseURL, doer: doer}
}

func (c *Client) Verifiable() bool { return true }

type wireRequest struct {
	Model       string           `json:"model"`
	Messages    []shared.Message `json:"messages"`
	Stream      bool             `json:"stream"`
	Temperature *float64         `json:"temperature,omitempty"`
	TopP        *float64         `json:"top_p,omitempty"`
	MaxTokens   *int             `json:"max_tokens,omitempty"`
}

func (c *Client) Submit(ctx context.Context, req shared.Request) (string, shared.FrameStream, *shared.CompleteResult, error) {
	req = shared.ClampRange(req, minTemperature, maxTemperature)

	body, err := json.Marshal(wireRequest{
		Model:       req.Model,
		Messages:    req.Messages,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
	})
	if err != nil {
		return "", nil, nil, fmt.Errorf("marshal internal-stream request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", nil, nil, err
	}

	httpReq.Header.Set("Content-Type", "application/json")

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
			return "", nil, nil, fmt.Errorf("decode internal-stream response: %w", err)
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

func (c *Client) AttestationReport(ctx context.Context) ([]byte, []byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/v1/attestation/report", nil)
	if err != nil {
		return nil, nil, err
	}

	resp, err := c.doer.Do(httpReq)
	if err != nil {
		return nil, nil, err
	}
	defer resp.Body.Close()

	var payload struct {
		Report    []byte `json:"report"`
		CertChain []byte `json:"cert_chain"`
	}

	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, nil, fmt.Errorf("decode attestation report: %w", err)
	}

	return payload.Report, payload.CertChain, nil
}

func (c *Client) HealthProbe(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return err
	}

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
