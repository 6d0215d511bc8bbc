package shared

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/tmaxmax/go-sse"
)

// SSEFrameStream adapts an upstream SSE body to FrameStream using
// tmaxmax/go-sse. Both backend client variants (internal-streaming,
// external) share this implementation; only the wire request shaping
// differs between them.
type SSEFrameStream struct {
	ctx       context.Context
	requestID string
	body      io.ReadCloser
	sseStream *sse.Stream
	current   Frame
	err       error
	done      bool
}

// NewSSEFrameStream wraps body in a FrameStream, capping event size so a
// single malformed or oversized image-bearing frame can't exhaust memory.
func NewSSEFrameStream(ctx context.Context, requestID string, body io.ReadCloser) *SSEFrameStream {
	return &SSEFrameStream{
		ctx:       ctx,
		requestID: requestID,
		body:      body,
		sseStream: sse.NewStreamWithConfig(body, &sse.StreamConfig{MaxEventSize: 32 * 1024 * 1024}),
	}
}

type wireFrame struct {
	Delta      string `json:"delta"`
	Usage      *Usage `json:"usage,omitempty"`
	StopReason string `json:"stop_reason,omitempty"`
	Error      string `json:"error,omitempty"`
}

func (s *SSEFrameStream) Next() bool {
	if s.done || s.err != nil {
		return false
	}

	select {
	case <-s.ctx.Done():
		s.err = s.ctx.Err()
		_ = s.Close()

		return false
	default:
	}

	event, err := s.sseStream.Recv()
	if err != nil {
		if errors.Is(err, io.EOF) {
			s.done = true
			_ = s.Close()

			return false
		}

		s.err = err
		_ = s.Close()

		return false
	}

	if event.Data == "[DONE]" {
		s.done = true
		return false
	}

	var evt wireFrame
	if err := json.Unmarshal([]byte(event.Data), &evt); err != nil {
		s.err = fmt.Errorf("decode upstream frame: %w", err)
		return false
	}

	if evt.Error != "" {
		s.err = fmt.Errorf("upstream error: %s", evt.Error)
		s.done = true

		return false
	}

	s.current = Frame{
		RequestID:  s.requestID,
		Delta:      evt.Delta,
		Usage:      evt.Usage,
		StopReason: evt.StopReason,
	}

	if evt.Usage != nil {
		s.done = true
	}

	return true
}

func (s *SSEFrameStream) Current() Frame { return s.current }
func (s *SSEFrameStream) Err() error     { return s.err }

func (s *SSEFrameStream) Close() error {
	if s.sseStream != nil {
		return s.sseStream.Close()
	}

	return s.body.Close()
}
