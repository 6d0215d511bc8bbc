package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/teeinfer/gateway/internal/backendclient/shared"
	"github.com/teeinfer/gateway/internal/contexts"
	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/log"
	"github.com/teeinfer/gateway/internal/ratelimit"
	"github.com/teeinfer/gateway/internal/streaming"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// chatCompletionRequest is the OpenAI-shaped wire request this handler
// accepts; unrecognized fields are ignored rather than rejected.
type chatCompletionRequest struct {
	Model              string            `json:"model"`
	Messages           []wireMessage     `json:"messages"`
	Stream             bool              `json:"stream"`
	Temperature        *float64          `json:"temperature"`
	TopP               *float64          `json:"top_p"`
	MaxTokens          *int              `json:"max_tokens"`
	Metadata           map[string]string `json:"metadata"`
	ConversationID     *string           `json:"conversation_id"`
	PreviousResponseID *string           `json:"previous_response_id"`
}

type wireMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type ChatCompletionHandlers struct {
	Pipeline *streaming.Pipeline
}

func NewChatCompletionHandlers(pipeline *streaming.Pipeline) *ChatCompletionHandlers {
	return &ChatCompletionHandlers{Pipeline: pipeline}
}

// ChatCompletion handles POST /v1/chat/completions, driving the pipeline
// for either a buffered JSON reply or an SSE stream depending on the
// request's stream flag.
func (h *ChatCompletionHandlers) ChatCompletion(c *gin.Context) {
	h.run(c, domain.InferenceKindChatCompletion)
}

// Completion handles POST /v1/completions through the same pipeline and
// the same messages-shaped request body as ChatCompletion; a legacy
// prompt field is not read.
func (h *ChatCompletionHandlers) Completion(c *gin.Context) {
	h.run(c, domain.InferenceKindCompletion)
}

// CreateResponse handles POST /v1/responses, the conversation-oriented
// entry point into the same pipeline as ChatCompletion.
func (h *ChatCompletionHandlers) CreateResponse(c *gin.Context) {
	h.run(c, domain.InferenceKindResponse)
}

func (h *ChatCompletionHandlers) run(c *gin.Context, kind domain.InferenceKind) {
	ctx := c.Request.Context()

	var body chatCompletionRequest
	if err := json.NewDecoder(c.Request.Body).Decode(&body); err != nil {
		writeError(c, xerrors.Wrap(xerrors.KindValidation, "decode request body", err))
		return
	}

	if body.Model == "" || len(body.Messages) == 0 {
		writeError(c, xerrors.New(xerrors.KindValidation, "model and messages are required"))
		return
	}

	key, _ := contexts.GetAPIKey(ctx)
	org, _ := contexts.GetOrganization(ctx)

	req := streaming.Request{
		ModelName:          body.Model,
		ConversationID:     body.ConversationID,
		PreviousResponseID: body.PreviousResponseID,
		Messages:           toSharedMessages(body.Messages),
		Stream:             body.Stream,
		Temperature:        body.Temperature,
		TopP:               body.TopP,
		MaxTokens:          body.MaxTokens,
		Metadata:           body.Metadata,
		Kind:               kind,
		Class:              ratelimit.ClassifyRoute(c.Request.URL.Path),
	}

	if idem, ok := contexts.GetIdempotencyKey(ctx); ok {
		req.InferenceID = &idem
	}

	if body.Stream {
		h.runStreaming(c, org, key, req)
		return
	}

	outcome, err := h.Pipeline.Run(ctx, org, key, req, nil)
	if err != nil {
		writeError(c, err)
		return
	}

	c.JSON(http.StatusOK, responseEnvelope(outcome))
}

// runStreaming drives the pipeline over an SSE response. The pipeline
// itself calls SendCreated/SendFrame/SendTerminal on sink at each
// lifecycle point, so by the time Run returns, every event the route
// needs has already been written; the only thing left to handle here is
// a failure that occurred before anything was ever streamed.
func (h *ChatCompletionHandlers) runStreaming(c *gin.Context, org domain.Organization, key domain.APIKey, req streaming.Request) {
	ctx := c.Request.Context()

	c.Header("Content-Type", "text/event-stream")
	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")

	sink := &sseSink{c: c, kind: req.Kind}

	_, err := h.Pipeline.Run(ctx, org, key, req, sink)
	if err != nil && !sink.wrote {
		writeError(c, err)
	}
}

// sseSink adapts streaming.Sink onto a gin SSE response. Event naming is
// route-specific: /v1/responses gets the documented response.* event
// names, the OpenAI-compatible chat/completions routes get raw chunk
// payloads terminated by the literal "data: [DONE]" sentinel.
type sseSink struct {
	c     *gin.Context
	kind  domain.InferenceKind
	wrote bool
}

func (s *sseSink) disconnected() bool {
	return s.c.Request.Context().Err() != nil
}

// SendCreated emits response.created. The plain chat-completion and
// completion routes skip this step entirely.
func (s *sseSink) SendCreated(resp domain.Response) error {
	if s.kind != domain.InferenceKindResponse {
		return nil
	}

	if s.disconnected() {
		return s.c.Request.Context().Err()
	}

	s.wrote = true
	s.c.SSEvent("response.created", responseJSON(resp))
	s.c.Writer.Flush()

	return nil
}

func (s *sseSink) SendFrame(frame shared.Frame) error {
	if s.disconnected() {
		return s.c.Request.Context().Err()
	}

	s.wrote = true

	if s.kind == domain.InferenceKindResponse {
		s.c.SSEvent("response.output_text.delta", gin.H{"id": frame.RequestID, "delta": frame.Delta})
	} else {
		writeChunk(s.c, chatCompletionChunk{
			ID:     frame.RequestID,
			Object: "chat.completion.chunk",
			Choices: []chunkChoice{{
				Delta: chunkDelta{Content: frame.Delta},
			}},
		})
	}

	s.c.Writer.Flush()

	log.Debug(s.c.Request.Context(), "wrote stream frame", log.String("request_id", frame.RequestID))

	return nil
}

// SendTerminal emits the route's closing event: a named
// response.completed/failed/cancelled event for /v1/responses, or the
// data: [DONE] sentinel for the OpenAI-compatible routes (only once
// something has actually been streamed; otherwise the caller falls back
// to a plain JSON error body).
func (s *sseSink) SendTerminal(outcome streaming.Outcome) error {
	if s.kind == domain.InferenceKindResponse {
		s.wrote = true
		s.c.SSEvent(responseEventName(outcome.Response.Status), responseEnvelope(outcome))
		s.c.Writer.Flush()

		return nil
	}

	if !s.wrote {
		return nil
	}

	fmt.Fprint(s.c.Writer, "data: [DONE]\n\n")
	s.c.Writer.Flush()

	return nil
}

func responseEventName(status domain.ResponseStatus) string {
	switch status {
	case domain.ResponseStatusFailed:
		return "response.failed"
	case domain.ResponseStatusCancelled:
		return "response.cancelled"
	default:
		return "response.completed"
	}
}

// chatCompletionChunk is the raw OpenAI-shaped SSE payload written for
// /v1/chat/completions and /v1/completions streams.
type chatCompletionChunk struct {
	ID      string        `json:"id"`
	Object  string        `json:"object"`
	Choices []chunkChoice `json:"choices"`
}

type chunkChoice struct {
	Index int        `json:"index"`
	Delta chunkDelta `json:"delta"`
}

type chunkDelta struct {
	Content string `json:"content"`
}

func writeChunk(c *gin.Context, chunk chatCompletionChunk) {
	payload, err := json.Marshal(chunk)
	if err != nil {
		return
	}

	fmt.Fprintf(c.Writer, "data: %s\n\n", payload)
}

func toSharedMessages(in []wireMessage) []shared.Message {
	out := make([]shared.Message, len(in))
	for i, m := range in {
		out[i] = shared.Message{Role: m.Role, Content: m.Content}
	}

	return out
}

func responseEnvelope(outcome streaming.Outcome) gin.H {
	return gin.H{
		"id":          outcome.Response.ID,
		"status":      outcome.Response.Status,
		"stop_reason": outcome.StopReason,
		"usage": gin.H{
			"input_tokens":  outcome.Usage.InputTokens,
			"output_tokens": outcome.Usage.OutputTokens,
			"total_tokens":  outcome.Usage.TotalTokens,
		},
	}
}
