// Package streaming is the single path every inference request travels:
// admission, model resolution, backend dispatch, response bookkeeping,
// the upstream call, and the terminal branch, wired into one ordered
// sequence.
package streaming

import (
	"context"
	"strings"
	"time"

	"github.com/teeinfer/gateway/internal/attestation"
	"github.com/teeinfer/gateway/internal/backendclient/shared"
	"github.com/teeinfer/gateway/internal/domain"
	"github.com/teeinfer/gateway/internal/idgen"
	"github.com/teeinfer/gateway/internal/log"
	"github.com/teeinfer/gateway/internal/ratelimit"
	"github.com/teeinfer/gateway/internal/xerrors"
)

// ClientResolver builds a backend client for a backend the Provider Pool
// selected. Kept separate from providerpool so the pipeline never needs
// to know how a client is constructed (internal-streaming vs external).
type ClientResolver interface {
	ClientFor(backend domain.Backend) (shared.Client, error)
}

// Sink receives relayed frames as they arrive; the HTTP layer's SSE
// writer implements this. A non-streaming request given a sink receives
// its whole result as a single SendFrame call.
// SendCreated and SendTerminal let the sink emit the route-specific
// lifecycle events (e.g. response.created, response.completed,
// data: [DONE]) without the pipeline knowing the wire format.
type Sink interface {
	SendCreated(resp domain.Response) error
	SendFrame(frame shared.Frame) error
	SendTerminal(outcome Outcome) error
}

// The interfaces below narrow each upstream component to
// only what the pipeline calls. *ledger.Service, *ratelimit.Limiter,
// *catalog.Catalog, *providerpool.Pool, *responsestate.Machine and
// *attestation.Binder all satisfy these structurally; tests substitute
// fakes so the ordering contract can be exercised without a database.

type Ledger interface {
	PreflightCheck(ctx context.Context, org domain.Organization, key domain.APIKey) error
	Record(ctx context.Context, entry domain.UsageLogEntry) error
}

type RateLimiter interface {
	Admit(principalID string, class ratelimit.Class) ratelimit.Result
}

type Catalog interface {
	Resolve(ctx context.Context, name string) (domain.Model, error)
	PricingAt(ctx context.Context, modelID string, t time.Time) (domain.Pricing, error)
}

type Pool interface {
	Select(ctx context.Context, modelName string, conversationID string) (*domain.Backend, error)
	ReportFailure(backendID string)
}

type StateMachine interface {
	Begin(ctx context.Context, workspaceID, apiKeyID, modelID string, conversationID, previousResponseID *string) (domain.Response, error)
	Complete(ctx context.Context, id string, usage domain.Usage) error
	Fail(ctx context.Context, id string, reason string) error
	Cancel(ctx context.Context, id string) error
}

type Attester interface {
	Bind(ctx context.Context, chatID, text string, client attestation.Reporter) error
}

// Request is a normalized inference request entering the pipeline.
type Request struct {
	ModelName          string
	ConversationID     *string
	PreviousResponseID *string
	Messages           []shared.Message
	Stream             bool
	Temperature        *float64
	TopP               *float64
	MaxTokens          *int
	Metadata           map[string]string
	Kind               domain.InferenceKind
	Class              ratelimit.Class
	InferenceID        *string // idempotency key from the client, if supplied
}

// Pipeline wires every upstream component into the single request path.
type Pipeline struct {
	ledger      Ledger
	limiter     RateLimiter
	catalog     Catalog
	pool        Pool
	state       StateMachine
	attestation Attester
	resolver    ClientResolver
}

func New(
	ledgerSvc Ledger,
	limiter RateLimiter,
	cat Catalog,
	pool Pool,
	state StateMachine,
	attestationBinder Attester,
	resolver ClientResolver,
) *Pipeline {
	return &Pipeline{
		ledger:      ledgerSvc,
		limiter:     limiter,
		catalog:     cat,
		pool:        pool,
		state:       state,
		attestation: attestationBinder,
		resolver:    resolver,
	}
}

// Outcome is the pipeline's terminal summary, returned once the request
// has reached a terminal state.
type Outcome struct {
	Response   domain.Response
	Usage      domain.Usage
	StopReason domain.StopReason
}

// Run executes the full eight-step contract for one request. sink may be
// nil for non-streaming requests.
func (p *Pipeline) Run(ctx context.Context, org domain.Organization, key domain.APIKey, req Request, sink Sink) (Outcome, error) {
	// Step 1: admission.
	if err := p.ledger.PreflightCheck(ctx, org, key); err != nil {
		return Outcome{}, err
	}

	admission := p.limiter.Admit(key.ID, req.Class)
	if !admission.Allowed {
		rl := xerrors.New(xerrors.KindRateLimited, "rate limit exceeded")
		rl.RetryAfter = int(admission.RetryAfter / time.Second)

		return Outcome{}, rl
	}

	// Step 2: resolve.
	model, err := p.catalog.Resolve(ctx, req.ModelName)
	if err != nil {
		return Outcome{}, err
	}

	conversationKey := ""
	if req.ConversationID != nil {
		conversationKey = *req.ConversationID
	}

	outcome, err := p.attemptOnce(ctx, org, key, model, req, sink, conversationKey)
	if err != nil && xerrors.KindOf(err) == xerrors.KindUpstreamUnavailable {
		// At most one internal retry on an unavailable backend.
		outcome, err = p.attemptOnce(ctx, org, key, model, req, sink, conversationKey)
	}

	return outcome, err
}

func (p *Pipeline) attemptOnce(ctx context.Context, org domain.Organization, key domain.APIKey, model domain.Model, req Request, sink Sink, conversationKey string) (Outcome, error) {
	// Step 3: dispatch.
	backend, err := p.pool.Select(ctx, model.CanonicalName, conversationKey)
	if err != nil {
		return Outcome{}, err
	}

	// Step 4: conditionally create the response row.
	resp, err := p.state.Begin(ctx, key.WorkspaceID, key.ID, model.ID, req.ConversationID, req.PreviousResponseID)
	if err != nil {
		return Outcome{}, err
	}

	if sink != nil {
		if err := sink.SendCreated(resp); err != nil {
			// Client is already gone; don't blame the backend or the
			// provider for a response nobody will read.
			_ = p.state.Cancel(ctx, resp.ID)
			resp.Status = domain.ResponseStatusCancelled

			return Outcome{Response: resp, StopReason: domain.StopReasonClientDisconnect}, nil
		}
	}

	client, err := p.resolver.ClientFor(*backend)
	if err != nil {
		_ = p.state.Fail(ctx, resp.ID, "no client available for backend")
		resp.Status = domain.ResponseStatusFailed
		p.recordUsage(ctx, org, key, model, resp, domain.Usage{}, domain.StopReasonProviderError, req)
		p.sendTerminal(ctx, sink, resp, domain.Usage{}, domain.StopReasonProviderError)

		return Outcome{}, err
	}

	wireReq := shared.Request{
		Model:       model.CanonicalName,
		Messages:    req.Messages,
		Stream:      req.Stream,
		Temperature: req.Temperature,
		TopP:        req.TopP,
		MaxTokens:   req.MaxTokens,
		Metadata:    req.Metadata,
	}

	// Step 5: open the upstream call.
	_, frames, result, err := client.Submit(ctx, wireReq)
	if err != nil {
		p.pool.ReportFailure(backend.ID)
		_ = p.state.Fail(ctx, resp.ID, err.Error())
		resp.Status = domain.ResponseStatusFailed
		p.recordUsage(ctx, org, key, model, resp, domain.Usage{}, domain.StopReasonProviderError, req)
		p.sendTerminal(ctx, sink, resp, domain.Usage{}, domain.StopReasonProviderError)

		return Outcome{}, xerrors.Wrap(xerrors.KindUpstreamUnavailable, "submit request to backend", err)
	}

	var (
		usage      domain.Usage
		stopReason domain.StopReason
		relayErr   error
		outputText string
	)

	if req.Stream {
		usage, stopReason, outputText, relayErr = p.relay(ctx, resp.ID, frames, sink)
	} else {
		usage = usageFromResult(result.Usage)
		stopReason = mapStopReason(result.StopReason)
		outputText = result.Content

		if sink != nil {
			if err := sink.SendFrame(shared.Frame{RequestID: resp.ID, Delta: result.Content, StopReason: result.StopReason}); err != nil {
				relayErr = err
				stopReason = domain.StopReasonClientDisconnect
			}
		}
	}

	// Step 7: cancellation via client disconnect. Partial tokens already
	// delivered are not billed.
	if relayErr != nil && stopReason == domain.StopReasonClientDisconnect {
		_ = p.state.Cancel(ctx, resp.ID)
		resp.Status = domain.ResponseStatusCancelled
		p.sendTerminal(ctx, sink, resp, usage, domain.StopReasonClientDisconnect)

		return Outcome{Response: resp, Usage: usage, StopReason: domain.StopReasonClientDisconnect}, nil
	}

	// Step 8: terminal branch, provider error.
	if relayErr != nil {
		p.pool.ReportFailure(backend.ID)
		_ = p.state.Fail(ctx, resp.ID, relayErr.Error())
		resp.Status = domain.ResponseStatusFailed
		p.recordUsage(ctx, org, key, model, resp, usage, domain.StopReasonProviderError, req)
		p.sendTerminal(ctx, sink, resp, usage, domain.StopReasonProviderError)

		return Outcome{}, xerrors.Wrap(xerrors.KindUpstreamError, "relay frames from backend", relayErr)
	}

	// Step 8: terminal branch, success.
	usage = p.priceUsage(ctx, model, usage)

	if err := p.state.Complete(ctx, resp.ID, usage); err != nil {
		return Outcome{}, err
	}

	resp.Status = domain.ResponseStatusCompleted
	resp.Usage = &usage

	p.recordUsage(ctx, org, key, model, resp, usage, stopReason, req)

	if model.Verifiable && client.Verifiable() {
		if err := p.attestation.Bind(ctx, resp.ID, outputText, client); err != nil {
			log.Warn(ctx, "attestation bind failed", log.String("response_id", resp.ID), log.Cause(err))
		}
	}

	p.sendTerminal(ctx, sink, resp, usage, stopReason)

	return Outcome{Response: resp, Usage: usage, StopReason: stopReason}, nil
}

// sendTerminal notifies the sink of the final outcome; the sink decides
// the actual wire format for the route it's serving. A sink write
// failure at this point is logged, not propagated: the response row is
// already durably in its terminal state.
func (p *Pipeline) sendTerminal(ctx context.Context, sink Sink, resp domain.Response, usage domain.Usage, stopReason domain.StopReason) {
	if sink == nil {
		return
	}

	if err := sink.SendTerminal(Outcome{Response: resp, Usage: usage, StopReason: stopReason}); err != nil {
		log.Debug(ctx, "sink terminal write failed", log.String("response_id", resp.ID), log.Cause(err))
	}
}

// relay drains frames into sink, accumulating usage, the relayed output
// text, and the terminal stop reason. A client disconnect or context
// cancellation surfaces as StopReasonClientDisconnect rather than a
// provider error.
func (p *Pipeline) relay(ctx context.Context, responseID string, frames shared.FrameStream, sink Sink) (domain.Usage, domain.StopReason, string, error) {
	defer frames.Close()

	var (
		usage      domain.Usage
		stopReason = domain.StopReasonCompleted
		output     strings.Builder
	)

	for frames.Next() {
		frame := frames.Current()

		if sink != nil {
			if err := sink.SendFrame(frame); err != nil {
				return usage, domain.StopReasonClientDisconnect, output.String(), err
			}
		}

		output.WriteString(frame.Delta)

		if frame.Usage != nil {
			usage.InputTokens = frame.Usage.InputTokens
			usage.OutputTokens = frame.Usage.OutputTokens
			usage.TotalTokens = frame.Usage.InputTokens + frame.Usage.OutputTokens
		}

		if frame.StopReason != "" {
			stopReason = mapStopReason(frame.StopReason)
		}
	}

	if err := frames.Err(); err != nil {
		if ctx.Err() != nil {
			return usage, domain.StopReasonClientDisconnect, output.String(), ctx.Err()
		}

		return usage, domain.StopReasonProviderError, output.String(), err
	}

	return usage, stopReason, output.String(), nil
}

func (p *Pipeline) priceUsage(ctx context.Context, model domain.Model, usage domain.Usage) domain.Usage {
	pricing, err := p.catalog.PricingAt(ctx, model.ID, time.Now())
	if err != nil {
		return usage
	}

	usage.InputCostNano = usage.InputTokens * pricing.InputCostNano
	usage.OutputCostNano = usage.OutputTokens * pricing.OutputCostNano
	usage.TotalCostNano = usage.InputCostNano + usage.OutputCostNano

	return usage
}

func (p *Pipeline) recordUsage(ctx context.Context, org domain.Organization, key domain.APIKey, model domain.Model, resp domain.Response, usage domain.Usage, stopReason domain.StopReason, req Request) {
	entry := domain.UsageLogEntry{
		ID:             idgen.New("ulog"),
		OrganizationID: org.ID,
		WorkspaceID:    key.WorkspaceID,
		APIKeyID:       key.ID,
		ResponseID:     resp.ID,
		ModelID:        model.ID,
		ModelName:      model.CanonicalName,
		InputTokens:    usage.InputTokens,
		OutputTokens:   usage.OutputTokens,
		TotalTokens:    usage.TotalTokens,
		InputCostNano:  usage.InputCostNano,
		OutputCostNano: usage.OutputCostNano,
		TotalCostNano:  usage.TotalCostNano,
		Kind:           req.Kind,
		InferenceID:    req.InferenceID,
		StopReason:     stopReason,
		CreatedAt:      time.Now(),
	}

	if err := p.ledger.Record(ctx, entry); err != nil {
		log.Warn(ctx, "usage record failed", log.String("response_id", resp.ID), log.Cause(err))
	}
}

func usageFromResult(u shared.Usage) domain.Usage {
	return domain.Usage{
		InputTokens:  u.InputTokens,
		OutputTokens: u.OutputTokens,
		TotalTokens:  u.InputTokens + u.OutputTokens,
	}
}

func mapStopReason(raw string) domain.StopReason {
	switch domain.StopReason(raw) {
	case domain.StopReasonLength, domain.StopReasonContentFilter, domain.StopReasonProviderError, domain.StopReasonTimeout:
		return domain.StopReason(raw)
	default:
		return domain.StopReasonCompleted
	}
}

