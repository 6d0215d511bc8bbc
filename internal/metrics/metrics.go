// Package metrics wires an OpenTelemetry meter provider and the
// instruments the gateway emits against: request counts, token usage,
// rate-limit rejections and pipeline latency. Kept deliberately thin —
// the provider has a single manual (pull) reader and no exporter is
// configured here.
package metrics

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/teeinfer/gateway/internal/config"
)

// NewProvider builds the process-wide MeterProvider. Registered as an fx
// provider; its OnStart/OnStop hooks live in cmd/gatewayd.
func NewProvider(_ config.Config) (*sdkmetric.MeterProvider, error) {
	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(sdkmetric.NewManualReader()),
	)

	return provider, nil
}

// Instruments is the gateway's set of counters/histograms. SetupMetrics
// builds it and returns it to its caller; it is not provided through fx,
// and cmd/gatewayd discards the returned value.
type Instruments struct {
	Requests        metric.Int64Counter
	InputTokens     metric.Int64Counter
	OutputTokens    metric.Int64Counter
	RateLimited     metric.Int64Counter
	PipelineLatency metric.Float64Histogram
}

// SetupMetrics registers the otel global meter provider and builds the
// gateway's instrument set under the given service name.
func SetupMetrics(provider *sdkmetric.MeterProvider, serviceName string) (*Instruments, error) {
	otel.SetMeterProvider(provider)

	meter := provider.Meter(serviceName)

	requests, err := meter.Int64Counter("gateway.requests",
		metric.WithDescription("inference requests accepted by the streaming pipeline"))
	if err != nil {
		return nil, err
	}

	inputTokens, err := meter.Int64Counter("gateway.tokens.input",
		metric.WithDescription("input tokens billed through the usage ledger"))
	if err != nil {
		return nil, err
	}

	outputTokens, err := meter.Int64Counter("gateway.tokens.output",
		metric.WithDescription("output tokens billed through the usage ledger"))
	if err != nil {
		return nil, err
	}

	rateLimited, err := meter.Int64Counter("gateway.ratelimit.rejections",
		metric.WithDescription("requests rejected by the rate limiter"))
	if err != nil {
		return nil, err
	}

	latency, err := meter.Float64Histogram("gateway.pipeline.latency",
		metric.WithDescription("time from pipeline admission to terminal state"),
		metric.WithUnit("s"))
	if err != nil {
		return nil, err
	}

	return &Instruments{
		Requests:        requests,
		InputTokens:     inputTokens,
		OutputTokens:    outputTokens,
		RateLimited:     rateLimited,
		PipelineLatency: latency,
	}, nil
}

// RecordRequest is a convenience wrapper so callers don't attribute
// inconsistently across call sites.
func (m *Instruments) RecordRequest(ctx context.Context, model string, kind string) {
	if m == nil {
		return
	}

	m.Requests.Add(ctx, 1, metric.WithAttributes(
		attribute.String("model", model),
		attribute.String("kind", kind),
	))
}
