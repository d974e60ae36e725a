// Copyright 2025 Kadir Pekel
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package observability

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	stdouttrace "go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
)

// Tracer wraps an OpenTelemetry TracerProvider with the span shapes the
// orchestrator and tool pipeline need: one span per turn, per agent
// step, per tool call, and per diff apply.
type Tracer struct {
	provider      *sdktrace.TracerProvider
	tracer        trace.Tracer
	debugExporter *DebugExporter
	capturePayloads bool
}

// TracerOption customizes NewTracer.
type TracerOption func(*tracerOptions)

type tracerOptions struct {
	debugExporter   *DebugExporter
	capturePayloads bool
}

// WithDebugExporter attaches an in-memory span exporter for local
// inspection, in addition to the configured network exporter.
func WithDebugExporter(exp *DebugExporter) TracerOption {
	return func(o *tracerOptions) { o.debugExporter = exp }
}

// WithCapturePayloads enables recording tool/diff payload attributes on
// spans. Off by default: payloads may be large or sensitive.
func WithCapturePayloads(enabled bool) TracerOption {
	return func(o *tracerOptions) { o.capturePayloads = enabled }
}

// NewTracer builds a Tracer from cfg. The exporter is selected by
// cfg.Exporter ("otlp" or "stdout"); TracingConfig.Validate rejects any
// other value before NewTracer is ever called, but the switch below
// still falls back to stdout defensively rather than doing nothing.
func NewTracer(ctx context.Context, cfg *TracingConfig, opts ...TracerOption) (*Tracer, error) {
	var applied tracerOptions
	for _, opt := range opts {
		opt(&applied)
	}

	exporter, err := newSpanExporter(ctx, cfg)
	if err != nil {
		return nil, err
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		semconv.ServiceName(cfg.ServiceName),
		semconv.ServiceVersion(cfg.ServiceVersion),
	))
	if err != nil {
		return nil, fmt.Errorf("observability: build resource: %w", err)
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(cfg.SamplingRate)),
		sdktrace.WithResource(res),
	}
	if applied.debugExporter != nil {
		tpOpts = append(tpOpts, sdktrace.WithBatcher(applied.debugExporter))
	}

	provider := sdktrace.NewTracerProvider(tpOpts...)
	return &Tracer{
		provider:        provider,
		tracer:          provider.Tracer(DefaultServiceName),
		debugExporter:   applied.debugExporter,
		capturePayloads: applied.capturePayloads,
	}, nil
}

func newSpanExporter(ctx context.Context, cfg *TracingConfig) (sdktrace.SpanExporter, error) {
	switch cfg.Exporter {
	case "otlp":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.IsInsecure() {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		if len(cfg.Headers) > 0 {
			opts = append(opts, otlptracegrpc.WithHeaders(cfg.Headers))
		}
		if cfg.Timeout > 0 {
			opts = append(opts, otlptracegrpc.WithTimeout(cfg.Timeout))
		}
		exp, err := otlptracegrpc.New(ctx, opts...)
		if err != nil {
			return nil, fmt.Errorf("observability: create otlp exporter: %w", err)
		}
		return exp, nil
	default: // "stdout" and anything else: dev-friendly fallback.
		exp, err := stdouttrace.New(stdouttrace.WithoutTimestamps())
		if err != nil {
			return nil, fmt.Errorf("observability: create stdout exporter: %w", err)
		}
		return exp, nil
	}
}

// Start begins a generic span named name.
func (t *Tracer) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, noopSpan()
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartTurn spans one orchestrator turn (Orchestrator.ProcessInput).
func (t *Tracer) StartTurn(ctx context.Context, runID, state string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanTurn, attribute.String(AttrRunID, runID), attribute.String(AttrState, state))
}

// StartAgentStep spans one agent invocation.
func (t *Tracer) StartAgentStep(ctx context.Context, actor, state string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanAgentStep, attribute.String(AttrActor, actor), attribute.String(AttrState, state))
}

// StartToolCall spans one tool pipeline execution.
func (t *Tracer) StartToolCall(ctx context.Context, toolName, operation string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanToolCall, attribute.String(AttrToolName, toolName), attribute.String(AttrOperation, operation))
}

// StartDiffApply spans one diff-review apply.
func (t *Tracer) StartDiffApply(ctx context.Context, diffID, filePath string) (context.Context, trace.Span) {
	return t.Start(ctx, SpanDiffApply, attribute.String(AttrDiffID, diffID), attribute.String(AttrFilePath, filePath))
}

// AddPayload attaches a payload attribute to span if payload capture is
// enabled; a no-op otherwise so spans stay small and secret-free by
// default.
func (t *Tracer) AddPayload(span trace.Span, key, value string) {
	if t == nil || !t.capturePayloads || span == nil {
		return
	}
	span.SetAttributes(attribute.String(key, truncateString(value, 2048)))
}

// RecordError records err on span and marks it failed.
func (t *Tracer) RecordError(span trace.Span, err error) {
	if span == nil || err == nil {
		return
	}
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}

// DebugExporter returns the in-memory span exporter, or nil if none was
// configured.
func (t *Tracer) DebugExporter() *DebugExporter {
	if t == nil {
		return nil
	}
	return t.debugExporter
}

// Shutdown flushes and stops the underlying TracerProvider.
func (t *Tracer) Shutdown(ctx context.Context) error {
	if t == nil || t.provider == nil {
		return nil
	}
	return t.provider.Shutdown(ctx)
}

func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
