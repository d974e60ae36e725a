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
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel/attribute"
	otelprometheus "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

func attrString(key, value string) attribute.KeyValue {
	return attribute.String(key, value)
}

// Metrics records counters and histograms for the engine's own gates
// and loops: tool pipeline decisions, reflexion attempts,
// quota checks, and diff review outcomes. Instruments are created
// through the standard go.opentelemetry.io/otel/metric API; readings
// are bridged into a Prometheus registry by otel/exporters/prometheus
// and served over HTTP by prometheus/client_golang's promhttp, so the
// same instrumentation works whether the rest of a deployment consumes
// OTLP metrics or scrapes Prometheus directly.
type Metrics struct {
	config   *MetricsConfig
	registry *prometheus.Registry
	provider *sdkmetric.MeterProvider

	toolCallsTotal    metric.Int64Counter
	toolCallDuration  metric.Float64Histogram
	policyDecisions   metric.Int64Counter
	reflexionAttempts metric.Int64Counter
	reflexionOutcome  metric.Int64Counter
	quotaChecks       metric.Int64Counter
	diffReviews       metric.Int64Counter
	stateTransitions  metric.Int64Counter
}

// NewMetrics creates a new Metrics instance from configuration. Returns
// (nil, nil) when metrics are disabled so callers can pass the result
// straight through to record calls (all Metrics methods are nil-safe).
func NewMetrics(cfg *MetricsConfig) (*Metrics, error) {
	if cfg == nil || !cfg.Enabled {
		return nil, nil
	}
	cfg.SetDefaults()

	registry := prometheus.NewRegistry()
	exporter, err := otelprometheus.New(otelprometheus.WithRegisterer(registry), otelprometheus.WithNamespace(cfg.Namespace))
	if err != nil {
		return nil, fmt.Errorf("observability: create prometheus exporter: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	meter := provider.Meter(DefaultServiceName)

	m := &Metrics{config: cfg, registry: registry, provider: provider}

	if m.toolCallsTotal, err = meter.Int64Counter(
		"toolpipeline.calls_total",
		metric.WithDescription("Total number of tool pipeline executions, by tool and outer status."),
	); err != nil {
		return nil, err
	}
	if m.toolCallDuration, err = meter.Float64Histogram(
		"toolpipeline.call_duration_seconds",
		metric.WithDescription("Tool handler execution duration in seconds (allowed calls only)."),
	); err != nil {
		return nil, err
	}
	if m.policyDecisions, err = meter.Int64Counter(
		"toolpipeline.gate_decisions_total",
		metric.WithDescription("Gate decisions made by the tool execution pipeline, by gate rule and decision."),
	); err != nil {
		return nil, err
	}
	if m.reflexionAttempts, err = meter.Int64Counter(
		"reflexion.attempts_total",
		metric.WithDescription("Total number of QA reflexion attempts."),
	); err != nil {
		return nil, err
	}
	if m.reflexionOutcome, err = meter.Int64Counter(
		"reflexion.outcomes_total",
		metric.WithDescription("Reflexion loop terminal outcomes (success or exhausted)."),
	); err != nil {
		return nil, err
	}
	if m.quotaChecks, err = meter.Int64Counter(
		"quota.checks_total",
		metric.WithDescription("Quota checks, by resolved result type."),
	); err != nil {
		return nil, err
	}
	if m.diffReviews, err = meter.Int64Counter(
		"diffreview.decisions_total",
		metric.WithDescription("Hunk-level diff review decisions, by decision kind."),
	); err != nil {
		return nil, err
	}
	if m.stateTransitions, err = meter.Int64Counter(
		"statemachine.transitions_total",
		metric.WithDescription("Workflow state transitions, by source and target state."),
	); err != nil {
		return nil, err
	}

	return m, nil
}

// RecordToolCall records one pipeline execution outcome.
func (m *Metrics) RecordToolCall(toolName, status string, duration time.Duration) {
	if m == nil {
		return
	}
	ctx := context.Background()
	m.toolCallsTotal.Add(ctx, 1, metric.WithAttributes(attrString("tool_name", toolName), attrString("status", status)))
	if status == "success" {
		m.toolCallDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrString("tool_name", toolName)))
	}
}

// RecordPolicyDecision records one gate evaluation.
func (m *Metrics) RecordPolicyDecision(rule, decision string) {
	if m == nil {
		return
	}
	m.policyDecisions.Add(context.Background(), 1, metric.WithAttributes(attrString("rule", rule), attrString("decision", decision)))
}

// RecordReflexionAttempt records one QA attempt within the reflexion
// loop.
func (m *Metrics) RecordReflexionAttempt() {
	if m == nil {
		return
	}
	m.reflexionAttempts.Add(context.Background(), 1)
}

// RecordReflexionOutcome records the loop's terminal outcome ("success"
// or "exhausted").
func (m *Metrics) RecordReflexionOutcome(outcome string) {
	if m == nil {
		return
	}
	m.reflexionOutcome.Add(context.Background(), 1, metric.WithAttributes(attrString("outcome", outcome)))
}

// RecordQuotaCheck records one quota resolution by its result type.
func (m *Metrics) RecordQuotaCheck(resultType string) {
	if m == nil {
		return
	}
	m.quotaChecks.Add(context.Background(), 1, metric.WithAttributes(attrString("result_type", resultType)))
}

// RecordDiffReview records one hunk-level approve/reject decision.
func (m *Metrics) RecordDiffReview(decision string) {
	if m == nil {
		return
	}
	m.diffReviews.Add(context.Background(), 1, metric.WithAttributes(attrString("decision", decision)))
}

// RecordStateTransition records one legal (or attempted) state
// transition.
func (m *Metrics) RecordStateTransition(from, to string) {
	if m == nil {
		return
	}
	m.stateTransitions.Add(context.Background(), 1, metric.WithAttributes(attrString("from", from), attrString("to", to)))
}

// Handler returns an HTTP handler serving the Prometheus metrics
// endpoint that otel/exporters/prometheus populates.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying Prometheus registry.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Shutdown flushes and stops the underlying MeterProvider.
func (m *Metrics) Shutdown(ctx context.Context) error {
	if m == nil || m.provider == nil {
		return nil
	}
	return m.provider.Shutdown(ctx)
}
