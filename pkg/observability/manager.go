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
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// Manager owns the lifecycle of the two observability instruments the
// orchestrator wires around a run: the Tracer (turn/agent-step/
// tool-call/diff-apply spans) and the Metrics registry (tool/policy/
// reflexion/quota/diff/state-transition counters and histograms). Either may be nil when disabled; every
// accessor is nil-receiver safe so a caller that never configured
// observability can still call through Manager unconditionally.
type Manager struct {
	config  *Config
	tracer  *Tracer
	metrics *Metrics
}

// NewManager builds a Manager from cfg, initializing whichever of
// tracing/metrics is enabled and rolling back anything already started
// if a later stage fails.
func NewManager(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		return &Manager{}, nil
	}

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid observability config: %w", err)
	}

	m := &Manager{config: cfg}

	if err := m.initTracer(ctx, cfg); err != nil {
		return nil, err
	}
	if err := m.initMetrics(cfg); err != nil {
		_ = m.shutdownTracer(ctx)
		return nil, err
	}

	return m, nil
}

func (m *Manager) initTracer(ctx context.Context, cfg *Config) error {
	if !cfg.Tracing.Enabled {
		return nil
	}

	var opts []TracerOption
	if cfg.Tracing.IsDebugExporterEnabled() {
		opts = append(opts, WithDebugExporter(NewDebugExporter()))
	}
	if cfg.Tracing.CapturePayloads {
		opts = append(opts, WithCapturePayloads(true))
	}

	tracer, err := NewTracer(ctx, &cfg.Tracing, opts...)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	m.tracer = tracer
	slog.Info("observability: turn/agent-step/tool-call/diff-apply tracing initialized",
		"exporter", cfg.Tracing.Exporter,
		"endpoint", cfg.Tracing.Endpoint,
		"sampling_rate", cfg.Tracing.SamplingRate,
	)
	return nil
}

func (m *Manager) initMetrics(cfg *Config) error {
	if !cfg.Metrics.Enabled {
		return nil
	}

	metrics, err := NewMetrics(&cfg.Metrics)
	if err != nil {
		return fmt.Errorf("failed to initialize metrics: %w", err)
	}
	m.metrics = metrics
	slog.Info("observability: tool/policy/reflexion/quota/diff/state metrics initialized",
		"endpoint", cfg.Metrics.Endpoint,
		"namespace", cfg.Metrics.Namespace,
	)
	return nil
}

func (m *Manager) shutdownTracer(ctx context.Context) error {
	if m == nil || m.tracer == nil {
		return nil
	}
	err := m.tracer.Shutdown(ctx)
	slog.Info("observability: tracing shutdown complete")
	return err
}

func (m *Manager) shutdownMetrics(ctx context.Context) error {
	if m == nil || m.metrics == nil {
		return nil
	}
	return m.metrics.Shutdown(ctx)
}

// Tracer returns the tracer instance, or nil if tracing is disabled.
func (m *Manager) Tracer() *Tracer {
	if m == nil {
		return nil
	}
	return m.tracer
}

// Metrics returns the metrics instance, or nil if metrics are disabled.
func (m *Manager) Metrics() *Metrics {
	if m == nil {
		return nil
	}
	return m.metrics
}

// DebugExporter returns the debug span exporter, or nil if not enabled.
func (m *Manager) DebugExporter() *DebugExporter {
	if m == nil || m.tracer == nil {
		return nil
	}
	return m.tracer.DebugExporter()
}

// MetricsHandler returns an HTTP handler for the metrics endpoint.
func (m *Manager) MetricsHandler() http.Handler {
	if m == nil || m.metrics == nil {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("metrics not enabled"))
		})
	}
	return m.metrics.Handler()
}

// MetricsEndpoint returns the configured metrics endpoint path.
func (m *Manager) MetricsEndpoint() string {
	if m == nil || m.config == nil {
		return DefaultMetricsPath
	}
	return m.config.Metrics.Endpoint
}

// TracingEnabled returns whether tracing is enabled.
func (m *Manager) TracingEnabled() bool {
	return m != nil && m.tracer != nil
}

// MetricsEnabled returns whether metrics are enabled.
func (m *Manager) MetricsEnabled() bool {
	return m != nil && m.metrics != nil
}

// Shutdown gracefully shuts down whichever instruments were started,
// always attempting both regardless of whether the other failed.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m == nil {
		return nil
	}

	tracerErr := m.shutdownTracer(ctx)
	metricsErr := m.shutdownMetrics(ctx)

	return errors.Join(tracerErr, metricsErr)
}

// NewFromConfig creates a Manager with defaults from a configuration
// pointer. Useful when the config might be nil.
func NewFromConfig(ctx context.Context, cfg *Config) (*Manager, error) {
	if cfg == nil {
		return &Manager{}, nil
	}
	return NewManager(ctx, cfg)
}

// MustNewManager creates a Manager and panics on error. Useful for
// initialization in main() when errors are fatal.
func MustNewManager(ctx context.Context, cfg *Config) *Manager {
	m, err := NewManager(ctx, cfg)
	if err != nil {
		panic(fmt.Sprintf("failed to create observability manager: %v", err))
	}
	return m
}
