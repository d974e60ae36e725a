package observability

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewMetricsDisabledReturnsNil(t *testing.T) {
	m, err := NewMetrics(&MetricsConfig{Enabled: false})
	require.NoError(t, err)
	assert.Nil(t, m)
}

func TestNewMetricsNilSafeRecording(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordToolCall("fs_write", "success", 10*time.Millisecond)
		m.RecordPolicyDecision("dangerous_command", "block")
		m.RecordReflexionAttempt()
		m.RecordReflexionOutcome("success")
		m.RecordQuotaCheck("degrade")
		m.RecordDiffReview("approve")
		m.RecordStateTransition("BUILD", "QA")
	})
}

func TestNewMetricsEnabledRecordsWithoutPanic(t *testing.T) {
	cfg := &MetricsConfig{Enabled: true}
	m, err := NewMetrics(cfg)
	require.NoError(t, err)
	require.NotNil(t, m)

	m.RecordToolCall("exec_shell", "success", 5*time.Millisecond)
	m.RecordPolicyDecision("state_gate", "allow")
	m.RecordQuotaCheck("block")
	m.RecordDiffReview("reject")
	m.RecordStateTransition("PRD_INTAKE", "SCOPE_CLARIFICATION")

	assert.NotNil(t, m.Registry())
	assert.NotNil(t, m.Handler())
}

func TestNoopManagerIsInert(t *testing.T) {
	m := NoopManager()
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.Nil(t, m.Tracer())
	assert.Nil(t, m.Metrics())
	require.NoError(t, m.Shutdown(context.Background()))
}

func TestNilTracerSpansAreSafe(t *testing.T) {
	var tr *Tracer
	ctx := context.Background()

	_, span := tr.StartTurn(ctx, "run-1", "BUILD")
	defer span.End()

	_, span2 := tr.StartToolCall(ctx, "fs_write", "write")
	defer span2.End()

	assert.NotPanics(t, func() {
		tr.AddPayload(span, "diff", "some content")
		tr.RecordError(span, assert.AnError)
	})
}

func TestTruncateString(t *testing.T) {
	tests := []struct {
		input    string
		maxLen   int
		expected string
	}{
		{"hello", 10, "hello"},
		{"hello world", 5, "hello..."},
		{"", 5, ""},
		{"test", 4, "test"},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, truncateString(tt.input, tt.maxLen))
	}
}

func TestManagerFromNilConfig(t *testing.T) {
	m, err := NewManager(context.Background(), nil)
	require.NoError(t, err)
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
}

func TestManagerFromDisabledConfig(t *testing.T) {
	cfg := &Config{}
	m, err := NewManager(context.Background(), cfg)
	require.NoError(t, err)
	assert.False(t, m.TracingEnabled())
	assert.False(t, m.MetricsEnabled())
	assert.Equal(t, DefaultMetricsPath, m.MetricsEndpoint())
}
