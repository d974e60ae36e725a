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
	"sync"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// debugRingSize bounds how many of the engine's own spans DebugExporter
// retains. There is no web UI in this module to page through more than
// this; the ring exists purely so an
// operator or test can ask "what did the last turn/tool-call/diff-apply
// look like" without standing up a real trace backend.
const debugRingSize = 256

// DebugExporter is an in-memory sdktrace.SpanExporter that retains only
// the four span kinds this engine emits (SpanTurn, SpanAgentStep,
// SpanToolCall, SpanDiffApply), indexed by run ID for correlation with
// Orchestrator.RunID. It is a deliberately small diagnostic shim, not a
// general-purpose trace store: unlike a real backend it drops anything
// older than debugRingSize and exposes only the two queries this
// engine's own diagnostics need (by run, and the most recent N).
type DebugExporter struct {
	mu      sync.Mutex
	ring    [debugRingSize]*DebugSpan
	next    int
	filled  bool
	byRunID map[string][]*DebugSpan
}

// DebugSpan is the captured shape of one retained span.
type DebugSpan struct {
	TraceID    string
	SpanID     string
	Name       string
	RunID      string
	DurationMs float64
	Status     string
	Attributes map[string]string
}

// NewDebugExporter returns an empty DebugExporter.
func NewDebugExporter() *DebugExporter {
	return &DebugExporter{byRunID: make(map[string][]*DebugSpan)}
}

// ExportSpans implements sdktrace.SpanExporter, retaining only spans
// named after this engine's own span kinds.
func (e *DebugExporter) ExportSpans(ctx context.Context, spans []sdktrace.ReadOnlySpan) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, span := range spans {
		if !isEngineSpan(span.Name()) {
			continue
		}
		ds := convertSpan(span)
		e.evictLocked(e.ring[e.next])
		e.ring[e.next] = ds
		e.next = (e.next + 1) % debugRingSize
		if e.next == 0 {
			e.filled = true
		}
		if ds.RunID != "" {
			e.byRunID[ds.RunID] = append(e.byRunID[ds.RunID], ds)
		}
	}
	return nil
}

// evictLocked drops old's run-ID index entry when the ring overwrites
// it. Caller must hold e.mu.
func (e *DebugExporter) evictLocked(old *DebugSpan) {
	if old == nil || old.RunID == "" {
		return
	}
	kept := e.byRunID[old.RunID][:0]
	for _, s := range e.byRunID[old.RunID] {
		if s != old {
			kept = append(kept, s)
		}
	}
	if len(kept) == 0 {
		delete(e.byRunID, old.RunID)
	} else {
		e.byRunID[old.RunID] = kept
	}
}

func isEngineSpan(name string) bool {
	switch name {
	case SpanTurn, SpanAgentStep, SpanToolCall, SpanDiffApply:
		return true
	default:
		return false
	}
}

func convertSpan(span sdktrace.ReadOnlySpan) *DebugSpan {
	durationMs := float64(span.EndTime().UnixNano()-span.StartTime().UnixNano()) / 1e6

	ds := &DebugSpan{
		TraceID:    span.SpanContext().TraceID().String(),
		SpanID:     span.SpanContext().SpanID().String(),
		Name:       span.Name(),
		DurationMs: durationMs,
		Status:     span.Status().Code.String(),
		Attributes: make(map[string]string, len(span.Attributes())),
	}
	for _, attr := range span.Attributes() {
		key := string(attr.Key)
		ds.Attributes[key] = attr.Value.AsString()
		if key == AttrRunID {
			ds.RunID = attr.Value.AsString()
		}
	}
	return ds
}

// Shutdown implements sdktrace.SpanExporter.
func (e *DebugExporter) Shutdown(ctx context.Context) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ring = [debugRingSize]*DebugSpan{}
	e.next = 0
	e.filled = false
	e.byRunID = make(map[string][]*DebugSpan)
	return nil
}

// ByRunID returns the retained spans correlated with runID, oldest
// first.
func (e *DebugExporter) ByRunID(runID string) []*DebugSpan {
	e.mu.Lock()
	defer e.mu.Unlock()
	return append([]*DebugSpan(nil), e.byRunID[runID]...)
}

// Recent returns up to the last n retained spans across all runs, most
// recent last.
func (e *DebugExporter) Recent(n int) []*DebugSpan {
	e.mu.Lock()
	defer e.mu.Unlock()

	total := e.next
	if e.filled {
		total = debugRingSize
	}
	if n <= 0 || n > total {
		n = total
	}

	result := make([]*DebugSpan, 0, n)
	for i := total - n; i < total; i++ {
		idx := i
		if e.filled {
			idx = (e.next + i) % debugRingSize
		}
		if s := e.ring[idx]; s != nil {
			result = append(result, s)
		}
	}
	return result
}

// Count returns the number of spans currently retained.
func (e *DebugExporter) Count() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.filled {
		return debugRingSize
	}
	return e.next
}

// Ensure DebugExporter implements SpanExporter.
var _ sdktrace.SpanExporter = (*DebugExporter)(nil)
