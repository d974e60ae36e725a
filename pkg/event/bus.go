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

package event

import (
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrBusClosed is returned by Emit once the bus has been closed.
var ErrBusClosed = errors.New("event: bus is closed")

// maxListenersWarnThreshold is advisory: past this many handlers for a
// single type, the bus logs a warning but keeps accepting subscriptions.
const maxListenersWarnThreshold = 64

// Handler observes one emitted envelope. A handler that panics is
// recovered, logged, and does not stop dispatch to other handlers.
type Handler func(Envelope)

// Sink optionally receives every envelope for write-through persistence.
// Sink failures are logged and swallowed; the bus never blocks on them.
type Sink interface {
	Write(Envelope) error
}

// EmitOptions customizes a single Emit call; all fields are optional.
type EmitOptions struct {
	Actor          Actor
	CorrelationID  string
	RedactionLevel RedactionLevel
}

// Bus is a single-producer, many-consumer in-process event bus with
// automatic redaction and an append-only in-memory log.
//
// A Bus belongs to exactly one run. It is not safe to emit from
// concurrent goroutines without external serialization; the
// orchestrator is the sole logical producer per run. Subscribe and
// reads of Log are safe to call concurrently with Emit.
type Bus struct {
	mu        sync.Mutex
	runID     string
	state     func() string
	log       []Envelope
	handlers  map[Type][]subscription
	wildcard  []subscription
	sink      Sink
	closed    bool
	nextSubID int
	logger    *slog.Logger
}

// subscription pairs a handler with a stable id so unsubscribing one
// handler cannot displace another registered for the same type.
type subscription struct {
	id int
	fn Handler
}

// NewBus creates a Bus for runID. state is called at emission time to
// stamp the envelope with the workflow state in effect; it lets the bus
// stay decoupled from the orchestrator's state machine type.
func NewBus(runID string, state func() string, sink Sink, logger *slog.Logger) *Bus {
	if logger == nil {
		logger = slog.Default()
	}
	return &Bus{
		runID:    runID,
		state:    state,
		handlers: make(map[Type][]subscription),
		sink:     sink,
		logger:   logger,
	}
}

// Emit constructs, logs, persists (best-effort), and dispatches an
// envelope. It always returns a fully-populated envelope unless the bus
// is closed, in which case it returns ErrBusClosed without mutation.
func (b *Bus) Emit(typ Type, payload Payload, opts EmitOptions) (Envelope, error) {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return Envelope{}, ErrBusClosed
	}

	actor := opts.Actor
	if actor == "" {
		actor = ActorSystem
	}
	correlationID := opts.CorrelationID
	if correlationID == "" {
		correlationID = uuid.NewString()
	}
	if payload == nil {
		payload = Payload{}
	}

	level := ResolveLevel(payload, opts.RedactionLevel)
	sanitized := payload
	if level != RedactionNone {
		sanitized = Redact(payload, level).(Payload)
	}

	st := ""
	if b.state != nil {
		st = b.state()
	}

	env := Envelope{
		EventVersion:   Version,
		RunID:          b.runID,
		EventID:        uuid.NewString(),
		Timestamp:      time.Now().UTC().Format(time.RFC3339Nano),
		State:          st,
		Actor:          actor,
		Type:           typ,
		CorrelationID:  correlationID,
		Payload:        sanitized,
		RedactionLevel: level,
	}

	b.log = append(b.log, env)
	handlers := append([]subscription(nil), b.handlers[typ]...)
	wildcard := append([]subscription(nil), b.wildcard...)
	sink := b.sink
	b.mu.Unlock()

	if sink != nil {
		if err := sink.Write(env); err != nil {
			b.logger.Warn("event: sink write failed", "error", err, "type", typ)
		}
	}

	dispatch(handlers, env, b.logger)
	dispatch(wildcard, env, b.logger)

	return env, nil
}

func dispatch(handlers []subscription, env Envelope, logger *slog.Logger) {
	for _, h := range handlers {
		invokeHandler(h.fn, env, logger)
	}
}

func invokeHandler(h Handler, env Envelope, logger *slog.Logger) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("event: handler panicked", "recover", r, "type", env.Type)
		}
	}()
	h(env)
}

// On registers handler for typ, returning an unsubscribe function.
func (b *Bus) On(typ Type, handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.handlers[typ] = append(b.handlers[typ], subscription{id: id, fn: handler})
	if len(b.handlers[typ]) > maxListenersWarnThreshold {
		b.logger.Warn("event: many listeners registered for type", "type", typ, "count", len(b.handlers[typ]))
	}
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.handlers[typ] = removeSubscription(b.handlers[typ], id)
	}
}

// OnAll registers a wildcard handler invoked for every emitted type.
func (b *Bus) OnAll(handler Handler) func() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.nextSubID++
	id := b.nextSubID
	b.wildcard = append(b.wildcard, subscription{id: id, fn: handler})
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.wildcard = removeSubscription(b.wildcard, id)
	}
}

func removeSubscription(subs []subscription, id int) []subscription {
	for i, s := range subs {
		if s.id == id {
			return append(subs[:i], subs[i+1:]...)
		}
	}
	return subs
}

// Once registers handler to fire at most once for typ.
func (b *Bus) Once(typ Type, handler Handler) {
	var unsubscribe func()
	unsubscribe = b.On(typ, func(env Envelope) {
		unsubscribe()
		handler(env)
	})
}

// Log returns a copy of the envelopes emitted so far, in emission order.
func (b *Bus) Log() []Envelope {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Envelope(nil), b.log...)
}

// Close marks the bus closed; further Emit calls fail with ErrBusClosed.
// Close does not clear the log or unregister handlers.
func (b *Bus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
}
