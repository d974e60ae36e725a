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

package event_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/event"
)

func newTestBus() *event.Bus {
	state := "IMPLEMENTING"
	return event.NewBus("run-1", func() string { return state }, nil, nil)
}

func TestEmitPopulatesAllStructuralFields(t *testing.T) {
	b := newTestBus()
	env, err := b.Emit(event.TypeToolCall, event.Payload{"toolName": "fs_write"}, event.EmitOptions{Actor: event.ActorBuilderAgent})
	require.NoError(t, err)

	assert.Equal(t, event.Version, env.EventVersion)
	assert.NotEmpty(t, env.RunID)
	assert.NotEmpty(t, env.EventID)
	assert.NotEmpty(t, env.Timestamp)
	assert.NotEmpty(t, env.State)
	assert.Equal(t, event.ActorBuilderAgent, env.Actor)
	assert.Equal(t, event.TypeToolCall, env.Type)
	assert.NotEmpty(t, env.CorrelationID)
	assert.True(t, event.Validate(env))
}

func TestEmitAfterCloseFails(t *testing.T) {
	b := newTestBus()
	b.Close()
	_, err := b.Emit(event.TypeTurnStart, nil, event.EmitOptions{})
	assert.ErrorIs(t, err, event.ErrBusClosed)
}

func TestSensitivePayloadAutoEscalatesToStrict(t *testing.T) {
	b := newTestBus()
	env, err := b.Emit(event.TypeToolCall, event.Payload{
		"arguments": map[string]any{"api_key": "sk-ant-abcdefghijklmno"},
	}, event.EmitOptions{RedactionLevel: event.RedactionPartial})
	require.NoError(t, err)

	assert.Equal(t, event.RedactionStrict, env.RedactionLevel)
	raw, err := event.ToJSON(env)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "sk-ant-abcdefghijklmno")
}

func TestOrderingToolCallPrecedesPolicyPrecedesResult(t *testing.T) {
	b := newTestBus()
	var order []event.Type
	b.OnAll(func(env event.Envelope) { order = append(order, env.Type) })

	_, _ = b.Emit(event.TypeToolCall, event.Payload{}, event.EmitOptions{})
	_, _ = b.Emit(event.TypePolicyBlock, event.Payload{}, event.EmitOptions{})
	_, _ = b.Emit(event.TypeToolResult, event.Payload{}, event.EmitOptions{})

	require.Len(t, order, 3)
	assert.Equal(t, event.TypeToolCall, order[0])
	assert.Equal(t, event.TypePolicyBlock, order[1])
	assert.Equal(t, event.TypeToolResult, order[2])
}

func TestHandlerPanicDoesNotAbortDispatch(t *testing.T) {
	b := newTestBus()
	secondCalled := false
	b.On(event.TypeError, func(event.Envelope) { panic("boom") })
	b.On(event.TypeError, func(event.Envelope) { secondCalled = true })

	_, err := b.Emit(event.TypeError, event.Payload{}, event.EmitOptions{})
	require.NoError(t, err)
	assert.True(t, secondCalled)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	b := newTestBus()
	count := 0
	unsub := b.On(event.TypeUserInput, func(event.Envelope) { count++ })
	_, _ = b.Emit(event.TypeUserInput, event.Payload{}, event.EmitOptions{})
	unsub()
	_, _ = b.Emit(event.TypeUserInput, event.Payload{}, event.EmitOptions{})

	assert.Equal(t, 1, count)
}

func TestUnsubscribeOutOfOrderKeepsOtherHandlers(t *testing.T) {
	b := newTestBus()
	var first, second, third int
	unsub1 := b.On(event.TypeUserInput, func(event.Envelope) { first++ })
	b.On(event.TypeUserInput, func(event.Envelope) { second++ })
	unsub3 := b.On(event.TypeUserInput, func(event.Envelope) { third++ })

	unsub1()
	unsub3()
	_, _ = b.Emit(event.TypeUserInput, event.Payload{}, event.EmitOptions{})

	assert.Equal(t, 0, first)
	assert.Equal(t, 1, second)
	assert.Equal(t, 0, third)
}

func TestOnceFiresExactlyOnce(t *testing.T) {
	b := newTestBus()
	count := 0
	b.Once(event.TypeUserInput, func(event.Envelope) { count++ })
	_, _ = b.Emit(event.TypeUserInput, event.Payload{}, event.EmitOptions{})
	_, _ = b.Emit(event.TypeUserInput, event.Payload{}, event.EmitOptions{})
	assert.Equal(t, 1, count)
}

func TestFromJSONRejectsWrongVersion(t *testing.T) {
	raw := []byte(`{"eventVersion":"v2","runId":"r","eventId":"e","timestamp":"t","state":"s","actor":"user","type":"turn.start","correlationId":"c","payload":{},"redactionLevel":"none"}`)
	_, err := event.FromJSON(raw)
	assert.ErrorIs(t, err, event.ErrInvalidEnvelope)
}

func TestFromJSONRoundTrip(t *testing.T) {
	b := newTestBus()
	env, err := b.Emit(event.TypeTurnStart, event.Payload{"n": float64(1)}, event.EmitOptions{})
	require.NoError(t, err)

	raw, err := event.ToJSON(env)
	require.NoError(t, err)

	decoded, err := event.FromJSON(raw)
	require.NoError(t, err)
	assert.Equal(t, env.EventID, decoded.EventID)
	assert.True(t, event.Validate(decoded))
}
