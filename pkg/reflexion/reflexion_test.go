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

package reflexion_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/reflexion"
	"github.com/agentrt/conductor/pkg/statemachine"
)

type recordingTranscript struct {
	messages []string
}

func (r *recordingTranscript) Append(role, content string) {
	r.messages = append(r.messages, role+": "+content)
}

func TestAnalyzeRecognizesSuccessMarker(t *testing.T) {
	a := reflexion.NewHeuristicAnalyzer()
	got := a.Analyze("All tests passed")
	assert.True(t, got.Passed)
}

func TestAnalyzeRecognizesFailureMarkerAndCapturesDetail(t *testing.T) {
	a := reflexion.NewHeuristicAnalyzer()
	got := a.Analyze("tests failed\nFAIL: cart_test.go\nAssertionError: expected 3 got 2")
	assert.False(t, got.Passed)
	assert.Contains(t, got.FailedTests, "cart_test.go")
	assert.Contains(t, got.ErrorLine, "AssertionError")
}

func TestLoopSucceedsOnFirstPassingAttempt(t *testing.T) {
	m := statemachine.New(statemachine.QA)
	bus := event.NewBus("run-1", func() string { return string(m.Current()) }, nil, nil)
	qaCalls := 0
	loop := reflexion.NewLoop(
		func(ctx context.Context, attempt int) (string, error) {
			qaCalls++
			return "tests passed", nil
		},
		func(ctx context.Context, feedback string) error { return nil },
		m, bus, nil, event.ActorQAAgent,
	)

	res := loop.Run(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 1, qaCalls)
	assert.Equal(t, statemachine.Review, m.Current())
}

func TestLoopRetriesWithFeedbackThenSucceeds(t *testing.T) {
	m := statemachine.New(statemachine.QA)
	bus := event.NewBus("run-1", func() string { return string(m.Current()) }, nil, nil)
	transcript := &recordingTranscript{}
	builderCalls := 0
	loop := reflexion.NewLoop(
		func(ctx context.Context, attempt int) (string, error) {
			if attempt < 2 {
				return "tests failed\nFAIL: a_test.go\nTypeError: x is not a function", nil
			}
			return "tests passed", nil
		},
		func(ctx context.Context, feedback string) error {
			builderCalls++
			assert.Contains(t, feedback, "TypeError")
			return nil
		},
		m, bus, transcript, event.ActorQAAgent,
	)

	res := loop.Run(context.Background())
	assert.True(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, builderCalls)
	assert.Len(t, transcript.messages, 1)
}

func TestLoopExhaustsRetriesAndEmitsError(t *testing.T) {
	m := statemachine.New(statemachine.QA)
	bus := event.NewBus("run-1", func() string { return string(m.Current()) }, nil, nil)
	var errorEvents int
	bus.On(event.TypeError, func(env event.Envelope) { errorEvents++ })

	loop := reflexion.NewLoop(
		func(ctx context.Context, attempt int) (string, error) {
			return "tests failed", nil
		},
		func(ctx context.Context, feedback string) error { return nil },
		m, bus, nil, event.ActorQAAgent,
	)
	loop.MaxRetries = 2

	res := loop.Run(context.Background())
	assert.False(t, res.Success)
	assert.Equal(t, 2, res.Attempts)
	assert.Equal(t, 1, errorEvents)
}

func TestLoopDoesNotTransitionStateOnExhaustion(t *testing.T) {
	m := statemachine.New(statemachine.QA)
	bus := event.NewBus("run-1", func() string { return string(m.Current()) }, nil, nil)
	loop := reflexion.NewLoop(
		func(ctx context.Context, attempt int) (string, error) { return "tests failed", nil },
		func(ctx context.Context, feedback string) error { return nil },
		m, bus, nil, event.ActorQAAgent,
	)
	loop.MaxRetries = 1

	res := loop.Run(context.Background())
	require.False(t, res.Success)
	assert.Equal(t, statemachine.QA, m.Current())
}
