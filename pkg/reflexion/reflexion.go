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

// Package reflexion runs the QA agent with bounded retry, turning a
// failing attempt into structured feedback for the builder agent. A
// structured analyzer can replace heuristicAnalyzer through the
// Analyzer seam without touching the retry loop.
package reflexion

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/statemachine"
)

// DefaultMaxRetries is the default iteration ceiling.
const DefaultMaxRetries = 3

// Analysis is the parsed outcome of one QA agent response.
type Analysis struct {
	Passed      bool
	FailedTests []string
	ErrorLine   string
}

// Analyzer turns a QA agent's raw response into an Analysis. The
// default implementation is heuristic/grammar-based; a structured
// (schema-constrained LLM) analyzer can satisfy the same interface.
type Analyzer interface {
	Analyze(response string) Analysis
}

var (
	successPattern  = regexp.MustCompile(`(?i)tests? (passed|success|pass)\b`)
	failurePattern  = regexp.MustCompile(`(?i)tests? (failed|error|fail)\b`)
	failLinePattern = regexp.MustCompile(`(?m)^(FAIL|ERROR|✗|✖).*$`)
	errorCapture    = regexp.MustCompile(`(?i)(Error|FAIL|AssertionError)[: ](.*)`)
	failedTestName  = regexp.MustCompile(`(?i)^(FAIL|ERROR|✗|✖)\s*(.+)$`)
)

var canonicalHints = []string{"TypeError", "AssertionError", "SyntaxError", "ENOENT"}

// heuristicAnalyzer implements the tolerant pass/fail grammar.
type heuristicAnalyzer struct{}

// NewHeuristicAnalyzer returns the default, regex-based Analyzer.
func NewHeuristicAnalyzer() Analyzer {
	return heuristicAnalyzer{}
}

func (heuristicAnalyzer) Analyze(response string) Analysis {
	if failurePattern.MatchString(response) || failLinePattern.MatchString(response) {
		var failed []string
		for _, line := range failLinePattern.FindAllString(response, -1) {
			if m := failedTestName.FindStringSubmatch(line); len(m) == 3 {
				failed = append(failed, strings.TrimSpace(m[2]))
			}
		}
		errorLine := ""
		if m := errorCapture.FindStringSubmatch(response); len(m) == 3 {
			errorLine = strings.TrimSpace(m[0])
		}
		return Analysis{Passed: false, FailedTests: failed, ErrorLine: errorLine}
	}
	if successPattern.MatchString(response) {
		return Analysis{Passed: true}
	}
	// Neither marker present: treat as a failure with no captured detail
	// rather than silently declaring success.
	return Analysis{Passed: false}
}

// QAAgent invokes the QA agent for one attempt and returns its raw
// response text.
type QAAgent func(ctx context.Context, attempt int) (string, error)

// BuilderAgent invokes the builder agent with accumulated feedback to
// attempt a fix.
type BuilderAgent func(ctx context.Context, feedback string) error

// Transcript appends a message to the run's message history.
type Transcript interface {
	Append(role, content string)
}

// Result is the outcome of Loop.Run.
type Result struct {
	Success  bool
	Attempts int
}

// Loop drives the bounded QA/builder retry cycle.
type Loop struct {
	MaxRetries int
	Analyzer   Analyzer
	QA         QAAgent
	Builder    BuilderAgent
	Machine    *statemachine.Machine
	Bus        *event.Bus
	Transcript Transcript
	Actor      event.Actor
}

// NewLoop builds a Loop, filling in the default max-retries and
// heuristic analyzer when unset.
func NewLoop(qa QAAgent, builder BuilderAgent, machine *statemachine.Machine, bus *event.Bus, transcript Transcript, actor event.Actor) *Loop {
	return &Loop{
		MaxRetries: DefaultMaxRetries,
		Analyzer:   NewHeuristicAnalyzer(),
		QA:         qa,
		Builder:    builder,
		Machine:    machine,
		Bus:        bus,
		Transcript: transcript,
		Actor:      actor,
	}
}

// Run executes the bounded QA/builder retry loop.
func (l *Loop) Run(ctx context.Context) Result {
	maxRetries := l.MaxRetries
	if maxRetries <= 0 {
		maxRetries = DefaultMaxRetries
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		l.emit(event.TypeTestRun, event.Payload{
			"framework":   "reflexion",
			"testPattern": fmt.Sprintf("attempt-%d", attempt),
		})

		response, err := l.QA(ctx, attempt)
		if err != nil {
			response = err.Error()
		}
		analysis := l.Analyzer.Analyze(response)

		if analysis.Passed {
			l.emit(event.TypeTestResult, event.Payload{"passed": 1, "failed": 0})
			_, _ = l.Machine.Transition(statemachine.Review, "qa passed")
			return Result{Success: true, Attempts: attempt}
		}

		l.emit(event.TypeTestResult, event.Payload{"passed": 0, "failed": 1})

		if attempt == maxRetries {
			l.emit(event.TypeError, event.Payload{"code": "REFLEXION_MAX_RETRIES", "recoverable": false})
			return Result{Success: false, Attempts: attempt}
		}

		feedback := composeFeedback(analysis)
		if l.Transcript != nil {
			l.Transcript.Append("system", feedback)
		}
		if l.Builder != nil {
			_ = l.Builder(ctx, feedback)
		}
	}

	return Result{Success: false, Attempts: maxRetries}
}

func composeFeedback(a Analysis) string {
	var sb strings.Builder
	sb.WriteString("QA attempt failed.\n")
	if a.ErrorLine != "" {
		sb.WriteString("Error: ")
		sb.WriteString(a.ErrorLine)
		sb.WriteString("\n")
	}
	if len(a.FailedTests) > 0 {
		sb.WriteString("Failed tests: ")
		sb.WriteString(strings.Join(a.FailedTests, ", "))
		sb.WriteString("\n")
	}
	var hints []string
	for _, h := range canonicalHints {
		if strings.Contains(a.ErrorLine, h) {
			hints = append(hints, h)
		}
	}
	if len(hints) > 0 {
		sb.WriteString("Hints: ")
		sb.WriteString(strings.Join(hints, ", "))
		sb.WriteString("\n")
	}
	return sb.String()
}

func (l *Loop) emit(typ event.Type, payload event.Payload) {
	if l.Bus == nil {
		return
	}
	_, _ = l.Bus.Emit(typ, payload, event.EmitOptions{Actor: l.Actor})
}
