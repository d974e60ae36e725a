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

// Package event implements the versioned event envelope and in-process
// publish/subscribe bus that every side effect in the runtime flows
// through, including automatic redaction of sensitive payloads.
package event

import "fmt"

// Version is the only envelope schema version this package produces or
// accepts on deserialization.
const Version = "v1"

// Type is the closed set of event types the runtime may emit.
type Type string

const (
	TypeTurnStart          Type = "turn.start"
	TypeTurnEnd            Type = "turn.end"
	TypeAgentStart         Type = "agent.start"
	TypeAgentStop          Type = "agent.stop"
	TypeModelCall          Type = "model.call"
	TypeModelResult        Type = "model.result"
	TypeToolCall           Type = "tool.call"
	TypeToolResult         Type = "tool.result"
	TypeDiffProposed       Type = "diff.proposed"
	TypeDiffApproved       Type = "diff.approved"
	TypeDiffRejected       Type = "diff.rejected"
	TypeDiffApplied        Type = "diff.applied"
	TypeDiffRolledBack     Type = "diff.rolled_back"
	TypeDiffHunkApproved   Type = "diff.hunk.approved"
	TypeDiffHunkRejected   Type = "diff.hunk.rejected"
	TypePolicyWarn         Type = "policy.warn"
	TypePolicyBlock        Type = "policy.block"
	TypeTestRun            Type = "test.run"
	TypeTestResult         Type = "test.result"
	TypeCheckpointSaved    Type = "checkpoint.saved"
	TypeCheckpointRestored Type = "checkpoint.restored"
	TypeStateTransition    Type = "state.transition"
	TypeError              Type = "error"
	TypeUserInput          Type = "user.input"
	TypeUserApproval       Type = "user.approval"
)

// Actor is the closed set of event originators.
type Actor string

const (
	ActorUser          Actor = "user"
	ActorPlanAgent     Actor = "plan_agent"
	ActorBuilderAgent  Actor = "builder_agent"
	ActorQAAgent       Actor = "qa_agent"
	ActorReviewAgent   Actor = "review_agent"
	ActorRefactorAgent Actor = "refactor_agent"
	ActorSystem        Actor = "system"
)

// RedactionLevel is the coarseness of sensitive-value masking applied to
// an envelope's payload before subscribers observe it.
type RedactionLevel string

const (
	RedactionNone    RedactionLevel = "none"
	RedactionPartial RedactionLevel = "partial"
	RedactionStrict  RedactionLevel = "strict"
)

// Payload is a type-dependent, JSON-serializable map. Concrete event
// types carry their own documented key sets (see doc.go); the bus treats
// the payload opaquely except for the redaction sweep.
type Payload map[string]any

// Envelope is an immutable, fully-populated record of one emitted event.
type Envelope struct {
	EventVersion   string         `json:"eventVersion"`
	RunID          string         `json:"runId"`
	EventID        string         `json:"eventId"`
	Timestamp      string         `json:"timestamp"`
	State          string         `json:"state"`
	Actor          Actor          `json:"actor"`
	Type           Type           `json:"type"`
	CorrelationID  string         `json:"correlationId"`
	Payload        Payload        `json:"payload"`
	RedactionLevel RedactionLevel `json:"redactionLevel"`
}

// ErrInvalidEnvelope is returned by Validate/FromJSON when a decoded
// envelope is missing a structural field or carries an unknown version.
var ErrInvalidEnvelope = fmt.Errorf("event: invalid envelope")
