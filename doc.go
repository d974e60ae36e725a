// Package conductor provides an event-sourced workflow engine for
// agent-assisted software development.
//
// conductor drives a PRD-to-done software workflow through a finite
// state machine (pkg/statemachine), classifies free-text human
// responses into approve/revise/ask/deny intents in English and
// Turkish (pkg/intent), gates every tool call through a sequence of
// policy checks before it runs (pkg/toolpipeline), reviews code diffs
// hunk by hunk (pkg/diffreview), retries failing QA with structured
// feedback (pkg/reflexion), and resolves per-project usage quotas
// (pkg/quota). Every state change and decision is published as a
// versioned event on an in-process bus (pkg/event) with automatic
// redaction of secrets before persistence.
//
// # Quick Start
//
// Import the orchestrator package to drive a run programmatically:
//
//	import "github.com/agentrt/conductor/pkg/orchestrator"
//
// Or import specific packages for narrower use:
//
//	import (
//	    "github.com/agentrt/conductor/pkg/statemachine"
//	    "github.com/agentrt/conductor/pkg/toolpipeline"
//	    "github.com/agentrt/conductor/pkg/event"
//	)
//
// # Key Features
//
//   - Event-sourced state: every transition and decision is an
//     appended, redacted event, replayable into a checkpoint.
//   - Gated tool execution: state, dangerous-command, secret-scan, and
//     human-approval gates run before any tool handler executes.
//   - Bilingual intent classification with configurable conflict
//     policy for ambiguous natural-language responses.
//   - Hunk-level diff review with a terse selection grammar and a
//     checksum over what was actually approved.
//   - Bounded QA reflexion with structured, tool-agnostic failure
//     feedback.
//   - Pluggable persistence (in-memory or SQL) and checkpoint/resume.
//
// # Alpha Status
//
// conductor is in active development. APIs may change.
package conductor
