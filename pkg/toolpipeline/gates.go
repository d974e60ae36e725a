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

// Package toolpipeline mediates every tool invocation through the
// Guardian -> Policy -> Approval -> Handler gate sequence and emits the
// prescribed tool.call / policy.* / tool.result event sequence.
package toolpipeline

import (
	"regexp"
	"strings"

	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/statemachine"
	"github.com/agentrt/conductor/pkg/tool"
)

// DefaultDangerousPatterns are the regexes the dangerous-command gate
// checks an exec command against. A single named policy object so the
// pipeline, demo tools, and tests all share one pattern set.
var DefaultDangerousPatterns = []*regexp.Regexp{
	regexp.MustCompile(`rm\s+(-rf|-fr|--recursive)\s+/`),
	regexp.MustCompile(`\bsudo\b`),
	regexp.MustCompile(`curl.*\|\s*(bash|sh)\b`),
	regexp.MustCompile(`wget.*\|\s*(bash|sh)\b`),
	regexp.MustCompile(`:\(\)\s*\{\s*:\|:\s*&\s*\}\s*;`),
	regexp.MustCompile(`--no-preserve-root`),
}

// FastAllowPrefixes are exec command prefixes pre-approved in fast
// approval mode.
var FastAllowPrefixes = []*regexp.Regexp{
	regexp.MustCompile(`^(npm|pnpm|yarn)\s+(test|run\s+test)\b`),
	regexp.MustCompile(`^git\s+(status|diff|log)\b`),
	regexp.MustCompile(`^(ls|dir|pwd|echo)\b`),
}

// ApprovalMode selects which operations the pipeline auto-allows versus
// gates for explicit approval.
type ApprovalMode string

const (
	ModeStrict   ApprovalMode = "strict"
	ModeBalanced ApprovalMode = "balanced"
	ModeFast     ApprovalMode = "fast"
)

// Decision is the outcome of gate evaluation.
type Decision string

const (
	DecisionAllow         Decision = "allow"
	DecisionBlock         Decision = "block"
	DecisionNeedsApproval Decision = "needs_approval"
)

// GateResult carries the decision and, for block/needs_approval, the
// human-readable reason.
type GateResult struct {
	Decision Decision
	Reason   string
	Rule     string
}

// ExecContext is the execution context the pipeline evaluates a call
// against.
type ExecContext struct {
	State            statemachine.State
	ApprovalMode     ApprovalMode
	WorkingDirectory string
	UserApproved     bool
	Operation        tool.Operation
}

// isDangerousExec reports whether command matches any dangerous pattern.
func isDangerousExec(command string) (bool, string) {
	for _, re := range DefaultDangerousPatterns {
		if re.MatchString(command) {
			return true, re.String()
		}
	}
	return false, ""
}

// isFastAllowed reports whether command is pre-approved in fast mode.
func isFastAllowed(command string) bool {
	trimmed := strings.TrimSpace(command)
	for _, re := range FastAllowPrefixes {
		if re.MatchString(trimmed) {
			return true
		}
	}
	return false
}

// evaluateGates runs gates 1-4 in order, short-circuiting on the first
// gate that fails.
func evaluateGates(def tool.Definition, args tool.Arguments, ctx ExecContext) GateResult {
	// Gate 1: state gate.
	if ctx.Operation != tool.OpRead && statemachine.WriteBlocked(ctx.State) {
		return GateResult{Decision: DecisionBlock, Rule: "state", Reason: "state " + string(ctx.State) + " blocks non-read operations"}
	}

	// Gate 2: dangerous-command gate (exec only).
	if ctx.Operation == tool.OpExec {
		if command, ok := extractCommand(args); ok {
			if dangerous, pattern := isDangerousExec(command); dangerous {
				return GateResult{Decision: DecisionBlock, Rule: "dangerous_command", Reason: "command matches denied pattern " + pattern}
			}
		}
	}

	// Gate 3: guardian gate.
	if ctx.Operation != tool.OpRead && event.ScanSensitive(map[string]any(args)) {
		return GateResult{Decision: DecisionBlock, Rule: "guardian", Reason: "arguments contain sensitive data"}
	}

	// Gate 4: approval gate.
	if requiresApproval(def, args, ctx) && !ctx.UserApproved {
		return GateResult{Decision: DecisionNeedsApproval, Rule: "approval", Reason: "operation requires approval under " + string(ctx.ApprovalMode) + " mode"}
	}

	return GateResult{Decision: DecisionAllow}
}

func requiresApproval(def tool.Definition, args tool.Arguments, ctx ExecContext) bool {
	if def.RequiresApproval {
		return true
	}
	switch ctx.ApprovalMode {
	case ModeStrict:
		return ctx.Operation != tool.OpRead
	case ModeBalanced:
		switch ctx.Operation {
		case tool.OpWrite, tool.OpDelete, tool.OpExec:
			return true
		default:
			return false
		}
	case ModeFast:
		if ctx.Operation != tool.OpExec {
			return false
		}
		if command, ok := extractCommand(args); ok && isFastAllowed(command) {
			return false
		}
		return true
	default:
		return ctx.Operation != tool.OpRead
	}
}

func extractCommand(args tool.Arguments) (string, bool) {
	for _, key := range []string{"command", "cmd"} {
		if v, ok := args[key]; ok {
			if s, ok := v.(string); ok {
				return s, true
			}
		}
	}
	return "", false
}
