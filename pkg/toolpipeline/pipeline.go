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

package toolpipeline

import (
	"context"
	"errors"
	"time"

	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/tool"
)

// ErrUnknownTool is returned by Execute when the requested tool name is
// not registered.
var ErrUnknownTool = errors.New("toolpipeline: unknown tool")

// Status is the outer result status a caller of Execute observes.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusBlocked    Status = "blocked"
	StatusNeedsInput Status = "needs_input"
	StatusError      Status = "error"
)

// ExecutionResult is the outcome of one gated tool invocation.
type ExecutionResult struct {
	Status   Status
	ToolName string
	Message  string
	Policy   PolicyInfo
	Result   *tool.Result
}

// PolicyInfo reports the gate decision that produced the status.
type PolicyInfo struct {
	Decision Decision
	Reason   string
}

// Pipeline mediates tool calls through the four gates and publishes the
// prescribed event sequence to bus.
type Pipeline struct {
	registry *tool.Registry
	bus      *event.Bus
	actor    event.Actor
	now      func() time.Time
}

// New creates a Pipeline bound to registry and bus. actor tags every
// emitted event (typically the agent currently driving the turn).
func New(registry *tool.Registry, bus *event.Bus, actor event.Actor) *Pipeline {
	return &Pipeline{registry: registry, bus: bus, actor: actor, now: time.Now}
}

// Request is one tool invocation request.
type Request struct {
	ToolName  string
	Arguments tool.Arguments
	Context   ExecContext
}

// Execute runs request through the pipeline. A thrown/failed handler
// never escapes as a Go error; it is mapped to StatusError.
func (p *Pipeline) Execute(ctx context.Context, req Request) (ExecutionResult, error) {
	def, ok := p.registry.Lookup(req.ToolName)
	if !ok {
		return ExecutionResult{}, ErrUnknownTool
	}

	gate := evaluateGates(def, req.Arguments, req.Context)

	requiresApproval := gate.Decision == DecisionNeedsApproval || def.RequiresApproval
	_, _ = p.bus.Emit(event.TypeToolCall, event.Payload{
		"toolName":         req.ToolName,
		"arguments":        map[string]any(req.Arguments),
		"requiresApproval": requiresApproval,
	}, event.EmitOptions{Actor: p.actor})

	switch gate.Decision {
	case DecisionBlock:
		_, _ = p.bus.Emit(event.TypePolicyBlock, event.Payload{
			"rule":    gate.Rule,
			"message": gate.Reason,
			"action":  string(req.Context.Operation) + ":" + req.ToolName,
		}, event.EmitOptions{Actor: p.actor})
		_, _ = p.bus.Emit(event.TypeToolResult, event.Payload{
			"success":    false,
			"error":      gate.Reason,
			"durationMs": 0,
		}, event.EmitOptions{Actor: p.actor})
		return ExecutionResult{
			Status:   StatusBlocked,
			ToolName: req.ToolName,
			Message:  gate.Reason,
			Policy:   PolicyInfo{Decision: gate.Decision, Reason: gate.Reason},
		}, nil

	case DecisionNeedsApproval:
		_, _ = p.bus.Emit(event.TypeToolResult, event.Payload{
			"success": false,
			"error":   gate.Reason,
		}, event.EmitOptions{Actor: p.actor})
		return ExecutionResult{
			Status:   StatusNeedsInput,
			ToolName: req.ToolName,
			Message:  gate.Reason,
			Policy:   PolicyInfo{Decision: gate.Decision, Reason: gate.Reason},
		}, nil

	default: // DecisionAllow
		return p.invoke(ctx, def, req), nil
	}
}

func (p *Pipeline) invoke(ctx context.Context, def tool.Definition, req Request) ExecutionResult {
	start := p.now()
	result := p.callHandler(ctx, def, req.Arguments)
	duration := p.now().Sub(start)

	status := StatusSuccess
	message := ""
	if !result.Success {
		status = StatusError
		message = result.Error
	}

	_, _ = p.bus.Emit(event.TypeToolResult, event.Payload{
		"success":    result.Success,
		"error":      result.Error,
		"durationMs": duration.Milliseconds(),
	}, event.EmitOptions{Actor: p.actor})

	return ExecutionResult{
		Status:   status,
		ToolName: req.ToolName,
		Message:  message,
		Policy:   PolicyInfo{Decision: DecisionAllow},
		Result:   &result,
	}
}

// callHandler invokes def.Handler, recovering a panic into a failed
// Result so the pipeline never propagates a panic to its caller.
func (p *Pipeline) callHandler(ctx context.Context, def tool.Definition, args tool.Arguments) (result tool.Result) {
	defer func() {
		if r := recover(); r != nil {
			result = tool.Result{Success: false, Error: panicMessage(r)}
		}
	}()
	if def.Handler == nil {
		return tool.Result{Success: false, Error: "tool has no handler"}
	}
	return def.Handler(ctx, args)
}

func panicMessage(r any) string {
	if err, ok := r.(error); ok {
		return err.Error()
	}
	if s, ok := r.(string); ok {
		return s
	}
	return "tool handler panicked"
}
