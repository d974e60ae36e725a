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

// Package orchestrator wires the state machine, event bus, tool
// pipeline, diff review, reflexion loop, quota resolver, and
// checkpoint manager into the single owning object a run's agents and
// tool handlers are driven through: one Orchestrator per run, holding
// every piece of mutable run state behind one mutex.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentrt/conductor/pkg/checkpoint"
	"github.com/agentrt/conductor/pkg/config"
	"github.com/agentrt/conductor/pkg/diffreview"
	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/intent"
	enginelog "github.com/agentrt/conductor/pkg/logger"
	"github.com/agentrt/conductor/pkg/modelgateway"
	"github.com/agentrt/conductor/pkg/observability"
	"github.com/agentrt/conductor/pkg/persistence"
	"github.com/agentrt/conductor/pkg/quota"
	"github.com/agentrt/conductor/pkg/reflexion"
	"github.com/agentrt/conductor/pkg/statemachine"
	"github.com/agentrt/conductor/pkg/tool"
	"github.com/agentrt/conductor/pkg/toolpipeline"
)

// Agent invokes one of the five role agents (plan/builder/qa/review/
// refactor) for one turn and returns its raw text response. Concrete
// model adapters are out of scope; callers supply Agent
// values backed by whatever completion API they use.
type Agent func(ctx context.Context, ac AgentContext) (string, error)

// AgentContext is the view of run state an Agent is invoked with: a
// read-only snapshot of the transcript and workflow state, plus
// capabilities bound to the owning Orchestrator. Agents never hold the
// bus or the machine directly; Emit tags the agent's actor and
// Transition refuses illegal moves.
type AgentContext struct {
	RunID            string
	State            statemachine.State
	WorkingDirectory string
	Transcript       []Message
	Input            string

	Tools       *tool.Registry
	ExecuteTool func(ctx context.Context, toolName string, args tool.Arguments, userApproved bool) (toolpipeline.ExecutionResult, error)
	CallModel   func(ctx context.Context, messages []modelgateway.Message, tools []modelgateway.ToolSpec, cfg modelgateway.CallConfig) (modelgateway.CallResult, error)
	Emit        func(t event.Type, payload event.Payload)
	Transition  func(target statemachine.State, reason string) bool
}

// Config bundles the pieces an Orchestrator is built from. Zero-valued
// optional fields are filled with in-memory/no-op defaults so tests can
// build an Orchestrator with only the fields they care about.
type Config struct {
	RunID            string
	WorkingDirectory string
	Engine           config.Config
	Store            persistence.Store
	Tools            *tool.Registry
	Gateway          modelgateway.Gateway
	Observability    *observability.Manager
	Logger           *slog.Logger
	InitialState     statemachine.State
}

// Orchestrator owns every piece of mutable state for one run: the
// workflow state machine, the event bus, the tool execution pipeline,
// the diff review store, the reflexion loop's machinery, the quota
// resolver, and the checkpoint manager.
type Orchestrator struct {
	mu sync.Mutex

	runID            string
	workingDirectory string
	cfg              config.Config

	machine    *statemachine.Machine
	bus        *event.Bus
	classifier *intent.Classifier
	tools      *tool.Registry
	pipeline   *toolpipeline.Pipeline
	diffs      *diffreview.Store
	review     *diffreview.Review
	quota      *quota.Resolver
	checkpoint *checkpoint.Manager
	gateway    modelgateway.Gateway
	store      persistence.Store
	obs        *observability.Manager
	logger     *slog.Logger

	transcript []Message
	stopped    bool
	stopReason string
}

// Message is one entry in the run's message transcript.
type Message struct {
	Role    string
	Content string
	At      string
}

// Append implements reflexion.Transcript.
func (o *Orchestrator) Append(role, content string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appendLocked(role, content)
}

func (o *Orchestrator) appendLocked(role, content string) {
	o.transcript = append(o.transcript, Message{Role: role, Content: content, At: time.Now().UTC().Format(time.RFC3339Nano)})
}

// New builds an Orchestrator from cfg, defaulting unset collaborators
// to in-memory/no-op implementations.
func New(cfg Config) *Orchestrator {
	runID := cfg.RunID
	if runID == "" {
		runID = uuid.NewString()
	}

	engineCfg := cfg.Engine
	engineCfg.SetDefaults()

	store := cfg.Store
	if store == nil {
		store = persistence.NewMemoryStore()
	}

	tools := cfg.Tools
	if tools == nil {
		tools = tool.NewRegistry()
	}

	logger := cfg.Logger
	if logger == nil {
		level, _ := enginelog.ParseLevel(engineCfg.LogLevel)
		logger = enginelog.New(level, os.Stderr)
	}

	initial := cfg.InitialState
	if initial == "" {
		initial = statemachine.PRDIntake
	}

	machine := statemachine.New(initial)
	bus := event.NewBus(runID, func() string { return string(machine.Current()) }, store, logger)
	classifier := intent.New(engineCfg.IntentConfig())
	pipeline := toolpipeline.New(tools, bus, event.ActorSystem)
	diffStore := diffreview.NewStore()
	review := diffreview.NewReview(diffStore, machine, bus, event.ActorBuilderAgent)
	resolver := quota.NewResolver(engineCfg.QuotaConfig())
	cpManager := checkpoint.NewManager(
		persistence.AsCheckpointStore(store),
		machine,
		bus,
		uuid.NewString,
		func() string { return time.Now().UTC().Format(time.RFC3339Nano) },
	)

	o := &Orchestrator{
		runID:            runID,
		workingDirectory: cfg.WorkingDirectory,
		cfg:              engineCfg,
		machine:          machine,
		bus:              bus,
		classifier:       classifier,
		tools:            tools,
		pipeline:         pipeline,
		diffs:            diffStore,
		review:           review,
		quota:            resolver,
		checkpoint:       cpManager,
		gateway:          cfg.Gateway,
		store:            store,
		obs:              cfg.Observability,
		logger:           logger,
	}

	cpManager.SetResumeCallback(o.onCheckpointRestored)

	now := time.Now().UTC().Format(time.RFC3339Nano)
	if err := store.CreateRun(context.Background(), persistence.Run{
		ID:               runID,
		WorkingDirectory: cfg.WorkingDirectory,
		Status:           persistence.RunRunning,
		CreatedAt:        now,
		UpdatedAt:        now,
	}); err != nil {
		logger.Warn("orchestrator: failed to persist run record", "runId", runID, "error", err)
	}

	return o
}

// RunID returns the run this Orchestrator belongs to.
func (o *Orchestrator) RunID() string { return o.runID }

// Machine returns the underlying state machine, for callers that need
// direct access (e.g. the workflow facade's command grammar).
func (o *Orchestrator) Machine() *statemachine.Machine { return o.machine }

// Bus returns the run's event bus.
func (o *Orchestrator) Bus() *event.Bus { return o.bus }

// State returns the workflow state currently in effect.
func (o *Orchestrator) State() statemachine.State { return o.machine.Current() }

// Transcript returns a copy of the message history accumulated so far.
func (o *Orchestrator) Transcript() []Message {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Message(nil), o.transcript...)
}

// Classifier returns the bound intent classifier.
func (o *Orchestrator) Classifier() *intent.Classifier { return o.classifier }

func (o *Orchestrator) span(ctx context.Context, name string) (context.Context, func(err error)) {
	if o.obs == nil || o.obs.Tracer() == nil {
		return ctx, func(error) {}
	}
	ctx, span := o.obs.Tracer().Start(ctx, name)
	return ctx, func(err error) {
		if err != nil {
			o.obs.Tracer().RecordError(span, err)
		}
		span.End()
	}
}

// ProcessInput runs one turn: it records the user's input on the
// transcript, emits turn.start/turn.end and user.input events, and
// invokes agent with an AgentContext snapshot of current state.
func (o *Orchestrator) ProcessInput(ctx context.Context, input string, agent Agent) (string, error) {
	ctx, end := o.span(ctx, observability.SpanTurn)
	defer func() { end(nil) }()

	o.mu.Lock()
	if o.stopped {
		o.mu.Unlock()
		return "", fmt.Errorf("orchestrator: run %s is stopped (%s)", o.runID, o.stopReason)
	}
	state := o.machine.Current()
	o.appendLocked("user", input)
	snapshot := append([]Message(nil), o.transcript...)
	o.mu.Unlock()

	_, _ = o.bus.Emit(event.TypeTurnStart, event.Payload{"input": input}, event.EmitOptions{Actor: event.ActorUser})
	_, _ = o.bus.Emit(event.TypeUserInput, event.Payload{"text": input}, event.EmitOptions{Actor: event.ActorUser})

	actor := actorForState(state)
	_, _ = o.bus.Emit(event.TypeAgentStart, event.Payload{"state": string(state)}, event.EmitOptions{Actor: actor})

	response, err := agent(ctx, AgentContext{
		RunID:            o.runID,
		State:            state,
		WorkingDirectory: o.workingDirectory,
		Transcript:       snapshot,
		Input:            input,
		Tools:            o.tools,
		ExecuteTool:      o.ExecuteTool,
		CallModel:        o.CallModel,
		Emit: func(t event.Type, payload event.Payload) {
			_, _ = o.bus.Emit(t, payload, event.EmitOptions{Actor: actor})
		},
		Transition: o.transition,
	})
	if err != nil {
		_, _ = o.bus.Emit(event.TypeAgentStop, event.Payload{"success": false}, event.EmitOptions{Actor: actor})
		_, _ = o.bus.Emit(event.TypeError, event.Payload{"code": "AGENT_ERROR", "recoverable": true, "message": err.Error()}, event.EmitOptions{Actor: event.ActorSystem})
		_, _ = o.bus.Emit(event.TypeTurnEnd, event.Payload{"success": false}, event.EmitOptions{Actor: event.ActorSystem})
		return "", err
	}

	o.mu.Lock()
	o.appendLocked("assistant", response)
	o.mu.Unlock()

	_, _ = o.bus.Emit(event.TypeAgentStop, event.Payload{"success": true}, event.EmitOptions{Actor: actor})
	_, _ = o.bus.Emit(event.TypeTurnEnd, event.Payload{"success": true}, event.EmitOptions{Actor: event.ActorSystem})
	return response, nil
}

// actorForState attributes a turn to the agent role that owns the
// workflow state it runs in.
func actorForState(s statemachine.State) event.Actor {
	switch s {
	case statemachine.Implementing:
		return event.ActorBuilderAgent
	case statemachine.QA:
		return event.ActorQAAgent
	case statemachine.Review, statemachine.Done:
		return event.ActorReviewAgent
	case statemachine.Refactor:
		return event.ActorRefactorAgent
	default:
		return event.ActorPlanAgent
	}
}

// transition applies a validated state change and publishes it. It is
// the bound Transition capability handed to agents; illegal moves
// return false without emitting anything.
func (o *Orchestrator) transition(target statemachine.State, reason string) bool {
	rec, ok := o.machine.Transition(target, reason)
	if !ok {
		return false
	}
	_, _ = o.bus.Emit(event.TypeStateTransition, event.Payload{
		"from":   string(rec.From),
		"to":     string(rec.To),
		"reason": rec.Reason,
	}, event.EmitOptions{Actor: event.ActorSystem})
	if m := o.obs.Metrics(); m != nil {
		m.RecordStateTransition(string(rec.From), string(rec.To))
	}
	return true
}

// ProcessApproval applies an explicit /plan decision to the state
// machine and records the natural-language-free approval on the
// transcript.
func (o *Orchestrator) ProcessApproval(decision statemachine.Decision) statemachine.ApprovalOutcome {
	prior := o.machine.Current()
	outcome := o.machine.ProcessApproval(decision)
	o.recordApproval(string(decision), prior, outcome.NewState, outcome.Moved)
	return outcome
}

// ProcessNaturalLanguageApproval classifies utterance via the bound
// classifier and, if confident enough, applies it to the state machine.
func (o *Orchestrator) ProcessNaturalLanguageApproval(utterance string) statemachine.NLApprovalResult {
	prior := o.machine.Current()
	result := o.machine.ProcessNaturalLanguageApproval(o.classifier, utterance)
	if result.Action == statemachine.ActionDirectApply {
		o.recordApproval(string(result.Classified.Intent), prior, result.NewState, true)
	}
	return result
}

func (o *Orchestrator) recordApproval(decision string, from, to statemachine.State, moved bool) {
	_, _ = o.bus.Emit(event.TypeUserApproval, event.Payload{
		"decision": decision,
		"newState": string(to),
		"moved":    moved,
	}, event.EmitOptions{Actor: event.ActorUser})
	if !moved {
		return
	}
	_, _ = o.bus.Emit(event.TypeStateTransition, event.Payload{"from": string(from), "to": string(to)}, event.EmitOptions{Actor: event.ActorSystem})
	if m := o.obs.Metrics(); m != nil {
		m.RecordStateTransition(string(from), string(to))
	}
}

// ExecuteTool runs one tool call through the gated pipeline, deriving
// the ExecContext from current orchestrator state. mode and
// userApproved let the caller thread through the configured approval
// mode and whether the user has already approved this specific call.
func (o *Orchestrator) ExecuteTool(ctx context.Context, toolName string, args tool.Arguments, userApproved bool) (toolpipeline.ExecutionResult, error) {
	def, ok := o.tools.Lookup(toolName)
	op := tool.OpRead
	if ok {
		op = def.Operation
	} else {
		op = InferOperation(toolName)
	}

	ctx, end := o.span(ctx, observability.SpanToolCall)
	var execErr error
	defer func() { end(execErr) }()

	start := time.Now()
	result, err := o.pipeline.Execute(ctx, toolpipeline.Request{
		ToolName:  toolName,
		Arguments: args,
		Context: toolpipeline.ExecContext{
			State:            o.machine.Current(),
			ApprovalMode:     o.cfg.ApprovalMode,
			WorkingDirectory: o.workingDirectory,
			UserApproved:     userApproved,
			Operation:        op,
		},
	})
	execErr = err

	if m := o.obs.Metrics(); m != nil {
		status := string(result.Status)
		m.RecordToolCall(toolName, status, time.Since(start))
		m.RecordPolicyDecision(string(result.Policy.Decision), string(result.Status))
	}

	return result, err
}

// ErrNoGateway is returned by CallModel when no model gateway was
// configured for this run.
var ErrNoGateway = errors.New("orchestrator: no model gateway configured")

// CallModel invokes the configured model gateway for one blocking call,
// bracketing it with model.call/model.result events. Provider errors
// are classified through the gateway before being returned.
func (o *Orchestrator) CallModel(ctx context.Context, messages []modelgateway.Message, tools []modelgateway.ToolSpec, cfg modelgateway.CallConfig) (modelgateway.CallResult, error) {
	if o.gateway == nil {
		return modelgateway.CallResult{}, ErrNoGateway
	}

	_, _ = o.bus.Emit(event.TypeModelCall, event.Payload{
		"model":        cfg.Model,
		"messageCount": len(messages),
		"toolCount":    len(tools),
	}, event.EmitOptions{Actor: actorForState(o.machine.Current())})

	start := time.Now()
	result, err := o.gateway.Call(ctx, messages, tools, cfg)
	if err != nil {
		class := o.gateway.ClassifyError(err)
		_, _ = o.bus.Emit(event.TypeModelResult, event.Payload{
			"success":       false,
			"errorType":     class.Type,
			"retryDecision": string(class.RetryDecision),
		}, event.EmitOptions{Actor: event.ActorSystem})
		return result, err
	}
	if result.LatencyMs == 0 {
		result.LatencyMs = time.Since(start).Milliseconds()
	}
	_, _ = o.bus.Emit(event.TypeModelResult, event.Payload{
		"success":      true,
		"tokensTotal":  result.TokenUsage.Total,
		"finishReason": result.FinishReason,
		"latencyMs":    result.LatencyMs,
	}, event.EmitOptions{Actor: event.ActorSystem})
	return result, nil
}

// ProposeDiff registers a new diff with the run's diff store and emits
// diff.proposed.
func (o *Orchestrator) ProposeDiff(id, filePath string, hunks []diffreview.Hunk) *diffreview.Diff {
	d := o.diffs.Propose(id, filePath, hunks)
	_, _ = o.bus.Emit(event.TypeDiffProposed, event.Payload{"diffId": id, "filePath": filePath, "hunkCount": len(hunks)}, event.EmitOptions{Actor: event.ActorBuilderAgent})
	return d
}

// ApproveDiff approves selection against the active diff.
func (o *Orchestrator) ApproveDiff(selection string) (*diffreview.Diff, error) {
	d, err := o.review.Approve(selection)
	o.recordDiffMetric("approve")
	return d, err
}

// RejectDiff rejects selection against the active diff.
func (o *Orchestrator) RejectDiff(selection string) (*diffreview.Diff, error) {
	d, err := o.review.Reject(selection)
	o.recordDiffMetric("reject")
	return d, err
}

func (o *Orchestrator) recordDiffMetric(decision string) {
	if m := o.obs.Metrics(); m != nil {
		m.RecordDiffReview(decision)
	}
}

// CheckQuota evaluates usage against the bound quota resolver.
func (o *Orchestrator) CheckQuota(usage quota.Usage, requestedTokens int64) quota.Result {
	result := o.quota.Check(usage, requestedTokens)
	if m := o.obs.Metrics(); m != nil {
		m.RecordQuotaCheck(string(result.ResultType))
	}
	return result
}

// RunQAWithReflexion drives the bounded QA/builder retry loop,
// recording each attempt on the shared transcript and observability
// instruments.
func (o *Orchestrator) RunQAWithReflexion(ctx context.Context, qa reflexion.QAAgent, builder reflexion.BuilderAgent) reflexion.Result {
	loop := reflexion.NewLoop(
		instrumentedQA(o, qa),
		builder,
		o.machine,
		o.bus,
		o,
		event.ActorQAAgent,
	)
	if o.cfg.MaxReflexionRetries > 0 {
		loop.MaxRetries = o.cfg.MaxReflexionRetries
	}
	result := loop.Run(ctx)
	if m := o.obs.Metrics(); m != nil {
		outcome := "exhausted"
		if result.Success {
			outcome = "success"
		}
		m.RecordReflexionOutcome(outcome)
	}
	return result
}

func instrumentedQA(o *Orchestrator, qa reflexion.QAAgent) reflexion.QAAgent {
	return func(ctx context.Context, attempt int) (string, error) {
		if m := o.obs.Metrics(); m != nil {
			m.RecordReflexionAttempt()
		}
		return qa(ctx, attempt)
	}
}

// CreateCheckpoint snapshots current workflow state plus opaqueData
// (typically pending diffs and transcript, encoded by the caller).
func (o *Orchestrator) CreateCheckpoint(ctx context.Context, opaqueData map[string]any) (checkpoint.Checkpoint, error) {
	return o.checkpoint.Save(ctx, o.runID, opaqueData)
}

// RestoreCheckpoint restores workflow state from the checkpoint with
// id, or the latest checkpoint for this run if id is empty.
func (o *Orchestrator) RestoreCheckpoint(ctx context.Context, id string) (checkpoint.Checkpoint, error) {
	return o.checkpoint.Restore(ctx, o.runID, id)
}

// onCheckpointRestored is the checkpoint.ResumeCallback registered at
// construction: it rehydrates the transcript from OpaqueData, when
// present, leaving any domain-specific rehydration (pending diffs, tool
// state) to a caller-supplied wrapper around this Orchestrator.
func (o *Orchestrator) onCheckpointRestored(cp checkpoint.Checkpoint) {
	raw, ok := cp.OpaqueData["transcript"]
	if !ok {
		return
	}
	entries, ok := raw.([]Message)
	if !ok {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.transcript = append([]Message(nil), entries...)
}

// Stop marks the run stopped; further ProcessInput calls fail. It
// always emits a closing turn.end carrying reason before closing the
// bus (emitting after Close would fail with ErrBusClosed), and always
// updates the run record to cancelled, regardless of how far the
// workflow had progressed: stopping a run that already reached Done is
// still an operator-initiated cancellation of that run, not a
// completion.
func (o *Orchestrator) Stop(ctx context.Context, reason string) error {
	o.mu.Lock()
	o.stopped = true
	o.stopReason = reason
	o.mu.Unlock()

	_, _ = o.bus.Emit(event.TypeTurnEnd, event.Payload{"success": false, "reason": reason}, event.EmitOptions{Actor: event.ActorSystem})
	o.bus.Close()

	completedAt := time.Now().UTC().Format(time.RFC3339Nano)
	return o.store.UpdateRunStatus(ctx, o.runID, persistence.RunCancelled, &completedAt)
}
