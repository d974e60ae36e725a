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

// Package workflow is the programmatic-API facade over pkg/orchestrator:
// it turns a caller's free-text turns and explicit `/plan` commands into
// orchestrator calls, enforcing the state-gated business rules a raw
// Orchestrator leaves to its caller.
package workflow

import (
	"context"
	"fmt"

	"github.com/agentrt/conductor/pkg/orchestrator"
	"github.com/agentrt/conductor/pkg/reflexion"
	"github.com/agentrt/conductor/pkg/statemachine"
)

// Agents bundles the five role agents a Facade drives. Every field is
// optional; calling a phase whose agent is unset returns an error
// rather than panicking.
type Agents struct {
	Plan     orchestrator.Agent
	Builder  orchestrator.Agent
	QA       reflexion.QAAgent
	QABuild  reflexion.BuilderAgent
	Review   orchestrator.Agent
	Refactor orchestrator.Agent
}

// Facade is the single entrypoint a caller drives a run through.
type Facade struct {
	orch   *orchestrator.Orchestrator
	agents Agents
}

// New builds a Facade around orch and agents.
func New(orch *orchestrator.Orchestrator, agents Agents) *Facade {
	return &Facade{orch: orch, agents: agents}
}

// Orchestrator returns the underlying Orchestrator, for callers that
// need lower-level access (tool execution, diff review, checkpoints).
func (f *Facade) Orchestrator() *orchestrator.Orchestrator { return f.orch }

// StartPlan runs the PRD-intake/clarification turn with prdText as
// input, invoking the plan agent. The caller drives as many
// StartPlan/clarification turns as needed; once the plan agent's
// workflow transitions to PlanDrafted -> AwaitingPlanConfirmation is
// the caller's responsibility via the state machine.
func (f *Facade) StartPlan(ctx context.Context, prdText string) Result {
	if f.agents.Plan == nil {
		return errorResult(f.orch.State(), fmt.Errorf("workflow: no plan agent configured"))
	}
	out, err := f.orch.ProcessInput(ctx, prdText, f.agents.Plan)
	if err != nil {
		return errorResult(f.orch.State(), err)
	}
	return successResult(f.orch.State(), out)
}

// SubmitPlanDecision parses text as a `/plan approve|revise|deny|ask
// [reason]` command first; if text does not match that exact grammar,
// it falls back to natural-language intent classification. It returns
// needs_input if the workflow is not currently in
// AwaitingPlanConfirmation, and also needs_input (with
// Approval.Action != ActionDirectApply) when a natural-language reply
// was too ambiguous to act on.
func (f *Facade) SubmitPlanDecision(text string) Result {
	if f.orch.State() != statemachine.AwaitingPlanConfirmation {
		return needsInputResult(f.orch.State(), "no plan is awaiting confirmation")
	}

	if cmd, ok := parsePlanCommand(text); ok {
		outcome := f.orch.ProcessApproval(cmd.Decision)
		return Result{
			Status:  StatusSuccess,
			State:   outcome.NewState,
			Message: fmt.Sprintf("applied explicit decision %q", cmd.Decision),
			Approval: &Approval{
				Action:   statemachine.ActionDirectApply,
				Approved: outcome.Approved,
				Reason:   cmd.Reason,
			},
		}
	}

	nl := f.orch.ProcessNaturalLanguageApproval(text)
	approval := &Approval{Action: nl.Action, Approved: nl.Approved}
	if nl.Action != statemachine.ActionDirectApply {
		switch nl.Action {
		case statemachine.ActionConfirm:
			return Result{
				Status:   StatusNeedsInput,
				State:    nl.NewState,
				Message:  "reply was ambiguous; confirm explicitly with /plan approve|revise|deny",
				Approval: approval,
			}
		default:
			return Result{
				Status:   StatusNeedsInput,
				State:    nl.NewState,
				Message:  "could not classify a plan decision from that reply",
				Approval: approval,
			}
		}
	}
	return Result{
		Status:   StatusSuccess,
		State:    nl.NewState,
		Message:  "applied natural-language decision",
		Approval: approval,
	}
}

// RunBuild invokes the builder agent for one turn. It refuses to
// transition and reports needs_input while the workflow is still
// AwaitingPlanConfirmation, enforcing the "no build before plan
// approval" rule, without ever treating the gate itself as a failure.
func (f *Facade) RunBuild(ctx context.Context, input string) Result {
	if f.orch.State() == statemachine.AwaitingPlanConfirmation {
		return needsInputResult(f.orch.State(), "the plan must be approved before build can run")
	}
	if f.agents.Builder == nil {
		return errorResult(f.orch.State(), fmt.Errorf("workflow: no builder agent configured"))
	}
	out, err := f.orch.ProcessInput(ctx, input, f.agents.Builder)
	if err != nil {
		return errorResult(f.orch.State(), err)
	}
	return successResult(f.orch.State(), out)
}

// RunQA drives the bounded QA/reflexion retry loop using the
// configured QA and builder-retry agents.
func (f *Facade) RunQA(ctx context.Context) Result {
	if f.agents.QA == nil {
		return errorResult(f.orch.State(), fmt.Errorf("workflow: no QA agent configured"))
	}
	result := f.orch.RunQAWithReflexion(ctx, f.agents.QA, f.agents.QABuild)
	if !result.Success {
		return Result{
			Status:  StatusError,
			State:   f.orch.State(),
			Message: fmt.Sprintf("QA did not pass after %d attempt(s)", result.Attempts),
		}
	}
	return successResult(f.orch.State(), fmt.Sprintf("QA passed after %d attempt(s)", result.Attempts))
}

// RunReview invokes the review agent for one turn.
func (f *Facade) RunReview(ctx context.Context, input string) Result {
	if f.agents.Review == nil {
		return errorResult(f.orch.State(), fmt.Errorf("workflow: no review agent configured"))
	}
	out, err := f.orch.ProcessInput(ctx, input, f.agents.Review)
	if err != nil {
		return errorResult(f.orch.State(), err)
	}
	return successResult(f.orch.State(), out)
}

// RunRefactor invokes the refactor agent for one turn.
func (f *Facade) RunRefactor(ctx context.Context, input string) Result {
	if f.agents.Refactor == nil {
		return errorResult(f.orch.State(), fmt.Errorf("workflow: no refactor agent configured"))
	}
	out, err := f.orch.ProcessInput(ctx, input, f.agents.Refactor)
	if err != nil {
		return errorResult(f.orch.State(), err)
	}
	return successResult(f.orch.State(), out)
}

// Stop ends the run.
func (f *Facade) Stop(ctx context.Context, reason string) Result {
	if err := f.orch.Stop(ctx, reason); err != nil {
		return errorResult(f.orch.State(), err)
	}
	return successResult(f.orch.State(), "stopped: "+reason)
}
