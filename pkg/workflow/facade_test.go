package workflow

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentrt/conductor/pkg/orchestrator"
	"github.com/agentrt/conductor/pkg/statemachine"
)

func constAgent(response string) orchestrator.Agent {
	return func(ctx context.Context, ac orchestrator.AgentContext) (string, error) {
		return response, nil
	}
}

func TestRunBuildReportsNeedsInputDuringAwaitingConfirmation(t *testing.T) {
	orch := orchestrator.New(orchestrator.Config{InitialState: statemachine.AwaitingPlanConfirmation})
	f := New(orch, Agents{Builder: constAgent("built")})

	result := f.RunBuild(context.Background(), "start building")
	assert.Equal(t, StatusNeedsInput, result.Status)
	assert.Equal(t, statemachine.AwaitingPlanConfirmation, result.State)
	assert.Equal(t, statemachine.AwaitingPlanConfirmation, orch.State())
}

func TestRunBuildSucceedsAfterApproval(t *testing.T) {
	orch := orchestrator.New(orchestrator.Config{InitialState: statemachine.AwaitingPlanConfirmation})
	f := New(orch, Agents{Builder: constAgent("built")})

	decision := f.SubmitPlanDecision("/plan approve")
	assert.Equal(t, StatusSuccess, decision.Status)
	assert.Equal(t, statemachine.ActionDirectApply, decision.Approval.Action)
	assert.True(t, decision.Approval.Approved)

	result := f.RunBuild(context.Background(), "start building")
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, "built", result.Message)
}

func TestSubmitPlanDecisionFallsBackToNaturalLanguage(t *testing.T) {
	orch := orchestrator.New(orchestrator.Config{InitialState: statemachine.AwaitingPlanConfirmation})
	f := New(orch, Agents{})

	result := f.SubmitPlanDecision("yes, looks good, go ahead")
	assert.Equal(t, StatusSuccess, result.Status)
	assert.Equal(t, statemachine.ActionDirectApply, result.Approval.Action)
	assert.Equal(t, statemachine.Implementing, orch.State())
}

func TestSubmitPlanDecisionReportsNeedsInputOnAmbiguousReply(t *testing.T) {
	orch := orchestrator.New(orchestrator.Config{InitialState: statemachine.AwaitingPlanConfirmation})
	f := New(orch, Agents{})

	result := f.SubmitPlanDecision("banana banana banana")
	assert.Equal(t, StatusNeedsInput, result.Status)
	if assert.NotNil(t, result.Approval) {
		assert.NotEqual(t, statemachine.ActionDirectApply, result.Approval.Action)
	}
	assert.Equal(t, statemachine.AwaitingPlanConfirmation, orch.State())
}

func TestSubmitPlanDecisionReportsNeedsInputWhenNoPlanPending(t *testing.T) {
	orch := orchestrator.New(orchestrator.Config{InitialState: statemachine.PRDIntake})
	f := New(orch, Agents{})

	result := f.SubmitPlanDecision("/plan approve")
	assert.Equal(t, StatusNeedsInput, result.Status)
}

func TestParsePlanCommandGrammar(t *testing.T) {
	cmd, ok := parsePlanCommand("/plan revise use postgres instead")
	assert.True(t, ok)
	assert.Equal(t, statemachine.DecisionRevise, cmd.Decision)
	assert.Equal(t, "use postgres instead", cmd.Reason)

	_, ok = parsePlanCommand("approve")
	assert.False(t, ok)
}
