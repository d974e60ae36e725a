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

package statemachine

import "github.com/agentrt/conductor/pkg/intent"

// Decision is an explicit plan-confirmation decision, as opposed to a
// classified natural-language intent.
type Decision string

const (
	DecisionApprove Decision = "approve"
	DecisionRevise  Decision = "revise"
	DecisionDeny    Decision = "deny"
	DecisionAsk     Decision = "ask"
)

// ApprovalOutcome is returned by ProcessApproval.
type ApprovalOutcome struct {
	Approved bool
	NewState State
	Moved    bool
}

// ProcessApproval applies an explicit decision while in
// AwaitingPlanConfirmation. It is a no-op (Moved=false) if called from
// any other state.
func (m *Machine) ProcessApproval(decision Decision) ApprovalOutcome {
	m.mu.Lock()
	if m.current != AwaitingPlanConfirmation {
		m.mu.Unlock()
		return ApprovalOutcome{NewState: m.current}
	}
	m.mu.Unlock()

	switch decision {
	case DecisionApprove:
		rec, ok := m.Transition(Implementing, "explicit approve")
		return ApprovalOutcome{Approved: true, NewState: rec.To, Moved: ok}
	case DecisionRevise, DecisionDeny:
		rec, ok := m.Transition(PlanDrafted, "explicit "+string(decision))
		return ApprovalOutcome{Approved: false, NewState: rec.To, Moved: ok}
	case DecisionAsk:
		return ApprovalOutcome{NewState: m.Current()}
	default:
		return ApprovalOutcome{NewState: m.Current()}
	}
}

// NLApprovalAction is the action the caller should take in response to a
// classified natural-language reply.
type NLApprovalAction string

const (
	// ActionDirectApply means the classification was confident enough
	// to apply the corresponding decision immediately.
	ActionDirectApply NLApprovalAction = "direct_apply"
	// ActionConfirm means confidence was mid-band: the caller should
	// prompt the user for explicit confirmation before applying anything.
	ActionConfirm NLApprovalAction = "confirm"
	// ActionNoChange means confidence was too low to act on at all.
	ActionNoChange NLApprovalAction = "no_change"
)

// NLApprovalResult is returned by ProcessNaturalLanguageApproval.
type NLApprovalResult struct {
	Action     NLApprovalAction
	Approved   bool
	NewState   State
	Classified intent.Result
}

// ProcessNaturalLanguageApproval classifies utterance and, only while in
// AwaitingPlanConfirmation, applies the resulting decision according to
// the configured confidence bands.
func (m *Machine) ProcessNaturalLanguageApproval(classifier *intent.Classifier, utterance string) NLApprovalResult {
	result := classifier.Classify(utterance)

	if m.Current() != AwaitingPlanConfirmation {
		return NLApprovalResult{Action: ActionNoChange, NewState: m.Current(), Classified: result}
	}

	cfg := classifier.ConfigSnapshot()

	switch {
	case result.Confidence >= cfg.ApproveThreshold:
		outcome := m.ProcessApproval(intentToDecision(result.Intent))
		return NLApprovalResult{
			Action:     ActionDirectApply,
			Approved:   outcome.Approved,
			NewState:   outcome.NewState,
			Classified: result,
		}
	case result.Confidence >= cfg.ConfirmThreshold:
		return NLApprovalResult{Action: ActionConfirm, NewState: m.Current(), Classified: result}
	default:
		return NLApprovalResult{Action: ActionNoChange, NewState: m.Current(), Classified: result}
	}
}

func intentToDecision(i intent.Intent) Decision {
	switch i {
	case intent.Approve:
		return DecisionApprove
	case intent.Revise:
		return DecisionRevise
	case intent.Deny:
		return DecisionDeny
	default:
		return DecisionAsk
	}
}
