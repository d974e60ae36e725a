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

package workflow

import (
	"github.com/agentrt/conductor/pkg/statemachine"
)

// Status is the closed set of outcomes a Facade method reports:
// success, needs_input (the caller must supply more
// information or an explicit decision before anything changes),
// blocked (a gate refused the action outright), or error.
type Status string

const (
	StatusSuccess    Status = "success"
	StatusNeedsInput Status = "needs_input"
	StatusBlocked    Status = "blocked"
	StatusError      Status = "error"
)

// Approval carries the plan-confirmation classification detail behind
// a needs_input or success result from SubmitPlanDecision. Action is
// never direct_apply on a needs_input result: that combination is
// reserved for a classification confident enough to have already been
// applied.
type Approval struct {
	Action   statemachine.NLApprovalAction
	Approved bool
	Reason   string
}

// Result is the uniform shape every Facade method returns.
type Result struct {
	Status   Status
	State    statemachine.State
	Message  string
	Approval *Approval
}

func successResult(state statemachine.State, message string) Result {
	return Result{Status: StatusSuccess, State: state, Message: message}
}

func errorResult(state statemachine.State, err error) Result {
	return Result{Status: StatusError, State: state, Message: err.Error()}
}

func needsInputResult(state statemachine.State, message string) Result {
	return Result{Status: StatusNeedsInput, State: state, Message: message}
}
