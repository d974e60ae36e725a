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
	"regexp"

	"github.com/agentrt/conductor/pkg/statemachine"
)

// planCommandPattern implements the exact, case-sensitive `/plan
// approve|revise|deny|ask [reason]` grammar.
// Only this literal prefix is recognized as a command; anything
// else is handed to natural-language classification.
var planCommandPattern = regexp.MustCompile(`^/plan (approve|revise|deny|ask)(?: (.*))?$`)

// planCommand is a parsed `/plan ...` command.
type planCommand struct {
	Decision statemachine.Decision
	Reason   string
}

// parsePlanCommand reports whether text is a `/plan ...` command and,
// if so, its parsed form.
func parsePlanCommand(text string) (planCommand, bool) {
	m := planCommandPattern.FindStringSubmatch(text)
	if m == nil {
		return planCommand{}, false
	}
	var decision statemachine.Decision
	switch m[1] {
	case "approve":
		decision = statemachine.DecisionApprove
	case "revise":
		decision = statemachine.DecisionRevise
	case "deny":
		decision = statemachine.DecisionDeny
	case "ask":
		decision = statemachine.DecisionAsk
	}
	return planCommand{Decision: decision, Reason: m[2]}, true
}
