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

package orchestrator

import (
	"strings"

	"github.com/agentrt/conductor/pkg/tool"
)

// InferOperation is the explicit, opt-in fallback tool.Definition
// mentions: a substring-based guess at a tool's operation kind, for
// tools registered without a declared Operation. It is never applied
// automatically by the pipeline; callers that register legacy,
// undeclared tools must call it themselves and accept the looser
// guarantee.
func InferOperation(toolName string) tool.Operation {
	lower := strings.ToLower(toolName)
	switch {
	case strings.Contains(lower, "delete"), strings.Contains(lower, "remove"), strings.Contains(lower, "rm_"):
		return tool.OpDelete
	case strings.Contains(lower, "write"), strings.Contains(lower, "edit"), strings.Contains(lower, "create"), strings.Contains(lower, "apply"):
		return tool.OpWrite
	case strings.Contains(lower, "exec"), strings.Contains(lower, "run"), strings.Contains(lower, "shell"), strings.Contains(lower, "command"):
		return tool.OpExec
	default:
		return tool.OpRead
	}
}
