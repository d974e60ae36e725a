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

// Package tool defines the Tool contract every concrete handler
// (filesystem, git, shell, HTTP, lint, test, ...) satisfies, and the
// operation taxonomy the pipeline gates on. This package only carries
// the shape the pipeline consumes; concrete handlers live elsewhere.
package tool

import "context"

// Operation classifies what kind of effect a tool call has. It governs
// every gate in the execution pipeline.
type Operation string

const (
	OpRead   Operation = "read"
	OpWrite  Operation = "write"
	OpDelete Operation = "delete"
	OpExec   Operation = "exec"
)

// Arguments is the decoded argument map a caller passes to a handler.
type Arguments map[string]any

// Result is what a handler returns. Handlers never panic across this
// boundary; a non-nil Error means the call failed.
type Result struct {
	Success  bool
	Data     any
	Error    string
	Metadata map[string]any
}

// Handler executes one tool call against externally-owned resources
// (filesystem, shell, network, ...). Concrete implementations live
// outside this module.
type Handler func(ctx context.Context, args Arguments) Result

// Definition is a registered tool: its declared contract plus the
// handler that realizes it. Definitions are registered once per
// orchestrator and are read-only after registration.
type Definition struct {
	Name        string
	Description string
	// Parameters is the tool's JSON Schema for its argument shape,
	// typically produced from a Go struct via invopop/jsonschema.
	Parameters map[string]any
	// Operation is the tool's declared operation kind. Operation must
	// be declared explicitly; loose substring inference is not a
	// first-class path (see orchestrator.InferOperation, kept only as
	// an explicit, opt-in fallback for undeclared legacy tools).
	Operation Operation
	// RequiresApproval, when true, always forces an approval gate
	// regardless of approval mode.
	RequiresApproval bool
	// AllowInFastMode marks an exec tool call pattern as pre-approved
	// under fast approval mode.
	AllowInFastMode bool
	Handler         Handler
}

// Registry holds the set of tools known to one orchestrator. It is
// populated once at startup and treated as read-only thereafter.
type Registry struct {
	tools map[string]Definition
}

// NewRegistry builds an empty Registry.
func NewRegistry() *Registry {
	return &Registry{tools: make(map[string]Definition)}
}

// Register adds def to the registry, keyed by its name. Re-registering
// a name overwrites the previous definition; callers are expected to
// register once at startup.
func (r *Registry) Register(def Definition) {
	r.tools[def.Name] = def
}

// Lookup returns the definition for name and whether it was found.
func (r *Registry) Lookup(name string) (Definition, bool) {
	def, ok := r.tools[name]
	return def, ok
}

// Names returns every registered tool name.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.tools))
	for n := range r.tools {
		names = append(names, n)
	}
	return names
}
