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

// Package observability wires OpenTelemetry tracing and Prometheus
// metrics around the engine's own concerns: turns, agent steps, tool
// gate decisions, reflexion attempts, quota checks, and diff applies.
package observability

const (
	AttrRunID     = "run.id"
	AttrState     = "workflow.state"
	AttrActor     = "actor"
	AttrToolName  = "tool.name"
	AttrOperation = "tool.operation"
	AttrDiffID    = "diff.id"
	AttrFilePath  = "diff.file_path"
	AttrErrorType = "error.type"

	SpanTurn      = "orchestrator.turn"
	SpanAgentStep = "orchestrator.agent_step"
	SpanToolCall  = "toolpipeline.call"
	SpanDiffApply = "diffreview.apply"

	DefaultServiceName  = "conductor"
	DefaultMetricsPath  = "/metrics"
	DefaultOTLPEndpoint = "localhost:4317"
	DefaultSamplingRate = 1.0
)
