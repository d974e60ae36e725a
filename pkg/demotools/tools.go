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

// Package demotools provides a small set of concrete tool.Definition
// handlers (filesystem read/write, shell exec, git status) so a
// workflow can be exercised end to end without a real model-backed
// tool surface. The handlers keep the usual security posture (path
// confinement, denied-command patterns, execution timeout), with their
// argument structs declared once and shared between tool.Decode and
// tool.SchemaFor so a handler's schema can never drift from what it
// actually decodes.
package demotools

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/agentrt/conductor/pkg/tool"
	"github.com/agentrt/conductor/pkg/toolpipeline"
)

// defaultExecTimeout bounds exec_shell; there is no per-call override
// in this narrower handler set.
const defaultExecTimeout = 2 * time.Minute

// readArgs is fs_read's argument shape.
type readArgs struct {
	Path string `tool:"path" jsonschema:"required,description=Path to read, relative to the working directory"`
}

// writeArgs is fs_write's argument shape.
type writeArgs struct {
	Path    string `tool:"path" jsonschema:"required,description=Path to write, relative to the working directory"`
	Content string `tool:"content" jsonschema:"required,description=Full file content to write"`
}

// execArgs is exec_shell's argument shape.
type execArgs struct {
	Command string `tool:"command" jsonschema:"required,description=Shell command to execute"`
}

// gitStatusArgs is git_status's (empty) argument shape, kept as a
// struct so it still derives a schema via SchemaFor.
type gitStatusArgs struct{}

// resolveWithinRoot joins root and path and refuses to resolve outside
// root.
func resolveWithinRoot(root, path string) (string, error) {
	if root == "" {
		root = "."
	}
	full := filepath.Join(root, path)
	rel, err := filepath.Rel(root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", fmt.Errorf("demotools: path %q escapes working directory", path)
	}
	return full, nil
}

// NewFSRead returns the fs_read tool.Definition, confined to root.
func NewFSRead(root string) tool.Definition {
	var zero readArgs
	return tool.Definition{
		Name:        "fs_read",
		Description: "Read a file's full contents as text.",
		Parameters:  tool.SchemaFor(&zero),
		Operation:   tool.OpRead,
		Handler: func(ctx context.Context, args tool.Arguments) tool.Result {
			var a readArgs
			if err := tool.Decode(args, &a); err != nil {
				return tool.Result{Error: err.Error()}
			}
			path, err := resolveWithinRoot(root, a.Path)
			if err != nil {
				return tool.Result{Error: err.Error()}
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return tool.Result{Error: err.Error()}
			}
			return tool.Result{Success: true, Data: string(data)}
		},
	}
}

// NewFSWrite returns the fs_write tool.Definition, confined to root.
func NewFSWrite(root string) tool.Definition {
	var zero writeArgs
	return tool.Definition{
		Name:        "fs_write",
		Description: "Write a file's full contents, creating parent directories as needed.",
		Parameters:  tool.SchemaFor(&zero),
		Operation:   tool.OpWrite,
		Handler: func(ctx context.Context, args tool.Arguments) tool.Result {
			var a writeArgs
			if err := tool.Decode(args, &a); err != nil {
				return tool.Result{Error: err.Error()}
			}
			path, err := resolveWithinRoot(root, a.Path)
			if err != nil {
				return tool.Result{Error: err.Error()}
			}
			if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
				return tool.Result{Error: err.Error()}
			}
			if err := os.WriteFile(path, []byte(a.Content), 0644); err != nil {
				return tool.Result{Error: err.Error()}
			}
			return tool.Result{Success: true, Metadata: map[string]any{"bytesWritten": len(a.Content)}}
		},
	}
}

// NewExecShell returns the exec_shell tool.Definition, confined to root
// and rejecting toolpipeline.DefaultDangerousPatterns as a
// defense-in-depth check alongside the pipeline's own dangerous-command
// gate: this handler-level check protects direct callers that bypass
// the pipeline entirely, such as in tests.
func NewExecShell(root string) tool.Definition {
	var zero execArgs
	return tool.Definition{
		Name:        "exec_shell",
		Description: "Execute a shell command in the working directory.",
		Parameters:  tool.SchemaFor(&zero),
		Operation:   tool.OpExec,
		Handler: func(ctx context.Context, args tool.Arguments) tool.Result {
			var a execArgs
			if err := tool.Decode(args, &a); err != nil {
				return tool.Result{Error: err.Error()}
			}
			for _, re := range toolpipeline.DefaultDangerousPatterns {
				if re.MatchString(a.Command) {
					return tool.Result{Error: "command matches denied pattern " + re.String()}
				}
			}

			execCtx, cancel := context.WithTimeout(ctx, defaultExecTimeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, "sh", "-c", a.Command)
			if root != "" {
				cmd.Dir = root
			}
			out, err := cmd.CombinedOutput()
			result := tool.Result{
				Success: err == nil,
				Data:    string(out),
				Metadata: map[string]any{
					"command": a.Command,
				},
			}
			if err != nil {
				result.Error = err.Error()
			}
			return result
		},
	}
}

// NewGitStatus returns the git_status tool.Definition: a thin,
// read-only wrapper around `git status --short`.
func NewGitStatus(root string) tool.Definition {
	var zero gitStatusArgs
	return tool.Definition{
		Name:        "git_status",
		Description: "Report the working tree's git status in short form.",
		Parameters:  tool.SchemaFor(&zero),
		Operation:   tool.OpRead,
		Handler: func(ctx context.Context, args tool.Arguments) tool.Result {
			execCtx, cancel := context.WithTimeout(ctx, defaultExecTimeout)
			defer cancel()

			cmd := exec.CommandContext(execCtx, "git", "status", "--short")
			if root != "" {
				cmd.Dir = root
			}
			out, err := cmd.CombinedOutput()
			if err != nil {
				return tool.Result{Error: string(out) + err.Error()}
			}
			return tool.Result{Success: true, Data: string(out)}
		},
	}
}

// RegisterAll registers every demo tool, rooted at workingDirectory,
// into reg.
func RegisterAll(reg *tool.Registry, workingDirectory string) {
	reg.Register(NewFSRead(workingDirectory))
	reg.Register(NewFSWrite(workingDirectory))
	reg.Register(NewExecShell(workingDirectory))
	reg.Register(NewGitStatus(workingDirectory))
}
