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

// Package logger builds the log/slog.Logger every other package in this
// module accepts as a constructor argument. There is no CLI or terminal
// surface in this engine, so this is deliberately narrower than a full
// terminal logging setup: one structured text handler, a level parsed
// from the configured log_level string, and a filtering layer that
// keeps third-party library noise out of anything below debug. There is
// no package-level default logger or slog.SetDefault call; New always
// returns an explicit *slog.Logger for the caller to thread through
// (pkg/orchestrator.Config.Logger, pkg/event.NewBus).
package logger

import (
	"context"
	"io"
	"log/slog"
	"runtime"
	"strings"
)

const enginePackagePrefix = "github.com/agentrt/conductor"

// ParseLevel converts a case-insensitive level name to a slog.Level.
// Unrecognized values fall back to warn rather than erroring, so a typo
// in a YAML config degrades logging verbosity instead of failing
// startup.
func ParseLevel(levelStr string) (slog.Level, error) {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelWarn, nil
	}
}

// filteringHandler wraps a slog.Handler and suppresses log records
// emitted from outside this module's own packages once the configured
// level is above debug. It exists because the engine's dependency
// stack (OpenTelemetry, database/sql drivers, fsnotify, ...) logs
// through the default slog logger too, and at info/warn/error that
// noise would otherwise drown out the orchestrator's own state
// transitions and policy decisions.
type filteringHandler struct {
	handler  slog.Handler
	minLevel slog.Level
}

func (h *filteringHandler) Enabled(ctx context.Context, level slog.Level) bool {
	if level < h.minLevel {
		return false
	}
	return h.handler.Enabled(ctx, level)
}

func (h *filteringHandler) Handle(ctx context.Context, record slog.Record) error {
	if h.minLevel <= slog.LevelDebug || isEnginePackage(record.PC) {
		return h.handler.Handle(ctx, record)
	}
	return nil
}

func (h *filteringHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &filteringHandler{handler: h.handler.WithAttrs(attrs), minLevel: h.minLevel}
}

func (h *filteringHandler) WithGroup(name string) slog.Handler {
	return &filteringHandler{handler: h.handler.WithGroup(name), minLevel: h.minLevel}
}

// isEnginePackage reports whether pc (a slog.Record's program counter)
// belongs to one of this module's own packages.
func isEnginePackage(pc uintptr) bool {
	if pc == 0 {
		return false
	}
	fn := runtime.FuncForPC(pc)
	if fn == nil {
		return false
	}
	return strings.Contains(fn.Name(), enginePackagePrefix)
}

// New builds a *slog.Logger at level, writing to w as structured text,
// with third-party log noise filtered out below debug. Every
// component that needs a logger and was not handed one
// explicitly builds it through here (pkg/orchestrator.New,
// pkg/event.NewBus's default), rather than reaching for
// slog.Default().
func New(level slog.Level, w io.Writer) *slog.Logger {
	base := slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})
	return slog.New(&filteringHandler{handler: base, minLevel: level})
}
