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

package logger_test

import (
	"bytes"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/logger"
)

func TestParseLevel(t *testing.T) {
	tests := []struct {
		in   string
		want slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"INFO", slog.LevelInfo},
		{"Warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"error", slog.LevelError},
		{"nonsense", slog.LevelWarn},
		{"", slog.LevelWarn},
	}
	for _, tt := range tests {
		got, err := logger.ParseLevel(tt.in)
		require.NoError(t, err)
		assert.Equal(t, tt.want, got)
	}
}

func TestNewAtInfoEmitsEngineLogs(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(slog.LevelInfo, &buf)
	log.Info("orchestrator started", "runId", "run-1")
	assert.Contains(t, buf.String(), "orchestrator started")
	assert.Contains(t, buf.String(), "runId=run-1")
}

func TestNewAtDebugBypassesPackageFilter(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(slog.LevelDebug, &buf)
	log.Debug("driver connected")
	assert.Contains(t, buf.String(), "driver connected")
}

func TestNewSuppressesBelowConfiguredLevel(t *testing.T) {
	var buf bytes.Buffer
	log := logger.New(slog.LevelError, &buf)
	log.Warn("should not appear")
	assert.Empty(t, buf.String())
}
