package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/toolpipeline"
)

func TestDefaultIsValid(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, toolpipeline.ModeBalanced, cfg.ApprovalMode)
	assert.Equal(t, 3, cfg.MaxReflexionRetries)
}

func TestSetDefaultsFillsOnlyZeroFields(t *testing.T) {
	cfg := Config{ApprovalMode: toolpipeline.ModeStrict, MaxReflexionRetries: 5}
	cfg.SetDefaults()
	assert.Equal(t, toolpipeline.ModeStrict, cfg.ApprovalMode)
	assert.Equal(t, 5, cfg.MaxReflexionRetries)
	assert.Equal(t, Default().ApproveThreshold, cfg.ApproveThreshold)
}

func TestValidateRejectsBadApprovalMode(t *testing.T) {
	cfg := Default()
	cfg.ApprovalMode = "turbo"
	assert.Error(t, cfg.Validate())
}

func TestValidateRejectsBadThresholds(t *testing.T) {
	cfg := Default()
	cfg.ApproveThreshold = 1.5
	assert.Error(t, cfg.Validate())
}

func TestLoadYAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "conductor.yaml")
	yamlContent := "approval_mode: fast\nmax_reflexion_retries: 2\n"
	require.NoError(t, os.WriteFile(path, []byte(yamlContent), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, toolpipeline.ModeFast, cfg.ApprovalMode)
	assert.Equal(t, 2, cfg.MaxReflexionRetries)
}

func TestLoadDotEnvMissingFileIsNotError(t *testing.T) {
	assert.NoError(t, LoadDotEnv(filepath.Join(t.TempDir(), "missing.env")))
}
