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

// Package config loads and validates the engine-level configuration:
// approval mode, reflexion retries, intent classifier thresholds, and
// quota hard-limit behavior. A YAML struct config is loaded with
// gopkg.in/yaml.v3, with an optional .env overlay for local
// development. Configuration is never a package-level singleton; it is
// loaded once and threaded explicitly into orchestrator/facade
// constructors.
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/agentrt/conductor/pkg/intent"
	"github.com/agentrt/conductor/pkg/quota"
	"github.com/agentrt/conductor/pkg/toolpipeline"
)

// Config is the full set of engine options the core consumes.
type Config struct {
	ApprovalMode        toolpipeline.ApprovalMode `yaml:"approval_mode"`
	MaxReflexionRetries int                        `yaml:"max_reflexion_retries"`
	ApproveThreshold    float64                    `yaml:"approve_threshold"`
	ConfirmThreshold    float64                    `yaml:"confirm_threshold"`
	ConflictPolicy      intent.ConflictPolicy      `yaml:"conflict_policy"`
	HardLimitBehavior   quota.HardLimitBehavior    `yaml:"hard_limit_behavior"`
	QueueEtaMinutes     int                        `yaml:"queue_eta_minutes"`
	SoftLimitPercent    float64                    `yaml:"soft_limit_percent"`
	PersistEvents       bool                       `yaml:"persist_events"`
	WorkingDirectory    string                     `yaml:"working_directory"`
	LogLevel            string                     `yaml:"log_level"`
}

// Default returns the built-in defaults.
func Default() Config {
	intentDefaults := intent.DefaultConfig()
	quotaDefaults := quota.DefaultConfig()
	return Config{
		ApprovalMode:        toolpipeline.ModeBalanced,
		MaxReflexionRetries: 3,
		ApproveThreshold:    intentDefaults.ApproveThreshold,
		ConfirmThreshold:    intentDefaults.ConfirmThreshold,
		ConflictPolicy:      intentDefaults.ConflictPolicy,
		HardLimitBehavior:   quotaDefaults.HardLimitBehavior,
		QueueEtaMinutes:     quotaDefaults.QueueEtaMinutes,
		SoftLimitPercent:    quotaDefaults.SoftLimitPercent,
		PersistEvents:       true,
		LogLevel:            "info",
	}
}

// SetDefaults fills zero-valued fields with Default()'s values, leaving
// explicitly-set fields untouched.
func (c *Config) SetDefaults() {
	d := Default()
	if c.ApprovalMode == "" {
		c.ApprovalMode = d.ApprovalMode
	}
	if c.MaxReflexionRetries <= 0 {
		c.MaxReflexionRetries = d.MaxReflexionRetries
	}
	if c.ApproveThreshold <= 0 {
		c.ApproveThreshold = d.ApproveThreshold
	}
	if c.ConfirmThreshold <= 0 {
		c.ConfirmThreshold = d.ConfirmThreshold
	}
	if c.ConflictPolicy == "" {
		c.ConflictPolicy = d.ConflictPolicy
	}
	if c.HardLimitBehavior == "" {
		c.HardLimitBehavior = d.HardLimitBehavior
	}
	if c.QueueEtaMinutes <= 0 {
		c.QueueEtaMinutes = d.QueueEtaMinutes
	}
	if c.SoftLimitPercent <= 0 {
		c.SoftLimitPercent = d.SoftLimitPercent
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
}

// Validate checks the invariants the engine relies on.
func (c Config) Validate() error {
	switch c.ApprovalMode {
	case toolpipeline.ModeStrict, toolpipeline.ModeBalanced, toolpipeline.ModeFast:
	default:
		return fmt.Errorf("config: invalid approval_mode %q", c.ApprovalMode)
	}
	if c.MaxReflexionRetries <= 0 {
		return fmt.Errorf("config: max_reflexion_retries must be positive")
	}
	if c.ApproveThreshold <= 0 || c.ApproveThreshold > 1 {
		return fmt.Errorf("config: approve_threshold must be in (0,1]")
	}
	if c.ConfirmThreshold <= 0 || c.ConfirmThreshold > 1 {
		return fmt.Errorf("config: confirm_threshold must be in (0,1]")
	}
	switch c.ConflictPolicy {
	case intent.DenyOverApprove, intent.ApproveOverDeny, intent.ConflictStrict:
	default:
		return fmt.Errorf("config: invalid conflict_policy %q", c.ConflictPolicy)
	}
	switch c.HardLimitBehavior {
	case quota.Block, quota.Degrade, quota.Queue:
	default:
		return fmt.Errorf("config: invalid hard_limit_behavior %q", c.HardLimitBehavior)
	}
	if c.QueueEtaMinutes <= 0 {
		return fmt.Errorf("config: queue_eta_minutes must be positive")
	}
	return nil
}

// Load reads a YAML config file from path, applies defaults, and
// validates the result.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// LoadDotEnv loads a .env file (if present) into the process environment
// for local development: an explicit path first, then .env in the
// current directory. Missing files are not an error; malformed ones are.
func LoadDotEnv(explicitPath string) error {
	candidates := []string{explicitPath, ".env"}
	for _, p := range candidates {
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			continue
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("config: load dotenv %s: %w", p, err)
		}
		return nil
	}
	return nil
}

// IntentConfig projects Config down to the classifier's narrower shape.
func (c Config) IntentConfig() intent.Config {
	return intent.Config{
		ApproveThreshold: c.ApproveThreshold,
		ConfirmThreshold: c.ConfirmThreshold,
		ConflictPolicy:   c.ConflictPolicy,
	}
}

// QuotaConfig projects Config down to the resolver's narrower shape.
func (c Config) QuotaConfig() quota.Config {
	return quota.Config{
		HardLimitBehavior: c.HardLimitBehavior,
		SoftLimitPercent:  c.SoftLimitPercent,
		QueueEtaMinutes:   c.QueueEtaMinutes,
	}
}
