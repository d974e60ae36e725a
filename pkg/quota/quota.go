// SPDX-License-Identifier: AGPL-3.0
// Copyright 2025 Kadir Pekel
//
// Licensed under the GNU Affero General Public License v3.0 (AGPL-3.0) (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     https://www.gnu.org/licenses/agpl-3.0.en.html
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package quota implements the block/degrade/queue hard-limit contract
// and the soft-limit warning overlay at the plan boundary, evaluating a
// Usage snapshot against the single monthly token/request budget the
// workflow resolver checks against.
package quota

import (
	"time"
)

// HardLimitBehavior selects what happens once usage reaches the hard
// limit.
type HardLimitBehavior string

const (
	Block   HardLimitBehavior = "block"
	Degrade HardLimitBehavior = "degrade"
	Queue   HardLimitBehavior = "queue"
)

// ResultType is the outcome classification returned to the caller.
type ResultType string

const (
	ResultAllow      ResultType = "allow"
	ResultWarn       ResultType = "warn"
	ResultNeedsInput ResultType = "needs_input"
	ResultDegraded   ResultType = "degraded"
	ResultQueued     ResultType = "queued"
)

// Action is the coarse disposition: whether the caller should proceed.
type Action string

const (
	ActionAllow Action = "allow"
	ActionWarn  Action = "warn"
	ActionBlock Action = "block"
)

// Usage is the current consumption snapshot a Check evaluates.
type Usage struct {
	TokensUsed    int64
	TokensLimit   int64
	RequestsToday int64
	RequestsLimit int64
}

// Config tunes the resolver's behavior.
type Config struct {
	HardLimitBehavior HardLimitBehavior
	SoftLimitPercent  float64
	QueueEtaMinutes   int
}

// DefaultConfig blocks on hard limit, warns at 80% usage, and gives a
// minimum one-minute queue ETA.
func DefaultConfig() Config {
	return Config{
		HardLimitBehavior: Block,
		SoftLimitPercent:  0.8,
		QueueEtaMinutes:   1,
	}
}

// QueueInfo describes a queued request's expected wait.
type QueueInfo struct {
	EtaMinutes int
	QueuedAt   string
}

// Result is a quota check's outcome.
type Result struct {
	Allowed           bool
	Action            Action
	ResultType        ResultType
	DegradedProfile   string
	Warning           string
	RecommendedAction string
	Queue             *QueueInfo
}

// Resolver evaluates usage against a Config and requested token cost.
type Resolver struct {
	cfg Config
	now func() time.Time
}

// NewResolver builds a Resolver, filling unset fields with DefaultConfig.
func NewResolver(cfg Config) *Resolver {
	defaults := DefaultConfig()
	if cfg.HardLimitBehavior == "" {
		cfg.HardLimitBehavior = defaults.HardLimitBehavior
	}
	if cfg.SoftLimitPercent <= 0 {
		cfg.SoftLimitPercent = defaults.SoftLimitPercent
	}
	if cfg.QueueEtaMinutes <= 0 {
		cfg.QueueEtaMinutes = defaults.QueueEtaMinutes
	}
	return &Resolver{cfg: cfg, now: time.Now}
}

// Check evaluates usage and a requested additional token cost and
// returns a deterministic Result.
func (r *Resolver) Check(usage Usage, requestedTokens int64) Result {
	hardExceeded := usage.TokensUsed >= usage.TokensLimit ||
		usage.RequestsToday >= usage.RequestsLimit ||
		(usage.TokensLimit > 0 && usage.TokensUsed+requestedTokens > usage.TokensLimit)

	if hardExceeded {
		return r.resolveHardLimit()
	}

	if r.exceedsSoftLimit(usage) {
		return Result{
			Allowed:    true,
			Action:     ActionWarn,
			ResultType: ResultWarn,
			Warning:    "Usage is approaching the configured limit.",
		}
	}

	return Result{Allowed: true, Action: ActionAllow, ResultType: ResultAllow}
}

func (r *Resolver) exceedsSoftLimit(usage Usage) bool {
	if usage.TokensLimit > 0 {
		if pct := float64(usage.TokensUsed) / float64(usage.TokensLimit); pct >= r.cfg.SoftLimitPercent {
			return true
		}
	}
	if usage.RequestsLimit > 0 {
		if pct := float64(usage.RequestsToday) / float64(usage.RequestsLimit); pct >= r.cfg.SoftLimitPercent {
			return true
		}
	}
	return false
}

func (r *Resolver) resolveHardLimit() Result {
	switch r.cfg.HardLimitBehavior {
	case Degrade:
		return Result{
			Allowed:         true,
			Action:          ActionWarn,
			ResultType:      ResultDegraded,
			DegradedProfile: "cheap",
			Warning:         "Usage has reached the configured limit. Auto-degrading to low-cost profile.",
		}
	case Queue:
		eta := r.cfg.QueueEtaMinutes
		if eta < 1 {
			eta = 1
		}
		return Result{
			Allowed:    false,
			Action:     ActionBlock,
			ResultType: ResultQueued,
			Queue: &QueueInfo{
				EtaMinutes: eta,
				QueuedAt:   r.now().UTC().Format(time.RFC3339),
			},
		}
	default: // Block
		return Result{
			Allowed:           false,
			Action:            ActionBlock,
			ResultType:        ResultNeedsInput,
			RecommendedAction: "Reduce workload, wait for reset, or upgrade plan.",
		}
	}
}
