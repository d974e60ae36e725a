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

package quota_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/agentrt/conductor/pkg/quota"
)

func TestBlockBehaviorReturnsNeedsInput(t *testing.T) {
	r := quota.NewResolver(quota.Config{HardLimitBehavior: quota.Block})
	res := r.Check(quota.Usage{TokensUsed: 1000, TokensLimit: 1000, RequestsToday: 1, RequestsLimit: 100}, 0)
	assert.False(t, res.Allowed)
	assert.Equal(t, quota.ResultNeedsInput, res.ResultType)
	assert.NotEmpty(t, res.RecommendedAction)
}

func TestDegradeBehaviorAllowsWithCheapProfile(t *testing.T) {
	r := quota.NewResolver(quota.Config{HardLimitBehavior: quota.Degrade})
	res := r.Check(quota.Usage{TokensUsed: 1000, TokensLimit: 1000, RequestsToday: 1, RequestsLimit: 100}, 0)
	assert.True(t, res.Allowed)
	assert.Equal(t, quota.ResultDegraded, res.ResultType)
	assert.Equal(t, "cheap", res.DegradedProfile)
}

func TestQueueBehaviorBlocksWithEtaFloorOfOneMinute(t *testing.T) {
	r := quota.NewResolver(quota.Config{HardLimitBehavior: quota.Queue, QueueEtaMinutes: 0})
	res := r.Check(quota.Usage{TokensUsed: 1000, TokensLimit: 1000, RequestsToday: 1, RequestsLimit: 100}, 0)
	assert.False(t, res.Allowed)
	assert.Equal(t, quota.ResultQueued, res.ResultType)
	assert.Equal(t, 1, res.Queue.EtaMinutes)
}

func TestSoftLimitWarnsWithoutBlocking(t *testing.T) {
	r := quota.NewResolver(quota.Config{SoftLimitPercent: 0.8})
	res := r.Check(quota.Usage{TokensUsed: 850, TokensLimit: 1000, RequestsToday: 1, RequestsLimit: 100}, 0)
	assert.True(t, res.Allowed)
	assert.Equal(t, quota.ResultWarn, res.ResultType)
}

func TestUnderSoftLimitAllowsCleanly(t *testing.T) {
	r := quota.NewResolver(quota.DefaultConfig())
	res := r.Check(quota.Usage{TokensUsed: 100, TokensLimit: 1000, RequestsToday: 1, RequestsLimit: 100}, 0)
	assert.True(t, res.Allowed)
	assert.Equal(t, quota.ResultAllow, res.ResultType)
}

func TestRequestedTokensPushingOverLimitIsBlocked(t *testing.T) {
	r := quota.NewResolver(quota.Config{HardLimitBehavior: quota.Block})
	res := r.Check(quota.Usage{TokensUsed: 900, TokensLimit: 1000, RequestsToday: 1, RequestsLimit: 100}, 200)
	assert.False(t, res.Allowed)
	assert.Equal(t, quota.ResultNeedsInput, res.ResultType)
}
