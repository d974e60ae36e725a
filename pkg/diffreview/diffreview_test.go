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

package diffreview_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/diffreview"
	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/statemachine"
)

func newReview(initial statemachine.State) (*diffreview.Review, *diffreview.Store, *statemachine.Machine, *event.Bus) {
	m := statemachine.New(initial)
	bus := event.NewBus("run-1", func() string { return string(m.Current()) }, nil, nil)
	store := diffreview.NewStore()
	return diffreview.NewReview(store, m, bus, event.ActorBuilderAgent), store, m, bus
}

func threeHunks() []diffreview.Hunk {
	return []diffreview.Hunk{
		{HunkID: "h1", Content: "a"},
		{HunkID: "h2", Content: "b"},
		{HunkID: "h3", Content: "c"},
	}
}

func TestApproveAllMarksEveryHunkApprovedAndAppliesDiff(t *testing.T) {
	r, store, m, bus := newReview(statemachine.Implementing)
	d := store.Propose("d1", "main.go", threeHunks())

	var types []event.Type
	bus.OnAll(func(env event.Envelope) { types = append(types, env.Type) })

	out, err := r.Approve("all")
	require.NoError(t, err)
	assert.Equal(t, diffreview.DiffApplied, out.Status())
	assert.Equal(t, statemachine.QA, m.Current())

	for _, h := range d.Hunks {
		assert.Equal(t, diffreview.HunkApproved, h.Status)
	}
	assert.Contains(t, types, event.TypeDiffApproved)
	assert.Contains(t, types, event.TypeDiffApplied)
}

func TestPartialApprovalRejectsUnselectedHunks(t *testing.T) {
	r, store, _, _ := newReview(statemachine.Implementing)
	d := store.Propose("d1", "main.go", threeHunks())

	out, err := r.Approve("1,3")
	require.NoError(t, err)
	assert.Equal(t, diffreview.HunkApproved, d.Hunks[0].Status)
	assert.Equal(t, diffreview.HunkRejected, d.Hunks[1].Status)
	assert.Equal(t, diffreview.HunkApproved, d.Hunks[2].Status)
	assert.Equal(t, diffreview.DiffApplied, out.Status())
}

func TestRejectAllEmitsDiffRejectedAndDerivedStatus(t *testing.T) {
	r, store, _, _ := newReview(statemachine.QA)
	d := store.Propose("d1", "main.go", threeHunks())

	out, err := r.Reject("all")
	require.NoError(t, err)
	assert.Equal(t, diffreview.DiffRejected, out.Status())
	for _, h := range d.Hunks {
		assert.Equal(t, diffreview.HunkRejected, h.Status)
	}
}

func TestRejectPartialLeavesDiffPendingUntilAllResolved(t *testing.T) {
	r, store, _, _ := newReview(statemachine.QA)
	d := store.Propose("d1", "main.go", threeHunks())

	out, err := r.Reject("2")
	require.NoError(t, err)
	assert.Equal(t, diffreview.DiffPending, out.Status())
	assert.Equal(t, diffreview.HunkRejected, d.Hunks[1].Status)
}

func TestActiveSkipsDiffsWithNoPendingHunks(t *testing.T) {
	_, store, _, _ := newReview(statemachine.Implementing)
	resolved := store.Propose("d0", "a.go", []diffreview.Hunk{{HunkID: "h0", Status: diffreview.HunkApproved}})
	active := store.Propose("d1", "b.go", threeHunks())

	got, ok := store.Active()
	require.True(t, ok)
	assert.Equal(t, active.ID, got.ID)
	assert.NotEqual(t, resolved.ID, got.ID)
}

func TestAuthorityDeniedOutsideImplementingOrQA(t *testing.T) {
	r, store, _, _ := newReview(statemachine.Review)
	store.Propose("d1", "main.go", threeHunks())

	_, err := r.Approve("all")
	assert.ErrorIs(t, err, diffreview.ErrAuthorityDenied)
}

func TestNoActiveDiffWhenStoreEmpty(t *testing.T) {
	r, _, _, _ := newReview(statemachine.Implementing)
	_, err := r.Approve("all")
	assert.ErrorIs(t, err, diffreview.ErrNoActiveDiff)
}

func TestChecksumIsStableAndOmitsRejectedContent(t *testing.T) {
	var checksums [2]string
	for i := range checksums {
		r, store, _, bus := newReview(statemachine.Implementing)
		store.Propose("d1", "main.go", threeHunks())
		bus.On(event.TypeDiffApplied, func(env event.Envelope) {
			checksums[i], _ = env.Payload["checksum"].(string)
		})
		_, err := r.Approve("1,3")
		require.NoError(t, err)
	}
	assert.Equal(t, checksums[0], checksums[1])

	r, store, _, bus := newReview(statemachine.Implementing)
	store.Propose("d1", "main.go", threeHunks())
	var allChecksum string
	bus.On(event.TypeDiffApplied, func(env event.Envelope) {
		allChecksum, _ = env.Payload["checksum"].(string)
	})
	_, err := r.Approve("all")
	require.NoError(t, err)
	assert.NotEqual(t, checksums[0], allChecksum)
}
