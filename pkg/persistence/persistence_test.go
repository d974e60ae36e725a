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

package persistence_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/agentrt/conductor/pkg/checkpoint"
	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/persistence"
	"github.com/agentrt/conductor/pkg/statemachine"
)

func TestCreateAndGetRunRoundTrips(t *testing.T) {
	store := persistence.NewMemoryStore()
	run := persistence.Run{ID: "r1", ProjectID: "p1", Status: persistence.RunRunning, CreatedAt: "t0", UpdatedAt: "t0"}
	require.NoError(t, store.CreateRun(context.Background(), run))

	got, err := store.GetRun(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, persistence.RunRunning, got.Status)
}

func TestUpdateRunStatusUnknownReturnsNotFound(t *testing.T) {
	store := persistence.NewMemoryStore()
	err := store.UpdateRunStatus(context.Background(), "missing", persistence.RunCompleted, nil)
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestListRunsFiltersByProject(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.CreateRun(context.Background(), persistence.Run{ID: "r1", ProjectID: "a"}))
	require.NoError(t, store.CreateRun(context.Background(), persistence.Run{ID: "r2", ProjectID: "b"}))

	got, err := store.ListRuns(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "r1", got[0].ID)
}

func TestWriteSinkAppendsEventsPerRun(t *testing.T) {
	store := persistence.NewMemoryStore()
	env := event.Envelope{RunID: "r1", EventID: "e1", Type: event.TypeTurnStart}
	require.NoError(t, store.Write(env))

	got, err := store.GetEvents(context.Background(), "r1")
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "e1", got[0].EventID)
}

func TestDeleteRunRemovesEventsCheckpointsAndSession(t *testing.T) {
	store := persistence.NewMemoryStore()
	require.NoError(t, store.CreateRun(context.Background(), persistence.Run{ID: "r1"}))
	require.NoError(t, store.Write(event.Envelope{RunID: "r1", EventID: "e1"}))
	require.NoError(t, store.SaveCheckpoint(context.Background(), checkpoint.Checkpoint{ID: "c1", RunID: "r1"}))
	require.NoError(t, store.SaveSession(context.Background(), persistence.Session{RunID: "r1"}))

	require.NoError(t, store.DeleteRun(context.Background(), "r1"))

	_, err := store.GetRun(context.Background(), "r1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	events, _ := store.GetEvents(context.Background(), "r1")
	assert.Empty(t, events)
	_, err = store.GetCheckpoint(context.Background(), "c1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
	_, err = store.GetSession(context.Background(), "r1")
	assert.ErrorIs(t, err, persistence.ErrNotFound)
}

func TestCheckpointAdapterSatisfiesCheckpointStore(t *testing.T) {
	store := persistence.NewMemoryStore()
	adapted := persistence.AsCheckpointStore(store)
	cp := checkpoint.Checkpoint{ID: "c1", RunID: "r1", State: statemachine.Implementing}
	require.NoError(t, adapted.Save(context.Background(), cp))

	got, err := adapted.Latest(context.Background(), "r1")
	require.NoError(t, err)
	assert.Equal(t, statemachine.Implementing, got.State)
}
