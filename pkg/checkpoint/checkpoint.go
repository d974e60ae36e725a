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

// Package checkpoint captures and restores workflow state on demand.
// A Manager snapshots the current workflow state plus caller-supplied
// opaque data, and a ResumeCallback lets the owning loop decide what
// restoration rehydrates beyond the workflow state itself.
package checkpoint

import (
	"context"
	"errors"
	"sync"

	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/statemachine"
)

// ErrNotFound is returned when a checkpoint id is unknown to the store.
var ErrNotFound = errors.New("checkpoint: not found")

// Checkpoint is an immutable snapshot of workflow state.
type Checkpoint struct {
	ID         string
	RunID      string
	Timestamp  string
	State      statemachine.State
	OpaqueData map[string]any
}

// Store persists checkpoints. Concrete persistence backends live in
// pkg/persistence; Store is the narrow slice the checkpoint package
// needs.
type Store interface {
	Save(ctx context.Context, cp Checkpoint) error
	Get(ctx context.Context, id string) (Checkpoint, error)
	List(ctx context.Context, runID string) ([]Checkpoint, error)
	Latest(ctx context.Context, runID string) (Checkpoint, error)
}

// MemoryStore is an in-process Store, suitable for tests and single
// process deployments.
type MemoryStore struct {
	mu    sync.Mutex
	byID  map[string]Checkpoint
	order []string
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{byID: make(map[string]Checkpoint)}
}

func (s *MemoryStore) Save(ctx context.Context, cp Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byID[cp.ID]; !exists {
		s.order = append(s.order, cp.ID)
	}
	s.byID[cp.ID] = cp
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, id string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cp, ok := s.byID[id]
	if !ok {
		return Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (s *MemoryStore) List(ctx context.Context, runID string) ([]Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Checkpoint
	for _, id := range s.order {
		if cp := s.byID[id]; cp.RunID == runID {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (s *MemoryStore) Latest(ctx context.Context, runID string) (Checkpoint, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.order) - 1; i >= 0; i-- {
		if cp := s.byID[s.order[i]]; cp.RunID == runID {
			return cp, nil
		}
	}
	return Checkpoint{}, ErrNotFound
}

// ResumeCallback is invoked after a checkpoint is restored, so the
// orchestrator can rehydrate anything beyond workflow state (pending
// diffs, transcript) from OpaqueData.
type ResumeCallback func(cp Checkpoint)

// Manager creates and restores checkpoints against a Store, publishing
// checkpoint.saved / checkpoint.restored events.
type Manager struct {
	store    Store
	machine  *statemachine.Machine
	bus      *event.Bus
	idgen    func() string
	nowISO   func() string
	onResume ResumeCallback
}

// NewManager builds a Manager. idgen and nowISO are injected so tests
// stay deterministic.
func NewManager(store Store, machine *statemachine.Machine, bus *event.Bus, idgen func() string, nowISO func() string) *Manager {
	return &Manager{store: store, machine: machine, bus: bus, idgen: idgen, nowISO: nowISO}
}

// SetResumeCallback registers the hook run after a successful Restore.
func (m *Manager) SetResumeCallback(cb ResumeCallback) {
	m.onResume = cb
}

// Save captures the current workflow state plus caller-supplied opaque
// data into a new Checkpoint.
func (m *Manager) Save(ctx context.Context, runID string, opaqueData map[string]any) (Checkpoint, error) {
	cp := Checkpoint{
		ID:         m.idgen(),
		RunID:      runID,
		Timestamp:  m.nowISO(),
		State:      m.machine.Current(),
		OpaqueData: opaqueData,
	}
	if err := m.store.Save(ctx, cp); err != nil {
		return Checkpoint{}, err
	}
	if m.bus != nil {
		_, _ = m.bus.Emit(event.TypeCheckpointSaved, event.Payload{
			"checkpointId": cp.ID,
			"runId":        cp.RunID,
		}, event.EmitOptions{Actor: event.ActorSystem})
	}
	return cp, nil
}

// Restore rehydrates workflow state from the checkpoint with the given
// id (or, when id is empty, the latest checkpoint for runID), and
// invokes the resume callback if one was registered.
func (m *Manager) Restore(ctx context.Context, runID, id string) (Checkpoint, error) {
	var (
		cp  Checkpoint
		err error
	)
	if id == "" {
		cp, err = m.store.Latest(ctx, runID)
	} else {
		cp, err = m.store.Get(ctx, id)
	}
	if err != nil {
		return Checkpoint{}, err
	}

	m.machine.ForceTransition(cp.State, "checkpoint restored")
	if m.bus != nil {
		_, _ = m.bus.Emit(event.TypeCheckpointRestored, event.Payload{
			"checkpointId": cp.ID,
			"runId":        cp.RunID,
		}, event.EmitOptions{Actor: event.ActorSystem})
	}
	if m.onResume != nil {
		m.onResume(cp)
	}
	return cp, nil
}
