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

// Package persistence defines the Run/Event/Checkpoint/Session store
// port the bus writes through to, plus an in-memory implementation.
// The contract also has a multi-dialect SQL implementation (sql.go)
// built on database/sql with blank-imported drivers.
package persistence

import (
	"context"
	"errors"
	"sync"

	"github.com/agentrt/conductor/pkg/checkpoint"
	"github.com/agentrt/conductor/pkg/event"
)

// ErrNotFound is returned when a requested Run, Session, or Checkpoint
// does not exist.
var ErrNotFound = errors.New("persistence: not found")

// RunStatus is the lifecycle state of a Run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunCompleted RunStatus = "completed"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// Run is the top-level entity owning events, checkpoints, and sessions.
type Run struct {
	ID               string
	ProjectID        string
	WorkingDirectory string
	Status           RunStatus
	Config           map[string]any
	CreatedAt        string
	UpdatedAt        string
	CompletedAt      *string
}

// Session is an opaque, run-scoped blob (conversation/agent state) the
// orchestrator persists and reloads verbatim.
type Session struct {
	RunID     string
	Data      map[string]any
	UpdatedAt string
}

// Store is the full persistence port the bus and orchestrator consume.
// It is implemented by MemoryStore (tests, single process) and SQLStore
// (durable, multi-dialect).
type Store interface {
	event.Sink

	CreateRun(ctx context.Context, run Run) error
	UpdateRunStatus(ctx context.Context, runID string, status RunStatus, completedAt *string) error
	GetRun(ctx context.Context, runID string) (Run, error)
	ListRuns(ctx context.Context, projectID string) ([]Run, error)
	DeleteRun(ctx context.Context, runID string) error

	GetEvents(ctx context.Context, runID string) ([]event.Envelope, error)

	SaveCheckpoint(ctx context.Context, cp checkpoint.Checkpoint) error
	GetCheckpoint(ctx context.Context, id string) (checkpoint.Checkpoint, error)
	ListCheckpoints(ctx context.Context, runID string) ([]checkpoint.Checkpoint, error)
	GetLatestCheckpoint(ctx context.Context, runID string) (checkpoint.Checkpoint, error)

	SaveSession(ctx context.Context, s Session) error
	GetSession(ctx context.Context, runID string) (Session, error)
}

// MemoryStore is a process-local Store. Safe for concurrent use.
type MemoryStore struct {
	mu          sync.Mutex
	runs        map[string]Run
	runOrder    []string
	events      map[string][]event.Envelope
	checkpoints map[string]checkpoint.Checkpoint
	cpOrder     []string
	sessions    map[string]Session
}

// NewMemoryStore builds an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		runs:        make(map[string]Run),
		events:      make(map[string][]event.Envelope),
		checkpoints: make(map[string]checkpoint.Checkpoint),
		sessions:    make(map[string]Session),
	}
}

// Write implements event.Sink, appending env under its RunID.
func (m *MemoryStore) Write(env event.Envelope) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.events[env.RunID] = append(m.events[env.RunID], env)
	return nil
}

func (m *MemoryStore) CreateRun(ctx context.Context, run Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.runs[run.ID]; !exists {
		m.runOrder = append(m.runOrder, run.ID)
	}
	m.runs[run.ID] = run
	return nil
}

func (m *MemoryStore) UpdateRunStatus(ctx context.Context, runID string, status RunStatus, completedAt *string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return ErrNotFound
	}
	run.Status = status
	run.CompletedAt = completedAt
	m.runs[runID] = run
	return nil
}

func (m *MemoryStore) GetRun(ctx context.Context, runID string) (Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return Run{}, ErrNotFound
	}
	return run, nil
}

func (m *MemoryStore) ListRuns(ctx context.Context, projectID string) ([]Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []Run
	for _, id := range m.runOrder {
		if run := m.runs[id]; projectID == "" || run.ProjectID == projectID {
			out = append(out, run)
		}
	}
	return out, nil
}

func (m *MemoryStore) DeleteRun(ctx context.Context, runID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.runs, runID)
	delete(m.events, runID)
	delete(m.sessions, runID)
	for id, cp := range m.checkpoints {
		if cp.RunID == runID {
			delete(m.checkpoints, id)
		}
	}
	for i, id := range m.runOrder {
		if id == runID {
			m.runOrder = append(m.runOrder[:i], m.runOrder[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MemoryStore) GetEvents(ctx context.Context, runID string) ([]event.Envelope, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Envelope(nil), m.events[runID]...), nil
}

func (m *MemoryStore) SaveCheckpoint(ctx context.Context, cp checkpoint.Checkpoint) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.checkpoints[cp.ID]; !exists {
		m.cpOrder = append(m.cpOrder, cp.ID)
	}
	m.checkpoints[cp.ID] = cp
	return nil
}

func (m *MemoryStore) GetCheckpoint(ctx context.Context, id string) (checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp, ok := m.checkpoints[id]
	if !ok {
		return checkpoint.Checkpoint{}, ErrNotFound
	}
	return cp, nil
}

func (m *MemoryStore) ListCheckpoints(ctx context.Context, runID string) ([]checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []checkpoint.Checkpoint
	for _, id := range m.cpOrder {
		if cp := m.checkpoints[id]; cp.RunID == runID {
			out = append(out, cp)
		}
	}
	return out, nil
}

func (m *MemoryStore) GetLatestCheckpoint(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := len(m.cpOrder) - 1; i >= 0; i-- {
		if cp := m.checkpoints[m.cpOrder[i]]; cp.RunID == runID {
			return cp, nil
		}
	}
	return checkpoint.Checkpoint{}, ErrNotFound
}

func (m *MemoryStore) SaveSession(ctx context.Context, s Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.RunID] = s
	return nil
}

func (m *MemoryStore) GetSession(ctx context.Context, runID string) (Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[runID]
	if !ok {
		return Session{}, ErrNotFound
	}
	return s, nil
}

var _ Store = (*MemoryStore)(nil)
var _ checkpoint.Store = checkpointAdapter{}

// checkpointAdapter narrows Store to checkpoint.Store so a persistence
// Store can back a checkpoint.Manager directly.
type checkpointAdapter struct {
	Store
}

func (a checkpointAdapter) Save(ctx context.Context, cp checkpoint.Checkpoint) error {
	return a.Store.SaveCheckpoint(ctx, cp)
}

func (a checkpointAdapter) Get(ctx context.Context, id string) (checkpoint.Checkpoint, error) {
	return a.Store.GetCheckpoint(ctx, id)
}

func (a checkpointAdapter) List(ctx context.Context, runID string) ([]checkpoint.Checkpoint, error) {
	return a.Store.ListCheckpoints(ctx, runID)
}

func (a checkpointAdapter) Latest(ctx context.Context, runID string) (checkpoint.Checkpoint, error) {
	return a.Store.GetLatestCheckpoint(ctx, runID)
}

// AsCheckpointStore adapts any Store to checkpoint.Store.
func AsCheckpointStore(s Store) checkpoint.Store {
	return checkpointAdapter{Store: s}
}
