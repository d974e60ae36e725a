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

// Package diffreview implements hunk-level human review of proposed
// edits: partial approval, rejection, apply, and the derived diff-level
// status. Review commands address hunks through a terse 1-based
// selection grammar, with "all" and the empty selection meaning every
// pending hunk.
package diffreview

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"sort"
	"strconv"
	"strings"

	"github.com/agentrt/conductor/pkg/event"
	"github.com/agentrt/conductor/pkg/statemachine"
)

// HunkStatus is the per-hunk review state.
type HunkStatus string

const (
	HunkPending  HunkStatus = "pending"
	HunkApproved HunkStatus = "approved"
	HunkRejected HunkStatus = "rejected"
)

// DiffStatus is the derived, diff-level state.
type DiffStatus string

const (
	DiffPending    DiffStatus = "pending"
	DiffApproved   DiffStatus = "approved"
	DiffRejected   DiffStatus = "rejected"
	DiffApplied    DiffStatus = "applied"
	DiffRolledBack DiffStatus = "rolled_back"
)

// Hunk is one addressable unit of a proposed edit.
type Hunk struct {
	HunkID   string
	OldStart int
	OldLines int
	NewStart int
	NewLines int
	Content  string
	Status   HunkStatus
}

// Diff is a proposed edit to a single file, reviewed hunk by hunk.
type Diff struct {
	ID       string
	FilePath string
	Hunks    []Hunk

	// applied/rolledBack latch the terminal statuses; once set, Status()
	// never falls back to a value derived from hunk state.
	applied    bool
	rolledBack bool
}

// Status derives the diff's status from hunk state, unless a terminal
// event has already fixed it.
func (d *Diff) Status() DiffStatus {
	if d.rolledBack {
		return DiffRolledBack
	}
	if d.applied {
		return DiffApplied
	}
	anyPending, anyApproved, anyRejected := false, false, false
	for _, h := range d.Hunks {
		switch h.Status {
		case HunkPending:
			anyPending = true
		case HunkApproved:
			anyApproved = true
		case HunkRejected:
			anyRejected = true
		}
	}
	switch {
	case anyPending:
		return DiffPending
	case !anyApproved && anyRejected:
		return DiffRejected
	default:
		return DiffApproved
	}
}

// ErrNoActiveDiff is returned when no diff has a pending hunk.
var ErrNoActiveDiff = errors.New("diffreview: no diff with a pending hunk")

// ErrAuthorityDenied is returned when a diff command is attempted
// outside {IMPLEMENTING, QA}.
var ErrAuthorityDenied = errors.New("diffreview: diff commands are only legal in IMPLEMENTING or QA")

// Store holds the set of diffs proposed during a run, in insertion order.
type Store struct {
	diffs []*Diff
}

// NewStore creates an empty diff Store.
func NewStore() *Store {
	return &Store{}
}

// Propose registers a new diff and returns it.
func (s *Store) Propose(id, filePath string, hunks []Hunk) *Diff {
	for i := range hunks {
		if hunks[i].Status == "" {
			hunks[i].Status = HunkPending
		}
	}
	d := &Diff{ID: id, FilePath: filePath, Hunks: hunks}
	s.diffs = append(s.diffs, d)
	return d
}

// Active returns the first diff, in insertion order, with at least one
// pending hunk.
func (s *Store) Active() (*Diff, bool) {
	for _, d := range s.diffs {
		for _, h := range d.Hunks {
			if h.Status == HunkPending {
				return d, true
			}
		}
	}
	return nil, false
}

// Get returns the diff with the given id.
func (s *Store) Get(id string) (*Diff, bool) {
	for _, d := range s.diffs {
		if d.ID == id {
			return d, true
		}
	}
	return nil, false
}

// parseSelection implements the hunk selection grammar: empty or "all"
// selects every pending hunk; otherwise a comma/whitespace-separated
// list of 1-based indices.
func parseSelection(d *Diff, selection string) []int {
	trimmed := strings.TrimSpace(selection)
	if trimmed == "" || strings.EqualFold(trimmed, "all") {
		var idx []int
		for i, h := range d.Hunks {
			if h.Status == HunkPending {
				idx = append(idx, i)
			}
		}
		return idx
	}

	fields := strings.FieldsFunc(trimmed, func(r rune) bool {
		return r == ',' || r == ' ' || r == '\t'
	})
	seen := make(map[int]bool, len(fields))
	var idx []int
	for _, f := range fields {
		n, err := strconv.Atoi(strings.TrimSpace(f))
		if err != nil {
			continue
		}
		i := n - 1
		if i < 0 || i >= len(d.Hunks) {
			continue
		}
		if d.Hunks[i].Status != HunkPending {
			continue
		}
		if !seen[i] {
			seen[i] = true
			idx = append(idx, i)
		}
	}
	sort.Ints(idx)
	return idx
}

// Review mediates approve/reject commands against the diff Store,
// publishing the hunk-then-terminal event sequence and enforcing
// diff-command authority against the state machine.
type Review struct {
	store   *Store
	machine *statemachine.Machine
	bus     *event.Bus
	actor   event.Actor
}

// NewReview binds a Review to store, machine, and bus.
func NewReview(store *Store, machine *statemachine.Machine, bus *event.Bus, actor event.Actor) *Review {
	return &Review{store: store, machine: machine, bus: bus, actor: actor}
}

func (r *Review) checkAuthority() error {
	s := r.machine.Current()
	if s != statemachine.Implementing && s != statemachine.QA {
		return ErrAuthorityDenied
	}
	return nil
}

// Approve applies the approve command to the active diff's selection.
func (r *Review) Approve(selection string) (*Diff, error) {
	if err := r.checkAuthority(); err != nil {
		return nil, err
	}
	d, ok := r.store.Active()
	if !ok {
		return nil, ErrNoActiveDiff
	}

	explicit := !isAllSelection(selection)
	idx := parseSelection(d, selection)
	selected := make(map[int]bool, len(idx))
	for _, i := range idx {
		selected[i] = true
	}

	for _, i := range idx {
		d.Hunks[i].Status = HunkApproved
		r.emitHunkApproved(d, d.Hunks[i])
	}

	if explicit {
		for i := range d.Hunks {
			if d.Hunks[i].Status == HunkPending && !selected[i] {
				d.Hunks[i].Status = HunkRejected
				r.emitHunkRejected(d, d.Hunks[i], "Not selected during partial approval")
			}
		}
	}

	r.emit(event.TypeDiffApproved, event.Payload{"diffId": d.ID})

	checksum := checksumApprovedHunks(d)
	r.emit(event.TypeDiffApplied, event.Payload{
		"diffId":   d.ID,
		"filePath": d.FilePath,
		"checksum": checksum,
	})
	d.applied = true

	if r.machine.Current() == statemachine.Implementing {
		_, _ = r.machine.Transition(statemachine.QA, "diff applied")
	}

	return d, nil
}

// Reject applies the reject command to the active diff's selection.
func (r *Review) Reject(selection string) (*Diff, error) {
	if err := r.checkAuthority(); err != nil {
		return nil, err
	}
	d, ok := r.store.Active()
	if !ok {
		return nil, ErrNoActiveDiff
	}

	isAll := isAllSelection(selection)
	idx := parseSelection(d, selection)
	for _, i := range idx {
		d.Hunks[i].Status = HunkRejected
		r.emitHunkRejected(d, d.Hunks[i], "")
	}

	anyPending := false
	for _, h := range d.Hunks {
		if h.Status == HunkPending {
			anyPending = true
			break
		}
	}
	if isAll || !anyPending {
		r.emit(event.TypeDiffRejected, event.Payload{"diffId": d.ID})
	}

	return d, nil
}

func isAllSelection(selection string) bool {
	trimmed := strings.TrimSpace(selection)
	return trimmed == "" || strings.EqualFold(trimmed, "all")
}

func checksumApprovedHunks(d *Diff) string {
	var sb strings.Builder
	for _, h := range d.Hunks {
		if h.Status == HunkApproved {
			sb.WriteString(h.Content)
		}
	}
	sum := sha256.Sum256([]byte(sb.String()))
	return hex.EncodeToString(sum[:])
}

func (r *Review) emit(typ event.Type, payload event.Payload) {
	_, _ = r.bus.Emit(typ, payload, event.EmitOptions{Actor: r.actor})
}

func (r *Review) emitHunkApproved(d *Diff, h Hunk) {
	r.emit(event.TypeDiffHunkApproved, event.Payload{"diffId": d.ID, "hunkId": h.HunkID})
}

func (r *Review) emitHunkRejected(d *Diff, h Hunk, reason string) {
	payload := event.Payload{"diffId": d.ID, "hunkId": h.HunkID}
	if reason != "" {
		payload["reason"] = reason
	}
	r.emit(event.TypeDiffHunkRejected, payload)
}
