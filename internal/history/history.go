// Authwatch - Authentication Behavior Profiling and Anomaly Detection
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/authwatch

package history

import (
	"context"
	"sort"

	"github.com/tomtom215/authwatch/internal/event"
	"github.com/tomtom215/authwatch/internal/model"
)

// DefaultMinEvents is the event count at which a profile moves to the trained set.
const DefaultMinEvents = 3

// Set names the collection a profile belongs to.
type Set string

const (
	SetTrained  Set = "trained"
	SetDeferred Set = "deferred"
)

// Profile is the accumulated history of one user.
type Profile struct {
	UserID string        `json:"user_id"`
	Events []event.Event `json:"events"`
	Model  model.State   `json:"model"`

	// saved is how many leading events are already persisted.
	saved int
}

// Repository loads and saves the complete history state. Save persists
// only the changes reported by State.Changes.
type Repository interface {
	// Load returns the persisted state, or an empty state on first use.
	Load(ctx context.Context) (*State, error)

	// Save persists the changes of s atomically and marks them saved.
	Save(ctx context.Context, s *State) error
}

// State holds every known profile, partitioned into trained and deferred.
// A user id is never present in both sets.
//
// State is not safe for concurrent use; a run owns it exclusively.
type State struct {
	Trained  map[string]*Profile
	Deferred map[string]*Profile

	minEvents int
	dirty     map[string]struct{}
}

// NewState returns an empty state. minEvents <= 0 selects DefaultMinEvents.
func NewState(minEvents int) *State {
	if minEvents <= 0 {
		minEvents = DefaultMinEvents
	}
	return &State{
		Trained:   make(map[string]*Profile),
		Deferred:  make(map[string]*Profile),
		minEvents: minEvents,
		dirty:     make(map[string]struct{}),
	}
}

// MinEvents returns the promotion threshold.
func (s *State) MinEvents() int {
	return s.minEvents
}

// MergeResult describes the effect of one Merge call.
type MergeResult struct {
	Profile *Profile
	Set     Set

	// Created is true when the user had no history before the merge.
	Created bool

	// Promoted is true when the merge moved the user from deferred to trained.
	Promoted bool
}

// Merge appends events to the user's profile, creating it if needed.
// A deferred profile that reaches the threshold is moved to the trained set.
// The profile is marked changed.
func (s *State) Merge(userID string, events []event.Event) MergeResult {
	s.dirty[userID] = struct{}{}
	if p, ok := s.Trained[userID]; ok {
		p.Events = append(p.Events, events...)
		return MergeResult{Profile: p, Set: SetTrained}
	}

	p, ok := s.Deferred[userID]
	if !ok {
		p = &Profile{UserID: userID, Model: model.Absent()}
	}
	p.Events = append(p.Events, events...)

	if len(p.Events) >= s.minEvents {
		delete(s.Deferred, userID)
		s.Trained[userID] = p
		return MergeResult{Profile: p, Set: SetTrained, Created: !ok, Promoted: true}
	}

	s.Deferred[userID] = p
	return MergeResult{Profile: p, Set: SetDeferred, Created: !ok}
}

// Lookup returns the profile for userID and the set holding it.
func (s *State) Lookup(userID string) (*Profile, Set, bool) {
	if p, ok := s.Trained[userID]; ok {
		return p, SetTrained, true
	}
	if p, ok := s.Deferred[userID]; ok {
		return p, SetDeferred, true
	}
	return nil, "", false
}

// Put places a persisted profile in set, removing it from the other set.
// Every event of p counts as saved and the profile is not marked changed.
func (s *State) Put(set Set, p *Profile) {
	p.saved = len(p.Events)
	delete(s.dirty, p.UserID)
	switch set {
	case SetTrained:
		delete(s.Deferred, p.UserID)
		s.Trained[p.UserID] = p
	default:
		delete(s.Trained, p.UserID)
		s.Deferred[p.UserID] = p
	}
}

// Change is a profile modified since it was loaded or last saved.
type Change struct {
	Profile *Profile
	Set     Set

	// NewEvents are the events appended since the last save.
	NewEvents []event.Event
}

// Changes returns the modified profiles ordered by user id.
func (s *State) Changes() []Change {
	ids := make([]string, 0, len(s.dirty))
	for id := range s.dirty {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	changes := make([]Change, 0, len(ids))
	for _, id := range ids {
		p, set, ok := s.Lookup(id)
		if !ok {
			continue
		}
		changes = append(changes, Change{
			Profile:   p,
			Set:       set,
			NewEvents: p.Events[min(p.saved, len(p.Events)):],
		})
	}
	return changes
}

// MarkSaved records that every change has been persisted.
func (s *State) MarkSaved() {
	for id := range s.dirty {
		if p, _, ok := s.Lookup(id); ok {
			p.saved = len(p.Events)
		}
	}
	clear(s.dirty)
}

// KnownUsernames returns every username present in the state's history.
func (s *State) KnownUsernames() map[string]struct{} {
	known := make(map[string]struct{})
	for _, set := range []map[string]*Profile{s.Trained, s.Deferred} {
		for _, p := range set {
			for i := range p.Events {
				known[p.Events[i].Username] = struct{}{}
			}
		}
	}
	return known
}

// Counts returns the number of trained and deferred profiles.
func (s *State) Counts() (trained, deferred int) {
	return len(s.Trained), len(s.Deferred)
}

// UserIDs returns all user ids in sorted order.
func (s *State) UserIDs() []string {
	ids := make([]string, 0, len(s.Trained)+len(s.Deferred))
	for id := range s.Trained {
		ids = append(ids, id)
	}
	for id := range s.Deferred {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// GroupByUser splits events by user id, keeping input order within each
// user. The returned ids are in order of first appearance.
func GroupByUser(events []event.Event) (ids []string, byUser map[string][]event.Event) {
	byUser = make(map[string][]event.Event)
	for i := range events {
		id := events[i].UserID
		if _, seen := byUser[id]; !seen {
			ids = append(ids, id)
		}
		byUser[id] = append(byUser[id], events[i])
	}
	return ids, byUser
}
