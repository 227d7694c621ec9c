// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

package runstate

import (
	"chamber/internal/events"
	"chamber/internal/profile"
	"chamber/pkg/eventbus"
	"maps"
	"sync"
	"sync/atomic"
	"time"
)

// State is shared by the logging engine, the controller and the web layer.
// It is created once in main and passed explicitly.
type State struct {
	mu        sync.Mutex
	active    bool
	cycleID   int64
	cycleName string

	profile atomic.Pointer[profile.Profile]

	snapMu   sync.Mutex
	snapshot map[string]float64
	snapTime time.Time

	bus *eventbus.Bus
}

// New accepts a nil bus; nothing is published then.
func New(bus *eventbus.Bus) *State {
	return &State{
		snapshot: make(map[string]float64),
		bus:      bus,
	}
}

// Begin marks a cycle active. It returns false if one already is.
func (s *State) Begin(id int64, name string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.active {
		return false
	}
	s.active = true
	s.cycleID = id
	s.cycleName = name
	return true
}

// End clears the active cycle and returns its id.
func (s *State) End() (int64, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.active {
		return 0, false
	}
	id := s.cycleID
	s.active = false
	s.cycleID = 0
	s.cycleName = ""
	return id, true
}

func (s *State) Active() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.active
}

// Cycle returns the active cycle; ok is false when none is.
func (s *State) Cycle() (id int64, name string, ok bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cycleID, s.cycleName, s.active
}

// SetProfile replaces the desired profile as a whole. nil clears it.
func (s *State) SetProfile(p *profile.Profile) {
	s.profile.Store(p)
}

func (s *State) Profile() *profile.Profile {
	return s.profile.Load()
}

// UpdateSnapshot merges readings into the snapshot and publishes the result.
func (s *State) UpdateSnapshot(now time.Time, readings map[string]float64) {
	s.snapMu.Lock()
	maps.Copy(s.snapshot, readings)
	s.snapTime = now
	cp := maps.Clone(s.snapshot)
	s.snapMu.Unlock()

	if s.bus != nil {
		s.bus.Publish(events.TopicSnapshot, events.SnapshotUpdate{Time: now, Readings: cp})
	}
}

// Snapshot returns a copy of the last-known value per sensor.
func (s *State) Snapshot() map[string]float64 {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return maps.Clone(s.snapshot)
}

func (s *State) SnapshotTime() time.Time {
	s.snapMu.Lock()
	defer s.snapMu.Unlock()
	return s.snapTime
}
