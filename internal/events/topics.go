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

package events

import (
	"chamber/pkg/eventbus"
	"time"
)

var (
	TopicSnapshot eventbus.Topic = "snapshot"
	TopicControl  eventbus.Topic = "control"
	TopicCycle    eventbus.Topic = "cycle"
)

// SnapshotUpdate carries the latest temperature per sensor id.
type SnapshotUpdate struct {
	Time     time.Time          `json:"time"`
	Readings map[string]float64 `json:"readings"`
}

// ControlUpdate is published after every applied PID tick.
type ControlUpdate struct {
	Time    time.Time `json:"time"`
	Current float64   `json:"current"`
	Target  float64   `json:"target"`
	Error   float64   `json:"error"`
	Output  float64   `json:"output"`
}

// CycleUpdate is published on cycle start and stop.
type CycleUpdate struct {
	Time    time.Time `json:"time"`
	CycleID int64     `json:"cycle_id"`
	Name    string    `json:"name"`
	Running bool      `json:"running"`
}
