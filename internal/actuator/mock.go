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

package actuator

import (
	"chamber/pkg/logger"
	"sync"
)

// Command is one recorded call on a Mock.
type Command struct {
	Op      string // "heat", "cool" or "stop"
	Percent float64
}

// Mock is an in-memory Port. It is the default backend when no hardware is
// configured and records every command for inspection.
type Mock struct {
	mu      sync.Mutex
	heating float64
	cooling float64
	stops   int
	history []Command
	log     *logger.Logger

	// Err, if set, is returned by every call.
	Err error
}

func NewMock() *Mock {
	return &Mock{log: logger.New("MockActuator")}
}

func (m *Mock) record(op string, percent float64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Err != nil {
		return m.Err
	}
	m.history = append(m.history, Command{Op: op, Percent: percent})
	switch op {
	case "heat":
		m.heating = percent
	case "cool":
		m.cooling = percent
	case "stop":
		m.heating, m.cooling = 0, 0
		m.stops++
	}
	m.log.Debug("%s %.1f%%", op, percent)
	return nil
}

func (m *Mock) SetHeating(percent float64) error {
	return m.record("heat", Clamp(percent))
}

func (m *Mock) SetCooling(percent float64) error {
	return m.record("cool", Clamp(percent))
}

func (m *Mock) StopAll() error {
	return m.record("stop", 0)
}

// Levels returns the current heating and cooling power.
func (m *Mock) Levels() (heating, cooling float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.heating, m.cooling
}

func (m *Mock) Stops() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stops
}

func (m *Mock) History() []Command {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Command(nil), m.history...)
}
