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

package sensors

import (
	"chamber/pkg/modbus"
	"context"
	"fmt"
	"slices"
)

// Modbus reads each sensor from its transducer register. Sensors on the
// same device share one client.
type Modbus struct {
	ids     []string
	entries map[string]ModbusEntry
	clients map[string]*modbus.Client
}

func NewModbus(r *Roster) (*Modbus, error) {
	m := &Modbus{
		ids:     r.IDs(),
		entries: make(map[string]ModbusEntry, len(r.Sensors)),
		clients: make(map[string]*modbus.Client),
	}
	for _, s := range r.Sensors {
		if s.Modbus == nil {
			return nil, fmt.Errorf("sensor %q has no modbus section", s.ID)
		}
		m.entries[s.ID] = *s.Modbus

		addr := s.Modbus.Address()
		if _, ok := m.clients[addr]; !ok {
			m.clients[addr] = modbus.NewClient(s.Modbus.ConnConfig)
		}
	}
	return m, nil
}

func (m *Modbus) IDs() []string {
	return slices.Clone(m.ids)
}

func (m *Modbus) Read(ctx context.Context, id string) (float64, error) {
	e, ok := m.entries[id]
	if !ok {
		return 0, fmt.Errorf("unknown sensor %q", id)
	}
	return m.clients[e.Address()].ReadFloat(ctx, e.Register)
}

func (m *Modbus) Close() {
	for _, c := range m.clients {
		c.Close()
	}
}
