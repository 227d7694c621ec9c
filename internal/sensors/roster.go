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
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

type Roster struct {
	Sensors []Entry                `yaml:"sensors"`
	Mock    map[string]MockProfile `yaml:"mock"`
}

type Entry struct {
	ID       string       `yaml:"id"`
	Type     string       `yaml:"type"`
	Pin      int          `yaml:"pin"`
	Location string       `yaml:"location"`
	Modbus   *ModbusEntry `yaml:"modbus,omitempty"`

	Plausible *Plausibility `yaml:"plausible,omitempty"`
}

// ModbusEntry locates a transducer register on a Modbus TCP device.
type ModbusEntry struct {
	modbus.ConnConfig `yaml:",inline"`
	Register          modbus.RegisterDef `yaml:"register"`
}

// MockProfile drives the mock source: base ± variation.
type MockProfile struct {
	BaseTemperature float64 `yaml:"base_temperature"`
	Variation       float64 `yaml:"variation"`
}

const (
	defaultBaseTemperature = 22.0
	defaultVariation       = 5.0
)

func LoadRoster(path string) (*Roster, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read sensor roster: %w", err)
	}
	return ParseRoster(data)
}

func ParseRoster(data []byte) (*Roster, error) {
	var r Roster
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("failed to parse sensor roster: %w", err)
	}
	if err := r.validate(); err != nil {
		return nil, err
	}
	return &r, nil
}

func (r *Roster) validate() error {
	if len(r.Sensors) == 0 {
		return fmt.Errorf("sensor roster is empty")
	}
	seen := make(map[string]bool, len(r.Sensors))
	for i, s := range r.Sensors {
		if s.ID == "" {
			return fmt.Errorf("sensor #%d has no id", i)
		}
		if seen[s.ID] {
			return fmt.Errorf("duplicate sensor id %q", s.ID)
		}
		seen[s.ID] = true
		if s.Modbus != nil {
			if err := s.Modbus.Register.Validate(); err != nil {
				return fmt.Errorf("sensor %q: %w", s.ID, err)
			}
		}
		if s.Plausible != nil {
			if err := s.Plausible.validate(); err != nil {
				return fmt.Errorf("sensor %q: %w", s.ID, err)
			}
		}
	}
	return nil
}

// IDs returns the sensor ids in roster order.
func (r *Roster) IDs() []string {
	ids := make([]string, len(r.Sensors))
	for i, s := range r.Sensors {
		ids[i] = s.ID
	}
	return ids
}

func (r *Roster) mockProfile(id string) MockProfile {
	p, ok := r.Mock[id]
	if !ok {
		return MockProfile{BaseTemperature: defaultBaseTemperature, Variation: defaultVariation}
	}
	return p
}

// New builds the source the roster calls for: mock data, or the Modbus
// transducers described per sensor. Sensors with plausibility limits are
// checked on every read.
func New(r *Roster, mock bool) (Source, error) {
	var src Source
	if mock {
		src = NewMock(r, 0)
	} else {
		m, err := NewModbus(r)
		if err != nil {
			return nil, err
		}
		src = m
	}

	limits := make(map[string]Plausibility)
	for _, s := range r.Sensors {
		if s.Plausible != nil {
			limits[s.ID] = *s.Plausible
		}
	}
	if len(limits) == 0 {
		return src, nil
	}
	return NewChecked(src, limits), nil
}
