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

package modbus

import (
	"fmt"
	"time"
)

// ConnConfig addresses one Modbus TCP device.
type ConnConfig struct {
	Host      string `yaml:"host"`
	Port      int    `yaml:"port"`
	SlaveID   byte   `yaml:"slave_id"`
	TimeoutMs int    `yaml:"timeout_ms"`
}

func (c ConnConfig) Address() string {
	port := c.Port
	if port == 0 {
		port = 502
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

func (c ConnConfig) Timeout() time.Duration {
	if c.TimeoutMs <= 0 {
		return time.Second
	}
	return time.Duration(c.TimeoutMs) * time.Millisecond
}

// RegisterDef describes where a transducer publishes its measurement.
type RegisterDef struct {
	Address  uint16  `yaml:"address"`
	Type     string  `yaml:"type"`      // "holding" (default) or "input"
	DataType string  `yaml:"data_type"` // "float32" (default), "int16", "uint16"
	Scale    float64 `yaml:"scale"`     // if set, value = raw*scale + offset
	Offset   float64 `yaml:"offset"`
}

// Validate reports definitions that could never be read.
func (r RegisterDef) Validate() error {
	switch r.Type {
	case "", "holding", "input":
	default:
		return fmt.Errorf("unsupported register type %q", r.Type)
	}
	if _, err := registerCount(r.DataType); err != nil {
		return err
	}
	return nil
}

func registerCount(dt string) (uint16, error) {
	switch dt {
	case "", "float32":
		return 2, nil
	case "int16", "uint16":
		return 1, nil
	default:
		return 0, fmt.Errorf("unsupported data type %q", dt)
	}
}
