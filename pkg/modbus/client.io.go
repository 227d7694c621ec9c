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
	"context"
	"encoding/binary"
	"fmt"
	"math"
)

// ReadFloat reads the register described by reg and decodes it.
func (c *Client) ReadFloat(ctx context.Context, reg RegisterDef) (float64, error) {
	n, err := registerCount(reg.DataType)
	if err != nil {
		return 0, err
	}

	raw, err := c.ReadRegisters(ctx, reg.Type, reg.Address, n)
	if err != nil {
		return 0, fmt.Errorf("register read failed at %d: %w", reg.Address, err)
	}
	return Decode(reg, raw)
}

// Decode converts raw big-endian register bytes into a scaled value.
func Decode(reg RegisterDef, raw []byte) (float64, error) {
	n, err := registerCount(reg.DataType)
	if err != nil {
		return 0, err
	}
	if len(raw) < int(n*2) {
		return 0, fmt.Errorf("register %d returned %d bytes, want %d", reg.Address, len(raw), n*2)
	}

	var v float64
	switch reg.DataType {
	case "", "float32":
		v = float64(math.Float32frombits(binary.BigEndian.Uint32(raw)))
	case "int16":
		v = float64(int16(binary.BigEndian.Uint16(raw)))
	case "uint16":
		v = float64(binary.BigEndian.Uint16(raw))
	}

	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("register %d holds a non-finite value", reg.Address)
	}
	if reg.Scale != 0 {
		v = v*reg.Scale + reg.Offset
	}
	return v, nil
}
