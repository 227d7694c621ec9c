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
	"encoding/binary"
	"fmt"
	"math"
)

// encode is the inverse of Decode; tests use it to build raw registers.
func encode(reg RegisterDef, value float64) ([]byte, error) {
	if reg.Scale != 0 {
		value = (value - reg.Offset) / reg.Scale
	}

	switch reg.DataType {
	case "", "float32":
		buf := make([]byte, 4)
		binary.BigEndian.PutUint32(buf, math.Float32bits(float32(value)))
		return buf, nil
	case "int16":
		iv := math.Round(value)
		if iv < math.MinInt16 || iv > math.MaxInt16 {
			return nil, fmt.Errorf("value %v out of int16 range", value)
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(int16(iv)))
		return buf, nil
	case "uint16":
		iv := math.Round(value)
		if iv < 0 || iv > math.MaxUint16 {
			return nil, fmt.Errorf("value %v out of uint16 range", value)
		}
		buf := make([]byte, 2)
		binary.BigEndian.PutUint16(buf, uint16(iv))
		return buf, nil
	default:
		return nil, fmt.Errorf("unsupported data type %q", reg.DataType)
	}
}
