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

import "math"

// Port drives the chamber's heating and cooling elements. Implementations
// clamp power to [0, 100] percent; callers may pass any value.
type Port interface {
	SetHeating(percent float64) error
	SetCooling(percent float64) error
	StopAll() error
}

// Clamp limits a power request to [0, 100] percent.
func Clamp(percent float64) float64 {
	if math.IsNaN(percent) {
		return 0
	}
	return math.Max(0, math.Min(100, percent))
}
