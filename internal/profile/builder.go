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

package profile

import (
	"fmt"
	"slices"
)

// Builder collects points for a profile that has not been accepted yet.
// Editing a live profile means building a new one.
type Builder struct {
	name   string
	points []Point
}

func NewBuilder(name string) *Builder {
	return &Builder{name: name}
}

// From starts a builder pre-filled with an existing profile's points.
func From(p *Profile) *Builder {
	return &Builder{name: p.name, points: p.Points()}
}

func (b *Builder) Add(elapsed, temperature float64) *Builder {
	b.points = append(b.points, Point{Elapsed: elapsed, Temperature: temperature})
	return b
}

func (b *Builder) Remove(index int) error {
	if index < 0 || index >= len(b.points) {
		return fmt.Errorf("invalid setpoint index %d", index)
	}
	b.points = slices.Delete(b.points, index, index+1)
	return nil
}

func (b *Builder) Clear() {
	b.points = b.points[:0]
}

func (b *Builder) Len() int { return len(b.points) }

func (b *Builder) Build(lim Limits) (*Profile, error) {
	return New(b.name, b.points, lim)
}
