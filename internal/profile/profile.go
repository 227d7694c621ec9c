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
	"chamber/internal/config"
	"encoding/json"
	"fmt"
	"math"
	"slices"
	"sort"
)

// Point is one setpoint: hold Temperature from Elapsed seconds onward.
type Point struct {
	Elapsed     float64 `json:"x"`
	Temperature float64 `json:"y"`
}

// Limits bound what an operator may ask of the chamber.
type Limits struct {
	MaxPoints int     `json:"max_points"`
	MinX      float64 `json:"min_x"`
	MinY      float64 `json:"min_y"`
	MaxY      float64 `json:"max_y"`
	MaxRico   float64 `json:"max_rico"` // max |dT/dt| between consecutive points
}

func LimitsFrom(c config.ProfileConfig) Limits {
	return Limits{
		MaxPoints: c.MaxPoints,
		MinX:      c.MinX,
		MinY:      c.MinY,
		MaxY:      c.MaxY,
		MaxRico:   c.MaxRico,
	}
}

// Check rejects limits no profile could satisfy.
func (l Limits) Check() error {
	switch {
	case l.MaxPoints < 0:
		return invalid("limits", "max_points must not be negative")
	case !finite(l.MinX) || !finite(l.MinY) || !finite(l.MaxY) || !finite(l.MaxRico):
		return invalid("limits", "limits must be numbers")
	case l.MinY >= l.MaxY:
		return invalid("limits", "min_y (%g) must be below max_y (%g)", l.MinY, l.MaxY)
	case l.MaxRico <= 0:
		return invalid("limits", "max_rico must be positive")
	}
	return nil
}

// ValidationError names the first rule a profile broke.
type ValidationError struct {
	Rule string // "empty", "count", "range", "order", "slope" or "limits"
	Msg  string
}

func (e *ValidationError) Error() string {
	return "invalid profile: " + e.Msg
}

func invalid(rule, format string, args ...any) error {
	return &ValidationError{Rule: rule, Msg: fmt.Sprintf(format, args...)}
}

// Profile is a validated, immutable setpoint curve.
type Profile struct {
	name   string
	points []Point
}

// New validates points against lim and returns a profile owning a copy of
// them. Nothing is returned unless every rule holds.
func New(name string, points []Point, lim Limits) (*Profile, error) {
	if err := Validate(points, lim); err != nil {
		return nil, err
	}
	return &Profile{name: name, points: slices.Clone(points)}, nil
}

// Constant is a single-point profile holding temp from the start.
func Constant(name string, temp float64, lim Limits) (*Profile, error) {
	return New(name, []Point{{Elapsed: math.Max(0, lim.MinX), Temperature: temp}}, lim)
}

// Validate checks point count, value ranges, time ordering and slope, in
// that order.
func Validate(points []Point, lim Limits) error {
	if len(points) == 0 {
		return invalid("empty", "profile has no points")
	}
	if lim.MaxPoints > 0 && len(points) > lim.MaxPoints {
		return invalid("count", "too many points: %d > %d", len(points), lim.MaxPoints)
	}

	for i, p := range points {
		if !finite(p.Elapsed) || !finite(p.Temperature) {
			return invalid("range", "point %d (%g, %g) is not a number", i, p.Elapsed, p.Temperature)
		}
		if p.Elapsed < lim.MinX || p.Temperature < lim.MinY || p.Temperature > lim.MaxY {
			return invalid("range", "point %d (%g, %g) is outside the limits", i, p.Elapsed, p.Temperature)
		}
	}

	for i := 1; i < len(points); i++ {
		a, b := points[i-1], points[i]
		if b.Elapsed <= a.Elapsed {
			return invalid("order", "points %d and %d are not increasing in time", i-1, i)
		}
		slope := math.Abs((b.Temperature - a.Temperature) / (b.Elapsed - a.Elapsed))
		if slope > lim.MaxRico {
			return invalid("slope", "slope between points %d and %d is too steep: %g > %g", i-1, i, slope, lim.MaxRico)
		}
	}
	return nil
}

func finite(f float64) bool {
	return !math.IsNaN(f) && !math.IsInf(f, 0)
}

func (p *Profile) Name() string { return p.name }

func (p *Profile) Len() int { return len(p.points) }

// Points returns a copy of the setpoints.
func (p *Profile) Points() []Point {
	return slices.Clone(p.points)
}

// TargetAt returns the temperature of the last point reached at elapsed
// seconds (step hold, no interpolation). Before the first point it returns
// the first point's temperature.
func (p *Profile) TargetAt(elapsed float64) float64 {
	i := sort.Search(len(p.points), func(i int) bool {
		return p.points[i].Elapsed > elapsed
	})
	if i == 0 {
		return p.points[0].Temperature
	}
	return p.points[i-1].Temperature
}

// Duration is the time offset of the final setpoint.
func (p *Profile) Duration() float64 {
	return p.points[len(p.points)-1].Elapsed
}

func (p *Profile) String() string {
	return fmt.Sprintf("profile %q with %d setpoints", p.name, len(p.points))
}

func (p *Profile) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Name     string  `json:"name"`
		Points   []Point `json:"points"`
		Duration float64 `json:"duration"`
	}{p.name, p.points, p.Duration()})
}
