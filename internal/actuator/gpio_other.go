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

//go:build !linux

package actuator

import (
	"context"
	"errors"
	"time"
)

// GPIO is unavailable off Linux.
type GPIO struct{}

func NewGPIO(chipName string, heatLine, coolLine int, window time.Duration) (*GPIO, error) {
	return nil, errors.New("gpio: not supported on this platform (requires Linux)")
}

func (g *GPIO) SetHeating(percent float64) error { return errors.New("gpio: not supported") }
func (g *GPIO) SetCooling(percent float64) error { return errors.New("gpio: not supported") }
func (g *GPIO) StopAll() error                   { return nil }
func (g *GPIO) Run(ctx context.Context)          { <-ctx.Done() }
