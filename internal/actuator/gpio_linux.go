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

//go:build linux

package actuator

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"
)

// GPIO drives heater and cooler enable lines on a gpiochip. Each line is
// time-proportioned by its own DutyCycle.
type GPIO struct {
	chip *gpiocdev.Chip
	heat *gpiocdev.Line
	cool *gpiocdev.Line

	heatDuty *DutyCycle
	coolDuty *DutyCycle
}

func NewGPIO(chipName string, heatLine, coolLine int, window time.Duration) (*GPIO, error) {
	chip, err := gpiocdev.NewChip(chipName)
	if err != nil {
		return nil, fmt.Errorf("open gpio chip: %w", err)
	}

	heat, err := chip.RequestLine(heatLine, gpiocdev.AsOutput(0))
	if err != nil {
		chip.Close()
		return nil, fmt.Errorf("request heat line %d: %w", heatLine, err)
	}
	cool, err := chip.RequestLine(coolLine, gpiocdev.AsOutput(0))
	if err != nil {
		heat.Close()
		chip.Close()
		return nil, fmt.Errorf("request cool line %d: %w", coolLine, err)
	}

	g := &GPIO{chip: chip, heat: heat, cool: cool}
	g.heatDuty = NewDutyCycle("heat", lineSwitch(heat), window)
	g.coolDuty = NewDutyCycle("cool", lineSwitch(cool), window)
	return g, nil
}

func lineSwitch(l *gpiocdev.Line) Switch {
	return func(on bool) error {
		v := 0
		if on {
			v = 1
		}
		return l.SetValue(v)
	}
}

func (g *GPIO) SetHeating(percent float64) error {
	g.heatDuty.SetDutyCycle(percent)
	return nil
}

func (g *GPIO) SetCooling(percent float64) error {
	g.coolDuty.SetDutyCycle(percent)
	return nil
}

func (g *GPIO) StopAll() error {
	herr := g.heatDuty.Off()
	cerr := g.coolDuty.Off()
	if herr != nil {
		return herr
	}
	return cerr
}

// Run drives both lines until ctx is done, then releases them.
func (g *GPIO) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Go(func() { g.heatDuty.Run(ctx) })
	wg.Go(func() { g.coolDuty.Run(ctx) })
	wg.Wait()
	g.close()
}

func (g *GPIO) close() {
	// leave both elements unpowered
	g.heat.Reconfigure(gpiocdev.AsOutput(0))
	g.cool.Reconfigure(gpiocdev.AsOutput(0))
	g.heat.Close()
	g.cool.Close()
	g.chip.Close()
}
