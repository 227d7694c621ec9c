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
	"context"
	"fmt"
	"math"
	"sync"
	"time"
)

// Plausibility bounds what a sensor can physically report. Zero values
// disable the matching check.
type Plausibility struct {
	Min     float64 `yaml:"min"`
	Max     float64 `yaml:"max"`
	MaxRate float64 `yaml:"max_rate"` // °C per second
}

func (p Plausibility) validate() error {
	if p.Min != 0 || p.Max != 0 {
		if p.Min >= p.Max {
			return fmt.Errorf("plausible range min (%g) must be below max (%g)", p.Min, p.Max)
		}
	}
	if p.MaxRate < 0 {
		return fmt.Errorf("plausible max_rate must be positive")
	}
	return nil
}

// readings older than this are not used for the rate check
const rateWindow = 5 * time.Minute

type sample struct {
	value float64
	at    time.Time
}

// Checked rejects readings outside a sensor's plausible range, or ones that
// moved faster than its max rate since the last accepted reading. A rejected
// reading is reported as ErrUnavailable.
type Checked struct {
	src    Source
	limits map[string]Plausibility
	now    func() time.Time

	mu   sync.Mutex
	last map[string]sample
}

func NewChecked(src Source, limits map[string]Plausibility) *Checked {
	return &Checked{
		src:    src,
		limits: limits,
		now:    time.Now,
		last:   make(map[string]sample),
	}
}

func (c *Checked) IDs() []string {
	return c.src.IDs()
}

func (c *Checked) Read(ctx context.Context, id string) (float64, error) {
	v, err := c.src.Read(ctx, id)
	if err != nil {
		return 0, err
	}
	lim, ok := c.limits[id]
	if !ok {
		return v, nil
	}
	if err := c.check(id, lim, v); err != nil {
		return 0, fmt.Errorf("%w: %s: %w", ErrUnavailable, id, err)
	}
	return v, nil
}

func (c *Checked) check(id string, lim Plausibility, v float64) error {
	if lim.Min != 0 || lim.Max != 0 {
		if v < lim.Min {
			return fmt.Errorf("%.2f below plausible minimum %.2f", v, lim.Min)
		}
		if v > lim.Max {
			return fmt.Errorf("%.2f above plausible maximum %.2f", v, lim.Max)
		}
	}

	now := c.now()
	c.mu.Lock()
	defer c.mu.Unlock()

	prev, ok := c.last[id]
	if ok && lim.MaxRate > 0 {
		dt := now.Sub(prev.at)
		if dt < rateWindow {
			secs := math.Max(dt.Seconds(), 1)
			if rate := math.Abs(v-prev.value) / secs; rate > lim.MaxRate {
				return fmt.Errorf("changed %.2f°C in %v", v-prev.value, dt.Truncate(time.Millisecond))
			}
		}
	}
	c.last[id] = sample{value: v, at: now}
	return nil
}

// Close releases the wrapped source's connections, if it holds any.
func (c *Checked) Close() {
	if cl, ok := c.src.(interface{ Close() }); ok {
		cl.Close()
	}
}
