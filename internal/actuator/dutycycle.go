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

import (
	"chamber/pkg/logger"
	"context"
	"sync"
	"time"
)

// Switch turns one on/off output on or off.
type Switch func(on bool) error

// DutyCycle drives an on/off output with time-proportioning control: within
// each window the output is on for percent% of the time.
type DutyCycle struct {
	name   string
	sw     Switch
	window time.Duration

	mu        sync.Mutex
	percent   float64
	currentOn bool
	known     bool
	started   time.Time

	log *logger.Logger
}

func NewDutyCycle(name string, sw Switch, window time.Duration) *DutyCycle {
	if window < time.Second {
		window = time.Second
	}
	return &DutyCycle{
		name:   name,
		sw:     sw,
		window: window,
		log:    logger.New("DutyCycle " + name),
	}
}

// SetDutyCycle changes the target duty cycle (0–100).
func (d *DutyCycle) SetDutyCycle(percent float64) {
	d.mu.Lock()
	d.percent = Clamp(percent)
	d.mu.Unlock()
}

func (d *DutyCycle) DutyCycle() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.percent
}

// Off forces the output off immediately and zeroes the duty cycle.
func (d *DutyCycle) Off() error {
	d.mu.Lock()
	d.percent = 0
	d.mu.Unlock()
	return d.set(false)
}

// Run evaluates the window position at 1% resolution until ctx is done,
// then switches the output off.
func (d *DutyCycle) Run(ctx context.Context) {
	d.mu.Lock()
	d.started = time.Now()
	d.mu.Unlock()

	ticker := time.NewTicker(d.window / 100)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			if err := d.Off(); err != nil {
				d.log.Error("switch off on exit: %v", err)
			}
			return
		case now := <-ticker.C:
			d.tick(now)
		}
	}
}

func (d *DutyCycle) tick(now time.Time) {
	if err := d.set(d.shouldBeOn(now)); err != nil {
		d.log.Error("switch error: %v", err)
	}
}

// shouldBeOn reports whether the output is inside the on-part of the
// current window.
func (d *DutyCycle) shouldBeOn(now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.percent <= 0 {
		return false
	}
	if d.percent >= 100 {
		return true
	}
	pos := now.Sub(d.started) % d.window
	onFor := time.Duration(float64(d.window) * d.percent / 100)
	return pos < onFor
}

// set calls the switch only on state changes.
func (d *DutyCycle) set(on bool) error {
	d.mu.Lock()
	if d.known && d.currentOn == on {
		d.mu.Unlock()
		return nil
	}
	d.mu.Unlock()

	if err := d.sw(on); err != nil {
		return err
	}

	d.mu.Lock()
	d.currentOn, d.known = on, true
	d.mu.Unlock()
	d.log.Debug("output on=%v", on)
	return nil
}
