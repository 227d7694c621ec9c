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

package chamber

import (
	"chamber/internal/controller"
	"chamber/internal/datalog"
	"chamber/internal/profile"
	"chamber/internal/runstate"
	"chamber/internal/store"
	"chamber/pkg/logger"
	"context"
	"errors"
	"sync"
	"time"
)

// Chamber is the single entry point used by the web layer and the CLI.
type Chamber struct {
	engine *datalog.Engine
	ctrl   *controller.Controller
	state  *runstate.State
	log    *logger.Logger

	limitsMu sync.RWMutex
	limits   profile.Limits
	now    func() time.Time
}

// ControlStatus describes the control session.
type ControlStatus struct {
	Active  bool               `json:"active"`
	Sensor  string             `json:"sensor"`
	Profile *profile.Profile   `json:"profile,omitempty"`
	Last    *controller.Result `json:"last,omitempty"`
}

func New(engine *datalog.Engine, ctrl *controller.Controller, state *runstate.State, limits profile.Limits) *Chamber {
	return &Chamber{
		engine: engine,
		ctrl:   ctrl,
		state:  state,
		limits: limits,
		log:    logger.New("Chamber"),
		now:    time.Now,
	}
}

func (c *Chamber) Limits() profile.Limits {
	c.limitsMu.RLock()
	defer c.limitsMu.RUnlock()
	return c.limits
}

// SetLimits replaces the limits new profiles are validated against. The
// current desired profile is kept as it is.
func (c *Chamber) SetLimits(lim profile.Limits) error {
	if err := lim.Check(); err != nil {
		return err
	}
	c.limitsMu.Lock()
	c.limits = lim
	c.limitsMu.Unlock()
	c.log.Info("profile limits set: %+v", lim)
	return nil
}

// --- cycles ---

func (c *Chamber) StartCycle(ctx context.Context, name string) (int64, error) {
	return c.engine.StartCycle(ctx, name)
}

// StopCycle stops logging and the control session. Both are attempted even
// if one of them fails.
func (c *Chamber) StopCycle(ctx context.Context) (int64, error) {
	id, err := c.engine.StopCycle(ctx)
	if errors.Is(err, datalog.ErrNotRunning) {
		return 0, err
	}
	return id, errors.Join(err, c.ctrl.Stop())
}

func (c *Chamber) ListCycles(ctx context.Context) ([]store.Cycle, error) {
	return c.engine.ListCycles(ctx)
}

func (c *Chamber) DeleteCycle(ctx context.Context, name string) error {
	return c.engine.DeleteCycle(ctx, name)
}

func (c *Chamber) Readings(ctx context.Context, name string) ([]store.Reading, error) {
	return c.engine.Readings(ctx, name)
}

func (c *Chamber) CycleStatus() datalog.Status {
	return c.engine.Status()
}

// --- profile ---

// SetDesiredProfile replaces the desired profile. An active control session
// restarts so the profile is followed from its first point.
func (c *Chamber) SetDesiredProfile(p *profile.Profile) error {
	if p == nil {
		return &profile.ValidationError{Rule: "empty", Msg: "no profile given"}
	}
	c.state.SetProfile(p)
	c.log.Info("desired profile set: %s", p)

	if c.ctrl.Active() {
		c.ctrl.Start(c.now())
	}
	return nil
}

// SetProfilePoints validates points against the configured limits and
// makes them the desired profile.
func (c *Chamber) SetProfilePoints(name string, points []profile.Point) (*profile.Profile, error) {
	p, err := profile.New(name, points, c.Limits())
	if err != nil {
		return nil, err
	}
	return p, c.SetDesiredProfile(p)
}

// SetConstantTemperature holds temp from the start of the session.
func (c *Chamber) SetConstantTemperature(temp float64) (*profile.Profile, error) {
	p, err := profile.Constant("constant", temp, c.Limits())
	if err != nil {
		return nil, err
	}
	return p, c.SetDesiredProfile(p)
}

func (c *Chamber) Profile() *profile.Profile {
	return c.state.Profile()
}

// --- sensors & control ---

func (c *Chamber) ReadSensors(ctx context.Context) map[string]float64 {
	return c.engine.ReadSensors(ctx)
}

func (c *Chamber) Snapshot() map[string]float64 {
	return c.engine.Snapshot()
}

func (c *Chamber) StartControl() {
	c.ctrl.Start(c.now())
}

func (c *Chamber) StopControl() error {
	return c.ctrl.Stop()
}

func (c *Chamber) Tick(ctx context.Context, now time.Time) (controller.Result, error) {
	return c.ctrl.Tick(ctx, now)
}

func (c *Chamber) ControlStatus() ControlStatus {
	st := ControlStatus{
		Active:  c.ctrl.Active(),
		Sensor:  c.ctrl.SensorID(),
		Profile: c.state.Profile(),
	}
	if last, ok := c.ctrl.Last(); ok {
		st.Last = &last
	}
	return st
}
