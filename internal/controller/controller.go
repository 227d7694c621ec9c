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

package controller

import (
	"chamber/internal/actuator"
	"chamber/internal/config"
	"chamber/internal/controller/pidctrl"
	"chamber/internal/events"
	"chamber/internal/runstate"
	"chamber/internal/sensors"
	"chamber/pkg/eventbus"
	"chamber/pkg/logger"
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

var (
	ErrNotActive         = errors.New("control session is not active")
	ErrNoProfile         = errors.New("no desired profile set")
	ErrSensorUnavailable = errors.New("control sensor unavailable")
)

// Result is the outcome of one applied tick.
type Result struct {
	Time    time.Time `json:"time"`
	Elapsed float64   `json:"elapsed"`
	Current float64   `json:"current"`
	Target  float64   `json:"target"`
	Error   float64   `json:"error"`
	Output  float64   `json:"output"`
}

// Controller drives the actuators toward the desired profile. It is IDLE
// until Start and returns to IDLE on Stop.
type Controller struct {
	pid         *pidctrl.PIDController
	src         sensors.Source
	port        actuator.Port
	state       *runstate.State
	bus         *eventbus.Bus
	sensorID    string
	readTimeout time.Duration
	log         *logger.Logger

	mu           sync.Mutex
	active       bool
	sessionStart time.Time
	last         *Result
}

func New(conf config.ControlConfig, readTimeout time.Duration, src sensors.Source,
	port actuator.Port, state *runstate.State, bus *eventbus.Bus) *Controller {

	sensorID := conf.ControlSensor
	if sensorID == "" {
		if ids := src.IDs(); len(ids) > 0 {
			sensorID = ids[0]
		}
	}

	pid := pidctrl.NewPIDController(conf.Kp, conf.Ki, conf.Kd)
	if conf.IntegralLimit > 0 {
		pid = pid.WithIntegralLimit(conf.IntegralLimit)
	}

	return &Controller{
		pid:         pid,
		src:         src,
		port:        port,
		state:       state,
		bus:         bus,
		sensorID:    sensorID,
		readTimeout: readTimeout,
		log:         logger.New("Controller"),
	}
}

func (c *Controller) SensorID() string {
	return c.sensorID
}

// Start begins a control session at now. Starting an active session
// restarts it.
func (c *Controller) Start(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.pid.Reset()
	c.active = true
	c.sessionStart = now
	c.last = nil
	c.log.Info("control session started (sensor %s)", c.sensorID)
}

// Stop ends the session and commands every actuator off.
func (c *Controller) Stop() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	wasActive := c.active
	c.active = false
	c.pid.Reset()

	if err := c.port.StopAll(); err != nil {
		return fmt.Errorf("stop actuators: %w", err)
	}
	if wasActive {
		c.log.Info("control session stopped")
	}
	return nil
}

func (c *Controller) Active() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}

// Last returns the most recent applied tick, if any in this session.
func (c *Controller) Last() (Result, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.last == nil {
		return Result{}, false
	}
	return *c.last, true
}

func (c *Controller) State() pidctrl.State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pid.State()
}

// Tick reads the control sensor, advances the PID loop and commands the
// actuators. When the sensor cannot be read nothing is commanded and the
// PID state is left as it was.
func (c *Controller) Tick(ctx context.Context, now time.Time) (Result, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.active {
		ticksSkipped.WithLabelValues("inactive").Inc()
		return Result{}, ErrNotActive
	}
	p := c.state.Profile()
	if p == nil {
		ticksSkipped.WithLabelValues("no_profile").Inc()
		return Result{}, ErrNoProfile
	}

	current, err := sensors.ReadWithTimeout(ctx, c.src, c.sensorID, c.readTimeout)
	if err != nil {
		ticksSkipped.WithLabelValues("sensor").Inc()
		c.log.Warn("tick skipped: %v", err)
		return Result{}, fmt.Errorf("%w: %w", ErrSensorUnavailable, err)
	}

	elapsed := now.Sub(c.sessionStart).Seconds()
	target := p.TargetAt(elapsed)
	terms := c.pid.Update(current, target, now)

	res := Result{
		Time:    now,
		Elapsed: elapsed,
		Current: current,
		Target:  target,
		Error:   terms.Error,
		Output:  terms.Output,
	}
	c.last = &res

	outputGauge.Set(res.Output)
	targetGauge.Set(res.Target)
	currentGauge.Set(res.Current)
	if c.bus != nil {
		c.bus.Publish(events.TopicControl, events.ControlUpdate{
			Time:    now,
			Current: current,
			Target:  target,
			Error:   terms.Error,
			Output:  terms.Output,
		})
	}

	c.log.Debug("t=%.1fs cur=%.2f target=%.2f err=%.2f I=%.2f out=%.2f",
		elapsed, current, target, terms.Error, terms.Integral, terms.Output)

	if err := c.apply(terms.Output); err != nil {
		return res, err
	}
	return res, nil
}

// apply splits the signed output: positive heats, otherwise cools.
func (c *Controller) apply(output float64) error {
	heat, cool := 0.0, math.Abs(output)
	if output > 0 {
		heat, cool = math.Abs(output), 0
	}
	if err := c.port.SetHeating(heat); err != nil {
		return fmt.Errorf("set heating: %w", err)
	}
	if err := c.port.SetCooling(cool); err != nil {
		return fmt.Errorf("set cooling: %w", err)
	}
	return nil
}

// Run holds the actuators until shutdown, then switches them off.
func (c *Controller) Run(ctx context.Context) {
	<-ctx.Done()
	if err := c.Stop(); err != nil {
		c.log.Error("stop on shutdown: %v", err)
	}
}
