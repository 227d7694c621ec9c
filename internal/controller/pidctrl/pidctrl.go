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

package pidctrl

import (
	"chamber/pkg/logger"
	"math"
	"time"
)

// FirstTickDt is the dt used on the first update of a session, matching a
// once-per-second cadence.
const FirstTickDt = 1.0

// State is the controller memory carried between ticks.
type State struct {
	LastError float64
	Integral  float64
	LastTick  time.Time // zero until the first tick
}

// Terms are the parts of one update, kept for logging and tests.
type Terms struct {
	Dt         float64
	Error      float64
	Integral   float64
	Derivative float64
	Output     float64
}

// PIDController computes a signed command from setpoint error. Positive
// output means heat, negative means cool. The output is not clamped: the
// actuator boundary owns that.
type PIDController struct {
	Kp, Ki, Kd    float64
	IntegralLimit float64

	state State
	log   *logger.Logger
}

func NewPIDController(kp, ki, kd float64) *PIDController {
	return &PIDController{
		Kp:            kp,
		Ki:            ki,
		Kd:            kd,
		IntegralLimit: 100,
		log:           logger.New("PID Control"),
	}
}

func (pid *PIDController) WithIntegralLimit(limit float64) *PIDController {
	pid.IntegralLimit = math.Abs(limit)
	return pid
}

// Reset clears the controller memory; the next Update is a first tick.
func (pid *PIDController) Reset() {
	pid.state = State{}
}

func (pid *PIDController) State() State {
	return pid.state
}

// Update runs one tick at time now and returns the output terms.
func (pid *PIDController) Update(current, target float64, now time.Time) Terms {
	dt := FirstTickDt
	if !pid.state.LastTick.IsZero() {
		dt = now.Sub(pid.state.LastTick).Seconds()
	}
	return pid.step(current, target, dt, now)
}

// UpdateDt is Update with an explicit dt, for replaying scripted sequences.
func (pid *PIDController) UpdateDt(current, target, dt float64) Terms {
	return pid.step(current, target, dt, pid.state.LastTick.Add(time.Duration(dt*float64(time.Second))))
}

func (pid *PIDController) step(current, target, dt float64, now time.Time) Terms {
	err := target - current

	// anti-windup: the integral never leaves its band
	integral := pid.state.Integral + err*dt
	integral = math.Max(-pid.IntegralLimit, math.Min(pid.IntegralLimit, integral))

	derivative := 0.0
	if dt > 0 {
		derivative = (err - pid.state.LastError) / dt
	}

	output := pid.Kp*err + pid.Ki*integral + pid.Kd*derivative

	pid.state = State{LastError: err, Integral: integral, LastTick: now}

	pid.log.Debug("dt=%.2fs, err=%.2f°C, integral=%.2f, derivative=%.3f, output=%.2f",
		dt, err, integral, derivative, output)

	return Terms{Dt: dt, Error: err, Integral: integral, Derivative: derivative, Output: output}
}
