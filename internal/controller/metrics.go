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

import "github.com/prometheus/client_golang/prometheus"

var (
	outputGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chamber", Subsystem: "control",
		Name: "output", Help: "Last signed PID output (positive heats).",
	})
	targetGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chamber", Subsystem: "control",
		Name: "target_celsius", Help: "Profile target at the last tick.",
	})
	currentGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chamber", Subsystem: "control",
		Name: "current_celsius", Help: "Control sensor reading at the last tick.",
	})
	ticksSkipped = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chamber", Subsystem: "control",
		Name: "ticks_skipped_total", Help: "Ticks that issued no actuator command.",
	}, []string{"reason"})
)

func init() {
	prometheus.MustRegister(outputGauge, targetGauge, currentGauge, ticksSkipped)
}
