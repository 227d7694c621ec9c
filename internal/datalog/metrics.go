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

package datalog

import "github.com/prometheus/client_golang/prometheus"

var (
	ticksTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chamber", Subsystem: "datalog",
		Name: "ticks_total", Help: "Sampling ticks executed while a cycle was active.",
	})
	readingsTotal = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chamber", Subsystem: "datalog",
		Name: "readings_written_total", Help: "Sensor readings committed to the database.",
	})
	sensorFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "chamber", Subsystem: "datalog",
		Name: "sensor_failures_total", Help: "Sensor reads that failed or timed out.",
	}, []string{"sensor"})
	persistFailures = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "chamber", Subsystem: "datalog",
		Name: "persist_failures_total", Help: "Ticks whose readings could not be committed.",
	})
	tickDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "chamber", Subsystem: "datalog",
		Name: "tick_duration_seconds", Help: "Duration of one sampling tick.",
		Buckets: prometheus.DefBuckets,
	})
	cycleRunning = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "chamber", Subsystem: "datalog",
		Name: "cycle_running", Help: "1 while a logging cycle is active.",
	})
)

func init() {
	prometheus.MustRegister(
		ticksTotal,
		readingsTotal,
		sensorFailures,
		persistFailures,
		tickDuration,
		cycleRunning,
	)
}
