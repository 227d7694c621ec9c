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

import (
	"chamber/internal/config"
	"chamber/internal/events"
	"chamber/internal/runstate"
	"chamber/internal/sensors"
	"chamber/internal/store"
	"chamber/pkg/eventbus"
	"chamber/pkg/logger"
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"
)

var (
	ErrAlreadyRunning = errors.New("a cycle is already running")
	ErrNotRunning     = errors.New("no cycle is running")
	ErrInvalidName    = errors.New("cycle name must not be empty")
	ErrCycleActive    = errors.New("cycle is currently running")
)

// bound on the final end_time update of StopCycle
const endCycleTimeout = 5 * time.Second

// Engine owns cycle lifecycle and the background sampling loop.
type Engine struct {
	store       *store.Store
	src         sensors.Source
	state       *runstate.State
	bus         *eventbus.Bus
	interval    time.Duration
	readTimeout time.Duration
	log         *logger.Logger
	now         func() time.Time

	// serializes StartCycle/StopCycle
	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}

	// held for the whole of one sampling step
	sampleMu sync.Mutex
}

type Status struct {
	Running  bool          `json:"running"`
	CycleID  int64         `json:"cycle_id,omitempty"`
	Name     string        `json:"name,omitempty"`
	Interval time.Duration `json:"-"`
	// IntervalMs mirrors Interval in the config's unit
	IntervalMs int64 `json:"interval_ms"`
	Sensors  []string      `json:"sensors"`
}

func New(conf config.DataLogConfig, st *store.Store, src sensors.Source, state *runstate.State, bus *eventbus.Bus) *Engine {
	interval := conf.Interval()
	if interval <= 0 {
		interval = time.Second
	}
	return &Engine{
		store:       st,
		src:         src,
		state:       state,
		bus:         bus,
		interval:    interval,
		readTimeout: conf.ReadTimeout(),
		log:         logger.New("DataLog"),
		now:         time.Now,
	}
}

// StartCycle creates the cycle row and launches the sampling loop.
func (e *Engine) StartCycle(ctx context.Context, name string) (int64, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return 0, ErrInvalidName
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if id, running, ok := e.state.Cycle(); ok {
		return 0, fmt.Errorf("%w: %q (id %d)", ErrAlreadyRunning, running, id)
	}

	start := e.now()
	id, err := e.store.CreateCycle(ctx, name, start)
	if err != nil {
		return 0, err
	}
	if !e.state.Begin(id, name) {
		return 0, ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(context.Background())
	e.cancel = cancel
	e.done = make(chan struct{})
	go e.run(loopCtx, e.done)

	cycleRunning.Set(1)
	e.publish(start, id, name, true)
	e.log.Info("cycle %q started (id %d, every %v)", name, id, e.interval)
	return id, nil
}

// StopCycle stops the loop, waits for it to exit and stamps end_time. The
// cycle is stopped even when the final update fails; that error is
// returned.
func (e *Engine) StopCycle(ctx context.Context) (int64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	_, name, _ := e.state.Cycle()
	id, ok := e.state.End()
	if !ok {
		return 0, ErrNotRunning
	}

	e.cancel()
	<-e.done
	e.cancel, e.done = nil, nil

	// end_time is written even if the caller has gone away
	endCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), endCycleTimeout)
	defer cancel()

	// a manual SampleOnce may still be writing
	e.sampleMu.Lock()
	end := e.now()
	err := e.store.EndCycle(endCtx, id, end)
	e.sampleMu.Unlock()

	cycleRunning.Set(0)
	e.publish(end, id, name, false)

	if err != nil {
		e.log.Error("cycle %q stopped but end_time not recorded: %v", name, err)
		return id, err
	}
	e.log.Info("cycle %q stopped (id %d)", name, id)
	return id, nil
}

func (e *Engine) ListCycles(ctx context.Context) ([]store.Cycle, error) {
	return e.store.ListCycles(ctx)
}

// DeleteCycle removes a finished cycle and its readings. It is serialized
// with StartCycle and StopCycle so the active cycle's row always exists.
func (e *Engine) DeleteCycle(ctx context.Context, name string) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, running, ok := e.state.Cycle(); ok && running == name {
		return fmt.Errorf("%w: %q", ErrCycleActive, name)
	}

	id, err := e.store.DeleteCycle(ctx, name)
	if errors.Is(err, store.ErrNotFound) {
		e.log.Info("delete: no cycle named %q", name)
		return err
	}
	if err != nil {
		return err
	}
	e.log.Info("cycle %q deleted (id %d)", name, id)
	return nil
}

func (e *Engine) Readings(ctx context.Context, name string) ([]store.Reading, error) {
	return e.store.Readings(ctx, name)
}

func (e *Engine) Status() Status {
	id, name, ok := e.state.Cycle()
	return Status{
		Running:  ok,
		CycleID:  id,
		Name:     name,
		Interval:   e.interval,
		IntervalMs: e.interval.Milliseconds(),
		Sensors:    e.src.IDs(),
	}
}

// ReadSensors reads every sensor now, merges the successes into the
// snapshot and returns it. It never waits on the sampling loop.
func (e *Engine) ReadSensors(ctx context.Context) map[string]float64 {
	values, errs := sensors.ReadAll(ctx, e.src, e.readTimeout)
	for _, id := range sortedKeys(errs) {
		e.log.Debug("read %s: %v", id, errs[id])
	}
	if len(values) > 0 {
		e.state.UpdateSnapshot(e.now(), values)
	}
	return e.state.Snapshot()
}

// Snapshot returns the last-known value per sensor without reading.
func (e *Engine) Snapshot() map[string]float64 {
	return e.state.Snapshot()
}

// SampleOnce performs one sampling step: read every sensor, skip failures,
// commit the rest in one transaction under one timestamp. It is a no-op
// when no cycle is active.
func (e *Engine) SampleOnce(ctx context.Context) (int, error) {
	e.sampleMu.Lock()
	defer e.sampleMu.Unlock()

	cycleID, name, ok := e.state.Cycle()
	if !ok {
		return 0, nil
	}

	started := time.Now()
	defer func() { tickDuration.Observe(time.Since(started).Seconds()) }()
	ticksTotal.Inc()

	now := e.now()
	values, errs := sensors.ReadAll(ctx, e.src, e.readTimeout)
	for _, id := range sortedKeys(errs) {
		e.log.Warn("sensor %s skipped: %v", id, errs[id])
		sensorFailures.WithLabelValues(id).Inc()
	}
	if len(values) > 0 {
		e.state.UpdateSnapshot(now, values)
	}

	n, err := e.store.InsertReadings(ctx, cycleID, now, values)
	if err != nil {
		persistFailures.Inc()
		e.log.Error("cycle %q: readings not stored: %v", name, err)
		return 0, err
	}
	readingsTotal.Add(float64(n))
	e.log.Debug("cycle %q: stored %d readings", name, n)
	return n, nil
}

// Run blocks until ctx is done, then stops any active cycle.
func (e *Engine) Run(ctx context.Context) {
	<-ctx.Done()
	if !e.state.Active() {
		return
	}
	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if _, err := e.StopCycle(stopCtx); err != nil && !errors.Is(err, ErrNotRunning) {
		e.log.Error("stop on shutdown: %v", err)
	}
}

func (e *Engine) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	ticker := time.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			e.tick(ctx)
		}
	}
}

func (e *Engine) tick(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("sampling tick panicked: %v", r)
		}
	}()
	// errors are logged in SampleOnce; the next tick retries
	_, _ = e.SampleOnce(ctx)
}

func (e *Engine) publish(t time.Time, id int64, name string, running bool) {
	if e.bus == nil {
		return
	}
	e.bus.Publish(events.TopicCycle, events.CycleUpdate{
		Time:    t,
		CycleID: id,
		Name:    name,
		Running: running,
	})
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}
