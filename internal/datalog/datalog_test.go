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
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	engine *Engine
	store  *store.Store
	src    *sensors.Fake
	state  *runstate.State
	bus    *eventbus.Bus
	dbPath string
}

func newFixture(t *testing.T, intervalMs int) *fixture {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "chamber.db")
	st, err := store.Open(dbPath)
	require.NoError(t, err)

	src := sensors.NewFake("s1", "s2", "s3")
	src.Set("s1", 20.1)
	src.Set("s2", 20.2)
	src.Set("s3", 20.3)

	bus := eventbus.New()
	t.Cleanup(bus.Close)
	state := runstate.New(bus)

	conf := config.DataLogConfig{IntervalMs: intervalMs, ReadTimeoutMs: 50}
	e := New(conf, st, src, state, bus)
	t.Cleanup(func() {
		if state.Active() {
			_, _ = e.StopCycle(context.Background())
		}
	})
	return &fixture{engine: e, store: st, src: src, state: state, bus: bus, dbPath: dbPath}
}

const never = int(time.Hour / time.Millisecond)

func TestDoubleStartRejected(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	id, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)

	_, err = f.engine.StartCycle(ctx, "c2")
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	cycles, err := f.engine.ListCycles(ctx)
	require.NoError(t, err)
	require.Len(t, cycles, 1, "the rejected start leaves no row behind")
	assert.Equal(t, id, cycles[0].ID)

	st := f.engine.Status()
	assert.True(t, st.Running)
	assert.Equal(t, "c1", st.Name)
}

func TestConcurrentStartHasOneWinner(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	var wg sync.WaitGroup
	var mu sync.Mutex
	var wins, rejected int
	for _, name := range []string{"a", "b", "c", "d", "e", "f"} {
		wg.Go(func() {
			_, err := f.engine.StartCycle(ctx, name)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if errors.Is(err, ErrAlreadyRunning) {
				rejected++
			}
		})
	}
	wg.Wait()
	assert.Equal(t, 1, wins)
	assert.Equal(t, 5, rejected)
}

func TestManualTickThenStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	id, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)

	n, err := f.engine.SampleOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	stopped, err := f.engine.StopCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, id, stopped)

	count, err := f.store.CountReadings(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, len(f.src.IDs()), count)

	c, err := f.store.CycleByName(ctx, "c1")
	require.NoError(t, err)
	require.NotNil(t, c.EndTime)
	assert.False(t, c.EndTime.Before(c.StartTime))

	rows, err := f.engine.Readings(ctx, "c1")
	require.NoError(t, err)
	require.Len(t, rows, 3)
	for _, r := range rows {
		assert.True(t, r.Timestamp.Equal(rows[0].Timestamp), "one timestamp per tick")
	}
}

func TestDeleteCycleCascades(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	id, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)
	_, err = f.engine.SampleOnce(ctx)
	require.NoError(t, err)

	assert.ErrorIs(t, f.engine.DeleteCycle(ctx, "c1"), ErrCycleActive)

	_, err = f.engine.StopCycle(ctx)
	require.NoError(t, err)
	require.NoError(t, f.engine.DeleteCycle(ctx, "c1"))

	cycles, err := f.engine.ListCycles(ctx)
	require.NoError(t, err)
	assert.Empty(t, cycles)

	count, err := f.store.CountReadings(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, count)

	assert.ErrorIs(t, f.engine.DeleteCycle(ctx, "c1"), store.ErrNotFound)
}

func TestSingleSensorFailure(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)
	f.src.Fail("s2", errors.New("probe disconnected"))

	id, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)

	n, err := f.engine.SampleOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	count, err := f.store.CountReadings(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	snap := f.engine.Snapshot()
	assert.Contains(t, snap, "s1")
	assert.NotContains(t, snap, "s2")
}

func TestHungSensorDoesNotStallTick(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)
	f.src.Hang("s3")

	_, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)

	start := time.Now()
	n, err := f.engine.SampleOnce(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Less(t, time.Since(start), 2*time.Second)
}

func TestSampleOnceWithoutCycleIsNoop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	n, err := f.engine.SampleOnce(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.Zero(t, f.src.Calls("s1"))
}

func TestLoopStopsWritingAfterStop(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, 5)

	id, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		n, err := f.store.CountReadings(ctx, id)
		return err == nil && n >= 6
	}, 2*time.Second, 5*time.Millisecond)

	_, err = f.engine.StopCycle(ctx)
	require.NoError(t, err)

	after, err := f.store.CountReadings(ctx, id)
	require.NoError(t, err)
	assert.Zero(t, after%3, "every tick commits whole")

	time.Sleep(30 * time.Millisecond)
	later, err := f.store.CountReadings(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, after, later)
}

func TestStopWithoutCycle(t *testing.T) {
	f := newFixture(t, never)
	_, err := f.engine.StopCycle(context.Background())
	assert.ErrorIs(t, err, ErrNotRunning)
}

func TestStopIsEffectiveWhenStorageFails(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	_, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)

	require.NoError(t, os.Remove(f.dbPath))

	_, err = f.engine.SampleOnce(ctx)
	var perr *store.PersistenceError
	assert.ErrorAs(t, err, &perr)

	_, err = f.engine.StopCycle(ctx)
	assert.ErrorAs(t, err, &perr)
	assert.False(t, f.engine.Status().Running)
	assert.False(t, f.state.Active())
}

func TestStartValidatesName(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	_, err := f.engine.StartCycle(ctx, "  ")
	assert.ErrorIs(t, err, ErrInvalidName)

	_, err = f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)
	_, err = f.engine.StopCycle(ctx)
	require.NoError(t, err)

	_, err = f.engine.StartCycle(ctx, "c1")
	assert.ErrorIs(t, err, store.ErrDuplicateName)
	assert.False(t, f.state.Active())
}

func TestReadSensorsWithoutCycle(t *testing.T) {
	f := newFixture(t, never)
	f.src.Fail("s3", errors.New("gone"))

	snap := f.engine.ReadSensors(context.Background())
	assert.Equal(t, map[string]float64{"s1": 20.1, "s2": 20.2}, snap)

	f.src.Set("s1", 25)
	snap = f.engine.ReadSensors(context.Background())
	assert.Equal(t, 25.0, snap["s1"])
}

func TestCycleEventsPublished(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t, never)

	ch, unsub := f.bus.Subscribe(ctx, events.TopicCycle, false)
	defer unsub()

	id, err := f.engine.StartCycle(ctx, "c1")
	require.NoError(t, err)

	select {
	case ev := <-ch:
		up := ev.(events.CycleUpdate)
		assert.Equal(t, id, up.CycleID)
		assert.True(t, up.Running)
	case <-time.After(time.Second):
		t.Fatal("no cycle event")
	}
}

func TestRunStopsActiveCycleOnShutdown(t *testing.T) {
	f := newFixture(t, never)
	_, err := f.engine.StartCycle(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.engine.Run(ctx)
		close(done)
	}()
	cancel()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return")
	}
	assert.False(t, f.state.Active())

	c, err := f.store.CycleByName(context.Background(), "c1")
	require.NoError(t, err)
	assert.NotNil(t, c.EndTime)
}

func TestStopWithCanceledContextRecordsEnd(t *testing.T) {
	f := newFixture(t, never)

	_, err := f.engine.StartCycle(context.Background(), "c1")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = f.engine.StopCycle(ctx)
	require.NoError(t, err)
	assert.False(t, f.state.Active())

	c, err := f.store.CycleByName(context.Background(), "c1")
	require.NoError(t, err)
	require.NotNil(t, c.EndTime)
	assert.False(t, c.Running())
	assert.False(t, c.EndTime.Before(c.StartTime))
}

func TestDeleteRacingStartKeepsActiveCycle(t *testing.T) {
	ctx := context.Background()

	for range 20 {
		f := newFixture(t, never)

		var wg sync.WaitGroup
		var startErr, deleteErr error
		wg.Go(func() { _, startErr = f.engine.StartCycle(ctx, "c1") })
		wg.Go(func() { deleteErr = f.engine.DeleteCycle(ctx, "c1") })
		wg.Wait()

		require.NoError(t, startErr)
		// the delete ran either before the row existed or against the active cycle
		if !errors.Is(deleteErr, store.ErrNotFound) {
			require.ErrorIs(t, deleteErr, ErrCycleActive)
		}

		n, err := f.engine.SampleOnce(ctx)
		require.NoError(t, err)
		assert.Equal(t, 3, n)

		_, err = f.engine.StopCycle(ctx)
		require.NoError(t, err)
	}
}

func TestStatusIntervalMs(t *testing.T) {
	f := newFixture(t, 250)
	st := f.engine.Status()
	assert.Equal(t, 250*time.Millisecond, st.Interval)

	data, err := json.Marshal(st)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interval_ms":250`)
	assert.NotContains(t, string(data), `"interval":`)
}
