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
	"context"
	"encoding/json"
	"errors"
	"math"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClamp(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{-5, 0},
		{0, 0},
		{42.5, 42.5},
		{100, 100},
		{250, 100},
		{math.NaN(), 0},
		{math.Inf(1), 100},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Clamp(tt.in), "Clamp(%v)", tt.in)
	}
}

func TestMockClampsAndRecords(t *testing.T) {
	m := NewMock()
	require.NoError(t, m.SetHeating(180))
	require.NoError(t, m.SetCooling(-3))

	heat, cool := m.Levels()
	assert.Equal(t, 100.0, heat)
	assert.Equal(t, 0.0, cool)

	require.NoError(t, m.StopAll())
	heat, cool = m.Levels()
	assert.Zero(t, heat)
	assert.Zero(t, cool)
	assert.Equal(t, 1, m.Stops())
	assert.Equal(t, []Command{{"heat", 100}, {"cool", 0}, {"stop", 0}}, m.History())
}

func TestMockError(t *testing.T) {
	m := NewMock()
	m.Err = errors.New("bus fault")
	assert.EqualError(t, m.SetHeating(10), "bus fault")
	assert.Empty(t, m.History())
}

type switchRecorder struct {
	mu    sync.Mutex
	calls []bool
}

func (r *switchRecorder) sw(on bool) error {
	r.mu.Lock()
	r.calls = append(r.calls, on)
	r.mu.Unlock()
	return nil
}

func TestDutyCycleWindow(t *testing.T) {
	rec := &switchRecorder{}
	d := NewDutyCycle("heat", rec.sw, 10*time.Second)
	d.started = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	d.SetDutyCycle(30)
	assert.True(t, d.shouldBeOn(d.started.Add(2*time.Second)))
	assert.False(t, d.shouldBeOn(d.started.Add(3*time.Second)))
	assert.False(t, d.shouldBeOn(d.started.Add(9*time.Second)))
	assert.True(t, d.shouldBeOn(d.started.Add(12*time.Second)))

	d.SetDutyCycle(150)
	assert.Equal(t, 100.0, d.DutyCycle())
	assert.True(t, d.shouldBeOn(d.started.Add(9999*time.Millisecond)))

	d.SetDutyCycle(0)
	assert.False(t, d.shouldBeOn(d.started))
}

func TestDutyCycleSwitchesOnlyOnChange(t *testing.T) {
	rec := &switchRecorder{}
	d := NewDutyCycle("cool", rec.sw, 10*time.Second)
	d.started = time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	d.SetDutyCycle(50)

	d.tick(d.started.Add(1 * time.Second))
	d.tick(d.started.Add(2 * time.Second))
	d.tick(d.started.Add(6 * time.Second))
	d.tick(d.started.Add(7 * time.Second))
	require.NoError(t, d.Off())

	assert.Equal(t, []bool{true, false}, rec.calls)
}

func TestDutyCycleRunSwitchesOffOnExit(t *testing.T) {
	rec := &switchRecorder{}
	d := NewDutyCycle("heat", rec.sw, time.Second)
	d.SetDutyCycle(100)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()

	assert.Eventually(t, func() bool {
		rec.mu.Lock()
		defer rec.mu.Unlock()
		return len(rec.calls) > 0 && rec.calls[0]
	}, time.Second, 5*time.Millisecond)

	cancel()
	<-done
	rec.mu.Lock()
	defer rec.mu.Unlock()
	assert.False(t, rec.calls[len(rec.calls)-1])
}

func TestPhidgetsVoltageMapping(t *testing.T) {
	var mu sync.Mutex
	var got []voltageOutRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/phidgets/voltage_out", r.URL.Path)
		var req voltageOutRequest
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		mu.Lock()
		got = append(got, req)
		mu.Unlock()
	}))
	defer srv.Close()

	p := NewPhidgets(srv.URL, 0, 1, 2)
	require.NoError(t, p.SetHeating(45))
	require.NoError(t, p.SetCooling(400))
	require.NoError(t, p.StopAll())

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, got, 4)
	assert.Equal(t, voltageOutRequest{Name: "heater", TargetState: 4.5, Channel: 0, HubPort: 2}, got[0])
	assert.Equal(t, voltageOutRequest{Name: "cooler", TargetState: 10, Channel: 1, HubPort: 2}, got[1])
	assert.Zero(t, got[2].TargetState)
	assert.Zero(t, got[3].TargetState)
}

func TestPhidgetsRetriesThenFails(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	p := NewPhidgets(srv.URL, 0, 1, 0)
	p.retryDelay = time.Millisecond
	err := p.SetHeating(10)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP 502")
	assert.EqualValues(t, phidgetsMaxRetries, calls.Load())
}
