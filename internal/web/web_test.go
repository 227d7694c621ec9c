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

package web

import (
	"chamber/internal/actuator"
	"chamber/internal/chamber"
	"chamber/internal/config"
	"chamber/internal/controller"
	"chamber/internal/datalog"
	"chamber/internal/profile"
	"chamber/internal/runstate"
	"chamber/internal/sensors"
	"chamber/internal/store"
	"chamber/pkg/eventbus"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fixture struct {
	svc  *Service
	ch   *chamber.Chamber
	src  *sensors.Fake
	port *actuator.Mock
	bus  *eventbus.Bus
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	st, err := store.Open(filepath.Join(t.TempDir(), "chamber.db"))
	require.NoError(t, err)

	src := sensors.NewFake("air", "load")
	src.Set("air", 20)
	src.Set("load", 21)

	bus := eventbus.New()
	t.Cleanup(bus.Close)
	state := runstate.New(bus)

	engine := datalog.New(config.DataLogConfig{IntervalMs: int(time.Hour / time.Millisecond), ReadTimeoutMs: 50}, st, src, state, bus)
	port := actuator.NewMock()
	ctrl := controller.New(config.ControlConfig{Kp: 1}, 50*time.Millisecond, src, port, state, bus)
	ch := chamber.New(engine, ctrl, state, profile.Limits{MaxPoints: 10, MinY: -20, MaxY: 120, MaxRico: 1})
	t.Cleanup(func() { _, _ = ch.StopCycle(context.Background()) })

	return &fixture{svc: New(ch, bus, t.TempDir(), 10*time.Millisecond), ch: ch, src: src, port: port, bus: bus}
}

func (f *fixture) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	rec := httptest.NewRecorder()
	f.svc.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func TestCycleEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cycles", `{"name":"run1"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/cycles", `{"name":"run2"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = f.do(t, http.MethodDelete, "/api/cycles/run1", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "running cycle cannot be deleted")

	rec = f.do(t, http.MethodPost, "/api/cycles/stop", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/cycles/stop", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cycles", `{"name":"run1"}`)
	assert.Equal(t, http.StatusConflict, rec.Code, "duplicate name")

	rec = f.do(t, http.MethodGet, "/api/cycles", "")
	require.Equal(t, http.StatusOK, rec.Code)
	cycles := decodeBody[[]store.Cycle](t, rec)
	require.Len(t, cycles, 1)
	assert.Equal(t, "run1", cycles[0].Name)
	assert.NotNil(t, cycles[0].EndTime)

	rec = f.do(t, http.MethodGet, "/api/cycles/run1/readings", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	rec = f.do(t, http.MethodDelete, "/api/cycles/run1", "")
	assert.Equal(t, http.StatusNoContent, rec.Code)
	rec = f.do(t, http.MethodDelete, "/api/cycles/run1", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec = f.do(t, http.MethodGet, "/api/cycles/run1/readings", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestBadRequests(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/cycles", `{"name":""}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/cycles", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/profile/constant", `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/profile", `{"points":[{"x":0,"y":20},{"x":1,"y":90}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "slope", decodeBody[errorResponse](t, rec).Rule)

	rec = f.do(t, http.MethodPut, "/api/profile", `{"name":"ramp","points":[{"x":0,"y":20},{"x":60,"y":50}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.JSONEq(t, `{"name":"ramp","points":[{"x":0,"y":20},{"x":60,"y":50}],"duration":60}`, rec.Body.String())

	rec = f.do(t, http.MethodPost, "/api/profile/constant", `{"temperature":500}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "range", decodeBody[errorResponse](t, rec).Rule)

	rec = f.do(t, http.MethodGet, "/api/profile", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"name":"ramp"`)
	assert.Contains(t, rec.Body.String(), `"max_rico":1`)
}

func TestTickEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/tick", "")
	assert.Equal(t, http.StatusConflict, rec.Code, "control idle")

	rec = f.do(t, http.MethodPost, "/api/profile/constant", `{"temperature":40}`)
	require.Equal(t, http.StatusOK, rec.Code)
	rec = f.do(t, http.MethodPost, "/api/control/start", "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/tick", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"output":20,"target":40,"error":20}`, rec.Body.String())

	f.src.Hang("air")
	rec = f.do(t, http.MethodGet, "/api/tick", "")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	rec = f.do(t, http.MethodPost, "/api/control/stop", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, decodeBody[chamber.ControlStatus](t, rec).Active)

	rec = f.do(t, http.MethodPost, "/api/control/pause", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestSensorsAndStatus(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/api/sensors", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"air":20,"load":21}`, rec.Body.String())

	rec = f.do(t, http.MethodGet, "/api/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	st := decodeBody[statusResponse](t, rec)
	assert.False(t, st.Cycle.Running)
	assert.Equal(t, []string{"air", "load"}, st.Cycle.Sensors)
	assert.Equal(t, "air", st.Control.Sensor)
}

func TestWebSocketFeed(t *testing.T) {
	f := newFixture(t)
	srv := httptest.NewServer(f.svc.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	// the service polls the sensors while a client is connected
	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type != "snapshot" {
			continue
		}
		var snap struct {
			Readings map[string]float64 `json:"readings"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &snap))
		assert.Equal(t, 20.0, snap.Readings["air"])
		return
	}
}

func TestWatchedStreamDrivesControl(t *testing.T) {
	f := newFixture(t)
	_, err := f.ch.SetConstantTemperature(30)
	require.NoError(t, err)
	f.ch.StartControl()

	srv := httptest.NewServer(f.svc.Handler())
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		f.svc.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer ws.Close()

	require.NoError(t, ws.SetReadDeadline(time.Now().Add(5*time.Second)))
	for {
		var msg struct {
			Type string          `json:"type"`
			Data json.RawMessage `json:"data"`
		}
		require.NoError(t, ws.ReadJSON(&msg))
		if msg.Type != "control" {
			continue
		}
		var ev struct {
			Current float64 `json:"current"`
			Target  float64 `json:"target"`
			Output  float64 `json:"output"`
		}
		require.NoError(t, json.Unmarshal(msg.Data, &ev))
		assert.Equal(t, 20.0, ev.Current)
		assert.Equal(t, 30.0, ev.Target)
		assert.Greater(t, ev.Output, 0.0)
		break
	}

	// the event is published just before the actuators are set
	require.Eventually(t, func() bool {
		heating, cooling := f.port.Levels()
		return heating > 0 && cooling == 0
	}, 2*time.Second, 10*time.Millisecond)
	require.NotNil(t, f.ch.ControlStatus().Last)
}

func TestPollWithoutControlOnlyReads(t *testing.T) {
	f := newFixture(t)
	f.svc.pollOnce(context.Background(), time.Now())

	assert.Equal(t, map[string]float64{"air": 20, "load": 21}, f.ch.Snapshot())
	assert.Nil(t, f.ch.ControlStatus().Last)
	assert.Empty(t, f.port.History())
}

func TestLimitsEndpoint(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPut, "/api/profile/limits", `{"max_y": 50}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	lim := decodeBody[profile.Limits](t, rec)
	assert.Equal(t, 50.0, lim.MaxY)
	assert.Equal(t, 10, lim.MaxPoints, "omitted fields are kept")

	rec = f.do(t, http.MethodPost, "/api/profile/constant", `{"temperature": 80}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodPut, "/api/profile/limits", `{"min_y": 90}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = f.do(t, http.MethodGet, "/api/profile/limits", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 50.0, decodeBody[profile.Limits](t, rec).MaxY)
}
