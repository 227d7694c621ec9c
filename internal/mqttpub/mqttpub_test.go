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

package mqttpub

import (
	"chamber/internal/events"
	"chamber/pkg/eventbus"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startService(t *testing.T, pub Publisher, bus *eventbus.Bus) (cancel func()) {
	t.Helper()
	ctx, stop := context.WithCancel(context.Background())
	done := make(chan struct{})
	svc := New(pub, bus, "lab/chamber1")
	go func() {
		svc.Run(ctx)
		close(done)
	}()
	return func() {
		stop()
		<-done
	}
}

func TestForwardsEvents(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	fake := NewFake()

	cancel := startService(t, fake, bus)

	bus.Publish(events.TopicCycle, events.CycleUpdate{CycleID: 3, Name: "run1", Running: true})
	bus.Publish(events.TopicSnapshot, events.SnapshotUpdate{Readings: map[string]float64{"air": 21.5}})

	require.Eventually(t, func() bool {
		_, a := fake.Last("lab/chamber1/cycle")
		_, b := fake.Last("lab/chamber1/snapshot")
		return a && b
	}, time.Second, 5*time.Millisecond)

	msg, _ := fake.Last("lab/chamber1/cycle")
	assert.True(t, msg.Retained)
	var cycle events.CycleUpdate
	require.NoError(t, json.Unmarshal(msg.Payload, &cycle))
	assert.Equal(t, "run1", cycle.Name)
	assert.True(t, cycle.Running)

	msg, _ = fake.Last("lab/chamber1/snapshot")
	assert.False(t, msg.Retained)
	assert.JSONEq(t, `{"time":"0001-01-01T00:00:00Z","readings":{"air":21.5}}`, string(msg.Payload))

	cancel()
	assert.True(t, fake.Closed())
}

func TestPublishErrorsDoNotStopService(t *testing.T) {
	bus := eventbus.New()
	defer bus.Close()
	fake := NewFake()
	fake.Err = errors.New("broker down")

	cancel := startService(t, fake, bus)
	defer cancel()

	bus.Publish(events.TopicControl, events.ControlUpdate{Output: 10})
	time.Sleep(20 * time.Millisecond)

	fake.mu.Lock()
	fake.Err = nil
	fake.mu.Unlock()

	bus.Publish(events.TopicControl, events.ControlUpdate{Output: 12})
	require.Eventually(t, func() bool {
		_, ok := fake.Last("lab/chamber1/control")
		return ok
	}, time.Second, 5*time.Millisecond)
}

func TestDefaultPrefix(t *testing.T) {
	svc := New(NewFake(), eventbus.New(), "")
	assert.Equal(t, "chamber/cycle", svc.Topic("cycle"))
}
