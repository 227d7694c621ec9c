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

package eventbus

import (
	"context"
	"sync"
	"sync/atomic"

	"chamber/pkg/logger"
)

type Topic string
type Event = any

// Bus is an in-memory pub/sub that only keeps the most recent event per
// subscriber. Slow consumers miss intermediate events, never the latest one.
type Bus struct {
	mu     sync.RWMutex
	subs   map[Topic]map[uint64]chan Event
	last   map[Topic]Event
	nextID atomic.Uint64
	closed atomic.Bool
	log    *logger.Logger

	published atomic.Int64
	replaced  atomic.Int64
	dropped   atomic.Int64
}

// Stats are counters for the debug pages.
type Stats struct {
	Published int64 `json:"published"`
	Replaced  int64 `json:"replaced"`
	Dropped   int64 `json:"dropped"`
}

func New() *Bus {
	return &Bus{
		subs: make(map[Topic]map[uint64]chan Event),
		last: make(map[Topic]Event),
		log:  logger.New("EventBus"),
	}
}

func (b *Bus) Stats() Stats {
	return Stats{
		Published: b.published.Load(),
		Replaced:  b.replaced.Load(),
		Dropped:   b.dropped.Load(),
	}
}

// Publish stores ev as the last event for topic and hands it to every
// subscriber, replacing any value they have not consumed yet.
func (b *Bus) Publish(topic Topic, ev Event) {
	if b.closed.Load() {
		return
	}
	b.published.Add(1)

	// sends never block, so they happen under the lock; channels are only
	// closed while holding it
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed.Load() {
		return
	}
	b.last[topic] = ev
	for _, ch := range b.subs[topic] {
		b.replace(ch, ev)
	}
}

// replace delivers ev to a size-1 channel without blocking.
func (b *Bus) replace(ch chan Event, ev Event) {
	select {
	case ch <- ev:
		return
	default:
	}

	select {
	case <-ch:
		b.replaced.Add(1)
	default:
	}
	select {
	case ch <- ev:
	default:
		b.dropped.Add(1)
		b.log.Error("dropped event: %+v", ev)
	}
}

// Subscribe returns a channel of events for topic and an unsubscribe func.
// With withLast, the most recent event (if any) is delivered immediately.
// The channel is closed once ctx is done or unsubscribe is called.
func (b *Bus) Subscribe(ctx context.Context, topic Topic, withLast bool) (<-chan Event, func()) {
	if b.closed.Load() {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	ch := make(chan Event, 1)
	id := b.nextID.Add(1)

	b.mu.Lock()
	if b.closed.Load() {
		b.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	if b.subs[topic] == nil {
		b.subs[topic] = make(map[uint64]chan Event)
	}
	b.subs[topic][id] = ch
	if last, ok := b.last[topic]; withLast && ok {
		b.replace(ch, last)
	}
	b.mu.Unlock()

	done := make(chan struct{})
	var once sync.Once
	unsub := func() { once.Do(func() { close(done) }) }

	go func() {
		select {
		case <-ctx.Done():
		case <-done:
		}

		b.mu.Lock()
		defer b.mu.Unlock()
		if m, ok := b.subs[topic]; ok {
			if _, ok := m[id]; !ok {
				// already closed by Close
				return
			}
			delete(m, id)
			if len(m) == 0 {
				delete(b.subs, topic)
			}
		} else {
			return
		}
		close(ch)
	}()

	return ch, unsub
}

// GetLast returns the last published event for a topic (if any).
func (b *Bus) GetLast(topic Topic) (Event, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	v, ok := b.last[topic]
	return v, ok
}

// Close closes every subscriber channel. Publish becomes a no-op and
// Subscribe returns closed channels.
func (b *Bus) Close() {
	if b.closed.Swap(true) {
		return
	}
	b.mu.Lock()
	for _, m := range b.subs {
		for _, ch := range m {
			close(ch)
		}
	}
	b.subs = make(map[Topic]map[uint64]chan Event)
	b.last = make(map[Topic]Event)
	b.mu.Unlock()
}
