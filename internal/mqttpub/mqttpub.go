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

// Package mqttpub mirrors chamber events onto an MQTT broker.
package mqttpub

import (
	"chamber/internal/events"
	"chamber/pkg/eventbus"
	"chamber/pkg/logger"
	"context"
	"encoding/json"
)

// Publisher sends one message to the broker.
type Publisher interface {
	Publish(topic string, payload []byte, retained bool) error
	Close() error
}

// Service forwards bus events to a Publisher as JSON.
type Service struct {
	pub    Publisher
	bus    *eventbus.Bus
	prefix string
	log    *logger.Logger
}

func New(pub Publisher, bus *eventbus.Bus, prefix string) *Service {
	if prefix == "" {
		prefix = "chamber"
	}
	return &Service{
		pub:    pub,
		bus:    bus,
		prefix: prefix,
		log:    logger.New("MQTT"),
	}
}

func (s *Service) Topic(name string) string {
	return s.prefix + "/" + name
}

func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")
	defer func() {
		if err := s.pub.Close(); err != nil {
			s.log.Error("close: %v", err)
		}
	}()

	snapshots, _ := s.bus.Subscribe(ctx, events.TopicSnapshot, true)
	controls, _ := s.bus.Subscribe(ctx, events.TopicControl, true)
	cycles, _ := s.bus.Subscribe(ctx, events.TopicCycle, true)

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-snapshots:
			if !ok {
				return
			}
			s.forward("snapshot", ev, false)
		case ev, ok := <-controls:
			if !ok {
				return
			}
			s.forward("control", ev, false)
		case ev, ok := <-cycles:
			if !ok {
				return
			}
			s.forward("cycle", ev, true)
		}
	}
}

// forward logs failures and carries on; telemetry must not stall the bus.
func (s *Service) forward(name string, ev any, retained bool) {
	payload, err := json.Marshal(ev)
	if err != nil {
		s.log.Error("marshal %s: %v", name, err)
		return
	}
	if err := s.pub.Publish(s.Topic(name), payload, retained); err != nil {
		s.log.Warn("publish %s: %v", name, err)
	}
}
