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
	"chamber/internal/chamber"
	"chamber/internal/events"
	"chamber/pkg/eventbus"
	"chamber/pkg/logger"
	"context"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"
)

// Service serves the chamber API, the live page and the websocket feed.
type Service struct {
	ch       *chamber.Chamber
	bus      *eventbus.Bus
	hub      *hub
	log      *logger.Logger
	poll     time.Duration
	assets   string
	upgrader websocket.Upgrader
	handler  http.Handler
}

// New builds the service. Connected clients get a fresh sensor read every
// poll interval.
func New(ch *chamber.Chamber, bus *eventbus.Bus, rootDir string, poll time.Duration) *Service {
	log := logger.New("ChamberWeb")
	if poll <= 0 {
		poll = time.Second
	}
	s := &Service{
		ch:     ch,
		bus:    bus,
		hub:    newHub(log),
		log:    log,
		poll:   poll,
		assets: filepath.Join(rootDir, "internal/web/www"),
	}
	s.upgrader = websocket.Upgrader{CheckOrigin: s.checkOrigin}
	s.handler = s.routes()
	return s
}

func (s *Service) Handler() http.Handler {
	return s.handler
}

func (s *Service) routes() http.Handler {
	r := mux.NewRouter()

	api := r.PathPrefix("/api").Subrouter()
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/cycles", s.handleListCycles).Methods(http.MethodGet)
	api.HandleFunc("/cycles", s.handleStartCycle).Methods(http.MethodPost)
	api.HandleFunc("/cycles/stop", s.handleStopCycle).Methods(http.MethodPost)
	api.HandleFunc("/cycles/{name}", s.handleDeleteCycle).Methods(http.MethodDelete)
	api.HandleFunc("/cycles/{name}/readings", s.handleReadings).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleGetProfile).Methods(http.MethodGet)
	api.HandleFunc("/profile", s.handleSetProfile).Methods(http.MethodPut)
	api.HandleFunc("/profile/constant", s.handleConstant).Methods(http.MethodPost)
	api.HandleFunc("/profile/limits", s.handleGetLimits).Methods(http.MethodGet)
	api.HandleFunc("/profile/limits", s.handleSetLimits).Methods(http.MethodPut)
	api.HandleFunc("/control/{action:start|stop}", s.handleControl).Methods(http.MethodPost)
	api.HandleFunc("/sensors", s.handleSensors).Methods(http.MethodGet)
	api.HandleFunc("/tick", s.handleTick).Methods(http.MethodGet, http.MethodPost)

	r.HandleFunc("/ws", s.serveWebSockets)
	r.PathPrefix("/").HandlerFunc(s.serveRoot)
	return r
}

func (s *Service) serveRoot(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path == "/" || r.URL.Path == "" {
		http.ServeFile(w, r, filepath.Join(s.assets, "chamber.html"))
		return
	}
	http.FileServer(http.Dir(s.assets)).ServeHTTP(w, r)
}

func (s *Service) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	s.log.Debug("checking origin: %s", origin)
	if origin == "" {
		return true
	}
	if strings.Contains(origin, "localhost") {
		return true
	}
	return strings.Contains(origin, r.Host)
}

func (s *Service) serveWebSockets(w http.ResponseWriter, r *http.Request) {
	ws, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.Error("failed to upgrade websocket: %v", err)
		return
	}
	s.hub.add(ws)
	defer func() {
		s.hub.remove(ws)
		ws.Close()
	}()

	// the feed is one-way; reading only detects the close
	for {
		if _, _, err := ws.NextReader(); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.log.Debug("websocket closed: %v", err)
			}
			return
		}
	}
}

// pollOnce refreshes the sensor snapshot and, while a control session is
// active, runs one control tick. Results reach clients through the bus.
func (s *Service) pollOnce(ctx context.Context, now time.Time) {
	readCtx, cancel := context.WithTimeout(ctx, s.poll)
	defer cancel()

	s.ch.ReadSensors(readCtx)
	if !s.ch.ControlStatus().Active {
		return
	}
	if _, err := s.ch.Tick(readCtx, now); err != nil {
		s.log.Warn("control tick: %v", err)
	}
}

// Run forwards bus events to websocket clients and, while anyone is
// watching, polls the sensors and drives one control tick per poll.
func (s *Service) Run(ctx context.Context) {
	s.log.Info("Running...")
	defer s.log.Info("Stopped")
	defer s.hub.closeAll()

	snapshots, _ := s.bus.Subscribe(ctx, events.TopicSnapshot, true)
	controls, _ := s.bus.Subscribe(ctx, events.TopicControl, false)
	cycles, _ := s.bus.Subscribe(ctx, events.TopicCycle, true)

	ticker := time.NewTicker(s.poll)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return

		case now := <-ticker.C:
			if s.hub.count() > 0 {
				s.pollOnce(ctx, now)
			}

		case ev, ok := <-snapshots:
			if !ok {
				return
			}
			s.hub.broadcast("snapshot", ev)

		case ev, ok := <-controls:
			if !ok {
				return
			}
			s.hub.broadcast("control", ev)

		case ev, ok := <-cycles:
			if !ok {
				return
			}
			s.hub.broadcast("cycle", ev)
		}
	}
}
