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
	"chamber/pkg/logger"
	"encoding/json"
	"sync"

	"github.com/gorilla/websocket"
)

// message is the envelope sent to websocket clients.
type message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

type hub struct {
	mu      sync.Mutex
	clients map[*websocket.Conn]bool
	log     *logger.Logger
}

func newHub(log *logger.Logger) *hub {
	return &hub{clients: make(map[*websocket.Conn]bool), log: log}
}

func (h *hub) add(ws *websocket.Conn) {
	h.mu.Lock()
	h.clients[ws] = true
	h.mu.Unlock()
}

func (h *hub) remove(ws *websocket.Conn) {
	h.mu.Lock()
	delete(h.clients, ws)
	h.mu.Unlock()
}

func (h *hub) count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *hub) broadcast(typ string, data any) {
	raw, err := json.Marshal(message{Type: typ, Data: data})
	if err != nil {
		h.log.Error("failed to marshal broadcast: %v", err)
		return
	}
	pm, err := websocket.NewPreparedMessage(websocket.TextMessage, raw)
	if err != nil {
		h.log.Error("failed to prepare message: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		if err := ws.WritePreparedMessage(pm); err != nil {
			h.log.Debug("dropping client: %v", err)
			ws.Close()
			delete(h.clients, ws)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ws := range h.clients {
		ws.Close()
		delete(h.clients, ws)
	}
}
