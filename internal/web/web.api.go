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
	"chamber/internal/controller"
	"chamber/internal/datalog"
	"chamber/internal/profile"
	"chamber/internal/store"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

type startCycleRequest struct {
	Name string `json:"name"`
}

type setProfileRequest struct {
	Name   string          `json:"name"`
	Points []profile.Point `json:"points"`
}

type constantRequest struct {
	Temperature *float64 `json:"temperature"`
}

type statusResponse struct {
	Cycle   datalog.Status        `json:"cycle"`
	Control chamber.ControlStatus `json:"control"`
}

type tickResponse struct {
	Output float64 `json:"output"`
	Target float64 `json:"target"`
	Error  float64 `json:"error"`
}

func (s *Service) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, statusResponse{
		Cycle:   s.ch.CycleStatus(),
		Control: s.ch.ControlStatus(),
	})
}

func (s *Service) handleListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := s.ch.ListCycles(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if cycles == nil {
		cycles = []store.Cycle{}
	}
	writeJSON(w, http.StatusOK, cycles)
}

func (s *Service) handleStartCycle(w http.ResponseWriter, r *http.Request) {
	var req startCycleRequest
	if !s.decode(w, r, &req) {
		return
	}
	id, err := s.ch.StartCycle(r.Context(), req.Name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"cycle_id": id, "name": req.Name})
}

func (s *Service) handleStopCycle(w http.ResponseWriter, r *http.Request) {
	id, err := s.ch.StopCycle(r.Context())
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycle_id": id})
}

func (s *Service) handleDeleteCycle(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := s.ch.DeleteCycle(r.Context(), name); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Service) handleReadings(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	readings, err := s.ch.Readings(r.Context(), name)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if readings == nil {
		readings = []store.Reading{}
	}
	writeJSON(w, http.StatusOK, readings)
}

func (s *Service) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"profile": s.ch.Profile(),
		"limits":  s.ch.Limits(),
	})
}

func (s *Service) handleGetLimits(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ch.Limits())
}

// handleSetLimits accepts a partial document; omitted fields keep their
// current value.
func (s *Service) handleSetLimits(w http.ResponseWriter, r *http.Request) {
	lim := s.ch.Limits()
	if !s.decode(w, r, &lim) {
		return
	}
	if err := s.ch.SetLimits(lim); err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, lim)
}

func (s *Service) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	var req setProfileRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Name == "" {
		req.Name = "desired_temperature"
	}
	p, err := s.ch.SetProfilePoints(req.Name, req.Points)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleConstant(w http.ResponseWriter, r *http.Request) {
	var req constantRequest
	if !s.decode(w, r, &req) {
		return
	}
	if req.Temperature == nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "temperature is required"})
		return
	}
	p, err := s.ch.SetConstantTemperature(*req.Temperature)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Service) handleControl(w http.ResponseWriter, r *http.Request) {
	switch mux.Vars(r)["action"] {
	case "start":
		s.ch.StartControl()
	case "stop":
		if err := s.ch.StopControl(); err != nil {
			s.writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, s.ch.ControlStatus())
}

func (s *Service) handleSensors(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.ch.ReadSensors(r.Context()))
}

func (s *Service) handleTick(w http.ResponseWriter, r *http.Request) {
	res, err := s.ch.Tick(r.Context(), time.Now())
	if err != nil && res.Time.IsZero() {
		s.writeError(w, err)
		return
	}
	if err != nil {
		// applied, but an actuator call failed
		s.log.Error("tick: %v", err)
	}
	writeJSON(w, http.StatusOK, tickResponse{Output: res.Output, Target: res.Target, Error: res.Error})
}

// --- helpers ---

type errorResponse struct {
	Error string `json:"error"`
	Rule  string `json:"rule,omitempty"`
}

func (s *Service) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: fmt.Sprintf("invalid request body: %v", err)})
		return false
	}
	return true
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	var verr *profile.ValidationError
	switch {
	case errors.As(err, &verr), errors.Is(err, datalog.ErrInvalidName):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound), errors.Is(err, datalog.ErrNotRunning):
		return http.StatusNotFound
	case errors.Is(err, datalog.ErrAlreadyRunning), errors.Is(err, store.ErrDuplicateName),
		errors.Is(err, datalog.ErrCycleActive),
		errors.Is(err, controller.ErrNotActive), errors.Is(err, controller.ErrNoProfile):
		return http.StatusConflict
	case errors.Is(err, controller.ErrSensorUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Service) writeError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		s.log.Error("request failed: %v", err)
	}
	resp := errorResponse{Error: err.Error()}
	var verr *profile.ValidationError
	if errors.As(err, &verr) {
		resp.Rule = verr.Rule
	}
	writeJSON(w, status, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
