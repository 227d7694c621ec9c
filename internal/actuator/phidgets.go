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
	"bytes"
	"chamber/pkg/logger"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// voltageOutRequest is the phidgets bridge payload for a VoltageOutput channel.
type voltageOutRequest struct {
	Name        string  `json:"name"`
	TargetState float64 `json:"target_state"`
	Channel     int     `json:"channel"`
	HubPort     int     `json:"hub_port"`
}

const (
	phidgetsMaxVolts   = 10.0
	phidgetsMaxRetries = 3
)

// Phidgets drives analog heater/cooler power stages through the phidgets
// HTTP bridge: 0–100% maps linearly onto 0–10 V.
type Phidgets struct {
	addr        string
	heatChannel int
	coolChannel int
	hubPort     int
	retryDelay  time.Duration

	client *http.Client
	log    *logger.Logger
}

func NewPhidgets(addr string, heatChannel, coolChannel, hubPort int) *Phidgets {
	return &Phidgets{
		addr:        addr,
		heatChannel: heatChannel,
		coolChannel: coolChannel,
		hubPort:     hubPort,
		retryDelay:  500 * time.Millisecond,
		client:      &http.Client{Timeout: 5 * time.Second},
		log:         logger.New("Phidgets"),
	}
}

func (p *Phidgets) SetHeating(percent float64) error {
	return p.setVoltage("heater", p.heatChannel, percent)
}

func (p *Phidgets) SetCooling(percent float64) error {
	return p.setVoltage("cooler", p.coolChannel, percent)
}

func (p *Phidgets) StopAll() error {
	herr := p.setVoltage("heater", p.heatChannel, 0)
	cerr := p.setVoltage("cooler", p.coolChannel, 0)
	if herr != nil {
		return herr
	}
	return cerr
}

func (p *Phidgets) setVoltage(name string, channel int, percent float64) error {
	req := voltageOutRequest{
		Name:        name,
		TargetState: Clamp(percent) / 100 * phidgetsMaxVolts,
		Channel:     channel,
		HubPort:     p.hubPort,
	}

	var err error
	for i := range phidgetsMaxRetries {
		if err = p.postJSON(p.addr+"/phidgets/voltage_out", req); err == nil {
			return nil
		}
		p.log.Error("%s attempt %d/%d: %v", name, i+1, phidgetsMaxRetries, err)
		if i < phidgetsMaxRetries-1 {
			time.Sleep(p.retryDelay)
		}
	}
	return fmt.Errorf("set %s voltage: %w", name, err)
}

func (p *Phidgets) postJSON(url string, payload any) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}
	resp, err := p.client.Post(url, "application/json", bytes.NewReader(data))
	if err != nil {
		return fmt.Errorf("HTTP POST failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	return nil
}
