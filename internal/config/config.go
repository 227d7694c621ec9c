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

package config

import (
	"chamber/pkg/eventbus"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"time"
)

type ControlConfig struct {
	Kp float64 `json:"kp"`
	Ki float64 `json:"ki"`
	Kd float64 `json:"kd"`

	// sensor id fed to the PID loop; defaults to the first roster sensor
	ControlSensor string  `json:"control_sensor"`
	IntegralLimit float64 `json:"integral_limit"`
}

type ProfileConfig struct {
	MaxPoints int     `json:"max_points"`
	MinX      float64 `json:"min_x"`
	MinY      float64 `json:"min_y"`
	MaxY      float64 `json:"max_y"`
	MaxRico   float64 `json:"max_rico"` // °C per second
}

type DataLogConfig struct {
	DBPath        string `json:"db_path"`
	IntervalMs    int    `json:"interval_ms"`
	ReadTimeoutMs int    `json:"read_timeout_ms"`
}

type SensorsConfig struct {
	RosterPath string `json:"roster_path"`
	Mock       bool   `json:"mock"`
}

type ActuatorConfig struct {
	Backend string `json:"backend"` // "mock", "gpio" or "phidgets"

	// gpio
	Chip          string `json:"chip"`
	HeatLine      int    `json:"heat_line"`
	CoolLine      int    `json:"cool_line"`
	WindowSeconds int    `json:"window_seconds"`

	// phidgets voltage outputs
	PhidgetsAddr string `json:"phidgets_addr"`
	HeatChannel  int    `json:"heat_channel"`
	CoolChannel  int    `json:"cool_channel"`
	HubPort      int    `json:"hub_port"`
}

type MQTTConfig struct {
	Broker      string `json:"broker"` // empty disables publishing
	TopicPrefix string `json:"topic_prefix"`
	ClientID    string `json:"client_id"`
}

type Config struct {
	HTTPAddr string         `json:"http_addr"`
	Control  ControlConfig  `json:"control"`
	Profile  ProfileConfig  `json:"profile"`
	DataLog  DataLogConfig  `json:"datalog"`
	Sensors  SensorsConfig  `json:"sensors"`
	Actuator ActuatorConfig `json:"actuator"`
	MQTT     MQTTConfig     `json:"mqtt"`

	// not loaded from file, but added here to
	// pass to all services alongside config
	EventBus *eventbus.Bus `json:"-"`
	RootDir  string        `json:"-"`
}

func (c DataLogConfig) Interval() time.Duration {
	return time.Duration(c.IntervalMs) * time.Millisecond
}

func (c DataLogConfig) ReadTimeout() time.Duration {
	return time.Duration(c.ReadTimeoutMs) * time.Millisecond
}

// Load decodes the JSON config at path and applies defaults.
func Load(path string) (*Config, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open config: %w", err)
	}
	defer f.Close()

	var c Config
	if err := json.NewDecoder(f).Decode(&c); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	c.applyDefaults()
	if err := c.validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// LoadFile is Load for process startup: any error is fatal.
func LoadFile(path string) *Config {
	c, err := Load(path)
	if err != nil {
		log.Fatalf("%v", err)
	}
	return c
}

func (c *Config) applyDefaults() {
	if c.HTTPAddr == "" {
		c.HTTPAddr = ":8080"
	}
	if c.Control.Kp == 0 && c.Control.Ki == 0 && c.Control.Kd == 0 {
		c.Control.Kp = 1.0
	}
	if c.Control.IntegralLimit == 0 {
		c.Control.IntegralLimit = 100
	}
	if c.Profile.MaxPoints == 0 {
		c.Profile.MaxPoints = 50
	}
	if c.Profile.MinY == 0 && c.Profile.MaxY == 0 {
		c.Profile.MinY = -20
		c.Profile.MaxY = 120
	}
	if c.Profile.MaxRico == 0 {
		c.Profile.MaxRico = 1.0
	}
	if c.DataLog.DBPath == "" {
		c.DataLog.DBPath = "var/data/chamber.db"
	}
	if c.DataLog.IntervalMs == 0 {
		c.DataLog.IntervalMs = 1000
	}
	if c.DataLog.ReadTimeoutMs == 0 {
		c.DataLog.ReadTimeoutMs = 2000
	}
	if c.Sensors.RosterPath == "" {
		c.Sensors.RosterPath = "var/config/sensors.yml"
	}
	if c.Actuator.Backend == "" {
		c.Actuator.Backend = "mock"
	}
	if c.Actuator.Chip == "" {
		c.Actuator.Chip = "gpiochip0"
	}
	if c.Actuator.WindowSeconds == 0 {
		c.Actuator.WindowSeconds = 10
	}
	if c.MQTT.TopicPrefix == "" {
		c.MQTT.TopicPrefix = "chamber"
	}
	if c.MQTT.ClientID == "" {
		c.MQTT.ClientID = "chamber"
	}
}

func (c *Config) validate() error {
	if c.Profile.MinY >= c.Profile.MaxY {
		return fmt.Errorf("profile: min_y (%g) must be below max_y (%g)", c.Profile.MinY, c.Profile.MaxY)
	}
	if c.Profile.MaxRico < 0 {
		return fmt.Errorf("profile: max_rico must be positive")
	}
	if c.DataLog.IntervalMs < 0 || c.DataLog.ReadTimeoutMs < 0 {
		return fmt.Errorf("datalog: negative durations")
	}
	switch c.Actuator.Backend {
	case "mock", "gpio", "phidgets":
	default:
		return fmt.Errorf("actuator: unknown backend %q", c.Actuator.Backend)
	}
	return nil
}
