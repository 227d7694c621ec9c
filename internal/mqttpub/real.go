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
	"fmt"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// RealPublisher publishes to an actual MQTT broker.
type RealPublisher struct {
	client paho.Client
	status string
}

// NewRealPublisher connects to broker. The broker marks <prefix>/status
// "offline" if the connection drops.
func NewRealPublisher(broker, clientID, prefix string) (*RealPublisher, error) {
	status := prefix + "/status"
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5*time.Second).
		SetWill(status, "offline", 1, true)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	p := &RealPublisher{client: client, status: status}
	if err := p.Publish(status, []byte("online"), true); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *RealPublisher) Publish(topic string, payload []byte, retained bool) error {
	qos := byte(0)
	if retained {
		qos = 1
	}
	token := p.client.Publish(topic, qos, retained, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// Close marks the chamber offline and disconnects.
func (p *RealPublisher) Close() error {
	_ = p.Publish(p.status, []byte("offline"), true)
	p.client.Disconnect(1000)
	return nil
}
