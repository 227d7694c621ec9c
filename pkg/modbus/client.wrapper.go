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

package modbus

import (
	"chamber/pkg/logger"
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	wrapper "github.com/grid-x/modbus"
)

// Client is a lazily connected Modbus TCP client shared by every sensor
// on the same device.
type Client struct {
	mu      sync.Mutex
	handler *wrapper.TCPClientHandler
	client  wrapper.Client
	conf    ConnConfig
	log     *logger.Logger
}

func NewClient(conf ConnConfig) *Client {
	return &Client{
		conf: conf,
		log:  logger.New("Modbus " + conf.Address()),
	}
}

// connect (re)connects once. Caller holds c.mu.
func (c *Client) connect(ctx context.Context) error {
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler = nil
		c.client = nil
	}

	url := c.conf.Address()
	handler := wrapper.NewTCPClientHandler(url)
	handler.SlaveID = c.conf.SlaveID
	handler.Timeout = c.conf.Timeout()
	handler.ProtocolRecoveryTimeout = 250 * time.Millisecond
	handler.LinkRecoveryTimeout = 5 * time.Second

	c.log.Debug("Connecting...")
	if err := handler.Connect(ctx); err != nil {
		return fmt.Errorf("modbus connect failed: %w", err)
	}

	c.handler = handler
	c.client = wrapper.NewClient(handler)
	c.log.Info("Connected")
	return nil
}

// ReadRegisters reads holding or input registers, reconnecting once on a
// connection error.
func (c *Client) ReadRegisters(ctx context.Context, kind string, addr, quantity uint16) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	var err error
	for attempt := 0; attempt < 2; attempt++ {
		if c.client == nil {
			if err = c.connect(ctx); err != nil {
				return nil, err
			}
		}

		var data []byte
		if kind == "input" {
			data, err = c.client.ReadInputRegisters(ctx, addr, quantity)
		} else {
			data, err = c.client.ReadHoldingRegisters(ctx, addr, quantity)
		}
		if err == nil {
			return data, nil
		}
		if !isConnError(err) {
			return nil, err
		}

		c.log.Warn("connection error: %v, reconnecting", err)
		_ = c.handler.Close()
		c.handler = nil
		c.client = nil
	}
	return nil, err
}

// Close closes the underlying handler.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.handler != nil {
		_ = c.handler.Close()
		c.handler = nil
		c.client = nil
	}
}

// --- helpers ---

func isConnError(err error) bool {
	if err == nil {
		return false
	}
	var nerr net.Error
	if errors.As(err, &nerr) {
		return true
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "connection reset") ||
		strings.Contains(msg, "broken pipe") ||
		strings.Contains(msg, "closed by the remote host") ||
		strings.Contains(msg, "i/o timeout") ||
		strings.Contains(msg, "use of closed network connection") ||
		strings.Contains(msg, "connection refused")
}
