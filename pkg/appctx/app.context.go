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

package appctx

import (
	"chamber/pkg/logger"
	"context"
	"os"
	"os/signal"
	"syscall"
)

// New returns a context that is canceled when SIGINT or SIGTERM is
// received, and its cancel function.
func New() (context.Context, context.CancelFunc) {
	return WithSignals(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

// WithSignals cancels the returned context on the first of sigs. A second
// signal exits the process without waiting for services to stop.
func WithSignals(parent context.Context, sigs ...os.Signal) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)

	ch := make(chan os.Signal, 2)
	signal.Notify(ch, sigs...)

	go func() {
		log := logger.New("SigHandler")
		select {
		case sig := <-ch:
			log.Info("Received signal: %s", sig)
			cancel()
		case <-ctx.Done():
			signal.Stop(ch)
			return
		}

		sig := <-ch
		log.Error("Received second signal: %s, exiting now", sig)
		os.Exit(1)
	}()

	return ctx, cancel
}
