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

package sensors

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"
)

// ErrUnavailable marks a read that timed out or produced no value.
var ErrUnavailable = errors.New("sensor unavailable")

// Source reads one named sensor from a fixed roster.
type Source interface {
	IDs() []string
	Read(ctx context.Context, id string) (float64, error)
}

// ReadWithTimeout bounds a single read. A hung source is abandoned once the
// timeout elapses; its goroutine finishes whenever the source returns.
func ReadWithTimeout(ctx context.Context, src Source, id string, timeout time.Duration) (float64, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		v   float64
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := src.Read(ctx, id)
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		if r.err != nil {
			if errors.Is(r.err, ErrUnavailable) {
				return 0, r.err
			}
			return 0, fmt.Errorf("%w: %s: %w", ErrUnavailable, id, r.err)
		}
		if math.IsNaN(r.v) || math.IsInf(r.v, 0) {
			return 0, fmt.Errorf("%w: %s: no value", ErrUnavailable, id)
		}
		return r.v, nil
	case <-ctx.Done():
		return 0, fmt.Errorf("%w: %s: %w", ErrUnavailable, id, ctx.Err())
	}
}

// ReadAll reads every sensor of the roster concurrently. Each id ends up in
// exactly one of the returned maps.
func ReadAll(ctx context.Context, src Source, timeout time.Duration) (map[string]float64, map[string]error) {
	ids := src.IDs()
	values := make(map[string]float64, len(ids))
	errs := make(map[string]error)

	var mu sync.Mutex
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Go(func() {
			v, err := ReadWithTimeout(ctx, src, id, timeout)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs[id] = err
				return
			}
			values[id] = v
		})
	}
	wg.Wait()
	return values, errs
}
