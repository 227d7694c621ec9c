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
	"fmt"
	"slices"
	"sync"
)

// Fake is a scripted source. Unset ids read as unavailable.
type Fake struct {
	mu     sync.Mutex
	ids    []string
	values map[string]float64
	errs   map[string]error
	hang   map[string]bool
	calls  map[string]int
}

func NewFake(ids ...string) *Fake {
	return &Fake{
		ids:    ids,
		values: make(map[string]float64),
		errs:   make(map[string]error),
		hang:   make(map[string]bool),
		calls:  make(map[string]int),
	}
}

func (f *Fake) Set(id string, v float64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[id] = v
	delete(f.errs, id)
	delete(f.hang, id)
}

func (f *Fake) Fail(id string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.errs[id] = err
}

// Hang makes reads of id block until their context is done.
func (f *Fake) Hang(id string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hang[id] = true
}

func (f *Fake) Calls(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[id]
}

func (f *Fake) IDs() []string {
	return slices.Clone(f.ids)
}

func (f *Fake) Read(ctx context.Context, id string) (float64, error) {
	f.mu.Lock()
	f.calls[id]++
	hang := f.hang[id]
	err := f.errs[id]
	v, ok := f.values[id]
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return 0, ctx.Err()
	}
	if err != nil {
		return 0, err
	}
	if !ok {
		return 0, fmt.Errorf("no value for %q", id)
	}
	return v, nil
}
