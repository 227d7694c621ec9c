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
	"math"
	"math/rand"
	"slices"
	"sync"
	"time"
)

// Mock returns base ± variation, uniformly distributed, rounded to 0.01.
type Mock struct {
	mu       sync.Mutex
	ids      []string
	profiles map[string]MockProfile
	rnd      *rand.Rand
}

// NewMock seeds from the clock when seed is 0.
func NewMock(r *Roster, seed int64) *Mock {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	m := &Mock{
		ids:      r.IDs(),
		profiles: make(map[string]MockProfile, len(r.Sensors)),
		rnd:      rand.New(rand.NewSource(seed)),
	}
	for _, id := range m.ids {
		m.profiles[id] = r.mockProfile(id)
	}
	return m
}

func (m *Mock) IDs() []string {
	return slices.Clone(m.ids)
}

func (m *Mock) Read(ctx context.Context, id string) (float64, error) {
	p, ok := m.profiles[id]
	if !ok {
		return 0, fmt.Errorf("unknown sensor %q", id)
	}
	m.mu.Lock()
	f := m.rnd.Float64()
	m.mu.Unlock()

	v := p.BaseTemperature + (f*2-1)*p.Variation
	return math.Round(v*100) / 100, nil
}
