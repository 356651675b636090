// Package gridstate keeps the latest substation telemetry per district.
package gridstate

import (
	"context"
	"sync"

	"github.com/couchcryptid/grid-outage-forecast/internal/domain"
)

// Store holds the newest GridReading seen for each district.
// It implements pipeline.BatchLoader.
type Store struct {
	mu       sync.RWMutex
	readings map[string]domain.GridReading
}

// NewStore creates an empty Store.
func NewStore() *Store {
	return &Store{readings: make(map[string]domain.GridReading)}
}

// LoadBatch applies readings. An older reading never replaces a newer one.
func (s *Store) LoadBatch(_ context.Context, readings []domain.GridReading) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range readings {
		if cur, ok := s.readings[r.District]; ok && cur.ObservedAt.After(r.ObservedAt) {
			continue
		}
		s.readings[r.District] = r
	}
	return nil
}

// Get returns the latest reading for district.
func (s *Store) Get(district string) (domain.GridReading, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.readings[district]
	return r, ok
}

// Grid returns the live grid block for d, or its catalog baseline when no
// telemetry has arrived.
func (s *Store) Grid(d domain.District) (domain.GridInput, bool) {
	if r, ok := s.Get(d.Name); ok {
		return r.Grid(), true
	}
	return d.BaselineGrid, false
}

// Len is the number of districts with telemetry.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.readings)
}
