package api

import (
	"sync"

	"tripreel/pkg/mapview"
)

// Scene holds the map of the active session. The session factory swaps it
// whenever a new playback starts.
type Scene struct {
	mu sync.RWMutex
	m  *mapview.Map
}

// Set replaces the current map.
func (s *Scene) Set(m *mapview.Map) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.m = m
}

// Current returns the current map, or nil before the first playback.
func (s *Scene) Current() *mapview.Map {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.m
}
