// Package memory provides an in-memory append-only audit store, used in
// tests and single-process deployments.
package memory

import (
	"context"
	"sync"

	"certgate/internal/audit"
)

type Store struct {
	mu     sync.RWMutex
	events []audit.Event
}

func New() *Store {
	return &Store{}
}

func (s *Store) Record(_ context.Context, event audit.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *Store) ListByFingerprint(_ context.Context, fingerprint string) ([]audit.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []audit.Event
	for _, e := range s.events {
		if e.Fingerprint == fingerprint {
			matched = append(matched, e)
		}
	}
	return matched, nil
}

// All returns every recorded event in append order.
func (s *Store) All() []audit.Event {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]audit.Event, len(s.events))
	copy(out, s.events)
	return out
}
