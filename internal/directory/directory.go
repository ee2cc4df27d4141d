// Package directory abstracts the identity directory collaborator. The core
// never speaks a directory protocol itself; validators only consume the
// resolved attributes.
package directory

import (
	"context"
	"sync"

	dErrors "certgate/pkg/domain-errors"
)

// ErrNotFound is returned when the identity has no directory entry.
var ErrNotFound = dErrors.New(dErrors.CodeNotFound, "identity not found in directory")

// Attributes are the directory's answer for one identity.
type Attributes struct {
	Groups []string
	Attrs  map[string]string
}

// Directory looks identities up. Implementations own their retry policy and
// must respect context deadlines.
type Directory interface {
	Lookup(ctx context.Context, subject string) (Attributes, error)
}

// Static is a fixed in-memory directory, loaded from configuration. It also
// serves as the test double for directory-backed validators.
type Static struct {
	mu      sync.RWMutex
	entries map[string]Attributes
}

func NewStatic(entries map[string]Attributes) *Static {
	if entries == nil {
		entries = make(map[string]Attributes)
	}
	return &Static{entries: entries}
}

func (s *Static) Lookup(_ context.Context, subject string) (Attributes, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	attrs, ok := s.entries[subject]
	if !ok {
		return Attributes{}, ErrNotFound
	}
	return attrs, nil
}

// Put installs or replaces an entry. Intended for tests and config reload.
func (s *Static) Put(subject string, attrs Attributes) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[subject] = attrs
}
