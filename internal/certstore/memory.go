package certstore

import (
	"context"
	"crypto/rand"
	"fmt"
	"math/big"
	"sync"
	"time"
)

// Memory is an in-process store for tests and single-node deployments.
type Memory struct {
	mu        sync.RWMutex
	bySerial  map[string]Record
	byFprint  map[string]string // fingerprint -> serial
	reserved  map[string]bool
}

func NewMemory() *Memory {
	return &Memory{
		bySerial: make(map[string]Record),
		byFprint: make(map[string]string),
		reserved: make(map[string]bool),
	}
}

// ReserveSerial draws a random 160-bit serial and re-draws on the (rare)
// collision with a reserved or persisted one.
func (m *Memory) ReserveSerial(ctx context.Context) (*big.Int, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		serial, err := rand.Int(rand.Reader, serialCeiling)
		if err != nil {
			return nil, fmt.Errorf("draw serial: %w", err)
		}
		key := serial.String()

		m.mu.Lock()
		if !m.reserved[key] {
			if _, taken := m.bySerial[key]; !taken {
				m.reserved[key] = true
				m.mu.Unlock()
				return serial, nil
			}
		}
		m.mu.Unlock()
	}
}

func (m *Memory) Persist(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.bySerial[rec.Serial]; exists {
		return ErrDuplicateSerial
	}
	m.bySerial[rec.Serial] = rec
	m.byFprint[rec.Fingerprint] = rec.Serial
	delete(m.reserved, rec.Serial)
	return nil
}

func (m *Memory) BySerial(_ context.Context, serial string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.bySerial[serial]
	if !ok {
		return Record{}, ErrNotFound
	}
	return rec, nil
}

func (m *Memory) ByFingerprint(_ context.Context, fingerprint string) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	serial, ok := m.byFprint[fingerprint]
	if !ok {
		return Record{}, ErrNotFound
	}
	return m.bySerial[serial], nil
}

func (m *Memory) Revoke(_ context.Context, serial string, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.bySerial[serial]
	if !ok {
		return ErrNotFound
	}
	if rec.RevokedAt == nil {
		rec.RevokedAt = &at
		m.bySerial[serial] = rec
	}
	return nil
}
