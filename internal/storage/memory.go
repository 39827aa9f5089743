package storage

import (
	"context"
	"fmt"
	"sync"
)

// Memory keeps payloads in process memory. Used by tests and by the
// memory backend, where nothing survives a restart.
type Memory struct {
	mu    sync.RWMutex
	blobs map[string][]byte

	failPuts error
	puts     int
}

var _ Storage = (*Memory)(nil)

// NewMemory creates an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{blobs: make(map[string][]byte, 4)}
}

// Get returns a copy of the payload stored under name.
func (m *Memory) Get(_ context.Context, name string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	data, ok := m.blobs[name]
	if !ok {
		return nil, fmt.Errorf("%s: %w", name, ErrNotFound)
	}

	return append([]byte(nil), data...), nil
}

// Put stores a copy of data under name.
func (m *Memory) Put(_ context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.puts++

	if m.failPuts != nil {
		return m.failPuts
	}

	m.blobs[name] = append([]byte(nil), data...)

	return nil
}

// SetFailPuts makes subsequent Puts fail with err, or succeed when nil.
func (m *Memory) SetFailPuts(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.failPuts = err
}

// Puts returns the number of Put calls, including failed ones.
func (m *Memory) Puts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()

	return m.puts
}

// Close is a no-op for the memory store.
func (m *Memory) Close() error {
	return nil
}
