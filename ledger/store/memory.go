// Package store provides Store implementations.
package store

import (
	"context"
	"slices"
	"sync"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (default backend, tests)
// =============================================================================

type Memory struct {
	mu       sync.RWMutex
	items    map[ledger.ItemName]ledger.Snapshot
	journals map[ledger.ItemName][]ledger.Event
}

func NewMemory() *Memory {
	return &Memory{
		items:    make(map[ledger.ItemName]ledger.Snapshot),
		journals: make(map[ledger.ItemName][]ledger.Event),
	}
}

// Commit replaces the item state and appends the event under one lock.
func (m *Memory) Commit(_ context.Context, snap ledger.Snapshot, ev ledger.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.items[snap.ItemName] = copySnapshot(snap)
	ev.Consumed = slices.Clone(ev.Consumed)
	m.journals[snap.ItemName] = append(m.journals[snap.ItemName], ev)
	return nil
}

func (m *Memory) Load(_ context.Context) ([]ledger.Snapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Snapshot, 0, len(m.items))
	for _, snap := range m.items {
		result = append(result, copySnapshot(snap))
	}
	slices.SortFunc(result, func(a, b ledger.Snapshot) int {
		switch {
		case a.ItemName < b.ItemName:
			return -1
		case a.ItemName > b.ItemName:
			return 1
		}
		return 0
	})
	return result, nil
}

func (m *Memory) Journal(_ context.Context, item ledger.ItemName) ([]ledger.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make([]ledger.Event, len(m.journals[item]))
	copy(result, m.journals[item])
	return result, nil
}

// Put seeds an item state directly, bypassing the journal. Used to stage
// restore scenarios.
func (m *Memory) Put(snap ledger.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.items[snap.ItemName] = copySnapshot(snap)
}

func copySnapshot(s ledger.Snapshot) ledger.Snapshot {
	s.History = slices.Clone(s.History)
	return s
}
