/*
store.go - Persistence and publishing ports

PURPOSE:
  Defines the interface between the ledger and its backends. The ledger
  keeps its working state in memory; a Store makes each committed item
  state durable and keeps the item's journal.

ATOMIC COMMITS:
  Commit() writes the new item state and appends the journal event in one
  unit. Either both land or neither does. The Processor only swaps the new
  state into memory after Commit() returns nil, so a failed commit leaves
  the ledger exactly as it was.

IMPLEMENTATIONS:
  - ledger/store/memory.go: In-memory (default, tests)
  - store/sqlite/sqlite.go: SQLite
  - store/redis/redis.go:   Redis (MULTI/EXEC)

PUBLISHING:
  A Publisher receives journal events after commit. Publishing is best
  effort: failures are logged, never rolled back.
  - events/kafka/publisher.go: Kafka
*/
package ledger

import "context"

// =============================================================================
// STORE - Durable item state + journal
// =============================================================================

type Store interface {
	// Commit persists the item's new state and appends ev to its journal
	// atomically.
	Commit(ctx context.Context, snap Snapshot, ev Event) error

	// Load returns every persisted item.
	Load(ctx context.Context) ([]Snapshot, error)

	// Journal returns the item's events in commit order.
	Journal(ctx context.Context, item ItemName) ([]Event, error)
}

// =============================================================================
// PUBLISHER - Downstream notification of committed events
// =============================================================================

type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// NopPublisher discards events.
type NopPublisher struct{}

func (NopPublisher) Publish(context.Context, Event) error { return nil }
