/*
Package ledger provides the stock ledger engine.

PURPOSE:
  Tracks per-item stock counts together with the purchase records that
  back them. Stock is never a free-floating number: it is always the sum of
  the live purchase records for the item, and every mutation keeps the two
  in lockstep.

KEY CONCEPTS IN THIS FILE (types.go):
  - PurchaseRecord: One purchased batch, identified by a LogID
  - Snapshot: Point-in-time copy of an item's stock and history
  - Event: Journal entry describing one committed mutation
  - ItemName/LogID/UserID: Type-safe identifiers

INVARIANTS (hold between operations):
  1. CurrentStock >= 0
  2. CurrentStock == sum(PurchasedCount) over History
  3. A LogID is never issued twice for the same item
  4. History keeps creation order; entries are appended, reduced or removed

USAGE:
  catalog := ledger.NewCatalog()
  proc := ledger.NewProcessor(catalog, store.NewMemory())
  snap, err := proc.Purchase(ctx, "carrot", "farmer-1", 3)

SEE ALSO:
  - stock.go: Per-item aggregate (StockLedger)
  - processor.go: Purchase / Sell / SellSpecificRecord
  - query.go: Read-side projections
*/
package ledger

import (
	"time"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type (
	ItemName string
	LogID    string
	UserID   string
)

// =============================================================================
// PURCHASE RECORD - One batch of stock
// =============================================================================

// PurchaseRecord is a single purchased batch. Only PurchasedCount changes
// after creation, and only downwards (partial FIFO consumption).
type PurchaseRecord struct {
	LogID          LogID
	UserID         UserID
	PurchasedCount int
	Timestamp      time.Time
}

// =============================================================================
// SNAPSHOT - Consistent read of one item
// =============================================================================

// Snapshot is a deep copy of an item's state. Callers may keep and mutate
// it freely; it shares nothing with the ledger.
type Snapshot struct {
	ItemName     ItemName
	CurrentStock int
	History      []PurchaseRecord

	// Err is set for items that could not be restored from the store.
	// Such items are listed but refuse mutations.
	Err string
}

// Sum returns the total quantity held by the snapshot's history.
func (s Snapshot) Sum() int {
	total := 0
	for _, r := range s.History {
		total += r.PurchasedCount
	}
	return total
}

// Record returns the history entry with the given log id.
func (s Snapshot) Record(id LogID) (PurchaseRecord, bool) {
	for _, r := range s.History {
		if r.LogID == id {
			return r, true
		}
	}
	return PurchaseRecord{}, false
}

// =============================================================================
// JOURNAL EVENTS - What happened, in commit order
// =============================================================================

type EventKind string

const (
	EventPurchase           EventKind = "purchase"
	EventSell               EventKind = "sell"
	EventSellSpecificRecord EventKind = "sell_specific_record"
)

// Consumption describes how a generic sell drew from one record.
type Consumption struct {
	LogID   LogID
	Count   int
	Removed bool // record reached zero and left the history
}

// Event is appended to the item's journal in the same commit as the new
// item state.
type Event struct {
	ID         string
	Kind       EventKind
	ItemName   ItemName
	UserID     UserID
	Count      int
	LogID      LogID // created (purchase) or reversed (specific sell) record
	Consumed   []Consumption
	StockAfter int
	OccurredAt time.Time
}
