/*
stock.go - Per-item stock aggregate

PURPOSE:
  StockLedger holds the canonical state of one item: the current stock and
  the purchase records backing it. It is the only place records are
  mutated, and every mutator keeps CurrentStock equal to the sum of the
  live records.

HISTORY LAYOUT:
  Records live in a map keyed by LogID; a separate slice keeps the
  insertion order. Removing a record deletes one key and one slice element,
  so survivors keep their relative order.

CONSUMPTION ORDER:
  Generic sells draw from the oldest record first (FIFO). A partially
  consumed record keeps its LogID and Timestamp; a record drawn down to
  zero leaves the history and its LogID is retired.

CONCURRENCY:
  StockLedger is not safe for concurrent use. The Catalog guards each
  ledger with its own lock; see catalog.go.

SEE ALSO:
  - catalog.go: Owns ledgers and their locks
  - processor.go: Drives the mutators under the item lock
*/
package ledger

import (
	"fmt"
	"slices"
	"time"
)

// maxIDAttempts bounds the search for an unused log id.
const maxIDAttempts = 8

// StockLedger is the stock and purchase history of one item.
type StockLedger struct {
	name    ItemName
	stock   int
	order   []LogID
	records map[LogID]PurchaseRecord

	// issued holds every log id handed out for this item, live or retired.
	// Working copies share it with the ledger they were cloned from.
	issued map[LogID]struct{}
}

// NewStockLedger returns an empty ledger for the item.
func NewStockLedger(name ItemName) *StockLedger {
	return &StockLedger{
		name:    name,
		records: make(map[LogID]PurchaseRecord),
		issued:  make(map[LogID]struct{}),
	}
}

// RestoreStockLedger rebuilds a ledger from a persisted snapshot and
// verifies the invariants before handing it out.
func RestoreStockLedger(snap Snapshot) (*StockLedger, error) {
	l := NewStockLedger(snap.ItemName)
	for _, r := range snap.History {
		if _, dup := l.records[r.LogID]; dup {
			return nil, fmt.Errorf("duplicate log id %q", r.LogID)
		}
		l.order = append(l.order, r.LogID)
		l.records[r.LogID] = r
		l.issued[r.LogID] = struct{}{}
	}
	l.stock = snap.CurrentStock
	if err := l.Verify(); err != nil {
		return nil, err
	}
	return l, nil
}

func (l *StockLedger) Name() ItemName    { return l.name }
func (l *StockLedger) CurrentStock() int { return l.stock }
func (l *StockLedger) Len() int          { return len(l.order) }

// Snapshot returns a deep copy of the ledger.
func (l *StockLedger) Snapshot() Snapshot {
	history := make([]PurchaseRecord, 0, len(l.order))
	for _, id := range l.order {
		history = append(history, l.records[id])
	}
	return Snapshot{
		ItemName:     l.name,
		CurrentStock: l.stock,
		History:      history,
	}
}

// Verify checks stock against the live records.
func (l *StockLedger) Verify() error {
	if l.stock < 0 {
		return fmt.Errorf("item %q: negative stock %d", l.name, l.stock)
	}
	if len(l.order) != len(l.records) {
		return fmt.Errorf("item %q: history index out of sync", l.name)
	}
	sum := 0
	for _, id := range l.order {
		r, ok := l.records[id]
		if !ok {
			return fmt.Errorf("item %q: dangling log id %q", l.name, id)
		}
		if r.PurchasedCount <= 0 {
			return fmt.Errorf("item %q: record %q has count %d", l.name, id, r.PurchasedCount)
		}
		sum += r.PurchasedCount
	}
	if sum != l.stock {
		return fmt.Errorf("item %q: stock %d does not match history sum %d", l.name, l.stock, sum)
	}
	return nil
}

// clone returns a working copy for an in-flight mutation.
func (l *StockLedger) clone() *StockLedger {
	c := &StockLedger{
		name:    l.name,
		stock:   l.stock,
		order:   slices.Clone(l.order),
		records: make(map[LogID]PurchaseRecord, len(l.records)),
		issued:  l.issued,
	}
	for id, r := range l.records {
		c.records[id] = r
	}
	return c
}

// =============================================================================
// MUTATORS
// =============================================================================

// nextID draws ids from gen until one has never been issued for this item.
func (l *StockLedger) nextID(gen func() string) (LogID, error) {
	for i := 0; i < maxIDAttempts; i++ {
		id := LogID(gen())
		if _, used := l.issued[id]; used || id == "" {
			continue
		}
		l.issued[id] = struct{}{}
		return id, nil
	}
	return "", fmt.Errorf("%w: no unused log id after %d attempts", ErrInternal, maxIDAttempts)
}

// stamp keeps timestamps non-decreasing in creation order.
func (l *StockLedger) stamp(now time.Time) time.Time {
	if n := len(l.order); n > 0 {
		if last := l.records[l.order[n-1]].Timestamp; now.Before(last) {
			return last
		}
	}
	return now
}

// add appends a new record and raises stock by its count.
func (l *StockLedger) add(r PurchaseRecord) {
	l.order = append(l.order, r.LogID)
	l.records[r.LogID] = r
	l.stock += r.PurchasedCount
}

// consume lowers stock by count, drawing from the oldest records first.
// It is all-or-nothing: on error the ledger is unchanged.
func (l *StockLedger) consume(count int) ([]Consumption, error) {
	if count > l.stock {
		return nil, &InsufficientStockError{ItemName: l.name, Available: l.stock, Requested: count}
	}

	var (
		drawn     []Consumption
		remaining = count
		cut       = 0
	)
	for _, id := range l.order {
		if remaining == 0 {
			break
		}
		r := l.records[id]
		take := min(r.PurchasedCount, remaining)
		remaining -= take
		r.PurchasedCount -= take
		if r.PurchasedCount == 0 {
			delete(l.records, id)
			cut++
			drawn = append(drawn, Consumption{LogID: id, Count: take, Removed: true})
			continue
		}
		l.records[id] = r
		drawn = append(drawn, Consumption{LogID: id, Count: take})
	}
	// Fully consumed records are always a prefix of the history.
	l.order = l.order[cut:]
	l.stock -= count
	return drawn, nil
}

// remove drops one record regardless of its position in the history.
func (l *StockLedger) remove(id LogID) (PurchaseRecord, error) {
	r, ok := l.records[id]
	if !ok {
		return PurchaseRecord{}, &RecordNotFoundError{ItemName: l.name, LogID: id}
	}
	delete(l.records, id)
	l.order = slices.DeleteFunc(l.order, func(x LogID) bool { return x == id })
	l.stock -= r.PurchasedCount
	return r, nil
}
