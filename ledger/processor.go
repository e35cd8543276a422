/*
processor.go - Mutating operations on the stock ledger

PURPOSE:
  Processor applies Purchase, Sell and SellSpecificRecord to one item at a
  time. Every operation runs under the item's exclusive lock and is
  all-or-nothing.

COMMIT SEQUENCE:
  1. Validate inputs (no lock taken for invalid requests)
  2. Lock the item and clone its ledger
  3. Apply the mutation to the clone
  4. Store.Commit(new snapshot, journal event)
  5. Swap the clone in, then hand the event to the Publisher

  A failure at 3 or 4 discards the clone. Nothing is retried here; retry
  policy belongs to the caller.

OPERATIONS:
  Purchase:           append a record, raise stock (creates the item)
  Sell:               lower stock, consuming oldest records first
  SellSpecificRecord: remove one record by log id, ignoring FIFO order

SEE ALSO:
  - stock.go: The mutators used in step 3
  - query.go: Read-side operations
*/
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Processor executes mutations against a Catalog.
type Processor struct {
	Catalog   *Catalog
	Store     Store
	Publisher Publisher
	Logger    *zap.Logger

	// Clock and NewID are replaceable for tests. NewID issues log ids.
	Clock func() time.Time
	NewID func() string
}

// NewProcessor wires a processor with a no-op publisher and logger.
func NewProcessor(catalog *Catalog, store Store) *Processor {
	return &Processor{
		Catalog:   catalog,
		Store:     store,
		Publisher: NopPublisher{},
		Logger:    zap.NewNop(),
		Clock:     func() time.Time { return time.Now().UTC() },
		NewID:     uuid.NewString,
	}
}

// =============================================================================
// OPERATIONS
// =============================================================================

// Purchase records a new batch of count units bought by user.
func (p *Processor) Purchase(ctx context.Context, item ItemName, user UserID, count int) (Snapshot, error) {
	if err := ValidateTrade(item, user, count); err != nil {
		return Snapshot{}, err
	}
	return p.mutate(ctx, item, true, func(l *StockLedger, now time.Time) (Event, error) {
		id, err := l.nextID(p.NewID)
		if err != nil {
			return Event{}, err
		}
		l.add(PurchaseRecord{
			LogID:          id,
			UserID:         user,
			PurchasedCount: count,
			Timestamp:      l.stamp(now),
		})
		return Event{Kind: EventPurchase, UserID: user, Count: count, LogID: id}, nil
	})
}

// Sell removes count units from the item, oldest records first.
func (p *Processor) Sell(ctx context.Context, item ItemName, user UserID, count int) (Snapshot, error) {
	if err := ValidateTrade(item, user, count); err != nil {
		return Snapshot{}, err
	}
	return p.mutate(ctx, item, false, func(l *StockLedger, _ time.Time) (Event, error) {
		drawn, err := l.consume(count)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventSell, UserID: user, Count: count, Consumed: drawn}, nil
	})
}

// SellSpecificRecord removes one purchase record and its full quantity.
//
// When the item exists but the record does not, the current snapshot is
// returned together with a *RecordNotFoundError.
func (p *Processor) SellSpecificRecord(ctx context.Context, item ItemName, id LogID) (Snapshot, error) {
	if err := ValidateRecordSell(item, id); err != nil {
		return Snapshot{}, err
	}
	return p.mutate(ctx, item, false, func(l *StockLedger, _ time.Time) (Event, error) {
		r, err := l.remove(id)
		if err != nil {
			return Event{}, err
		}
		return Event{Kind: EventSellSpecificRecord, Count: r.PurchasedCount, LogID: id}, nil
	})
}

// Restore loads every persisted item into the catalog. Items that fail
// verification are kept as broken entries and counted in broken.
func (p *Processor) Restore(ctx context.Context) (restored, broken int, err error) {
	snaps, err := p.Store.Load(ctx)
	if err != nil {
		return 0, 0, &StoreError{Op: "load", Err: err}
	}
	for _, snap := range snaps {
		if err := p.Catalog.Restore(snap); err != nil {
			broken++
			p.Logger.Error("item failed verification on restore",
				zap.String("item_name", string(snap.ItemName)),
				zap.Error(err))
			continue
		}
		restored++
	}
	return restored, broken, nil
}

// =============================================================================
// COMMIT PATH
// =============================================================================

type mutation func(l *StockLedger, now time.Time) (Event, error)

func (p *Processor) mutate(ctx context.Context, item ItemName, create bool, fn mutation) (Snapshot, error) {
	e, ok := p.Catalog.lockEntry(item, create)
	if !ok {
		return Snapshot{}, itemNotFound(item)
	}
	defer e.mu.Unlock()
	defer p.Catalog.dropUncommitted(item, e)

	if !create && !e.exists {
		return Snapshot{}, itemNotFound(item)
	}
	if e.broken != "" {
		snap, _ := e.snapshotLocked()
		return snap, fmt.Errorf("%w: %q: %s", ErrItemUnavailable, item, e.broken)
	}

	now := p.Clock()
	work := e.ledger.clone()
	ev, err := fn(work, now)
	if err != nil {
		snap, _ := e.snapshotLocked()
		return snap, err
	}

	ev.ID = uuid.NewString()
	ev.ItemName = item
	ev.StockAfter = work.CurrentStock()
	ev.OccurredAt = now

	snap := work.Snapshot()
	if err := p.Store.Commit(ctx, snap, ev); err != nil {
		p.Logger.Error("commit failed",
			zap.String("item_name", string(item)),
			zap.String("kind", string(ev.Kind)),
			zap.Error(err))
		prev, _ := e.snapshotLocked()
		return prev, &StoreError{Op: "commit", Err: err}
	}

	e.ledger = work
	e.exists = true

	p.Logger.Debug("committed",
		zap.String("item_name", string(item)),
		zap.String("kind", string(ev.Kind)),
		zap.String("log_id", string(ev.LogID)),
		zap.Int("count", ev.Count),
		zap.Int("stock_after", ev.StockAfter))

	// Published under the item lock so per-item event order is preserved.
	if err := p.Publisher.Publish(ctx, ev); err != nil {
		p.Logger.Error("publish failed",
			zap.String("item_name", string(item)),
			zap.String("event_id", ev.ID),
			zap.Error(err))
	}
	return snap, nil
}
