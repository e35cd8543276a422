/*
catalog.go - Item name to StockLedger mapping

PURPOSE:
  The Catalog locates the ledger for an item and owns the lock that
  serializes work on it. Locking is per item: mutations on different items
  never wait for each other.

LOCKING:
  Catalog.mu guards the map only. Each entry carries its own RWMutex;
  mutations take it exclusively, reads share it, so a read never observes
  a half-applied mutation.

  Insertion is double-checked under Catalog.mu, so two concurrent first
  purchases of the same new item end up on the same entry.

EXISTENCE:
  An entry created by getOrCreate is not visible as an item until its
  first purchase commits. A failed first purchase leaves the item unknown
  and its entry is dropped from the map; writers that were already
  waiting on the dropped entry see removed and start over.

SEE ALSO:
  - stock.go: The per-item aggregate
  - processor.go: Mutations under the entry lock
*/
package ledger

import (
	"slices"
	"sync"
)

type entry struct {
	mu     sync.RWMutex
	ledger *StockLedger
	exists  bool
	removed bool   // dropped from the catalog; holders must look up again
	broken  string // restore failure; entry is listed but read-only
}

// Catalog maps item names to their ledgers.
type Catalog struct {
	mu    sync.RWMutex
	items map[ItemName]*entry
}

func NewCatalog() *Catalog {
	return &Catalog{items: make(map[ItemName]*entry)}
}

// getOrCreate returns the entry for name, creating an empty one if needed.
func (c *Catalog) getOrCreate(name ItemName) *entry {
	c.mu.RLock()
	e, ok := c.items[name]
	c.mu.RUnlock()
	if ok {
		return e
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.items[name]; ok {
		return e
	}
	e = &entry{ledger: NewStockLedger(name)}
	c.items[name] = e
	return e
}

// lookup returns the entry for name without creating one.
func (c *Catalog) lookup(name ItemName) (*entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.items[name]
	return e, ok
}

// lockEntry returns the entry for name locked for writing, creating it
// when create is set. It never returns an entry that has been dropped.
func (c *Catalog) lockEntry(name ItemName, create bool) (*entry, bool) {
	for {
		var e *entry
		if create {
			e = c.getOrCreate(name)
		} else {
			var ok bool
			if e, ok = c.lookup(name); !ok {
				return nil, false
			}
		}
		e.mu.Lock()
		if !e.removed {
			return e, true
		}
		e.mu.Unlock()
	}
}

// dropUncommitted removes e from the map if no purchase ever committed on
// it. The caller holds e.mu.
func (c *Catalog) dropUncommitted(name ItemName, e *entry) {
	if e.exists || e.removed {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.items[name] == e {
		delete(c.items, name)
	}
	e.removed = true
}

// Names returns every item name in sorted order, including entries whose
// first purchase has not committed yet.
func (c *Catalog) Names() []ItemName {
	c.mu.RLock()
	names := make([]ItemName, 0, len(c.items))
	for name := range c.items {
		names = append(names, name)
	}
	c.mu.RUnlock()
	slices.Sort(names)
	return names
}

// Snapshot returns a consistent copy of the item, or false if it does not
// exist. Broken entries return their last known state with Err set.
func (c *Catalog) Snapshot(name ItemName) (Snapshot, bool) {
	e, ok := c.lookup(name)
	if !ok {
		return Snapshot{}, false
	}
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.snapshotLocked()
}

func (e *entry) snapshotLocked() (Snapshot, bool) {
	if !e.exists {
		return Snapshot{}, false
	}
	snap := e.ledger.Snapshot()
	snap.Err = e.broken
	return snap, true
}

// Restore installs a persisted item. Snapshots that break the invariants
// are kept as broken entries so they stay visible but cannot be mutated.
func (c *Catalog) Restore(snap Snapshot) error {
	e, _ := c.lockEntry(snap.ItemName, true)
	defer e.mu.Unlock()

	e.exists = true
	l, err := RestoreStockLedger(snap)
	if err != nil {
		e.ledger = NewStockLedger(snap.ItemName)
		e.broken = err.Error()
		return err
	}
	e.ledger = l
	e.broken = ""
	return nil
}
