package ledger

import "context"

// QueryService serves read-only projections of the catalog. Reads share
// the item lock with mutations, so every snapshot is a committed state.
type QueryService struct {
	Catalog *Catalog
	Store   Store
}

func NewQueryService(catalog *Catalog, store Store) *QueryService {
	return &QueryService{Catalog: catalog, Store: store}
}

// GetItemStock returns the item's current stock and live history.
func (q *QueryService) GetItemStock(_ context.Context, item ItemName) (Snapshot, error) {
	if err := validateItem(item); err != nil {
		return Snapshot{}, err
	}
	snap, ok := q.Catalog.Snapshot(item)
	if !ok {
		return Snapshot{ItemName: item, History: []PurchaseRecord{}}, itemNotFound(item)
	}
	return snap, nil
}

// GetAllStocks returns every item sorted by name. An empty catalog yields
// an empty, non-nil slice.
func (q *QueryService) GetAllStocks(_ context.Context) ([]Snapshot, error) {
	names := q.Catalog.Names()
	out := make([]Snapshot, 0, len(names))
	for _, name := range names {
		if snap, ok := q.Catalog.Snapshot(name); ok {
			out = append(out, snap)
		}
	}
	return out, nil
}

// Journal returns the committed events of an item, oldest first.
func (q *QueryService) Journal(ctx context.Context, item ItemName) ([]Event, error) {
	if err := validateItem(item); err != nil {
		return nil, err
	}
	if _, ok := q.Catalog.Snapshot(item); !ok {
		return nil, itemNotFound(item)
	}
	events, err := q.Store.Journal(ctx, item)
	if err != nil {
		return nil, &StoreError{Op: "journal", Err: err}
	}
	if events == nil {
		events = []Event{}
	}
	return events, nil
}
