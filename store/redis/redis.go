// Package redis provides a Redis-backed implementation of ledger.Store.
//
// Item states live in one hash (field = item name, value = JSON state);
// each item's journal is a list. A commit writes both inside MULTI/EXEC so
// they land together.
package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/warp/stock-ledger/ledger"
)

const (
	defaultPrefix = "ledger:"
	itemsHash     = "items"
	journalPrefix = "journal:"
)

type Store struct {
	client *goredis.Client
	prefix string
}

func New(client *goredis.Client) *Store {
	return &Store{client: client, prefix: defaultPrefix}
}

// WithPrefix namespaces every key, letting tests share one server.
func (s *Store) WithPrefix(prefix string) *Store {
	return &Store{client: s.client, prefix: prefix}
}

func (s *Store) itemsKey() string { return s.prefix + itemsHash }

func (s *Store) journalKey(item ledger.ItemName) string {
	return s.prefix + journalPrefix + string(item)
}

type itemState struct {
	ItemName     string        `json:"item_name"`
	CurrentStock int           `json:"current_stock"`
	History      []recordState `json:"purchase_history"`
}

type recordState struct {
	LogID          string    `json:"log_id"`
	UserID         string    `json:"user_id"`
	PurchasedCount int       `json:"purchased_count"`
	Timestamp      time.Time `json:"timestamp"`
}

type eventState struct {
	ID         string               `json:"id"`
	Kind       string               `json:"kind"`
	ItemName   string               `json:"item_name"`
	UserID     string               `json:"user_id,omitempty"`
	Count      int                  `json:"count"`
	LogID      string               `json:"log_id,omitempty"`
	Consumed   []ledger.Consumption `json:"consumed,omitempty"`
	StockAfter int                  `json:"stock_after"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func (s *Store) Commit(ctx context.Context, snap ledger.Snapshot, ev ledger.Event) error {
	item := itemState{
		ItemName:     string(snap.ItemName),
		CurrentStock: snap.CurrentStock,
		History:      make([]recordState, 0, len(snap.History)),
	}
	for _, r := range snap.History {
		item.History = append(item.History, recordState{
			LogID:          string(r.LogID),
			UserID:         string(r.UserID),
			PurchasedCount: r.PurchasedCount,
			Timestamp:      r.Timestamp,
		})
	}
	itemData, err := json.Marshal(item)
	if err != nil {
		return fmt.Errorf("encode item: %w", err)
	}
	eventData, err := json.Marshal(eventState{
		ID:         ev.ID,
		Kind:       string(ev.Kind),
		ItemName:   string(ev.ItemName),
		UserID:     string(ev.UserID),
		Count:      ev.Count,
		LogID:      string(ev.LogID),
		Consumed:   ev.Consumed,
		StockAfter: ev.StockAfter,
		OccurredAt: ev.OccurredAt,
	})
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, s.itemsKey(), string(snap.ItemName), itemData)
		pipe.RPush(ctx, s.journalKey(snap.ItemName), eventData)
		return nil
	})
	return err
}

func (s *Store) Load(ctx context.Context) ([]ledger.Snapshot, error) {
	raw, err := s.client.HGetAll(ctx, s.itemsKey()).Result()
	if err != nil {
		return nil, err
	}

	snaps := make([]ledger.Snapshot, 0, len(raw))
	for name, data := range raw {
		var item itemState
		if err := json.Unmarshal([]byte(data), &item); err != nil {
			return nil, fmt.Errorf("decode item %q: %w", name, err)
		}
		snap := ledger.Snapshot{
			ItemName:     ledger.ItemName(name),
			CurrentStock: item.CurrentStock,
			History:      make([]ledger.PurchaseRecord, 0, len(item.History)),
		}
		for _, r := range item.History {
			snap.History = append(snap.History, ledger.PurchaseRecord{
				LogID:          ledger.LogID(r.LogID),
				UserID:         ledger.UserID(r.UserID),
				PurchasedCount: r.PurchasedCount,
				Timestamp:      r.Timestamp,
			})
		}
		snaps = append(snaps, snap)
	}
	sort.Slice(snaps, func(i, j int) bool { return snaps[i].ItemName < snaps[j].ItemName })
	return snaps, nil
}

func (s *Store) Journal(ctx context.Context, item ledger.ItemName) ([]ledger.Event, error) {
	raw, err := s.client.LRange(ctx, s.journalKey(item), 0, -1).Result()
	if err != nil {
		return nil, err
	}

	events := make([]ledger.Event, 0, len(raw))
	for _, data := range raw {
		var ev eventState
		if err := json.Unmarshal([]byte(data), &ev); err != nil {
			return nil, fmt.Errorf("decode event: %w", err)
		}
		events = append(events, ledger.Event{
			ID:         ev.ID,
			Kind:       ledger.EventKind(ev.Kind),
			ItemName:   ledger.ItemName(ev.ItemName),
			UserID:     ledger.UserID(ev.UserID),
			Count:      ev.Count,
			LogID:      ledger.LogID(ev.LogID),
			Consumed:   ev.Consumed,
			StockAfter: ev.StockAfter,
			OccurredAt: ev.OccurredAt,
		})
	}
	return events, nil
}

// Clear deletes every key under the store's prefix.
func (s *Store) Clear(ctx context.Context) error {
	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, s.prefix+"*", 100).Result()
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			if err := s.client.Del(ctx, keys...).Err(); err != nil {
				return err
			}
		}
		if next == 0 {
			return nil
		}
		cursor = next
	}
}
