/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures the game client sends and reads. Field names
  follow the client's contract exactly (snake_case, "id" for the acting
  user).

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Requests:  ItemTransactionRequest, SellSpecificRecordRequest
  Responses: ItemStockDTO, PurchaseLogDTO, EventDTO, ErrorResponse

VALIDATION:
  Request fields are pointers so a missing field can be told apart from a
  zero value. Checks live in validate.go, not in the DTOs.

SEE ALSO:
  - handlers.go: Uses these types
  - validate.go: Request validation
*/
package api

import (
	"time"

	"github.com/warp/stock-ledger/ledger"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// ItemTransactionRequest is the body of /purchase and /sell.
type ItemTransactionRequest struct {
	ID       *string `json:"id"`
	ItemName *string `json:"item_name"`
	Count    *int    `json:"count"`
}

// SellSpecificRecordRequest is the body of /sell_specific_record.
type SellSpecificRecordRequest struct {
	ItemName *string `json:"item_name"`
	LogID    *string `json:"log_id"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ItemStockDTO is the item snapshot returned by every item endpoint. Error
// carries item-scoped failures on an otherwise successful response.
type ItemStockDTO struct {
	ItemName        string           `json:"item_name"`
	CurrentStock    int              `json:"current_stock"`
	PurchaseHistory []PurchaseLogDTO `json:"purchase_history"`
	Error           string           `json:"error,omitempty"`
}

// PurchaseLogDTO is one purchase_history entry.
type PurchaseLogDTO struct {
	LogID          string `json:"log_id"`
	UserID         string `json:"user_id"`
	PurchasedCount int    `json:"purchased_count"`
	Timestamp      string `json:"timestamp"`
}

// ConsumptionDTO is one record drawn by a generic sell.
type ConsumptionDTO struct {
	LogID   string `json:"log_id"`
	Count   int    `json:"count"`
	Removed bool   `json:"removed"`
}

// EventDTO is one journal entry.
type EventDTO struct {
	EventID    string           `json:"event_id"`
	Kind       string           `json:"kind"`
	ItemName   string           `json:"item_name"`
	UserID     string           `json:"user_id,omitempty"`
	Count      int              `json:"count"`
	LogID      string           `json:"log_id,omitempty"`
	Consumed   []ConsumptionDTO `json:"consumed,omitempty"`
	StockAfter int              `json:"stock_after"`
	OccurredAt string           `json:"occurred_at"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Detail string `json:"detail"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func toItemStockDTO(s ledger.Snapshot) ItemStockDTO {
	dto := ItemStockDTO{
		ItemName:        string(s.ItemName),
		CurrentStock:    s.CurrentStock,
		PurchaseHistory: make([]PurchaseLogDTO, 0, len(s.History)),
		Error:           s.Err,
	}
	for _, r := range s.History {
		dto.PurchaseHistory = append(dto.PurchaseHistory, PurchaseLogDTO{
			LogID:          string(r.LogID),
			UserID:         string(r.UserID),
			PurchasedCount: r.PurchasedCount,
			Timestamp:      formatTime(r.Timestamp),
		})
	}
	return dto
}

func toEventDTO(ev ledger.Event) EventDTO {
	dto := EventDTO{
		EventID:    ev.ID,
		Kind:       string(ev.Kind),
		ItemName:   string(ev.ItemName),
		UserID:     string(ev.UserID),
		Count:      ev.Count,
		LogID:      string(ev.LogID),
		StockAfter: ev.StockAfter,
		OccurredAt: formatTime(ev.OccurredAt),
	}
	for _, c := range ev.Consumed {
		dto.Consumed = append(dto.Consumed, ConsumptionDTO{
			LogID:   string(c.LogID),
			Count:   c.Count,
			Removed: c.Removed,
		})
	}
	return dto
}
