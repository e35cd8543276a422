/*
handlers.go - HTTP API handlers for the stock ledger

ENDPOINTS:
  POST /purchase              {id, item_name, count}  -> item snapshot
  POST /sell                  {id, item_name, count}  -> item snapshot
  POST /sell_specific_record  {item_name, log_id}     -> item snapshot
  GET  /stock/{item_name}                             -> item snapshot
  GET  /stock/{item_name}/events                      -> journal
  GET  /stocks                                        -> [item snapshot]
  GET  /healthz

REQUEST FLOW:
  1. Decode JSON (400 on malformed bodies)
  2. Validate presence and ranges (422)
  3. Call the processor or query service
  4. Serialize the snapshot, or map the error (errors.go)

ITEM-SCOPED ERRORS:
  GET /stock/{item_name} for an unknown item and /sell_specific_record for
  a record that is no longer live both answer 200 with "error" set. The
  client treats these as soft failures.

SEE ALSO:
  - dto.go: Request/response types
  - errors.go: Error mapping
  - server.go: Router and middleware
*/
package api

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/ledger"
)

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Processor *ledger.Processor
	Queries   *ledger.QueryService
	Logger    *zap.Logger
}

// NewHandler creates a handler; a nil logger is replaced by a no-op one.
func NewHandler(proc *ledger.Processor, queries *ledger.QueryService, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{Processor: proc, Queries: queries, Logger: logger}
}

// =============================================================================
// MUTATIONS
// =============================================================================

// Purchase adds a batch to an item, creating the item on first purchase.
// POST /purchase
func (h *Handler) Purchase(w http.ResponseWriter, r *http.Request) {
	var req ItemTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	snap, err := h.Processor.Purchase(r.Context(),
		ledger.ItemName(*req.ItemName), ledger.UserID(*req.ID), *req.Count)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemStockDTO(snap))
}

// Sell lowers an item's stock, consuming its oldest purchases first.
// POST /sell
func (h *Handler) Sell(w http.ResponseWriter, r *http.Request) {
	var req ItemTransactionRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	snap, err := h.Processor.Sell(r.Context(),
		ledger.ItemName(*req.ItemName), ledger.UserID(*req.ID), *req.Count)
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemStockDTO(snap))
}

// SellSpecificRecord removes one purchase record by log id.
// POST /sell_specific_record
func (h *Handler) SellSpecificRecord(w http.ResponseWriter, r *http.Request) {
	var req SellSpecificRecordRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	if err := req.Validate(); err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	snap, err := h.Processor.SellSpecificRecord(r.Context(),
		ledger.ItemName(*req.ItemName), ledger.LogID(*req.LogID))
	if errors.Is(err, ledger.ErrRecordNotFound) {
		dto := toItemStockDTO(snap)
		dto.Error = err.Error()
		writeJSON(w, http.StatusOK, dto)
		return
	}
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemStockDTO(snap))
}

// =============================================================================
// QUERIES
// =============================================================================

// GetItemStock returns one item. Unknown items are a soft error.
// GET /stock/{item_name}
func (h *Handler) GetItemStock(w http.ResponseWriter, r *http.Request) {
	name := itemParam(r)

	snap, err := h.Queries.GetItemStock(r.Context(), name)
	if errors.Is(err, ledger.ErrItemNotFound) {
		dto := toItemStockDTO(snap)
		dto.Error = err.Error()
		writeJSON(w, http.StatusOK, dto)
		return
	}
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toItemStockDTO(snap))
}

// GetAllStocks returns every item.
// GET /stocks
func (h *Handler) GetAllStocks(w http.ResponseWriter, r *http.Request) {
	snaps, err := h.Queries.GetAllStocks(r.Context())
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]ItemStockDTO, 0, len(snaps))
	for _, s := range snaps {
		dtos = append(dtos, toItemStockDTO(s))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetItemEvents returns an item's journal, oldest first.
// GET /stock/{item_name}/events
func (h *Handler) GetItemEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Queries.Journal(r.Context(), itemParam(r))
	if err != nil {
		h.writeLedgerError(w, r, err)
		return
	}

	dtos := make([]EventDTO, 0, len(events))
	for _, ev := range events {
		dtos = append(dtos, toEventDTO(ev))
	}
	writeJSON(w, http.StatusOK, dtos)
}

// HealthCheck reports liveness.
// GET /healthz
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// itemParam returns the decoded {item_name} segment. chi matches against
// r.URL.RawPath when it is set (escapes such as %2F or %25), and against the
// already decoded r.URL.Path otherwise.
func itemParam(r *http.Request) ledger.ItemName {
	param := chi.URLParam(r, "item_name")
	if r.URL.RawPath == "" {
		return ledger.ItemName(param)
	}
	if name, err := url.PathUnescape(param); err == nil {
		return ledger.ItemName(name)
	}
	return ledger.ItemName(param)
}
