/*
handlers_test.go - HTTP tests for the stock ledger API

Tests for:
- Purchase / sell / sell_specific_record happy paths
- Protocol errors (400, 404, 422, 409) with {"detail"} bodies
- Item-scoped errors (200 with "error") for unknown items and stale records
- Path escaping of item names
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/stock-ledger/ledger"
	"github.com/warp/stock-ledger/ledger/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type testServer struct {
	router http.Handler
	proc   *ledger.Processor
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	return newTestServerWith(t, store.NewMemory())
}

func newTestServerWith(t *testing.T, backend ledger.Store) *testServer {
	t.Helper()
	catalog := ledger.NewCatalog()
	proc := ledger.NewProcessor(catalog, backend)
	h := NewHandler(proc, ledger.NewQueryService(catalog, backend), nil)
	return &testServer{router: NewRouter(h, nil), proc: proc}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeItem(t *testing.T, rec *httptest.ResponseRecorder) ItemStockDTO {
	t.Helper()
	var dto ItemStockDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dto), rec.Body.String())
	return dto
}

func decodeDetail(t *testing.T, rec *httptest.ResponseRecorder) string {
	t.Helper()
	var body ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body), rec.Body.String())
	return body.Detail
}

func (s *testServer) purchase(t *testing.T, item string, count int) ItemStockDTO {
	t.Helper()
	body, _ := json.Marshal(map[string]any{"id": "farmer", "item_name": item, "count": count})
	rec := s.do(t, http.MethodPost, "/purchase", string(body))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	return decodeItem(t, rec)
}

// =============================================================================
// MUTATIONS
// =============================================================================

func TestPurchase_ReturnsSnapshot(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/purchase", `{"id":"farmer","item_name":"carrot","count":3}`)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	dto := decodeItem(t, rec)
	assert.Equal(t, "carrot", dto.ItemName)
	assert.Equal(t, 3, dto.CurrentStock)
	require.Len(t, dto.PurchaseHistory, 1)
	assert.Equal(t, "farmer", dto.PurchaseHistory[0].UserID)
	assert.Equal(t, 3, dto.PurchaseHistory[0].PurchasedCount)
	assert.NotEmpty(t, dto.PurchaseHistory[0].LogID)
	assert.NotEmpty(t, dto.PurchaseHistory[0].Timestamp)
	assert.Empty(t, dto.Error)
	assert.NotContains(t, rec.Body.String(), `"error"`)
}

func TestSell_FIFO(t *testing.T) {
	s := newTestServer(t)
	s.purchase(t, "carrot", 3)
	p2 := s.purchase(t, "carrot", 5).PurchaseHistory[1]

	rec := s.do(t, http.MethodPost, "/sell", `{"id":"market","item_name":"carrot","count":4}`)

	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeItem(t, rec)
	assert.Equal(t, 4, dto.CurrentStock)
	require.Len(t, dto.PurchaseHistory, 1)
	assert.Equal(t, p2.LogID, dto.PurchaseHistory[0].LogID)
	assert.Equal(t, 4, dto.PurchaseHistory[0].PurchasedCount)
	assert.Equal(t, p2.Timestamp, dto.PurchaseHistory[0].Timestamp)
}

func TestSell_InsufficientStock(t *testing.T) {
	s := newTestServer(t)
	s.purchase(t, "carrot", 3)

	rec := s.do(t, http.MethodPost, "/sell", `{"id":"market","item_name":"carrot","count":4}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.NotEmpty(t, decodeDetail(t, rec))

	after := decodeItem(t, s.do(t, http.MethodGet, "/stock/carrot", ""))
	assert.Equal(t, 3, after.CurrentStock)
}

func TestSell_UnknownItem(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/sell", `{"id":"market","item_name":"ghost","count":1}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.NotEmpty(t, decodeDetail(t, rec))
}

func TestSellSpecificRecord(t *testing.T) {
	s := newTestServer(t)
	p1 := s.purchase(t, "carrot", 3).PurchaseHistory[0]
	s.purchase(t, "carrot", 5)
	body := `{"item_name":"carrot","log_id":"` + p1.LogID + `"}`

	// First reversal removes the record.
	rec := s.do(t, http.MethodPost, "/sell_specific_record", body)
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeItem(t, rec)
	assert.Equal(t, 5, dto.CurrentStock)
	assert.Empty(t, dto.Error)

	// Second reversal is an item-scoped error on a 200.
	rec = s.do(t, http.MethodPost, "/sell_specific_record", body)
	require.Equal(t, http.StatusOK, rec.Code)
	dto = decodeItem(t, rec)
	assert.Equal(t, 5, dto.CurrentStock)
	assert.Len(t, dto.PurchaseHistory, 1)
	assert.Contains(t, dto.Error, p1.LogID)
}

func TestSellSpecificRecord_UnknownItem(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodPost, "/sell_specific_record", `{"item_name":"ghost","log_id":"x"}`)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// =============================================================================
// REQUEST VALIDATION
// =============================================================================

func TestMutations_RejectBadBodies(t *testing.T) {
	tests := []struct {
		name   string
		path   string
		body   string
		status int
	}{
		{"malformed json", "/purchase", `{"id":`, http.StatusBadRequest},
		{"empty body", "/purchase", ``, http.StatusBadRequest},
		{"count as string", "/purchase", `{"id":"u","item_name":"carrot","count":"3"}`, http.StatusBadRequest},
		{"missing id", "/purchase", `{"item_name":"carrot","count":3}`, http.StatusUnprocessableEntity},
		{"missing count", "/sell", `{"id":"u","item_name":"carrot"}`, http.StatusUnprocessableEntity},
		{"zero count", "/purchase", `{"id":"u","item_name":"carrot","count":0}`, http.StatusUnprocessableEntity},
		{"negative count", "/sell", `{"id":"u","item_name":"carrot","count":-1}`, http.StatusUnprocessableEntity},
		{"blank item", "/purchase", `{"id":"u","item_name":"  ","count":1}`, http.StatusUnprocessableEntity},
		{"missing log id", "/sell_specific_record", `{"item_name":"carrot"}`, http.StatusUnprocessableEntity},
		{"empty log id", "/sell_specific_record", `{"item_name":"carrot","log_id":""}`, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestServer(t)

			rec := s.do(t, http.MethodPost, tt.path, tt.body)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
			assert.NotEmpty(t, decodeDetail(t, rec))
		})
	}
}

func TestPurchase_RejectedRequestCreatesNothing(t *testing.T) {
	s := newTestServer(t)

	s.do(t, http.MethodPost, "/purchase", `{"id":"u","item_name":"carrot","count":0}`)

	rec := s.do(t, http.MethodGet, "/stocks", "")
	assert.JSONEq(t, `[]`, rec.Body.String())
}

// =============================================================================
// QUERIES
// =============================================================================

func TestGetItemStock_UnknownIsSoftError(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/stock/ghost", "")

	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeItem(t, rec)
	assert.Equal(t, "ghost", dto.ItemName)
	assert.Equal(t, 0, dto.CurrentStock)
	assert.NotNil(t, dto.PurchaseHistory)
	assert.NotEmpty(t, dto.Error)
}

func TestGetItemStock_EscapedName(t *testing.T) {
	s := newTestServer(t)
	s.purchase(t, "seed/pack", 2)
	s.purchase(t, "red apple", 1)

	rec := s.do(t, http.MethodGet, "/stock/seed%2Fpack", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "seed/pack", decodeItem(t, rec).ItemName)
	assert.Equal(t, 2, decodeItem(t, rec).CurrentStock)

	rec = s.do(t, http.MethodGet, "/stock/red%20apple", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, decodeItem(t, rec).CurrentStock)
}

func TestGetItemStock_LiteralPercentInName(t *testing.T) {
	// GIVEN: "a%41" and "aA", which collide if the name is decoded twice
	// WHEN: Fetching the escaped form of "a%41"
	// THEN: Its own snapshot comes back, not "aA"

	s := newTestServer(t)
	s.purchase(t, "a%41", 2)
	s.purchase(t, "aA", 7)

	rec := s.do(t, http.MethodGet, "/stock/"+url.PathEscape("a%41"), "")
	require.Equal(t, http.StatusOK, rec.Code)
	dto := decodeItem(t, rec)
	assert.Equal(t, "a%41", dto.ItemName)
	assert.Equal(t, 2, dto.CurrentStock)
	assert.Empty(t, dto.Error)

	rec = s.do(t, http.MethodGet, "/stock/"+url.PathEscape("a%41")+"/events", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var events []EventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 1)
	assert.Equal(t, "a%41", events[0].ItemName)
	assert.Equal(t, 2, events[0].Count)
}

func TestGetAllStocks(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/stocks", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	s.purchase(t, "turnip", 1)
	s.purchase(t, "carrot", 2)

	rec = s.do(t, http.MethodGet, "/stocks", "")
	var dtos []ItemStockDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &dtos))
	require.Len(t, dtos, 2)
	assert.Equal(t, "carrot", dtos[0].ItemName)
	assert.Equal(t, "turnip", dtos[1].ItemName)
}

func TestGetItemEvents(t *testing.T) {
	s := newTestServer(t)
	s.purchase(t, "carrot", 3)
	s.purchase(t, "carrot", 5)
	s.do(t, http.MethodPost, "/sell", `{"id":"market","item_name":"carrot","count":4}`)

	rec := s.do(t, http.MethodGet, "/stock/carrot/events", "")

	require.Equal(t, http.StatusOK, rec.Code)
	var events []EventDTO
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 3)
	assert.Equal(t, "sell", events[2].Kind)
	assert.Equal(t, 4, events[2].StockAfter)
	require.Len(t, events[2].Consumed, 2)
	assert.True(t, events[2].Consumed[0].Removed)

	rec = s.do(t, http.MethodGet, "/stock/ghost/events", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthCheck(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/healthz", "")

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestRouter_JSONFallbacks(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "Not Found", decodeDetail(t, rec))

	rec = s.do(t, http.MethodGet, "/purchase", "")
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

// =============================================================================
// FAILURES
// =============================================================================

type failingStore struct {
	*store.Memory
}

func (failingStore) Commit(context.Context, ledger.Snapshot, ledger.Event) error {
	return errors.New("disk on fire")
}

func TestPurchase_StoreFailureHidesDetails(t *testing.T) {
	s := newTestServerWith(t, failingStore{store.NewMemory()})

	rec := s.do(t, http.MethodPost, "/purchase", `{"id":"farmer","item_name":"carrot","count":3}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal error", decodeDetail(t, rec))
	assert.NotContains(t, rec.Body.String(), "disk on fire")
}

func TestMutation_BrokenItemConflicts(t *testing.T) {
	mem := store.NewMemory()
	mem.Put(ledger.Snapshot{ItemName: "carrot", CurrentStock: 5, History: []ledger.PurchaseRecord{}})
	s := newTestServerWith(t, mem)
	_, broken, err := s.proc.Restore(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, broken)

	rec := s.do(t, http.MethodPost, "/purchase", `{"id":"farmer","item_name":"carrot","count":1}`)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = s.do(t, http.MethodGet, "/stock/carrot", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotEmpty(t, decodeItem(t, rec).Error)
}
