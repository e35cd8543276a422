/*
errors.go - Ledger errors to HTTP responses

TWO CHANNELS:
  Protocol errors: non-2xx status, body {"detail": "..."}.
  Item-scoped errors: 200 with an item snapshot whose "error" field is set.
  The handler decides which channel applies; this file only covers the
  protocol channel.

STATUS MAPPING:
  400: malformed JSON, insufficient stock
  404: unknown item / record
  409: item failed to restore and refuses mutations
  422: validation (missing, blank, non-positive)
  500: everything else; details are logged, not returned
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"

	"github.com/warp/stock-ledger/ledger"
)

func statusFor(err error) int {
	switch {
	case errors.Is(err, errMalformedBody):
		return http.StatusBadRequest
	case errors.Is(err, ledger.ErrInvalidArgument):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ledger.ErrInsufficientStock):
		return http.StatusBadRequest
	case ledger.IsNotFound(err):
		return http.StatusNotFound
	case errors.Is(err, ledger.ErrItemUnavailable):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeLedgerError maps err onto the protocol channel.
func (h *Handler) writeLedgerError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFor(err)
	detail := err.Error()
	if status == http.StatusInternalServerError {
		h.Logger.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err))
		detail = "internal error"
	}
	writeError(w, status, detail)
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, detail string) {
	writeJSON(w, status, ErrorResponse{Detail: detail})
}
