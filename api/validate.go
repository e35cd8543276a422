package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/warp/stock-ledger/ledger"
)

// maxBodyBytes caps request bodies; every valid body is a few hundred bytes.
const maxBodyBytes = 1 << 20

// errMalformedBody marks bodies that are not the expected JSON shape.
var errMalformedBody = errors.New("malformed request body")

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return fmt.Errorf("%w: empty body", errMalformedBody)
		}
		var typeErr *json.UnmarshalTypeError
		if errors.As(err, &typeErr) {
			return fmt.Errorf("%w: field %q must be %s", errMalformedBody, typeErr.Field, typeErr.Type)
		}
		return fmt.Errorf("%w: %v", errMalformedBody, err)
	}
	return nil
}

func required(field string) error {
	return &ledger.ValidationError{Field: field, Message: "field required"}
}

// Validate checks presence, then delegates range checks to the ledger.
func (req ItemTransactionRequest) Validate() error {
	switch {
	case req.ID == nil:
		return required("id")
	case req.ItemName == nil:
		return required("item_name")
	case req.Count == nil:
		return required("count")
	}
	return ledger.ValidateTrade(ledger.ItemName(*req.ItemName), ledger.UserID(*req.ID), *req.Count)
}

func (req SellSpecificRecordRequest) Validate() error {
	switch {
	case req.ItemName == nil:
		return required("item_name")
	case req.LogID == nil:
		return required("log_id")
	}
	return ledger.ValidateRecordSell(ledger.ItemName(*req.ItemName), ledger.LogID(*req.LogID))
}
