/*
errors.go - Centralized error types for the stock ledger

ERROR CATEGORIES:
  1. Validation errors - malformed or non-positive input, nothing mutated
  2. Lookup errors     - unknown item, or record no longer in history
  3. Stock errors      - generic sell larger than current stock
  4. Internal errors   - store/IO failures; state is left untouched

USAGE:
  Callers branch with errors.Is on the sentinels and errors.As on the
  structured types when they need the details:

    var short *ledger.InsufficientStockError
    if errors.As(err, &short) {
        log.Printf("only %d left", short.Available)
    }

SEE ALSO:
  - processor.go: Produces these errors
  - api/errors.go: Maps them onto HTTP responses
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidArgument is returned for blank identifiers or non-positive counts.
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrItemNotFound is returned when no ledger exists for the item name.
	ErrItemNotFound = errors.New("item not found")

	// ErrRecordNotFound is returned when a log id is not in the item's
	// current history (consumed, reversed, or never issued).
	ErrRecordNotFound = errors.New("purchase record not found")

	// ErrInsufficientStock is returned when a sell exceeds current stock.
	ErrInsufficientStock = errors.New("insufficient stock")

	// ErrInternal is returned for unexpected failures such as store IO.
	ErrInternal = errors.New("internal error")

	// ErrItemUnavailable is returned when mutating an item that failed to
	// restore from the store.
	ErrItemUnavailable = errors.New("item unavailable")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError names the offending field.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidArgument
}

// InsufficientStockError reports how far a sell overshot.
type InsufficientStockError struct {
	ItemName  ItemName
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for %q: available %d, requested %d",
		e.ItemName, e.Available, e.Requested)
}

func (e *InsufficientStockError) Unwrap() error {
	return ErrInsufficientStock
}

// RecordNotFoundError identifies the missing record.
type RecordNotFoundError struct {
	ItemName ItemName
	LogID    LogID
}

func (e *RecordNotFoundError) Error() string {
	return fmt.Sprintf("purchase record %q not found for item %q", e.LogID, e.ItemName)
}

func (e *RecordNotFoundError) Unwrap() error {
	return ErrRecordNotFound
}

// StoreError wraps a persistence failure. It matches both ErrInternal and
// the underlying cause.
type StoreError struct {
	Op  string
	Err error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store %s: %v", e.Op, e.Err)
}

func (e *StoreError) Unwrap() []error {
	return []error{ErrInternal, e.Err}
}

func itemNotFound(name ItemName) error {
	return fmt.Errorf("%w: %q", ErrItemNotFound, name)
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidArgument) ||
		errors.Is(err, ErrInsufficientStock)
}

// IsNotFound returns true if the error indicates a missing item or record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrItemNotFound) ||
		errors.Is(err, ErrRecordNotFound)
}
