/*
errors.go - Centralized error types for the inventory engine

ERROR CATEGORIES:
  1. Validation    - malformed input, fatal to the single request
  2. Inventory     - structured shortage detail, surfaced verbatim to the caller
  3. Immutability  - writes against a fixed BOM/price month, a closed snapshot
                     or a locked period
  4. Conflict      - uniqueness races (duplicate snapshot, double close)
  5. Integrity     - the store may be inconsistent; operator action required
  6. NotFound      - missing ids

USAGE:
  Callers translate errors into protocol responses with errors.Is/As:

    var short *inventory.InsufficientInventoryError
    if errors.As(err, &short) {
        // render short.Shortages
    }

  The engine itself never formats user-facing messages.
*/
package inventory

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	ErrValidation            = errors.New("validation failed")
	ErrInsufficientInventory = errors.New("insufficient inventory")
	ErrImmutable             = errors.New("immutable record")
	ErrConflict              = errors.New("conflict")
	ErrIntegrity             = errors.New("integrity failure")
	ErrNotFound              = errors.New("not found")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// ValidationError reports malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return e.Message
	}
	return e.Field + ": " + e.Message
}

func (e *ValidationError) Unwrap() error { return ErrValidation }

func invalid(field, format string, args ...any) error {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Shortage is one item whose outbound demand exceeds available stock.
type Shortage struct {
	ItemID    ItemID
	ItemName  string
	ItemCode  string
	Available decimal.Decimal
	Required  decimal.Decimal
}

// InsufficientInventoryError lists every short item of a rejected submission.
type InsufficientInventoryError struct {
	// Materials is set when the shortage is on BOM-derived consumption
	// rather than on the submitted lines.
	Materials bool
	Shortages []Shortage
}

func (e *InsufficientInventoryError) Error() string {
	parts := make([]string, len(e.Shortages))
	for i, s := range e.Shortages {
		parts[i] = fmt.Sprintf("%s (available %s, required %s)", s.ItemID, s.Available, s.Required)
	}
	return "insufficient inventory: " + strings.Join(parts, ", ")
}

func (e *InsufficientInventoryError) Unwrap() error { return ErrInsufficientInventory }

// ProcessSequenceError is returned when a stage is produced before its
// predecessor stage has stock for the materials it consumes.
type ProcessSequenceError struct {
	Stage      Process
	Missing    Process
	MaterialID ItemID
}

func (e *ProcessSequenceError) Error() string {
	return fmt.Sprintf("process sequence: %s production needs %s output %s in stock first",
		e.Stage, e.Missing, e.MaterialID)
}

func (e *ProcessSequenceError) Unwrap() error { return ErrValidation }

// ImmutabilityError rejects a write against frozen data.
type ImmutabilityError struct {
	Resource string
	ID       string
	Reason   string
}

func (e *ImmutabilityError) Error() string {
	return fmt.Sprintf("%s %s is immutable: %s", e.Resource, e.ID, e.Reason)
}

func (e *ImmutabilityError) Unwrap() error { return ErrImmutable }

// ConflictError reports a uniqueness violation or a lost race.
type ConflictError struct {
	Resource string
	Key      string
	Reason   string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s %s: %s", e.Resource, e.Key, e.Reason)
}

func (e *ConflictError) Unwrap() error { return ErrConflict }

// NotFoundError reports a missing id.
type NotFoundError struct {
	Resource string
	ID       string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Resource, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// IntegrityError means the store may now be inconsistent. It must be
// surfaced and alerted on, never swallowed.
type IntegrityError struct {
	Op  string
	Err error
}

func (e *IntegrityError) Error() string {
	return fmt.Sprintf("integrity failure during %s: %v", e.Op, e.Err)
}

func (e *IntegrityError) Unwrap() []error { return []error{ErrIntegrity, e.Err} }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to input the caller can correct.
func IsClientError(err error) bool {
	return errors.Is(err, ErrValidation) ||
		errors.Is(err, ErrInsufficientInventory) ||
		errors.Is(err, ErrImmutable) ||
		errors.Is(err, ErrConflict)
}

func IsNotFound(err error) bool  { return errors.Is(err, ErrNotFound) }
func IsConflict(err error) bool  { return errors.Is(err, ErrConflict) }
func IsIntegrity(err error) bool { return errors.Is(err, ErrIntegrity) }
