/*
errors.go - Error taxonomy for the ledger core

PURPOSE:
  All error kinds the core can return, in one place. Callers branch with
  errors.Is against the sentinels; structured errors carry the details and
  unwrap to their sentinel.

ERROR CATEGORIES:
  1. Validation - InvalidAmount, SplitMismatch, PayerMismatch, InvalidScope.
     Always user-correctable, raised before anything is persisted.
  2. Authorization - Forbidden, AlreadySettled, EntryDeleted.
  3. Lookup - NotFound.
  4. Integrity - CorruptEntry, raised during a fold and recovered locally.

USAGE:
  if errors.Is(err, ledger.ErrAlreadySettled) {
      // tell the user to delete the settlement first
  }

SEE ALSO:
  - split.go: Raises validation errors
  - guard.go: Raises authorization errors
  - balance.go: Collects CorruptEntry warnings
*/
package ledger

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrInvalidAmount is returned for negative amounts, or zero where a
	// positive amount is required.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrSplitMismatch is returned when shares do not reconcile to the total.
	ErrSplitMismatch = errors.New("split does not reconcile to total")

	// ErrPayerMismatch is returned when contributions do not reconcile to the total.
	ErrPayerMismatch = errors.New("contributions do not reconcile to total")

	// ErrInvalidScope is returned for malformed scopes and for parties outside
	// the entry's scope.
	ErrInvalidScope = errors.New("invalid scope")

	// ErrForbidden is returned when the actor may not mutate the entry.
	ErrForbidden = errors.New("forbidden")

	// ErrAlreadySettled is returned when deleting an expense whose debts have
	// been covered by later settlements.
	ErrAlreadySettled = errors.New("entry already settled")

	// ErrNotFound is returned for unknown entry ids.
	ErrNotFound = errors.New("entry not found")

	// ErrCorruptEntry is returned when a stored entry fails its own invariants.
	ErrCorruptEntry = errors.New("corrupt entry")

	// ErrNotExternalSettlement is returned when a status update targets an
	// expense or a cash settlement.
	ErrNotExternalSettlement = errors.New("entry is not an external settlement")

	// ErrInvalidKind is returned for an unknown entry kind or settlement method.
	ErrInvalidKind = errors.New("invalid entry kind")

	// ErrInvalidStatus is returned for an unknown settlement status.
	ErrInvalidStatus = errors.New("invalid settlement status")

	// ErrEntryDeleted is returned when changing the status of a deleted settlement.
	ErrEntryDeleted = errors.New("entry is deleted")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// MismatchError reports a sum that missed its target by more than Tolerance.
// Kind is ErrSplitMismatch or ErrPayerMismatch.
type MismatchError struct {
	Kind     error
	Expected decimal.Decimal
	Actual   decimal.Decimal
	Reason   string
}

func (e *MismatchError) Error() string {
	if e.Reason != "" {
		return fmt.Sprintf("%v: %s", e.Kind, e.Reason)
	}
	return fmt.Sprintf("%v: expected %s, got %s", e.Kind, e.Expected, e.Actual)
}

func (e *MismatchError) Unwrap() error {
	return e.Kind
}

// ScopeError reports a malformed scope or a party that does not belong to it.
type ScopeError struct {
	Scope  Scope
	Party  PartyID
	Reason string
}

func (e *ScopeError) Error() string {
	if e.Party != "" {
		return fmt.Sprintf("invalid scope %s: %s (%s)", e.Scope, e.Reason, e.Party)
	}
	return fmt.Sprintf("invalid scope %s: %s", e.Scope, e.Reason)
}

func (e *ScopeError) Unwrap() error {
	return ErrInvalidScope
}

// ForbiddenError names the actor that was refused.
type ForbiddenError struct {
	EntryID EntryID
	Actor   PartyID
}

func (e *ForbiddenError) Error() string {
	return fmt.Sprintf("forbidden: %s is neither creator nor payer of %s", e.Actor, e.EntryID)
}

func (e *ForbiddenError) Unwrap() error {
	return ErrForbidden
}

// CorruptEntryError describes why a stored entry was skipped during a fold.
type CorruptEntryError struct {
	EntryID EntryID
	Reason  string
}

func (e *CorruptEntryError) Error() string {
	return fmt.Sprintf("corrupt entry %s: %s", e.EntryID, e.Reason)
}

func (e *CorruptEntryError) Unwrap() error {
	return ErrCorruptEntry
}

func invalidAmount(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidAmount, fmt.Sprintf(format, args...))
}

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsClientError returns true if the error is due to invalid client input.
func IsClientError(err error) bool {
	return errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrSplitMismatch) ||
		errors.Is(err, ErrPayerMismatch) ||
		errors.Is(err, ErrInvalidScope) ||
		errors.Is(err, ErrNotExternalSettlement) ||
		errors.Is(err, ErrInvalidKind) ||
		errors.Is(err, ErrInvalidStatus)
}

// IsNotFound returns true if the error indicates a missing entry.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsConflict returns true if the request is valid but blocked by current state.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadySettled) || errors.Is(err, ErrEntryDeleted)
}
