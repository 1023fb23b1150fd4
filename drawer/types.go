/*
Package drawer implements the cash-shift reconciliation engine.

PURPOSE:
  A shift is a bounded custody period for one operator's cash drawer. While
  a shift is open, cash sales and manual movements accumulate against it;
  the expected cash-on-hand ("theoretical cash") is always derived from the
  underlying records, never kept as a running counter. At close, the
  physically counted cash is reconciled against the theoretical figure and
  the variance is recorded permanently.

KEY CONCEPTS IN THIS FILE (types.go):
  - Shift: one operator-session of drawer custody, open -> closed
  - Movement: an immutable manual cash inflow/outflow tied to a shift
  - Direction: closed tagged variant {inflow, outflow}
  - Note: append-only audit annotation on a shift

DESIGN PRINCIPLES:
  1. Derivation over mutation: totals are sums over immutable records
  2. Precision: decimal.Decimal everywhere money flows, never float64
  3. Storage-enforced invariants: one open shift per operator is a
     uniqueness constraint, not a request-handler check
  4. Auditability: corrections are offsetting movements, never edits

SEE ALSO:
  - reconcile.go: pure theoretical-cash / variance calculator
  - manager.go: shift lifecycle operations
  - store.go: persistence and sales-ledger interfaces
*/
package drawer

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/sales"
)

// =============================================================================
// SHIFT STATUS - State machine: open -> closed | emergency_closed
// =============================================================================

type ShiftStatus string

const (
	StatusOpen            ShiftStatus = "open"
	StatusClosed          ShiftStatus = "closed"
	StatusEmergencyClosed ShiftStatus = "emergency_closed"
)

// Closed reports whether the shift has left the open state. There is no
// transition out of a closed state.
func (s ShiftStatus) Closed() bool {
	return s == StatusClosed || s == StatusEmergencyClosed
}

// =============================================================================
// DIRECTION - Closed variant for manual movements
// =============================================================================

type Direction string

const (
	Inflow  Direction = "inflow"
	Outflow Direction = "outflow"
)

// ParseDirection validates a raw direction string. Free-form movement type
// strings are how unclassified movements happen; only the two closed values
// are accepted.
func ParseDirection(s string) (Direction, error) {
	switch Direction(s) {
	case Inflow, Outflow:
		return Direction(s), nil
	}
	return "", fmt.Errorf("unknown movement direction %q", s)
}

// =============================================================================
// SHIFT - One custody period for an operator's drawer
// =============================================================================

// Shift is a cash-drawer session. OpeningAmount is the physically counted
// cash at open. CarryOver records the previous shift's theoretical cash at
// the time of opening; it is kept for verification and audit, and is NOT
// added again when deriving theoretical cash (the opening count already
// contains it).
//
// ClosingAmount, TheoreticalCash, Variance and VarianceClass are nil/empty
// while the shift is open and immutable once set. Notes are the only field
// that remains writable after close.
type Shift struct {
	ID         string
	OperatorID string
	Status     ShiftStatus

	OpenedAt time.Time
	ClosedAt *time.Time

	OpeningAmount decimal.Decimal
	CarryOver     decimal.Decimal

	ClosingAmount   *decimal.Decimal
	TheoreticalCash *decimal.Decimal
	Variance        *decimal.Decimal
	VarianceClass   VarianceClass

	// Sales is the per-method sales snapshot persisted at close. While the
	// shift is open the live figures come from the sales ledger instead.
	Sales sales.Summary

	Notes []Note
}

// Note is an append-only audit annotation.
type Note struct {
	At    time.Time `json:"at"`
	Actor string    `json:"actor"`
	Text  string    `json:"text"`
}

// =============================================================================
// MOVEMENT - Immutable manual cash entry
// =============================================================================

// Movement is a manually entered cash inflow or outflow not arising from a
// sale (bank deposit, supplier payment, drawer top-up). A movement belongs
// exclusively to the shift it was posted against and is never reassigned,
// mutated or deleted; corrections are new offsetting movements.
type Movement struct {
	ID          string
	ShiftID     string
	Direction   Direction
	Category    string
	Amount      decimal.Decimal
	Description string
	Reference   string // optional external reference (receipt, deposit slip)
	ActorID     string
	CreatedAt   time.Time // server-assigned; total order within a shift
}

// MaxCategoryLen bounds the free-form (but validated) category string.
const MaxCategoryLen = 64

// ValidateMovementInput checks the client-correctable fields of a movement
// before any state is touched.
func ValidateMovementInput(amount decimal.Decimal, category, description string) error {
	if !amount.IsPositive() {
		return &InvalidAmountError{Field: "amount", Value: amount}
	}
	if strings.TrimSpace(category) == "" {
		return &MissingFieldError{Field: "category"}
	}
	if len(category) > MaxCategoryLen {
		return &MissingFieldError{Field: "category", Reason: fmt.Sprintf("longer than %d characters", MaxCategoryLen)}
	}
	if strings.TrimSpace(description) == "" {
		return &MissingFieldError{Field: "description"}
	}
	return nil
}

// MovementFilter narrows movement listings for audit views.
type MovementFilter struct {
	Direction Direction // empty = both
	Category  string    // empty = all
}

// =============================================================================
// OPERATOR - Till registry entry
// =============================================================================

// Operator identifies who can hold drawer custody and at which till.
type Operator struct {
	ID        string
	Name      string
	TillID    string
	Role      string // "operator" | "admin"
	CreatedAt time.Time
}

// =============================================================================
// SHIFT VIEW - Read-through derived state of an open shift
// =============================================================================

// ShiftView is the always-current projection of an open shift. Money
// figures are recomputed from the movement ledger and the sales ledger on
// every read; caching them beyond request scope would let a voided sale
// leave a stale theoretical-cash figure behind.
type ShiftView struct {
	Shift           Shift
	Sales           sales.Summary
	InflowTotal     decimal.Decimal
	OutflowTotal    decimal.Decimal
	TheoreticalCash decimal.Decimal
}
