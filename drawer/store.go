/*
store.go - Persistence and collaborator interfaces

PURPOSE:
  Defines the boundary between the shift manager and everything that
  persists or aggregates state. Implementations: store/sqlite (production)
  and drawer/store (in-memory, tests/dev).

APPEND-ONLY CONTRACT:
  Movements have exactly one write operation: AppendMovement. No update or
  delete exists at any layer. Totals are always recomputed by aggregation
  over the stored movements, never maintained as counters that can drift.

INVARIANT ENFORCEMENT:
  InsertShift MUST fail with ErrShiftAlreadyOpen when the operator already
  has an open shift. This is the storage layer's job (a uniqueness
  constraint over operator+open-state), because two concurrent opens must
  not both succeed regardless of what request handlers checked.

TRANSACTIONS:
  Every mutating manager operation runs inside WithTx: the closure receives
  a Store bound to one database transaction, reads current state and writes
  the new state atomically. A crash mid-operation leaves no partial
  movement or shift visible.

SEE ALSO:
  - store/sqlite/sqlite.go: production implementation
  - drawer/store/memory.go: in-memory implementation
*/
package drawer

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/sales"
)

// =============================================================================
// SALES LEDGER - Read-only boundary to the sales pipeline
// =============================================================================

// SalesLedger returns total sale amount per payment method plus a sale
// count for finalized (non-voided) sales in [since, until]. until == nil
// means "now". The core treats this as an eventually-consistent external
// aggregate and recomputes it on every read.
type SalesLedger interface {
	SumByPaymentMethod(ctx context.Context, operatorID string, since time.Time, until *time.Time) (sales.Summary, error)
}

// =============================================================================
// STORE - Shift and movement persistence
// =============================================================================

// ShiftClosure carries the reconciliation result persisted when a shift
// leaves the open state. All fields are immutable afterwards.
type ShiftClosure struct {
	ShiftID         string
	Status          ShiftStatus // StatusClosed or StatusEmergencyClosed
	ClosedAt        time.Time
	ClosingAmount   decimal.Decimal
	TheoreticalCash decimal.Decimal
	Variance        decimal.Decimal
	VarianceClass   VarianceClass
	Sales           sales.Summary
	Note            *Note
}

// Store is the persistence boundary for the shift manager. It embeds the
// sales ledger so that, inside WithTx, sales aggregates and movement totals
// come from the same transactional snapshot.
type Store interface {
	SalesLedger

	// InsertShift creates an open shift. Fails with ErrShiftAlreadyOpen if
	// the operator already holds one (storage-level uniqueness).
	InsertShift(ctx context.Context, s Shift) error

	// GetShift returns the shift or nil when unknown.
	GetShift(ctx context.Context, id string) (*Shift, error)

	// OpenShiftForOperator returns the operator's open shift or nil.
	OpenShiftForOperator(ctx context.Context, operatorID string) (*Shift, error)

	// LastClosedShift returns the operator's most recently closed shift or
	// nil when the operator has never closed one. Used for carry-over
	// verification; a lookup error must block opening, not default to zero.
	LastClosedShift(ctx context.Context, operatorID string) (*Shift, error)

	// CloseShift atomically transitions an open shift to a closed state and
	// persists the reconciliation result. Fails with ErrShiftAlreadyClosed
	// when the shift is no longer open.
	CloseShift(ctx context.Context, c ShiftClosure) error

	// AppendShiftNote adds an audit annotation. Notes are the only field
	// writable after close.
	AppendShiftNote(ctx context.Context, shiftID string, n Note) error

	// AppendMovement persists an immutable movement. The ONLY movement
	// write operation.
	AppendMovement(ctx context.Context, m Movement) error

	// Movements lists a shift's movements, newest first.
	Movements(ctx context.Context, shiftID string, f MovementFilter) ([]Movement, error)

	// MovementTotals aggregates SUM(amount) per direction for a shift.
	MovementTotals(ctx context.Context, shiftID string) (inflow, outflow decimal.Decimal, err error)

	// GetOperator returns the operator or nil when unknown.
	GetOperator(ctx context.Context, id string) (*Operator, error)
}

// TxStore wraps Store with transaction support. If fn returns an error the
// transaction is rolled back; nothing partial is ever visible.
type TxStore interface {
	Store

	WithTx(ctx context.Context, fn func(Store) error) error
}
