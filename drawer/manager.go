/*
manager.go - Shift lifecycle operations

PURPOSE:
  The Manager owns the shift state machine: open (with carry-over
  verification), live derived-totals view, close (with variance
  computation), emergency close, and the movement ledger operations.

CONSTRUCTION:
  Explicitly constructed and dependency-injected; no package-level state.
  One Manager per process, sharing a TxStore.

ATOMICITY:
  Every mutating operation executes as one transaction: read current shift
  state, validate, write new state. The one cross-request race - two opens
  for the same operator - is settled by the storage uniqueness constraint,
  not by the pre-checks here (those only improve error ordering).

DERIVED TOTALS:
  Nothing money-related is cached. The active-shift view and the closing
  computation both re-aggregate movements and re-query the sales ledger, so
  a sale voided after posting can never leave a stale theoretical-cash
  figure behind.

SEE ALSO:
  - reconcile.go: the arithmetic applied at close
  - store.go: the persistence contract
*/
package drawer

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// MANAGER
// =============================================================================

type Manager struct {
	store     TxStore
	tolerance decimal.Decimal
}

type Option func(*Manager)

// WithTolerance overrides the variance classification tolerance.
func WithTolerance(t decimal.Decimal) Option {
	return func(m *Manager) { m.tolerance = t }
}

// NewManager creates a shift manager on top of a transactional store.
func NewManager(store TxStore, opts ...Option) *Manager {
	m := &Manager{store: store, tolerance: DefaultTolerance}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// =============================================================================
// OPEN
// =============================================================================

type OpenParams struct {
	OperatorID         string
	CountedOpeningCash decimal.Decimal
	Notes              string

	// AcknowledgeDiscrepancy confirms a counted opening cash that differs
	// from the previous shift's carry-over. Without it, a mismatch returns
	// *VerificationRequiredError and no shift is created.
	AcknowledgeDiscrepancy bool
}

// Open creates a new open shift for the operator.
//
// If the operator's previous closed shift left a positive theoretical cash,
// the counted opening cash must match it. A mismatch requires an explicit
// acknowledgment, which is recorded permanently in the shift notes -
// opening is never silently auto-corrected, and a failed carry-over lookup
// blocks opening rather than defaulting to zero.
func (m *Manager) Open(ctx context.Context, p OpenParams) (*Shift, error) {
	if p.OperatorID == "" {
		return nil, &MissingFieldError{Field: "operator_id"}
	}
	// Zero is rejected along with negatives: a drawer never opens without a
	// float, and a zero count is far more likely a missed entry than a fact.
	if !p.CountedOpeningCash.IsPositive() {
		return nil, &InvalidAmountError{Field: "opening_amount", Value: p.CountedOpeningCash}
	}

	var created *Shift
	err := m.store.WithTx(ctx, func(s Store) error {
		op, err := s.GetOperator(ctx, p.OperatorID)
		if err != nil {
			return fmt.Errorf("looking up operator: %w", err)
		}
		if op == nil {
			return ErrOperatorNotFound
		}

		if open, err := s.OpenShiftForOperator(ctx, p.OperatorID); err != nil {
			return fmt.Errorf("checking open shift: %w", err)
		} else if open != nil {
			return ErrShiftAlreadyOpen
		}

		prev, err := s.LastClosedShift(ctx, p.OperatorID)
		if err != nil {
			return fmt.Errorf("carry-over lookup: %w", err)
		}

		carry := decimal.Zero
		if prev != nil && prev.TheoreticalCash != nil {
			carry = *prev.TheoreticalCash
		}

		now := time.Now().UTC()
		shift := Shift{
			ID:            uuid.NewString(),
			OperatorID:    p.OperatorID,
			Status:        StatusOpen,
			OpenedAt:      now,
			OpeningAmount: p.CountedOpeningCash,
			CarryOver:     carry,
		}

		// Verification only triggers on a positive carry-over: with nothing
		// to reconcile against there is nothing to acknowledge.
		if carry.IsPositive() && !p.CountedOpeningCash.Equal(carry) {
			if !p.AcknowledgeDiscrepancy {
				return &VerificationRequiredError{
					OperatorID: p.OperatorID,
					Expected:   carry,
					Counted:    p.CountedOpeningCash,
					Difference: p.CountedOpeningCash.Sub(carry),
				}
			}
			shift.Notes = append(shift.Notes, Note{
				At:    now,
				Actor: p.OperatorID,
				Text: fmt.Sprintf("opening discrepancy acknowledged: expected carry-over %s, counted %s (difference %s)",
					carry, p.CountedOpeningCash, p.CountedOpeningCash.Sub(carry)),
			})
		}

		if text := strings.TrimSpace(p.Notes); text != "" {
			shift.Notes = append(shift.Notes, Note{At: now, Actor: p.OperatorID, Text: text})
		}

		if err := s.InsertShift(ctx, shift); err != nil {
			return err
		}
		created = &shift
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// =============================================================================
// ACTIVE SHIFT VIEW
// =============================================================================

// ActiveShift returns the operator's open shift with all derived totals
// recomputed: movement sums by aggregation, sales totals from the sales
// ledger since opening, theoretical cash from both. Repeated calls without
// intervening writes return identical figures.
func (m *Manager) ActiveShift(ctx context.Context, operatorID string) (*ShiftView, error) {
	op, err := m.store.GetOperator(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("looking up operator: %w", err)
	}
	if op == nil {
		return nil, ErrOperatorNotFound
	}

	shift, err := m.store.OpenShiftForOperator(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("loading open shift: %w", err)
	}
	if shift == nil {
		return nil, ErrNoActiveShift
	}

	return m.viewOf(ctx, m.store, shift, nil)
}

// viewOf assembles the derived view of an open shift from whichever store
// (transactional or not) the caller is holding.
func (m *Manager) viewOf(ctx context.Context, s Store, shift *Shift, until *time.Time) (*ShiftView, error) {
	inflow, outflow, err := s.MovementTotals(ctx, shift.ID)
	if err != nil {
		return nil, fmt.Errorf("aggregating movements: %w", err)
	}

	summary, err := s.SumByPaymentMethod(ctx, shift.OperatorID, shift.OpenedAt, until)
	if err != nil {
		return nil, fmt.Errorf("sales aggregate: %w", err)
	}

	return &ShiftView{
		Shift:           *shift,
		Sales:           summary,
		InflowTotal:     inflow,
		OutflowTotal:    outflow,
		TheoreticalCash: TheoreticalCash(shift.OpeningAmount, summary.Cash, inflow, outflow),
	}, nil
}

// =============================================================================
// CLOSE
// =============================================================================

type CloseParams struct {
	ShiftID            string
	CountedClosingCash decimal.Decimal
	Notes              string
	ActorID            string
}

// Close reconciles and closes an open shift: theoretical cash and variance
// are computed inside the same transaction that flips the status, so
// movements recorded concurrently with the close can never be lost between
// the computation and the write. Closing an already-closed shift returns
// ErrShiftAlreadyClosed without re-computing anything.
func (m *Manager) Close(ctx context.Context, p CloseParams) (*Shift, error) {
	// Same boundary as open: zero and negative counts are rejected. An
	// emptied drawer still closes against a positive count of the float.
	if !p.CountedClosingCash.IsPositive() {
		return nil, &InvalidAmountError{Field: "closing_amount", Value: p.CountedClosingCash}
	}

	var closed *Shift
	err := m.store.WithTx(ctx, func(s Store) error {
		shift, err := s.GetShift(ctx, p.ShiftID)
		if err != nil {
			return fmt.Errorf("loading shift: %w", err)
		}
		if shift == nil {
			return ErrShiftNotFound
		}
		if shift.Status.Closed() {
			return ErrShiftAlreadyClosed
		}

		now := time.Now().UTC()
		view, err := m.viewOf(ctx, s, shift, &now)
		if err != nil {
			return err
		}

		variance := VarianceOf(p.CountedClosingCash, view.TheoreticalCash)
		closure := ShiftClosure{
			ShiftID:         shift.ID,
			Status:          StatusClosed,
			ClosedAt:        now,
			ClosingAmount:   p.CountedClosingCash,
			TheoreticalCash: view.TheoreticalCash,
			Variance:        variance,
			VarianceClass:   ClassifyVariance(variance, m.tolerance),
			Sales:           view.Sales,
		}
		if text := strings.TrimSpace(p.Notes); text != "" {
			actor := p.ActorID
			if actor == "" {
				actor = shift.OperatorID
			}
			closure.Note = &Note{At: now, Actor: actor, Text: text}
		}

		if err := s.CloseShift(ctx, closure); err != nil {
			return err
		}

		closed = applyClosure(*shift, closure)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

// EmergencyClose is the administrative override: the theoretical cash
// stands in for the counted amount, forcing the variance to zero. It exists
// for when the operator cannot be reached for a manual count. It is a
// distinct capability (the HTTP layer gates it on the admin role) and it is
// always annotated, but it never bypasses the single-open-shift invariant
// or the closed-state immutability.
func (m *Manager) EmergencyClose(ctx context.Context, shiftID, actorID string) (*Shift, error) {
	if actorID == "" {
		return nil, &MissingFieldError{Field: "actor_id"}
	}

	var closed *Shift
	err := m.store.WithTx(ctx, func(s Store) error {
		shift, err := s.GetShift(ctx, shiftID)
		if err != nil {
			return fmt.Errorf("loading shift: %w", err)
		}
		if shift == nil {
			return ErrShiftNotFound
		}
		if shift.Status.Closed() {
			return ErrShiftAlreadyClosed
		}

		now := time.Now().UTC()
		view, err := m.viewOf(ctx, s, shift, &now)
		if err != nil {
			return err
		}

		closure := ShiftClosure{
			ShiftID:         shift.ID,
			Status:          StatusEmergencyClosed,
			ClosedAt:        now,
			ClosingAmount:   view.TheoreticalCash,
			TheoreticalCash: view.TheoreticalCash,
			Variance:        decimal.Zero,
			VarianceClass:   VarianceExact,
			Sales:           view.Sales,
			Note: &Note{
				At:    now,
				Actor: actorID,
				Text:  "emergency close: no manual count, counted amount set to theoretical cash",
			},
		}

		if err := s.CloseShift(ctx, closure); err != nil {
			return err
		}

		closed = applyClosure(*shift, closure)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return closed, nil
}

func applyClosure(shift Shift, c ShiftClosure) *Shift {
	shift.Status = c.Status
	shift.ClosedAt = &c.ClosedAt
	shift.ClosingAmount = &c.ClosingAmount
	shift.TheoreticalCash = &c.TheoreticalCash
	shift.Variance = &c.Variance
	shift.VarianceClass = c.VarianceClass
	shift.Sales = c.Sales
	if c.Note != nil {
		shift.Notes = append(shift.Notes, *c.Note)
	}
	return &shift
}

// =============================================================================
// MOVEMENT LEDGER
// =============================================================================

type MovementParams struct {
	// Either ShiftID or OperatorID identifies the target. With only an
	// operator, the movement posts against that operator's open shift.
	ShiftID    string
	OperatorID string

	Direction   Direction
	Category    string
	Amount      decimal.Decimal
	Description string
	Reference   string
	ActorID     string
}

// RecordMovement appends an immutable movement to an open shift. The owning
// shift's inflow/outflow totals are never stored; they are recomputed by
// aggregation wherever needed, so recording cannot drift them.
func (m *Manager) RecordMovement(ctx context.Context, p MovementParams) (*Movement, error) {
	if _, err := ParseDirection(string(p.Direction)); err != nil {
		return nil, &MissingFieldError{Field: "direction", Reason: err.Error()}
	}
	if err := ValidateMovementInput(p.Amount, p.Category, p.Description); err != nil {
		return nil, err
	}

	var created *Movement
	err := m.store.WithTx(ctx, func(s Store) error {
		shift, err := m.resolveOpenShift(ctx, s, p.ShiftID, p.OperatorID)
		if err != nil {
			return err
		}

		actor := p.ActorID
		if actor == "" {
			actor = shift.OperatorID
		}

		mv := Movement{
			ID:          uuid.NewString(),
			ShiftID:     shift.ID,
			Direction:   p.Direction,
			Category:    strings.TrimSpace(p.Category),
			Amount:      p.Amount,
			Description: strings.TrimSpace(p.Description),
			Reference:   strings.TrimSpace(p.Reference),
			ActorID:     actor,
			CreatedAt:   time.Now().UTC(),
		}

		if err := s.AppendMovement(ctx, mv); err != nil {
			return err
		}
		created = &mv
		return nil
	})
	if err != nil {
		return nil, err
	}
	return created, nil
}

// resolveOpenShift finds the movement target and enforces that it is open.
// A movement can never be created against a closed shift.
func (m *Manager) resolveOpenShift(ctx context.Context, s Store, shiftID, operatorID string) (*Shift, error) {
	if shiftID != "" {
		shift, err := s.GetShift(ctx, shiftID)
		if err != nil {
			return nil, fmt.Errorf("loading shift: %w", err)
		}
		if shift == nil {
			return nil, ErrShiftNotFound
		}
		if shift.Status.Closed() {
			return nil, ErrNoActiveShift
		}
		return shift, nil
	}

	if operatorID == "" {
		return nil, &MissingFieldError{Field: "operator_id"}
	}
	shift, err := s.OpenShiftForOperator(ctx, operatorID)
	if err != nil {
		return nil, fmt.Errorf("loading open shift: %w", err)
	}
	if shift == nil {
		return nil, ErrNoActiveShift
	}
	return shift, nil
}

// Movements lists a shift's movements newest-first, optionally filtered by
// direction and category for audit views.
func (m *Manager) Movements(ctx context.Context, shiftID string, f MovementFilter) ([]Movement, error) {
	shift, err := m.store.GetShift(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("loading shift: %w", err)
	}
	if shift == nil {
		return nil, ErrShiftNotFound
	}
	return m.store.Movements(ctx, shiftID, f)
}

// =============================================================================
// NOTES
// =============================================================================

// AppendNote adds an audit annotation to a shift. Works on closed shifts
// too: notes are the single field that stays writable after close.
func (m *Manager) AppendNote(ctx context.Context, shiftID, actorID, text string) (*Note, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &MissingFieldError{Field: "text"}
	}

	n := Note{At: time.Now().UTC(), Actor: actorID, Text: strings.TrimSpace(text)}
	err := m.store.WithTx(ctx, func(s Store) error {
		shift, err := s.GetShift(ctx, shiftID)
		if err != nil {
			return fmt.Errorf("loading shift: %w", err)
		}
		if shift == nil {
			return ErrShiftNotFound
		}
		return s.AppendShiftNote(ctx, shiftID, n)
	})
	if err != nil {
		return nil, err
	}
	return &n, nil
}

// =============================================================================
// SHIFT LOOKUP
// =============================================================================

// Shift returns a shift by id, for read-only consumers.
func (m *Manager) Shift(ctx context.Context, shiftID string) (*Shift, error) {
	shift, err := m.store.GetShift(ctx, shiftID)
	if err != nil {
		return nil, fmt.Errorf("loading shift: %w", err)
	}
	if shift == nil {
		return nil, ErrShiftNotFound
	}
	return shift, nil
}
