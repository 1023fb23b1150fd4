/*
sqlite_test.go - Storage-level tests

Exercises the guarantees the domain layer depends on:
- the partial unique index settles concurrent opens
- WithTx rolls back everything on error
- the closing UPDATE is guarded by the open status
- money survives the TEXT round-trip exactly
- voided and unclassifiable sales are handled fail-closed
*/
package sqlite

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/history"
	"github.com/compucol89/kiosco-sub004/sales"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func newStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	require.NoError(t, store.SaveOperator(context.Background(), drawer.Operator{
		ID: "op-1", Name: "Ana", TillID: "till-1", Role: "operator",
	}))
	return store
}

func openShift(t *testing.T, store *Store, id, operator string) drawer.Shift {
	t.Helper()
	sh := drawer.Shift{
		ID:            id,
		OperatorID:    operator,
		Status:        drawer.StatusOpen,
		OpenedAt:      time.Now().UTC(),
		OpeningAmount: d("1000"),
		CarryOver:     decimal.Zero,
	}
	require.NoError(t, store.InsertShift(context.Background(), sh))
	return sh
}

// =============================================================================
// SHIFT UNIQUENESS
// =============================================================================

func TestInsertShift_SecondOpenHitsUniqueIndex(t *testing.T) {
	// The single-open-shift invariant is the database's, not the handler's:
	// a direct second insert must fail even though no pre-check ran.
	store := newStore(t)
	openShift(t, store, "shift-1", "op-1")

	err := store.InsertShift(context.Background(), drawer.Shift{
		ID: "shift-2", OperatorID: "op-1", Status: drawer.StatusOpen,
		OpenedAt: time.Now().UTC(), OpeningAmount: d("500"), CarryOver: decimal.Zero,
	})
	assert.ErrorIs(t, err, drawer.ErrShiftAlreadyOpen)
}

func TestInsertShift_OpenAllowedAfterClose(t *testing.T) {
	// The index is partial: closed rows do not block a new open shift.
	store := newStore(t)
	ctx := context.Background()
	sh := openShift(t, store, "shift-1", "op-1")

	require.NoError(t, store.CloseShift(ctx, drawer.ShiftClosure{
		ShiftID: sh.ID, Status: drawer.StatusClosed, ClosedAt: time.Now().UTC(),
		ClosingAmount: d("1000"), TheoreticalCash: d("1000"),
		Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
		Sales: sales.EmptySummary(),
	}))

	err := store.InsertShift(ctx, drawer.Shift{
		ID: "shift-2", OperatorID: "op-1", Status: drawer.StatusOpen,
		OpenedAt: time.Now().UTC(), OpeningAmount: d("1000"), CarryOver: d("1000"),
	})
	assert.NoError(t, err)
}

func TestInsertShift_DifferentOperatorsUnaffected(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveOperator(context.Background(), drawer.Operator{
		ID: "op-2", Name: "Berta", Role: "operator",
	}))

	openShift(t, store, "shift-1", "op-1")
	err := store.InsertShift(context.Background(), drawer.Shift{
		ID: "shift-2", OperatorID: "op-2", Status: drawer.StatusOpen,
		OpenedAt: time.Now().UTC(), OpeningAmount: d("500"), CarryOver: decimal.Zero,
	})
	assert.NoError(t, err)
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_RollsBackOnError(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s drawer.Store) error {
		if err := s.InsertShift(ctx, drawer.Shift{
			ID: "shift-rollback", OperatorID: "op-1", Status: drawer.StatusOpen,
			OpenedAt: time.Now().UTC(), OpeningAmount: d("100"), CarryOver: decimal.Zero,
		}); err != nil {
			return err
		}
		if err := s.AppendMovement(ctx, drawer.Movement{
			ID: "mv-rollback", ShiftID: "shift-rollback", Direction: drawer.Inflow,
			Category: "misc", Amount: d("10"), Description: "x",
			ActorID: "op-1", CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		return fmt.Errorf("forced failure")
	})
	require.Error(t, err)

	sh, err := store.GetShift(ctx, "shift-rollback")
	require.NoError(t, err)
	assert.Nil(t, sh, "rolled-back shift must not be visible")

	movements, err := store.Movements(ctx, "shift-rollback", drawer.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, movements)
}

func TestWithTx_ReadsSeeUncommittedWrites(t *testing.T) {
	// The tx-bound store must read its own writes: Open's pre-checks and
	// the closing derivation depend on it.
	store := newStore(t)
	ctx := context.Background()

	err := store.WithTx(ctx, func(s drawer.Store) error {
		if err := s.InsertShift(ctx, drawer.Shift{
			ID: "shift-tx", OperatorID: "op-1", Status: drawer.StatusOpen,
			OpenedAt: time.Now().UTC(), OpeningAmount: d("100"), CarryOver: decimal.Zero,
		}); err != nil {
			return err
		}
		sh, err := s.GetShift(ctx, "shift-tx")
		if err != nil {
			return err
		}
		if sh == nil {
			return fmt.Errorf("inserted shift invisible inside its own transaction")
		}
		return nil
	})
	assert.NoError(t, err)
}

// =============================================================================
// CLOSE GUARD
// =============================================================================

func TestCloseShift_SecondCloseRejected(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sh := openShift(t, store, "shift-1", "op-1")

	closure := drawer.ShiftClosure{
		ShiftID: sh.ID, Status: drawer.StatusClosed, ClosedAt: time.Now().UTC(),
		ClosingAmount: d("1600"), TheoreticalCash: d("1600"),
		Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
		Sales: sales.EmptySummary(),
	}
	require.NoError(t, store.CloseShift(ctx, closure))

	closure.ClosingAmount = d("999")
	err := store.CloseShift(ctx, closure)
	assert.ErrorIs(t, err, drawer.ErrShiftAlreadyClosed)

	stored, err := store.GetShift(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, stored.ClosingAmount.Equal(d("1600")), "first closure stands")
}

func TestCloseShift_UnknownShift(t *testing.T) {
	store := newStore(t)
	err := store.CloseShift(context.Background(), drawer.ShiftClosure{
		ShiftID: "nope", Status: drawer.StatusClosed, ClosedAt: time.Now().UTC(),
		ClosingAmount: d("1"), TheoreticalCash: d("1"),
		Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
		Sales: sales.EmptySummary(),
	})
	assert.ErrorIs(t, err, drawer.ErrShiftNotFound)
}

func TestCloseShift_PersistsReconciliationRoundTrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sh := openShift(t, store, "shift-1", "op-1")

	summary := sales.EmptySummary()
	summary = summary.Add(sales.MethodCash, d("300.10"))
	summary = summary.Add(sales.MethodCard, d("450.25"))

	closedAt := time.Now().UTC()
	note := drawer.Note{At: closedAt, Actor: "op-1", Text: "till counted twice"}
	require.NoError(t, store.CloseShift(ctx, drawer.ShiftClosure{
		ShiftID: sh.ID, Status: drawer.StatusClosed, ClosedAt: closedAt,
		ClosingAmount: d("1550.55"), TheoreticalCash: d("1600.55"),
		Variance: d("-50"), VarianceClass: drawer.VarianceShortage,
		Sales: summary, Note: &note,
	}))

	stored, err := store.GetShift(ctx, sh.ID)
	require.NoError(t, err)
	assert.Equal(t, drawer.StatusClosed, stored.Status)
	assert.True(t, stored.ClosingAmount.Equal(d("1550.55")))
	assert.True(t, stored.TheoreticalCash.Equal(d("1600.55")))
	assert.True(t, stored.Variance.Equal(d("-50")))
	assert.Equal(t, drawer.VarianceShortage, stored.VarianceClass)
	assert.True(t, stored.Sales.Cash.Equal(d("300.10")))
	assert.True(t, stored.Sales.Card.Equal(d("450.25")))
	assert.Equal(t, 2, stored.Sales.Count)
	require.Len(t, stored.Notes, 1)
	assert.Equal(t, "till counted twice", stored.Notes[0].Text)
}

// =============================================================================
// MOVEMENTS
// =============================================================================

func TestMovementTotals_DecimalExactness(t *testing.T) {
	// 30 entries of 0.10 must sum to exactly 3, not 2.9999999.
	store := newStore(t)
	ctx := context.Background()
	sh := openShift(t, store, "shift-1", "op-1")

	for i := 0; i < 30; i++ {
		require.NoError(t, store.AppendMovement(ctx, drawer.Movement{
			ID: fmt.Sprintf("mv-%d", i), ShiftID: sh.ID, Direction: drawer.Inflow,
			Category: "misc", Amount: d("0.10"), Description: "tenth",
			ActorID: "op-1", CreatedAt: time.Now().UTC(),
		}))
	}
	require.NoError(t, store.AppendMovement(ctx, drawer.Movement{
		ID: "mv-out", ShiftID: sh.ID, Direction: drawer.Outflow,
		Category: "misc", Amount: d("1.05"), Description: "out",
		ActorID: "op-1", CreatedAt: time.Now().UTC(),
	}))

	inflow, outflow, err := store.MovementTotals(ctx, sh.ID)
	require.NoError(t, err)
	assert.True(t, inflow.Equal(d("3")), "got %s", inflow)
	assert.True(t, outflow.Equal(d("1.05")))
}

func TestMovements_FilterAndOrder(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	sh := openShift(t, store, "shift-1", "op-1")

	base := time.Now().UTC()
	for i, spec := range []struct {
		dir      drawer.Direction
		category string
	}{
		{drawer.Inflow, "change_fund"},
		{drawer.Outflow, "supplier"},
		{drawer.Outflow, "Supplier"},
	} {
		require.NoError(t, store.AppendMovement(ctx, drawer.Movement{
			ID: fmt.Sprintf("mv-%d", i), ShiftID: sh.ID, Direction: spec.dir,
			Category: spec.category, Amount: d("10"), Description: "x",
			ActorID: "op-1", CreatedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	all, err := store.Movements(ctx, sh.ID, drawer.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "mv-2", all[0].ID, "newest first")

	suppliers, err := store.Movements(ctx, sh.ID, drawer.MovementFilter{Category: "supplier"})
	require.NoError(t, err)
	assert.Len(t, suppliers, 2, "category match is case-insensitive")
}

// =============================================================================
// SALES
// =============================================================================

func TestSumByPaymentMethod_ExcludesVoidedAndOutOfWindow(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	now := time.Now().UTC()

	post := func(id string, method sales.Method, amount string, at time.Time) {
		require.NoError(t, store.RecordSale(ctx, sales.Sale{
			ID: id, OperatorID: "op-1", Method: method, Amount: d(amount), CreatedAt: at,
		}))
	}
	post("s-before", sales.MethodCash, "99", now.Add(-time.Hour))
	post("s-cash", sales.MethodCash, "300", now)
	post("s-card", sales.MethodCard, "450", now)
	post("s-voided", sales.MethodCash, "77", now)
	require.NoError(t, store.VoidSale(ctx, "s-voided"))

	sum, err := store.SumByPaymentMethod(ctx, "op-1", now.Add(-time.Minute), nil)
	require.NoError(t, err)
	assert.True(t, sum.Cash.Equal(d("300")), "voided and pre-window sales excluded, got %s", sum.Cash)
	assert.True(t, sum.Card.Equal(d("450")))
	assert.Equal(t, 2, sum.Count)
}

func TestSumByPaymentMethod_SameSecondBoundary(t *testing.T) {
	// Sub-second timestamps must still resolve the window correctly: a
	// sale at .5s of a second is outside a window starting at .51s, and a
	// sale exactly on the window start is inside (>= is inclusive).
	store := newStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 29, 12, 0, 5, 0, time.UTC)

	require.NoError(t, store.RecordSale(ctx, sales.Sale{
		ID: "s-before", OperatorID: "op-1", Method: sales.MethodCash,
		Amount: d("100"), CreatedAt: base.Add(500 * time.Millisecond),
	}))
	require.NoError(t, store.RecordSale(ctx, sales.Sale{
		ID: "s-on-boundary", OperatorID: "op-1", Method: sales.MethodCash,
		Amount: d("40"), CreatedAt: base.Add(510 * time.Millisecond),
	}))

	sum, err := store.SumByPaymentMethod(ctx, "op-1", base.Add(510*time.Millisecond), nil)
	require.NoError(t, err)
	assert.True(t, sum.Cash.Equal(d("40")),
		"sale at .5s predates a window starting at .51s, got %s", sum.Cash)
	assert.Equal(t, 1, sum.Count)
}

func TestRecordSale_FailsClosed(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	err := store.RecordSale(ctx, sales.Sale{
		ID: "s-bad", OperatorID: "op-1", Method: "cheque", Amount: d("10"),
	})
	assert.Error(t, err, "unknown payment method must be rejected at ingestion")

	err = store.RecordSale(ctx, sales.Sale{
		ID: "s-neg", OperatorID: "op-1", Method: sales.MethodCash, Amount: d("-5"),
	})
	assert.Error(t, err)

	err = store.RecordSale(ctx, sales.Sale{
		ID: "s-items", OperatorID: "op-1", Method: sales.MethodCash,
		Amount: d("5"), ItemsJSON: "{not json",
	})
	assert.Error(t, err)
}

// =============================================================================
// LAST CLOSED SHIFT
// =============================================================================

func TestLastClosedShift_PicksNewestClosure(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()

	closeAt := func(id string, theoretical string, at time.Time) {
		require.NoError(t, store.InsertShift(ctx, drawer.Shift{
			ID: id, OperatorID: "op-1", Status: drawer.StatusOpen,
			OpenedAt: at.Add(-8 * time.Hour), OpeningAmount: d("100"), CarryOver: decimal.Zero,
		}))
		require.NoError(t, store.CloseShift(ctx, drawer.ShiftClosure{
			ShiftID: id, Status: drawer.StatusClosed, ClosedAt: at,
			ClosingAmount: d(theoretical), TheoreticalCash: d(theoretical),
			Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
			Sales: sales.EmptySummary(),
		}))
	}

	now := time.Now().UTC()
	closeAt("shift-old", "1000", now.Add(-48*time.Hour))
	closeAt("shift-new", "1600", now.Add(-1*time.Hour))

	last, err := store.LastClosedShift(ctx, "op-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "shift-new", last.ID)
	assert.True(t, last.TheoreticalCash.Equal(d("1600")))
}

func TestLastClosedShift_NoneClosed(t *testing.T) {
	store := newStore(t)
	last, err := store.LastClosedShift(context.Background(), "op-1")
	require.NoError(t, err)
	assert.Nil(t, last)
}

// =============================================================================
// HISTORY SOURCE
// =============================================================================

func TestClosedShifts_FilterAndPagination(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	require.NoError(t, store.SaveOperator(ctx, drawer.Operator{ID: "op-2", Name: "Berta", Role: "operator"}))

	now := time.Now().UTC()
	seed := func(id, operator string, closedAt time.Time) {
		require.NoError(t, store.InsertShift(ctx, drawer.Shift{
			ID: id, OperatorID: operator, Status: drawer.StatusOpen,
			OpenedAt: closedAt.Add(-8 * time.Hour), OpeningAmount: d("100"), CarryOver: decimal.Zero,
		}))
		require.NoError(t, store.AppendMovement(ctx, drawer.Movement{
			ID: id + "-mv", ShiftID: id, Direction: drawer.Inflow, Category: "misc",
			Amount: d("10"), Description: "x", ActorID: operator, CreatedAt: closedAt.Add(-time.Hour),
		}))
		require.NoError(t, store.CloseShift(ctx, drawer.ShiftClosure{
			ShiftID: id, Status: drawer.StatusClosed, ClosedAt: closedAt,
			ClosingAmount: d("110"), TheoreticalCash: d("110"),
			Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
			Sales: sales.EmptySummary(),
		}))
	}

	for i := 0; i < 5; i++ {
		seed(fmt.Sprintf("shift-a-%d", i), "op-1", now.Add(time.Duration(-i)*24*time.Hour))
	}
	seed("shift-b", "op-2", now.Add(-time.Hour))
	// Open shift must never appear in history.
	require.NoError(t, store.InsertShift(ctx, drawer.Shift{
		ID: "shift-open", OperatorID: "op-1", Status: drawer.StatusOpen,
		OpenedAt: now, OpeningAmount: d("100"), CarryOver: decimal.Zero,
	}))

	page1, total, err := store.ClosedShifts(ctx, history.Filter{OperatorID: "op-1", Page: 1, PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	require.Len(t, page1, 2)
	assert.Equal(t, "shift-a-0", page1[0].Shift.ID, "newest closure first")
	assert.Equal(t, 1, page1[0].MovementCount)
	assert.True(t, page1[0].InflowTotal.Equal(d("10")))

	page3, _, err := store.ClosedShifts(ctx, history.Filter{OperatorID: "op-1", Page: 3, PerPage: 2})
	require.NoError(t, err)
	assert.Len(t, page3, 1, "last page is partial")

	from := now.Add(-36 * time.Hour)
	recent, total, err := store.ClosedShifts(ctx, history.Filter{From: &from, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 3, total, "2 recent op-1 closures + op-2")
	assert.Len(t, recent, 3)
}

func TestClosedShifts_SubSecondRangeBoundary(t *testing.T) {
	// Two closures within the same second; a From cursor between them must
	// split them, sub-second precision included.
	store := newStore(t)
	ctx := context.Background()

	base := time.Date(2026, 8, 29, 18, 30, 7, 0, time.UTC)
	seed := func(id string, closedAt time.Time) {
		require.NoError(t, store.InsertShift(ctx, drawer.Shift{
			ID: id, OperatorID: "op-1", Status: drawer.StatusOpen,
			OpenedAt: closedAt.Add(-8 * time.Hour), OpeningAmount: d("100"), CarryOver: decimal.Zero,
		}))
		require.NoError(t, store.CloseShift(ctx, drawer.ShiftClosure{
			ShiftID: id, Status: drawer.StatusClosed, ClosedAt: closedAt,
			ClosingAmount: d("100"), TheoreticalCash: d("100"),
			Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
			Sales: sales.EmptySummary(),
		}))
	}
	seed("shift-early", base.Add(500*time.Millisecond))
	seed("shift-late", base.Add(510*time.Millisecond))

	from := base.Add(510 * time.Millisecond)
	rows, total, err := store.ClosedShifts(ctx, history.Filter{From: &from, Page: 1, PerPage: 10})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, rows, 1)
	assert.Equal(t, "shift-late", rows[0].Shift.ID)
}
