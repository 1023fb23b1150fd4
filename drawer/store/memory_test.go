/*
memory_test.go - Invariant tests for the in-memory store

The memory store must uphold the same guarantees as the SQLite store so
behavior tests are meaningful against either backend.
*/
package store

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compucol89/kiosco-sub004/drawer"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

func openShift(t *testing.T, m *Memory, id, operator string) drawer.Shift {
	t.Helper()
	sh := drawer.Shift{
		ID: id, OperatorID: operator, Status: drawer.StatusOpen,
		OpenedAt: time.Now().UTC(), OpeningAmount: d("100"), CarryOver: decimal.Zero,
	}
	require.NoError(t, m.InsertShift(context.Background(), sh))
	return sh
}

func TestMemory_SingleOpenShiftPerOperator(t *testing.T) {
	m := NewMemory()
	openShift(t, m, "shift-1", "op-1")

	err := m.InsertShift(context.Background(), drawer.Shift{
		ID: "shift-2", OperatorID: "op-1", Status: drawer.StatusOpen,
		OpenedAt: time.Now().UTC(), OpeningAmount: d("50"), CarryOver: decimal.Zero,
	})
	assert.ErrorIs(t, err, drawer.ErrShiftAlreadyOpen)
}

func TestMemory_WithTxRollsBackWholesale(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	openShift(t, m, "shift-1", "op-1")

	err := m.WithTx(ctx, func(s drawer.Store) error {
		if err := s.AppendMovement(ctx, drawer.Movement{
			ID: "mv-1", ShiftID: "shift-1", Direction: drawer.Inflow,
			Category: "misc", Amount: d("10"), Description: "x",
			ActorID: "op-1", CreatedAt: time.Now().UTC(),
		}); err != nil {
			return err
		}
		if err := s.AppendShiftNote(ctx, "shift-1", drawer.Note{
			At: time.Now().UTC(), Actor: "op-1", Text: "doomed note",
		}); err != nil {
			return err
		}
		return fmt.Errorf("forced failure")
	})
	require.Error(t, err)

	movements, err := m.Movements(ctx, "shift-1", drawer.MovementFilter{})
	require.NoError(t, err)
	assert.Empty(t, movements, "movement rolled back")

	sh, err := m.GetShift(ctx, "shift-1")
	require.NoError(t, err)
	assert.Empty(t, sh.Notes, "note rolled back")
}

func TestMemory_AppendMovementGuards(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()
	sh := openShift(t, m, "shift-1", "op-1")

	err := m.AppendMovement(ctx, drawer.Movement{
		ID: "mv-ghost", ShiftID: "ghost", Direction: drawer.Inflow,
		Category: "misc", Amount: d("1"), Description: "x",
		ActorID: "op-1", CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, drawer.ErrShiftNotFound)

	require.NoError(t, m.CloseShift(ctx, drawer.ShiftClosure{
		ShiftID: sh.ID, Status: drawer.StatusClosed, ClosedAt: time.Now().UTC(),
		ClosingAmount: d("100"), TheoreticalCash: d("100"),
		Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
	}))

	err = m.AppendMovement(ctx, drawer.Movement{
		ID: "mv-late", ShiftID: sh.ID, Direction: drawer.Inflow,
		Category: "misc", Amount: d("1"), Description: "x",
		ActorID: "op-1", CreatedAt: time.Now().UTC(),
	})
	assert.ErrorIs(t, err, drawer.ErrNoActiveShift)
}

func TestMemory_GetShiftReturnsCopy(t *testing.T) {
	// Mutating a returned shift must not leak into the store.
	m := NewMemory()
	ctx := context.Background()
	openShift(t, m, "shift-1", "op-1")

	first, err := m.GetShift(ctx, "shift-1")
	require.NoError(t, err)
	first.Notes = append(first.Notes, drawer.Note{Text: "tampered"})
	first.Status = drawer.StatusClosed

	second, err := m.GetShift(ctx, "shift-1")
	require.NoError(t, err)
	assert.Empty(t, second.Notes)
	assert.Equal(t, drawer.StatusOpen, second.Status)
}

func TestMemory_LastClosedShiftOrdering(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	closeAt := func(id string, at time.Time, theoretical string) {
		sh := drawer.Shift{
			ID: id, OperatorID: "op-1", Status: drawer.StatusOpen,
			OpenedAt: at.Add(-8 * time.Hour), OpeningAmount: d("100"), CarryOver: decimal.Zero,
		}
		require.NoError(t, m.InsertShift(ctx, sh))
		require.NoError(t, m.CloseShift(ctx, drawer.ShiftClosure{
			ShiftID: id, Status: drawer.StatusClosed, ClosedAt: at,
			ClosingAmount: d(theoretical), TheoreticalCash: d(theoretical),
			Variance: decimal.Zero, VarianceClass: drawer.VarianceExact,
		}))
	}

	now := time.Now().UTC()
	closeAt("shift-old", now.Add(-48*time.Hour), "1000")
	closeAt("shift-new", now.Add(-time.Hour), "1600")

	last, err := m.LastClosedShift(ctx, "op-1")
	require.NoError(t, err)
	require.NotNil(t, last)
	assert.Equal(t, "shift-new", last.ID)
}
