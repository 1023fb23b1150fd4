/*
history_test.go - Reporter projection and pagination tests

The reporter is tested against a fake Source; the real SQL behind it is
covered by the store tests.
*/
package history

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/sales"
)

func d(s string) decimal.Decimal {
	v, err := decimal.NewFromString(s)
	if err != nil {
		panic(err)
	}
	return v
}

// fakeSource records the filter it was called with and returns canned rows.
type fakeSource struct {
	rows   []ClosedShift
	total  int
	filter Filter
	err    error
}

func (f *fakeSource) ClosedShifts(_ context.Context, filter Filter) ([]ClosedShift, int, error) {
	f.filter = filter
	if f.err != nil {
		return nil, 0, f.err
	}
	return f.rows, f.total, nil
}

func closedShiftRow(id string, openedAt, closedAt time.Time) ClosedShift {
	closing := d("1550")
	theoretical := d("1600")
	variance := d("-50")
	return ClosedShift{
		Shift: drawer.Shift{
			ID:              id,
			OperatorID:      "op-1",
			Status:          drawer.StatusClosed,
			OpenedAt:        openedAt,
			ClosedAt:        &closedAt,
			OpeningAmount:   d("1000"),
			CarryOver:       d("900"),
			ClosingAmount:   &closing,
			TheoreticalCash: &theoretical,
			Variance:        &variance,
			VarianceClass:   drawer.VarianceShortage,
			Sales:           sales.EmptySummary(),
		},
		MovementCount: 3,
		InflowTotal:   d("500"),
		OutflowTotal:  d("200"),
	}
}

// =============================================================================
// PROJECTION
// =============================================================================

func TestHistory_ProjectsClosedShift(t *testing.T) {
	openedAt := time.Date(2026, 8, 29, 8, 0, 0, 0, time.UTC)
	closedAt := openedAt.Add(8*time.Hour + 30*time.Minute)
	src := &fakeSource{rows: []ClosedShift{closedShiftRow("shift-1", openedAt, closedAt)}, total: 1}
	r := NewReporter(src)

	page, err := r.History(context.Background(), Filter{})
	require.NoError(t, err)
	require.Len(t, page.Entries, 1)

	e := page.Entries[0]
	assert.Equal(t, "shift-1", e.ShiftID)
	assert.Equal(t, drawer.StatusClosed, e.Status)
	assert.False(t, e.Emergency)
	assert.Equal(t, int64(510), e.DurationMinutes)
	assert.True(t, e.ClosingAmount.Equal(d("1550")))
	assert.True(t, e.TheoreticalCash.Equal(d("1600")))
	assert.True(t, e.Variance.Equal(d("-50")))
	assert.Equal(t, drawer.VarianceShortage, e.VarianceClass)
	assert.Equal(t, 3, e.MovementCount)
	assert.True(t, e.InflowTotal.Equal(d("500")))
}

func TestHistory_FlagsEmergencyClosure(t *testing.T) {
	openedAt := time.Now().UTC().Add(-2 * time.Hour)
	row := closedShiftRow("shift-1", openedAt, openedAt.Add(time.Hour))
	row.Shift.Status = drawer.StatusEmergencyClosed
	src := &fakeSource{rows: []ClosedShift{row}, total: 1}

	page, err := NewReporter(src).History(context.Background(), Filter{})
	require.NoError(t, err)
	assert.True(t, page.Entries[0].Emergency)
}

// =============================================================================
// PAGINATION
// =============================================================================

func TestHistory_PaginationDefaults(t *testing.T) {
	src := &fakeSource{total: 45}
	page, err := NewReporter(src).History(context.Background(), Filter{})
	require.NoError(t, err)

	assert.Equal(t, 1, src.filter.Page, "page clamps to 1")
	assert.Equal(t, DefaultPerPage, src.filter.PerPage)
	assert.Equal(t, 45, page.Total)
	assert.Equal(t, 3, page.TotalPages, "45 rows at 20 per page")
}

func TestHistory_PerPageClampedToMax(t *testing.T) {
	src := &fakeSource{}
	_, err := NewReporter(src).History(context.Background(), Filter{Page: -3, PerPage: 5000})
	require.NoError(t, err)
	assert.Equal(t, 1, src.filter.Page)
	assert.Equal(t, MaxPerPage, src.filter.PerPage)
}

func TestHistory_RejectsInvertedDateRange(t *testing.T) {
	from := time.Now().UTC()
	to := from.Add(-24 * time.Hour)
	src := &fakeSource{}

	_, err := NewReporter(src).History(context.Background(), Filter{From: &from, To: &to})
	assert.ErrorIs(t, err, drawer.ErrMissingField)
}

func TestHistory_EmptyResult(t *testing.T) {
	src := &fakeSource{}
	page, err := NewReporter(src).History(context.Background(), Filter{})
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Equal(t, 0, page.Total)
	assert.Equal(t, 0, page.TotalPages)
}
