/*
Package history provides read-only projections over closed shifts.

PURPOSE:
  The audit/history reporter: paginated, filterable views of closed shifts
  for traceability. Consumers are the reporting and tax-invoice subsystems;
  nothing here mutates drawer state, and open shifts never appear (their
  money figures are not final).

PROJECTION SHAPE:
  Each entry flattens the persisted reconciliation result (opening,
  carry-over, theoretical cash, counted close, variance + classification)
  together with the movement aggregates and the per-method sales snapshot
  taken at close.

SEE ALSO:
  - drawer/manager.go: produces the closures projected here
  - store/sqlite: implements Source
*/
package history

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/sales"
)

// =============================================================================
// FILTER AND SOURCE
// =============================================================================

const (
	DefaultPerPage = 20
	MaxPerPage     = 100
)

// Filter narrows and paginates the closed-shift listing.
type Filter struct {
	From       *time.Time
	To         *time.Time
	OperatorID string
	Page       int // 1-based
	PerPage    int
}

// normalized clamps pagination and validates the date range.
func (f Filter) normalized() (Filter, error) {
	if f.From != nil && f.To != nil && f.From.After(*f.To) {
		return f, &drawer.MissingFieldError{Field: "date_range", Reason: "from is after to"}
	}
	if f.Page < 1 {
		f.Page = 1
	}
	if f.PerPage < 1 {
		f.PerPage = DefaultPerPage
	}
	if f.PerPage > MaxPerPage {
		f.PerPage = MaxPerPage
	}
	return f, nil
}

// ClosedShift is what a Source returns per row: the shift plus its movement
// aggregates.
type ClosedShift struct {
	Shift         drawer.Shift
	MovementCount int
	InflowTotal   decimal.Decimal
	OutflowTotal  decimal.Decimal
}

// Source lists closed shifts matching a filter, newest closure first,
// along with the total match count for pagination.
type Source interface {
	ClosedShifts(ctx context.Context, f Filter) ([]ClosedShift, int, error)
}

// =============================================================================
// REPORTER
// =============================================================================

// Entry is one closed shift in the history projection.
type Entry struct {
	ShiftID         string               `json:"shift_id"`
	OperatorID      string               `json:"operator_id"`
	Status          drawer.ShiftStatus   `json:"status"`
	Emergency       bool                 `json:"emergency"`
	OpenedAt        time.Time            `json:"opened_at"`
	ClosedAt        time.Time            `json:"closed_at"`
	DurationMinutes int64                `json:"duration_minutes"`
	OpeningAmount   decimal.Decimal      `json:"opening_amount"`
	CarryOver       decimal.Decimal      `json:"carry_over"`
	ClosingAmount   decimal.Decimal      `json:"closing_amount"`
	TheoreticalCash decimal.Decimal      `json:"theoretical_cash"`
	Variance        decimal.Decimal      `json:"variance"`
	VarianceClass   drawer.VarianceClass `json:"variance_class"`
	Sales           sales.Summary        `json:"sales"`
	MovementCount   int                  `json:"movement_count"`
	InflowTotal     decimal.Decimal      `json:"inflow_total"`
	OutflowTotal    decimal.Decimal      `json:"outflow_total"`
	Notes           []drawer.Note        `json:"notes,omitempty"`
}

// Page is one page of history entries.
type Page struct {
	Entries    []Entry `json:"entries"`
	Total      int     `json:"total"`
	Page       int     `json:"page"`
	PerPage    int     `json:"per_page"`
	TotalPages int     `json:"total_pages"`
}

type Reporter struct {
	src Source
}

func NewReporter(src Source) *Reporter {
	return &Reporter{src: src}
}

// History returns one page of closed-shift projections.
func (r *Reporter) History(ctx context.Context, f Filter) (*Page, error) {
	f, err := f.normalized()
	if err != nil {
		return nil, err
	}

	rows, total, err := r.src.ClosedShifts(ctx, f)
	if err != nil {
		return nil, err
	}

	page := &Page{
		Entries: make([]Entry, 0, len(rows)),
		Total:   total,
		Page:    f.Page,
		PerPage: f.PerPage,
	}
	page.TotalPages = (total + f.PerPage - 1) / f.PerPage

	for _, row := range rows {
		page.Entries = append(page.Entries, project(row))
	}
	return page, nil
}

func project(row ClosedShift) Entry {
	s := row.Shift
	e := Entry{
		ShiftID:       s.ID,
		OperatorID:    s.OperatorID,
		Status:        s.Status,
		Emergency:     s.Status == drawer.StatusEmergencyClosed,
		OpenedAt:      s.OpenedAt,
		OpeningAmount: s.OpeningAmount,
		CarryOver:     s.CarryOver,
		VarianceClass: s.VarianceClass,
		Sales:         s.Sales,
		MovementCount: row.MovementCount,
		InflowTotal:   row.InflowTotal,
		OutflowTotal:  row.OutflowTotal,
		Notes:         s.Notes,
	}
	if s.ClosedAt != nil {
		e.ClosedAt = *s.ClosedAt
		e.DurationMinutes = int64(s.ClosedAt.Sub(s.OpenedAt).Minutes())
	}
	if s.ClosingAmount != nil {
		e.ClosingAmount = *s.ClosingAmount
	}
	if s.TheoreticalCash != nil {
		e.TheoreticalCash = *s.TheoreticalCash
	}
	if s.Variance != nil {
		e.Variance = *s.Variance
	}
	return e
}
