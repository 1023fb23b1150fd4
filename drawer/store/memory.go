// Package store provides an in-memory drawer.TxStore for tests and dev.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/sales"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

// Memory keeps everything in maps behind one mutex. It enforces the same
// invariants as the SQLite store (single open shift per operator,
// append-only movements) so behavior tests can run against either.
type Memory struct {
	mu        sync.RWMutex
	shifts    map[string]drawer.Shift
	movements map[string][]drawer.Movement // keyed by shift id
	operators map[string]drawer.Operator
	sales     []sales.Sale
}

func NewMemory() *Memory {
	return &Memory{
		shifts:    make(map[string]drawer.Shift),
		movements: make(map[string][]drawer.Movement),
		operators: make(map[string]drawer.Operator),
	}
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn under the write lock against a snapshot-backed view: if fn
// fails, the pre-transaction state is restored wholesale, mirroring a
// database rollback.
func (m *Memory) WithTx(_ context.Context, fn func(drawer.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snap := m.snapshot()
	if err := fn(&txMemory{m}); err != nil {
		m.restore(snap)
		return err
	}
	return nil
}

type memSnapshot struct {
	shifts    map[string]drawer.Shift
	movements map[string][]drawer.Movement
	operators map[string]drawer.Operator
	sales     []sales.Sale
}

func (m *Memory) snapshot() memSnapshot {
	s := memSnapshot{
		shifts:    make(map[string]drawer.Shift, len(m.shifts)),
		movements: make(map[string][]drawer.Movement, len(m.movements)),
		operators: make(map[string]drawer.Operator, len(m.operators)),
		sales:     append([]sales.Sale(nil), m.sales...),
	}
	for k, v := range m.shifts {
		v.Notes = append([]drawer.Note(nil), v.Notes...)
		s.shifts[k] = v
	}
	for k, v := range m.movements {
		s.movements[k] = append([]drawer.Movement(nil), v...)
	}
	for k, v := range m.operators {
		s.operators[k] = v
	}
	return s
}

func (m *Memory) restore(s memSnapshot) {
	m.shifts = s.shifts
	m.movements = s.movements
	m.operators = s.operators
	m.sales = s.sales
}

// txMemory exposes the unlocked internals to a WithTx closure. The outer
// WithTx already holds the write lock.
type txMemory struct{ m *Memory }

func (t *txMemory) InsertShift(_ context.Context, s drawer.Shift) error { return t.m.insertShift(s) }
func (t *txMemory) GetShift(_ context.Context, id string) (*drawer.Shift, error) {
	return t.m.getShift(id), nil
}
func (t *txMemory) OpenShiftForOperator(_ context.Context, op string) (*drawer.Shift, error) {
	return t.m.openShiftFor(op), nil
}
func (t *txMemory) LastClosedShift(_ context.Context, op string) (*drawer.Shift, error) {
	return t.m.lastClosedShift(op), nil
}
func (t *txMemory) CloseShift(_ context.Context, c drawer.ShiftClosure) error {
	return t.m.closeShift(c)
}
func (t *txMemory) AppendShiftNote(_ context.Context, id string, n drawer.Note) error {
	return t.m.appendNote(id, n)
}
func (t *txMemory) AppendMovement(_ context.Context, mv drawer.Movement) error {
	return t.m.appendMovement(mv)
}
func (t *txMemory) Movements(_ context.Context, id string, f drawer.MovementFilter) ([]drawer.Movement, error) {
	return t.m.listMovements(id, f), nil
}
func (t *txMemory) MovementTotals(_ context.Context, id string) (decimal.Decimal, decimal.Decimal, error) {
	in, out := t.m.movementTotals(id)
	return in, out, nil
}
func (t *txMemory) GetOperator(_ context.Context, id string) (*drawer.Operator, error) {
	return t.m.getOperator(id), nil
}
func (t *txMemory) SumByPaymentMethod(_ context.Context, op string, since time.Time, until *time.Time) (sales.Summary, error) {
	return t.m.sumSales(op, since, until)
}

// =============================================================================
// PUBLIC (LOCKED) METHODS - drawer.Store
// =============================================================================

func (m *Memory) InsertShift(_ context.Context, s drawer.Shift) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.insertShift(s)
}

func (m *Memory) GetShift(_ context.Context, id string) (*drawer.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getShift(id), nil
}

func (m *Memory) OpenShiftForOperator(_ context.Context, op string) (*drawer.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.openShiftFor(op), nil
}

func (m *Memory) LastClosedShift(_ context.Context, op string) (*drawer.Shift, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.lastClosedShift(op), nil
}

func (m *Memory) CloseShift(_ context.Context, c drawer.ShiftClosure) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closeShift(c)
}

func (m *Memory) AppendShiftNote(_ context.Context, id string, n drawer.Note) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendNote(id, n)
}

func (m *Memory) AppendMovement(_ context.Context, mv drawer.Movement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.appendMovement(mv)
}

func (m *Memory) Movements(_ context.Context, id string, f drawer.MovementFilter) ([]drawer.Movement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.listMovements(id, f), nil
}

func (m *Memory) MovementTotals(_ context.Context, id string) (decimal.Decimal, decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	in, out := m.movementTotals(id)
	return in, out, nil
}

func (m *Memory) GetOperator(_ context.Context, id string) (*drawer.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.getOperator(id), nil
}

func (m *Memory) SumByPaymentMethod(_ context.Context, op string, since time.Time, until *time.Time) (sales.Summary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.sumSales(op, since, until)
}

// =============================================================================
// TEST FIXTURES - Operator registry and sales stand-in
// =============================================================================

func (m *Memory) SaveOperator(_ context.Context, op drawer.Operator) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.operators[op.ID] = op
	return nil
}

func (m *Memory) ListOperators(_ context.Context) ([]drawer.Operator, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]drawer.Operator, 0, len(m.operators))
	for _, op := range m.operators {
		out = append(out, op)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// RecordSale posts a finalized sale the way the external pipeline would.
func (m *Memory) RecordSale(_ context.Context, s sales.Sale) error {
	if err := s.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sales = append(m.sales, s)
	return nil
}

// VoidSale marks a sale voided; subsequent aggregate reads exclude it.
func (m *Memory) VoidSale(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i := range m.sales {
		if m.sales[i].ID == id {
			m.sales[i].Voided = true
			return nil
		}
	}
	return nil
}

// =============================================================================
// UNLOCKED INTERNALS
// =============================================================================

func (m *Memory) insertShift(s drawer.Shift) error {
	if open := m.openShiftFor(s.OperatorID); open != nil {
		return drawer.ErrShiftAlreadyOpen
	}
	s.Notes = append([]drawer.Note(nil), s.Notes...)
	m.shifts[s.ID] = s
	return nil
}

func (m *Memory) getShift(id string) *drawer.Shift {
	s, ok := m.shifts[id]
	if !ok {
		return nil
	}
	s.Notes = append([]drawer.Note(nil), s.Notes...)
	return &s
}

func (m *Memory) openShiftFor(op string) *drawer.Shift {
	for id, s := range m.shifts {
		if s.OperatorID == op && s.Status == drawer.StatusOpen {
			return m.getShift(id)
		}
	}
	return nil
}

func (m *Memory) lastClosedShift(op string) *drawer.Shift {
	var latest *drawer.Shift
	for id, s := range m.shifts {
		if s.OperatorID != op || !s.Status.Closed() || s.ClosedAt == nil {
			continue
		}
		if latest == nil || s.ClosedAt.After(*latest.ClosedAt) {
			latest = m.getShift(id)
		}
	}
	return latest
}

func (m *Memory) closeShift(c drawer.ShiftClosure) error {
	s, ok := m.shifts[c.ShiftID]
	if !ok {
		return drawer.ErrShiftNotFound
	}
	if s.Status.Closed() {
		return drawer.ErrShiftAlreadyClosed
	}
	closedAt := c.ClosedAt
	closing := c.ClosingAmount
	theoretical := c.TheoreticalCash
	variance := c.Variance
	s.Status = c.Status
	s.ClosedAt = &closedAt
	s.ClosingAmount = &closing
	s.TheoreticalCash = &theoretical
	s.Variance = &variance
	s.VarianceClass = c.VarianceClass
	s.Sales = c.Sales
	if c.Note != nil {
		s.Notes = append(s.Notes, *c.Note)
	}
	m.shifts[c.ShiftID] = s
	return nil
}

func (m *Memory) appendNote(id string, n drawer.Note) error {
	s, ok := m.shifts[id]
	if !ok {
		return drawer.ErrShiftNotFound
	}
	s.Notes = append(s.Notes, n)
	m.shifts[id] = s
	return nil
}

func (m *Memory) appendMovement(mv drawer.Movement) error {
	s, ok := m.shifts[mv.ShiftID]
	if !ok {
		return drawer.ErrShiftNotFound
	}
	if s.Status.Closed() {
		return drawer.ErrNoActiveShift
	}
	m.movements[mv.ShiftID] = append(m.movements[mv.ShiftID], mv)
	return nil
}

func (m *Memory) listMovements(id string, f drawer.MovementFilter) []drawer.Movement {
	out := make([]drawer.Movement, 0)
	for _, mv := range m.movements[id] {
		if f.Direction != "" && mv.Direction != f.Direction {
			continue
		}
		if f.Category != "" && !strings.EqualFold(mv.Category, f.Category) {
			continue
		}
		out = append(out, mv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *Memory) movementTotals(id string) (decimal.Decimal, decimal.Decimal) {
	in, out := decimal.Zero, decimal.Zero
	for _, mv := range m.movements[id] {
		switch mv.Direction {
		case drawer.Inflow:
			in = in.Add(mv.Amount)
		case drawer.Outflow:
			out = out.Add(mv.Amount)
		}
	}
	return in, out
}

func (m *Memory) getOperator(id string) *drawer.Operator {
	op, ok := m.operators[id]
	if !ok {
		return nil
	}
	return &op
}

func (m *Memory) sumSales(op string, since time.Time, until *time.Time) (sales.Summary, error) {
	sum := sales.EmptySummary()
	for _, s := range m.sales {
		if s.Voided || s.OperatorID != op || s.CreatedAt.Before(since) {
			continue
		}
		if until != nil && s.CreatedAt.After(*until) {
			continue
		}
		method, err := sales.ParseMethod(string(s.Method))
		if err != nil {
			// Fail closed: an unclassifiable sale poisons the aggregate.
			return sales.Summary{}, err
		}
		sum = sum.Add(method, s.Amount)
	}
	return sum, nil
}
