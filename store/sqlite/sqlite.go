/*
Package sqlite provides the SQLite-backed implementation of the storage
interfaces.

PURPOSE:
  Implements drawer.TxStore, drawer.SalesLedger and history.Source using
  SQLite. In production the same patterns apply to PostgreSQL - only minor
  SQL dialect differences (the partial unique index translates directly).

INTERFACES IMPLEMENTED:
  drawer.TxStore:     shift + movement persistence with transactions
  drawer.SalesLedger: per-method aggregates over finalized sales
  history.Source:     closed-shift projections

INVARIANT ENFORCEMENT:
  The single-open-shift-per-operator invariant lives here, not in request
  handling:

    CREATE UNIQUE INDEX idx_shifts_one_open
        ON shifts(operator_id) WHERE status = 'open';

  Two concurrent opens race to this index; the loser surfaces as
  drawer.ErrShiftAlreadyOpen.

APPEND-ONLY ENFORCEMENT:
  No UPDATE or DELETE statement exists against the movements table.
  Shifts receive exactly one closing UPDATE, guarded by status = 'open';
  afterwards only the notes column is writable.

MONEY:
  All amounts are stored as decimal strings and summed in Go with
  shopspring/decimal. SQL SUM() over these columns would coerce to binary
  floats, which is exactly the rounding the decimal type exists to avoid.

WAL MODE:
  Opened with WAL and foreign keys on. A single connection plus a mutex
  serializes writers; with PostgreSQL the database's own concurrency
  control takes over.

SEE ALSO:
  - drawer/store.go: interface definitions
  - drawer/store/memory.go: in-memory implementation for tests
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/history"
	"github.com/compucol89/kiosco-sub004/sales"
)

// timeLayout is the storage format for timestamps. Fractional seconds are
// fixed-width so the strings sort lexicographically; RFC3339Nano trims
// trailing zeros and would break the >= / <= window comparisons in SQL
// ("...05.5Z" sorts after "...05.51Z"). Parsing stays RFC3339Nano, which
// accepts both forms.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

// Store implements all storage interfaces using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: the pool would otherwise hand :memory: callers
	// separate databases, and the mutex serializes writers anyway.
	db.SetMaxOpenConns(1)

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Operators (till registry)
	CREATE TABLE IF NOT EXISTS operators (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		till_id TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL DEFAULT 'operator',
		created_at TEXT NOT NULL
	);

	-- Shifts (one custody period per row)
	CREATE TABLE IF NOT EXISTS shifts (
		id TEXT PRIMARY KEY,
		operator_id TEXT NOT NULL REFERENCES operators(id),
		status TEXT NOT NULL,
		opened_at TEXT NOT NULL,
		closed_at TEXT,
		opening_amount TEXT NOT NULL,
		carry_over TEXT NOT NULL,
		closing_amount TEXT,
		theoretical_cash TEXT,
		variance TEXT,
		variance_class TEXT,
		cash_sales TEXT,
		card_sales TEXT,
		transfer_sales TEXT,
		digital_sales TEXT,
		sales_count INTEGER,
		notes_json TEXT NOT NULL DEFAULT '[]'
	);

	-- CRITICAL: one open shift per operator. Enforced here so two
	-- concurrent opens cannot both succeed regardless of what request
	-- handlers checked first.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_shifts_one_open
		ON shifts(operator_id) WHERE status = 'open';

	CREATE INDEX IF NOT EXISTS idx_shifts_operator_closed
		ON shifts(operator_id, closed_at DESC) WHERE closed_at IS NOT NULL;
	CREATE INDEX IF NOT EXISTS idx_shifts_status
		ON shifts(status);

	-- Movements (append-only manual cash ledger)
	CREATE TABLE IF NOT EXISTS movements (
		id TEXT PRIMARY KEY,
		shift_id TEXT NOT NULL REFERENCES shifts(id),
		direction TEXT NOT NULL,
		category TEXT NOT NULL,
		amount TEXT NOT NULL,
		description TEXT NOT NULL,
		reference TEXT,
		actor_id TEXT NOT NULL,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_movements_shift
		ON movements(shift_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_movements_shift_direction
		ON movements(shift_id, direction);

	-- Sales (owned by the sales pipeline; the drawer core only reads
	-- aggregates over this table)
	CREATE TABLE IF NOT EXISTS sales (
		id TEXT PRIMARY KEY,
		operator_id TEXT NOT NULL,
		payment_method TEXT NOT NULL,
		amount TEXT NOT NULL,
		voided INTEGER NOT NULL DEFAULT 0,
		items_json TEXT,
		created_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_sales_operator_created
		ON sales(operator_id, created_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// dbtx is the common surface of *sql.DB and *sql.Tx the internals run on.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// =============================================================================
// TRANSACTIONS (drawer.TxStore)
// =============================================================================

// WithTx executes fn within one database transaction. The store handed to
// fn runs every read and write on that transaction.
func (s *Store) WithTx(ctx context.Context, fn func(store drawer.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(&txStore{q: sqlTx, parent: s}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// txStore binds the unlocked internals to one *sql.Tx. The outer WithTx
// holds the write lock for the duration.
type txStore struct {
	q      dbtx
	parent *Store
}

func (ts *txStore) InsertShift(ctx context.Context, sh drawer.Shift) error {
	return ts.parent.insertShift(ctx, ts.q, sh)
}
func (ts *txStore) GetShift(ctx context.Context, id string) (*drawer.Shift, error) {
	return ts.parent.getShift(ctx, ts.q, id)
}
func (ts *txStore) OpenShiftForOperator(ctx context.Context, op string) (*drawer.Shift, error) {
	return ts.parent.openShiftForOperator(ctx, ts.q, op)
}
func (ts *txStore) LastClosedShift(ctx context.Context, op string) (*drawer.Shift, error) {
	return ts.parent.lastClosedShift(ctx, ts.q, op)
}
func (ts *txStore) CloseShift(ctx context.Context, c drawer.ShiftClosure) error {
	return ts.parent.closeShift(ctx, ts.q, c)
}
func (ts *txStore) AppendShiftNote(ctx context.Context, id string, n drawer.Note) error {
	return ts.parent.appendShiftNote(ctx, ts.q, id, n)
}
func (ts *txStore) AppendMovement(ctx context.Context, m drawer.Movement) error {
	return ts.parent.appendMovement(ctx, ts.q, m)
}
func (ts *txStore) Movements(ctx context.Context, id string, f drawer.MovementFilter) ([]drawer.Movement, error) {
	return ts.parent.listMovements(ctx, ts.q, id, f)
}
func (ts *txStore) MovementTotals(ctx context.Context, id string) (decimal.Decimal, decimal.Decimal, error) {
	return ts.parent.movementTotals(ctx, ts.q, id)
}
func (ts *txStore) GetOperator(ctx context.Context, id string) (*drawer.Operator, error) {
	return ts.parent.getOperator(ctx, ts.q, id)
}
func (ts *txStore) SumByPaymentMethod(ctx context.Context, op string, since time.Time, until *time.Time) (sales.Summary, error) {
	return ts.parent.sumByPaymentMethod(ctx, ts.q, op, since, until)
}

// =============================================================================
// SHIFTS (drawer.Store)
// =============================================================================

func (s *Store) InsertShift(ctx context.Context, sh drawer.Shift) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertShift(ctx, s.db, sh)
}

func (s *Store) insertShift(ctx context.Context, q dbtx, sh drawer.Shift) error {
	notes := sh.Notes
	if notes == nil {
		notes = []drawer.Note{}
	}
	notesJSON, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encoding notes: %w", err)
	}

	_, err = q.ExecContext(ctx, `
		INSERT INTO shifts (id, operator_id, status, opened_at, opening_amount, carry_over, notes_json)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sh.ID, sh.OperatorID, string(sh.Status),
		sh.OpenedAt.UTC().Format(timeLayout),
		sh.OpeningAmount.String(), sh.CarryOver.String(),
		string(notesJSON),
	)
	if err != nil {
		if isOneOpenShiftViolation(err) {
			return drawer.ErrShiftAlreadyOpen
		}
		return fmt.Errorf("failed to insert shift: %w", err)
	}
	return nil
}

const shiftColumns = `id, operator_id, status, opened_at, closed_at,
	opening_amount, carry_over, closing_amount, theoretical_cash,
	variance, variance_class, cash_sales, card_sales, transfer_sales,
	digital_sales, sales_count, notes_json`

func (s *Store) GetShift(ctx context.Context, id string) (*drawer.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getShift(ctx, s.db, id)
}

func (s *Store) getShift(ctx context.Context, q dbtx, id string) (*drawer.Shift, error) {
	return s.queryShift(ctx, q, `SELECT `+shiftColumns+` FROM shifts WHERE id = ?`, id)
}

func (s *Store) OpenShiftForOperator(ctx context.Context, operatorID string) (*drawer.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.openShiftForOperator(ctx, s.db, operatorID)
}

func (s *Store) openShiftForOperator(ctx context.Context, q dbtx, operatorID string) (*drawer.Shift, error) {
	return s.queryShift(ctx, q,
		`SELECT `+shiftColumns+` FROM shifts WHERE operator_id = ? AND status = ?`,
		operatorID, string(drawer.StatusOpen))
}

func (s *Store) LastClosedShift(ctx context.Context, operatorID string) (*drawer.Shift, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastClosedShift(ctx, s.db, operatorID)
}

func (s *Store) lastClosedShift(ctx context.Context, q dbtx, operatorID string) (*drawer.Shift, error) {
	return s.queryShift(ctx, q,
		`SELECT `+shiftColumns+` FROM shifts
		 WHERE operator_id = ? AND closed_at IS NOT NULL
		 ORDER BY closed_at DESC LIMIT 1`,
		operatorID)
}

func (s *Store) queryShift(ctx context.Context, q dbtx, query string, args ...any) (*drawer.Shift, error) {
	row := q.QueryRowContext(ctx, query, args...)
	sh, err := scanShift(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan shift: %w", err)
	}
	return sh, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanShift(r rowScanner) (*drawer.Shift, error) {
	var (
		sh            drawer.Shift
		status        string
		openedAt      string
		closedAt      sql.NullString
		opening       string
		carry         string
		closing       sql.NullString
		theoretical   sql.NullString
		variance      sql.NullString
		varianceClass sql.NullString
		cashSales     sql.NullString
		cardSales     sql.NullString
		transferSales sql.NullString
		digitalSales  sql.NullString
		salesCount    sql.NullInt64
		notesJSON     string
	)

	err := r.Scan(&sh.ID, &sh.OperatorID, &status, &openedAt, &closedAt,
		&opening, &carry, &closing, &theoretical,
		&variance, &varianceClass, &cashSales, &cardSales, &transferSales,
		&digitalSales, &salesCount, &notesJSON)
	if err != nil {
		return nil, err
	}

	sh.Status = drawer.ShiftStatus(status)
	if sh.OpenedAt, err = time.Parse(time.RFC3339Nano, openedAt); err != nil {
		return nil, fmt.Errorf("parsing opened_at: %w", err)
	}
	if closedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, closedAt.String)
		if err != nil {
			return nil, fmt.Errorf("parsing closed_at: %w", err)
		}
		sh.ClosedAt = &t
	}

	if sh.OpeningAmount, err = decimal.NewFromString(opening); err != nil {
		return nil, fmt.Errorf("parsing opening_amount: %w", err)
	}
	if sh.CarryOver, err = decimal.NewFromString(carry); err != nil {
		return nil, fmt.Errorf("parsing carry_over: %w", err)
	}
	if sh.ClosingAmount, err = nullDecimal(closing); err != nil {
		return nil, fmt.Errorf("parsing closing_amount: %w", err)
	}
	if sh.TheoreticalCash, err = nullDecimal(theoretical); err != nil {
		return nil, fmt.Errorf("parsing theoretical_cash: %w", err)
	}
	if sh.Variance, err = nullDecimal(variance); err != nil {
		return nil, fmt.Errorf("parsing variance: %w", err)
	}
	sh.VarianceClass = drawer.VarianceClass(varianceClass.String)

	sh.Sales = sales.EmptySummary()
	if cashSales.Valid {
		if sh.Sales.Cash, err = decimal.NewFromString(cashSales.String); err != nil {
			return nil, fmt.Errorf("parsing cash_sales: %w", err)
		}
		if sh.Sales.Card, err = decimal.NewFromString(cardSales.String); err != nil {
			return nil, fmt.Errorf("parsing card_sales: %w", err)
		}
		if sh.Sales.Transfer, err = decimal.NewFromString(transferSales.String); err != nil {
			return nil, fmt.Errorf("parsing transfer_sales: %w", err)
		}
		if sh.Sales.Digital, err = decimal.NewFromString(digitalSales.String); err != nil {
			return nil, fmt.Errorf("parsing digital_sales: %w", err)
		}
		sh.Sales.Count = int(salesCount.Int64)
	}

	if notesJSON != "" {
		if err := json.Unmarshal([]byte(notesJSON), &sh.Notes); err != nil {
			return nil, fmt.Errorf("decoding notes: %w", err)
		}
	}
	return &sh, nil
}

func (s *Store) CloseShift(ctx context.Context, c drawer.ShiftClosure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closeShift(ctx, s.db, c)
}

// closeShift is the shift's single closing UPDATE, guarded by the open
// status so a second close can never overwrite the first reconciliation.
func (s *Store) closeShift(ctx context.Context, q dbtx, c drawer.ShiftClosure) error {
	res, err := q.ExecContext(ctx, `
		UPDATE shifts SET
			status = ?, closed_at = ?, closing_amount = ?,
			theoretical_cash = ?, variance = ?, variance_class = ?,
			cash_sales = ?, card_sales = ?, transfer_sales = ?,
			digital_sales = ?, sales_count = ?
		WHERE id = ? AND status = ?`,
		string(c.Status), c.ClosedAt.UTC().Format(timeLayout),
		c.ClosingAmount.String(), c.TheoreticalCash.String(),
		c.Variance.String(), string(c.VarianceClass),
		c.Sales.Cash.String(), c.Sales.Card.String(),
		c.Sales.Transfer.String(), c.Sales.Digital.String(), c.Sales.Count,
		c.ShiftID, string(drawer.StatusOpen),
	)
	if err != nil {
		return fmt.Errorf("failed to close shift: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to close shift: %w", err)
	}
	if n == 0 {
		existing, err := s.getShift(ctx, q, c.ShiftID)
		if err != nil {
			return err
		}
		if existing == nil {
			return drawer.ErrShiftNotFound
		}
		return drawer.ErrShiftAlreadyClosed
	}

	if c.Note != nil {
		return s.appendShiftNote(ctx, q, c.ShiftID, *c.Note)
	}
	return nil
}

func (s *Store) AppendShiftNote(ctx context.Context, shiftID string, n drawer.Note) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendShiftNote(ctx, s.db, shiftID, n)
}

func (s *Store) appendShiftNote(ctx context.Context, q dbtx, shiftID string, n drawer.Note) error {
	var notesJSON string
	err := q.QueryRowContext(ctx, `SELECT notes_json FROM shifts WHERE id = ?`, shiftID).Scan(&notesJSON)
	if err == sql.ErrNoRows {
		return drawer.ErrShiftNotFound
	}
	if err != nil {
		return fmt.Errorf("loading notes: %w", err)
	}

	var notes []drawer.Note
	if notesJSON != "" {
		if err := json.Unmarshal([]byte(notesJSON), &notes); err != nil {
			return fmt.Errorf("decoding notes: %w", err)
		}
	}
	notes = append(notes, n)

	encoded, err := json.Marshal(notes)
	if err != nil {
		return fmt.Errorf("encoding notes: %w", err)
	}
	if _, err := q.ExecContext(ctx, `UPDATE shifts SET notes_json = ? WHERE id = ?`, string(encoded), shiftID); err != nil {
		return fmt.Errorf("appending note: %w", err)
	}
	return nil
}

// =============================================================================
// MOVEMENTS (append-only)
// =============================================================================

func (s *Store) AppendMovement(ctx context.Context, m drawer.Movement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.appendMovement(ctx, s.db, m)
}

func (s *Store) appendMovement(ctx context.Context, q dbtx, m drawer.Movement) error {
	_, err := q.ExecContext(ctx, `
		INSERT INTO movements (id, shift_id, direction, category, amount, description, reference, actor_id, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		m.ID, m.ShiftID, string(m.Direction), m.Category,
		m.Amount.String(), m.Description, nullString(m.Reference),
		m.ActorID, m.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to append movement: %w", err)
	}
	return nil
}

func (s *Store) Movements(ctx context.Context, shiftID string, f drawer.MovementFilter) ([]drawer.Movement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.listMovements(ctx, s.db, shiftID, f)
}

func (s *Store) listMovements(ctx context.Context, q dbtx, shiftID string, f drawer.MovementFilter) ([]drawer.Movement, error) {
	query := `
		SELECT id, shift_id, direction, category, amount, description, reference, actor_id, created_at
		FROM movements WHERE shift_id = ?`
	args := []any{shiftID}
	if f.Direction != "" {
		query += ` AND direction = ?`
		args = append(args, string(f.Direction))
	}
	if f.Category != "" {
		query += ` AND category = ? COLLATE NOCASE`
		args = append(args, f.Category)
	}
	query += ` ORDER BY created_at DESC`

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query movements: %w", err)
	}
	defer rows.Close()

	movements := make([]drawer.Movement, 0)
	for rows.Next() {
		m, err := scanMovement(rows)
		if err != nil {
			return nil, err
		}
		movements = append(movements, m)
	}
	return movements, rows.Err()
}

func scanMovement(rows *sql.Rows) (drawer.Movement, error) {
	var (
		m         drawer.Movement
		direction string
		amount    string
		reference sql.NullString
		createdAt string
	)
	err := rows.Scan(&m.ID, &m.ShiftID, &direction, &m.Category, &amount,
		&m.Description, &reference, &m.ActorID, &createdAt)
	if err != nil {
		return m, fmt.Errorf("failed to scan movement: %w", err)
	}

	m.Direction = drawer.Direction(direction)
	m.Reference = reference.String
	if m.Amount, err = decimal.NewFromString(amount); err != nil {
		return m, fmt.Errorf("parsing movement amount: %w", err)
	}
	if m.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return m, fmt.Errorf("parsing movement created_at: %w", err)
	}
	return m, nil
}

func (s *Store) MovementTotals(ctx context.Context, shiftID string) (decimal.Decimal, decimal.Decimal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.movementTotals(ctx, s.db, shiftID)
}

// movementTotals aggregates in Go over the stored decimal strings.
func (s *Store) movementTotals(ctx context.Context, q dbtx, shiftID string) (decimal.Decimal, decimal.Decimal, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT direction, amount FROM movements WHERE shift_id = ?`, shiftID)
	if err != nil {
		return decimal.Zero, decimal.Zero, fmt.Errorf("failed to query movement totals: %w", err)
	}
	defer rows.Close()

	inflow, outflow := decimal.Zero, decimal.Zero
	for rows.Next() {
		var direction, amount string
		if err := rows.Scan(&direction, &amount); err != nil {
			return decimal.Zero, decimal.Zero, err
		}
		d, err := decimal.NewFromString(amount)
		if err != nil {
			return decimal.Zero, decimal.Zero, fmt.Errorf("parsing movement amount: %w", err)
		}
		switch drawer.Direction(direction) {
		case drawer.Inflow:
			inflow = inflow.Add(d)
		case drawer.Outflow:
			outflow = outflow.Add(d)
		}
	}
	return inflow, outflow, rows.Err()
}

// =============================================================================
// OPERATORS
// =============================================================================

func (s *Store) SaveOperator(ctx context.Context, op drawer.Operator) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := op.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO operators (id, name, till_id, role, created_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			till_id = excluded.till_id,
			role = excluded.role`,
		op.ID, op.Name, op.TillID, op.Role,
		createdAt.UTC().Format(timeLayout),
	)
	return err
}

func (s *Store) GetOperator(ctx context.Context, id string) (*drawer.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.getOperator(ctx, s.db, id)
}

func (s *Store) getOperator(ctx context.Context, q dbtx, id string) (*drawer.Operator, error) {
	var (
		op        drawer.Operator
		createdAt string
	)
	err := q.QueryRowContext(ctx,
		`SELECT id, name, till_id, role, created_at FROM operators WHERE id = ?`, id,
	).Scan(&op.ID, &op.Name, &op.TillID, &op.Role, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	op.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	return &op, nil
}

func (s *Store) ListOperators(ctx context.Context) ([]drawer.Operator, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, name, till_id, role, created_at FROM operators ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var operators []drawer.Operator
	for rows.Next() {
		var (
			op        drawer.Operator
			createdAt string
		)
		if err := rows.Scan(&op.ID, &op.Name, &op.TillID, &op.Role, &createdAt); err != nil {
			return nil, err
		}
		op.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
		operators = append(operators, op)
	}
	return operators, rows.Err()
}

// =============================================================================
// SALES LEDGER (drawer.SalesLedger + pipeline stand-in)
// =============================================================================

// RecordSale posts a finalized sale the way the external pipeline would.
// Validation fails closed: an unclassifiable sale is rejected here rather
// than silently skewing drawer aggregates later.
func (s *Store) RecordSale(ctx context.Context, sale sales.Sale) error {
	if err := sale.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	createdAt := sale.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sales (id, operator_id, payment_method, amount, voided, items_json, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		sale.ID, sale.OperatorID, string(sale.Method), sale.Amount.String(),
		boolToInt(sale.Voided), nullString(sale.ItemsJSON),
		createdAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("failed to record sale: %w", err)
	}
	return nil
}

// VoidSale flags a sale as voided. Aggregates recompute on read, so the
// drawer's derived figures reflect the void immediately.
func (s *Store) VoidSale(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.ExecContext(ctx, `UPDATE sales SET voided = 1 WHERE id = ?`, id)
	return err
}

func (s *Store) SumByPaymentMethod(ctx context.Context, operatorID string, since time.Time, until *time.Time) (sales.Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sumByPaymentMethod(ctx, s.db, operatorID, since, until)
}

func (s *Store) sumByPaymentMethod(ctx context.Context, q dbtx, operatorID string, since time.Time, until *time.Time) (sales.Summary, error) {
	query := `
		SELECT payment_method, amount FROM sales
		WHERE operator_id = ? AND voided = 0 AND created_at >= ?`
	args := []any{operatorID, since.UTC().Format(timeLayout)}
	if until != nil {
		query += ` AND created_at <= ?`
		args = append(args, until.UTC().Format(timeLayout))
	}

	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return sales.Summary{}, fmt.Errorf("failed to query sales: %w", err)
	}
	defer rows.Close()

	sum := sales.EmptySummary()
	for rows.Next() {
		var methodRaw, amountRaw string
		if err := rows.Scan(&methodRaw, &amountRaw); err != nil {
			return sales.Summary{}, err
		}
		// Fail closed: an unknown method rejects the whole aggregate
		// rather than producing a silently-wrong total.
		method, err := sales.ParseMethod(methodRaw)
		if err != nil {
			return sales.Summary{}, err
		}
		amount, err := decimal.NewFromString(amountRaw)
		if err != nil {
			return sales.Summary{}, fmt.Errorf("parsing sale amount: %w", err)
		}
		sum = sum.Add(method, amount)
	}
	return sum, rows.Err()
}

// =============================================================================
// HISTORY (history.Source)
// =============================================================================

// ClosedShifts returns one page of closed shifts, newest closure first,
// with their movement aggregates, plus the total match count.
func (s *Store) ClosedShifts(ctx context.Context, f history.Filter) ([]history.ClosedShift, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	where := `closed_at IS NOT NULL`
	args := []any{}
	if f.OperatorID != "" {
		where += ` AND operator_id = ?`
		args = append(args, f.OperatorID)
	}
	if f.From != nil {
		where += ` AND closed_at >= ?`
		args = append(args, f.From.UTC().Format(timeLayout))
	}
	if f.To != nil {
		where += ` AND closed_at <= ?`
		args = append(args, f.To.UTC().Format(timeLayout))
	}

	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM shifts WHERE `+where, args...,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count closed shifts: %w", err)
	}

	query := `SELECT ` + shiftColumns + ` FROM shifts WHERE ` + where +
		` ORDER BY closed_at DESC LIMIT ? OFFSET ?`
	args = append(args, f.PerPage, (f.Page-1)*f.PerPage)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query closed shifts: %w", err)
	}
	defer rows.Close()

	var shifts []*drawer.Shift
	for rows.Next() {
		sh, err := scanShift(rows)
		if err != nil {
			return nil, 0, err
		}
		shifts = append(shifts, sh)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	out := make([]history.ClosedShift, 0, len(shifts))
	for _, sh := range shifts {
		inflow, outflow, err := s.movementTotals(ctx, s.db, sh.ID)
		if err != nil {
			return nil, 0, err
		}
		var count int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM movements WHERE shift_id = ?`, sh.ID,
		).Scan(&count); err != nil {
			return nil, 0, err
		}
		out = append(out, history.ClosedShift{
			Shift:         *sh,
			MovementCount: count,
			InflowTotal:   inflow,
			OutflowTotal:  outflow,
		})
	}
	return out, total, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullDecimal(ns sql.NullString) (*decimal.Decimal, error) {
	if !ns.Valid {
		return nil, nil
	}
	d, err := decimal.NewFromString(ns.String)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

// isOneOpenShiftViolation detects the partial unique index firing. SQLite
// names the indexed column in the message
// ("UNIQUE constraint failed: shifts.operator_id").
func isOneOpenShiftViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") &&
		strings.Contains(msg, "shifts.operator_id")
}
