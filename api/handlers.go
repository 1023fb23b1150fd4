/*
handlers.go - HTTP API handlers for the cash-drawer service

PURPOSE:
  Exposes the shift reconciliation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Shifts:
    GET    /api/shifts/active          Live view of the caller's open shift
    POST   /api/shifts/open            Open a shift (carry-over verified)
    POST   /api/shifts/close           Reconcile and close
    GET    /api/shifts/{id}            Shift by id
    GET    /api/shifts/{id}/movements  Movement ledger for a shift
    POST   /api/shifts/{id}/notes      Append audit note (works after close)
    POST   /api/shifts/movements       Record a manual cash movement
    GET    /api/shifts/history         Paginated closed-shift history

  Admin:
    POST   /api/admin/shifts/emergency-close  Force close (admin role)

  Operators:
    GET    /api/operators              List registered operators
    GET    /api/operators/{id}         Operator by id
    POST   /api/operators              Register an operator

  Sales (pipeline stand-in):
    POST   /api/sales                  Post a finalized sale
    POST   /api/sales/{id}/void        Void a sale

ERROR HANDLING:
  Domain errors map onto HTTP status via their category:
  - 400: validation errors (bad amounts, missing fields)
  - 404: unknown shift/operator
  - 409: invariant conflicts (second open shift, closed-shift writes) and
         pending carry-over verification (with a verification payload)
  - 500: storage errors

SEE ALSO:
  - dto.go: request/response data structures
  - server.go: router setup and middleware
  - drawer/errors.go: the error taxonomy mapped here
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/auth"
	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/history"
	"github.com/compucol89/kiosco-sub004/sales"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Manager  *drawer.Manager
	Reporter *history.Reporter

	Operators OperatorRegistry
	Sales     SalesRecorder
}

// OperatorRegistry is the operator registry surface used by the handlers.
// The sqlite store implements it; tests use the in-memory store.
type OperatorRegistry interface {
	SaveOperator(ctx context.Context, op drawer.Operator) error
	GetOperator(ctx context.Context, id string) (*drawer.Operator, error)
	ListOperators(ctx context.Context) ([]drawer.Operator, error)
}

// SalesRecorder is the sales-pipeline stand-in surface.
type SalesRecorder interface {
	RecordSale(ctx context.Context, s sales.Sale) error
	VoidSale(ctx context.Context, id string) error
}

// NewHandler creates a handler wired to the given dependencies.
func NewHandler(manager *drawer.Manager, reporter *history.Reporter, operators OperatorRegistry, salesRec SalesRecorder) *Handler {
	return &Handler{
		Manager:   manager,
		Reporter:  reporter,
		Operators: operators,
		Sales:     salesRec,
	}
}

// =============================================================================
// SHIFT HANDLERS
// =============================================================================

// GetActiveShift returns the live derived view of an operator's open shift.
// GET /api/shifts/active?operator_id=...
func (h *Handler) GetActiveShift(w http.ResponseWriter, r *http.Request) {
	operatorID := r.URL.Query().Get("operator_id")
	if operatorID == "" {
		if claims := auth.FromContext(r.Context()); claims != nil {
			operatorID = claims.OperatorID
		}
	}
	if operatorID == "" {
		writeError(w, http.StatusBadRequest, "operator_id is required", nil)
		return
	}

	view, err := h.Manager.ActiveShift(r.Context(), operatorID)
	if err != nil {
		if errors.Is(err, drawer.ErrNoActiveShift) {
			writeError(w, http.StatusNotFound, "no active shift for operator", nil)
			return
		}
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toActiveShiftDTO(*view))
}

// OpenShift opens a new shift.
// POST /api/shifts/open
func (h *Handler) OpenShift(w http.ResponseWriter, r *http.Request) {
	var req OpenShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount(req.OpeningAmount, "opening_amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	shift, err := h.Manager.Open(r.Context(), drawer.OpenParams{
		OperatorID:             req.OperatorID,
		CountedOpeningCash:     amount,
		Notes:                  req.Notes,
		AcknowledgeDiscrepancy: req.AcknowledgeDiscrepancy,
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toShiftDTO(*shift))
}

// CloseShift reconciles and closes an open shift.
// POST /api/shifts/close
func (h *Handler) CloseShift(w http.ResponseWriter, r *http.Request) {
	var req CloseShiftRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ShiftID == "" {
		writeError(w, http.StatusBadRequest, "shift_id is required", nil)
		return
	}

	amount, err := parseAmount(req.ClosingAmount, "closing_amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	shift, err := h.Manager.Close(r.Context(), drawer.CloseParams{
		ShiftID:            req.ShiftID,
		CountedClosingCash: amount,
		Notes:              req.Notes,
		ActorID:            actorID(r),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*shift))
}

// GetShift returns a shift by id.
// GET /api/shifts/{id}
func (h *Handler) GetShift(w http.ResponseWriter, r *http.Request) {
	shift, err := h.Manager.Shift(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*shift))
}

// EmergencyClose force-closes a shift without a manual count. Mounted under
// /api/admin and gated on the admin role; this is a distinct capability, not
// a variant of the regular close.
// POST /api/admin/shifts/emergency-close
func (h *Handler) EmergencyClose(w http.ResponseWriter, r *http.Request) {
	var req EmergencyCloseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ShiftID == "" {
		writeError(w, http.StatusBadRequest, "shift_id is required", nil)
		return
	}

	shift, err := h.Manager.EmergencyClose(r.Context(), req.ShiftID, actorID(r))
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toShiftDTO(*shift))
}

// AppendNote adds an audit annotation to a shift. Notes remain writable
// after close; everything else does not.
// POST /api/shifts/{id}/notes
func (h *Handler) AppendNote(w http.ResponseWriter, r *http.Request) {
	var req NoteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	note, err := h.Manager.AppendNote(r.Context(), chi.URLParam(r, "id"), actorID(r), req.Text)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, note)
}

// =============================================================================
// MOVEMENT HANDLERS
// =============================================================================

// RecordMovement appends a manual cash movement to an open shift.
// POST /api/shifts/movements
func (h *Handler) RecordMovement(w http.ResponseWriter, r *http.Request) {
	var req MovementRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	movement, err := h.Manager.RecordMovement(r.Context(), drawer.MovementParams{
		ShiftID:     req.ShiftID,
		OperatorID:  req.OperatorID,
		Direction:   drawer.Direction(req.Direction),
		Category:    req.Category,
		Amount:      amount,
		Description: req.Description,
		Reference:   req.Reference,
		ActorID:     actorID(r),
	})
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toMovementDTO(*movement))
}

// ListMovements returns a shift's movement ledger, newest first.
// GET /api/shifts/{id}/movements?direction=&category=
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	filter := drawer.MovementFilter{
		Direction: drawer.Direction(r.URL.Query().Get("direction")),
		Category:  r.URL.Query().Get("category"),
	}
	if filter.Direction != "" {
		if _, err := drawer.ParseDirection(string(filter.Direction)); err != nil {
			writeError(w, http.StatusBadRequest, err.Error(), nil)
			return
		}
	}

	movements, err := h.Manager.Movements(r.Context(), chi.URLParam(r, "id"), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMovementDTOs(movements))
}

// =============================================================================
// HISTORY HANDLER
// =============================================================================

// GetHistory returns paginated closed-shift projections.
// GET /api/shifts/history?operator_id=&from=&to=&page=&per_page=
func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := history.Filter{OperatorID: q.Get("operator_id")}

	if raw := q.Get("from"); raw != "" {
		t, err := parseHistoryTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (use RFC3339 or YYYY-MM-DD)", err)
			return
		}
		filter.From = &t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := parseHistoryTime(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (use RFC3339 or YYYY-MM-DD)", err)
			return
		}
		filter.To = &t
	}
	filter.Page, _ = strconv.Atoi(q.Get("page"))
	filter.PerPage, _ = strconv.Atoi(q.Get("per_page"))

	page, err := h.Reporter.History(r.Context(), filter)
	if err != nil {
		h.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// parseHistoryTime accepts RFC3339 timestamps or plain dates.
func parseHistoryTime(raw string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02", raw)
}

// =============================================================================
// OPERATOR HANDLERS
// =============================================================================

// ListOperators returns registered operators.
// GET /api/operators
func (h *Handler) ListOperators(w http.ResponseWriter, r *http.Request) {
	operators, err := h.Operators.ListOperators(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list operators", err)
		return
	}
	dtos := make([]OperatorDTO, len(operators))
	for i, op := range operators {
		dtos[i] = toOperatorDTO(op)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetOperator returns a single operator.
// GET /api/operators/{id}
func (h *Handler) GetOperator(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	op, err := h.Operators.GetOperator(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load operator", err)
		return
	}
	if op == nil {
		writeError(w, http.StatusNotFound, "Operator not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toOperatorDTO(*op))
}

// CreateOperator registers a till operator.
// POST /api/operators
func (h *Handler) CreateOperator(w http.ResponseWriter, r *http.Request) {
	var req CreateOperatorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	role := req.Role
	if role == "" {
		role = auth.RoleOperator
	}
	if role != auth.RoleOperator && role != auth.RoleAdmin {
		writeError(w, http.StatusBadRequest, "role must be 'operator' or 'admin'", nil)
		return
	}

	op := drawer.Operator{ID: req.ID, Name: req.Name, TillID: req.TillID, Role: role}
	if err := h.Operators.SaveOperator(r.Context(), op); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save operator", err)
		return
	}
	writeJSON(w, http.StatusCreated, toOperatorDTO(op))
}

// =============================================================================
// SALES HANDLERS (pipeline stand-in)
// =============================================================================

// RecordSale posts a finalized sale the way the sales pipeline would.
// POST /api/sales
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	amount, err := parseAmount(req.Amount, "amount")
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}

	sale := sales.Sale{
		ID:         req.ID,
		OperatorID: req.OperatorID,
		Method:     sales.Method(req.PaymentMethod),
		Amount:     amount,
		ItemsJSON:  req.ItemsJSON,
		CreatedAt:  time.Now().UTC(),
	}
	if err := h.Sales.RecordSale(r.Context(), sale); err != nil {
		writeError(w, http.StatusBadRequest, err.Error(), nil)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"id": sale.ID, "status": "recorded"})
}

// VoidSale voids a sale; drawer aggregates reflect it on the next read.
// POST /api/sales/{id}/void
func (h *Handler) VoidSale(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.Sales.VoidSale(r.Context(), id); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to void sale", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"id": id, "status": "voided"})
}

// =============================================================================
// ERROR MAPPING AND HELPERS
// =============================================================================

// writeDomainError maps the drawer error taxonomy onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, err error) {
	var verification *drawer.VerificationRequiredError
	if errors.As(err, &verification) {
		writeJSON(w, http.StatusConflict, ErrorResponse{
			Error: verification.Error(),
			Code:  "verification_required",
			Details: VerificationDTO{
				OperatorID:        verification.OperatorID,
				ExpectedCarryOver: verification.Expected,
				Counted:           verification.Counted,
				Difference:        verification.Difference,
			},
		})
		return
	}

	switch {
	case drawer.IsClientError(err):
		writeError(w, http.StatusBadRequest, err.Error(), nil)
	case drawer.IsNotFound(err):
		writeError(w, http.StatusNotFound, err.Error(), nil)
	case drawer.IsConflict(err):
		writeError(w, http.StatusConflict, err.Error(), nil)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseAmount(raw, field string) (decimal.Decimal, error) {
	if raw == "" {
		return decimal.Zero, &drawer.MissingFieldError{Field: field}
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, &drawer.InvalidAmountError{Field: field, Reason: "not a valid decimal amount"}
	}
	return d, nil
}

// actorID resolves who performed the request from the auth claims.
func actorID(r *http.Request) string {
	if claims := auth.FromContext(r.Context()); claims != nil {
		return claims.OperatorID
	}
	return ""
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}
