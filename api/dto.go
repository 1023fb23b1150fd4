/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY FIELDS:
  Amounts cross the wire as JSON strings ("1600.00") via decimal.Decimal;
  float64 never appears on a money field.

VALIDATION:
  Amount strings are parsed in handlers; domain validation happens in the
  drawer package. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: uses these types
  - drawer/types.go: the domain model behind them
*/
package api

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/compucol89/kiosco-sub004/drawer"
	"github.com/compucol89/kiosco-sub004/sales"
)

// =============================================================================
// REQUEST TYPES
// =============================================================================

// OpenShiftRequest opens a shift for an operator.
type OpenShiftRequest struct {
	OperatorID    string `json:"operator_id"`
	OpeningAmount string `json:"opening_amount"`
	Notes         string `json:"notes,omitempty"`

	// AcknowledgeDiscrepancy confirms an opening count that differs from the
	// previous shift's carry-over. Without it a mismatch returns 409 with a
	// verification payload and no shift is created.
	AcknowledgeDiscrepancy bool `json:"acknowledge_discrepancy,omitempty"`
}

// CloseShiftRequest reconciles and closes a shift.
type CloseShiftRequest struct {
	ShiftID       string `json:"shift_id"`
	ClosingAmount string `json:"closing_amount"`
	Notes         string `json:"notes,omitempty"`
}

// MovementRequest records a manual cash movement. Either ShiftID or
// OperatorID identifies the target; with only an operator the movement posts
// against that operator's open shift.
type MovementRequest struct {
	ShiftID     string `json:"shift_id,omitempty"`
	OperatorID  string `json:"operator_id,omitempty"`
	Direction   string `json:"direction"` // "inflow" | "outflow"
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Description string `json:"description"`
	Reference   string `json:"reference,omitempty"`
}

// EmergencyCloseRequest force-closes a shift without a manual count.
type EmergencyCloseRequest struct {
	ShiftID string `json:"shift_id"`
}

// NoteRequest appends an audit annotation to a shift.
type NoteRequest struct {
	Text string `json:"text"`
}

// CreateOperatorRequest registers a till operator.
type CreateOperatorRequest struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	TillID string `json:"till_id,omitempty"`
	Role   string `json:"role,omitempty"` // defaults to "operator"
}

// RecordSaleRequest posts a finalized sale (sales-pipeline stand-in).
type RecordSaleRequest struct {
	ID            string `json:"id"`
	OperatorID    string `json:"operator_id"`
	PaymentMethod string `json:"payment_method"`
	Amount        string `json:"amount"`
	ItemsJSON     string `json:"items,omitempty"`
}

// =============================================================================
// RESPONSE TYPES
// =============================================================================

// ShiftDTO represents a shift in API responses. Closing fields are omitted
// while the shift is open.
type ShiftDTO struct {
	ID              string           `json:"id"`
	OperatorID      string           `json:"operator_id"`
	Status          string           `json:"status"`
	OpenedAt        string           `json:"opened_at"`
	ClosedAt        string           `json:"closed_at,omitempty"`
	OpeningAmount   decimal.Decimal  `json:"opening_amount"`
	CarryOver       decimal.Decimal  `json:"carry_over"`
	ClosingAmount   *decimal.Decimal `json:"closing_amount,omitempty"`
	TheoreticalCash *decimal.Decimal `json:"theoretical_cash,omitempty"`
	Variance        *decimal.Decimal `json:"variance,omitempty"`
	VarianceClass   string           `json:"variance_class,omitempty"`
	Sales           *sales.Summary   `json:"sales,omitempty"`
	Notes           []drawer.Note    `json:"notes,omitempty"`
}

// ActiveShiftDTO is the live view of an open shift: every money figure is
// derived at request time from the movement and sales ledgers.
type ActiveShiftDTO struct {
	Shift           ShiftDTO        `json:"shift"`
	Sales           sales.Summary   `json:"sales"`
	InflowTotal     decimal.Decimal `json:"inflow_total"`
	OutflowTotal    decimal.Decimal `json:"outflow_total"`
	TheoreticalCash decimal.Decimal `json:"theoretical_cash"`
}

// MovementDTO represents a recorded movement.
type MovementDTO struct {
	ID          string          `json:"id"`
	ShiftID     string          `json:"shift_id"`
	Direction   string          `json:"direction"`
	Category    string          `json:"category"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Reference   string          `json:"reference,omitempty"`
	ActorID     string          `json:"actor_id"`
	CreatedAt   string          `json:"created_at"`
}

// OperatorDTO represents a registered operator.
type OperatorDTO struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	TillID string `json:"till_id,omitempty"`
	Role   string `json:"role"`
}

// VerificationDTO is the 409 payload for an unacknowledged carry-over
// mismatch at open.
type VerificationDTO struct {
	OperatorID        string          `json:"operator_id"`
	ExpectedCarryOver decimal.Decimal `json:"expected_carry_over"`
	Counted           decimal.Decimal `json:"counted"`
	Difference        decimal.Decimal `json:"difference"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toShiftDTO(s drawer.Shift) ShiftDTO {
	dto := ShiftDTO{
		ID:              s.ID,
		OperatorID:      s.OperatorID,
		Status:          string(s.Status),
		OpenedAt:        s.OpenedAt.Format(time.RFC3339),
		OpeningAmount:   s.OpeningAmount,
		CarryOver:       s.CarryOver,
		ClosingAmount:   s.ClosingAmount,
		TheoreticalCash: s.TheoreticalCash,
		Variance:        s.Variance,
		VarianceClass:   string(s.VarianceClass),
		Notes:           s.Notes,
	}
	if s.ClosedAt != nil {
		dto.ClosedAt = s.ClosedAt.Format(time.RFC3339)
		summary := s.Sales
		dto.Sales = &summary
	}
	return dto
}

func toActiveShiftDTO(v drawer.ShiftView) ActiveShiftDTO {
	return ActiveShiftDTO{
		Shift:           toShiftDTO(v.Shift),
		Sales:           v.Sales,
		InflowTotal:     v.InflowTotal,
		OutflowTotal:    v.OutflowTotal,
		TheoreticalCash: v.TheoreticalCash,
	}
}

func toMovementDTO(m drawer.Movement) MovementDTO {
	return MovementDTO{
		ID:          m.ID,
		ShiftID:     m.ShiftID,
		Direction:   string(m.Direction),
		Category:    m.Category,
		Amount:      m.Amount,
		Description: m.Description,
		Reference:   m.Reference,
		ActorID:     m.ActorID,
		CreatedAt:   m.CreatedAt.Format(time.RFC3339),
	}
}

func toMovementDTOs(ms []drawer.Movement) []MovementDTO {
	dtos := make([]MovementDTO, len(ms))
	for i, m := range ms {
		dtos[i] = toMovementDTO(m)
	}
	return dtos
}

func toOperatorDTO(op drawer.Operator) OperatorDTO {
	return OperatorDTO{ID: op.ID, Name: op.Name, TillID: op.TillID, Role: op.Role}
}
