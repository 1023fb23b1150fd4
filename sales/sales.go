/*
Package sales defines the read-side contract with the sales-processing
pipeline.

PURPOSE:
  The cash-drawer core never owns sale records. It only consumes per-method
  aggregates over finalized sales for a given operator and time window. This
  package holds the aggregate types and the fail-closed validation applied
  at that boundary.

FAIL-CLOSED CONTRACT:
  Sale rows come from an external pipeline and are treated as untrusted:
  - An unknown payment method rejects the whole aggregate. We never bucket
    unrecognized methods into "other" or silently drop them, because a
    mislabeled cash sale would corrupt the theoretical-cash figure.
  - A malformed line-items payload rejects the sale at ingestion.

EVENTUAL CONSISTENCY:
  Aggregates are recomputed on every read. If a sale is voided after
  posting, the next read reflects it. Nothing here is cached.

SEE ALSO:
  - drawer/store.go: SalesLedger interface consumed by the core
  - store/sqlite: the persistent implementation
*/
package sales

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PAYMENT METHOD - Closed enum
// =============================================================================

// Method is a payment method on a finalized sale.
type Method string

const (
	MethodCash     Method = "cash"
	MethodCard     Method = "card"
	MethodTransfer Method = "transfer"
	MethodDigital  Method = "digital" // QR / wallet payments
)

// ParseMethod validates a raw payment-method string from the sales pipeline.
// Unknown methods are an error: the aggregate they belong to must be
// rejected, never guessed at.
func ParseMethod(s string) (Method, error) {
	switch Method(s) {
	case MethodCash, MethodCard, MethodTransfer, MethodDigital:
		return Method(s), nil
	}
	return "", fmt.Errorf("unknown payment method %q", s)
}

// =============================================================================
// SUMMARY - Per-method totals over a time window
// =============================================================================

// Summary is the aggregate the core reads from the sales ledger: total sale
// amount per payment method plus a count of finalized sales.
type Summary struct {
	Cash     decimal.Decimal `json:"cash"`
	Card     decimal.Decimal `json:"card"`
	Transfer decimal.Decimal `json:"transfer"`
	Digital  decimal.Decimal `json:"digital"`
	Count    int             `json:"count"`
}

// EmptySummary returns a summary with all totals at zero.
// decimal.Decimal's zero value marshals fine, but explicit zeros keep
// comparisons with decimal.Zero well-behaved.
func EmptySummary() Summary {
	return Summary{
		Cash:     decimal.Zero,
		Card:     decimal.Zero,
		Transfer: decimal.Zero,
		Digital:  decimal.Zero,
	}
}

// Add accumulates an amount under the given method.
func (s Summary) Add(m Method, amount decimal.Decimal) Summary {
	switch m {
	case MethodCash:
		s.Cash = s.Cash.Add(amount)
	case MethodCard:
		s.Card = s.Card.Add(amount)
	case MethodTransfer:
		s.Transfer = s.Transfer.Add(amount)
	case MethodDigital:
		s.Digital = s.Digital.Add(amount)
	}
	s.Count++
	return s
}

// Total returns the sum across all payment methods.
func (s Summary) Total() decimal.Decimal {
	return s.Cash.Add(s.Card).Add(s.Transfer).Add(s.Digital)
}

// =============================================================================
// SALE - Collaborator record (owned by the sales pipeline, not the core)
// =============================================================================

// Sale is a finalized transaction as stored by the sales pipeline. The core
// only reads aggregates; this type exists so the stand-in implementation and
// tests can post sales the way the external pipeline would.
type Sale struct {
	ID         string
	OperatorID string
	Method     Method
	Amount     decimal.Decimal
	Voided     bool
	ItemsJSON  string // line items, external schema, opaque to the core
	CreatedAt  time.Time
}

// Validate applies the fail-closed ingestion rules.
func (s Sale) Validate() error {
	if s.OperatorID == "" {
		return fmt.Errorf("sale missing operator id")
	}
	if _, err := ParseMethod(string(s.Method)); err != nil {
		return err
	}
	if !s.Amount.IsPositive() {
		return fmt.Errorf("sale amount must be positive, got %s", s.Amount)
	}
	if s.ItemsJSON != "" && !json.Valid([]byte(s.ItemsJSON)) {
		return fmt.Errorf("sale line items are not valid JSON")
	}
	return nil
}
