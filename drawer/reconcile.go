/*
reconcile.go - Pure reconciliation arithmetic

PURPOSE:
  Derives theoretical cash and closing variance from a shift's recorded
  totals. Pure functions, no side effects, no storage access: everything
  here is deterministic over its inputs, which is what makes the closing
  figures auditable after the fact.

THE FORMULA:
  theoretical = opening + cashSales + inflows - outflows

  Only cash-method sales participate. Card/transfer/digital sales are
  tracked for reporting but never pass through the drawer, so they cannot
  affect the expected cash-on-hand. The carry-over from the previous shift
  is already contained in the opening count and is deliberately absent from
  the formula.

VARIANCE CLASSIFICATION:
  |variance| <= tolerance  -> exact
   variance  >  tolerance  -> surplus  (more cash than expected)
   variance  < -tolerance  -> shortage (cash missing)

  The default tolerance is the smallest currency unit (0.01), absorbing
  rounding on counted coin totals without hiding real differences.

SEE ALSO:
  - manager.go: applies these functions at close time
*/
package drawer

import "github.com/shopspring/decimal"

// =============================================================================
// VARIANCE CLASSIFICATION
// =============================================================================

type VarianceClass string

const (
	VarianceExact    VarianceClass = "exact"
	VarianceSurplus  VarianceClass = "surplus"
	VarianceShortage VarianceClass = "shortage"
)

// DefaultTolerance is one smallest currency unit.
var DefaultTolerance = decimal.New(1, -2) // 0.01

// =============================================================================
// PURE DERIVATIONS
// =============================================================================

// TheoreticalCash is the expected cash-on-hand for a shift.
func TheoreticalCash(opening, cashSales, inflows, outflows decimal.Decimal) decimal.Decimal {
	return opening.Add(cashSales).Add(inflows).Sub(outflows)
}

// VarianceOf is the difference between physically counted cash and the
// theoretical figure. Positive = surplus, negative = shortage.
func VarianceOf(counted, theoretical decimal.Decimal) decimal.Decimal {
	return counted.Sub(theoretical)
}

// ClassifyVariance buckets a variance against a tolerance. A non-positive
// tolerance degrades to exact-match-only classification.
func ClassifyVariance(variance, tolerance decimal.Decimal) VarianceClass {
	if tolerance.IsNegative() {
		tolerance = decimal.Zero
	}
	switch {
	case variance.Abs().LessThanOrEqual(tolerance):
		return VarianceExact
	case variance.IsPositive():
		return VarianceSurplus
	default:
		return VarianceShortage
	}
}
