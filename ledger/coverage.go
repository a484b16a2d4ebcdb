package ledger

import (
	"github.com/shopspring/decimal"
)

// =============================================================================
// SETTLEMENT COVERAGE
// =============================================================================

type pair struct {
	debtor, creditor PartyID
}

// IsCovered reports whether every debt an expense created has been matched by
// settlements recorded strictly after it.
//
// Each (debtor, creditor) pair from Allocate is checked on its own: the sum of
// completed, active settlements debtor -> creditor in the same scope, recorded
// after the expense, must reach the owed amount within Tolerance. Settlements
// are never covered; neither is an expense that created no debts.
func IsCovered(e Entry, all []Entry) bool {
	if e.Kind != KindExpense {
		return false
	}
	allocs, err := Allocate(e)
	if err != nil || len(allocs) == 0 {
		return false
	}

	owed := make(map[pair]decimal.Decimal, len(allocs))
	for _, a := range allocs {
		k := pair{a.Debtor, a.Creditor}
		owed[k] = owed[k].Add(a.Amount)
	}

	paid := make(map[pair]decimal.Decimal, len(owed))
	for _, s := range all {
		if !s.IsSettlement() || !s.Counts() || s.Scope != e.Scope {
			continue
		}
		if !s.RecordedAt.After(e.RecordedAt) {
			continue
		}
		k := pair{s.Payer(), s.Receiver()}
		if _, ok := owed[k]; !ok {
			continue
		}
		paid[k] = paid[k].Add(s.Amount)
	}

	for k, amt := range owed {
		if paid[k].Add(Tolerance).LessThan(amt) {
			return false
		}
	}
	return true
}

// Uncovered returns the per-pair shortfall for an expense, omitting pairs
// that are covered. Useful for telling a user who still has to pay.
func Uncovered(e Entry, all []Entry) []Allocation {
	if e.Kind != KindExpense {
		return nil
	}
	allocs, err := Allocate(e)
	if err != nil {
		return nil
	}

	var out []Allocation
	for _, a := range allocs {
		paid := decimal.Zero
		for _, s := range all {
			if !s.IsSettlement() || !s.Counts() || s.Scope != e.Scope || !s.RecordedAt.After(e.RecordedAt) {
				continue
			}
			if s.Payer() == a.Debtor && s.Receiver() == a.Creditor {
				paid = paid.Add(s.Amount)
			}
		}
		if short := a.Amount.Sub(paid); short.GreaterThan(Tolerance) {
			out = append(out, Allocation{Debtor: a.Debtor, Creditor: a.Creditor, Amount: RoundCents(short)})
		}
	}
	return out
}
