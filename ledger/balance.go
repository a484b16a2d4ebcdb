/*
balance.go - The canonical pairwise balance fold

PURPOSE:
  Derives "who owes whom" from entry history. This is the ONE algorithm
  used for group pages, friend pages and the overall dashboard; it is
  parameterised only by scope filter and viewpoint.

ALGORITHM:
  For each active entry in scope:
    1. net(p) = contributed(p) - shared(p) for every party touched
    2. net > 0 are creditors, net < 0 are debtors
    3. each debtor's deficit is split across creditors proportionally to
       their surplus; the last creditor takes the remainder
    4. allocations involving the viewpoint update its running map
  Settlements go through the same pass: one payer, one receiver, one
  allocation of the full amount in the opposite direction of the debt.

ROUNDING:
  Values are accumulated at full precision and rounded to cents only once,
  at the end. Magnitudes below 0.01 are dropped.

SIGN CONVENTION:
  Positive: counterparty owes the viewpoint.
  Negative: the viewpoint owes the counterparty.

EXAMPLE:
  A pays 90, split equally between A, B, C:
    net(A) = +60, net(B) = -30, net(C) = -30
    allocations: B->A 30, C->A 30
    ComputeNetBalances(entries, A) = {B: +30, C: +30}

SEE ALSO:
  - coverage.go: Reuses Allocate for per-pair coverage
  - service.go: GetBalances, GetOverallBalances
*/
package ledger

import (
	"errors"
	"sort"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ALLOCATION - One entry resolved into pairwise debts
// =============================================================================

// Allocation is a single debt produced by one entry: Debtor owes Creditor Amount.
type Allocation struct {
	Debtor   PartyID
	Creditor PartyID
	Amount   decimal.Decimal
}

// Allocate resolves one entry into pairwise debts. It ignores Deleted and
// Status; filtering is the caller's job. Corrupt entries return a
// *CorruptEntryError.
func Allocate(e Entry) ([]Allocation, error) {
	if err := e.CheckIntegrity(); err != nil {
		return nil, err
	}

	var order []PartyID
	net := make(map[PartyID]decimal.Decimal)
	add := func(p PartyID, d decimal.Decimal) {
		if _, ok := net[p]; !ok {
			order = append(order, p)
			net[p] = decimal.Zero
		}
		net[p] = net[p].Add(d)
	}
	for _, c := range e.Contributions {
		add(c.Party, c.Amount)
	}
	for _, s := range e.Shares {
		add(s.Party, s.Amount.Neg())
	}

	var creditors, debtors []PartyID
	surplus := decimal.Zero
	for _, p := range order {
		switch net[p].Sign() {
		case 1:
			creditors = append(creditors, p)
			surplus = surplus.Add(net[p])
		case -1:
			debtors = append(debtors, p)
		}
	}
	if len(creditors) == 0 || len(debtors) == 0 {
		return nil, nil
	}

	var allocs []Allocation
	last := len(creditors) - 1
	for _, d := range debtors {
		deficit := net[d].Neg()
		remaining := deficit
		for i, c := range creditors {
			amt := remaining
			if i < last {
				amt = deficit.Mul(net[c]).Div(surplus)
				remaining = remaining.Sub(amt)
			}
			if amt.IsZero() {
				continue
			}
			allocs = append(allocs, Allocation{Debtor: d, Creditor: c, Amount: amt})
		}
	}
	return allocs, nil
}

// =============================================================================
// SCOPE FILTER
// =============================================================================

// ScopeFilter selects which entries a fold considers.
type ScopeFilter struct {
	all   bool
	scope Scope
}

// InScope matches entries of exactly one group or direct pair.
func InScope(s Scope) ScopeFilter { return ScopeFilter{scope: s} }

// AllScopes matches every entry. Entries not involving the viewpoint simply
// contribute nothing.
func AllScopes() ScopeFilter { return ScopeFilter{all: true} }

func (f ScopeFilter) Matches(e Entry) bool {
	return f.all || e.Scope == f.scope
}

// =============================================================================
// BALANCE SHEET - Fold result
// =============================================================================

// BalanceSheet is the per-counterparty balance map for one viewpoint.
// Warnings lists entries skipped because they failed their own invariants.
type BalanceSheet struct {
	Viewpoint      PartyID
	Counterparties map[PartyID]decimal.Decimal
	Warnings       []*CorruptEntryError
}

// Of returns the balance with p, zero when p is absent.
func (b BalanceSheet) Of(p PartyID) decimal.Decimal {
	return b.Counterparties[p]
}

// Err joins the warnings, for callers that prefer to abort on corrupt data.
func (b BalanceSheet) Err() error {
	if len(b.Warnings) == 0 {
		return nil
	}
	errs := make([]error, len(b.Warnings))
	for i, w := range b.Warnings {
		errs[i] = w
	}
	return errors.Join(errs...)
}

// Parties returns the counterparties sorted by id.
func (b BalanceSheet) Parties() []PartyID {
	out := make([]PartyID, 0, len(b.Counterparties))
	for p := range b.Counterparties {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ComputeNetBalances folds entries into a balance map for viewpoint.
func ComputeNetBalances(entries []Entry, viewpoint PartyID, filter ScopeFilter) BalanceSheet {
	acc, warnings := fold(entries, viewpoint, filter)
	return BalanceSheet{
		Viewpoint:      viewpoint,
		Counterparties: finalize(acc),
		Warnings:       warnings,
	}
}

func fold(entries []Entry, viewpoint PartyID, filter ScopeFilter) (map[PartyID]decimal.Decimal, []*CorruptEntryError) {
	acc := make(map[PartyID]decimal.Decimal)
	var warnings []*CorruptEntryError

	for _, e := range entries {
		if !e.Counts() || !filter.Matches(e) {
			continue
		}
		allocs, err := Allocate(e)
		if err != nil {
			var ce *CorruptEntryError
			if !errors.As(err, &ce) {
				ce = &CorruptEntryError{EntryID: e.ID, Reason: err.Error()}
			}
			warnings = append(warnings, ce)
			continue
		}
		for _, a := range allocs {
			switch viewpoint {
			case a.Debtor:
				acc[a.Creditor] = acc[a.Creditor].Sub(a.Amount)
			case a.Creditor:
				acc[a.Debtor] = acc[a.Debtor].Add(a.Amount)
			}
		}
	}
	return acc, warnings
}

func finalize(acc map[PartyID]decimal.Decimal) map[PartyID]decimal.Decimal {
	out := make(map[PartyID]decimal.Decimal, len(acc))
	for p, v := range acc {
		r := RoundCents(v)
		if r.Abs().LessThan(Tolerance) {
			continue
		}
		out[p] = r
	}
	return out
}

// =============================================================================
// OVERALL - All scopes for one viewpoint
// =============================================================================

type CounterpartyBalance struct {
	Party  PartyID
	Amount decimal.Decimal
}

type ScopeBalance struct {
	Scope  Scope
	Amount decimal.Decimal
}

// Overall summarises a viewpoint's position across every group and direct
// relationship. Net == YouAreOwed - YouOwe holds exactly.
type Overall struct {
	Viewpoint      PartyID
	Net            decimal.Decimal
	YouOwe         decimal.Decimal
	YouAreOwed     decimal.Decimal
	Counterparties []CounterpartyBalance
	Scopes         []ScopeBalance
	Warnings       []*CorruptEntryError
}

// ComputeOverall folds all scopes for viewpoint.
func ComputeOverall(entries []Entry, viewpoint PartyID) Overall {
	sheet := ComputeNetBalances(entries, viewpoint, AllScopes())

	o := Overall{
		Viewpoint:  viewpoint,
		Net:        decimal.Zero,
		YouOwe:     decimal.Zero,
		YouAreOwed: decimal.Zero,
		Warnings:   sheet.Warnings,
	}
	for _, p := range sheet.Parties() {
		v := sheet.Counterparties[p]
		o.Counterparties = append(o.Counterparties, CounterpartyBalance{Party: p, Amount: v})
		if v.IsNegative() {
			o.YouOwe = o.YouOwe.Add(v.Neg())
		} else {
			o.YouAreOwed = o.YouAreOwed.Add(v)
		}
	}
	o.Net = o.YouAreOwed.Sub(o.YouOwe)

	o.Scopes = scopeBreakdown(entries, viewpoint)
	return o
}

// scopeBreakdown nets the viewpoint's position per scope it takes part in.
func scopeBreakdown(entries []Entry, viewpoint PartyID) []ScopeBalance {
	var scopes []Scope
	seen := make(map[Scope]bool)
	for _, e := range entries {
		if !e.Involves(viewpoint) || seen[e.Scope] {
			continue
		}
		seen[e.Scope] = true
		scopes = append(scopes, e.Scope)
	}
	sort.Slice(scopes, func(i, j int) bool { return scopes[i].Key() < scopes[j].Key() })

	var out []ScopeBalance
	for _, s := range scopes {
		acc, _ := fold(entries, viewpoint, InScope(s))
		total := decimal.Zero
		for _, v := range finalize(acc) {
			total = total.Add(v)
		}
		if total.IsZero() {
			continue
		}
		out = append(out, ScopeBalance{Scope: s, Amount: total})
	}
	return out
}

// =============================================================================
// SETTLE UP - Turn a sheet into transfers
// =============================================================================

// Transfer is a suggested settlement: From pays To Amount.
type Transfer struct {
	From   PartyID
	To     PartyID
	Amount decimal.Decimal
}

// PlanSettlements lists the transfers that would clear every balance on the
// sheet, one per counterparty, ordered by counterparty id.
func PlanSettlements(sheet BalanceSheet) []Transfer {
	var out []Transfer
	for _, p := range sheet.Parties() {
		v := sheet.Counterparties[p]
		if v.IsPositive() {
			out = append(out, Transfer{From: p, To: sheet.Viewpoint, Amount: v})
		} else {
			out = append(out, Transfer{From: sheet.Viewpoint, To: p, Amount: v.Neg()})
		}
	}
	return out
}
