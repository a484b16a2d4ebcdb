/*
Package ledger provides the balance computation and settlement-consistency engine.

PURPOSE:
  Members of a group (or a pair of friends) log shared expenses and record
  settlements. This package derives, at any moment, who owes whom, whether a
  given expense has been paid off, and who may delete or restore an entry.
  Everything else (HTTP, persistence, notifications) lives outside.

KEY CONCEPTS IN THIS FILE (types.go):
  - Entry: one financial record, expense or settlement, discriminated by Kind
  - Scope: the group or direct pair an entry belongs to
  - Line: a (party, amount) pair used for both contributions and shares
  - Tolerance: the 0.01 reconciliation window for decimal round-trips

DESIGN PRINCIPLES:
  1. Purity: split, balance, coverage and guard functions take entries in and
     return values out. No I/O, no hidden caches.
  2. Precision: decimal.Decimal everywhere. Rounding to cents happens once,
     at the end of a fold.
  3. One shape: legacy single-payer and share/amount variants are normalised
     at the boundary into Contributions and Shares.
  4. Soft delete: entries are never removed, only flagged.

USAGE:
  entry := ledger.Entry{
      Kind:          ledger.KindExpense,
      Scope:         ledger.GroupScope("trip"),
      Amount:        ledger.MustParseDecimal("90"),
      Contributions: []ledger.Line{{Party: "alice", Amount: ledger.MustParseDecimal("90")}},
      Shares:        shares,
  }
  sheet := ledger.ComputeNetBalances(entries, "alice", ledger.InScope(entry.Scope))

SEE ALSO:
  - split.go: Share and contribution calculation
  - balance.go: The canonical pairwise fold
  - coverage.go: Settled-or-not resolution
  - guard.go: Delete/restore authorization
  - service.go: External interface used by the API and CLI
*/
package ledger

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Tolerance is the reconciliation window for sums that should match a total.
var Tolerance = decimal.New(1, -2)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type PartyID string
type GroupID string
type EntryID string

// =============================================================================
// KIND & SETTLEMENT FIELDS
// =============================================================================

type Kind string

const (
	KindExpense    Kind = "expense"
	KindSettlement Kind = "settlement"
)

func (k Kind) Valid() bool { return k == KindExpense || k == KindSettlement }

// Method is how a settlement was paid. Only meaningful on settlements.
type Method string

const (
	MethodCash     Method = "cash"
	MethodExternal Method = "external"
)

func (m Method) Valid() bool { return m == MethodCash || m == MethodExternal }

type SettlementStatus string

const (
	StatusPending   SettlementStatus = "pending"
	StatusCompleted SettlementStatus = "completed"
	StatusFailed    SettlementStatus = "failed"
)

func (s SettlementStatus) Valid() bool {
	return s == StatusPending || s == StatusCompleted || s == StatusFailed
}

// =============================================================================
// SCOPE - Group or direct pair
// =============================================================================

type ScopeKind string

const (
	ScopeGroup  ScopeKind = "group"
	ScopeDirect ScopeKind = "direct"
)

// Scope identifies where an entry lives. Exactly one of GroupID or Pair is set.
// Pair is kept sorted so equal pairs compare equal with ==.
type Scope struct {
	Kind    ScopeKind
	GroupID GroupID
	Pair    [2]PartyID
}

func GroupScope(id GroupID) Scope {
	return Scope{Kind: ScopeGroup, GroupID: id}
}

func DirectScope(a, b PartyID) Scope {
	if b < a {
		a, b = b, a
	}
	return Scope{Kind: ScopeDirect, Pair: [2]PartyID{a, b}}
}

// Validate checks the shape of the scope, not membership.
func (s Scope) Validate() error {
	switch s.Kind {
	case ScopeGroup:
		if s.GroupID == "" {
			return &ScopeError{Scope: s, Reason: "group scope requires a group id"}
		}
		if s.Pair[0] != "" || s.Pair[1] != "" {
			return &ScopeError{Scope: s, Reason: "group scope cannot name direct parties"}
		}
	case ScopeDirect:
		if s.GroupID != "" {
			return &ScopeError{Scope: s, Reason: "direct scope cannot name a group"}
		}
		if s.Pair[0] == "" || s.Pair[1] == "" || s.Pair[0] == s.Pair[1] {
			return &ScopeError{Scope: s, Reason: "direct scope requires exactly two distinct parties"}
		}
		if s.Pair[1] < s.Pair[0] {
			return &ScopeError{Scope: s, Reason: "direct scope pair is not normalised"}
		}
	default:
		return &ScopeError{Scope: s, Reason: fmt.Sprintf("unknown scope kind %q", s.Kind)}
	}
	return nil
}

// Includes reports whether p is one of the two direct parties.
// Group membership needs a Directory lookup and is not answered here.
func (s Scope) Includes(p PartyID) bool {
	return s.Kind == ScopeDirect && (s.Pair[0] == p || s.Pair[1] == p)
}

// Key is a stable string form, used for grouping and as a map key in breakdowns.
func (s Scope) Key() string {
	if s.Kind == ScopeGroup {
		return "group:" + string(s.GroupID)
	}
	return "direct:" + string(s.Pair[0]) + ":" + string(s.Pair[1])
}

func (s Scope) String() string { return s.Key() }

// =============================================================================
// ENTRY
// =============================================================================

// Line is one (party, amount) pair. Contributions and shares share this shape.
type Line struct {
	Party  PartyID
	Amount decimal.Decimal
}

// Entry is the single record type for expenses and settlements.
//
// For settlements, Contributions holds exactly the payer and Shares exactly
// the receiver, both equal to Amount.
type Entry struct {
	ID            EntryID
	Kind          Kind
	Scope         Scope
	Description   string
	Amount        decimal.Decimal
	Contributions []Line
	Shares        []Line
	CreatedBy     PartyID
	OccurredAt    time.Time
	RecordedAt    time.Time

	// Settlement only
	Method         Method
	Provider       string
	TransactionRef string
	Status         SettlementStatus

	Deleted bool
}

func (e Entry) IsSettlement() bool { return e.Kind == KindSettlement }

// Counts reports whether the entry participates in balances: active, and for
// settlements, completed.
func (e Entry) Counts() bool {
	if e.Deleted {
		return false
	}
	if e.IsSettlement() && e.Status != StatusCompleted {
		return false
	}
	return true
}

// IsPayer reports whether p appears among the contributions.
func (e Entry) IsPayer(p PartyID) bool {
	for _, c := range e.Contributions {
		if c.Party == p {
			return true
		}
	}
	return false
}

// Involves reports whether p is a payer or a sharer.
func (e Entry) Involves(p PartyID) bool {
	if e.IsPayer(p) {
		return true
	}
	for _, s := range e.Shares {
		if s.Party == p {
			return true
		}
	}
	return false
}

// Parties returns every party touched by the entry, payers first, in order.
func (e Entry) Parties() []PartyID {
	seen := make(map[PartyID]bool)
	var out []PartyID
	for _, l := range append(append([]Line{}, e.Contributions...), e.Shares...) {
		if !seen[l.Party] {
			seen[l.Party] = true
			out = append(out, l.Party)
		}
	}
	return out
}

// Payer and Receiver are shortcuts for settlement entries.
func (e Entry) Payer() PartyID {
	if len(e.Contributions) == 0 {
		return ""
	}
	return e.Contributions[0].Party
}

func (e Entry) Receiver() PartyID {
	if len(e.Shares) == 0 {
		return ""
	}
	return e.Shares[0].Party
}

// CheckIntegrity verifies the entry's own invariants. It is what the fold
// relies on; a failing entry is reported as corrupt and skipped.
func (e Entry) CheckIntegrity() error {
	corrupt := func(format string, args ...any) error {
		return &CorruptEntryError{EntryID: e.ID, Reason: fmt.Sprintf(format, args...)}
	}

	if !e.Kind.Valid() {
		return corrupt("unknown kind %q", e.Kind)
	}
	if err := e.Scope.Validate(); err != nil {
		return corrupt("bad scope: %v", err)
	}
	if e.Amount.IsNegative() {
		return corrupt("negative amount %s", e.Amount)
	}
	if len(e.Contributions) == 0 || len(e.Shares) == 0 {
		return corrupt("entry needs at least one contribution and one share")
	}

	for _, lines := range [][]Line{e.Contributions, e.Shares} {
		for _, l := range lines {
			if l.Party == "" {
				return corrupt("line without party")
			}
			if l.Amount.IsNegative() {
				return corrupt("negative line amount %s for %s", l.Amount, l.Party)
			}
			if e.Scope.Kind == ScopeDirect && !e.Scope.Includes(l.Party) {
				return corrupt("party %s outside direct scope", l.Party)
			}
		}
	}

	if !WithinTolerance(SumLines(e.Contributions), e.Amount) {
		return corrupt("contributions sum %s, amount %s", SumLines(e.Contributions), e.Amount)
	}
	if !WithinTolerance(SumLines(e.Shares), e.Amount) {
		return corrupt("shares sum %s, amount %s", SumLines(e.Shares), e.Amount)
	}

	if e.IsSettlement() {
		if len(e.Contributions) != 1 || len(e.Shares) != 1 {
			return corrupt("settlement needs exactly one payer and one receiver")
		}
		if e.Payer() == e.Receiver() {
			return corrupt("settlement payer and receiver are both %s", e.Payer())
		}
		if !e.Method.Valid() {
			return corrupt("unknown settlement method %q", e.Method)
		}
		if !e.Status.Valid() {
			return corrupt("unknown settlement status %q", e.Status)
		}
	}
	return nil
}

// =============================================================================
// DECIMAL HELPERS
// =============================================================================

func MustParseDecimal(s string) decimal.Decimal {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero
	}
	return d
}

func SumLines(lines []Line) decimal.Decimal {
	sum := decimal.Zero
	for _, l := range lines {
		sum = sum.Add(l.Amount)
	}
	return sum
}

// WithinTolerance reports |a - b| <= 0.01.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// RoundCents rounds half away from zero to 2 places and folds -0 into 0.
func RoundCents(d decimal.Decimal) decimal.Decimal {
	r := d.Round(2)
	if r.IsZero() {
		return decimal.Zero
	}
	return r
}
