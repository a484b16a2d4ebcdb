/*
split.go - Share and contribution calculation

PURPOSE:
  Turns "90, split equally between A, B and C, paid by A" into concrete
  per-party lines that reconcile to the total. Every entry reaching the
  store has been through here.

POLICIES:
  EQUAL:      total / n, truncated to cents, last participant absorbs remainder
  EXACT:      caller amounts, must sum to total within Tolerance
  PERCENTAGE: caller percentages, must sum to 100 within Tolerance
  SHARES:     caller weights (default 1), proportional to weight

  PERCENTAGE and SHARES round the running total to cents at each step, so
  the last participant takes whatever remains and shares sum to the total
  exactly.

CONTRIBUTIONS:
  One payer without an amount pays the full total. Several payers must each
  carry an amount, and the amounts must reconcile.

SEE ALSO:
  - service.go: CreateEntry calls ComputeShares and ComputeContributions
  - errors.go: SplitMismatch, PayerMismatch, InvalidAmount
*/
package ledger

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

type SplitPolicy string

const (
	SplitEqual      SplitPolicy = "equal"
	SplitExact      SplitPolicy = "exact"
	SplitPercentage SplitPolicy = "percentage"
	SplitShares     SplitPolicy = "shares"
)

// ParseSplitPolicy accepts any case ("EQUAL", "equal").
func ParseSplitPolicy(s string) (SplitPolicy, error) {
	p := SplitPolicy(strings.ToLower(strings.TrimSpace(s)))
	switch p {
	case SplitEqual, SplitExact, SplitPercentage, SplitShares:
		return p, nil
	}
	return "", &MismatchError{Kind: ErrSplitMismatch, Reason: fmt.Sprintf("unknown split policy %q", s)}
}

// SplitParticipant is one participant of a split. Value is the exact amount,
// the percentage, or the weight, depending on the policy.
type SplitParticipant struct {
	Party PartyID
	Value decimal.NullDecimal
}

// Payer is one payer of an expense. Amount may be omitted for a sole payer.
type Payer struct {
	Party  PartyID
	Amount decimal.NullDecimal
}

var hundred = decimal.NewFromInt(100)

// ComputeShares splits total across participants according to policy.
func ComputeShares(total decimal.Decimal, policy SplitPolicy, participants []SplitParticipant) ([]Line, error) {
	if total.IsNegative() {
		return nil, invalidAmount("total %s is negative", total)
	}
	if len(participants) == 0 {
		return nil, &MismatchError{Kind: ErrSplitMismatch, Reason: "no participants"}
	}
	seen := make(map[PartyID]bool, len(participants))
	for _, p := range participants {
		if p.Party == "" {
			return nil, &MismatchError{Kind: ErrSplitMismatch, Reason: "participant without party"}
		}
		if seen[p.Party] {
			return nil, &MismatchError{Kind: ErrSplitMismatch, Reason: fmt.Sprintf("duplicate participant %s", p.Party)}
		}
		seen[p.Party] = true
		if p.Value.Valid && p.Value.Decimal.IsNegative() {
			return nil, invalidAmount("negative split value %s for %s", p.Value.Decimal, p.Party)
		}
	}

	switch policy {
	case SplitEqual:
		return equalShares(total, participants), nil
	case SplitExact:
		return exactShares(total, participants)
	case SplitPercentage:
		return percentageShares(total, participants)
	case SplitShares:
		return weightedShares(total, participants)
	}
	return nil, &MismatchError{Kind: ErrSplitMismatch, Reason: fmt.Sprintf("unknown split policy %q", policy)}
}

func equalShares(total decimal.Decimal, participants []SplitParticipant) []Line {
	n := decimal.NewFromInt(int64(len(participants)))
	each := total.Div(n).Truncate(2)

	lines := make([]Line, len(participants))
	for i, p := range participants {
		lines[i] = Line{Party: p.Party, Amount: each}
	}
	return absorbRemainder(total, lines)
}

func exactShares(total decimal.Decimal, participants []SplitParticipant) ([]Line, error) {
	lines := make([]Line, len(participants))
	for i, p := range participants {
		if !p.Value.Valid {
			return nil, &MismatchError{Kind: ErrSplitMismatch, Reason: fmt.Sprintf("exact split needs an amount for %s", p.Party)}
		}
		lines[i] = Line{Party: p.Party, Amount: p.Value.Decimal}
	}
	if sum := SumLines(lines); !WithinTolerance(sum, total) {
		return nil, &MismatchError{Kind: ErrSplitMismatch, Expected: total, Actual: sum}
	}
	return lines, nil
}

func percentageShares(total decimal.Decimal, participants []SplitParticipant) ([]Line, error) {
	sum := decimal.Zero
	for _, p := range participants {
		if !p.Value.Valid {
			return nil, &MismatchError{Kind: ErrSplitMismatch, Reason: fmt.Sprintf("percentage split needs a percentage for %s", p.Party)}
		}
		sum = sum.Add(p.Value.Decimal)
	}
	if !WithinTolerance(sum, hundred) {
		return nil, &MismatchError{Kind: ErrSplitMismatch, Expected: hundred, Actual: sum, Reason: fmt.Sprintf("percentages sum to %s, not 100", sum)}
	}

	weights := make([]decimal.Decimal, len(participants))
	for i, p := range participants {
		weights[i] = p.Value.Decimal
	}
	return proportionalShares(total, participants, weights, sum), nil
}

func weightedShares(total decimal.Decimal, participants []SplitParticipant) ([]Line, error) {
	weights := make([]decimal.Decimal, len(participants))
	sum := decimal.Zero
	for i, p := range participants {
		w := decimal.NewFromInt(1)
		if p.Value.Valid {
			w = p.Value.Decimal
		}
		weights[i] = w
		sum = sum.Add(w)
	}
	if sum.IsZero() {
		return nil, &MismatchError{Kind: ErrSplitMismatch, Reason: "weights sum to zero"}
	}

	return proportionalShares(total, participants, weights, sum), nil
}

// proportionalShares rounds running totals rather than individual shares, so
// every share stays non-negative and the last one closes the sum exactly.
func proportionalShares(total decimal.Decimal, participants []SplitParticipant, weights []decimal.Decimal, sum decimal.Decimal) []Line {
	lines := make([]Line, len(participants))
	acc, prev := decimal.Zero, decimal.Zero
	for i, p := range participants {
		acc = acc.Add(weights[i])
		cum := total
		if i < len(participants)-1 {
			cum = total.Mul(acc).Div(sum).Round(2)
		}
		lines[i] = Line{Party: p.Party, Amount: cum.Sub(prev)}
		prev = cum
	}
	return lines
}

// absorbRemainder rewrites the last line so the lines sum to total exactly.
func absorbRemainder(total decimal.Decimal, lines []Line) []Line {
	last := len(lines) - 1
	rest := SumLines(lines[:last])
	lines[last].Amount = total.Sub(rest)
	return lines
}

// ComputeContributions resolves who paid how much.
func ComputeContributions(total decimal.Decimal, payers []Payer) ([]Line, error) {
	if total.IsNegative() {
		return nil, invalidAmount("total %s is negative", total)
	}
	if len(payers) == 0 {
		return nil, &MismatchError{Kind: ErrPayerMismatch, Reason: "at least one payer is required"}
	}

	seen := make(map[PartyID]bool, len(payers))
	for _, p := range payers {
		if p.Party == "" {
			return nil, &MismatchError{Kind: ErrPayerMismatch, Reason: "payer without party"}
		}
		if seen[p.Party] {
			return nil, &MismatchError{Kind: ErrPayerMismatch, Reason: fmt.Sprintf("duplicate payer %s", p.Party)}
		}
		seen[p.Party] = true
		if p.Amount.Valid && p.Amount.Decimal.IsNegative() {
			return nil, invalidAmount("negative contribution %s for %s", p.Amount.Decimal, p.Party)
		}
	}

	if len(payers) == 1 && !payers[0].Amount.Valid {
		return []Line{{Party: payers[0].Party, Amount: total}}, nil
	}

	lines := make([]Line, len(payers))
	for i, p := range payers {
		if !p.Amount.Valid {
			return nil, &MismatchError{Kind: ErrPayerMismatch, Reason: fmt.Sprintf("payer %s needs an explicit amount", p.Party)}
		}
		lines[i] = Line{Party: p.Party, Amount: p.Amount.Decimal}
	}
	if sum := SumLines(lines); !WithinTolerance(sum, total) {
		return nil, &MismatchError{Kind: ErrPayerMismatch, Expected: total, Actual: sum}
	}
	return lines, nil
}

// Amount is a convenience for building NullDecimal values.
func Amount(d decimal.Decimal) decimal.NullDecimal {
	return decimal.NullDecimal{Decimal: d, Valid: true}
}
