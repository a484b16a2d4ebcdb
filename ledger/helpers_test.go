package ledger_test

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/warp/splitledger/ledger"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func assertDecimal(t *testing.T, want string, got decimal.Decimal, msgAndArgs ...any) {
	t.Helper()
	assert.True(t, dec(want).Equal(got), append([]any{"want %s, got %s", want, got.String()}, msgAndArgs...)...)
}

func line(p string, amount string) ledger.Line {
	return ledger.Line{Party: ledger.PartyID(p), Amount: dec(amount)}
}

var t0 = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func at(minutes int) time.Time {
	return t0.Add(time.Duration(minutes) * time.Minute)
}

func expense(id string, scope ledger.Scope, amount string, recordedAt time.Time, contributions []ledger.Line, shares []ledger.Line) ledger.Entry {
	return ledger.Entry{
		ID:            ledger.EntryID(id),
		Kind:          ledger.KindExpense,
		Scope:         scope,
		Amount:        dec(amount),
		Contributions: contributions,
		Shares:        shares,
		CreatedBy:     contributions[0].Party,
		OccurredAt:    recordedAt,
		RecordedAt:    recordedAt,
	}
}

func settlement(id string, scope ledger.Scope, from, to string, amount string, recordedAt time.Time) ledger.Entry {
	return ledger.Entry{
		ID:            ledger.EntryID(id),
		Kind:          ledger.KindSettlement,
		Scope:         scope,
		Amount:        dec(amount),
		Contributions: []ledger.Line{line(from, amount)},
		Shares:        []ledger.Line{line(to, amount)},
		CreatedBy:     ledger.PartyID(from),
		OccurredAt:    recordedAt,
		RecordedAt:    recordedAt,
		Method:        ledger.MethodCash,
		Status:        ledger.StatusCompleted,
	}
}

var (
	trip = ledger.GroupScope("trip")
	ab   = ledger.DirectScope("A", "B")
)

// tripDinner is A paying 90 split equally between A, B and C.
func tripDinner(recordedAt time.Time) ledger.Entry {
	return expense("dinner", trip, "90", recordedAt,
		[]ledger.Line{line("A", "90")},
		[]ledger.Line{line("A", "30"), line("B", "30"), line("C", "30")})
}
