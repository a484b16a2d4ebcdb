package ledger_test

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/ledger"
	"github.com/warp/splitledger/ledger/store"
)

// =============================================================================
// FIXTURE
// =============================================================================

// stepClock advances one minute per reading so RecordedAt is strictly increasing.
type stepClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *stepClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(time.Minute)
	return c.now
}

type recorder struct {
	mu      sync.Mutex
	changes []ledger.Change
}

func (r *recorder) Notify(_ context.Context, c ledger.Change) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.changes = append(r.changes, c)
}

func (r *recorder) types() []ledger.ChangeType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]ledger.ChangeType, len(r.changes))
	for i, c := range r.changes {
		out[i] = c.Type
	}
	return out
}

type fixture struct {
	svc   *ledger.Service
	mem   *store.Memory
	notes *recorder
}

var (
	tripGroup = ledger.GroupScope("trip")
	aliceBob  = ledger.DirectScope("alice", "bob")
)

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	mem := store.NewMemory()
	for _, p := range []ledger.PartyID{"alice", "bob", "carol", "dave"} {
		require.NoError(t, mem.SaveParty(ctx, ledger.Party{ID: p, Name: string(p)}))
	}
	require.NoError(t, mem.SaveGroup(ctx, ledger.Group{
		ID:        "trip",
		Name:      "Goa trip",
		CreatedBy: "alice",
		Members:   []ledger.PartyID{"alice", "bob", "carol"},
	}))

	var mu sync.Mutex
	seq := 0
	notes := &recorder{}
	clock := &stepClock{now: t0}
	svc := ledger.NewService(mem, mem,
		ledger.WithNotifier(notes),
		ledger.WithClock(clock.Now),
		ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		ledger.WithIDGenerator(func() ledger.EntryID {
			mu.Lock()
			defer mu.Unlock()
			seq++
			return ledger.EntryID(fmt.Sprintf("e%d", seq))
		}),
	)
	return &fixture{svc: svc, mem: mem, notes: notes}
}

func (f *fixture) expense(t *testing.T, scope ledger.Scope, amount string, payer ledger.PartyID, sharers ...ledger.PartyID) ledger.Entry {
	t.Helper()
	ps := make([]ledger.SplitParticipant, len(sharers))
	for i, p := range sharers {
		ps[i] = ledger.SplitParticipant{Party: p}
	}
	e, err := f.svc.CreateEntry(context.Background(), ledger.NewEntry{
		Kind:         ledger.KindExpense,
		Scope:        scope,
		Amount:       dec(amount),
		Description:  "expense",
		Participants: ps,
		Payers:       []ledger.Payer{{Party: payer}},
		CreatedBy:    payer,
	})
	require.NoError(t, err)
	return e
}

func (f *fixture) settle(t *testing.T, scope ledger.Scope, from, to ledger.PartyID, amount string) ledger.Entry {
	t.Helper()
	e, err := f.svc.CreateEntry(context.Background(), ledger.NewSettlement(scope, from, to, dec(amount), ledger.MethodCash))
	require.NoError(t, err)
	return e
}

// =============================================================================
// CREATE
// =============================================================================

func TestService_CreateEntry_Expense(t *testing.T) {
	f := newFixture(t)

	e := f.expense(t, tripGroup, "10.00", "alice", "alice", "bob", "carol")

	assert.Equal(t, ledger.EntryID("e1"), e.ID)
	assert.Equal(t, "alice", string(e.CreatedBy))
	assertDecimal(t, "10.00", ledger.SumLines(e.Shares))
	assertDecimal(t, "3.34", e.Shares[2].Amount)
	assert.False(t, e.RecordedAt.IsZero())
	assert.Equal(t, e.RecordedAt, e.OccurredAt, "occurredAt defaults to recordedAt")

	stored, err := f.svc.GetEntry(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, e.Description, stored.Description)
	assert.Equal(t, []ledger.ChangeType{ledger.ChangeExpenseAdded}, f.notes.types())
}

func TestService_CreateEntry_KeepsOccurredAt(t *testing.T) {
	f := newFixture(t)
	backdated := t0.Add(-72 * time.Hour)

	e, err := f.svc.CreateEntry(context.Background(), ledger.NewEntry{
		Kind:       ledger.KindExpense,
		Scope:      aliceBob,
		Amount:     dec("20"),
		Shares:     []ledger.Line{{Party: "alice", Amount: dec("5")}, {Party: "bob", Amount: dec("15")}},
		Payers:     []ledger.Payer{{Party: "bob"}},
		CreatedBy:  "bob",
		OccurredAt: backdated,
	})

	require.NoError(t, err)
	assert.Equal(t, backdated, e.OccurredAt)
	assert.True(t, e.RecordedAt.After(backdated))
}

func TestService_CreateEntry_Rejections(t *testing.T) {
	valid := func() ledger.NewEntry {
		return ledger.NewEntry{
			Kind:         ledger.KindExpense,
			Scope:        tripGroup,
			Amount:       dec("30"),
			Participants: []ledger.SplitParticipant{{Party: "alice"}, {Party: "bob"}},
			Payers:       []ledger.Payer{{Party: "alice"}},
			CreatedBy:    "alice",
		}
	}

	tests := []struct {
		name   string
		mutate func(*ledger.NewEntry)
		want   error
	}{
		{"zero amount", func(in *ledger.NewEntry) { in.Amount = dec("0") }, ledger.ErrInvalidAmount},
		{"negative amount", func(in *ledger.NewEntry) { in.Amount = dec("-5") }, ledger.ErrInvalidAmount},
		{"unknown kind", func(in *ledger.NewEntry) { in.Kind = "refund" }, ledger.ErrInvalidKind},
		{"unknown group", func(in *ledger.NewEntry) { in.Scope = ledger.GroupScope("nowhere") }, ledger.ErrInvalidScope},
		{"outsider sharer", func(in *ledger.NewEntry) {
			in.Participants = append(in.Participants, ledger.SplitParticipant{Party: "dave"})
		}, ledger.ErrInvalidScope},
		{"outsider payer", func(in *ledger.NewEntry) { in.Payers = []ledger.Payer{{Party: "dave"}} }, ledger.ErrInvalidScope},
		{"creator outside scope", func(in *ledger.NewEntry) { in.CreatedBy = "dave" }, ledger.ErrInvalidScope},
		{"direct scope with one party", func(in *ledger.NewEntry) {
			in.Scope = ledger.Scope{Kind: ledger.ScopeDirect, Pair: [2]ledger.PartyID{"alice", "alice"}}
		}, ledger.ErrInvalidScope},
		{"exact shares short", func(in *ledger.NewEntry) {
			in.Shares = []ledger.Line{{Party: "alice", Amount: dec("10")}, {Party: "bob", Amount: dec("10")}}
		}, ledger.ErrSplitMismatch},
		{"payers short", func(in *ledger.NewEntry) {
			in.Payers = []ledger.Payer{
				{Party: "alice", Amount: ledger.Amount(dec("10"))},
				{Party: "bob", Amount: ledger.Amount(dec("10"))},
			}
		}, ledger.ErrPayerMismatch},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			in := valid()
			tt.mutate(&in)

			_, err := f.svc.CreateEntry(context.Background(), in)

			assert.ErrorIs(t, err, tt.want)
			assert.True(t, ledger.IsClientError(err))

			// Nothing was stored
			entries, err := f.mem.ListByParty(context.Background(), "alice")
			require.NoError(t, err)
			assert.Empty(t, entries)
			assert.Empty(t, f.notes.types())
		})
	}
}

// =============================================================================
// SETTLEMENTS
// =============================================================================

func TestService_CreateSettlement(t *testing.T) {
	f := newFixture(t)

	s := f.settle(t, tripGroup, "bob", "alice", "30")

	assert.Equal(t, ledger.KindSettlement, s.Kind)
	assert.Equal(t, ledger.MethodCash, s.Method)
	assert.Equal(t, ledger.StatusCompleted, s.Status)
	assert.Equal(t, "Settlement: bob → alice", s.Description)
	assert.Equal(t, []ledger.ChangeType{ledger.ChangeSettlementDone}, f.notes.types())
}

func TestService_CreateSettlement_ToSelf(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CreateEntry(context.Background(), ledger.NewSettlement(tripGroup, "bob", "bob", dec("5"), ledger.MethodCash))
	assert.ErrorIs(t, err, ledger.ErrInvalidScope)
}

func TestService_ExternalSettlementLifecycle(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expense(t, aliceBob, "40", "alice", "alice", "bob")

	// GIVEN: Bob pays through a provider, status still pending
	in := ledger.NewSettlement(aliceBob, "bob", "alice", dec("20"), ledger.MethodExternal)
	in.Provider = "upi"
	s, err := f.svc.CreateEntry(ctx, in)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, s.Status)

	// THEN: The pending payment does not reduce the debt
	sheet, err := f.svc.GetBalances(ctx, aliceBob, "alice")
	require.NoError(t, err)
	assertDecimal(t, "20", sheet.Of("bob"))

	// WHEN: The provider confirms it
	updated, err := f.svc.UpdateSettlementStatus(ctx, s.ID, ledger.StatusCompleted, "tx-991")
	require.NoError(t, err)
	assert.Equal(t, "tx-991", updated.TransactionRef)

	// THEN: The debt is gone
	sheet, err = f.svc.GetBalances(ctx, aliceBob, "alice")
	require.NoError(t, err)
	assert.Empty(t, sheet.Counterparties)

	// A repeated callback changes nothing and emits nothing
	before := len(f.notes.types())
	again, err := f.svc.UpdateSettlementStatus(ctx, s.ID, ledger.StatusCompleted, "")
	require.NoError(t, err)
	assert.Equal(t, "tx-991", again.TransactionRef)
	assert.Len(t, f.notes.types(), before)
}

func TestService_UpdateSettlementStatus_Rejections(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.expense(t, aliceBob, "40", "alice", "alice", "bob")
	cash := f.settle(t, aliceBob, "bob", "alice", "20")

	_, err := f.svc.UpdateSettlementStatus(ctx, e.ID, ledger.StatusCompleted, "")
	assert.ErrorIs(t, err, ledger.ErrNotExternalSettlement)

	_, err = f.svc.UpdateSettlementStatus(ctx, cash.ID, ledger.StatusFailed, "")
	assert.ErrorIs(t, err, ledger.ErrNotExternalSettlement)

	_, err = f.svc.UpdateSettlementStatus(ctx, cash.ID, "refunded", "")
	assert.ErrorIs(t, err, ledger.ErrInvalidStatus)

	_, err = f.svc.UpdateSettlementStatus(ctx, "missing", ledger.StatusCompleted, "")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_UpdateSettlementStatus_DeletedIsFrozen(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expense(t, aliceBob, "40", "alice", "alice", "bob")

	// GIVEN: A pending external settlement that bob then deleted
	in := ledger.NewSettlement(aliceBob, "bob", "alice", dec("20"), ledger.MethodExternal)
	in.Provider = "upi"
	s, err := f.svc.CreateEntry(ctx, in)
	require.NoError(t, err)
	require.NoError(t, f.svc.DeleteEntry(ctx, s.ID, "bob"))
	before := len(f.notes.types())

	// WHEN: A late provider callback arrives
	_, err = f.svc.UpdateSettlementStatus(ctx, s.ID, ledger.StatusCompleted, "tx-1")

	// THEN: It is refused and the stored status is untouched
	require.ErrorIs(t, err, ledger.ErrEntryDeleted)
	assert.True(t, ledger.IsConflict(err))
	stored, err := f.svc.GetEntry(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusPending, stored.Status)
	assert.Len(t, f.notes.types(), before)
}

func TestService_ExpirePendingSettlements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	in := ledger.NewSettlement(aliceBob, "bob", "alice", dec("20"), ledger.MethodExternal)
	s, err := f.svc.CreateEntry(ctx, in)
	require.NoError(t, err)
	f.settle(t, aliceBob, "alice", "bob", "5")

	// WHEN: Sweeping with a window the pending payment has outlived
	n, err := f.svc.ExpirePendingSettlements(ctx, 0)

	// THEN: Only the external one fails, and a second sweep is a no-op
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := f.svc.GetEntry(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusFailed, got.Status)

	n, err = f.svc.ExpirePendingSettlements(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestService_ExpirePendingSettlements_RespectsAge(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	_, err := f.svc.CreateEntry(ctx, ledger.NewSettlement(aliceBob, "bob", "alice", dec("20"), ledger.MethodExternal))
	require.NoError(t, err)

	n, err := f.svc.ExpirePendingSettlements(ctx, 24*time.Hour)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

// =============================================================================
// END-TO-END SCENARIOS
// =============================================================================

func TestService_GroupScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// GIVEN: Alice pays 90 for dinner split three ways
	dinner := f.expense(t, tripGroup, "90", "alice", "alice", "bob", "carol")

	sheet, err := f.svc.GetBalances(ctx, tripGroup, "alice")
	require.NoError(t, err)
	assertDecimal(t, "30", sheet.Of("bob"))
	assertDecimal(t, "30", sheet.Of("carol"))

	// WHEN: Bob settles his part
	f.settle(t, tripGroup, "bob", "alice", "30")

	sheet, err = f.svc.GetBalances(ctx, tripGroup, "alice")
	require.NoError(t, err)
	_, hasBob := sheet.Counterparties["bob"]
	assert.False(t, hasBob)
	assertDecimal(t, "30", sheet.Of("carol"))

	settled, err := f.svc.IsEntrySettled(ctx, dinner.ID)
	require.NoError(t, err)
	assert.False(t, settled, "carol has not paid yet")

	// WHEN: Carol settles too
	f.settle(t, tripGroup, "carol", "alice", "30")

	settled, err = f.svc.IsEntrySettled(ctx, dinner.ID)
	require.NoError(t, err)
	assert.True(t, settled)

	// THEN: The dinner can no longer be deleted
	err = f.svc.DeleteEntry(ctx, dinner.ID, "alice")
	assert.ErrorIs(t, err, ledger.ErrAlreadySettled)
	assert.True(t, ledger.IsConflict(err))
}

func TestService_DirectScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// GIVEN: Alice pays 50 lunch with Bob, 25/25
	lunch := f.expense(t, aliceBob, "50", "alice", "alice", "bob")

	sheet, err := f.svc.GetBalances(ctx, aliceBob, "alice")
	require.NoError(t, err)
	assertDecimal(t, "25", sheet.Of("bob"))

	// WHEN: Carol tries to delete it
	err = f.svc.DeleteEntry(ctx, lunch.ID, "carol")
	assert.ErrorIs(t, err, ledger.ErrForbidden)

	// WHEN: Alice deletes it
	require.NoError(t, f.svc.DeleteEntry(ctx, lunch.ID, "alice"))

	// THEN: Nothing is owed
	sheet, err = f.svc.GetBalances(ctx, aliceBob, "alice")
	require.NoError(t, err)
	assert.Empty(t, sheet.Counterparties)

	// WHEN: Alice restores it
	require.NoError(t, f.svc.RestoreEntry(ctx, lunch.ID, "alice"))

	sheet, err = f.svc.GetBalances(ctx, aliceBob, "alice")
	require.NoError(t, err)
	assertDecimal(t, "25", sheet.Of("bob"))
}

func TestService_MultiPayerScenario(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	_, err := f.svc.CreateEntry(ctx, ledger.NewEntry{
		Kind:   ledger.KindExpense,
		Scope:  aliceBob,
		Amount: dec("100"),
		Policy: ledger.SplitEqual,
		Participants: []ledger.SplitParticipant{
			{Party: "alice"}, {Party: "bob"},
		},
		Payers: []ledger.Payer{
			{Party: "alice", Amount: ledger.Amount(dec("60"))},
			{Party: "bob", Amount: ledger.Amount(dec("40"))},
		},
		CreatedBy: "bob",
	})
	require.NoError(t, err)

	sheet, err := f.svc.GetBalances(ctx, aliceBob, "alice")
	require.NoError(t, err)
	assert.Len(t, sheet.Counterparties, 1)
	assertDecimal(t, "10", sheet.Of("bob"))
}

// =============================================================================
// DELETE / RESTORE
// =============================================================================

func TestService_DeleteRestore_Idempotent(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.expense(t, aliceBob, "50", "alice", "alice", "bob")

	require.NoError(t, f.svc.DeleteEntry(ctx, e.ID, "alice"))
	require.NoError(t, f.svc.DeleteEntry(ctx, e.ID, "alice"))
	require.NoError(t, f.svc.RestoreEntry(ctx, e.ID, "alice"))
	require.NoError(t, f.svc.RestoreEntry(ctx, e.ID, "alice"))

	// Only real transitions are announced
	assert.Equal(t, []ledger.ChangeType{
		ledger.ChangeExpenseAdded,
		ledger.ChangeEntryDeleted,
		ledger.ChangeEntryRestored,
	}, f.notes.types())
}

func TestService_Delete_ForbiddenEvenWhenAlreadyDeleted(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.expense(t, aliceBob, "50", "alice", "alice", "bob")
	require.NoError(t, f.svc.DeleteEntry(ctx, e.ID, "alice"))

	assert.ErrorIs(t, f.svc.DeleteEntry(ctx, e.ID, "bob"), ledger.ErrForbidden)
	assert.ErrorIs(t, f.svc.RestoreEntry(ctx, e.ID, "bob"), ledger.ErrForbidden)
}

func TestService_DeleteSettlementUnblocksExpense(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dinner := f.expense(t, tripGroup, "90", "alice", "alice", "bob", "carol")
	bob := f.settle(t, tripGroup, "bob", "alice", "30")
	f.settle(t, tripGroup, "carol", "alice", "30")
	require.ErrorIs(t, f.svc.DeleteEntry(ctx, dinner.ID, "alice"), ledger.ErrAlreadySettled)

	// WHEN: Bob takes his settlement back
	require.NoError(t, f.svc.DeleteEntry(ctx, bob.ID, "bob"))

	// THEN: The dinner is open again and may be deleted
	settled, err := f.svc.IsEntrySettled(ctx, dinner.ID)
	require.NoError(t, err)
	assert.False(t, settled)
	assert.NoError(t, f.svc.DeleteEntry(ctx, dinner.ID, "alice"))
}

func TestService_UnknownEntry(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	assert.ErrorIs(t, f.svc.DeleteEntry(ctx, "nope", "alice"), ledger.ErrNotFound)
	assert.ErrorIs(t, f.svc.RestoreEntry(ctx, "nope", "alice"), ledger.ErrNotFound)
	_, err := f.svc.IsEntrySettled(ctx, "nope")
	assert.True(t, ledger.IsNotFound(err))
}

func TestService_IsEntrySettled_FalseForDeletedAndSettlements(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	lunch := f.expense(t, aliceBob, "50", "alice", "alice", "bob")
	s := f.settle(t, aliceBob, "bob", "alice", "25")

	settled, err := f.svc.IsEntrySettled(ctx, lunch.ID)
	require.NoError(t, err)
	assert.True(t, settled)

	settled, err = f.svc.IsEntrySettled(ctx, s.ID)
	require.NoError(t, err)
	assert.False(t, settled)
}

func TestService_ConcurrentDeletesAnnounceOnce(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	e := f.expense(t, aliceBob, "50", "alice", "alice", "bob")

	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, f.svc.DeleteEntry(ctx, e.ID, "alice"))
		}()
	}
	wg.Wait()

	deletes := 0
	for _, c := range f.notes.types() {
		if c == ledger.ChangeEntryDeleted {
			deletes++
		}
	}
	assert.Equal(t, 1, deletes)
}

// =============================================================================
// LISTINGS
// =============================================================================

func TestService_ListEntries_NewestFirstActiveOnly(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	first := f.expense(t, tripGroup, "30", "alice", "alice", "bob")
	second := f.expense(t, tripGroup, "60", "bob", "bob", "carol")
	third := f.expense(t, tripGroup, "15", "carol", "carol", "alice")
	require.NoError(t, f.svc.DeleteEntry(ctx, second.ID, "bob"))

	entries, err := f.svc.ListEntries(ctx, tripGroup)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, third.ID, entries[0].ID)
	assert.Equal(t, first.ID, entries[1].ID)
}

func TestService_ListPartyEntries_AcrossScopes(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	// GIVEN: Bob has entries in the trip group and with alice directly
	dinner := f.expense(t, tripGroup, "90", "alice", "alice", "bob", "carol")
	taxi := f.expense(t, tripGroup, "20", "carol", "carol", "alice")
	lunch := f.expense(t, aliceBob, "40", "alice", "alice", "bob")
	cash := f.settle(t, aliceBob, "bob", "alice", "20")
	gone := f.expense(t, aliceBob, "10", "bob", "alice", "bob")
	require.NoError(t, f.svc.DeleteEntry(ctx, gone.ID, "bob"))

	// WHEN: Listing everything bob takes part in
	entries, err := f.svc.ListPartyEntries(ctx, "bob")
	require.NoError(t, err)

	// THEN: Active entries only, newest first, without entries bob is not on
	ids := make([]ledger.EntryID, len(entries))
	for i, e := range entries {
		ids[i] = e.ID
	}
	assert.Equal(t, []ledger.EntryID{cash.ID, lunch.ID, dinner.ID}, ids)
	assert.NotContains(t, ids, taxi.ID)
}

func TestService_Outstanding(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	dinner := f.expense(t, tripGroup, "90", "alice", "alice", "bob", "carol")

	// GIVEN: Bob and carol each owe alice 30
	owed, err := f.svc.Outstanding(ctx, dinner.ID)
	require.NoError(t, err)
	require.Len(t, owed, 2)

	// WHEN: Bob pays 30 and carol pays 10
	f.settle(t, tripGroup, "bob", "alice", "30")
	cash := f.settle(t, tripGroup, "carol", "alice", "10")

	// THEN: Only carol's remaining 20 is outstanding
	owed, err = f.svc.Outstanding(ctx, dinner.ID)
	require.NoError(t, err)
	require.Len(t, owed, 1)
	assert.Equal(t, ledger.PartyID("carol"), owed[0].Debtor)
	assert.Equal(t, ledger.PartyID("alice"), owed[0].Creditor)
	assertDecimal(t, "20", owed[0].Amount)

	// Settlements and deleted expenses owe nothing
	none, err := f.svc.Outstanding(ctx, cash.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	lunch := f.expense(t, aliceBob, "40", "alice", "alice", "bob")
	require.NoError(t, f.svc.DeleteEntry(ctx, lunch.ID, "alice"))
	none, err = f.svc.Outstanding(ctx, lunch.ID)
	require.NoError(t, err)
	assert.Empty(t, none)

	_, err = f.svc.Outstanding(ctx, "missing")
	assert.ErrorIs(t, err, ledger.ErrNotFound)
}

func TestService_ListDeleted_OnlyRestorable(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	mine := f.expense(t, tripGroup, "30", "alice", "alice", "bob")
	theirs := f.expense(t, tripGroup, "60", "bob", "alice", "bob")
	require.NoError(t, f.svc.DeleteEntry(ctx, mine.ID, "alice"))
	require.NoError(t, f.svc.DeleteEntry(ctx, theirs.ID, "bob"))

	deleted, err := f.svc.ListDeleted(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, deleted, 1)
	assert.Equal(t, mine.ID, deleted[0].ID)
}

// =============================================================================
// OVERALL / SETTLE UP / CORRUPTION
// =============================================================================

func TestService_GetOverallBalances(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expense(t, tripGroup, "90", "alice", "alice", "bob", "carol")
	f.expense(t, aliceBob, "100", "bob", "alice", "bob")

	o, err := f.svc.GetOverallBalances(ctx, "alice")
	require.NoError(t, err)

	assertDecimal(t, "20", o.YouOwe)
	assertDecimal(t, "30", o.YouAreOwed)
	assertDecimal(t, "10", o.Net)
	assert.Len(t, o.Scopes, 2)
}

func TestService_SettleUp(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expense(t, tripGroup, "90", "alice", "alice", "bob", "carol")

	transfers, err := f.svc.SettleUp(ctx, tripGroup, "bob")
	require.NoError(t, err)
	require.Len(t, transfers, 1)
	assert.Equal(t, ledger.PartyID("bob"), transfers[0].From)
	assert.Equal(t, ledger.PartyID("alice"), transfers[0].To)
	assertDecimal(t, "30", transfers[0].Amount)
}

func TestService_GetBalances_SkipsCorruptRows(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	f.expense(t, tripGroup, "90", "alice", "alice", "bob", "carol")

	// GIVEN: A stored row whose shares do not cover its amount
	f.mem.Put(ledger.Entry{
		ID:            "bad",
		Kind:          ledger.KindExpense,
		Scope:         tripGroup,
		Amount:        dec("80"),
		Contributions: []ledger.Line{{Party: "bob", Amount: dec("80")}},
		Shares:        []ledger.Line{{Party: "alice", Amount: dec("10")}},
		CreatedBy:     "bob",
		RecordedAt:    t0.Add(time.Hour),
	})

	sheet, err := f.svc.GetBalances(ctx, tripGroup, "alice")

	require.NoError(t, err)
	assertDecimal(t, "30", sheet.Of("bob"))
	require.Len(t, sheet.Warnings, 1)
	assert.Equal(t, ledger.EntryID("bad"), sheet.Warnings[0].EntryID)
}
