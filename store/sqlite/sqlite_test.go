package sqlite_test

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/activity"
	"github.com/warp/splitledger/ledger"
	"github.com/warp/splitledger/store/sqlite"
	"github.com/warp/splitledger/store/sqlstore"
)

func newStore(t *testing.T) *sqlstore.Store {
	t.Helper()
	ctx := context.Background()
	st, err := sqlite.New(ctx, sqlite.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, p := range []ledger.PartyID{"alice", "bob", "carol"} {
		require.NoError(t, st.SaveParty(ctx, ledger.Party{ID: p, Name: string(p)}))
	}
	require.NoError(t, st.SaveGroup(ctx, ledger.Group{
		ID:        "trip",
		Name:      "Goa",
		CreatedBy: "alice",
		Members:   []ledger.PartyID{"alice", "bob", "carol"},
	}))
	return st
}

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

var base = time.Date(2026, 3, 1, 12, 0, 0, 123456789, time.UTC)

func dinner(id string, at time.Time) ledger.Entry {
	return ledger.Entry{
		ID:            ledger.EntryID(id),
		Kind:          ledger.KindExpense,
		Scope:         ledger.GroupScope("trip"),
		Description:   "dinner",
		Amount:        d("90"),
		Contributions: []ledger.Line{{Party: "alice", Amount: d("90")}},
		Shares: []ledger.Line{
			{Party: "alice", Amount: d("30")},
			{Party: "bob", Amount: d("30")},
			{Party: "carol", Amount: d("30")},
		},
		CreatedBy:  "alice",
		OccurredAt: at.Add(-time.Hour),
		RecordedAt: at,
	}
}

func TestNew_MigrateIsIdempotent(t *testing.T) {
	st := newStore(t)
	assert.NoError(t, st.Migrate(context.Background()))
}

func TestInsertGet_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	want := dinner("e1", base)

	require.NoError(t, st.Insert(ctx, want))
	got, err := st.Get(ctx, "e1")

	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want.Scope, got.Scope)
	assert.Equal(t, want.Description, got.Description)
	assert.True(t, want.Amount.Equal(got.Amount))
	assert.True(t, want.RecordedAt.Equal(got.RecordedAt))
	assert.True(t, want.OccurredAt.Equal(got.OccurredAt))
	require.Len(t, got.Shares, 3)
	assert.Equal(t, ledger.PartyID("carol"), got.Shares[2].Party)
	assert.False(t, got.Deleted)
	assert.NoError(t, got.CheckIntegrity())
}

func TestInsert_DuplicateID(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Insert(ctx, dinner("e1", base)))
	assert.Error(t, st.Insert(ctx, dinner("e1", base)))
}

func TestListByScope_OrderedIncludingDeleted(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Insert(ctx, dinner("late", base.Add(time.Hour))))
	require.NoError(t, st.Insert(ctx, dinner("early", base)))
	require.NoError(t, st.SetDeleted(ctx, "early", true))

	got, err := st.ListByScope(ctx, ledger.GroupScope("trip"))

	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, ledger.EntryID("early"), got[0].ID)
	assert.True(t, got[0].Deleted)
	assert.Equal(t, ledger.EntryID("late"), got[1].ID)
}

func TestListByParty(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Insert(ctx, dinner("e1", base)))

	direct := ledger.Entry{
		ID:            "e2",
		Kind:          ledger.KindExpense,
		Scope:         ledger.DirectScope("alice", "bob"),
		Amount:        d("10"),
		Contributions: []ledger.Line{{Party: "bob", Amount: d("10")}},
		Shares:        []ledger.Line{{Party: "bob", Amount: d("10")}},
		CreatedBy:     "alice",
		OccurredAt:    base,
		RecordedAt:    base.Add(time.Minute),
	}
	require.NoError(t, st.Insert(ctx, direct))

	alice, err := st.ListByParty(ctx, "alice")
	require.NoError(t, err)
	assert.Len(t, alice, 2, "creator without lines still matches")

	carol, err := st.ListByParty(ctx, "carol")
	require.NoError(t, err)
	assert.Len(t, carol, 1)
}

func TestSettlementStatusAndPending(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	s := ledger.Entry{
		ID:            "s1",
		Kind:          ledger.KindSettlement,
		Scope:         ledger.GroupScope("trip"),
		Amount:        d("30"),
		Contributions: []ledger.Line{{Party: "bob", Amount: d("30")}},
		Shares:        []ledger.Line{{Party: "alice", Amount: d("30")}},
		CreatedBy:     "bob",
		OccurredAt:    base,
		RecordedAt:    base,
		Method:        ledger.MethodExternal,
		Provider:      "upi",
		Status:        ledger.StatusPending,
	}
	require.NoError(t, st.Insert(ctx, s))

	pending, err := st.ListPendingExternal(ctx, base.Add(time.Second))
	require.NoError(t, err)
	require.Len(t, pending, 1)

	pending, err = st.ListPendingExternal(ctx, base)
	require.NoError(t, err)
	assert.Empty(t, pending, "cutoff is exclusive")

	require.NoError(t, st.UpdateSettlement(ctx, "s1", ledger.StatusCompleted, "tx-7"))
	got, err := st.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, ledger.StatusCompleted, got.Status)
	assert.Equal(t, "tx-7", got.TransactionRef)

	assert.ErrorIs(t, st.UpdateSettlement(ctx, "nope", ledger.StatusFailed, ""), ledger.ErrNotFound)
	assert.ErrorIs(t, st.SetDeleted(ctx, "nope", true), ledger.ErrNotFound)
}

func TestDirectory(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	members, ok, err := st.GroupMembers(ctx, "trip")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []ledger.PartyID{"alice", "bob", "carol"}, members)

	_, ok, err = st.GroupMembers(ctx, "nowhere")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Error(t, st.SaveGroup(ctx, ledger.Group{ID: "flat", Name: "Flat", Members: []ledger.PartyID{"alice", "ghost"}}))

	exists, err := st.PartyExists(ctx, "bob")
	require.NoError(t, err)
	assert.True(t, exists)

	p, err := st.GetParty(ctx, "carol")
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.Equal(t, "carol", p.Name)

	parties, err := st.ListParties(ctx)
	require.NoError(t, err)
	assert.Len(t, parties, 3)
}

func TestActivityFeed(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)

	first := activity.FromChange(ledger.Change{
		Type:  ledger.ChangeExpenseAdded,
		Entry: dinner("e1", base),
		Actor: "alice",
		At:    base,
	})
	second := activity.FromChange(ledger.Change{
		Type:  ledger.ChangeEntryDeleted,
		Entry: dinner("e1", base),
		Actor: "alice",
		At:    base.Add(time.Minute),
	})
	require.NoError(t, st.Save(ctx, first))
	require.NoError(t, st.Save(ctx, second))

	feed, err := st.ListActivity(ctx, "bob", 10)
	require.NoError(t, err)
	require.Len(t, feed, 2)
	assert.Equal(t, ledger.ChangeEntryDeleted, feed[0].Type)
	assert.Equal(t, second.ID, feed[0].ID)
	assert.ElementsMatch(t, []ledger.PartyID{"alice", "bob", "carol"}, feed[0].Parties)

	limited, err := st.ListActivity(ctx, "bob", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	none, err := st.ListActivity(ctx, "dave", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestReset(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	require.NoError(t, st.Insert(ctx, dinner("e1", base)))

	require.NoError(t, st.Reset(ctx))

	got, err := st.Get(ctx, "e1")
	require.NoError(t, err)
	assert.Nil(t, got)
	exists, err := st.PartyExists(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestService_GroupScenarioOnSQLite(t *testing.T) {
	ctx := context.Background()
	st := newStore(t)
	svc := ledger.NewService(st, st, ledger.WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))))
	trip := ledger.GroupScope("trip")

	// GIVEN: Alice pays 90 split equally, Bob settles 30
	e, err := svc.CreateEntry(ctx, ledger.NewEntry{
		Kind:   ledger.KindExpense,
		Scope:  trip,
		Amount: d("90"),
		Participants: []ledger.SplitParticipant{
			{Party: "alice"}, {Party: "bob"}, {Party: "carol"},
		},
		Payers:    []ledger.Payer{{Party: "alice"}},
		CreatedBy: "alice",
	})
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = svc.CreateEntry(ctx, ledger.NewSettlement(trip, "bob", "alice", d("30"), ledger.MethodCash))
	require.NoError(t, err)

	// THEN: Only Carol still owes, and the dinner is open
	sheet, err := svc.GetBalances(ctx, trip, "alice")
	require.NoError(t, err)
	assert.Len(t, sheet.Counterparties, 1)
	assert.True(t, sheet.Of("carol").Equal(d("30")))

	settled, err := svc.IsEntrySettled(ctx, e.ID)
	require.NoError(t, err)
	assert.False(t, settled)

	// WHEN: Alice deletes it
	require.NoError(t, svc.DeleteEntry(ctx, e.ID, "alice"))

	// THEN: Bob's settlement now leaves Alice owing him
	sheet, err = svc.GetBalances(ctx, trip, "alice")
	require.NoError(t, err)
	assert.True(t, sheet.Of("bob").Equal(d("-30")))
}
