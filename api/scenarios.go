/*
scenarios.go - Demo scenario loaders for testing and demonstrations

PURPOSE:

	Provides pre-built scenarios that populate the database with realistic
	data for demos. Each scenario creates parties, optionally a group, and
	a short history of expenses and settlements. All entries go through
	ledger.Service, so they are validated exactly like API writes.

AVAILABLE SCENARIOS:

	goa-trip:   Group of three, equal splits, one partial cash settlement
	roommates:  Direct pair, exact splits, a pending external settlement
	dinner:     Group of four, two payers, percentage split

HOW SCENARIOS WORK:
 1. Reset database (clear all data)
 2. Create parties and groups
 3. Record expenses and settlements in order

USAGE VIA API:

	POST /api/scenarios/load
	{"scenario_id": "goa-trip"}

NOTE:

	Scenarios reset the database. Only use in development/demo environments.

SEE ALSO:
  - handlers.go: Handler context
*/
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/warp/splitledger/ledger"
)

// =============================================================================
// SCENARIO DEFINITIONS
// =============================================================================

var scenarios = []ScenarioDTO{
	{
		ID:          "goa-trip",
		Name:        "Goa Trip",
		Description: "Three friends split a hotel and a dinner equally; Carol pays Alice back part of her share",
	},
	{
		ID:          "roommates",
		Name:        "Roommates",
		Description: "Alice and Bob split rent and utilities with exact amounts; Bob settles through a payment provider",
	},
	{
		ID:          "dinner",
		Name:        "Friday Dinner",
		Description: "Two people pay one bill that four people split by percentage",
	},
}

var scenarioLoaders = map[string]func(h *Handler, ctx context.Context) error{
	"goa-trip":  (*Handler).loadGoaTripScenario,
	"roommates": (*Handler).loadRoommatesScenario,
	"dinner":    (*Handler).loadDinnerScenario,
}

// ListScenarios returns available scenarios.
func (h *Handler) ListScenarios(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, scenarios)
}

// GetCurrentScenario returns the currently loaded scenario, if any.
func (h *Handler) GetCurrentScenario(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	current := h.currentScenario
	h.mu.Unlock()

	for _, s := range scenarios {
		if s.ID == current {
			writeJSON(w, http.StatusOK, s)
			return
		}
	}
	writeJSON(w, http.StatusOK, nil)
}

// LoadScenario resets the database and loads a predefined scenario.
func (h *Handler) LoadScenario(w http.ResponseWriter, r *http.Request) {
	var req LoadScenarioRequest
	if !h.decode(w, r, &req) {
		return
	}
	load, ok := scenarioLoaders[req.ScenarioID]
	if !ok {
		writeError(w, http.StatusBadRequest, "Unknown scenario", map[string]string{"scenario_id": req.ScenarioID})
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	ctx := r.Context()
	if err := h.Store.Reset(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to reset database", err)
		return
	}
	h.currentScenario = ""

	if err := load(h, ctx); err != nil {
		writeError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load scenario: %v", err), err)
		return
	}
	h.currentScenario = req.ScenarioID

	writeJSON(w, http.StatusOK, map[string]string{"status": "loaded", "scenario": req.ScenarioID})
}

// =============================================================================
// SCENARIO LOADERS
// =============================================================================

func (h *Handler) seedParties(ctx context.Context, ids ...ledger.PartyID) error {
	for _, id := range ids {
		name := string(id)
		p := ledger.Party{ID: id, Name: strings.ToUpper(name[:1]) + name[1:], Email: name + "@example.com"}
		if err := h.Store.SaveParty(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

func (h *Handler) seedGroup(ctx context.Context, id ledger.GroupID, name string, members ...ledger.PartyID) error {
	if err := h.seedParties(ctx, members...); err != nil {
		return err
	}
	return h.Store.SaveGroup(ctx, ledger.Group{ID: id, Name: name, CreatedBy: members[0], Members: members})
}

// record creates entries in order and stops at the first failure.
func (h *Handler) record(ctx context.Context, entries ...ledger.NewEntry) error {
	for _, in := range entries {
		if _, err := h.Service.CreateEntry(ctx, in); err != nil {
			return fmt.Errorf("%s: %w", in.Description, err)
		}
	}
	return nil
}

func equalExpense(scope ledger.Scope, payer ledger.PartyID, amount, description string, sharers ...ledger.PartyID) ledger.NewEntry {
	in := ledger.NewEntry{
		Kind:        ledger.KindExpense,
		Scope:       scope,
		Amount:      ledger.MustParseDecimal(amount),
		Description: description,
		Policy:      ledger.SplitEqual,
		Payers:      []ledger.Payer{{Party: payer}},
		CreatedBy:   payer,
	}
	for _, s := range sharers {
		in.Participants = append(in.Participants, ledger.SplitParticipant{Party: s})
	}
	return in
}

func line(p ledger.PartyID, amount string) ledger.Line {
	return ledger.Line{Party: p, Amount: ledger.MustParseDecimal(amount)}
}

// goa-trip: alice is owed 200 by bob and 100 by carol; carol owes bob 100.
func (h *Handler) loadGoaTripScenario(ctx context.Context) error {
	if err := h.seedGroup(ctx, "goa-trip", "Goa Trip", "alice", "bob", "carol"); err != nil {
		return err
	}
	trip := ledger.GroupScope("goa-trip")

	settle := ledger.NewSettlement(trip, "carol", "alice", ledger.MustParseDecimal("200"), ledger.MethodCash)
	return h.record(ctx,
		equalExpense(trip, "alice", "900", "Beach hotel", "alice", "bob", "carol"),
		equalExpense(trip, "bob", "300", "Seafood dinner", "alice", "bob", "carol"),
		settle,
	)
}

// roommates: bob owes alice 540 until the pending external settlement completes.
func (h *Handler) loadRoommatesScenario(ctx context.Context) error {
	if err := h.seedParties(ctx, "alice", "bob"); err != nil {
		return err
	}
	flat := ledger.DirectScope("alice", "bob")

	rent := ledger.NewEntry{
		Kind:        ledger.KindExpense,
		Scope:       flat,
		Amount:      ledger.MustParseDecimal("1200"),
		Description: "March rent",
		Payers:      []ledger.Payer{{Party: "alice"}},
		Shares:      []ledger.Line{line("alice", "600"), line("bob", "600")},
		CreatedBy:   "alice",
	}
	utilities := ledger.NewEntry{
		Kind:        ledger.KindExpense,
		Scope:       flat,
		Amount:      ledger.MustParseDecimal("150"),
		Description: "Electricity and internet",
		Payers:      []ledger.Payer{{Party: "bob"}},
		Shares:      []ledger.Line{line("alice", "60"), line("bob", "90")},
		CreatedBy:   "bob",
	}
	payback := ledger.NewSettlement(flat, "bob", "alice", ledger.MustParseDecimal("540"), ledger.MethodExternal)
	payback.Provider = "upi"
	payback.TransactionRef = "upi-demo-0001"

	return h.record(ctx, rent, utilities, payback)
}

// dinner: alice and bob pay 60/40 of a 100 bill split 40/30/20/10.
func (h *Handler) loadDinnerScenario(ctx context.Context) error {
	if err := h.seedGroup(ctx, "friday-dinner", "Friday Dinner", "alice", "bob", "carol", "dave"); err != nil {
		return err
	}

	pct := func(p ledger.PartyID, v string) ledger.SplitParticipant {
		return ledger.SplitParticipant{Party: p, Value: ledger.Amount(ledger.MustParseDecimal(v))}
	}
	return h.record(ctx, ledger.NewEntry{
		Kind:        ledger.KindExpense,
		Scope:       ledger.GroupScope("friday-dinner"),
		Amount:      ledger.MustParseDecimal("100"),
		Description: "Dinner at Toit",
		Policy:      ledger.SplitPercentage,
		Participants: []ledger.SplitParticipant{
			pct("alice", "40"), pct("bob", "30"), pct("carol", "20"), pct("dave", "10"),
		},
		Payers: []ledger.Payer{
			{Party: "alice", Amount: ledger.Amount(ledger.MustParseDecimal("60"))},
			{Party: "bob", Amount: ledger.Amount(ledger.MustParseDecimal("40"))},
		},
		CreatedBy: "alice",
	})
}
