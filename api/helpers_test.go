package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
	"github.com/warp/splitledger/activity"
	"github.com/warp/splitledger/ledger"
	"github.com/warp/splitledger/store/sqlite"
	"github.com/warp/splitledger/store/sqlstore"
)

// stepClock advances one minute per reading so every write is strictly
// later than the one before.
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

// syncFeed records activity inline so tests can read it back immediately.
type syncFeed struct {
	*activity.MemorySink
}

func (f syncFeed) Notify(ctx context.Context, c ledger.Change) {
	f.Save(ctx, activity.FromChange(c))
}

type testServer struct {
	router  chi.Router
	handler *Handler
	store   *sqlstore.Store
	feed    syncFeed
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestServer(t *testing.T, cfg RouterConfig) *testServer {
	t.Helper()
	ctx := context.Background()

	st, err := sqlite.New(ctx, sqlite.Memory)
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	for _, p := range []ledger.PartyID{"alice", "bob", "carol", "dave"} {
		require.NoError(t, st.SaveParty(ctx, ledger.Party{ID: p, Name: string(p)}))
	}
	require.NoError(t, st.SaveGroup(ctx, ledger.Group{
		ID:        "trip",
		Name:      "Trip",
		CreatedBy: "alice",
		Members:   []ledger.PartyID{"alice", "bob", "carol"},
	}))

	feed := syncFeed{&activity.MemorySink{}}
	clock := &stepClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
	svc := ledger.NewService(st, st,
		ledger.WithNotifier(feed),
		ledger.WithClock(clock.Now),
		ledger.WithLogger(quietLogger()),
	)

	h := NewHandler(svc, st, feed)
	h.Logger = quietLogger()
	return &testServer{router: NewRouter(h, cfg), handler: h, store: st, feed: feed}
}

// do sends a request as party; an empty party sends no credentials.
func (s *testServer) do(t *testing.T, method, path string, party ledger.PartyID, body any) *httptest.ResponseRecorder {
	t.Helper()
	var rdr io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, rdr)
	req.Header.Set("Content-Type", "application/json")
	if party != "" {
		req.Header.Set(PartyHeader, string(party))
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeJSON[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v), rec.Body.String())
	return v
}

func requireStatus(t *testing.T, rec *httptest.ResponseRecorder, status int) {
	t.Helper()
	require.Equal(t, status, rec.Code, rec.Body.String())
}

// tripExpense is "payer paid amount for everyone in the trip, split equally".
func tripExpense(payer, amount string) map[string]any {
	return map[string]any{
		"group_id":    "trip",
		"amount":      amount,
		"description": "dinner",
		"payers":      []map[string]string{{"party_id": payer}},
		"participants": []map[string]string{
			{"party_id": "alice"}, {"party_id": "bob"}, {"party_id": "carol"},
		},
	}
}

func (s *testServer) createTripExpense(t *testing.T, payer, amount string) EntryDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/expenses", ledger.PartyID(payer), tripExpense(payer, amount))
	requireStatus(t, rec, http.StatusCreated)
	return decodeJSON[EntryDTO](t, rec)
}

func (s *testServer) settle(t *testing.T, from, to, amount string) EntryDTO {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/api/settlements", ledger.PartyID(from), map[string]any{
		"group_id": "trip",
		"to":       to,
		"amount":   amount,
	})
	requireStatus(t, rec, http.StatusCreated)
	return decodeJSON[EntryDTO](t, rec)
}

func counterparties(sheet BalanceSheetDTO) map[string]string {
	out := make(map[string]string)
	for _, c := range sheet.Counterparties {
		out[c.PartyID] = c.Amount
	}
	return out
}
