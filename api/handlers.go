/*
handlers.go - HTTP API handlers for the shared-expense ledger

PURPOSE:
  Exposes ledger.Service via REST. Handles HTTP request/response and JSON
  serialization, and delegates every rule to the ledger package.

ENDPOINTS:
  Entries:
    POST   /api/expenses                    Create expense
    POST   /api/settlements                 Create settlement
    PATCH  /api/settlements/{id}/status     Provider callback
    GET    /api/entries/{id}                Entry with settled flag and outstanding debts
    DELETE /api/entries/{id}                Soft delete
    POST   /api/entries/{id}/restore        Restore

  Balances (viewpoint = acting party):
    GET    /api/groups/{id}/entries|balances|settle-up
    GET    /api/direct/{party}/entries|balances
    GET    /api/me/entries|balances|deleted|activity

  Admin & scenarios:
    POST   /api/admin/parties, /api/admin/groups, /api/admin/sweep
    GET    /api/scenarios, POST /api/scenarios/load

REQUEST FLOW:
  1. Resolve actor (auth.go)
  2. Decode and validate body (validation.go)
  3. Call ledger.Service
  4. Serialize response (dto.go)

ERROR HANDLING:
  - 400: Validation errors, invalid amounts, splits or scopes
  - 401: No resolvable party
  - 403: Not creator/payer, or not a group member
  - 404: Unknown entry or group
  - 409: Expense already settled, or settlement deleted
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - scenarios.go: Demo scenario loaders
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"sync"

	"github.com/go-chi/chi/v5"
	"github.com/warp/splitledger/activity"
	"github.com/warp/splitledger/ledger"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Store is what the handlers need beyond the ledger service: membership
// lookups for read access, directory seeding and a reset for scenarios.
type Store interface {
	ledger.Directory
	SaveParty(ctx context.Context, p ledger.Party) error
	SaveGroup(ctx context.Context, g ledger.Group) error
	ListParties(ctx context.Context) ([]ledger.Party, error)
	Reset(ctx context.Context) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Service   *ledger.Service
	Store     Store
	Feed      activity.Feed
	Sweeper   *PendingSettlementSweeper
	FeedLimit int
	Logger    *slog.Logger

	validate *ValidationHelper

	mu              sync.Mutex
	currentScenario string
}

// NewHandler creates a handler. feed may be nil, in which case the activity
// endpoint returns an empty list.
func NewHandler(svc *ledger.Service, store Store, feed activity.Feed) *Handler {
	return &Handler{
		Service:   svc,
		Store:     store,
		Feed:      feed,
		FeedLimit: 50,
		Logger:    slog.Default(),
		validate:  NewValidationHelper(),
	}
}

// =============================================================================
// ENTRY HANDLERS
// =============================================================================

// CreateExpense records an expense created by the acting party.
// POST /api/expenses
func (h *Handler) CreateExpense(w http.ResponseWriter, r *http.Request) {
	var req CreateExpenseRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toNewEntry(actor(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	e, err := h.Service.CreateEntry(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// CreateSettlement records a payment from the acting party.
// POST /api/settlements
func (h *Handler) CreateSettlement(w http.ResponseWriter, r *http.Request) {
	var req CreateSettlementRequest
	if !h.decode(w, r, &req) {
		return
	}
	in, err := req.toNewEntry(actor(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}

	e, err := h.Service.CreateEntry(r.Context(), in)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toEntryDTO(e))
}

// UpdateSettlementStatus applies a payment-provider callback.
// Any authenticated party may call it; see the SECURITY NOTE in server.go.
// PATCH /api/settlements/{id}/status
func (h *Handler) UpdateSettlementStatus(w http.ResponseWriter, r *http.Request) {
	var req UpdateSettlementStatusRequest
	if !h.decode(w, r, &req) {
		return
	}
	id := ledger.EntryID(chi.URLParam(r, "id"))

	e, err := h.Service.UpdateSettlementStatus(r.Context(), id, ledger.SettlementStatus(req.Status), req.TransactionRef)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// GetEntry returns one entry with its settled flag and the debts it still
// leaves open. Only parties on the entry may read it.
// GET /api/entries/{id}
func (h *Handler) GetEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.EntryID(chi.URLParam(r, "id"))

	e, err := h.Service.GetEntry(ctx, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	who := actor(r)
	if !e.Involves(who) && e.CreatedBy != who {
		writeError(w, http.StatusNotFound, "Entry not found", nil)
		return
	}

	settled, err := h.Service.IsEntrySettled(ctx, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	owed, err := h.Service.Outstanding(ctx, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	outstanding := toOutstandingDTOs(owed)

	dto := toEntryDTO(e)
	dto.Settled = &settled
	dto.Outstanding = &outstanding
	writeJSON(w, http.StatusOK, dto)
}

// DeleteEntry soft-deletes an entry.
// DELETE /api/entries/{id}
func (h *Handler) DeleteEntry(w http.ResponseWriter, r *http.Request) {
	id := ledger.EntryID(chi.URLParam(r, "id"))
	if err := h.Service.DeleteEntry(r.Context(), id, actor(r)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// RestoreEntry undoes a soft delete and returns the entry.
// POST /api/entries/{id}/restore
func (h *Handler) RestoreEntry(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	id := ledger.EntryID(chi.URLParam(r, "id"))
	if err := h.Service.RestoreEntry(ctx, id, actor(r)); err != nil {
		h.writeLedgerError(w, err)
		return
	}
	e, err := h.Service.GetEntry(ctx, id)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTO(e))
}

// =============================================================================
// GROUP HANDLERS
// =============================================================================

// groupScope resolves {id} and checks the actor belongs to the group.
func (h *Handler) groupScope(w http.ResponseWriter, r *http.Request) (ledger.Scope, bool) {
	id := ledger.GroupID(chi.URLParam(r, "id"))
	members, ok, err := h.Store.GroupMembers(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load group", err)
		return ledger.Scope{}, false
	}
	if !ok {
		writeError(w, http.StatusNotFound, "Group not found", nil)
		return ledger.Scope{}, false
	}
	who := actor(r)
	for _, m := range members {
		if m == who {
			return ledger.GroupScope(id), true
		}
	}
	writeError(w, http.StatusForbidden, "Not a member of this group", nil)
	return ledger.Scope{}, false
}

// GET /api/groups/{id}/entries
func (h *Handler) ListGroupEntries(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.groupScope(w, r)
	if !ok {
		return
	}
	h.listEntries(w, r, scope)
}

// GET /api/groups/{id}/balances
func (h *Handler) GetGroupBalances(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.groupScope(w, r)
	if !ok {
		return
	}
	h.balances(w, r, scope)
}

// GetGroupSettleUp returns the transfers that would clear the actor's
// balances in the group.
// GET /api/groups/{id}/settle-up
func (h *Handler) GetGroupSettleUp(w http.ResponseWriter, r *http.Request) {
	scope, ok := h.groupScope(w, r)
	if !ok {
		return
	}
	transfers, err := h.Service.SettleUp(r.Context(), scope, actor(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toTransferDTOs(transfers))
}

// =============================================================================
// DIRECT HANDLERS
// =============================================================================

func directScope(r *http.Request) ledger.Scope {
	return ledger.DirectScope(actor(r), ledger.PartyID(chi.URLParam(r, "party")))
}

// GET /api/direct/{party}/entries
func (h *Handler) ListDirectEntries(w http.ResponseWriter, r *http.Request) {
	h.listEntries(w, r, directScope(r))
}

// GET /api/direct/{party}/balances
func (h *Handler) GetDirectBalances(w http.ResponseWriter, r *http.Request) {
	h.balances(w, r, directScope(r))
}

func (h *Handler) listEntries(w http.ResponseWriter, r *http.Request, scope ledger.Scope) {
	entries, err := h.Service.ListEntries(r.Context(), scope)
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

func (h *Handler) balances(w http.ResponseWriter, r *http.Request, scope ledger.Scope) {
	sheet, err := h.Service.GetBalances(r.Context(), scope, actor(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toBalanceSheetDTO(scope, sheet))
}

// =============================================================================
// ME HANDLERS
// =============================================================================

// GetMyBalances returns the actor's position across every scope.
// GET /api/me/balances
func (h *Handler) GetMyBalances(w http.ResponseWriter, r *http.Request) {
	overall, err := h.Service.GetOverallBalances(r.Context(), actor(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toOverallDTO(overall))
}

// ListMyEntries returns the actor's active entries across every group and
// direct pair, newest first.
// GET /api/me/entries
func (h *Handler) ListMyEntries(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.ListPartyEntries(r.Context(), actor(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// ListMyDeleted returns the "recently deleted" list.
// GET /api/me/deleted
func (h *Handler) ListMyDeleted(w http.ResponseWriter, r *http.Request) {
	entries, err := h.Service.ListDeleted(r.Context(), actor(r))
	if err != nil {
		h.writeLedgerError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEntryDTOs(entries))
}

// ListMyActivity returns the actor's activity feed, newest first.
// GET /api/me/activity?limit=20
func (h *Handler) ListMyActivity(w http.ResponseWriter, r *http.Request) {
	limit := h.FeedLimit
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "Invalid limit", err)
			return
		}
		limit = n
	}

	out := []ActivityDTO{}
	if h.Feed != nil {
		events, err := h.Feed.ListActivity(r.Context(), actor(r), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to load activity", err)
			return
		}
		for _, e := range events {
			out = append(out, toActivityDTO(e))
		}
	}
	writeJSON(w, http.StatusOK, out)
}

// =============================================================================
// ADMIN HANDLERS
// =============================================================================

// POST /api/admin/parties
func (h *Handler) CreateParty(w http.ResponseWriter, r *http.Request) {
	var req CreatePartyRequest
	if !h.decode(w, r, &req) {
		return
	}
	p := ledger.Party{ID: ledger.PartyID(req.ID), Name: req.Name, Email: req.Email}
	if err := h.Store.SaveParty(r.Context(), p); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save party", err)
		return
	}
	writeJSON(w, http.StatusCreated, PartyDTO{ID: req.ID, Name: req.Name, Email: req.Email})
}

// GET /api/admin/parties
func (h *Handler) ListParties(w http.ResponseWriter, r *http.Request) {
	parties, err := h.Store.ListParties(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list parties", err)
		return
	}
	out := make([]PartyDTO, len(parties))
	for i, p := range parties {
		out[i] = PartyDTO{ID: string(p.ID), Name: p.Name, Email: p.Email}
	}
	writeJSON(w, http.StatusOK, out)
}

// CreateGroup creates or replaces a group. Every member must already exist.
// POST /api/admin/groups
func (h *Handler) CreateGroup(w http.ResponseWriter, r *http.Request) {
	var req CreateGroupRequest
	if !h.decode(w, r, &req) {
		return
	}

	ctx := r.Context()
	g := ledger.Group{ID: ledger.GroupID(req.ID), Name: req.Name}
	for _, m := range req.Members {
		ok, err := h.Store.PartyExists(ctx, ledger.PartyID(m))
		if err != nil {
			writeError(w, http.StatusInternalServerError, "Failed to look up party", err)
			return
		}
		if !ok {
			writeError(w, http.StatusBadRequest, "Unknown member", map[string]string{"members": m})
			return
		}
		g.Members = append(g.Members, ledger.PartyID(m))
	}
	g.CreatedBy = g.Members[0]

	if err := h.Store.SaveGroup(ctx, g); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save group", err)
		return
	}
	writeJSON(w, http.StatusCreated, GroupDTO{ID: req.ID, Name: req.Name, Members: req.Members})
}

// TriggerSweep expires stale pending settlements immediately.
// POST /api/admin/sweep
func (h *Handler) TriggerSweep(w http.ResponseWriter, r *http.Request) {
	if h.Sweeper == nil {
		writeError(w, http.StatusServiceUnavailable, "Sweeper is not configured", nil)
		return
	}
	n, err := h.Sweeper.RunNow(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Sweep failed", err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"expired": n})
}

// =============================================================================
// HELPERS
// =============================================================================

func actor(r *http.Request) ledger.PartyID {
	p, _ := PartyFromContext(r.Context())
	return p
}

// decode reads a JSON body into dst and validates it. On failure the
// response is already written.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return false
	}
	if err := h.validate.ValidateStruct(dst); err != nil {
		if details := fieldErrors(err); details != nil {
			writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: "Validation failed", Details: details})
			return false
		}
		writeError(w, http.StatusBadRequest, "Validation failed", err)
		return false
	}
	return true
}

// writeLedgerError maps ledger errors onto HTTP statuses.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error) {
	switch {
	case ledger.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	case errors.Is(err, ledger.ErrForbidden):
		writeError(w, http.StatusForbidden, "Forbidden", err)
	case ledger.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Entry not found", err)
	case errors.Is(err, ledger.ErrEntryDeleted):
		writeError(w, http.StatusConflict, "Entry is deleted; restore it first", err)
	case ledger.IsConflict(err):
		writeError(w, http.StatusConflict, "Entry is already settled; delete the settlement first", err)
	default:
		h.Logger.Error("request failed", "error", err)
		writeError(w, http.StatusInternalServerError, "Internal error", nil)
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an ErrorResponse. details may be an error, a field map
// or nil.
func writeError(w http.ResponseWriter, status int, message string, details any) {
	resp := ErrorResponse{Error: message}
	switch d := details.(type) {
	case nil:
	case error:
		resp.Details = d.Error()
	default:
		resp.Details = d
	}
	writeJSON(w, status, resp)
}
