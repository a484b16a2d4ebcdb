/*
service.go - External interface of the ledger core

PURPOSE:
  Wires the pure components to a Store and a Directory. Every read fetches
  fresh entries and re-derives balances; nothing is cached between calls.

OPERATIONS:
  CreateEntry          validate, split, persist, notify
  DeleteEntry          guard + soft delete (idempotent)
  RestoreEntry         guard + restore (idempotent)
  GetBalances          fold one scope for a viewpoint
  GetOverallBalances   fold every scope for a viewpoint
  IsEntrySettled       coverage of one expense

  GetEntry, ListEntries, ListDeleted, UpdateSettlementStatus, SettleUp and
  ExpirePendingSettlements serve the API and the background sweeper.

CONCURRENCY:
  Mutations of an existing entry hold a per-id lock for their
  read-check-write sequence. Different entries never contend. Reads take
  no locks.

NOTIFICATIONS:
  After a successful write the service hands a Change to its Notifier.
  Delivery is the notifier's business; the service never waits on it.

SEE ALSO:
  - split.go, balance.go, coverage.go, guard.go: The pure core
  - store.go: Store and Directory
  - activity/worker.go: The Notifier used in production
*/
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CHANGE NOTIFICATIONS
// =============================================================================

type ChangeType string

const (
	ChangeExpenseAdded      ChangeType = "expense_added"
	ChangeSettlementDone    ChangeType = "settlement_done"
	ChangeEntryDeleted      ChangeType = "expense_deleted"
	ChangeEntryRestored     ChangeType = "expense_restored"
	ChangeSettlementUpdated ChangeType = "settlement_status_changed"
)

// Change describes a committed write.
type Change struct {
	Type  ChangeType
	Entry Entry
	Actor PartyID
	At    time.Time
}

// Notifier receives committed changes. Notify must not block.
type Notifier interface {
	Notify(ctx context.Context, c Change)
}

type nopNotifier struct{}

func (nopNotifier) Notify(context.Context, Change) {}

// =============================================================================
// SERVICE
// =============================================================================

type Service struct {
	store    Store
	dir      Directory
	notifier Notifier
	logger   *slog.Logger
	now      func() time.Time
	newID    func() EntryID
	locks    *entryLocks
}

type Option func(*Service)

func WithNotifier(n Notifier) Option { return func(s *Service) { s.notifier = n } }

func WithLogger(l *slog.Logger) Option { return func(s *Service) { s.logger = l } }

// WithClock replaces the server clock used for RecordedAt.
func WithClock(now func() time.Time) Option { return func(s *Service) { s.now = now } }

func WithIDGenerator(f func() EntryID) Option { return func(s *Service) { s.newID = f } }

func NewService(store Store, dir Directory, opts ...Option) *Service {
	s := &Service{
		store:    store,
		dir:      dir,
		notifier: nopNotifier{},
		logger:   slog.Default(),
		now:      time.Now,
		newID:    func() EntryID { return EntryID(uuid.NewString()) },
		locks:    newEntryLocks(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// =============================================================================
// CREATE
// =============================================================================

// NewEntry is the input to CreateEntry.
//
// Shares, when set, are taken as exact amounts and take precedence over
// Policy/Participants. Policy defaults to EQUAL.
type NewEntry struct {
	Kind         Kind
	Scope        Scope
	Amount       decimal.Decimal
	Description  string
	Policy       SplitPolicy
	Participants []SplitParticipant
	Shares       []Line
	Payers       []Payer
	OccurredAt   time.Time
	CreatedBy    PartyID

	// Settlement only
	Method         Method
	Provider       string
	TransactionRef string
	Status         SettlementStatus
}

// NewSettlement builds the input for "from pays to amount" in scope.
func NewSettlement(scope Scope, from, to PartyID, amount decimal.Decimal, method Method) NewEntry {
	return NewEntry{
		Kind:      KindSettlement,
		Scope:     scope,
		Amount:    amount,
		Payers:    []Payer{{Party: from}},
		Shares:    []Line{{Party: to, Amount: amount}},
		CreatedBy: from,
		Method:    method,
	}
}

// CreateEntry validates and persists a new entry. Nothing is stored unless
// every check passes.
func (s *Service) CreateEntry(ctx context.Context, in NewEntry) (Entry, error) {
	if !in.Kind.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidKind, in.Kind)
	}
	if !in.Amount.IsPositive() {
		return Entry{}, invalidAmount("amount must be positive, got %s", in.Amount)
	}
	if err := in.Scope.Validate(); err != nil {
		return Entry{}, err
	}

	members, err := s.members(ctx, in.Scope)
	if err != nil {
		return Entry{}, err
	}
	if in.CreatedBy == "" || !members[in.CreatedBy] {
		return Entry{}, &ScopeError{Scope: in.Scope, Party: in.CreatedBy, Reason: "creator is not part of the scope"}
	}

	contributions, err := ComputeContributions(in.Amount, in.Payers)
	if err != nil {
		return Entry{}, err
	}
	shares, err := s.resolveShares(in)
	if err != nil {
		return Entry{}, err
	}

	for _, lines := range [][]Line{contributions, shares} {
		for _, l := range lines {
			if !members[l.Party] {
				return Entry{}, &ScopeError{Scope: in.Scope, Party: l.Party, Reason: "party is not part of the scope"}
			}
		}
	}

	recordedAt := s.now().UTC()
	e := Entry{
		ID:            s.newID(),
		Kind:          in.Kind,
		Scope:         in.Scope,
		Description:   in.Description,
		Amount:        in.Amount,
		Contributions: contributions,
		Shares:        shares,
		CreatedBy:     in.CreatedBy,
		OccurredAt:    in.OccurredAt.UTC(),
		RecordedAt:    recordedAt,
	}
	if in.OccurredAt.IsZero() {
		e.OccurredAt = recordedAt
	}

	if e.IsSettlement() {
		if err := settlementFields(&e, in); err != nil {
			return Entry{}, err
		}
	}

	if err := e.CheckIntegrity(); err != nil {
		return Entry{}, fmt.Errorf("refusing to store entry: %w", err)
	}
	if err := s.store.Insert(ctx, e); err != nil {
		return Entry{}, fmt.Errorf("failed to store entry: %w", err)
	}

	change := ChangeExpenseAdded
	if e.IsSettlement() {
		change = ChangeSettlementDone
	}
	s.notify(ctx, change, e, in.CreatedBy)
	return e, nil
}

func (s *Service) resolveShares(in NewEntry) ([]Line, error) {
	if len(in.Shares) > 0 {
		participants := make([]SplitParticipant, len(in.Shares))
		for i, l := range in.Shares {
			participants[i] = SplitParticipant{Party: l.Party, Value: Amount(l.Amount)}
		}
		return ComputeShares(in.Amount, SplitExact, participants)
	}
	policy := in.Policy
	if policy == "" {
		policy = SplitEqual
	}
	return ComputeShares(in.Amount, policy, in.Participants)
}

func settlementFields(e *Entry, in NewEntry) error {
	if len(e.Contributions) != 1 {
		return &MismatchError{Kind: ErrPayerMismatch, Reason: "a settlement has exactly one payer"}
	}
	if len(e.Shares) != 1 {
		return &MismatchError{Kind: ErrSplitMismatch, Reason: "a settlement has exactly one receiver"}
	}
	if e.Payer() == e.Receiver() {
		return &ScopeError{Scope: e.Scope, Party: e.Payer(), Reason: "a settlement cannot pay oneself"}
	}

	e.Method = in.Method
	if e.Method == "" {
		e.Method = MethodCash
	}
	switch e.Method {
	case MethodCash:
		e.Status = StatusCompleted
	case MethodExternal:
		e.Provider = in.Provider
		e.TransactionRef = in.TransactionRef
		e.Status = in.Status
		if e.Status == "" {
			e.Status = StatusPending
		}
		if !e.Status.Valid() {
			return fmt.Errorf("%w: %q", ErrInvalidStatus, in.Status)
		}
	default:
		return fmt.Errorf("%w: unknown settlement method %q", ErrInvalidKind, in.Method)
	}

	if e.Description == "" {
		e.Description = fmt.Sprintf("Settlement: %s → %s", e.Payer(), e.Receiver())
	}
	return nil
}

// members resolves the set of parties allowed in scope.
func (s *Service) members(ctx context.Context, scope Scope) (map[PartyID]bool, error) {
	out := make(map[PartyID]bool)
	switch scope.Kind {
	case ScopeGroup:
		ids, ok, err := s.dir.GroupMembers(ctx, scope.GroupID)
		if err != nil {
			return nil, fmt.Errorf("failed to load group members: %w", err)
		}
		if !ok {
			return nil, &ScopeError{Scope: scope, Reason: "unknown group"}
		}
		for _, id := range ids {
			out[id] = true
		}
	case ScopeDirect:
		for _, p := range scope.Pair {
			ok, err := s.dir.PartyExists(ctx, p)
			if err != nil {
				return nil, fmt.Errorf("failed to look up party: %w", err)
			}
			if !ok {
				return nil, &ScopeError{Scope: scope, Party: p, Reason: "unknown party"}
			}
			out[p] = true
		}
	}
	return out, nil
}

// =============================================================================
// DELETE / RESTORE
// =============================================================================

// DeleteEntry soft-deletes an entry. Deleting a deleted entry succeeds
// without writing.
func (s *Service) DeleteEntry(ctx context.Context, id EntryID, actor PartyID) error {
	unlock := s.locks.lock(id)
	defer unlock()

	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return err
	}

	var history []Entry
	if !e.Deleted && e.Kind == KindExpense {
		if history, err = s.store.ListByScope(ctx, e.Scope); err != nil {
			return fmt.Errorf("failed to load scope history: %w", err)
		}
	}
	if err := AuthorizeDelete(e, actor, history); err != nil {
		return err
	}
	if e.Deleted {
		return nil
	}

	if err := s.store.SetDeleted(ctx, id, true); err != nil {
		return fmt.Errorf("failed to delete entry: %w", err)
	}
	e.Deleted = true
	s.notify(ctx, ChangeEntryDeleted, e, actor)
	return nil
}

// RestoreEntry clears the soft-delete flag. Restoring an active entry
// succeeds without writing.
func (s *Service) RestoreEntry(ctx context.Context, id EntryID, actor PartyID) error {
	unlock := s.locks.lock(id)
	defer unlock()

	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return err
	}
	if err := AuthorizeRestore(e, actor); err != nil {
		return err
	}
	if !e.Deleted {
		return nil
	}

	if err := s.store.SetDeleted(ctx, id, false); err != nil {
		return fmt.Errorf("failed to restore entry: %w", err)
	}
	e.Deleted = false
	s.notify(ctx, ChangeEntryRestored, e, actor)
	return nil
}

// =============================================================================
// BALANCES
// =============================================================================

// GetBalances folds one scope from viewpoint's side.
func (s *Service) GetBalances(ctx context.Context, scope Scope, viewpoint PartyID) (BalanceSheet, error) {
	if err := scope.Validate(); err != nil {
		return BalanceSheet{}, err
	}
	entries, err := s.store.ListByScope(ctx, scope)
	if err != nil {
		return BalanceSheet{}, fmt.Errorf("failed to load entries: %w", err)
	}
	sheet := ComputeNetBalances(entries, viewpoint, InScope(scope))
	s.warn(sheet.Warnings)
	return sheet, nil
}

// GetOverallBalances folds every scope viewpoint takes part in.
func (s *Service) GetOverallBalances(ctx context.Context, viewpoint PartyID) (Overall, error) {
	entries, err := s.store.ListByParty(ctx, viewpoint)
	if err != nil {
		return Overall{}, fmt.Errorf("failed to load entries: %w", err)
	}
	o := ComputeOverall(entries, viewpoint)
	s.warn(o.Warnings)
	return o, nil
}

// SettleUp proposes the transfers that would clear viewpoint's balances in scope.
func (s *Service) SettleUp(ctx context.Context, scope Scope, viewpoint PartyID) ([]Transfer, error) {
	sheet, err := s.GetBalances(ctx, scope, viewpoint)
	if err != nil {
		return nil, err
	}
	return PlanSettlements(sheet), nil
}

func (s *Service) warn(warnings []*CorruptEntryError) {
	for _, w := range warnings {
		s.logger.Warn("skipping corrupt entry in balance fold",
			"entry_id", w.EntryID,
			"reason", w.Reason)
	}
}

// =============================================================================
// COVERAGE
// =============================================================================

// IsEntrySettled reports coverage of an active expense. Settlements and
// deleted entries report false.
func (s *Service) IsEntrySettled(ctx context.Context, id EntryID) (bool, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return false, err
	}
	if e.Deleted || e.Kind != KindExpense {
		return false, nil
	}
	history, err := s.store.ListByScope(ctx, e.Scope)
	if err != nil {
		return false, fmt.Errorf("failed to load scope history: %w", err)
	}
	return IsCovered(e, history), nil
}

// Outstanding lists the per-pair debts of an expense not yet covered.
// Settlements and deleted entries owe nothing.
func (s *Service) Outstanding(ctx context.Context, id EntryID) ([]Allocation, error) {
	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return nil, err
	}
	if e.Deleted || e.Kind != KindExpense {
		return nil, nil
	}
	history, err := s.store.ListByScope(ctx, e.Scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load scope history: %w", err)
	}
	return Uncovered(e, history), nil
}

// =============================================================================
// LOOKUPS
// =============================================================================

func (s *Service) GetEntry(ctx context.Context, id EntryID) (Entry, error) {
	e, err := s.store.Get(ctx, id)
	if err != nil {
		return Entry{}, fmt.Errorf("failed to load entry: %w", err)
	}
	if e == nil {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return *e, nil
}

// ListEntries returns the active entries of a scope, newest first.
func (s *Service) ListEntries(ctx context.Context, scope Scope) ([]Entry, error) {
	if err := scope.Validate(); err != nil {
		return nil, err
	}
	entries, err := s.store.ListByScope(ctx, scope)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	var out []Entry
	for _, e := range entries {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	newestFirst(out)
	return out, nil
}

// ListPartyEntries returns the active entries party takes part in across all
// groups and direct pairs, newest first.
func (s *Service) ListPartyEntries(ctx context.Context, party PartyID) ([]Entry, error) {
	entries, err := s.store.ListByParty(ctx, party)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	var out []Entry
	for _, e := range entries {
		if !e.Deleted {
			out = append(out, e)
		}
	}
	newestFirst(out)
	return out, nil
}

// ListDeleted returns deleted entries actor could restore, newest first.
func (s *Service) ListDeleted(ctx context.Context, actor PartyID) ([]Entry, error) {
	entries, err := s.store.ListByParty(ctx, actor)
	if err != nil {
		return nil, fmt.Errorf("failed to load entries: %w", err)
	}
	var out []Entry
	for _, e := range entries {
		if e.Deleted && CanMutate(e, actor) {
			out = append(out, e)
		}
	}
	newestFirst(out)
	return out, nil
}

func newestFirst(entries []Entry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].RecordedAt.After(entries[j].RecordedAt)
	})
}

// =============================================================================
// SETTLEMENT STATUS
// =============================================================================

// UpdateSettlementStatus records a payment-provider callback on an external
// settlement. An empty transactionRef keeps the stored one. Deleted
// settlements are frozen.
func (s *Service) UpdateSettlementStatus(ctx context.Context, id EntryID, status SettlementStatus, transactionRef string) (Entry, error) {
	if !status.Valid() {
		return Entry{}, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	unlock := s.locks.lock(id)
	defer unlock()

	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return Entry{}, err
	}
	if !e.IsSettlement() || e.Method != MethodExternal {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotExternalSettlement, id)
	}
	if e.Deleted {
		return Entry{}, fmt.Errorf("%w: %s", ErrEntryDeleted, id)
	}
	if transactionRef == "" {
		transactionRef = e.TransactionRef
	}
	if e.Status == status && e.TransactionRef == transactionRef {
		return e, nil
	}

	if err := s.store.UpdateSettlement(ctx, id, status, transactionRef); err != nil {
		return Entry{}, fmt.Errorf("failed to update settlement: %w", err)
	}
	e.Status = status
	e.TransactionRef = transactionRef
	s.notify(ctx, ChangeSettlementUpdated, e, "")
	return e, nil
}

// ExpirePendingSettlements fails external settlements that stayed pending for
// longer than maxAge and returns how many were changed.
func (s *Service) ExpirePendingSettlements(ctx context.Context, maxAge time.Duration) (int, error) {
	cutoff := s.now().UTC().Add(-maxAge)
	pending, err := s.store.ListPendingExternal(ctx, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to list pending settlements: %w", err)
	}

	expired := 0
	for _, p := range pending {
		if err := ctx.Err(); err != nil {
			return expired, err
		}
		changed, err := s.expireOne(ctx, p.ID)
		if err != nil {
			return expired, err
		}
		if changed {
			expired++
		}
	}
	return expired, nil
}

func (s *Service) expireOne(ctx context.Context, id EntryID) (bool, error) {
	unlock := s.locks.lock(id)
	defer unlock()

	e, err := s.GetEntry(ctx, id)
	if err != nil {
		return false, err
	}
	if e.Deleted || e.Status != StatusPending {
		return false, nil
	}
	if err := s.store.UpdateSettlement(ctx, id, StatusFailed, e.TransactionRef); err != nil {
		return false, fmt.Errorf("failed to expire settlement %s: %w", id, err)
	}
	e.Status = StatusFailed
	s.notify(ctx, ChangeSettlementUpdated, e, "")
	return true, nil
}

func (s *Service) notify(ctx context.Context, t ChangeType, e Entry, actor PartyID) {
	s.notifier.Notify(ctx, Change{Type: t, Entry: e, Actor: actor, At: s.now().UTC()})
}
