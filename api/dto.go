/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the ledger model from the external API contract. Money always travels as
  a decimal string ("12.50"), never as a JSON number.

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients
  - *Response: Complex response wrappers

VALIDATION:
  Shape checks use validator struct tags (see validation.go). Ledger rules
  (reconciliation, scope membership) are enforced by ledger.Service and
  mapped to HTTP statuses in writeLedgerError.

LEGACY PAYLOADS:
  Older clients send a single "paid_by" instead of "payers", and a literal
  "split_among" list instead of a split policy. Both are normalized into
  ledger.NewEntry by toNewEntry.

SEE ALSO:
  - handlers.go: Uses these types
  - validation.go: Tag validation and error details
*/
package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/warp/splitledger/activity"
	"github.com/warp/splitledger/ledger"
)

// =============================================================================
// ENTRY TYPES
// =============================================================================

type LineDTO struct {
	PartyID string `json:"party_id"`
	Amount  string `json:"amount"`
}

type ScopeDTO struct {
	Kind    string   `json:"kind"`
	GroupID string   `json:"group_id,omitempty"`
	Parties []string `json:"parties,omitempty"`
}

// EntryDTO represents an expense or a settlement in API responses.
type EntryDTO struct {
	ID             string    `json:"id"`
	Kind           string    `json:"kind"`
	Scope          ScopeDTO  `json:"scope"`
	Description    string    `json:"description"`
	Amount         string    `json:"amount"`
	Contributions  []LineDTO `json:"contributions"`
	Shares         []LineDTO `json:"shares"`
	CreatedBy      string    `json:"created_by"`
	OccurredAt     string    `json:"occurred_at"`
	RecordedAt     string    `json:"recorded_at"`
	Method         string    `json:"method,omitempty"`
	Provider       string    `json:"provider,omitempty"`
	TransactionRef string    `json:"transaction_ref,omitempty"`
	Status         string    `json:"status,omitempty"`
	Deleted        bool      `json:"deleted"`
	Settled        *bool     `json:"settled,omitempty"`

	// Outstanding is set on single-entry reads: who still owes whom for it.
	Outstanding *[]TransferDTO `json:"outstanding,omitempty"`
}

// PayerRequest is one payer. Amount may be omitted for a sole payer.
type PayerRequest struct {
	PartyID string `json:"party_id" validate:"required"`
	Amount  string `json:"amount" validate:"omitempty,numeric"`
}

// ParticipantRequest is one split participant. Value is the exact amount,
// percentage or weight depending on split_type.
type ParticipantRequest struct {
	PartyID string `json:"party_id" validate:"required"`
	Value   string `json:"value" validate:"omitempty,numeric"`
}

// ShareRequest is a literal share from the legacy split_among list.
type ShareRequest struct {
	PartyID string `json:"party_id" validate:"required"`
	Amount  string `json:"amount" validate:"required,numeric"`
}

// CreateExpenseRequest is the request to create an expense. Exactly one of
// GroupID or Counterparty selects the scope.
type CreateExpenseRequest struct {
	GroupID      string               `json:"group_id" validate:"required_without=Counterparty,excluded_with=Counterparty"`
	Counterparty string               `json:"counterparty" validate:"required_without=GroupID"`
	Description  string               `json:"description" validate:"max=200"`
	Amount       string               `json:"amount" validate:"required,numeric"`
	SplitType    string               `json:"split_type" validate:"omitempty,oneof=EQUAL EXACT PERCENTAGE SHARES equal exact percentage shares"`
	Participants []ParticipantRequest `json:"participants" validate:"omitempty,dive"`
	SplitAmong   []ShareRequest       `json:"split_among" validate:"omitempty,dive"`
	Payers       []PayerRequest       `json:"payers" validate:"omitempty,dive"`
	PaidBy       string               `json:"paid_by"`
	OccurredAt   *time.Time           `json:"occurred_at"`
}

// CreateSettlementRequest records "actor pays To Amount".
type CreateSettlementRequest struct {
	GroupID        string     `json:"group_id" validate:"required_without=Counterparty,excluded_with=Counterparty"`
	Counterparty   string     `json:"counterparty" validate:"required_without=GroupID"`
	From           string     `json:"from"`
	To             string     `json:"to" validate:"required"`
	Amount         string     `json:"amount" validate:"required,numeric"`
	Description    string     `json:"description" validate:"max=200"`
	Method         string     `json:"method" validate:"omitempty,oneof=cash external"`
	Provider       string     `json:"provider" validate:"required_if=Method external"`
	TransactionRef string     `json:"transaction_ref"`
	OccurredAt     *time.Time `json:"occurred_at"`
}

// UpdateSettlementStatusRequest is a payment-provider callback.
type UpdateSettlementStatusRequest struct {
	Status         string `json:"status" validate:"required,oneof=pending completed failed"`
	TransactionRef string `json:"transaction_ref"`
}

// =============================================================================
// BALANCE TYPES
// =============================================================================

type CounterpartyDTO struct {
	PartyID string `json:"party_id"`
	Amount  string `json:"amount"`
}

type WarningDTO struct {
	EntryID string `json:"entry_id"`
	Reason  string `json:"reason"`
}

// BalanceSheetDTO is one scope's balances from the viewpoint. Positive
// amounts are owed to the viewpoint.
type BalanceSheetDTO struct {
	Viewpoint      string            `json:"viewpoint"`
	Scope          ScopeDTO          `json:"scope"`
	Counterparties []CounterpartyDTO `json:"counterparties"`
	Warnings       []WarningDTO      `json:"warnings,omitempty"`
}

type ScopeBalanceDTO struct {
	Scope  ScopeDTO `json:"scope"`
	Amount string   `json:"amount"`
}

type OverallDTO struct {
	Viewpoint      string            `json:"viewpoint"`
	Net            string            `json:"net"`
	YouOwe         string            `json:"you_owe"`
	YouAreOwed     string            `json:"you_are_owed"`
	Counterparties []CounterpartyDTO `json:"counterparties"`
	Breakdown      []ScopeBalanceDTO `json:"breakdown"`
	Warnings       []WarningDTO      `json:"warnings,omitempty"`
}

type TransferDTO struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
}

// =============================================================================
// DIRECTORY, ACTIVITY & SCENARIO TYPES
// =============================================================================

type CreatePartyRequest struct {
	ID    string `json:"id" validate:"required,max=64"`
	Name  string `json:"name" validate:"required"`
	Email string `json:"email" validate:"omitempty,email"`
}

type CreateGroupRequest struct {
	ID      string   `json:"id" validate:"required,max=64"`
	Name    string   `json:"name" validate:"required"`
	Members []string `json:"members" validate:"required,min=1,dive,required"`
}

type PartyDTO struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
}

type GroupDTO struct {
	ID      string   `json:"id"`
	Name    string   `json:"name"`
	Members []string `json:"members"`
}

type ActivityDTO struct {
	ID          string            `json:"id"`
	Type        string            `json:"type"`
	EntryID     string            `json:"entry_id"`
	Actor       string            `json:"actor,omitempty"`
	Scope       string            `json:"scope"`
	Amount      string            `json:"amount"`
	Description string            `json:"description,omitempty"`
	Metadata    map[string]string `json:"metadata,omitempty"`
	CreatedAt   string            `json:"created_at"`
}

// ScenarioDTO represents a demo scenario.
type ScenarioDTO struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description"`
}

type LoadScenarioRequest struct {
	ScenarioID string `json:"scenario_id" validate:"required"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSIONS
// =============================================================================

func money(d decimal.Decimal) string { return d.StringFixed(2) }

func formatTime(t time.Time) string { return t.UTC().Format(time.RFC3339) }

func toScopeDTO(s ledger.Scope) ScopeDTO {
	if s.Kind == ledger.ScopeGroup {
		return ScopeDTO{Kind: string(s.Kind), GroupID: string(s.GroupID)}
	}
	return ScopeDTO{Kind: string(s.Kind), Parties: []string{string(s.Pair[0]), string(s.Pair[1])}}
}

func toLineDTOs(lines []ledger.Line) []LineDTO {
	out := make([]LineDTO, len(lines))
	for i, l := range lines {
		out[i] = LineDTO{PartyID: string(l.Party), Amount: money(l.Amount)}
	}
	return out
}

func toEntryDTO(e ledger.Entry) EntryDTO {
	return EntryDTO{
		ID:             string(e.ID),
		Kind:           string(e.Kind),
		Scope:          toScopeDTO(e.Scope),
		Description:    e.Description,
		Amount:         money(e.Amount),
		Contributions:  toLineDTOs(e.Contributions),
		Shares:         toLineDTOs(e.Shares),
		CreatedBy:      string(e.CreatedBy),
		OccurredAt:     formatTime(e.OccurredAt),
		RecordedAt:     formatTime(e.RecordedAt),
		Method:         string(e.Method),
		Provider:       e.Provider,
		TransactionRef: e.TransactionRef,
		Status:         string(e.Status),
		Deleted:        e.Deleted,
	}
}

func toEntryDTOs(entries []ledger.Entry) []EntryDTO {
	out := make([]EntryDTO, len(entries))
	for i, e := range entries {
		out[i] = toEntryDTO(e)
	}
	return out
}

func toWarningDTOs(ws []*ledger.CorruptEntryError) []WarningDTO {
	if len(ws) == 0 {
		return nil
	}
	out := make([]WarningDTO, len(ws))
	for i, w := range ws {
		out[i] = WarningDTO{EntryID: string(w.EntryID), Reason: w.Reason}
	}
	return out
}

func toBalanceSheetDTO(scope ledger.Scope, sheet ledger.BalanceSheet) BalanceSheetDTO {
	dto := BalanceSheetDTO{
		Viewpoint:      string(sheet.Viewpoint),
		Scope:          toScopeDTO(scope),
		Counterparties: []CounterpartyDTO{},
		Warnings:       toWarningDTOs(sheet.Warnings),
	}
	for _, p := range sheet.Parties() {
		dto.Counterparties = append(dto.Counterparties, CounterpartyDTO{PartyID: string(p), Amount: money(sheet.Of(p))})
	}
	return dto
}

func toOverallDTO(o ledger.Overall) OverallDTO {
	dto := OverallDTO{
		Viewpoint:      string(o.Viewpoint),
		Net:            money(o.Net),
		YouOwe:         money(o.YouOwe),
		YouAreOwed:     money(o.YouAreOwed),
		Counterparties: []CounterpartyDTO{},
		Breakdown:      []ScopeBalanceDTO{},
		Warnings:       toWarningDTOs(o.Warnings),
	}
	for _, c := range o.Counterparties {
		dto.Counterparties = append(dto.Counterparties, CounterpartyDTO{PartyID: string(c.Party), Amount: money(c.Amount)})
	}
	for _, s := range o.Scopes {
		dto.Breakdown = append(dto.Breakdown, ScopeBalanceDTO{Scope: toScopeDTO(s.Scope), Amount: money(s.Amount)})
	}
	return dto
}

func toTransferDTOs(ts []ledger.Transfer) []TransferDTO {
	out := make([]TransferDTO, len(ts))
	for i, t := range ts {
		out[i] = TransferDTO{From: string(t.From), To: string(t.To), Amount: money(t.Amount)}
	}
	return out
}

func toOutstandingDTOs(allocs []ledger.Allocation) []TransferDTO {
	out := make([]TransferDTO, len(allocs))
	for i, a := range allocs {
		out[i] = TransferDTO{From: string(a.Debtor), To: string(a.Creditor), Amount: money(a.Amount)}
	}
	return out
}

func toActivityDTO(e activity.Event) ActivityDTO {
	return ActivityDTO{
		ID:          e.ID.String(),
		Type:        string(e.Type),
		EntryID:     string(e.EntryID),
		Actor:       string(e.Actor),
		Scope:       e.Scope,
		Amount:      money(e.Amount),
		Description: e.Description,
		Metadata:    e.Metadata,
		CreatedAt:   formatTime(e.CreatedAt),
	}
}

// =============================================================================
// REQUEST NORMALIZATION
// =============================================================================

var errPayerForm = errors.New("provide either paid_by or payers, not both")

func requestScope(groupID, counterparty string, actor ledger.PartyID) ledger.Scope {
	if groupID != "" {
		return ledger.GroupScope(ledger.GroupID(groupID))
	}
	return ledger.DirectScope(actor, ledger.PartyID(counterparty))
}

func parseOptional(field, s string) (decimal.NullDecimal, error) {
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("%w: %s: %q is not a decimal", ledger.ErrInvalidAmount, field, s)
	}
	return ledger.Amount(d), nil
}

func parseRequired(field, s string) (decimal.Decimal, error) {
	d, err := parseOptional(field, s)
	if err != nil {
		return decimal.Decimal{}, err
	}
	if !d.Valid {
		return decimal.Decimal{}, fmt.Errorf("%w: %s is required", ledger.ErrInvalidAmount, field)
	}
	return d.Decimal, nil
}

// toNewEntry turns an expense request into service input. The actor is the
// creator.
func (req CreateExpenseRequest) toNewEntry(actor ledger.PartyID) (ledger.NewEntry, error) {
	amount, err := parseRequired("amount", req.Amount)
	if err != nil {
		return ledger.NewEntry{}, err
	}

	in := ledger.NewEntry{
		Kind:        ledger.KindExpense,
		Scope:       requestScope(req.GroupID, req.Counterparty, actor),
		Amount:      amount,
		Description: req.Description,
		CreatedBy:   actor,
	}
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}

	switch {
	case req.PaidBy != "" && len(req.Payers) > 0:
		return ledger.NewEntry{}, &ledger.MismatchError{Kind: ledger.ErrPayerMismatch, Reason: errPayerForm.Error()}
	case req.PaidBy != "":
		in.Payers = []ledger.Payer{{Party: ledger.PartyID(req.PaidBy)}}
	default:
		for _, p := range req.Payers {
			v, err := parseOptional("payers.amount", p.Amount)
			if err != nil {
				return ledger.NewEntry{}, err
			}
			in.Payers = append(in.Payers, ledger.Payer{Party: ledger.PartyID(p.PartyID), Amount: v})
		}
	}

	if len(req.SplitAmong) > 0 {
		for _, s := range req.SplitAmong {
			v, err := parseRequired("split_among.amount", s.Amount)
			if err != nil {
				return ledger.NewEntry{}, err
			}
			in.Shares = append(in.Shares, ledger.Line{Party: ledger.PartyID(s.PartyID), Amount: v})
		}
		return in, nil
	}

	if req.SplitType != "" {
		policy, err := ledger.ParseSplitPolicy(req.SplitType)
		if err != nil {
			return ledger.NewEntry{}, err
		}
		in.Policy = policy
	}
	for _, p := range req.Participants {
		v, err := parseOptional("participants.value", p.Value)
		if err != nil {
			return ledger.NewEntry{}, err
		}
		in.Participants = append(in.Participants, ledger.SplitParticipant{Party: ledger.PartyID(p.PartyID), Value: v})
	}
	return in, nil
}

func (req CreateSettlementRequest) toNewEntry(actor ledger.PartyID) (ledger.NewEntry, error) {
	amount, err := parseRequired("amount", req.Amount)
	if err != nil {
		return ledger.NewEntry{}, err
	}
	scope := requestScope(req.GroupID, req.Counterparty, actor)
	from := actor
	if req.From != "" {
		from = ledger.PartyID(req.From)
	}
	in := ledger.NewSettlement(scope, from, ledger.PartyID(req.To), amount, ledger.Method(req.Method))
	in.CreatedBy = actor
	in.Description = req.Description
	in.Provider = req.Provider
	in.TransactionRef = req.TransactionRef
	if req.OccurredAt != nil {
		in.OccurredAt = *req.OccurredAt
	}
	return in, nil
}
