package ledger

// =============================================================================
// MUTATION GUARD
// =============================================================================
//
// State machine per entry:
//
//   ACTIVE --delete--> DELETED --restore--> ACTIVE
//
// Only the creator or a payer may move an entry. A covered expense cannot be
// deleted. Repeating a transition is a successful no-op.

// CanMutate reports whether actor is the entry's creator or one of its payers.
func CanMutate(e Entry, actor PartyID) bool {
	return actor != "" && (e.CreatedBy == actor || e.IsPayer(actor))
}

// AuthorizeDelete returns nil when actor may delete e. history is the entry
// set of e's scope, used for coverage. An entry that is already deleted is
// authorized without a coverage check.
func AuthorizeDelete(e Entry, actor PartyID, history []Entry) error {
	if !CanMutate(e, actor) {
		return &ForbiddenError{EntryID: e.ID, Actor: actor}
	}
	if e.Deleted {
		return nil
	}
	if IsCovered(e, history) {
		return ErrAlreadySettled
	}
	return nil
}

// AuthorizeRestore returns nil when actor may restore e.
func AuthorizeRestore(e Entry, actor PartyID) error {
	if !CanMutate(e, actor) {
		return &ForbiddenError{EntryID: e.ID, Actor: actor}
	}
	return nil
}
