// Package journal records the effects of one ledger operation so they can be
// rolled back on failure or turned into a change set on commit.
package journal

import (
	"file-nft-market/internal/domain"
)

// BalanceKey identifies one holder's balance of one record.
type BalanceKey struct {
	RecordID domain.RecordID
	Holder   domain.Address
}

// ApprovalKey identifies one operator grant.
type ApprovalKey struct {
	Holder   domain.Address
	Operator domain.Address
}

// Dirty is the set of state keys written during an operation.
type Dirty struct {
	Records   []domain.RecordID
	Balances  []BalanceKey
	Approvals []ApprovalKey
	Listings  []domain.ListingKey
	Proceeds  []domain.Address
	Meta      bool
}

// Journal is an undo log plus pending events for a single operation.
// Not safe for concurrent use; the engine holds its write lock around it.
type Journal struct {
	undo   []func()
	events []domain.Event

	seenRecords   map[domain.RecordID]struct{}
	seenBalances  map[BalanceKey]struct{}
	seenApprovals map[ApprovalKey]struct{}
	seenListings  map[domain.ListingKey]struct{}
	seenProceeds  map[domain.Address]struct{}

	dirty Dirty
}

// New creates an empty journal.
func New() *Journal {
	return &Journal{
		seenRecords:   make(map[domain.RecordID]struct{}),
		seenBalances:  make(map[BalanceKey]struct{}),
		seenApprovals: make(map[ApprovalKey]struct{}),
		seenListings:  make(map[domain.ListingKey]struct{}),
		seenProceeds:  make(map[domain.Address]struct{}),
	}
}

// OnUndo registers fn to run if the operation is rolled back.
// Undo functions run in reverse registration order.
func (j *Journal) OnUndo(fn func()) {
	j.undo = append(j.undo, fn)
}

// Emit queues an event. Events are only published after commit.
func (j *Journal) Emit(e domain.Event) {
	j.events = append(j.events, e)
}

// Events returns queued events in emission order.
func (j *Journal) Events() []domain.Event {
	return j.events
}

// Rollback reverts every recorded write and drops queued events.
func (j *Journal) Rollback() {
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.undo = nil
	j.events = nil
	j.dirty = Dirty{}
	clear(j.seenRecords)
	clear(j.seenBalances)
	clear(j.seenApprovals)
	clear(j.seenListings)
	clear(j.seenProceeds)
}

// Dirty returns the keys written so far, in first-write order.
func (j *Journal) Dirty() Dirty {
	return j.dirty
}

// TouchRecord marks a record as written.
func (j *Journal) TouchRecord(id domain.RecordID) {
	if _, ok := j.seenRecords[id]; ok {
		return
	}
	j.seenRecords[id] = struct{}{}
	j.dirty.Records = append(j.dirty.Records, id)
}

// TouchBalance marks a balance as written.
func (j *Journal) TouchBalance(id domain.RecordID, holder domain.Address) {
	k := BalanceKey{RecordID: id, Holder: holder}
	if _, ok := j.seenBalances[k]; ok {
		return
	}
	j.seenBalances[k] = struct{}{}
	j.dirty.Balances = append(j.dirty.Balances, k)
}

// TouchApproval marks an operator grant as written.
func (j *Journal) TouchApproval(holder, operator domain.Address) {
	k := ApprovalKey{Holder: holder, Operator: operator}
	if _, ok := j.seenApprovals[k]; ok {
		return
	}
	j.seenApprovals[k] = struct{}{}
	j.dirty.Approvals = append(j.dirty.Approvals, k)
}

// TouchListing marks a listing as written.
func (j *Journal) TouchListing(k domain.ListingKey) {
	if _, ok := j.seenListings[k]; ok {
		return
	}
	j.seenListings[k] = struct{}{}
	j.dirty.Listings = append(j.dirty.Listings, k)
}

// TouchProceeds marks a seller's proceeds as written.
func (j *Journal) TouchProceeds(seller domain.Address) {
	if _, ok := j.seenProceeds[seller]; ok {
		return
	}
	j.seenProceeds[seller] = struct{}{}
	j.dirty.Proceeds = append(j.dirty.Proceeds, seller)
}

// TouchMeta marks the scalar ledger state as written.
func (j *Journal) TouchMeta() {
	j.dirty.Meta = true
}
