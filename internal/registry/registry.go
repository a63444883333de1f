// Package registry implements the asset registry: multi-holder balances per
// record, operator approvals, transfers, and the holder-only gated read.
//
// Registry is not safe for concurrent use. The engine serialises every call.
package registry

import (
	"errors"
	"sort"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/journal"
)

// ErrLengthMismatch is returned by BalanceOfBatch when holders and ids differ in length.
var ErrLengthMismatch = errors.New("holders and ids length mismatch")

// Registry owns records, balances, and the operator capability table.
type Registry struct {
	address    domain.Address
	descriptor domain.Descriptor

	nextID    domain.RecordID
	records   map[domain.RecordID]*domain.Record
	balances  map[domain.RecordID]map[domain.Address]uint64
	operators map[domain.Address]map[domain.Address]struct{} // holder -> approved operators
}

// New creates an empty registry living at address.
func New(address domain.Address, descriptor domain.Descriptor) *Registry {
	return &Registry{
		address:    address,
		descriptor: descriptor,
		records:    make(map[domain.RecordID]*domain.Record),
		balances:   make(map[domain.RecordID]map[domain.Address]uint64),
		operators:  make(map[domain.Address]map[domain.Address]struct{}),
	}
}

// Address returns the registry's own address.
func (r *Registry) Address() domain.Address {
	return r.address
}

// Mint creates a record and credits the whole supply to caller.
func (r *Registry) Mint(j *journal.Journal, caller domain.Address, contentPointer, secret string, totalSupply uint64) (domain.RecordID, error) {
	const op = "mint"
	if totalSupply == 0 {
		return 0, domain.NewError(op, domain.ErrInvalidSupply, caller)
	}
	if contentPointer == "" {
		return 0, domain.NewError(op, domain.ErrEmptyContentPointer, caller)
	}

	id := r.nextID
	rec := &domain.Record{
		ID:             id,
		ContentPointer: contentPointer,
		Secret:         secret,
		TotalSupply:    totalSupply,
		Creator:        caller,
	}

	r.records[id] = rec
	r.nextID++
	j.OnUndo(func() {
		delete(r.records, id)
		delete(r.balances, id)
		r.nextID = id
	})
	j.TouchRecord(id)
	j.TouchMeta()

	r.setBalance(j, id, caller, totalSupply)
	j.Emit(domain.RecordCreated(id))

	return id, nil
}

// ReadContent returns the gated payload iff caller currently holds units of id.
func (r *Registry) ReadContent(caller domain.Address, id domain.RecordID) (domain.Content, error) {
	if r.BalanceOf(caller, id) == 0 {
		return domain.Content{}, domain.NewError("readContent", domain.ErrAccessDenied, caller).WithRecord(id)
	}
	rec := r.records[id]
	return domain.Content{ContentPointer: rec.ContentPointer, Secret: rec.Secret}, nil
}

// BalanceOf returns holder's units of id; 0 for unknown holder or record.
func (r *Registry) BalanceOf(holder domain.Address, id domain.RecordID) uint64 {
	return r.balances[id][holder]
}

// BalanceOfBatch returns BalanceOf(holders[i], ids[i]) for each i.
func (r *Registry) BalanceOfBatch(holders []domain.Address, ids []domain.RecordID) ([]uint64, error) {
	if len(holders) != len(ids) {
		return nil, ErrLengthMismatch
	}
	out := make([]uint64, len(holders))
	for i := range holders {
		out[i] = r.BalanceOf(holders[i], ids[i])
	}
	return out, nil
}

// SetApprovalForAll grants or revokes operator's authority over all of holder's balances.
func (r *Registry) SetApprovalForAll(j *journal.Journal, holder, operator domain.Address, approved bool) error {
	if operator.IsZero() {
		return domain.NewError("setApprovalForAll", domain.ErrInvalidRecipient, holder)
	}

	was := r.IsApprovedForAll(holder, operator)
	if was == approved {
		return nil
	}

	r.setApproval(holder, operator, approved)
	j.OnUndo(func() { r.setApproval(holder, operator, was) })
	j.TouchApproval(holder, operator)
	return nil
}

// IsApprovedForAll reports whether operator may move holder's balances.
func (r *Registry) IsApprovedForAll(holder, operator domain.Address) bool {
	_, ok := r.operators[holder][operator]
	return ok
}

// CanOperate is the transfer authorization predicate: the holder themselves
// or an approved operator.
func (r *Registry) CanOperate(operator, holder domain.Address) bool {
	return operator == holder || r.IsApprovedForAll(holder, operator)
}

// SafeTransferFrom moves n units of id from one holder to another on behalf of operator.
func (r *Registry) SafeTransferFrom(j *journal.Journal, operator, from, to domain.Address, id domain.RecordID, n uint64) error {
	const op = "safeTransferFrom"
	if !r.CanOperate(operator, from) {
		return domain.NewError(op, domain.ErrNotApproved, operator).WithSeller(from).WithRecord(id)
	}
	if to.IsZero() {
		return domain.NewError(op, domain.ErrInvalidRecipient, operator).WithRecord(id)
	}
	fromBal := r.BalanceOf(from, id)
	if n > fromBal {
		return domain.NewError(op, domain.ErrInsufficientBalance, operator).WithSeller(from).WithRecord(id)
	}
	if n == 0 || from == to {
		return nil
	}

	r.setBalance(j, id, from, fromBal-n)
	r.setBalance(j, id, to, r.BalanceOf(to, id)+n)
	return nil
}

// Descriptor returns the static collection descriptor.
func (r *Registry) Descriptor() domain.Descriptor {
	return r.descriptor
}

// URI returns the descriptor URI. Every record shares it.
func (r *Registry) URI(domain.RecordID) string {
	return r.descriptor.URI
}

// Record returns the public view of id.
func (r *Registry) Record(id domain.RecordID) (domain.RecordInfo, bool) {
	rec, ok := r.records[id]
	if !ok {
		return domain.RecordInfo{}, false
	}
	return rec.Info(), true
}

// StoredRecord returns a copy of the full record, secret included.
// Used by persistence only; never expose it to callers.
func (r *Registry) StoredRecord(id domain.RecordID) (domain.Record, bool) {
	rec, ok := r.records[id]
	if !ok {
		return domain.Record{}, false
	}
	return *rec, true
}

// TotalSupply returns the minted supply of id, 0 if unknown.
func (r *Registry) TotalSupply(id domain.RecordID) uint64 {
	if rec, ok := r.records[id]; ok {
		return rec.TotalSupply
	}
	return 0
}

// NextID returns the id the next mint will receive.
func (r *Registry) NextID() domain.RecordID {
	return r.nextID
}

// Holders returns every non-zero balance of id, ordered by holder.
func (r *Registry) Holders(id domain.RecordID) []domain.BalanceEntry {
	var out []domain.BalanceEntry
	for holder, amount := range r.balances[id] {
		out = append(out, domain.BalanceEntry{RecordID: id, Holder: holder, Amount: amount})
	}
	sort.Slice(out, func(i, k int) bool { return out[i].Holder < out[k].Holder })
	return out
}

// Restore replaces the registry state with a snapshot.
func (r *Registry) Restore(s *domain.Snapshot) {
	r.records = make(map[domain.RecordID]*domain.Record, len(s.Records))
	r.balances = make(map[domain.RecordID]map[domain.Address]uint64)
	r.operators = make(map[domain.Address]map[domain.Address]struct{})

	for i := range s.Records {
		rec := s.Records[i]
		r.records[rec.ID] = &rec
	}
	for _, b := range s.Balances {
		r.putBalance(b.RecordID, b.Holder, b.Amount)
	}
	for _, a := range s.Approvals {
		r.setApproval(a.Holder, a.Operator, a.Approved)
	}
	r.nextID = s.Meta.NextRecordID
}

// setBalance writes a balance through the journal.
func (r *Registry) setBalance(j *journal.Journal, id domain.RecordID, holder domain.Address, amount uint64) {
	old := r.BalanceOf(holder, id)
	r.putBalance(id, holder, amount)
	j.OnUndo(func() { r.putBalance(id, holder, old) })
	j.TouchBalance(id, holder)
}

// putBalance stores amount, dropping zero entries so a holder with nothing is absent.
func (r *Registry) putBalance(id domain.RecordID, holder domain.Address, amount uint64) {
	holders := r.balances[id]
	if amount == 0 {
		if holders != nil {
			delete(holders, holder)
		}
		return
	}
	if holders == nil {
		holders = make(map[domain.Address]uint64)
		r.balances[id] = holders
	}
	holders[holder] = amount
}

func (r *Registry) setApproval(holder, operator domain.Address, approved bool) {
	ops := r.operators[holder]
	if !approved {
		if ops != nil {
			delete(ops, operator)
		}
		return
	}
	if ops == nil {
		ops = make(map[domain.Address]struct{})
		r.operators[holder] = ops
	}
	ops[operator] = struct{}{}
}
