package domain

// BalanceEntry is one holder's unit count for one record.
// Corresponds to the balances table in PostgreSQL. Amount 0 means "no row".
type BalanceEntry struct {
	RecordID RecordID
	Holder   Address
	Amount   uint64
}

// ApprovalEntry is one operator grant. Approved=false means "no row".
type ApprovalEntry struct {
	Holder   Address
	Operator Address
	Approved bool
}

// ProceedsEntry is one seller's withdrawable accumulator. Amount 0 means "no row".
type ProceedsEntry struct {
	Seller Address
	Amount uint64
}

// LedgerMeta holds the scalar ledger state.
type LedgerMeta struct {
	NextRecordID RecordID // id the next mint will receive
	Treasury     uint64   // native units held by the marketplace
}

// ChangeSet is the post-commit value of every key an operation touched.
// Stores apply it as upserts, deleting rows whose value is zero.
type ChangeSet struct {
	Records   []Record
	Balances  []BalanceEntry
	Approvals []ApprovalEntry
	Listings  []Listing // Amount 0 deletes the listing row
	Proceeds  []ProceedsEntry
	Meta      *LedgerMeta // nil when unchanged
}

// Empty reports whether cs carries no changes.
func (cs *ChangeSet) Empty() bool {
	return cs == nil || (len(cs.Records) == 0 && len(cs.Balances) == 0 && len(cs.Approvals) == 0 &&
		len(cs.Listings) == 0 && len(cs.Proceeds) == 0 && cs.Meta == nil)
}

// Snapshot is the full current ledger state, as loaded from a store.
type Snapshot struct {
	Records   []Record
	Balances  []BalanceEntry
	Approvals []ApprovalEntry
	Listings  []Listing
	Proceeds  []ProceedsEntry
	Meta      LedgerMeta
}
