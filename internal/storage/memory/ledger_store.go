package memory

import (
	"context"
	"sort"
	"sync"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/storage"
)

type balanceKey struct {
	recordID domain.RecordID
	holder   domain.Address
}

type approvalKey struct {
	holder   domain.Address
	operator domain.Address
}

// LedgerStore is an in-memory implementation of storage.LedgerStore.
type LedgerStore struct {
	mu        sync.RWMutex
	records   map[domain.RecordID]domain.Record
	balances  map[balanceKey]uint64
	approvals map[approvalKey]struct{}
	listings  map[domain.ListingKey]domain.Listing
	proceeds  map[domain.Address]uint64
	meta      domain.LedgerMeta
}

// NewLedgerStore creates a new in-memory ledger store.
func NewLedgerStore() *LedgerStore {
	return &LedgerStore{
		records:   make(map[domain.RecordID]domain.Record),
		balances:  make(map[balanceKey]uint64),
		approvals: make(map[approvalKey]struct{}),
		listings:  make(map[domain.ListingKey]domain.Listing),
		proceeds:  make(map[domain.Address]uint64),
	}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Apply writes cs atomically. Returns ErrDuplicateKey if a record id exists.
func (s *LedgerStore) Apply(_ context.Context, cs *domain.ChangeSet) error {
	if err := storage.ValidateChangeSet(cs); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// Check before writing anything so a rejected change set leaves no trace.
	for _, r := range cs.Records {
		if _, exists := s.records[r.ID]; exists {
			return storage.ErrDuplicateKey
		}
	}

	for _, r := range cs.Records {
		s.records[r.ID] = r
	}
	for _, b := range cs.Balances {
		k := balanceKey{recordID: b.RecordID, holder: b.Holder}
		if b.Amount == 0 {
			delete(s.balances, k)
		} else {
			s.balances[k] = b.Amount
		}
	}
	for _, a := range cs.Approvals {
		k := approvalKey{holder: a.Holder, operator: a.Operator}
		if a.Approved {
			s.approvals[k] = struct{}{}
		} else {
			delete(s.approvals, k)
		}
	}
	for _, l := range cs.Listings {
		if l.Amount == 0 {
			delete(s.listings, l.Key())
		} else {
			s.listings[l.Key()] = l
		}
	}
	for _, p := range cs.Proceeds {
		if p.Amount == 0 {
			delete(s.proceeds, p.Seller)
		} else {
			s.proceeds[p.Seller] = p.Amount
		}
	}
	if cs.Meta != nil {
		s.meta = *cs.Meta
	}
	return nil
}

// Load returns a copy of the stored state, ordered by key.
func (s *LedgerStore) Load(_ context.Context) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := &domain.Snapshot{Meta: s.meta}

	for _, r := range s.records {
		snap.Records = append(snap.Records, r)
	}
	sort.Slice(snap.Records, func(i, j int) bool {
		return snap.Records[i].ID < snap.Records[j].ID
	})

	for k, amount := range s.balances {
		snap.Balances = append(snap.Balances, domain.BalanceEntry{RecordID: k.recordID, Holder: k.holder, Amount: amount})
	}
	sort.Slice(snap.Balances, func(i, j int) bool {
		if snap.Balances[i].RecordID != snap.Balances[j].RecordID {
			return snap.Balances[i].RecordID < snap.Balances[j].RecordID
		}
		return snap.Balances[i].Holder < snap.Balances[j].Holder
	})

	for k := range s.approvals {
		snap.Approvals = append(snap.Approvals, domain.ApprovalEntry{Holder: k.holder, Operator: k.operator, Approved: true})
	}
	sort.Slice(snap.Approvals, func(i, j int) bool {
		if snap.Approvals[i].Holder != snap.Approvals[j].Holder {
			return snap.Approvals[i].Holder < snap.Approvals[j].Holder
		}
		return snap.Approvals[i].Operator < snap.Approvals[j].Operator
	})

	for _, l := range s.listings {
		snap.Listings = append(snap.Listings, l)
	}
	sort.Slice(snap.Listings, func(i, j int) bool {
		if snap.Listings[i].Seller != snap.Listings[j].Seller {
			return snap.Listings[i].Seller < snap.Listings[j].Seller
		}
		return snap.Listings[i].RecordID < snap.Listings[j].RecordID
	})

	for seller, amount := range s.proceeds {
		snap.Proceeds = append(snap.Proceeds, domain.ProceedsEntry{Seller: seller, Amount: amount})
	}
	sort.Slice(snap.Proceeds, func(i, j int) bool {
		return snap.Proceeds[i].Seller < snap.Proceeds[j].Seller
	})

	return snap, nil
}
