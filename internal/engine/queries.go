package engine

import (
	"fmt"

	"file-nft-market/internal/domain"
)

// Status summarises the ledger for health and status endpoints.
type Status struct {
	RegistryAddress domain.Address `json:"registryAddress"`
	MarketAddress   domain.Address `json:"marketAddress"`
	Records         uint64         `json:"records"`
	ActiveListings  int            `json:"activeListings"`
	Treasury        uint64         `json:"treasury"`
	TotalProceeds   uint64         `json:"totalProceeds"`
	LastEventSeq    uint64         `json:"lastEventSeq"`
}

// ReadContent returns the gated payload of id iff caller holds units of it.
func (e *Engine) ReadContent(caller domain.Address, id domain.RecordID) (domain.Content, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.ReadContent(caller, id)
}

// BalanceOf returns holder's units of id.
func (e *Engine) BalanceOf(holder domain.Address, id domain.RecordID) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.BalanceOf(holder, id)
}

// BalanceOfBatch returns BalanceOf for each (holders[i], ids[i]) pair.
func (e *Engine) BalanceOfBatch(holders []domain.Address, ids []domain.RecordID) ([]uint64, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.BalanceOfBatch(holders, ids)
}

// IsApprovedForAll reports whether operator may move holder's balances.
func (e *Engine) IsApprovedForAll(holder, operator domain.Address) bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.reg.IsApprovedForAll(holder, operator)
}

// Descriptor returns the collection descriptor.
func (e *Engine) Descriptor() domain.Descriptor {
	return e.reg.Descriptor()
}

// URI returns the descriptor URI shared by every record.
func (e *Engine) URI(id domain.RecordID) string {
	return e.reg.URI(id)
}

// GetRecord returns the public view of id.
func (e *Engine) GetRecord(id domain.RecordID) (domain.RecordInfo, error) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	info, ok := e.reg.Record(id)
	if !ok {
		return domain.RecordInfo{}, domain.NewError("getRecord", domain.ErrUnknownRecord, "").WithRecord(id)
	}
	return info, nil
}

// GetListing returns seller's listing for id, zero-valued when absent.
func (e *Engine) GetListing(seller domain.Address, id domain.RecordID) domain.Listing {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mkt.GetListing(seller, id)
}

// Listings returns seller's active listings, or every listing for an empty seller.
func (e *Engine) Listings(seller domain.Address) []domain.Listing {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mkt.Listings(seller)
}

// GetProceeds returns seller's withdrawable proceeds.
func (e *Engine) GetProceeds(seller domain.Address) uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mkt.GetProceeds(seller)
}

// GetNftAddress returns the registry address.
func (e *Engine) GetNftAddress() domain.Address {
	return e.mkt.NftAddress()
}

// MarketAddress returns the operator address sellers approve.
func (e *Engine) MarketAddress() domain.Address {
	return e.mkt.Address()
}

// Treasury returns the native units held by the market.
func (e *Engine) Treasury() uint64 {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.mkt.Treasury()
}

// Status returns a consistent summary of the ledger.
func (e *Engine) Status() Status {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return Status{
		RegistryAddress: e.reg.Address(),
		MarketAddress:   e.mkt.Address(),
		Records:         uint64(e.reg.NextID()),
		ActiveListings:  e.mkt.ListingCount(),
		Treasury:        e.mkt.Treasury(),
		TotalProceeds:   e.mkt.TotalProceeds(),
		LastEventSeq:    e.seq,
	}
}

// Verify checks the ledger invariants: every record's balances sum to its
// supply, and the treasury covers every seller's proceeds.
func (e *Engine) Verify() error {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.verifyLocked()
}

func (e *Engine) verifyLocked() error {
	for id := domain.RecordID(0); id < e.reg.NextID(); id++ {
		var sum uint64
		for _, h := range e.reg.Holders(id) {
			sum += h.Amount
		}
		if supply := e.reg.TotalSupply(id); sum != supply {
			return fmt.Errorf("record %d: balances sum to %d, supply is %d", id, sum, supply)
		}
	}
	if total, treasury := e.mkt.TotalProceeds(), e.mkt.Treasury(); treasury < total {
		return fmt.Errorf("treasury %d below outstanding proceeds %d", treasury, total)
	}
	return nil
}
