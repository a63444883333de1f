// Package market implements the marketplace ledger: fixed-price listings per
// (seller, record), purchases that move registry units, and seller proceeds.
//
// Market is not safe for concurrent use. The engine serialises every call and
// rolls the journal back whenever an operation returns an error.
package market

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/journal"
	"file-nft-market/internal/registry"
)

// Market owns listings, proceeds, and the funds received from buyers.
type Market struct {
	address  domain.Address // operator identity sellers approve on the registry
	registry *registry.Registry

	listings map[domain.ListingKey]domain.Listing
	proceeds map[domain.Address]uint64
	treasury uint64
}

// New creates an empty market at address operating on reg.
func New(address domain.Address, reg *registry.Registry) *Market {
	return &Market{
		address:  address,
		registry: reg,
		listings: make(map[domain.ListingKey]domain.Listing),
		proceeds: make(map[domain.Address]uint64),
	}
}

// Address returns the market's operator address.
func (m *Market) Address() domain.Address {
	return m.address
}

// NftAddress returns the address of the registry the market trades.
func (m *Market) NftAddress() domain.Address {
	return m.registry.Address()
}

// ListItem creates a listing for caller. The stored amount is clamped to the
// caller's current registry balance.
func (m *Market) ListItem(j *journal.Journal, caller domain.Address, id domain.RecordID, price, amount uint64) (domain.Listing, error) {
	const op = "listItem"
	balance := m.registry.BalanceOf(caller, id)
	if balance == 0 || !m.registry.IsApprovedForAll(caller, m.address) {
		return domain.Listing{}, domain.NewError(op, domain.ErrNotApprovedForMarketplace, caller).WithRecord(id)
	}
	if amount == 0 {
		return domain.Listing{}, domain.NewError(op, domain.ErrListAmountMustBeAboveZero, caller).WithRecord(id)
	}
	key := domain.ListingKey{Seller: caller, RecordID: id}
	if _, exists := m.listings[key]; exists {
		return domain.Listing{}, domain.NewError(op, domain.ErrAlreadyListed, caller).WithRecord(id)
	}

	l := domain.Listing{Seller: caller, RecordID: id, Price: price, Amount: min(amount, balance)}
	m.setListing(j, key, l)
	j.Emit(domain.ItemListed(caller, id, l.Price, l.Amount))
	return l, nil
}

// CancelListing removes caller's listing for id.
func (m *Market) CancelListing(j *journal.Journal, caller domain.Address, id domain.RecordID) error {
	key := domain.ListingKey{Seller: caller, RecordID: id}
	if _, exists := m.listings[key]; !exists {
		return domain.NewError("cancelListing", domain.ErrNotListed, caller).WithRecord(id)
	}

	m.deleteListing(j, key)
	j.Emit(domain.ItemCanceled(caller, id))
	return nil
}

// UpdateListing overwrites price and amount of caller's existing listing,
// clamping amount to the caller's current balance. A zero amount, requested
// or after clamping, is rejected: the ledger never stores an empty listing.
func (m *Market) UpdateListing(j *journal.Journal, caller domain.Address, id domain.RecordID, price, amount uint64) (domain.Listing, error) {
	const op = "updateListing"
	key := domain.ListingKey{Seller: caller, RecordID: id}
	if _, exists := m.listings[key]; !exists {
		return domain.Listing{}, domain.NewError(op, domain.ErrNotListed, caller).WithRecord(id)
	}
	clamped := min(amount, m.registry.BalanceOf(caller, id))
	if clamped == 0 {
		return domain.Listing{}, domain.NewError(op, domain.ErrListAmountMustBeAboveZero, caller).WithRecord(id)
	}

	l := domain.Listing{Seller: caller, RecordID: id, Price: price, Amount: clamped}
	m.setListing(j, key, l)
	j.Emit(domain.ItemListed(caller, id, l.Price, l.Amount))
	return l, nil
}

// BuyItem sells one unit of seller's listing for id to buyer, who attached paid.
// Overpayment is kept in full. Returns the listing as it stands after the sale
// (zero amount when sold out).
func (m *Market) BuyItem(j *journal.Journal, buyer, seller domain.Address, id domain.RecordID, paid uint64) (domain.Listing, error) {
	const op = "buyItem"
	fail := func(kind error) *domain.LedgerError {
		return domain.NewError(op, kind, buyer).WithSeller(seller).WithRecord(id)
	}

	key := domain.ListingKey{Seller: seller, RecordID: id}
	l, exists := m.listings[key]
	if !exists || l.Amount == 0 {
		return domain.Listing{}, fail(domain.ErrNotListed)
	}
	if paid < l.Price {
		return domain.Listing{}, fail(domain.ErrPriceNotMet)
	}
	if m.registry.BalanceOf(buyer, id) > 0 {
		return domain.Listing{}, fail(domain.ErrAlreadyHaveThisNFT)
	}
	if m.proceeds[seller] > math.MaxUint64-l.Price || m.treasury > math.MaxUint64-paid {
		return domain.Listing{}, fail(domain.ErrOverflow)
	}

	after := l
	after.Amount--
	if after.Amount == 0 {
		m.deleteListing(j, key)
		j.Emit(domain.ItemSoldOut(seller, id))
	} else {
		m.setListing(j, key, after)
	}

	if err := m.registry.SafeTransferFrom(j, m.address, seller, buyer, id, 1); err != nil {
		if errors.Is(err, domain.ErrNotApproved) {
			return domain.Listing{}, fail(domain.ErrNotApprovedForMarketplace).WithCause(err)
		}
		if kind := domain.KindOf(err); kind != nil {
			return domain.Listing{}, fail(kind).WithCause(err)
		}
		return domain.Listing{}, fmt.Errorf("%s: %w", op, err)
	}

	m.setProceeds(j, seller, m.proceeds[seller]+l.Price)
	m.setTreasury(j, m.treasury+paid)
	j.Emit(domain.ItemBought(buyer, seller, id, l.Price))

	return after, nil
}

// WithdrawProceeds zeroes caller's proceeds and returns the amount to pay out.
// The caller of WithdrawProceeds performs the payment and rolls j back if it fails.
func (m *Market) WithdrawProceeds(j *journal.Journal, caller domain.Address) (uint64, error) {
	amount := m.proceeds[caller]
	if amount == 0 {
		return 0, domain.NewError("withdrawProceeds", domain.ErrNoProceeds, caller)
	}

	m.setProceeds(j, caller, 0)
	m.setTreasury(j, m.treasury-amount)
	return amount, nil
}

// GetListing returns the listing at (seller, id), zero-valued when absent.
func (m *Market) GetListing(seller domain.Address, id domain.RecordID) domain.Listing {
	if l, ok := m.listings[domain.ListingKey{Seller: seller, RecordID: id}]; ok {
		return l
	}
	return domain.Listing{Seller: seller, RecordID: id}
}

// GetProceeds returns seller's withdrawable proceeds.
func (m *Market) GetProceeds(seller domain.Address) uint64 {
	return m.proceeds[seller]
}

// Treasury returns the funds held by the market. Always >= the sum of proceeds.
func (m *Market) Treasury() uint64 {
	return m.treasury
}

// TotalProceeds returns the sum of every seller's withdrawable proceeds.
func (m *Market) TotalProceeds() uint64 {
	var total uint64
	for _, amount := range m.proceeds {
		total += amount
	}
	return total
}

// ListingCount returns the number of active listings.
func (m *Market) ListingCount() int {
	return len(m.listings)
}

// Listings returns seller's active listings ordered by record id.
// An empty seller returns every active listing ordered by (seller, record).
func (m *Market) Listings(seller domain.Address) []domain.Listing {
	var out []domain.Listing
	for key, l := range m.listings {
		if seller == "" || key.Seller == seller {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].Seller != out[k].Seller {
			return out[i].Seller < out[k].Seller
		}
		return out[i].RecordID < out[k].RecordID
	})
	return out
}

// Restore replaces the market state with a snapshot.
func (m *Market) Restore(s *domain.Snapshot) {
	m.listings = make(map[domain.ListingKey]domain.Listing, len(s.Listings))
	m.proceeds = make(map[domain.Address]uint64, len(s.Proceeds))
	for _, l := range s.Listings {
		if l.Amount > 0 {
			m.listings[l.Key()] = l
		}
	}
	for _, p := range s.Proceeds {
		if p.Amount > 0 {
			m.proceeds[p.Seller] = p.Amount
		}
	}
	m.treasury = s.Meta.Treasury
}

func (m *Market) setListing(j *journal.Journal, key domain.ListingKey, l domain.Listing) {
	old, existed := m.listings[key]
	m.listings[key] = l
	j.OnUndo(func() { m.restoreListing(key, old, existed) })
	j.TouchListing(key)
}

func (m *Market) deleteListing(j *journal.Journal, key domain.ListingKey) {
	old, existed := m.listings[key]
	delete(m.listings, key)
	j.OnUndo(func() { m.restoreListing(key, old, existed) })
	j.TouchListing(key)
}

func (m *Market) restoreListing(key domain.ListingKey, l domain.Listing, existed bool) {
	if existed {
		m.listings[key] = l
	} else {
		delete(m.listings, key)
	}
}

func (m *Market) setProceeds(j *journal.Journal, seller domain.Address, amount uint64) {
	old := m.proceeds[seller]
	m.putProceeds(seller, amount)
	j.OnUndo(func() { m.putProceeds(seller, old) })
	j.TouchProceeds(seller)
}

func (m *Market) putProceeds(seller domain.Address, amount uint64) {
	if amount == 0 {
		delete(m.proceeds, seller)
		return
	}
	m.proceeds[seller] = amount
}

func (m *Market) setTreasury(j *journal.Journal, amount uint64) {
	old := m.treasury
	m.treasury = amount
	j.OnUndo(func() { m.treasury = old })
	j.TouchMeta()
}
