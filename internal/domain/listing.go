package domain

// ListingKey identifies a listing: one per (seller, record).
type ListingKey struct {
	Seller   Address
	RecordID RecordID
}

// Listing is a seller's fixed-price offer for units of a record.
// Corresponds to the listings table in PostgreSQL.
type Listing struct {
	Seller   Address  `json:"seller"`
	RecordID RecordID `json:"recordId"`
	Price    uint64   `json:"price"`  // per unit, may be zero
	Amount   uint64   `json:"amount"` // units offered, never above seller balance at list/update time
}

// Key returns the listing key.
func (l *Listing) Key() ListingKey {
	return ListingKey{Seller: l.Seller, RecordID: l.RecordID}
}

// Active reports whether l represents an offer. A zero amount is "not listed".
func (l Listing) Active() bool {
	return l.Amount > 0
}
