package domain

// EventKind names a ledger event.
type EventKind string

// Event kinds emitted after a mutation commits.
const (
	EventRecordCreated EventKind = "RecordCreated"
	EventItemListed    EventKind = "ItemListed"
	EventItemCanceled  EventKind = "ItemCanceled"
	EventItemBought    EventKind = "ItemBought"
	EventItemSoldOut   EventKind = "ItemSoldOut"
)

// AllEventKinds lists every kind in a stable order.
var AllEventKinds = []EventKind{
	EventRecordCreated,
	EventItemListed,
	EventItemCanceled,
	EventItemBought,
	EventItemSoldOut,
}

// Event is a committed ledger event for indexers and front-ends.
// Fields not relevant to Kind are zero.
type Event struct {
	Seq      uint64    `json:"seq"` // global commit order, assigned by the engine
	ID       string    `json:"id"`  // deterministic hash, assigned by the engine
	Kind     EventKind `json:"kind"`
	RecordID RecordID  `json:"recordId"`
	Seller   Address   `json:"seller,omitempty"`
	Buyer    Address   `json:"buyer,omitempty"`
	Price    uint64    `json:"price,omitempty"`
	Amount   uint64    `json:"amount,omitempty"`
}

// RecordCreated builds a RecordCreated(recordId) event.
func RecordCreated(id RecordID) Event {
	return Event{Kind: EventRecordCreated, RecordID: id}
}

// ItemListed builds an ItemListed(seller, recordId, price, amount) event.
func ItemListed(seller Address, id RecordID, price, amount uint64) Event {
	return Event{Kind: EventItemListed, Seller: seller, RecordID: id, Price: price, Amount: amount}
}

// ItemCanceled builds an ItemCanceled(seller, recordId) event.
func ItemCanceled(seller Address, id RecordID) Event {
	return Event{Kind: EventItemCanceled, Seller: seller, RecordID: id}
}

// ItemBought builds an ItemBought(buyer, seller, recordId, price) event.
func ItemBought(buyer, seller Address, id RecordID, price uint64) Event {
	return Event{Kind: EventItemBought, Buyer: buyer, Seller: seller, RecordID: id, Price: price}
}

// ItemSoldOut builds an ItemSoldOut(seller, recordId) event.
func ItemSoldOut(seller Address, id RecordID) Event {
	return Event{Kind: EventItemSoldOut, Seller: seller, RecordID: id}
}
