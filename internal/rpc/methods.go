package rpc

import "file-nft-market/internal/domain"

// Method names.
const (
	MethodMint              = "mint"
	MethodReadContent       = "readContent"
	MethodBalanceOf         = "balanceOf"
	MethodBalanceOfBatch    = "balanceOfBatch"
	MethodSetApprovalForAll = "setApprovalForAll"
	MethodIsApprovedForAll  = "isApprovedForAll"
	MethodSafeTransferFrom  = "safeTransferFrom"
	MethodDescriptor        = "descriptor"
	MethodURI               = "uri"
	MethodGetRecord         = "getRecord"

	MethodListItem         = "listItem"
	MethodCancelListing    = "cancelListing"
	MethodUpdateListing    = "updateListing"
	MethodBuyItem          = "buyItem"
	MethodWithdrawProceeds = "withdrawProceeds"
	MethodGetListing       = "getListing"
	MethodGetListings      = "getListings"
	MethodGetProceeds      = "getProceeds"
	MethodGetNftAddress    = "getNftAddress"
	MethodGetMarketAddress = "getMarketAddress"

	MethodGetStatus = "getStatus"
	MethodGetEvents = "getEvents"

	// Event stream.
	MethodEventsSubscribe   = "eventsSubscribe"
	MethodEventsUnsubscribe = "eventsUnsubscribe"
	MethodEventNotification = "eventNotification"
)

type MintParams struct {
	ContentPointer string `json:"contentPointer"`
	Secret         string `json:"secret"`
	TotalSupply    uint64 `json:"totalSupply"`
}

type MintResult struct {
	RecordID domain.RecordID `json:"recordId"`
}

// RecordParams addresses a single record.
type RecordParams struct {
	RecordID domain.RecordID `json:"recordId"`
}

type BalanceOfParams struct {
	Holder   domain.Address  `json:"holder"`
	RecordID domain.RecordID `json:"recordId"`
}

type BalanceOfBatchParams struct {
	Holders   []domain.Address  `json:"holders"`
	RecordIDs []domain.RecordID `json:"recordIds"`
}

type SetApprovalForAllParams struct {
	Operator domain.Address `json:"operator"`
	Approved bool           `json:"approved"`
}

type IsApprovedForAllParams struct {
	Holder   domain.Address `json:"holder"`
	Operator domain.Address `json:"operator"`
}

type SafeTransferFromParams struct {
	From     domain.Address  `json:"from"`
	To       domain.Address  `json:"to"`
	RecordID domain.RecordID `json:"recordId"`
	Amount   uint64          `json:"amount"`
}

// ListingParams is shared by listItem and updateListing.
type ListingParams struct {
	RecordID domain.RecordID `json:"recordId"`
	Price    uint64          `json:"price"`
	Amount   uint64          `json:"amount"`
}

// BuyItemParams carries the attached payment in Value.
type BuyItemParams struct {
	Seller   domain.Address  `json:"seller"`
	RecordID domain.RecordID `json:"recordId"`
	Value    uint64          `json:"value"`
}

type GetListingParams struct {
	Seller   domain.Address  `json:"seller"`
	RecordID domain.RecordID `json:"recordId"`
}

// SellerParams addresses a seller; empty means every seller where allowed.
type SellerParams struct {
	Seller domain.Address `json:"seller"`
}

type WithdrawResult struct {
	Amount uint64 `json:"amount"`
}

type URIResult struct {
	URI string `json:"uri"`
}

type AddressResult struct {
	Address domain.Address `json:"address"`
}

type EventsParams struct {
	FromSeq uint64 `json:"fromSeq"`
}

// SubscribeParams filters an event stream subscription. Empty Kinds means all.
type SubscribeParams struct {
	Kinds []domain.EventKind `json:"kinds,omitempty"`
}

type UnsubscribeParams struct {
	Subscription uint64 `json:"subscription"`
}
