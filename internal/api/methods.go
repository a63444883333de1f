package api

import (
	"context"
	"encoding/json"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/rpc"
)

func (s *Server) registerMethods() {
	s.methods = map[string]methodHandler{
		// Registry.
		rpc.MethodMint:              {needsCaller: true, fn: s.mint},
		rpc.MethodReadContent:       {needsCaller: true, fn: s.readContent},
		rpc.MethodBalanceOf:         {fn: s.balanceOf},
		rpc.MethodBalanceOfBatch:    {fn: s.balanceOfBatch},
		rpc.MethodSetApprovalForAll: {needsCaller: true, fn: s.setApprovalForAll},
		rpc.MethodIsApprovedForAll:  {fn: s.isApprovedForAll},
		rpc.MethodSafeTransferFrom:  {needsCaller: true, fn: s.safeTransferFrom},
		rpc.MethodDescriptor:        {fn: s.descriptor},
		rpc.MethodURI:               {fn: s.uri},
		rpc.MethodGetRecord:         {fn: s.getRecord},

		// Marketplace.
		rpc.MethodListItem:         {needsCaller: true, fn: s.listItem},
		rpc.MethodCancelListing:    {needsCaller: true, fn: s.cancelListing},
		rpc.MethodUpdateListing:    {needsCaller: true, fn: s.updateListing},
		rpc.MethodBuyItem:          {needsCaller: true, fn: s.buyItem},
		rpc.MethodWithdrawProceeds: {needsCaller: true, fn: s.withdrawProceeds},
		rpc.MethodGetListing:       {fn: s.getListing},
		rpc.MethodGetListings:      {fn: s.getListings},
		rpc.MethodGetProceeds:      {fn: s.getProceeds},
		rpc.MethodGetNftAddress:    {fn: s.getNftAddress},
		rpc.MethodGetMarketAddress: {fn: s.getMarketAddress},

		rpc.MethodGetStatus: {fn: s.getStatus},
		rpc.MethodGetEvents: {fn: s.getEvents},
	}
}

func (s *Server) mint(ctx context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.MintParams](raw)
	if err != nil {
		return nil, err
	}
	id, err := s.ledger.Mint(ctx, caller, p.ContentPointer, p.Secret, p.TotalSupply)
	if err != nil {
		return nil, err
	}
	return rpc.MintResult{RecordID: id}, nil
}

func (s *Server) readContent(_ context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.RecordParams](raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.ReadContent(caller, p.RecordID)
}

func (s *Server) balanceOf(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.BalanceOfParams](raw)
	if err != nil {
		return nil, err
	}
	if err := address("holder", p.Holder); err != nil {
		return nil, err
	}
	return s.ledger.BalanceOf(p.Holder, p.RecordID), nil
}

func (s *Server) balanceOfBatch(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.BalanceOfBatchParams](raw)
	if err != nil {
		return nil, err
	}
	if len(p.Holders) != len(p.RecordIDs) {
		return nil, rpc.InvalidParams("holders and recordIds differ in length")
	}
	return s.ledger.BalanceOfBatch(p.Holders, p.RecordIDs)
}

func (s *Server) setApprovalForAll(ctx context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.SetApprovalForAllParams](raw)
	if err != nil {
		return nil, err
	}
	if err := address("operator", p.Operator); err != nil {
		return nil, err
	}
	if err := s.ledger.SetApprovalForAll(ctx, caller, p.Operator, p.Approved); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) isApprovedForAll(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.IsApprovedForAllParams](raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.IsApprovedForAll(p.Holder, p.Operator), nil
}

func (s *Server) safeTransferFrom(ctx context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.SafeTransferFromParams](raw)
	if err != nil {
		return nil, err
	}
	if err := address("from", p.From); err != nil {
		return nil, err
	}
	if err := address("to", p.To); err != nil {
		return nil, err
	}
	if err := s.ledger.SafeTransferFrom(ctx, caller, p.From, p.To, p.RecordID, p.Amount); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) descriptor(context.Context, domain.Address, json.RawMessage) (any, error) {
	return s.ledger.Descriptor(), nil
}

func (s *Server) uri(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.RecordParams](raw)
	if err != nil {
		return nil, err
	}
	return rpc.URIResult{URI: s.ledger.URI(p.RecordID)}, nil
}

func (s *Server) getRecord(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.RecordParams](raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetRecord(p.RecordID)
}

func (s *Server) listItem(ctx context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.ListingParams](raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.ListItem(ctx, caller, p.RecordID, p.Price, p.Amount)
}

func (s *Server) cancelListing(ctx context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.RecordParams](raw)
	if err != nil {
		return nil, err
	}
	if err := s.ledger.CancelListing(ctx, caller, p.RecordID); err != nil {
		return nil, err
	}
	return true, nil
}

func (s *Server) updateListing(ctx context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.ListingParams](raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.UpdateListing(ctx, caller, p.RecordID, p.Price, p.Amount)
}

func (s *Server) buyItem(ctx context.Context, caller domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.BuyItemParams](raw)
	if err != nil {
		return nil, err
	}
	if err := address("seller", p.Seller); err != nil {
		return nil, err
	}
	return s.ledger.BuyItem(ctx, caller, p.Seller, p.RecordID, p.Value)
}

func (s *Server) withdrawProceeds(ctx context.Context, caller domain.Address, _ json.RawMessage) (any, error) {
	amount, err := s.ledger.WithdrawProceeds(ctx, caller)
	if err != nil {
		return nil, err
	}
	return rpc.WithdrawResult{Amount: amount}, nil
}

func (s *Server) getListing(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.GetListingParams](raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetListing(p.Seller, p.RecordID), nil
}

func (s *Server) getListings(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.SellerParams](raw)
	if err != nil {
		return nil, err
	}
	listings := s.ledger.Listings(p.Seller)
	if listings == nil {
		listings = []domain.Listing{}
	}
	return listings, nil
}

func (s *Server) getProceeds(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	p, err := decode[rpc.SellerParams](raw)
	if err != nil {
		return nil, err
	}
	return s.ledger.GetProceeds(p.Seller), nil
}

func (s *Server) getNftAddress(context.Context, domain.Address, json.RawMessage) (any, error) {
	return rpc.AddressResult{Address: s.ledger.GetNftAddress()}, nil
}

func (s *Server) getMarketAddress(context.Context, domain.Address, json.RawMessage) (any, error) {
	return rpc.AddressResult{Address: s.ledger.MarketAddress()}, nil
}

func (s *Server) getStatus(context.Context, domain.Address, json.RawMessage) (any, error) {
	return s.ledger.Status(), nil
}

func (s *Server) getEvents(_ context.Context, _ domain.Address, raw json.RawMessage) (any, error) {
	if s.recorder == nil {
		return []domain.Event{}, nil
	}
	p, err := decode[rpc.EventsParams](raw)
	if err != nil {
		return nil, err
	}
	evs := s.recorder.Since(p.FromSeq)
	if evs == nil {
		evs = []domain.Event{}
	}
	return evs, nil
}
