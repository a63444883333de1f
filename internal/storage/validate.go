package storage

import (
	"fmt"

	"file-nft-market/internal/domain"
)

// ValidateChangeSet rejects change sets no store should accept.
func ValidateChangeSet(cs *domain.ChangeSet) error {
	if cs == nil {
		return ErrInvalidInput
	}
	for _, r := range cs.Records {
		if r.ContentPointer == "" || r.TotalSupply == 0 || r.Creator == "" {
			return fmt.Errorf("record %d: %w", r.ID, ErrInvalidInput)
		}
	}
	for _, b := range cs.Balances {
		if b.Holder == "" {
			return fmt.Errorf("balance of record %d: %w", b.RecordID, ErrInvalidInput)
		}
	}
	for _, a := range cs.Approvals {
		if a.Holder == "" || a.Operator == "" {
			return fmt.Errorf("approval: %w", ErrInvalidInput)
		}
	}
	for _, l := range cs.Listings {
		if l.Seller == "" {
			return fmt.Errorf("listing of record %d: %w", l.RecordID, ErrInvalidInput)
		}
	}
	for _, p := range cs.Proceeds {
		if p.Seller == "" {
			return fmt.Errorf("proceeds: %w", ErrInvalidInput)
		}
	}
	return nil
}
