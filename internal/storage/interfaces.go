package storage

import (
	"context"

	"file-nft-market/internal/domain"
)

// LedgerStore persists the current ledger state: records, balances, approvals,
// listings, proceeds, and the ledger meta row. It keeps no history.
type LedgerStore interface {
	// Apply writes every entry of cs atomically. Zero-valued balances, listings,
	// and proceeds delete their row; Approved=false deletes the grant.
	// Returns ErrDuplicateKey if a record id already exists.
	Apply(ctx context.Context, cs *domain.ChangeSet) error

	// Load returns the full current state. An empty store returns an empty snapshot.
	Load(ctx context.Context) (*domain.Snapshot, error)
}
