// Package payment moves native units out of the marketplace to a recipient.
package payment

import (
	"context"
	"errors"
	"math"
	"sync"

	"file-nft-market/internal/domain"
)

var (
	// ErrRejected is returned when the recipient refuses the payment.
	ErrRejected = errors.New("payment rejected by recipient")

	// ErrInvalidPayout is returned for a zero recipient or a zero amount.
	ErrInvalidPayout = errors.New("invalid payout")
)

// Channel sends native units to an address. Implementations must not call
// back into the ledger.
type Channel interface {
	Payout(ctx context.Context, to domain.Address, amount uint64) error
}

// FailFunc decides whether a payout fails. A nil return lets it through.
type FailFunc func(to domain.Address, amount uint64) error

// MemoryChannel is an in-process Channel that credits recipient wallets.
type MemoryChannel struct {
	mu      sync.RWMutex
	wallets map[domain.Address]uint64
	fail    FailFunc
	count   int
}

// NewMemoryChannel creates an empty in-memory channel.
func NewMemoryChannel() *MemoryChannel {
	return &MemoryChannel{wallets: make(map[domain.Address]uint64)}
}

// Compile-time interface check.
var _ Channel = (*MemoryChannel)(nil)

// Payout credits amount to to's wallet unless the failure hook rejects it.
func (c *MemoryChannel) Payout(ctx context.Context, to domain.Address, amount uint64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if to.IsZero() || amount == 0 {
		return ErrInvalidPayout
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if c.fail != nil {
		if err := c.fail(to, amount); err != nil {
			return err
		}
	}
	if c.wallets[to] > math.MaxUint64-amount {
		return ErrRejected
	}
	c.wallets[to] += amount
	c.count++
	return nil
}

// Deposit adds amount to addr's wallet without going through the failure hook.
func (c *MemoryChannel) Deposit(addr domain.Address, amount uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.wallets[addr] += amount
}

// Balance returns addr's wallet balance.
func (c *MemoryChannel) Balance(addr domain.Address) uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.wallets[addr]
}

// Payouts returns the number of successful payouts.
func (c *MemoryChannel) Payouts() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.count
}

// SetFailure installs fn as the failure hook. Pass nil to clear it.
func (c *MemoryChannel) SetFailure(fn FailFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.fail = fn
}

// RejectAddresses returns a FailFunc refusing payments to any of addrs.
func RejectAddresses(addrs ...domain.Address) FailFunc {
	set := make(map[domain.Address]struct{}, len(addrs))
	for _, a := range addrs {
		set[a] = struct{}{}
	}
	return func(to domain.Address, _ uint64) error {
		if _, ok := set[to]; ok {
			return ErrRejected
		}
		return nil
	}
}
