package payment

import (
	"bytes"
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-nft-market/internal/domain"
)

func addr(b byte) domain.Address {
	return domain.AddressFromBytes(bytes.Repeat([]byte{b}, domain.AddressLength))
}

func TestMemoryChannel_Payout(t *testing.T) {
	c := NewMemoryChannel()
	ctx := context.Background()

	require.NoError(t, c.Payout(ctx, addr(1), 100))
	require.NoError(t, c.Payout(ctx, addr(1), 50))

	assert.Equal(t, uint64(150), c.Balance(addr(1)))
	assert.Zero(t, c.Balance(addr(2)))
	assert.Equal(t, 2, c.Payouts())
}

func TestMemoryChannel_InvalidPayout(t *testing.T) {
	c := NewMemoryChannel()
	ctx := context.Background()

	assert.ErrorIs(t, c.Payout(ctx, domain.ZeroAddress, 1), ErrInvalidPayout)
	assert.ErrorIs(t, c.Payout(ctx, addr(1), 0), ErrInvalidPayout)
	assert.Zero(t, c.Payouts())
}

func TestMemoryChannel_FailureHook(t *testing.T) {
	c := NewMemoryChannel()
	ctx := context.Background()
	c.SetFailure(RejectAddresses(addr(9)))

	err := c.Payout(ctx, addr(9), 10)
	assert.ErrorIs(t, err, ErrRejected)
	assert.Zero(t, c.Balance(addr(9)))

	assert.NoError(t, c.Payout(ctx, addr(1), 10))

	c.SetFailure(nil)
	assert.NoError(t, c.Payout(ctx, addr(9), 10))
	assert.Equal(t, uint64(10), c.Balance(addr(9)))
}

func TestMemoryChannel_CustomFailure(t *testing.T) {
	c := NewMemoryChannel()
	boom := errors.New("node unreachable")
	c.SetFailure(func(domain.Address, uint64) error { return boom })

	assert.ErrorIs(t, c.Payout(context.Background(), addr(1), 1), boom)
}

func TestMemoryChannel_CanceledContext(t *testing.T) {
	c := NewMemoryChannel()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	assert.ErrorIs(t, c.Payout(ctx, addr(1), 1), context.Canceled)
	assert.Zero(t, c.Balance(addr(1)))
}

func TestMemoryChannel_WalletOverflowRejected(t *testing.T) {
	c := NewMemoryChannel()
	c.Deposit(addr(1), math.MaxUint64)

	assert.ErrorIs(t, c.Payout(context.Background(), addr(1), 1), ErrRejected)
	assert.Equal(t, uint64(math.MaxUint64), c.Balance(addr(1)))
}
