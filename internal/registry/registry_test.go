package registry

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/journal"
)

const (
	testCID      = "QmUd8NTn1Rz8zWhuF572XhzrzNjYNTNm9ma4KRtf7Lb2Pr"
	testPassword = "123"
)

func addr(b byte) domain.Address {
	return domain.AddressFromBytes(bytes.Repeat([]byte{b}, domain.AddressLength))
}

func newTestRegistry() *Registry {
	return New(addr(0xF0), domain.Descriptor{Name: "FileNFT", URI: "https://ipfs.io/ipfs/QmdPjb9vS2Ac6odh58oKePGX397VJumN1NpEck8SPpo3V9"})
}

func sumBalances(r *Registry, id domain.RecordID) uint64 {
	var total uint64
	for _, h := range r.Holders(id) {
		total += h.Amount
	}
	return total
}

func TestMint_CreditsSupplyAndEmits(t *testing.T) {
	r := newTestRegistry()
	j := journal.New()
	owner := addr(1)

	id, err := r.Mint(j, owner, testCID, testPassword, 100)
	require.NoError(t, err)

	assert.Equal(t, domain.RecordID(0), id)
	assert.Equal(t, uint64(100), r.BalanceOf(owner, id))
	assert.Equal(t, uint64(100), r.TotalSupply(id))

	events := j.Events()
	require.Len(t, events, 1)
	assert.Equal(t, domain.EventRecordCreated, events[0].Kind)
	assert.Equal(t, id, events[0].RecordID)
}

func TestMint_SequentialIDs(t *testing.T) {
	r := newTestRegistry()
	for want := domain.RecordID(0); want < 3; want++ {
		id, err := r.Mint(journal.New(), addr(1), testCID, "", 1)
		require.NoError(t, err)
		assert.Equal(t, want, id)
	}
	assert.Equal(t, domain.RecordID(3), r.NextID())
}

func TestMint_Rejections(t *testing.T) {
	r := newTestRegistry()

	_, err := r.Mint(journal.New(), addr(1), testCID, testPassword, 0)
	assert.ErrorIs(t, err, domain.ErrInvalidSupply)

	_, err = r.Mint(journal.New(), addr(1), "", testPassword, 1)
	assert.ErrorIs(t, err, domain.ErrEmptyContentPointer)

	assert.Equal(t, domain.RecordID(0), r.NextID(), "failed mints must not consume ids")
}

func TestMint_RollbackRemovesRecord(t *testing.T) {
	r := newTestRegistry()
	j := journal.New()

	id, err := r.Mint(j, addr(1), testCID, testPassword, 10)
	require.NoError(t, err)
	j.Rollback()

	_, ok := r.Record(id)
	assert.False(t, ok)
	assert.Zero(t, r.BalanceOf(addr(1), id))
	assert.Equal(t, domain.RecordID(0), r.NextID())
}

func TestReadContent_HoldersOnly(t *testing.T) {
	r := newTestRegistry()
	owner, other := addr(1), addr(2)

	id0, err := r.Mint(journal.New(), owner, testCID, testPassword, 5)
	require.NoError(t, err)
	id1, err := r.Mint(journal.New(), owner, testCID, "", 5)
	require.NoError(t, err)

	c0, err := r.ReadContent(owner, id0)
	require.NoError(t, err)
	assert.Equal(t, testCID, c0.ContentPointer)
	assert.Equal(t, testPassword, c0.Secret)

	c1, err := r.ReadContent(owner, id1)
	require.NoError(t, err)
	assert.Equal(t, "", c1.Secret)

	_, err = r.ReadContent(other, id0)
	assert.ErrorIs(t, err, domain.ErrAccessDenied)

	var le *domain.LedgerError
	require.True(t, errors.As(err, &le))
	assert.Equal(t, other, le.Caller)
	require.NotNil(t, le.RecordID)
	assert.Equal(t, id0, *le.RecordID)

	_, err = r.ReadContent(owner, 99)
	assert.ErrorIs(t, err, domain.ErrAccessDenied, "unknown record is not readable")
}

func TestReadContent_FollowsBalance(t *testing.T) {
	r := newTestRegistry()
	owner, buyer := addr(1), addr(2)
	id, err := r.Mint(journal.New(), owner, testCID, testPassword, 3)
	require.NoError(t, err)

	require.NoError(t, r.SafeTransferFrom(journal.New(), owner, owner, buyer, id, 3))

	_, err = r.ReadContent(owner, id)
	assert.ErrorIs(t, err, domain.ErrAccessDenied, "disposing all units revokes access")

	_, err = r.ReadContent(buyer, id)
	assert.NoError(t, err, "receiving units grants access")
}

func TestBalanceOf_Unknown(t *testing.T) {
	r := newTestRegistry()
	assert.Zero(t, r.BalanceOf(addr(9), 42))
}

func TestBalanceOfBatch(t *testing.T) {
	r := newTestRegistry()
	id, err := r.Mint(journal.New(), addr(1), testCID, testPassword, 7)
	require.NoError(t, err)

	got, err := r.BalanceOfBatch([]domain.Address{addr(1), addr(2)}, []domain.RecordID{id, id})
	require.NoError(t, err)
	assert.Equal(t, []uint64{7, 0}, got)

	_, err = r.BalanceOfBatch([]domain.Address{addr(1)}, nil)
	assert.ErrorIs(t, err, ErrLengthMismatch)
}

func TestSafeTransferFrom(t *testing.T) {
	owner, operator, dest := addr(1), addr(2), addr(3)

	tests := []struct {
		name     string
		approve  bool
		caller   domain.Address
		to       domain.Address
		n        uint64
		wantErr  error
		wantFrom uint64
		wantTo   uint64
	}{
		{name: "holder moves own units", caller: owner, to: dest, n: 4, wantFrom: 6, wantTo: 4},
		{name: "approved operator", approve: true, caller: operator, to: dest, n: 10, wantFrom: 0, wantTo: 10},
		{name: "unapproved operator", caller: operator, to: dest, n: 1, wantErr: domain.ErrNotApproved, wantFrom: 10},
		{name: "exceeds balance", caller: owner, to: dest, n: 11, wantErr: domain.ErrInsufficientBalance, wantFrom: 10},
		{name: "zero recipient", caller: owner, to: domain.ZeroAddress, n: 1, wantErr: domain.ErrInvalidRecipient, wantFrom: 10},
		{name: "zero units", caller: owner, to: dest, n: 0, wantFrom: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newTestRegistry()
			id, err := r.Mint(journal.New(), owner, testCID, testPassword, 10)
			require.NoError(t, err)
			if tt.approve {
				require.NoError(t, r.SetApprovalForAll(journal.New(), owner, operator, true))
			}

			err = r.SafeTransferFrom(journal.New(), tt.caller, owner, tt.to, id, tt.n)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}

			assert.Equal(t, tt.wantFrom, r.BalanceOf(owner, id))
			if !tt.to.IsZero() {
				assert.Equal(t, tt.wantTo, r.BalanceOf(tt.to, id))
			}
			assert.Equal(t, uint64(10), sumBalances(r, id), "balance conservation")
		})
	}
}

func TestSafeTransferFrom_Rollback(t *testing.T) {
	r := newTestRegistry()
	owner, dest := addr(1), addr(2)
	id, err := r.Mint(journal.New(), owner, testCID, testPassword, 10)
	require.NoError(t, err)

	j := journal.New()
	require.NoError(t, r.SafeTransferFrom(j, owner, owner, dest, id, 10))
	for _, h := range r.Holders(id) {
		assert.NotEqual(t, owner, h.Holder, "zero balances are dropped")
	}

	j.Rollback()
	assert.Equal(t, uint64(10), r.BalanceOf(owner, id))
	assert.Zero(t, r.BalanceOf(dest, id))
}

func TestSetApprovalForAll(t *testing.T) {
	r := newTestRegistry()
	holder, operator := addr(1), addr(2)

	j := journal.New()
	require.NoError(t, r.SetApprovalForAll(j, holder, operator, true))
	assert.True(t, r.IsApprovedForAll(holder, operator))
	assert.Len(t, j.Dirty().Approvals, 1)

	// Idempotent grant writes nothing.
	j2 := journal.New()
	require.NoError(t, r.SetApprovalForAll(j2, holder, operator, true))
	assert.Empty(t, j2.Dirty().Approvals)

	require.NoError(t, r.SetApprovalForAll(journal.New(), holder, operator, false))
	assert.False(t, r.IsApprovedForAll(holder, operator))

	err := r.SetApprovalForAll(journal.New(), holder, domain.ZeroAddress, true)
	assert.ErrorIs(t, err, domain.ErrInvalidRecipient)
}

func TestDescriptorAndURI(t *testing.T) {
	r := newTestRegistry()
	assert.Equal(t, "FileNFT", r.Descriptor().Name)
	assert.Equal(t, r.Descriptor().URI, r.URI(0))
	assert.Equal(t, r.Descriptor().URI, r.URI(12345))
}

func TestRestore(t *testing.T) {
	r := newTestRegistry()
	snap := &domain.Snapshot{
		Records: []domain.Record{{ID: 0, ContentPointer: testCID, Secret: testPassword, TotalSupply: 5, Creator: addr(1)}},
		Balances: []domain.BalanceEntry{
			{RecordID: 0, Holder: addr(1), Amount: 4},
			{RecordID: 0, Holder: addr(2), Amount: 1},
		},
		Approvals: []domain.ApprovalEntry{{Holder: addr(1), Operator: addr(3), Approved: true}},
		Meta:      domain.LedgerMeta{NextRecordID: 1},
	}

	r.Restore(snap)

	assert.Equal(t, uint64(4), r.BalanceOf(addr(1), 0))
	assert.Equal(t, uint64(1), r.BalanceOf(addr(2), 0))
	assert.True(t, r.IsApprovedForAll(addr(1), addr(3)))
	assert.Equal(t, domain.RecordID(1), r.NextID())

	c, err := r.ReadContent(addr(2), 0)
	require.NoError(t, err)
	assert.Equal(t, testPassword, c.Secret)
}
