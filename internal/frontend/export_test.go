package frontend

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/rpc"
)

func addr(b byte) domain.Address {
	return domain.AddressFromBytes(bytes.Repeat([]byte{b}, domain.AddressLength))
}

func TestExport_WritesAllArtifacts(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "constants")
	d := Deployment{Network: "31337", RegistryAddress: addr(1), MarketAddress: addr(2)}

	require.NoError(t, Export(dir, d))

	addrs, err := ReadAddresses(filepath.Join(dir, AddressesFile))
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{addr(1)}, addrs["31337"][RegistryName])
	assert.Equal(t, []domain.Address{addr(2)}, addrs["31337"][MarketName])

	for _, name := range []string{RegistryFile, MarketFile} {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		require.NoError(t, err)
		var entries []Entry
		require.NoError(t, json.Unmarshal(raw, &entries), name)
		assert.NotEmpty(t, entries)
	}
	_, err = os.Stat(filepath.Join(dir, AddressesFile+".tmp"))
	assert.True(t, os.IsNotExist(err), "temp file removed")
}

func TestUpdateAddresses_ReplacesOnlyNetworkEntry(t *testing.T) {
	path := filepath.Join(t.TempDir(), AddressesFile)
	existing := `{"1":{"FileNFT":["old"],"FileNftMarketplace":["old"]},"31337":{"FileNFT":["stale","staler"],"FileNftMarketplace":["stale"]}}`
	require.NoError(t, os.WriteFile(path, []byte(existing), 0o644))

	require.NoError(t, UpdateAddresses(path, Deployment{Network: "31337", RegistryAddress: addr(3), MarketAddress: addr(4)}))

	addrs, err := ReadAddresses(path)
	require.NoError(t, err)
	assert.Equal(t, []domain.Address{"old"}, addrs["1"][RegistryName])
	assert.Equal(t, []domain.Address{addr(3)}, addrs["31337"][RegistryName], "replaced, not appended")
	assert.Equal(t, []domain.Address{addr(4)}, addrs["31337"][MarketName])
}

func TestUpdateAddresses_RejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), AddressesFile)
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o644))
	assert.Error(t, UpdateAddresses(path, Deployment{Network: "x", RegistryAddress: addr(1), MarketAddress: addr(2)}))
}

func TestExport_RequiresNetwork(t *testing.T) {
	assert.Error(t, Export(t.TempDir(), Deployment{}))
}

func find(entries []Entry, name string) (Entry, bool) {
	for _, e := range entries {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

func TestMarketInterface(t *testing.T) {
	entries := MarketInterface()

	buy, ok := find(entries, rpc.MethodBuyItem)
	require.True(t, ok)
	assert.Equal(t, "payable", buy.StateMutability)
	assert.Equal(t, []Param{{"seller", "address"}, {"recordId", "uint256"}, {"value", "uint256"}}, buy.Inputs)

	bought, ok := find(entries, string(domain.EventItemBought))
	require.True(t, ok)
	assert.Equal(t, "event", bought.Type)
	assert.Len(t, bought.Inputs, 4)

	withdraw, ok := find(entries, rpc.MethodWithdrawProceeds)
	require.True(t, ok)
	assert.Empty(t, withdraw.Inputs)
}

func TestRegistryInterface(t *testing.T) {
	entries := RegistryInterface()

	batch, ok := find(entries, rpc.MethodBalanceOfBatch)
	require.True(t, ok)
	assert.Equal(t, []Param{{"holders", "address[]"}, {"recordIds", "uint256[]"}}, batch.Inputs)

	_, ok = find(entries, string(domain.EventRecordCreated))
	assert.True(t, ok)
}
