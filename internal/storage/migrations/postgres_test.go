package migrations

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/engine"
	"file-nft-market/internal/storage/postgres"
)

func TestMigrationFiles_Ordered(t *testing.T) {
	files, err := migrationFiles()
	require.NoError(t, err)
	require.NotEmpty(t, files)

	assert.Equal(t, "001_ledger.sql", files[0])
	for i := 1; i < len(files); i++ {
		assert.Less(t, files[i-1], files[i])
	}
}

func startPostgres(t *testing.T) *postgres.Pool {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres container tests skipped in -short mode")
	}
	ctx := context.Background()

	container, err := tcpostgres.Run(ctx, "postgres:15-alpine",
		tcpostgres.WithDatabase("testdb"),
		tcpostgres.WithUsername("test"),
		tcpostgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")
	t.Cleanup(func() {
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	pool, err := postgres.NewPool(ctx, postgres.PoolConfig{DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(pool.Close)
	return pool
}

func TestRunPostgresMigrations_Idempotent(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()

	applied, err := RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	assert.Equal(t, []string{"001_ledger.sql"}, applied)

	applied, err = RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)
	assert.Empty(t, applied)
}

func TestEngineRestoresFromPostgres(t *testing.T) {
	pool := startPostgres(t)
	ctx := context.Background()
	_, err := RunPostgresMigrations(ctx, pool)
	require.NoError(t, err)

	seller := domain.AddressFromBytes(bytes.Repeat([]byte{1}, domain.AddressLength))
	buyer := domain.AddressFromBytes(bytes.Repeat([]byte{2}, domain.AddressLength))

	first, err := engine.New(engine.Config{}, engine.WithStore(postgres.NewLedgerStore(pool)))
	require.NoError(t, err)
	id, err := first.Mint(ctx, seller, "QmCid", "pw", 3)
	require.NoError(t, err)
	require.NoError(t, first.SetApprovalForAll(ctx, seller, first.MarketAddress(), true))
	_, err = first.ListItem(ctx, seller, id, 5, 3)
	require.NoError(t, err)
	_, err = first.BuyItem(ctx, buyer, seller, id, 7)
	require.NoError(t, err)

	second, err := engine.New(engine.Config{}, engine.WithStore(postgres.NewLedgerStore(pool)))
	require.NoError(t, err)
	require.NoError(t, second.Restore(ctx))

	want, got := first.Status(), second.Status()
	want.LastEventSeq, got.LastEventSeq = 0, 0
	assert.Equal(t, want, got)
	assert.Equal(t, uint64(1), second.BalanceOf(buyer, id))
	assert.Equal(t, uint64(5), second.GetProceeds(seller))
	assert.Equal(t, uint64(7), second.Treasury())
	assert.Equal(t, uint64(2), second.GetListing(seller, id).Amount)

	next, err := second.Mint(ctx, seller, "QmOther", "", 1)
	require.NoError(t, err)
	assert.Equal(t, id+1, next, "record ids continue after restore")
}
