package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgx/v5"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/storage"
)

// LedgerStore implements storage.LedgerStore using PostgreSQL.
// Unit amounts are NUMERIC(20,0) so the full uint64 range round-trips;
// they cross the driver as decimal text.
type LedgerStore struct {
	pool *Pool
}

// NewLedgerStore creates a new LedgerStore.
func NewLedgerStore(pool *Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.LedgerStore = (*LedgerStore)(nil)

// Apply writes cs in one transaction. Returns ErrDuplicateKey if a record id exists.
func (s *LedgerStore) Apply(ctx context.Context, cs *domain.ChangeSet) error {
	if err := storage.ValidateChangeSet(cs); err != nil {
		return err
	}
	if cs.Empty() {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	// Records first: balances and listings reference them.
	for _, r := range cs.Records {
		_, err := tx.Exec(ctx, `
			INSERT INTO records (record_id, content_pointer, secret, total_supply, creator)
			VALUES ($1, $2, $3, $4::numeric, $5)
		`, int64(r.ID), r.ContentPointer, r.Secret, formatUnits(r.TotalSupply), string(r.Creator))
		if err != nil {
			if isDuplicateKeyError(err) {
				return storage.ErrDuplicateKey
			}
			return fmt.Errorf("insert record %d: %w", r.ID, err)
		}
	}

	for _, b := range cs.Balances {
		if err := applyBalance(ctx, tx, b); err != nil {
			return err
		}
	}
	for _, a := range cs.Approvals {
		if err := applyApproval(ctx, tx, a); err != nil {
			return err
		}
	}
	for _, l := range cs.Listings {
		if err := applyListing(ctx, tx, l); err != nil {
			return err
		}
	}
	for _, p := range cs.Proceeds {
		if err := applyProceeds(ctx, tx, p); err != nil {
			return err
		}
	}

	if cs.Meta != nil {
		_, err := tx.Exec(ctx, `
			INSERT INTO ledger_meta (id, next_record_id, treasury, updated_at)
			VALUES (1, $1, $2::numeric, NOW())
			ON CONFLICT (id) DO UPDATE
			SET next_record_id = EXCLUDED.next_record_id,
			    treasury = EXCLUDED.treasury,
			    updated_at = NOW()
		`, int64(cs.Meta.NextRecordID), formatUnits(cs.Meta.Treasury))
		if err != nil {
			return fmt.Errorf("upsert ledger meta: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func applyBalance(ctx context.Context, tx pgx.Tx, b domain.BalanceEntry) error {
	var err error
	if b.Amount == 0 {
		_, err = tx.Exec(ctx, `DELETE FROM balances WHERE record_id = $1 AND holder = $2`,
			int64(b.RecordID), string(b.Holder))
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO balances (record_id, holder, amount, updated_at)
			VALUES ($1, $2, $3::numeric, NOW())
			ON CONFLICT (record_id, holder) DO UPDATE
			SET amount = EXCLUDED.amount, updated_at = NOW()
		`, int64(b.RecordID), string(b.Holder), formatUnits(b.Amount))
	}
	if err != nil {
		return fmt.Errorf("write balance %d/%s: %w", b.RecordID, b.Holder, err)
	}
	return nil
}

func applyApproval(ctx context.Context, tx pgx.Tx, a domain.ApprovalEntry) error {
	var err error
	if a.Approved {
		_, err = tx.Exec(ctx, `
			INSERT INTO approvals (holder, operator) VALUES ($1, $2)
			ON CONFLICT (holder, operator) DO NOTHING
		`, string(a.Holder), string(a.Operator))
	} else {
		_, err = tx.Exec(ctx, `DELETE FROM approvals WHERE holder = $1 AND operator = $2`,
			string(a.Holder), string(a.Operator))
	}
	if err != nil {
		return fmt.Errorf("write approval %s/%s: %w", a.Holder, a.Operator, err)
	}
	return nil
}

func applyListing(ctx context.Context, tx pgx.Tx, l domain.Listing) error {
	var err error
	if l.Amount == 0 {
		_, err = tx.Exec(ctx, `DELETE FROM listings WHERE seller = $1 AND record_id = $2`,
			string(l.Seller), int64(l.RecordID))
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO listings (seller, record_id, price, amount, updated_at)
			VALUES ($1, $2, $3::numeric, $4::numeric, NOW())
			ON CONFLICT (seller, record_id) DO UPDATE
			SET price = EXCLUDED.price, amount = EXCLUDED.amount, updated_at = NOW()
		`, string(l.Seller), int64(l.RecordID), formatUnits(l.Price), formatUnits(l.Amount))
	}
	if err != nil {
		return fmt.Errorf("write listing %s/%d: %w", l.Seller, l.RecordID, err)
	}
	return nil
}

func applyProceeds(ctx context.Context, tx pgx.Tx, p domain.ProceedsEntry) error {
	var err error
	if p.Amount == 0 {
		_, err = tx.Exec(ctx, `DELETE FROM proceeds WHERE seller = $1`, string(p.Seller))
	} else {
		_, err = tx.Exec(ctx, `
			INSERT INTO proceeds (seller, amount, updated_at)
			VALUES ($1, $2::numeric, NOW())
			ON CONFLICT (seller) DO UPDATE
			SET amount = EXCLUDED.amount, updated_at = NOW()
		`, string(p.Seller), formatUnits(p.Amount))
	}
	if err != nil {
		return fmt.Errorf("write proceeds %s: %w", p.Seller, err)
	}
	return nil
}

// Load reads the full current state inside one read-only transaction.
func (s *LedgerStore) Load(ctx context.Context) (*domain.Snapshot, error) {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{AccessMode: pgx.ReadOnly, IsoLevel: pgx.RepeatableRead})
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	snap := &domain.Snapshot{}
	if snap.Records, err = loadRecords(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Balances, err = loadBalances(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Approvals, err = loadApprovals(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Listings, err = loadListings(ctx, tx); err != nil {
		return nil, err
	}
	if snap.Proceeds, err = loadProceeds(ctx, tx); err != nil {
		return nil, err
	}

	meta, err := loadMeta(ctx, tx)
	if err != nil && !errors.Is(err, storage.ErrNotFound) {
		return nil, err
	}
	snap.Meta = meta

	return snap, nil
}

func loadRecords(ctx context.Context, tx pgx.Tx) ([]domain.Record, error) {
	rows, err := tx.Query(ctx, `
		SELECT record_id, content_pointer, secret, total_supply::text, creator
		FROM records
		ORDER BY record_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load records: %w", err)
	}
	defer rows.Close()

	var out []domain.Record
	for rows.Next() {
		var (
			r       domain.Record
			id      int64
			supply  string
			creator string
		)
		if err := rows.Scan(&id, &r.ContentPointer, &r.Secret, &supply, &creator); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		r.ID = domain.RecordID(id)
		r.Creator = domain.Address(creator)
		if r.TotalSupply, err = parseUnits(supply); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func loadBalances(ctx context.Context, tx pgx.Tx) ([]domain.BalanceEntry, error) {
	rows, err := tx.Query(ctx, `
		SELECT record_id, holder, amount::text
		FROM balances
		ORDER BY record_id ASC, holder ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load balances: %w", err)
	}
	defer rows.Close()

	var out []domain.BalanceEntry
	for rows.Next() {
		var (
			id     int64
			holder string
			amount string
		)
		if err := rows.Scan(&id, &holder, &amount); err != nil {
			return nil, fmt.Errorf("scan balance: %w", err)
		}
		n, err := parseUnits(amount)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.BalanceEntry{RecordID: domain.RecordID(id), Holder: domain.Address(holder), Amount: n})
	}
	return out, rows.Err()
}

func loadApprovals(ctx context.Context, tx pgx.Tx) ([]domain.ApprovalEntry, error) {
	rows, err := tx.Query(ctx, `SELECT holder, operator FROM approvals ORDER BY holder ASC, operator ASC`)
	if err != nil {
		return nil, fmt.Errorf("load approvals: %w", err)
	}
	defer rows.Close()

	var out []domain.ApprovalEntry
	for rows.Next() {
		var holder, operator string
		if err := rows.Scan(&holder, &operator); err != nil {
			return nil, fmt.Errorf("scan approval: %w", err)
		}
		out = append(out, domain.ApprovalEntry{Holder: domain.Address(holder), Operator: domain.Address(operator), Approved: true})
	}
	return out, rows.Err()
}

func loadListings(ctx context.Context, tx pgx.Tx) ([]domain.Listing, error) {
	rows, err := tx.Query(ctx, `
		SELECT seller, record_id, price::text, amount::text
		FROM listings
		ORDER BY seller ASC, record_id ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("load listings: %w", err)
	}
	defer rows.Close()

	var out []domain.Listing
	for rows.Next() {
		var (
			seller        string
			id            int64
			price, amount string
		)
		if err := rows.Scan(&seller, &id, &price, &amount); err != nil {
			return nil, fmt.Errorf("scan listing: %w", err)
		}
		l := domain.Listing{Seller: domain.Address(seller), RecordID: domain.RecordID(id)}
		if l.Price, err = parseUnits(price); err != nil {
			return nil, err
		}
		if l.Amount, err = parseUnits(amount); err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func loadProceeds(ctx context.Context, tx pgx.Tx) ([]domain.ProceedsEntry, error) {
	rows, err := tx.Query(ctx, `SELECT seller, amount::text FROM proceeds ORDER BY seller ASC`)
	if err != nil {
		return nil, fmt.Errorf("load proceeds: %w", err)
	}
	defer rows.Close()

	var out []domain.ProceedsEntry
	for rows.Next() {
		var seller, amount string
		if err := rows.Scan(&seller, &amount); err != nil {
			return nil, fmt.Errorf("scan proceeds: %w", err)
		}
		n, err := parseUnits(amount)
		if err != nil {
			return nil, err
		}
		out = append(out, domain.ProceedsEntry{Seller: domain.Address(seller), Amount: n})
	}
	return out, rows.Err()
}

// loadMeta returns ErrNotFound before the first mutation.
func loadMeta(ctx context.Context, tx pgx.Tx) (domain.LedgerMeta, error) {
	var (
		next     int64
		treasury string
	)
	err := tx.QueryRow(ctx, `SELECT next_record_id, treasury::text FROM ledger_meta WHERE id = 1`).Scan(&next, &treasury)
	if err != nil {
		if isNotFoundError(err) {
			return domain.LedgerMeta{}, storage.ErrNotFound
		}
		return domain.LedgerMeta{}, fmt.Errorf("load ledger meta: %w", err)
	}
	t, err := parseUnits(treasury)
	if err != nil {
		return domain.LedgerMeta{}, err
	}
	return domain.LedgerMeta{NextRecordID: domain.RecordID(next), Treasury: t}, nil
}

func formatUnits(n uint64) string {
	return strconv.FormatUint(n, 10)
}

func parseUnits(s string) (uint64, error) {
	n, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse units %q: %w", s, err)
	}
	return n, nil
}
