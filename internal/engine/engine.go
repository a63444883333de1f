// Package engine serialises ledger operations over the registry and the market.
//
// Every mutation holds the write lock for its whole duration and runs as a unit
// of work: state writes are journalled, the resulting change set is written to
// the store, and events are published only after that write succeeds. Any
// failure replays the journal in reverse and publishes nothing.
package engine

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"file-nft-market/internal/domain"
	"file-nft-market/internal/idhash"
	"file-nft-market/internal/journal"
	"file-nft-market/internal/market"
	"file-nft-market/internal/observability"
	"file-nft-market/internal/payment"
	"file-nft-market/internal/registry"
	"file-nft-market/internal/storage"
)

// Seeds the registry and market addresses are derived from.
const (
	RegistrySeed = "FileNFT"
	MarketSeed   = "FileNftMarketplace"
)

// ErrStorage wraps every failure to persist a committed operation.
var ErrStorage = errors.New("storage failure")

// DefaultAuthority is the base address component addresses derive from when
// none is configured.
var DefaultAuthority = func() domain.Address {
	h := sha256.Sum256([]byte("file-nft-market"))
	return domain.AddressFromBytes(h[:])
}()

// Publisher receives committed events in commit order.
type Publisher interface {
	Publish(domain.Event)
}

// Config configures an Engine.
type Config struct {
	Authority  domain.Address // base for component address derivation
	Descriptor domain.Descriptor
}

// Option customises an Engine.
type Option func(*Engine)

// WithStore sets the write-through store. Without one, state lives in memory only.
func WithStore(s storage.LedgerStore) Option {
	return func(e *Engine) { e.store = s }
}

// WithPayments sets the channel withdrawals pay out through.
func WithPayments(c payment.Channel) Option {
	return func(e *Engine) { e.payments = c }
}

// WithPublisher sets the committed event sink.
func WithPublisher(p Publisher) Option {
	return func(e *Engine) { e.publisher = p }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// Engine owns the registry and the market.
type Engine struct {
	mu  sync.RWMutex
	reg *registry.Registry
	mkt *market.Market
	seq uint64 // last assigned event sequence number

	store     storage.LedgerStore
	payments  payment.Channel
	publisher Publisher
	log       *zap.Logger
}

// New creates an engine with empty state. Call Restore to load a store snapshot.
func New(cfg Config, opts ...Option) (*Engine, error) {
	authority := cfg.Authority
	if authority == "" {
		authority = DefaultAuthority
	}

	regAddr, _, err := domain.DeriveProgramAddress(authority, []byte(RegistrySeed))
	if err != nil {
		return nil, fmt.Errorf("derive registry address: %w", err)
	}
	mktAddr, _, err := domain.DeriveProgramAddress(authority, []byte(MarketSeed))
	if err != nil {
		return nil, fmt.Errorf("derive market address: %w", err)
	}

	reg := registry.New(regAddr, cfg.Descriptor)
	e := &Engine{
		reg: reg,
		mkt: market.New(mktAddr, reg),
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.payments == nil {
		e.payments = payment.NewMemoryChannel()
	}
	if e.log == nil {
		e.log = zap.NewNop()
	}
	e.log = e.log.Named("engine")

	return e, nil
}

// Restore replaces the in-memory state with the store's snapshot.
func (e *Engine) Restore(ctx context.Context) error {
	if e.store == nil {
		return nil
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	snap, err := e.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("restore: %w: %w", ErrStorage, err)
	}
	e.reg.Restore(snap)
	e.mkt.Restore(snap)
	e.updateGauges()

	if err := e.verifyLocked(); err != nil {
		return fmt.Errorf("restore: %w", err)
	}

	e.log.Info("state restored",
		zap.Int("records", len(snap.Records)),
		zap.Int("listings", len(snap.Listings)),
		zap.Uint64("next_record_id", uint64(snap.Meta.NextRecordID)),
		zap.Uint64("treasury", snap.Meta.Treasury),
	)
	return nil
}

// Mint creates a record with totalSupply units credited to caller.
func (e *Engine) Mint(ctx context.Context, caller domain.Address, contentPointer, secret string, totalSupply uint64) (domain.RecordID, error) {
	var id domain.RecordID
	err := e.mutate(ctx, "mint", func(j *journal.Journal) error {
		var err error
		id, err = e.reg.Mint(j, caller, contentPointer, secret, totalSupply)
		return err
	})
	return id, err
}

// SetApprovalForAll grants or revokes operator's authority over caller's balances.
func (e *Engine) SetApprovalForAll(ctx context.Context, caller, operator domain.Address, approved bool) error {
	return e.mutate(ctx, "setApprovalForAll", func(j *journal.Journal) error {
		return e.reg.SetApprovalForAll(j, caller, operator, approved)
	})
}

// SafeTransferFrom moves n units of id from one holder to another on caller's authority.
func (e *Engine) SafeTransferFrom(ctx context.Context, caller, from, to domain.Address, id domain.RecordID, n uint64) error {
	return e.mutate(ctx, "safeTransferFrom", func(j *journal.Journal) error {
		return e.reg.SafeTransferFrom(j, caller, from, to, id, n)
	})
}

// ListItem lists up to amount units of id owned by caller at price each.
func (e *Engine) ListItem(ctx context.Context, caller domain.Address, id domain.RecordID, price, amount uint64) (domain.Listing, error) {
	var l domain.Listing
	err := e.mutate(ctx, "listItem", func(j *journal.Journal) error {
		var err error
		l, err = e.mkt.ListItem(j, caller, id, price, amount)
		return err
	})
	return l, err
}

// CancelListing removes caller's listing for id.
func (e *Engine) CancelListing(ctx context.Context, caller domain.Address, id domain.RecordID) error {
	return e.mutate(ctx, "cancelListing", func(j *journal.Journal) error {
		return e.mkt.CancelListing(j, caller, id)
	})
}

// UpdateListing overwrites price and amount of caller's listing for id.
func (e *Engine) UpdateListing(ctx context.Context, caller domain.Address, id domain.RecordID, price, amount uint64) (domain.Listing, error) {
	var l domain.Listing
	err := e.mutate(ctx, "updateListing", func(j *journal.Journal) error {
		var err error
		l, err = e.mkt.UpdateListing(j, caller, id, price, amount)
		return err
	})
	return l, err
}

// BuyItem sells one unit of seller's listing for id to buyer, who attached paid.
func (e *Engine) BuyItem(ctx context.Context, buyer, seller domain.Address, id domain.RecordID, paid uint64) (domain.Listing, error) {
	var l domain.Listing
	err := e.mutate(ctx, "buyItem", func(j *journal.Journal) error {
		var err error
		l, err = e.mkt.BuyItem(j, buyer, seller, id, paid)
		return err
	})
	return l, err
}

// WithdrawProceeds pays caller's proceeds out through the payment channel.
// The zeroed balance is persisted before the payout; a failed payout restores
// it and returns ErrTransferFailed.
func (e *Engine) WithdrawProceeds(ctx context.Context, caller domain.Address) (uint64, error) {
	const method = "withdrawProceeds"
	start := time.Now()

	if err := ctx.Err(); err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	j := journal.New()
	amount, err := e.mkt.WithdrawProceeds(j, caller)
	if err != nil {
		j.Rollback()
		e.finish(method, start, err)
		return 0, err
	}

	dirty := j.Dirty()
	if err := e.persist(ctx, method, dirty); err != nil {
		j.Rollback()
		e.finish(method, start, err)
		return 0, err
	}

	if err := e.payments.Payout(ctx, caller, amount); err != nil {
		j.Rollback()
		observability.RecordPayoutFailure()
		e.log.Error("payout failed, withdrawal rolled back",
			zap.String("caller", caller.String()),
			zap.Uint64("amount", amount),
			zap.Error(err),
		)
		// The store already holds the zeroed balance; put the restored one back.
		// A context already canceled must not stop the compensating write.
		if perr := e.persist(context.WithoutCancel(ctx), method, dirty); perr != nil {
			e.log.Error("compensating write failed, store lags memory",
				zap.String("caller", caller.String()),
				zap.Error(perr),
			)
		}
		lerr := domain.NewError(method, domain.ErrTransferFailed, caller).WithCause(err)
		e.finish(method, start, lerr)
		return 0, lerr
	}

	observability.RecordWithdrawal(amount)
	e.commit(j)
	e.finish(method, start, nil)
	return amount, nil
}

// mutate runs fn as one unit of work under the write lock.
func (e *Engine) mutate(ctx context.Context, method string, fn func(*journal.Journal) error) error {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	j := journal.New()
	if err := fn(j); err != nil {
		j.Rollback()
		e.finish(method, start, err)
		return err
	}
	if err := e.persist(ctx, method, j.Dirty()); err != nil {
		j.Rollback()
		e.finish(method, start, err)
		return err
	}

	e.commit(j)
	e.finish(method, start, nil)
	return nil
}

// persist writes the current value of every dirty key to the store.
func (e *Engine) persist(ctx context.Context, method string, d journal.Dirty) error {
	if e.store == nil {
		return nil
	}
	cs := e.changeSet(d)
	if cs.Empty() {
		return nil
	}

	start := time.Now()
	err := e.store.Apply(ctx, cs)
	observability.RecordDBQuery("ledger", method, time.Since(start).Seconds(), err)
	if err != nil {
		e.log.Error("persist failed, operation rolled back", zap.String("method", method), zap.Error(err))
		return fmt.Errorf("%s: %w: %w", method, ErrStorage, err)
	}
	return nil
}

func (e *Engine) changeSet(d journal.Dirty) *domain.ChangeSet {
	cs := &domain.ChangeSet{}
	for _, id := range d.Records {
		if rec, ok := e.reg.StoredRecord(id); ok {
			cs.Records = append(cs.Records, rec)
		}
	}
	for _, k := range d.Balances {
		cs.Balances = append(cs.Balances, domain.BalanceEntry{
			RecordID: k.RecordID,
			Holder:   k.Holder,
			Amount:   e.reg.BalanceOf(k.Holder, k.RecordID),
		})
	}
	for _, k := range d.Approvals {
		cs.Approvals = append(cs.Approvals, domain.ApprovalEntry{
			Holder:   k.Holder,
			Operator: k.Operator,
			Approved: e.reg.IsApprovedForAll(k.Holder, k.Operator),
		})
	}
	for _, k := range d.Listings {
		cs.Listings = append(cs.Listings, e.mkt.GetListing(k.Seller, k.RecordID))
	}
	for _, seller := range d.Proceeds {
		cs.Proceeds = append(cs.Proceeds, domain.ProceedsEntry{Seller: seller, Amount: e.mkt.GetProceeds(seller)})
	}
	if d.Meta {
		cs.Meta = &domain.LedgerMeta{NextRecordID: e.reg.NextID(), Treasury: e.mkt.Treasury()}
	}
	return cs
}

// commit numbers and publishes the journal's events. Publishing happens under
// the write lock so subscribers see events in sequence order.
func (e *Engine) commit(j *journal.Journal) {
	for _, ev := range j.Events() {
		e.seq++
		ev.Seq = e.seq
		ev.ID = idhash.ComputeEventID(ev)
		if e.publisher != nil {
			e.publisher.Publish(ev)
		}
	}
	e.updateGauges()
}

func (e *Engine) finish(method string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "internal"
		if kind := domain.KindOf(err); kind != nil {
			outcome = kind.Error()
		}
	}
	observability.RecordOp(method, outcome, time.Since(start).Seconds())

	switch {
	case err == nil:
		e.log.Debug("operation committed", zap.String("method", method))
	case errors.Is(err, ErrStorage) || domain.ClassOf(err) == domain.ClassInternal:
		// already logged where it happened
	default:
		e.log.Info("operation rejected", zap.String("method", method), zap.Error(err))
	}
}

func (e *Engine) updateGauges() {
	observability.UpdateMarketGauges(e.mkt.Treasury(), e.mkt.ListingCount())
}
