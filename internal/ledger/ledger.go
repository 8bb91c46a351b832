// Package ledger holds per-player state: balances, energy, decks, cards and packs.
//
// Every mutation of an account runs under that player's exclusive lock on a cloned copy.
// The resulting changeset is committed to the store first and swapped into memory only
// after the commit succeeds, so a failed precondition or a failed commit leaves state
// unchanged and observers never see a half-applied mutation.
package ledger

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
	"github.com/and161185/avamon/internal/schedule"
)

// Ledger is the authoritative in-memory player state backed by a LedgerStore.
type Ledger struct {
	store  repository.LedgerStore
	clock  schedule.Clock
	anchor schedule.Anchor
	log    *zap.Logger

	mu       sync.RWMutex
	accounts map[common.Address]*model.Account
	cards    map[uint64]*model.Card
	requests map[uuid.UUID]*model.RandomnessRequest
	treasury model.Treasury

	locksMu sync.Mutex
	locks   map[common.Address]*playerLock

	withdrawMu sync.Mutex
	nextToken  atomic.Uint64
}

// New constructs an empty ledger. Call Load to hydrate it from the store.
func New(store repository.LedgerStore, clock schedule.Clock, anchor schedule.Anchor, log *zap.Logger) *Ledger {
	return &Ledger{
		store:    store,
		clock:    clock,
		anchor:   anchor,
		log:      log,
		accounts: map[common.Address]*model.Account{},
		cards:    map[uint64]*model.Card{},
		requests: map[uuid.UUID]*model.RandomnessRequest{},
		treasury: model.Treasury{Collected: new(big.Int), Withdrawn: new(big.Int)},
		locks:    map[common.Address]*playerLock{},
	}
}

// Load replaces in-memory state with the persisted ledger.
func (l *Ledger) Load(ctx context.Context) error {
	st, err := l.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load ledger: %w", err)
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	for i := range st.Accounts {
		a := st.Accounts[i].Clone()
		l.accounts[a.Address] = a
	}
	for i := range st.Cards {
		c := st.Cards[i]
		l.cards[c.TokenID] = &c
	}
	for i := range st.Pending {
		r := st.Pending[i]
		l.requests[r.ID] = &r
	}
	if st.Treasury.Collected != nil {
		l.treasury = st.Treasury
	}
	l.nextToken.Store(st.MaxTokenID)
	l.log.Info("ledger loaded",
		zap.Int("accounts", len(st.Accounts)),
		zap.Int("cards", len(st.Cards)),
		zap.Int("pending", len(st.Pending)),
	)
	return nil
}

// Now returns the ledger clock time.
func (l *Ledger) Now() time.Time { return l.clock.Now() }

// Anchor returns the daily reset anchor.
func (l *Ledger) Anchor() schedule.Anchor { return l.anchor }

// playerLock is dropped from the lock table once no caller holds or waits on it.
type playerLock struct {
	sync.Mutex
	refs int
}

func (l *Ledger) lockPlayer(addr common.Address) func() {
	l.locksMu.Lock()
	m, ok := l.locks[addr]
	if !ok {
		m = &playerLock{}
		l.locks[addr] = m
	}
	m.refs++
	l.locksMu.Unlock()

	m.Lock()
	return func() {
		m.Unlock()
		l.locksMu.Lock()
		if m.refs--; m.refs == 0 {
			delete(l.locks, addr)
		}
		l.locksMu.Unlock()
	}
}

// current returns the stored account or a fresh one. Callers must hold the player lock
// or treat the result as read-only.
func (l *Ledger) current(addr common.Address, now time.Time) *model.Account {
	l.mu.RLock()
	a, ok := l.accounts[addr]
	l.mu.RUnlock()
	if ok {
		return a
	}
	return model.NewAccount(addr, l.anchor.Boundary(now))
}

// Update runs fn against a staged copy of the player's account under the player's lock.
func (l *Ledger) Update(ctx context.Context, addr common.Address, fn func(tx *Tx) error) error {
	return l.update(ctx, []common.Address{addr}, func(txs []*Tx) error { return fn(txs[0]) })
}

// UpdatePair runs fn against two distinct players, locking them in address order.
func (l *Ledger) UpdatePair(ctx context.Context, a, b common.Address, fn func(ta, tb *Tx) error) error {
	if a == b {
		return fmt.Errorf("%w: same player on both sides", errs.ErrInvalidInput)
	}
	return l.update(ctx, []common.Address{a, b}, func(txs []*Tx) error { return fn(txs[0], txs[1]) })
}

func (l *Ledger) update(ctx context.Context, addrs []common.Address, fn func(txs []*Tx) error) error {
	order := slices.Clone(addrs)
	slices.SortFunc(order, func(x, y common.Address) int { return bytes.Compare(x[:], y[:]) })
	for _, a := range order {
		defer l.lockPlayer(a)()
	}

	now := l.clock.Now()
	txs := make([]*Tx, len(addrs))
	for i, a := range addrs {
		txs[i] = &Tx{l: l, now: now, acct: l.current(a, now).Clone()}
	}
	if err := fn(txs); err != nil {
		return err
	}

	var cs repository.Changeset
	for _, tx := range txs {
		tx.collect(&cs)
	}
	if cs.Empty() {
		return nil
	}
	if err := l.store.Commit(ctx, cs); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.apply(cs)
	return nil
}

func (l *Ledger) apply(cs repository.Changeset) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for i := range cs.Accounts {
		a := cs.Accounts[i]
		l.accounts[a.Address] = &a
	}
	for i := range cs.Cards {
		c := cs.Cards[i]
		l.cards[c.TokenID] = &c
	}
	for i := range cs.Requests {
		r := cs.Requests[i]
		if r.Status == model.StatusFulfilled {
			// Fulfilled requests stay readable through the store.
			delete(l.requests, r.ID)
			continue
		}
		l.requests[r.ID] = &r
	}
	if cs.Collected != nil {
		l.treasury.Collected = new(big.Int).Add(l.treasury.Collected, cs.Collected)
	}
	if cs.Withdrawn != nil {
		l.treasury.Withdrawn = new(big.Int).Add(l.treasury.Withdrawn, cs.Withdrawn)
	}
}

// Account returns a read-only view of the player's account with energy recomputed for now.
func (l *Ledger) Account(addr common.Address) *model.Account {
	now := l.clock.Now()
	a := l.current(addr, now).Clone()
	refreshEnergy(a, l.anchor, now)
	return a
}

// Known reports whether the player has any persisted state.
func (l *Ledger) Known(addr common.Address) bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.accounts[addr]
	return ok
}

// CurrentEnergy returns the player's energy after applying any due daily reset.
func (l *Ledger) CurrentEnergy(addr common.Address) uint32 {
	return l.Account(addr).Energy
}

// Card returns a card by token id.
func (l *Ledger) Card(tokenID uint64) (model.Card, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	c, ok := l.cards[tokenID]
	if !ok {
		return model.Card{}, errs.ErrNotFound
	}
	return *c, nil
}

// Cards returns the player's cards using the owner index.
func (l *Ledger) Cards(addr common.Address) []model.Card {
	l.mu.RLock()
	defer l.mu.RUnlock()
	a, ok := l.accounts[addr]
	if !ok {
		return nil
	}
	out := make([]model.Card, 0, len(a.Cards))
	for _, id := range a.Cards {
		if c, ok := l.cards[id]; ok {
			out = append(out, *c)
		}
	}
	return out
}

// Request returns a randomness request, falling back to the store for ids not held in memory.
func (l *Ledger) Request(ctx context.Context, id uuid.UUID) (model.RandomnessRequest, error) {
	l.mu.RLock()
	r, ok := l.requests[id]
	l.mu.RUnlock()
	if ok {
		cp := *r
		cp.CardIDs = slices.Clone(r.CardIDs)
		return cp, nil
	}
	sr, err := l.store.GetRequest(ctx, id)
	if err != nil {
		return model.RandomnessRequest{}, err
	}
	return *sr, nil
}

// Pending returns all pending randomness requests older than cutoff (zero cutoff: all).
func (l *Ledger) Pending(cutoff time.Time) []model.RandomnessRequest {
	l.mu.RLock()
	defer l.mu.RUnlock()
	var out []model.RandomnessRequest
	for _, r := range l.requests {
		if r.Status != model.StatusPending {
			continue
		}
		if !cutoff.IsZero() && r.RequestedAt.After(cutoff) {
			continue
		}
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b model.RandomnessRequest) int { return a.RequestedAt.Compare(b.RequestedAt) })
	return out
}

// Treasury returns a copy of the treasury totals.
func (l *Ledger) Treasury() model.Treasury {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return model.Treasury{
		Collected: new(big.Int).Set(l.treasury.Collected),
		Withdrawn: new(big.Int).Set(l.treasury.Withdrawn),
	}
}

// Withdraw moves amount wei out of the treasury on behalf of admin.
func (l *Ledger) Withdraw(ctx context.Context, admin common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdraw amount must be positive", errs.ErrInvalidInput)
	}
	l.withdrawMu.Lock()
	defer l.withdrawMu.Unlock()

	if l.Treasury().Available().Cmp(amount) < 0 {
		return errs.ErrInsufficientBalance
	}
	now := l.clock.Now()
	cs := repository.Changeset{
		Withdrawn: new(big.Int).Set(amount),
		Events: []model.Event{newEvent(model.EventTreasuryWithdrawn, admin, now, map[string]any{
			"amount_wei": amount.String(),
		})},
	}
	if err := l.store.Commit(ctx, cs); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	l.apply(cs)
	return nil
}

func newEvent(kind model.EventKind, player common.Address, at time.Time, data map[string]any) model.Event {
	return model.Event{ID: uuid.Must(uuid.NewV4()), Kind: kind, Player: player, Data: data, At: at}
}
