// Package memory provides an in-process implementation of the repository interfaces,
// used when the server runs without a database and in tests.
package memory

import (
	"context"
	"math/big"
	"slices"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
)

var (
	_ repository.LedgerStore  = (*Store)(nil)
	_ repository.CatalogStore = (*Store)(nil)
	_ repository.EventReader  = (*Store)(nil)
)

// Store keeps everything in maps guarded by one mutex.
type Store struct {
	mu       sync.Mutex
	accounts map[common.Address]model.Account
	cards    map[uint64]model.Card
	requests map[uuid.UUID]model.RandomnessRequest
	events   []model.Event
	treasury model.Treasury
	catalog  repository.Catalog

	// FailCommit, when set, is returned by the next Commit calls.
	FailCommit error
	// FailCatalog, when set, is returned by SaveCatalog and nothing is stored.
	FailCatalog error
}

// New returns an empty store.
func New() *Store {
	return &Store{
		accounts: map[common.Address]model.Account{},
		cards:    map[uint64]model.Card{},
		requests: map[uuid.UUID]model.RandomnessRequest{},
		treasury: model.Treasury{Collected: new(big.Int), Withdrawn: new(big.Int)},
	}
}

// Load returns a copy of the persisted ledger.
func (s *Store) Load(context.Context) (repository.LedgerState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var st repository.LedgerState
	for _, a := range s.accounts {
		st.Accounts = append(st.Accounts, *a.Clone())
	}
	for id, c := range s.cards {
		st.Cards = append(st.Cards, c)
		st.MaxTokenID = max(st.MaxTokenID, id)
	}
	for _, r := range s.requests {
		if r.Status == model.StatusPending {
			st.Pending = append(st.Pending, r)
		}
	}
	st.Treasury = model.Treasury{
		Collected: new(big.Int).Set(s.treasury.Collected),
		Withdrawn: new(big.Int).Set(s.treasury.Withdrawn),
	}
	return st, nil
}

// Commit applies cs atomically.
func (s *Store) Commit(_ context.Context, cs repository.Changeset) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.FailCommit != nil {
		return s.FailCommit
	}
	for _, r := range cs.Requests {
		if r.Status != model.StatusFulfilled {
			continue
		}
		if cur, ok := s.requests[r.ID]; !ok || cur.Status != model.StatusPending {
			return errs.ErrAlreadyResolved
		}
	}

	for _, a := range cs.Accounts {
		s.accounts[a.Address] = *a.Clone()
	}
	for _, c := range cs.Cards {
		s.cards[c.TokenID] = c
	}
	for _, r := range cs.Requests {
		r.CardIDs = slices.Clone(r.CardIDs)
		s.requests[r.ID] = r
	}
	s.events = append(s.events, cs.Events...)
	if cs.Collected != nil {
		s.treasury.Collected.Add(s.treasury.Collected, cs.Collected)
	}
	if cs.Withdrawn != nil {
		s.treasury.Withdrawn.Add(s.treasury.Withdrawn, cs.Withdrawn)
	}
	return nil
}

// GetRequest returns a request by id.
func (s *Store) GetRequest(_ context.Context, id uuid.UUID) (*model.RandomnessRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.requests[id]
	if !ok {
		return nil, errs.ErrNotFound
	}
	r.CardIDs = slices.Clone(r.CardIDs)
	return &r, nil
}

// ListEvents returns the player's newest events first.
func (s *Store) ListEvents(_ context.Context, player common.Address, limit int) ([]model.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.Event
	for i := len(s.events) - 1; i >= 0 && (limit <= 0 || len(out) < limit); i-- {
		if s.events[i].Player == player {
			out = append(out, s.events[i])
		}
	}
	return out, nil
}

// LoadCatalog returns the stored catalog.
func (s *Store) LoadCatalog(context.Context) (repository.Catalog, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return repository.Catalog{
		Templates:  slices.Clone(s.catalog.Templates),
		PackTypes:  slices.Clone(s.catalog.PackTypes),
		Adventures: slices.Clone(s.catalog.Adventures),
		Quests:     slices.Clone(s.catalog.Quests),
	}, nil
}

func upsert[T any](list []T, v T, id func(T) uint32) []T {
	for i := range list {
		if id(list[i]) == id(v) {
			list[i] = v
			return list
		}
	}
	return append(list, v)
}

// SaveTemplate upserts a template.
func (s *Store) SaveTemplate(_ context.Context, t model.CardTemplate) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.Templates = upsert(s.catalog.Templates, t, func(x model.CardTemplate) uint32 { return x.ID })
	return nil
}

// SavePackType upserts a pack type.
func (s *Store) SavePackType(_ context.Context, p model.PackType) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.PackTypes = upsert(s.catalog.PackTypes, p, func(x model.PackType) uint32 { return x.ID })
	return nil
}

// SaveAdventure upserts an adventure.
func (s *Store) SaveAdventure(_ context.Context, a model.Adventure) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.Adventures = upsert(s.catalog.Adventures, a, func(x model.Adventure) uint32 { return x.ID })
	return nil
}

// SaveQuest upserts a quest.
func (s *Store) SaveQuest(_ context.Context, q model.Quest) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.catalog.Quests = upsert(s.catalog.Quests, q, func(x model.Quest) uint32 { return x.ID })
	return nil
}

// SaveCatalog upserts every entry of c or, on failure, none of them.
func (s *Store) SaveCatalog(_ context.Context, c repository.Catalog) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.FailCatalog != nil {
		return s.FailCatalog
	}
	next := repository.Catalog{
		Templates:  slices.Clone(s.catalog.Templates),
		PackTypes:  slices.Clone(s.catalog.PackTypes),
		Adventures: slices.Clone(s.catalog.Adventures),
		Quests:     slices.Clone(s.catalog.Quests),
	}
	for _, t := range c.Templates {
		next.Templates = upsert(next.Templates, t, func(x model.CardTemplate) uint32 { return x.ID })
	}
	for _, p := range c.PackTypes {
		next.PackTypes = upsert(next.PackTypes, p, func(x model.PackType) uint32 { return x.ID })
	}
	for _, a := range c.Adventures {
		next.Adventures = upsert(next.Adventures, a, func(x model.Adventure) uint32 { return x.ID })
	}
	for _, q := range c.Quests {
		next.Quests = upsert(next.Quests, q, func(x model.Quest) uint32 { return x.ID })
	}
	s.catalog = next
	return nil
}

// Events returns all stored events, oldest first.
func (s *Store) Events() []model.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.events)
}
