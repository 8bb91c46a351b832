// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/avamon/internal/model"
)

// Changeset is everything one ledger mutation writes. It is committed all-or-nothing.
type Changeset struct {
	Accounts []model.Account
	Cards    []model.Card              // newly minted or re-owned cards
	Requests []model.RandomnessRequest // pending ones are inserted, fulfilled ones resolve a pending row
	Events   []model.Event

	// Treasury deltas in wei; nil means unchanged.
	Collected *big.Int
	Withdrawn *big.Int
}

// Empty reports whether the changeset writes nothing.
func (c Changeset) Empty() bool {
	return len(c.Accounts) == 0 && len(c.Cards) == 0 && len(c.Requests) == 0 &&
		len(c.Events) == 0 && c.Collected == nil && c.Withdrawn == nil
}

// LedgerState is the persisted ledger loaded on start-up.
type LedgerState struct {
	Accounts   []model.Account
	Cards      []model.Card
	Pending    []model.RandomnessRequest
	Treasury   model.Treasury
	MaxTokenID uint64
}

// LedgerStore persists player ledger state.
type LedgerStore interface {
	// Load returns all accounts, cards, pending requests and the treasury.
	Load(ctx context.Context) (LedgerState, error)
	// Commit atomically applies a changeset. Resolving an already fulfilled request
	// fails with errs.ErrAlreadyResolved and writes nothing.
	Commit(ctx context.Context, cs Changeset) error
	// GetRequest loads a randomness request by id.
	GetRequest(ctx context.Context, id uuid.UUID) (*model.RandomnessRequest, error)
}

// Catalog is the full card/pack/adventure/quest catalog.
type Catalog struct {
	Templates  []model.CardTemplate
	PackTypes  []model.PackType
	Adventures []model.Adventure
	Quests     []model.Quest
}

// Empty reports whether nothing has been published yet.
func (c Catalog) Empty() bool {
	return len(c.Templates) == 0 && len(c.PackTypes) == 0 && len(c.Adventures) == 0 && len(c.Quests) == 0
}

// CatalogStore persists catalog definitions. Save* methods upsert by id.
type CatalogStore interface {
	LoadCatalog(ctx context.Context) (Catalog, error)
	SaveTemplate(ctx context.Context, t model.CardTemplate) error
	SavePackType(ctx context.Context, p model.PackType) error
	SaveAdventure(ctx context.Context, a model.Adventure) error
	SaveQuest(ctx context.Context, q model.Quest) error
	// SaveCatalog upserts every entry of c atomically: all of it or none.
	SaveCatalog(ctx context.Context, c Catalog) error
}

// EventReader lists emitted game events.
type EventReader interface {
	// ListEvents returns the player's most recent events, newest first.
	ListEvents(ctx context.Context, player common.Address, limit int) ([]model.Event, error)
}
