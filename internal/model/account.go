package model

import (
	"maps"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
)

// Deck is a saved deck. An empty slot has no CardIDs.
type Deck struct {
	Name    string   `json:"name"`
	CardIDs []uint64 `json:"card_ids"`
}

// Empty reports whether the slot holds no deck.
func (d Deck) Empty() bool { return len(d.CardIDs) == 0 }

// AdventureSession is a player's run of one adventure.
type AdventureSession struct {
	AdventureID uint32    `json:"adventure_id"`
	StartedAt   time.Time `json:"started_at"`
	CardIDs     []uint64  `json:"card_ids"`
	RequestID   uuid.UUID `json:"request_id"`
	Randomness  *[32]byte `json:"randomness,omitempty"`
	Claimed     bool      `json:"claimed"`
	Reward      uint64    `json:"reward,omitempty"`
	PackDropped bool      `json:"pack_dropped,omitempty"`
}

// QuestProgress is a player's progress on one quest within the current window.
type QuestProgress struct {
	QuestID     uint32    `json:"quest_id"`
	Progress    uint32    `json:"progress"`
	Completed   bool      `json:"completed"`
	Claimed     bool      `json:"claimed"`
	WindowStart time.Time `json:"window_start"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Account is the per-player ledger state. Cards and Packs are the owner reverse indexes.
type Account struct {
	Address          common.Address               `json:"address"`
	Tokens           uint64                       `json:"tokens"`
	Energy           uint32                       `json:"energy"`
	LastEnergyReset  time.Time                    `json:"last_energy_reset"`
	MaxDeckSlots     int                          `json:"max_deck_slots"`
	Decks            []Deck                       `json:"decks"`
	Cards            []uint64                     `json:"cards"` // sorted
	Packs            map[uint32]uint32            `json:"packs"`
	Sessions         map[uint32]*AdventureSession `json:"sessions"`
	Quests           map[uint32]*QuestProgress    `json:"quests"`
	WeeklyQuestSlots uint32                       `json:"weekly_quest_slots"`
	UpdatedAt        time.Time                    `json:"updated_at"`
}

// NewAccount returns a fresh account with the daily energy baseline.
func NewAccount(addr common.Address, resetAt time.Time) *Account {
	return &Account{
		Address:         addr,
		Energy:          DailyEnergy,
		LastEnergyReset: resetAt,
		MaxDeckSlots:    BaseDeckSlots,
		Decks:           make([]Deck, BaseDeckSlots),
		Packs:           map[uint32]uint32{},
		Sessions:        map[uint32]*AdventureSession{},
		Quests:          map[uint32]*QuestProgress{},
	}
}

// Clone returns a deep copy.
func (a *Account) Clone() *Account {
	c := *a
	c.Decks = make([]Deck, len(a.Decks))
	for i, d := range a.Decks {
		c.Decks[i] = Deck{Name: d.Name, CardIDs: slices.Clone(d.CardIDs)}
	}
	c.Cards = slices.Clone(a.Cards)
	c.Packs = maps.Clone(a.Packs)
	if c.Packs == nil {
		c.Packs = map[uint32]uint32{}
	}
	c.Sessions = make(map[uint32]*AdventureSession, len(a.Sessions))
	for k, s := range a.Sessions {
		cp := *s
		cp.CardIDs = slices.Clone(s.CardIDs)
		if s.Randomness != nil {
			w := *s.Randomness
			cp.Randomness = &w
		}
		c.Sessions[k] = &cp
	}
	c.Quests = make(map[uint32]*QuestProgress, len(a.Quests))
	for k, q := range a.Quests {
		cp := *q
		c.Quests[k] = &cp
	}
	return &c
}

// Owns reports whether the account owns the card.
func (a *Account) Owns(tokenID uint64) bool {
	_, ok := slices.BinarySearch(a.Cards, tokenID)
	return ok
}

// AddCard inserts a token id into the owner index.
func (a *Account) AddCard(tokenID uint64) {
	i, ok := slices.BinarySearch(a.Cards, tokenID)
	if !ok {
		a.Cards = slices.Insert(a.Cards, i, tokenID)
	}
}

// RemoveCard drops a token id from the owner index and from any saved deck.
func (a *Account) RemoveCard(tokenID uint64) {
	if i, ok := slices.BinarySearch(a.Cards, tokenID); ok {
		a.Cards = slices.Delete(a.Cards, i, i+1)
	}
	for i := range a.Decks {
		if slices.Contains(a.Decks[i].CardIDs, tokenID) {
			a.Decks[i] = Deck{}
		}
	}
}

// LockedCards returns the set of cards committed to unclaimed adventure sessions.
func (a *Account) LockedCards() map[uint64]uint32 {
	out := map[uint64]uint32{}
	for _, s := range a.Sessions {
		if s.Claimed {
			continue
		}
		for _, id := range s.CardIDs {
			out[id] = s.AdventureID
		}
	}
	return out
}
