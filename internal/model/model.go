// Package model defines domain entities used by the ledger, engines, services and repositories.
package model

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Game constants.
const (
	PackSize            = 5  // cards minted per opened pack
	DeckSize            = 4  // cards per saved deck
	DailyEnergy         = 10 // energy baseline after a daily reset
	BaseDeckSlots       = 2
	MaxDeckSlots        = 3
	MaxWeeklyQuestSlots = 3
)

// Native payment prices in wei.
var (
	EnergyUnitCost      = big.NewInt(1e16) // 0.01 AVAX
	DeckSlotUpgradeCost = big.NewInt(1e17) // 0.1 AVAX
	WeeklyQuestSlotCost = big.NewInt(5e16) // 0.05 AVAX
)

// Rarity is a card rarity tier.
type Rarity uint8

const (
	Common Rarity = iota
	Rare
	Mythic
)

var rarityNames = [...]string{"common", "rare", "mythic"}

func (r Rarity) String() string {
	if int(r) < len(rarityNames) {
		return rarityNames[r]
	}
	return fmt.Sprintf("rarity(%d)", r)
}

// Valid reports whether r is a known tier.
func (r Rarity) Valid() bool { return r <= Mythic }

// MarshalText implements encoding.TextMarshaler.
func (r Rarity) MarshalText() ([]byte, error) {
	if !r.Valid() {
		return nil, fmt.Errorf("unknown rarity %d", r)
	}
	return []byte(r.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Rarity) UnmarshalText(b []byte) error {
	s := strings.ToLower(strings.TrimSpace(string(b)))
	for i, n := range rarityNames {
		if n == s {
			*r = Rarity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown rarity %q", s)
}

// CardTemplate is a card archetype. Stats are copied into every minted card.
type CardTemplate struct {
	ID      uint32 `json:"id" toml:"id"`
	Name    string `json:"name" toml:"name"`
	Rarity  Rarity `json:"rarity" toml:"rarity"`
	Attack  uint32 `json:"attack" toml:"attack"`
	Defense uint32 `json:"defense" toml:"defense"`
	Agility uint32 `json:"agility" toml:"agility"`
	HP      uint32 `json:"hp" toml:"hp"`
	Active  bool   `json:"active" toml:"active"`
}

// Card is a minted card instance. Only Owner ever changes.
type Card struct {
	TokenID    uint64         `json:"token_id"`
	TemplateID uint32         `json:"template_id"`
	Owner      common.Address `json:"owner"`
	Rarity     Rarity         `json:"rarity"`
	Attack     uint32         `json:"attack"`
	Defense    uint32         `json:"defense"`
	Agility    uint32         `json:"agility"`
	HP         uint32         `json:"hp"`
	MintedAt   time.Time      `json:"minted_at"`
}

// PackType defines a purchasable pack with rarity odds [common, rare, mythic] in percent.
type PackType struct {
	ID      uint32   `json:"id" toml:"id"`
	Name    string   `json:"name" toml:"name"`
	Price   uint64   `json:"price" toml:"price"`
	Chances [3]uint8 `json:"chances" toml:"chances"`
	Active  bool     `json:"active" toml:"active"`
}

// Adventure is a timed stake-and-reward activity.
type Adventure struct {
	ID             uint32        `json:"id" toml:"id"`
	Name           string        `json:"name" toml:"name"`
	Description    string        `json:"description" toml:"description"`
	EntryFee       uint64        `json:"entry_fee" toml:"entry_fee"`
	MinReward      uint64        `json:"min_reward" toml:"min_reward"`
	MaxReward      uint64        `json:"max_reward" toml:"max_reward"`
	Duration       time.Duration `json:"duration" toml:"duration"`
	PackDropChance uint8         `json:"pack_drop_chance" toml:"pack_drop_chance"`
	RewardPackType uint32        `json:"reward_pack_type" toml:"reward_pack_type"`
	Active         bool          `json:"active" toml:"active"`
}

// QuestType selects which trigger advances a quest.
type QuestType string

const (
	QuestDailyCheckin QuestType = "daily_checkin"
	QuestWinBattles   QuestType = "win_battles"
	QuestOpenPacks    QuestType = "open_packs"
	QuestCustom       QuestType = "custom"
)

// Valid reports whether t is a known quest type.
func (t QuestType) Valid() bool {
	switch t {
	case QuestDailyCheckin, QuestWinBattles, QuestOpenPacks, QuestCustom:
		return true
	default:
		return false
	}
}

// Quest is a time-windowed objective.
type Quest struct {
	ID             uint32    `json:"id" toml:"id"`
	Type           QuestType `json:"type" toml:"type"`
	Title          string    `json:"title" toml:"title"`
	Description    string    `json:"description" toml:"description"`
	RewardAmount   uint64    `json:"reward_amount" toml:"reward_amount"`
	IsPackReward   bool      `json:"is_pack_reward" toml:"is_pack_reward"`
	RewardPackType uint32    `json:"reward_pack_type" toml:"reward_pack_type"`
	Target         uint32    `json:"target" toml:"target"`
	WindowDays     uint32    `json:"window_days" toml:"window_days"` // 0 = never resets
	Active         bool      `json:"active" toml:"active"`
}

// Weekly reports whether the quest counts against weekly quest slots.
func (q Quest) Weekly() bool { return q.WindowDays >= 7 }

// Principal is the authenticated caller of an operation.
type Principal struct {
	Address common.Address
	Admin   bool
}

// Tokens collects issued access tokens.
type Tokens struct {
	AccessToken string
	ExpiresAt   time.Time
}

// Challenge is a login message the wallet must sign.
type Challenge struct {
	Message   string
	Token     string // signed challenge, returned on login
	ExpiresAt time.Time
}

// Treasury accumulates native payments (wei).
type Treasury struct {
	Collected *big.Int `json:"collected"`
	Withdrawn *big.Int `json:"withdrawn"`
}

// Available returns the withdrawable balance.
func (t Treasury) Available() *big.Int {
	c, w := t.Collected, t.Withdrawn
	if c == nil {
		c = new(big.Int)
	}
	if w == nil {
		w = new(big.Int)
	}
	return new(big.Int).Sub(c, w)
}
