package api

import "time"

// Wei amounts travel as decimal strings; addresses as 0x-prefixed hex; ids as UUID strings.

type Empty struct{}

// --- auth ---

type ChallengeRequest struct {
	Address string `json:"address"`
}

type ChallengeResponse struct {
	Message   string    `json:"message"`
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expires_at"`
}

type LoginRequest struct {
	Address   string `json:"address"`
	Challenge string `json:"challenge"`
	Signature string `json:"signature"` // 0x-prefixed 65-byte hex
}

type LoginResponse struct {
	AccessToken string    `json:"access_token"`
	ExpiresAt   time.Time `json:"expires_at"`
	Address     string    `json:"address"`
	Admin       bool      `json:"admin"`
}

// --- catalog ---

type CardTemplate struct {
	ID      uint32 `json:"id"`
	Name    string `json:"name"`
	Rarity  string `json:"rarity"`
	Attack  uint32 `json:"attack"`
	Defense uint32 `json:"defense"`
	Agility uint32 `json:"agility"`
	HP      uint32 `json:"hp"`
	Active  bool   `json:"active"`
}

type PackType struct {
	ID      uint32   `json:"id"`
	Name    string   `json:"name"`
	Price   uint64   `json:"price"`
	Chances [3]uint8 `json:"chances"`
	Active  bool     `json:"active"`
}

type Adventure struct {
	ID              uint32 `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	EntryFee        uint64 `json:"entry_fee"`
	MinReward       uint64 `json:"min_reward"`
	MaxReward       uint64 `json:"max_reward"`
	DurationSeconds int64  `json:"duration_seconds"`
	PackDropChance  uint8  `json:"pack_drop_chance"`
	RewardPackType  uint32 `json:"reward_pack_type,omitempty"`
	Active          bool   `json:"active"`
}

type Quest struct {
	ID             uint32 `json:"id"`
	Type           string `json:"type"`
	Title          string `json:"title"`
	Description    string `json:"description,omitempty"`
	RewardAmount   uint64 `json:"reward_amount,omitempty"`
	IsPackReward   bool   `json:"is_pack_reward,omitempty"`
	RewardPackType uint32 `json:"reward_pack_type,omitempty"`
	Target         uint32 `json:"target"`
	WindowDays     uint32 `json:"window_days"`
	Active         bool   `json:"active"`
}

type Catalog struct {
	Templates  []CardTemplate `json:"templates"`
	PackTypes  []PackType     `json:"pack_types"`
	Adventures []Adventure    `json:"adventures"`
	Quests     []Quest        `json:"quests"`
}

// --- player state ---

type Card struct {
	TokenID    uint64    `json:"token_id"`
	TemplateID uint32    `json:"template_id"`
	Owner      string    `json:"owner"`
	Rarity     string    `json:"rarity"`
	Attack     uint32    `json:"attack"`
	Defense    uint32    `json:"defense"`
	Agility    uint32    `json:"agility"`
	HP         uint32    `json:"hp"`
	MintedAt   time.Time `json:"minted_at"`
	Locked     bool      `json:"locked,omitempty"`
}

type Deck struct {
	Slot    int      `json:"slot"`
	Name    string   `json:"name"`
	CardIDs []uint64 `json:"card_ids"`
}

type PackBalance struct {
	PackTypeID uint32 `json:"pack_type_id"`
	Count      uint32 `json:"count"`
}

type Session struct {
	AdventureID uint32    `json:"adventure_id"`
	StartedAt   time.Time `json:"started_at"`
	ReadyAt     time.Time `json:"ready_at,omitzero"`
	CardIDs     []uint64  `json:"card_ids"`
	RequestID   string    `json:"request_id"`
	Resolved    bool      `json:"resolved"`
	Claimed     bool      `json:"claimed"`
	Reward      uint64    `json:"reward,omitempty"`
	PackDropped bool      `json:"pack_dropped,omitempty"`
}

type QuestProgress struct {
	QuestID     uint32    `json:"quest_id"`
	Title       string    `json:"title,omitempty"`
	Progress    uint32    `json:"progress"`
	Target      uint32    `json:"target,omitempty"`
	Completed   bool      `json:"completed"`
	Claimed     bool      `json:"claimed"`
	WindowStart time.Time `json:"window_start,omitzero"`
	ResetsAt    time.Time `json:"resets_at,omitzero"`
}

type Stats struct {
	Address          string          `json:"address"`
	Tokens           uint64          `json:"tokens"`
	Energy           uint32          `json:"energy"`
	NextEnergyReset  time.Time       `json:"next_energy_reset"`
	MaxDeckSlots     int             `json:"max_deck_slots"`
	Decks            []Deck          `json:"decks"`
	Cards            []Card          `json:"cards"`
	Packs            []PackBalance   `json:"packs"`
	Sessions         []Session       `json:"sessions"`
	Quests           []QuestProgress `json:"quests"`
	WeeklyQuestSlots uint32          `json:"weekly_quest_slots"`
	Paused           bool            `json:"paused,omitempty"`
}

type Event struct {
	ID     string         `json:"id"`
	Kind   string         `json:"kind"`
	Player string         `json:"player"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

type ListEventsRequest struct {
	Limit int `json:"limit,omitempty"`
}

type ListEventsResponse struct {
	Events []Event `json:"events"`
}

type RandomnessRequest struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      string     `json:"status"`
	Emergency   bool       `json:"emergency,omitempty"`
	PackTypeID  uint32     `json:"pack_type_id,omitempty"`
	AdventureID uint32     `json:"adventure_id,omitempty"`
	CardIDs     []uint64   `json:"card_ids,omitempty"`
	RequestedAt time.Time  `json:"requested_at"`
	FulfilledAt *time.Time `json:"fulfilled_at,omitempty"`
}

// --- player operations ---

type RequestRef struct {
	RequestID string `json:"request_id"`
}

type PurchasePackRequest struct {
	PackTypeID uint32 `json:"pack_type_id"`
	Amount     uint32 `json:"amount"`
}

type OpenPackRequest struct {
	PackTypeID uint32 `json:"pack_type_id"`
}

type SaveDeckRequest struct {
	Slot    int      `json:"slot"`
	Name    string   `json:"name"`
	CardIDs []uint64 `json:"card_ids"`
}

type PaymentRequest struct {
	PaymentWei string `json:"payment_wei"`
}

type PurchaseEnergyRequest struct {
	Amount     uint32 `json:"amount"`
	PaymentWei string `json:"payment_wei"`
}

type TransferTokensRequest struct {
	To     string `json:"to"`
	Amount uint64 `json:"amount"`
}

type TransferCardRequest struct {
	To      string `json:"to"`
	TokenID uint64 `json:"token_id"`
}

type JoinAdventureRequest struct {
	AdventureID uint32   `json:"adventure_id"`
	CardIDs     []uint64 `json:"card_ids"`
}

type AdventureRef struct {
	AdventureID uint32 `json:"adventure_id"`
}

type QuestRef struct {
	QuestID uint32 `json:"quest_id"`
}

type CheckinResponse struct {
	Quests []QuestProgress `json:"quests"`
}

// --- admin ---

type IDResponse struct {
	ID uint32 `json:"id"`
}

type SetActiveRequest struct {
	Kind   string `json:"kind"` // template, pack_type, adventure, quest
	ID     uint32 `json:"id"`
	Active bool   `json:"active"`
}

type CreditTokensRequest struct {
	Player string `json:"player"`
	Amount uint64 `json:"amount"`
}

type GrantPacksRequest struct {
	Player     string `json:"player"`
	PackTypeID uint32 `json:"pack_type_id"`
	Count      uint32 `json:"count"`
}

type MintCardRequest struct {
	Player     string `json:"player"`
	TemplateID uint32 `json:"template_id"`
}

type RecordProgressRequest struct {
	Player  string `json:"player"`
	QuestID uint32 `json:"quest_id"`
	Delta   uint32 `json:"delta"`
}

type SetPausedRequest struct {
	Paused bool `json:"paused"`
}

type Treasury struct {
	CollectedWei string `json:"collected_wei"`
	WithdrawnWei string `json:"withdrawn_wei"`
	AvailableWei string `json:"available_wei"`
}

type WithdrawRequest struct {
	AmountWei string `json:"amount_wei"`
}
