package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
)

// RequestKind names what a randomness request resolves.
type RequestKind string

const (
	KindPackOpening RequestKind = "pack_opening"
	KindAdventure   RequestKind = "adventure"
)

// RequestStatus is the randomness request lifecycle state.
type RequestStatus string

const (
	StatusPending   RequestStatus = "pending"
	StatusFulfilled RequestStatus = "fulfilled"
)

// RandomnessRequest tracks an outstanding or resolved randomness request.
type RandomnessRequest struct {
	ID          uuid.UUID      `json:"id"`
	Kind        RequestKind    `json:"kind"`
	Player      common.Address `json:"player"`
	PackTypeID  uint32         `json:"pack_type_id,omitempty"`
	AdventureID uint32         `json:"adventure_id,omitempty"`
	NumWords    int            `json:"num_words"`
	Status      RequestStatus  `json:"status"`
	Emergency   bool           `json:"emergency,omitempty"`
	CardIDs     []uint64       `json:"card_ids,omitempty"` // minted cards for pack openings
	RequestedAt time.Time      `json:"requested_at"`
	FulfilledAt time.Time      `json:"fulfilled_at,omitempty"`
}

// EventKind names an audit/result record.
type EventKind string

const (
	EventPackOpened               EventKind = "PackOpened"
	EventPackPurchased            EventKind = "PackPurchased"
	EventPackMinted               EventKind = "PackMinted"
	EventCardMinted               EventKind = "CardMinted"
	EventCardTransferred          EventKind = "CardTransferred"
	EventTokensCredited           EventKind = "TokensCredited"
	EventTokensTransferred        EventKind = "TokensTransferred"
	EventEnergyPurchased          EventKind = "EnergyPurchased"
	EventDeckSaved                EventKind = "DeckSaved"
	EventDeckSlotsUpgraded        EventKind = "DeckSlotsUpgraded"
	EventAdventureJoined          EventKind = "AdventureJoined"
	EventAdventureCompleted       EventKind = "AdventureCompleted"
	EventQuestCompleted           EventKind = "QuestCompleted"
	EventQuestRewardClaimed       EventKind = "QuestRewardClaimed"
	EventWeeklyQuestSlotPurchased EventKind = "WeeklyQuestSlotPurchased"
	EventEmergencyCompleted       EventKind = "EmergencyCompleted"
	EventTreasuryWithdrawn        EventKind = "TreasuryWithdrawn"
)

// Event is an emitted result record kept for audit and replay.
type Event struct {
	ID     uuid.UUID      `json:"id"`
	Kind   EventKind      `json:"kind"`
	Player common.Address `json:"player"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}
