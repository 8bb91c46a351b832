package service

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/avamon/internal/engine"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
)

// PlayerStats is the read model of one player.
type PlayerStats struct {
	Account     model.Account
	Cards       []model.Card
	Quests      []QuestView
	NextReset   time.Time
	GamePaused  bool
	LockedCards map[uint64]uint32
}

// QuestView is a quest with the player's progress and the end of its current window.
type QuestView struct {
	engine.QuestStatus
	ResetsAt time.Time
}

// CatalogView is the published catalog.
type CatalogView struct {
	Templates  []model.CardTemplate
	PackTypes  []model.PackType
	Adventures []model.Adventure
	Quests     []model.Quest
}

// GameService defines the player-facing operations.
type GameService interface {
	Catalog() CatalogView
	Stats(ctx context.Context, player common.Address) (PlayerStats, error)
	Events(ctx context.Context, player common.Address, limit int) ([]model.Event, error)

	PurchasePack(ctx context.Context, player common.Address, packTypeID, amount uint32) error
	OpenPack(ctx context.Context, player common.Address, packTypeID uint32) (uuid.UUID, error)
	GetRequest(ctx context.Context, player common.Address, id uuid.UUID) (model.RandomnessRequest, error)

	SaveDeck(ctx context.Context, player common.Address, slot int, name string, cardIDs []uint64) error
	UpgradeDeckSlots(ctx context.Context, player common.Address, payment *big.Int) error
	PurchaseEnergy(ctx context.Context, player common.Address, amount uint32, payment *big.Int) error
	BuyWeeklyQuestSlot(ctx context.Context, player common.Address, payment *big.Int) error
	TransferTokens(ctx context.Context, from, to common.Address, amount uint64) error
	TransferCard(ctx context.Context, from, to common.Address, tokenID uint64) error

	JoinAdventure(ctx context.Context, player common.Address, adventureID uint32, cardIDs []uint64) (uuid.UUID, error)
	ClaimAdventure(ctx context.Context, player common.Address, adventureID uint32) (model.AdventureSession, error)

	ClaimQuest(ctx context.Context, player common.Address, questID uint32) (model.QuestProgress, error)
	CompleteDailyCheckin(ctx context.Context, player common.Address) ([]model.QuestProgress, error)
}

type GameServiceImpl struct {
	eng    *engine.Engine
	events repository.EventReader
}

// NewGameService constructs GameService.
func NewGameService(eng *engine.Engine, events repository.EventReader) *GameServiceImpl {
	return &GameServiceImpl{eng: eng, events: events}
}

func validation(format string, args ...any) error {
	return fmt.Errorf("%w: validation: %s", errs.ErrInvalidInput, fmt.Sprintf(format, args...))
}

func nonNegative(payment *big.Int) (*big.Int, error) {
	if payment == nil {
		return new(big.Int), nil
	}
	if payment.Sign() < 0 {
		return nil, validation("negative payment")
	}
	return payment, nil
}

// Catalog returns the current catalog snapshot.
func (s *GameServiceImpl) Catalog() CatalogView {
	c := s.eng.Catalog()
	return CatalogView{
		Templates:  c.Templates(),
		PackTypes:  c.PackTypes(),
		Adventures: c.Adventures(),
		Quests:     c.Quests(),
	}
}

// Stats assembles the player's account, cards and quest progress.
func (s *GameServiceImpl) Stats(_ context.Context, player common.Address) (PlayerStats, error) {
	acct := s.eng.Account(player)
	qs := s.eng.Quests(player)
	views := make([]QuestView, 0, len(qs))
	for _, q := range qs {
		views = append(views, QuestView{QuestStatus: q, ResetsAt: s.eng.NextQuestReset(q.Quest)})
	}
	anchor := s.eng.Ledger().Anchor()
	return PlayerStats{
		Account:     *acct,
		Cards:       s.eng.Cards(player),
		Quests:      views,
		NextReset:   anchor.Next(anchor.Boundary(s.eng.Ledger().Now())),
		GamePaused:  s.eng.Paused(),
		LockedCards: acct.LockedCards(),
	}, nil
}

// Events returns the player's newest events.
func (s *GameServiceImpl) Events(ctx context.Context, player common.Address, limit int) ([]model.Event, error) {
	if limit < 0 || limit > 1000 {
		return nil, validation("limit out of range (%d)", limit)
	}
	return s.events.ListEvents(ctx, player, limit)
}

// PurchasePack buys amount packs of a type.
func (s *GameServiceImpl) PurchasePack(ctx context.Context, player common.Address, packTypeID, amount uint32) error {
	if amount == 0 {
		return validation("amount must be positive")
	}
	return s.eng.PurchasePack(ctx, player, packTypeID, amount)
}

// OpenPack starts a two-phase pack opening and returns the randomness request id.
func (s *GameServiceImpl) OpenPack(ctx context.Context, player common.Address, packTypeID uint32) (uuid.UUID, error) {
	return s.eng.OpenPack(ctx, player, packTypeID)
}

// GetRequest returns one of the player's randomness requests. Other players' requests are not found.
func (s *GameServiceImpl) GetRequest(ctx context.Context, player common.Address, id uuid.UUID) (model.RandomnessRequest, error) {
	if id == uuid.Nil {
		return model.RandomnessRequest{}, validation("empty request id")
	}
	r, err := s.eng.GetRequest(ctx, id)
	if err != nil {
		return model.RandomnessRequest{}, err
	}
	if r.Player != player {
		return model.RandomnessRequest{}, errs.ErrNotFound
	}
	return r, nil
}

// SaveDeck stores a deck in a slot.
func (s *GameServiceImpl) SaveDeck(ctx context.Context, player common.Address, slot int, name string, cardIDs []uint64) error {
	if len(name) > 64 {
		return validation("deck name too long")
	}
	return s.eng.SaveDeck(ctx, player, slot, name, cardIDs)
}

// UpgradeDeckSlots buys the extra deck slot.
func (s *GameServiceImpl) UpgradeDeckSlots(ctx context.Context, player common.Address, payment *big.Int) error {
	p, err := nonNegative(payment)
	if err != nil {
		return err
	}
	return s.eng.UpgradeDeckSlots(ctx, player, p)
}

// PurchaseEnergy buys energy.
func (s *GameServiceImpl) PurchaseEnergy(ctx context.Context, player common.Address, amount uint32, payment *big.Int) error {
	if amount == 0 {
		return validation("amount must be positive")
	}
	p, err := nonNegative(payment)
	if err != nil {
		return err
	}
	return s.eng.PurchaseEnergy(ctx, player, amount, p)
}

// BuyWeeklyQuestSlot buys a weekly quest slot.
func (s *GameServiceImpl) BuyWeeklyQuestSlot(ctx context.Context, player common.Address, payment *big.Int) error {
	p, err := nonNegative(payment)
	if err != nil {
		return err
	}
	return s.eng.BuyWeeklyQuestSlot(ctx, player, p)
}

// TransferTokens moves tokens between players.
func (s *GameServiceImpl) TransferTokens(ctx context.Context, from, to common.Address, amount uint64) error {
	if to == (common.Address{}) || to == from {
		return validation("bad recipient")
	}
	if amount == 0 {
		return validation("amount must be positive")
	}
	return s.eng.TransferTokens(ctx, from, to, amount)
}

// TransferCard moves a card between players.
func (s *GameServiceImpl) TransferCard(ctx context.Context, from, to common.Address, tokenID uint64) error {
	if to == (common.Address{}) || to == from {
		return validation("bad recipient")
	}
	return s.eng.TransferCard(ctx, from, to, tokenID)
}

// JoinAdventure stakes a saved deck into an adventure.
func (s *GameServiceImpl) JoinAdventure(ctx context.Context, player common.Address, adventureID uint32, cardIDs []uint64) (uuid.UUID, error) {
	return s.eng.JoinAdventure(ctx, player, adventureID, cardIDs)
}

// ClaimAdventure collects a finished adventure's reward.
func (s *GameServiceImpl) ClaimAdventure(ctx context.Context, player common.Address, adventureID uint32) (model.AdventureSession, error) {
	return s.eng.ClaimAdventure(ctx, player, adventureID)
}

// ClaimQuest claims a completed quest.
func (s *GameServiceImpl) ClaimQuest(ctx context.Context, player common.Address, questID uint32) (model.QuestProgress, error) {
	return s.eng.ClaimQuest(ctx, player, questID)
}

// CompleteDailyCheckin performs the daily check-in.
func (s *GameServiceImpl) CompleteDailyCheckin(ctx context.Context, player common.Address) ([]model.QuestProgress, error) {
	return s.eng.CompleteDailyCheckin(ctx, player)
}
