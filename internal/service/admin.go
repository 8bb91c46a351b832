package service

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/avamon/internal/engine"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
)

// CatalogKind selects the catalog entry kind toggled by SetActive.
type CatalogKind string

const (
	KindTemplate  CatalogKind = "template"
	KindPackType  CatalogKind = "pack_type"
	KindAdventure CatalogKind = "adventure"
	KindQuest     CatalogKind = "quest"
)

// AdminService defines administrator operations. Every call requires an admin principal.
type AdminService interface {
	CreateTemplate(ctx context.Context, p model.Principal, t model.CardTemplate) (uint32, error)
	CreatePackType(ctx context.Context, p model.Principal, name string, price uint64, chances [3]uint8) (uint32, error)
	CreateAdventure(ctx context.Context, p model.Principal, a model.Adventure) (uint32, error)
	CreateQuest(ctx context.Context, p model.Principal, q model.Quest) (uint32, error)
	SetActive(ctx context.Context, p model.Principal, kind CatalogKind, id uint32, active bool) error

	CreditTokens(ctx context.Context, p model.Principal, player common.Address, amount uint64) error
	GrantPacks(ctx context.Context, p model.Principal, player common.Address, packTypeID, count uint32) error
	MintCard(ctx context.Context, p model.Principal, player common.Address, templateID uint32) (model.Card, error)
	RecordProgress(ctx context.Context, p model.Principal, player common.Address, questID, delta uint32) (model.QuestProgress, error)
	EmergencyComplete(ctx context.Context, p model.Principal, id uuid.UUID) (model.RandomnessRequest, error)

	SetPaused(ctx context.Context, p model.Principal, paused bool) error
	Treasury(ctx context.Context, p model.Principal) (model.Treasury, error)
	Withdraw(ctx context.Context, p model.Principal, amount *big.Int) error
}

type AdminServiceImpl struct {
	eng *engine.Engine
	log *zap.Logger
}

// NewAdminService constructs AdminService.
func NewAdminService(eng *engine.Engine, log *zap.Logger) *AdminServiceImpl {
	return &AdminServiceImpl{eng: eng, log: log}
}

func (s *AdminServiceImpl) authorize(p model.Principal, op string) error {
	if !p.Admin {
		s.log.Warn("admin operation denied", zap.Stringer("caller", p.Address), zap.String("op", op))
		return errs.ErrUnauthorized
	}
	s.log.Info("admin operation", zap.Stringer("caller", p.Address), zap.String("op", op))
	return nil
}

func (s *AdminServiceImpl) CreateTemplate(ctx context.Context, p model.Principal, t model.CardTemplate) (uint32, error) {
	if err := s.authorize(p, "create_template"); err != nil {
		return 0, err
	}
	return s.eng.Catalog().CreateTemplate(ctx, t)
}

func (s *AdminServiceImpl) CreatePackType(ctx context.Context, p model.Principal, name string, price uint64, chances [3]uint8) (uint32, error) {
	if err := s.authorize(p, "create_pack_type"); err != nil {
		return 0, err
	}
	return s.eng.Catalog().CreatePackType(ctx, name, price, chances)
}

func (s *AdminServiceImpl) CreateAdventure(ctx context.Context, p model.Principal, a model.Adventure) (uint32, error) {
	if err := s.authorize(p, "create_adventure"); err != nil {
		return 0, err
	}
	return s.eng.Catalog().CreateAdventure(ctx, a)
}

func (s *AdminServiceImpl) CreateQuest(ctx context.Context, p model.Principal, q model.Quest) (uint32, error) {
	if err := s.authorize(p, "create_quest"); err != nil {
		return 0, err
	}
	return s.eng.Catalog().CreateQuest(ctx, q)
}

// SetActive toggles a catalog entry. Deactivation never touches already minted cards or owned packs.
func (s *AdminServiceImpl) SetActive(ctx context.Context, p model.Principal, kind CatalogKind, id uint32, active bool) error {
	if err := s.authorize(p, "set_active"); err != nil {
		return err
	}
	c := s.eng.Catalog()
	switch kind {
	case KindTemplate:
		return c.SetTemplateActive(ctx, id, active)
	case KindPackType:
		return c.SetPackTypeActive(ctx, id, active)
	case KindAdventure:
		return c.UpdateAdventure(ctx, id, active)
	case KindQuest:
		return c.SetQuestActive(ctx, id, active)
	default:
		return validation("unknown catalog kind %q", kind)
	}
}

func (s *AdminServiceImpl) CreditTokens(ctx context.Context, p model.Principal, player common.Address, amount uint64) error {
	if err := s.authorize(p, "credit_tokens"); err != nil {
		return err
	}
	if amount == 0 {
		return validation("amount must be positive")
	}
	return s.eng.CreditTokens(ctx, player, amount)
}

func (s *AdminServiceImpl) GrantPacks(ctx context.Context, p model.Principal, player common.Address, packTypeID, count uint32) error {
	if err := s.authorize(p, "grant_packs"); err != nil {
		return err
	}
	if count == 0 {
		return validation("count must be positive")
	}
	return s.eng.GrantPacks(ctx, player, packTypeID, count)
}

func (s *AdminServiceImpl) MintCard(ctx context.Context, p model.Principal, player common.Address, templateID uint32) (model.Card, error) {
	if err := s.authorize(p, "mint_card"); err != nil {
		return model.Card{}, err
	}
	return s.eng.MintCard(ctx, player, templateID)
}

// RecordProgress advances a player's quest, e.g. for battle wins reported by the battle service.
func (s *AdminServiceImpl) RecordProgress(ctx context.Context, p model.Principal, player common.Address, questID, delta uint32) (model.QuestProgress, error) {
	if err := s.authorize(p, "record_progress"); err != nil {
		return model.QuestProgress{}, err
	}
	return s.eng.UpdateProgress(ctx, player, questID, delta)
}

// EmergencyComplete resolves a stuck randomness request with locally generated randomness.
func (s *AdminServiceImpl) EmergencyComplete(ctx context.Context, p model.Principal, id uuid.UUID) (model.RandomnessRequest, error) {
	if err := s.authorize(p, "emergency_complete"); err != nil {
		return model.RandomnessRequest{}, err
	}
	if id == uuid.Nil {
		return model.RandomnessRequest{}, validation("empty request id")
	}
	return s.eng.EmergencyComplete(ctx, id)
}

func (s *AdminServiceImpl) SetPaused(_ context.Context, p model.Principal, paused bool) error {
	if err := s.authorize(p, "set_paused"); err != nil {
		return err
	}
	if paused {
		s.eng.Pause()
	} else {
		s.eng.Unpause()
	}
	return nil
}

func (s *AdminServiceImpl) Treasury(_ context.Context, p model.Principal) (model.Treasury, error) {
	if err := s.authorize(p, "treasury"); err != nil {
		return model.Treasury{}, err
	}
	return s.eng.Treasury(), nil
}

func (s *AdminServiceImpl) Withdraw(ctx context.Context, p model.Principal, amount *big.Int) error {
	if err := s.authorize(p, "withdraw"); err != nil {
		return err
	}
	return s.eng.Withdraw(ctx, p.Address, amount)
}
