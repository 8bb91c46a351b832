package engine

import (
	"context"
	"fmt"
	"math/bits"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/rng"
)

// PurchasePack debits price*amount tokens and grants amount unopened packs.
func (e *Engine) PurchasePack(ctx context.Context, player common.Address, packTypeID, amount uint32) error {
	if err := e.guard(); err != nil {
		return err
	}
	if amount == 0 {
		return fmt.Errorf("%w: pack amount must be positive", errs.ErrInvalidInput)
	}
	p, err := e.cat.GetPackType(packTypeID)
	if err != nil {
		return err
	}
	if !p.Active {
		return errs.ErrInactive
	}
	hi, cost := bits.Mul64(p.Price, uint64(amount))
	if hi != 0 {
		return errs.ErrInsufficientBalance
	}
	return e.led.Update(ctx, player, func(tx *ledger.Tx) error {
		if err := tx.DebitTokens(cost); err != nil {
			return err
		}
		if err := tx.GrantPack(packTypeID, amount); err != nil {
			return err
		}
		tx.Emit(model.EventPackPurchased, map[string]any{
			"pack_type_id": packTypeID, "amount": amount, "cost": cost,
		})
		return nil
	})
}

// OpenPack burns one pack and records a pending randomness request in the same commit.
// The cards are minted when the randomness arrives.
func (e *Engine) OpenPack(ctx context.Context, player common.Address, packTypeID uint32) (uuid.UUID, error) {
	if err := e.guard(); err != nil {
		return uuid.Nil, err
	}
	if _, err := e.cat.GetPackType(packTypeID); err != nil {
		return uuid.Nil, err
	}
	if !e.cat.HasActiveTemplates() {
		return uuid.Nil, errs.ErrNoActiveTemplates
	}
	req := model.RandomnessRequest{
		ID:         uuid.Must(uuid.NewV4()),
		Kind:       model.KindPackOpening,
		PackTypeID: packTypeID,
		NumWords:   1,
	}
	err := e.led.Update(ctx, player, func(tx *ledger.Tx) error {
		if tx.Account().Packs[packTypeID] == 0 {
			return errs.ErrNoPacksOwned
		}
		if err := tx.ConsumePack(packTypeID, 1); err != nil {
			return err
		}
		tx.AddRequest(req)
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	e.request(ctx, req)
	return req.ID, nil
}

// DrawTier maps a roll in [0,100) to a tier using [common, rare, mythic] percentages.
func DrawTier(chances [3]uint8, roll uint64) model.Rarity {
	c, r := uint64(chances[0]), uint64(chances[1])
	switch {
	case roll < c:
		return model.Common
	case roll < c+r:
		return model.Rare
	default:
		return model.Mythic
	}
}

// fallbackOrder lists the tiers tried for a draw of tier t: t itself, then lower tiers
// from the nearest down, then higher tiers from the nearest up.
func fallbackOrder(t model.Rarity) []model.Rarity {
	out := []model.Rarity{t}
	for r := int(t) - 1; r >= int(model.Common); r-- {
		out = append(out, model.Rarity(r))
	}
	for r := int(t) + 1; r <= int(model.Mythic); r++ {
		out = append(out, model.Rarity(r))
	}
	return out
}

// drawTemplates picks PackSize templates for pack p from word w.
// Draw i uses derive(w, 2i) for the tier and derive(w, 2i+1) for the template.
func drawTemplates(p model.PackType, w rng.Word, active func(model.Rarity) []model.CardTemplate) ([]model.CardTemplate, error) {
	out := make([]model.CardTemplate, 0, model.PackSize)
	for i := uint64(0); i < model.PackSize; i++ {
		tier := DrawTier(p.Chances, rng.Mod(rng.Derive(w, 2*i), 100))
		var pool []model.CardTemplate
		for _, r := range fallbackOrder(tier) {
			if pool = active(r); len(pool) > 0 {
				break
			}
		}
		if len(pool) == 0 {
			return nil, errs.ErrNoActiveTemplates
		}
		out = append(out, pool[rng.Mod(rng.Derive(w, 2*i+1), uint64(len(pool)))])
	}
	return out, nil
}

// resolvePack mints the pack's cards into tx and marks req fulfilled.
func (e *Engine) resolvePack(tx *ledger.Tx, req model.RandomnessRequest, w rng.Word) (model.RandomnessRequest, error) {
	p, err := e.cat.GetPackType(req.PackTypeID)
	if err != nil {
		return req, err
	}
	tpls, err := drawTemplates(p, w, e.cat.ActiveByRarity)
	if err != nil {
		return req, err
	}
	ids := make([]uint64, 0, len(tpls))
	for _, t := range tpls {
		ids = append(ids, tx.MintCard(t).TokenID)
	}
	req.CardIDs = ids
	tx.ResolveRequest(req)
	tx.Emit(model.EventPackOpened, map[string]any{
		"request_id":   req.ID.String(),
		"pack_type_id": req.PackTypeID,
		"card_ids":     ids,
	})
	e.advanceQuests(tx, model.QuestOpenPacks, 1)
	return req, nil
}
