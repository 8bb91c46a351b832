package engine

import (
	"context"
	"fmt"
	"slices"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gofrs/uuid/v5"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/rng"
)

// JoinAdventure starts a session: it spends one energy and the entry fee, locks the four
// cards and records a pending randomness request.
func (e *Engine) JoinAdventure(ctx context.Context, player common.Address, adventureID uint32, cardIDs []uint64) (uuid.UUID, error) {
	if err := e.guard(); err != nil {
		return uuid.Nil, err
	}
	adv, err := e.cat.GetAdventure(adventureID)
	if err != nil {
		return uuid.Nil, err
	}
	if !adv.Active {
		return uuid.Nil, errs.ErrInactive
	}
	req := model.RandomnessRequest{
		ID:          uuid.Must(uuid.NewV4()),
		Kind:        model.KindAdventure,
		AdventureID: adventureID,
		NumWords:    1,
	}
	err = e.led.Update(ctx, player, func(tx *ledger.Tx) error {
		acct := tx.Account()
		if s := acct.Sessions[adventureID]; s != nil && !s.Claimed {
			return errs.ErrSessionActive
		}
		if tx.Energy() < 1 {
			return errs.ErrInsufficientEnergy
		}
		if acct.Tokens < adv.EntryFee {
			return errs.ErrInsufficientFunds
		}
		if err := tx.ValidateDeck(cardIDs); err != nil {
			return fmt.Errorf("%w: %v", errs.ErrDeckNotFound, err)
		}
		locked := acct.LockedCards()
		for _, id := range cardIDs {
			if _, ok := locked[id]; ok {
				return errs.ErrCardLocked
			}
		}
		if err := tx.SpendEnergy(1); err != nil {
			return err
		}
		if err := tx.DebitTokens(adv.EntryFee); err != nil {
			return err
		}
		acct.Sessions[adventureID] = &model.AdventureSession{
			AdventureID: adventureID,
			StartedAt:   tx.Now(),
			CardIDs:     slices.Clone(cardIDs),
			RequestID:   req.ID,
		}
		tx.Touch()
		tx.AddRequest(req)
		tx.Emit(model.EventAdventureJoined, map[string]any{
			"adventure_id": adventureID, "card_ids": cardIDs, "request_id": req.ID.String(),
		})
		return nil
	})
	if err != nil {
		return uuid.Nil, err
	}
	e.request(ctx, req)
	return req.ID, nil
}

// resolveAdventure stores the delivered word on the session; rewards are computed at claim.
func (e *Engine) resolveAdventure(tx *ledger.Tx, req model.RandomnessRequest, w rng.Word) {
	if s := tx.Account().Sessions[req.AdventureID]; s != nil && s.RequestID == req.ID {
		word := [32]byte(w)
		s.Randomness = &word
		tx.Touch()
	}
	tx.ResolveRequest(req)
}

// ClaimAdventure pays out a finished session: a uniform token reward in [min, max] and
// possibly one pack. The cards are unlocked and WinBattles quests advance.
func (e *Engine) ClaimAdventure(ctx context.Context, player common.Address, adventureID uint32) (model.AdventureSession, error) {
	if err := e.guard(); err != nil {
		return model.AdventureSession{}, err
	}
	adv, err := e.cat.GetAdventure(adventureID)
	if err != nil {
		return model.AdventureSession{}, err
	}
	var out model.AdventureSession
	err = e.led.Update(ctx, player, func(tx *ledger.Tx) error {
		s := tx.Account().Sessions[adventureID]
		switch {
		case s == nil:
			return errs.ErrNotFound
		case s.Claimed:
			return errs.ErrAlreadyClaimed
		case tx.Now().Before(s.StartedAt.Add(adv.Duration)):
			return errs.ErrNotReady
		case s.Randomness == nil:
			return errs.ErrRandomnessPending
		}
		w := rng.Word(*s.Randomness)
		reward := rng.Uniform(rng.Derive(w, 0), adv.MinReward, adv.MaxReward)
		drop := adv.PackDropChance > 0 && rng.Mod(rng.Derive(w, 1), 100) < uint64(adv.PackDropChance)

		if err := tx.CreditTokens(reward); err != nil {
			return err
		}
		if drop {
			if err := tx.GrantPack(adv.RewardPackType, 1); err != nil {
				return err
			}
		}
		s.Claimed = true
		s.Reward = reward
		s.PackDropped = drop
		tx.Touch()
		tx.Emit(model.EventAdventureCompleted, map[string]any{
			"adventure_id": adventureID, "reward": reward, "pack_dropped": drop,
		})
		e.advanceQuests(tx, model.QuestWinBattles, 1)
		out = *s
		out.CardIDs = slices.Clone(s.CardIDs)
		return nil
	})
	return out, err
}
