package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/and161185/avamon/internal/model"
)

// SaveDeck stores a four-card deck in slot.
func (e *Engine) SaveDeck(ctx context.Context, player common.Address, slot int, name string, cardIDs []uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.led.SaveDeck(ctx, player, slot, name, cardIDs)
}

// UpgradeDeckSlots buys the third deck slot.
func (e *Engine) UpgradeDeckSlots(ctx context.Context, player common.Address, payment *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.led.UpgradeDeckSlots(ctx, player, payment)
}

// PurchaseEnergy buys energy on top of the current (reset-adjusted) amount.
func (e *Engine) PurchaseEnergy(ctx context.Context, player common.Address, amount uint32, payment *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.led.PurchaseEnergy(ctx, player, amount, payment)
}

// BuyWeeklyQuestSlot buys one more weekly quest claim per week.
func (e *Engine) BuyWeeklyQuestSlot(ctx context.Context, player common.Address, payment *big.Int) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.led.BuyWeeklyQuestSlot(ctx, player, payment)
}

// TransferTokens moves tokens to another player.
func (e *Engine) TransferTokens(ctx context.Context, from, to common.Address, amount uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.led.TransferTokens(ctx, from, to, amount)
}

// TransferCard moves an unlocked card to another player.
func (e *Engine) TransferCard(ctx context.Context, from, to common.Address, tokenID uint64) error {
	if err := e.guard(); err != nil {
		return err
	}
	return e.led.TransferCard(ctx, from, to, tokenID)
}

// Account returns the player's account with energy recomputed for now.
func (e *Engine) Account(player common.Address) *model.Account { return e.led.Account(player) }

// Cards returns the player's cards.
func (e *Engine) Cards(player common.Address) []model.Card { return e.led.Cards(player) }
