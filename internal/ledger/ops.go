package ledger

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/and161185/avamon/internal/model"
)

// CreditTokens adds tokens to a player's balance.
func (l *Ledger) CreditTokens(ctx context.Context, player common.Address, amount uint64) error {
	return l.Update(ctx, player, func(tx *Tx) error {
		if err := tx.CreditTokens(amount); err != nil {
			return err
		}
		tx.Emit(model.EventTokensCredited, map[string]any{"amount": amount})
		return nil
	})
}

// DebitTokens removes tokens from a player's balance.
func (l *Ledger) DebitTokens(ctx context.Context, player common.Address, amount uint64) error {
	return l.Update(ctx, player, func(tx *Tx) error { return tx.DebitTokens(amount) })
}

// MintCard mints a card of tpl to player and returns it.
func (l *Ledger) MintCard(ctx context.Context, player common.Address, tpl model.CardTemplate) (model.Card, error) {
	var c model.Card
	err := l.Update(ctx, player, func(tx *Tx) error {
		c = tx.MintCard(tpl)
		tx.Emit(model.EventCardMinted, map[string]any{"token_id": c.TokenID, "template_id": tpl.ID})
		return nil
	})
	return c, err
}

// GrantPack gives count unopened packs of packTypeID.
func (l *Ledger) GrantPack(ctx context.Context, player common.Address, packTypeID, count uint32) error {
	return l.Update(ctx, player, func(tx *Tx) error {
		if err := tx.GrantPack(packTypeID, count); err != nil {
			return err
		}
		tx.Emit(model.EventPackMinted, map[string]any{"pack_type_id": packTypeID, "count": count})
		return nil
	})
}

// ConsumePack burns count unopened packs of packTypeID.
func (l *Ledger) ConsumePack(ctx context.Context, player common.Address, packTypeID, count uint32) error {
	return l.Update(ctx, player, func(tx *Tx) error { return tx.ConsumePack(packTypeID, count) })
}

// SaveDeck validates and stores a deck.
func (l *Ledger) SaveDeck(ctx context.Context, player common.Address, slot int, name string, ids []uint64) error {
	return l.Update(ctx, player, func(tx *Tx) error { return tx.SaveDeck(slot, name, ids) })
}

// UpgradeDeckSlots raises the deck slot cap from 2 to 3.
func (l *Ledger) UpgradeDeckSlots(ctx context.Context, player common.Address, payment *big.Int) error {
	return l.Update(ctx, player, func(tx *Tx) error { return tx.UpgradeDeckSlots(payment) })
}

// PurchaseEnergy buys amount energy.
func (l *Ledger) PurchaseEnergy(ctx context.Context, player common.Address, amount uint32, payment *big.Int) error {
	return l.Update(ctx, player, func(tx *Tx) error { return tx.PurchaseEnergy(amount, payment) })
}

// BuyWeeklyQuestSlot buys one extra weekly quest slot.
func (l *Ledger) BuyWeeklyQuestSlot(ctx context.Context, player common.Address, payment *big.Int) error {
	return l.Update(ctx, player, func(tx *Tx) error { return tx.BuyWeeklyQuestSlot(payment) })
}

// TransferTokens moves tokens between two players.
func (l *Ledger) TransferTokens(ctx context.Context, from, to common.Address, amount uint64) error {
	return l.UpdatePair(ctx, from, to, func(src, dst *Tx) error {
		if err := src.DebitTokens(amount); err != nil {
			return err
		}
		if err := dst.CreditTokens(amount); err != nil {
			return err
		}
		src.Emit(model.EventTokensTransferred, map[string]any{"to": to.Hex(), "amount": amount})
		return nil
	})
}

// TransferCard moves a card between two players. Saved decks holding it are cleared.
func (l *Ledger) TransferCard(ctx context.Context, from, to common.Address, tokenID uint64) error {
	return l.UpdatePair(ctx, from, to, func(src, dst *Tx) error {
		if err := src.GiveCard(dst, tokenID); err != nil {
			return err
		}
		src.Emit(model.EventCardTransferred, map[string]any{"to": to.Hex(), "token_id": tokenID})
		return nil
	})
}
