package engine

import (
	"context"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
)

// Administrative operations. Role checks happen in the service layer, and none of these
// are blocked by Pause.

// MintCard mints a card of an active template directly to player.
func (e *Engine) MintCard(ctx context.Context, player common.Address, templateID uint32) (model.Card, error) {
	tpl, err := e.cat.GetTemplate(templateID)
	if err != nil {
		return model.Card{}, err
	}
	if !tpl.Active {
		return model.Card{}, errs.ErrInactive
	}
	return e.led.MintCard(ctx, player, tpl)
}

// GrantPacks gives count unopened packs.
func (e *Engine) GrantPacks(ctx context.Context, player common.Address, packTypeID, count uint32) error {
	if _, err := e.cat.GetPackType(packTypeID); err != nil {
		return err
	}
	return e.led.GrantPack(ctx, player, packTypeID, count)
}

// CreditTokens mints tokens to player.
func (e *Engine) CreditTokens(ctx context.Context, player common.Address, amount uint64) error {
	return e.led.CreditTokens(ctx, player, amount)
}

// Treasury returns collected and withdrawn native payments.
func (e *Engine) Treasury() model.Treasury { return e.led.Treasury() }

// Withdraw moves wei out of the treasury.
func (e *Engine) Withdraw(ctx context.Context, admin common.Address, amount *big.Int) error {
	return e.led.Withdraw(ctx, admin, amount)
}
