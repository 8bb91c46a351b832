package ledger

import (
	"fmt"
	"math"
	"math/big"
	"slices"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/repository"
	"github.com/and161185/avamon/internal/schedule"
)

// Tx is a staged mutation of one account. Nothing is visible until the enclosing Update commits.
type Tx struct {
	l    *Ledger
	now  time.Time
	acct *model.Account

	cards     []model.Card
	requests  []model.RandomnessRequest
	events    []model.Event
	collected *big.Int
	dirty     bool
}

// Now is the time the mutation is evaluated at.
func (tx *Tx) Now() time.Time { return tx.now }

// Address is the player this Tx mutates.
func (tx *Tx) Address() common.Address { return tx.acct.Address }

// Account exposes the staged account. Mutations through it must call Touch.
func (tx *Tx) Account() *model.Account { return tx.acct }

// Touch marks the account as changed.
func (tx *Tx) Touch() { tx.dirty = true }

// Emit stages an event.
func (tx *Tx) Emit(kind model.EventKind, data map[string]any) {
	tx.events = append(tx.events, newEvent(kind, tx.acct.Address, tx.now, data))
}

func (tx *Tx) collect(cs *repository.Changeset) {
	if tx.dirty {
		tx.acct.UpdatedAt = tx.now
		cs.Accounts = append(cs.Accounts, *tx.acct)
	}
	cs.Cards = append(cs.Cards, tx.cards...)
	cs.Requests = append(cs.Requests, tx.requests...)
	cs.Events = append(cs.Events, tx.events...)
	if tx.collected != nil {
		if cs.Collected == nil {
			cs.Collected = new(big.Int)
		}
		cs.Collected.Add(cs.Collected, tx.collected)
	}
}

// --- tokens ---

// CreditTokens adds amount to the balance.
func (tx *Tx) CreditTokens(amount uint64) error {
	if amount > math.MaxUint64-tx.acct.Tokens {
		return fmt.Errorf("%w: balance overflow", errs.ErrInvalidInput)
	}
	tx.acct.Tokens += amount
	tx.Touch()
	return nil
}

// DebitTokens subtracts amount from the balance.
func (tx *Tx) DebitTokens(amount uint64) error {
	if amount > tx.acct.Tokens {
		return errs.ErrInsufficientBalance
	}
	tx.acct.Tokens -= amount
	tx.Touch()
	return nil
}

// --- payments ---

// Pay checks payment against cost and collects the whole payment into the treasury.
func (tx *Tx) Pay(cost, payment *big.Int) error {
	if payment == nil || payment.Cmp(cost) < 0 {
		return errs.ErrInsufficientPayment
	}
	if tx.collected == nil {
		tx.collected = new(big.Int)
	}
	tx.collected.Add(tx.collected, payment)
	return nil
}

// --- energy ---

func refreshEnergy(a *model.Account, anchor schedule.Anchor, now time.Time) bool {
	b, ok := anchor.DailyReset(a.LastEnergyReset, now)
	if !ok {
		return false
	}
	a.Energy = model.DailyEnergy
	a.LastEnergyReset = b
	return true
}

// Energy returns current energy after applying a due daily reset.
func (tx *Tx) Energy() uint32 {
	if refreshEnergy(tx.acct, tx.l.anchor, tx.now) {
		tx.Touch()
	}
	return tx.acct.Energy
}

// SpendEnergy consumes n energy.
func (tx *Tx) SpendEnergy(n uint32) error {
	if tx.Energy() < n {
		return errs.ErrInsufficientEnergy
	}
	tx.acct.Energy -= n
	tx.Touch()
	return nil
}

// PurchaseEnergy adds amount energy for a payment of at least amount * EnergyUnitCost.
func (tx *Tx) PurchaseEnergy(amount uint32, payment *big.Int) error {
	if amount == 0 {
		return fmt.Errorf("%w: energy amount must be positive", errs.ErrInvalidInput)
	}
	cost := new(big.Int).Mul(model.EnergyUnitCost, big.NewInt(int64(amount)))
	if err := tx.Pay(cost, payment); err != nil {
		return err
	}
	cur := tx.Energy()
	if uint64(cur)+uint64(amount) > math.MaxUint32 {
		return fmt.Errorf("%w: energy overflow", errs.ErrInvalidInput)
	}
	tx.acct.Energy = cur + amount
	tx.Touch()
	tx.Emit(model.EventEnergyPurchased, map[string]any{"amount": amount, "payment_wei": payment.String()})
	return nil
}

// --- cards ---

// MintCard creates a new card from tpl owned by this player.
func (tx *Tx) MintCard(tpl model.CardTemplate) model.Card {
	c := model.Card{
		TokenID:    tx.l.nextToken.Add(1),
		TemplateID: tpl.ID,
		Owner:      tx.acct.Address,
		Rarity:     tpl.Rarity,
		Attack:     tpl.Attack,
		Defense:    tpl.Defense,
		Agility:    tpl.Agility,
		HP:         tpl.HP,
		MintedAt:   tx.now,
	}
	tx.acct.AddCard(c.TokenID)
	tx.cards = append(tx.cards, c)
	tx.Touch()
	return c
}

// GiveCard moves an owned card from tx to dst.
func (tx *Tx) GiveCard(dst *Tx, tokenID uint64) error {
	if !tx.acct.Owns(tokenID) {
		return errs.ErrNotOwner
	}
	if _, locked := tx.acct.LockedCards()[tokenID]; locked {
		return errs.ErrCardLocked
	}
	c, err := tx.l.Card(tokenID)
	if err != nil {
		return err
	}
	c.Owner = dst.acct.Address
	tx.acct.RemoveCard(tokenID)
	dst.acct.AddCard(tokenID)
	tx.cards = append(tx.cards, c)
	tx.Touch()
	dst.Touch()
	return nil
}

// --- packs ---

// GrantPack adds count unopened packs.
func (tx *Tx) GrantPack(packTypeID uint32, count uint32) error {
	if count == 0 {
		return fmt.Errorf("%w: pack count must be positive", errs.ErrInvalidInput)
	}
	cur := tx.acct.Packs[packTypeID]
	if uint64(cur)+uint64(count) > math.MaxUint32 {
		return fmt.Errorf("%w: pack balance overflow", errs.ErrInvalidInput)
	}
	tx.acct.Packs[packTypeID] = cur + count
	tx.Touch()
	return nil
}

// ConsumePack burns count unopened packs.
func (tx *Tx) ConsumePack(packTypeID uint32, count uint32) error {
	cur := tx.acct.Packs[packTypeID]
	if count == 0 || count > cur {
		return errs.ErrInsufficientPackBalance
	}
	if cur == count {
		delete(tx.acct.Packs, packTypeID)
	} else {
		tx.acct.Packs[packTypeID] = cur - count
	}
	tx.Touch()
	return nil
}

// --- decks ---

// ValidateDeck checks that ids are exactly DeckSize distinct cards owned by the player.
func (tx *Tx) ValidateDeck(ids []uint64) error {
	if len(ids) != model.DeckSize {
		return errs.ErrInvalidDeckSize
	}
	seen := make(map[uint64]struct{}, len(ids))
	for _, id := range ids {
		if _, dup := seen[id]; dup {
			return errs.ErrDuplicateCard
		}
		seen[id] = struct{}{}
	}
	for _, id := range ids {
		if !tx.acct.Owns(id) {
			return errs.ErrNotOwner
		}
	}
	return nil
}

// SaveDeck stores a deck into slot.
func (tx *Tx) SaveDeck(slot int, name string, ids []uint64) error {
	if err := tx.ValidateDeck(ids); err != nil {
		return err
	}
	if slot < 0 || slot >= tx.acct.MaxDeckSlots {
		return errs.ErrSlotOutOfRange
	}
	for len(tx.acct.Decks) < tx.acct.MaxDeckSlots {
		tx.acct.Decks = append(tx.acct.Decks, model.Deck{})
	}
	tx.acct.Decks[slot] = model.Deck{Name: name, CardIDs: slices.Clone(ids)}
	tx.Touch()
	tx.Emit(model.EventDeckSaved, map[string]any{"slot": slot, "name": name, "card_ids": ids})
	return nil
}

// UpgradeDeckSlots adds the third deck slot once.
func (tx *Tx) UpgradeDeckSlots(payment *big.Int) error {
	if tx.acct.MaxDeckSlots >= model.MaxDeckSlots {
		return errs.ErrAlreadyMaxed
	}
	if err := tx.Pay(model.DeckSlotUpgradeCost, payment); err != nil {
		return err
	}
	tx.acct.MaxDeckSlots++
	for len(tx.acct.Decks) < tx.acct.MaxDeckSlots {
		tx.acct.Decks = append(tx.acct.Decks, model.Deck{})
	}
	tx.Touch()
	tx.Emit(model.EventDeckSlotsUpgraded, map[string]any{"max_deck_slots": tx.acct.MaxDeckSlots})
	return nil
}

// BuyWeeklyQuestSlot adds one weekly quest slot.
func (tx *Tx) BuyWeeklyQuestSlot(payment *big.Int) error {
	if tx.acct.WeeklyQuestSlots >= model.MaxWeeklyQuestSlots {
		return errs.ErrAlreadyMaxed
	}
	if err := tx.Pay(model.WeeklyQuestSlotCost, payment); err != nil {
		return err
	}
	tx.acct.WeeklyQuestSlots++
	tx.Touch()
	tx.Emit(model.EventWeeklyQuestSlotPurchased, map[string]any{
		"slots": tx.acct.WeeklyQuestSlots, "cost_wei": payment.String(),
	})
	return nil
}

// --- randomness requests ---

// AddRequest stages a new pending randomness request.
func (tx *Tx) AddRequest(r model.RandomnessRequest) {
	r.Player = tx.acct.Address
	r.Status = model.StatusPending
	r.RequestedAt = tx.now
	tx.requests = append(tx.requests, r)
}

// ResolveRequest stages the fulfilled version of r.
func (tx *Tx) ResolveRequest(r model.RandomnessRequest) {
	r.Status = model.StatusFulfilled
	r.FulfilledAt = tx.now
	tx.requests = append(tx.requests, r)
}
