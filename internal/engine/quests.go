package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/model"
)

// QuestStatus pairs a quest with the player's progress in the current window.
type QuestStatus struct {
	Quest    model.Quest
	Progress model.QuestProgress
}

// progressFor returns the player's progress for q in the window containing tx.Now,
// starting a fresh record when the stored one belongs to an earlier window.
func (e *Engine) progressFor(tx *ledger.Tx, q model.Quest) *model.QuestProgress {
	ws := e.led.Anchor().WindowStart(tx.Now(), q.WindowDays)
	acct := tx.Account()
	p := acct.Quests[q.ID]
	if p == nil || !p.WindowStart.Equal(ws) {
		p = &model.QuestProgress{QuestID: q.ID, WindowStart: ws}
		acct.Quests[q.ID] = p
		tx.Touch()
	}
	return p
}

func (e *Engine) addProgress(tx *ledger.Tx, q model.Quest, delta uint32) *model.QuestProgress {
	p := e.progressFor(tx, q)
	if p.Completed || delta == 0 {
		return p
	}
	if delta >= q.Target-p.Progress {
		p.Progress = q.Target
	} else {
		p.Progress += delta
	}
	p.UpdatedAt = tx.Now()
	tx.Touch()
	if p.Progress >= q.Target {
		p.Completed = true
		tx.Emit(model.EventQuestCompleted, map[string]any{"quest_id": q.ID})
	}
	return p
}

// advanceQuests adds delta to every active quest of typ.
func (e *Engine) advanceQuests(tx *ledger.Tx, typ model.QuestType, delta uint32) {
	for _, q := range e.cat.ActiveQuests(typ) {
		e.addProgress(tx, q, delta)
	}
}

// weeklyClaims counts weekly quests claimed in their current window.
func (e *Engine) weeklyClaims(tx *ledger.Tx) uint32 {
	var n uint32
	for id, p := range tx.Account().Quests {
		if !p.Claimed {
			continue
		}
		q, err := e.cat.GetQuest(id)
		if err != nil || !q.Weekly() {
			continue
		}
		if p.WindowStart.Equal(e.led.Anchor().WindowStart(tx.Now(), q.WindowDays)) {
			n++
		}
	}
	return n
}

func (e *Engine) claim(tx *ledger.Tx, q model.Quest, p *model.QuestProgress) error {
	switch {
	case !p.Completed:
		return errs.ErrNotCompleted
	case p.Claimed:
		return errs.ErrAlreadyClaimed
	}
	if q.Weekly() && e.weeklyClaims(tx) >= 1+tx.Account().WeeklyQuestSlots {
		return errs.ErrQuestSlotsFull
	}
	if q.IsPackReward {
		if err := tx.GrantPack(q.RewardPackType, 1); err != nil {
			return err
		}
	} else if q.RewardAmount > 0 {
		if err := tx.CreditTokens(q.RewardAmount); err != nil {
			return err
		}
	}
	p.Claimed = true
	p.UpdatedAt = tx.Now()
	tx.Touch()
	tx.Emit(model.EventQuestRewardClaimed, map[string]any{
		"quest_id":       q.ID,
		"reward_amount":  q.RewardAmount,
		"is_pack_reward": q.IsPackReward,
	})
	return nil
}

// UpdateProgress adds delta to the player's progress on a quest, clamped at the target.
// It backs administrative progress recording and is not blocked by Pause.
func (e *Engine) UpdateProgress(ctx context.Context, player common.Address, questID, delta uint32) (model.QuestProgress, error) {
	if delta == 0 {
		return model.QuestProgress{}, fmt.Errorf("%w: progress delta must be positive", errs.ErrInvalidInput)
	}
	q, err := e.cat.GetQuest(questID)
	if err != nil {
		return model.QuestProgress{}, err
	}
	if !q.Active {
		return model.QuestProgress{}, errs.ErrInactive
	}
	var out model.QuestProgress
	err = e.led.Update(ctx, player, func(tx *ledger.Tx) error {
		out = *e.addProgress(tx, q, delta)
		return nil
	})
	return out, err
}

// ClaimQuest pays a completed quest's reward once per window.
func (e *Engine) ClaimQuest(ctx context.Context, player common.Address, questID uint32) (model.QuestProgress, error) {
	if err := e.guard(); err != nil {
		return model.QuestProgress{}, err
	}
	q, err := e.cat.GetQuest(questID)
	if err != nil {
		return model.QuestProgress{}, err
	}
	var out model.QuestProgress
	err = e.led.Update(ctx, player, func(tx *ledger.Tx) error {
		p := e.progressFor(tx, q)
		if err := e.claim(tx, q, p); err != nil {
			return err
		}
		out = *p
		return nil
	})
	return out, err
}

// CompleteDailyCheckin completes and claims every active daily check-in quest in one commit.
func (e *Engine) CompleteDailyCheckin(ctx context.Context, player common.Address) ([]model.QuestProgress, error) {
	if err := e.guard(); err != nil {
		return nil, err
	}
	quests := e.cat.ActiveQuests(model.QuestDailyCheckin)
	if len(quests) == 0 {
		return nil, errs.ErrNotFound
	}
	var out []model.QuestProgress
	err := e.led.Update(ctx, player, func(tx *ledger.Tx) error {
		out = out[:0]
		for _, q := range quests {
			p := e.progressFor(tx, q)
			if p.Claimed {
				continue
			}
			p = e.addProgress(tx, q, q.Target)
			if err := e.claim(tx, q, p); err != nil {
				return err
			}
			out = append(out, *p)
		}
		if len(out) == 0 {
			return errs.ErrAlreadyClaimed
		}
		return nil
	})
	return out, err
}

// Quests returns the player's view of every active quest in its current window.
// Records from past windows are shown as fresh progress.
func (e *Engine) Quests(player common.Address) []QuestStatus {
	acct := e.led.Account(player)
	now := e.led.Now()
	qs := e.cat.ActiveQuests("")
	out := make([]QuestStatus, 0, len(qs))
	for _, q := range qs {
		ws := e.led.Anchor().WindowStart(now, q.WindowDays)
		st := QuestStatus{Quest: q, Progress: model.QuestProgress{QuestID: q.ID, WindowStart: ws}}
		if p := acct.Quests[q.ID]; p != nil && p.WindowStart.Equal(ws) {
			st.Progress = *p
		}
		out = append(out, st)
	}
	return out
}

// NextQuestReset returns when the window of q containing now ends. Quests that never
// reset return the zero time.
func (e *Engine) NextQuestReset(q model.Quest) time.Time {
	if q.WindowDays == 0 {
		return time.Time{}
	}
	a := e.led.Anchor()
	ws := a.WindowStart(e.led.Now(), q.WindowDays)
	return ws.AddDate(0, 0, int(q.WindowDays))
}
