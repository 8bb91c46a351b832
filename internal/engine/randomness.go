package engine

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/rng"
)

// resubmitParallelism bounds concurrent provider calls during recovery.
const resubmitParallelism = 8

// FulfillRandomness resolves a pending request. Deliveries for requests that are already
// fulfilled return nil and change nothing.
func (e *Engine) FulfillRandomness(ctx context.Context, id uuid.UUID, words []rng.Word) error {
	if len(words) == 0 {
		return fmt.Errorf("%w: no random words", errs.ErrInvalidInput)
	}
	err := e.resolve(ctx, id, words[0], false)
	if errors.Is(err, errs.ErrAlreadyResolved) {
		e.log.Debug("duplicate randomness delivery ignored", zap.Stringer("request", id))
		return nil
	}
	return err
}

// EmergencyComplete resolves a stuck request with locally generated randomness.
func (e *Engine) EmergencyComplete(ctx context.Context, id uuid.UUID) (model.RandomnessRequest, error) {
	words, err := rng.NewWords(1)
	if err != nil {
		return model.RandomnessRequest{}, err
	}
	e.log.Warn("emergency completion", zap.Stringer("request", id))
	if err := e.resolve(ctx, id, words[0], true); err != nil {
		return model.RandomnessRequest{}, err
	}
	return e.led.Request(ctx, id)
}

func (e *Engine) resolve(ctx context.Context, id uuid.UUID, w rng.Word, emergency bool) error {
	req, err := e.led.Request(ctx, id)
	if err != nil {
		return err
	}
	if req.Status != model.StatusPending {
		return errs.ErrAlreadyResolved
	}
	return e.led.Update(ctx, req.Player, func(tx *ledger.Tx) error {
		// Re-read under the player's lock; a concurrent delivery may have won.
		cur, err := e.led.Request(ctx, id)
		if err != nil {
			return err
		}
		if cur.Status != model.StatusPending {
			return errs.ErrAlreadyResolved
		}
		cur.Emergency = emergency

		switch cur.Kind {
		case model.KindPackOpening:
			if cur, err = e.resolvePack(tx, cur, w); err != nil {
				return err
			}
		case model.KindAdventure:
			e.resolveAdventure(tx, cur, w)
		default:
			return fmt.Errorf("unknown request kind %q", cur.Kind)
		}
		if emergency {
			tx.Emit(model.EventEmergencyCompleted, map[string]any{
				"request_id": cur.ID.String(), "kind": string(cur.Kind),
			})
		}
		return nil
	})
}

// Recover re-requests every pending request. Run it once on start-up.
func (e *Engine) Recover(ctx context.Context) (int, error) {
	return e.resubmit(ctx, e.led.Pending(time.Time{}))
}

// ResubmitStale re-requests pending requests older than age.
func (e *Engine) ResubmitStale(ctx context.Context, age time.Duration) (int, error) {
	return e.resubmit(ctx, e.led.Pending(e.led.Now().Add(-age)))
}

func (e *Engine) resubmit(ctx context.Context, pending []model.RandomnessRequest) (int, error) {
	if len(pending) == 0 {
		return 0, nil
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(resubmitParallelism)
	for _, r := range pending {
		g.Go(func() error {
			err := e.rng.RequestRandomness(gctx, rng.Request{ID: r.ID, NumWords: max(r.NumWords, 1)})
			if err != nil {
				return fmt.Errorf("resubmit %s: %w", r.ID, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	e.log.Info("pending randomness resubmitted", zap.Int("count", len(pending)))
	return len(pending), nil
}
