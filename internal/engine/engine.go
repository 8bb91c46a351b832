// Package engine implements the game state machines on top of the ledger and catalog:
// two-phase pack opening, adventures, quests and administrative recovery.
package engine

import (
	"context"
	"sync/atomic"

	"github.com/gofrs/uuid/v5"
	"go.uber.org/zap"

	"github.com/and161185/avamon/internal/catalog"
	"github.com/and161185/avamon/internal/errs"
	"github.com/and161185/avamon/internal/ledger"
	"github.com/and161185/avamon/internal/model"
	"github.com/and161185/avamon/internal/rng"
)

var _ rng.Fulfiller = (*Engine)(nil)

// Engine drives pack, adventure and quest flows.
type Engine struct {
	cat *catalog.Registry
	led *ledger.Ledger
	rng rng.Provider
	log *zap.Logger

	paused atomic.Bool
}

// New wires an engine. The provider must deliver words back through e.FulfillRandomness.
func New(cat *catalog.Registry, led *ledger.Ledger, provider rng.Provider, log *zap.Logger) *Engine {
	return &Engine{cat: cat, led: led, rng: provider, log: log}
}

// Catalog returns the registry the engine draws from.
func (e *Engine) Catalog() *catalog.Registry { return e.cat }

// Ledger returns the underlying player ledger.
func (e *Engine) Ledger() *ledger.Ledger { return e.led }

func (e *Engine) guard() error {
	if e.paused.Load() {
		return errs.ErrPaused
	}
	return nil
}

// Pause rejects further player mutations until Unpause. Reads and randomness delivery continue.
func (e *Engine) Pause() {
	if e.paused.CompareAndSwap(false, true) {
		e.log.Warn("game paused")
	}
}

// Unpause resumes player mutations.
func (e *Engine) Unpause() {
	if e.paused.CompareAndSwap(true, false) {
		e.log.Info("game unpaused")
	}
}

// Paused reports the pause flag.
func (e *Engine) Paused() bool { return e.paused.Load() }

// request hands a committed pending request to the provider. A provider failure leaves the
// request pending for the resubmission sweep.
func (e *Engine) request(ctx context.Context, r model.RandomnessRequest) {
	err := e.rng.RequestRandomness(ctx, rng.Request{ID: r.ID, NumWords: max(r.NumWords, 1)})
	if err != nil {
		e.log.Warn("randomness request failed, left pending",
			zap.Stringer("request", r.ID),
			zap.String("kind", string(r.Kind)),
			zap.Error(err),
		)
	}
}

// GetRequest returns a randomness request with its status and minted cards.
func (e *Engine) GetRequest(ctx context.Context, id uuid.UUID) (model.RandomnessRequest, error) {
	return e.led.Request(ctx, id)
}
