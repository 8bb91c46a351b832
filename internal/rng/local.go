package rng

import (
	"context"
	crand "crypto/rand"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/and161185/avamon/internal/errs"
)

// NewWords returns n words read from crypto/rand.
func NewWords(n int) ([]Word, error) {
	out := make([]Word, n)
	for i := range out {
		if _, err := crand.Read(out[i][:]); err != nil {
			return nil, fmt.Errorf("read random word: %w", err)
		}
	}
	return out, nil
}

// Local is an in-process provider that fulfils requests from crypto/rand after Delay.
// Failed deliveries are retried with backoff up to MaxAttempts.
type Local struct {
	Delay       time.Duration
	MaxAttempts int
	Backoff     time.Duration

	log *zap.Logger

	mu     sync.Mutex
	target Fulfiller
	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
}

// NewLocal constructs a local provider. Bind must be called before requests are made.
func NewLocal(log *zap.Logger, delay time.Duration) *Local {
	ctx, cancel := context.WithCancel(context.Background())
	return &Local{
		Delay:       delay,
		MaxAttempts: 5,
		Backoff:     200 * time.Millisecond,
		log:         log,
		ctx:         ctx,
		cancel:      cancel,
	}
}

// Bind sets the fulfiller that receives words.
func (l *Local) Bind(f Fulfiller) {
	l.mu.Lock()
	l.target = f
	l.mu.Unlock()
}

// RequestRandomness schedules asynchronous delivery of req.NumWords words.
func (l *Local) RequestRandomness(_ context.Context, req Request) error {
	l.mu.Lock()
	target := l.target
	l.mu.Unlock()
	if target == nil {
		return errors.New("rng: no fulfiller bound")
	}
	if err := l.ctx.Err(); err != nil {
		return err
	}
	words, err := NewWords(max(req.NumWords, 1))
	if err != nil {
		return err
	}

	l.wg.Add(1)
	go func() {
		defer l.wg.Done()
		l.deliver(target, req, words)
	}()
	return nil
}

func (l *Local) deliver(target Fulfiller, req Request, words []Word) {
	wait := l.Delay
	for attempt := 1; ; attempt++ {
		select {
		case <-l.ctx.Done():
			return
		case <-time.After(wait):
		}
		err := target.FulfillRandomness(l.ctx, req.ID, words)
		if err == nil || errors.Is(err, errs.ErrAlreadyResolved) {
			return
		}
		if attempt >= l.MaxAttempts {
			l.log.Error("rng delivery gave up",
				zap.Stringer("request", req.ID),
				zap.Int("attempts", attempt),
				zap.Error(err),
			)
			return
		}
		l.log.Warn("rng delivery failed, retrying",
			zap.Stringer("request", req.ID),
			zap.Int("attempt", attempt),
			zap.Error(err),
		)
		wait = l.Backoff * time.Duration(attempt)
	}
}

// Close stops pending deliveries and waits for in-flight ones.
func (l *Local) Close() {
	l.cancel()
	l.wg.Wait()
}
