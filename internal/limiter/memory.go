package limiter

import (
	"context"
	"sync"
	"time"
)

var _ Limiter = (*Memory)(nil)

type attempt struct {
	fails        int
	first        time.Time
	blockedUntil time.Time
}

// Memory is an in-process limiter used when the service runs without a database.
type Memory struct {
	mu     sync.Mutex
	policy Policy
	now    func() time.Time
	seen   map[string]*attempt
}

// NewMemory constructs an in-memory limiter.
func NewMemory(p Policy) *Memory {
	return &Memory{policy: p, now: time.Now, seen: map[string]*attempt{}}
}

func key(address string, ipHash []byte) string { return address + "|" + string(ipHash) }

// Allow reports whether login is currently allowed and a retry-after duration.
func (m *Memory) Allow(_ context.Context, address string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.seen[key(address, ipHash)]
	if !ok {
		return true, 0, nil
	}
	if now := m.now(); a.blockedUntil.After(now) {
		return false, a.blockedUntil.Sub(now), nil
	}
	return true, 0, nil
}

// Success forgets the pair.
func (m *Memory) Success(_ context.Context, address string, ipHash []byte) error {
	m.mu.Lock()
	delete(m.seen, key(address, ipHash))
	m.mu.Unlock()
	return nil
}

// Failure records a failed attempt inside the sliding window.
func (m *Memory) Failure(_ context.Context, address string, ipHash []byte) (bool, time.Duration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	k := key(address, ipHash)
	a, ok := m.seen[k]
	if !ok || now.Sub(a.first) > m.policy.Window {
		a = &attempt{first: now, blockedUntil: a.blockedUntilOrZero()}
		m.seen[k] = a
	}
	a.fails++
	if a.fails < m.policy.MaxFails {
		return false, 0, nil
	}
	a.blockedUntil = now.Add(m.policy.BlockFor)
	return true, m.policy.BlockFor, nil
}

func (a *attempt) blockedUntilOrZero() time.Time {
	if a == nil {
		return time.Time{}
	}
	return a.blockedUntil
}
