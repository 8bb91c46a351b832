package limiter

import (
	"context"
	"testing"
	"time"
)

func TestMemory_BlocksAfterMaxFailsAndRecovers(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 3, BlockFor: 5 * time.Minute})
	m.now = func() time.Time { return now }
	ip := HashIP("10.0.0.1")

	for i := 0; i < 2; i++ {
		if blocked, _, _ := m.Failure(ctx, addr, ip); blocked {
			t.Fatalf("blocked after %d failures", i+1)
		}
	}
	blocked, dur, err := m.Failure(ctx, addr, ip)
	if err != nil || !blocked || dur != 5*time.Minute {
		t.Fatalf("third failure: blocked=%v dur=%v err=%v", blocked, dur, err)
	}
	if ok, retry, _ := m.Allow(ctx, addr, ip); ok || retry != 5*time.Minute {
		t.Fatalf("Allow while blocked: ok=%v retry=%v", ok, retry)
	}
	if ok, _, _ := m.Allow(ctx, addr, HashIP("10.0.0.2")); !ok {
		t.Fatalf("other ip must not be blocked")
	}

	now = now.Add(6 * time.Minute)
	if ok, _, _ := m.Allow(ctx, addr, ip); !ok {
		t.Fatalf("block must expire")
	}
}

func TestMemory_WindowResetsCount(t *testing.T) {
	ctx := context.Background()
	now := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 2, BlockFor: time.Minute})
	m.now = func() time.Time { return now }
	ip := HashIP("10.0.0.1")

	_, _, _ = m.Failure(ctx, addr, ip)
	now = now.Add(2 * time.Minute)
	if blocked, _, _ := m.Failure(ctx, addr, ip); blocked {
		t.Fatalf("failure outside window must start a new count")
	}
}

func TestMemory_SuccessResets(t *testing.T) {
	ctx := context.Background()
	m := NewMemory(Policy{Window: time.Minute, MaxFails: 2, BlockFor: time.Minute})
	ip := HashIP("10.0.0.1")

	_, _, _ = m.Failure(ctx, addr, ip)
	if err := m.Success(ctx, addr, ip); err != nil {
		t.Fatal(err)
	}
	if blocked, _, _ := m.Failure(ctx, addr, ip); blocked {
		t.Fatalf("success must reset the count")
	}
}
