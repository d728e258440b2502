package debrid

import "testing"

func TestRateLimiterThrottleReachesCap(t *testing.T) {
	rl := newRateLimiter(100, 2000)
	for i := 0; i < 10; i++ {
		rl.onThrottled(0)
	}
	if got := rl.currentIntervalMs(); got != 2000 {
		t.Fatalf("expected interval capped at 2000ms after 10 throttles, got %d", got)
	}
}

func TestRateLimiterSuccessReturnsToFloor(t *testing.T) {
	rl := newRateLimiter(100, 2000)
	for i := 0; i < 10; i++ {
		rl.onThrottled(0)
	}
	for i := 0; i < 200; i++ {
		rl.onSuccess()
	}
	if got := rl.currentIntervalMs(); got != 100 {
		t.Fatalf("expected interval floored at 100ms after 200 successes, got %d", got)
	}
}

func TestRateLimiterNeverBelowMin(t *testing.T) {
	rl := newRateLimiter(100, 2000)
	rl.onSuccess()
	rl.onSuccess()
	if got := rl.currentIntervalMs(); got != 100 {
		t.Fatalf("expected interval floored at min, got %d", got)
	}
}
