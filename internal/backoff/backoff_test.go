package backoff

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastPolicy(attempts int) Policy {
	return Policy{MaxAttempts: attempts, BaseDelay: time.Millisecond, Multiplier: 2, MaxDelay: 5 * time.Millisecond}
}

func TestDo_SucceedsAfterRetries(t *testing.T) {
	calls := 0
	err := fastPolicy(5).Do(context.Background(), "flaky", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_Exhausted(t *testing.T) {
	boom := errors.New("boom")
	calls := 0
	err := fastPolicy(3).Do(context.Background(), "always", func(ctx context.Context) error {
		calls++
		return boom
	})
	if !errors.Is(err, ErrExhausted) {
		t.Errorf("expected ErrExhausted, got %v", err)
	}
	if !errors.Is(err, boom) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
	if calls != 3 {
		t.Errorf("calls = %d, want 3", calls)
	}
}

func TestDo_Permanent(t *testing.T) {
	bad := errors.New("bad request")
	calls := 0
	err := fastPolicy(5).Do(context.Background(), "perm", func(ctx context.Context) error {
		calls++
		return Permanent(bad)
	})
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
	if errors.Is(err, ErrExhausted) {
		t.Error("permanent failure should not report exhaustion")
	}
	if !errors.Is(err, bad) {
		t.Errorf("expected wrapped cause, got %v", err)
	}
}

func TestDo_ContextCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	p := Policy{MaxAttempts: 10, BaseDelay: 50 * time.Millisecond, Multiplier: 1}
	calls := 0
	err := p.Do(ctx, "cancel", func(ctx context.Context) error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}

func TestDelay(t *testing.T) {
	p := Policy{BaseDelay: 100 * time.Millisecond, Multiplier: 2, MaxDelay: time.Second}
	tests := []struct {
		n    uint
		want time.Duration
	}{
		{0, 100 * time.Millisecond},
		{1, 200 * time.Millisecond},
		{2, 400 * time.Millisecond},
		{3, 800 * time.Millisecond},
		{4, time.Second},
		{10, time.Second},
	}
	for _, tt := range tests {
		if got := p.Delay(tt.n); got != tt.want {
			t.Errorf("Delay(%d) = %v, want %v", tt.n, got, tt.want)
		}
	}
}

type hinted struct{ d time.Duration }

func (h hinted) Error() string             { return "rate limited" }
func (h hinted) RetryAfter() time.Duration { return h.d }

func TestWait_HonorsRetryAfterAndJitter(t *testing.T) {
	p := Policy{BaseDelay: 10 * time.Millisecond, Multiplier: 2, Jitter: 5 * time.Millisecond}
	for i := 0; i < 50; i++ {
		d := p.wait(0, hinted{d: time.Second})
		if d < time.Second || d > time.Second+5*time.Millisecond {
			t.Fatalf("wait = %v, want within [1s, 1.005s]", d)
		}
		d = p.wait(1, errors.New("x"))
		if d < 20*time.Millisecond || d > 25*time.Millisecond {
			t.Fatalf("wait = %v, want within [20ms, 25ms]", d)
		}
	}
}
