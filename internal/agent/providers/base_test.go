package providers

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNewRetryPolicyDefaults(t *testing.T) {
	p := newRetryPolicy(0, 0)
	if p.maxAttempts != 3 {
		t.Errorf("maxAttempts = %d, want 3", p.maxAttempts)
	}
	if p.baseDelay != time.Second {
		t.Errorf("baseDelay = %v, want %v", p.baseDelay, time.Second)
	}

	p = newRetryPolicy(5, 10*time.Millisecond)
	if p.maxAttempts != 5 {
		t.Errorf("maxAttempts = %d, want 5", p.maxAttempts)
	}
	if p.baseDelay != 10*time.Millisecond {
		t.Errorf("baseDelay = %v, want %v", p.baseDelay, 10*time.Millisecond)
	}
}

func TestRetryPolicySucceedsFirstAttempt(t *testing.T) {
	p := newRetryPolicy(3, time.Millisecond)

	calls := 0
	err := p.do(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestRetryPolicyRetriesUntilSuccess(t *testing.T) {
	p := newRetryPolicy(3, time.Millisecond)

	calls := 0
	err := p.do(context.Background(), func(error) bool { return true }, func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("do() error = %v", err)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestRetryPolicyStopsOnNonRetryable(t *testing.T) {
	p := newRetryPolicy(3, time.Millisecond)

	permanent := errors.New("bad request")
	calls := 0
	err := p.do(context.Background(), func(err error) bool { return false }, func() error {
		calls++
		return permanent
	})
	if !errors.Is(err, permanent) {
		t.Fatalf("do() error = %v, want %v", err, permanent)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
}

func TestRetryPolicyExhaustsAttempts(t *testing.T) {
	p := newRetryPolicy(3, time.Millisecond)

	transient := errors.New("still down")
	calls := 0
	err := p.do(context.Background(), func(error) bool { return true }, func() error {
		calls++
		return transient
	})
	if !errors.Is(err, transient) {
		t.Fatalf("do() error = %v, want %v", err, transient)
	}
	if calls != 3 {
		t.Errorf("op called %d times, want 3", calls)
	}
}

func TestRetryPolicyCancelledContext(t *testing.T) {
	p := newRetryPolicy(3, time.Millisecond)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	err := p.do(ctx, func(error) bool { return true }, func() error {
		calls++
		return nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("do() error = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("op called %d times, want 0", calls)
	}
}

func TestRetryPolicyCancelDuringBackoff(t *testing.T) {
	p := newRetryPolicy(3, time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	calls := 0
	start := time.Now()
	err := p.do(ctx, func(error) bool { return true }, func() error {
		calls++
		return errors.New("transient")
	})
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("do() error = %v, want context.DeadlineExceeded", err)
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1", calls)
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("do() blocked for %v, should abort during backoff", elapsed)
	}
}

func TestRetryPolicyNilClassifier(t *testing.T) {
	p := newRetryPolicy(3, time.Millisecond)

	calls := 0
	err := p.do(context.Background(), nil, func() error {
		calls++
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("do() expected error")
	}
	if calls != 1 {
		t.Errorf("op called %d times, want 1; nil classifier must not retry", calls)
	}
}
