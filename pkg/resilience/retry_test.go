package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastRetryConfig(3), func() error {
		calls++
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times, want 1", calls)
	}
}

func TestRetryRecoversAfterFailures(t *testing.T) {
	calls := 0
	err := Retry(context.Background(), "op", fastRetryConfig(3), func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	permanent := errors.New("permanent")
	err := Retry(context.Background(), "op", fastRetryConfig(3), func() error {
		calls++
		return permanent
	})
	if err == nil {
		t.Fatal("expected failure after exhausting attempts")
	}
	if !errors.Is(err, permanent) {
		t.Errorf("final error must wrap the last attempt's error, got %v", err)
	}
	if calls != 3 {
		t.Errorf("fn called %d times, want 3", calls)
	}
}

func TestRetryStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	err := Retry(ctx, "op", RetryConfig{MaxAttempts: 10, InitialDelay: time.Hour}, func() error {
		calls++
		cancel()
		return errors.New("transient")
	})
	if err == nil {
		t.Fatal("expected cancellation error")
	}
	if !errors.Is(err, context.Canceled) {
		t.Errorf("error must wrap context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fn called %d times after cancellation, want 1", calls)
	}
}

func TestComputeDelayBounded(t *testing.T) {
	cfg := defaultRetryConfig()
	for attempt := 1; attempt <= 20; attempt++ {
		d := computeDelay(attempt, cfg)
		if d < 0 {
			t.Fatalf("attempt %d: negative delay %v", attempt, d)
		}
		if d > cfg.MaxDelay {
			t.Fatalf("attempt %d: delay %v exceeds cap %v", attempt, d, cfg.MaxDelay)
		}
	}
}
