package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func retryOnlyPolicy() Policy {
	return Policy{
		MaxAttempts:    3,
		InitialBackoff: 1 * time.Millisecond,
		MaxBackoff:     2 * time.Millisecond,
		Multiplier:     2,
		BreakerEnabled: false,
	}
}

func TestDoRetriesRetryableFailure(t *testing.T) {
	exec := NewExecutor(retryOnlyPolicy())

	attempts := 0
	errTemp := errors.New("temporary")
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		if attempts < 3 {
			return errTemp
		}
		return nil
	}, func(err error) Verdict {
		return Verdict{Retry: errors.Is(err, errTemp), CountFailure: true}
	})
	if err != nil {
		t.Fatalf("expected success after retries, got %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts, got %d", attempts)
	}
}

func TestDoStopsOnPermanentFailure(t *testing.T) {
	exec := NewExecutor(retryOnlyPolicy())

	attempts := 0
	errPermanent := errors.New("permanent")
	err := exec.Do(context.Background(), "op", func(context.Context) error {
		attempts++
		return errPermanent
	}, func(error) Verdict {
		return Verdict{Retry: false, CountFailure: false}
	})
	if !errors.Is(err, errPermanent) {
		t.Fatalf("expected permanent error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected 1 attempt, got %d", attempts)
	}
}

func TestDoOpensCircuitAfterFailures(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:         1,
		InitialBackoff:      1 * time.Millisecond,
		MaxBackoff:          1 * time.Millisecond,
		Multiplier:          2,
		BreakerEnabled:      true,
		BreakerMinRequests:  2,
		BreakerFailureRatio: 0.5,
		BreakerOpenTimeout:  50 * time.Millisecond,
		BreakerHalfOpenMax:  1,
	})

	errDown := errors.New("service down")
	classify := func(error) Verdict {
		return Verdict{Retry: false, CountFailure: true}
	}
	for i := 0; i < 3; i++ {
		_ = exec.Do(context.Background(), "op", func(context.Context) error {
			return errDown
		}, classify)
	}

	err := exec.Do(context.Background(), "op", func(context.Context) error {
		return nil
	}, classify)
	if !IsCircuitOpen(err) {
		t.Fatalf("expected open circuit, got %v", err)
	}
}

func TestDoRespectsContextCancellation(t *testing.T) {
	exec := NewExecutor(Policy{
		MaxAttempts:    5,
		InitialBackoff: 50 * time.Millisecond,
		MaxBackoff:     50 * time.Millisecond,
		Multiplier:     2,
		BreakerEnabled: false,
	})

	ctx, cancel := context.WithCancel(context.Background())
	errTemp := errors.New("temporary")
	attempts := 0
	err := exec.Do(ctx, "op", func(context.Context) error {
		attempts++
		cancel()
		return errTemp
	}, func(error) Verdict {
		return Verdict{Retry: true, CountFailure: true}
	})
	if !errors.Is(err, errTemp) {
		t.Fatalf("expected last error, got %v", err)
	}
	if attempts != 1 {
		t.Fatalf("expected cancellation to stop retries, got %d attempts", attempts)
	}
}
