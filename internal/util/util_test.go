package util

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
	"time"
)

func TestRetry(t *testing.T) {
	attempts := 0
	targetAttempts := 3

	err := Retry(context.Background(), 5, 0, func() error {
		attempts++
		if attempts < targetAttempts {
			return errors.New("transient error")
		}
		return nil
	})

	if err != nil {
		t.Fatalf("Retry returned unexpected error: %v", err)
	}
	if attempts != targetAttempts {
		t.Errorf("Retry called fn %d times, want %d", attempts, targetAttempts)
	}
}

func TestRetryFixedAllFail(t *testing.T) {
	attempts := 0
	maxAttempts := 3

	err := RetryFixed(context.Background(), maxAttempts, time.Millisecond, func() error {
		attempts++
		return errors.New("persistent error")
	})

	if err == nil {
		t.Fatal("RetryFixed should return error when all attempts fail")
	}
	if attempts != maxAttempts {
		t.Errorf("RetryFixed called fn %d times, want %d", attempts, maxAttempts)
	}
}

func TestRetryStopsOnPermanent(t *testing.T) {
	sentinel := errors.New("bad input")
	attempts := 0
	err := RetryFixed(context.Background(), 5, 0, func() error {
		attempts++
		return Permanent(sentinel)
	})
	if attempts != 1 {
		t.Errorf("attempts = %d, want 1", attempts)
	}
	if err != sentinel {
		t.Errorf("err = %v, want the unwrapped sentinel", err)
	}
}

func TestRetryHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := RetryFixed(ctx, 3, time.Hour, func() error { return errors.New("x") })
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestNewLimiter(t *testing.T) {
	if lim := NewLimiter(60); lim.Burst() != 1 {
		t.Errorf("Burst = %d, want 1", lim.Burst())
	}
	if lim := NewLimiter(0); !lim.Allow() || !lim.Allow() {
		t.Error("unlimited limiter refused a request")
	}
}

func TestLoggerFormat(t *testing.T) {
	var buf bytes.Buffer
	newLogger(&buf, "debug", "text").Debug("hello", "date", "2025-07-30")
	if !strings.Contains(buf.String(), "date=2025-07-30") {
		t.Errorf("text output = %q", buf.String())
	}
	buf.Reset()
	newLogger(&buf, "warn", "json").Info("hidden")
	if buf.Len() != 0 {
		t.Errorf("info logged at warn level: %q", buf.String())
	}
}

func TestPreviousDayAndMonth(t *testing.T) {
	// 03:00 UTC on Aug 1 is still Jul 31 in Mexico City.
	now := time.Date(2025, 8, 1, 3, 0, 0, 0, time.UTC)
	if got := PreviousDay(now); !got.Equal(time.Date(2025, 7, 30, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PreviousDay = %s", got)
	}
	if got := PreviousMonth(now); !got.Equal(time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PreviousMonth = %s", got)
	}
	jan := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)
	if got := PreviousMonth(jan); !got.Equal(time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("PreviousMonth(January) = %s", got)
	}
}
