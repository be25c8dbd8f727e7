package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestWaitForNonPositiveDuration(t *testing.T) {
	if err := WaitFor(context.Background(), 0); err != nil {
		t.Fatalf("WaitFor(0) = %v, want nil", err)
	}
	if err := WaitFor(context.Background(), -time.Second); err != nil {
		t.Fatalf("WaitFor(-1s) = %v, want nil", err)
	}
}

func TestWaitForCompletesSleep(t *testing.T) {
	originalSleep := sleep
	slept := time.Duration(0)
	sleep = func(d time.Duration) { slept = d }
	defer func() { sleep = originalSleep }()

	if err := WaitFor(context.Background(), 5*time.Second); err != nil {
		t.Fatalf("WaitFor() = %v, want nil", err)
	}
	if slept != 5*time.Second {
		t.Fatalf("slept %v, want 5s", slept)
	}
}

func TestWaitForCancelledContext(t *testing.T) {
	originalSleep := sleep
	sleep = func(time.Duration) { select {} }
	defer func() { sleep = originalSleep }()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := WaitFor(ctx, time.Minute); !errors.Is(err, context.Canceled) {
		t.Fatalf("WaitFor() = %v, want context.Canceled", err)
	}
}
