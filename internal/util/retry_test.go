package util

import (
	"context"
	"errors"
	"testing"
	"time"
)

// fastRetry keeps backoff delays out of test wall time.
func fastRetry(attempts int) RetryConfig {
	return RetryConfig{
		MaxAttempts:  attempts,
		InitialDelay: time.Millisecond,
		MaxDelay:     5 * time.Millisecond,
		Jitter:       false,
	}
}

func TestRetryFirstAttemptSucceeds(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastRetry(3), func() (string, error) {
		calls++
		return "signaled", nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != "signaled" || calls != 1 {
		t.Errorf("got %q after %d calls, want signaled after 1", got, calls)
	}
}

func TestRetryRecoversFromTransient(t *testing.T) {
	calls := 0
	got, err := Retry(context.Background(), fastRetry(5), func() (int, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("resource temporarily unavailable")
		}
		return calls, nil
	})
	if err != nil {
		t.Fatalf("Retry: %v", err)
	}
	if got != 3 || calls != 3 {
		t.Errorf("succeeded on call %d, want 3", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	transient := errors.New("connection refused")

	_, err := Retry(context.Background(), fastRetry(2), func() (string, error) {
		calls++
		return "", transient
	})
	if !errors.Is(err, transient) {
		t.Errorf("err = %v, want the last transient error", err)
	}
	if calls != 2 {
		t.Errorf("calls = %d, want 2", calls)
	}
}

func TestRetryStopsOnNonRetryable(t *testing.T) {
	calls := 0
	_, err := Retry(context.Background(), fastRetry(5), func() (string, error) {
		calls++
		return "", errors.New("no such process")
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for a non-retryable error", calls)
	}
}

func TestRetryStopsOnMarkedPermanent(t *testing.T) {
	calls := 0
	// The message alone would match a transient pattern; the wrapper
	// must override it.
	boom := MarkPermanent(errors.New("timeout talking to broken agent"))

	_, err := Retry(context.Background(), fastRetry(5), func() (string, error) {
		calls++
		return "", boom
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("calls = %d, want 1 for a permanent error", calls)
	}
}

func TestRetryHonorsCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	_, err := Retry(ctx, fastRetry(3), func() (string, error) {
		calls++
		return "never", nil
	})
	if !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", err)
	}
	if calls != 0 {
		t.Errorf("calls = %d, want 0 when canceled up front", calls)
	}
}

func TestRetrySimpleUsesDefaults(t *testing.T) {
	got, err := RetrySimple(func() (int, error) { return 7, nil })
	if err != nil || got != 7 {
		t.Errorf("RetrySimple = %d, %v", got, err)
	}
}

func TestDefaultIsRetryable(t *testing.T) {
	tests := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("dial: connection refused"), true},
		{errors.New("read timeout"), true},
		{errors.New("registry locked by another process"), true},
		{errors.New("CONNECTION RESET"), true},
		{errors.New("no such process"), false},
		{errors.New("executable file not found"), false},
	}
	for _, tt := range tests {
		if got := DefaultIsRetryable(tt.err); got != tt.want {
			t.Errorf("DefaultIsRetryable(%v) = %v, want %v", tt.err, got, tt.want)
		}
	}
}

func TestMarkPermanent(t *testing.T) {
	original := errors.New("bad state file")
	wrapped := MarkPermanent(original)

	if !IsPermanent(wrapped) {
		t.Error("IsPermanent = false for marked error")
	}
	if !errors.Is(wrapped, original) {
		t.Error("marked error should wrap the original")
	}
	if wrapped.Error() != "bad state file" {
		t.Errorf("message = %q, want original text", wrapped.Error())
	}
	if MarkPermanent(nil) != nil {
		t.Error("MarkPermanent(nil) should stay nil")
	}
	if IsPermanent(original) {
		t.Error("unmarked error should not read as permanent")
	}
}
