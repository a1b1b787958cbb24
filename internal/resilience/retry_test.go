package resilience

import (
	"context"
	"errors"
	"testing"
	"time"
)

func fastRetryConfig(attempts int) *RetryConfig {
	return &RetryConfig{
		MaxAttempts:    attempts,
		InitialBackoff: time.Millisecond,
		MaxBackoff:     time.Millisecond,
		Multiplier:     1.0,
	}
}

func TestRetrySucceedsFirstAttempt(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return nil
	}, fastRetryConfig(3), nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 1 {
		t.Errorf("expected 1 call, got %d", calls)
	}
}

func TestRetryEventualSuccess(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		if calls < 3 {
			return errors.New("transient")
		}
		return nil
	}, fastRetryConfig(5), nil)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryExhaustsAttempts(t *testing.T) {
	calls := 0
	wantErr := errors.New("persistent")
	err := Retry(func() error {
		calls++
		return wantErr
	}, fastRetryConfig(3), nil)

	if !errors.Is(err, wantErr) {
		t.Fatalf("expected last error returned, got %v", err)
	}
	if calls != 3 {
		t.Errorf("expected 3 calls, got %d", calls)
	}
}

func TestRetryZeroAttemptsStillRunsOnce(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return errors.New("boom")
	}, fastRetryConfig(0), nil)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected exactly 1 call with an unset attempt budget, got %d", calls)
	}
}

func TestRetryStopsOnNonRetryableError(t *testing.T) {
	calls := 0
	err := Retry(func() error {
		calls++
		return errors.New("bad request")
	}, fastRetryConfig(5), IsRetryableNetworkError)

	if err == nil {
		t.Fatal("expected error")
	}
	if calls != 1 {
		t.Errorf("expected no retries of a non-retryable error, got %d calls", calls)
	}
}

func TestIsRetryableNetworkError(t *testing.T) {
	cases := []struct {
		err  error
		want bool
	}{
		{nil, false},
		{errors.New("connection refused"), true},
		{errors.New("read tcp 1.2.3.4:80: connection reset by peer"), true},
		{errors.New("context deadline exceeded"), true},
		{errors.New("i/o timeout"), true},
		{errors.New("rate limit exceeded"), true},
		{errors.New("invalid api key"), false},
		{errors.New("malformed payload"), false},
	}

	for _, tc := range cases {
		if got := IsRetryableNetworkError(tc.err); got != tc.want {
			t.Errorf("IsRetryableNetworkError(%v) = %v, want %v", tc.err, got, tc.want)
		}
	}
}

func TestReconnectEventualSuccess(t *testing.T) {
	attempts := 0
	config := &ReconnectConfig{
		MaxAttempts: 5,
		Backoff:     time.Millisecond,
		Multiplier:  1.0,
		MaxBackoff:  time.Millisecond,
	}

	err := Reconnect(context.Background(), func() error {
		attempts++
		if attempts < 3 {
			return errors.New("not yet")
		}
		return nil
	}, config)

	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if attempts != 3 {
		t.Errorf("expected 3 attempts, got %d", attempts)
	}
}

func TestReconnectGivesUp(t *testing.T) {
	config := &ReconnectConfig{
		MaxAttempts: 2,
		Backoff:     time.Millisecond,
		Multiplier:  1.0,
		MaxBackoff:  time.Millisecond,
	}

	err := Reconnect(context.Background(), func() error {
		return errors.New("down")
	}, config)
	if err == nil {
		t.Fatal("expected error after exhausting attempts")
	}
}

func TestReconnectHonorsContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := Reconnect(ctx, func() error {
		return errors.New("down")
	}, DefaultReconnectConfig())
	if !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
