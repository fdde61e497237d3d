package llmstream

import (
	"context"
	"testing"
	"time"
)

func TestRetryPolicyDelay(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            false,
	}

	delays := []time.Duration{
		1 * time.Second,
		2 * time.Second,
		4 * time.Second,
		8 * time.Second,
		16 * time.Second,
	}

	for i, expected := range delays {
		got := policy.Delay(i)
		if got != expected {
			t.Errorf("attempt %d: expected %v, got %v", i, expected, got)
		}
	}
}

func TestRetryPolicyDelayWithMaxCap(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          5.0,
		Jitter:            false,
	}

	// Attempt 10 would be 1024s without the cap.
	got := policy.Delay(10)
	if got != 5*time.Second {
		t.Errorf("expected 5s (capped), got %v", got)
	}
}

func TestRetryPolicyDelayWithJitter(t *testing.T) {
	policy := RetryPolicy{
		BaseDelay:         1.0,
		BackoffMultiplier: 2.0,
		MaxDelay:          60.0,
		Jitter:            true,
	}

	// With jitter, delay should be within +/- 50% of base delay.
	for i := 0; i < 100; i++ {
		got := policy.Delay(0)
		if got < 500*time.Millisecond || got > 1500*time.Millisecond {
			t.Errorf("jittered delay out of range: %v", got)
		}
	}
}

func TestRetrySuccess(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	callCount := 0
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		if callCount < 3 {
			return "", ErrorFromStatusCode(503, "server busy", "", nil)
		}
		return "success", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "success" {
		t.Errorf("expected success, got %q", result)
	}
	if callCount != 3 {
		t.Errorf("expected 3 calls, got %d", callCount)
	}
}

func TestRetryNonRetryableError(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		callCount++
		return 0, ErrorFromStatusCode(401, "bad key", "", nil)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("non-retryable error should not be retried, got %d calls", callCount)
	}
	if _, ok := err.(*AuthenticationError); !ok {
		t.Errorf("expected *AuthenticationError, got %T", err)
	}
}

func TestRetryExhausted(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001}

	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		callCount++
		return 0, ErrorFromStatusCode(500, "still down", "", nil)
	})
	if err == nil {
		t.Fatal("expected error after exhausting retries")
	}
	if callCount != 3 {
		t.Errorf("expected 1 initial + 2 retries = 3 calls, got %d", callCount)
	}
}

func TestRetryHonorsRetryAfterHint(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 10.0, BackoffMultiplier: 2, MaxDelay: 30.0}

	after := 0.005
	callCount := 0
	start := time.Now()
	result, err := Retry(context.Background(), policy, func(ctx context.Context) (string, error) {
		callCount++
		if callCount == 1 {
			return "", ErrorFromStatusCode(429, "rate limited", "", &after)
		}
		return "ok", nil
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result != "ok" {
		t.Errorf("expected ok, got %q", result)
	}
	// The hint (5ms) should replace the 10s base delay.
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("retry ignored Retry-After hint, took %v", elapsed)
	}
}

func TestRetryGivesUpWhenHintExceedsMaxDelay(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 1.0}

	after := 120.0
	callCount := 0
	_, err := Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		callCount++
		return 0, ErrorFromStatusCode(429, "rate limited", "", &after)
	})
	if err == nil {
		t.Fatal("expected error")
	}
	if callCount != 1 {
		t.Errorf("expected immediate give-up, got %d calls", callCount)
	}
}

func TestRetryContextCancellation(t *testing.T) {
	policy := RetryPolicy{MaxRetries: 3, BaseDelay: 10.0, BackoffMultiplier: 1, MaxDelay: 10.0}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(10 * time.Millisecond)
		cancel()
	}()

	_, err := Retry(ctx, policy, func(ctx context.Context) (int, error) {
		return 0, ErrorFromStatusCode(500, "down", "", nil)
	})
	if _, ok := err.(*RequestTimeoutError); !ok {
		t.Errorf("expected *RequestTimeoutError on cancellation, got %T", err)
	}
}

func TestRetryOnRetryCallback(t *testing.T) {
	var attempts []int
	policy := RetryPolicy{
		MaxRetries: 2, BaseDelay: 0.001, BackoffMultiplier: 1, MaxDelay: 0.001,
		OnRetry: func(err error, attempt int, delay time.Duration) {
			attempts = append(attempts, attempt)
		},
	}

	_, _ = Retry(context.Background(), policy, func(ctx context.Context) (int, error) {
		return 0, ErrorFromStatusCode(503, "busy", "", nil)
	})
	if len(attempts) != 2 || attempts[0] != 1 || attempts[1] != 2 {
		t.Errorf("expected OnRetry attempts [1 2], got %v", attempts)
	}
}
