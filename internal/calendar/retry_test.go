package calendar

import (
	"context"
	"errors"
	"testing"
	"time"
)

func retryConfig() RetryConfig {
	return RetryConfig{
		MaxAttempts: 3,
		InitialWait: 1 * time.Millisecond,
		MaxWait:     10 * time.Millisecond,
		Multiplier:  2.0,
	}
}

func testRange() TimeRange {
	from := time.Date(2024, 2, 5, 0, 0, 0, 0, time.UTC)
	return TimeRange{From: from, To: from.Add(7 * 24 * time.Hour)}
}

func TestRetry_SucceedsOnFirstAttempt(t *testing.T) {
	mock := NewMockProvider()
	p := WithRetry(mock, retryConfig())

	if _, err := p.List(context.Background(), "tok", testRange()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.CallCount("list") != 1 {
		t.Fatalf("expected 1 call, got %d", mock.CallCount("list"))
	}
}

func TestRetry_TransientThenSuccess(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext("list", &ErrTransient{Err: errors.New("down")})
	p := WithRetry(mock, retryConfig())

	if _, err := p.List(context.Background(), "tok", testRange()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.CallCount("list") != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.CallCount("list"))
	}
}

func TestRetry_AllAttemptsFail(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext("delete",
		&ErrTransient{Err: errors.New("down")},
		&ErrRateLimit{Err: errors.New("slow down")},
		&ErrTransient{Err: errors.New("down")},
	)
	p := WithRetry(mock, retryConfig())

	err := p.Delete(context.Background(), "tok", "ev_1")
	if Classify(err) != KindTransient {
		t.Fatalf("expected transient error, got %v", err)
	}
	if mock.CallCount("delete") != 3 {
		t.Fatalf("expected 3 calls, got %d", mock.CallCount("delete"))
	}
}

func TestRetry_NonRetryableKinds(t *testing.T) {
	tests := []struct {
		name string
		err  error
	}{
		{"not found", &ErrNotFound{RemoteID: "ev_1"}},
		{"unauthenticated", &ErrUnauthenticated{}},
		{"invalid request", &ErrInvalidRequest{Reason: "bad"}},
		{"canceled", context.Canceled},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock := NewMockProvider()
			mock.FailNext("get", tt.err)
			p := WithRetry(mock, retryConfig())

			_, err := p.Get(context.Background(), "tok", "ev_1")
			if !errors.Is(err, tt.err) {
				t.Fatalf("got %v, want %v", err, tt.err)
			}
			if mock.CallCount("get") != 1 {
				t.Fatalf("expected 1 call, got %d", mock.CallCount("get"))
			}
		})
	}
}

func TestRetry_InvalidResponseRetried(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext("list", &ErrInvalidResponse{Err: errors.New("garbage")})
	p := WithRetry(mock, retryConfig())

	if _, err := p.List(context.Background(), "tok", testRange()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mock.CallCount("list") != 2 {
		t.Fatalf("expected 2 calls, got %d", mock.CallCount("list"))
	}
}

func TestRetry_RespectsRetryAfterCap(t *testing.T) {
	r := &RetryProvider{config: retryConfig()}
	wait := r.backoff(0, &ErrRateLimit{RetryAfter: time.Hour})
	if wait != 10*time.Millisecond {
		t.Fatalf("expected RetryAfter capped at MaxWait, got %s", wait)
	}
}

func TestRetry_ContextCancelledDuringBackoff(t *testing.T) {
	mock := NewMockProvider()
	mock.FailNext("list", &ErrTransient{}, &ErrTransient{})
	cfg := retryConfig()
	cfg.InitialWait = time.Second
	cfg.MaxWait = time.Second
	p := WithRetry(mock, cfg)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := p.List(ctx, "tok", testRange())
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if Classify(err) != KindTransient {
		t.Fatalf("expected transient classification, got %s", Classify(err))
	}
}
