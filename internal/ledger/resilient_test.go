package ledger

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

func testResilience() *Resilience {
	return NewResilience(ResilienceConfig{
		OpTimeout:         200 * time.Millisecond,
		RetryAttempts:     3,
		RetryInitialDelay: time.Millisecond,
		RetryMaxDelay:     5 * time.Millisecond,
		BreakerFailures:   100,
		BreakerTimeout:    time.Second,
		MaxConcurrent:     4,
		QueueTimeout:      time.Second,
	})
}

func TestResilience_RetriesTransient(t *testing.T) {
	r := testResilience()
	var calls atomic.Int32

	err := r.Run(context.Background(), func(ctx context.Context) error {
		if calls.Add(1) < 3 {
			return domain.Transient(errors.New("database is locked"))
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d; want 3", got)
	}
}

func TestResilience_GivesUpAsTransient(t *testing.T) {
	r := testResilience()
	var calls atomic.Int32

	err := r.Run(context.Background(), func(ctx context.Context) error {
		calls.Add(1)
		return domain.Transient(errors.New("database is locked"))
	})
	if !domain.IsRetryable(err) {
		t.Fatalf("Run() error = %v; want transient", err)
	}
	if got := calls.Load(); got != 3 {
		t.Errorf("calls = %d; want 3", got)
	}
}

func TestResilience_DoesNotRetryDomainErrors(t *testing.T) {
	r := testResilience()
	var calls atomic.Int32

	err := r.Run(context.Background(), func(ctx context.Context) error {
		calls.Add(1)
		return domain.ErrChallengeNotFound
	})
	if !errors.Is(err, domain.ErrChallengeNotFound) {
		t.Fatalf("Run() error = %v; want ErrChallengeNotFound", err)
	}
	if domain.IsRetryable(err) {
		t.Error("domain error became retryable")
	}
	if got := calls.Load(); got != 1 {
		t.Errorf("calls = %d; want 1", got)
	}
}

func TestResilience_TimeoutIsTransient(t *testing.T) {
	r := testResilience()

	err := r.Run(context.Background(), func(ctx context.Context) error {
		<-ctx.Done()
		return ctx.Err()
	})
	if !domain.IsRetryable(err) {
		t.Fatalf("Run() error = %v; want transient timeout", err)
	}
}

func TestResilience_CallerCancellation(t *testing.T) {
	r := testResilience()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := r.Run(ctx, func(ctx context.Context) error {
		return ctx.Err()
	})
	if err == nil {
		t.Fatal("Run() error = nil; want cancellation")
	}
	if domain.IsRetryable(err) {
		t.Errorf("Run() error = %v; caller cancellation must not be retryable", err)
	}
}

func TestResilience_BreakerOpensAfterFailures(t *testing.T) {
	r := NewResilience(ResilienceConfig{
		OpTimeout:         time.Second,
		RetryAttempts:     1,
		RetryInitialDelay: time.Millisecond,
		BreakerFailures:   2,
		BreakerTimeout:    time.Minute,
	})
	var calls atomic.Int32
	failing := func(ctx context.Context) error {
		calls.Add(1)
		return domain.Transient(errors.New("connection refused"))
	}

	for i := 0; i < 2; i++ {
		_ = r.Run(context.Background(), failing)
	}
	before := calls.Load()

	err := r.Run(context.Background(), failing)
	if !domain.IsRetryable(err) {
		t.Fatalf("Run() with open breaker error = %v; want transient", err)
	}
	if calls.Load() != before {
		t.Error("open breaker still invoked the operation")
	}
}
