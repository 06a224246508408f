package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/circuitbreaker"
	"github.com/felixgeelhaar/fortify/retry"

	"github.com/felixgeelhaar/trilhas/internal/domain"
)

// Resilience wraps ledger transactions with fortify patterns:
// bulkhead(circuitbreaker(retry(op))), each attempt bounded by OpTimeout.
type Resilience struct {
	circuitBreaker circuitbreaker.CircuitBreaker[struct{}]
	retrier        retry.Retry[struct{}]
	bulkhead       bulkhead.Bulkhead[struct{}]
	opTimeout      time.Duration
	logger         *slog.Logger
}

// ResilienceConfig holds the ledger resilience settings.
type ResilienceConfig struct {
	// OpTimeout bounds one transaction attempt.
	OpTimeout time.Duration

	// RetryAttempts is the total number of tries for a transient failure.
	RetryAttempts     int
	RetryInitialDelay time.Duration
	RetryMaxDelay     time.Duration

	// BreakerFailures consecutive transient failures open the breaker for BreakerTimeout.
	BreakerFailures int
	BreakerTimeout  time.Duration

	// MaxConcurrent transactions in flight; 0 disables the bulkhead.
	MaxConcurrent int
	QueueTimeout  time.Duration

	Logger *slog.Logger
}

// DefaultResilienceConfig returns defaults suited to a local database.
func DefaultResilienceConfig() ResilienceConfig {
	return ResilienceConfig{
		OpTimeout:         5 * time.Second,
		RetryAttempts:     3,
		RetryInitialDelay: 50 * time.Millisecond,
		RetryMaxDelay:     time.Second,
		BreakerFailures:   5,
		BreakerTimeout:    15 * time.Second,
		MaxConcurrent:     32,
		QueueTimeout:      2 * time.Second,
	}
}

// NewResilience builds the policy described by cfg.
func NewResilience(cfg ResilienceConfig) *Resilience {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.OpTimeout <= 0 {
		cfg.OpTimeout = 5 * time.Second
	}
	r := &Resilience{opTimeout: cfg.OpTimeout, logger: logger}

	failures := cfg.BreakerFailures
	if failures <= 0 {
		failures = 5
	}
	if cfg.BreakerTimeout <= 0 {
		cfg.BreakerTimeout = 15 * time.Second
	}
	r.circuitBreaker = circuitbreaker.New[struct{}](circuitbreaker.Config{
		MaxRequests: 1,
		Interval:    30 * time.Second,
		Timeout:     cfg.BreakerTimeout,
		ReadyToTrip: func(counts circuitbreaker.Counts) bool {
			return int(counts.ConsecutiveFailures) >= failures
		},
		OnStateChange: func(from, to circuitbreaker.State) {
			logger.Warn("ledger circuit breaker state change",
				"from", from.String(),
				"to", to.String())
		},
	})

	attempts := cfg.RetryAttempts
	if attempts <= 0 {
		attempts = 1
	}
	r.retrier = retry.New[struct{}](retry.Config{
		MaxAttempts:   attempts,
		InitialDelay:  cfg.RetryInitialDelay,
		MaxDelay:      cfg.RetryMaxDelay,
		Multiplier:    2.0,
		BackoffPolicy: retry.BackoffExponential,
		Jitter:        true,
		IsRetryable:   domain.IsRetryable,
	})

	if cfg.MaxConcurrent > 0 {
		r.bulkhead = bulkhead.New[struct{}](bulkhead.Config{
			MaxConcurrent: cfg.MaxConcurrent,
			MaxQueue:      cfg.MaxConcurrent * 4,
			QueueTimeout:  cfg.QueueTimeout,
		})
	}
	return r
}

// Run executes op under the policy. Only errors wrapping domain.ErrTransient
// are retried and counted against the breaker; any other error from op is
// returned unchanged. A call rejected before op ran surfaces as transient.
func (r *Resilience) Run(ctx context.Context, op func(ctx context.Context) error) error {
	var (
		mu    sync.Mutex
		ran   bool
		final error
	)

	attempt := func(ctx context.Context) (struct{}, error) {
		actx, cancel := context.WithTimeout(ctx, r.opTimeout)
		defer cancel()

		err := op(actx)
		if err != nil && errors.Is(actx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
			err = domain.Transient(fmt.Errorf("ledger operation timed out after %s: %w", r.opTimeout, err))
		}

		mu.Lock()
		ran = true
		final = nil
		if err != nil && !domain.IsRetryable(err) {
			// Not a storage hiccup; pass it through without tripping anything.
			final = err
			err = nil
		}
		mu.Unlock()
		return struct{}{}, err
	}

	guarded := func(ctx context.Context) (struct{}, error) {
		return r.circuitBreaker.Execute(ctx, func(ctx context.Context) (struct{}, error) {
			return r.retrier.Do(ctx, attempt)
		})
	}

	var err error
	if r.bulkhead != nil {
		_, err = r.bulkhead.Execute(ctx, guarded)
	} else {
		_, err = guarded(ctx)
	}

	mu.Lock()
	defer mu.Unlock()
	if final != nil {
		return final
	}
	if err == nil {
		return nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return ctxErr
	}
	if !ran {
		r.logger.Warn("ledger call rejected", "error", err)
		return domain.Transient(fmt.Errorf("ledger unavailable: %w", err))
	}
	return domain.Transient(err)
}
