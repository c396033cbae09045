package retry

import (
	"context"
	"time"

	"github.com/vvka-141/tripmerge/pkg/tripmerge"
)

// Executor runs an operation, retrying transient failures with backoff.
//
// An Executor is safe for concurrent use. WithOnRetry returns a copy, so each
// batch worker can attach its own logging callback without shared state.
type Executor struct {
	classifier tripmerge.ErrorClassifier
	strategy   tripmerge.BackoffStrategy
	onRetry    func(attempt int, err error, delay time.Duration)
}

// NewExecutor creates a new retry executor.
// Panics if classifier or strategy is nil.
func NewExecutor(classifier tripmerge.ErrorClassifier, strategy tripmerge.BackoffStrategy) *Executor {
	if classifier == nil {
		panic("classifier cannot be nil")
	}
	if strategy == nil {
		panic("strategy cannot be nil")
	}
	return &Executor{
		classifier: classifier,
		strategy:   strategy,
	}
}

// NewDefaultExecutor builds an executor with the default attempt budget and delays.
func NewDefaultExecutor(classifier tripmerge.ErrorClassifier, maxAttempts int) *Executor {
	return NewExecutor(classifier, NewExponentialBackoff(maxAttempts,
		WithInitialDelay(tripmerge.DefaultRetryInitialDelay),
		WithMaxDelay(tripmerge.DefaultRetryMaxDelay),
	))
}

// WithOnRetry returns a new Executor that calls callback before each retry.
// The receiver is not modified.
func (e *Executor) WithOnRetry(callback func(attempt int, err error, delay time.Duration)) *Executor {
	clone := *e
	clone.onRetry = callback
	return &clone
}

// Execute runs the operation with retry logic.
// Returns nil on success, otherwise the error of the last attempt.
func (e *Executor) Execute(ctx context.Context, operation func(ctx context.Context) error) error {
	lastErr := operation(ctx)
	if lastErr == nil || !e.classifier.IsTransient(lastErr) {
		return lastErr
	}

	maxAttempts := e.strategy.MaxAttempts()
	for attempt := 0; maxAttempts < 0 || attempt < maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		delay := e.strategy.NextDelay(attempt)
		if e.onRetry != nil {
			e.onRetry(attempt, lastErr, delay)
		}

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}

		lastErr = operation(ctx)
		if lastErr == nil || !e.classifier.IsTransient(lastErr) {
			return lastErr
		}
	}

	return lastErr
}
