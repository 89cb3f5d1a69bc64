// Package retry implements the exponential backoff strategy shared by the
// Fetch Worker and the Notifications-Send job.
package retry

import (
	"time"

	"github.com/secutils-dev/scheduler/internal/model"
)

// DefaultStrategy is used when a tracker or notification does not specify
// its own retry strategy.
var DefaultStrategy = model.RetryStrategy{
	InitialInterval: time.Second,
	Multiplier:      2,
	MaxInterval:     5 * time.Minute,
	MaxAttempts:     5,
}

// Backoff computes initial * multiplier^attempt, capped at max. attempt is
// zero-based (the delay before the first retry uses attempt=0).
func Backoff(strategy model.RetryStrategy, attempt uint32) time.Duration {
	if strategy.InitialInterval <= 0 {
		strategy = DefaultStrategy
	}
	delay := strategy.InitialInterval
	multiplier := strategy.Multiplier
	if multiplier == 0 {
		multiplier = 1
	}
	for i := uint32(0); i < attempt; i++ {
		delay *= time.Duration(multiplier)
		if strategy.MaxInterval > 0 && delay >= strategy.MaxInterval {
			return strategy.MaxInterval
		}
	}
	if strategy.MaxInterval > 0 && delay > strategy.MaxInterval {
		delay = strategy.MaxInterval
	}
	return delay
}

// Exhausted reports whether attemptsSoFar completed (failed) attempts have
// used up the strategy's MaxAttempts budget, i.e. no further retry should
// be scheduled. Callers compute the post-failure attempt count (e.g. via
// Next) and pass that as attemptsSoFar.
func Exhausted(strategy model.RetryStrategy, attemptsSoFar uint32) bool {
	max := strategy.MaxAttempts
	if max == 0 {
		max = DefaultStrategy.MaxAttempts
	}
	return attemptsSoFar >= max
}

// Next computes the RetryState to persist after a failed attempt at `now`.
func Next(strategy model.RetryStrategy, previous *model.RetryState, now time.Time) model.RetryState {
	attempts := uint32(0)
	if previous != nil {
		attempts = previous.Attempts
	}
	delay := Backoff(strategy, attempts)
	return model.RetryState{
		Attempts: attempts + 1,
		NextAt:   now.Add(delay).Unix(),
	}
}
