// Package retry provides context-aware backoff retry for agent components.
//
// Two delay strategies are supported:
//
//   - StrategyExponential: delay grows by Multiplier after each failed
//     attempt, capped at MaxDelay. Suitable for startup resources.
//   - StrategyLinear: delay before attempt k is InitialDelay*k
//     (5s, 10s, 15s, ...). This is the collector reconnect policy.
//
// All sleeps honor context cancellation, so shutdown never waits out a
// backoff window. Wrap an error with NonRetryable to abort the loop early.
//
// Example:
//
//	cfg := retry.Linear(10, 5*time.Second)
//	err := retry.Do(ctx, cfg, func() error {
//	    return manager.dial(ctx)
//	})
package retry
