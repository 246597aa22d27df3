package funnel

import (
	"context"
	"log/slog"
	"time"

	"hermannm.dev/devlog/log"
)

// RunBounded executes one metric query operation under the given timeout, converting
// timeout or error into an unknown result instead of propagating. It never blocks past
// the timeout: if the timer wins the race, the operation's context is canceled so the
// underlying store call can release its resources, and its eventual result is
// discarded.
func RunBounded[T any](
	ctx context.Context,
	timeout time.Duration,
	queryID string,
	operation func(ctx context.Context) (T, error),
) PartialResult[T] {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	type outcome struct {
		value T
		err   error
	}

	// Buffered, so a straggling operation can still send its discarded result and
	// finish instead of leaking.
	outcomes := make(chan outcome, 1)

	go func() {
		value, err := operation(ctx)
		outcomes <- outcome{value: value, err: err}
	}()

	select {
	case result := <-outcomes:
		if result.err != nil {
			log.ErrorCause(result.err, "metric query failed", slog.String("query", queryID))
			return Unknown[T]()
		}
		return Present(result.value)
	case <-ctx.Done():
		log.Warn(
			"metric query did not finish within its budget",
			slog.String("query", queryID),
			slog.String("timeout", timeout.String()),
		)
		return Unknown[T]()
	}
}
