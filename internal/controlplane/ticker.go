package controlplane

import (
	"context"
	"time"
)

// sleepUntil blocks until deadline (or ctx is canceled) and returns the
// next deadline advanced by interval. Grounded on the original client's
// tracking_loop, which accumulates a raw Instant deadline (deadline +=
// tracking_interval; sleep_until(deadline)) rather than using a ticker, so
// a slow iteration never compounds drift onto the next one the way
// repeatedly computing "now + interval" would.
func sleepUntil(ctx context.Context, deadline time.Time, interval time.Duration) (time.Time, error) {
	if d := time.Until(deadline); d > 0 {
		timer := time.NewTimer(d)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return deadline, ctx.Err()
		case <-timer.C:
		}
	} else {
		select {
		case <-ctx.Done():
			return deadline, ctx.Err()
		default:
		}
	}
	return deadline.Add(interval), nil
}
