package orchestrator

import (
	"context"
	"sync"
)

// loopFunc is one cooperating loop started by a live session. It must
// return promptly once ctx is canceled.
type loopFunc func(ctx context.Context) error

// fanOut runs foreground and background loops concurrently and returns as
// soon as ANY of them returns (select-first-wins, per spec §4.2): that
// first result tears down the whole session. The distinction between the
// two groups only matters for cancellation ordering — foreground loops
// are loops whose own goroutine IS the thing selecting on ctx.Done(), so
// they observe cancellation the instant fanOut's internal context is
// canceled; background loops are allowed a little more latitude (e.g. a
// blocking read already in flight) but are still always canceled via the
// same context before fanOut returns.
//
// This is a small hand-rolled replacement for golang.org/x/sync/errgroup:
// errgroup's Group cancels all peers on the first non-nil error, which is
// almost what we want, but it has no notion of "foreground" vs
// "background" loops and, more importantly, it discards every error but
// the first — we want the first result (error or nil) regardless of
// which group produced it, since a clean exit (e.g. ErrServerRestarting)
// must also win the race and propagate, not be masked by a later
// cancellation error from a sibling loop.
func fanOut(ctx context.Context, foreground, background []loopFunc) error {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	total := len(foreground) + len(background)
	results := make(chan error, total)

	var wg sync.WaitGroup
	start := func(fn loopFunc) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results <- fn(runCtx)
		}()
	}

	for _, fn := range foreground {
		start(fn)
	}
	for _, fn := range background {
		start(fn)
	}

	first := <-results
	cancel()

	go func() {
		wg.Wait()
		close(results)
	}()
	for range results {
		// Drain remaining results so every loop's goroutine can exit;
		// their errors are expected post-cancellation noise (e.g.
		// context.Canceled) and not reported further.
	}

	return first
}
