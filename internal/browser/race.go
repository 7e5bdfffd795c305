package browser

import (
	"context"
	"errors"
	"fmt"
	"time"

	"golang.org/x/sync/errgroup"
)

// Waiter blocks until loc is visible or ctx is done.
type Waiter interface {
	WaitVisible(ctx context.Context, loc Locator) error
}

// WaiterFunc adapts a function to Waiter.
type WaiterFunc func(ctx context.Context, loc Locator) error

func (f WaiterFunc) WaitVisible(ctx context.Context, loc Locator) error { return f(ctx, loc) }

// FirstOf waits on every locator of every outcome concurrently under one
// shared timeout and returns the index of the outcome that became visible
// first. Losing waits are abandoned and their results ignored. If nothing
// becomes visible in time it returns a *TimeoutError.
func FirstOf(ctx context.Context, w Waiter, timeout time.Duration, outcomes ...Outcome) (int, error) {
	if len(outcomes) == 0 {
		return -1, errors.New("browser: FirstOf needs at least one outcome")
	}
	for _, o := range outcomes {
		if len(o.Locators) == 0 {
			return -1, fmt.Errorf("browser: outcome %q has no locators", o.Name)
		}
	}

	raceCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	won := make(chan int, 1)
	g, gctx := errgroup.WithContext(raceCtx)
	for i, o := range outcomes {
		for _, loc := range o.Locators {
			g.Go(func() error {
				err := w.WaitVisible(gctx, loc)
				if err == nil {
					select {
					case won <- i:
						cancel()
					default:
					}
					return nil
				}
				// A waiter may run on its own copy of the deadline and
				// expire just before raceCtx does.
				if raceCtx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
					return nil
				}
				return fmt.Errorf("wait for %s: %w", loc, err)
			})
		}
	}

	done := make(chan error, 1)
	go func() { done <- g.Wait() }()

	select {
	case i := <-won:
		return i, nil
	case err := <-done:
		select {
		case i := <-won:
			return i, nil
		default:
		}
		if ctx.Err() != nil {
			return -1, ctx.Err()
		}
		if err != nil && !errors.Is(raceCtx.Err(), context.DeadlineExceeded) {
			return -1, err
		}
		return -1, &TimeoutError{Waiting: outcomeNames(outcomes), After: timeout}
	}
}

func outcomeNames(outcomes []Outcome) []string {
	names := make([]string, len(outcomes))
	for i, o := range outcomes {
		names[i] = o.Name
	}
	return names
}
