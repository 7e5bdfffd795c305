package browser

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"
)

// fakePage makes a locator visible after a per-query delay; unknown queries
// never become visible.
type fakePage struct {
	after   map[string]time.Duration
	fail    map[string]error
	pending atomic.Int32
}

func (p *fakePage) WaitVisible(ctx context.Context, loc Locator) error {
	if err, ok := p.fail[loc.Query]; ok {
		return err
	}
	d, ok := p.after[loc.Query]
	if !ok {
		p.pending.Add(1)
		defer p.pending.Add(-1)
		<-ctx.Done()
		return ctx.Err()
	}
	select {
	case <-time.After(d):
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func TestFirstOf_FirstVisibleWins(t *testing.T) {
	page := &fakePage{after: map[string]time.Duration{
		"table.criteria": 20 * time.Millisecond,
		".report-error":  200 * time.Millisecond,
	}}
	i, err := FirstOf(context.Background(), page, time.Second,
		Expect("criteria", CSS("table.criteria")),
		Expect("error", CSS(".report-error")),
	)
	if err != nil {
		t.Fatalf("FirstOf: %v", err)
	}
	if i != 0 {
		t.Errorf("winner = %d, want 0", i)
	}
}

func TestFirstOf_AnyLocatorOfOutcomeSatisfiesIt(t *testing.T) {
	page := &fakePage{after: map[string]time.Duration{
		Text("暂无死信").Query: 5 * time.Millisecond,
	}}
	empty := Expect("empty", Text("No DLQ items"), Text("暂无死信"))
	i, err := FirstOf(context.Background(), page, time.Second,
		Expect("table", CSS("table.dlq")),
		empty,
	)
	if err != nil {
		t.Fatalf("FirstOf: %v", err)
	}
	if i != 1 {
		t.Errorf("winner = %d, want 1", i)
	}
}

func TestFirstOf_NoneVisibleIsTimeout(t *testing.T) {
	page := &fakePage{}
	start := time.Now()
	_, err := FirstOf(context.Background(), page, 50*time.Millisecond,
		Expect("a", CSS("#a")),
		Expect("b", CSS("#b")),
	)
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want *TimeoutError", err)
	}
	if IsAssertion(err) {
		t.Error("timeout must not be an assertion error")
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Errorf("FirstOf took %s, want bounded by the shared timeout", elapsed)
	}
	var te *TimeoutError
	errors.As(err, &te)
	if len(te.Waiting) != 2 || te.Waiting[0] != "a" || te.Waiting[1] != "b" {
		t.Errorf("Waiting = %v", te.Waiting)
	}
}

func TestFirstOf_LosersAbandoned(t *testing.T) {
	page := &fakePage{after: map[string]time.Duration{"#win": time.Millisecond}}
	_, err := FirstOf(context.Background(), page, 5*time.Second,
		Expect("win", CSS("#win")),
		Expect("lose", CSS("#lose"), CSS("#lose2")),
	)
	if err != nil {
		t.Fatalf("FirstOf: %v", err)
	}
	deadline := time.Now().Add(time.Second)
	for page.pending.Load() != 0 {
		if time.Now().After(deadline) {
			t.Fatalf("%d losing waits still running", page.pending.Load())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestFirstOf_WaitErrorPropagates(t *testing.T) {
	boom := errors.New("target closed")
	page := &fakePage{fail: map[string]error{"#a": boom}}
	_, err := FirstOf(context.Background(), page, time.Second, Expect("a", CSS("#a")))
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want wrapping %v", err, boom)
	}
	if IsTimeout(err) {
		t.Error("a failed wait is not a timeout")
	}
}

// tabWaiter waits the way Observer does: on a context rooted elsewhere that
// copies the caller's deadline, so its timer can fire first.
func tabWaiter(root context.Context) WaiterFunc {
	return func(ctx context.Context, _ Locator) error {
		tctx, cancel := context.WithCancel(root)
		if deadline, ok := ctx.Deadline(); ok {
			tctx, cancel = context.WithDeadline(root, deadline)
		}
		stop := context.AfterFunc(ctx, cancel)
		defer stop()
		defer cancel()
		<-tctx.Done()
		return fmt.Errorf("wait visible: %w", tctx.Err())
	}
}

func TestFirstOf_OwnDeadlineIsTimeout(t *testing.T) {
	w := tabWaiter(context.Background())
	for i := 0; i < 500; i++ {
		_, err := FirstOf(context.Background(), w, time.Millisecond,
			Expect("a", CSS("#a")),
			Expect("b", CSS("#b")),
		)
		if !IsTimeout(err) {
			t.Fatalf("iteration %d: err = %v, want *TimeoutError", i, err)
		}
	}
}

func TestFirstOf_WaiterDeadlineBeforeRaceIsTimeout(t *testing.T) {
	w := WaiterFunc(func(context.Context, Locator) error {
		return fmt.Errorf("wait visible: %w", context.DeadlineExceeded)
	})
	_, err := FirstOf(context.Background(), w, time.Second, Expect("a", CSS("#a")))
	if !IsTimeout(err) {
		t.Fatalf("err = %v, want *TimeoutError", err)
	}
}

func TestFirstOf_ParentCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := FirstOf(ctx, &fakePage{}, time.Second, Expect("a", CSS("#a")))
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestFirstOf_InvalidOutcomes(t *testing.T) {
	w := WaiterFunc(func(context.Context, Locator) error { return nil })
	if _, err := FirstOf(context.Background(), w, time.Second); err == nil {
		t.Error("no outcomes: want error")
	}
	if _, err := FirstOf(context.Background(), w, time.Second, Expect("empty")); err == nil {
		t.Error("outcome without locators: want error")
	}
}
