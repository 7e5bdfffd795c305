package browser

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
)

// Options configures the browser session.
type Options struct {
	Headless bool
	// ExecPath overrides Chrome discovery.
	ExecPath string
	// NoSandbox is required when running as root in containers.
	NoSandbox bool
	Width     int
	Height    int
	Logger    *slog.Logger
}

// Observer owns one Chrome tab and inspects the rendered dashboard through it.
type Observer struct {
	ctx         context.Context
	cancelTab   context.CancelFunc
	cancelAlloc context.CancelFunc
	logger      *slog.Logger
	closeOnce   sync.Once
}

// Open starts Chrome and a single tab. The returned Observer must be closed.
func Open(ctx context.Context, o Options) (*Observer, error) {
	logger := o.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", o.Headless),
		chromedp.Flag("disable-gpu", true),
	)
	if o.NoSandbox {
		opts = append(opts, chromedp.NoSandbox)
	}
	if o.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(o.ExecPath))
	}
	if o.Width > 0 && o.Height > 0 {
		opts = append(opts, chromedp.WindowSize(o.Width, o.Height))
	}

	allocCtx, cancelAlloc := chromedp.NewExecAllocator(ctx, opts...)
	tabCtx, cancelTab := chromedp.NewContext(allocCtx)

	// An empty Run starts the browser so failures surface here, not on first use.
	if err := chromedp.Run(tabCtx); err != nil {
		cancelTab()
		cancelAlloc()
		return nil, fmt.Errorf("start browser: %w", err)
	}
	logger.Info("browser session opened", "headless", o.Headless)

	return &Observer{
		ctx:         tabCtx,
		cancelTab:   cancelTab,
		cancelAlloc: cancelAlloc,
		logger:      logger,
	}, nil
}

// Close ends the session. It is safe to call more than once.
func (o *Observer) Close() error {
	o.closeOnce.Do(func() {
		o.cancelTab()
		o.cancelAlloc()
		o.logger.Info("browser session closed")
	})
	return nil
}

// tab derives a context that carries the chromedp tab and honours ctx's
// deadline and cancellation.
func (o *Observer) tab(ctx context.Context) (context.Context, context.CancelFunc) {
	tctx, cancel := context.WithCancel(o.ctx)
	if deadline, ok := ctx.Deadline(); ok {
		tctx, cancel = context.WithDeadline(o.ctx, deadline)
	}
	stop := context.AfterFunc(ctx, cancel)
	return tctx, func() {
		stop()
		cancel()
	}
}

// Navigate loads url and returns once DOMContentLoaded fires. It does not
// wait for network idle; element waits gate correctness afterwards.
func (o *Observer) Navigate(ctx context.Context, url string) error {
	tctx, cancel := o.tab(ctx)
	defer cancel()

	loaded := make(chan struct{})
	var once sync.Once
	chromedp.ListenTarget(tctx, func(ev any) {
		if _, ok := ev.(*page.EventDomContentEventFired); ok {
			once.Do(func() { close(loaded) })
		}
	})

	o.logger.Debug("navigate", "url", url)
	err := chromedp.Run(tctx, chromedp.ActionFunc(func(ctx context.Context) error {
		_, _, errorText, _, err := page.Navigate(url).Do(ctx)
		if err != nil {
			return err
		}
		if errorText != "" {
			return fmt.Errorf("%s", errorText)
		}
		return nil
	}))
	if err != nil {
		return fmt.Errorf("navigate %s: %w", url, err)
	}

	select {
	case <-loaded:
		return nil
	case <-tctx.Done():
		return fmt.Errorf("navigate %s: waiting for DOMContentLoaded: %w", url, tctx.Err())
	}
}

// WaitVisible blocks until loc is visible. It implements Waiter.
func (o *Observer) WaitVisible(ctx context.Context, loc Locator) error {
	tctx, cancel := o.tab(ctx)
	defer cancel()
	return chromedp.Run(tctx, chromedp.WaitVisible(loc.Query, loc.queryOption()))
}

// FirstOf races outcomes on this page; see the package-level FirstOf.
func (o *Observer) FirstOf(ctx context.Context, timeout time.Duration, outcomes ...Outcome) (int, error) {
	i, err := FirstOf(ctx, o, timeout, outcomes...)
	if err == nil {
		o.logger.Debug("outcome observed", "outcome", outcomes[i].Name)
	}
	return i, err
}

// Expect waits for a single outcome.
func (o *Observer) Expect(ctx context.Context, timeout time.Duration, want Outcome) error {
	_, err := o.FirstOf(ctx, timeout, want)
	return err
}

// Present reports whether loc currently matches at least one node, without
// waiting for it to appear.
func (o *Observer) Present(ctx context.Context, loc Locator) (bool, error) {
	tctx, cancel := o.tab(ctx)
	defer cancel()
	var nodes []*cdp.Node
	if err := chromedp.Run(tctx, chromedp.Nodes(loc.Query, &nodes, loc.queryOption(), chromedp.AtLeast(0))); err != nil {
		return false, fmt.Errorf("probe %s: %w", loc, err)
	}
	return len(nodes) > 0, nil
}

// Click clicks the first node matching loc once it is visible.
func (o *Observer) Click(ctx context.Context, loc Locator) error {
	tctx, cancel := o.tab(ctx)
	defer cancel()
	if err := chromedp.Run(tctx, chromedp.Click(loc.Query, loc.queryOption(), chromedp.NodeVisible)); err != nil {
		return fmt.Errorf("click %s: %w", loc, err)
	}
	return nil
}

// Text returns the trimmed visible text of the first node matching loc.
func (o *Observer) Text(ctx context.Context, loc Locator) (string, error) {
	tctx, cancel := o.tab(ctx)
	defer cancel()
	var s string
	if err := chromedp.Run(tctx, chromedp.Text(loc.Query, &s, loc.queryOption())); err != nil {
		return "", fmt.Errorf("text of %s: %w", loc, err)
	}
	return strings.TrimSpace(s), nil
}
