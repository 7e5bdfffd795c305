package scenario_test

import (
	"context"
	"net/url"
	"strings"
	"sync"
	"time"

	"bidcheck/internal/browser"
	"bidcheck/internal/roles"
	"bidcheck/internal/scenario"
)

// Selector queries from the built-in e2e definition.
const (
	qHeading        = "h1"
	qNav            = "nav.menu"
	qReportHeader   = "[data-testid=report-header]"
	qCriteriaTable  = "[data-testid=criteria-table] tbody tr"
	qReportError    = "[data-testid=report-error]"
	qCitation       = "[data-testid=citation-link]"
	qEvidenceDetail = "[data-testid=evidence-detail]"
	qDLQTable       = "[data-testid=dlq-table] tbody tr"
	qDLQError       = "[data-testid=dlq-error]"
	qReviewForm     = "[data-testid=review-form]"
)

// screen maps a visible element's query to its text.
type screen map[string]string

// fakePage renders screens by path. Elements not on the current screen never
// become visible, so waits on them block until their deadline.
type fakePage struct {
	base   string
	render func(path string, query url.Values) screen
	// onClick makes extra elements visible on the current screen.
	onClick map[string]screen

	panicOnPresent bool
	// textErr fails Text for the given queries.
	textErr map[string]error

	mu          sync.Mutex
	current     screen
	navigations []string
	clicks      []string
	closed      int
}

func newFakePage(base string) *fakePage {
	return &fakePage{
		base:    base,
		render:  dashboard,
		onClick: map[string]screen{qCitation: {qEvidenceDetail: "clause 4.2"}},
	}
}

// dashboard is a healthy dashboard: populated report, empty DLQ in Chinese,
// review form gated by the role table.
func dashboard(path string, q url.Values) screen {
	switch {
	case path == "/dashboard":
		return screen{qHeading: "Bid Evaluation Assistant", qNav: ""}
	case strings.HasSuffix(path, "/report"):
		return screen{qReportHeader: "Report", qCriteriaTable: "delivery", qCitation: "[1]"}
	case path == "/dlq":
		return screen{browser.Text("暂无死信").Query: "暂无死信"}
	case strings.HasPrefix(path, "/evaluations/"):
		if roles.Can(q.Get("role"), roles.Review) {
			return screen{qReviewForm: ""}
		}
		return screen{browser.Text("Permission denied").Query: "Permission denied"}
	}
	return screen{}
}

func (p *fakePage) opener(opens *int) scenario.PageOpener {
	return func(context.Context) (scenario.Page, error) {
		if opens != nil {
			*opens++
		}
		return p, nil
	}
}

func (p *fakePage) Navigate(_ context.Context, raw string) error {
	u, err := url.Parse(strings.TrimPrefix(raw, p.base))
	if err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.navigations = append(p.navigations, u.String())
	p.current = screen{}
	for k, v := range p.render(u.Path, u.Query()) {
		p.current[k] = v
	}
	return nil
}

func (p *fakePage) visible(q string) (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	s, ok := p.current[q]
	return s, ok
}

func (p *fakePage) WaitVisible(ctx context.Context, loc browser.Locator) error {
	if _, ok := p.visible(loc.Query); ok {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (p *fakePage) FirstOf(ctx context.Context, timeout time.Duration, outcomes ...browser.Outcome) (int, error) {
	return browser.FirstOf(ctx, p, timeout, outcomes...)
}

func (p *fakePage) Expect(ctx context.Context, timeout time.Duration, want browser.Outcome) error {
	_, err := p.FirstOf(ctx, timeout, want)
	return err
}

func (p *fakePage) Present(_ context.Context, loc browser.Locator) (bool, error) {
	if p.panicOnPresent {
		panic("renderer crashed")
	}
	_, ok := p.visible(loc.Query)
	return ok, nil
}

func (p *fakePage) Click(_ context.Context, loc browser.Locator) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if _, ok := p.current[loc.Query]; !ok {
		return &browser.TimeoutError{Waiting: []string{loc.String()}}
	}
	p.clicks = append(p.clicks, loc.Query)
	for k, v := range p.onClick[loc.Query] {
		p.current[k] = v
	}
	return nil
}

func (p *fakePage) Text(_ context.Context, loc browser.Locator) (string, error) {
	if err, ok := p.textErr[loc.Query]; ok {
		return "", err
	}
	if s, ok := p.visible(loc.Query); ok {
		return s, nil
	}
	return "", &browser.TimeoutError{Waiting: []string{loc.String()}}
}

func (p *fakePage) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed++
	return nil
}
