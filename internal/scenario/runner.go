package scenario

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"bidcheck/internal/api"
	"bidcheck/internal/browser"
	"bidcheck/internal/ledger"
	"bidcheck/internal/logging"
)

// NotPresent is the detail recorded when an optional feature is absent.
// Absence passes; a present but broken feature fails.
const NotPresent = "feature not present, tested elsewhere"

// API is the slice of the pipeline client the stages drive.
type API interface {
	UploadDocument(ctx context.Context, up api.Upload, opts ...api.CallOption) (*api.UploadResult, error)
	RunJob(ctx context.Context, jobID string) (*api.JobRun, error)
	CreateEvaluation(ctx context.Context, req api.EvaluationRequest, opts ...api.CallOption) (*api.EvaluationCreated, error)
	GetReport(ctx context.Context, evaluationID string) (*api.Report, error)
	ResumeEvaluation(ctx context.Context, evaluationID string, r api.Resume, opts ...api.CallOption) (*api.ResumeAccepted, error)
	ListDLQ(ctx context.Context) (*api.DLQPage, error)
	RequeueDLQ(ctx context.Context, dlqID, reason string, opts ...api.CallOption) (*api.DLQAction, error)
}

// Page is the rendered-UI surface the stages observe. *browser.Observer
// implements it.
type Page interface {
	Navigate(ctx context.Context, url string) error
	FirstOf(ctx context.Context, timeout time.Duration, outcomes ...browser.Outcome) (int, error)
	Expect(ctx context.Context, timeout time.Duration, want browser.Outcome) error
	Present(ctx context.Context, loc browser.Locator) (bool, error)
	Click(ctx context.Context, loc browser.Locator) error
	Text(ctx context.Context, loc browser.Locator) (string, error)
	Close() error
}

// PageOpener starts the run's single browser session.
type PageOpener func(ctx context.Context) (Page, error)

// BrowserOpener opens a chromedp-backed page with o.
func BrowserOpener(o browser.Options) PageOpener {
	return func(ctx context.Context) (Page, error) {
		return browser.Open(ctx, o)
	}
}

// Options tunes a Runner.
type Options struct {
	UIBaseURL string
	// Role is the dashboard role RolePermission checks; unknown means viewer.
	Role   string
	Tenant string

	MandatoryWait time.Duration
	OptionalWait  time.Duration

	// Summary, when set, receives the result table on every exit path.
	Summary io.Writer
	Logger  *slog.Logger
}

// Runner executes a Definition's stages in order.
type Runner struct {
	api     API
	open    PageOpener
	def     *Definition
	opts    Options
	loc     locators
	locales browser.LocaleTable
	logger  *slog.Logger
}

// NewRunner validates def and returns a Runner. open may be nil when no UI
// stage is enabled.
func NewRunner(client API, open PageOpener, def *Definition, opts Options) (*Runner, error) {
	if client == nil {
		return nil, errors.New("scenario: nil API client")
	}
	if def == nil {
		return nil, errors.New("scenario: nil definition")
	}
	if err := def.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %s: %w", def.Name, err)
	}
	loc, err := compile(def.Selectors)
	if err != nil {
		return nil, err
	}
	if opts.UIBaseURL == "" {
		return nil, errors.New("scenario: UI base URL is required")
	}
	opts.UIBaseURL = strings.TrimRight(opts.UIBaseURL, "/")
	if opts.MandatoryWait <= 0 {
		opts.MandatoryWait = 30 * time.Second
	}
	if opts.OptionalWait <= 0 {
		opts.OptionalWait = 10 * time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	if open == nil {
		open = func(context.Context) (Page, error) {
			return nil, errors.New("scenario: no browser configured")
		}
	}

	locales := browser.DefaultLocales().Merge(def.Locales)
	for _, state := range []string{browser.StateDLQEmpty, browser.StatePermissionDenied, browser.StateReportError} {
		if len(locales[state]) == 0 {
			return nil, fmt.Errorf("scenario: locale table has no patterns for %s", state)
		}
	}

	return &Runner{
		api:     client,
		open:    open,
		def:     def,
		opts:    opts,
		loc:     loc,
		locales: locales,
		logger:  logger,
	}, nil
}

// Definition returns the definition the runner executes.
func (r *Runner) Definition() *Definition { return r.def }

// Outcome is what one run produced.
type Outcome struct {
	RunID    string
	Pipeline Snapshot
	Ledger   *ledger.Ledger
}

// Run executes every enabled stage, recording into lg (a fresh ledger when
// nil) and returning it. A mandatory stage failure is recorded, then returned
// wrapped; no later stage runs.
func (r *Runner) Run(ctx context.Context, lg *ledger.Ledger) (*ledger.Ledger, error) {
	out, err := r.RunDetailed(ctx, lg)
	return out.Ledger, err
}

// RunDetailed is Run plus the run id and the identifiers the pipeline issued.
func (r *Runner) RunDetailed(ctx context.Context, lg *ledger.Ledger) (Outcome, error) {
	id := "run_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	logger := logging.ForRun(r.logger, id, r.opts.Tenant).With("scenario", r.def.Name)
	if lg == nil {
		lg = ledger.New(ledger.WithLogger(logger))
	}
	ru := &run{Runner: r, id: id, lg: lg, logger: logger}

	if r.opts.Summary != nil {
		defer lg.Summarize(r.opts.Summary)
	}
	defer ru.closePage()

	logger.Info("run started")
	start := time.Now()
	err := ru.stages(ctx)
	logger.Info("run finished", "elapsed", time.Since(start).Round(time.Millisecond), "failed", len(lg.Failed()), "aborted", err != nil)

	return Outcome{RunID: id, Pipeline: ru.pc.Snapshot(), Ledger: lg}, err
}

// run is the state of one Run.
type run struct {
	*Runner
	id     string
	pc     PipelineContext
	lg     *ledger.Ledger
	logger *slog.Logger

	page    Page
	pageErr error
}

func (ru *run) stages(ctx context.Context) error {
	for _, st := range stages {
		if st.Kind == Terminal {
			continue
		}
		if !ru.def.Enabled(st.Name) {
			ru.logger.Debug("stage disabled", "stage", st.Name)
			continue
		}
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("run cancelled before %s: %w", st.Name, err)
		}
		if err := ru.step(ctx, st); err != nil {
			return fmt.Errorf("stage %s: %w", st.Name, err)
		}
	}
	return nil
}

// step runs one stage inside its failure boundary and records the result.
// It returns an error only for a failed mandatory stage.
func (ru *run) step(ctx context.Context, st Stage) error {
	logger := ru.logger.With("stage", st.Name, "kind", st.Kind.String())
	logger.Debug("stage started")
	start := time.Now()

	detail, err := ru.guard(ctx, st)
	elapsed := time.Since(start).Round(time.Millisecond)
	if err == nil {
		ru.lg.Record(st.Name, true, detail)
		logger.Debug("stage passed", "elapsed", elapsed)
		return nil
	}

	ru.lg.Record(st.Name, false, err.Error())
	if st.Kind == Optional {
		logger.Warn("optional stage failed, continuing", "error", err, "elapsed", elapsed)
		return nil
	}
	logger.Error("mandatory stage failed, aborting", "error", err, "elapsed", elapsed)
	return err
}

// guard converts a stage panic into an error so the browser still closes and
// optional stages stay isolated.
func (ru *run) guard(ctx context.Context, st Stage) (detail string, err error) {
	defer func() {
		if p := recover(); p != nil {
			err = fmt.Errorf("panic: %v", p)
		}
	}()
	return st.run(ru, ctx)
}

// ui returns the browser page, opening it on first use. A failed open is
// remembered so later UI stages fail fast instead of relaunching.
func (ru *run) ui(ctx context.Context) (Page, error) {
	if ru.page != nil {
		return ru.page, nil
	}
	if ru.pageErr != nil {
		return nil, ru.pageErr
	}
	p, err := ru.open(ctx)
	if err != nil {
		ru.pageErr = fmt.Errorf("open browser: %w", err)
		return nil, ru.pageErr
	}
	ru.page = p
	ru.logger.Info("browser session opened")
	return p, nil
}

func (ru *run) closePage() {
	if ru.page == nil {
		return
	}
	if err := ru.page.Close(); err != nil {
		ru.logger.Warn("close browser", "error", err)
	}
	ru.page = nil
}

// url joins the UI base with route, substituting the evaluation id.
func (ru *run) url(route, evaluationID string) string {
	return ru.opts.UIBaseURL + strings.ReplaceAll(route, "{evaluation_id}", evaluationID)
}

// locators are the definition's selectors, parsed once.
type locators struct {
	landingHeading browser.Locator
	nav            browser.Locator
	reportHeader   browser.Locator
	criteriaTable  browser.Locator
	reportError    browser.Locator
	citation       browser.Locator
	evidenceDetail browser.Locator
	dlqTable       browser.Locator
	dlqError       browser.Locator
	reviewForm     browser.Locator
}

func compile(s Selectors) (locators, error) {
	var l locators
	var errs []error
	parse := func(key, v string, dst *browser.Locator) {
		loc, err := browser.ParseLocator(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("selectors.%s: %w", key, err))
			return
		}
		*dst = loc
	}
	parse("landing_heading", s.LandingHeading, &l.landingHeading)
	parse("nav", s.Nav, &l.nav)
	parse("report_header", s.ReportHeader, &l.reportHeader)
	parse("criteria_table", s.CriteriaTable, &l.criteriaTable)
	parse("report_error", s.ReportError, &l.reportError)
	parse("citation", s.Citation, &l.citation)
	parse("evidence_detail", s.EvidenceDetail, &l.evidenceDetail)
	parse("dlq_table", s.DLQTable, &l.dlqTable)
	parse("dlq_error", s.DLQError, &l.dlqError)
	parse("review_form", s.ReviewForm, &l.reviewForm)
	return l, errors.Join(errs...)
}
