// Package ledger accumulates scenario results for one run and renders the
// final summary.
package ledger

import (
	"fmt"
	"io"
	"log/slog"
	"sync"

	"bidcheck/internal/format"
	"bidcheck/internal/logging"
)

// Status of one recorded check.
type Status string

const (
	Pass Status = "pass"
	Fail Status = "fail"
)

// Result is one recorded check. Results are append-only.
type Result struct {
	Label  string `json:"label"`
	Status Status `json:"status"`
	Detail string `json:"detail,omitempty"`
}

// OK reports whether r passed.
func (r Result) OK() bool { return r.Status == Pass }

// Ledger is an ordered, append-only record of results. It is safe for
// concurrent use.
type Ledger struct {
	mu      sync.Mutex
	results []Result
	logger  *slog.Logger
	mode    format.Mode
	width   int
}

// Option configures a Ledger.
type Option func(*Ledger)

// WithLogger sets the logger used for per-result lines.
func WithLogger(l *slog.Logger) Option {
	return func(lg *Ledger) { lg.logger = l }
}

// WithFormat selects the summary table format.
func WithFormat(m format.Mode) Option {
	return func(lg *Ledger) { lg.mode = m }
}

// WithDetailWidth bounds the detail column; 0 leaves it unbounded.
func WithDetailWidth(n int) Option {
	return func(lg *Ledger) { lg.width = n }
}

// New returns an empty ledger.
func New(opts ...Option) *Ledger {
	lg := &Ledger{logger: logging.Discard(), width: 100}
	for _, o := range opts {
		o(lg)
	}
	return lg
}

// Record appends a result and logs it.
func (lg *Ledger) Record(label string, ok bool, detail string) Result {
	r := Result{Label: label, Status: Fail, Detail: detail}
	if ok {
		r.Status = Pass
	}

	lg.mu.Lock()
	lg.results = append(lg.results, r)
	lg.mu.Unlock()

	if ok {
		lg.logger.Info("check passed", "label", label, "detail", detail)
	} else {
		lg.logger.Error("check failed", "label", label, "detail", detail)
	}
	return r
}

// Results returns a copy of the results in recording order.
func (lg *Ledger) Results() []Result {
	lg.mu.Lock()
	defer lg.mu.Unlock()
	out := make([]Result, len(lg.results))
	copy(out, lg.results)
	return out
}

// Failed returns the failed results in recording order.
func (lg *Ledger) Failed() []Result {
	var out []Result
	for _, r := range lg.Results() {
		if !r.OK() {
			out = append(out, r)
		}
	}
	return out
}

// ExitCode is 0 when nothing failed and 1 otherwise.
func (lg *Ledger) ExitCode() int {
	if len(lg.Failed()) > 0 {
		return 1
	}
	return 0
}

// Summarize writes the result table and totals to w and returns the exit code.
func (lg *Ledger) Summarize(w io.Writer) int {
	results := lg.Results()

	tb := format.NewTable(lg.mode)
	tb.Header("#", "Check", "Status", "Detail")
	tb.Columns(
		format.Column{Number: 1, Align: format.AlignRight},
		format.Column{Number: 4, MaxWidth: lg.width},
	)
	failed := 0
	for i, r := range results {
		if !r.OK() {
			failed++
		}
		tb.Row(i+1, r.Label, format.Status(r.OK()), format.Truncate(r.Detail, lg.width*3))
	}
	tb.Footer("", "Total", fmt.Sprintf("%d/%d passed", len(results)-failed, len(results)), "")

	fmt.Fprintln(w, tb.String())
	if failed > 0 {
		fmt.Fprintf(w, "\n%d of %d checks failed\n", failed, len(results))
		lg.logger.Warn("run finished with failures", "failed", failed, "total", len(results))
		return 1
	}
	fmt.Fprintf(w, "\nall %d checks passed\n", len(results))
	lg.logger.Info("run finished", "total", len(results))
	return 0
}
