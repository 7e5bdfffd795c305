package scenario_test

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"bidcheck/internal/api"
	"bidcheck/internal/api/apitest"
	"bidcheck/internal/browser"
	"bidcheck/internal/ledger"
	"bidcheck/internal/scenario"
)

const uiBase = "http://ui.test"

type harness struct {
	pipeline *apitest.Pipeline
	client   *api.Client
	page     *fakePage
	opens    int
	def      *scenario.Definition
	opts     scenario.Options
}

func newHarness(t *testing.T, definition string) *harness {
	t.Helper()
	p := apitest.New()
	srv := p.Start(t)
	client, err := api.New(srv.URL, "tenant_demo")
	if err != nil {
		t.Fatalf("api.New: %v", err)
	}
	def, err := scenario.LoadDefinition(definition)
	if err != nil {
		t.Fatalf("LoadDefinition: %v", err)
	}
	return &harness{
		pipeline: p,
		client:   client,
		page:     newFakePage(uiBase),
		def:      def,
		opts: scenario.Options{
			UIBaseURL:     uiBase,
			Role:          "evaluator",
			Tenant:        "tenant_demo",
			MandatoryWait: 300 * time.Millisecond,
			OptionalWait:  150 * time.Millisecond,
		},
	}
}

func (h *harness) run(t *testing.T, client scenario.API) (scenario.Outcome, error) {
	t.Helper()
	if client == nil {
		client = h.client
	}
	r, err := scenario.NewRunner(client, h.page.opener(&h.opens), h.def, h.opts)
	if err != nil {
		t.Fatalf("NewRunner: %v", err)
	}
	return r.RunDetailed(context.Background(), nil)
}

func labels(results []ledger.Result) []string {
	out := make([]string, len(results))
	for i, r := range results {
		out[i] = r.Label
	}
	return out
}

func find(t *testing.T, lg *ledger.Ledger, label string) ledger.Result {
	t.Helper()
	for _, r := range lg.Results() {
		if r.Label == label {
			return r
		}
	}
	t.Fatalf("no result for %s in %v", label, labels(lg.Results()))
	return ledger.Result{}
}

func TestRun_EndToEnd(t *testing.T) {
	h := newHarness(t, "full")
	dlqID := h.pipeline.SeedDLQ("job_dead", "PARSER_TIMEOUT")

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}

	want := []string{
		scenario.StageLanding, scenario.StageUpload, scenario.StageRunJob,
		scenario.StageCreateEvaluation, scenario.StageFetchReport, scenario.StageRenderReport,
		scenario.StageCitationInteraction, scenario.StageDlqPage, scenario.StageDlqRequeue,
		scenario.StageHumanReviewResume, scenario.StageRolePermission,
	}
	if diff := cmp.Diff(want, labels(out.Ledger.Results())); diff != "" {
		t.Errorf("stage order (-want +got):\n%s", diff)
	}
	if failed := out.Ledger.Failed(); len(failed) != 0 {
		t.Fatalf("unexpected failures: %+v", failed)
	}

	snap := out.Pipeline
	if snap.DocumentID == "" || snap.JobID == "" || snap.EvaluationID == "" {
		t.Errorf("pipeline ids not threaded: %+v", snap)
	}
	if !strings.HasPrefix(out.RunID, "run_") {
		t.Errorf("RunID = %q", out.RunID)
	}

	for route, n := range map[string]int{
		apitest.RouteUpload:           1,
		apitest.RouteRunJob:           1,
		apitest.RouteCreateEvaluation: 1,
		apitest.RouteRequeue:          1,
		apitest.RouteResume:           1,
	} {
		if got := h.pipeline.Effects(route); got != n {
			t.Errorf("Effects(%s) = %d, want %d", route, got, n)
		}
	}
	if got := h.pipeline.DLQStatus(dlqID); got != "requeued" {
		t.Errorf("DLQ status = %q, want requeued", got)
	}

	var runJobPath string
	for _, rec := range h.pipeline.Requests() {
		if rec.Tenant != "tenant_demo" || !strings.HasPrefix(rec.TraceID, "trace_") {
			t.Errorf("%s %s missing tenant/trace: %+v", rec.Method, rec.Path, rec)
		}
		if strings.HasPrefix(rec.Path, "/api/v1/internal/jobs/") {
			runJobPath = rec.Path
		}
	}
	if runJobPath != "/api/v1/internal/jobs/"+snap.JobID+"/run" {
		t.Errorf("RunJob hit %q, want the upload's job %s", runJobPath, snap.JobID)
	}

	reportURL := "/evaluations/" + snap.EvaluationID + "/report"
	roleURL := "/evaluations/" + snap.EvaluationID + "?role=evaluator"
	if diff := cmp.Diff([]string{"/dashboard", reportURL, "/dlq", roleURL}, h.page.navigations); diff != "" {
		t.Errorf("navigations (-want +got):\n%s", diff)
	}
	if h.opens != 1 || h.page.closed != 1 {
		t.Errorf("browser opened %d, closed %d; want 1 and 1", h.opens, h.page.closed)
	}
	if r := find(t, out.Ledger, scenario.StageDlqPage); r.Detail != "empty state shown" {
		t.Errorf("DlqPage detail = %q", r.Detail)
	}
}

func TestRun_MandatoryFailureAborts(t *testing.T) {
	h := newHarness(t, "e2e")
	h.pipeline.Fail(apitest.RouteRunJob, apitest.Failure{Status: http.StatusInternalServerError, Code: "JOB_RUN_FAILED", Message: "worker down"})

	out, err := h.run(t, nil)
	if err == nil {
		t.Fatal("want error from failed mandatory stage")
	}
	if !api.HasCode(err, "JOB_RUN_FAILED") {
		t.Errorf("error lost its code: %v", err)
	}
	if !strings.Contains(err.Error(), "stage RunJob") {
		t.Errorf("error should name the stage: %v", err)
	}

	want := []string{scenario.StageLanding, scenario.StageUpload, scenario.StageRunJob}
	if diff := cmp.Diff(want, labels(out.Ledger.Results())); diff != "" {
		t.Errorf("only stages that ran should be recorded (-want +got):\n%s", diff)
	}
	if r := find(t, out.Ledger, scenario.StageRunJob); r.OK() || !strings.Contains(r.Detail, "JOB_RUN_FAILED") {
		t.Errorf("RunJob result = %+v", r)
	}
	if h.pipeline.Effects(apitest.RouteCreateEvaluation) != 0 {
		t.Error("no stage may run after a mandatory failure")
	}
	if h.page.closed != 1 {
		t.Errorf("browser closed %d times on abort, want 1", h.page.closed)
	}
}

func TestRun_OptionalFailureIsolated(t *testing.T) {
	h := newHarness(t, "e2e")
	base := h.page.render
	h.page.render = func(path string, q url.Values) screen {
		if path == "/dlq" {
			return screen{qDLQError: "DLQ backend unavailable"}
		}
		return base(path, q)
	}

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("optional failure must not abort: %v", err)
	}
	r := find(t, out.Ledger, scenario.StageDlqPage)
	if r.OK() || !strings.Contains(r.Detail, "error banner") || !strings.Contains(r.Detail, "DLQ backend unavailable") {
		t.Errorf("DlqPage = %+v", r)
	}
	if r := find(t, out.Ledger, scenario.StageRolePermission); !r.OK() {
		t.Errorf("stage after the failure should still run and pass: %+v", r)
	}
	if out.Ledger.ExitCode() != 1 {
		t.Error("a failed optional stage still fails the run's exit code")
	}
}

func TestRun_DLQBannerTextUnreadable(t *testing.T) {
	h := newHarness(t, "e2e")
	base := h.page.render
	h.page.render = func(path string, q url.Values) screen {
		if path == "/dlq" {
			return screen{qDLQError: "DLQ backend unavailable"}
		}
		return base(path, q)
	}
	h.page.textErr = map[string]error{qDLQError: errors.New("node detached")}

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := find(t, out.Ledger, scenario.StageDlqPage)
	if r.OK() || !strings.Contains(r.Detail, "banner text unavailable: node detached") {
		t.Errorf("DlqPage = %+v", r)
	}
}

func TestRun_MissingCitationIsNotBroken(t *testing.T) {
	h := newHarness(t, "e2e")
	base := h.page.render
	h.page.render = func(path string, q url.Values) screen {
		s := base(path, q)
		delete(s, qCitation)
		return s
	}

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := find(t, out.Ledger, scenario.StageCitationInteraction)
	if !r.OK() || r.Detail != scenario.NotPresent {
		t.Errorf("CitationInteraction = %+v, want pass with %q", r, scenario.NotPresent)
	}
	if len(h.page.clicks) != 0 {
		t.Errorf("nothing should be clicked, got %v", h.page.clicks)
	}
}

func TestRun_BrokenCitationFails(t *testing.T) {
	h := newHarness(t, "e2e")
	h.page.onClick = nil

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := find(t, out.Ledger, scenario.StageCitationInteraction)
	if r.OK() || !strings.Contains(r.Detail, "evidence detail") {
		t.Errorf("CitationInteraction = %+v, want timeout on evidence detail", r)
	}
}

func TestRun_RenderReportErrorRegionPasses(t *testing.T) {
	h := newHarness(t, "e2e")
	base := h.page.render
	h.page.render = func(path string, q url.Values) screen {
		if strings.HasSuffix(path, "/report") {
			return screen{qReportHeader: "Report", browser.Text("报告加载失败").Query: "报告加载失败"}
		}
		return base(path, q)
	}

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := find(t, out.Ledger, scenario.StageRenderReport); !r.OK() || r.Detail != "error region rendered" {
		t.Errorf("RenderReport = %+v", r)
	}
}

func TestRun_RenderReportNeitherTimesOut(t *testing.T) {
	h := newHarness(t, "e2e")
	base := h.page.render
	h.page.render = func(path string, q url.Values) screen {
		if strings.HasSuffix(path, "/report") {
			return screen{qReportHeader: "Report"}
		}
		return base(path, q)
	}

	out, err := h.run(t, nil)
	if !browser.IsTimeout(err) {
		t.Fatalf("err = %v, want timeout", err)
	}
	if browser.IsAssertion(err) {
		t.Error("timeout must stay distinct from assertion failure")
	}
	if got := labels(out.Ledger.Results()); got[len(got)-1] != scenario.StageRenderReport {
		t.Errorf("last recorded stage = %s, want RenderReport", got[len(got)-1])
	}
}

func TestRun_RolePermission(t *testing.T) {
	tests := []struct {
		role       string
		render     func(path string, q url.Values) screen
		wantOK     bool
		wantDetail string
	}{
		{role: "evaluator", wantOK: true, wantDetail: "role=evaluator sees review form"},
		{role: "viewer", wantOK: true, wantDetail: "role=viewer sees permission_denied"},
		{role: "intruder", wantOK: true, wantDetail: "role=viewer sees permission_denied"},
		{
			role: "viewer",
			render: func(path string, q url.Values) screen {
				if strings.HasPrefix(path, "/evaluations/") && !strings.HasSuffix(path, "/report") {
					return screen{qReviewForm: ""}
				}
				return dashboard(path, q)
			},
			wantDetail: "expected permission_denied, observed review form",
		},
	}
	for _, tc := range tests {
		t.Run(tc.role, func(t *testing.T) {
			h := newHarness(t, "e2e")
			h.opts.Role = tc.role
			if tc.render != nil {
				h.page.render = tc.render
			}
			out, err := h.run(t, nil)
			if err != nil {
				t.Fatalf("Run: %v", err)
			}
			r := find(t, out.Ledger, scenario.StageRolePermission)
			if r.OK() != tc.wantOK || !strings.Contains(r.Detail, tc.wantDetail) {
				t.Errorf("RolePermission = %+v, want ok=%v detail containing %q", r, tc.wantOK, tc.wantDetail)
			}
		})
	}
}

func TestRun_OptionalPanicRecovered(t *testing.T) {
	h := newHarness(t, "e2e")
	h.page.panicOnPresent = true

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	r := find(t, out.Ledger, scenario.StageCitationInteraction)
	if r.OK() || !strings.Contains(r.Detail, "panic: renderer crashed") {
		t.Errorf("CitationInteraction = %+v", r)
	}
	if r := find(t, out.Ledger, scenario.StageDlqPage); !r.OK() {
		t.Errorf("run should continue after a panicking optional stage: %+v", r)
	}
}

func TestRun_BrowserOpenFailure(t *testing.T) {
	h := newHarness(t, "e2e")
	opens := 0
	boom := errors.New("chrome not found")
	open := func(context.Context) (scenario.Page, error) {
		opens++
		return nil, boom
	}
	r, err := scenario.NewRunner(h.client, open, h.def, h.opts)
	if err != nil {
		t.Fatal(err)
	}
	lg, err := r.Run(context.Background(), ledger.New())
	if !errors.Is(err, boom) {
		t.Fatalf("err = %v, want %v", err, boom)
	}
	if opens != 1 {
		t.Errorf("opener called %d times, want 1", opens)
	}
	if got := find(t, lg, scenario.StageLanding); got.OK() {
		t.Error("Landing should fail without a browser")
	}
	if got := find(t, lg, scenario.StageFetchReport); !got.OK() {
		t.Error("API stages before the first mandatory UI stage should still pass")
	}
}

// missingCriteria drops criteria_results from every report.
type missingCriteria struct{ scenario.API }

func (m missingCriteria) GetReport(ctx context.Context, id string) (*api.Report, error) {
	rep, err := m.API.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	rep.CriteriaResults = nil
	rep.CriteriaPresent = false
	return rep, nil
}

func TestRun_FetchReportRequiresCriteria(t *testing.T) {
	h := newHarness(t, "e2e")
	_, err := h.run(t, missingCriteria{h.client})
	if !browser.IsAssertion(err) || !strings.Contains(err.Error(), "criteria_results") {
		t.Fatalf("err = %v, want criteria_results assertion", err)
	}
}

func TestRun_EmptyCriteriaStillPasses(t *testing.T) {
	h := newHarness(t, "e2e")
	h.pipeline.Criteria = nil

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if r := find(t, out.Ledger, scenario.StageFetchReport); !strings.HasPrefix(r.Detail, "0 criteria") {
		t.Errorf("FetchReport detail = %q", r.Detail)
	}
}

func TestRun_OptionalAPIFeaturesAbsent(t *testing.T) {
	h := newHarness(t, "smoke")
	for _, name := range []string{scenario.StageDlqRequeue, scenario.StageHumanReviewResume} {
		if err := h.def.Toggle(name, true); err != nil {
			t.Fatal(err)
		}
	}

	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, name := range []string{scenario.StageDlqRequeue, scenario.StageHumanReviewResume} {
		if r := find(t, out.Ledger, name); !r.OK() || r.Detail != scenario.NotPresent {
			t.Errorf("%s = %+v, want pass with %q", name, r, scenario.NotPresent)
		}
	}
	if h.pipeline.Effects(apitest.RouteResume) != 0 || h.pipeline.Effects(apitest.RouteRequeue) != 0 {
		t.Error("absent features must not trigger calls with side effects")
	}
}

func TestRun_SmokeSkipsDisabledStages(t *testing.T) {
	h := newHarness(t, "smoke")
	out, err := h.run(t, nil)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	want := []string{
		scenario.StageLanding, scenario.StageUpload, scenario.StageRunJob,
		scenario.StageCreateEvaluation, scenario.StageFetchReport, scenario.StageRenderReport,
	}
	if diff := cmp.Diff(want, labels(out.Ledger.Results())); diff != "" {
		t.Errorf("stages (-want +got):\n%s", diff)
	}
}

func TestRun_SummaryOnEveryExit(t *testing.T) {
	h := newHarness(t, "e2e")
	h.pipeline.Fail(apitest.RouteUpload, apitest.Failure{Status: http.StatusServiceUnavailable, Raw: "<html>down</html>"})
	var buf bytes.Buffer
	h.opts.Summary = &buf

	_, err := h.run(t, nil)
	if !api.IsTransport(err) {
		t.Fatalf("err = %v, want transport error", err)
	}
	out := strings.ToLower(buf.String())
	if !strings.Contains(out, "upload") || !strings.Contains(out, "1 of 2 checks failed") {
		t.Errorf("summary missing on abort:\n%s", buf.String())
	}
}

func TestRun_LedgerPassedThrough(t *testing.T) {
	h := newHarness(t, "smoke")
	lg := ledger.New()
	lg.Record("preflight", true, "")

	r, err := scenario.NewRunner(h.client, h.page.opener(nil), h.def, h.opts)
	if err != nil {
		t.Fatal(err)
	}
	got, err := r.Run(context.Background(), lg)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if got != lg {
		t.Error("Run must return the ledger it was given")
	}
	if first := got.Results()[0].Label; first != "preflight" {
		t.Errorf("first result = %s, want the caller's preflight", first)
	}
}

func TestRun_CancelledContext(t *testing.T) {
	h := newHarness(t, "e2e")
	r, err := scenario.NewRunner(h.client, h.page.opener(&h.opens), h.def, h.opts)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	lg, err := r.Run(ctx, nil)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if n := len(lg.Results()); n != 0 {
		t.Errorf("recorded %d results after cancellation", n)
	}
}

func TestNewRunner_Validation(t *testing.T) {
	h := newHarness(t, "e2e")
	if _, err := scenario.NewRunner(nil, nil, h.def, h.opts); err == nil {
		t.Error("nil client: want error")
	}
	opts := h.opts
	opts.UIBaseURL = ""
	if _, err := scenario.NewRunner(h.client, nil, h.def, opts); err == nil {
		t.Error("empty UI base: want error")
	}
	bad := *h.def
	bad.Selectors.ReviewForm = ""
	if _, err := scenario.NewRunner(h.client, nil, &bad, h.opts); err == nil || !strings.Contains(err.Error(), "review_form") {
		t.Errorf("missing selector: err = %v", err)
	}
}
