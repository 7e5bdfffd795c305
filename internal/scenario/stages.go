package scenario

import (
	"context"
	"fmt"
	"net/url"
	"strings"

	"bidcheck/internal/api"
	"bidcheck/internal/browser"
	"bidcheck/internal/roles"
)

func (ru *run) landing(ctx context.Context) (string, error) {
	p, err := ru.ui(ctx)
	if err != nil {
		return "", err
	}
	if err := p.Navigate(ctx, ru.url(ru.def.Routes.Landing, "")); err != nil {
		return "", err
	}
	wait := ru.opts.OptionalWait
	if err := p.Expect(ctx, wait, browser.Expect("landing heading", ru.loc.landingHeading)); err != nil {
		return "", err
	}
	title, err := p.Text(ctx, ru.loc.landingHeading)
	if err != nil {
		return "", err
	}
	if !strings.Contains(title, ru.def.LandingTitle) {
		return "", &browser.AssertionError{
			Expected: fmt.Sprintf("heading containing %q", ru.def.LandingTitle),
			Observed: fmt.Sprintf("heading %q", title),
		}
	}
	if err := p.Expect(ctx, wait, browser.Expect("navigation", ru.loc.nav)); err != nil {
		return "", err
	}
	return "heading and navigation visible", nil
}

func (ru *run) upload(ctx context.Context) (string, error) {
	fx := ru.def.Upload
	content, err := fx.document()
	if err != nil {
		return "", err
	}
	res, err := ru.api.UploadDocument(ctx, api.Upload{
		ProjectID:  fx.ProjectID,
		SupplierID: fx.SupplierID,
		DocType:    fx.DocType,
		FileName:   fx.FileName,
		Content:    content,
	})
	if err != nil {
		return "", err
	}
	if err := ru.pc.SetDocumentID(res.DocumentID); err != nil {
		return "", err
	}
	if err := ru.pc.SetJobID(res.JobID); err != nil {
		return "", err
	}
	return fmt.Sprintf("document_id=%s job_id=%s", res.DocumentID, res.JobID), nil
}

func (ru *run) runJob(ctx context.Context) (string, error) {
	jobID, err := ru.pc.JobID()
	if err != nil {
		return "", err
	}
	res, err := ru.api.RunJob(ctx, jobID)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("job_id=%s status=%s", jobID, res.Status), nil
}

func (ru *run) createEvaluation(ctx context.Context) (string, error) {
	res, err := ru.api.CreateEvaluation(ctx, ru.def.Evaluation.request(ru.def.Upload))
	if err != nil {
		return "", err
	}
	if err := ru.pc.SetEvaluationID(res.EvaluationID); err != nil {
		return "", err
	}
	return "evaluation_id=" + res.EvaluationID, nil
}

func (ru *run) fetchReport(ctx context.Context) (string, error) {
	id, err := ru.pc.EvaluationID()
	if err != nil {
		return "", err
	}
	rep, err := ru.api.GetReport(ctx, id)
	if err != nil {
		return "", err
	}
	if rep.EvaluationID != id {
		return "", &browser.AssertionError{
			Expected: "report for " + id,
			Observed: "report for " + rep.EvaluationID,
		}
	}
	if !rep.CriteriaPresent {
		return "", &browser.AssertionError{
			Expected: "criteria_results present",
			Observed: "criteria_results missing",
			Detail:   "evaluation_id=" + id,
		}
	}
	if err := ru.pc.SetReport(rep); err != nil {
		return "", err
	}
	return fmt.Sprintf("%d criteria, needs_human_review=%t", len(rep.CriteriaResults), rep.NeedsHumanReview), nil
}

func (ru *run) renderReport(ctx context.Context) (string, error) {
	id, err := ru.pc.EvaluationID()
	if err != nil {
		return "", err
	}
	p, err := ru.ui(ctx)
	if err != nil {
		return "", err
	}
	if err := p.Navigate(ctx, ru.url(ru.def.Routes.Report, id)); err != nil {
		return "", err
	}
	wait := ru.opts.MandatoryWait
	if err := p.Expect(ctx, wait, browser.Expect("report header", ru.loc.reportHeader)); err != nil {
		return "", err
	}

	errorText, err := ru.locales.Outcome(browser.StateReportError)
	if err != nil {
		return "", err
	}
	errorRegion := browser.Expect("error region", append([]browser.Locator{ru.loc.reportError}, errorText.Locators...)...)
	table := browser.Expect("criteria table", ru.loc.criteriaTable)

	i, err := p.FirstOf(ctx, wait, table, errorRegion)
	if err != nil {
		return "", err
	}
	if i == 0 {
		return "criteria table rendered", nil
	}
	return "error region rendered", nil
}

func (ru *run) citationInteraction(ctx context.Context) (string, error) {
	p, err := ru.ui(ctx)
	if err != nil {
		return "", err
	}
	present, err := p.Present(ctx, ru.loc.citation)
	if err != nil {
		return "", err
	}
	if !present {
		return NotPresent, nil
	}
	if err := p.Click(ctx, ru.loc.citation); err != nil {
		return "", err
	}
	if err := p.Expect(ctx, ru.opts.OptionalWait, browser.Expect("evidence detail", ru.loc.evidenceDetail)); err != nil {
		return "", err
	}
	return "citation opened evidence detail", nil
}

func (ru *run) dlqPage(ctx context.Context) (string, error) {
	p, err := ru.ui(ctx)
	if err != nil {
		return "", err
	}
	if err := p.Navigate(ctx, ru.url(ru.def.Routes.DLQ, "")); err != nil {
		return "", err
	}
	empty, err := ru.locales.Outcome(browser.StateDLQEmpty)
	if err != nil {
		return "", err
	}
	i, err := p.FirstOf(ctx, ru.opts.OptionalWait,
		browser.Expect("dlq table", ru.loc.dlqTable),
		empty,
		browser.Expect("error banner", ru.loc.dlqError),
	)
	if err != nil {
		return "", err
	}
	switch i {
	case 0:
		return "dlq items listed", nil
	case 1:
		return "empty state shown", nil
	}
	banner, err := p.Text(ctx, ru.loc.dlqError)
	if err != nil {
		ru.logger.Warn("reading DLQ error banner", "error", err)
		banner = "banner text unavailable: " + err.Error()
	}
	return "", &browser.AssertionError{
		Expected: "DLQ table or empty state",
		Observed: "error banner",
		Detail:   banner,
	}
}

func (ru *run) dlqRequeue(ctx context.Context) (string, error) {
	page, err := ru.api.ListDLQ(ctx)
	if err != nil {
		return "", err
	}
	var item *api.DLQItem
	for i := range page.Items {
		if page.Items[i].Status == "open" {
			item = &page.Items[i]
			break
		}
	}
	if item == nil {
		return NotPresent, nil
	}

	key := api.WithIdempotencyKey(api.NewIdempotencyKey())
	first, err := ru.api.RequeueDLQ(ctx, item.DLQID, ru.def.DLQ.RequeueReason, key)
	if err != nil {
		return "", err
	}
	replay, err := ru.api.RequeueDLQ(ctx, item.DLQID, ru.def.DLQ.RequeueReason, key)
	if err != nil {
		return "", fmt.Errorf("replay: %w", err)
	}
	if replay.JobID != first.JobID {
		return "", &browser.AssertionError{
			Expected: "replay to return job " + first.JobID,
			Observed: "job " + replay.JobID,
			Detail:   "one idempotency key produced two requeues of " + item.DLQID,
		}
	}
	return fmt.Sprintf("dlq_id=%s requeued once as job_id=%s", item.DLQID, first.JobID), nil
}

func (ru *run) humanReviewResume(ctx context.Context) (string, error) {
	rep, err := ru.pc.Report()
	if err != nil {
		return "", err
	}
	if rep.Interrupt == nil || rep.Interrupt.ResumeToken == "" {
		return NotPresent, nil
	}
	id, err := ru.pc.EvaluationID()
	if err != nil {
		return "", err
	}
	rv := ru.def.Review
	res, err := ru.api.ResumeEvaluation(ctx, id, api.Resume{
		ResumeToken: rep.Interrupt.ResumeToken,
		Decision:    rv.Decision,
		Comment:     rv.Comment,
		Editor:      api.Editor{ReviewerID: rv.ReviewerID},
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("resumed as job_id=%s status=%s", res.JobID, res.Status), nil
}

func (ru *run) rolePermission(ctx context.Context) (string, error) {
	id, err := ru.pc.EvaluationID()
	if err != nil {
		return "", err
	}
	p, err := ru.ui(ctx)
	if err != nil {
		return "", err
	}
	role := roles.Normalize(ru.opts.Role)
	target := ru.url(ru.def.Routes.Evaluation, id) + "?role=" + url.QueryEscape(role)
	if err := p.Navigate(ctx, target); err != nil {
		return "", err
	}

	denied, err := ru.locales.Outcome(browser.StatePermissionDenied)
	if err != nil {
		return "", err
	}
	outcomes := []browser.Outcome{browser.Expect("review form", ru.loc.reviewForm), denied}
	i, err := p.FirstOf(ctx, ru.opts.OptionalWait, outcomes...)
	if err != nil {
		return "", err
	}

	want := 1
	if roles.Can(role, roles.Review) {
		want = 0
	}
	if i != want {
		return "", &browser.AssertionError{
			Expected: outcomes[want].Name,
			Observed: outcomes[i].Name,
			Detail:   "role=" + role,
		}
	}
	return fmt.Sprintf("role=%s sees %s", role, outcomes[i].Name), nil
}
