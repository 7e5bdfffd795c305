package api

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
)

// UploadDocument posts a document as multipart form data.
func (c *Client) UploadDocument(ctx context.Context, up Upload, opts ...CallOption) (*UploadResult, error) {
	name := up.FileName
	if name == "" {
		name = "document.pdf"
	}
	body := Multipart([]Field{
		{Name: "project_id", Value: up.ProjectID},
		{Name: "supplier_id", Value: up.SupplierID},
		{Name: "doc_type", Value: up.DocType},
	}, &File{Field: "file", Name: name, Content: up.Content})

	var out UploadResult
	if err := c.sendInto(ctx, http.MethodPost, "/api/v1/documents/upload", body, mutatingHeader(opts), &out); err != nil {
		return nil, err
	}
	if out.JobID == "" {
		return nil, fmt.Errorf("upload document: response has no job_id")
	}
	return &out, nil
}

// RunJob forces one execution of a job through the internal debug route.
func (c *Client) RunJob(ctx context.Context, jobID string) (*JobRun, error) {
	h := http.Header{}
	h.Set(HeaderInternalDebug, "true")
	var out JobRun
	path := "/api/v1/internal/jobs/" + url.PathEscape(jobID) + "/run"
	if err := c.sendInto(ctx, http.MethodPost, path, nil, h, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CreateEvaluation starts an evaluation and returns its id.
func (c *Client) CreateEvaluation(ctx context.Context, req EvaluationRequest, opts ...CallOption) (*EvaluationCreated, error) {
	var out EvaluationCreated
	if err := c.sendInto(ctx, http.MethodPost, "/api/v1/evaluations", JSON(req), mutatingHeader(opts), &out); err != nil {
		return nil, err
	}
	if out.EvaluationID == "" {
		return nil, fmt.Errorf("create evaluation: response has no evaluation_id")
	}
	return &out, nil
}

// GetReport fetches the report of an evaluation.
func (c *Client) GetReport(ctx context.Context, evaluationID string) (*Report, error) {
	var out Report
	path := "/api/v1/evaluations/" + url.PathEscape(evaluationID) + "/report"
	if err := c.sendInto(ctx, http.MethodGet, path, nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResumeEvaluation continues an evaluation paused for human review.
func (c *Client) ResumeEvaluation(ctx context.Context, evaluationID string, r Resume, opts ...CallOption) (*ResumeAccepted, error) {
	var out ResumeAccepted
	path := "/api/v1/evaluations/" + url.PathEscape(evaluationID) + "/resume"
	if err := c.sendInto(ctx, http.MethodPost, path, JSON(r), mutatingHeader(opts), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListDLQ lists the tenant's dead-letter items.
func (c *Client) ListDLQ(ctx context.Context) (*DLQPage, error) {
	var out DLQPage
	if err := c.sendInto(ctx, http.MethodGet, "/api/v1/dlq/items", nil, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// RequeueDLQ puts a dead-letter item back on the queue.
func (c *Client) RequeueDLQ(ctx context.Context, dlqID, reason string, opts ...CallOption) (*DLQAction, error) {
	var out DLQAction
	path := "/api/v1/dlq/items/" + url.PathEscape(dlqID) + "/requeue"
	body := JSON(map[string]string{"reason": reason})
	if err := c.sendInto(ctx, http.MethodPost, path, body, mutatingHeader(opts), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// DiscardDLQ drops a dead-letter item; the pipeline demands dual approval.
func (c *Client) DiscardDLQ(ctx context.Context, dlqID string, d Discard, opts ...CallOption) (*DLQAction, error) {
	var out DLQAction
	path := "/api/v1/dlq/items/" + url.PathEscape(dlqID) + "/discard"
	if err := c.sendInto(ctx, http.MethodPost, path, JSON(d), mutatingHeader(opts), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
