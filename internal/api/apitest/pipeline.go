// Package apitest provides an in-process stand-in for the evaluation
// pipeline's HTTP interface. It speaks the same envelopes, enforces the same
// required headers and deduplicates mutating calls by idempotency key.
package apitest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// Recorded is one request as the fake saw it.
type Recorded struct {
	Method         string
	Path           string
	Tenant         string
	TraceID        string
	IdempotencyKey string
	ContentType    string
	InternalDebug  string
}

// Failure is an injected error response for a route.
type Failure struct {
	Status  int
	Code    string
	Message string
	// Raw, when set, is written verbatim instead of an error envelope.
	Raw string
}

type idemRecord struct {
	fingerprint string
	status      int
	data        any
}

// Pipeline is a fake evaluation pipeline. The zero value is not usable; use New.
type Pipeline struct {
	mu sync.Mutex

	seq         int
	documents   map[string]map[string]string
	jobs        map[string]map[string]any
	reports     map[string]map[string]any
	resumeToken map[string]string
	dlq         map[string]map[string]any
	dlqOrder    []string
	idem        map[string]idemRecord
	effects     map[string]int
	failures    map[string]Failure
	requests    []Recorded

	// Criteria is copied into every report. Defaults to one bid criterion.
	Criteria []map[string]any
}

// New returns an empty pipeline.
func New() *Pipeline {
	return &Pipeline{
		documents:   map[string]map[string]string{},
		jobs:        map[string]map[string]any{},
		reports:     map[string]map[string]any{},
		resumeToken: map[string]string{},
		dlq:         map[string]map[string]any{},
		idem:        map[string]idemRecord{},
		effects:     map[string]int{},
		failures:    map[string]Failure{},
		Criteria: []map[string]any{{
			"criteria_id":   "delivery",
			"criteria_name": "Delivery period",
			"max_score":     20.0,
			"weight":        1.0,
		}},
	}
}

// Start serves the pipeline on a test server closed with t.
func (p *Pipeline) Start(t testing.TB) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(p.Handler())
	t.Cleanup(srv.Close)
	return srv
}

// Route names used by Fail and Effects.
const (
	RouteUpload           = "upload"
	RouteRunJob           = "run_job"
	RouteCreateEvaluation = "create_evaluation"
	RouteReport           = "report"
	RouteResume           = "resume"
	RouteListDLQ          = "list_dlq"
	RouteRequeue          = "requeue"
	RouteDiscard          = "discard"
)

// Handler returns the pipeline's HTTP handler.
func (p *Pipeline) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/v1/documents/upload", p.wrap(RouteUpload, p.upload))
	mux.HandleFunc("POST /api/v1/internal/jobs/{job_id}/run", p.wrap(RouteRunJob, p.runJob))
	mux.HandleFunc("POST /api/v1/evaluations", p.wrap(RouteCreateEvaluation, p.createEvaluation))
	mux.HandleFunc("GET /api/v1/evaluations/{evaluation_id}/report", p.wrap(RouteReport, p.report))
	mux.HandleFunc("POST /api/v1/evaluations/{evaluation_id}/resume", p.wrap(RouteResume, p.resume))
	mux.HandleFunc("GET /api/v1/dlq/items", p.wrap(RouteListDLQ, p.listDLQ))
	mux.HandleFunc("POST /api/v1/dlq/items/{item_id}/requeue", p.wrap(RouteRequeue, p.requeue))
	mux.HandleFunc("POST /api/v1/dlq/items/{item_id}/discard", p.wrap(RouteDiscard, p.discard))
	return mux
}

// Fail makes every subsequent call to route answer with f.
func (p *Pipeline) Fail(route string, f Failure) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.failures[route] = f
}

// Effects counts side effects actually executed for route; replays of an
// idempotent call do not count.
func (p *Pipeline) Effects(route string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.effects[route]
}

// Requests returns every request received, in arrival order.
func (p *Pipeline) Requests() []Recorded {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Recorded(nil), p.requests...)
}

// SeedDLQ adds an open dead-letter item for jobID and returns its id.
func (p *Pipeline) SeedDLQ(jobID, errorCode string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID("dlq")
	p.dlq[id] = map[string]any{
		"dlq_id":      id,
		"job_id":      jobID,
		"error_class": "transient",
		"error_code":  errorCode,
		"status":      "open",
	}
	p.dlqOrder = append(p.dlqOrder, id)
	return id
}

// DLQStatus returns the status of a dead-letter item, or "" if unknown.
func (p *Pipeline) DLQStatus(id string) string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if item, ok := p.dlq[id]; ok {
		return item["status"].(string)
	}
	return ""
}

// apiError is a failure raised by a route handler.
type apiError struct {
	status  int
	code    string
	message string
	class   string
}

func (e *apiError) Error() string { return e.code + ": " + e.message }

type handler func(r *http.Request, rec Recorded) (int, any, error)

func (p *Pipeline) wrap(route string, h handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		rec := Recorded{
			Method:         r.Method,
			Path:           r.URL.Path,
			Tenant:         r.Header.Get("x-tenant-id"),
			TraceID:        r.Header.Get("x-trace-id"),
			IdempotencyKey: r.Header.Get("Idempotency-Key"),
			ContentType:    r.Header.Get("Content-Type"),
			InternalDebug:  r.Header.Get("x-internal-debug"),
		}
		p.mu.Lock()
		p.requests = append(p.requests, rec)
		f, failing := p.failures[route]
		p.mu.Unlock()

		if failing {
			if f.Raw != "" {
				w.WriteHeader(f.Status)
				io.WriteString(w, f.Raw)
				return
			}
			writeError(w, rec.TraceID, &apiError{status: f.Status, code: f.Code, message: f.Message, class: "injected"})
			return
		}
		if rec.TraceID == "" {
			writeError(w, "", &apiError{http.StatusBadRequest, "TRACE_ID_REQUIRED", "x-trace-id header is required", "validation"})
			return
		}
		if rec.Tenant == "" {
			writeError(w, rec.TraceID, &apiError{http.StatusBadRequest, "TENANT_REQUIRED", "x-tenant-id header is required", "validation"})
			return
		}

		status, data, err := h(r, rec)
		if err != nil {
			var ae *apiError
			if e, ok := err.(*apiError); ok {
				ae = e
			} else {
				ae = &apiError{http.StatusInternalServerError, "INTERNAL", err.Error(), "internal"}
			}
			writeError(w, rec.TraceID, ae)
			return
		}
		writeJSON(w, status, map[string]any{
			"success": true,
			"data":    data,
			"message": "ok",
			"meta":    map[string]any{"trace_id": rec.TraceID},
		})
	}
}

func writeError(w http.ResponseWriter, traceID string, e *apiError) {
	writeJSON(w, e.status, map[string]any{
		"success": false,
		"error": map[string]any{
			"code":      e.code,
			"message":   e.message,
			"retryable": false,
			"class":     e.class,
		},
		"meta": map[string]any{"trace_id": traceID},
	})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// idempotent executes fn at most once per tenant+endpoint+key. The lock is
// held across fn so concurrent deliveries of the same call see one effect.
func (p *Pipeline) idempotent(route, endpoint string, rec Recorded, payload any, fn func() (int, any, error)) (int, any, error) {
	if rec.IdempotencyKey == "" {
		return 0, nil, &apiError{http.StatusBadRequest, "IDEMPOTENCY_MISSING", "Idempotency-Key header is required", "validation"}
	}
	fp := fingerprint(payload)
	key := rec.Tenant + ":" + endpoint + "|" + rec.IdempotencyKey

	p.mu.Lock()
	defer p.mu.Unlock()
	if prev, ok := p.idem[key]; ok {
		if prev.fingerprint != fp {
			return 0, nil, &apiError{http.StatusConflict, "IDEMPOTENCY_CONFLICT", "same key with different payload", "validation"}
		}
		return prev.status, prev.data, nil
	}
	status, data, err := fn()
	if err != nil {
		return 0, nil, err
	}
	p.effects[route]++
	p.idem[key] = idemRecord{fingerprint: fp, status: status, data: data}
	return status, data, nil
}

func fingerprint(payload any) string {
	data, _ := json.Marshal(payload)
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// nextID must be called with p.mu held.
func (p *Pipeline) nextID(prefix string) string {
	p.seq++
	return fmt.Sprintf("%s_%06d", prefix, p.seq)
}

func (p *Pipeline) upload(r *http.Request, rec Recorded) (int, any, error) {
	if !strings.HasPrefix(rec.ContentType, "multipart/form-data; boundary=") {
		return 0, nil, &apiError{http.StatusUnsupportedMediaType, "UPLOAD_NOT_MULTIPART", "multipart/form-data with boundary required", "validation"}
	}
	if err := r.ParseMultipartForm(8 << 20); err != nil {
		return 0, nil, &apiError{http.StatusBadRequest, "UPLOAD_MALFORMED", err.Error(), "validation"}
	}
	fields := map[string]string{}
	for _, name := range []string{"project_id", "supplier_id", "doc_type"} {
		v := r.FormValue(name)
		if v == "" {
			return 0, nil, &apiError{http.StatusBadRequest, "REQ_VALIDATION_FAILED", name + " is required", "validation"}
		}
		fields[name] = v
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		return 0, nil, &apiError{http.StatusBadRequest, "REQ_VALIDATION_FAILED", "file is required", "validation"}
	}
	content, _ := io.ReadAll(file)
	file.Close()
	payload := map[string]string{"filename": header.Filename, "sha256": fingerprint(string(content))}
	for k, v := range fields {
		payload[k] = v
	}

	return p.idempotent(RouteUpload, "POST:/api/v1/documents/upload", rec, payload, func() (int, any, error) {
		docID := p.nextID("doc")
		jobID := p.nextID("job")
		p.documents[docID] = fields
		p.jobs[jobID] = map[string]any{"job_id": jobID, "job_type": "parse", "status": "queued", "retry_count": 0, "tenant_id": rec.Tenant}
		return http.StatusAccepted, map[string]any{"document_id": docID, "job_id": jobID, "status": "queued"}, nil
	})
}

func (p *Pipeline) runJob(r *http.Request, rec Recorded) (int, any, error) {
	if rec.InternalDebug != "true" {
		return 0, nil, &apiError{http.StatusForbidden, "AUTH_FORBIDDEN", "internal debug header required", "security"}
	}
	jobID := r.PathValue("job_id")
	p.mu.Lock()
	defer p.mu.Unlock()
	job, ok := p.jobs[jobID]
	if !ok || job["tenant_id"] != rec.Tenant {
		return 0, nil, &apiError{http.StatusNotFound, "JOB_NOT_FOUND", "job not found", "validation"}
	}
	job["status"] = "succeeded"
	p.effects[RouteRunJob]++
	return http.StatusOK, map[string]any{"job_id": jobID, "status": "succeeded", "retry_count": job["retry_count"]}, nil
}

type evaluationBody struct {
	ProjectID       string `json:"project_id"`
	SupplierID      string `json:"supplier_id"`
	RulePackVersion string `json:"rule_pack_version"`
	EvaluationScope struct {
		IncludeDocTypes []string `json:"include_doc_types"`
		ForceHITL       bool     `json:"force_hitl"`
	} `json:"evaluation_scope"`
	QueryOptions map[string]any `json:"query_options"`
}

func decodeJSON(r *http.Request, dst any) error {
	if ct := r.Header.Get("Content-Type"); !strings.HasPrefix(ct, "application/json") {
		return &apiError{http.StatusUnsupportedMediaType, "REQ_VALIDATION_FAILED", "application/json required, got " + ct, "validation"}
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		return &apiError{http.StatusBadRequest, "REQ_VALIDATION_FAILED", err.Error(), "validation"}
	}
	return nil
}

func (p *Pipeline) createEvaluation(r *http.Request, rec Recorded) (int, any, error) {
	var body evaluationBody
	if err := decodeJSON(r, &body); err != nil {
		return 0, nil, err
	}
	if body.ProjectID == "" || body.SupplierID == "" || body.RulePackVersion == "" {
		return 0, nil, &apiError{http.StatusBadRequest, "REQ_VALIDATION_FAILED", "project_id, supplier_id and rule_pack_version are required", "validation"}
	}
	return p.idempotent(RouteCreateEvaluation, "POST:/api/v1/evaluations", rec, body, func() (int, any, error) {
		evalID := p.nextID("ev")
		jobID := p.nextID("job")
		hardPass := false
		for _, dt := range body.EvaluationScope.IncludeDocTypes {
			if strings.EqualFold(dt, "bid") {
				hardPass = true
			}
		}
		criteria := make([]map[string]any, 0, len(p.Criteria))
		for _, c := range p.Criteria {
			maxScore, _ := c["max_score"].(float64)
			score := 0.0
			cite := "ck_rule_block_1"
			if hardPass {
				score = maxScore * 0.9
				cite = fmt.Sprintf("ck_%v_%s", c["criteria_id"], evalID)
			}
			criteria = append(criteria, map[string]any{
				"criteria_id":     c["criteria_id"],
				"criteria_name":   c["criteria_name"],
				"score":           score,
				"max_score":       maxScore,
				"weight":          c["weight"],
				"hard_pass":       hardPass,
				"citations":       []string{cite},
				"citations_count": 1,
			})
		}
		report := map[string]any{
			"evaluation_id":      evalID,
			"supplier_id":        body.SupplierID,
			"criteria_results":   criteria,
			"needs_human_review": body.EvaluationScope.ForceHITL,
			"tenant_id":          rec.Tenant,
		}
		if body.EvaluationScope.ForceHITL {
			token := p.nextID("rt")
			p.resumeToken[evalID] = token
			report["interrupt"] = map[string]any{
				"type":              "human_review",
				"evaluation_id":     evalID,
				"reasons":           []string{"force_hitl"},
				"suggested_actions": []string{"approve", "reject", "edit_scores"},
				"resume_token":      token,
			}
		}
		p.reports[evalID] = report
		p.jobs[jobID] = map[string]any{"job_id": jobID, "job_type": "evaluation", "status": "queued", "retry_count": 0, "tenant_id": rec.Tenant}
		return http.StatusAccepted, map[string]any{"evaluation_id": evalID, "job_id": jobID, "status": "queued"}, nil
	})
}

func (p *Pipeline) report(r *http.Request, rec Recorded) (int, any, error) {
	id := r.PathValue("evaluation_id")
	p.mu.Lock()
	defer p.mu.Unlock()
	report, ok := p.reports[id]
	if !ok || report["tenant_id"] != rec.Tenant {
		return 0, nil, &apiError{http.StatusNotFound, "EVALUATION_REPORT_NOT_FOUND", "evaluation report not found", "validation"}
	}
	return http.StatusOK, report, nil
}

type resumeBody struct {
	ResumeToken string `json:"resume_token"`
	Decision    string `json:"decision"`
	Comment     string `json:"comment"`
	Editor      struct {
		ReviewerID string `json:"reviewer_id"`
	} `json:"editor"`
}

func (p *Pipeline) resume(r *http.Request, rec Recorded) (int, any, error) {
	id := r.PathValue("evaluation_id")
	var body resumeBody
	if err := decodeJSON(r, &body); err != nil {
		return 0, nil, err
	}
	if strings.TrimSpace(body.Editor.ReviewerID) == "" {
		return 0, nil, &apiError{http.StatusBadRequest, "WF_INTERRUPT_REVIEWER_REQUIRED", "reviewer_id is required for resume", "business_rule"}
	}
	return p.idempotent(RouteResume, "POST:/api/v1/evaluations/"+id+"/resume", rec, body, func() (int, any, error) {
		if token, ok := p.resumeToken[id]; !ok || token != body.ResumeToken {
			return 0, nil, &apiError{http.StatusConflict, "WF_INTERRUPT_RESUME_INVALID", "resume token expired or mismatched", "business_rule"}
		}
		delete(p.resumeToken, id)
		jobID := p.nextID("job")
		p.jobs[jobID] = map[string]any{"job_id": jobID, "job_type": "resume", "status": "queued", "retry_count": 0, "tenant_id": rec.Tenant}
		return http.StatusAccepted, map[string]any{"evaluation_id": id, "job_id": jobID, "status": "queued"}, nil
	})
}

func (p *Pipeline) listDLQ(_ *http.Request, _ Recorded) (int, any, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	items := make([]map[string]any, 0, len(p.dlqOrder))
	for _, id := range p.dlqOrder {
		items = append(items, p.dlq[id])
	}
	return http.StatusOK, map[string]any{"items": items, "total": len(items)}, nil
}

func (p *Pipeline) requeue(r *http.Request, rec Recorded) (int, any, error) {
	id := r.PathValue("item_id")
	var body map[string]any
	if err := decodeJSON(r, &body); err != nil {
		return 0, nil, err
	}
	return p.idempotent(RouteRequeue, "POST:/api/v1/dlq/items/"+id+"/requeue", rec, map[string]any{"dlq_id": id}, func() (int, any, error) {
		item, ok := p.dlq[id]
		if !ok {
			return 0, nil, &apiError{http.StatusNotFound, "DLQ_ITEM_NOT_FOUND", "dlq item not found", "validation"}
		}
		if item["status"] != "open" {
			return 0, nil, &apiError{http.StatusConflict, "DLQ_REQUEUE_CONFLICT", "dlq item is not open", "business_rule"}
		}
		item["status"] = "requeued"
		jobID := p.nextID("job")
		p.jobs[jobID] = map[string]any{"job_id": jobID, "job_type": "requeue", "status": "queued", "retry_count": 0, "tenant_id": rec.Tenant}
		return http.StatusAccepted, map[string]any{"dlq_id": id, "job_id": jobID, "status": "queued"}, nil
	})
}

type discardBody struct {
	Reason      string `json:"reason"`
	ReviewerID  string `json:"reviewer_id"`
	ReviewerID2 string `json:"reviewer_id_2"`
}

func (p *Pipeline) discard(r *http.Request, rec Recorded) (int, any, error) {
	id := r.PathValue("item_id")
	var body discardBody
	if err := decodeJSON(r, &body); err != nil {
		return 0, nil, err
	}
	a, b := strings.TrimSpace(body.ReviewerID), strings.TrimSpace(body.ReviewerID2)
	if strings.TrimSpace(body.Reason) == "" || a == "" || b == "" {
		return 0, nil, &apiError{http.StatusBadRequest, "APPROVAL_REQUIRED", "discard requires reason and dual reviewers", "business_rule"}
	}
	if a == b {
		return 0, nil, &apiError{http.StatusBadRequest, "APPROVAL_REQUIRED", "dual reviewers must be different identities", "business_rule"}
	}
	return p.idempotent(RouteDiscard, "POST:/api/v1/dlq/items/"+id+"/discard", rec, body, func() (int, any, error) {
		item, ok := p.dlq[id]
		if !ok {
			return 0, nil, &apiError{http.StatusNotFound, "DLQ_ITEM_NOT_FOUND", "dlq item not found", "validation"}
		}
		item["status"] = "discarded"
		return http.StatusOK, map[string]any{"dlq_id": id, "status": "discarded"}, nil
	})
}
