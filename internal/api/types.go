package api

import (
	"encoding/json"
	"fmt"
)

// Upload describes one document upload.
type Upload struct {
	ProjectID  string
	SupplierID string
	DocType    string
	FileName   string
	Content    []byte
}

// UploadResult is the data of a successful upload.
type UploadResult struct {
	DocumentID string `json:"document_id"`
	JobID      string `json:"job_id"`
	Status     string `json:"status,omitempty"`
}

// JobRun is the acknowledgement of a debug job run.
type JobRun struct {
	JobID      string `json:"job_id"`
	Status     string `json:"status"`
	RetryCount int    `json:"retry_count"`
}

// EvaluationScope limits which documents an evaluation reads.
type EvaluationScope struct {
	IncludeDocTypes []string `json:"include_doc_types" yaml:"include_doc_types"`
	ForceHITL       bool     `json:"force_hitl" yaml:"force_hitl"`
}

// QueryOptions tunes retrieval for an evaluation.
type QueryOptions struct {
	ModeHint string `json:"mode_hint" yaml:"mode_hint"`
	TopK     int    `json:"top_k" yaml:"top_k"`
}

// EvaluationRequest is the body of POST /api/v1/evaluations.
type EvaluationRequest struct {
	ProjectID       string          `json:"project_id"`
	SupplierID      string          `json:"supplier_id"`
	RulePackVersion string          `json:"rule_pack_version"`
	EvaluationScope EvaluationScope `json:"evaluation_scope"`
	QueryOptions    QueryOptions    `json:"query_options"`
}

// EvaluationCreated is the data of a created evaluation.
type EvaluationCreated struct {
	EvaluationID string `json:"evaluation_id"`
	JobID        string `json:"job_id,omitempty"`
	Status       string `json:"status,omitempty"`
}

// CriterionResult is one scored criterion of a report.
type CriterionResult struct {
	CriteriaID     string   `json:"criteria_id"`
	CriteriaName   string   `json:"criteria_name,omitempty"`
	Score          float64  `json:"score"`
	MaxScore       float64  `json:"max_score"`
	Weight         float64  `json:"weight,omitempty"`
	HardPass       bool     `json:"hard_pass"`
	Reason         string   `json:"reason,omitempty"`
	Citations      []string `json:"citations,omitempty"`
	CitationsCount int      `json:"citations_count,omitempty"`
	Confidence     float64  `json:"confidence,omitempty"`
}

// Interrupt is present on a report paused for human review.
type Interrupt struct {
	Type             string   `json:"type"`
	EvaluationID     string   `json:"evaluation_id"`
	Reasons          []string `json:"reasons,omitempty"`
	SuggestedActions []string `json:"suggested_actions,omitempty"`
	ResumeToken      string   `json:"resume_token"`
}

// Report is the evaluation report. CriteriaPresent records whether the
// criteria_results key was in the response at all; a null value counts as
// present and decodes to an empty slice.
type Report struct {
	EvaluationID     string            `json:"evaluation_id"`
	SupplierID       string            `json:"supplier_id,omitempty"`
	TotalScore       float64           `json:"total_score"`
	Confidence       float64           `json:"confidence"`
	RiskLevel        string            `json:"risk_level,omitempty"`
	CriteriaResults  []CriterionResult `json:"criteria_results"`
	Citations        []string          `json:"citations,omitempty"`
	NeedsHumanReview bool              `json:"needs_human_review"`
	Interrupt        *Interrupt        `json:"interrupt,omitempty"`

	CriteriaPresent bool `json:"-"`
}

func (r *Report) UnmarshalJSON(data []byte) error {
	type report Report
	aux := struct {
		*report
		Criteria json.RawMessage `json:"criteria_results"`
	}{report: (*report)(r)}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	r.CriteriaPresent = aux.Criteria != nil
	r.CriteriaResults = nil
	if !r.CriteriaPresent {
		return nil
	}
	if string(aux.Criteria) != "null" {
		if err := json.Unmarshal(aux.Criteria, &r.CriteriaResults); err != nil {
			return fmt.Errorf("criteria_results: %w", err)
		}
	}
	if r.CriteriaResults == nil {
		r.CriteriaResults = []CriterionResult{}
	}
	return nil
}

// DLQItem is one dead-lettered job.
type DLQItem struct {
	DLQID      string `json:"dlq_id"`
	JobID      string `json:"job_id"`
	ErrorClass string `json:"error_class,omitempty"`
	ErrorCode  string `json:"error_code,omitempty"`
	Status     string `json:"status"`
}

// DLQPage is the data of GET /api/v1/dlq/items.
type DLQPage struct {
	Items []DLQItem `json:"items"`
	Total int       `json:"total"`
}

// DLQAction is the acknowledgement of a requeue or discard.
type DLQAction struct {
	DLQID  string `json:"dlq_id"`
	JobID  string `json:"job_id,omitempty"`
	Status string `json:"status"`
}

// Discard requires a reason and two distinct reviewers.
type Discard struct {
	Reason      string `json:"reason"`
	ReviewerID  string `json:"reviewer_id"`
	ReviewerID2 string `json:"reviewer_id_2"`
}

// Editor identifies who resumed a paused evaluation.
type Editor struct {
	ReviewerID string `json:"reviewer_id"`
}

// Resume is the body of POST /api/v1/evaluations/{id}/resume.
type Resume struct {
	ResumeToken string `json:"resume_token"`
	Decision    string `json:"decision"`
	Comment     string `json:"comment,omitempty"`
	Editor      Editor `json:"editor"`
}

// ResumeAccepted is the data of an accepted resume.
type ResumeAccepted struct {
	EvaluationID string `json:"evaluation_id,omitempty"`
	JobID        string `json:"job_id"`
	Status       string `json:"status"`
}
