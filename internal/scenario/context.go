package scenario

import (
	"errors"
	"fmt"

	"bidcheck/internal/api"
)

// ErrAlreadySet is returned when a stage writes a PipelineContext field that
// an earlier stage produced.
var ErrAlreadySet = errors.New("pipeline context field already set")

// ErrNotSet is returned when a stage reads a field no earlier stage produced.
var ErrNotSet = errors.New("pipeline context field not set")

type slot[T any] struct {
	v   T
	set bool
}

func (s *slot[T]) put(name string, v T) error {
	if s.set {
		return fmt.Errorf("%s: %w", name, ErrAlreadySet)
	}
	s.v, s.set = v, true
	return nil
}

func (s *slot[T]) get(name string) (T, error) {
	if !s.set {
		var zero T
		return zero, fmt.Errorf("%s: %w", name, ErrNotSet)
	}
	return s.v, nil
}

// PipelineContext threads identifiers between stages of one run. Each field
// is written once by the stage that produces it.
type PipelineContext struct {
	documentID   slot[string]
	jobID        slot[string]
	evaluationID slot[string]
	report       slot[*api.Report]
}

func (p *PipelineContext) SetDocumentID(id string) error { return p.documentID.put("document_id", id) }
func (p *PipelineContext) SetJobID(id string) error      { return p.jobID.put("job_id", id) }
func (p *PipelineContext) SetEvaluationID(id string) error {
	return p.evaluationID.put("evaluation_id", id)
}
func (p *PipelineContext) SetReport(r *api.Report) error { return p.report.put("report", r) }

func (p *PipelineContext) DocumentID() (string, error)   { return p.documentID.get("document_id") }
func (p *PipelineContext) JobID() (string, error)        { return p.jobID.get("job_id") }
func (p *PipelineContext) EvaluationID() (string, error) { return p.evaluationID.get("evaluation_id") }
func (p *PipelineContext) Report() (*api.Report, error)  { return p.report.get("report") }

// Snapshot is a read-only view of what the run produced.
type Snapshot struct {
	DocumentID   string `json:"document_id,omitempty"`
	JobID        string `json:"job_id,omitempty"`
	EvaluationID string `json:"evaluation_id,omitempty"`
}

// Snapshot copies the identifiers produced so far.
func (p *PipelineContext) Snapshot() Snapshot {
	return Snapshot{
		DocumentID:   p.documentID.v,
		JobID:        p.jobID.v,
		EvaluationID: p.evaluationID.v,
	}
}
