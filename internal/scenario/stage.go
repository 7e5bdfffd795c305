package scenario

import "context"

// Kind decides how a stage's failure affects the run.
type Kind int

const (
	// Mandatory stage failures abort the run.
	Mandatory Kind = iota
	// Optional stage failures are recorded and the run continues.
	Optional
	// Terminal stages always run last and record nothing.
	Terminal
)

func (k Kind) String() string {
	switch k {
	case Mandatory:
		return "mandatory"
	case Optional:
		return "optional"
	default:
		return "terminal"
	}
}

// Stage names, in run order.
const (
	StageLanding             = "Landing"
	StageUpload              = "Upload"
	StageRunJob              = "RunJob"
	StageCreateEvaluation    = "CreateEvaluation"
	StageFetchReport         = "FetchReport"
	StageRenderReport        = "RenderReport"
	StageCitationInteraction = "CitationInteraction"
	StageDlqPage             = "DlqPage"
	StageDlqRequeue          = "DlqRequeue"
	StageHumanReviewResume   = "HumanReviewResume"
	StageRolePermission      = "RolePermission"
	StageSummarize           = "Summarize"
)

// Stage is one step of the run. run returns the detail recorded on success.
type Stage struct {
	Name        string
	Kind        Kind
	DefaultOn   bool
	UI          bool
	Description string

	run func(r *run, ctx context.Context) (string, error)
}

// stages is the fixed run order.
var stages = []Stage{
	{Name: StageLanding, Kind: Optional, DefaultOn: true, UI: true,
		Description: "dashboard heading and navigation render", run: (*run).landing},
	{Name: StageUpload, Kind: Mandatory, DefaultOn: true,
		Description: "upload the fixture document", run: (*run).upload},
	{Name: StageRunJob, Kind: Mandatory, DefaultOn: true,
		Description: "run the upload's parse job", run: (*run).runJob},
	{Name: StageCreateEvaluation, Kind: Mandatory, DefaultOn: true,
		Description: "create an evaluation for the uploaded supplier", run: (*run).createEvaluation},
	{Name: StageFetchReport, Kind: Mandatory, DefaultOn: true,
		Description: "report matches the evaluation and carries criteria results", run: (*run).fetchReport},
	{Name: StageRenderReport, Kind: Mandatory, DefaultOn: true, UI: true,
		Description: "report view shows a criteria table or an error region", run: (*run).renderReport},
	{Name: StageCitationInteraction, Kind: Optional, DefaultOn: true, UI: true,
		Description: "citation opens the evidence detail", run: (*run).citationInteraction},
	{Name: StageDlqPage, Kind: Optional, DefaultOn: true, UI: true,
		Description: "DLQ page shows items or an empty state", run: (*run).dlqPage},
	{Name: StageDlqRequeue, Kind: Optional, DefaultOn: false,
		Description: "requeue replayed with one idempotency key has one effect", run: (*run).dlqRequeue},
	{Name: StageHumanReviewResume, Kind: Optional, DefaultOn: false,
		Description: "paused evaluation resumes with its token", run: (*run).humanReviewResume},
	{Name: StageRolePermission, Kind: Optional, DefaultOn: true, UI: true,
		Description: "review form visibility follows the role table", run: (*run).rolePermission},
	{Name: StageSummarize, Kind: Terminal, DefaultOn: true,
		Description: "print the result table and derive the exit code"},
}

// Stages returns the run order.
func Stages() []Stage {
	out := make([]Stage, len(stages))
	copy(out, stages)
	return out
}

// StageNames returns stage names in run order.
func StageNames() []string {
	names := make([]string, len(stages))
	for i, s := range stages {
		names[i] = s.Name
	}
	return names
}

func lookupStage(name string) (Stage, bool) {
	for _, s := range stages {
		if s.Name == name {
			return s, true
		}
	}
	return Stage{}, false
}
