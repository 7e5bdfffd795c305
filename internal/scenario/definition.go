package scenario

import (
	"embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"bidcheck/internal/api"
	"bidcheck/internal/browser"
)

//go:embed definitions/*.yaml
var definitionFS embed.FS

// DefaultDefinition names the built-in definition used when none is given.
const DefaultDefinition = "e2e"

// Definition is a scenario file: fixtures, UI routes and selectors, and
// optional-stage toggles.
type Definition struct {
	Name        string `yaml:"name"`
	Description string `yaml:"description"`
	// Extends names a built-in definition this one overlays.
	Extends string `yaml:"extends,omitempty"`

	Upload     UploadFixture     `yaml:"upload"`
	Evaluation EvaluationFixture `yaml:"evaluation"`
	Review     ReviewFixture     `yaml:"review"`
	DLQ        DLQFixture        `yaml:"dlq"`

	Routes       Routes              `yaml:"routes"`
	Selectors    Selectors           `yaml:"selectors"`
	LandingTitle string              `yaml:"landing_title"`
	Locales      browser.LocaleTable `yaml:"locales,omitempty"`

	// Stages toggles optional stages by name. Mandatory stages cannot be
	// turned off.
	Stages map[string]bool `yaml:"stages"`
}

type UploadFixture struct {
	ProjectID  string `yaml:"project_id"`
	SupplierID string `yaml:"supplier_id"`
	DocType    string `yaml:"doc_type"`
	FileName   string `yaml:"file_name"`
	// Content is the inline file body; File, when set, is read instead.
	Content string `yaml:"content"`
	File    string `yaml:"file,omitempty"`
}

type EvaluationFixture struct {
	RulePackVersion string              `yaml:"rule_pack_version"`
	EvaluationScope api.EvaluationScope `yaml:"evaluation_scope"`
	QueryOptions    api.QueryOptions    `yaml:"query_options"`
}

type ReviewFixture struct {
	ReviewerID string `yaml:"reviewer_id"`
	Decision   string `yaml:"decision"`
	Comment    string `yaml:"comment"`
}

type DLQFixture struct {
	RequeueReason string `yaml:"requeue_reason"`
}

// Routes are UI paths; "{evaluation_id}" is substituted at run time.
type Routes struct {
	Landing    string `yaml:"landing"`
	Report     string `yaml:"report"`
	Evaluation string `yaml:"evaluation"`
	DLQ        string `yaml:"dlq"`
}

// Selectors are locator strings in browser.ParseLocator form.
type Selectors struct {
	LandingHeading string `yaml:"landing_heading"`
	Nav            string `yaml:"nav"`
	ReportHeader   string `yaml:"report_header"`
	CriteriaTable  string `yaml:"criteria_table"`
	ReportError    string `yaml:"report_error"`
	Citation       string `yaml:"citation"`
	EvidenceDetail string `yaml:"evidence_detail"`
	DLQTable       string `yaml:"dlq_table"`
	DLQError       string `yaml:"dlq_error"`
	ReviewForm     string `yaml:"review_form"`
}

// LoadDefinition resolves ref as a file path if one exists, else as the name
// of a built-in definition. An empty ref loads DefaultDefinition.
func LoadDefinition(ref string) (*Definition, error) {
	if ref == "" {
		ref = DefaultDefinition
	}
	if _, err := os.Stat(ref); err == nil {
		data, err := os.ReadFile(ref)
		if err != nil {
			return nil, fmt.Errorf("read scenario %s: %w", ref, err)
		}
		return ParseDefinition(data)
	}
	return builtin(ref, 0)
}

// ParseDefinition decodes and validates a definition from YAML.
func ParseDefinition(data []byte) (*Definition, error) {
	d, err := overlay(data, 0)
	if err != nil {
		return nil, err
	}
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return d, nil
}

// Definitions lists the built-in definition names, sorted.
func Definitions() []string {
	entries, _ := definitionFS.ReadDir("definitions")
	var names []string
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".yaml") {
			names = append(names, strings.TrimSuffix(e.Name(), ".yaml"))
		}
	}
	sort.Strings(names)
	return names
}

const maxExtendsDepth = 4

func builtin(name string, depth int) (*Definition, error) {
	data, err := definitionFS.ReadFile("definitions/" + name + ".yaml")
	if err != nil {
		return nil, fmt.Errorf("scenario %q not found (available: %s): %w",
			name, strings.Join(Definitions(), ", "), err)
	}
	d, err := overlay(data, depth)
	if err != nil {
		return nil, fmt.Errorf("scenario %q: %w", name, err)
	}
	if err := d.Validate(); err != nil {
		return nil, fmt.Errorf("scenario %q: %w", name, err)
	}
	return d, nil
}

// overlay decodes data on top of the built-in definition it extends, if any.
func overlay(data []byte, depth int) (*Definition, error) {
	var head struct {
		Extends string `yaml:"extends"`
	}
	if err := yaml.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}

	d := &Definition{}
	if head.Extends != "" {
		if depth >= maxExtendsDepth {
			return nil, fmt.Errorf("extends chain deeper than %d at %q", maxExtendsDepth, head.Extends)
		}
		base, err := builtin(head.Extends, depth+1)
		if err != nil {
			return nil, err
		}
		d = base
	}
	if err := yaml.Unmarshal(data, d); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	return d, nil
}

// Validate checks that fixtures, routes and selectors are complete and that
// stage toggles name optional stages.
func (d *Definition) Validate() error {
	var errs []error
	required := map[string]string{
		"upload.project_id":            d.Upload.ProjectID,
		"upload.supplier_id":           d.Upload.SupplierID,
		"upload.doc_type":              d.Upload.DocType,
		"evaluation.rule_pack_version": d.Evaluation.RulePackVersion,
		"routes.landing":               d.Routes.Landing,
		"routes.report":                d.Routes.Report,
		"routes.evaluation":            d.Routes.Evaluation,
		"routes.dlq":                   d.Routes.DLQ,
	}
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			errs = append(errs, fmt.Errorf("%s is required", key))
		}
	}
	for key, v := range d.Selectors.byKey() {
		if _, err := browser.ParseLocator(v); err != nil {
			errs = append(errs, fmt.Errorf("selectors.%s: %w", key, err))
		}
	}
	for name := range d.Stages {
		st, ok := lookupStage(name)
		switch {
		case !ok:
			errs = append(errs, fmt.Errorf("stages.%s: unknown stage", name))
		case st.Kind != Optional:
			errs = append(errs, fmt.Errorf("stages.%s: %s stages cannot be toggled", name, st.Kind))
		}
	}
	sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
	return errors.Join(errs...)
}

func (s Selectors) byKey() map[string]string {
	return map[string]string{
		"landing_heading": s.LandingHeading,
		"nav":             s.Nav,
		"report_header":   s.ReportHeader,
		"criteria_table":  s.CriteriaTable,
		"report_error":    s.ReportError,
		"citation":        s.Citation,
		"evidence_detail": s.EvidenceDetail,
		"dlq_table":       s.DLQTable,
		"dlq_error":       s.DLQError,
		"review_form":     s.ReviewForm,
	}
}

// Enabled reports whether the named stage runs under this definition.
func (d *Definition) Enabled(name string) bool {
	st, ok := lookupStage(name)
	if !ok {
		return false
	}
	if st.Kind != Optional {
		return true
	}
	if on, set := d.Stages[name]; set {
		return on
	}
	return st.DefaultOn
}

// Toggle sets an optional stage on or off.
func (d *Definition) Toggle(name string, on bool) error {
	st, ok := lookupStage(name)
	if !ok {
		return fmt.Errorf("unknown stage %q (known: %s)", name, strings.Join(StageNames(), ", "))
	}
	if st.Kind != Optional {
		return fmt.Errorf("stage %s is %s and cannot be toggled", name, st.Kind)
	}
	if d.Stages == nil {
		d.Stages = map[string]bool{}
	}
	d.Stages[name] = on
	return nil
}

// ApplyToggles turns the named optional stages on, then the others off.
func (d *Definition) ApplyToggles(enable, disable []string) error {
	var errs []error
	for _, name := range enable {
		errs = append(errs, d.Toggle(name, true))
	}
	for _, name := range disable {
		errs = append(errs, d.Toggle(name, false))
	}
	return errors.Join(errs...)
}

// document returns the upload body.
func (u UploadFixture) document() ([]byte, error) {
	if u.File != "" {
		b, err := os.ReadFile(u.File)
		if err != nil {
			return nil, fmt.Errorf("read upload fixture: %w", err)
		}
		return b, nil
	}
	return []byte(u.Content), nil
}

func (e EvaluationFixture) request(u UploadFixture) api.EvaluationRequest {
	return api.EvaluationRequest{
		ProjectID:       u.ProjectID,
		SupplierID:      u.SupplierID,
		RulePackVersion: e.RulePackVersion,
		EvaluationScope: e.EvaluationScope,
		QueryOptions:    e.QueryOptions,
	}
}
