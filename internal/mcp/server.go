// Package mcp exposes the scenario runner as Model Context Protocol tools so
// an agent can run dashboard checks and read the results.
package mcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"sync"

	"bidcheck/internal/api"
	"bidcheck/internal/browser"
	"bidcheck/internal/format"
	"bidcheck/internal/ledger"
	"bidcheck/internal/logging"
	"bidcheck/internal/scenario"

	sdkmcp "github.com/modelcontextprotocol/go-sdk/mcp"
)

// RunRequest is what a caller may change per run.
type RunRequest struct {
	Scenario string
	Role     string
	Enable   []string
	Disable  []string
}

// RunnerFactory builds a runner for one request.
type RunnerFactory func(ctx context.Context, req RunRequest) (*scenario.Runner, error)

// Server wraps the MCP SDK server. One run executes at a time.
type Server struct {
	MCPServer *sdkmcp.Server

	newRunner RunnerFactory

	mu      sync.Mutex
	running bool
	last    *runScenarioOutput
}

// NewServer creates an MCP server with the scenario tools.
func NewServer(newRunner RunnerFactory, version string) *Server {
	if version == "" {
		version = "dev"
	}
	s := &Server{newRunner: newRunner}
	s.MCPServer = sdkmcp.NewServer(
		&sdkmcp.Implementation{Name: "bidcheck", Version: version},
		nil,
	)
	s.registerTools()
	return s
}

func (s *Server) registerTools() {
	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "run_scenario",
		Description: "Run a dashboard scenario end to end against the configured deployment. Blocks until the run finishes and returns every recorded check.",
	}, s.handleRunScenario)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "list_stages",
		Description: "List scenario stages in run order with their kind and whether a scenario enables them.",
	}, s.handleListStages)

	sdkmcp.AddTool(s.MCPServer, &sdkmcp.Tool{
		Name:        "get_last_run",
		Description: "Return the result of the most recent run_scenario call.",
	}, s.handleGetLastRun)
}

// --- Tool input/output types ---

type runScenarioInput struct {
	Scenario string   `json:"scenario,omitempty" jsonschema:"built-in scenario name or a scenario file path (default e2e)"`
	Role     string   `json:"role,omitempty" jsonschema:"dashboard role for the permission check (admin, agent, evaluator, viewer)"`
	Enable   []string `json:"enable,omitempty" jsonschema:"optional stages to turn on"`
	Disable  []string `json:"disable,omitempty" jsonschema:"optional stages to turn off"`
}

type runScenarioOutput struct {
	RunID    string            `json:"run_id"`
	Scenario string            `json:"scenario"`
	ExitCode int               `json:"exit_code"`
	Aborted  bool              `json:"aborted"`
	Error    string            `json:"error,omitempty"`
	Pipeline scenario.Snapshot `json:"pipeline"`
	Results  []ledger.Result   `json:"results"`
	Summary  string            `json:"summary"`
}

type listStagesInput struct {
	Scenario string `json:"scenario,omitempty" jsonschema:"scenario whose toggles decide enabled (default e2e)"`
}

type stageInfo struct {
	Name        string `json:"name"`
	Kind        string `json:"kind"`
	UI          bool   `json:"ui"`
	Enabled     bool   `json:"enabled"`
	Description string `json:"description"`
}

type listStagesOutput struct {
	Scenario  string      `json:"scenario"`
	Stages    []stageInfo `json:"stages"`
	Scenarios []string    `json:"scenarios"`
}

type getLastRunInput struct{}

// --- Tool handlers ---

func (s *Server) handleRunScenario(ctx context.Context, _ *sdkmcp.CallToolRequest, input runScenarioInput) (*sdkmcp.CallToolResult, runScenarioOutput, error) {
	logger := logging.New("mcp")

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return nil, runScenarioOutput{}, errors.New("a scenario run is already in progress")
	}
	s.running = true
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.running = false
		s.mu.Unlock()
	}()

	runner, err := s.newRunner(ctx, RunRequest{
		Scenario: input.Scenario,
		Role:     input.Role,
		Enable:   input.Enable,
		Disable:  input.Disable,
	})
	if err != nil {
		return nil, runScenarioOutput{}, fmt.Errorf("run_scenario: %w", err)
	}

	lg := ledger.New(ledger.WithLogger(logger), ledger.WithFormat(format.Markdown))
	outcome, runErr := runner.RunDetailed(ctx, lg)

	var summary bytes.Buffer
	code := lg.Summarize(&summary)
	out := runScenarioOutput{
		RunID:    outcome.RunID,
		Scenario: runner.Definition().Name,
		ExitCode: code,
		Pipeline: outcome.Pipeline,
		Results:  lg.Results(),
		Summary:  summary.String(),
	}
	if runErr != nil {
		out.Aborted = true
		out.ExitCode = 1
		out.Error = describe(runErr)
	}
	logger.Info("run_scenario finished", "run_id", out.RunID, "exit_code", out.ExitCode, "aborted", out.Aborted)

	s.mu.Lock()
	s.last = &out
	s.mu.Unlock()
	return nil, out, nil
}

func (s *Server) handleListStages(_ context.Context, _ *sdkmcp.CallToolRequest, input listStagesInput) (*sdkmcp.CallToolResult, listStagesOutput, error) {
	def, err := scenario.LoadDefinition(input.Scenario)
	if err != nil {
		return nil, listStagesOutput{}, err
	}
	out := listStagesOutput{Scenario: def.Name, Scenarios: scenario.Definitions()}
	for _, st := range scenario.Stages() {
		out.Stages = append(out.Stages, stageInfo{
			Name:        st.Name,
			Kind:        st.Kind.String(),
			UI:          st.UI,
			Enabled:     def.Enabled(st.Name),
			Description: st.Description,
		})
	}
	return nil, out, nil
}

func (s *Server) handleGetLastRun(_ context.Context, _ *sdkmcp.CallToolRequest, _ getLastRunInput) (*sdkmcp.CallToolResult, runScenarioOutput, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil, runScenarioOutput{}, errors.New("no run yet (call run_scenario first)")
	}
	return nil, *s.last, nil
}

// describe adds the error class an agent needs to triage a failed run.
func describe(err error) string {
	switch {
	case api.IsApplication(err):
		return "application error: " + err.Error()
	case api.IsTransport(err):
		return "transport error: " + err.Error()
	case browser.IsTimeout(err):
		return "timeout: " + err.Error()
	case browser.IsAssertion(err):
		return "assertion failed: " + err.Error()
	}
	return err.Error()
}
