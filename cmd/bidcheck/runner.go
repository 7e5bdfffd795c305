package main

import (
	"context"
	"io"

	"bidcheck/internal/api"
	"bidcheck/internal/browser"
	"bidcheck/internal/config"
	"bidcheck/internal/logging"
	mcpserver "bidcheck/internal/mcp"
	"bidcheck/internal/scenario"
)

// openPage builds the browser opener; tests replace it.
var openPage = func(o browser.Options) scenario.PageOpener {
	return scenario.BrowserOpener(o)
}

// newRunner assembles a Runner from cfg and one run request. Request fields
// override the configured scenario and role.
func newRunner(cfg *config.Config, req mcpserver.RunRequest, summary io.Writer) (*scenario.Runner, error) {
	logger := logging.New("run")

	client, err := api.New(cfg.Target.APIBaseURL, cfg.Target.TenantID,
		api.WithTimeout(cfg.Timeouts.HTTP),
		api.WithLogger(logging.New("api")),
	)
	if err != nil {
		return nil, err
	}

	ref := req.Scenario
	if ref == "" {
		ref = cfg.Scenario.File
	}
	def, err := scenario.LoadDefinition(ref)
	if err != nil {
		return nil, err
	}
	if err := def.ApplyToggles(req.Enable, req.Disable); err != nil {
		return nil, err
	}

	role := req.Role
	if role == "" {
		role = cfg.Target.Role
	}

	open := openPage(browser.Options{
		Headless:  cfg.Browser.Headless,
		ExecPath:  cfg.Browser.ExecPath,
		NoSandbox: cfg.Browser.NoSandbox,
		Width:     1440,
		Height:    900,
		Logger:    logging.New("browser"),
	})
	return scenario.NewRunner(client, open, def, scenario.Options{
		UIBaseURL:     cfg.Target.UIBaseURL,
		Role:          role,
		Tenant:        cfg.Target.TenantID,
		MandatoryWait: cfg.Timeouts.MandatoryWait,
		OptionalWait:  cfg.Timeouts.OptionalWait,
		Summary:       summary,
		Logger:        logger,
	})
}

// factory adapts newRunner to the MCP server.
func (a *app) factory() mcpserver.RunnerFactory {
	return func(_ context.Context, req mcpserver.RunRequest) (*scenario.Runner, error) {
		return newRunner(a.cfg, req, nil)
	}
}
