package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"bidcheck/internal/config"
	"bidcheck/internal/logging"
)

// app is the state shared by subcommands once flags are parsed.
type app struct {
	configFile string
	envFiles   []string
	cfg        *config.Config
}

// flagKeys binds persistent flags to config keys so flags win over the
// environment and the config file.
var flagKeys = map[string]string{
	"ui-base-url":  "target.ui_base_url",
	"api-base-url": "target.api_base_url",
	"tenant":       "target.tenant_id",
	"role":         "target.role",
	"headless":     "browser.headless",
	"chrome-path":  "browser.exec_path",
	"no-sandbox":   "browser.no_sandbox",
	"log-level":    "log.level",
	"log-format":   "log.format",
	"summary":      "log.summary",
	"scenario":     "scenario.file",
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "bidcheck",
		Short: "End-to-end checks for the bid evaluation dashboard",
		Long: `bidcheck uploads a fixture document, drives it through parsing and
evaluation over the HTTP API, then opens the dashboard in Chrome and checks
that the report, citations, DLQ and role gates render. Results are printed
as a table; the exit code is non-zero when any check fails.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			HiddenDefaultCmd: true,
		},
		PersistentPreRunE: a.load,
	}

	f := root.PersistentFlags()
	f.StringVar(&a.configFile, "config", "", "config file (YAML, JSON or TOML)")
	f.StringSliceVar(&a.envFiles, "env-file", nil, "dotenv files to load first (default .env)")
	f.String("ui-base-url", "", "dashboard base URL")
	f.String("api-base-url", "", "API base URL")
	f.String("tenant", "", "tenant id sent as x-tenant-id")
	f.String("role", "", "dashboard role for the permission check (admin, agent, evaluator, viewer)")
	f.Bool("headless", true, "run Chrome headless")
	f.String("chrome-path", "", "Chrome executable (default: discover)")
	f.Bool("no-sandbox", false, "disable the Chrome sandbox (needed as root in containers)")
	f.String("log-level", "", "debug, info, warn or error")
	f.String("log-format", "", "text or json")
	f.String("summary", "", "result table format: ascii or markdown")
	f.String("scenario", "", "built-in scenario name or scenario file (default e2e)")

	root.AddCommand(newRunCmd(a), newStagesCmd(a), newServeCmd(a))
	return root
}

// load resolves the configuration and initialises logging.
func (a *app) load(cmd *cobra.Command, _ []string) error {
	v, err := config.NewViper(config.Options{File: a.configFile, EnvFiles: a.envFiles})
	if err != nil {
		return err
	}
	if err := bindFlags(v, cmd); err != nil {
		return err
	}
	cfg, err := config.Decode(v)
	if err != nil {
		return fmt.Errorf("config: %w", err)
	}
	level, err := logging.ParseLevel(cfg.Log.Level)
	if err != nil {
		return fmt.Errorf("config: log.level: %w", err)
	}
	logging.Init(level, cfg.Log.Format)
	a.cfg = cfg
	return nil
}

// bindFlags binds only flags the user set, so an unset flag's zero value
// never shadows the environment.
func bindFlags(v *viper.Viper, cmd *cobra.Command) error {
	for name, key := range flagKeys {
		fl := cmd.Flags().Lookup(name)
		if fl == nil || !fl.Changed {
			continue
		}
		if err := v.BindPFlag(key, fl); err != nil {
			return fmt.Errorf("binding --%s: %w", name, err)
		}
	}
	return nil
}
