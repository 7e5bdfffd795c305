package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"bidcheck/internal/format"
	"bidcheck/internal/ledger"
	"bidcheck/internal/logging"
	mcpserver "bidcheck/internal/mcp"
)

type runFlags struct {
	enable  []string
	disable []string
}

func newRunCmd(a *app) *cobra.Command {
	var rf runFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a scenario against the dashboard and print the result table",
		Long: `Runs every enabled stage in order. A failed mandatory stage (upload,
parse, evaluation, report) stops the run; optional stage failures are
recorded and the run continues. The table is printed on every exit path.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd, rf)
		},
	}
	f := cmd.Flags()
	f.StringSliceVar(&rf.enable, "enable", nil, "optional stages to turn on (e.g. DlqRequeue,HumanReviewResume)")
	f.StringSliceVar(&rf.disable, "disable", nil, "optional stages to turn off")
	return cmd
}

func (a *app) run(cmd *cobra.Command, rf runFlags) error {
	mode, err := format.ParseMode(a.cfg.Log.Summary)
	if err != nil {
		return fmt.Errorf("config: log.summary: %w", err)
	}
	runner, err := newRunner(a.cfg, mcpserver.RunRequest{
		Enable:  rf.enable,
		Disable: rf.disable,
	}, cmd.OutOrStdout())
	if err != nil {
		return err
	}

	lg := ledger.New(ledger.WithLogger(logging.New("ledger")), ledger.WithFormat(mode))
	_, runErr := runner.Run(cmd.Context(), lg)
	if runErr != nil {
		return &exitError{code: 1, msg: fmt.Sprintf("run aborted: %v", runErr)}
	}
	if code := lg.ExitCode(); code != 0 {
		return &exitError{code: code, msg: fmt.Sprintf("%d of %d checks failed", len(lg.Failed()), len(lg.Results()))}
	}
	return nil
}
