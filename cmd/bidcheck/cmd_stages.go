package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"bidcheck/internal/format"
	"bidcheck/internal/scenario"
)

func newStagesCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "stages",
		Short: "List the stages and whether the selected scenario enables them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			mode, err := format.ParseMode(a.cfg.Log.Summary)
			if err != nil {
				return fmt.Errorf("config: log.summary: %w", err)
			}
			def, err := scenario.LoadDefinition(a.cfg.Scenario.File)
			if err != nil {
				return err
			}

			tbl := format.NewTable(mode)
			tbl.Header("Stage", "Kind", "UI", "Enabled", "Description")
			tbl.Columns(format.Column{Number: 5, MaxWidth: 60})
			on := 0
			for _, st := range scenario.Stages() {
				enabled := def.Enabled(st.Name)
				if enabled {
					on++
				}
				tbl.Row(st.Name, st.Kind.String(), yesNo(st.UI), yesNo(enabled), st.Description)
			}
			tbl.Footer("", "", "", fmt.Sprintf("%d/%d", on, len(scenario.Stages())), "")

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Scenario %s\n", def.Name)
			fmt.Fprintln(out, tbl.String())
			fmt.Fprintf(out, "Built-in scenarios: %s\n", strings.Join(scenario.Definitions(), ", "))
			return nil
		},
	}
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "no"
}
