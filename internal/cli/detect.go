package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coreeng/check-dispatch/internal/detector"
)

func newDetectCmd() *cobra.Command {
	var flags eventFlags

	cmd := &cobra.Command{
		Use:   "detect",
		Short: "List repository workflows triggered by an event",
		Long:  "Scan .github/workflows under --project-dir and list every workflow whose trigger rules match the event. Job guards are not evaluated.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := flags.build(cmd)
			if err != nil {
				return err
			}

			matches, err := detector.DetectTriggeredWorkflows(projectDir, ev)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if outputFormat == formatJSON {
				if matches == nil {
					matches = []detector.WorkflowMatch{}
				}
				return writeJSON(w, matches)
			}

			if len(matches) == 0 {
				fmt.Fprintln(w, "No workflows match the current event and modified files.")
				return nil
			}
			fmt.Fprintf(w, "Detected %d workflows to run:\n", len(matches))
			for _, wf := range matches {
				fmt.Fprintf(w, " - %s (%s) via %s\n", wf.Name, wf.Path, strings.Join(wf.Events, ", "))
			}
			return nil
		},
	}

	flags.register(cmd)
	return cmd
}
