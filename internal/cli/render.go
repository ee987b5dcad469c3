package cli

import (
	"github.com/spf13/cobra"

	"github.com/coreeng/check-dispatch/internal/workflow"
)

func newRenderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render",
		Short: "Print the trigger document as workflow YAML",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := loadDocument()
			if err != nil {
				return err
			}
			return workflow.Render(cmd.OutOrStdout(), doc)
		},
	}
}
