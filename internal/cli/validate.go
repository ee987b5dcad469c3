package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreeng/check-dispatch/internal/detector"
	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/workflow"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [workflow-file...]",
		Short: "Validate trigger documents",
		Long:  "Parse the configured document and every workflow under .github/workflows (or only the given files), and compile every job guard.",
		RunE: func(cmd *cobra.Command, args []string) error {
			var docs []*workflow.Document
			var errs []error

			if len(args) > 0 {
				for _, path := range args {
					doc, err := workflow.Load(path)
					if err != nil {
						errs = append(errs, err)
						continue
					}
					docs = append(docs, doc)
				}
			} else {
				doc, err := loadDocument()
				if err != nil {
					errs = append(errs, err)
				} else {
					docs = append(docs, doc)
				}

				repoDocs, err := detector.LoadWorkflows(projectDir)
				if err != nil {
					errs = append(errs, err)
				}
				docs = append(docs, repoDocs...)
			}

			for _, doc := range docs {
				if _, err := dispatch.New(doc, dispatch.WithLogger(logger)); err != nil {
					errs = append(errs, fmt.Errorf("%s: %w", doc.Path, err))
				}
			}

			if len(errs) == 0 {
				fmt.Fprintf(cmd.OutOrStdout(), "All %d workflows validated successfully.\n", len(docs))
				return nil
			}

			for _, e := range errs {
				fmt.Fprintf(cmd.ErrOrStderr(), "ERROR: %s\n", e)
			}
			return fmt.Errorf("validation found %d error(s)", len(errs))
		},
	}
}
