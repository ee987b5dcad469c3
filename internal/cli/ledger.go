package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/ledger"
)

var errNoLedger = errors.New("no ledger configured (set ledger in check-dispatch.toml or CHECK_DISPATCH_LEDGER)")

func newLedgerCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Inspect and update the dispatch ledger",
	}
	cmd.AddCommand(newLedgerListCmd(), newLedgerCompleteCmd())
	return cmd
}

func newLedgerListCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List recorded dispatches, most recent first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := openLedger()
			if err != nil {
				return err
			}
			if l == nil {
				return errNoLedger
			}
			defer l.Close()

			entries, err := l.List(cmd.Context(), limit)
			if err != nil {
				return err
			}

			w := cmd.OutOrStdout()
			if outputFormat == formatJSON {
				if entries == nil {
					entries = []ledger.Entry{}
				}
				return writeJSON(w, entries)
			}

			if len(entries) == 0 {
				fmt.Fprintln(w, "No dispatches recorded.")
				return nil
			}
			for _, e := range entries {
				status := string(e.State)
				if e.Outcome != "" {
					status += "/" + string(e.Outcome)
				}
				fmt.Fprintf(w, "%s  %s  %-8s %-18s %s %s\n",
					e.DispatchedAt.Format("2006-01-02 15:04:05"), e.ID, e.Job, status, e.Event, e.Branch)
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 20, "maximum number of dispatches to list (0 for all)")
	return cmd
}

func newLedgerCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete ID OUTCOME",
		Short: "Record the outcome (success, failure, cancelled) of a dispatch",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := dispatch.ParseOutcome(args[1])
			if err != nil {
				return err
			}

			l, err := openLedger()
			if err != nil {
				return err
			}
			if l == nil {
				return errNoLedger
			}
			defer l.Close()

			if err := l.RecordCompletion(cmd.Context(), args[0], outcome); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s: %s\n", args[0], outcome)
			return nil
		},
	}
}
