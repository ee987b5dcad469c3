package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/coreeng/check-dispatch/internal/config"
	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/invoke"
	"github.com/coreeng/check-dispatch/internal/ledger"
	"github.com/coreeng/check-dispatch/internal/logging"
	"github.com/coreeng/check-dispatch/internal/workflow"
)

const (
	formatText = "text"
	formatJSON = "json"
)

var (
	projectDir   string
	outputFormat string

	// Populated in PersistentPreRunE.
	settings *config.Config
	logger   *slog.Logger
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "check-dispatch",
		Short:         "Decide which CI jobs a repository event runs",
		Long:          "check-dispatch evaluates push and pull request events against a GitHub workflow's trigger rules and job guards, and hands runnable jobs to a reusable workflow.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if outputFormat != formatText && outputFormat != formatJSON {
				return fmt.Errorf("invalid --format %q (must be text or json)", outputFormat)
			}

			cfg, err := config.Load(projectDir, os.LookupEnv)
			if err != nil {
				return fmt.Errorf("loading %s: %w", config.FileName, err)
			}
			settings = cfg

			l, err := logging.New(cmd.ErrOrStderr(), cfg.Log.Level, cfg.Log.Format)
			if err != nil {
				return err
			}
			logger = l
			slog.SetDefault(l)
			return nil
		},
	}

	root.PersistentFlags().StringVar(&projectDir, "project-dir", ".", "repository root holding "+config.FileName+" and .github/workflows")
	root.PersistentFlags().StringVar(&outputFormat, "format", formatText, "output format: text or json")

	root.AddCommand(
		newEvaluateCmd(),
		newDetectCmd(),
		newValidateCmd(),
		newRenderCmd(),
		newServeCmd(),
		newLedgerCmd(),
	)

	return root
}

// loadDocument returns the configured trigger document, or the embedded check
// workflow when none is configured.
func loadDocument() (*workflow.Document, error) {
	if settings == nil || settings.Workflow == "" {
		return workflow.Default()
	}
	return workflow.Load(settings.Workflow)
}

// openLedger opens the configured ledger. It returns nil when none is
// configured.
func openLedger() (*ledger.Ledger, error) {
	if settings == nil || settings.Ledger == "" {
		return nil, nil
	}
	return ledger.Open(settings.Ledger)
}

// newDispatcher wires the configured invoker and ledger into a dispatcher for
// doc. Dispatches the ledger still holds as Dispatched are restored into the
// tracker. The returned close function releases the ledger.
func newDispatcher(ctx context.Context, doc *workflow.Document) (*dispatch.Dispatcher, *ledger.Ledger, func(), error) {
	inv, err := invoke.New(settings.Invoker, &invoke.OutputFile{Path: os.Getenv("GITHUB_OUTPUT")}, logger)
	if err != nil {
		return nil, nil, nil, err
	}

	l, err := openLedger()
	if err != nil {
		return nil, nil, nil, err
	}
	closeFn := func() {}
	var recorder dispatch.Recorder
	if l != nil {
		recorder = l
		closeFn = func() { l.Close() }
	}

	tracker := dispatch.NewTracker(recorder)
	if err := tracker.Restore(ctx); err != nil {
		closeFn()
		return nil, nil, nil, err
	}

	d, err := dispatch.New(doc,
		dispatch.WithLogger(logger),
		dispatch.WithInvoker(inv),
		dispatch.WithTracker(tracker),
	)
	if err != nil {
		closeFn()
		return nil, nil, nil, err
	}
	return d, l, closeFn, nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Execute runs the root command.
func Execute() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
