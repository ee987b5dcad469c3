package cli

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/event"
)

// eventFlags builds an event from command line flags or the GitHub Actions
// environment.
type eventFlags struct {
	kind    string
	ref     string
	branch  string
	head    string
	action  string
	draft   bool
	paths   string
	fromEnv bool
}

func (f *eventFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.StringVar(&f.kind, "event", "", "event name, e.g. push or pull_request")
	fl.StringVar(&f.ref, "ref", "", "git ref, e.g. refs/heads/master")
	fl.StringVar(&f.branch, "branch", "", "pushed branch, or base branch of a pull request")
	fl.StringVar(&f.head, "head", "", "head branch of a pull request")
	fl.StringVar(&f.action, "action", "", "event action, e.g. opened")
	fl.BoolVar(&f.draft, "draft", false, "pull request is a draft")
	fl.StringVar(&f.paths, "paths", "", "changed files as a JSON array or comma separated list")
	fl.BoolVar(&f.fromEnv, "from-env", false, "read the event from the GitHub Actions environment")
}

func (f *eventFlags) build(cmd *cobra.Command) (event.Event, error) {
	if f.fromEnv {
		return event.FromEnv(os.LookupEnv)
	}

	ev := event.Event{
		Kind:       event.Kind(strings.TrimSpace(f.kind)),
		Ref:        f.ref,
		Branch:     f.branch,
		HeadBranch: f.head,
		Action:     f.action,
	}
	if cmd.Flags().Changed("draft") {
		ev.Draft = event.Bool(f.draft)
	}
	if cmd.Flags().Changed("paths") {
		paths, err := event.ParseChangedFiles(f.paths)
		if err != nil {
			return event.Event{}, fmt.Errorf("parse --paths: %w", err)
		}
		ev.Paths = paths
	}
	return ev, nil
}

func newEvaluateCmd() *cobra.Command {
	var (
		flags      eventFlags
		doDispatch bool
	)

	cmd := &cobra.Command{
		Use:   "evaluate",
		Short: "Evaluate one event against the trigger document",
		Long:  "Decide whether an event runs any job of the configured workflow and print the decision. With --dispatch, runnable jobs are handed to the configured invoker.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ev, err := flags.build(cmd)
			if err != nil {
				return err
			}
			doc, err := loadDocument()
			if err != nil {
				return err
			}

			if !doDispatch {
				d, err := dispatch.New(doc, dispatch.WithLogger(logger))
				if err != nil {
					return err
				}
				dec, err := d.Evaluate(cmd.Context(), ev)
				if err != nil {
					return err
				}
				return printDecision(cmd.OutOrStdout(), dec, nil)
			}

			d, _, closeFn, err := newDispatcher(cmd.Context(), doc)
			if err != nil {
				return err
			}
			defer closeFn()

			dec, reqs, err := d.Dispatch(cmd.Context(), ev)
			if err != nil {
				return err
			}
			return printDecision(cmd.OutOrStdout(), dec, reqs)
		},
	}

	flags.register(cmd)
	cmd.Flags().BoolVar(&doDispatch, "dispatch", false, "hand runnable jobs to the configured invoker")
	return cmd
}

type decisionOutput struct {
	Decision   dispatch.Decision  `json:"decision"`
	Dispatches []dispatch.Request `json:"dispatches,omitempty"`
}

func printDecision(w io.Writer, dec dispatch.Decision, reqs []dispatch.Request) error {
	if outputFormat == formatJSON {
		return writeJSON(w, decisionOutput{Decision: dec, Dispatches: reqs})
	}

	if dec.Skipped() {
		fmt.Fprintf(w, "skip: %s (%s, %s)\n", dec.Reason, dec.Workflow, dec.Event)
		return nil
	}
	for _, run := range dec.Runs {
		fmt.Fprintf(w, "run: %s via %s\n", run.Job, run.Uses)
		for _, k := range run.Params.Keys() {
			fmt.Fprintf(w, "  %s: %v\n", k, run.Params[k])
		}
	}
	for _, job := range dec.Guarded {
		fmt.Fprintf(w, "guarded: %s\n", job)
	}
	for _, req := range reqs {
		fmt.Fprintf(w, "dispatched: %s %s\n", req.Run.Job, req.ID)
	}
	return nil
}
