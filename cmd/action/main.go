package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/coreeng/check-dispatch/internal/config"
	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/invoke"
	"github.com/coreeng/check-dispatch/internal/logging"
	"github.com/coreeng/check-dispatch/internal/workflow"
)

func main() {
	if err := run(context.Background()); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	repoRoot := workspaceRoot()

	cfg, err := config.Load(repoRoot, os.LookupEnv)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return err
	}

	ev, err := event.FromEnv(os.LookupEnv)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}

	doc, err := loadDocument(cfg)
	if err != nil {
		return err
	}

	outputs := &invoke.OutputFile{Path: os.Getenv("GITHUB_OUTPUT")}
	inv, err := invokerFor(cfg, outputs, logger)
	if err != nil {
		return err
	}

	d, err := dispatch.New(doc, dispatch.WithLogger(logger), dispatch.WithInvoker(inv))
	if err != nil {
		return err
	}

	dec, reqs, err := d.Dispatch(ctx, ev)
	if err != nil {
		return err
	}

	if dec.Skipped() {
		fmt.Printf("No jobs run for %s: %s.\n", ev.Kind, dec.Reason)
	} else {
		fmt.Printf("Dispatched %d jobs from %s:\n", len(reqs), dec.Workflow)
		for _, req := range reqs {
			fmt.Printf(" - %s via %s\n", req.Run.Job, req.Run.Uses)
		}
	}

	if err := exportOutputs(outputs, dec); err != nil {
		return fmt.Errorf("export outputs: %w", err)
	}
	return nil
}

func workspaceRoot() string {
	if root := os.Getenv("GITHUB_WORKSPACE"); root != "" {
		return root
	}
	if cwd, err := os.Getwd(); err == nil {
		return cwd
	}
	return "."
}

func loadDocument(cfg *config.Config) (*workflow.Document, error) {
	if cfg.Workflow == "" {
		return workflow.Default()
	}
	return workflow.Load(cfg.Workflow)
}

// invokerFor defaults to step outputs: inside a workflow run the job is
// handed to a later step rather than only logged.
func invokerFor(cfg *config.Config, outputs *invoke.OutputFile, logger *slog.Logger) (dispatch.Invoker, error) {
	invCfg := cfg.Invoker
	if _, set := os.LookupEnv("CHECK_DISPATCH_INVOKER"); !set && invCfg.Kind == config.InvokerLog {
		invCfg.Kind = config.InvokerOutput
	}
	return invoke.New(invCfg, outputs, logger)
}

func exportOutputs(outputs *invoke.OutputFile, dec dispatch.Decision) error {
	blob, err := json.Marshal(dec)
	if err != nil {
		return err
	}
	if err := outputs.Set("decision", string(blob)); err != nil {
		return err
	}

	jobs := make([]string, 0, len(dec.Runs))
	for _, r := range dec.Runs {
		jobs = append(jobs, r.Job)
	}
	if err := outputs.Set("jobs", strings.Join(jobs, ",")); err != nil {
		return err
	}
	return outputs.Set("count", fmt.Sprintf("%d", len(dec.Runs)))
}
