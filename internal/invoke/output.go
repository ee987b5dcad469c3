// Package invoke contains the Invokers that hand a dispatched job to its
// external reusable workflow.
package invoke

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/coreeng/check-dispatch/internal/dispatch"
)

// OutputFile appends GitHub Actions step outputs to the file named by
// GITHUB_OUTPUT. An empty path discards outputs.
type OutputFile struct {
	Path string

	mu sync.Mutex
}

// Set writes one multi-line output.
func (o *OutputFile) Set(name, value string) error {
	if o == nil || o.Path == "" {
		return nil
	}

	o.mu.Lock()
	defer o.mu.Unlock()

	f, err := os.OpenFile(o.Path, os.O_APPEND|os.O_WRONLY|os.O_CREATE, 0o666)
	if err != nil {
		return err
	}
	defer f.Close()

	if _, err := fmt.Fprintf(f, "%s<<EOF\n%s\nEOF\n", name, value); err != nil {
		return err
	}
	return nil
}

// OutputInvoker hands runs to a later workflow step by exporting, per job,
// the reusable workflow reference and its parameter bag as step outputs
// ("<job>-uses" and "<job>-with").
type OutputInvoker struct {
	Outputs *OutputFile
}

func (inv *OutputInvoker) Invoke(_ context.Context, req dispatch.Request) error {
	with, err := json.Marshal(req.Run.Params)
	if err != nil {
		return fmt.Errorf("encode parameters: %w", err)
	}
	if err := inv.Outputs.Set(req.Run.Job+"-uses", req.Run.Uses.String()); err != nil {
		return err
	}
	if err := inv.Outputs.Set(req.Run.Job+"-with", string(with)); err != nil {
		return err
	}
	return inv.Outputs.Set(req.Run.Job+"-id", req.ID)
}

// LogInvoker only logs the hand-off. It is the default for dry runs.
type LogInvoker struct {
	Logger *slog.Logger
}

func (inv LogInvoker) Invoke(ctx context.Context, req dispatch.Request) error {
	logger := inv.Logger
	if logger == nil {
		logger = slog.Default()
	}
	logger.InfoContext(ctx, "would invoke reusable workflow",
		"id", req.ID,
		"job", req.Run.Job,
		"uses", req.Run.Uses.String(),
		"with", req.Run.Params.Strings(),
	)
	return nil
}
