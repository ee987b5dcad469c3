package invoke

import (
	"fmt"
	"log/slog"

	"github.com/coreeng/check-dispatch/internal/config"
	"github.com/coreeng/check-dispatch/internal/dispatch"
)

// New builds the invoker selected by cfg.Kind. outputs is only used by the
// output invoker.
func New(cfg config.InvokerConfig, outputs *OutputFile, logger *slog.Logger) (dispatch.Invoker, error) {
	switch cfg.Kind {
	case config.InvokerLog, "":
		return LogInvoker{Logger: logger}, nil
	case config.InvokerOutput:
		return &OutputInvoker{Outputs: outputs}, nil
	case config.InvokerGitHub:
		timeout, err := cfg.TimeoutDuration()
		if err != nil {
			return nil, err
		}
		return NewGitHubInvoker(cfg.APIURL, cfg.Token, timeout), nil
	default:
		return nil, fmt.Errorf("unknown invoker kind %q", cfg.Kind)
	}
}
