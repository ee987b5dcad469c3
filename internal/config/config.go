package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// FileName is the settings file looked up in the project directory.
const FileName = "check-dispatch.toml"

// Invoker kinds.
const (
	InvokerLog    = "log"
	InvokerOutput = "output"
	InvokerGitHub = "github"
)

// ValidInvokers is the set of accepted invoker kinds.
var ValidInvokers = map[string]bool{
	InvokerLog:    true,
	InvokerOutput: true,
	InvokerGitHub: true,
}

// DefaultGitHubAPI is the API base URL used by the github invoker.
const DefaultGitHubAPI = "https://api.github.com"

// Config holds dispatcher settings from check-dispatch.toml.
type Config struct {
	// Workflow is the trigger configuration document. Empty selects the
	// embedded check workflow.
	Workflow string `toml:"workflow"`

	// Ledger is the SQLite database dispatches are recorded in. Empty
	// disables the ledger.
	Ledger string `toml:"ledger"`

	Log     LogConfig     `toml:"log"`
	Server  ServerConfig  `toml:"server"`
	Invoker InvokerConfig `toml:"invoker"`
}

type LogConfig struct {
	Level  string `toml:"level"`
	Format string `toml:"format"`
}

type ServerConfig struct {
	Addr          string `toml:"addr"`
	WebhookSecret string `toml:"webhook_secret"`
}

type InvokerConfig struct {
	Kind     string `toml:"kind"`
	APIURL   string `toml:"api_url"`
	TokenEnv string `toml:"token_env"`
	Timeout  string `toml:"timeout"`

	// Token is resolved from TokenEnv and never read from the file.
	Token string `toml:"-"`
}

// TimeoutDuration parses Timeout, defaulting to ten seconds.
func (c InvokerConfig) TimeoutDuration() (time.Duration, error) {
	if strings.TrimSpace(c.Timeout) == "" {
		return 10 * time.Second, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid invoker timeout %q: %w", c.Timeout, err)
	}
	return d, nil
}

// Default returns the settings used when no file is present.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: "info", Format: "text"},
		Server: ServerConfig{
			Addr: ":8080",
		},
		Invoker: InvokerConfig{
			Kind:     InvokerLog,
			APIURL:   DefaultGitHubAPI,
			TokenEnv: "GITHUB_TOKEN",
		},
	}
}

// Load reads check-dispatch.toml from rootDir on top of the defaults and then
// applies environment overrides. A missing file is not an error.
func Load(rootDir string, lookup func(string) (string, bool)) (*Config, error) {
	cfg := Default()
	path := filepath.Join(rootDir, FileName)

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := toml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %q: %w", path, err)
		}
		// Make relative paths absolute relative to rootDir
		if cfg.Workflow != "" && !filepath.IsAbs(cfg.Workflow) {
			cfg.Workflow = filepath.Join(rootDir, cfg.Workflow)
		}
		if cfg.Ledger != "" && cfg.Ledger != ":memory:" && !filepath.IsAbs(cfg.Ledger) {
			cfg.Ledger = filepath.Join(rootDir, cfg.Ledger)
		}
	case os.IsNotExist(err):
	default:
		return nil, fmt.Errorf("reading %q: %w", path, err)
	}

	applyEnv(cfg, lookup)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func applyEnv(cfg *Config, lookup func(string) (string, bool)) {
	if lookup == nil {
		return
	}
	set := func(dst *string, key string) {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = strings.TrimSpace(v)
		}
	}
	set(&cfg.Workflow, "CHECK_DISPATCH_WORKFLOW")
	set(&cfg.Ledger, "CHECK_DISPATCH_LEDGER")
	set(&cfg.Log.Level, "LOG_LEVEL")
	set(&cfg.Log.Format, "LOG_FORMAT")
	set(&cfg.Server.Addr, "CHECK_DISPATCH_ADDR")
	set(&cfg.Server.WebhookSecret, "CHECK_DISPATCH_WEBHOOK_SECRET")
	set(&cfg.Invoker.Kind, "CHECK_DISPATCH_INVOKER")

	if cfg.Invoker.TokenEnv != "" {
		if v, ok := lookup(cfg.Invoker.TokenEnv); ok {
			cfg.Invoker.Token = strings.TrimSpace(v)
		}
	}
}

// Validate checks values that cannot be corrected silently.
func (c *Config) Validate() error {
	if !ValidInvokers[c.Invoker.Kind] {
		return fmt.Errorf("invalid invoker kind %q (must be log, output, or github)", c.Invoker.Kind)
	}
	if _, err := c.Invoker.TimeoutDuration(); err != nil {
		return err
	}
	return nil
}
