package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	cfg, err := Load(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if diff := cmp.Diff(Default(), cfg); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}

func TestLoadFileAndEnv(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
workflow = ".github/workflows/rust.yml"
ledger = "state/dispatches.db"

[log]
level = "debug"

[server]
addr = "127.0.0.1:9000"

[invoker]
kind = "github"
token_env = "CI_TOKEN"
timeout = "30s"
`)

	env := map[string]string{
		"LOG_FORMAT": "json",
		"CI_TOKEN":   "secret-token",
	}
	cfg, err := Load(dir, func(k string) (string, bool) {
		v, ok := env[k]
		return v, ok
	})
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	want := &Config{
		Workflow: filepath.Join(dir, ".github/workflows/rust.yml"),
		Ledger:   filepath.Join(dir, "state/dispatches.db"),
		Log:      LogConfig{Level: "debug", Format: "json"},
		Server:   ServerConfig{Addr: "127.0.0.1:9000"},
		Invoker: InvokerConfig{
			Kind:     InvokerGitHub,
			APIURL:   DefaultGitHubAPI,
			TokenEnv: "CI_TOKEN",
			Timeout:  "30s",
			Token:    "secret-token",
		},
	}
	if diff := cmp.Diff(want, cfg); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}

	d, err := cfg.Invoker.TimeoutDuration()
	if err != nil || d != 30*time.Second {
		t.Fatalf("TimeoutDuration = %v, %v", d, err)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, `
[invoker]
kind = "carrier-pigeon"
`)
	if _, err := Load(dir, nil); err == nil {
		t.Fatalf("expected invalid invoker kind to be rejected")
	}

	writeConfig(t, dir, `
[invoker]
timeout = "soon"
`)
	if _, err := Load(dir, nil); err == nil {
		t.Fatalf("expected invalid timeout to be rejected")
	}

	writeConfig(t, dir, `workflow = [`)
	if _, err := Load(dir, nil); err == nil {
		t.Fatalf("expected malformed TOML to be rejected")
	}
}

func writeConfig(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, FileName), []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config: %v", err)
	}
}
