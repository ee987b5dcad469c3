package cli

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreeng/check-dispatch/internal/dispatch"
	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/ledger"
	"github.com/coreeng/check-dispatch/internal/workflow"
)

func runCLI(t *testing.T, args ...string) (string, error) {
	t.Helper()
	t.Setenv("LOG_LEVEL", "error")

	cmd := newRootCmd()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(strings.TrimLeft(content, "\n")), 0o644))
}

func TestEvaluatePushRunsCheck(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "--project-dir", dir, "evaluate",
		"--event", "push", "--ref", "refs/heads/master", "--paths", "Cargo.toml")
	require.NoError(t, err)

	assert.Contains(t, out, "run: check via shared-ci/workflows/.github/workflows/rust.yml@master")
	assert.Contains(t, out, "cargo-features: std,serde")
	assert.Contains(t, out, "cargo-no-features: true")
	assert.Contains(t, out, "miri: true")
	assert.Contains(t, out, "valgrind: false")
}

func TestEvaluateDraftPullRequestSkipped(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "--project-dir", dir, "evaluate",
		"--event", "pull_request", "--branch", "master", "--action", "opened",
		"--draft", "--paths", `["src/lib.rs"]`)
	require.NoError(t, err)
	assert.Equal(t, "skip: guard (.github/workflows/rust.yml, pull_request)\n", out)
}

func TestEvaluateJSON(t *testing.T) {
	dir := t.TempDir()
	out, err := runCLI(t, "--project-dir", dir, "--format", "json", "evaluate",
		"--event", "push", "--branch", "master", "--paths", "README.md")
	require.NoError(t, err)

	var got decisionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.True(t, got.Decision.Skipped())
	assert.Equal(t, dispatch.ReasonPaths, got.Decision.Reason)
}

func TestEvaluateMalformedEvent(t *testing.T) {
	dir := t.TempDir()
	_, err := runCLI(t, "--project-dir", dir, "evaluate", "--event", "push", "--branch", "master")
	assert.ErrorIs(t, err, event.ErrMalformedEvent)
}

func TestEvaluateFromEnv(t *testing.T) {
	dir := t.TempDir()
	payload := filepath.Join(dir, "event.json")
	writeFile(t, payload, `{"action":"synchronize","pull_request":{"draft":false,"base":{"ref":"master"},"head":{"ref":"topic"}}}`)

	t.Setenv("GITHUB_EVENT_NAME", "pull_request")
	t.Setenv("GITHUB_EVENT_PATH", payload)
	t.Setenv("GITHUB_BASE_REF", "master")
	t.Setenv("INPUT_MODIFIED_FILES", "tests/ring.rs")

	out, err := runCLI(t, "--project-dir", dir, "evaluate", "--from-env")
	require.NoError(t, err)
	assert.Contains(t, out, "run: check via")
}

func TestInvalidFormat(t *testing.T) {
	_, err := runCLI(t, "--project-dir", t.TempDir(), "--format", "yaml", "render")
	assert.Error(t, err)
}

func TestDispatchAndLedger(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "check-dispatch.toml"), `
ledger = "dispatches.db"

[invoker]
kind = "log"
`)

	out, err := runCLI(t, "--project-dir", dir, "--format", "json", "evaluate", "--dispatch",
		"--event", "push", "--ref", "refs/heads/master", "--paths", "src/ring/buffer.rs")
	require.NoError(t, err)

	var got decisionOutput
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	require.Len(t, got.Dispatches, 1)
	id := got.Dispatches[0].ID
	require.NotEmpty(t, id)

	out, err = runCLI(t, "--project-dir", dir, "--format", "json", "ledger", "list")
	require.NoError(t, err)
	var entries []ledger.Entry
	require.NoError(t, json.Unmarshal([]byte(out), &entries))
	require.Len(t, entries, 1)
	assert.Equal(t, id, entries[0].ID)
	assert.Equal(t, dispatch.StateDispatched, entries[0].State)

	_, err = runCLI(t, "--project-dir", dir, "ledger", "complete", id, "bogus")
	assert.Error(t, err)

	out, err = runCLI(t, "--project-dir", dir, "ledger", "complete", id, "success")
	require.NoError(t, err)
	assert.Equal(t, id+": success\n", out)

	_, err = runCLI(t, "--project-dir", dir, "ledger", "complete", id, "success")
	assert.ErrorIs(t, err, ledger.ErrNotFound)

	out, err = runCLI(t, "--project-dir", dir, "ledger", "list")
	require.NoError(t, err)
	assert.Contains(t, out, "idle/success")
}

func TestLedgerWithoutConfiguration(t *testing.T) {
	_, err := runCLI(t, "--project-dir", t.TempDir(), "ledger", "list")
	assert.ErrorIs(t, err, errNoLedger)
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".github", "workflows", "rust.yml"), string(workflow.DefaultSource()))
	writeFile(t, filepath.Join(dir, ".github", "workflows", "docs.yml"), `
name: docs
on:
  push:
    paths: ["docs/**"]
jobs:
  build:
    uses: shared-ci/workflows/.github/workflows/docs.yml@master
`)

	out, err := runCLI(t, "--project-dir", dir, "detect",
		"--event", "push", "--ref", "refs/heads/master", "--paths", "tests/ring.rs")
	require.NoError(t, err)
	assert.Equal(t, "Detected 1 workflows to run:\n - Rust (.github/workflows/rust.yml) via push\n", out)

	out, err = runCLI(t, "--project-dir", dir, "detect",
		"--event", "push", "--ref", "refs/heads/master", "--paths", "CHANGELOG.md")
	require.NoError(t, err)
	assert.Equal(t, "No workflows match the current event and modified files.\n", out)
}

func TestValidate(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, ".github", "workflows", "rust.yml"), string(workflow.DefaultSource()))

	out, err := runCLI(t, "--project-dir", dir, "validate")
	require.NoError(t, err)
	assert.Equal(t, "All 2 workflows validated successfully.\n", out)

	writeFile(t, filepath.Join(dir, ".github", "workflows", "guard.yml"), `
on: push
jobs:
  check:
    if: github.event_name ==
    uses: shared-ci/workflows/.github/workflows/rust.yml@master
`)
	_, err = runCLI(t, "--project-dir", dir, "validate")
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	out, err := runCLI(t, "--project-dir", t.TempDir(), "render")
	require.NoError(t, err)

	doc, err := workflow.Parse(strings.NewReader(out), workflow.DefaultPath)
	require.NoError(t, err)
	assert.Equal(t, "Rust", doc.Name)
	job, ok := doc.Job("check")
	require.True(t, ok)
	assert.Equal(t, "std,serde", job.With["cargo-features"])
}

func TestServeHelpDocumentsModifiedFiles(t *testing.T) {
	out, err := runCLI(t, "serve", "--help")
	require.NoError(t, err)
	assert.Contains(t, out, `"modified_files" array`)
	assert.Contains(t, out, "rejected with 400")
	assert.Contains(t, out, "POST /dispatches/{id}/complete")
}
