package workflow

import (
	"bytes"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/filter"
)

var checkPaths = []string{".github/workflows/rust.yml", "src/**.rs", "tests/**", "Cargo.toml"}

func TestDefaultDocument(t *testing.T) {
	doc, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	if doc.Name != "Rust" || doc.Path != DefaultPath {
		t.Fatalf("unexpected document identity: %q %q", doc.Name, doc.Path)
	}

	wantRules := []TriggerRule{
		{
			Event:    event.KindPush,
			Branches: filter.BranchFilter{Include: []string{"master"}},
			Paths:    filter.PathFilter{Include: checkPaths},
		},
		{
			Event:    event.KindPullRequest,
			Branches: filter.BranchFilter{Include: []string{"**"}},
			Paths:    filter.PathFilter{Include: checkPaths},
			Actions:  filter.ActionFilter{"opened", "synchronize", "reopened", "ready_for_review"},
		},
	}
	if diff := cmp.Diff(wantRules, doc.Rules); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}

	wantJobs := []Job{
		{
			ID: "check",
			If: "github.event.pull_request.draft == false",
			Uses: Ref{
				Owner:   "shared-ci",
				Repo:    "workflows",
				Path:    ".github/workflows/rust.yml",
				Version: "master",
			},
			With: Params{
				"cargo-features":    "std,serde",
				"cargo-no-features": true,
				"valgrind":          false,
				"miri":              true,
			},
		},
	}
	if diff := cmp.Diff(wantJobs, doc.Jobs); diff != "" {
		t.Fatalf("jobs mismatch (-want +got):\n%s", diff)
	}
}

func TestParseExpressionWrapperAndOrdering(t *testing.T) {
	doc := parse(t, `
on:
  pull_request:
    paths: ["src/**"]
jobs:
  zeta:
    if: ${{ github.event_name == 'push' }}
    uses: ./.github/workflows/build.yml
  alpha:
    uses: org/ci/.github/workflows/lint.yml@v2
    with:
      level: 3
      ratio: 0.5
`)

	if doc.Name != "test" {
		t.Fatalf("expected name to fall back to file name, got %q", doc.Name)
	}
	if len(doc.Jobs) != 2 || doc.Jobs[0].ID != "alpha" || doc.Jobs[1].ID != "zeta" {
		t.Fatalf("expected jobs sorted by ID, got %+v", doc.Jobs)
	}
	if got := doc.Jobs[1].If; got != "github.event_name == 'push'" {
		t.Fatalf("expected wrapper to be stripped, got %q", got)
	}
	if !doc.Jobs[1].Uses.Local || doc.Jobs[1].Uses.Path != ".github/workflows/build.yml" {
		t.Fatalf("unexpected local ref: %+v", doc.Jobs[1].Uses)
	}
	if diff := cmp.Diff(map[string]string{"level": "3", "ratio": "0.5"}, doc.Jobs[0].With.Strings()); diff != "" {
		t.Fatalf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestParseRejectsInvalidPattern(t *testing.T) {
	_, err := Parse(strings.NewReader(`
on:
  push:
    paths: ["src/[.rs"]
jobs:
  check:
    uses: org/ci/.github/workflows/rust.yml@master
`), "bad.yml")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestParseRejectsOverlongPattern(t *testing.T) {
	_, err := Parse(strings.NewReader(`
on:
  pull_request:
    paths: ["a**b**c**d**e**f**g**.rs"]
jobs:
  check:
    uses: org/ci/.github/workflows/rust.yml@master
`), "overlong.yml")
	if !errors.Is(err, ErrInvalidDocument) {
		t.Fatalf("expected ErrInvalidDocument, got %v", err)
	}
}

func TestParseRejectsBadUses(t *testing.T) {
	_, err := Parse(strings.NewReader(`
on: push
jobs:
  check:
    uses: org/ci
`), "bad.yml")
	if err == nil {
		t.Fatalf("expected unversioned uses reference to be rejected")
	}
}

func TestParseRejectsStructuredParams(t *testing.T) {
	_, err := Parse(strings.NewReader(`
on: push
jobs:
  check:
    uses: org/ci/.github/workflows/rust.yml@master
    with:
      features:
        - std
`), "bad.yml")
	if err == nil {
		t.Fatalf("expected structured with value to be rejected")
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rust.yml")
	if err := os.WriteFile(path, DefaultSource(), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	doc, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	def, _ := Default()
	if diff := cmp.Diff(def.Rules, doc.Rules); diff != "" {
		t.Fatalf("rules mismatch (-want +got):\n%s", diff)
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}

func TestRuleMatch(t *testing.T) {
	doc, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}
	push, _ := doc.Rule(event.KindPush)
	pr, _ := doc.Rule(event.KindPullRequest)

	tests := []struct {
		name string
		rule TriggerRule
		ev   event.Event
		want Mismatch
	}{
		{
			name: "push to master",
			rule: push,
			ev:   event.Event{Kind: event.KindPush, Ref: "refs/heads/master", Paths: []string{"Cargo.toml"}},
			want: MismatchNone,
		},
		{
			name: "push to feature branch",
			rule: push,
			ev:   event.Event{Kind: event.KindPush, Ref: "refs/heads/feature-x", Paths: []string{"src/lib.rs"}},
			want: MismatchBranch,
		},
		{
			name: "tag push against branch-only rule",
			rule: push,
			ev:   event.Event{Kind: event.KindPush, Ref: "refs/tags/v1.0.0", Paths: []string{"src/lib.rs"}},
			want: MismatchTag,
		},
		{
			name: "push without matching paths",
			rule: push,
			ev:   event.Event{Kind: event.KindPush, Branch: "master", Paths: []string{"README.md"}},
			want: MismatchPaths,
		},
		{
			name: "pull request closed",
			rule: pr,
			ev:   event.Event{Kind: event.KindPullRequest, Branch: "develop", Action: "closed", Paths: []string{"src/lib.rs"}},
			want: MismatchAction,
		},
		{
			name: "pull request into any branch",
			rule: pr,
			ev:   event.Event{Kind: event.KindPullRequest, Branch: "release/1.x", Action: "reopened", Paths: []string{"tests/ring.rs"}},
			want: MismatchNone,
		},
		{
			name: "wrong event",
			rule: pr,
			ev:   event.Event{Kind: event.KindPush, Branch: "master", Paths: []string{"src/lib.rs"}},
			want: MismatchEvent,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.rule.Match(tt.ev); got != tt.want {
				t.Fatalf("Match = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRuleMatchTagsOnly(t *testing.T) {
	doc := parse(t, `
on:
  push:
    tags: ["v*"]
jobs:
  release:
    uses: org/ci/.github/workflows/release.yml@v1
`)
	rule, ok := doc.Rule(event.KindPush)
	if !ok {
		t.Fatalf("expected push rule")
	}
	if got := rule.Match(event.Event{Kind: event.KindPush, Ref: "refs/tags/v1.2.3", Paths: []string{}}); got != MismatchNone {
		t.Fatalf("expected tag push to match, got %q", got)
	}
	if got := rule.Match(event.Event{Kind: event.KindPush, Ref: "refs/heads/master", Paths: []string{}}); got != MismatchBranch {
		t.Fatalf("expected branch push to be rejected, got %q", got)
	}
}

func TestRenderPreservesMeaning(t *testing.T) {
	doc, err := Default()
	if err != nil {
		t.Fatalf("Default returned error: %v", err)
	}

	var buf bytes.Buffer
	if err := Render(&buf, doc); err != nil {
		t.Fatalf("Render returned error: %v", err)
	}

	again, err := Parse(&buf, DefaultPath)
	if err != nil {
		t.Fatalf("Parse of rendered document returned error: %v\n%s", err, buf.String())
	}
	if diff := cmp.Diff(doc, again); diff != "" {
		t.Fatalf("rendered document differs (-want +got):\n%s", diff)
	}
}

func TestParseRef(t *testing.T) {
	ref, err := ParseRef("shared-ci/workflows/.github/workflows/rust.yml@master")
	if err != nil {
		t.Fatalf("ParseRef returned error: %v", err)
	}
	if ref.Repository() != "shared-ci/workflows" || ref.Version != "master" {
		t.Fatalf("unexpected ref: %+v", ref)
	}
	if got := ref.String(); got != "shared-ci/workflows/.github/workflows/rust.yml@master" {
		t.Fatalf("String() = %q", got)
	}

	for _, bad := range []string{"", "org/repo@v1", "org/repo/path.yml", "/repo/path@v1"} {
		if _, err := ParseRef(bad); !errors.Is(err, ErrInvalidDocument) {
			t.Errorf("ParseRef(%q) expected ErrInvalidDocument, got %v", bad, err)
		}
	}
}

func parse(t *testing.T, content string) *Document {
	t.Helper()
	doc, err := Parse(strings.NewReader(strings.TrimLeft(content, "\n")), ".github/workflows/test.yml")
	if err != nil {
		t.Fatalf("Parse returned error: %v", err)
	}
	return doc
}
