package filter

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestGlob(t *testing.T) {
	tests := []struct {
		pattern string
		name    string
		want    bool
	}{
		{"src/**.rs", "src/lib.rs", true},
		{"src/**.rs", "src/ring/buffer.rs", true},
		{"src/**.rs", "src/a/b/c.rs", true},
		{"src/**.rs", "src/lib.toml", false},
		{"src/**.rs", "tests/lib.rs", false},
		{"tests/**", "tests/ring.rs", true},
		{"tests/**", "tests/nested/array.rs", true},
		{"tests/**", "src/tests.rs", false},
		{"Cargo.toml", "Cargo.toml", true},
		{"Cargo.toml", "sub/Cargo.toml", false},
		{".github/workflows/rust.yml", ".github/workflows/rust.yml", true},
		{".github/workflows/rust.yml", ".github/workflows/other.yml", false},
		{"*.md", "README.md", true},
		{"*.md", "docs/README.md", false},
		{"**.md", "docs/README.md", true},
		{"docs/**/*.md", "docs/README.md", true},
		{"feature/*", "feature/x", true},
		{"feature/*", "feature/x/y", false},
		{"feature/**", "feature/x/y", true},
	}

	for _, tt := range tests {
		if got := Glob(tt.pattern, tt.name); got != tt.want {
			t.Errorf("Glob(%q, %q) = %v, want %v", tt.pattern, tt.name, got, tt.want)
		}
	}
}

func TestExpand(t *testing.T) {
	got, err := expand("src/**.rs")
	if err != nil {
		t.Fatalf("expand returned error: %v", err)
	}
	want := []string{"src/*.rs", "src/*/**/*.rs"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("expand mismatch (-want +got):\n%s", diff)
	}

	got, err = expand("tests/**")
	if err != nil {
		t.Fatalf("expand returned error: %v", err)
	}
	if diff := cmp.Diff([]string{"tests/**"}, got); diff != "" {
		t.Fatalf("whole-segment ** should be kept (-want +got):\n%s", diff)
	}
}

func TestExpandLimit(t *testing.T) {
	six := "a**b**c**d**e**f**.rs"
	got, err := expand(six)
	if err != nil {
		t.Fatalf("expand(%q) returned error: %v", six, err)
	}
	if len(got) != maxExpansions {
		t.Fatalf("expand(%q) returned %d alternatives, want %d", six, len(got), maxExpansions)
	}

	seven := "a**b**c**d**e**f**g**.rs"
	if _, err := expand(seven); err == nil {
		t.Fatalf("expand(%q) expected an error past %d alternatives", seven, maxExpansions)
	}
	if err := ValidatePattern(seven); err == nil {
		t.Fatalf("ValidatePattern(%q) expected error", seven)
	}
	if Glob(seven, "ab/c/d/e/f/g/h.rs") {
		t.Fatalf("Glob(%q) should not match an unexpandable pattern", seven)
	}
}

func TestValidatePattern(t *testing.T) {
	for _, p := range []string{"src/**.rs", "!docs/**", "[ab]*.go"} {
		if err := ValidatePattern(p); err != nil {
			t.Errorf("ValidatePattern(%q) returned error: %v", p, err)
		}
	}
	for _, p := range []string{"", "!", "src/[.rs"} {
		if err := ValidatePattern(p); err == nil {
			t.Errorf("ValidatePattern(%q) expected error", p)
		}
	}
}

func TestBranchFilter(t *testing.T) {
	master := BranchFilter{Include: []string{"master"}}
	if !master.Match("master") {
		t.Fatalf("expected master to match")
	}
	if !master.Match("refs/heads/master") {
		t.Fatalf("expected full ref to match")
	}
	if master.Match("feature-x") {
		t.Fatalf("expected feature-x not to match")
	}
	if master.Match("") {
		t.Fatalf("expected empty branch not to match a constrained filter")
	}

	if !(BranchFilter{}).Match("anything") {
		t.Fatalf("expected empty filter to match any branch")
	}

	release := BranchFilter{Include: []string{"release/**", "!release/**-alpha"}}
	if !release.Match("release/v1") {
		t.Fatalf("expected release/v1 to match")
	}
	if release.Match("release/v1-alpha") {
		t.Fatalf("expected negated pattern to exclude release/v1-alpha")
	}

	ignore := BranchFilter{Exclude: []string{"dependabot/**"}}
	if ignore.Match("dependabot/cargo/serde") {
		t.Fatalf("expected excluded branch not to match")
	}
	if !ignore.Match("master") {
		t.Fatalf("expected non-excluded branch to match")
	}
}

func TestTagFilter(t *testing.T) {
	f := TagFilter{Include: []string{"v*"}, Exclude: []string{"v*-rc*"}}
	if !f.Match("v1.2.3") {
		t.Fatalf("expected v1.2.3 to match")
	}
	if f.Match("v1.2.3-rc1") {
		t.Fatalf("expected release candidate to be excluded")
	}
	if f.Match("nightly") {
		t.Fatalf("expected nightly not to match")
	}
}

func TestPathFilter(t *testing.T) {
	f := PathFilter{Include: []string{
		".github/workflows/rust.yml",
		"src/**.rs",
		"tests/**",
		"Cargo.toml",
	}}

	tests := []struct {
		name  string
		files []string
		want  bool
	}{
		{"manifest", []string{"Cargo.toml"}, true},
		{"source", []string{"README.md", "src/lib.rs"}, true},
		{"leading dot slash", []string{"./tests/foo.rs"}, true},
		{"workflow", []string{".github/workflows/rust.yml"}, true},
		{"docs only", []string{"README.md"}, false},
		{"non rust source", []string{"src/notes.txt"}, false},
		{"nothing changed", []string{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := f.Match(tt.files); got != tt.want {
				t.Fatalf("Match(%v) = %v, want %v", tt.files, got, tt.want)
			}
		})
	}
}

func TestPathFilterNegation(t *testing.T) {
	f := PathFilter{Include: []string{"src/**", "!src/**.md"}}
	if f.Match([]string{"src/README.md"}) {
		t.Fatalf("expected negated markdown to be dropped")
	}
	if !f.Match([]string{"src/README.md", "src/lib.rs"}) {
		t.Fatalf("expected lib.rs to match")
	}
}

func TestPathFilterIgnoreOnly(t *testing.T) {
	f := PathFilter{Exclude: []string{"docs/**"}}
	if f.Match([]string{"docs/README.md"}) {
		t.Fatalf("expected only ignored files not to match")
	}
	if !f.Match([]string{"docs/README.md", "pkg/config.go"}) {
		t.Fatalf("expected a non-ignored file to match")
	}
	if !f.Match(nil) {
		t.Fatalf("expected no files to pass an ignore-only filter")
	}
}

func TestPathFilterMatching(t *testing.T) {
	f := PathFilter{Include: []string{"src/**.rs", "Cargo.toml"}}
	got := f.Matching([]string{"README.md", "src/vec.rs", "/Cargo.toml", "src/vec.rs"})
	want := []string{"src/vec.rs", "Cargo.toml"}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("Matching mismatch (-want +got):\n%s", diff)
	}
}

func TestActionFilter(t *testing.T) {
	f := ActionFilter{"opened", "synchronize", "reopened", "ready_for_review"}
	for _, a := range []string{"opened", "synchronize", "reopened", "ready_for_review", "Opened"} {
		if !f.Match(a) {
			t.Errorf("expected %q to match", a)
		}
	}
	for _, a := range []string{"closed", "labeled", ""} {
		if f.Match(a) {
			t.Errorf("expected %q not to match", a)
		}
	}
	if !(ActionFilter{}).Match("closed") {
		t.Fatalf("expected empty filter to match any action")
	}
}

func TestNormalizePaths(t *testing.T) {
	paths := NormalizePaths([]string{"src/main.go", "./src/utils.go", "/docs/readme.md", "src/main.go", " "})
	want := []string{"src/main.go", "src/utils.go", "docs/readme.md"}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("NormalizePaths mismatch (-want +got):\n%s", diff)
	}
}
