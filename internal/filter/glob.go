package filter

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// maxExpansions bounds the number of doublestar patterns a single GitHub
// pattern may expand into.
const maxExpansions = 64

// Glob reports whether name matches pattern using the GitHub Actions filter
// dialect: "*" stops at "/", "**" matches any sequence of characters
// including "/", even when it shares a segment with other characters
// ("src/**.rs" matches both "src/lib.rs" and "src/a/b.rs").
func Glob(pattern, name string) bool {
	alts, err := expand(pattern)
	if err != nil {
		return false
	}
	for _, p := range alts {
		matched, err := doublestar.Match(p, name)
		if err != nil {
			continue
		}
		if matched {
			return true
		}
	}
	return false
}

// ValidatePattern rejects patterns doublestar cannot compile and patterns
// with too many embedded "**" to expand. A leading "!" is allowed.
func ValidatePattern(pattern string) error {
	p := strings.TrimPrefix(strings.TrimSpace(pattern), "!")
	if p == "" {
		return fmt.Errorf("empty pattern %q", pattern)
	}
	alts, err := expand(p)
	if err != nil {
		return err
	}
	for _, alt := range alts {
		if !doublestar.ValidatePattern(alt) {
			return fmt.Errorf("invalid pattern %q", pattern)
		}
	}
	return nil
}

// expand rewrites every "**" that does not fill a whole path segment into the
// two doublestar forms it stands for: no directory separator ("*") or at
// least one ("*/**/*").
func expand(pattern string) ([]string, error) {
	out, ok := expandFrom(pattern, 0)
	if !ok {
		return nil, fmt.Errorf("pattern %q expands to more than %d alternatives", pattern, maxExpansions)
	}
	return out, nil
}

func expandFrom(pattern string, start int) ([]string, bool) {
	idx := strings.Index(pattern[start:], "**")
	if idx < 0 {
		return []string{pattern}, true
	}
	i := start + idx

	segStart := i == 0 || pattern[i-1] == '/'
	end := i + 2
	for end < len(pattern) && pattern[end] == '*' {
		end++
	}
	segEnd := end == len(pattern) || pattern[end] == '/'
	if segStart && segEnd {
		return expandFrom(pattern, end)
	}

	prefix, suffix := pattern[:i], pattern[end:]
	flat := prefix + "*"
	deep := prefix + "*/**/*"

	rests, ok := expandFrom(suffix, 0)
	if !ok || 2*len(rests) > maxExpansions {
		return nil, false
	}
	out := make([]string, 0, 2*len(rests))
	for _, rest := range rests {
		out = append(out, flat+rest, deep+rest)
	}
	return out, true
}

// NormalizePath strips leading "./" and "/" and converts separators so that
// repository paths compare equal regardless of how the upstream reported
// them.
func NormalizePath(p string) string {
	if p == "" {
		return ""
	}
	norm := filepath.ToSlash(strings.TrimSpace(p))
	for strings.HasPrefix(norm, "./") {
		norm = strings.TrimPrefix(norm, "./")
	}
	for strings.HasPrefix(norm, "/") {
		norm = strings.TrimPrefix(norm, "/")
	}
	return norm
}

// NormalizePaths normalizes and deduplicates files, preserving order.
func NormalizePaths(files []string) []string {
	out := make([]string, 0, len(files))
	seen := map[string]struct{}{}
	for _, file := range files {
		norm := NormalizePath(file)
		if norm == "" {
			continue
		}
		if _, ok := seen[norm]; ok {
			continue
		}
		seen[norm] = struct{}{}
		out = append(out, norm)
	}
	return out
}
