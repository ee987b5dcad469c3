// Package filter implements the event-level filters of a workflow trigger:
// branch, tag, path and activity-type filters. Every filter is a plain value
// with a pure Match method so that matching can be tested without loading a
// workflow or dispatching anything.
package filter

import (
	"strings"
)

// BranchFilter restricts an event to branches matching Include and not
// matching Exclude. The zero value matches every branch.
type BranchFilter struct {
	Include []string
	Exclude []string
}

// Empty reports whether the filter places no constraint on the branch.
func (f BranchFilter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Match reports whether branch passes the filter. Patterns may be written
// either as bare branch names or as full "refs/heads/" refs.
func (f BranchFilter) Match(branch string) bool {
	if f.Empty() {
		return true
	}
	if branch == "" {
		return false
	}

	candidates := []string{branch}
	if !strings.HasPrefix(branch, "refs/heads/") {
		candidates = append(candidates, "refs/heads/"+branch)
	}

	if len(f.Include) > 0 && !anyCandidate(f.Include, candidates) {
		return false
	}
	if len(f.Exclude) > 0 && anyCandidate(f.Exclude, candidates) {
		return false
	}
	return true
}

func anyCandidate(patterns, candidates []string) bool {
	for _, c := range candidates {
		if matchOrdered(patterns, c) {
			return true
		}
	}
	return false
}

// TagFilter restricts push events for tags. The zero value matches every tag.
type TagFilter struct {
	Include []string
	Exclude []string
}

// Empty reports whether the filter places no constraint on the tag.
func (f TagFilter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Match reports whether tag passes the filter.
func (f TagFilter) Match(tag string) bool {
	if len(f.Include) > 0 && !matchOrdered(f.Include, tag) {
		return false
	}
	if len(f.Exclude) > 0 && matchOrdered(f.Exclude, tag) {
		return false
	}
	return true
}

// PathFilter restricts an event to changes touching matching files.
// Include corresponds to "paths" and Exclude to "paths-ignore". Within each
// list patterns are evaluated in order and a leading "!" negates, so the last
// matching pattern decides.
type PathFilter struct {
	Include []string
	Exclude []string
}

// Empty reports whether the filter places no constraint on changed paths.
func (f PathFilter) Empty() bool {
	return len(f.Include) == 0 && len(f.Exclude) == 0
}

// Match reports whether the changed files satisfy the filter. With Include
// patterns at least one file must be included and not excluded; with only
// Exclude patterns at least one file must survive the excludes.
func (f PathFilter) Match(files []string) bool {
	if f.Empty() {
		return true
	}

	files = NormalizePaths(files)

	if len(f.Include) > 0 {
		for _, file := range files {
			if matchOrdered(f.Include, file) && !matchOrdered(f.Exclude, file) {
				return true
			}
		}
		return false
	}

	// No include filters; ensure at least one file survives the excludes.
	if len(files) == 0 {
		return true
	}
	for _, file := range files {
		if !matchOrdered(f.Exclude, file) {
			return true
		}
	}
	return false
}

// Matching returns the files that pass the filter, in input order.
func (f PathFilter) Matching(files []string) []string {
	var out []string
	for _, file := range NormalizePaths(files) {
		if f.Match([]string{file}) {
			out = append(out, file)
		}
	}
	return out
}

// ActionFilter restricts an event to the listed activity types. An empty
// filter matches every action.
type ActionFilter []string

// Match reports whether action is one of the filter's activity types.
func (f ActionFilter) Match(action string) bool {
	if len(f) == 0 {
		return true
	}
	if action == "" {
		return false
	}
	for _, t := range f {
		if strings.EqualFold(strings.TrimSpace(t), action) {
			return true
		}
	}
	return false
}

func matchOrdered(patterns []string, candidate string) bool {
	matched := false
	for _, raw := range patterns {
		pattern := strings.TrimSpace(raw)
		negate := strings.HasPrefix(pattern, "!")
		pattern = NormalizePath(strings.TrimPrefix(pattern, "!"))
		if pattern == "" {
			continue
		}
		if Glob(pattern, candidate) {
			matched = !negate
		}
	}
	return matched
}
