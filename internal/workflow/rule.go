package workflow

import (
	"errors"
	"fmt"
	"strings"

	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/filter"
)

// Mismatch names the filter that rejected an event. The empty Mismatch means
// the event matched.
type Mismatch string

const (
	MismatchNone   Mismatch = ""
	MismatchEvent  Mismatch = "event"
	MismatchBranch Mismatch = "branch"
	MismatchTag    Mismatch = "tag"
	MismatchAction Mismatch = "action"
	MismatchPaths  Mismatch = "paths"
)

// TriggerRule is the compiled form of one entry under "on".
type TriggerRule struct {
	Event    event.Kind
	Branches filter.BranchFilter
	Tags     filter.TagFilter
	Paths    filter.PathFilter
	Actions  filter.ActionFilter
}

// Match reports whether ev satisfies the rule and, if not, which filter
// rejected it.
func (r TriggerRule) Match(ev event.Event) Mismatch {
	if ev.Kind != r.Event {
		return MismatchEvent
	}

	switch r.Event {
	case event.KindPullRequest, "pull_request_target", "merge_group":
		if !r.Actions.Match(ev.Action) {
			return MismatchAction
		}
		if !r.Branches.Match(ev.BranchName()) {
			return MismatchBranch
		}
		if !r.Paths.Match(ev.Paths) {
			return MismatchPaths
		}
		return MismatchNone
	case event.KindPush:
		if tag := ev.TagName(); tag != "" {
			// A push rule that only names branches never runs for tags.
			if r.Tags.Empty() && !r.Branches.Empty() {
				return MismatchTag
			}
			if !r.Tags.Match(tag) {
				return MismatchTag
			}
		} else {
			if r.Branches.Empty() && !r.Tags.Empty() {
				return MismatchBranch
			}
			if !r.Branches.Match(ev.BranchName()) {
				return MismatchBranch
			}
		}
		if !r.Paths.Match(ev.Paths) {
			return MismatchPaths
		}
		return MismatchNone
	default:
		if !r.Actions.Match(ev.Action) {
			return MismatchAction
		}
		return MismatchNone
	}
}

func (r TriggerRule) validate() error {
	var errs []error
	check := func(key string, patterns []string) {
		for _, p := range patterns {
			if err := filter.ValidatePattern(p); err != nil {
				errs = append(errs, fmt.Errorf("%w: on.%s.%s: %v", ErrInvalidDocument, r.Event, key, err))
			}
		}
	}
	check("branches", r.Branches.Include)
	check("branches-ignore", r.Branches.Exclude)
	check("tags", r.Tags.Include)
	check("tags-ignore", r.Tags.Exclude)
	check("paths", r.Paths.Include)
	check("paths-ignore", r.Paths.Exclude)
	return errors.Join(errs...)
}

type eventConfig struct {
	Branches       []string
	BranchesIgnore []string
	Paths          []string
	PathsIgnore    []string
	Tags           []string
	TagsIgnore     []string
	Types          []string
}

func compileRule(kind event.Kind, cfg eventConfig) TriggerRule {
	return TriggerRule{
		Event:    kind,
		Branches: filter.BranchFilter{Include: cfg.Branches, Exclude: cfg.BranchesIgnore},
		Tags:     filter.TagFilter{Include: cfg.Tags, Exclude: cfg.TagsIgnore},
		Paths:    filter.PathFilter{Include: cfg.Paths, Exclude: cfg.PathsIgnore},
		Actions:  filter.ActionFilter(cfg.Types),
	}
}

func parseEventConfig(raw interface{}) eventConfig {
	cfg := eventConfig{}
	if raw == nil {
		return cfg
	}

	switch v := raw.(type) {
	case map[string]interface{}:
		for k, val := range v {
			switch strings.ToLower(k) {
			case "branches":
				cfg.Branches = asStringSlice(val)
			case "branches-ignore":
				cfg.BranchesIgnore = asStringSlice(val)
			case "paths":
				cfg.Paths = asStringSlice(val)
			case "paths-ignore":
				cfg.PathsIgnore = asStringSlice(val)
			case "tags":
				cfg.Tags = asStringSlice(val)
			case "tags-ignore":
				cfg.TagsIgnore = asStringSlice(val)
			case "types":
				cfg.Types = asStringSlice(val)
			}
		}
	case []interface{}:
		cfg.Types = asStringSlice(v)
	case []string:
		cfg.Types = append(cfg.Types, v...)
	case string:
		cfg.Types = []string{strings.TrimSpace(v)}
	}

	return cfg
}

func asStringSlice(value interface{}) []string {
	switch v := value.(type) {
	case nil:
		return nil
	case []string:
		return append([]string(nil), v...)
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if item == nil {
				continue
			}
			out = append(out, fmt.Sprint(item))
		}
		return out
	case string:
		return []string{strings.TrimSpace(v)}
	default:
		return []string{fmt.Sprint(v)}
	}
}
