package event

import (
	"errors"
	"fmt"
	"strings"
)

// ErrMalformedEvent is returned when an event record is missing fields that
// every upstream integration is expected to supply. It signals an integration
// fault, not a legitimately non-matching event.
var ErrMalformedEvent = errors.New("malformed event")

// Kind is the repository event name, e.g. "push" or "pull_request".
type Kind string

const (
	KindPush        Kind = "push"
	KindPullRequest Kind = "pull_request"
)

// Known reports whether k is one of the event kinds the dispatcher evaluates.
func (k Kind) Known() bool {
	return k == KindPush || k == KindPullRequest
}

// Event captures the information required to evaluate trigger rules and job
// guards for a single repository event.
type Event struct {
	// Kind is the event name.
	Kind Kind

	// Ref is the git ref associated with the event, e.g. "refs/heads/master".
	// Push events may carry a Ref instead of a Branch.
	Ref string

	// Branch is the pushed branch for push events and the base (target)
	// branch for pull request events.
	Branch string

	// HeadBranch is the source branch of a pull request.
	HeadBranch string

	// Action is the event subtype, e.g. "opened" or "synchronize".
	Action string

	// Draft is the pull request draft flag. It is nil for events without a
	// draft concept.
	Draft *bool

	// Paths lists the files changed by the event. A nil slice means the list
	// was not supplied; an empty slice means nothing changed.
	Paths []string
}

// Validate checks that the fields required for e.Kind are present. Events of
// an unrecognized kind only need a kind; they are skipped by the dispatcher
// rather than rejected.
func (e Event) Validate() error {
	var missing []string
	if strings.TrimSpace(string(e.Kind)) == "" {
		missing = append(missing, "kind")
	}
	if e.Kind.Known() && e.Paths == nil {
		missing = append(missing, "changed paths")
	}

	switch e.Kind {
	case KindPush:
		if e.BranchName() == "" && e.TagName() == "" {
			missing = append(missing, "branch or ref")
		}
	case KindPullRequest:
		if e.BranchName() == "" {
			missing = append(missing, "base branch")
		}
		if strings.TrimSpace(e.Action) == "" {
			missing = append(missing, "action")
		}
		if e.Draft == nil {
			missing = append(missing, "draft flag")
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("%w: missing %s", ErrMalformedEvent, strings.Join(missing, ", "))
	}
	return nil
}

// BranchName returns the branch the event targets, derived from Ref when
// Branch is empty.
func (e Event) BranchName() string {
	if b := strings.TrimSpace(e.Branch); b != "" {
		return strings.TrimPrefix(b, "refs/heads/")
	}
	branch, _ := SplitRef(e.Ref)
	return branch
}

// TagName returns the pushed tag, if Ref names one.
func (e Event) TagName() string {
	_, tag := SplitRef(e.Ref)
	return tag
}

// IsDraft reports whether the event is a draft pull request.
func (e Event) IsDraft() bool {
	return e.Draft != nil && *e.Draft
}

// SplitRef separates a git ref into its branch or tag component.
func SplitRef(ref string) (branch string, tag string) {
	ref = strings.TrimSpace(ref)
	if strings.HasPrefix(ref, "refs/heads/") {
		return strings.TrimPrefix(ref, "refs/heads/"), ""
	}
	if strings.HasPrefix(ref, "refs/tags/") {
		return "", strings.TrimPrefix(ref, "refs/tags/")
	}
	return ref, ""
}

// Bool returns a pointer to v, for populating Event.Draft.
func Bool(v bool) *bool {
	return &v
}
