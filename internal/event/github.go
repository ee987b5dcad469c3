package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
)

// LookupFunc resolves environment variables; os.LookupEnv satisfies it.
type LookupFunc func(key string) (string, bool)

// FromEnv builds an Event from the variables GitHub Actions exposes to a
// running step. The changed file list comes from INPUT_MODIFIED_FILES; when
// that variable is unset the event has no path list and fails validation.
func FromEnv(lookup LookupFunc) (Event, error) {
	get := func(key string) string {
		v, _ := lookup(key)
		return strings.TrimSpace(v)
	}

	name := get("GITHUB_EVENT_NAME")
	if name == "" {
		return Event{}, fmt.Errorf("%w: GITHUB_EVENT_NAME is not set", ErrMalformedEvent)
	}

	ev := Event{
		Kind:       Kind(name),
		Ref:        get("GITHUB_REF"),
		HeadBranch: get("GITHUB_HEAD_REF"),
	}
	if ev.Kind == KindPullRequest {
		ev.Branch = get("GITHUB_BASE_REF")
	}

	if raw, ok := lookup("INPUT_MODIFIED_FILES"); ok {
		paths, err := ParseChangedFiles(raw)
		if err != nil {
			return Event{}, fmt.Errorf("parse modified files: %w", err)
		}
		ev.Paths = paths
	}

	if payloadPath := get("GITHUB_EVENT_PATH"); payloadPath != "" {
		data, err := os.ReadFile(payloadPath)
		if err != nil {
			return Event{}, fmt.Errorf("read event payload: %w", err)
		}
		if err := populateFromPayload(&ev, data); err != nil {
			return Event{}, err
		}
	}

	return ev, nil
}

// FromWebhook builds an Event from a webhook delivery. name is the value of
// the X-GitHub-Event header. Push deliveries derive the changed paths from
// the commit lists; other deliveries must carry a "modified_files" array.
func FromWebhook(name string, payload []byte) (Event, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Event{}, fmt.Errorf("%w: event name is required", ErrMalformedEvent)
	}

	ev := Event{Kind: Kind(name)}
	if err := populateFromPayload(&ev, payload); err != nil {
		return Event{}, err
	}
	return ev, nil
}

type basePayload struct {
	Action        string    `json:"action"`
	Ref           string    `json:"ref"`
	ModifiedFiles *[]string `json:"modified_files"`
	// Commits is nil when the key is absent. Branch deletions and tag
	// pushes of existing commits carry an empty list.
	Commits *[]struct {
		Added    []string `json:"added"`
		Modified []string `json:"modified"`
		Removed  []string `json:"removed"`
	} `json:"commits"`
	PullRequest *struct {
		Draft *bool `json:"draft"`
		Base  struct {
			Ref string `json:"ref"`
		} `json:"base"`
		Head struct {
			Ref string `json:"ref"`
		} `json:"head"`
	} `json:"pull_request"`
}

func populateFromPayload(ev *Event, payload []byte) error {
	var p basePayload
	if err := json.Unmarshal(payload, &p); err != nil {
		return fmt.Errorf("%w: decode payload: %v", ErrMalformedEvent, err)
	}

	if p.Action != "" {
		ev.Action = p.Action
	}

	switch ev.Kind {
	case KindPullRequest:
		if p.PullRequest != nil {
			if p.PullRequest.Base.Ref != "" {
				ev.Branch = p.PullRequest.Base.Ref
			}
			if p.PullRequest.Head.Ref != "" {
				ev.HeadBranch = p.PullRequest.Head.Ref
			}
			if p.PullRequest.Draft != nil {
				ev.Draft = Bool(*p.PullRequest.Draft)
			}
		}
	case KindPush:
		if p.Ref != "" {
			ev.Ref = p.Ref
		}
		if ev.Paths == nil && p.ModifiedFiles == nil && p.Commits != nil {
			var files []string
			for _, c := range *p.Commits {
				files = append(files, c.Added...)
				files = append(files, c.Modified...)
				files = append(files, c.Removed...)
			}
			ev.Paths = dedupe(files)
		}
	}

	if p.ModifiedFiles != nil {
		ev.Paths = dedupe(*p.ModifiedFiles)
	}
	return nil
}

// ParseChangedFiles accepts either a JSON array or a comma/newline separated
// list of paths.
func ParseChangedFiles(raw string) ([]string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return []string{}, nil
	}

	if strings.HasPrefix(raw, "[") {
		var values []string
		if err := json.Unmarshal([]byte(raw), &values); err != nil {
			return nil, errors.Join(ErrMalformedEvent, err)
		}
		return dedupe(values), nil
	}

	parts := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == '\n'
	})
	return dedupe(parts), nil
}

func dedupe(files []string) []string {
	out := make([]string, 0, len(files))
	seen := map[string]struct{}{}
	for _, f := range files {
		f = strings.TrimSpace(f)
		if f == "" {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}
