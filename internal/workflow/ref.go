package workflow

import (
	"fmt"
	"strings"
)

// Ref identifies the reusable workflow a job delegates to, e.g.
// "owner/repo/.github/workflows/rust.yml@master".
type Ref struct {
	Owner   string
	Repo    string
	Path    string
	Version string

	// Local is set for "./path/to/workflow.yml" references within the same
	// repository; Owner, Repo and Version are empty.
	Local bool
}

// ParseRef parses the value of a job's "uses" key.
func ParseRef(uses string) (Ref, error) {
	uses = strings.TrimSpace(uses)
	if uses == "" {
		return Ref{}, fmt.Errorf("%w: empty uses reference", ErrInvalidDocument)
	}

	if strings.HasPrefix(uses, "./") {
		return Ref{Path: strings.TrimPrefix(uses, "./"), Local: true}, nil
	}

	target, version, ok := strings.Cut(uses, "@")
	if !ok || version == "" {
		return Ref{}, fmt.Errorf("%w: uses %q has no version", ErrInvalidDocument, uses)
	}

	parts := strings.SplitN(target, "/", 3)
	if len(parts) < 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return Ref{}, fmt.Errorf("%w: uses %q must be owner/repo/path@ref", ErrInvalidDocument, uses)
	}

	return Ref{
		Owner:   parts[0],
		Repo:    parts[1],
		Path:    parts[2],
		Version: version,
	}, nil
}

// IsZero reports whether the job delegates to no reusable workflow.
func (r Ref) IsZero() bool {
	return r == Ref{}
}

// Repository returns "owner/repo", or "" for local references.
func (r Ref) Repository() string {
	if r.Local || r.IsZero() {
		return ""
	}
	return r.Owner + "/" + r.Repo
}

func (r Ref) String() string {
	switch {
	case r.IsZero():
		return ""
	case r.Local:
		return "./" + r.Path
	default:
		return fmt.Sprintf("%s/%s/%s@%s", r.Owner, r.Repo, r.Path, r.Version)
	}
}

// MarshalText encodes the reference in its "uses" form.
func (r Ref) MarshalText() ([]byte, error) {
	return []byte(r.String()), nil
}

// UnmarshalText parses a "uses" reference; the empty string yields the zero Ref.
func (r *Ref) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*r = Ref{}
		return nil
	}
	parsed, err := ParseRef(string(text))
	if err != nil {
		return err
	}
	*r = parsed
	return nil
}
