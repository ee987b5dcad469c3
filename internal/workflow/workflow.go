// Package workflow loads trigger configuration documents: GitHub-style
// workflow files whose "on" section declares trigger rules and whose "jobs"
// delegate to reusable workflows with a parameter bag.
package workflow

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/nektos/act/pkg/model"

	"github.com/coreeng/check-dispatch/internal/event"
)

// ErrInvalidDocument is returned for documents that parse but cannot be
// compiled into trigger rules and jobs.
var ErrInvalidDocument = errors.New("invalid workflow document")

//go:embed default.yml
var defaultDocument []byte

// DefaultPath is the repository path the embedded document is reported under.
const DefaultPath = ".github/workflows/rust.yml"

// Document is a compiled trigger configuration. It is immutable once
// returned by Parse.
type Document struct {
	Name  string
	Path  string
	Rules []TriggerRule
	Jobs  []Job
}

// Job is a named unit of work guarded by an optional condition and
// delegated to a reusable workflow.
type Job struct {
	ID   string
	Name string

	// If is the guard expression with any "${{ }}" wrapper removed. An empty
	// guard always passes.
	If string

	Uses Ref
	With Params
}

// DisplayName returns the job's name, falling back to its ID.
func (j Job) DisplayName() string {
	if j.Name != "" {
		return j.Name
	}
	return j.ID
}

// Rule returns the trigger rule for kind.
func (d *Document) Rule(kind event.Kind) (TriggerRule, bool) {
	for _, r := range d.Rules {
		if r.Event == kind {
			return r, true
		}
	}
	return TriggerRule{}, false
}

// Events lists the event kinds the document reacts to, in document order.
func (d *Document) Events() []string {
	out := make([]string, 0, len(d.Rules))
	for _, r := range d.Rules {
		out = append(out, string(r.Event))
	}
	return out
}

// Job returns the job with the given ID.
func (d *Document) Job(id string) (Job, bool) {
	for _, j := range d.Jobs {
		if j.ID == id {
			return j, true
		}
	}
	return Job{}, false
}

// Load reads and compiles the document at path.
func Load(path string) (*Document, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read workflow %s: %w", path, err)
	}
	return Parse(bytes.NewReader(content), filepath.ToSlash(path))
}

var loadDefault = sync.OnceValues(func() (*Document, error) {
	return Parse(bytes.NewReader(defaultDocument), DefaultPath)
})

// Default returns the embedded check workflow.
func Default() (*Document, error) {
	return loadDefault()
}

// DefaultSource returns the raw embedded document.
func DefaultSource() []byte {
	return append([]byte(nil), defaultDocument...)
}

// Parse reads a workflow document from r and compiles its trigger rules and
// jobs. path is recorded on the document for reporting.
func Parse(r io.Reader, path string) (*Document, error) {
	wf, err := model.ReadWorkflow(r, false)
	if err != nil {
		return nil, fmt.Errorf("parse workflow %s: %w", path, err)
	}

	doc := &Document{
		Name: workflowName(wf, filepath.Base(path)),
		Path: path,
	}

	var errs []error
	for _, evt := range wf.On() {
		rule := compileRule(event.Kind(evt), parseEventConfig(wf.OnEvent(evt)))
		if err := rule.validate(); err != nil {
			errs = append(errs, err)
			continue
		}
		doc.Rules = append(doc.Rules, rule)
	}

	ids := make([]string, 0, len(wf.Jobs))
	for id := range wf.Jobs {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		job, err := compileJob(id, wf.Jobs[id])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		doc.Jobs = append(doc.Jobs, job)
	}

	if len(doc.Rules) == 0 && len(errs) == 0 {
		errs = append(errs, fmt.Errorf("%w: no trigger events", ErrInvalidDocument))
	}
	if len(errs) > 0 {
		return nil, fmt.Errorf("compile workflow %s: %w", path, errors.Join(errs...))
	}
	return doc, nil
}

func compileJob(id string, j *model.Job) (Job, error) {
	if j == nil {
		return Job{}, fmt.Errorf("%w: job %q is empty", ErrInvalidDocument, id)
	}

	job := Job{
		ID:   id,
		Name: j.Name,
		If:   StripExpression(j.If.Value),
	}

	if strings.TrimSpace(j.Uses) != "" {
		ref, err := ParseRef(j.Uses)
		if err != nil {
			return Job{}, fmt.Errorf("job %q: %w", id, err)
		}
		job.Uses = ref
	}

	params, err := newParams(j.With)
	if err != nil {
		return Job{}, fmt.Errorf("job %q: %w", id, err)
	}
	job.With = params
	return job, nil
}

// StripExpression removes a surrounding "${{ }}" from a guard expression.
func StripExpression(expr string) string {
	expr = strings.TrimSpace(expr)
	if strings.HasPrefix(expr, "${{") && strings.HasSuffix(expr, "}}") {
		expr = strings.TrimSpace(expr[3 : len(expr)-2])
	}
	return expr
}

func workflowName(wf *model.Workflow, fallback string) string {
	if wf.Name != "" {
		return wf.Name
	}
	return strings.TrimSuffix(strings.TrimSuffix(fallback, ".yml"), ".yaml")
}

// IsWorkflowFile reports whether name has a workflow file extension.
func IsWorkflowFile(name string) bool {
	lower := strings.ToLower(name)
	return strings.HasSuffix(lower, ".yml") || strings.HasSuffix(lower, ".yaml")
}
