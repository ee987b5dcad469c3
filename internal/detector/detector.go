package detector

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/coreeng/check-dispatch/internal/event"
	"github.com/coreeng/check-dispatch/internal/workflow"
)

// WorkflowMatch represents a workflow whose trigger configuration matches the
// provided event.
type WorkflowMatch struct {
	Name   string
	Path   string
	Events []string
	Jobs   []string
}

// DetectTriggeredWorkflows scans the repository rooted at repoRoot for GitHub
// workflow files and returns the ones whose trigger rules match ev. Job
// guards are not evaluated; see dispatch.Dispatcher for that.
func DetectTriggeredWorkflows(repoRoot string, ev event.Event) ([]WorkflowMatch, error) {
	if ev.Kind == "" {
		return nil, fmt.Errorf("%w: event name is required", event.ErrMalformedEvent)
	}

	docs, err := LoadWorkflows(repoRoot)
	if err != nil {
		return nil, err
	}

	var matches []WorkflowMatch
	for _, doc := range docs {
		rule, ok := doc.Rule(ev.Kind)
		if !ok || rule.Match(ev) != workflow.MismatchNone {
			continue
		}

		jobs := make([]string, 0, len(doc.Jobs))
		for _, j := range doc.Jobs {
			jobs = append(jobs, j.ID)
		}
		matches = append(matches, WorkflowMatch{
			Name:   doc.Name,
			Path:   doc.Path,
			Events: []string{string(ev.Kind)},
			Jobs:   jobs,
		})
	}

	return matches, nil
}

// LoadWorkflows parses every workflow file under repoRoot/.github/workflows.
// Paths on the returned documents are relative to repoRoot.
func LoadWorkflows(repoRoot string) ([]*workflow.Document, error) {
	defs, err := loadWorkflowDefinitions(repoRoot)
	if err != nil {
		return nil, err
	}

	var docs []*workflow.Document
	var errs []error
	for _, def := range defs {
		doc, err := workflow.Parse(bytes.NewReader(def.Content), def.Path)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		docs = append(docs, doc)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return docs, nil
}

type workflowDefinition struct {
	Path    string
	Content []byte
}

func loadWorkflowDefinitions(repoRoot string) ([]workflowDefinition, error) {
	workflowsDir := filepath.Join(repoRoot, ".github", "workflows")
	if _, err := os.Stat(workflowsDir); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read workflows directory: %w", err)
	}

	var defs []workflowDefinition
	err := filepath.WalkDir(workflowsDir, func(path string, d fs.DirEntry, walkErr error) error {
		if walkErr != nil {
			return walkErr
		}
		if d.IsDir() {
			return nil
		}
		if !workflow.IsWorkflowFile(d.Name()) {
			return nil
		}

		content, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read workflow %s: %w", path, err)
		}
		rel, err := filepath.Rel(repoRoot, path)
		if err != nil {
			return fmt.Errorf("derive relative path for %s: %w", path, err)
		}
		defs = append(defs, workflowDefinition{
			Path:    filepath.ToSlash(rel),
			Content: content,
		})
		return nil
	})
	if err != nil {
		return nil, err
	}

	return defs, nil
}
