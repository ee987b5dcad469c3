package workflow

import (
	"io"

	"gopkg.in/yaml.v3"
)

type renderedTrigger struct {
	Types          []string `yaml:"types,omitempty"`
	Branches       []string `yaml:"branches,omitempty"`
	BranchesIgnore []string `yaml:"branches-ignore,omitempty"`
	Tags           []string `yaml:"tags,omitempty"`
	TagsIgnore     []string `yaml:"tags-ignore,omitempty"`
	Paths          []string `yaml:"paths,omitempty"`
	PathsIgnore    []string `yaml:"paths-ignore,omitempty"`
}

type renderedJob struct {
	Name string         `yaml:"name,omitempty"`
	If   string         `yaml:"if,omitempty"`
	Uses string         `yaml:"uses,omitempty"`
	With map[string]any `yaml:"with,omitempty"`
}

// Render writes the compiled document back out as a workflow document. The
// output contains only the keys the dispatcher evaluates, so it shows what
// the document means rather than how it was written.
func Render(w io.Writer, d *Document) error {
	on := yaml.Node{Kind: yaml.MappingNode}
	for _, r := range d.Rules {
		var value yaml.Node
		if err := value.Encode(renderedTrigger{
			Types:          r.Actions,
			Branches:       r.Branches.Include,
			BranchesIgnore: r.Branches.Exclude,
			Tags:           r.Tags.Include,
			TagsIgnore:     r.Tags.Exclude,
			Paths:          r.Paths.Include,
			PathsIgnore:    r.Paths.Exclude,
		}); err != nil {
			return err
		}
		on.Content = append(on.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: string(r.Event)},
			&value,
		)
	}

	jobs := yaml.Node{Kind: yaml.MappingNode}
	for _, j := range d.Jobs {
		var value yaml.Node
		if err := value.Encode(renderedJob{
			Name: j.Name,
			If:   j.If,
			Uses: j.Uses.String(),
			With: j.With,
		}); err != nil {
			return err
		}
		jobs.Content = append(jobs.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Value: j.ID},
			&value,
		)
	}

	root := yaml.Node{Kind: yaml.MappingNode}
	root.Content = append(root.Content,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "name"},
		&yaml.Node{Kind: yaml.ScalarNode, Value: d.Name},
		&yaml.Node{Kind: yaml.ScalarNode, Value: "on"},
		&on,
		&yaml.Node{Kind: yaml.ScalarNode, Value: "jobs"},
		&jobs,
	)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&root); err != nil {
		return err
	}
	return enc.Close()
}
