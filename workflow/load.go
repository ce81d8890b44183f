package workflow

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"
)

// Document is the top-level structure of a workflow definition file.
type Document struct {
	Name        string      `yaml:"name"`
	Description string      `yaml:"description"`
	Inputs      []InputSpec `yaml:"inputs,omitempty"`
	Workflow    struct {
		Goal string           `yaml:"goal"`
		Root string           `yaml:"root"`
		Tree map[string]*Node `yaml:"tree"`
	} `yaml:"workflow"`
}

// InputSpec declares a named, typed input the workflow expects at start time.
type InputSpec struct {
	Name     string `yaml:"name"`
	Type     string `yaml:"type"`
	Required bool   `yaml:"required"`
}

// LoadDocument parses a workflow definition document and validates it.
// A document failing any check is rejected with a DefinitionError listing one
// message per violation; nothing is partially loaded.
func LoadDocument(data []byte) (*Definition, error) {
	var doc Document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse workflow document: %w", err)
	}
	return doc.Definition()
}

// LoadFile reads and parses a workflow definition file.
func LoadFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read workflow file: %w", err)
	}
	return LoadDocument(data)
}

// Definition validates the document and converts it to an immutable Definition.
func (doc *Document) Definition() (*Definition, error) {
	if problems := doc.validate(); len(problems) > 0 {
		return nil, &DefinitionError{Name: doc.Name, Problems: problems}
	}
	return &Definition{
		Name:       doc.Name,
		Goal:       doc.Workflow.Goal,
		RootNodeID: doc.Workflow.Root,
		Nodes:      doc.Workflow.Tree,
	}, nil
}

// validate accumulates one message per violation rather than failing fast, so
// an author sees every problem in a single pass.
func (doc *Document) validate() []string {
	var problems []string

	if doc.Name == "" {
		problems = append(problems, "name must be non-empty")
	}
	if doc.Description == "" {
		problems = append(problems, "description must be non-empty")
	}
	for i, in := range doc.Inputs {
		if in.Name == "" {
			problems = append(problems, fmt.Sprintf("inputs[%d].name must be non-empty", i))
		}
		if in.Type == "" {
			problems = append(problems, fmt.Sprintf("inputs[%d].type must be non-empty", i))
		}
	}

	tree := doc.Workflow.Tree
	if len(tree) == 0 {
		problems = append(problems, "workflow.tree must be non-empty")
		return problems
	}

	if _, ok := tree[doc.Workflow.Root]; !ok {
		problems = append(problems, fmt.Sprintf(
			"workflow.root %q does not reference a key in tree", doc.Workflow.Root))
	}

	// Deterministic ordering so repeated validation reports identically.
	ids := make([]string, 0, len(tree))
	for id := range tree {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	for _, id := range ids {
		node := tree[id]
		if node == nil {
			problems = append(problems, fmt.Sprintf("workflow.tree[%q] must not be null", id))
			continue
		}
		if node.Goal == "" {
			problems = append(problems, fmt.Sprintf("workflow.tree[%q].goal must be non-empty", id))
		}
		for _, next := range node.NextAllowedNodes {
			if _, ok := tree[next]; !ok {
				problems = append(problems, fmt.Sprintf(
					"workflow.tree[%q].next_allowed_nodes entry %q does not exist in tree", id, next))
			}
		}
		for choice, child := range node.Children {
			if child == nil {
				problems = append(problems, fmt.Sprintf(
					"workflow.tree[%q].children[%q] must not be null", id, choice))
			}
		}
	}

	return problems
}
