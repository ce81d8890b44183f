// Package workflow defines the workflow definition graph and the stateless
// logic that moves sessions through it.
//
// A workflow is a directed tree of named nodes. Each node carries a goal,
// named acceptance criteria, and the set of nodes it may transition to.
// Decision nodes additionally offer named child choices.
package workflow

import "fmt"

// Definition is an immutable workflow graph, loaded once per task and shared
// read-only across sessions.
type Definition struct {
	Name       string           `yaml:"name" json:"name"`
	Goal       string           `yaml:"goal" json:"goal"`
	RootNodeID string           `yaml:"root" json:"root_node_id"`
	Nodes      map[string]*Node `yaml:"tree" json:"nodes"`
}

// Node is a single step in a workflow definition.
// A node with an empty NextAllowedNodes set is terminal.
// A node with Children present is a decision node.
type Node struct {
	Goal               string            `yaml:"goal" json:"goal"`
	AcceptanceCriteria map[string]string `yaml:"acceptance_criteria,omitempty" json:"acceptance_criteria,omitempty"`
	NextAllowedNodes   []string          `yaml:"next_allowed_nodes,omitempty" json:"next_allowed_nodes,omitempty"`
	Children           map[string]*Node  `yaml:"children,omitempty" json:"children,omitempty"`
	NeedsApproval      bool              `yaml:"needs_approval,omitempty" json:"needs_approval,omitempty"`
}

// IsDecision returns true if the node offers named child choices.
func (n *Node) IsDecision() bool {
	return len(n.Children) > 0
}

// IsTerminal returns true if the node has no outgoing transitions.
func (n *Node) IsTerminal() bool {
	return len(n.NextAllowedNodes) == 0
}

// Node resolves a node id within the definition.
func (d *Definition) Node(id string) (*Node, bool) {
	n, ok := d.Nodes[id]
	return n, ok
}

// DefinitionError reports a malformed workflow definition. It carries one
// message per violation; a definition that produces it is never partially
// applied.
type DefinitionError struct {
	Name     string
	Problems []string
}

// Error implements the error interface.
func (e *DefinitionError) Error() string {
	return fmt.Sprintf("invalid workflow definition %q: %d problem(s): %v",
		e.Name, len(e.Problems), e.Problems)
}
