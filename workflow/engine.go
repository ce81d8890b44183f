package workflow

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/AltairaLabs/Waypoint/session"
)

var (
	// ErrNodeNotFound is returned when a session's current node or a
	// transition target is absent from the definition.
	ErrNodeNotFound = errors.New("node not found")

	// ErrTransitionNotAllowed is returned when the target is not in the
	// current node's allowed set.
	ErrTransitionNotAllowed = errors.New("transition not allowed")

	// ErrTerminalNode is returned when attempting to transition out of a node
	// with no outgoing transitions.
	ErrTerminalNode = errors.New("terminal node")
)

// TimeFunc returns the current time. Override for deterministic tests.
type TimeFunc func() time.Time

// Engine validates and executes workflow transitions. It is stateless: every
// method operates on the session and definition it is handed and stores
// nothing itself. Mutations happen on the caller's session clone; committing
// them to the repository is the caller's job.
type Engine struct {
	now TimeFunc
}

// NewEngine creates a workflow engine.
func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// WithTimeFunc sets a custom time function for deterministic tests.
func (e *Engine) WithTimeFunc(fn TimeFunc) *Engine {
	e.now = fn
	return e
}

// TransitionOption summarizes one node reachable from the current position.
type TransitionOption struct {
	ID                 string            `json:"id"`
	Goal               string            `json:"goal"`
	AcceptanceCriteria map[string]string `json:"acceptance_criteria,omitempty"`
}

// Progress describes how far a session has moved through its definition.
type Progress struct {
	Current    string  `json:"current"`
	TotalNodes int     `json:"total_nodes"`
	Visited    int     `json:"visited"`
	Percentage float64 `json:"percentage"`
}

// ValidateTransition checks whether moving the session to target is legal.
// The returned error carries a caller-presentable reason; nil means the move
// is allowed.
func (e *Engine) ValidateTransition(sess *session.Session, def *Definition, target string) error {
	current, ok := def.Node(sess.CurrentNodeID)
	if !ok {
		return fmt.Errorf("%w: current node %q not found in workflow %q",
			ErrNodeNotFound, sess.CurrentNodeID, def.Name)
	}
	if _, ok := def.Node(target); !ok {
		return fmt.Errorf("%w: target node %q not found in workflow %q",
			ErrNodeNotFound, target, def.Name)
	}
	if current.IsTerminal() {
		return fmt.Errorf("%w: %q has no outgoing transitions",
			ErrTerminalNode, sess.CurrentNodeID)
	}
	for _, next := range current.NextAllowedNodes {
		if next == target {
			return nil
		}
	}
	return fmt.Errorf("%w: %q -> %q. Allowed: %v",
		ErrTransitionNotAllowed, sess.CurrentNodeID, target, current.NextAllowedNodes)
}

// ExecuteTransition re-validates and applies a transition to the session:
// outputs are merged into the execution context, the departing node is
// appended to the history, the position moves, and a log entry is recorded.
// On validation failure the session is left completely untouched.
func (e *Engine) ExecuteTransition(sess *session.Session, def *Definition, target string, outputs map[string]any) error {
	if err := e.ValidateTransition(sess, def, target); err != nil {
		return err
	}

	if len(outputs) > 0 {
		if sess.ExecutionContext == nil {
			sess.ExecutionContext = make(map[string]any, len(outputs))
		}
		for k, v := range outputs {
			sess.ExecutionContext[k] = v
		}
	}

	from := sess.CurrentNodeID
	sess.NodeHistory = append(sess.NodeHistory, from)
	sess.CurrentNodeID = target
	sess.AppendLog(e.now(), "transitioned from %q to %q", from, target)
	return nil
}

// CheckCompletionCriteria evaluates the current node's acceptance criteria
// against the supplied evidence. A node with no criteria is trivially
// complete; otherwise every criterion needs a non-empty evidence string.
// Missing criteria are reported as "{id}: {description}".
func (e *Engine) CheckCompletionCriteria(sess *session.Session, def *Definition, evidence map[string]string) (bool, []string) {
	node, ok := def.Node(sess.CurrentNodeID)
	if !ok {
		return false, []string{fmt.Sprintf("current node %q not found", sess.CurrentNodeID)}
	}
	return evaluateCriteria(node, evidence)
}

// evaluateCriteria is the shared criteria check used by the engine and the
// executor. Missing ids are returned sorted for stable output.
func evaluateCriteria(node *Node, evidence map[string]string) (bool, []string) {
	if len(node.AcceptanceCriteria) == 0 {
		return true, nil
	}

	var missing []string
	for id, desc := range node.AcceptanceCriteria {
		if evidence[id] == "" {
			missing = append(missing, fmt.Sprintf("%s: %s", id, desc))
		}
	}
	sort.Strings(missing)
	return len(missing) == 0, missing
}

// AvailableTransitions expands the current node's allowed set into node
// summaries, skipping ids that fail to resolve.
func (e *Engine) AvailableTransitions(sess *session.Session, def *Definition) []TransitionOption {
	current, ok := def.Node(sess.CurrentNodeID)
	if !ok {
		return nil
	}
	options := make([]TransitionOption, 0, len(current.NextAllowedNodes))
	for _, id := range current.NextAllowedNodes {
		node, ok := def.Node(id)
		if !ok {
			continue
		}
		options = append(options, TransitionOption{
			ID:                 id,
			Goal:               node.Goal,
			AcceptanceCriteria: node.AcceptanceCriteria,
		})
	}
	return options
}

// IsComplete returns true iff the session sits on a resolvable terminal node.
func (e *Engine) IsComplete(sess *session.Session, def *Definition) bool {
	node, ok := def.Node(sess.CurrentNodeID)
	if !ok {
		return false
	}
	return node.IsTerminal()
}

// Progress reports distinct visited nodes (history plus current position)
// against the definition's total.
func (e *Engine) Progress(sess *session.Session, def *Definition) Progress {
	visited := make(map[string]struct{}, len(sess.NodeHistory)+1)
	for _, id := range sess.NodeHistory {
		visited[id] = struct{}{}
	}
	visited[sess.CurrentNodeID] = struct{}{}

	total := len(def.Nodes)
	p := Progress{
		Current:    sess.CurrentNodeID,
		TotalNodes: total,
		Visited:    len(visited),
	}
	if total > 0 {
		p.Percentage = float64(len(visited)) / float64(total) * 100
	}
	return p
}
