package workflow

import (
	"fmt"
	"sort"

	"github.com/AltairaLabs/Waypoint/session"
)

// Output keys written by the executor into ExecutionResult.Outputs.
const (
	// OutputCompletedCriteria lists criterion ids satisfied by the supplied evidence.
	OutputCompletedCriteria = "completed_criteria"

	// OutputGoalAchieved is true when every acceptance criterion is satisfied.
	OutputGoalAchieved = "goal_achieved"

	// OutputDecision is the chosen child id of a decision node.
	OutputDecision = "decision"

	// OutputDecisionType records how the decision was made: "explicit" or "heuristic".
	OutputDecisionType = "decision_type"

	// OutputAvailableChoices lists all child ids when a decision is still required.
	OutputAvailableChoices = "available_choices"
)

// Decision type values for OutputDecisionType.
const (
	DecisionExplicit  = "explicit"
	DecisionHeuristic = "heuristic"
)

// UserInput carries agent-supplied evidence and decision choices into a node
// execution.
type UserInput struct {
	// Choice names a decision node child. Ignored for action nodes.
	Choice string

	// Evidence maps criterion ids to text demonstrating they were satisfied.
	Evidence map[string]string
}

// ExecutionResult is the structured outcome of interpreting one node.
// Success=false with a "decision required" message is not an error condition;
// it signals the caller to ask the external agent to choose.
type ExecutionResult struct {
	Success            bool           `json:"success"`
	Outputs            map[string]any `json:"outputs,omitempty"`
	Message            string         `json:"message,omitempty"`
	NextNodeSuggestion string         `json:"next_node_suggestion,omitempty"`
}

// Executor interprets a single graph node's semantics. Like the engine it is
// stateless; it writes scratch data into the session clone it is handed and
// the caller decides whether to commit.
type Executor struct{}

// NewExecutor creates a node executor.
func NewExecutor() *Executor {
	return &Executor{}
}

// Execute interprets the session's current node. The node argument must be
// the node the session currently sits on; its id is taken from the session.
func (x *Executor) Execute(node *Node, sess *session.Session, def *Definition, input *UserInput) *ExecutionResult {
	if node.IsDecision() {
		return x.executeDecision(node, sess, input)
	}
	return x.executeAction(node, sess, input)
}

// executeAction handles a plain step: record the node in the execution
// context, evaluate any supplied evidence, and suggest the next node when the
// continuation is unambiguous.
func (x *Executor) executeAction(node *Node, sess *session.Session, input *UserInput) *ExecutionResult {
	if sess.ExecutionContext == nil {
		sess.ExecutionContext = make(map[string]any)
	}
	sess.ExecutionContext[session.ContextKeyNodeID] = sess.CurrentNodeID
	sess.ExecutionContext[session.ContextKeyNodeGoal] = node.Goal

	result := &ExecutionResult{
		Success: true,
		Outputs: map[string]any{},
		Message: fmt.Sprintf("executing node %q: %s", sess.CurrentNodeID, node.Goal),
	}

	var evidence map[string]string
	if input != nil {
		evidence = input.Evidence
	}
	if len(evidence) > 0 {
		completed := completedCriteria(node, evidence)
		result.Outputs[OutputCompletedCriteria] = completed

		if allSatisfied(node, evidence) {
			result.Outputs[OutputGoalAchieved] = true
			// Only suggest when the continuation is unambiguous; multiple
			// choices are left to the caller.
			if len(node.NextAllowedNodes) == 1 {
				result.NextNodeSuggestion = node.NextAllowedNodes[0]
			}
		}
	}

	return result
}

// executeDecision handles a multi-choice decision point. An explicit choice
// wins; otherwise a heuristic auto-decision is attempted; otherwise the
// caller is told a decision is required.
func (x *Executor) executeDecision(node *Node, sess *session.Session, input *UserInput) *ExecutionResult {
	if input != nil && input.Choice != "" {
		if _, ok := node.Children[input.Choice]; ok {
			return x.decide(node, sess, input.Choice, DecisionExplicit)
		}
	}

	if choice, ok := AutoDecide(node, sess); ok {
		return x.decide(node, sess, choice, DecisionHeuristic)
	}

	return &ExecutionResult{
		Success: false,
		Message: fmt.Sprintf("decision required at node %q", sess.CurrentNodeID),
		Outputs: map[string]any{
			OutputAvailableChoices: ChoiceIDs(node),
		},
	}
}

// decide records a resolved decision in the session scratch space and builds
// the result pointing at the chosen child.
func (x *Executor) decide(node *Node, sess *session.Session, choice, decisionType string) *ExecutionResult {
	if sess.ExecutionContext == nil {
		sess.ExecutionContext = make(map[string]any)
	}
	sess.ExecutionContext[session.ContextKeyDecisionPrefix+sess.CurrentNodeID] = choice

	return &ExecutionResult{
		Success:            true,
		NextNodeSuggestion: choice,
		Message:            fmt.Sprintf("decision at node %q: %s", sess.CurrentNodeID, choice),
		Outputs: map[string]any{
			OutputDecision:     choice,
			OutputDecisionType: decisionType,
		},
	}
}

// CheckNodeCompletion evaluates a node's criteria without mutating anything.
// It returns whether the node is complete, the missing criteria as
// "{id}: {description}", and the satisfied criterion ids.
func (x *Executor) CheckNodeCompletion(node *Node, _ *session.Session, evidence map[string]string) (bool, []string, []string) {
	complete, missing := evaluateCriteria(node, evidence)
	return complete, missing, completedCriteria(node, evidence)
}

// completedCriteria returns the sorted criterion ids satisfied by the evidence.
func completedCriteria(node *Node, evidence map[string]string) []string {
	completed := make([]string, 0, len(evidence))
	for id := range node.AcceptanceCriteria {
		if evidence[id] != "" {
			completed = append(completed, id)
		}
	}
	sort.Strings(completed)
	return completed
}

// allSatisfied reports whether every acceptance criterion has non-empty evidence.
func allSatisfied(node *Node, evidence map[string]string) bool {
	ok, _ := evaluateCriteria(node, evidence)
	return ok
}

// ChoiceIDs returns a sorted copy of a decision node's child ids.
func ChoiceIDs(node *Node) []string {
	ids := make([]string, 0, len(node.Children))
	for id := range node.Children {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
