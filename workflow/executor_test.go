package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/Waypoint/session"
)

// decisionDefinition builds a graph with a two-way decision point.
func decisionDefinition() *Definition {
	return &Definition{
		Name:       "branching",
		Goal:       "choose a path",
		RootNodeID: "triage",
		Nodes: map[string]*Node{
			"triage": {
				Goal:             "decide how to proceed",
				NextAllowedNodes: []string{"opt1", "opt2"},
				Children: map[string]*Node{
					"opt1": {Goal: "repair the defect in the parser"},
					"opt2": {Goal: "document the feature release"},
				},
			},
			"opt1": {Goal: "fix it"},
			"opt2": {Goal: "write it up"},
		},
	}
}

func TestExecutor_ActionNode(t *testing.T) {
	x := NewExecutor()
	def := linearDefinition()
	node := def.Nodes["middle"]

	t.Run("records node in execution context", func(t *testing.T) {
		sess := sessionAt("middle")
		result := x.Execute(node, sess, def, nil)

		assert.True(t, result.Success)
		assert.Equal(t, "middle", sess.ExecutionContext[session.ContextKeyNodeID])
		assert.Equal(t, "do the work", sess.ExecutionContext[session.ContextKeyNodeGoal])
		assert.Empty(t, result.NextNodeSuggestion)
	})

	t.Run("partial evidence records completed criteria only", func(t *testing.T) {
		sess := sessionAt("middle")
		result := x.Execute(node, sess, def, &UserInput{
			Evidence: map[string]string{"a": "did the first thing"},
		})

		assert.True(t, result.Success)
		assert.Equal(t, []string{"a"}, result.Outputs[OutputCompletedCriteria])
		assert.NotContains(t, result.Outputs, OutputGoalAchieved)
		assert.Empty(t, result.NextNodeSuggestion)
	})

	t.Run("full evidence achieves goal and suggests single continuation", func(t *testing.T) {
		sess := sessionAt("middle")
		result := x.Execute(node, sess, def, &UserInput{
			Evidence: map[string]string{"a": "done", "b": "also done"},
		})

		assert.True(t, result.Success)
		assert.Equal(t, []string{"a", "b"}, result.Outputs[OutputCompletedCriteria])
		assert.Equal(t, true, result.Outputs[OutputGoalAchieved])
		assert.Equal(t, "end", result.NextNodeSuggestion)
	})

	t.Run("no suggestion when continuation is ambiguous", func(t *testing.T) {
		multi := &Node{
			Goal:               "pick one",
			AcceptanceCriteria: map[string]string{"a": "thing"},
			NextAllowedNodes:   []string{"x", "y"},
		}
		sess := sessionAt("multi")
		result := x.Execute(multi, sess, def, &UserInput{
			Evidence: map[string]string{"a": "done"},
		})

		assert.True(t, result.Success)
		assert.Equal(t, true, result.Outputs[OutputGoalAchieved])
		assert.Empty(t, result.NextNodeSuggestion)
	})
}

func TestExecutor_DecisionNode(t *testing.T) {
	x := NewExecutor()
	def := decisionDefinition()
	node := def.Nodes["triage"]

	t.Run("explicit choice", func(t *testing.T) {
		sess := sessionAt("triage")
		result := x.Execute(node, sess, def, &UserInput{Choice: "opt2"})

		require.True(t, result.Success)
		assert.Equal(t, "opt2", result.Outputs[OutputDecision])
		assert.Equal(t, DecisionExplicit, result.Outputs[OutputDecisionType])
		assert.Equal(t, "opt2", result.NextNodeSuggestion)
		assert.Equal(t, "opt2", sess.ExecutionContext[session.ContextKeyDecisionPrefix+"triage"])
	})

	t.Run("unknown explicit choice falls through to decision required", func(t *testing.T) {
		sess := sessionAt("triage")
		result := x.Execute(node, sess, def, &UserInput{Choice: "opt9"})

		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "decision required")
	})

	t.Run("heuristic match from recent log", func(t *testing.T) {
		sess := sessionAt("triage")
		sess.AppendLog(time.Now(), "found a defect, needs repair before shipping")
		result := x.Execute(node, sess, def, nil)

		require.True(t, result.Success)
		assert.Equal(t, "opt1", result.Outputs[OutputDecision])
		assert.Equal(t, DecisionHeuristic, result.Outputs[OutputDecisionType])
		assert.Equal(t, "opt1", result.NextNodeSuggestion)
	})

	t.Run("no match yields decision required with all choices", func(t *testing.T) {
		sess := sessionAt("triage")
		result := x.Execute(node, sess, def, nil)

		assert.False(t, result.Success)
		assert.Contains(t, result.Message, "decision required")
		assert.Equal(t, []string{"opt1", "opt2"}, result.Outputs[OutputAvailableChoices])
		// Not an error condition: nothing was recorded in the scratch space.
		assert.NotContains(t, sess.ExecutionContext, session.ContextKeyDecisionPrefix+"triage")
	})
}

func TestExecutor_CheckNodeCompletion(t *testing.T) {
	x := NewExecutor()
	def := linearDefinition()
	node := def.Nodes["middle"]
	sess := sessionAt("middle")

	complete, missing, completed := x.CheckNodeCompletion(node, sess, map[string]string{"b": "done"})
	assert.False(t, complete)
	assert.Equal(t, []string{"a: first thing done"}, missing)
	assert.Equal(t, []string{"b"}, completed)

	// Pure evaluation: the session is untouched.
	assert.Empty(t, sess.ExecutionContext)

	complete, missing, completed = x.CheckNodeCompletion(node, sess, map[string]string{"a": "x", "b": "y"})
	assert.True(t, complete)
	assert.Empty(t, missing)
	assert.Equal(t, []string{"a", "b"}, completed)
}
