package workflow

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/Waypoint/session"
)

// linearDefinition builds the start -> middle -> end fixture.
func linearDefinition() *Definition {
	return &Definition{
		Name:       "linear",
		Goal:       "walk a straight line",
		RootNodeID: "start",
		Nodes: map[string]*Node{
			"start": {
				Goal:             "begin the task",
				NextAllowedNodes: []string{"middle"},
			},
			"middle": {
				Goal: "do the work",
				AcceptanceCriteria: map[string]string{
					"a": "first thing done",
					"b": "second thing done",
				},
				NextAllowedNodes: []string{"end"},
			},
			"end": {
				Goal: "finish",
			},
		},
	}
}

func sessionAt(nodeID string) *session.Session {
	return &session.Session{
		ID:               "sess-1",
		ClientID:         "client-1",
		WorkflowName:     "linear",
		CurrentNodeID:    nodeID,
		Status:           session.StatusRunning,
		NodeHistory:      []string{},
		ExecutionContext: map[string]any{},
	}
}

func TestEngine_ValidateTransition(t *testing.T) {
	engine := NewEngine()
	def := linearDefinition()

	t.Run("allowed", func(t *testing.T) {
		err := engine.ValidateTransition(sessionAt("start"), def, "middle")
		assert.NoError(t, err)
	})

	t.Run("current node not found", func(t *testing.T) {
		err := engine.ValidateTransition(sessionAt("ghost"), def, "middle")
		require.ErrorIs(t, err, ErrNodeNotFound)
		assert.Contains(t, err.Error(), `current node "ghost" not found`)
	})

	t.Run("target node not found", func(t *testing.T) {
		err := engine.ValidateTransition(sessionAt("start"), def, "ghost")
		require.ErrorIs(t, err, ErrNodeNotFound)
		assert.Contains(t, err.Error(), `target node "ghost" not found`)
	})

	t.Run("terminal node", func(t *testing.T) {
		err := engine.ValidateTransition(sessionAt("end"), def, "start")
		require.ErrorIs(t, err, ErrTerminalNode)
	})

	t.Run("not allowed lists allowed set", func(t *testing.T) {
		err := engine.ValidateTransition(sessionAt("start"), def, "end")
		require.ErrorIs(t, err, ErrTransitionNotAllowed)
		assert.Contains(t, err.Error(), "not allowed")
		assert.Contains(t, err.Error(), "Allowed: [middle]")
	})
}

func TestEngine_ExecuteTransition(t *testing.T) {
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	engine := NewEngine().WithTimeFunc(func() time.Time { return fixed })
	def := linearDefinition()

	sess := sessionAt("start")
	err := engine.ExecuteTransition(sess, def, "middle", map[string]any{"note": "done"})
	require.NoError(t, err)

	assert.Equal(t, "middle", sess.CurrentNodeID)
	assert.Equal(t, []string{"start"}, sess.NodeHistory)
	assert.Equal(t, "done", sess.ExecutionContext["note"])
	require.Len(t, sess.Log, 1)
	assert.Equal(t, fixed, sess.Log[0].Timestamp)
	assert.Contains(t, sess.Log[0].Message, `"start"`)
	assert.Contains(t, sess.Log[0].Message, `"middle"`)

	// The invariant: current node always resolves after execution.
	_, ok := def.Node(sess.CurrentNodeID)
	assert.True(t, ok)
}

func TestEngine_ExecuteTransitionIdempotentOnFailure(t *testing.T) {
	engine := NewEngine()
	def := linearDefinition()

	sess := sessionAt("start")
	sess.NodeHistory = []string{"origin"}
	sess.ExecutionContext["existing"] = "value"

	err := engine.ExecuteTransition(sess, def, "end", map[string]any{"leak": true})
	require.ErrorIs(t, err, ErrTransitionNotAllowed)

	assert.Equal(t, "start", sess.CurrentNodeID)
	assert.Equal(t, []string{"origin"}, sess.NodeHistory)
	assert.NotContains(t, sess.ExecutionContext, "leak")
	assert.Empty(t, sess.Log)

	_, ok := def.Node(sess.CurrentNodeID)
	assert.True(t, ok)
}

func TestEngine_CheckCompletionCriteria(t *testing.T) {
	engine := NewEngine()
	def := linearDefinition()

	t.Run("no criteria is trivially complete", func(t *testing.T) {
		complete, missing := engine.CheckCompletionCriteria(sessionAt("start"), def, nil)
		assert.True(t, complete)
		assert.Empty(t, missing)
	})

	t.Run("partial evidence reports missing", func(t *testing.T) {
		complete, missing := engine.CheckCompletionCriteria(sessionAt("middle"), def,
			map[string]string{"a": "x"})
		assert.False(t, complete)
		assert.Equal(t, []string{"b: second thing done"}, missing)
	})

	t.Run("full evidence completes", func(t *testing.T) {
		complete, missing := engine.CheckCompletionCriteria(sessionAt("middle"), def,
			map[string]string{"a": "x", "b": "y"})
		assert.True(t, complete)
		assert.Empty(t, missing)
	})

	t.Run("empty evidence string does not satisfy", func(t *testing.T) {
		complete, missing := engine.CheckCompletionCriteria(sessionAt("middle"), def,
			map[string]string{"a": "x", "b": ""})
		assert.False(t, complete)
		assert.Equal(t, []string{"b: second thing done"}, missing)
	})
}

func TestEngine_AvailableTransitions(t *testing.T) {
	engine := NewEngine()
	def := linearDefinition()

	options := engine.AvailableTransitions(sessionAt("middle"), def)
	require.Len(t, options, 1)
	assert.Equal(t, "end", options[0].ID)
	assert.Equal(t, "finish", options[0].Goal)

	// Unresolvable ids are skipped, not errored.
	def.Nodes["middle"].NextAllowedNodes = []string{"end", "ghost"}
	options = engine.AvailableTransitions(sessionAt("middle"), def)
	assert.Len(t, options, 1)

	assert.Nil(t, engine.AvailableTransitions(sessionAt("ghost"), def))
}

func TestEngine_IsComplete(t *testing.T) {
	engine := NewEngine()
	def := linearDefinition()

	assert.False(t, engine.IsComplete(sessionAt("start"), def))
	assert.True(t, engine.IsComplete(sessionAt("end"), def))
	assert.False(t, engine.IsComplete(sessionAt("ghost"), def))
}

func TestEngine_Progress(t *testing.T) {
	engine := NewEngine()
	def := linearDefinition()

	sess := sessionAt("middle")
	sess.NodeHistory = []string{"start", "middle"} // revisits count once

	p := engine.Progress(sess, def)
	assert.Equal(t, "middle", p.Current)
	assert.Equal(t, 3, p.TotalNodes)
	assert.Equal(t, 2, p.Visited)
	assert.InDelta(t, 66.67, p.Percentage, 0.01)
}
