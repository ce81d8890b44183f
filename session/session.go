// Package session defines the workflow session entity and the authoritative
// in-memory repository of live sessions.
//
// A Session is one in-progress (or finished) traversal of a workflow
// definition for one client. The Repository is the single writer of record;
// the cache layer only ever holds copies.
package session

import (
	"fmt"
	"maps"
	"time"
)

// Status is the lifecycle state of a session.
type Status string

// Status values.
const (
	StatusReady         Status = "READY"
	StatusRunning       Status = "RUNNING"
	StatusNeedsApproval Status = "NEEDS_APPROVAL"
	StatusCompleted     Status = "COMPLETED"
	StatusError         Status = "ERROR"
)

// Execution context key namespaces. The executor stashes per-run data under
// these keys; anything else in the scratch map is caller-defined.
const (
	// ContextKeyNodeID holds the id of the node most recently executed.
	ContextKeyNodeID = "node.id"

	// ContextKeyNodeGoal holds the goal text of the node most recently executed.
	ContextKeyNodeGoal = "node.goal"

	// ContextKeyDecisionPrefix prefixes recorded decision outcomes, one per
	// decision node: "decision.<nodeID>" -> chosen child id.
	ContextKeyDecisionPrefix = "decision."
)

// LogEntry is a single timestamped line in a session's append-only log.
type LogEntry struct {
	Timestamp time.Time `json:"timestamp"`
	Message   string    `json:"message"`
}

// Session holds the runtime state of one workflow traversal.
// Mutation must go through Repository.Update; objects returned by the
// repository are clones, never live references.
type Session struct {
	ID               string            `json:"session_id"`
	ClientID         string            `json:"client_id"`
	WorkflowName     string            `json:"workflow_name"`
	CurrentNodeID    string            `json:"current_node_id"`
	Status           Status            `json:"status"`
	Inputs           map[string]string `json:"inputs,omitempty"`
	NodeHistory      []string          `json:"node_history"`
	ExecutionContext map[string]any    `json:"execution_context,omitempty"`
	Log              []LogEntry        `json:"log"`
	CreatedAt        time.Time         `json:"created_at"`
	LastUpdated      time.Time         `json:"last_updated"`
}

// IsTerminal returns true if the session has reached a final status.
func (s *Session) IsTerminal() bool {
	return s.Status == StatusCompleted || s.Status == StatusError
}

// AppendLog appends a timestamped entry to the session log.
func (s *Session) AppendLog(ts time.Time, format string, args ...any) {
	s.Log = append(s.Log, LogEntry{
		Timestamp: ts,
		Message:   fmt.Sprintf(format, args...),
	})
}

// RecentLog returns up to n of the most recent log messages, oldest first.
func (s *Session) RecentLog(n int) []string {
	if n <= 0 || len(s.Log) == 0 {
		return nil
	}
	start := len(s.Log) - n
	if start < 0 {
		start = 0
	}
	out := make([]string, 0, len(s.Log)-start)
	for _, e := range s.Log[start:] {
		out = append(out, e.Message)
	}
	return out
}

// Clone returns a deep copy of the session.
func (s *Session) Clone() *Session {
	c := &Session{
		ID:            s.ID,
		ClientID:      s.ClientID,
		WorkflowName:  s.WorkflowName,
		CurrentNodeID: s.CurrentNodeID,
		Status:        s.Status,
		CreatedAt:     s.CreatedAt,
		LastUpdated:   s.LastUpdated,
	}
	if s.Inputs != nil {
		c.Inputs = make(map[string]string, len(s.Inputs))
		maps.Copy(c.Inputs, s.Inputs)
	}
	if s.NodeHistory != nil {
		c.NodeHistory = make([]string, len(s.NodeHistory))
		copy(c.NodeHistory, s.NodeHistory)
	}
	if s.ExecutionContext != nil {
		c.ExecutionContext = make(map[string]any, len(s.ExecutionContext))
		maps.Copy(c.ExecutionContext, s.ExecutionContext)
	}
	if s.Log != nil {
		c.Log = make([]LogEntry, len(s.Log))
		copy(c.Log, s.Log)
	}
	return c
}
