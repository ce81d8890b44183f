// Package service exposes the agent-facing operations over the workflow
// core: start, advance, inspect, list cached, restore. It owns the
// boundary-level business rules (session conflicts) that are not
// state-machine transitions, and wires the repository, engine, executor,
// cache manager, and syncer together. Transport is someone else's problem;
// this package is the contract it calls into.
package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/AltairaLabs/Waypoint/cachestore"
	"github.com/AltairaLabs/Waypoint/logger"
	metrics "github.com/AltairaLabs/Waypoint/metrics/prometheus"
	"github.com/AltairaLabs/Waypoint/session"
	"github.com/AltairaLabs/Waypoint/syncer"
	"github.com/AltairaLabs/Waypoint/workflow"
)

// ErrSessionConflict is returned when starting a new session for a client
// that already has an active (non-terminal) one. The caller must explicitly
// continue the existing session or start with Replace.
var ErrSessionConflict = errors.New("client already has an active session")

// Service coordinates the workflow core behind the agent-facing operations.
type Service struct {
	repo     *session.Repository
	registry *workflow.Registry
	engine   *workflow.Engine
	executor *workflow.Executor
	cache    *cachestore.Manager
	sync     *syncer.Syncer
}

// New wires a service from its collaborators.
func New(
	repo *session.Repository,
	registry *workflow.Registry,
	engine *workflow.Engine,
	executor *workflow.Executor,
	cache *cachestore.Manager,
	sync *syncer.Syncer,
) *Service {
	return &Service{
		repo:     repo,
		registry: registry,
		engine:   engine,
		executor: executor,
		cache:    cache,
		sync:     sync,
	}
}

// StartOptions controls session-conflict resolution at start time.
type StartOptions struct {
	// Replace deletes the client's active session before creating a new one.
	// Without it, an active session causes ErrSessionConflict.
	Replace bool
}

// Start creates a new session for the client on the named workflow.
// A malformed definition rejects cleanly before any session exists.
func (s *Service) Start(ctx context.Context, clientID, taskDescription, workflowName string, opts StartOptions) (*session.Session, error) {
	def, err := s.registry.Resolve(workflowName)
	if err != nil {
		return nil, err
	}

	if active := s.repo.ActiveForClient(clientID); active != nil {
		if !opts.Replace {
			return nil, fmt.Errorf("%w: session %s on workflow %q (continue it or start with Replace)",
				ErrSessionConflict, active.ID, active.WorkflowName)
		}
		s.repo.Delete(active.ID)
		logger.InfoContext(ctx, "replaced active session",
			"client_id", clientID, "session_id", active.ID)
	}

	sess := s.repo.Create(clientID, taskDescription, def.Name, def.RootNodeID)
	s.sync.SyncSessionToCache(ctx, sess.ID)
	s.publishActiveCount()

	logger.InfoContext(ctx, "session started",
		"session_id", sess.ID, "client_id", clientID, "workflow", def.Name)
	return sess, nil
}

// AdvanceRequest carries the agent's input for one advance call.
type AdvanceRequest struct {
	// Target is the chosen next node id. May be empty when the current node
	// has a single continuation or a decision resolves one.
	Target string

	// Choice names a decision-node child.
	Choice string

	// Evidence maps criterion ids to text demonstrating satisfaction.
	Evidence map[string]string
}

// AdvanceResult is the structured outcome of an advance call. Exactly one of
// the following holds: the session advanced (Session set, flags false), a
// decision is required (NeedsDecision with Choices), or evidence is missing
// (NeedsEvidence with Missing). The latter two are normal signals, not errors.
type AdvanceResult struct {
	Session       *session.Session `json:"session,omitempty"`
	Completed     bool             `json:"completed"`
	NeedsDecision bool             `json:"needs_decision,omitempty"`
	Choices       []string         `json:"choices,omitempty"`
	NeedsEvidence bool             `json:"needs_evidence,omitempty"`
	Missing       []string         `json:"missing,omitempty"`
	Message       string           `json:"message,omitempty"`
}

// Advance moves a session forward: interprets the current node, enforces its
// acceptance criteria, executes the transition, and persists the result.
// Illegal transitions return an error with the session unchanged.
func (s *Service) Advance(ctx context.Context, sessionID string, req AdvanceRequest) (*AdvanceResult, error) {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, err
	}
	def, err := s.registry.Resolve(sess.WorkflowName)
	if err != nil {
		return nil, err
	}
	node, ok := def.Node(sess.CurrentNodeID)
	if !ok {
		return nil, fmt.Errorf("%w: current node %q not found in workflow %q",
			workflow.ErrNodeNotFound, sess.CurrentNodeID, def.Name)
	}

	input := &workflow.UserInput{Choice: req.Choice, Evidence: req.Evidence}
	exec := s.executor.Execute(node, sess, def, input)

	if node.IsDecision() && !exec.Success {
		metrics.ObserveDecision("required")
		choices, _ := exec.Outputs[workflow.OutputAvailableChoices].([]string)
		return &AdvanceResult{
			NeedsDecision: true,
			Choices:       choices,
			Message:       exec.Message,
		}, nil
	}
	if node.IsDecision() {
		if mode, _ := exec.Outputs[workflow.OutputDecisionType].(string); mode != "" {
			metrics.ObserveDecision(mode)
		}
	}

	// A node with acceptance criteria holds the session until every
	// criterion carries evidence. This is the "not yet done" signal, distinct
	// from an illegal transition.
	if !node.IsDecision() && len(node.AcceptanceCriteria) > 0 {
		complete, missing := s.engine.CheckCompletionCriteria(sess, def, req.Evidence)
		if !complete {
			return &AdvanceResult{
				NeedsEvidence: true,
				Missing:       missing,
				Message:       fmt.Sprintf("node %q has unmet acceptance criteria", sess.CurrentNodeID),
			}, nil
		}
	}

	target := req.Target
	if target == "" {
		target = exec.NextNodeSuggestion
	}
	if target == "" {
		options := s.engine.AvailableTransitions(sess, def)
		ids := make([]string, 0, len(options))
		for _, opt := range options {
			ids = append(ids, opt.ID)
		}
		return &AdvanceResult{
			NeedsDecision: true,
			Choices:       ids,
			Message:       fmt.Sprintf("multiple transitions available from %q, target required", sess.CurrentNodeID),
		}, nil
	}

	if err := s.engine.ExecuteTransition(sess, def, target, exec.Outputs); err != nil {
		metrics.ObserveTransition(def.Name, false)
		return nil, err
	}
	metrics.ObserveTransition(def.Name, true)

	s.applyStatus(sess, def)

	if !s.repo.Update(sess) {
		return nil, fmt.Errorf("%w: %s", session.ErrNotFound, sess.ID)
	}
	s.sync.SyncSessionToCache(ctx, sess.ID)
	s.publishActiveCount()

	logger.Transition(def.Name, sess.NodeHistory[len(sess.NodeHistory)-1], sess.CurrentNodeID,
		"session_id", sess.ID)

	return &AdvanceResult{
		Session:   sess,
		Completed: sess.Status == session.StatusCompleted,
		Message:   exec.Message,
	}, nil
}

// applyStatus derives the post-transition status from the new position.
func (s *Service) applyStatus(sess *session.Session, def *workflow.Definition) {
	if s.engine.IsComplete(sess, def) {
		sess.Status = session.StatusCompleted
		return
	}
	if node, ok := def.Node(sess.CurrentNodeID); ok && node.NeedsApproval {
		sess.Status = session.StatusNeedsApproval
		return
	}
	sess.Status = session.StatusRunning
}

// Inspection is the read-only view of a session's position.
type Inspection struct {
	Session              *session.Session            `json:"session"`
	CurrentGoal          string                      `json:"current_goal"`
	AcceptanceCriteria   map[string]string           `json:"acceptance_criteria,omitempty"`
	AvailableTransitions []workflow.TransitionOption `json:"available_transitions,omitempty"`
	Progress             workflow.Progress           `json:"progress"`
	Complete             bool                        `json:"complete"`
}

// Inspect reports a session's current node, legal transitions, and progress.
func (s *Service) Inspect(ctx context.Context, sessionID string) (*Inspection, error) {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		return nil, err
	}
	def, err := s.registry.Resolve(sess.WorkflowName)
	if err != nil {
		return nil, err
	}

	insp := &Inspection{
		Session:              sess,
		AvailableTransitions: s.engine.AvailableTransitions(sess, def),
		Progress:             s.engine.Progress(sess, def),
		Complete:             s.engine.IsComplete(sess, def),
	}
	if node, ok := def.Node(sess.CurrentNodeID); ok {
		insp.CurrentGoal = node.Goal
		insp.AcceptanceCriteria = node.AcceptanceCriteria
	}
	logger.DebugContext(ctx, "session inspected", "session_id", sessionID)
	return insp, nil
}

// ListCached returns cache summaries for a client.
func (s *Service) ListCached(ctx context.Context, clientID string) []cachestore.Summary {
	return s.cache.List(ctx, clientID)
}

// SearchCached ranks a client's cached sessions against a free-text query.
func (s *Service) SearchCached(ctx context.Context, clientID, query string, k int) []cachestore.SearchResult {
	return s.cache.Search(ctx, clientID, query, k)
}

// Restore rehydrates the repository from the cache for a client and returns
// the count restored.
func (s *Service) Restore(ctx context.Context, clientID string) int {
	restored := s.sync.RestoreSessionsFromCache(ctx, clientID)
	s.publishActiveCount()
	return restored
}

// publishActiveCount refreshes the active-sessions gauge from the repository.
func (s *Service) publishActiveCount() {
	metrics.SetActiveSessions(s.repo.ActiveCount())
}
