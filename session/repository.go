package session

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a session doesn't exist in the repository.
var ErrNotFound = errors.New("session not found")

// ErrAlreadyExists is returned when registering a session whose id is already resident.
var ErrAlreadyExists = errors.New("session already exists")

// TimeFunc returns the current time. Override for deterministic tests.
type TimeFunc func() time.Time

// Repository is the authoritative in-memory map of live sessions plus a
// secondary client -> session-set index.
//
// The session map and the client index are guarded by separate locks. Neither
// lock is ever held while the other is acquired, and neither is held across
// calls into the engine, executor, or cache layer. Callers get clones from
// Get/List and commit mutations through Update.
type Repository struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	idxMu       sync.Mutex
	clientIndex map[string][]string // clientID -> []sessionID

	now TimeFunc
}

// NewRepository creates an empty session repository.
func NewRepository() *Repository {
	return &Repository{
		sessions:    make(map[string]*Session),
		clientIndex: make(map[string][]string),
		now:         time.Now,
	}
}

// WithTimeFunc sets a custom time function for deterministic tests.
func (r *Repository) WithTimeFunc(fn TimeFunc) *Repository {
	r.now = fn
	return r
}

// Create builds a new session positioned at the workflow root and registers it.
// The returned session is a clone; commit further mutation through Update.
func (r *Repository) Create(clientID, taskDescription, workflowName, rootNodeID string) *Session {
	now := r.now()
	sess := &Session{
		ID:            uuid.NewString(),
		ClientID:      clientID,
		WorkflowName:  workflowName,
		CurrentNodeID: rootNodeID,
		Status:        StatusReady,
		Inputs: map[string]string{
			"task_description": taskDescription,
		},
		NodeHistory:      []string{},
		ExecutionContext: map[string]any{},
		CreatedAt:        now,
		LastUpdated:      now,
	}
	sess.AppendLog(now, "session created for workflow %q", workflowName)

	r.mu.Lock()
	r.sessions[sess.ID] = sess
	r.mu.Unlock()

	r.indexAdd(clientID, sess.ID)

	return sess.Clone()
}

// Get returns a clone of the session with the given id.
func (r *Repository) Get(id string) (*Session, error) {
	r.mu.RLock()
	sess, ok := r.sessions[id]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return sess.Clone(), nil
}

// Update commits a mutated session clone back to the repository,
// last-writer-wins. Returns false if the session id is not resident.
func (r *Repository) Update(sess *Session) bool {
	if sess == nil || sess.ID == "" {
		return false
	}

	stored := sess.Clone()
	stored.LastUpdated = r.now()

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[sess.ID]; !ok {
		return false
	}
	r.sessions[sess.ID] = stored
	return true
}

// Register inserts a fully formed session under its existing id. Used by the
// restoration path; refuses to overwrite a resident session.
func (r *Repository) Register(sess *Session) error {
	if sess == nil || sess.ID == "" {
		return fmt.Errorf("%w: empty id", ErrNotFound)
	}

	stored := sess.Clone()

	r.mu.Lock()
	if _, ok := r.sessions[sess.ID]; ok {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrAlreadyExists, sess.ID)
	}
	r.sessions[sess.ID] = stored
	r.mu.Unlock()

	r.indexAdd(sess.ClientID, sess.ID)
	return nil
}

// Delete removes a session. Returns false if it was not resident.
func (r *Repository) Delete(id string) bool {
	r.mu.Lock()
	sess, ok := r.sessions[id]
	if ok {
		delete(r.sessions, id)
	}
	r.mu.Unlock()

	if !ok {
		return false
	}
	r.indexRemove(sess.ClientID, id)
	return true
}

// ListByClient returns clones of all sessions owned by the client.
func (r *Repository) ListByClient(clientID string) []*Session {
	r.idxMu.Lock()
	ids := make([]string, len(r.clientIndex[clientID]))
	copy(ids, r.clientIndex[clientID])
	r.idxMu.Unlock()

	out := make([]*Session, 0, len(ids))
	r.mu.RLock()
	for _, id := range ids {
		if sess, ok := r.sessions[id]; ok {
			out = append(out, sess.Clone())
		}
	}
	r.mu.RUnlock()
	return out
}

// ActiveForClient returns the client's first non-terminal session, or nil.
func (r *Repository) ActiveForClient(clientID string) *Session {
	for _, sess := range r.ListByClient(clientID) {
		if !sess.IsTerminal() {
			return sess
		}
	}
	return nil
}

// Len returns the number of resident sessions.
func (r *Repository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// ActiveCount returns the number of resident non-terminal sessions.
func (r *Repository) ActiveCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	count := 0
	for _, sess := range r.sessions {
		if !sess.IsTerminal() {
			count++
		}
	}
	return count
}

// indexAdd records a session id under a client in the secondary index.
func (r *Repository) indexAdd(clientID, sessionID string) {
	if clientID == "" {
		return
	}
	r.idxMu.Lock()
	defer r.idxMu.Unlock()

	for _, id := range r.clientIndex[clientID] {
		if id == sessionID {
			return
		}
	}
	r.clientIndex[clientID] = append(r.clientIndex[clientID], sessionID)
}

// indexRemove drops a session id from a client's index entry.
func (r *Repository) indexRemove(clientID, sessionID string) {
	if clientID == "" {
		return
	}
	r.idxMu.Lock()
	defer r.idxMu.Unlock()

	ids := r.clientIndex[clientID]
	filtered := make([]string, 0, len(ids))
	for _, id := range ids {
		if id != sessionID {
			filtered = append(filtered, id)
		}
	}
	if len(filtered) == 0 {
		delete(r.clientIndex, clientID)
	} else {
		r.clientIndex[clientID] = filtered
	}
}
