// Package cachestore provides durable, searchable persistence for session
// snapshots, plus the degrading Manager the rest of the system talks to.
package cachestore

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/AltairaLabs/Waypoint/session"
)

// CacheVersion is the current entry layout version, written on every upsert.
const CacheVersion = 1

// ErrNotFound is returned when a cache entry doesn't exist in the store.
var ErrNotFound = errors.New("cache entry not found")

// ErrInvalidID is returned when an invalid session ID is provided.
var ErrInvalidID = errors.New("invalid session ID")

// ErrInvalidEntry is returned when an entry is missing required metadata.
// Entries failing this check are treated as corrupted and skipped during
// restoration, never as fatal.
var ErrInvalidEntry = errors.New("invalid cache entry")

// ErrCorruptEntry is returned when an entry's snapshot cannot be deserialized.
var ErrCorruptEntry = errors.New("corrupt cache entry")

// Entry is the durable, searchable serialized copy of a session.
// SessionID is the natural key; writes are upserts, last-writer-wins by
// LastUpdated.
type Entry struct {
	SessionID     string          `json:"session_id"`
	ClientID      string          `json:"client_id"`
	WorkflowName  string          `json:"workflow_name"`
	CurrentNodeID string          `json:"current_node_id"`
	Status        session.Status  `json:"status"`
	CreatedAt     time.Time       `json:"created_at"`
	LastUpdated   time.Time       `json:"last_updated"`
	Snapshot      json.RawMessage `json:"snapshot"`
	SummaryVector []float32       `json:"summary_vector,omitempty"`
	CacheVersion  int             `json:"cache_version"`
}

// Validate checks the entry's required metadata fields.
func (e *Entry) Validate() error {
	switch {
	case e.SessionID == "":
		return fmt.Errorf("%w: missing session_id", ErrInvalidEntry)
	case e.ClientID == "":
		return fmt.Errorf("%w: missing client_id", ErrInvalidEntry)
	case e.WorkflowName == "":
		return fmt.Errorf("%w: missing workflow_name", ErrInvalidEntry)
	case e.CurrentNodeID == "":
		return fmt.Errorf("%w: missing current_node_id", ErrInvalidEntry)
	case e.Status == "":
		return fmt.Errorf("%w: missing status", ErrInvalidEntry)
	case len(e.Snapshot) == 0:
		return fmt.Errorf("%w: missing snapshot", ErrInvalidEntry)
	}
	return nil
}

// Decode deserializes the entry's snapshot back into a session.
func (e *Entry) Decode() (*session.Session, error) {
	if err := e.Validate(); err != nil {
		return nil, err
	}
	var sess session.Session
	if err := json.Unmarshal(e.Snapshot, &sess); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if sess.ID == "" {
		return nil, fmt.Errorf("%w: snapshot missing session_id", ErrCorruptEntry)
	}
	return &sess, nil
}

// Summary is the listing view of a cached session.
type Summary struct {
	SessionID     string         `json:"session_id"`
	ClientID      string         `json:"client_id"`
	WorkflowName  string         `json:"workflow_name"`
	CurrentNodeID string         `json:"current_node_id"`
	Status        session.Status `json:"status"`
	CreatedAt     time.Time      `json:"created_at"`
	LastUpdated   time.Time      `json:"last_updated"`
}

// Stats aggregates cache-wide counters.
type Stats struct {
	TotalEntries int       `json:"total_entries"`
	Active       int       `json:"active"`
	Completed    int       `json:"completed"`
	SizeBytes    int64     `json:"size_bytes"`
	Oldest       time.Time `json:"oldest,omitzero"`
	Newest       time.Time `json:"newest,omitzero"`
}

// SearchResult is one hit from a semantic search over cached sessions.
type SearchResult struct {
	Summary Summary `json:"summary"`
	Score   float64 `json:"score"`
}
