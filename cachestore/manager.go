package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/AltairaLabs/Waypoint/embedding"
	"github.com/AltairaLabs/Waypoint/logger"
	"github.com/AltairaLabs/Waypoint/session"
)

// defaultCallTimeout bounds every store round-trip issued by the Manager.
const defaultCallTimeout = 2 * time.Second

// digestLogTail is how many trailing log messages feed the summary digest.
const digestLogTail = 3

// scanner is an optional Store capability for whole-cache iteration.
// Both bundled stores implement it; stats and embedding regeneration
// degrade to zero results when a store doesn't.
type scanner interface {
	ScanAll(ctx context.Context) ([]*Entry, error)
}

// Manager wraps a Store and keeps every cached snapshot paired with a
// semantic-summary vector so similarity search over cached sessions stays
// current without callers supplying vectors.
//
// Store unavailability never surfaces as an error from this type: methods
// return empty/false/zero values and log the fault; IsAvailable is the only
// explicit probe. Every store call is time-bounded.
type Manager struct {
	store    Store
	embedder embedding.Provider
	timeout  time.Duration
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCallTimeout bounds individual store calls. Default is 2 seconds.
func WithCallTimeout(timeout time.Duration) ManagerOption {
	return func(m *Manager) {
		m.timeout = timeout
	}
}

// NewManager creates a cache manager over the given store and embedding
// provider. A nil store yields a permanently unavailable (but safe) manager.
func NewManager(store Store, embedder embedding.Provider, opts ...ManagerOption) *Manager {
	m := &Manager{
		store:    store,
		embedder: embedder,
		timeout:  defaultCallTimeout,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// IsAvailable probes whether the underlying store can be reached.
func (m *Manager) IsAvailable(ctx context.Context) bool {
	if m.store == nil {
		return false
	}
	ctx, cancel := m.bound(ctx)
	defer cancel()
	return m.store.Ping(ctx) == nil
}

// Upsert serializes the session, recomputes its semantic-summary vector from
// the current digest, and writes the entry. Returns false on any fault; the
// caller's in-memory state is unaffected either way.
func (m *Manager) Upsert(ctx context.Context, sess *session.Session) bool {
	if m.store == nil || sess == nil || sess.ID == "" {
		return false
	}

	snapshot, err := json.Marshal(sess)
	if err != nil {
		logger.Warn("cache upsert skipped: snapshot marshal failed",
			"session_id", sess.ID, "error", err)
		return false
	}

	entry := &Entry{
		SessionID:     sess.ID,
		ClientID:      sess.ClientID,
		WorkflowName:  sess.WorkflowName,
		CurrentNodeID: sess.CurrentNodeID,
		Status:        sess.Status,
		CreatedAt:     sess.CreatedAt,
		LastUpdated:   sess.LastUpdated,
		Snapshot:      snapshot,
		SummaryVector: m.embedDigest(ctx, sessionDigest(sess)),
		CacheVersion:  CacheVersion,
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()
	if err := m.store.Put(ctx, entry); err != nil {
		logger.Warn("cache upsert failed", "session_id", sess.ID, "error", err)
		return false
	}
	return true
}

// Get loads and deserializes a cached session. The second return is false
// when the entry is absent, corrupt, or the store is unavailable.
func (m *Manager) Get(ctx context.Context, sessionID string) (*session.Session, bool) {
	if m.store == nil {
		return nil, false
	}

	ctx, cancel := m.bound(ctx)
	defer cancel()

	entry, err := m.store.Get(ctx, sessionID)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			logger.Warn("cache get failed", "session_id", sessionID, "error", err)
		}
		return nil, false
	}

	sess, err := entry.Decode()
	if err != nil {
		logger.Warn("cache entry unreadable", "session_id", sessionID, "error", err)
		return nil, false
	}
	return sess, true
}

// List returns summaries of all cached sessions for a client. Unreadable
// entries are summarized from their metadata when possible and skipped
// otherwise; store faults yield an empty result.
func (m *Manager) List(ctx context.Context, clientID string) []Summary {
	entries := m.listEntries(ctx, clientID)
	summaries := make([]Summary, 0, len(entries))
	for _, entry := range entries {
		if entry.Validate() != nil {
			continue
		}
		summaries = append(summaries, toSummary(entry))
	}
	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].LastUpdated.After(summaries[j].LastUpdated)
	})
	return summaries
}

// ListEntries returns the raw entries for a client, including ones that will
// fail validation. The restoration path needs the invalid ones to count and
// log them.
func (m *Manager) ListEntries(ctx context.Context, clientID string) []*Entry {
	return m.listEntries(ctx, clientID)
}

// listEntries fetches a client's entries, absorbing store faults.
func (m *Manager) listEntries(ctx context.Context, clientID string) []*Entry {
	if m.store == nil {
		return nil
	}
	ctx, cancel := m.bound(ctx)
	defer cancel()

	entries, err := m.store.List(ctx, clientID)
	if err != nil {
		logger.Warn("cache list failed", "client_id", clientID, "error", err)
		return nil
	}
	return entries
}

// Stats aggregates counters over the whole cache.
func (m *Manager) Stats(ctx context.Context) Stats {
	entries := m.scanAll(ctx)

	var stats Stats
	for _, entry := range entries {
		stats.TotalEntries++
		stats.SizeBytes += int64(len(entry.Snapshot))
		switch entry.Status {
		case session.StatusCompleted:
			stats.Completed++
		case session.StatusError:
			// terminal but not completed; counted in total only
		default:
			stats.Active++
		}
		if stats.Oldest.IsZero() || entry.CreatedAt.Before(stats.Oldest) {
			stats.Oldest = entry.CreatedAt
		}
		if entry.LastUpdated.After(stats.Newest) {
			stats.Newest = entry.LastUpdated
		}
	}
	return stats
}

// Search ranks a client's cached sessions by cosine similarity between the
// query embedding and each entry's summary vector, returning the top k.
func (m *Manager) Search(ctx context.Context, clientID, query string, k int) []SearchResult {
	if query == "" || k <= 0 {
		return nil
	}
	queryVec := m.embedDigest(ctx, query)
	if queryVec == nil {
		return nil
	}

	var results []SearchResult
	for _, entry := range m.listEntries(ctx, clientID) {
		if entry.Validate() != nil || len(entry.SummaryVector) == 0 {
			continue
		}
		results = append(results, SearchResult{
			Summary: toSummary(entry),
			Score:   embedding.CosineSimilarity(queryVec, entry.SummaryVector),
		})
	}

	sort.Slice(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})
	if k < len(results) {
		results = results[:k]
	}
	return results
}

// RegenerateEmbeddings recomputes summary vectors for cached entries and
// returns how many were rewritten. Without force, only entries missing a
// vector are touched; with force, every readable entry is.
func (m *Manager) RegenerateEmbeddings(ctx context.Context, force bool) int {
	count := 0
	for _, entry := range m.scanAll(ctx) {
		if !force && len(entry.SummaryVector) > 0 {
			continue
		}
		sess, err := entry.Decode()
		if err != nil {
			logger.Warn("embedding regeneration skipped corrupt entry",
				"session_id", entry.SessionID, "error", err)
			continue
		}
		vec := m.embedDigest(ctx, sessionDigest(sess))
		if vec == nil {
			continue
		}
		entry.SummaryVector = vec

		putCtx, cancel := m.bound(ctx)
		err = m.store.Put(putCtx, entry)
		cancel()
		if err != nil {
			logger.Warn("embedding regeneration write failed",
				"session_id", entry.SessionID, "error", err)
			continue
		}
		count++
	}
	return count
}

// scanAll iterates the whole cache when the store supports it.
func (m *Manager) scanAll(ctx context.Context) []*Entry {
	sc, ok := m.store.(scanner)
	if !ok || m.store == nil {
		return nil
	}
	ctx, cancel := m.bound(ctx)
	defer cancel()

	entries, err := sc.ScanAll(ctx)
	if err != nil {
		logger.Warn("cache scan failed", "error", err)
		return nil
	}
	return entries
}

// embedDigest computes the summary vector for a digest, or nil when no
// embedder is configured or the call fails.
func (m *Manager) embedDigest(ctx context.Context, digest string) []float32 {
	if m.embedder == nil || digest == "" {
		return nil
	}
	resp, err := m.embedder.Embed(ctx, embedding.Request{Texts: []string{digest}})
	if err != nil || len(resp.Embeddings) == 0 {
		if err != nil {
			logger.Warn("summary embedding failed", "provider", m.embedder.ID(), "error", err)
		}
		return nil
	}
	return resp.Embeddings[0]
}

// bound derives a time-limited context for one store round-trip.
func (m *Manager) bound(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, m.timeout)
}

// sessionDigest builds the textual digest the summary vector is computed
// from: workflow name, status, current node, and the recent log tail.
func sessionDigest(sess *session.Session) string {
	parts := []string{
		sess.WorkflowName,
		string(sess.Status),
		sess.CurrentNodeID,
	}
	parts = append(parts, sess.RecentLog(digestLogTail)...)
	return strings.Join(parts, " ")
}

// toSummary projects an entry's metadata into the listing view.
func toSummary(entry *Entry) Summary {
	return Summary{
		SessionID:     entry.SessionID,
		ClientID:      entry.ClientID,
		WorkflowName:  entry.WorkflowName,
		CurrentNodeID: entry.CurrentNodeID,
		Status:        entry.Status,
		CreatedAt:     entry.CreatedAt,
		LastUpdated:   entry.LastUpdated,
	}
}
