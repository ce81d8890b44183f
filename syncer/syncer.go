// Package syncer orchestrates the repository/cache relationship: push on
// change, pull on restart, and corruption-tolerant reconciliation.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/AltairaLabs/Waypoint/cachestore"
	"github.com/AltairaLabs/Waypoint/logger"
	metrics "github.com/AltairaLabs/Waypoint/metrics/prometheus"
	"github.com/AltairaLabs/Waypoint/session"
)

// Result is the outcome of one sync attempt. The spec-level boolean contract
// is Ok(); the finer-grained variants exist so callers and tests can assert
// on the degradation mode directly.
type Result int

// Result values.
const (
	// Synced means the snapshot reached the cache.
	Synced Result = iota

	// SkippedUnavailable means the cache was unreachable and the write was
	// abandoned; the in-memory state is still sound.
	SkippedUnavailable

	// Failed means the in-memory session itself could not be read.
	Failed
)

// String returns the metric/log label for the result.
func (r Result) String() string {
	switch r {
	case Synced:
		return "synced"
	case SkippedUnavailable:
		return "skipped_unavailable"
	default:
		return "failed"
	}
}

// Ok reports whether the in-memory state is sound after the attempt.
// Cache unavailability degrades, it does not fail.
func (r Result) Ok() bool {
	return r != Failed
}

// Syncer keeps the cache trailing the repository. All cache faults are
// absorbed here; only repository faults surface as Failed.
type Syncer struct {
	repo  *session.Repository
	cache *cachestore.Manager

	// enabled mirrors the cache-mode config switch. When false every push is
	// skipped and startup restoration is a no-op.
	enabled bool

	// defaultClientID scopes the one-shot startup restoration.
	defaultClientID string

	restoreOnce  sync.Once
	restoredOnce int
}

// New creates a syncer over the given repository and cache manager.
func New(repo *session.Repository, cache *cachestore.Manager, enabled bool, defaultClientID string) *Syncer {
	return &Syncer{
		repo:            repo,
		cache:           cache,
		enabled:         enabled,
		defaultClientID: defaultClientID,
	}
}

// SyncSessionToCache pushes the current repository snapshot of a session to
// the cache, best-effort. Cache faults are logged and swallowed.
func (s *Syncer) SyncSessionToCache(ctx context.Context, sessionID string) Result {
	result := s.sync(ctx, sessionID)
	metrics.ObserveCacheSync(result.String())
	logger.CacheSync(sessionID, result.String())
	return result
}

// sync does the actual push; split out so the public method can record the
// result uniformly.
func (s *Syncer) sync(ctx context.Context, sessionID string) Result {
	sess, err := s.repo.Get(sessionID)
	if err != nil {
		logger.Warn("cache sync failed: session not in repository",
			"session_id", sessionID, "error", err)
		return Failed
	}

	if !s.enabled {
		return SkippedUnavailable
	}
	if !s.cache.Upsert(ctx, sess) {
		return SkippedUnavailable
	}
	return Synced
}

// RestoreSessionsFromCache rehydrates the repository from all cache entries
// for a client. Entries that fail to deserialize are skipped and logged;
// sessions already resident are left untouched so re-synchronization after a
// partial failure is idempotent. Returns the count actually restored —
// partial restoration is success, not failure.
func (s *Syncer) RestoreSessionsFromCache(ctx context.Context, clientID string) int {
	start := time.Now()
	restored := 0

	for _, entry := range s.cache.ListEntries(ctx, clientID) {
		sess, err := entry.Decode()
		if err != nil {
			metrics.ObserveRestoredSession("corrupt")
			logger.Warn("skipping corrupt cache entry during restoration",
				"session_id", entry.SessionID, "client_id", clientID, "error", err)
			continue
		}

		if err := s.repo.Register(sess); err != nil {
			if errors.Is(err, session.ErrAlreadyExists) {
				metrics.ObserveRestoredSession("duplicate")
				logger.Debug("session already resident, skipping restore",
					"session_id", sess.ID)
				continue
			}
			metrics.ObserveRestoredSession("corrupt")
			logger.Warn("failed to register restored session",
				"session_id", sess.ID, "error", err)
			continue
		}

		metrics.ObserveRestoredSession("restored")
		restored++
	}

	metrics.ObserveRestoreDuration(time.Since(start))
	logger.Info("session restoration finished",
		"client_id", clientID, "restored", restored)
	return restored
}

// AutoRestoreOnStartup performs the process-wide one-shot restoration for the
// configured default client. It must run before any request is served.
// Returns 0 without touching the repository when cache mode is disabled or
// the cache is unavailable; repeated calls return the first result.
func (s *Syncer) AutoRestoreOnStartup(ctx context.Context) int {
	s.restoreOnce.Do(func() {
		if !s.enabled {
			logger.Debug("startup restoration skipped: cache mode disabled")
			return
		}
		if !s.cache.IsAvailable(ctx) {
			logger.Warn("startup restoration skipped: cache unavailable")
			return
		}
		s.restoredOnce = s.RestoreSessionsFromCache(ctx, s.defaultClientID)
	})
	return s.restoredOnce
}
