package cachestore

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AltairaLabs/Waypoint/embedding"
	"github.com/AltairaLabs/Waypoint/session"
)

// brokenStore fails every call, standing in for an unreachable backend.
type brokenStore struct{}

func (brokenStore) Put(context.Context, *Entry) error          { return errors.New("down") }
func (brokenStore) Get(context.Context, string) (*Entry, error) { return nil, errors.New("down") }
func (brokenStore) List(context.Context, string) ([]*Entry, error) {
	return nil, errors.New("down")
}
func (brokenStore) Delete(context.Context, string) error { return errors.New("down") }
func (brokenStore) Ping(context.Context) error           { return errors.New("down") }

func newTestManager(t *testing.T) (*Manager, *MemoryStore) {
	t.Helper()
	store := NewMemoryStore()
	return NewManager(store, embedding.NewHashingProvider()), store
}

func testSession(id, clientID string) *session.Session {
	now := time.Date(2025, 6, 1, 10, 0, 0, 0, time.UTC)
	sess := &session.Session{
		ID:            id,
		ClientID:      clientID,
		WorkflowName:  "deploy",
		CurrentNodeID: "build",
		Status:        session.StatusRunning,
		NodeHistory:   []string{"start"},
		CreatedAt:     now,
		LastUpdated:   now,
	}
	sess.AppendLog(now, "session created for workflow %q", "deploy")
	return sess
}

func TestManager_UpsertGetRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()
	sess := testSession("s1", "c1")

	require.True(t, m.Upsert(ctx, sess))

	got, ok := m.Get(ctx, "s1")
	require.True(t, ok)
	assert.Equal(t, sess.ID, got.ID)
	assert.Equal(t, sess.ClientID, got.ClientID)
	assert.Equal(t, sess.WorkflowName, got.WorkflowName)
	assert.Equal(t, sess.CurrentNodeID, got.CurrentNodeID)
	assert.Equal(t, sess.Status, got.Status)
	assert.Equal(t, sess.NodeHistory, got.NodeHistory)
	require.Len(t, got.Log, 1)
	assert.Equal(t, sess.Log[0].Message, got.Log[0].Message)
}

func TestManager_UpsertWritesSummaryVector(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Upsert(ctx, testSession("s1", "c1")))

	entry, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Len(t, entry.SummaryVector, embedding.NewHashingProvider().Dimensions())
	assert.Equal(t, CacheVersion, entry.CacheVersion)
}

func TestManager_UpsertRejectsBadInput(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	assert.False(t, m.Upsert(ctx, nil))
	assert.False(t, m.Upsert(ctx, &session.Session{}))
}

func TestManager_DegradesWhenStoreDown(t *testing.T) {
	m := NewManager(brokenStore{}, embedding.NewHashingProvider())
	ctx := context.Background()

	assert.False(t, m.IsAvailable(ctx))
	assert.False(t, m.Upsert(ctx, testSession("s1", "c1")))

	_, ok := m.Get(ctx, "s1")
	assert.False(t, ok)

	assert.Empty(t, m.List(ctx, "c1"))
	assert.Empty(t, m.Search(ctx, "c1", "anything", 5))
	assert.Zero(t, m.Stats(ctx).TotalEntries)
}

func TestManager_NilStoreIsSafe(t *testing.T) {
	m := NewManager(nil, embedding.NewHashingProvider())
	ctx := context.Background()

	assert.False(t, m.IsAvailable(ctx))
	assert.False(t, m.Upsert(ctx, testSession("s1", "c1")))
	_, ok := m.Get(ctx, "s1")
	assert.False(t, ok)
	assert.Empty(t, m.List(ctx, "c1"))
}

func TestManager_GetCorruptEntry(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	require.NoError(t, store.Put(ctx, &Entry{
		SessionID:     "bad",
		ClientID:      "c1",
		WorkflowName:  "wf",
		CurrentNodeID: "root",
		Status:        session.StatusRunning,
		Snapshot:      json.RawMessage("not json"),
	}))

	_, ok := m.Get(ctx, "bad")
	assert.False(t, ok)
}

func TestManager_ListSortedByLastUpdated(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	older := testSession("s-old", "c1")
	newer := testSession("s-new", "c1")
	newer.LastUpdated = newer.LastUpdated.Add(time.Hour)

	require.True(t, m.Upsert(ctx, older))
	require.True(t, m.Upsert(ctx, newer))
	require.True(t, m.Upsert(ctx, testSession("other", "c2")))

	summaries := m.List(ctx, "c1")
	require.Len(t, summaries, 2)
	assert.Equal(t, "s-new", summaries[0].SessionID)
	assert.Equal(t, "s-old", summaries[1].SessionID)
	assert.Equal(t, "deploy", summaries[0].WorkflowName)
}

func TestManager_ListSkipsInvalidEntries(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Upsert(ctx, testSession("s1", "c1")))
	// Shell entry, as the Redis store emits for unparseable values.
	require.NoError(t, store.Put(ctx, &Entry{
		SessionID: "shell",
		ClientID:  "c1",
		Snapshot:  json.RawMessage("junk"),
	}))

	assert.Len(t, m.List(ctx, "c1"), 1)
	// ListEntries keeps them so restoration can count the corruption.
	assert.Len(t, m.ListEntries(ctx, "c1"), 2)
}

func TestManager_Stats(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	running := testSession("s1", "c1")
	completed := testSession("s2", "c1")
	completed.Status = session.StatusCompleted
	completed.LastUpdated = completed.LastUpdated.Add(time.Hour)
	failed := testSession("s3", "c2")
	failed.Status = session.StatusError

	for _, sess := range []*session.Session{running, completed, failed} {
		require.True(t, m.Upsert(ctx, sess))
	}

	stats := m.Stats(ctx)
	assert.Equal(t, 3, stats.TotalEntries)
	assert.Equal(t, 1, stats.Active)
	assert.Equal(t, 1, stats.Completed)
	assert.Positive(t, stats.SizeBytes)
	assert.Equal(t, running.CreatedAt, stats.Oldest)
	assert.Equal(t, completed.LastUpdated, stats.Newest)
}

func TestManager_SearchRanksByRelevance(t *testing.T) {
	m, _ := newTestManager(t)
	ctx := context.Background()

	deploy := testSession("s-deploy", "c1")
	deploy.AppendLog(time.Now(), "building the billing service release artifact")

	incident := testSession("s-incident", "c1")
	incident.WorkflowName = "incident"
	incident.CurrentNodeID = "mitigate"
	incident.AppendLog(time.Now(), "paging the on-call about the database outage")

	require.True(t, m.Upsert(ctx, deploy))
	require.True(t, m.Upsert(ctx, incident))

	results := m.Search(ctx, "c1", "database outage mitigate incident", 5)
	require.Len(t, results, 2)
	assert.Equal(t, "s-incident", results[0].Summary.SessionID)
	assert.Greater(t, results[0].Score, results[1].Score)

	t.Run("k truncates", func(t *testing.T) {
		assert.Len(t, m.Search(ctx, "c1", "incident", 1), 1)
	})
	t.Run("empty query", func(t *testing.T) {
		assert.Nil(t, m.Search(ctx, "c1", "", 5))
		assert.Nil(t, m.Search(ctx, "c1", "incident", 0))
	})
}

func TestManager_RegenerateEmbeddings(t *testing.T) {
	m, store := newTestManager(t)
	ctx := context.Background()

	require.True(t, m.Upsert(ctx, testSession("s1", "c1")))

	// Strip the vector to simulate an entry written before embeddings existed.
	entry, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	entry.SummaryVector = nil
	require.NoError(t, store.Put(ctx, entry))

	assert.Equal(t, 1, m.RegenerateEmbeddings(ctx, false))

	entry, err = store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.NotEmpty(t, entry.SummaryVector)

	// Nothing left to do without force; force rewrites everything readable.
	assert.Equal(t, 0, m.RegenerateEmbeddings(ctx, false))
	assert.Equal(t, 1, m.RegenerateEmbeddings(ctx, true))
}

func TestManager_NoEmbedderStillStores(t *testing.T) {
	store := NewMemoryStore()
	m := NewManager(store, nil)
	ctx := context.Background()

	require.True(t, m.Upsert(ctx, testSession("s1", "c1")))

	entry, err := store.Get(ctx, "s1")
	require.NoError(t, err)
	assert.Empty(t, entry.SummaryVector)
	assert.Nil(t, m.Search(ctx, "c1", "anything", 5))
}
