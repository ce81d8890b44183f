package session

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedClock(t time.Time) TimeFunc {
	return func() time.Time { return t }
}

func TestRepository_Create(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	repo := NewRepository().WithTimeFunc(fixedClock(now))

	sess := repo.Create("client-1", "fix the flaky test", "ci-repair", "root")

	assert.NotEmpty(t, sess.ID)
	assert.Equal(t, "client-1", sess.ClientID)
	assert.Equal(t, "ci-repair", sess.WorkflowName)
	assert.Equal(t, "root", sess.CurrentNodeID)
	assert.Equal(t, StatusReady, sess.Status)
	assert.Equal(t, "fix the flaky test", sess.Inputs["task_description"])
	assert.Equal(t, now, sess.CreatedAt)
	assert.Equal(t, now, sess.LastUpdated)
	require.Len(t, sess.Log, 1)
	assert.Contains(t, sess.Log[0].Message, `"ci-repair"`)
	assert.Equal(t, 1, repo.Len())
}

func TestRepository_GetReturnsClone(t *testing.T) {
	repo := NewRepository()
	created := repo.Create("c1", "task", "wf", "root")

	got, err := repo.Get(created.ID)
	require.NoError(t, err)

	// Mutations on the returned value never reach the stored session.
	got.CurrentNodeID = "hijacked"
	again, err := repo.Get(created.ID)
	require.NoError(t, err)
	assert.Equal(t, "root", again.CurrentNodeID)
}

func TestRepository_GetNotFound(t *testing.T) {
	_, err := NewRepository().Get("absent")
	require.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "absent")
}

func TestRepository_Update(t *testing.T) {
	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	clock := now
	repo := NewRepository().WithTimeFunc(func() time.Time { return clock })

	sess := repo.Create("c1", "task", "wf", "root")

	clock = now.Add(time.Minute)
	sess.CurrentNodeID = "next"
	sess.Status = StatusRunning
	require.True(t, repo.Update(sess))

	stored, err := repo.Get(sess.ID)
	require.NoError(t, err)
	assert.Equal(t, "next", stored.CurrentNodeID)
	assert.Equal(t, StatusRunning, stored.Status)
	assert.Equal(t, now.Add(time.Minute), stored.LastUpdated)

	t.Run("absent session", func(t *testing.T) {
		assert.False(t, repo.Update(&Session{ID: "ghost"}))
	})
	t.Run("nil and empty id", func(t *testing.T) {
		assert.False(t, repo.Update(nil))
		assert.False(t, repo.Update(&Session{}))
	})
}

func TestRepository_Register(t *testing.T) {
	repo := NewRepository()
	sess := &Session{ID: "restored-1", ClientID: "c1", Status: StatusRunning}

	require.NoError(t, repo.Register(sess))

	got, err := repo.Get("restored-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ClientID)

	// A resident session is never overwritten by restoration.
	err = repo.Register(&Session{ID: "restored-1", ClientID: "other"})
	require.ErrorIs(t, err, ErrAlreadyExists)

	got, err = repo.Get("restored-1")
	require.NoError(t, err)
	assert.Equal(t, "c1", got.ClientID)
}

func TestRepository_Delete(t *testing.T) {
	repo := NewRepository()
	sess := repo.Create("c1", "task", "wf", "root")

	assert.True(t, repo.Delete(sess.ID))
	assert.False(t, repo.Delete(sess.ID))
	assert.Empty(t, repo.ListByClient("c1"))
}

func TestRepository_ListByClient(t *testing.T) {
	repo := NewRepository()
	a := repo.Create("c1", "first", "wf", "root")
	b := repo.Create("c1", "second", "wf", "root")
	repo.Create("c2", "other", "wf", "root")

	sessions := repo.ListByClient("c1")
	require.Len(t, sessions, 2)
	assert.Equal(t, a.ID, sessions[0].ID)
	assert.Equal(t, b.ID, sessions[1].ID)

	assert.Empty(t, repo.ListByClient("unknown"))
}

func TestRepository_ActiveForClient(t *testing.T) {
	repo := NewRepository()

	assert.Nil(t, repo.ActiveForClient("c1"))

	done := repo.Create("c1", "finished", "wf", "root")
	done.Status = StatusCompleted
	require.True(t, repo.Update(done))

	assert.Nil(t, repo.ActiveForClient("c1"))

	live := repo.Create("c1", "in flight", "wf", "root")
	active := repo.ActiveForClient("c1")
	require.NotNil(t, active)
	assert.Equal(t, live.ID, active.ID)
}

func TestRepository_ActiveCount(t *testing.T) {
	repo := NewRepository()
	repo.Create("c1", "a", "wf", "root")
	done := repo.Create("c1", "b", "wf", "root")
	done.Status = StatusError
	require.True(t, repo.Update(done))

	assert.Equal(t, 2, repo.Len())
	assert.Equal(t, 1, repo.ActiveCount())
}

func TestRepository_ConcurrentUpdatesNoLostSessions(t *testing.T) {
	repo := NewRepository()
	const n = 50

	ids := make([]string, n)
	for i := range ids {
		ids[i] = repo.Create("c1", fmt.Sprintf("task %d", i), "wf", "root").ID
	}

	var wg sync.WaitGroup
	for i, id := range ids {
		wg.Add(1)
		go func(i int, id string) {
			defer wg.Done()
			sess, err := repo.Get(id)
			if err != nil {
				t.Error(err)
				return
			}
			sess.CurrentNodeID = fmt.Sprintf("node-%d", i)
			if !repo.Update(sess) {
				t.Errorf("update lost for %s", id)
			}
		}(i, id)
	}
	wg.Wait()

	assert.Equal(t, n, repo.Len())
	assert.Len(t, repo.ListByClient("c1"), n)
	for i, id := range ids {
		sess, err := repo.Get(id)
		require.NoError(t, err)
		assert.Equal(t, fmt.Sprintf("node-%d", i), sess.CurrentNodeID)
	}
}
