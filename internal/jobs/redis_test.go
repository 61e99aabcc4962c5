package jobs

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMiniRedisStore(t *testing.T) (*RedisStore, *redis.Client, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rc := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = rc.Close() })
	return NewRedisStore(rc, WithTTL(time.Minute)), rc, mr
}

func TestRedisStore_InProcess(t *testing.T) {
	s, _, mr := newMiniRedisStore(t)
	testStore(t, s)

	assert.Equal(t, time.Minute, mr.TTL("crm:enrich:job:owner-d"))
}

func TestRedisStore_KeysExpire(t *testing.T) {
	s, _, mr := newMiniRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, &Job{OwnerID: "owner-1", RunID: "run-1", Status: StatusDone}))

	mr.FastForward(2 * time.Minute)

	got, err := s.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestRedisStore_UpdateRetriesWhenKeyChanges(t *testing.T) {
	s, rc, _ := newMiniRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, &Job{OwnerID: "owner-1", RunID: "run-1", Status: StatusRunning}))

	var calls atomic.Int32
	job, err := s.Update(ctx, "owner-1", func(cur *Job) (*Job, error) {
		if calls.Add(1) == 1 {
			// Another writer lands between WATCH and EXEC.
			other := &Job{OwnerID: "owner-1", RunID: "run-1", Status: StatusRunning, Progress: Progress{Total: 5, Enriched: 2}}
			require.NoError(t, NewRedisStore(rc).Set(ctx, other))
		}
		cur.Progress.Enriched++
		return cur, nil
	})
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, 3, job.Progress.Enriched)

	got, err := s.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, 3, got.Progress.Enriched)
	assert.Equal(t, 5, got.Progress.Total)
}

func TestRedisStore_UpdateGivesUpWithConflict(t *testing.T) {
	s, rc, _ := newMiniRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, &Job{OwnerID: "owner-1", RunID: "run-1", Status: StatusRunning}))

	var calls atomic.Int32
	_, err := s.Update(ctx, "owner-1", func(cur *Job) (*Job, error) {
		calls.Add(1)
		require.NoError(t, rc.Set(ctx, "crm:enrich:job:owner-1", `{"owner_id":"owner-1","run_id":"run-2","status":"running"}`, 0).Err())
		return cur, nil
	})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConflict))
	assert.Equal(t, int32(maxUpdateAttempts), calls.Load())
}

func TestRedisStore_UpdateFuncErrorLeavesValue(t *testing.T) {
	s, _, _ := newMiniRedisStore(t)
	ctx := context.Background()
	require.NoError(t, s.Set(ctx, &Job{OwnerID: "owner-1", RunID: "run-1", Status: StatusRunning}))

	boom := errors.New("boom")
	_, err := s.Update(ctx, "owner-1", func(cur *Job) (*Job, error) {
		cur.Status = StatusError
		return nil, boom
	})
	require.ErrorIs(t, err, boom)

	got, err := s.Get(ctx, "owner-1")
	require.NoError(t, err)
	assert.Equal(t, StatusRunning, got.Status)
}
