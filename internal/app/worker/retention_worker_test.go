package worker_test

import (
	"context"
	"testing"
	"time"

	"recruit_exec/internal/app/worker"
	"recruit_exec/internal/domain/model"
	"recruit_exec/internal/domain/repository"
	"recruit_exec/internal/platform/queue"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// seedSuperseded leaves one generation-0 row behind after a resubmission that only covers tc-1.
func seedSuperseded(t *testing.T) *repository.MemoryStore {
	t.Helper()
	ctx := context.Background()
	store := repository.NewMemoryStore()
	store.SetClock(func() time.Time { return time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC) })

	sub := &model.Submission{ID: "sub-1", InterviewID: "iv-1", QuestionID: "q-1", Language: "c", SourceCode: "x"}
	_, err := store.UpsertForDispatch(ctx, sub)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceForGeneration(ctx, "sub-1", 0, []model.TaskCorrelation{
		{TestCaseID: "tc-1", TaskID: "t-1"}, {TestCaseID: "tc-2", TaskID: "t-2"},
	}))
	_, err = store.UpsertForDispatch(ctx, sub)
	require.NoError(t, err)
	require.NoError(t, store.ReplaceForGeneration(ctx, "sub-1", 1, []model.TaskCorrelation{{TestCaseID: "tc-1", TaskID: "t-3"}}))
	return store
}

func newLock(t *testing.T) (*queue.Lock, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return queue.NewLock(rdb, "sweep-lock", time.Minute), rdb
}

func TestSweepDeletesSupersededRows(t *testing.T) {
	store := seedSuperseded(t)
	lock, rdb := newLock(t)
	w := worker.NewRetentionWorker(store, lock, time.Hour, time.Minute, zap.NewNop())

	assert.Equal(t, int64(1), w.Sweep(context.Background()))

	_, err := store.GetByTaskID(context.Background(), "t-2")
	assert.Error(t, err)
	_, err = store.GetByTaskID(context.Background(), "t-3")
	assert.NoError(t, err)

	exists, err := rdb.Exists(context.Background(), "sweep-lock").Result()
	require.NoError(t, err)
	assert.Zero(t, exists, "lock must be released after the sweep")
}

func TestSweepSkipsWhileAnotherInstanceHoldsLock(t *testing.T) {
	store := seedSuperseded(t)
	lock, rdb := newLock(t)
	require.NoError(t, rdb.Set(context.Background(), "sweep-lock", "other-instance", time.Minute).Err())

	w := worker.NewRetentionWorker(store, lock, time.Hour, time.Minute, zap.NewNop())
	assert.Zero(t, w.Sweep(context.Background()))

	_, err := store.GetByTaskID(context.Background(), "t-2")
	assert.NoError(t, err)
}

func TestSweepRespectsRetentionWindow(t *testing.T) {
	store := seedSuperseded(t)
	// rows were written in 2024; a window longer than that keeps them
	w := worker.NewRetentionWorker(store, nil, 100*365*24*time.Hour, time.Minute, zap.NewNop())
	assert.Zero(t, w.Sweep(context.Background()))
}

func TestStartStopsOnCancel(t *testing.T) {
	store := seedSuperseded(t)
	w := worker.NewRetentionWorker(store, nil, time.Hour, time.Hour, zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- w.Start(ctx) }()

	assert.Eventually(t, func() bool {
		_, err := store.GetByTaskID(context.Background(), "t-2")
		return err != nil
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}
