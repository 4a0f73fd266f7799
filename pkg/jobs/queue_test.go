package jobs

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRunsJobs(t *testing.T) {
	var mu sync.Mutex
	var seen []string
	done := make(chan struct{}, 2)

	q := NewQueue("test", func(ctx context.Context, job Job) error {
		mu.Lock()
		seen = append(seen, job.ID)
		mu.Unlock()
		done <- struct{}{}
		return nil
	}, QueueConfig{Workers: 1})
	q.Start(context.Background())
	defer q.Stop()

	_, err := q.Enqueue(Job{ID: "a"})
	require.NoError(t, err)
	_, err = q.Enqueue(Job{ID: "b"})
	require.NoError(t, err)

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatal("job not processed")
		}
	}
	mu.Lock()
	assert.ElementsMatch(t, []string{"a", "b"}, seen)
	mu.Unlock()
}

func TestQueueRetriesUntilLimit(t *testing.T) {
	var calls int32
	finished := make(chan struct{})

	q := NewQueue("retry", func(ctx context.Context, job Job) error {
		if atomic.AddInt32(&calls, 1) == 3 {
			close(finished)
		}
		return errors.New("boom")
	}, QueueConfig{Workers: 1, MaxRetries: 2, RetryDelay: 5 * time.Millisecond})
	q.Start(context.Background())

	_, err := q.Enqueue(Job{ID: "r"})
	require.NoError(t, err)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("retries not attempted")
	}
	time.Sleep(30 * time.Millisecond)
	q.Stop()
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))
}

func TestQueueCoalescesWaitingKeys(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var calls int32

	q := NewQueue("coalesce", func(ctx context.Context, job Job) error {
		atomic.AddInt32(&calls, 1)
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		return nil
	}, QueueConfig{Workers: 1, BufferSize: 4})
	q.Start(context.Background())

	ok, err := q.Enqueue(Job{ID: "1", Key: "run"})
	require.NoError(t, err)
	assert.True(t, ok)
	<-started

	// the first job is running so one more may wait, the third is folded into it
	ok, err = q.Enqueue(Job{ID: "2", Key: "run"})
	require.NoError(t, err)
	assert.True(t, ok)
	ok, err = q.Enqueue(Job{ID: "3", Key: "run"})
	require.NoError(t, err)
	assert.False(t, ok)

	close(release)
	assert.Eventually(t, func() bool { return atomic.LoadInt32(&calls) == 2 }, time.Second, 5*time.Millisecond)
	q.Stop()
}

func TestEnqueueBeforeStart(t *testing.T) {
	q := NewQueue("idle", func(context.Context, Job) error { return nil }, QueueConfig{})
	_, err := q.Enqueue(Job{ID: "x"})
	assert.ErrorIs(t, err, ErrNotStarted)
}
