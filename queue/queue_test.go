package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alephprint/gsprintd/job"
)

func TestQueueFIFOOrder(t *testing.T) {
	q := New(4)

	j1 := &job.Job{ID: "1"}
	j2 := &job.Job{ID: "2"}
	j3 := &job.Job{ID: "3"}

	require.True(t, q.TryEnqueue(j1))
	require.True(t, q.TryEnqueue(j2))
	require.True(t, q.TryEnqueue(j3))

	ctx := context.Background()
	got1, ok := q.Dequeue(ctx, time.Second)
	require.True(t, ok)
	got2, ok := q.Dequeue(ctx, time.Second)
	require.True(t, ok)
	got3, ok := q.Dequeue(ctx, time.Second)
	require.True(t, ok)

	assert.Equal(t, "1", got1.ID)
	assert.Equal(t, "2", got2.ID)
	assert.Equal(t, "3", got3.ID)
}

func TestQueueOverflowRejectsNonBlocking(t *testing.T) {
	q := New(2)

	require.True(t, q.TryEnqueue(&job.Job{ID: "a"}))
	require.True(t, q.TryEnqueue(&job.Job{ID: "b"}))

	start := time.Now()
	ok := q.TryEnqueue(&job.Job{ID: "c"})
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.Less(t, elapsed, 50*time.Millisecond, "TryEnqueue must never block")
	assert.EqualValues(t, 1, q.Dropped())
}

func TestQueueDequeueTimesOutWithoutAJob(t *testing.T) {
	q := New(1)

	start := time.Now()
	_, ok := q.Dequeue(context.Background(), 50*time.Millisecond)
	elapsed := time.Since(start)

	assert.False(t, ok)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
}

func TestQueueDequeueRespectsContextCancellation(t *testing.T) {
	q := New(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, ok := q.Dequeue(ctx, time.Second)
	assert.False(t, ok)
}

func TestQueueLenAndCapacity(t *testing.T) {
	q := New(3)
	assert.Equal(t, 3, q.Capacity())
	assert.Equal(t, 0, q.Len())

	q.TryEnqueue(&job.Job{ID: "x"})
	assert.Equal(t, 1, q.Len())
}
