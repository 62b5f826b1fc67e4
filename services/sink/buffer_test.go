// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

func ev(msg string) events.LogEvent {
	return events.LogEvent{Timestamp: time.Now(), Message: msg}
}

func messages(entries []entry) []string {
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.event.Message
	}
	return out
}

func assertInvariant(t *testing.T, b *BatchBuffer) {
	t.Helper()
	s := b.Stats()
	assert.Equal(t, uint64(b.Len()), s.Enqueued-s.Dequeued-s.Dropped)
}

func TestBatchBuffer_FIFO(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(10, types.OverflowDropOldest, 0)

	for i := 0; i < 5; i++ {
		n, err := b.Enqueue(ctx, ev(fmt.Sprint(i)))
		require.NoError(t, err)
		assert.Equal(t, i+1, n)
	}

	assert.Equal(t, []string{"0", "1", "2"}, messages(b.DrainUpTo(3)))
	assert.Equal(t, []string{"3", "4"}, messages(b.DrainUpTo(3)))
	assert.Empty(t, b.DrainUpTo(3))
	assert.Equal(t, BufferStats{Enqueued: 5, Dequeued: 5}, b.Stats())
	assertInvariant(t, b)
}

func TestBatchBuffer_DropOldestKeepsMostRecent(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(4, types.OverflowDropOldest, 0)

	var hooked int
	b.SetDropHook(func(n int) { hooked += n })

	for i := 0; i < 10; i++ {
		n, err := b.Enqueue(ctx, ev(fmt.Sprint(i)))
		require.NoError(t, err)
		assert.LessOrEqual(t, n, 4)
	}

	assert.Equal(t, 4, b.Len())
	assert.Equal(t, uint64(6), b.Stats().Dropped)
	assert.Equal(t, 6, hooked)
	assertInvariant(t, b)
	assert.Equal(t, []string{"6", "7", "8", "9"}, messages(b.DrainUpTo(10)))
}

func TestBatchBuffer_BlockTimesOut(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(1, types.OverflowBlock, 20*time.Millisecond)

	_, err := b.Enqueue(ctx, ev("first"))
	require.NoError(t, err)

	start := time.Now()
	_, err = b.Enqueue(ctx, ev("second"))
	assert.ErrorIs(t, err, types.ErrBufferFull)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)

	s := b.Stats()
	assert.Equal(t, uint64(2), s.Enqueued)
	assert.Equal(t, uint64(1), s.Dropped)
	assertInvariant(t, b)
	assert.Equal(t, []string{"first"}, messages(b.DrainUpTo(1)))
}

func TestBatchBuffer_BlockReleasedByDrain(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(1, types.OverflowBlock, 5*time.Second)

	_, err := b.Enqueue(ctx, ev("first"))
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		_, err := b.Enqueue(ctx, ev("second"))
		return err
	})

	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, []string{"first"}, messages(b.DrainUpTo(1)))
	require.NoError(t, g.Wait())

	assert.Equal(t, []string{"second"}, messages(b.DrainUpTo(1)))
	assertInvariant(t, b)
}

func TestBatchBuffer_BlockReleasedByClose(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(1, types.OverflowBlock, 5*time.Second)

	_, err := b.Enqueue(ctx, ev("first"))
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		_, err := b.Enqueue(ctx, ev("second"))
		return err
	})

	time.Sleep(20 * time.Millisecond)
	b.Close()
	assert.ErrorIs(t, g.Wait(), types.ErrBufferClosed)

	// Pending entries survive Close.
	assert.Equal(t, []string{"first"}, messages(b.DrainUpTo(1)))
	_, err = b.Enqueue(ctx, ev("third"))
	assert.ErrorIs(t, err, types.ErrBufferClosed)
}

func TestBatchBuffer_BlockHonorsContext(t *testing.T) {
	b := NewBatchBuffer(1, types.OverflowBlock, 5*time.Second)
	_, err := b.Enqueue(context.Background(), ev("first"))
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = b.Enqueue(ctx, ev("second"))
	assert.True(t, errors.Is(err, types.ErrBufferFull))
	assert.Equal(t, uint64(1), b.Stats().Dropped)
}

func TestBatchBuffer_RequeueTakesPriority(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(4, types.OverflowDropOldest, 0)

	for _, m := range []string{"a", "b"} {
		_, err := b.Enqueue(ctx, ev(m))
		require.NoError(t, err)
	}
	drained := b.DrainUpTo(2)
	for _, m := range []string{"c", "d"} {
		_, err := b.Enqueue(ctx, ev(m))
		require.NoError(t, err)
	}

	b.Requeue(drained)
	assert.Equal(t, []string{"a", "b", "c", "d"}, messages(b.DrainUpTo(10)))
	assert.Equal(t, uint64(2), b.Stats().Requeued)
	assertInvariant(t, b)
}

func TestBatchBuffer_RequeueDropsOldestWhenFull(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(4, types.OverflowDropOldest, 0)

	var hooked int
	b.SetDropHook(func(n int) { hooked += n })

	for _, m := range []string{"a", "b"} {
		_, err := b.Enqueue(ctx, ev(m))
		require.NoError(t, err)
	}
	drained := b.DrainUpTo(2)
	drained[0].attempts, drained[1].attempts = 1, 1
	for _, m := range []string{"c", "d", "e"} {
		_, err := b.Enqueue(ctx, ev(m))
		require.NoError(t, err)
	}

	b.Requeue(drained)
	assert.Equal(t, 1, hooked)
	assertInvariant(t, b)

	out := b.DrainUpTo(10)
	assert.Equal(t, []string{"b", "c", "d", "e"}, messages(out))
	assert.Equal(t, 1, out[0].attempts)
	assert.Equal(t, 0, out[1].attempts)
}

func TestBatchBuffer_DropAll(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(4, types.OverflowDropOldest, 0)

	hooked := false
	b.SetDropHook(func(int) { hooked = true })

	for i := 0; i < 3; i++ {
		_, err := b.Enqueue(ctx, ev(fmt.Sprint(i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 3, b.DropAll())
	assert.Zero(t, b.Len())
	assert.False(t, hooked)
	assertInvariant(t, b)
}

func TestBatchBuffer_ConcurrentProducers(t *testing.T) {
	ctx := context.Background()
	b := NewBatchBuffer(100, types.OverflowDropOldest, 0)

	producers, perProducer := 8, 1000
	var g errgroup.Group
	for p := 0; p < producers; p++ {
		g.Go(func() error {
			for i := 0; i < perProducer; i++ {
				if _, err := b.Enqueue(ctx, ev(fmt.Sprintf("%d-%d", p, i))); err != nil {
					return err
				}
			}
			return nil
		})
	}

	drained := 0
	stop := make(chan struct{})
	var drainer errgroup.Group
	drainer.Go(func() error {
		for {
			select {
			case <-stop:
				return nil
			default:
				drained += len(b.DrainUpTo(10))
			}
		}
	})

	require.NoError(t, g.Wait())
	close(stop)
	require.NoError(t, drainer.Wait())

	s := b.Stats()
	assert.Equal(t, uint64(producers*perProducer), s.Enqueued)
	assert.Equal(t, uint64(drained), s.Dequeued)
	assert.LessOrEqual(t, b.Len(), 100)
	assertInvariant(t, b)
}
