// Copyright 2026 The Cockroach Authors.
//
// Use of this software is governed by the CockroachDB Software License
// included in the /LICENSE file.

package sink

import (
	"context"
	"sync"
	"time"

	"github.com/Xorcist77/sqlsink/models/events"
	"github.com/Xorcist77/sqlsink/services/sink/types"
	"github.com/cockroachdb/errors"
)

// entry is a pending event and the number of failed writes it went through.
type entry struct {
	event    events.LogEvent
	attempts int
}

// BufferStats are the cumulative counters of a buffer.
// Enqueued - Dequeued - Dropped always equals the buffer length; requeued
// entries count as enqueued again.
type BufferStats struct {
	Enqueued uint64
	Dequeued uint64
	Dropped  uint64
	Requeued uint64
}

// BatchBuffer is a bounded FIFO of pending events shared by producers and
// the flush goroutine.
type BatchBuffer struct {
	lock sync.Mutex

	ring []entry
	head int
	size int

	policy       types.OverflowPolicy
	blockTimeout time.Duration

	// space is closed, then replaced, every time room is made in the ring.
	space  chan struct{}
	closed bool
	stats  BufferStats

	onDrop func(int)
}

// NewBatchBuffer creates a buffer holding at most capacity events.
func NewBatchBuffer(
	capacity int, policy types.OverflowPolicy, blockTimeout time.Duration,
) *BatchBuffer {
	if capacity < 1 {
		capacity = 1
	}
	return &BatchBuffer{
		ring:         make([]entry, capacity),
		policy:       policy,
		blockTimeout: blockTimeout,
		space:        make(chan struct{}),
	}
}

// SetDropHook registers fn to be called, outside the buffer lock, with the
// number of entries dropped by each operation. It must be set before the
// buffer is shared.
func (b *BatchBuffer) SetDropHook(fn func(int)) {
	b.onDrop = fn
}

// Capacity returns the maximum number of pending events.
func (b *BatchBuffer) Capacity() int {
	return len(b.ring)
}

// Len returns the number of pending events.
func (b *BatchBuffer) Len() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.size
}

// Stats returns a snapshot of the buffer counters.
func (b *BatchBuffer) Stats() BufferStats {
	b.lock.Lock()
	defer b.lock.Unlock()
	return b.stats
}

// Enqueue appends e to the buffer and returns the new length.
//
// When the buffer is full, OverflowDropOldest evicts the head and never
// blocks. OverflowBlock waits for room up to the block timeout or until ctx
// is done; the event is then rejected with ErrBufferFull and counted as
// dropped.
func (b *BatchBuffer) Enqueue(ctx context.Context, e events.LogEvent) (int, error) {
	var timer *time.Timer
	expired := false
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	b.lock.Lock()
	for {
		if b.closed {
			b.lock.Unlock()
			return 0, types.ErrBufferClosed
		}
		if b.size < len(b.ring) {
			b.pushBackLocked(entry{event: e})
			b.stats.Enqueued++
			n := b.size
			b.lock.Unlock()
			return n, nil
		}

		if b.policy != types.OverflowBlock {
			b.popFrontLocked()
			b.stats.Dropped++
			b.pushBackLocked(entry{event: e})
			b.stats.Enqueued++
			n := b.size
			b.lock.Unlock()
			b.dropped(1)
			return n, nil
		}

		if b.blockTimeout <= 0 || expired {
			return b.rejectLocked()
		}
		if timer == nil {
			timer = time.NewTimer(b.blockTimeout)
		}
		space := b.space
		b.lock.Unlock()

		select {
		case <-space:
			b.lock.Lock()
		case <-timer.C:
			// Room may have been made right at the deadline.
			b.lock.Lock()
			expired = true
		case <-ctx.Done():
			b.lock.Lock()
			n, err := b.rejectLocked()
			return n, errors.CombineErrors(err, ctx.Err())
		}
	}
}

// rejectLocked counts a rejected event and unlocks the buffer.
func (b *BatchBuffer) rejectLocked() (int, error) {
	b.stats.Enqueued++
	b.stats.Dropped++
	n := b.size
	b.lock.Unlock()
	b.dropped(1)
	return n, types.ErrBufferFull
}

// DrainUpTo removes and returns up to n entries in arrival order.
func (b *BatchBuffer) DrainUpTo(n int) []entry {
	b.lock.Lock()
	defer b.lock.Unlock()

	if n > b.size {
		n = b.size
	}
	if n <= 0 {
		return nil
	}
	out := make([]entry, n)
	for i := range out {
		out[i] = b.popFrontLocked()
	}
	b.stats.Dequeued += uint64(n)
	b.signalSpaceLocked()
	return out
}

// Requeue puts entries back at the head of the buffer, keeping their order,
// so that they are written before anything enqueued after them. It never
// blocks: entries that do not fit are dropped, oldest first.
func (b *BatchBuffer) Requeue(entries []entry) {
	if len(entries) == 0 {
		return
	}

	b.lock.Lock()
	room := len(b.ring) - b.size
	drop := 0
	if len(entries) > room {
		drop = len(entries) - room
	}
	for i := len(entries) - 1; i >= drop; i-- {
		b.pushFrontLocked(entries[i])
	}
	b.stats.Enqueued += uint64(len(entries))
	b.stats.Requeued += uint64(len(entries))
	b.stats.Dropped += uint64(drop)
	b.lock.Unlock()

	b.dropped(drop)
}

// DropAll empties the buffer and returns the number of dropped entries. The
// drop hook is not called, the caller accounts for them.
func (b *BatchBuffer) DropAll() int {
	b.lock.Lock()
	defer b.lock.Unlock()
	n := b.size
	for b.size > 0 {
		b.popFrontLocked()
	}
	b.stats.Dropped += uint64(n)
	b.signalSpaceLocked()
	return n
}

// Close rejects further enqueues and releases blocked producers with
// ErrBufferClosed. Pending entries can still be drained.
func (b *BatchBuffer) Close() {
	b.lock.Lock()
	defer b.lock.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.space)
}

func (b *BatchBuffer) dropped(n int) {
	if n > 0 && b.onDrop != nil {
		b.onDrop(n)
	}
}

func (b *BatchBuffer) signalSpaceLocked() {
	if b.closed {
		return
	}
	close(b.space)
	b.space = make(chan struct{})
}

func (b *BatchBuffer) pushBackLocked(e entry) {
	b.ring[(b.head+b.size)%len(b.ring)] = e
	b.size++
}

func (b *BatchBuffer) pushFrontLocked(e entry) {
	b.head = (b.head - 1 + len(b.ring)) % len(b.ring)
	b.ring[b.head] = e
	b.size++
}

func (b *BatchBuffer) popFrontLocked() entry {
	e := b.ring[b.head]
	b.ring[b.head] = entry{}
	b.head = (b.head + 1) % len(b.ring)
	b.size--
	return e
}
