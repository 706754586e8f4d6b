package audiocapture

import (
	"context"
	"sync"
)

// Queue is a bounded FIFO of chunks for consumers that pull audio instead of
// handling it on the capture goroutine. When full, Push drops the oldest chunk.
type Queue struct {
	mu      sync.Mutex
	items   []Chunk
	max     int
	dropped uint64
	notify  chan struct{}
}

// NewQueue returns a queue holding at most max chunks. max <= 0 means 100.
func NewQueue(max int) *Queue {
	if max <= 0 {
		max = 100
	}
	return &Queue{
		max:    max,
		notify: make(chan struct{}, 1),
	}
}

// Push appends c. It never blocks and is usable as a Handler.
func (q *Queue) Push(c Chunk) {
	q.mu.Lock()
	if len(q.items) >= q.max {
		q.items[0] = Chunk{}
		q.items = q.items[1:]
		q.dropped++
	}
	q.items = append(q.items, c)
	q.mu.Unlock()

	select {
	case q.notify <- struct{}{}:
	default:
	}
}

// TryPop removes the oldest chunk if one is queued.
func (q *Queue) TryPop() (Chunk, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Chunk{}, false
	}
	c := q.items[0]
	q.items[0] = Chunk{}
	q.items = q.items[1:]
	return c, true
}

// Pop removes the oldest chunk, waiting until one arrives or ctx is done.
func (q *Queue) Pop(ctx context.Context) (Chunk, error) {
	for {
		if c, ok := q.TryPop(); ok {
			return c, nil
		}
		select {
		case <-ctx.Done():
			return Chunk{}, ctx.Err()
		case <-q.notify:
		}
	}
}

// Len returns the number of queued chunks.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Dropped returns how many chunks were discarded because the queue was full.
func (q *Queue) Dropped() uint64 {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.dropped
}
