package meeting

import (
	"sync"
	"time"
)

// QueryKind tags what a query asks of the chat model.
type QueryKind int

const (
	QueryQuestion QueryKind = iota
	QuerySummary
	QueryActionItems
)

func (k QueryKind) String() string {
	switch k {
	case QueryQuestion:
		return "question"
	case QuerySummary:
		return "summary"
	case QueryActionItems:
		return "action_items"
	}
	return "unknown"
}

// Query is one unit of work for the query worker.
type Query struct {
	ID        string
	Kind      QueryKind
	Question  string // QueryQuestion only
	Submitted time.Time
}

// queryQueue is a FIFO shared by any number of producers and the single
// query worker. Pop waits for "interrupted or non-empty".
type queryQueue struct {
	mu       sync.Mutex
	cond     *sync.Cond
	items    []Query
	stopping bool
}

func newQueryQueue() *queryQueue {
	q := &queryQueue{}
	q.cond = sync.NewCond(&q.mu)
	return q
}

// Push enqueues query and returns the new queue length.
func (q *queryQueue) Push(query Query) int {
	q.mu.Lock()
	q.items = append(q.items, query)
	n := len(q.items)
	q.mu.Unlock()
	q.cond.Signal()
	return n
}

// Pop blocks until a query is available or the queue is interrupted. It
// reports false on interruption, even if queries remain queued.
func (q *queryQueue) Pop() (Query, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for !q.stopping && len(q.items) == 0 {
		q.cond.Wait()
	}
	if q.stopping {
		return Query{}, false
	}
	query := q.items[0]
	q.items[0] = Query{}
	q.items = q.items[1:]
	return query, true
}

// Interrupt wakes the worker and makes Pop return false until Resume.
func (q *queryQueue) Interrupt() {
	q.mu.Lock()
	q.stopping = true
	q.mu.Unlock()
	q.cond.Broadcast()
}

// Resume clears a previous Interrupt.
func (q *queryQueue) Resume() {
	q.mu.Lock()
	q.stopping = false
	q.mu.Unlock()
}

// Len returns the number of queued queries.
func (q *queryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Discard drops all queued queries and returns how many there were.
func (q *queryQueue) Discard() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	n := len(q.items)
	q.items = nil
	return n
}
