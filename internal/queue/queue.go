package queue

import (
	"sync"
)

// DefaultMaxRetries bounds how many times a failing item is re-enqueued.
const DefaultMaxRetries = 3

// Queue is a concurrency-safe FIFO of Items.
type Queue struct {
	mu         sync.Mutex
	items      []Item
	enqueued   int
	maxRetries int
}

// New creates an empty queue. A negative maxRetries is treated as zero.
func New(maxRetries int) *Queue {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &Queue{maxRetries: maxRetries}
}

// NewFromPaths creates a queue pre-loaded with one fresh Item per path, in order.
func NewFromPaths(maxRetries int, paths []string) *Queue {
	q := New(maxRetries)
	q.items = make([]Item, 0, len(paths))
	for _, path := range paths {
		q.items = append(q.items, Item{Path: path})
	}
	q.enqueued = len(paths)
	return q
}

// MaxRetries returns the retry bound for this queue.
func (q *Queue) MaxRetries() int {
	return q.maxRetries
}

// Enqueue appends item to the tail.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	q.items = append(q.items, item)
	q.enqueued++
	q.mu.Unlock()
}

// TryDequeue removes and returns the head item. The boolean is false when the
// queue is currently empty.
func (q *Queue) TryDequeue() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	item := q.items[0]
	q.items[0] = Item{}
	q.items = q.items[1:]
	if len(q.items) == 0 {
		q.items = nil
	}
	return item, true
}

// Retry re-enqueues a copy of item with RetryCount+1 when the retry budget
// allows it and returns that copy with true. When the budget is exhausted the
// item is dropped and false is returned; the caller reports it as a permanent
// failure.
func (q *Queue) Retry(item Item) (Item, bool) {
	if item.RetryCount >= q.maxRetries {
		return item, false
	}
	next := Item{Path: item.Path, RetryCount: item.RetryCount + 1}
	q.Enqueue(next)
	return next, true
}

// Len returns the number of queued items.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Enqueued returns the total number of inserts, retries included.
func (q *Queue) Enqueued() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.enqueued
}
