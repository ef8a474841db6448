package session

import (
	"sync"

	"github.com/skillprobe/skillprobe/internal/model"
)

// RetryQueue collects answers whose persistence failed so the caller can
// retry them out of band. Each queue is scoped to one request or batch; there
// is no process-wide instance.
type RetryQueue struct {
	mu      sync.Mutex
	pending []model.AnswerRecord
}

func NewRetryQueue() *RetryQueue {
	return &RetryQueue{}
}

// Add enqueues a failed answer save.
func (q *RetryQueue) Add(rec model.AnswerRecord) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.pending = append(q.pending, rec)
}

// Peek returns a copy of the pending records without clearing them.
func (q *RetryQueue) Peek() []model.AnswerRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	return append([]model.AnswerRecord(nil), q.pending...)
}

// Drain returns the pending records and clears the queue.
func (q *RetryQueue) Drain() []model.AnswerRecord {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := q.pending
	q.pending = nil
	return out
}

// Len reports the number of pending records.
func (q *RetryQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}
