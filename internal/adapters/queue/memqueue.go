package queue

import (
	"sync"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// MemQueue is a bounded in-memory FIFO backed by a ring buffer.
type MemQueue struct {
	mu    sync.Mutex
	buf   []ports.QueuedObservation
	head  int
	size  int
	ready chan struct{}
}

func NewMemQueue(capacity int) *MemQueue {
	if capacity < 1 {
		capacity = 1
	}
	return &MemQueue{
		buf:   make([]ports.QueuedObservation, capacity),
		ready: make(chan struct{}, 1),
	}
}

// Enqueue reports false when the queue is full.
func (q *MemQueue) Enqueue(id ports.WALEntryID, o *domain.Observation) bool {
	q.mu.Lock()
	if q.size == len(q.buf) {
		q.mu.Unlock()
		return false
	}
	q.buf[(q.head+q.size)%len(q.buf)] = ports.QueuedObservation{ID: id, Observation: o}
	q.size++
	q.mu.Unlock()

	select {
	case q.ready <- struct{}{}:
	default:
	}
	return true
}

func (q *MemQueue) DequeueBatch(max int) []ports.QueuedObservation {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.size == 0 {
		return nil
	}
	if max <= 0 || max > q.size {
		max = q.size
	}
	out := make([]ports.QueuedObservation, max)
	for i := range out {
		idx := (q.head + i) % len(q.buf)
		out[i] = q.buf[idx]
		q.buf[idx] = ports.QueuedObservation{}
	}
	q.head = (q.head + max) % len(q.buf)
	q.size -= max
	return out
}

func (q *MemQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.size
}

func (q *MemQueue) Cap() int { return len(q.buf) }

func (q *MemQueue) Ready() <-chan struct{} { return q.ready }

var _ ports.ObservationQueue = (*MemQueue)(nil)
