package channel

import "github.com/ghalamif/SensorHub/internal/domain"

// history is a fixed-capacity ring of records ordered by arrival. When full,
// push evicts the oldest entry. It is not safe for concurrent use; Channel
// guards it with its mutex.
type history struct {
	items []domain.Record
	head  int // next write position
	size  int
}

func newHistory(capacity int) *history {
	if capacity <= 0 {
		return nil
	}
	return &history{items: make([]domain.Record, capacity)}
}

func (h *history) capacity() int { return len(h.items) }

func (h *history) len() int {
	if h == nil {
		return 0
	}
	return h.size
}

// push appends rec and reports whether the oldest record was evicted to make room.
func (h *history) push(rec domain.Record) bool {
	evicted := h.size == len(h.items)
	h.items[h.head] = rec
	h.head = (h.head + 1) % len(h.items)
	if !evicted {
		h.size++
	}
	return evicted
}

// newest returns up to n most recent records, oldest first.
func (h *history) newest(n int) []domain.Record {
	if h == nil || n <= 0 || h.size == 0 {
		return nil
	}
	if n > h.size {
		n = h.size
	}
	out := make([]domain.Record, n)
	start := h.head - n
	if start < 0 {
		start += len(h.items)
	}
	for i := 0; i < n; i++ {
		out[i] = h.items[(start+i)%len(h.items)]
	}
	return out
}

// dropNewest forgets the n most recent records.
func (h *history) dropNewest(n int) {
	if n > h.size {
		n = h.size
	}
	for i := 0; i < n; i++ {
		h.head--
		if h.head < 0 {
			h.head += len(h.items)
		}
		h.items[h.head] = domain.Record{}
	}
	h.size -= n
}

func (h *history) clear() int {
	if h == nil {
		return 0
	}
	n := h.size
	for i := range h.items {
		h.items[i] = domain.Record{}
	}
	h.head = 0
	h.size = 0
	return n
}
