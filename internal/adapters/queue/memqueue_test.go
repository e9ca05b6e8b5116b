package queue

import (
	"testing"

	"github.com/ghalamif/SensorHub/internal/domain"
)

func TestMemQueueEnqueueDequeueOrder(t *testing.T) {
	q := NewMemQueue(4)

	o1 := &domain.Observation{Channel: "rangeData", Seq: 1}
	o2 := &domain.Observation{Channel: "rangeData", Seq: 2}

	if !q.Enqueue(1, o1) || !q.Enqueue(2, o2) {
		t.Fatalf("expected successful enqueue")
	}

	batch := q.DequeueBatch(1)
	if len(batch) != 1 || batch[0].ID != 1 || batch[0].Observation.Seq != 1 {
		t.Fatalf("unexpected first batch: %+v", batch)
	}

	remaining := q.DequeueBatch(10)
	if len(remaining) != 1 || remaining[0].ID != 2 {
		t.Fatalf("unexpected second batch: %+v", remaining)
	}

	if q.Len() != 0 {
		t.Fatalf("queue should be empty, got %d", q.Len())
	}
	if q.DequeueBatch(5) != nil {
		t.Fatalf("expected nil batch from an empty queue")
	}
}

func TestMemQueueCapacityAndWrap(t *testing.T) {
	q := NewMemQueue(2)

	o := &domain.Observation{Channel: "cap"}

	if !q.Enqueue(1, o) || !q.Enqueue(2, o) {
		t.Fatalf("expected enqueue within capacity")
	}
	if q.Enqueue(3, o) {
		t.Fatalf("enqueue should fail when capacity exceeded")
	}

	q.DequeueBatch(1)
	if !q.Enqueue(4, o) {
		t.Fatalf("expected enqueue to succeed after dequeue")
	}

	batch := q.DequeueBatch(0)
	if len(batch) != 2 || batch[0].ID != 2 || batch[1].ID != 4 {
		t.Fatalf("expected ids 2 and 4 after wrap-around, got %+v", batch)
	}
}

func TestMemQueueReadySignal(t *testing.T) {
	q := NewMemQueue(4)

	select {
	case <-q.Ready():
		t.Fatalf("empty queue should not be ready")
	default:
	}

	q.Enqueue(1, &domain.Observation{})
	q.Enqueue(2, &domain.Observation{})

	select {
	case <-q.Ready():
	default:
		t.Fatalf("expected ready signal after enqueue")
	}
	select {
	case <-q.Ready():
		t.Fatalf("ready signal should coalesce")
	default:
	}
}
