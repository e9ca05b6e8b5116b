package ports

import "github.com/ghalamif/SensorHub/internal/domain"

type QueuedObservation struct {
	ID          WALEntryID
	Observation *domain.Observation
}

// ObservationQueue buffers WAL-backed observations between the forwarder and
// the ingest loop. Ready is signalled after enqueues; signals coalesce.
type ObservationQueue interface {
	Enqueue(id WALEntryID, o *domain.Observation) bool
	DequeueBatch(max int) []QueuedObservation
	Len() int
	Ready() <-chan struct{}
}
