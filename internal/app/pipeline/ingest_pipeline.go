package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// RunIngestPipeline drains q into sink in batches until ctx is cancelled.
// A batch is committed to the WAL only after the sink accepted it; a failed
// batch is retried, a rejected one goes to the DLQ. Observations still in
// flight at shutdown stay in the WAL and are replayed on the next start.
func RunIngestPipeline(ctx context.Context, wal ports.WAL, q ports.ObservationQueue, sink ports.Sink, pol ports.Policy, obs ports.Observability) {
	idle := idleSleep(pol)
	var pending []ports.QueuedObservation

	for {
		if ctx.Err() != nil {
			return
		}
		if len(pending) == 0 {
			pending = q.DequeueBatch(pol.MaxBatchSize)
			if len(pending) == 0 {
				select {
				case <-ctx.Done():
					return
				case <-q.Ready():
				}
				continue
			}
		}

		out := make([]*domain.Observation, len(pending))
		var maxID ports.WALEntryID
		for i, item := range pending {
			out[i] = item.Observation
			if item.ID > maxID {
				maxID = item.ID
			}
		}

		start := time.Now()
		err := sink.WriteBatch(out)
		switch {
		case err == nil:
			obs.ObserveLatency("sensorhub_sink_latency_seconds", time.Since(start).Seconds())
			obs.IncCounter("sensorhub_forwarded_records_total", float64(len(out)))
		case errors.Is(err, ports.ErrRejected):
			for _, item := range pending {
				obs.RecordDLQ(item.ID, item.Observation, err)
			}
		default:
			obs.LogError("sink write failed", err,
				ports.Field{Key: "sink", Value: sink.Name()},
				ports.Field{Key: "batch", Value: len(out)})
			// keep the batch and retry it
			if !sleep(ctx.Done(), idle) {
				return
			}
			continue
		}
		pending = nil

		if err := wal.Commit(maxID); err != nil {
			obs.LogError("wal commit failed", err)
			continue
		}
		compactWAL(wal, pol, obs)
	}
}

// compactWAL drops committed entries once the log reaches half of MaxWALSizeBytes.
func compactWAL(wal ports.WAL, pol ports.Policy, obs ports.Observability) {
	if pol.MaxWALSizeBytes <= 0 || wal.Stats().SizeBytes < pol.MaxWALSizeBytes/2 {
		return
	}
	if err := wal.TruncateCommitted(); err != nil {
		obs.LogError("wal compaction failed", err)
	}
}
