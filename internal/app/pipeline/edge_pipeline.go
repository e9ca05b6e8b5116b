package pipeline

import (
	"context"
	"fmt"
	"time"

	"github.com/ghalamif/SensorHub/internal/adapters/eventbus"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

const (
	// ForwarderID is the event bus subscriber id of the forwarder.
	ForwarderID = "forwarder"

	forwarderBuffer  = 1024
	defaultIdleSleep = 5 * time.Millisecond
)

// EventSource is the part of the event bus the forwarder needs.
type EventSource interface {
	SubscribeFunc(id string, buffer int, filter eventbus.Filter, fn func(domain.Event)) error
	Unsubscribe(id string) error
}

// RunEdgePipeline replays uncommitted WAL entries into q, then subscribes to
// src and persists every data event to the WAL before queueing it for the
// ingest loop. The ingest loop must already run when the policy blocks on a
// full queue. Cancelling ctx unsubscribes.
func RunEdgePipeline(ctx context.Context, src EventSource, wal ports.WAL, q ports.ObservationQueue, pol ports.Policy, obs ports.Observability) error {
	if err := ReplayWAL(ctx, wal, q, pol, obs); err != nil {
		return err
	}

	stop := ctx.Done()
	handle := func(ev domain.Event) {
		o, ok := domain.ObservationFromEvent(ev)
		if !ok {
			return
		}
		chObs := obs.With(ports.Field{Key: "channel", Value: o.Channel})

		if !waitForWALCapacity(stop, wal, pol, chObs) {
			chObs.IncCounter("sensorhub_forward_dropped_total", 1)
			return
		}
		id, err := wal.Append(o)
		if err != nil {
			chObs.LogCritical("wal append failed", err)
			return
		}
		if !enqueueWithPolicy(stop, q, id, o, pol, chObs) {
			chObs.IncCounter("sensorhub_forward_dropped_total", 1)
		}
	}
	if err := src.SubscribeFunc(ForwarderID, forwarderBuffer, nil, handle); err != nil {
		return fmt.Errorf("forwarder: subscribe: %w", err)
	}

	go func() {
		<-stop
		_ = src.Unsubscribe(ForwarderID)
	}()
	return nil
}

// ReplayWAL queues the entries that were appended but never committed.
func ReplayWAL(ctx context.Context, wal ports.WAL, q ports.ObservationQueue, pol ports.Policy, obs ports.Observability) error {
	stats := wal.Stats()
	if stats.LatestAppended == 0 {
		return nil
	}
	start := stats.OldestUncommitted
	if start == 0 || start > stats.LatestAppended {
		return nil
	}

	var replayed, dropped int
	err := wal.Iterate(start, func(id ports.WALEntryID, o *domain.Observation) error {
		if enqueueWithPolicy(ctx.Done(), q, id, o, pol, obs) {
			replayed++
			return nil
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		dropped++
		return nil
	})
	if err != nil {
		return fmt.Errorf("forwarder: wal replay: %w", err)
	}
	if dropped > 0 {
		obs.IncCounter("sensorhub_forward_dropped_total", float64(dropped))
	}
	if replayed > 0 || dropped > 0 {
		obs.LogInfo("wal replay complete",
			ports.Field{Key: "observations", Value: replayed},
			ports.Field{Key: "dropped", Value: dropped},
			ports.Field{Key: "from_id", Value: uint64(start)})
	}
	return nil
}

func idleSleep(pol ports.Policy) time.Duration {
	if pol.IdleSleep <= 0 {
		return defaultIdleSleep
	}
	return pol.IdleSleep
}

// sleep waits d and reports false when stop closed first.
func sleep(stop <-chan struct{}, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-stop:
		return false
	case <-t.C:
		return true
	}
}

func waitForWALCapacity(stop <-chan struct{}, wal ports.WAL, pol ports.Policy, obs ports.Observability) bool {
	if pol.MaxWALSizeBytes <= 0 {
		return true
	}

	for {
		stats := wal.Stats()
		if stats.SizeBytes < pol.MaxWALSizeBytes {
			return true
		}

		switch pol.OnWALFull {
		case "block":
			if !sleep(stop, idleSleep(pol)) {
				return false
			}
		case "drop":
			obs.LogError("wal full, observation dropped", fmt.Errorf("size=%d limit=%d", stats.SizeBytes, pol.MaxWALSizeBytes))
			return false
		default:
			obs.LogError("invalid wal policy", fmt.Errorf("policy=%s", pol.OnWALFull))
			return false
		}
	}
}

func enqueueWithPolicy(stop <-chan struct{}, q ports.ObservationQueue, id ports.WALEntryID, o *domain.Observation, pol ports.Policy, obs ports.Observability) bool {
	for {
		if ok := q.Enqueue(id, o); ok {
			return true
		}

		switch pol.OnQueueFull {
		case "block":
			if !sleep(stop, idleSleep(pol)) {
				return false
			}
		case "drop", "reject":
			obs.LogError("queue full, observation dropped", fmt.Errorf("queue length exceeded capacity %d", pol.MaxQueueLen))
			return false
		default:
			obs.LogError("invalid queue policy", fmt.Errorf("policy=%s", pol.OnQueueFull))
			return false
		}
	}
}
