package sensorhub

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ghalamif/SensorHub/internal/domain"
)

// ErrChannelSinkClosed is returned when a channel sink is written to after being closed.
var ErrChannelSinkClosed = errors.New("sensorhub: channel sink closed")

// ObservationBatchSink is invoked with ordered batches dequeued from the
// pipeline. Returning an error wrapping ErrRejected sends the batch to the
// DLQ; any other error retries it.
type ObservationBatchSink func([]Observation) error

// NewCallbackSink adapts an ObservationBatchSink into a full Sink so callers
// can plug arbitrary functions without defining structs.
func NewCallbackSink(name string, fn ObservationBatchSink) Sink {
	if name == "" {
		name = "callback"
	}
	return &callbackSink{name: name, fn: fn}
}

// NewChannelSink exposes batches via a channel; it returns the sink, the read-only channel,
// and a close function that the caller should invoke during shutdown.
func NewChannelSink(name string, buffer int) (Sink, <-chan []Observation, func()) {
	if name == "" {
		name = "channel"
	}
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan []Observation, buffer)
	s := &channelSink{
		name:   name,
		ch:     ch,
		closed: make(chan struct{}),
	}
	return s, ch, func() { s.close() }
}

type callbackSink struct {
	name string
	fn   ObservationBatchSink
}

func (s *callbackSink) WriteBatch(observations []*domain.Observation) error {
	if s.fn == nil {
		return fmt.Errorf("callback sink %q: nil handler: %w", s.name, ErrRejected)
	}
	if len(observations) == 0 {
		return nil
	}
	return s.fn(copyBatch(observations))
}

func (s *callbackSink) Name() string { return s.name }

type channelSink struct {
	name   string
	mu     sync.RWMutex
	ch     chan []Observation
	closed chan struct{}
	once   sync.Once
}

func (s *channelSink) WriteBatch(observations []*domain.Observation) error {
	s.mu.RLock()
	defer s.mu.RUnlock()

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	default:
	}

	if len(observations) == 0 {
		return nil
	}

	batch := copyBatch(observations)

	select {
	case <-s.closed:
		return ErrChannelSinkClosed
	case s.ch <- batch:
		return nil
	}
}

func (s *channelSink) Name() string { return s.name }

// close unblocks pending writers before closing the batch channel.
func (s *channelSink) close() {
	s.once.Do(func() {
		close(s.closed)
		s.mu.Lock()
		close(s.ch)
		s.mu.Unlock()
	})
}

func copyBatch(observations []*domain.Observation) []Observation {
	out := make([]Observation, len(observations))
	for i, o := range observations {
		out[i] = Observation{
			ModuleID:  o.ModuleID,
			Channel:   o.Channel,
			Seq:       o.Seq,
			Timestamp: o.Timestamp,
			Fields:    append([]string(nil), o.Fields...),
			Values:    append([]float64(nil), o.Values...),
		}
	}
	return out
}
