package ports

import (
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
)

// Bufferable is the pull side of a channel: a pop-on-read latest slot plus an
// optional bounded history.
type Bufferable interface {
	IsStorageSupported() bool
	LatestRecord() (domain.Record, bool, error)
	StorageCapacity() (int, error)
	NumberOfAvailableRecords() (int, error)
	LatestRecords(max int, clear bool) ([]domain.Record, error)
	AllRecords(clear bool) ([]domain.Record, error)
	ClearAllRecords() (int, error)
}

// SelfDescribing exposes the fixed layout of a channel's records.
type SelfDescribing interface {
	Schema() (*domain.Schema, error)
	RecommendedEncoding() (domain.Encoding, error)
	AverageSamplingPeriod() time.Duration
}

// EventSource marks channels able to notify subscribers as records arrive.
type EventSource interface {
	IsPushSupported() bool
}

// DataChannel is what a module exposes for each of its channels.
type DataChannel interface {
	Bufferable
	SelfDescribing
	EventSource
	Name() string
	IsEnabled() bool
}

// RecordSink is the producer side of a channel, used only by its acquisition loop.
// Stamp hands out the next sequence number and a timestamp that never goes
// backwards on this channel.
type RecordSink interface {
	Stamp(now time.Time) (uint64, time.Time)
	Publish(rec domain.Record)
}

// EventPublisher is the part of the event bus a producer needs.
type EventPublisher interface {
	Publish(ev domain.Event)
}
