package sensorhub

import (
	"github.com/ghalamif/SensorHub/internal/adapters/eventbus"
	"github.com/ghalamif/SensorHub/internal/channel"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/module"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// Record is one immutable set of values produced by a channel.
type Record = domain.Record

// Schema describes the fields of a channel's records.
type Schema = domain.Schema

// FieldDescriptor describes one field of a Schema.
type FieldDescriptor = domain.FieldDescriptor

// Encoding is the recommended text rendering of a channel's records.
type Encoding = domain.Encoding

// Event is delivered to bus subscribers for new records and channel failures.
type Event = domain.Event

// EventKind tells data events from failure events.
type EventKind = domain.EventKind

const (
	EventData    = domain.EventData
	EventFailure = domain.EventFailure
)

// Observation is the flattened record that flows through the WAL→queue→sink pipeline.
type Observation = domain.Observation

// QueuedObservation represents an item buffered inside the bounded queue.
type QueuedObservation = ports.QueuedObservation

// Module owns the channels and their acquisition loops.
type Module = module.Module

// ModuleState is the lifecycle state of a Module.
type ModuleState = module.State

// Status is the module view served on /channels.
type Status = module.Status

// Channel is the read-only view of a data channel: its latest record, bounded
// history and metadata.
type Channel = channel.View

// ChannelSnapshot is a point-in-time view of a channel.
type ChannelSnapshot = channel.Snapshot

// Bus fans module events out to subscribers.
type Bus = eventbus.Bus

// Subscription is a channel-based bus subscription.
type Subscription = eventbus.Subscription

// Filter selects the events a subscriber receives.
type Filter = eventbus.Filter

// Transport yields delimited frames from a sensor connection.
type Transport = ports.Transport

// TransportProvider opens the transport of a channel.
type TransportProvider = ports.TransportProvider

// ObservationQueue is the bounded, in-memory queue that decouples the forwarder and sink.
type ObservationQueue = ports.ObservationQueue

// Sink consumes batches of observations and persists them to any downstream system.
type Sink = ports.Sink

// Observability emits metrics/logs about throughput, latency, and DLQ conditions.
type Observability = ports.Observability

// Field is a structured log/metric field used by Observability implementations.
type Field = ports.Field

// WAL abstracts the write-ahead log used for durability and crash recovery.
type WAL = ports.WAL

// WALStats exposes WAL metadata for observability.
type WALStats = ports.WALStats

// WALEntryID uniquely identifies a WAL entry.
type WALEntryID = ports.WALEntryID

// Errors returned by the module, its channels and sinks.
var (
	ErrConfiguration   = domain.ErrConfiguration
	ErrLifecycle       = domain.ErrLifecycle
	ErrChannelDisabled = domain.ErrChannelDisabled
	ErrNotInitialized  = domain.ErrNotInitialized
	ErrTransport       = domain.ErrTransport
	ErrReadTimeout     = domain.ErrReadTimeout
	ErrRejected        = ports.ErrRejected
)

// ChannelFilter passes events of the named channels only.
func ChannelFilter(names ...string) Filter {
	return eventbus.ChannelFilter(names...)
}
