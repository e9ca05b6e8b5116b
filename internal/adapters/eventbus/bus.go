// Package eventbus fans record events out to subscribers.
//
// Publish never blocks the acquisition loop: each subscriber owns a bounded
// buffer and an event that does not fit is dropped for that subscriber only.
// Events of one channel reach a subscriber in the order they were produced.
package eventbus

import (
	"errors"
	"sync"
	"sync/atomic"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

var (
	ErrSubscriberExists   = errors.New("eventbus: subscriber id already exists")
	ErrSubscriberNotFound = errors.New("eventbus: subscriber id not found")
	ErrBusClosed          = errors.New("eventbus: bus is closed")
)

const defaultBuffer = 64

// Filter selects the events a subscriber wants. A nil filter accepts everything.
type Filter func(ev domain.Event) bool

// ChannelFilter accepts events of the named channels.
func ChannelFilter(names ...string) Filter {
	set := make(map[string]struct{}, len(names))
	for _, n := range names {
		set[n] = struct{}{}
	}
	return func(ev domain.Event) bool {
		_, ok := set[ev.Channel]
		return ok
	}
}

// SubscriberStats counts deliveries for one subscriber.
type SubscriberStats struct {
	Sent    uint64 `json:"sent"`
	Dropped uint64 `json:"dropped"`
}

// Stats is a snapshot of the whole bus.
type Stats struct {
	Published   uint64                     `json:"published"`
	Subscribers map[string]SubscriberStats `json:"subscribers"`
}

// Subscription is a channel-based registration.
type Subscription struct {
	id string
	ch chan domain.Event
}

func (s *Subscription) ID() string                  { return s.id }
func (s *Subscription) Events() <-chan domain.Event { return s.ch }

type subscriber struct {
	id      string
	filter  Filter
	ch      chan domain.Event
	sent    atomic.Uint64
	dropped atomic.Uint64
	done    chan struct{} // closed when a handler goroutine exits
}

type Bus struct {
	obs ports.Observability

	mu          sync.RWMutex
	subscribers map[string]*subscriber
	closed      bool
	published   atomic.Uint64
}

func New(obs ports.Observability) *Bus {
	return &Bus{
		obs:         obs,
		subscribers: make(map[string]*subscriber),
	}
}

// Subscribe registers a subscriber that reads events from the returned
// subscription. The events channel is closed on Unsubscribe or Close.
func (b *Bus) Subscribe(id string, buffer int, filter Filter) (*Subscription, error) {
	sub, err := b.add(id, buffer, filter)
	if err != nil {
		return nil, err
	}
	return &Subscription{id: id, ch: sub.ch}, nil
}

// SubscribeFunc registers fn, called from a dedicated goroutine for every
// accepted event in publish order. Unsubscribe waits for fn to return.
func (b *Bus) SubscribeFunc(id string, buffer int, filter Filter, fn func(domain.Event)) error {
	if fn == nil {
		return errors.New("eventbus: nil handler")
	}
	sub, err := b.add(id, buffer, filter)
	if err != nil {
		return err
	}
	sub.done = make(chan struct{})
	go func() {
		defer close(sub.done)
		for ev := range sub.ch {
			fn(ev)
		}
	}()
	return nil
}

func (b *Bus) add(id string, buffer int, filter Filter) (*subscriber, error) {
	if buffer <= 0 {
		buffer = defaultBuffer
	}
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil, ErrBusClosed
	}
	if _, exists := b.subscribers[id]; exists {
		return nil, ErrSubscriberExists
	}
	sub := &subscriber{
		id:     id,
		filter: filter,
		ch:     make(chan domain.Event, buffer),
	}
	b.subscribers[id] = sub
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its events channel.
func (b *Bus) Unsubscribe(id string) error {
	b.mu.Lock()
	sub, exists := b.subscribers[id]
	if !exists {
		b.mu.Unlock()
		return ErrSubscriberNotFound
	}
	delete(b.subscribers, id)
	close(sub.ch)
	b.mu.Unlock()

	if sub.done != nil {
		<-sub.done
	}
	return nil
}

// Publish hands ev to every interested subscriber without blocking.
func (b *Bus) Publish(ev domain.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}
	b.published.Add(1)

	for _, sub := range b.subscribers {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
			sub.sent.Add(1)
		default:
			sub.dropped.Add(1)
			if b.obs != nil {
				b.obs.With(ports.Field{Key: "channel", Value: ev.Channel}).
					IncCounter("sensorhub_events_dropped_total", 1)
			}
		}
	}
}

func (b *Bus) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()

	st := Stats{
		Published:   b.published.Load(),
		Subscribers: make(map[string]SubscriberStats, len(b.subscribers)),
	}
	for id, sub := range b.subscribers {
		st.Subscribers[id] = SubscriberStats{
			Sent:    sub.sent.Load(),
			Dropped: sub.dropped.Load(),
		}
	}
	return st
}

// Close unregisters everybody. Later publishes are ignored.
func (b *Bus) Close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	subs := b.subscribers
	b.subscribers = nil
	for _, sub := range subs {
		close(sub.ch)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		if sub.done != nil {
			<-sub.done
		}
	}
}

var _ ports.EventPublisher = (*Bus)(nil)
