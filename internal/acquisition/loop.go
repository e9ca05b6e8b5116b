// Package acquisition runs the per-channel task that turns transport frames
// into records.
package acquisition

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/SensorHub/internal/adapters/observability"
	"github.com/ghalamif/SensorHub/internal/channel"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// Config tunes one loop.
type Config struct {
	ModuleID string
	// Decimation keeps one parsed frame out of every Decimation. Values below 1 mean 1.
	Decimation int
}

// Loop binds a channel to its parser. Start it once per transport session.
type Loop struct {
	moduleID   string
	ch         *channel.Channel
	parser     ports.FrameParser
	bus        ports.EventPublisher
	obs        ports.Observability
	decimation int
	now        func() time.Time
}

func NewLoop(cfg Config, ch *channel.Channel, parser ports.FrameParser, bus ports.EventPublisher, obs ports.Observability) (*Loop, error) {
	if ch == nil || parser == nil {
		return nil, fmt.Errorf("acquisition: channel and parser are required: %w", domain.ErrConfiguration)
	}
	if cfg.Decimation < 1 {
		cfg.Decimation = 1
	}
	if obs == nil {
		obs = observability.Nop()
	}
	return &Loop{
		moduleID:   cfg.ModuleID,
		ch:         ch,
		parser:     parser,
		bus:        bus,
		obs:        obs.With(ports.Field{Key: "channel", Value: ch.Name()}),
		decimation: cfg.Decimation,
		now:        time.Now,
	}, nil
}

// Handle supervises one running loop.
type Handle struct {
	cancel    context.CancelFunc
	done      chan struct{}
	transport ports.Transport
	closeOnce sync.Once
	closeErr  error

	mu  sync.Mutex
	err error
}

// Start launches the loop on tr. The loop owns tr until it exits; the handle
// closes it exactly once.
func (l *Loop) Start(ctx context.Context, tr ports.Transport) *Handle {
	ctx, cancel := context.WithCancel(ctx)
	h := &Handle{
		cancel:    cancel,
		done:      make(chan struct{}),
		transport: tr,
	}
	l.ch.MarkRunning()
	go l.run(ctx, h)
	return h
}

// Stop cancels the loop, closes the transport to unblock a pending read and
// waits for the loop to exit or ctx to expire.
func (h *Handle) Stop(ctx context.Context) error {
	h.cancel()
	h.closeTransport()
	select {
	case <-h.done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("acquisition: stop: %w", ctx.Err())
	}
}

// Done is closed once the loop exited.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Err is the reason the loop exited on its own, nil after a deliberate stop.
func (h *Handle) Err() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.err
}

func (h *Handle) closeTransport() error {
	h.closeOnce.Do(func() {
		h.closeErr = h.transport.Close()
	})
	return h.closeErr
}

func (l *Loop) run(ctx context.Context, h *Handle) {
	defer close(h.done)

	pool := l.ch.Pool()
	schema := l.parser.Schema()
	skip := 0

	for {
		if ctx.Err() != nil {
			l.ch.MarkIdle()
			return
		}

		frame, err := h.transport.ReadFrame()
		if err != nil {
			if ctx.Err() != nil {
				l.ch.MarkIdle()
				return
			}
			if errors.Is(err, domain.ErrReadTimeout) {
				continue
			}
			l.fail(h, err)
			return
		}

		buf := pool.Checkout()
		if err := l.parser.Parse(frame, buf); err != nil {
			pool.Checkin(buf)
			l.obs.IncCounter("sensorhub_frames_rejected_total", 1)
			l.obs.LogWarn("frame rejected", err, ports.Field{Key: "frame", Value: string(frame)})
			continue
		}
		if skip > 0 {
			skip--
			pool.Checkin(buf)
			l.obs.IncCounter("sensorhub_records_decimated_total", 1)
			continue
		}
		skip = l.decimation - 1

		seq, ts := l.ch.Stamp(l.now())
		rec, err := domain.NewRecord(schema, seq, ts, buf)
		if err != nil {
			pool.Checkin(buf)
			l.obs.LogError("record rejected", err)
			continue
		}
		pool.Transfer(buf)

		l.ch.Publish(rec)
		l.obs.IncCounter("sensorhub_records_produced_total", 1)
		if l.bus != nil {
			l.bus.Publish(domain.Event{
				ModuleID:  l.moduleID,
				Channel:   l.ch.Name(),
				Kind:      domain.EventData,
				Record:    rec,
				Published: l.now(),
			})
		}
	}
}

func (l *Loop) fail(h *Handle, cause error) {
	err := cause
	if !errors.Is(cause, domain.ErrTransport) {
		err = fmt.Errorf("acquisition %q: read: %w: %w", l.ch.Name(), domain.ErrTransport, cause)
	}
	if cerr := h.closeTransport(); cerr != nil {
		l.obs.LogWarn("transport close failed", cerr)
	}

	h.mu.Lock()
	h.err = err
	h.mu.Unlock()

	l.ch.MarkFailed(err)
	l.obs.IncCounter("sensorhub_transport_failures_total", 1)
	l.obs.LogError("acquisition stopped", err)
	if l.bus != nil {
		l.bus.Publish(domain.Event{
			ModuleID:  l.moduleID,
			Channel:   l.ch.Name(),
			Kind:      domain.EventFailure,
			Err:       err,
			Published: l.now(),
		})
	}
}
