// Package module owns a sensor's channels and drives their acquisition loops
// through the Created, Initialized, Started, Stopped and CleanedUp states.
package module

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/ghalamif/SensorHub/internal/acquisition"
	"github.com/ghalamif/SensorHub/internal/adapters/eventbus"
	"github.com/ghalamif/SensorHub/internal/adapters/observability"
	"github.com/ghalamif/SensorHub/internal/adapters/transport"
	"github.com/ghalamif/SensorHub/internal/channel"
	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
	"github.com/ghalamif/SensorHub/internal/protocol"
)

type State int

const (
	StateCreated State = iota
	StateInitialized
	StateStarted
	StateStopped
	StateCleanedUp
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateInitialized:
		return "initialized"
	case StateStarted:
		return "started"
	case StateStopped:
		return "stopped"
	case StateCleanedUp:
		return "cleanedup"
	default:
		return "unknown"
	}
}

// Status is the module view served on the status endpoint.
type Status struct {
	ID       string             `json:"id"`
	Name     string             `json:"name"`
	State    string             `json:"state"`
	Channels []channel.Snapshot `json:"channels"`
}

// ProviderFactory builds the transport provider of a channel.
type ProviderFactory func(cfg ChannelConfig) (ports.TransportProvider, error)

type Option func(*Module)

// WithProviderFactory replaces the provider built from each channel's transport settings.
func WithProviderFactory(f ProviderFactory) Option {
	return func(m *Module) { m.factory = f }
}

// WithTransportProvider pins the provider of one channel, overriding its transport settings.
func WithTransportProvider(channelName string, p ports.TransportProvider) Option {
	return func(m *Module) { m.providers[channelName] = p }
}

// WithBus shares an existing event bus. The module still closes it on Cleanup.
func WithBus(b *eventbus.Bus) Option {
	return func(m *Module) { m.bus = b }
}

type entry struct {
	cfg      ChannelConfig
	ch       *channel.Channel
	provider ports.TransportProvider
	loop     *acquisition.Loop
	handle   *acquisition.Handle
}

// Module is safe for concurrent use. Lifecycle operations are serialized;
// queries never wait on a lifecycle operation in progress.
type Module struct {
	obs       ports.Observability
	factory   ProviderFactory
	providers map[string]ports.TransportProvider
	bus       *eventbus.Bus

	opMu sync.Mutex

	mu      sync.RWMutex
	state   State
	cfg     Config
	id      string
	entries []*entry
	byName  map[string]*entry
}

// New builds a module in the Created state. A nil obs discards logs and metrics.
func New(obs ports.Observability, opts ...Option) *Module {
	if obs == nil {
		obs = observability.Nop()
	}
	m := &Module{
		obs:       obs,
		factory:   defaultProvider,
		providers: make(map[string]ports.TransportProvider),
		state:     StateCreated,
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.bus == nil {
		m.bus = eventbus.New(obs)
	}
	return m
}

func defaultProvider(cfg ChannelConfig) (ports.TransportProvider, error) {
	if cfg.Transport.Kind == "" {
		return nil, fmt.Errorf("channel %q: no transport configured: %w", cfg.Name, domain.ErrConfiguration)
	}
	return transport.NewProvider(cfg.Transport)
}

// Initialize validates cfg and builds the channels. The module stays Created
// when cfg is invalid.
func (m *Module) Initialize(cfg Config) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch st := m.State(); st {
	case StateInitialized:
		return nil
	case StateCreated:
	default:
		return fmt.Errorf("module: initialize from %s: %w", st, domain.ErrLifecycle)
	}

	cfg.Channels = append([]ChannelConfig(nil), cfg.Channels...)
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return err
	}
	id := cfg.ID
	if id == "" {
		id = uuid.NewString()
	}
	obs := m.obs.With(ports.Field{Key: "module", Value: cfg.Name}, ports.Field{Key: "module_id", Value: id})

	entries := make([]*entry, 0, len(cfg.Channels))
	byName := make(map[string]*entry, len(cfg.Channels))
	for _, cc := range cfg.Channels {
		e, err := m.buildEntry(id, cc, obs)
		if err != nil {
			return err
		}
		entries = append(entries, e)
		byName[cc.Name] = e
	}

	m.mu.Lock()
	m.cfg = cfg
	m.id = id
	m.entries = entries
	m.byName = byName
	m.state = StateInitialized
	m.mu.Unlock()

	obs.LogInfo("module initialized", ports.Field{Key: "channels", Value: len(entries)})
	return nil
}

func (m *Module) buildEntry(moduleID string, cc ChannelConfig, obs ports.Observability) (*entry, error) {
	layout, err := cc.Protocol.ResolveLayout()
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w", cc.Name, err)
	}
	chObs := obs.With(ports.Field{Key: "channel", Value: cc.Name})
	parser, err := protocol.NewParser(layout, protocol.WithUnitWarning(func(field, unit string, err error) {
		chObs.LogWarn("field unavailable", err, ports.Field{Key: "field", Value: field}, ports.Field{Key: "unit", Value: unit})
	}))
	if err != nil {
		return nil, fmt.Errorf("channel %q: %w: %w", cc.Name, err, domain.ErrConfiguration)
	}
	ch, err := channel.New(channel.Config{
		Name:            cc.Name,
		Enabled:         cc.IsEnabled(),
		Push:            cc.IsPush(),
		StorageCapacity: cc.StorageCapacity,
		SamplingPeriod:  cc.SamplingPeriod,
		Schema:          parser.Schema(),
		Encoding:        parser.Encoding(),
	}, chObs)
	if err != nil {
		return nil, err
	}

	e := &entry{cfg: cc, ch: ch}
	if !cc.IsEnabled() || !cc.IsPush() {
		return e, nil
	}
	if p, ok := m.providers[cc.Name]; ok {
		e.provider = p
	} else if e.provider, err = m.factory(cc); err != nil {
		return nil, err
	}
	e.loop, err = acquisition.NewLoop(acquisition.Config{ModuleID: moduleID, Decimation: cc.Decimation}, ch, parser, m.bus, obs)
	if err != nil {
		return nil, err
	}
	return e, nil
}

// Start opens a transport and starts a loop for every enabled push channel.
// When a transport fails to open, the loops already started are stopped and
// the module keeps its state.
func (m *Module) Start(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch st := m.State(); st {
	case StateStarted:
		return nil
	case StateInitialized, StateStopped:
	default:
		return fmt.Errorf("module: start from %s: %w", st, domain.ErrLifecycle)
	}

	// Loops outlive the caller's context; Stop ends them.
	loopCtx := context.WithoutCancel(ctx)

	var started []*entry
	for _, e := range m.entries {
		if e.loop == nil {
			continue
		}
		if e.handle != nil {
			select {
			case <-e.handle.Done():
				e.handle = nil
			default:
				m.stopEntries(started)
				err := fmt.Errorf("module: channel %q: previous acquisition loop still running: %w", e.cfg.Name, domain.ErrLifecycle)
				m.obs.LogError("module start failed", err, ports.Field{Key: "channel", Value: e.cfg.Name})
				return err
			}
		}
		tr, err := e.provider.Open(ctx)
		if err != nil {
			m.stopEntries(started)
			if !errors.Is(err, domain.ErrTransport) {
				err = fmt.Errorf("module: open %s: %w: %w", e.provider.Describe(), domain.ErrTransport, err)
			}
			m.obs.LogError("module start failed", err, ports.Field{Key: "channel", Value: e.cfg.Name})
			return err
		}
		e.handle = e.loop.Start(loopCtx, tr)
		started = append(started, e)
		m.obs.LogInfo("acquisition started",
			ports.Field{Key: "channel", Value: e.cfg.Name},
			ports.Field{Key: "transport", Value: e.provider.Describe()})
	}

	m.setState(StateStarted)
	return nil
}

// Stop ends every loop and waits for them, bounded by ctx and the configured
// stop timeout. The module is Stopped afterwards even if a loop did not exit in time.
func (m *Module) Stop(ctx context.Context) error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	switch st := m.State(); st {
	case StateStopped:
		return nil
	case StateStarted:
	default:
		return fmt.Errorf("module: stop from %s: %w", st, domain.ErrLifecycle)
	}

	ctx, cancel := context.WithTimeout(ctx, m.cfg.StopTimeout)
	defer cancel()
	err := m.stopEntriesCtx(ctx, m.entries)

	m.setState(StateStopped)
	return err
}

// Cleanup stops whatever still runs, closes the bus and drops the channels.
// It always succeeds and may be called repeatedly.
func (m *Module) Cleanup() error {
	m.opMu.Lock()
	defer m.opMu.Unlock()

	if m.State() == StateCleanedUp {
		return nil
	}
	if err := m.stopEntries(m.entries); err != nil {
		m.obs.LogWarn("cleanup: stop", err)
	}
	m.bus.Close()

	m.mu.Lock()
	m.entries = nil
	m.byName = nil
	m.state = StateCleanedUp
	m.mu.Unlock()
	return nil
}

func (m *Module) stopEntries(entries []*entry) error {
	timeout := m.cfg.StopTimeout
	if timeout <= 0 {
		timeout = defaultStopTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return m.stopEntriesCtx(ctx, entries)
}

func (m *Module) stopEntriesCtx(ctx context.Context, entries []*entry) error {
	var errs []error
	for _, e := range entries {
		if e.handle == nil {
			continue
		}
		if err := e.handle.Stop(ctx); err != nil {
			// the loop is still alive; Start refuses the channel until it exits
			errs = append(errs, fmt.Errorf("channel %q: %w", e.cfg.Name, err))
			continue
		}
		e.handle = nil
	}
	return errors.Join(errs...)
}

func (m *Module) setState(s State) {
	m.mu.Lock()
	m.state = s
	m.mu.Unlock()
}

func (m *Module) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

func (m *Module) ID() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.id
}

func (m *Module) Name() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.cfg.Name
}

func (m *Module) Bus() *eventbus.Bus { return m.bus }

// Channel looks a channel up by name. Consumers get the read-only side; the
// acquisition loop stays the only writer.
func (m *Module) Channel(name string) (channel.View, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	e, ok := m.byName[name]
	if !ok {
		return nil, false
	}
	return e.ch.ReadOnly(), true
}

// Channels returns the channels in configuration order.
func (m *Module) Channels() []channel.View {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]channel.View, len(m.entries))
	for i, e := range m.entries {
		out[i] = e.ch.ReadOnly()
	}
	return out
}

func (m *Module) Status() Status {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st := Status{
		ID:       m.id,
		Name:     m.cfg.Name,
		State:    m.state.String(),
		Channels: make([]channel.Snapshot, len(m.entries)),
	}
	for i, e := range m.entries {
		st.Channels[i] = e.ch.Snapshot()
	}
	return st
}
