// Package channel implements the buffering side of a sensor data channel: a
// pop-on-read latest slot, a bounded drop-oldest history and the metadata
// consumers use to decide how to poll it.
package channel

import (
	"fmt"
	"sync"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// Status tells a quiet channel apart from a broken one.
type Status string

const (
	StatusIdle    Status = "idle"
	StatusRunning Status = "running"
	StatusFailed  Status = "failed"
)

// Config is the static description of a channel.
type Config struct {
	Name            string
	Enabled         bool
	Push            bool
	StorageCapacity int
	SamplingPeriod  time.Duration
	Schema          *domain.Schema
	Encoding        domain.Encoding
}

// Snapshot is a point-in-time view of a channel for status reporting.
type Snapshot struct {
	Name            string    `json:"name"`
	Enabled         bool      `json:"enabled"`
	Push            bool      `json:"push"`
	Status          Status    `json:"status"`
	StorageCapacity int       `json:"storage_capacity"`
	Available       int       `json:"available"`
	Produced        uint64    `json:"produced"`
	LastRecord      time.Time `json:"last_record,omitempty"`
	LastError       string    `json:"last_error,omitempty"`
}

// View is the consumer side of a channel. It reads and drains records but
// cannot publish them or change the channel status.
type View interface {
	ports.DataChannel
	Status() (Status, error)
	Snapshot() Snapshot
}

type readOnly struct{ View }

// Channel is safe for concurrent use by one producer and any number of consumers.
// Only the acquisition loop holds a *Channel; everybody else gets ReadOnly.
type Channel struct {
	cfg  Config
	obs  ports.Observability
	pool *Pool

	mu        sync.Mutex
	latest    domain.Record
	hasLatest bool
	history   *history
	seq       uint64
	lastTS    time.Time
	produced  uint64
	status    Status
	lastErr   error
}

func New(cfg Config, obs ports.Observability) (*Channel, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("channel: name is required: %w", domain.ErrConfiguration)
	}
	if cfg.StorageCapacity < 0 {
		return nil, fmt.Errorf("channel %q: storage capacity must be >= 0: %w", cfg.Name, domain.ErrConfiguration)
	}
	arity := 0
	if cfg.Schema != nil {
		arity = cfg.Schema.Arity()
	}
	return &Channel{
		cfg:     cfg,
		obs:     obs,
		pool:    NewPool(arity),
		history: newHistory(cfg.StorageCapacity),
		status:  StatusIdle,
	}, nil
}

func (c *Channel) Name() string                         { return c.cfg.Name }
func (c *Channel) IsEnabled() bool                      { return c.cfg.Enabled }
func (c *Channel) IsPushSupported() bool                { return c.cfg.Push }
func (c *Channel) IsStorageSupported() bool             { return c.cfg.StorageCapacity > 0 }
func (c *Channel) AverageSamplingPeriod() time.Duration { return c.cfg.SamplingPeriod }

// ReadOnly returns a View that hides the producer methods. Asserting it back to
// *Channel fails.
func (c *Channel) ReadOnly() View { return readOnly{c} }

// Pool is the value-buffer pool of this channel's acquisition loop.
func (c *Channel) Pool() *Pool { return c.pool }

func (c *Channel) Schema() (*domain.Schema, error) {
	if err := c.checkEnabled(); err != nil {
		return nil, err
	}
	if c.cfg.Schema == nil {
		return nil, fmt.Errorf("channel %q: %w", c.cfg.Name, domain.ErrNotInitialized)
	}
	return c.cfg.Schema, nil
}

func (c *Channel) RecommendedEncoding() (domain.Encoding, error) {
	if _, err := c.Schema(); err != nil {
		return domain.Encoding{}, err
	}
	return c.cfg.Encoding, nil
}

// LatestRecord pops the latest slot. ok is false when nothing arrived since the last pop.
func (c *Channel) LatestRecord() (domain.Record, bool, error) {
	if err := c.checkEnabled(); err != nil {
		return domain.Record{}, false, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.hasLatest {
		return domain.Record{}, false, nil
	}
	rec := c.latest
	c.latest = domain.Record{}
	c.hasLatest = false
	return rec, true, nil
}

func (c *Channel) StorageCapacity() (int, error) {
	if err := c.checkEnabled(); err != nil {
		return 0, err
	}
	return c.cfg.StorageCapacity, nil
}

func (c *Channel) NumberOfAvailableRecords() (int, error) {
	if err := c.checkEnabled(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availableLocked(), nil
}

// LatestRecords returns up to max newest records, oldest first. With clear set
// the returned records leave the history.
func (c *Channel) LatestRecords(max int, clear bool) ([]domain.Record, error) {
	if err := c.checkEnabled(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history == nil {
		return c.latestAsHistoryLocked(max, clear), nil
	}
	out := c.history.newest(max)
	if clear {
		c.history.dropNewest(len(out))
	}
	return out, nil
}

// AllRecords returns the whole history, oldest first.
func (c *Channel) AllRecords(clear bool) ([]domain.Record, error) {
	if err := c.checkEnabled(); err != nil {
		return nil, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.history == nil {
		return c.latestAsHistoryLocked(1, clear), nil
	}
	out := c.history.newest(c.history.len())
	if clear {
		c.history.clear()
	}
	return out, nil
}

// ClearAllRecords empties the history and the latest slot and returns how many
// history records were removed.
func (c *Channel) ClearAllRecords() (int, error) {
	if err := c.checkEnabled(); err != nil {
		return 0, err
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	n := c.history.clear()
	if c.history == nil && c.hasLatest {
		n = 1
	}
	c.latest = domain.Record{}
	c.hasLatest = false
	return n, nil
}

// Stamp hands out the next sequence number and a timestamp no earlier than the
// previous one.
func (c *Channel) Stamp(now time.Time) (uint64, time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if now.Before(c.lastTS) {
		now = c.lastTS
	}
	c.lastTS = now
	c.seq++
	return c.seq, now
}

// Publish installs rec as the latest record and appends it to the history,
// evicting the oldest entry when full.
func (c *Channel) Publish(rec domain.Record) {
	c.mu.Lock()
	c.latest = rec
	c.hasLatest = true
	c.produced++
	evicted := false
	if c.history != nil {
		evicted = c.history.push(rec)
	}
	c.mu.Unlock()

	if evicted && c.obs != nil {
		c.obs.IncCounter("sensorhub_history_evicted_total", 1)
	}
}

func (c *Channel) MarkRunning() {
	c.mu.Lock()
	c.status = StatusRunning
	c.lastErr = nil
	c.mu.Unlock()
}

func (c *Channel) MarkIdle() {
	c.mu.Lock()
	if c.status == StatusRunning {
		c.status = StatusIdle
	}
	c.mu.Unlock()
}

func (c *Channel) MarkFailed(err error) {
	c.mu.Lock()
	c.status = StatusFailed
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Channel) Status() (Status, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status, c.lastErr
}

func (c *Channel) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	snap := Snapshot{
		Name:            c.cfg.Name,
		Enabled:         c.cfg.Enabled,
		Push:            c.cfg.Push,
		Status:          c.status,
		StorageCapacity: c.cfg.StorageCapacity,
		Available:       c.availableLocked(),
		Produced:        c.produced,
		LastRecord:      c.lastTS,
	}
	if c.lastErr != nil {
		snap.LastError = c.lastErr.Error()
	}
	return snap
}

func (c *Channel) availableLocked() int {
	if c.history == nil {
		if c.hasLatest {
			return 1
		}
		return 0
	}
	return c.history.len()
}

// latestAsHistoryLocked treats the latest slot as a one-record history for
// channels without storage.
func (c *Channel) latestAsHistoryLocked(max int, clear bool) []domain.Record {
	if !c.hasLatest || max <= 0 {
		return nil
	}
	out := []domain.Record{c.latest}
	if clear {
		c.latest = domain.Record{}
		c.hasLatest = false
	}
	return out
}

func (c *Channel) checkEnabled() error {
	if !c.cfg.Enabled {
		return fmt.Errorf("channel %q: %w", c.cfg.Name, domain.ErrChannelDisabled)
	}
	return nil
}

var (
	_ ports.DataChannel = (*Channel)(nil)
	_ ports.RecordSink  = (*Channel)(nil)
	_ View              = readOnly{}
)
