package transport

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// FileProvider replays frames captured from a sensor. Reaching the end of the
// file is a transport failure, the same as a sensor hanging up.
type FileProvider struct {
	Path      string
	Delimiter byte
	// Interval paces the replay; zero replays as fast as the loop reads.
	Interval time.Duration
}

func (p *FileProvider) Open(ctx context.Context) (ports.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	f, err := os.Open(p.Path)
	if err != nil {
		return nil, fmt.Errorf("transport %s: open: %w: %w", p.Describe(), domain.ErrTransport, err)
	}
	stream := NewStream(p.Describe(), f, p.Delimiter)
	if p.Interval <= 0 {
		return stream, nil
	}
	return &pacedTransport{Stream: stream, interval: p.Interval, closed: make(chan struct{})}, nil
}

func (p *FileProvider) Describe() string { return "file://" + p.Path }

type pacedTransport struct {
	*Stream
	interval time.Duration
	closed   chan struct{}
	once     sync.Once
	started  bool
}

func (t *pacedTransport) ReadFrame() ([]byte, error) {
	if t.started {
		timer := time.NewTimer(t.interval)
		select {
		case <-timer.C:
		case <-t.closed:
			timer.Stop()
			return nil, fmt.Errorf("transport %s: closed: %w", t.name, domain.ErrTransport)
		}
	}
	t.started = true
	return t.Stream.ReadFrame()
}

func (t *pacedTransport) Close() error {
	t.once.Do(func() { close(t.closed) })
	return t.Stream.Close()
}

var _ ports.TransportProvider = (*FileProvider)(nil)
