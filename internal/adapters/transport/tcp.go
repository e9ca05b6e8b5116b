package transport

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

const defaultDialTimeout = 5 * time.Second

// TCPProvider dials a sensor, or a serial-to-network bridge, that streams frames.
type TCPProvider struct {
	Address     string
	Delimiter   byte
	ReadTimeout time.Duration
	DialTimeout time.Duration
}

func (p *TCPProvider) Open(ctx context.Context) (ports.Transport, error) {
	timeout := p.DialTimeout
	if timeout <= 0 {
		timeout = defaultDialTimeout
	}
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", p.Address)
	if err != nil {
		return nil, fmt.Errorf("transport %s: dial: %w: %w", p.Describe(), domain.ErrTransport, err)
	}

	var opts []StreamOption
	if p.ReadTimeout > 0 {
		opts = append(opts, WithDeadline(func() error {
			return conn.SetReadDeadline(time.Now().Add(p.ReadTimeout))
		}))
	}
	return NewStream(p.Describe(), conn, p.Delimiter, opts...), nil
}

func (p *TCPProvider) Describe() string { return "tcp://" + p.Address }

var _ ports.TransportProvider = (*TCPProvider)(nil)
