package transport

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.bug.st/serial"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

// SerialProvider opens a local serial device such as a laser rangefinder on RS-232.
type SerialProvider struct {
	Device      string
	Mode        *serial.Mode
	Delimiter   byte
	ReadTimeout time.Duration
}

func (p *SerialProvider) Open(ctx context.Context) (ports.Transport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	port, err := serial.Open(p.Device, p.Mode)
	if err != nil {
		return nil, fmt.Errorf("transport %s: open: %w: %w", p.Describe(), domain.ErrTransport, err)
	}
	if p.ReadTimeout > 0 {
		if err := port.SetReadTimeout(p.ReadTimeout); err != nil {
			_ = port.Close()
			return nil, fmt.Errorf("transport %s: set read timeout: %w: %w", p.Describe(), domain.ErrTransport, err)
		}
	}
	return NewStream(p.Describe(), timeoutPort{port}, p.Delimiter), nil
}

func (p *SerialProvider) Describe() string { return "serial://" + p.Device }

// timeoutPort reports the empty read a serial port returns when its read
// timeout elapses as ErrReadTimeout.
type timeoutPort struct {
	serial.Port
}

func (t timeoutPort) Read(b []byte) (int, error) {
	n, err := t.Port.Read(b)
	if n == 0 && err == nil {
		return 0, domain.ErrReadTimeout
	}
	return n, err
}

func (c Config) serialMode() (*serial.Mode, error) {
	mode := &serial.Mode{
		BaudRate: c.BaudRate,
		DataBits: c.DataBits,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}
	if mode.BaudRate == 0 {
		mode.BaudRate = 4800
	}
	if mode.DataBits == 0 {
		mode.DataBits = 8
	}

	switch strings.ToLower(c.Parity) {
	case "", "none":
	case "odd":
		mode.Parity = serial.OddParity
	case "even":
		mode.Parity = serial.EvenParity
	case "mark":
		mode.Parity = serial.MarkParity
	case "space":
		mode.Parity = serial.SpaceParity
	default:
		return nil, fmt.Errorf("transport serial: unknown parity %q: %w", c.Parity, domain.ErrConfiguration)
	}

	switch c.StopBits {
	case "", "1":
	case "1.5":
		mode.StopBits = serial.OnePointFiveStopBits
	case "2":
		mode.StopBits = serial.TwoStopBits
	default:
		return nil, fmt.Errorf("transport serial: unknown stop bits %q: %w", c.StopBits, domain.ErrConfiguration)
	}
	return mode, nil
}

var _ ports.TransportProvider = (*SerialProvider)(nil)
