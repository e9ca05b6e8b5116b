// Package transport provides byte-stream transports that split their input
// into delimiter-terminated frames.
package transport

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"sync"

	"github.com/ghalamif/SensorHub/internal/domain"
	"github.com/ghalamif/SensorHub/internal/ports"
)

const maxFrameBytes = 64 << 10

// Stream frames an io.ReadCloser on a single delimiter byte. A trailing '\r'
// is trimmed. Close is idempotent and unblocks a pending read when the
// underlying reader supports it.
type Stream struct {
	name     string
	rc       io.ReadCloser
	r        *bufio.Reader
	delim    byte
	deadline func() error
	pending  []byte

	closeOnce sync.Once
	closeErr  error
}

// StreamOption customizes a Stream.
type StreamOption func(*Stream)

// WithDeadline runs arm before every read, typically to set a read deadline.
func WithDeadline(arm func() error) StreamOption {
	return func(s *Stream) { s.deadline = arm }
}

func NewStream(name string, rc io.ReadCloser, delim byte, opts ...StreamOption) *Stream {
	s := &Stream{
		name:  name,
		rc:    rc,
		r:     bufio.NewReader(rc),
		delim: delim,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ReadFrame returns the next frame without its delimiter. Empty lines are skipped.
func (s *Stream) ReadFrame() ([]byte, error) {
	for {
		if s.deadline != nil {
			if err := s.deadline(); err != nil {
				return nil, s.wrap(err)
			}
		}
		chunk, err := s.r.ReadSlice(s.delim)
		if len(chunk) > 0 || err == nil {
			s.pending = append(s.pending, chunk...)
		}
		switch {
		case err == nil:
		case errors.Is(err, bufio.ErrBufferFull):
			if len(s.pending) > maxFrameBytes {
				s.pending = s.pending[:0]
				return nil, fmt.Errorf("transport %s: frame exceeds %d bytes: %w", s.name, maxFrameBytes, domain.ErrTransport)
			}
			continue
		case errors.Is(err, io.EOF) && len(s.pending) > 0:
			// Flush an unterminated last frame; the next call reports EOF.
		default:
			// A timed-out read keeps its partial frame for the next call.
			return nil, s.wrap(err)
		}

		frame := bytes.TrimSuffix(s.pending, []byte{s.delim})
		frame = bytes.TrimSuffix(frame, []byte{'\r'})
		out := make([]byte, len(frame))
		copy(out, frame)
		s.pending = s.pending[:0]
		if len(out) == 0 {
			continue
		}
		return out, nil
	}
}

func (s *Stream) Close() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.rc.Close()
	})
	return s.closeErr
}

func (s *Stream) wrap(err error) error {
	if isTimeout(err) {
		return fmt.Errorf("transport %s: %w", s.name, domain.ErrReadTimeout)
	}
	if errors.Is(err, domain.ErrTransport) {
		return err
	}
	return fmt.Errorf("transport %s: read: %w: %w", s.name, domain.ErrTransport, err)
}

func isTimeout(err error) bool {
	if errors.Is(err, domain.ErrReadTimeout) || errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

var _ ports.Transport = (*Stream)(nil)
