package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrConfiguration reports bad or missing settings, surfaced by Initialize.
	ErrConfiguration = errors.New("sensorhub: invalid configuration")
	// ErrLifecycle reports an operation invoked from a state that does not allow it.
	ErrLifecycle = errors.New("sensorhub: invalid lifecycle transition")
	// ErrChannelDisabled is returned by data queries on a disabled channel.
	ErrChannelDisabled = errors.New("sensorhub: channel disabled")
	// ErrNotInitialized is returned when a channel has no schema yet.
	ErrNotInitialized = errors.New("sensorhub: channel not initialized")
	// ErrTransport reports an unexpected I/O failure on a transport.
	ErrTransport = errors.New("sensorhub: transport failure")
	// ErrProtocolParse reports a malformed frame. It never leaves the acquisition loop.
	ErrProtocolParse = errors.New("sensorhub: malformed frame")
	// ErrReadTimeout is returned by transports configured with a read timeout
	// when no frame arrived in time.
	ErrReadTimeout = errors.New("sensorhub: read timeout")
)

func errArity(s *Schema, got int) error {
	return fmt.Errorf("record for %q: want %d values, got %d: %w", s.Name(), s.Arity(), got, ErrProtocolParse)
}
