package ports

import "context"

// Transport is a byte stream the acquisition loop borrows for its lifetime.
// ReadFrame blocks until one complete frame arrived; Close must unblock a
// pending ReadFrame and is safe to call more than once.
type Transport interface {
	ReadFrame() ([]byte, error)
	Close() error
}

// TransportProvider opens a fresh transport for a channel each time it starts.
type TransportProvider interface {
	Open(ctx context.Context) (Transport, error)
	Describe() string
}
