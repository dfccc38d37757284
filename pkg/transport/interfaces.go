package transport

import (
	"context"
	"net"
)

// Session represents one CoT connection to a server.
// Implemented by Connection.
type Session interface {
	// Connect establishes the session. The outcome is also reported
	// through the handler's OnStateChange.
	Connect(ctx context.Context, host string, port int) error

	// Send writes one serialized event message to the session.
	Send(data []byte) error

	// Disconnect tears the session down; idempotent.
	Disconnect()

	// State returns the current connection state.
	State() ConnectionState

	// Stats returns a snapshot of the connection counters.
	Stats() ConnectionStats

	// RemoteAddr returns the peer address, or nil when disconnected.
	RemoteAddr() net.Addr
}

// Compile-time interface satisfaction check.
var _ Session = (*Connection)(nil)
