package transport

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/omnitak/cot-go/pkg/log"
)

// Kind selects the socket transport for a connection.
type Kind int

const (
	// KindTCP is a plain TCP stream.
	KindTCP Kind = iota

	// KindUDP is a connected UDP socket (one datagram per read).
	KindUDP

	// KindTLS is TLS over TCP.
	KindTLS
)

// String returns the transport kind name.
func (k Kind) String() string {
	switch k {
	case KindTCP:
		return "TCP"
	case KindUDP:
		return "UDP"
	case KindTLS:
		return "TLS"
	default:
		return "UNKNOWN"
	}
}

// Connection states.
type ConnectionState int

const (
	// StateDisconnected indicates no connection.
	StateDisconnected ConnectionState = iota

	// StateConnecting indicates connection in progress.
	StateConnecting

	// StateConnected indicates an active connection.
	StateConnected

	// StateFailed indicates the connection ended with an error.
	// Connect is valid from this state, like Disconnected.
	StateFailed
)

// String returns the connection state name.
func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "DISCONNECTED"
	case StateConnecting:
		return "CONNECTING"
	case StateConnected:
		return "CONNECTED"
	case StateFailed:
		return "FAILED"
	default:
		return "UNKNOWN"
	}
}

// Connection errors.
var (
	ErrNotConnected     = errors.New("not connected")
	ErrAlreadyConnected = errors.New("already connected")
	ErrSessionClosed    = errors.New("session closed by peer")
)

// ConnectionConfig configures a CoT connection.
type ConnectionConfig struct {
	// Kind is the socket transport (default: TCP).
	Kind Kind

	// TLS holds TLS options, used only when Kind is KindTLS.
	TLS *TLSOptions

	// Framing selects the message delimiting convention.
	Framing FramingMode

	// ConnectTimeout bounds connection establishment (default: 30s).
	ConnectTimeout time.Duration

	// ReadTimeout is the per-read deadline (0 = no timeout).
	ReadTimeout time.Duration

	// WriteTimeout is the per-send deadline (default: 10s).
	WriteTimeout time.Duration

	// WarnThreshold and MaxBufferSize tune the framer's overflow
	// policy (0 = package defaults).
	WarnThreshold int
	MaxBufferSize int
}

// DefaultConnectionConfig returns the default connection configuration.
func DefaultConnectionConfig() ConnectionConfig {
	return ConnectionConfig{
		Kind:           KindTCP,
		Framing:        FramingAuto,
		ConnectTimeout: 30 * time.Second,
		WriteTimeout:   10 * time.Second,
	}
}

// ConnectionHandler receives connection events. Handler methods are
// invoked from the connection's read goroutine (and, for state
// changes, from Connect/Disconnect callers); implementations must not
// block for long.
type ConnectionHandler interface {
	// OnMessage is called once per complete wire message, in arrival
	// order. The slice is owned by the handler.
	OnMessage(msg []byte)

	// OnStateChange is called on every state transition. reason is
	// non-nil only for failure and peer-closure transitions.
	OnStateChange(oldState, newState ConnectionState, reason error)
}

// ConnectionStats are monotonically increasing counters for the life
// of a connection, reset on connect and by ResetStats. Safe to read
// concurrently with the read loop.
type ConnectionStats struct {
	BytesReceived    uint64
	MessagesReceived uint64
	MessagesSent     uint64
}

// Connection is one CoT session to a server. A Connection is reusable:
// after a disconnect or failure, Connect may be called again.
type Connection struct {
	config  ConnectionConfig
	handler ConnectionHandler
	framer  *Framer
	id      string

	state atomic.Int32

	// Guards conn/cancel/readDone.
	mu       sync.Mutex
	conn     net.Conn
	cancel   context.CancelFunc
	readDone chan struct{}

	writeMu sync.Mutex

	bytesReceived    atomic.Uint64
	messagesReceived atomic.Uint64
	messagesSent     atomic.Uint64

	// Tracing support (optional)
	logger log.Logger
}

// NewConnection creates a connection (not yet connected).
func NewConnection(config ConnectionConfig, handler ConnectionHandler) *Connection {
	if config.ConnectTimeout == 0 {
		config.ConnectTimeout = 30 * time.Second
	}
	if config.WriteTimeout == 0 {
		config.WriteTimeout = 10 * time.Second
	}

	framer := NewFramerWithLimits(config.WarnThreshold, config.MaxBufferSize)
	framer.SetMode(config.Framing)

	done := make(chan struct{})
	close(done)

	c := &Connection{
		config:   config,
		handler:  handler,
		framer:   framer,
		id:       uuid.New().String(),
		readDone: done,
	}
	c.state.Store(int32(StateDisconnected))

	return c
}

// SetLogger configures protocol tracing. Call before Connect.
// Pass nil to disable tracing.
func (c *Connection) SetLogger(logger log.Logger) {
	c.logger = logger
	c.framer.SetLogger(logger, c.id)
}

// ID returns the connection's unique identifier.
func (c *Connection) ID() string {
	return c.id
}

// State returns the current connection state.
func (c *Connection) State() ConnectionState {
	return ConnectionState(c.state.Load())
}

// Stats returns a snapshot of the connection counters.
func (c *Connection) Stats() ConnectionStats {
	return ConnectionStats{
		BytesReceived:    c.bytesReceived.Load(),
		MessagesReceived: c.messagesReceived.Load(),
		MessagesSent:     c.messagesSent.Load(),
	}
}

// ResetStats zeroes the connection counters.
func (c *Connection) ResetStats() {
	c.bytesReceived.Store(0)
	c.messagesReceived.Store(0)
	c.messagesSent.Store(0)
}

// RemoteAddr returns the remote network address, or nil when not
// connected.
func (c *Connection) RemoteAddr() net.Addr {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.conn != nil {
		return c.conn.RemoteAddr()
	}
	return nil
}

// Connect establishes a session to host:port. It dials, negotiates
// TLS when configured, resets statistics and starts the read loop.
// Every outcome is also reported through OnStateChange, so callers
// driven purely by the state machine may ignore the return value.
//
// Valid only from the Disconnected or Failed states; otherwise
// ErrAlreadyConnected.
func (c *Connection) Connect(ctx context.Context, host string, port int) error {
	old := c.State()
	if old != StateDisconnected && old != StateFailed {
		return ErrAlreadyConnected
	}
	if !c.state.CompareAndSwap(int32(old), int32(StateConnecting)) {
		return ErrAlreadyConnected
	}
	c.notifyStateChange(old, StateConnecting, nil)

	sessionCtx, sessionCancel := context.WithCancel(context.Background())

	c.mu.Lock()
	c.cancel = sessionCancel
	c.mu.Unlock()

	// Bound the dial with the configured timeout and abort it if
	// Disconnect is called mid-connect.
	dialCtx, dialCancel := context.WithTimeout(ctx, c.config.ConnectTimeout)
	defer dialCancel()
	stop := context.AfterFunc(sessionCtx, dialCancel)
	defer stop()

	conn, err := c.dial(dialCtx, host, port)
	if err != nil {
		sessionCancel()
		c.transition(StateConnecting, StateFailed, err)
		return fmt.Errorf("connect %s %s:%d: %w", c.config.Kind, host, port, err)
	}

	done := make(chan struct{})

	c.mu.Lock()
	if sessionCtx.Err() != nil {
		// Disconnect ran while the dial was in flight and already
		// reported the Disconnected transition. Do not install the
		// socket it can no longer see.
		c.mu.Unlock()
		conn.Close()
		return fmt.Errorf("connect %s %s:%d: %w", c.config.Kind, host, port, sessionCtx.Err())
	}
	c.conn = conn
	c.readDone = done
	c.mu.Unlock()

	c.framer.Reset()
	c.ResetStats()

	go c.readLoop(sessionCtx, conn, done)

	c.transition(StateConnecting, StateConnected, nil)

	return nil
}

// dial opens the socket for the configured transport kind.
// net.JoinHostPort plus the stock dialer resolves literal IPs
// (including bracketed IPv6) without a DNS round trip.
func (c *Connection) dial(ctx context.Context, host string, port int) (net.Conn, error) {
	address := net.JoinHostPort(host, strconv.Itoa(port))
	dialer := &net.Dialer{}

	switch c.config.Kind {
	case KindUDP:
		conn, err := dialer.DialContext(ctx, "udp", address)
		if err != nil {
			return nil, fmt.Errorf("dial failed: %w", err)
		}
		return conn, nil

	case KindTLS:
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("dial failed: %w", err)
		}
		tlsOpts := c.config.TLS
		tlsConf := NewClientTLSConfig(tlsOpts)
		if tlsConf.ServerName == "" && net.ParseIP(host) == nil {
			tlsConf.ServerName = host
		}
		tlsConn := tls.Client(conn, tlsConf)
		if err := tlsConn.HandshakeContext(ctx); err != nil {
			conn.Close()
			return nil, fmt.Errorf("TLS handshake failed: %w", err)
		}
		return tlsConn, nil

	default:
		conn, err := dialer.DialContext(ctx, "tcp", address)
		if err != nil {
			return nil, fmt.Errorf("dial failed: %w", err)
		}
		return conn, nil
	}
}

// Send writes one serialized event to the session, appending the
// single newline delimiter the protocol expects. Best-effort: fails
// fast with ErrNotConnected when the session is not established.
func (c *Connection) Send(data []byte) error {
	if c.State() != StateConnected {
		return ErrNotConnected
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()

	if conn == nil {
		return ErrNotConnected
	}

	framed := make([]byte, 0, len(data)+1)
	framed = append(framed, data...)
	framed = append(framed, '\n')

	if c.config.WriteTimeout > 0 {
		conn.SetWriteDeadline(time.Now().Add(c.config.WriteTimeout))
		defer conn.SetWriteDeadline(time.Time{})
	}

	if _, err := conn.Write(framed); err != nil {
		return fmt.Errorf("send failed: %w", err)
	}

	c.messagesSent.Add(1)
	c.traceFrame(data, log.DirectionOut)

	return nil
}

// Disconnect tears the session down. It is idempotent, valid in any
// state and safe to call concurrently with an in-flight read: when it
// returns, the read loop has exited and no further handler callbacks
// will be delivered (other than the Disconnected notification it
// emits itself).
func (c *Connection) Disconnect() {
	c.mu.Lock()
	if ConnectionState(c.state.Load()) == StateDisconnected {
		c.mu.Unlock()
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	done := c.readDone
	c.mu.Unlock()

	<-done

	c.framer.Reset()

	old := ConnectionState(c.state.Swap(int32(StateDisconnected)))
	if old != StateDisconnected {
		c.notifyStateChange(old, StateDisconnected, nil)
	}
}

// readLoop continuously reads from the socket and feeds the framer.
// One loop per connection; messages are therefore extracted, decoded
// and dispatched strictly in arrival order.
func (c *Connection) readLoop(ctx context.Context, conn net.Conn, done chan struct{}) {
	defer close(done)

	buf := make([]byte, 4096)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if c.config.ReadTimeout > 0 {
			conn.SetReadDeadline(time.Now().Add(c.config.ReadTimeout))
		}

		n, err := conn.Read(buf)
		if n > 0 {
			c.bytesReceived.Add(uint64(n))
			for _, msg := range c.framer.Feed(buf[:n]) {
				if ctx.Err() != nil {
					return
				}
				c.messagesReceived.Add(1)
				c.handler.OnMessage(msg)
			}
		}

		if err != nil {
			if ctx.Err() != nil {
				// Disconnect in progress; it reports the transition.
				return
			}
			c.teardown(err)
			return
		}
	}
}

// teardown handles a mid-session read failure: peer closure maps to a
// clean Disconnected transition, anything else to Failed. Either way
// the subscriber is guaranteed a terminal notification with a reason.
func (c *Connection) teardown(err error) {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
	}
	if c.conn != nil {
		c.conn.Close()
		c.conn = nil
	}
	c.mu.Unlock()

	c.framer.Reset()

	next := StateFailed
	reason := err
	if errors.Is(err, io.EOF) {
		next = StateDisconnected
		reason = ErrSessionClosed
	}

	old := ConnectionState(c.state.Swap(int32(next)))
	if old != next {
		c.notifyStateChange(old, next, reason)
	}
}

// transition moves from -> to with notification, tolerating a
// concurrent Disconnect having moved the state already.
func (c *Connection) transition(from, to ConnectionState, reason error) {
	if !c.state.CompareAndSwap(int32(from), int32(to)) {
		return
	}
	c.notifyStateChange(from, to, reason)
}

// notifyStateChange delivers a state change to the handler and trace.
func (c *Connection) notifyStateChange(from, to ConnectionState, reason error) {
	if c.logger != nil {
		sc := &log.StateChangeEvent{
			OldState: from.String(),
			NewState: to.String(),
		}
		if reason != nil {
			sc.Reason = reason.Error()
		}
		c.logger.Log(log.Event{
			Timestamp:    time.Now(),
			ConnectionID: c.id,
			Layer:        log.LayerTransport,
			Category:     log.CategoryState,
			StateChange:  sc,
		})
	}

	if c.handler != nil {
		c.handler.OnStateChange(from, to, reason)
	}
}

// traceFrame records an outbound message in the trace.
func (c *Connection) traceFrame(data []byte, dir log.Direction) {
	if c.logger == nil {
		return
	}

	frameData := data
	truncated := false
	if len(frameData) > MaxTraceFrameSize {
		frameData = frameData[:MaxTraceFrameSize]
		truncated = true
	}

	c.logger.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: c.id,
		Direction:    dir,
		Layer:        log.LayerTransport,
		Category:     log.CategoryMessage,
		Frame: &log.FrameEvent{
			Size:      len(data),
			Data:      frameData,
			Truncated: truncated,
		},
	})
}
