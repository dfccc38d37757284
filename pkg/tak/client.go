package tak

import (
	"context"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/omnitak/cot-go/pkg/cot"
	"github.com/omnitak/cot-go/pkg/dispatch"
	"github.com/omnitak/cot-go/pkg/log"
	"github.com/omnitak/cot-go/pkg/transport"
)

// RawMessageFunc receives every complete wire frame before decoding.
type RawMessageFunc func(msg []byte)

// StateChangeFunc receives connection state transitions.
type StateChangeFunc func(oldState, newState transport.ConnectionState, reason error)

// Client is a CoT streaming client. It owns one connection to a TAK
// server, decodes and dispatches incoming events, and sends position
// and chat traffic for the configured callsign.
type Client struct {
	mu sync.RWMutex

	config Config
	uid    string

	conn       *transport.Connection
	dispatcher *dispatch.Dispatcher
	beacon     *transport.Beacon

	logger    *slog.Logger
	trace     log.Logger
	traceFile *log.FileLogger

	// Last self position, fed to the beacon.
	selfLat, selfLon, selfHAE float64
	selfSet                   bool

	rawHandlers   []RawMessageFunc
	stateHandlers []StateChangeFunc

	// Reconnect bookkeeping.
	reconnectCancel context.CancelFunc
	retries         int
	wantConnected   bool
}

// NewClient creates a client from the config. The slog logger is used
// for operational messages; pass nil for slog.Default().
func NewClient(config Config, logger *slog.Logger) (*Client, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = slog.Default()
	}

	c := &Client{
		config: config,
		uid:    config.UID,
		logger: logger,
	}
	if c.uid == "" {
		c.uid = "OMNITAK-" + uuid.New().String()
	}

	trace, traceFile, err := buildTraceLogger(config, logger)
	if err != nil {
		return nil, err
	}
	c.trace = trace
	c.traceFile = traceFile

	c.dispatcher = dispatch.New(dispatch.HistoryConfig{
		MinDistance: config.History.MinDistance,
		MinInterval: config.History.MinInterval,
		MaxSamples:  config.History.MaxSamples,
		MaxAge:      config.History.MaxAge,
	})

	connConfig := transport.DefaultConnectionConfig()
	connConfig.Kind = config.transportKind()
	if connConfig.Kind == transport.KindTLS {
		tlsOpts, err := config.tlsOptions()
		if err != nil {
			return nil, err
		}
		connConfig.TLS = &tlsOpts
	}
	c.conn = transport.NewConnection(connConfig, c)
	c.conn.SetLogger(c.trace)
	c.dispatcher.SetLogger(c.trace, c.conn.ID())

	if config.Beacon.Enabled {
		interval := config.Beacon.Interval
		if interval <= 0 {
			interval = transport.DefaultBeaconInterval
		}
		c.beacon = transport.NewBeacon(interval, c.beaconEvent, c.SendEvent)
	}

	return c, nil
}

// buildTraceLogger assembles the trace logging chain: debug-level slog
// always, plus a CBOR file when configured.
func buildTraceLogger(config Config, logger *slog.Logger) (log.Logger, *log.FileLogger, error) {
	slogTrace := log.NewSlogAdapter(logger)
	if config.TraceFile == "" {
		return slogTrace, nil, nil
	}
	file, err := log.NewFileLoggerWithLimit(config.TraceFile, config.TraceMaxSize)
	if err != nil {
		return nil, nil, err
	}
	return log.NewMultiLogger(slogTrace, file), file, nil
}

// UID returns the client's unit identifier.
func (c *Client) UID() string {
	return c.uid
}

// Callsign returns the configured callsign.
func (c *Client) Callsign() string {
	return c.config.Callsign
}

// History exposes the per-unit position history.
func (c *Client) History() *dispatch.History {
	return c.dispatcher.History()
}

// State returns the connection state.
func (c *Client) State() transport.ConnectionState {
	return c.conn.State()
}

// Stats returns the connection counters.
func (c *Client) Stats() transport.ConnectionStats {
	return c.conn.Stats()
}

// AddSink registers a classified-event sink with the dispatcher.
func (c *Client) AddSink(s dispatch.Sink) {
	c.dispatcher.AddSink(s)
}

// OnRawMessage registers a handler for raw wire frames. Handlers run
// on the read goroutine before decoding.
func (c *Client) OnRawMessage(fn RawMessageFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rawHandlers = append(c.rawHandlers, fn)
}

// OnConnectionState registers a handler for state transitions.
func (c *Client) OnConnectionState(fn StateChangeFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stateHandlers = append(c.stateHandlers, fn)
}

// Connect establishes the session and starts the beacon. With
// auto-reconnect enabled, subsequent failures trigger reconnection
// with backoff until Disconnect is called.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	c.wantConnected = true
	c.retries = 0
	c.mu.Unlock()

	if err := c.conn.Connect(ctx, c.config.Server.Host, c.config.Server.Port); err != nil {
		// The failure transition may already have scheduled a
		// reconnect attempt. The caller got an error, so cancel it.
		c.mu.Lock()
		c.wantConnected = false
		if c.reconnectCancel != nil {
			c.reconnectCancel()
			c.reconnectCancel = nil
		}
		c.mu.Unlock()
		return err
	}

	if c.beacon != nil {
		c.beacon.Start(context.Background())
	}
	return nil
}

// Disconnect tears down the session and stops the beacon and any
// pending reconnect.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.wantConnected = false
	if c.reconnectCancel != nil {
		c.reconnectCancel()
		c.reconnectCancel = nil
	}
	c.mu.Unlock()

	if c.beacon != nil {
		c.beacon.Stop()
	}
	c.conn.Disconnect()
}

// Close releases resources after use. The client cannot be reused.
func (c *Client) Close() error {
	c.Disconnect()
	if c.traceFile != nil {
		return c.traceFile.Close()
	}
	return nil
}

// SendEvent encodes and sends one event.
func (c *Client) SendEvent(evt *cot.Event) error {
	data, err := evt.Marshal()
	if err != nil {
		return err
	}
	return c.conn.Send(data)
}

// SetPosition updates the client's own position. The next beacon tick
// reports it; call SendPosition to report immediately.
func (c *Client) SetPosition(lat, lon, hae float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selfLat, c.selfLon, c.selfHAE = lat, lon, hae
	c.selfSet = true
}

// SendPosition updates and immediately reports the client's position.
func (c *Client) SendPosition(lat, lon, hae float64) error {
	c.SetPosition(lat, lon, hae)
	evt := c.selfEvent(lat, lon, hae)
	return c.SendEvent(evt)
}

// SendChat sends a GeoChat message to a room. Use
// cot.ChatRoomAll for broadcast.
func (c *Client) SendChat(room, message string) error {
	evt := cot.NewChatEvent(c.uid, c.config.Callsign, room, message)
	return c.SendEvent(evt)
}

// selfEvent builds the self position report with team and device
// detail filled in from the config.
func (c *Client) selfEvent(lat, lon, hae float64) *cot.Event {
	evt := cot.NewPositionEvent(c.uid, c.config.Callsign, lat, lon, hae)
	evt.Detail.Team = c.config.Team
	evt.Detail.Role = c.config.Role
	evt.Detail.Platform = "cot-go"
	return evt
}

// beaconEvent is the beacon's event source. Nil until a position has
// been set, so the beacon stays silent before the first fix.
func (c *Client) beaconEvent() *cot.Event {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.selfSet {
		return nil
	}
	return c.selfEvent(c.selfLat, c.selfLon, c.selfHAE)
}

// OnMessage implements transport.ConnectionHandler. Frames that fail
// to decode are logged and skipped.
func (c *Client) OnMessage(msg []byte) {
	c.mu.RLock()
	raw := c.rawHandlers
	c.mu.RUnlock()
	for _, fn := range raw {
		fn(msg)
	}

	evt, err := cot.Decode(msg)
	if err != nil {
		c.logger.Debug("dropping undecodable message",
			"error", err,
			"size", len(msg))
		return
	}
	c.dispatcher.Dispatch(evt)
}

// OnStateChange implements transport.ConnectionHandler.
func (c *Client) OnStateChange(oldState, newState transport.ConnectionState, reason error) {
	c.logger.Info("connection state changed",
		"from", oldState.String(),
		"to", newState.String(),
		"reason", reason)

	c.mu.RLock()
	handlers := c.stateHandlers
	c.mu.RUnlock()
	for _, fn := range handlers {
		fn(oldState, newState, reason)
	}

	if newState == transport.StateFailed || newState == transport.StateDisconnected {
		if c.beacon != nil {
			c.beacon.Stop()
		}
		c.maybeReconnect()
	}
	if newState == transport.StateConnected {
		c.mu.Lock()
		c.retries = 0
		c.mu.Unlock()
	}
}

// maybeReconnect schedules a reconnect attempt when auto-reconnect is
// on and the client has not been disconnected deliberately.
func (c *Client) maybeReconnect() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.config.Reconnect.Enabled || !c.wantConnected {
		return
	}
	if c.config.Reconnect.MaxRetries > 0 && c.retries >= c.config.Reconnect.MaxRetries {
		c.logger.Warn("giving up reconnecting",
			"attempts", c.retries)
		c.wantConnected = false
		return
	}

	delay := c.backoffDelay(c.retries)
	c.retries++

	ctx, cancel := context.WithCancel(context.Background())
	if c.reconnectCancel != nil {
		c.reconnectCancel()
	}
	c.reconnectCancel = cancel

	attempt := c.retries
	c.logger.Info("scheduling reconnect",
		"attempt", attempt,
		"delay", delay)

	go func() {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return
		}

		// Disconnect may have raced the delay.
		c.mu.RLock()
		want := c.wantConnected
		c.mu.RUnlock()
		if !want {
			return
		}

		err := c.conn.Connect(ctx, c.config.Server.Host, c.config.Server.Port)
		if err != nil {
			c.logger.Warn("reconnect attempt failed",
				"attempt", attempt,
				"error", err)
			// Failure already drove a state change, which
			// scheduled the next attempt.
			return
		}
		if c.beacon != nil {
			c.beacon.Start(context.Background())
		}
	}()
}

// backoffDelay computes the exponential backoff delay for an attempt.
func (c *Client) backoffDelay(attempt int) time.Duration {
	initial := c.config.Reconnect.InitialInterval
	if initial <= 0 {
		initial = time.Second
	}
	maxDelay := c.config.Reconnect.MaxInterval
	if maxDelay <= 0 {
		maxDelay = time.Minute
	}
	multiplier := c.config.Reconnect.Multiplier
	if multiplier < 1.0 {
		multiplier = 2.0
	}

	delay := time.Duration(float64(initial) * math.Pow(multiplier, float64(attempt)))
	if delay > maxDelay || delay <= 0 {
		delay = maxDelay
	}
	return delay
}
