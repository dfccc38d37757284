package transport

import (
	"bufio"
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"errors"
	"math/big"
	"net"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/omnitak/cot-go/pkg/cot"
)

// testHandler records messages and state transitions.
type testHandler struct {
	mu          sync.Mutex
	messages    []string
	transitions []string
	reasons     []error

	msgCh   chan string
	stateCh chan ConnectionState
}

func newTestHandler() *testHandler {
	return &testHandler{
		msgCh:   make(chan string, 64),
		stateCh: make(chan ConnectionState, 64),
	}
}

func (h *testHandler) OnMessage(msg []byte) {
	h.mu.Lock()
	h.messages = append(h.messages, string(msg))
	h.mu.Unlock()
	h.msgCh <- string(msg)
}

func (h *testHandler) OnStateChange(oldState, newState ConnectionState, reason error) {
	h.mu.Lock()
	h.transitions = append(h.transitions, oldState.String()+">"+newState.String())
	h.reasons = append(h.reasons, reason)
	h.mu.Unlock()
	h.stateCh <- newState
}

func (h *testHandler) waitState(t *testing.T, want ConnectionState) {
	t.Helper()
	deadline := time.After(5 * time.Second)
	for {
		select {
		case got := <-h.stateCh:
			if got == want {
				return
			}
		case <-deadline:
			t.Fatalf("timed out waiting for state %s", want)
		}
	}
}

func (h *testHandler) waitMessage(t *testing.T) string {
	t.Helper()
	select {
	case msg := <-h.msgCh:
		return msg
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for message")
		return ""
	}
}

// startTCPServer runs serve for each accepted connection and returns
// the listen address.
func startTCPServer(t *testing.T, serve func(net.Conn)) (string, int) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serve(conn)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return "127.0.0.1", addr.Port
}

func TestConnectionLifecycle(t *testing.T) {
	host, port := startTCPServer(t, func(conn net.Conn) {
		// Hold the connection open until the client leaves.
		buf := make([]byte, 256)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	})

	handler := newTestHandler()
	c := NewConnection(DefaultConnectionConfig(), handler)

	if c.State() != StateDisconnected {
		t.Fatalf("initial state = %s", c.State())
	}

	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	handler.waitState(t, StateConnected)

	if c.RemoteAddr() == nil {
		t.Error("RemoteAddr() = nil while connected")
	}

	c.Disconnect()
	handler.waitState(t, StateDisconnected)

	handler.mu.Lock()
	got := strings.Join(handler.transitions, " ")
	handler.mu.Unlock()
	want := "DISCONNECTED>CONNECTING CONNECTING>CONNECTED CONNECTED>DISCONNECTED"
	if got != want {
		t.Errorf("transitions = %q, want %q", got, want)
	}
}

func TestConnectionReceivesFragmentedStream(t *testing.T) {
	full := testEvent + "\n" + testEvent + "\n"
	host, port := startTCPServer(t, func(conn net.Conn) {
		// Push the stream in awkward fragments.
		for i := 0; i < len(full); i += 7 {
			end := i + 7
			if end > len(full) {
				end = len(full)
			}
			conn.Write([]byte(full[i:end]))
			time.Sleep(time.Millisecond)
		}
		// Keep open; the client disconnects.
		buf := make([]byte, 16)
		conn.Read(buf)
	})

	handler := newTestHandler()
	c := NewConnection(DefaultConnectionConfig(), handler)
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	for i := 0; i < 2; i++ {
		if msg := handler.waitMessage(t); msg != testEvent {
			t.Errorf("message %d = %q", i, msg)
		}
	}

	stats := c.Stats()
	if stats.MessagesReceived != 2 {
		t.Errorf("MessagesReceived = %d, want 2", stats.MessagesReceived)
	}
	if stats.BytesReceived == 0 {
		t.Error("BytesReceived = 0")
	}
}

func TestConnectionSend(t *testing.T) {
	received := make(chan string, 1)
	host, port := startTCPServer(t, func(conn net.Conn) {
		line, err := bufio.NewReader(conn).ReadString('\n')
		if err == nil {
			received <- line
		}
	})

	handler := newTestHandler()
	c := NewConnection(DefaultConnectionConfig(), handler)
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	if err := c.Send([]byte(testEvent)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case line := <-received:
		if line != testEvent+"\n" {
			t.Errorf("server received %q", line)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server never received the message")
	}

	if got := c.Stats().MessagesSent; got != 1 {
		t.Errorf("MessagesSent = %d, want 1", got)
	}
}

func TestConnectionSendNotConnected(t *testing.T) {
	c := NewConnection(DefaultConnectionConfig(), newTestHandler())
	if err := c.Send([]byte(testEvent)); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Send() error = %v, want ErrNotConnected", err)
	}
}

func TestConnectionConnectRefused(t *testing.T) {
	// Grab a port and close it so nothing listens there.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	port := ln.Addr().(*net.TCPAddr).Port
	ln.Close()

	handler := newTestHandler()
	config := DefaultConnectionConfig()
	config.ConnectTimeout = 2 * time.Second
	c := NewConnection(config, handler)

	if err := c.Connect(context.Background(), "127.0.0.1", port); err == nil {
		t.Fatal("Connect() to closed port succeeded")
	}
	handler.waitState(t, StateFailed)

	if c.State() != StateFailed {
		t.Errorf("state = %s, want FAILED", c.State())
	}

	handler.mu.Lock()
	lastReason := handler.reasons[len(handler.reasons)-1]
	handler.mu.Unlock()
	if lastReason == nil {
		t.Error("failure transition carried no reason")
	}
}

func TestConnectionPeerClose(t *testing.T) {
	host, port := startTCPServer(t, func(conn net.Conn) {
		conn.Write([]byte(testEvent + "\n"))
		conn.Close()
	})

	handler := newTestHandler()
	c := NewConnection(DefaultConnectionConfig(), handler)
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	// Data before the close must still be delivered.
	if msg := handler.waitMessage(t); msg != testEvent {
		t.Errorf("message = %q", msg)
	}

	handler.waitState(t, StateDisconnected)

	handler.mu.Lock()
	lastReason := handler.reasons[len(handler.reasons)-1]
	handler.mu.Unlock()
	if !errors.Is(lastReason, ErrSessionClosed) {
		t.Errorf("reason = %v, want ErrSessionClosed", lastReason)
	}
}

func TestConnectionDoubleConnect(t *testing.T) {
	host, port := startTCPServer(t, func(conn net.Conn) {
		buf := make([]byte, 16)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	})

	handler := newTestHandler()
	c := NewConnection(DefaultConnectionConfig(), handler)
	if err := c.Connect(context.Background(), host, port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	if err := c.Connect(context.Background(), host, port); !errors.Is(err, ErrAlreadyConnected) {
		t.Errorf("second Connect() error = %v, want ErrAlreadyConnected", err)
	}
}

// floodHandler counts messages without blocking the read loop, and
// separately counts any that arrive after Disconnect has returned.
type floodHandler struct {
	received     atomic.Int64
	disconnected atomic.Bool
	late         atomic.Int64
}

func (h *floodHandler) OnMessage(msg []byte) {
	if h.disconnected.Load() {
		h.late.Add(1)
		return
	}
	h.received.Add(1)
}

func (h *floodHandler) OnStateChange(oldState, newState ConnectionState, reason error) {}

func TestConnectionNoMessageAfterDisconnect(t *testing.T) {
	host, port := startTCPServer(t, func(conn net.Conn) {
		// Flood until the client drops the connection.
		frame := []byte(testEvent + "\n")
		for {
			if _, err := conn.Write(frame); err != nil {
				return
			}
		}
	})

	for i := 0; i < 10; i++ {
		handler := &floodHandler{}
		c := NewConnection(DefaultConnectionConfig(), handler)
		if err := c.Connect(context.Background(), host, port); err != nil {
			t.Fatalf("iteration %d: Connect() error = %v", i, err)
		}

		// Wait until the flood is mid-flight.
		deadline := time.Now().Add(5 * time.Second)
		for handler.received.Load() == 0 {
			if time.Now().After(deadline) {
				t.Fatalf("iteration %d: no messages arrived", i)
			}
			time.Sleep(time.Millisecond)
		}

		c.Disconnect()
		handler.disconnected.Store(true)

		time.Sleep(50 * time.Millisecond)
		if n := handler.late.Load(); n != 0 {
			t.Fatalf("iteration %d: %d messages delivered after Disconnect returned", i, n)
		}
	}
}

func TestConnectionDisconnectIdempotent(t *testing.T) {
	c := NewConnection(DefaultConnectionConfig(), newTestHandler())
	c.Disconnect()
	c.Disconnect()
	if c.State() != StateDisconnected {
		t.Errorf("state = %s", c.State())
	}
}

func TestConnectionReconnect(t *testing.T) {
	host, port := startTCPServer(t, func(conn net.Conn) {
		buf := make([]byte, 16)
		for {
			if _, err := conn.Read(buf); err != nil {
				return
			}
		}
	})

	handler := newTestHandler()
	c := NewConnection(DefaultConnectionConfig(), handler)

	for i := 0; i < 2; i++ {
		if err := c.Connect(context.Background(), host, port); err != nil {
			t.Fatalf("Connect() #%d error = %v", i+1, err)
		}
		handler.waitState(t, StateConnected)
		c.Disconnect()
		handler.waitState(t, StateDisconnected)
	}
}

func TestConnectionUDP(t *testing.T) {
	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer pc.Close()
	port := pc.LocalAddr().(*net.UDPAddr).Port

	received := make(chan string, 1)
	go func() {
		buf := make([]byte, 2048)
		n, _, err := pc.ReadFrom(buf)
		if err == nil {
			received <- string(buf[:n])
		}
	}()

	handler := newTestHandler()
	config := DefaultConnectionConfig()
	config.Kind = KindUDP
	c := NewConnection(config, handler)

	if err := c.Connect(context.Background(), "127.0.0.1", port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	if err := c.Send([]byte(testEvent)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}

	select {
	case got := <-received:
		if got != testEvent+"\n" {
			t.Errorf("datagram = %q", got)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("datagram never arrived")
	}
}

// selfSignedCert generates an in-memory server certificate for
// 127.0.0.1.
func selfSignedCert(t *testing.T) tls.Certificate {
	t.Helper()

	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}

	template := x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "takserver-test"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		IPAddresses:  []net.IP{net.ParseIP("127.0.0.1")},
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}

	return tls.Certificate{
		Certificate: [][]byte{der},
		PrivateKey:  key,
	}
}

func TestConnectionTLS(t *testing.T) {
	cert := selfSignedCert(t)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	port := ln.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				conn.Write([]byte(testEvent + "\n"))
				// Echo one line back.
				line, err := bufio.NewReader(conn).ReadString('\n')
				if err == nil {
					conn.Write([]byte(line))
				}
			}(conn)
		}
	}()

	handler := newTestHandler()
	config := DefaultConnectionConfig()
	config.Kind = KindTLS
	config.TLS = &TLSOptions{Trust: TrustAcceptAll, AllowLegacy: true}
	c := NewConnection(config, handler)

	if err := c.Connect(context.Background(), "127.0.0.1", port); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}
	defer c.Disconnect()

	if msg := handler.waitMessage(t); msg != testEvent {
		t.Errorf("pushed message = %q", msg)
	}

	if err := c.Send([]byte(testEvent)); err != nil {
		t.Fatalf("Send() error = %v", err)
	}
	echoed := handler.waitMessage(t)
	if echoed != testEvent {
		t.Errorf("echoed message = %q", echoed)
	}
	evt, err := cot.Decode([]byte(echoed))
	if err != nil {
		t.Fatalf("Decode(echoed) error = %v", err)
	}
	if evt.UID != "U-1" {
		t.Errorf("echoed uid = %q", evt.UID)
	}
}

func TestConnectionTLSVerifyFailsSelfSigned(t *testing.T) {
	cert := selfSignedCert(t)

	ln, err := tls.Listen("tcp", "127.0.0.1:0", &tls.Config{
		Certificates: []tls.Certificate{cert},
	})
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ln.Close() })
	port := ln.Addr().(*net.TCPAddr).Port

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			conn.Close()
		}
	}()

	handler := newTestHandler()
	config := DefaultConnectionConfig()
	config.Kind = KindTLS
	config.ConnectTimeout = 2 * time.Second
	config.TLS = &TLSOptions{Trust: TrustSystem}
	c := NewConnection(config, handler)

	if err := c.Connect(context.Background(), "127.0.0.1", port); err == nil {
		t.Fatal("system trust accepted a self-signed server")
	}
	if c.State() != StateFailed {
		t.Errorf("state = %s, want FAILED", c.State())
	}
}
