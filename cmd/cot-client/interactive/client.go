// Package interactive provides the interactive command-line interface
// for the CoT client.
package interactive

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/omnitak/cot-go/pkg/cot"
	"github.com/omnitak/cot-go/pkg/discovery"
	"github.com/omnitak/cot-go/pkg/dispatch"
	"github.com/omnitak/cot-go/pkg/tak"
	"github.com/omnitak/cot-go/pkg/transport"
)

// Session handles interactive mode for cot-client.
type Session struct {
	client  *tak.Client
	browser *discovery.Browser
	rl      *readline.Instance
}

// New creates a new interactive session handler and hooks it up as an
// event sink so incoming traffic is printed above the prompt.
func New(client *tak.Client) (*Session, error) {
	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "cot> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create readline: %w", err)
	}

	s := &Session{
		client:  client,
		browser: discovery.NewBrowser(discovery.BrowserConfig{}),
		rl:      rl,
	}

	client.AddSink(s)
	client.OnConnectionState(s.handleStateChange)

	return s, nil
}

// Stdout returns a writer that properly coordinates with the readline
// input. Use this for log output to avoid interfering with the prompt.
func (s *Session) Stdout() io.Writer {
	return s.rl.Stdout()
}

// Run starts the interactive command loop.
func (s *Session) Run(ctx context.Context, cancel context.CancelFunc) {
	defer s.rl.Close()

	s.printHelp()

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		line, err := s.rl.Readline()
		if err != nil {
			// EOF or interrupt
			if err == readline.ErrInterrupt {
				continue
			}
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return
		}

		input := strings.TrimSpace(line)
		if input == "" {
			continue
		}

		parts := strings.Fields(input)
		cmd := strings.ToLower(parts[0])
		args := parts[1:]

		switch cmd {
		case "help", "?":
			s.printHelp()

		case "connect":
			s.cmdConnect(ctx)

		case "disconnect":
			s.cmdDisconnect()

		case "status":
			s.cmdStatus()

		case "stats":
			s.cmdStats()

		case "position", "pos":
			s.cmdPosition(args)

		case "chat":
			s.cmdChat(args)

		case "units", "ls":
			s.cmdUnits()

		case "track", "t":
			s.cmdTrack(args)

		case "discover":
			s.cmdDiscover(ctx)

		case "quit", "exit", "q":
			fmt.Fprintln(s.rl.Stdout(), "Exiting...")
			cancel()
			return

		default:
			fmt.Fprintf(s.rl.Stdout(), "Unknown command: %s (type 'help' for commands)\n", cmd)
		}
	}
}

func (s *Session) printHelp() {
	fmt.Fprintln(s.rl.Stdout(), `
CoT Client Commands:
  Connection:
    connect            - Connect to the configured server
    disconnect         - Close the connection
    status             - Show connection state
    stats              - Show traffic counters
    discover           - Browse for CoT servers on the LAN

  Traffic:
    position <lat> <lon> [hae] - Report own position
    chat <room> <message...>   - Send a chat message ("all" broadcasts)

  Situation:
    units              - List tracked units
    track <uid>        - Show position history for a unit

  General:
    help               - Show this help
    quit               - Exit`)
}

// cmdConnect handles the connect command.
func (s *Session) cmdConnect(ctx context.Context) {
	fmt.Fprintln(s.rl.Stdout(), "Connecting...")
	if err := s.client.Connect(ctx); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Connect failed: %v\n", err)
		return
	}
	fmt.Fprintln(s.rl.Stdout(), "Connected.")
}

// cmdDisconnect handles the disconnect command.
func (s *Session) cmdDisconnect() {
	s.client.Disconnect()
	fmt.Fprintln(s.rl.Stdout(), "Disconnected.")
}

// cmdStatus handles the status command.
func (s *Session) cmdStatus() {
	fmt.Fprintf(s.rl.Stdout(), "Callsign: %s\n", s.client.Callsign())
	fmt.Fprintf(s.rl.Stdout(), "UID:      %s\n", s.client.UID())
	fmt.Fprintf(s.rl.Stdout(), "State:    %s\n", s.client.State())
}

// cmdStats handles the stats command.
func (s *Session) cmdStats() {
	stats := s.client.Stats()
	fmt.Fprintf(s.rl.Stdout(), "Bytes received:    %d\n", stats.BytesReceived)
	fmt.Fprintf(s.rl.Stdout(), "Messages received: %d\n", stats.MessagesReceived)
	fmt.Fprintf(s.rl.Stdout(), "Messages sent:     %d\n", stats.MessagesSent)
}

// cmdPosition handles the position command.
func (s *Session) cmdPosition(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: position <lat> <lon> [hae]")
		return
	}

	lat, err := strconv.ParseFloat(args[0], 64)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid latitude: %v\n", err)
		return
	}
	lon, err := strconv.ParseFloat(args[1], 64)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Invalid longitude: %v\n", err)
		return
	}
	hae := 0.0
	if len(args) > 2 {
		hae, err = strconv.ParseFloat(args[2], 64)
		if err != nil {
			fmt.Fprintf(s.rl.Stdout(), "Invalid altitude: %v\n", err)
			return
		}
	}

	if err := s.client.SendPosition(lat, lon, hae); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "Position reported: %.6f, %.6f (%.0fm)\n", lat, lon, hae)
}

// cmdChat handles the chat command.
func (s *Session) cmdChat(args []string) {
	if len(args) < 2 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: chat <room> <message...>")
		fmt.Fprintln(s.rl.Stdout(), "  Use \"all\" as room for broadcast")
		return
	}

	room := args[0]
	if strings.EqualFold(room, "all") {
		room = cot.ChatRoomAll
	}
	message := strings.Join(args[1:], " ")

	if err := s.client.SendChat(room, message); err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Send failed: %v\n", err)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "[%s] %s: %s\n", room, s.client.Callsign(), message)
}

// cmdUnits handles the units command.
func (s *Session) cmdUnits() {
	uids := s.client.History().Units()
	if len(uids) == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No units tracked.")
		return
	}

	for _, uid := range uids {
		last, ok := s.client.History().Last(uid)
		if !ok {
			continue
		}
		age := time.Since(last.Time).Round(time.Second)
		fmt.Fprintf(s.rl.Stdout(), "  %-40s %.6f, %.6f  (%s ago)\n",
			uid, last.Lat, last.Lon, age)
	}
}

// cmdTrack handles the track command.
func (s *Session) cmdTrack(args []string) {
	if len(args) < 1 {
		fmt.Fprintln(s.rl.Stdout(), "Usage: track <uid>")
		return
	}

	samples := s.client.History().Samples(args[0])
	if len(samples) == 0 {
		fmt.Fprintf(s.rl.Stdout(), "No history for %s\n", args[0])
		return
	}

	for _, sample := range samples {
		fmt.Fprintf(s.rl.Stdout(), "  %s  %.6f, %.6f  %.0fm\n",
			sample.Time.Format("15:04:05"), sample.Lat, sample.Lon, sample.HAE)
	}
	fmt.Fprintf(s.rl.Stdout(), "%d samples\n", len(samples))
}

// cmdDiscover handles the discover command.
func (s *Session) cmdDiscover(ctx context.Context) {
	fmt.Fprintln(s.rl.Stdout(), "Browsing for CoT servers (5s)...")

	browseCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	servers, err := s.browser.Browse(browseCtx)
	if err != nil {
		fmt.Fprintf(s.rl.Stdout(), "Browse failed: %v\n", err)
		return
	}

	found := 0
	for srv := range servers {
		found++
		proto := srv.Proto
		if proto == "" {
			proto = "tcp?"
		}
		fmt.Fprintf(s.rl.Stdout(), "  %-24s %s:%d (%s)\n",
			srv.Instance, srv.Addr(), srv.Port, proto)
	}

	if found == 0 {
		fmt.Fprintln(s.rl.Stdout(), "No servers found.")
	}
}

// handleStateChange prints connection transitions above the prompt.
func (s *Session) handleStateChange(oldState, newState transport.ConnectionState, reason error) {
	if reason != nil {
		fmt.Fprintf(s.rl.Stdout(), "* connection %s -> %s (%v)\n", oldState, newState, reason)
		return
	}
	fmt.Fprintf(s.rl.Stdout(), "* connection %s -> %s\n", oldState, newState)
}

// OnEvent implements dispatch.Sink.
func (s *Session) OnEvent(evt *cot.Event) {
	callsign := evt.Detail.Callsign
	if callsign == "" {
		callsign = evt.UID
	}
	fmt.Fprintf(s.rl.Stdout(), "* %s at %.6f, %.6f (%s)\n",
		callsign, evt.Point.Lat, evt.Point.Lon, evt.Type)
}

// OnChat implements dispatch.Sink.
func (s *Session) OnChat(chat *dispatch.Chat) {
	fmt.Fprintf(s.rl.Stdout(), "[%s] %s: %s\n", chat.Room, chat.Sender, chat.Message)
}

// OnMarker implements dispatch.Sink.
func (s *Session) OnMarker(evt *cot.Event) {
	name := evt.Detail.Callsign
	if name == "" {
		name = evt.UID
	}
	fmt.Fprintf(s.rl.Stdout(), "* marker %s at %.6f, %.6f\n",
		name, evt.Point.Lat, evt.Point.Lon)
}
