// Package discovery finds CoT servers advertised over mDNS/DNS-SD.
//
// Servers that advertise at all use the `_cot._tcp` service type with
// an optional `proto` TXT record naming the session transport (tcp,
// udp or tls). Discovery is a convenience for bench and field setups
// on a shared LAN; production deployments usually configure the
// server address explicitly.
package discovery

import (
	"context"
	"errors"
	"net"
	"strings"
	"time"

	"github.com/enbility/zeroconf/v3"
)

// mDNS service parameters for CoT.
const (
	// ServiceType is the DNS-SD service type for CoT streaming
	// endpoints.
	ServiceType = "_cot._tcp"

	// Domain is the mDNS domain.
	Domain = "local."

	// DefaultBrowseTimeout bounds FindFirst.
	DefaultBrowseTimeout = 10 * time.Second
)

// ErrNoServerFound indicates browsing ended without a result.
var ErrNoServerFound = errors.New("no CoT server found")

// Server describes one discovered CoT endpoint.
type Server struct {
	// Instance is the advertised service instance name.
	Instance string

	// Host is the advertised hostname.
	Host string

	// Addresses are the resolved IP addresses, IPv4 first.
	Addresses []string

	// Port is the service port.
	Port int

	// Proto is the advertised session transport ("tcp", "udp",
	// "tls"); empty when the server does not say.
	Proto string
}

// Addr returns the first usable address, preferring resolved IPs over
// the hostname.
func (s *Server) Addr() string {
	if len(s.Addresses) > 0 {
		return s.Addresses[0]
	}
	return strings.TrimSuffix(s.Host, ".")
}

// BrowserConfig configures browsing behavior.
type BrowserConfig struct {
	// Interface selects one network interface by name.
	// Empty means all interfaces.
	Interface string
}

// Browser discovers CoT servers over mDNS.
type Browser struct {
	config BrowserConfig
}

// NewBrowser creates a browser.
func NewBrowser(config BrowserConfig) *Browser {
	return &Browser{config: config}
}

// Browse streams discovered servers until the context is cancelled.
// The returned channel is closed when browsing ends. Each instance is
// emitted once; addresses from multiple interfaces are merged into
// the first emission.
func (b *Browser) Browse(ctx context.Context) (<-chan *Server, error) {
	out := make(chan *Server)

	entries := make(chan *zeroconf.ServiceEntry)
	removed := make(chan *zeroconf.ServiceEntry)

	opts := b.clientOptions()

	go func() {
		defer close(out)

		seen := make(map[string]bool)

		for {
			select {
			case entry, ok := <-entries:
				if !ok {
					return
				}
				srv := entryToServer(entry)
				if srv == nil || seen[srv.Instance] {
					continue
				}
				seen[srv.Instance] = true
				select {
				case out <- srv:
				case <-ctx.Done():
					return
				}

			case <-removed:
				// Client side only cares about appearances.

			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		_ = zeroconf.Browse(ctx, ServiceType, Domain, entries, removed, opts...)
	}()

	return out, nil
}

// FindFirst browses until one server appears or the timeout elapses.
func (b *Browser) FindFirst(ctx context.Context, timeout time.Duration) (*Server, error) {
	if timeout <= 0 {
		timeout = DefaultBrowseTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	servers, err := b.Browse(ctx)
	if err != nil {
		return nil, err
	}

	srv, ok := <-servers
	if !ok || srv == nil {
		return nil, ErrNoServerFound
	}
	return srv, nil
}

// clientOptions builds zeroconf options from the config.
func (b *Browser) clientOptions() []zeroconf.ClientOption {
	var opts []zeroconf.ClientOption

	if b.config.Interface != "" {
		iface, err := net.InterfaceByName(b.config.Interface)
		if err == nil {
			opts = append(opts, zeroconf.SelectIfaces([]net.Interface{*iface}))
		}
	}

	return opts
}

// entryToServer converts one mDNS entry, or returns nil for entries
// without any address or port.
func entryToServer(entry *zeroconf.ServiceEntry) *Server {
	if entry == nil || entry.Port == 0 {
		return nil
	}

	addrs := make([]string, 0, len(entry.AddrIPv4)+len(entry.AddrIPv6))
	for _, ip := range entry.AddrIPv4 {
		addrs = append(addrs, ip.String())
	}
	for _, ip := range entry.AddrIPv6 {
		addrs = append(addrs, ip.String())
	}

	return &Server{
		Instance:  entry.Instance,
		Host:      entry.HostName,
		Addresses: addrs,
		Port:      entry.Port,
		Proto:     txtValue(entry.Text, "proto"),
	}
}

// txtValue extracts one key=value TXT record, case-insensitive on the
// key.
func txtValue(records []string, key string) string {
	for _, rec := range records {
		k, v, found := strings.Cut(rec, "=")
		if found && strings.EqualFold(k, key) {
			return v
		}
	}
	return ""
}
