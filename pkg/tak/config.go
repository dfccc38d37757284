package tak

import (
	"crypto/tls"
	"errors"
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/omnitak/cot-go/pkg/dispatch"
	"github.com/omnitak/cot-go/pkg/transport"
)

// ErrInvalidConfig indicates a config that fails validation.
var ErrInvalidConfig = errors.New("invalid configuration")

// ServerConfig names the CoT server endpoint.
type ServerConfig struct {
	// Host is the server hostname or IP address.
	Host string `yaml:"host"`

	// Port is the server port.
	Port int `yaml:"port"`

	// Protocol is the session transport: "tcp", "udp" or "tls".
	Protocol string `yaml:"protocol"`
}

// TLSConfig configures the TLS session transport.
type TLSConfig struct {
	// VerifyServer enables certificate chain verification against
	// the system trust store. Off by default; TAK deployments
	// almost always run self-signed server certificates.
	VerifyServer bool `yaml:"verify_server"`

	// AllowLegacy permits TLS 1.0/1.1 and CBC cipher suites for
	// older servers.
	AllowLegacy bool `yaml:"allow_legacy"`

	// CertFile and KeyFile name a PEM client identity for mutual
	// TLS. Both or neither must be set.
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`

	// ServerName overrides the SNI name. Defaults to the host.
	ServerName string `yaml:"server_name"`
}

// BeaconConfig configures the periodic self-position report.
type BeaconConfig struct {
	// Enabled turns the beacon on.
	Enabled bool `yaml:"enabled"`

	// Interval between reports.
	Interval time.Duration `yaml:"interval"`
}

// ReconnectConfig configures automatic reconnection after a failure.
type ReconnectConfig struct {
	// Enabled turns auto-reconnect on.
	Enabled bool `yaml:"enabled"`

	// InitialInterval is the first backoff delay.
	InitialInterval time.Duration `yaml:"initial_interval"`

	// MaxInterval caps the backoff delay.
	MaxInterval time.Duration `yaml:"max_interval"`

	// Multiplier grows the delay after each failed attempt.
	Multiplier float64 `yaml:"multiplier"`

	// MaxRetries limits attempts. 0 means unlimited.
	MaxRetries int `yaml:"max_retries"`
}

// HistoryConfig configures position history retention.
type HistoryConfig struct {
	// MinDistance in meters a unit must move before a new sample
	// is recorded.
	MinDistance float64 `yaml:"min_distance"`

	// MinInterval after which a sample is recorded even without
	// movement.
	MinInterval time.Duration `yaml:"min_interval"`

	// MaxSamples per unit.
	MaxSamples int `yaml:"max_samples"`

	// MaxAge of retained samples.
	MaxAge time.Duration `yaml:"max_age"`
}

// Config configures a Client.
type Config struct {
	// Callsign identifies this client to other TAK users.
	Callsign string `yaml:"callsign"`

	// UID is the stable unit identifier. Generated when empty.
	UID string `yaml:"uid"`

	// Team is the color team ("Cyan", "Red", ...).
	Team string `yaml:"team"`

	// Role is the team role ("Team Member", "HQ", ...).
	Role string `yaml:"role"`

	Server    ServerConfig    `yaml:"server"`
	TLS       TLSConfig       `yaml:"tls"`
	Beacon    BeaconConfig    `yaml:"beacon"`
	Reconnect ReconnectConfig `yaml:"reconnect"`
	History   HistoryConfig   `yaml:"history"`

	// TraceFile names a CBOR trace log file. Empty disables
	// trace logging.
	TraceFile string `yaml:"trace_file"`

	// TraceMaxSize caps the trace file size in bytes. Events beyond
	// the cap are dropped. 0 means unlimited.
	TraceMaxSize int64 `yaml:"trace_max_size"`
}

// DefaultConfig returns a Config with sensible defaults. The server
// endpoint and callsign still need to be filled in.
func DefaultConfig() Config {
	return Config{
		Team: "Cyan",
		Role: "Team Member",
		Server: ServerConfig{
			Port:     8087,
			Protocol: "tcp",
		},
		Beacon: BeaconConfig{
			Enabled:  true,
			Interval: transport.DefaultBeaconInterval,
		},
		Reconnect: ReconnectConfig{
			Enabled:         true,
			InitialInterval: 1 * time.Second,
			MaxInterval:     1 * time.Minute,
			Multiplier:      2.0,
			MaxRetries:      0,
		},
		History: HistoryConfig{
			MinDistance: dispatch.DefaultMinDistance,
			MinInterval: dispatch.DefaultMinInterval,
			MaxSamples:  dispatch.DefaultMaxSamples,
			MaxAge:      dispatch.DefaultMaxAge,
		},
	}
}

// Validate checks if the config is usable.
func (c *Config) Validate() error {
	if c.Callsign == "" {
		return fmt.Errorf("%w: callsign is required", ErrInvalidConfig)
	}
	if c.Server.Host == "" {
		return fmt.Errorf("%w: server host is required", ErrInvalidConfig)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("%w: server port %d out of range", ErrInvalidConfig, c.Server.Port)
	}
	switch c.Server.Protocol {
	case "tcp", "udp", "tls":
	default:
		return fmt.Errorf("%w: unknown protocol %q", ErrInvalidConfig, c.Server.Protocol)
	}
	if (c.TLS.CertFile == "") != (c.TLS.KeyFile == "") {
		return fmt.Errorf("%w: cert_file and key_file must be set together", ErrInvalidConfig)
	}
	if c.Reconnect.Enabled && c.Reconnect.Multiplier < 1.0 {
		return fmt.Errorf("%w: reconnect multiplier must be >= 1.0", ErrInvalidConfig)
	}
	return nil
}

// LoadConfig reads a YAML config file on top of the defaults.
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return config, fmt.Errorf("reading config: %w", err)
	}
	if err := yaml.Unmarshal(data, &config); err != nil {
		return config, fmt.Errorf("parsing config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return config, err
	}
	return config, nil
}

// transportKind maps the protocol name to a transport kind.
func (c *Config) transportKind() transport.Kind {
	switch c.Server.Protocol {
	case "udp":
		return transport.KindUDP
	case "tls":
		return transport.KindTLS
	default:
		return transport.KindTCP
	}
}

// tlsOptions builds transport TLS options, loading the client
// identity when configured.
func (c *Config) tlsOptions() (transport.TLSOptions, error) {
	opts := transport.TLSOptions{
		AllowLegacy: c.TLS.AllowLegacy,
		ServerName:  c.TLS.ServerName,
	}
	if c.TLS.VerifyServer {
		opts.Trust = transport.TrustSystem
	}
	if c.TLS.CertFile != "" {
		identity, err := tls.LoadX509KeyPair(c.TLS.CertFile, c.TLS.KeyFile)
		if err != nil {
			return opts, fmt.Errorf("loading client identity: %w", err)
		}
		opts.ClientIdentity = &identity
	}
	return opts, nil
}
