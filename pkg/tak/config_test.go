package tak

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/omnitak/cot-go/pkg/transport"
)

func validConfig() Config {
	config := DefaultConfig()
	config.Callsign = "VIPER-1"
	config.Server.Host = "tak.example.org"
	return config
}

func TestDefaultConfig(t *testing.T) {
	config := DefaultConfig()

	assert.Equal(t, 8087, config.Server.Port)
	assert.Equal(t, "tcp", config.Server.Protocol)
	assert.True(t, config.Beacon.Enabled)
	assert.True(t, config.Reconnect.Enabled)
	assert.False(t, config.TLS.VerifyServer)
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"valid", func(c *Config) {}, false},
		{"missing callsign", func(c *Config) { c.Callsign = "" }, true},
		{"missing host", func(c *Config) { c.Server.Host = "" }, true},
		{"port zero", func(c *Config) { c.Server.Port = 0 }, true},
		{"port too large", func(c *Config) { c.Server.Port = 70000 }, true},
		{"bad protocol", func(c *Config) { c.Server.Protocol = "sctp" }, true},
		{"udp ok", func(c *Config) { c.Server.Protocol = "udp" }, false},
		{"tls ok", func(c *Config) { c.Server.Protocol = "tls" }, false},
		{"cert without key", func(c *Config) { c.TLS.CertFile = "client.pem" }, true},
		{"bad multiplier", func(c *Config) { c.Reconnect.Multiplier = 0.5 }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := validConfig()
			tt.mutate(&config)

			err := config.Validate()
			if tt.wantErr {
				require.Error(t, err)
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")

	content := `
callsign: HAWK-2
team: Red
server:
  host: 192.168.1.50
  port: 8089
  protocol: tls
tls:
  allow_legacy: true
beacon:
  enabled: true
  interval: 30s
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	config, err := LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, "HAWK-2", config.Callsign)
	assert.Equal(t, "Red", config.Team)
	assert.Equal(t, "192.168.1.50", config.Server.Host)
	assert.Equal(t, 8089, config.Server.Port)
	assert.Equal(t, "tls", config.Server.Protocol)
	assert.True(t, config.TLS.AllowLegacy)
	assert.Equal(t, 30*time.Second, config.Beacon.Interval)

	// Defaults survive for keys the file does not set.
	assert.Equal(t, "Team Member", config.Role)
	assert.True(t, config.Reconnect.Enabled)
}

func TestLoadConfigMissingFile(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfigInvalid(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  host: h\n"), 0o644))

	_, err := LoadConfig(path)
	assert.ErrorIs(t, err, ErrInvalidConfig, "missing callsign should fail validation")
}

func TestTransportKind(t *testing.T) {
	config := validConfig()

	config.Server.Protocol = "tcp"
	assert.Equal(t, transport.KindTCP, config.transportKind())

	config.Server.Protocol = "udp"
	assert.Equal(t, transport.KindUDP, config.transportKind())

	config.Server.Protocol = "tls"
	assert.Equal(t, transport.KindTLS, config.transportKind())
}

func TestTLSOptions(t *testing.T) {
	config := validConfig()
	config.TLS.AllowLegacy = true
	config.TLS.ServerName = "takserver"

	opts, err := config.tlsOptions()
	require.NoError(t, err)

	assert.True(t, opts.AllowLegacy)
	assert.Equal(t, "takserver", opts.ServerName)
	assert.Equal(t, transport.TrustAcceptAll, opts.Trust)
	assert.Nil(t, opts.ClientIdentity)

	config.TLS.VerifyServer = true
	opts, err = config.tlsOptions()
	require.NoError(t, err)
	assert.Equal(t, transport.TrustSystem, opts.Trust)
}

func TestTLSOptionsMissingIdentity(t *testing.T) {
	config := validConfig()
	config.TLS.CertFile = filepath.Join(t.TempDir(), "missing.pem")
	config.TLS.KeyFile = filepath.Join(t.TempDir(), "missing.key")

	_, err := config.tlsOptions()
	assert.Error(t, err)
}
