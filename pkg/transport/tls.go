package transport

import (
	"crypto/tls"
)

// TrustPolicy selects how the server certificate is verified.
type TrustPolicy int

const (
	// TrustAcceptAll accepts any server certificate without
	// verification. Self-signed deployments are the norm for CoT
	// servers on private networks, so this is the default. Switch to
	// TrustSystem when the server presents a CA-signed certificate.
	TrustAcceptAll TrustPolicy = iota

	// TrustSystem verifies the server certificate against the system
	// root store.
	TrustSystem
)

// String returns the trust policy name.
func (p TrustPolicy) String() string {
	switch p {
	case TrustAcceptAll:
		return "ACCEPT_ALL"
	case TrustSystem:
		return "SYSTEM"
	default:
		return "UNKNOWN"
	}
}

// TLSOptions configures the TLS session of a connection.
// Options are immutable once the connection is established.
type TLSOptions struct {
	// MinVersion is the minimum acceptable protocol version.
	// Zero means TLS 1.2, or TLS 1.0 when AllowLegacy is set.
	MinVersion uint16

	// MaxVersion is the maximum protocol version (0 = library max).
	MaxVersion uint16

	// AllowLegacy widens the version floor to TLS 1.0 and offers
	// older AES-CBC cipher suites for compatibility with dated
	// servers.
	AllowLegacy bool

	// Trust selects server certificate verification.
	Trust TrustPolicy

	// ClientIdentity is the client certificate for mutual TLS. It is
	// an already-resolved identity; this package never reads
	// certificate files or keychains. Nil disables client auth.
	ClientIdentity *tls.Certificate

	// ServerName overrides the SNI name (defaults to the dialed host).
	ServerName string
}

// Cipher suites offered to modern servers (Go orders TLS 1.3 suites
// internally; this list governs TLS 1.2 and below).
var modernCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_ECDHE_ECDSA_WITH_CHACHA20_POLY1305,
	tls.TLS_ECDHE_RSA_WITH_CHACHA20_POLY1305,
}

// Additional suites offered when AllowLegacy is set. Fielded CoT
// servers still negotiate AES-CBC with some regularity.
var legacyCipherSuites = []uint16{
	tls.TLS_ECDHE_ECDSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_ECDHE_ECDSA_WITH_AES_256_CBC_SHA,
	tls.TLS_ECDHE_RSA_WITH_AES_256_CBC_SHA,
	tls.TLS_RSA_WITH_AES_128_GCM_SHA256,
	tls.TLS_RSA_WITH_AES_256_GCM_SHA384,
	tls.TLS_RSA_WITH_AES_128_CBC_SHA,
	tls.TLS_RSA_WITH_AES_256_CBC_SHA,
}

// NewClientTLSConfig builds the tls.Config for a CoT client session.
// A nil opts uses the defaults (TLS 1.2+, accept-all trust, no client
// identity).
func NewClientTLSConfig(opts *TLSOptions) *tls.Config {
	if opts == nil {
		opts = &TLSOptions{}
	}

	minVersion := opts.MinVersion
	if minVersion == 0 {
		if opts.AllowLegacy {
			minVersion = tls.VersionTLS10
		} else {
			minVersion = tls.VersionTLS12
		}
	}

	suites := modernCipherSuites
	if opts.AllowLegacy {
		suites = append(append([]uint16{}, modernCipherSuites...), legacyCipherSuites...)
	}

	conf := &tls.Config{
		MinVersion:   minVersion,
		MaxVersion:   opts.MaxVersion,
		CipherSuites: suites,
		ServerName:   opts.ServerName,
	}

	if opts.Trust == TrustAcceptAll {
		conf.InsecureSkipVerify = true
	}

	if opts.ClientIdentity != nil {
		conf.Certificates = []tls.Certificate{*opts.ClientIdentity}
	}

	return conf
}
