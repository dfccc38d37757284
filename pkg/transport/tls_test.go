package transport

import (
	"crypto/tls"
	"testing"
)

func TestNewClientTLSConfigDefaults(t *testing.T) {
	conf := NewClientTLSConfig(nil)

	if conf.MinVersion != tls.VersionTLS12 {
		t.Errorf("MinVersion = %x, want TLS 1.2", conf.MinVersion)
	}
	if !conf.InsecureSkipVerify {
		t.Error("default trust policy must accept self-signed servers")
	}
	if len(conf.Certificates) != 0 {
		t.Error("no client identity expected by default")
	}
	for _, suite := range conf.CipherSuites {
		if suite == tls.TLS_RSA_WITH_AES_128_CBC_SHA {
			t.Error("legacy suite offered without AllowLegacy")
		}
	}
}

func TestNewClientTLSConfigLegacy(t *testing.T) {
	conf := NewClientTLSConfig(&TLSOptions{AllowLegacy: true})

	if conf.MinVersion != tls.VersionTLS10 {
		t.Errorf("MinVersion = %x, want TLS 1.0", conf.MinVersion)
	}

	found := false
	for _, suite := range conf.CipherSuites {
		if suite == tls.TLS_RSA_WITH_AES_256_CBC_SHA {
			found = true
		}
	}
	if !found {
		t.Error("legacy CBC suite missing with AllowLegacy")
	}
}

func TestNewClientTLSConfigSystemTrust(t *testing.T) {
	conf := NewClientTLSConfig(&TLSOptions{Trust: TrustSystem})
	if conf.InsecureSkipVerify {
		t.Error("system trust must verify the server chain")
	}
}

func TestNewClientTLSConfigExplicitVersions(t *testing.T) {
	conf := NewClientTLSConfig(&TLSOptions{
		MinVersion: tls.VersionTLS13,
		MaxVersion: tls.VersionTLS13,
	})
	if conf.MinVersion != tls.VersionTLS13 || conf.MaxVersion != tls.VersionTLS13 {
		t.Errorf("versions = %x/%x", conf.MinVersion, conf.MaxVersion)
	}
}

func TestNewClientTLSConfigIdentity(t *testing.T) {
	identity := tls.Certificate{Certificate: [][]byte{{0x01}}}
	conf := NewClientTLSConfig(&TLSOptions{ClientIdentity: &identity})

	if len(conf.Certificates) != 1 {
		t.Fatalf("certificates = %d, want 1", len(conf.Certificates))
	}
}

func TestNewClientTLSConfigServerName(t *testing.T) {
	conf := NewClientTLSConfig(&TLSOptions{ServerName: "takserver"})
	if conf.ServerName != "takserver" {
		t.Errorf("ServerName = %q", conf.ServerName)
	}
}
