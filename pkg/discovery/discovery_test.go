package discovery

import (
	"net"
	"testing"

	"github.com/enbility/zeroconf/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEntryToServer(t *testing.T) {
	entry := &zeroconf.ServiceEntry{
		HostName: "takserver.local.",
		Port:     8089,
		Text:     []string{"proto=tls", "version=1"},
	}
	entry.Instance = "ops"
	entry.AddrIPv4 = []net.IP{net.ParseIP("192.168.1.10")}
	entry.AddrIPv6 = []net.IP{net.ParseIP("fe80::1")}

	srv := entryToServer(entry)
	require.NotNil(t, srv)

	assert.Equal(t, "ops", srv.Instance)
	assert.Equal(t, "takserver.local.", srv.Host)
	assert.Equal(t, []string{"192.168.1.10", "fe80::1"}, srv.Addresses)
	assert.Equal(t, 8089, srv.Port)
	assert.Equal(t, "tls", srv.Proto)
}

func TestEntryToServerInvalid(t *testing.T) {
	assert.Nil(t, entryToServer(nil))

	entry := &zeroconf.ServiceEntry{HostName: "x.local."}
	assert.Nil(t, entryToServer(entry), "entry without port should be dropped")
}

func TestServerAddr(t *testing.T) {
	srv := &Server{Host: "takserver.local.", Addresses: []string{"10.0.0.5"}}
	assert.Equal(t, "10.0.0.5", srv.Addr())

	srv = &Server{Host: "takserver.local."}
	assert.Equal(t, "takserver.local", srv.Addr())
}

func TestTxtValue(t *testing.T) {
	records := []string{"note=hi", "Proto=udp", "empty"}

	assert.Equal(t, "udp", txtValue(records, "proto"))
	assert.Equal(t, "hi", txtValue(records, "note"))
	assert.Equal(t, "", txtValue(records, "missing"))
	assert.Equal(t, "", txtValue(nil, "proto"))
}
