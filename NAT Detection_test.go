/*
File Name:  NAT Detection_test.go
Copyright:  2024 Cratenet s.r.o.
*/

package core

import (
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func observation(ip string, port int) *net.UDPAddr {
	return &net.UDPAddr{IP: net.ParseIP(ip), Port: port}
}

// Five peers agreeing on one external (IP, port) yield a public verdict under that address.
func TestTriangulationAgreement(t *testing.T) {
	probe := newNatProbe(5)
	probe.startTriangulation()

	for i := byte(1); i <= 5; i++ {
		probe.recordInbound(uint64(i))
	}

	var status NatStatus
	var done bool
	for i := byte(1); i <= 5; i++ {
		status, done = probe.recordObservation([]byte{i}, uint64(i), observation("203.0.113.5", 31055))
		if i < 5 {
			require.False(t, done, "verdict only after enough samples")
		}
	}

	require.True(t, done)
	assert.Equal(t, NatPublic, status.Class)
	require.NotNil(t, status.PublicAddress)
	assert.Equal(t, "203.0.113.5", status.PublicAddress.IP.String())
	assert.Equal(t, 31055, status.PublicAddress.Port)
}

// Two different observed ports mean the gateway rewrites the source port per destination. No
// stable address exists to advertise.
func TestTriangulationPortMismatch(t *testing.T) {
	probe := newNatProbe(5)
	probe.startTriangulation()

	for i := byte(1); i <= 5; i++ {
		probe.recordInbound(uint64(i))
	}

	port := 31055
	var status NatStatus
	var done bool
	for i := byte(1); i <= 5; i++ {
		if i == 3 {
			port = 31056
		}
		status, done = probe.recordObservation([]byte{i}, uint64(i), observation("203.0.113.5", port))
	}

	require.True(t, done)
	assert.Equal(t, NatNonPublic, status.Class)
	assert.Nil(t, status.PublicAddress)
}

// Observations over outbound connections say nothing about inbound reachability and are dropped.
func TestTriangulationIgnoresOutbound(t *testing.T) {
	probe := newNatProbe(2)
	probe.startTriangulation()

	probe.recordInbound(1)

	_, done := probe.recordObservation([]byte{1}, 99, observation("203.0.113.5", 31055))
	assert.False(t, done)
	assert.Empty(t, probe.observed, "outbound observation not stored")

	_, done = probe.recordObservation([]byte{1}, 1, observation("203.0.113.5", 31055))
	assert.False(t, done)
	assert.Len(t, probe.observed, 1)
}

// A peer repeating the same observation contributes only one sample.
func TestTriangulationDeduplicatesPerPeer(t *testing.T) {
	probe := newNatProbe(3)
	probe.startTriangulation()
	probe.recordInbound(1)

	for i := 0; i < 10; i++ {
		_, done := probe.recordObservation([]byte{1}, 1, observation("203.0.113.5", 31055))
		assert.False(t, done)
	}
	assert.Len(t, probe.observed[string([]byte{1})], 1)
}

// Observations before phase B starts (gateway probe still running) are not collected.
func TestTriangulationRequiresPhaseB(t *testing.T) {
	probe := newNatProbe(1)
	probe.recordInbound(1)

	_, done := probe.recordObservation([]byte{1}, 1, observation("203.0.113.5", 31055))
	assert.False(t, done)

	probe.startTriangulation()
	status, done := probe.recordObservation([]byte{1}, 1, observation("203.0.113.5", 31055))
	require.True(t, done)
	assert.Equal(t, NatPublic, status.Class)
}

func TestClassifyObservations(t *testing.T) {
	tests := []struct {
		name      string
		observed  map[string][]*net.UDPAddr
		class     NatClass
		publicIP  string
	}{
		{
			name:     "port zero is unusable",
			observed: map[string][]*net.UDPAddr{"a": {observation("203.0.113.5", 0)}},
			class:    NatNonPublic,
		},
		{
			name:     "only unspecified addresses",
			observed: map[string][]*net.UDPAddr{"a": {observation("0.0.0.0", 31055)}},
			class:    NatNonPublic,
		},
		{
			name:     "broadcast is unusable",
			observed: map[string][]*net.UDPAddr{"a": {observation("255.255.255.255", 31055)}},
			class:    NatNonPublic,
		},
		{
			name: "single agreed address",
			observed: map[string][]*net.UDPAddr{
				"a": {observation("198.51.100.7", 40000)},
				"b": {observation("198.51.100.7", 40000)},
			},
			class:    NatPublic,
			publicIP: "198.51.100.7",
		},
		{
			name: "routable address preferred over private",
			observed: map[string][]*net.UDPAddr{
				"a": {observation("192.168.1.10", 40000)},
				"b": {observation("198.18.0.1", 40000)},
			},
			class:    NatPublic,
			publicIP: "198.18.0.1",
		},
		{
			name: "routable IPv4 preferred over routable IPv6",
			observed: map[string][]*net.UDPAddr{
				"a": {observation("2001:db8::5", 40000)},
				"b": {observation("198.18.0.1", 40000)},
			},
			class:    NatPublic,
			publicIP: "198.18.0.1",
		},
		{
			name: "routable IPv6 when no IPv4 is routable",
			observed: map[string][]*net.UDPAddr{
				"a": {observation("192.168.1.10", 40000)},
				"b": {observation("2001:db8::5", 40000)},
			},
			class:    NatPublic,
			publicIP: "2001:db8::5",
		},
		{
			name: "carrier-grade NAT address is not advertised",
			observed: map[string][]*net.UDPAddr{
				"a": {observation("100.64.11.12", 40000)},
				"b": {observation("198.18.0.1", 40000)},
			},
			class:    NatPublic,
			publicIP: "198.18.0.1",
		},
		{
			name: "loopback preferred over private when nothing routable",
			observed: map[string][]*net.UDPAddr{
				"a": {observation("192.168.1.10", 40000)},
				"b": {observation("127.0.0.1", 40000)},
			},
			class:    NatPublic,
			publicIP: "127.0.0.1",
		},
		{
			name: "port disagreement wins over everything",
			observed: map[string][]*net.UDPAddr{
				"a": {observation("198.51.100.7", 40000)},
				"b": {observation("198.51.100.7", 40001)},
			},
			class: NatNonPublic,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := classifyObservations(tt.observed)
			assert.Equal(t, tt.class, status.Class)
			if tt.publicIP != "" {
				require.NotNil(t, status.PublicAddress)
				assert.Equal(t, tt.publicIP, status.PublicAddress.IP.String())
			}
		})
	}
}

func TestIPClassification(t *testing.T) {
	assert.True(t, isPrivateIP(net.ParseIP("10.1.2.3")))
	assert.True(t, isPrivateIP(net.ParseIP("172.16.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("192.168.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("127.0.0.1")))
	assert.True(t, isPrivateIP(net.ParseIP("169.254.1.1")))
	assert.True(t, isPrivateIP(net.ParseIP("100.64.11.12")))
	assert.True(t, isPrivateIP(net.ParseIP("fd00::1")))
	assert.False(t, isPrivateIP(net.ParseIP("8.8.8.8")))
	assert.False(t, isPrivateIP(net.ParseIP("2001:db8::1")))

	assert.True(t, isDocumentationIP(net.ParseIP("203.0.113.5")))
	assert.True(t, isDocumentationIP(net.ParseIP("198.51.100.7")))
	assert.False(t, isDocumentationIP(net.ParseIP("8.8.8.8")))

	assert.True(t, isBroadcastIP(net.ParseIP("255.255.255.255")))
	assert.False(t, isBroadcastIP(net.ParseIP("8.8.8.8")))

	assert.True(t, IsIPv4(net.ParseIP("192.0.2.1")))
	assert.False(t, IsIPv4(net.ParseIP("2001:db8::1")))
	assert.True(t, IsIPv6(net.ParseIP("2001:db8::1")))
	assert.False(t, IsIPv6(net.ParseIP("192.0.2.1")))
}

// Every locally bound IP must resolve to its interface; an address nobody holds must not.
func TestFindInterfaceByIP(t *testing.T) {
	ips, err := NetworkListIPs()
	require.NoError(t, err)

	for _, ip := range ips {
		iface, ipnet := FindInterfaceByIP(ip)
		require.NotNil(t, iface, "no interface found for local IP %s", ip)
		require.NotNil(t, ipnet)
		assert.True(t, ipnet.Contains(ip))
	}

	iface, ipnet := FindInterfaceByIP(net.ParseIP("203.0.113.99"))
	assert.Nil(t, iface)
	assert.Nil(t, ipnet)
}
