/*
File Name:  NAT Detection.go
Copyright:  2024 Cratenet s.r.o.

Self NAT classification. A one-shot probe at startup decides whether the local
node is reachable via a UPnP mapping, directly public, or behind an address or
port translating NAT. Phase A probes the gateway (see NAT UPnP.go); phase B
triangulates the external address from what inbound peers report observing.
*/

package core

import (
	"fmt"
	"net"
)

// NatClass is the reachability class of the local node.
type NatClass int

const (
	NatUnknown NatClass = iota

	// NatUpnp: a gateway port mapping with a routable external address succeeded.
	NatUpnp

	// NatPublic: peers observe us under one consistent, usable address.
	NatPublic

	// NatNonPublic: observations are inconsistent or unusable; the node is behind an
	// address/port translating NAT. This is a valid, actionable verdict, not an error.
	NatNonPublic
)

func (c NatClass) String() string {
	switch c {
	case NatUpnp:
		return "upnp"
	case NatPublic:
		return "public"
	case NatNonPublic:
		return "non-public"
	}
	return "unknown"
}

// NatStatus is the classification verdict, published exactly once at startup.
type NatStatus struct {
	Class         NatClass
	PublicAddress *net.UDPAddr // Set for NatUpnp and NatPublic
}

func (status NatStatus) String() string {
	if status.PublicAddress != nil {
		return fmt.Sprintf("%s (%s)", status.Class, status.PublicAddress)
	}
	return status.Class.String()
}

// natPhase is the current stage of the probe.
type natPhase int

const (
	phaseUpnp            natPhase = iota // waiting for the gateway probe result
	phaseExternalAddress                 // waiting for observed-address samples
	phaseDone
)

// natProbe is the one-shot probe state. It is owned by the event loop and discarded once a
// verdict is produced.
type natProbe struct {
	phase natPhase

	// samplesNeeded is the count of distinct observations required for a phase B verdict.
	samplesNeeded int

	// observed maps node ID -> list of (IP, port) pairs that peer reported observing for us.
	observed map[string][]*net.UDPAddr

	// inboundConnections filters which observations count: only reports arriving over
	// connections the remote side initiated say anything about our reachability.
	inboundConnections map[uint64]struct{}
}

func newNatProbe(samplesNeeded int) *natProbe {
	return &natProbe{
		phase:              phaseUpnp,
		samplesNeeded:      samplesNeeded,
		observed:           make(map[string][]*net.UDPAddr),
		inboundConnections: make(map[uint64]struct{}),
	}
}

// startTriangulation moves to phase B, discarding all phase A sub-state.
func (probe *natProbe) startTriangulation() {
	probe.phase = phaseExternalAddress
}

// recordInbound notes a genuinely inbound connection.
func (probe *natProbe) recordInbound(connectionID uint64) {
	if probe.phase == phaseDone {
		return
	}
	probe.inboundConnections[connectionID] = struct{}{}
}

// recordObservation stores the address a peer reports observing for us, if it arrived over an
// inbound connection. Once enough distinct observations are collected the verdict is returned.
func (probe *natProbe) recordObservation(nodeID []byte, connectionID uint64, address *net.UDPAddr) (status NatStatus, done bool) {
	if probe.phase != phaseExternalAddress || address == nil {
		return NatStatus{}, false
	}
	if _, inbound := probe.inboundConnections[connectionID]; !inbound {
		return NatStatus{}, false
	}

	key := string(nodeID)
	for _, existing := range probe.observed[key] {
		if existing.IP.Equal(address.IP) && existing.Port == address.Port {
			return NatStatus{}, false
		}
	}
	probe.observed[key] = append(probe.observed[key], address)

	if probe.countObservations() < probe.samplesNeeded {
		return NatStatus{}, false
	}

	probe.phase = phaseDone
	return classifyObservations(probe.observed), true
}

func (probe *natProbe) countObservations() (count int) {
	for _, list := range probe.observed {
		count += len(list)
	}
	return count
}

// classifyObservations turns the collected observations into a verdict:
//   - more than one distinct observed port: the port is being rewritten, symmetric/strict NAT.
//   - port 0: unusable.
//   - exactly one usable IP: public under that address.
//   - multiple IPs: prefer a non-private routable IP (IPv4 before IPv6), else loopback, else the
//     first private one.
//     The node is reachable on at least one interface, even if only locally.
//   - nothing usable: non-public.
func classifyObservations(observed map[string][]*net.UDPAddr) NatStatus {
	ports := make(map[int]struct{})
	var ips []net.IP

	for _, list := range observed {
		for _, address := range list {
			ports[address.Port] = struct{}{}

			if !containsIP(ips, address.IP) {
				ips = append(ips, address.IP)
			}
		}
	}

	if len(ports) != 1 {
		return NatStatus{Class: NatNonPublic}
	}
	var port int
	for p := range ports {
		port = p
	}
	if port == 0 {
		return NatStatus{Class: NatNonPublic}
	}

	// Drop IPs that cannot possibly identify us.
	var usable []net.IP
	for _, ip := range ips {
		if ip == nil || ip.IsUnspecified() || isBroadcastIP(ip) {
			continue
		}
		usable = append(usable, ip)
	}

	if len(usable) == 0 {
		return NatStatus{Class: NatNonPublic}
	}

	if len(usable) == 1 {
		return NatStatus{Class: NatPublic, PublicAddress: &net.UDPAddr{IP: usable[0], Port: port}}
	}

	// Multiple distinct IPs: pick by priority. A routable IPv4 address wins over IPv6; not every
	// peer can dial IPv6.
	for _, ip := range usable {
		if IsIPv4(ip) && !isPrivateIP(ip) && !isDocumentationIP(ip) {
			return NatStatus{Class: NatPublic, PublicAddress: &net.UDPAddr{IP: ip, Port: port}}
		}
	}
	for _, ip := range usable {
		if IsIPv6(ip) && !isPrivateIP(ip) && !isDocumentationIP(ip) {
			return NatStatus{Class: NatPublic, PublicAddress: &net.UDPAddr{IP: ip, Port: port}}
		}
	}
	for _, ip := range usable {
		if ip.IsLoopback() {
			return NatStatus{Class: NatPublic, PublicAddress: &net.UDPAddr{IP: ip, Port: port}}
		}
	}
	return NatStatus{Class: NatPublic, PublicAddress: &net.UDPAddr{IP: usable[0], Port: port}}
}

// IsIPv4 checks if an IP address is IPv4
func IsIPv4(IP net.IP) bool {
	return IP.To4() != nil
}

// IsIPv6 checks if an IP address is IPv6
func IsIPv6(IP net.IP) bool {
	return IP.To4() == nil && IP.To16() != nil
}

var privateBlocks []*net.IPNet
var documentationIPv4Blocks []*net.IPNet

func init() {
	for _, cidr := range []string{
		"10.0.0.0/8",     // RFC1918
		"172.16.0.0/12",  // RFC1918
		"192.168.0.0/16", // RFC1918
		"100.64.0.0/10",  // RFC6598 carrier-grade NAT
		"fc00::/7",       // RFC4193 unique local addresses
	} {
		if _, block, err := net.ParseCIDR(cidr); err == nil {
			privateBlocks = append(privateBlocks, block)
		}
	}
	for _, cidr := range []string{
		"192.0.2.0/24",    // RFC5737 TEST-NET-1
		"198.51.100.0/24", // RFC5737 TEST-NET-2
		"203.0.113.0/24",  // RFC5737 TEST-NET-3
	} {
		if _, block, err := net.ParseCIDR(cidr); err == nil {
			documentationIPv4Blocks = append(documentationIPv4Blocks, block)
		}
	}
}

func isPrivateIP(ip net.IP) bool {
	if ip.IsLoopback() || ip.IsLinkLocalUnicast() {
		return true
	}
	for _, block := range privateBlocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isDocumentationIP(ip net.IP) bool {
	for _, block := range documentationIPv4Blocks {
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

func isBroadcastIP(ip net.IP) bool {
	return ip.Equal(net.IPv4bcast)
}

func containsIP(list []net.IP, ip net.IP) bool {
	for _, existing := range list {
		if existing.Equal(ip) {
			return true
		}
	}
	return false
}

// FindInterfaceByIP finds an interface based on the IP. The IP must be available at the interface.
func FindInterfaceByIP(ip net.IP) (iface *net.Interface, ipnet *net.IPNet) {
	interfaceList, err := net.Interfaces()
	if err != nil {
		return nil, nil
	}

	// iterate through all interfaces
	for _, ifaceSingle := range interfaceList {
		addresses, err := ifaceSingle.Addrs()
		if err != nil {
			continue
		}

		// iterate through all IPs of the interfaces
		for _, address := range addresses {
			addressIP := address.(*net.IPNet).IP

			if addressIP.Equal(ip) {
				return &ifaceSingle, address.(*net.IPNet)
			}
		}
	}

	return nil, nil
}

// NetworkListIPs returns a list of all IPs of the local interfaces.
func NetworkListIPs() (IPs []net.IP, err error) {
	interfaceList, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	// iterate through all interfaces
	for _, ifaceSingle := range interfaceList {
		addresses, err := ifaceSingle.Addrs()
		if err != nil {
			continue
		}

		for _, address := range addresses {
			IPs = append(IPs, address.(*net.IPNet).IP)
		}
	}

	return IPs, nil
}
