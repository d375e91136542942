/*
File Name:  NAT UPnP.go
Copyright:  2024 Cratenet s.r.o.

Phase A of the NAT classification: probe the gateway for a port mapping. UPnP
IGDv2 is tried first, then IGDv1, then NAT-PMP. A mapping only counts if the
gateway reports a routable external address; some gateways happily map ports
while sitting behind carrier-grade NAT themselves.
*/

package core

import (
	"errors"
	"net"
	"time"

	"github.com/huin/goupnp/dcps/internetgateway1"
	"github.com/huin/goupnp/dcps/internetgateway2"
	"github.com/jackpal/gateway"
	natpmp "github.com/jackpal/go-nat-pmp"
)

const (
	upnpMappingDescription = "cratenet"
	upnpLeaseDuration      = 3600 // seconds
	natpmpTimeout          = 5 * time.Second
)

// ErrNoGateway means no UPnP or NAT-PMP capable gateway was found.
var ErrNoGateway = errors.New("no UPnP or NAT-PMP gateway found")

// ErrGatewayNotRoutable means the gateway mapped the port but its external address is not routable.
var ErrGatewayNotRoutable = errors.New("gateway external address not routable")

// upnpClient is the subset of the goupnp IGD clients used for the probe. IGDv1 and IGDv2
// WANIPConnection/WANPPPConnection clients all satisfy it.
type upnpClient interface {
	AddPortMapping(remoteHost string, externalPort uint16, protocol string, internalPort uint16, internalClient string, enabled bool, description string, leaseDuration uint32) error
	GetExternalIPAddress() (string, error)
}

// discoverUpnpClient finds an IGD on the local network, newest protocol generation first.
func discoverUpnpClient() (upnpClient, error) {
	if clients, _, err := internetgateway2.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	if clients, _, err := internetgateway2.NewWANPPPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	if clients, _, err := internetgateway1.NewWANIPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	if clients, _, err := internetgateway1.NewWANPPPConnection1Clients(); err == nil && len(clients) > 0 {
		return clients[0], nil
	}
	return nil, ErrNoGateway
}

// probeGateway runs the whole phase A: map the port via UPnP or NAT-PMP and verify the external
// address. On success the returned status carries the NatUpnp verdict.
func probeGateway(port uint16) (status NatStatus, err error) {
	if status, err = probeUpnp(port); err == nil {
		return status, nil
	}

	return probeNatPmp(port)
}

func probeUpnp(port uint16) (status NatStatus, err error) {
	client, err := discoverUpnpClient()
	if err != nil {
		return NatStatus{}, err
	}

	localIP, err := findLocalIP()
	if err != nil {
		return NatStatus{}, err
	}

	if err = client.AddPortMapping("", port, "UDP", port, localIP.String(), true, upnpMappingDescription, upnpLeaseDuration); err != nil {
		return NatStatus{}, err
	}

	externalA, err := client.GetExternalIPAddress()
	if err != nil {
		return NatStatus{}, err
	}

	externalIP := net.ParseIP(externalA)
	if externalIP == nil || externalIP.IsUnspecified() || isPrivateIP(externalIP) {
		return NatStatus{}, ErrGatewayNotRoutable
	}

	return NatStatus{Class: NatUpnp, PublicAddress: &net.UDPAddr{IP: externalIP, Port: int(port)}}, nil
}

func probeNatPmp(port uint16) (status NatStatus, err error) {
	gatewayIP, err := gateway.DiscoverGateway()
	if err != nil {
		return NatStatus{}, ErrNoGateway
	}

	client := natpmp.NewClientWithTimeout(gatewayIP, natpmpTimeout)

	external, err := client.GetExternalAddress()
	if err != nil {
		return NatStatus{}, err
	}

	externalIP := net.IPv4(external.ExternalIPAddress[0], external.ExternalIPAddress[1], external.ExternalIPAddress[2], external.ExternalIPAddress[3])
	if externalIP.IsUnspecified() || isPrivateIP(externalIP) {
		return NatStatus{}, ErrGatewayNotRoutable
	}

	mapping, err := client.AddPortMapping("udp", int(port), int(port), upnpLeaseDuration)
	if err != nil {
		return NatStatus{}, err
	}

	return NatStatus{Class: NatUpnp, PublicAddress: &net.UDPAddr{IP: externalIP, Port: int(mapping.MappedExternalPort)}}, nil
}

// findLocalIP picks a local interface address usable as the mapping target: a private IPv4
// address that is neither loopback nor link-local, on an interface that is up.
func findLocalIP() (net.IP, error) {
	ips, err := NetworkListIPs()
	if err != nil {
		return nil, err
	}

	for _, ip := range ips {
		if !IsIPv4(ip) || ip.IsLoopback() || ip.IsLinkLocalUnicast() || ip.IsUnspecified() {
			continue
		}
		if !isPrivateIP(ip) {
			continue
		}
		// The gateway forwards to this address; a mapping to a downed interface is useless.
		if iface, _ := FindInterfaceByIP(ip); iface == nil || iface.Flags&net.FlagUp == 0 {
			continue
		}
		return ip, nil
	}

	return nil, errors.New("no usable local IP found")
}
