// Copyright (c) 2013-2014 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netinfo

import (
	"fmt"
	"net"
	"strings"
)

// Network identifies an underlying transport a peer may be reached over.
type Network uint8

// These constants define the supported networks.  Unroutable is the pseudo
// network of addresses that cannot be reached over any transport.
const (
	Unroutable Network = iota
	IPv4
	IPv6
	Onion
	I2P

	numNetworks
)

// networkNames maps networks to the names used in configuration and
// diagnostics.
var networkNames = [numNetworks]string{
	Unroutable: "unroutable",
	IPv4:       "ipv4",
	IPv6:       "ipv6",
	Onion:      "onion",
	I2P:        "i2p",
}

// String returns the name of the network.
func (n Network) String() string {
	if n < numNetworks {
		return networkNames[n]
	}
	return fmt.Sprintf("Unknown Network (%d)", uint8(n))
}

// RoutableNetworks returns the networks peers can be reached over in display
// order.
func RoutableNetworks() []Network {
	return []Network{IPv4, IPv6, Onion, I2P}
}

// ParseNetwork returns the network with the provided name.  The
// unroutable pseudo network cannot be selected by name.
func ParseNetwork(name string) (Network, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	switch name {
	case "tor":
		return Onion, nil
	}
	for _, n := range RoutableNetworks() {
		if networkNames[n] == name {
			return n, nil
		}
	}
	str := fmt.Sprintf("unknown network %q", name)
	return Unroutable, Error{Err: ErrUnknownNetwork, Description: str}
}

var (
	// rfc1918Nets specifies the IPv4 private address blocks as defined by
	// RFC1918 (10.0.0.0/8, 172.16.0.0/12, and 192.168.0.0/16).
	rfc1918Nets = []net.IPNet{
		ipNet("10.0.0.0", 8, 32),
		ipNet("172.16.0.0", 12, 32),
		ipNet("192.168.0.0", 16, 32),
	}

	// rfc3927Net specifies the IPv4 auto configuration address block as
	// defined by RFC3927 (169.254.0.0/16).
	rfc3927Net = ipNet("169.254.0.0", 16, 32)

	// rfc3849Net specifies the IPv6 documentation address block as defined
	// by RFC3849 (2001:DB8::/32).
	rfc3849Net = ipNet("2001:DB8::", 32, 128)

	// rfc4193Net specifies the IPv6 unique local address block as defined
	// by RFC4193 (FC00::/7).
	rfc4193Net = ipNet("FC00::", 7, 128)

	// rfc4862Net specifies the IPv6 stateless address autoconfiguration
	// address block as defined by RFC4862 (FE80::/64).
	rfc4862Net = ipNet("FE80::", 64, 128)

	// rfc6598Net specifies the IPv4 block as defined by RFC6598
	// (100.64.0.0/10).
	rfc6598Net = ipNet("100.64.0.0", 10, 32)

	// onionCatNet defines the IPv6 address block used to carry Tor
	// addresses (fd87:d87e:eb43::/48).
	onionCatNet = ipNet("fd87:d87e:eb43::", 48, 128)

	// zero4Net defines the IPv4 address block for address staring with 0
	// (0.0.0.0/8).
	zero4Net = ipNet("0.0.0.0", 8, 32)
)

// ipNet returns a net.IPNet struct given the passed IP address string, number
// of one bits to include at the start of the mask, and the total number of bits
// for the mask.
func ipNet(ip string, ones, bits int) net.IPNet {
	return net.IPNet{IP: net.ParseIP(ip), Mask: net.CIDRMask(ones, bits)}
}

// isRoutable returns whether or not the passed address is routable over the
// public internet.
func isRoutable(ip net.IP) bool {
	if ip == nil || ip.IsUnspecified() || ip.Equal(net.IPv4bcast) ||
		ip.IsLoopback() || zero4Net.Contains(ip) {

		return false
	}
	for _, rfc := range rfc1918Nets {
		if rfc.Contains(ip) {
			return false
		}
	}
	if rfc3927Net.Contains(ip) || rfc3849Net.Contains(ip) ||
		rfc4862Net.Contains(ip) || rfc6598Net.Contains(ip) {

		return false
	}
	return !rfc4193Net.Contains(ip) || onionCatNet.Contains(ip)
}

// ClassifyHost returns the network a host belongs to.  Hosts may be IP
// literals or Tor and I2P service names.  Names that would require DNS
// resolution are classified by the transport they will be dialed over,
// which is IPv4.
func ClassifyHost(host string) Network {
	host = strings.ToLower(strings.TrimSuffix(host, "."))
	switch {
	case strings.HasSuffix(host, ".onion"):
		return Onion
	case strings.HasSuffix(host, ".i2p"):
		return I2P
	}

	ip := net.ParseIP(host)
	if ip == nil {
		return IPv4
	}
	switch {
	case !isRoutable(ip):
		return Unroutable
	case onionCatNet.Contains(ip):
		return Onion
	case ip.To4() != nil:
		return IPv4
	default:
		return IPv6
	}
}

// ClassifyAddr returns the network of a host:port address.
func ClassifyAddr(addr string) Network {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		host = addr
	}
	return ClassifyHost(host)
}
