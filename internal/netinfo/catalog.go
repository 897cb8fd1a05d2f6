// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netinfo

import "github.com/decred/go-socks/socks"

// Source provides the live per network configuration.  State implements it.
type Source interface {
	IsReachable(n Network) bool
	IsLimited(n Network) bool
	Proxy(n Network) (*socks.Proxy, bool)
}

// TransportInfo describes the configuration of a single network.
type TransportInfo struct {
	Network   Network
	Name      string
	Reachable bool
	Limited   bool

	// Proxy is the host:port of the proxy used for the network, or empty.
	Proxy string

	// ProxyRandomizeCredentials reports whether random credentials are
	// used per connection to isolate Tor streams.
	ProxyRandomizeCredentials bool
}

// Catalog describes every routable network.  It holds no state of its own;
// every description is rebuilt from the source.
type Catalog struct {
	src Source
}

// NewCatalog returns a catalog describing the provided source.
func NewCatalog(src Source) *Catalog {
	return &Catalog{src: src}
}

// Describe returns one entry per routable network in display order.  The
// unroutable pseudo network is never included.
func (c *Catalog) Describe() []TransportInfo {
	nets := RoutableNetworks()
	infos := make([]TransportInfo, 0, len(nets))
	for _, n := range nets {
		info := TransportInfo{
			Network:   n,
			Name:      n.String(),
			Reachable: c.src.IsReachable(n),
			Limited:   c.src.IsLimited(n),
		}
		if p, ok := c.src.Proxy(n); ok {
			info.Proxy = p.Addr
			info.ProxyRandomizeCredentials = p.TorIsolation
		}
		infos = append(infos, info)
	}
	return infos
}
