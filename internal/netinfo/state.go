// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package netinfo

import (
	"fmt"
	"net"
	"sync"

	"github.com/decred/go-socks/socks"
)

// netState is the configuration of a single network.
type netState struct {
	reachable bool
	limited   bool
	proxy     *socks.Proxy
}

// State holds the live reachability, limiting and proxy configuration of
// every network.  It is the configuration collaborator the catalog derives
// its descriptions from.
//
// All methods are safe for concurrent use.
type State struct {
	mtx  sync.RWMutex
	nets [numNetworks]netState
}

// NewState returns a state where the clearnet networks are reachable and the
// overlay networks are not.  Overlay networks become reachable once a proxy
// is configured for them.
func NewState() *State {
	s := &State{}
	s.nets[IPv4].reachable = true
	s.nets[IPv6].reachable = true
	return s
}

// valid returns whether n identifies a routable network.
func valid(n Network) bool {
	return n > Unroutable && n < numNetworks
}

// SetReachable marks whether peers can be connected to over the network.
func (s *State) SetReachable(n Network, reachable bool) {
	if !valid(n) {
		return
	}
	s.mtx.Lock()
	s.nets[n].reachable = reachable
	s.mtx.Unlock()
	log.Debugf("Network %v reachable: %v", n, reachable)
}

// SetLimited marks whether outbound connections over the network are
// restricted, for instance because only some networks were selected.
func (s *State) SetLimited(n Network, limited bool) {
	if !valid(n) {
		return
	}
	s.mtx.Lock()
	s.nets[n].limited = limited
	s.mtx.Unlock()
	log.Debugf("Network %v limited: %v", n, limited)
}

// LimitTo limits every network other than the provided ones.
func (s *State) LimitTo(nets ...Network) {
	keep := make(map[Network]bool, len(nets))
	for _, n := range nets {
		keep[n] = true
	}
	for _, n := range RoutableNetworks() {
		s.SetLimited(n, !keep[n])
	}
}

// SetProxy routes connections over the network through the provided SOCKS5
// proxy and marks the network reachable.  A nil proxy removes the proxy.
func (s *State) SetProxy(n Network, proxy *socks.Proxy) error {
	if !valid(n) {
		str := fmt.Sprintf("cannot set proxy for network %v", n)
		return Error{Err: ErrUnknownNetwork, Description: str}
	}
	var p *socks.Proxy
	if proxy != nil {
		if _, _, err := net.SplitHostPort(proxy.Addr); err != nil {
			str := fmt.Sprintf("proxy address %q for %v is invalid: %v",
				proxy.Addr, n, err)
			return Error{Err: ErrInvalidProxy, Description: str}
		}
		cp := *proxy
		p = &cp
	}
	s.mtx.Lock()
	s.nets[n].proxy = p
	if p != nil {
		s.nets[n].reachable = true
	}
	s.mtx.Unlock()
	return nil
}

// IsReachable returns whether peers can be connected to over the network.
func (s *State) IsReachable(n Network) bool {
	if !valid(n) {
		return false
	}
	s.mtx.RLock()
	r := s.nets[n].reachable
	s.mtx.RUnlock()
	return r
}

// IsLimited returns whether outbound connections over the network are
// restricted.
func (s *State) IsLimited(n Network) bool {
	if !valid(n) {
		return true
	}
	s.mtx.RLock()
	l := s.nets[n].limited
	s.mtx.RUnlock()
	return l
}

// Proxy returns a copy of the proxy configured for the network.
func (s *State) Proxy(n Network) (*socks.Proxy, bool) {
	if !valid(n) {
		return nil, false
	}
	s.mtx.RLock()
	p := s.nets[n].proxy
	s.mtx.RUnlock()
	if p == nil {
		return nil, false
	}
	cp := *p
	return &cp, true
}

// AllowsAddr returns whether an outbound connection to the address may be
// attempted under the current configuration.
func (s *State) AllowsAddr(addr string) bool {
	n := ClassifyAddr(addr)
	return s.IsReachable(n) && !s.IsLimited(n)
}

// ProxyForAddr returns the proxy to dial the address through, if any.
func (s *State) ProxyForAddr(addr string) (*socks.Proxy, bool) {
	return s.Proxy(ClassifyAddr(addr))
}
