// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package diag aggregates the read-only views of the peer registry,
// transport catalog and alert store rendered by the RPC server.
package diag

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/anoncoin/anond/internal/netinfo"
	"github.com/anoncoin/anond/internal/peers"
	"github.com/decred/dcrd/wire"
)

// PeerInfo describes a connected peer.
type PeerInfo struct {
	ID             uint64  `json:"id"`
	Addr           string  `json:"addr"`
	AddrLocal      string  `json:"addrlocal,omitempty"`
	Services       string  `json:"services"`
	LastSend       int64   `json:"lastsend"`
	LastRecv       int64   `json:"lastrecv"`
	BytesSent      uint64  `json:"bytessent"`
	BytesRecv      uint64  `json:"bytesrecv"`
	ConnTime       int64   `json:"conntime"`
	PingTime       float64 `json:"pingtime"`
	PingWait       float64 `json:"pingwait,omitempty"`
	Version        uint32  `json:"version"`
	SubVer         string  `json:"subver"`
	Inbound        bool    `json:"inbound"`
	StartingHeight int64   `json:"startingheight"`
	BanScore       uint32  `json:"banscore"`
	SyncNode       bool    `json:"syncnode"`
}

// NetTotals describes the cumulative network traffic of the node.
type NetTotals struct {
	TotalBytesRecv uint64 `json:"totalbytesrecv"`
	TotalBytesSent uint64 `json:"totalbytessent"`
	TimeMillis     int64  `json:"timemillis"`
}

// NetworkDesc describes the configuration of a single network.
type NetworkDesc struct {
	Name                      string `json:"name"`
	Limited                   bool   `json:"limited"`
	Reachable                 bool   `json:"reachable"`
	Proxy                     string `json:"proxy"`
	ProxyRandomizeCredentials bool   `json:"proxy_randomize_credentials"`
}

// LocalAddr is an address the node advertises for itself.
type LocalAddr struct {
	Address string `json:"address"`
	Port    uint16 `json:"port"`
	Score   int32  `json:"score"`
}

// AlertInfo describes an active alert.
type AlertInfo struct {
	ID         int32  `json:"id"`
	Priority   int32  `json:"priority"`
	Version    int32  `json:"version"`
	MinVer     int32  `json:"minver"`
	MaxVer     int32  `json:"maxver"`
	SubVer     string `json:"subver"`
	RelayUntil int64  `json:"relayuntil"`
	Expiration int64  `json:"expiration"`
	Status     string `json:"status"`
	CancelID   int32  `json:"cancel_id,omitempty"`
}

// NetworkInfo describes the node and its network configuration.
type NetworkInfo struct {
	Version         int32         `json:"version"`
	SubVersion      string        `json:"subversion"`
	ProtocolVersion uint32        `json:"protocolversion"`
	LocalServices   string        `json:"localservices"`
	TimeOffset      int64         `json:"timeoffset"`
	Connections     int           `json:"connections"`
	Networks        []NetworkDesc `json:"networks"`
	LocalAddresses  []LocalAddr   `json:"localaddresses"`
	Alerts          []AlertInfo   `json:"alerts"`
	Warnings        string        `json:"warnings"`
}

// AddedAddress describes a resolved address of an added node.  Connected is
// "inbound", "outbound" or "false".
type AddedAddress struct {
	Address   string `json:"address"`
	Connected string `json:"connected"`
}

// AddedNodeInfo describes an added node.  Connected and Addresses are only
// set when DNS resolution was requested.
type AddedNodeInfo struct {
	AddedNode string         `json:"addednode"`
	Connected *bool          `json:"connected,omitempty"`
	Addresses []AddedAddress `json:"addresses,omitempty"`
}

// Config houses the collaborators and static node details of a facade.
type Config struct {
	Registry *peers.Registry
	Catalog  *netinfo.Catalog
	Store    *alert.Store

	Version         int32
	ProtocolVersion uint32
	UserAgent       string
	Services        wire.ServiceFlag

	// LocalAddrs optionally returns the addresses the node advertises.
	LocalAddrs func() []LocalAddr

	// TimeOffset optionally returns the offset of the network adjusted
	// time from the local clock in seconds.
	TimeOffset func() int64
}

// Facade renders the read-only diagnostic views.  It holds no state of its
// own and is safe for concurrent use.
type Facade struct {
	cfg Config
}

// New returns a facade over the provided collaborators.
func New(cfg *Config) *Facade {
	return &Facade{cfg: *cfg}
}

// formatServices renders a service bitmask as fixed width hex.
func formatServices(services wire.ServiceFlag) string {
	return fmt.Sprintf("%016x", uint64(services))
}

// unixOrZero returns the unix time of t, or zero for the zero time.
func unixOrZero(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.Unix()
}

// ConnectionCount returns the number of connected peers.
func (f *Facade) ConnectionCount() int {
	return f.cfg.Registry.Count()
}

// PeerInfo describes every connected peer in registration order.
func (f *Facade) PeerInfo(now time.Time) []PeerInfo {
	stats := f.cfg.Registry.Snapshot()
	infos := make([]PeerInfo, 0, len(stats))
	for i := range stats {
		s := &stats[i]
		info := PeerInfo{
			ID:             s.ID,
			Addr:           s.Addr,
			AddrLocal:      s.LocalAddr,
			Services:       formatServices(s.Services),
			LastSend:       unixOrZero(s.LastSend),
			LastRecv:       unixOrZero(s.LastRecv),
			BytesSent:      s.BytesSent,
			BytesRecv:      s.BytesRecv,
			ConnTime:       unixOrZero(s.ConnTime),
			PingTime:       s.LastPingTime.Seconds(),
			Version:        s.ProtocolVersion,
			SubVer:         s.UserAgent,
			Inbound:        s.Inbound,
			StartingHeight: s.StartingHeight,
			BanScore:       s.BanScore,
			SyncNode:       s.SyncNode,
		}
		if s.PingOutstanding {
			if wait := now.Sub(s.PingSent); wait > 0 {
				info.PingWait = wait.Seconds()
			}
		}
		infos = append(infos, info)
	}
	return infos
}

// NetTotals returns the cumulative traffic of the node.
func (f *Facade) NetTotals(now time.Time) NetTotals {
	recv, sent := f.cfg.Registry.NetTotals()
	return NetTotals{
		TotalBytesRecv: recv,
		TotalBytesSent: sent,
		TimeMillis:     now.UnixNano() / int64(time.Millisecond),
	}
}

// Networks describes the configuration of every routable network.
func (f *Facade) Networks() []NetworkDesc {
	infos := f.cfg.Catalog.Describe()
	descs := make([]NetworkDesc, 0, len(infos))
	for _, info := range infos {
		descs = append(descs, NetworkDesc{
			Name:                      info.Name,
			Limited:                   info.Limited,
			Reachable:                 info.Reachable,
			Proxy:                     info.Proxy,
			ProxyRandomizeCredentials: info.ProxyRandomizeCredentials,
		})
	}
	return descs
}

// Alerts describes the alerts active at the provided time, most urgent
// first.
func (f *Facade) Alerts(now time.Time) []AlertInfo {
	active := f.cfg.Store.ActiveSnapshot(now.Unix())
	infos := make([]AlertInfo, 0, len(active))
	for _, a := range active {
		infos = append(infos, AlertInfo{
			ID:         a.ID,
			Priority:   a.Priority,
			Version:    a.Version,
			MinVer:     a.MinVer,
			MaxVer:     a.MaxVer,
			SubVer:     strings.Join(a.SubVers, " or "),
			RelayUntil: a.RelayUntil,
			Expiration: a.Expiration,
			Status:     a.StatusBar,
			CancelID:   a.Cancel,
		})
	}
	return infos
}

// NetworkInfo describes the node and its network configuration.
func (f *Facade) NetworkInfo(now time.Time) NetworkInfo {
	info := NetworkInfo{
		Version:         f.cfg.Version,
		SubVersion:      f.cfg.UserAgent,
		ProtocolVersion: f.cfg.ProtocolVersion,
		LocalServices:   formatServices(f.cfg.Services),
		Connections:     f.cfg.Registry.Count(),
		Networks:        f.Networks(),
		LocalAddresses:  []LocalAddr{},
		Alerts:          f.Alerts(now),
	}
	if f.cfg.TimeOffset != nil {
		info.TimeOffset = f.cfg.TimeOffset()
	}
	if f.cfg.LocalAddrs != nil {
		if addrs := f.cfg.LocalAddrs(); addrs != nil {
			info.LocalAddresses = addrs
		}
	}
	warning, _ := f.cfg.Store.StatusBar(now.Unix(),
		int32(f.cfg.ProtocolVersion), f.cfg.UserAgent)
	info.Warnings = warning
	return info
}

// AddedNodeInfo describes the added nodes, or the single added node target
// when it is not empty.
func (f *Facade) AddedNodeInfo(ctx context.Context, target string, dns bool) ([]AddedNodeInfo, error) {
	nodes, err := f.cfg.Registry.ResolveAdded(ctx, target, dns)
	if err != nil {
		return nil, err
	}
	infos := make([]AddedNodeInfo, 0, len(nodes))
	for _, n := range nodes {
		info := AddedNodeInfo{AddedNode: n.Target}
		if n.Resolved {
			connected := n.Connected
			info.Connected = &connected
			info.Addresses = make([]AddedAddress, 0, len(n.Addresses))
			for _, addr := range n.Addresses {
				state := "false"
				if addr.Connected {
					state = "outbound"
					if addr.Inbound {
						state = "inbound"
					}
				}
				info.Addresses = append(info.Addresses, AddedAddress{
					Address:   addr.Addr,
					Connected: state,
				})
			}
		}
		infos = append(infos, info)
	}
	return infos, nil
}
