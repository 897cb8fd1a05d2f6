// Copyright (c) 2021-2023 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package banmanager

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/anoncoin/anond/internal/peers"
)

// Config is the configuration struct for the ban manager.
type Config struct {
	// DisableBanning represents the status of disabling banning of
	// misbehaving peers.
	DisableBanning bool

	// BanThreshold represents the maximum allowed ban score before
	// misbehaving peers are disconnecting and banned.
	BanThreshold uint32

	// BanDuration is the duration for which misbehaving peers stay banned for.
	BanDuration time.Duration

	// MaxPeers indicates the maximum number of inbound and outbound
	// peers allowed.
	MaxPeers int

	// WhiteList represents the whitelisted IPs of the server.
	WhiteList []net.IPNet

	// Disconnect tears down the connection of a banned peer.  It is invoked
	// without the ban manager lock held.
	Disconnect func(p *peers.Peer)

	// OnBan is optionally invoked for every ban that is recorded.
	OnBan func(host string)
}

// BanManager tracks which peers are whitelisted and which hosts are banned.
// The ban scores themselves are kept by the peers.
type BanManager struct {
	cfg Config

	mtx         sync.Mutex
	whitelisted map[*peers.Peer]bool
	banned      map[string]time.Time
}

// NewBanManager initializes a new peer banning manager.
func NewBanManager(cfg *Config) *BanManager {
	return &BanManager{
		cfg:         *cfg,
		whitelisted: make(map[*peers.Peer]bool, cfg.MaxPeers),
		banned:      make(map[string]time.Time, cfg.MaxPeers),
	}
}

// hostOf returns the host portion of a peer address.
func hostOf(addr string) (string, error) {
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return "", fmt.Errorf("cannot split hostport %q: %w", addr, err)
	}
	return host, nil
}

// isWhitelisted checks if the provided host is covered by the whitelist.
// Hosts that are not IP addresses, such as onion names, never are.
func (bm *BanManager) isWhitelisted(host string) bool {
	ip := net.ParseIP(host)
	if ip == nil {
		return false
	}
	for _, ipnet := range bm.cfg.WhiteList {
		if ipnet.Contains(ip) {
			return true
		}
	}
	return false
}

// IsPeerWhitelisted checks if the provided peer is whitelisted.
func (bm *BanManager) IsPeerWhitelisted(p *peers.Peer) bool {
	bm.mtx.Lock()
	defer bm.mtx.Unlock()
	return bm.whitelisted[p]
}

// IsBanned returns whether the host is banned at the provided time.  Expired
// bans are dropped.
func (bm *BanManager) IsBanned(host string, now time.Time) bool {
	bm.mtx.Lock()
	defer bm.mtx.Unlock()
	banEnd, ok := bm.banned[host]
	if !ok {
		return false
	}
	if now.Before(banEnd) {
		return true
	}
	log.Infof("Peer %s is no longer banned", host)
	delete(bm.banned, host)
	return false
}

// AddPeer starts tracking the provided peer.  An error is returned when the
// peer's host is banned, in which case the caller must drop the connection.
func (bm *BanManager) AddPeer(p *peers.Peer, now time.Time) error {
	host, err := hostOf(p.Addr())
	if err != nil {
		return err
	}
	if bm.IsBanned(host, now) {
		bm.mtx.Lock()
		banEnd := bm.banned[host]
		bm.mtx.Unlock()
		return fmt.Errorf("peer %s is banned for another %v - disconnecting",
			host, banEnd.Sub(now))
	}

	whitelisted := bm.isWhitelisted(host)
	bm.mtx.Lock()
	bm.whitelisted[p] = whitelisted
	bm.mtx.Unlock()
	return nil
}

// RemovePeer discards the provided peer from the ban manager.
func (bm *BanManager) RemovePeer(p *peers.Peer) {
	bm.mtx.Lock()
	delete(bm.whitelisted, p)
	bm.mtx.Unlock()
}

// BanPeer bans the host of the provided peer and disconnects it.
func (bm *BanManager) BanPeer(p *peers.Peer, now time.Time) {
	// Return immediately if banning is disabled.
	if bm.cfg.DisableBanning {
		return
	}

	bm.mtx.Lock()
	whitelisted, ok := bm.whitelisted[p]
	bm.mtx.Unlock()
	if !ok || whitelisted {
		return
	}

	host, err := hostOf(p.Addr())
	if err != nil {
		log.Debugf("Can't ban peer %s: %v", p.Addr(), err)
		return
	}

	log.Infof("Banned peer %s for %v", p, bm.cfg.BanDuration)

	bm.mtx.Lock()
	bm.banned[host] = now.Add(bm.cfg.BanDuration)
	delete(bm.whitelisted, p)
	bm.mtx.Unlock()

	if bm.cfg.OnBan != nil {
		bm.cfg.OnBan(host)
	}
	if bm.cfg.Disconnect != nil {
		bm.cfg.Disconnect(p)
	}
}

// AddBanScore increases the persistent and decaying ban scores of the
// provided peer by the values passed as parameters. If the resulting score
// exceeds half of the ban threshold, a warning is logged including the reason
// provided. Further, if the score is above the ban threshold, the peer will
// be banned.
func (bm *BanManager) AddBanScore(p *peers.Peer, persistent, transient uint32, reason string, now time.Time) bool {
	// No warning is logged and no score is calculated if banning is disabled.
	if bm.cfg.DisableBanning {
		return false
	}

	bm.mtx.Lock()
	whitelisted, ok := bm.whitelisted[p]
	bm.mtx.Unlock()
	if !ok {
		log.Warnf("Attempt to score unknown peer %s", p)
		return false
	}
	if whitelisted {
		log.Debugf("Misbehaving whitelisted peer %s: %s", p, reason)
		return false
	}

	warnThreshold := bm.cfg.BanThreshold >> 1
	if transient == 0 && persistent == 0 {
		// The score is not being increased, but a warning message is still
		// logged if the score is above the warn threshold.
		if banScore := p.BanScore(); banScore > warnThreshold {
			log.Warnf("Misbehaving peer %s: %s -- ban score is %d, "+
				"it was not increased this time", p, reason, banScore)
		}
		return false
	}

	banScore := p.AddBanScore(persistent, transient)
	if banScore > warnThreshold {
		log.Warnf("Misbehaving peer %s: %s -- ban score increased to %d",
			p, reason, banScore)
		if banScore > bm.cfg.BanThreshold {
			log.Warnf("Misbehaving peer %s -- banning and disconnecting", p)
			bm.BanPeer(p, now)
			return true
		}
	}
	return false
}

// BannedHosts returns the number of hosts with a recorded ban.
func (bm *BanManager) BannedHosts() int {
	bm.mtx.Lock()
	defer bm.mtx.Unlock()
	return len(bm.banned)
}
