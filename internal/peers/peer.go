// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peers

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/connmgr/v3"
	"github.com/decred/dcrd/wire"
)

// MaxUserAgentLen is the maximum length of a recorded user agent.
const MaxUserAgentLen = 256

// safeChars is the set of characters allowed to appear in a recorded user
// agent.  Anything else is stripped before the value is stored.
const safeChars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ" +
	"01234567890 .,;_/:?@()-"

// SanitizeUserAgent strips every character outside the safe set so the value
// can be rendered in logs and JSON without escaping.
func SanitizeUserAgent(s string) string {
	var b strings.Builder
	for _, r := range s {
		if b.Len() >= MaxUserAgentLen {
			break
		}
		if strings.ContainsRune(safeChars, r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// directionString is a helper function that returns a string that represents
// the direction of a connection (inbound or outbound).
func directionString(inbound bool) string {
	if inbound {
		return "inbound"
	}
	return "outbound"
}

// PeerConfig describes a connection being registered.
type PeerConfig struct {
	// Addr is the remote host:port of the connection.
	Addr string

	// LocalAddr is the locally bound host:port, if known.
	LocalAddr string

	// Inbound is set for connections initiated by the remote peer.
	Inbound bool

	// Permanent is set for outbound connections to added nodes.
	Permanent bool

	// ConnectedAt is the time the connection was established.
	ConnectedAt time.Time
}

// Stats is a point in time copy of the observable state of a peer.
type Stats struct {
	ID              uint64
	Addr            string
	LocalAddr       string
	Inbound         bool
	Permanent       bool
	Services        wire.ServiceFlag
	ProtocolVersion uint32
	UserAgent       string
	StartingHeight  int64
	ConnTime        time.Time
	LastSend        time.Time
	LastRecv        time.Time
	BytesSent       uint64
	BytesRecv       uint64

	// LastPingTime is the round trip time of the last answered ping.
	LastPingTime time.Duration

	// PingSent is when the outstanding ping was sent.  It is only
	// meaningful when PingOutstanding is set.
	PingSent        time.Time
	PingOutstanding bool

	// PingQueued reports a ping was requested and has not been sent yet.
	PingQueued bool

	BanScore uint32
	SyncNode bool
}

// totals tracks the cumulative traffic of every peer ever registered.
type totals struct {
	bytesSent atomic.Uint64
	bytesRecv atomic.Uint64
}

// Peer is a single registered connection.  Handles remain valid after the
// peer disconnects, but every mutating relay operation on a disconnected
// peer is a no-op.
//
// All methods are safe for concurrent use.
type Peer struct {
	// The following fields are immutable after registration.
	id        uint64
	addr      string
	localAddr string
	inbound   bool
	permanent bool
	connTime  time.Time
	totals    *totals

	banScore connmgr.DynamicBanScore

	mtx             sync.Mutex
	disconnected    bool
	protocolVersion uint32
	userAgent       string
	services        wire.ServiceFlag
	startingHeight  int64
	lastSend        time.Time
	lastRecv        time.Time
	bytesSent       uint64
	bytesRecv       uint64
	pingQueued      bool
	pingNonce       uint64
	pingSent        time.Time
	lastPingTime    time.Duration
	sentAlerts      map[chainhash.Hash]struct{}
}

// ID returns the registry assigned id of the peer.
func (p *Peer) ID() uint64 {
	return p.id
}

// Addr returns the remote address of the peer.
func (p *Peer) Addr() string {
	return p.addr
}

// LocalAddr returns the locally bound address of the connection, if known.
func (p *Peer) LocalAddr() string {
	return p.localAddr
}

// Inbound returns whether the remote peer initiated the connection.
func (p *Peer) Inbound() bool {
	return p.inbound
}

// Permanent returns whether the connection targets an added node.
func (p *Peer) Permanent() bool {
	return p.permanent
}

// String returns the peer's address and directionality as a human-readable
// string.
func (p *Peer) String() string {
	return fmt.Sprintf("%s (%s)", p.addr, directionString(p.inbound))
}

// Connected returns whether the peer is still registered.
func (p *Peer) Connected() bool {
	p.mtx.Lock()
	connected := !p.disconnected
	p.mtx.Unlock()
	return connected
}

// markDisconnected flags the peer as gone and releases its relay
// bookkeeping.  It returns false when the peer was already disconnected.
func (p *Peer) markDisconnected() bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.disconnected {
		return false
	}
	p.disconnected = true
	p.sentAlerts = nil
	p.pingQueued = false
	p.banScore.Reset()
	return true
}

// RecordVersion stores the values negotiated during the handshake.  The user
// agent is sanitized before it is stored.
func (p *Peer) RecordVersion(pver uint32, userAgent string, services wire.ServiceFlag, startingHeight int64) {
	ua := SanitizeUserAgent(userAgent)
	p.mtx.Lock()
	p.protocolVersion = pver
	p.userAgent = ua
	p.services = services
	p.startingHeight = startingHeight
	p.mtx.Unlock()
}

// ProtocolVersion returns the negotiated protocol version, or zero before the
// handshake completes.
func (p *Peer) ProtocolVersion() uint32 {
	p.mtx.Lock()
	pver := p.protocolVersion
	p.mtx.Unlock()
	return pver
}

// AddBytesSent records bytes written to the peer.
func (p *Peer) AddBytesSent(n uint64, now time.Time) {
	p.mtx.Lock()
	p.bytesSent += n
	p.lastSend = now
	p.mtx.Unlock()
	p.totals.bytesSent.Add(n)
}

// AddBytesReceived records bytes read from the peer.
func (p *Peer) AddBytesReceived(n uint64, now time.Time) {
	p.mtx.Lock()
	p.bytesRecv += n
	p.lastRecv = now
	p.mtx.Unlock()
	p.totals.bytesRecv.Add(n)
}

// QueuePing requests a ping be sent on the next service tick.
func (p *Peer) QueuePing() {
	p.mtx.Lock()
	if !p.disconnected {
		p.pingQueued = true
	}
	p.mtx.Unlock()
}

// PingDue returns whether a ping should be sent at the provided time, either
// because one was requested or because interval has passed since the last
// one.  Only one ping is outstanding at a time.
func (p *Peer) PingDue(now time.Time, interval time.Duration) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.disconnected || p.pingNonce != 0 {
		return false
	}
	return p.pingQueued || now.Sub(p.pingSent) >= interval
}

// PingSent records a ping with the provided nonce was written at now and
// clears any queued ping request.
func (p *Peer) PingSent(nonce uint64, now time.Time) {
	p.mtx.Lock()
	p.pingQueued = false
	p.pingNonce = nonce
	p.pingSent = now
	p.mtx.Unlock()
}

// PongReceived records the answer to the outstanding ping.  It returns false
// when the nonce does not match the outstanding ping.
func (p *Peer) PongReceived(nonce uint64, now time.Time) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.pingNonce == 0 || nonce != p.pingNonce {
		return false
	}
	p.pingNonce = 0
	p.lastPingTime = now.Sub(p.pingSent)
	return true
}

// AddBanScore increases the persistent and decaying ban scores of the peer
// and returns the resulting score.
func (p *Peer) AddBanScore(persistent, transient uint32) uint32 {
	return p.banScore.Increase(persistent, transient)
}

// BanScore returns the current ban score of the peer.
func (p *Peer) BanScore() uint32 {
	return p.banScore.Int()
}

// MarkAlertSent transitions the alert with the provided hash to sent for
// this peer.  It returns true only for the transition itself, so the caller
// that receives true is the one responsible for transmitting the alert.
// Disconnected peers never transition.
func (p *Peer) MarkAlertSent(hash chainhash.Hash) bool {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	if p.disconnected {
		return false
	}
	if _, ok := p.sentAlerts[hash]; ok {
		return false
	}
	if p.sentAlerts == nil {
		p.sentAlerts = make(map[chainhash.Hash]struct{})
	}
	p.sentAlerts[hash] = struct{}{}
	return true
}

// HasAlert returns whether the alert with the provided hash is marked sent.
func (p *Peer) HasAlert(hash chainhash.Hash) bool {
	p.mtx.Lock()
	_, ok := p.sentAlerts[hash]
	p.mtx.Unlock()
	return ok
}

// forgetAlert drops the sent marker of an alert that is no longer stored.
func (p *Peer) forgetAlert(hash chainhash.Hash) {
	p.mtx.Lock()
	delete(p.sentAlerts, hash)
	p.mtx.Unlock()
}

// stats returns a copy of the observable peer state.
func (p *Peer) stats(syncID uint64) Stats {
	p.mtx.Lock()
	s := Stats{
		ID:              p.id,
		Addr:            p.addr,
		LocalAddr:       p.localAddr,
		Inbound:         p.inbound,
		Permanent:       p.permanent,
		Services:        p.services,
		ProtocolVersion: p.protocolVersion,
		UserAgent:       p.userAgent,
		StartingHeight:  p.startingHeight,
		ConnTime:        p.connTime,
		LastSend:        p.lastSend,
		LastRecv:        p.lastRecv,
		BytesSent:       p.bytesSent,
		BytesRecv:       p.bytesRecv,
		LastPingTime:    p.lastPingTime,
		PingSent:        p.pingSent,
		PingOutstanding: p.pingNonce != 0,
		PingQueued:      p.pingQueued,
		SyncNode:        syncID != 0 && syncID == p.id,
	}
	p.mtx.Unlock()
	s.BanScore = p.banScore.Int()
	return s
}
