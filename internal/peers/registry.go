// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peers

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// Dialer is the transport collaborator that establishes outbound
// connections.  Implementations must not block the caller.
type Dialer interface {
	// Connect requests a connection to the target.  Permanent connections
	// are retried until Forget is called for the target.
	Connect(target string, permanent bool)

	// Forget stops maintaining permanent connections to the target.
	Forget(target string)
}

// Resolver resolves a connection target to the concrete host:port
// addresses it refers to.
type Resolver interface {
	Lookup(ctx context.Context, target, defaultPort string) ([]string, error)
}

// AddedNodeBackend persists the added node list.  Iteration must follow
// insertion order.
type AddedNodeBackend interface {
	PutAddedNode(target string) error
	DeleteAddedNode(target string) error
	ForEachAddedNode(fn func(target string) error) error
}

// Config houses the parameters of a peer registry.
type Config struct {
	// DedupConnections rejects a connection whose remote endpoint is
	// already connected.
	DedupConnections bool

	// DefaultPort is used when resolving targets without a port.
	DefaultPort string

	// Dialer establishes outbound connections on behalf of AddNode and
	// TryOnce.  It may be nil, in which case no connections are requested.
	Dialer Dialer

	// Resolver performs DNS resolution for ResolveAdded.
	Resolver Resolver

	// AddedNodes optionally persists the added node list.
	AddedNodes AddedNodeBackend
}

// addedNode is an entry of the added node list.
type addedNode struct {
	target  string
	persist bool
}

// Registry owns the set of live connections and the list of added nodes.
//
// All methods are safe for concurrent use.  The registry lock is never held
// while calling the dialer, resolver or backend.
type Registry struct {
	cfg    Config
	nextID atomic.Uint64
	syncID atomic.Uint64
	totals totals

	mtx   sync.RWMutex
	peers map[uint64]*Peer

	addedMtx sync.Mutex
	added    []addedNode
}

// NewRegistry returns an empty registry.
func NewRegistry(cfg *Config) *Registry {
	r := &Registry{peers: make(map[uint64]*Peer)}
	if cfg != nil {
		r.cfg = *cfg
	}
	return r
}

// canonicalAddr returns a normalized form of a host:port address so the same
// endpoint written differently compares equal.  Non-IP hosts are compared
// case insensitively.
func canonicalAddr(addr string) string {
	if ap, err := netip.ParseAddrPort(addr); err == nil {
		return netip.AddrPortFrom(ap.Addr().Unmap(), ap.Port()).String()
	}
	host, port, err := net.SplitHostPort(addr)
	if err != nil {
		return strings.ToLower(addr)
	}
	return net.JoinHostPort(strings.ToLower(host), port)
}

// ConnectAccepted registers a newly established connection and returns its
// handle.  ErrDuplicateConnection is returned when deduplication is enabled
// and the remote endpoint is already connected.
func (r *Registry) ConnectAccepted(cfg PeerConfig) (*Peer, error) {
	p := &Peer{
		addr:      cfg.Addr,
		localAddr: cfg.LocalAddr,
		inbound:   cfg.Inbound,
		permanent: cfg.Permanent,
		connTime:  cfg.ConnectedAt,
		totals:    &r.totals,
	}

	r.mtx.Lock()
	if r.cfg.DedupConnections {
		canonical := canonicalAddr(cfg.Addr)
		for _, existing := range r.peers {
			if canonicalAddr(existing.addr) == canonical {
				r.mtx.Unlock()
				str := fmt.Sprintf("already connected to %s", cfg.Addr)
				return nil, makeError(ErrDuplicateConnection, str)
			}
		}
	}
	p.id = r.nextID.Add(1)
	r.peers[p.id] = p
	count := len(r.peers)
	r.mtx.Unlock()

	log.Debugf("New peer %s (id %d, %d total)", p, p.id, count)
	return p, nil
}

// Disconnect removes the peer from the registry.  Disconnecting a peer that
// is no longer registered is a no-op.
func (r *Registry) Disconnect(p *Peer) {
	if p == nil {
		return
	}
	r.mtx.Lock()
	if r.peers[p.id] == p {
		delete(r.peers, p.id)
	}
	r.mtx.Unlock()

	r.syncID.CompareAndSwap(p.id, 0)
	if p.markDisconnected() {
		log.Debugf("Removed peer %s (id %d)", p, p.id)
	}
}

// sortedPeersLocked returns the live peers in registration order.
//
// This function MUST be called with the registry lock held (for reads).
func (r *Registry) sortedPeersLocked() []*Peer {
	peers := make([]*Peer, 0, len(r.peers))
	for _, p := range r.peers {
		peers = append(peers, p)
	}
	sort.Slice(peers, func(i, j int) bool {
		return peers[i].id < peers[j].id
	})
	return peers
}

// Peers returns handles to the live peers in registration order.
func (r *Registry) Peers() []*Peer {
	r.mtx.RLock()
	peers := r.sortedPeersLocked()
	r.mtx.RUnlock()
	return peers
}

// Snapshot returns a consistent copy of the state of every live peer in
// registration order.
func (r *Registry) Snapshot() []Stats {
	syncID := r.syncID.Load()
	r.mtx.RLock()
	peers := r.sortedPeersLocked()
	stats := make([]Stats, 0, len(peers))
	for _, p := range peers {
		stats = append(stats, p.stats(syncID))
	}
	r.mtx.RUnlock()
	return stats
}

// Count returns the number of live peers.
func (r *Registry) Count() int {
	r.mtx.RLock()
	n := len(r.peers)
	r.mtx.RUnlock()
	return n
}

// Lookup returns the live peer with the provided id, or nil.
func (r *Registry) Lookup(id uint64) *Peer {
	r.mtx.RLock()
	p := r.peers[id]
	r.mtx.RUnlock()
	return p
}

// SetSyncPeer records the peer currently used for syncing.  A nil peer clears
// the record.
func (r *Registry) SetSyncPeer(p *Peer) {
	var id uint64
	if p != nil {
		id = p.id
	}
	r.syncID.Store(id)
}

// RequestPingAll flags every live peer for a ping on its next service tick.
// No bytes are sent by this call.
func (r *Registry) RequestPingAll() {
	r.mtx.RLock()
	for _, p := range r.peers {
		p.QueuePing()
	}
	r.mtx.RUnlock()
}

// ForgetAlert drops the sent marker for an alert from every live peer.
func (r *Registry) ForgetAlert(hash chainhash.Hash) {
	for _, p := range r.Peers() {
		p.forgetAlert(hash)
	}
}

// NetTotals returns the cumulative bytes received and sent across all peers
// ever registered.
func (r *Registry) NetTotals() (recv, sent uint64) {
	return r.totals.bytesRecv.Load(), r.totals.bytesSent.Load()
}

// validateTarget ensures a connection target is usable.
func validateTarget(target string) error {
	if strings.TrimSpace(target) == "" {
		return makeError(ErrInvalidTarget, "empty connection target")
	}
	return nil
}

// addNode appends the target to the added node list.
func (r *Registry) addNode(target string, persist bool) error {
	if err := validateTarget(target); err != nil {
		return err
	}

	r.addedMtx.Lock()
	for _, n := range r.added {
		if n.target == target {
			r.addedMtx.Unlock()
			str := fmt.Sprintf("node %s is already added", target)
			return makeError(ErrAlreadyAdded, str)
		}
	}
	r.added = append(r.added, addedNode{target: target, persist: persist})
	r.addedMtx.Unlock()

	if persist && r.cfg.AddedNodes != nil {
		if err := r.cfg.AddedNodes.PutAddedNode(target); err != nil {
			log.Errorf("Unable to persist added node %s: %v", target, err)
		}
	}
	if r.cfg.Dialer != nil {
		r.cfg.Dialer.Connect(target, true)
	}
	return nil
}

// AddNode adds the target to the added node list and requests a permanent
// connection to it.  ErrAlreadyAdded is returned if the target is present.
func (r *Registry) AddNode(target string) error {
	return r.addNode(target, true)
}

// SeedAddedNodes adds targets from the configuration without persisting
// them.  Targets that are already present are skipped.
func (r *Registry) SeedAddedNodes(targets []string) {
	for _, target := range targets {
		if err := r.addNode(target, false); err != nil {
			log.Debugf("Skipping configured node %q: %v", target, err)
		}
	}
}

// LoadAddedNodes restores the persisted added node list and requests
// permanent connections to every entry.
func (r *Registry) LoadAddedNodes() (int, error) {
	if r.cfg.AddedNodes == nil {
		return 0, nil
	}
	var targets []string
	err := r.cfg.AddedNodes.ForEachAddedNode(func(target string) error {
		targets = append(targets, target)
		return nil
	})
	if err != nil {
		return 0, err
	}

	var loaded int
	r.addedMtx.Lock()
	for _, target := range targets {
		dup := false
		for _, n := range r.added {
			if n.target == target {
				dup = true
				break
			}
		}
		if dup {
			continue
		}
		r.added = append(r.added, addedNode{target: target, persist: true})
		targets[loaded] = target
		loaded++
	}
	r.addedMtx.Unlock()

	if r.cfg.Dialer != nil {
		for _, target := range targets[:loaded] {
			r.cfg.Dialer.Connect(target, true)
		}
	}
	return loaded, nil
}

// RemoveNode removes the target from the added node list and stops
// maintaining connections to it.  ErrNotFound is returned if the target is
// absent.
func (r *Registry) RemoveNode(target string) error {
	r.addedMtx.Lock()
	idx := -1
	for i, n := range r.added {
		if n.target == target {
			idx = i
			break
		}
	}
	if idx < 0 {
		r.addedMtx.Unlock()
		str := fmt.Sprintf("node %s has not been added", target)
		return makeError(ErrNotFound, str)
	}
	removed := r.added[idx]
	r.added = append(r.added[:idx], r.added[idx+1:]...)
	r.addedMtx.Unlock()

	if removed.persist && r.cfg.AddedNodes != nil {
		if err := r.cfg.AddedNodes.DeleteAddedNode(target); err != nil {
			log.Errorf("Unable to remove added node %s: %v", target, err)
		}
	}
	if r.cfg.Dialer != nil {
		r.cfg.Dialer.Forget(target)
	}
	return nil
}

// AddedNodes returns the added node targets in the order they were added.
func (r *Registry) AddedNodes() []string {
	r.addedMtx.Lock()
	targets := make([]string, 0, len(r.added))
	for _, n := range r.added {
		targets = append(targets, n.target)
	}
	r.addedMtx.Unlock()
	return targets
}

// TryOnce requests a single outbound connection attempt to the target
// without adding it to the added node list.  It does not wait for the
// attempt.
func (r *Registry) TryOnce(target string) error {
	if err := validateTarget(target); err != nil {
		return err
	}
	if r.cfg.Dialer != nil {
		r.cfg.Dialer.Connect(target, false)
	}
	return nil
}

// AddedAddress is a resolved address of an added node.
type AddedAddress struct {
	Addr      string
	Connected bool
	Inbound   bool
}

// AddedNodeInfo describes an added node and, when resolution was requested,
// the addresses it resolves to.
type AddedNodeInfo struct {
	Target string

	// Resolved is set when DNS resolution was requested.  The remaining
	// fields are only meaningful when it is set.
	Resolved  bool
	Connected bool
	Addresses []AddedAddress

	// Err is set to an ErrResolutionFailed error when the target could
	// not be resolved.  It never fails the listing as a whole.
	Err error
}

// ResolveAdded describes the added nodes.  An empty target lists every added
// node while a non-empty target restricts the listing to that node and
// fails with ErrNotFound when it is not in the list.  When doDNS is set,
// every target is resolved afresh and cross referenced against the live
// peers by address.
func (r *Registry) ResolveAdded(ctx context.Context, target string, doDNS bool) ([]AddedNodeInfo, error) {
	targets := r.AddedNodes()
	if target != "" {
		found := false
		for _, t := range targets {
			if t == target {
				found = true
				break
			}
		}
		if !found {
			str := fmt.Sprintf("node %s has not been added", target)
			return nil, makeError(ErrNotFound, str)
		}
		targets = []string{target}
	}

	infos := make([]AddedNodeInfo, 0, len(targets))
	for _, t := range targets {
		infos = append(infos, AddedNodeInfo{Target: t})
	}
	if !doDNS {
		return infos, nil
	}

	for i := range infos {
		info := &infos[i]
		info.Resolved = true
		if r.cfg.Resolver == nil {
			info.Err = makeError(ErrResolutionFailed, "no resolver")
			continue
		}
		addrs, err := r.cfg.Resolver.Lookup(ctx, info.Target, r.cfg.DefaultPort)
		if err != nil {
			str := fmt.Sprintf("unable to resolve %s: %v", info.Target, err)
			info.Err = Error{Err: ErrResolutionFailed, Description: str}
			log.Debugf("%v", info.Err)
			continue
		}
		for _, addr := range addrs {
			info.Addresses = append(info.Addresses, AddedAddress{Addr: addr})
		}
	}

	// Cross reference against the live peers after resolution so no lock
	// is held during lookups.
	live := make(map[string]bool)
	r.mtx.RLock()
	for _, p := range r.peers {
		live[canonicalAddr(p.addr)] = p.inbound
	}
	r.mtx.RUnlock()

	for i := range infos {
		info := &infos[i]
		for j := range info.Addresses {
			addr := &info.Addresses[j]
			inbound, ok := live[canonicalAddr(addr.Addr)]
			if !ok {
				continue
			}
			addr.Connected = true
			addr.Inbound = inbound
			info.Connected = true
		}
	}
	return infos, nil
}
