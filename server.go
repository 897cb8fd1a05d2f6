// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"context"
	"crypto/elliptic"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/anoncoin/anond/internal/banmanager"
	"github.com/anoncoin/anond/internal/diag"
	"github.com/anoncoin/anond/internal/metrics"
	"github.com/anoncoin/anond/internal/netinfo"
	"github.com/anoncoin/anond/internal/nodedb"
	"github.com/anoncoin/anond/internal/peers"
	"github.com/anoncoin/anond/internal/relay"
	"github.com/anoncoin/anond/internal/rpcserver"
	"github.com/anoncoin/anond/internal/version"
	"github.com/decred/dcrd/certgen"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/connmgr/v3"
	"github.com/decred/dcrd/crypto/rand"
	"golang.org/x/sync/errgroup"
)

const (
	// connectionRetryInterval is the base amount of time to wait in between
	// retries when connecting to persistent peers.  It is adjusted by the
	// number of retries such that there is a retry backoff.
	connectionRetryInterval = time.Second * 5

	// dialTimeout is the maximum amount of time an outbound connection
	// attempt may take.
	dialTimeout = time.Second * 30

	// handshakeTimeout is the maximum amount of time a new connection has
	// to send its version frame.
	handshakeTimeout = time.Second * 30

	// idleTimeout is the duration of inactivity before a peer is timed out.
	// Peers are pinged well within it, so only unresponsive peers hit it.
	idleTimeout = time.Minute * 5

	// writeTimeout is the maximum amount of time a single frame write may
	// take.
	writeTimeout = time.Minute

	// pingInterval is the interval of time to wait in between sending ping
	// frames.
	pingInterval = time.Minute * 2

	// serviceTickInterval is how often pending pings are sent and the
	// metrics are refreshed.
	serviceTickInterval = time.Second * 2

	// sendQueueSize is the number of frames that can be queued for a peer
	// before further frames are dropped.
	sendQueueSize = 50

	// malformedFrameBanScore is the persistent ban score added when a peer
	// sends a frame that cannot be parsed.
	malformedFrameBanScore = 100

	// malformedAlertBanScore is the transient ban score added when a peer
	// relays an alert that cannot be decoded.
	malformedAlertBanScore = 10
)

// simpleAddr implements the net.Addr interface with two struct fields.
type simpleAddr struct {
	net, addr string
}

// String returns the address.
//
// This is part of the net.Addr interface.
func (a simpleAddr) String() string {
	return a.addr
}

// Network returns the network.
//
// This is part of the net.Addr interface.
func (a simpleAddr) Network() string {
	return a.net
}

// Ensure simpleAddr implements the net.Addr interface.
var _ net.Addr = simpleAddr{}

// serverPeer extends a registered peer with the connection it runs over and
// the goroutine plumbing that drives it.
type serverPeer struct {
	*peers.Peer

	server  *server
	conn    net.Conn
	connReq *connmgr.ConnReq

	sendQueue chan []byte
	quit      chan struct{}
	quitOnce  sync.Once

	// versionKnown is only accessed by the read loop.
	versionKnown bool

	handshakeDone atomic.Bool
}

// newServerPeer returns a new serverPeer for the provided connection.
func newServerPeer(s *server, conn net.Conn, connReq *connmgr.ConnReq) *serverPeer {
	return &serverPeer{
		server:    s,
		conn:      conn,
		connReq:   connReq,
		sendQueue: make(chan []byte, sendQueueSize),
		quit:      make(chan struct{}),
	}
}

// String returns the remote address and direction of the peer.
func (sp *serverPeer) String() string {
	if sp.Peer != nil {
		return sp.Peer.String()
	}
	return sp.conn.RemoteAddr().String()
}

// disconnect closes the connection of the peer.  It is safe to call multiple
// times.
func (sp *serverPeer) disconnect() {
	sp.quitOnce.Do(func() {
		close(sp.quit)
		sp.conn.Close()
	})
}

// disconnecting returns whether disconnect was called.
func (sp *serverPeer) disconnecting() bool {
	select {
	case <-sp.quit:
		return true
	default:
		return false
	}
}

// queueFrame encodes a frame and adds it to the send queue without blocking.
// It returns false when the frame was dropped because the queue is full or
// the peer is disconnecting.
func (sp *serverPeer) queueFrame(cmd frameCmd, payload []byte) bool {
	frame, err := encodeFrame(sp.server.params.Net, cmd, payload)
	if err != nil {
		srvrLog.Errorf("Unable to encode %v for %s: %v", cmd, sp, err)
		return false
	}
	if sp.disconnecting() {
		return false
	}
	select {
	case sp.sendQueue <- frame:
		return true
	default:
		srvrLog.Debugf("Send queue of %s is full -- dropping %v", sp, cmd)
		return false
	}
}

// writeLoop writes queued frames to the connection until the peer
// disconnects.
//
// It must be run as a goroutine.
func (sp *serverPeer) writeLoop() {
	for {
		select {
		case frame := <-sp.sendQueue:
			sp.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			n, err := sp.conn.Write(frame)
			if n > 0 {
				sp.AddBytesSent(uint64(n), time.Now())
			}
			if err != nil {
				if !sp.disconnecting() {
					srvrLog.Debugf("Unable to write to %s: %v", sp, err)
				}
				sp.disconnect()
				return
			}

		case <-sp.quit:
			return
		}
	}
}

// readLoop reads and dispatches frames until the connection fails or a
// protocol violation occurs.
func (sp *serverPeer) readLoop() {
	magic := sp.server.params.Net
	for {
		deadline := idleTimeout
		if !sp.versionKnown {
			deadline = handshakeTimeout
		}
		sp.conn.SetReadDeadline(time.Now().Add(deadline))

		cmd, payload, n, err := readFrame(sp.conn, magic)
		if n > 0 {
			sp.AddBytesReceived(uint64(n), time.Now())
		}
		if err == nil {
			err = sp.handleFrame(cmd, payload)
		}
		if err != nil {
			switch {
			case errors.Is(err, errMalformedFrame):
				sp.server.addBanScore(sp, malformedFrameBanScore, 0,
					err.Error())
			case sp.disconnecting(), errors.Is(err, io.EOF):
			default:
				srvrLog.Debugf("Lost connection to %s: %v", sp, err)
			}
			return
		}
	}
}

// handleFrame processes a single frame received from the peer.  The returned
// error ends the connection.
func (sp *serverPeer) handleFrame(cmd frameCmd, payload []byte) error {
	srvrLog.Tracef("Received %v (%d bytes) from %s", cmd, len(payload), sp)
	if cmd != cmdVersion && !sp.versionKnown {
		return malformedf("%v received before version", cmd)
	}

	s := sp.server
	now := time.Now()
	switch cmd {
	case cmdVersion:
		if sp.versionKnown {
			return malformedf("duplicate version")
		}
		msg, err := decodeVersion(payload)
		if err != nil {
			return err
		}
		if msg.Nonce == s.nonce {
			return fmt.Errorf("disconnecting self connection")
		}
		sp.RecordVersion(msg.ProtocolVersion, msg.UserAgent, msg.Services,
			msg.StartingHeight)
		sp.versionKnown = true
		sp.handshakeDone.Store(true)
		sp.queueFrame(cmdVerAck, nil)

		srvrLog.Debugf("Negotiated protocol version %d with %s",
			msg.ProtocolVersion, sp)
		if sent := s.relay.OnPeerConnected(sp.Peer, now.Unix()); sent > 0 {
			srvrLog.Debugf("Sent %d alerts to new peer %s", sent, sp)
		}

	case cmdVerAck:
		// Nothing to do.

	case cmdPing:
		nonce, err := decodeNonce(payload)
		if err != nil {
			return err
		}
		sp.queueFrame(cmdPong, encodeNonce(nonce))

	case cmdPong:
		nonce, err := decodeNonce(payload)
		if err != nil {
			return err
		}
		if !sp.PongReceived(nonce, now) {
			srvrLog.Debugf("Unexpected pong nonce %d from %s", nonce, sp)
		}

	case cmdAlert:
		outcome := s.relay.OnAlertReceived(payload, sp.Peer, now.Unix())
		switch outcome {
		case relay.OutcomeMalformed:
			s.addBanScore(sp, 0, malformedAlertBanScore, "malformed alert")
		case relay.OutcomeAccepted:
			s.notifyStatusBar(now)
		}
	}
	return nil
}

// server provides an anond server for handling communications to and from
// anond peers.
type server struct {
	params      *params
	nonce       uint64
	userAgent   string
	netState    *netinfo.State
	registry    *peers.Registry
	store       *alert.Store
	authority   *alert.KeyAuthority
	relay       *relay.Relay
	banMgr      *banmanager.BanManager
	metrics     *metrics.Metrics
	diag        *diag.Facade
	connManager *connmgr.ConnManager
	rpcServer   *rpcserver.Server

	// metricsServer is nil when metrics are not served.
	metricsServer *http.Server

	// lifetimeCtx is the context Run was invoked with.  It is only valid
	// once Run has been called and bounds asynchronous connection attempts.
	lifetimeCtx atomic.Pointer[context.Context]

	peerMtx     sync.RWMutex
	serverPeers map[uint64]*serverPeer

	// permanent tracks the outstanding permanent connection requests per
	// added node target.
	connReqMtx sync.Mutex
	permanent  map[string][]*connmgr.ConnReq

	statusMtx  sync.Mutex
	lastStatus string

	wg sync.WaitGroup
}

// Ensure server implements the collaborator interfaces it is wired as.
var (
	_ peers.Dialer = (*server)(nil)
	_ relay.Sender = (*server)(nil)
)

// context returns the lifetime context of the server, or a background
// context before Run is called.
func (s *server) context() context.Context {
	if ctx := s.lifetimeCtx.Load(); ctx != nil {
		return *ctx
	}
	return context.Background()
}

// addServerPeer tracks a registered peer so relay and ban instructions can
// reach its connection.
func (s *server) addServerPeer(sp *serverPeer) {
	s.peerMtx.Lock()
	s.serverPeers[sp.ID()] = sp
	s.peerMtx.Unlock()
}

// removeServerPeer stops tracking the peer.
func (s *server) removeServerPeer(sp *serverPeer) {
	s.peerMtx.Lock()
	if s.serverPeers[sp.ID()] == sp {
		delete(s.serverPeers, sp.ID())
	}
	s.peerMtx.Unlock()
}

// lookupServerPeer returns the tracked peer with the provided id, if any.
func (s *server) lookupServerPeer(id uint64) *serverPeer {
	s.peerMtx.RLock()
	sp := s.serverPeers[id]
	s.peerMtx.RUnlock()
	return sp
}

// serverPeersSnapshot returns the tracked peers.
func (s *server) serverPeersSnapshot() []*serverPeer {
	s.peerMtx.RLock()
	sps := make([]*serverPeer, 0, len(s.serverPeers))
	for _, sp := range s.serverPeers {
		sps = append(sps, sp)
	}
	s.peerMtx.RUnlock()
	return sps
}

// Enqueue hands the wire encoding of a signed alert to the send queue of the
// peer.  It never blocks and returns false when the alert was dropped.
//
// This is part of the relay.Sender interface.
func (s *server) Enqueue(p *peers.Peer, payload []byte) bool {
	sp := s.lookupServerPeer(p.ID())
	if sp == nil {
		return false
	}
	return sp.queueFrame(cmdAlert, payload)
}

// Connect requests an outbound connection to the target without blocking.
// Permanent connections are retried until Forget is called for the target.
//
// This is part of the peers.Dialer interface.
func (s *server) Connect(target string, permanent bool) {
	addr := normalizeAddress(target, s.params.DefaultPort)
	req := &connmgr.ConnReq{
		Addr:      simpleAddr{net: "tcp", addr: addr},
		Permanent: permanent,
	}
	if permanent {
		s.connReqMtx.Lock()
		s.permanent[target] = append(s.permanent[target], req)
		s.connReqMtx.Unlock()
	}
	go s.connManager.Connect(s.context(), req)
}

// Forget stops maintaining permanent connections to the target and drops
// any connection made for it.
//
// This is part of the peers.Dialer interface.
func (s *server) Forget(target string) {
	s.connReqMtx.Lock()
	reqs := s.permanent[target]
	delete(s.permanent, target)
	s.connReqMtx.Unlock()

	for _, req := range reqs {
		if req.ID() != 0 {
			s.connManager.Remove(req.ID())
		}
	}
}

// isWanted returns whether a permanent connection request is still backed by
// an added node.
func (s *server) isWanted(req *connmgr.ConnReq) bool {
	s.connReqMtx.Lock()
	defer s.connReqMtx.Unlock()
	for _, reqs := range s.permanent {
		for _, r := range reqs {
			if r == req {
				return true
			}
		}
	}
	return false
}

// connDone informs the connection manager an outbound connection ended so
// permanent connections are retried.
func (s *server) connDone(req *connmgr.ConnReq) {
	if req == nil {
		return
	}
	// Requests for forgotten targets were already removed.
	if req.Permanent && !s.isWanted(req) {
		return
	}
	s.connManager.Disconnect(req.ID())
}

// dial connects to the address through the proxy configured for its network.
// Addresses on networks that are unreachable or limited are refused while
// local addresses are always dialed directly.
func (s *server) dial(ctx context.Context, network, addr string) (net.Conn, error) {
	n := netinfo.ClassifyAddr(addr)
	if n != netinfo.Unroutable && !s.netState.AllowsAddr(addr) {
		return nil, fmt.Errorf("connections to %s over %v are not allowed",
			addr, n)
	}

	ctx, cancel := context.WithTimeout(ctx, dialTimeout)
	defer cancel()
	if proxy, ok := s.netState.ProxyForAddr(addr); ok {
		return proxy.DialContext(ctx, network, addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, network, addr)
}

// inboundPeerConnected is invoked by the connection manager when a new inbound
// connection is established.
func (s *server) inboundPeerConnected(conn net.Conn) {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err == nil && s.banMgr.IsBanned(host, time.Now()) {
		srvrLog.Debugf("Rejecting connection from banned host %s", host)
		conn.Close()
		return
	}
	if s.registry.Count() >= cfg.MaxPeers {
		srvrLog.Infof("Max peers reached [%d] - disconnecting peer %s",
			cfg.MaxPeers, conn.RemoteAddr())
		conn.Close()
		return
	}
	s.runPeer(conn, true, nil)
}

// outboundPeerConnected is invoked by the connection manager when a new
// outbound connection is established.
func (s *server) outboundPeerConnected(req *connmgr.ConnReq, conn net.Conn) {
	if req.Permanent && !s.isWanted(req) {
		srvrLog.Debugf("Dropping connection to removed node %s", req.Addr)
		s.connManager.Remove(req.ID())
		conn.Close()
		return
	}
	s.runPeer(conn, false, req)
}

// runPeer registers the connection and services it until it ends.
func (s *server) runPeer(conn net.Conn, inbound bool, req *connmgr.ConnReq) {
	s.wg.Add(1)
	defer s.wg.Done()

	now := time.Now()
	sp := newServerPeer(s, conn, req)
	p, err := s.registry.ConnectAccepted(peers.PeerConfig{
		Addr:        conn.RemoteAddr().String(),
		LocalAddr:   conn.LocalAddr().String(),
		Inbound:     inbound,
		Permanent:   req != nil && req.Permanent,
		ConnectedAt: now,
	})
	if err != nil {
		srvrLog.Debugf("Rejecting connection to %s: %v", conn.RemoteAddr(),
			err)
		conn.Close()
		s.connDone(req)
		return
	}
	sp.Peer = p
	if err := s.banMgr.AddPeer(p, now); err != nil {
		srvrLog.Infof("%v", err)
		s.registry.Disconnect(p)
		conn.Close()
		s.connDone(req)
		return
	}
	s.addServerPeer(sp)
	srvrLog.Debugf("Connected to %s", sp)

	// The version frame is queued before the write loop starts so it is
	// always the first frame sent.
	sp.queueFrame(cmdVersion, s.localVersion(now).encode())
	go sp.writeLoop()

	sp.readLoop()
	sp.disconnect()

	s.removeServerPeer(sp)
	s.banMgr.RemovePeer(p)
	s.registry.Disconnect(p)
	s.connDone(req)
	srvrLog.Debugf("Disconnected %s", sp)
}

// localVersion returns the version frame advertised to peers.
func (s *server) localVersion(now time.Time) *versionMsg {
	return &versionMsg{
		ProtocolVersion: s.params.ProtocolVersion,
		Services:        s.params.Services,
		Timestamp:       now.Unix(),
		Nonce:           s.nonce,
		UserAgent:       s.userAgent,
	}
}

// addBanScore applies the ban policy to a misbehaving peer.  Peers that
// cross the ban threshold are banned and disconnected.
func (s *server) addBanScore(sp *serverPeer, persistent, transient uint32, reason string) {
	if sp.Peer == nil {
		return
	}
	s.banMgr.AddBanScore(sp.Peer, persistent, transient, reason, time.Now())
}

// disconnectPeer drops the connection of the provided peer.
func (s *server) disconnectPeer(p *peers.Peer) {
	if sp := s.lookupServerPeer(p.ID()); sp != nil {
		sp.disconnect()
	}
}

// notifyStatusBar logs the text of the most urgent alert that applies to
// this node whenever it changes.
func (s *server) notifyStatusBar(now time.Time) {
	text, ok := s.store.StatusBar(now.Unix(), int32(s.params.ProtocolVersion),
		s.userAgent)
	s.statusMtx.Lock()
	changed := text != s.lastStatus
	s.lastStatus = text
	s.statusMtx.Unlock()
	if ok && changed {
		srvrLog.Warnf("ALERT: %s", text)
	}
}

// servicePeers sends the pings that are due and refreshes the metrics.
func (s *server) servicePeers(now time.Time) {
	var inbound, outbound int
	for _, sp := range s.serverPeersSnapshot() {
		if sp.Inbound() {
			inbound++
		} else {
			outbound++
		}
		if !sp.handshakeDone.Load() || !sp.PingDue(now, pingInterval) {
			continue
		}
		// Zero marks no outstanding ping.
		nonce := rand.Uint64()
		if nonce == 0 {
			nonce = 1
		}
		if sp.queueFrame(cmdPing, encodeNonce(nonce)) {
			sp.PingSent(nonce, now)
		}
	}

	active := s.store.ActiveSnapshot(now.Unix())
	if s.metrics != nil {
		s.metrics.SetPeers(inbound, outbound)
		s.metrics.SetActiveAlerts(len(active))
	}
}

// serviceHandler periodically services the peers until the context is
// cancelled.
func (s *server) serviceHandler(ctx context.Context) {
	ticker := time.NewTicker(serviceTickInterval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			s.servicePeers(now)
		case <-ctx.Done():
			return
		}
	}
}

// localAddrs returns the listen addresses bound to specific routable IPs.
func (s *server) localAddrs() []diag.LocalAddr {
	var addrs []diag.LocalAddr
	for _, listener := range cfg.Listeners {
		host, portStr, err := net.SplitHostPort(listener)
		if err != nil {
			continue
		}
		n := netinfo.ClassifyHost(host)
		if net.ParseIP(host) == nil || n == netinfo.Unroutable {
			continue
		}
		port, err := strconv.ParseUint(portStr, 10, 16)
		if err != nil {
			continue
		}
		addrs = append(addrs, diag.LocalAddr{
			Address: host,
			Port:    uint16(port),
			Score:   1,
		})
	}
	return addrs
}

// Run starts the server and blocks until the provided context is cancelled.
// Once the context is cancelled every connection is closed and Run returns
// after all subsystems have stopped.
func (s *server) Run(ctx context.Context) error {
	srvrLog.Trace("Starting server")
	s.lifetimeCtx.Store(&ctx)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.connManager.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.serviceHandler(gctx)
		return nil
	})
	if s.rpcServer != nil {
		g.Go(func() error {
			s.rpcServer.Run(gctx)
			return nil
		})
		g.Go(func() error {
			select {
			case <-s.rpcServer.RequestedProcessShutdown():
				shutdownRequestChannel <- struct{}{}
			case <-gctx.Done():
			}
			return nil
		})
	}
	if s.metricsServer != nil {
		ln, err := net.Listen("tcp", s.metricsServer.Addr)
		if err != nil {
			return fmt.Errorf("unable to listen for metrics on %s: %w",
				s.metricsServer.Addr, err)
		}
		g.Go(func() error {
			srvrLog.Infof("Metrics server listening on %s", ln.Addr())
			err := s.metricsServer.Serve(ln)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
		g.Go(func() error {
			<-gctx.Done()
			return s.metricsServer.Close()
		})
	}

	// Start the added nodes once the connection manager is running.
	if len(cfg.ConnectPeers) > 0 {
		s.registry.SeedAddedNodes(cfg.ConnectPeers)
	} else {
		n, err := s.registry.LoadAddedNodes()
		if err != nil {
			srvrLog.Errorf("Unable to load added nodes: %v", err)
		} else if n > 0 {
			srvrLog.Infof("Loaded %d added nodes", n)
		}
		s.registry.SeedAddedNodes(cfg.AddPeers)
	}

	<-gctx.Done()
	srvrLog.Warnf("Server shutting down")
	for _, sp := range s.serverPeersSnapshot() {
		sp.disconnect()
	}
	err := g.Wait()
	s.wg.Wait()
	srvrLog.Trace("Server stopped")
	return err
}

// resolver resolves connection targets to host:port addresses.  Tor and I2P
// names are returned as-is since they can only be reached through a proxy.
type resolver struct {
	lookup func(ctx context.Context, host string) ([]net.IP, error)
}

// Lookup resolves the target to its host:port addresses.
//
// This is part of the peers.Resolver interface.
func (r *resolver) Lookup(ctx context.Context, target, defaultPort string) ([]string, error) {
	host, port, err := net.SplitHostPort(target)
	if err != nil {
		host, port = target, defaultPort
	}
	switch netinfo.ClassifyHost(host) {
	case netinfo.Onion, netinfo.I2P:
		return []string{net.JoinHostPort(host, port)}, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return []string{net.JoinHostPort(ip.String(), port)}, nil
	}
	ips, err := r.lookup(ctx, host)
	if err != nil {
		return nil, err
	}
	addrs := make([]string, 0, len(ips))
	for _, ip := range ips {
		addrs = append(addrs, net.JoinHostPort(ip.String(), port))
	}
	return addrs, nil
}

// newResolver returns the resolver used for added node lookups.  DNS queries
// are sent through the Tor proxy when one is configured.
func newResolver(cfg *config) *resolver {
	if cfg.Proxy != "" && !cfg.NoOnion {
		proxy := cfg.Proxy
		return &resolver{lookup: func(ctx context.Context, host string) ([]net.IP, error) {
			return connmgr.TorLookupIP(ctx, host, proxy)
		}}
	}
	return &resolver{lookup: func(ctx context.Context, host string) ([]net.IP, error) {
		return net.DefaultResolver.LookupIP(ctx, "ip", host)
	}}
}

// genCertPair generates a key/cert pair to the paths provided.
func genCertPair(certFile, keyFile string) error {
	rpcsLog.Infof("Generating TLS certificates...")

	org := "anond autogenerated cert"
	validUntil := time.Now().Add(10 * 365 * 24 * time.Hour)
	cert, key, err := certgen.NewTLSCertPair(elliptic.P256(), org,
		validUntil, nil)
	if err != nil {
		return err
	}

	// Write cert and key files.
	if err = os.WriteFile(certFile, cert, 0644); err != nil {
		return err
	}
	if err = os.WriteFile(keyFile, key, 0600); err != nil {
		os.Remove(certFile)
		return err
	}

	rpcsLog.Infof("Done generating TLS certificates")
	return nil
}

// parseListeners determines whether each listen address is IPv4 and IPv6 and
// returns a slice of appropriate net.Addrs to listen on with TCP.  It also
// properly detects addresses which apply to "all interfaces" and adds the
// address as both IPv4 and IPv6.
func parseListeners(addrs []string) ([]net.Addr, error) {
	netAddrs := make([]net.Addr, 0, len(addrs)*2)
	for _, addr := range addrs {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			// Shouldn't happen due to already being normalized.
			return nil, err
		}

		// Empty host or host of * on plan9 is both IPv4 and IPv6.
		if host == "" || (host == "*" && runtime.GOOS == "plan9") {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
			continue
		}

		// Strip IPv6 zone id if present since net.ParseIP does not
		// handle it.
		zoneIndex := strings.LastIndex(host, "%")
		if zoneIndex > 0 {
			host = host[:zoneIndex]
		}

		if host == "localhost" {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp", addr: addr})
			continue
		}

		ip := net.ParseIP(host)
		if ip == nil {
			return nil, fmt.Errorf("'%s' is not a valid IP address", host)
		}

		// To4 returns nil when the IP is not an IPv4 address, so use
		// this determine the address type.
		if ip.To4() == nil {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp6", addr: addr})
		} else {
			netAddrs = append(netAddrs, simpleAddr{net: "tcp4", addr: addr})
		}
	}
	return netAddrs, nil
}

// listen opens a listener on every address using the provided listen
// function.  Addresses that cannot be bound are logged and skipped.
func listen(addrs []string, listenFunc func(string, string) (net.Listener, error)) ([]net.Listener, error) {
	netAddrs, err := parseListeners(addrs)
	if err != nil {
		return nil, err
	}

	listeners := make([]net.Listener, 0, len(netAddrs))
	for _, addr := range netAddrs {
		listener, err := listenFunc(addr.Network(), addr.String())
		if err != nil {
			srvrLog.Warnf("Can't listen on %s: %v", addr, err)
			continue
		}
		listeners = append(listeners, listener)
	}
	return listeners, nil
}

// setupRPCListeners returns a slice of listeners that are configured for use
// with the RPC server depending on the configuration settings for listen
// addresses and TLS.
func setupRPCListeners() ([]net.Listener, error) {
	// Setup TLS if not disabled.
	listenFunc := net.Listen
	if !cfg.DisableTLS {
		// Generate the TLS cert and key file if both don't already exist.
		if !fileExists(cfg.RPCKey) && !fileExists(cfg.RPCCert) {
			err := genCertPair(cfg.RPCCert, cfg.RPCKey)
			if err != nil {
				return nil, err
			}
		}
		keypair, err := tls.LoadX509KeyPair(cfg.RPCCert, cfg.RPCKey)
		if err != nil {
			return nil, err
		}

		tlsConfig := tls.Config{
			Certificates: []tls.Certificate{keypair},
			MinVersion:   tls.VersionTLS12,
		}

		// Change the standard net.Listen function to the tls one.
		listenFunc = func(net string, laddr string) (net.Listener, error) {
			return tls.Listen(net, laddr, &tlsConfig)
		}
	}

	return listen(cfg.RPCListeners, listenFunc)
}

// newServer returns a new anond server configured to listen on the provided
// addresses for the network specified by chainParams.  Use Run to begin
// accepting connections from peers.
func newServer(listenAddrs []string, db *nodedb.DB, params *params) (*server, error) {
	authority, err := alert.ParseKeyAuthority(cfg.alertPubKeys)
	if err != nil {
		return nil, err
	}

	s := &server{
		params:      params,
		nonce:       rand.Uint64(),
		userAgent:   version.UserAgent(cfg.UAComments...),
		netState:    cfg.netState,
		authority:   authority,
		serverPeers: make(map[uint64]*serverPeer),
		permanent:   make(map[string][]*connmgr.ConnReq),
	}

	s.registry = peers.NewRegistry(&peers.Config{
		DedupConnections: cfg.DedupConnections,
		DefaultPort:      params.DefaultPort,
		Dialer:           s,
		Resolver:         newResolver(cfg),
		AddedNodes:       db,
	})
	s.metrics = metrics.New(s.registry)
	s.store = alert.NewStore(&alert.StoreConfig{
		Retention: cfg.AlertRetention,
		Backend:   db,
		OnEvict: func(a *alert.Alert, hash chainhash.Hash) {
			s.relay.OnAlertEvicted(a, hash)
		},
	})
	s.relay = relay.New(&relay.Config{
		Store:        s.store,
		Authority:    authority,
		Registry:     s.registry,
		Sender:       s,
		DisableRelay: cfg.NoRelayAlerts,
		Metrics:      s.metrics,
	})
	s.banMgr = banmanager.NewBanManager(&banmanager.Config{
		DisableBanning: cfg.DisableBanning,
		BanThreshold:   cfg.BanThreshold,
		BanDuration:    cfg.BanDuration,
		MaxPeers:       cfg.MaxPeers,
		WhiteList:      cfg.whitelists,
		Disconnect:     s.disconnectPeer,
		OnBan: func(string) {
			s.metrics.PeerBanned()
		},
	})
	s.diag = diag.New(&diag.Config{
		Registry:        s.registry,
		Catalog:         netinfo.NewCatalog(s.netState),
		Store:           s.store,
		Version:         version.ClientVersion(),
		ProtocolVersion: params.ProtocolVersion,
		UserAgent:       s.userAgent,
		Services:        params.Services,
		LocalAddrs:      s.localAddrs,
	})

	// Replay the persisted alerts through the acceptance rules.
	loaded, err := s.store.Load(authority, time.Now().Unix())
	if err != nil {
		return nil, err
	}
	if loaded > 0 {
		srvrLog.Infof("Loaded %d stored alerts", loaded)
	}

	var listeners []net.Listener
	if len(listenAddrs) > 0 {
		listeners, err = listen(listenAddrs, net.Listen)
		if err != nil {
			return nil, err
		}
		if len(listeners) == 0 {
			return nil, errors.New("no valid listen address")
		}
	}
	cmgr, err := connmgr.New(&connmgr.Config{
		Listeners:      listeners,
		OnAccept:       s.inboundPeerConnected,
		RetryDuration:  connectionRetryInterval,
		TargetOutbound: uint32(cfg.MaxPeers),
		Dial:           s.dial,
		OnConnection:   s.outboundPeerConnected,
	})
	if err != nil {
		return nil, err
	}
	s.connManager = cmgr

	if !cfg.DisableRPC {
		rpcListeners, err := setupRPCListeners()
		if err != nil {
			return nil, err
		}
		if len(rpcListeners) == 0 {
			return nil, errors.New("RPCS: No valid listen address")
		}

		s.rpcServer, err = rpcserver.New(&rpcserver.Config{
			Listeners:     rpcListeners,
			ConnMgr:       s.registry,
			Diagnostics:   s.diag,
			Authority:     authority,
			Alerts:        s.relay,
			AlertVersion:  int32(params.ProtocolVersion),
			RPCUser:       cfg.RPCUser,
			RPCPass:       cfg.RPCPass,
			RPCMaxClients: cfg.RPCMaxClients,
		})
		if err != nil {
			return nil, err
		}
	}

	if cfg.MetricsListen != "" {
		s.metricsServer = &http.Server{
			Addr:              cfg.MetricsListen,
			Handler:           s.metrics.Handler(),
			ReadHeaderTimeout: 10 * time.Second,
		}
	}

	return s, nil
}
