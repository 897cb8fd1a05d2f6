// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package peers

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/chaincfg/chainhash"
)

var testTime = time.Unix(1700000000, 0)

// dialRequest is a connection request recorded by mockDialer.
type dialRequest struct {
	target    string
	permanent bool
}

// mockDialer records connection requests.
type mockDialer struct {
	mtx       sync.Mutex
	requests  []dialRequest
	forgotten []string
}

func (d *mockDialer) Connect(target string, permanent bool) {
	d.mtx.Lock()
	d.requests = append(d.requests, dialRequest{target, permanent})
	d.mtx.Unlock()
}

func (d *mockDialer) Forget(target string) {
	d.mtx.Lock()
	d.forgotten = append(d.forgotten, target)
	d.mtx.Unlock()
}

// mockResolver resolves from a fixed table and fails for unknown hosts.
type mockResolver map[string][]string

func (m mockResolver) Lookup(_ context.Context, target, _ string) ([]string, error) {
	addrs, ok := m[target]
	if !ok {
		return nil, fmt.Errorf("no such host %s", target)
	}
	return addrs, nil
}

// memAddedNodes is an in-memory AddedNodeBackend.
type memAddedNodes struct {
	targets []string
}

func (m *memAddedNodes) PutAddedNode(target string) error {
	m.targets = append(m.targets, target)
	return nil
}

func (m *memAddedNodes) DeleteAddedNode(target string) error {
	for i, t := range m.targets {
		if t == target {
			m.targets = append(m.targets[:i], m.targets[i+1:]...)
			break
		}
	}
	return nil
}

func (m *memAddedNodes) ForEachAddedNode(fn func(string) error) error {
	for _, t := range m.targets {
		if err := fn(t); err != nil {
			return err
		}
	}
	return nil
}

// connect registers a test peer, failing the test on error.
func connect(t *testing.T, r *Registry, addr string, inbound bool) *Peer {
	t.Helper()
	p, err := r.ConnectAccepted(PeerConfig{Addr: addr, Inbound: inbound,
		ConnectedAt: testTime})
	if err != nil {
		t.Fatalf("unexpected connect error for %s: %v", addr, err)
	}
	return p
}

// TestSnapshotTracksConnections ensures the snapshot always reflects the
// outstanding connections in registration order.
func TestSnapshotTracksConnections(t *testing.T) {
	r := NewRegistry(nil)
	rng := rand.New(rand.NewSource(1))
	live := make(map[uint64]*Peer)
	var all []*Peer

	for i := 0; i < 200; i++ {
		if len(all) == 0 || rng.Intn(3) != 0 {
			addr := fmt.Sprintf("10.0.%d.%d:9377", i/256, i%256)
			p := connect(t, r, addr, i%2 == 0)
			live[p.ID()] = p
			all = append(all, p)
		} else {
			// Disconnecting an already removed peer must be harmless.
			p := all[rng.Intn(len(all))]
			r.Disconnect(p)
			delete(live, p.ID())
		}

		snap := r.Snapshot()
		if len(snap) != len(live) {
			t.Fatalf("step %d: snapshot has %d peers, want %d", i,
				len(snap), len(live))
		}
		for j, s := range snap {
			if _, ok := live[s.ID]; !ok {
				t.Fatalf("step %d: snapshot includes removed peer %d", i,
					s.ID)
			}
			if j > 0 && snap[j-1].ID >= s.ID {
				t.Fatalf("step %d: snapshot not in registration order", i)
			}
		}
	}
	if r.Count() != len(live) {
		t.Fatalf("count %d, want %d", r.Count(), len(live))
	}
}

// TestDisconnectIdempotent ensures a second disconnect is a no-op and the
// handle no longer accepts relay markers.
func TestDisconnectIdempotent(t *testing.T) {
	r := NewRegistry(nil)
	p := connect(t, r, "10.0.0.1:9377", false)
	p.AddBanScore(10, 0)

	r.Disconnect(p)
	r.Disconnect(p)
	r.Disconnect(nil)

	if r.Count() != 0 || r.Lookup(p.ID()) != nil {
		t.Fatal("disconnected peer still registered")
	}
	if p.Connected() {
		t.Fatal("handle reports connected after disconnect")
	}
	if p.MarkAlertSent(chainhash.Hash{1}) {
		t.Fatal("disconnected peer accepted an alert marker")
	}
	if p.BanScore() != 0 {
		t.Fatalf("ban score %d not reset on disconnect", p.BanScore())
	}
}

// TestConnectDedup ensures duplicate endpoints are rejected only when the
// policy is enabled.
func TestConnectDedup(t *testing.T) {
	tests := []struct {
		name    string
		dedup   bool
		first   string
		second  string
		wantErr error
	}{
		{"dedup same", true, "10.0.0.1:9377", "10.0.0.1:9377",
			ErrDuplicateConnection},
		{"dedup mapped v4", true, "10.0.0.1:9377", "[::ffff:10.0.0.1]:9377",
			ErrDuplicateConnection},
		{"dedup hostname case", true, "Seed.Example.org:9377",
			"seed.example.org:9377", ErrDuplicateConnection},
		{"dedup different port", true, "10.0.0.1:9377", "10.0.0.1:9378",
			nil},
		{"no dedup", false, "10.0.0.1:9377", "10.0.0.1:9377", nil},
	}

	for _, test := range tests {
		r := NewRegistry(&Config{DedupConnections: test.dedup})
		connect(t, r, test.first, true)
		_, err := r.ConnectAccepted(PeerConfig{Addr: test.second})
		if !errors.Is(err, test.wantErr) {
			t.Errorf("%s: got err %v, want %v", test.name, err, test.wantErr)
		}
	}
}

// TestAddRemoveNode exercises the added node list semantics.
func TestAddRemoveNode(t *testing.T) {
	dialer := &mockDialer{}
	backend := &memAddedNodes{}
	r := NewRegistry(&Config{Dialer: dialer, AddedNodes: backend})

	if err := r.AddNode("10.0.0.5"); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if err := r.AddNode("10.0.0.5"); !errors.Is(err, ErrAlreadyAdded) {
		t.Fatalf("second add: got err %v, want %v", err, ErrAlreadyAdded)
	}
	if n := len(r.AddedNodes()); n != 1 {
		t.Fatalf("added node list has %d entries, want 1", n)
	}
	if err := r.RemoveNode("10.0.0.5"); err != nil {
		t.Fatalf("unexpected remove error: %v", err)
	}
	if err := r.RemoveNode("10.0.0.5"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second remove: got err %v, want %v", err, ErrNotFound)
	}
	if err := r.AddNode(" "); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("empty add: got err %v, want %v", err, ErrInvalidTarget)
	}

	wantRequests := []dialRequest{{"10.0.0.5", true}}
	if len(dialer.requests) != 1 || dialer.requests[0] != wantRequests[0] {
		t.Fatalf("unexpected dial requests %v", dialer.requests)
	}
	if len(dialer.forgotten) != 1 || dialer.forgotten[0] != "10.0.0.5" {
		t.Fatalf("unexpected forgotten targets %v", dialer.forgotten)
	}
	if len(backend.targets) != 0 {
		t.Fatalf("removed node still persisted: %v", backend.targets)
	}
}

// TestTryOnce ensures one-shot attempts are delegated and never added.
func TestTryOnce(t *testing.T) {
	dialer := &mockDialer{}
	r := NewRegistry(&Config{Dialer: dialer})

	if err := r.TryOnce("node.example.org:9377"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := r.TryOnce(""); !errors.Is(err, ErrInvalidTarget) {
		t.Fatalf("empty target: got err %v, want %v", err, ErrInvalidTarget)
	}
	if len(r.AddedNodes()) != 0 {
		t.Fatal("one-shot target was added")
	}
	want := dialRequest{"node.example.org:9377", false}
	if len(dialer.requests) != 1 || dialer.requests[0] != want {
		t.Fatalf("unexpected dial requests %v", dialer.requests)
	}
}

// TestAddedNodePersistence ensures persisted nodes are restored while
// configured nodes are never written.
func TestAddedNodePersistence(t *testing.T) {
	backend := &memAddedNodes{}
	r := NewRegistry(&Config{AddedNodes: backend})
	r.SeedAddedNodes([]string{"config.example.org"})
	if err := r.AddNode("10.0.0.7"); err != nil {
		t.Fatalf("unexpected add error: %v", err)
	}
	if len(backend.targets) != 1 || backend.targets[0] != "10.0.0.7" {
		t.Fatalf("unexpected persisted nodes %v", backend.targets)
	}

	dialer := &mockDialer{}
	restored := NewRegistry(&Config{AddedNodes: backend, Dialer: dialer})
	restored.SeedAddedNodes([]string{"10.0.0.7"})
	n, err := restored.LoadAddedNodes()
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if n != 0 {
		t.Fatalf("loaded %d nodes already present from config", n)
	}
	if got := restored.AddedNodes(); len(got) != 1 {
		t.Fatalf("unexpected added nodes %v", got)
	}
}

// TestResolveAdded ensures listings cross reference live peers by address
// and that resolution failures only affect their own entry.
func TestResolveAdded(t *testing.T) {
	resolver := mockResolver{
		"multi.example.org": {"10.0.0.1:9377", "10.0.0.2:9377"},
		"10.0.0.3:9377":     {"10.0.0.3:9377"},
	}
	r := NewRegistry(&Config{Resolver: resolver, DefaultPort: "9377"})
	for _, target := range []string{"multi.example.org", "broken.invalid",
		"10.0.0.3:9377"} {

		if err := r.AddNode(target); err != nil {
			t.Fatalf("unexpected add error: %v", err)
		}
	}
	connect(t, r, "10.0.0.2:9377", true)

	infos, err := r.ResolveAdded(context.Background(), "", false)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(infos) != 3 || infos[0].Resolved || infos[0].Addresses != nil {
		t.Fatalf("unexpected listing without dns: %s", spew.Sdump(infos))
	}

	infos, err = r.ResolveAdded(context.Background(), "", true)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []AddedNodeInfo{{
		Target:    "multi.example.org",
		Resolved:  true,
		Connected: true,
		Addresses: []AddedAddress{
			{Addr: "10.0.0.1:9377"},
			{Addr: "10.0.0.2:9377", Connected: true, Inbound: true},
		},
	}, {
		Target:   "broken.invalid",
		Resolved: true,
	}, {
		Target:    "10.0.0.3:9377",
		Resolved:  true,
		Addresses: []AddedAddress{{Addr: "10.0.0.3:9377"}},
	}}
	if len(infos) != len(want) {
		t.Fatalf("got %d entries, want %d", len(infos), len(want))
	}
	for i := range want {
		got := infos[i]
		if i == 1 {
			if !errors.Is(got.Err, ErrResolutionFailed) {
				t.Fatalf("broken entry: got err %v, want %v", got.Err,
					ErrResolutionFailed)
			}
			got.Err = nil
		}
		if fmt.Sprint(got) != fmt.Sprint(want[i]) {
			t.Fatalf("entry %d mismatch\ngot: %s\nwant: %s", i,
				spew.Sdump(got), spew.Sdump(want[i]))
		}
	}

	if _, err := r.ResolveAdded(context.Background(), "absent", true); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown target: got err %v, want %v", err, ErrNotFound)
	}
	infos, err = r.ResolveAdded(context.Background(), "10.0.0.3:9377", true)
	if err != nil || len(infos) != 1 || infos[0].Connected {
		t.Fatalf("single target: got %v, %v", infos, err)
	}
}

// TestPeerCounters ensures per-peer counters and registry totals only grow
// and survive disconnects.
func TestPeerCounters(t *testing.T) {
	r := NewRegistry(nil)
	p1 := connect(t, r, "10.0.0.1:9377", false)
	p2 := connect(t, r, "10.0.0.2:9377", true)

	p1.AddBytesSent(100, testTime.Add(time.Second))
	p1.AddBytesReceived(40, testTime.Add(2*time.Second))
	p2.AddBytesSent(5, testTime.Add(3*time.Second))
	r.Disconnect(p2)

	recv, sent := r.NetTotals()
	if recv != 40 || sent != 105 {
		t.Fatalf("net totals recv %d sent %d, want 40 and 105", recv, sent)
	}
	snap := r.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("got %d peers, want 1", len(snap))
	}
	s := snap[0]
	if s.BytesSent != 100 || s.BytesRecv != 40 ||
		!s.LastSend.Equal(testTime.Add(time.Second)) ||
		!s.LastRecv.Equal(testTime.Add(2*time.Second)) ||
		!s.ConnTime.Equal(testTime) {

		t.Fatalf("unexpected stats %s", spew.Sdump(s))
	}
}

// TestPingLifecycle ensures ping requests only set flags and pongs are
// matched by nonce.
func TestPingLifecycle(t *testing.T) {
	r := NewRegistry(nil)
	p := connect(t, r, "10.0.0.1:9377", false)
	p.PingSent(1, testTime)
	p.PongReceived(1, testTime)

	r.RequestPingAll()
	if s := r.Snapshot()[0]; !s.PingQueued || s.PingOutstanding {
		t.Fatalf("unexpected ping state %s", spew.Sdump(s))
	}
	if !p.PingDue(testTime, time.Hour) {
		t.Fatal("requested ping is not due")
	}

	p.PingSent(42, testTime)
	if p.PingDue(testTime.Add(2*time.Hour), time.Hour) {
		t.Fatal("second ping due while one is outstanding")
	}
	if p.PongReceived(7, testTime.Add(time.Second)) {
		t.Fatal("pong with wrong nonce accepted")
	}
	if !p.PongReceived(42, testTime.Add(250*time.Millisecond)) {
		t.Fatal("pong with matching nonce rejected")
	}
	s := r.Snapshot()[0]
	if s.PingQueued || s.PingOutstanding || s.LastPingTime != 250*time.Millisecond {
		t.Fatalf("unexpected ping state %s", spew.Sdump(s))
	}
}

// TestRecordVersion ensures user agents are sanitized before they are stored
// and the sync peer is reported.
func TestRecordVersion(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"/anond:0.1.0/", "/anond:0.1.0/"},
		{"/evil\"},{\"x\":1/", "/evil,x:1/"},
		{"/ctrl\x00\x1b[31m/", "/ctrl31m/"},
		{"/été/", "/t/"},
	}
	for _, test := range tests {
		if got := SanitizeUserAgent(test.in); got != test.want {
			t.Errorf("%q: got %q, want %q", test.in, got, test.want)
		}
	}

	r := NewRegistry(nil)
	p := connect(t, r, "10.0.0.1:9377", false)
	p.RecordVersion(70005, "/bad<script>/", 1, 1234)
	r.SetSyncPeer(p)
	s := r.Snapshot()[0]
	if s.UserAgent != "/badscript/" || s.ProtocolVersion != 70005 ||
		s.Services != 1 || s.StartingHeight != 1234 || !s.SyncNode {

		t.Fatalf("unexpected stats %s", spew.Sdump(s))
	}
	r.Disconnect(p)
	p2 := connect(t, r, "10.0.0.2:9377", false)
	if r.Snapshot()[0].SyncNode {
		t.Fatalf("peer %d reported as sync node", p2.ID())
	}
}

// TestMarkAlertSent ensures each alert transitions to sent exactly once per
// peer.
func TestMarkAlertSent(t *testing.T) {
	r := NewRegistry(nil)
	p := connect(t, r, "10.0.0.1:9377", false)
	hash := chainhash.Hash{7}

	var wg sync.WaitGroup
	var mtx sync.Mutex
	transitions := 0
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if p.MarkAlertSent(hash) {
				mtx.Lock()
				transitions++
				mtx.Unlock()
			}
		}()
	}
	wg.Wait()
	if transitions != 1 {
		t.Fatalf("got %d transitions, want 1", transitions)
	}
	if !p.HasAlert(hash) {
		t.Fatal("alert not marked sent")
	}
	r.ForgetAlert(hash)
	if p.HasAlert(hash) {
		t.Fatal("alert marker not forgotten")
	}
}

// TestConcurrentRegistry exercises connects, disconnects, counter updates and
// snapshots concurrently.
func TestConcurrentRegistry(t *testing.T) {
	r := NewRegistry(&Config{DedupConnections: true})
	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 50; i++ {
				addr := fmt.Sprintf("10.%d.0.%d:9377", w, i)
				p, err := r.ConnectAccepted(PeerConfig{Addr: addr})
				if err != nil {
					t.Errorf("unexpected connect error: %v", err)
					return
				}
				p.AddBytesSent(1, testTime)
				r.RequestPingAll()
				r.Snapshot()
				r.Disconnect(p)
			}
		}(w)
	}
	wg.Wait()

	if r.Count() != 0 {
		t.Fatalf("got %d peers, want 0", r.Count())
	}
	if _, sent := r.NetTotals(); sent != 400 {
		t.Fatalf("got %d bytes sent, want 400", sent)
	}
}
