// Copyright (c) 2020-2023 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"context"
	"encoding/hex"
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/anoncoin/anond/internal/diag"
	"github.com/anoncoin/anond/internal/peers"
	"github.com/davecgh/go-spew/spew"
	"github.com/decred/dcrd/dcrjson/v4"
)

// testPubKeyHex is the compressed public key of the private key with the
// scalar value one.
const testPubKeyHex = "0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d9" +
	"59f2815b16f81798"

// testPrivKeyHex is the private key with the scalar value one.
const testPrivKeyHex = "00000000000000000000000000000000" +
	"00000000000000000000000000000001"

// testClockTime is the fixed time returned by testClock.
var testClockTime = time.Unix(1700000000, 0)

// testClock provides a mock clock by implementing the Clock interface.
type testClock struct {
	now time.Time
}

// Now returns the configured time.
func (c *testClock) Now() time.Time {
	return c.now
}

// testConnManager provides a mock connection manager by implementing the
// ConnManager interface.
type testConnManager struct {
	addNodeErr    error
	removeNodeErr error
	tryOnceErr    error
	pinged        bool
}

// AddNode returns the configured error.
func (c *testConnManager) AddNode(string) error {
	return c.addNodeErr
}

// RemoveNode returns the configured error.
func (c *testConnManager) RemoveNode(string) error {
	return c.removeNodeErr
}

// TryOnce returns the configured error.
func (c *testConnManager) TryOnce(string) error {
	return c.tryOnceErr
}

// RequestPingAll records the request.
func (c *testConnManager) RequestPingAll() {
	c.pinged = true
}

// testDiagnostics provides mock diagnostics by implementing the Diagnostics
// interface.
type testDiagnostics struct {
	connectionCount int
	peerInfo        []diag.PeerInfo
	netTotals       diag.NetTotals
	networkInfo     diag.NetworkInfo
	alerts          []diag.AlertInfo
	addedNodeInfo   []diag.AddedNodeInfo
	addedNodeErr    error
}

func (d *testDiagnostics) ConnectionCount() int                   { return d.connectionCount }
func (d *testDiagnostics) PeerInfo(time.Time) []diag.PeerInfo     { return d.peerInfo }
func (d *testDiagnostics) NetTotals(time.Time) diag.NetTotals     { return d.netTotals }
func (d *testDiagnostics) NetworkInfo(time.Time) diag.NetworkInfo { return d.networkInfo }
func (d *testDiagnostics) Alerts(time.Time) []diag.AlertInfo      { return d.alerts }

func (d *testDiagnostics) AddedNodeInfo(context.Context, string, bool) ([]diag.AddedNodeInfo, error) {
	return d.addedNodeInfo, d.addedNodeErr
}

// testSubmitter provides a mock alert submitter that accepts every alert
// whose signature is valid.
type testSubmitter struct {
	authority *alert.KeyAuthority
	err       error
}

// Submit decodes and verifies the alert and reports it sent to three peers.
func (s *testSubmitter) Submit(sa *alert.SignedAlert, now int64) (*alert.Alert, int, error) {
	if s.err != nil {
		return nil, 0, s.err
	}
	if !sa.Verify(s.authority) {
		return nil, 0, alert.Error{Err: alert.ErrBadSignature}
	}
	a, err := sa.Alert()
	if err != nil {
		return nil, 0, err
	}
	return a, 3, nil
}

// rpcTest describes a single handler test.
type rpcTest struct {
	name            string
	handler         commandHandler
	cmd             interface{}
	mockConnManager *testConnManager
	mockDiag        *testDiagnostics
	mockSubmitter   *testSubmitter
	result          interface{}
	wantErr         bool
	errCode         dcrjson.RPCErrorCode
}

// defaultMockConfig returns a config populated with mocks.
func defaultMockConfig(t *testing.T) *Config {
	t.Helper()
	authority, err := alert.ParseKeyAuthority([]string{testPubKeyHex})
	if err != nil {
		t.Fatalf("unexpected authority error: %v", err)
	}
	return &Config{
		ConnMgr:      &testConnManager{},
		Diagnostics:  &testDiagnostics{},
		Authority:    authority,
		Alerts:       &testSubmitter{authority: authority},
		AlertVersion: 70002,
		Clock:        &testClock{now: testClockTime},
	}
}

func testRPCServerHandler(t *testing.T, tests []rpcTest) {
	t.Helper()

	for _, test := range tests {
		test := test // capture range variable
		t.Run(test.name, func(t *testing.T) {
			t.Parallel()

			rpcserverConfig := defaultMockConfig(t)
			if test.mockConnManager != nil {
				rpcserverConfig.ConnMgr = test.mockConnManager
			}
			if test.mockDiag != nil {
				rpcserverConfig.Diagnostics = test.mockDiag
			}
			if test.mockSubmitter != nil {
				test.mockSubmitter.authority = rpcserverConfig.Authority
				rpcserverConfig.Alerts = test.mockSubmitter
			}

			testServer := &Server{
				cfg:                    *rpcserverConfig,
				requestProcessShutdown: make(chan struct{}, 1),
			}
			result, err := test.handler(context.Background(), testServer, test.cmd)
			if test.wantErr {
				var rpcErr *dcrjson.RPCError
				if !errors.As(err, &rpcErr) || rpcErr.Code != test.errCode {
					if rpcErr != nil {
						t.Errorf("%s\nwant: %+v\n got: %+v\n", test.name, test.errCode, rpcErr.Code)
					} else {
						t.Errorf("%s\nwant: %+v\n got: nil\n", test.name, test.errCode)
					}
				}
				return
			}
			if err != nil {
				t.Errorf("%s\nunexpected error: %+v\n", test.name, err)
				return
			}
			if !reflect.DeepEqual(result, test.result) {
				t.Errorf("%s\nwant: %+v\n got: %+v\n", test.name, spew.Sdump(test.result), spew.Sdump(result))
			}
		})
	}
}

func TestHandleAddNode(t *testing.T) {
	t.Parallel()

	testRPCServerHandler(t, []rpcTest{{
		name:    "handleAddNode: ok with 'add' subcmd",
		handler: handleAddNode,
		cmd:     &AddNodeCmd{Addr: "10.0.0.1:9377", SubCmd: ANAdd},
		result:  nil,
	}, {
		name:    "handleAddNode: 'add' subcmd already added",
		handler: handleAddNode,
		cmd:     &AddNodeCmd{Addr: "10.0.0.1:9377", SubCmd: ANAdd},
		mockConnManager: &testConnManager{
			addNodeErr: peers.Error{Err: peers.ErrAlreadyAdded},
		},
		wantErr: true,
		errCode: ErrRPCClientNodeAlreadyAdded,
	}, {
		name:    "handleAddNode: 'remove' subcmd not added",
		handler: handleAddNode,
		cmd:     &AddNodeCmd{Addr: "10.0.0.1:9377", SubCmd: ANRemove},
		mockConnManager: &testConnManager{
			removeNodeErr: peers.Error{Err: peers.ErrNotFound},
		},
		wantErr: true,
		errCode: ErrRPCClientNodeNotAdded,
	}, {
		name:    "handleAddNode: ok with 'onetry' subcmd",
		handler: handleAddNode,
		cmd:     &AddNodeCmd{Addr: "10.0.0.1:9377", SubCmd: ANOneTry},
		result:  nil,
	}, {
		name:    "handleAddNode: 'onetry' invalid target",
		handler: handleAddNode,
		cmd:     &AddNodeCmd{Addr: "", SubCmd: ANOneTry},
		mockConnManager: &testConnManager{
			tryOnceErr: peers.Error{Err: peers.ErrInvalidTarget},
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleAddNode: invalid subcmd",
		handler: handleAddNode,
		cmd:     &AddNodeCmd{Addr: "10.0.0.1:9377", SubCmd: "bogus"},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}})
}

func TestHandleGetAddedNodeInfo(t *testing.T) {
	t.Parallel()

	connected := true
	infos := []diag.AddedNodeInfo{{
		AddedNode: "seed.example.org",
		Connected: &connected,
		Addresses: []diag.AddedAddress{{
			Address:   "10.0.0.1:9377",
			Connected: "outbound",
		}},
	}}
	node := "seed.example.org"
	testRPCServerHandler(t, []rpcTest{{
		name:     "handleGetAddedNodeInfo: ok",
		handler:  handleGetAddedNodeInfo,
		cmd:      &GetAddedNodeInfoCmd{DNS: true, Node: &node},
		mockDiag: &testDiagnostics{addedNodeInfo: infos},
		result:   infos,
	}, {
		name:    "handleGetAddedNodeInfo: node not added",
		handler: handleGetAddedNodeInfo,
		cmd:     &GetAddedNodeInfoCmd{DNS: false, Node: &node},
		mockDiag: &testDiagnostics{
			addedNodeErr: peers.Error{Err: peers.ErrNotFound},
		},
		wantErr: true,
		errCode: ErrRPCClientNodeNotAdded,
	}})
}

func TestHandleViews(t *testing.T) {
	t.Parallel()

	mockDiag := &testDiagnostics{
		connectionCount: 2,
		peerInfo:        []diag.PeerInfo{{ID: 1, Addr: "10.0.0.1:9377"}},
		netTotals:       diag.NetTotals{TotalBytesRecv: 10, TotalBytesSent: 20},
		networkInfo:     diag.NetworkInfo{Version: 90700, Connections: 2},
		alerts:          []diag.AlertInfo{{ID: 7, Status: "upgrade"}},
	}
	testRPCServerHandler(t, []rpcTest{{
		name:     "handleGetConnectionCount: ok",
		handler:  handleGetConnectionCount,
		mockDiag: mockDiag,
		result:   2,
	}, {
		name:     "handleGetPeerInfo: ok",
		handler:  handleGetPeerInfo,
		mockDiag: mockDiag,
		result:   mockDiag.peerInfo,
	}, {
		name:     "handleGetNetTotals: ok",
		handler:  handleGetNetTotals,
		mockDiag: mockDiag,
		result:   mockDiag.netTotals,
	}, {
		name:     "handleGetNetworkInfo: ok",
		handler:  handleGetNetworkInfo,
		mockDiag: mockDiag,
		result:   mockDiag.networkInfo,
	}, {
		name:     "handleGetAlerts: ok",
		handler:  handleGetAlerts,
		mockDiag: mockDiag,
		result:   mockDiag.alerts,
	}})
}

func TestHandleSendAlert(t *testing.T) {
	t.Parallel()

	now := testClockTime.Unix()
	relayDays, expireDays, cancel := int64(7), int64(30), int32(4)
	defaultRelay, defaultExpire, noCancel := int64(365), int64(365), int32(0)
	testRPCServerHandler(t, []rpcTest{{
		name:    "handleSendAlert: ok",
		handler: handleSendAlert,
		cmd: &SendAlertCmd{
			Message:    "URGENT: upgrade required",
			PrivateKey: testPrivKeyHex,
			MinVer:     70000,
			MaxVer:     70002,
			SubVers:    "/anond:0.9.6/anond:0.9.5/",
			Priority:   5000,
			ID:         5,
			RelayDays:  &relayDays,
			ExpireDays: &expireDays,
			Cancel:     &cancel,
		},
		result: &SendAlertResult{
			AlertID:    5,
			Priority:   5000,
			Version:    70002,
			MinVer:     70000,
			MaxVer:     70002,
			SubVer:     "/anond:0.9.5/ or /anond:0.9.6/",
			RelayUntil: now + 7*secondsPerDay,
			Expiration: now + 30*secondsPerDay,
			StatusBar:  "URGENT: upgrade required",
			Cancel:     4,
			RelayedTo:  3,
		},
	}, {
		name:    "handleSendAlert: defaults",
		handler: handleSendAlert,
		cmd: &SendAlertCmd{
			Message:    "notice",
			PrivateKey: testPrivKeyHex,
			MaxVer:     70002,
			ID:         6,
			RelayDays:  &defaultRelay,
			ExpireDays: &defaultExpire,
			Cancel:     &noCancel,
		},
		result: &SendAlertResult{
			AlertID:    6,
			Version:    70002,
			MaxVer:     70002,
			RelayUntil: now + 365*secondsPerDay,
			Expiration: now + 365*secondsPerDay,
			StatusBar:  "notice",
			RelayedTo:  3,
		},
	}, {
		name:    "handleSendAlert: malformed subversions",
		handler: handleSendAlert,
		cmd: &SendAlertCmd{
			Message:    "notice",
			PrivateKey: testPrivKeyHex,
			SubVers:    "anond:0.9.6",
			RelayDays:  &defaultRelay,
			ExpireDays: &defaultExpire,
			Cancel:     &noCancel,
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleSendAlert: untrusted key",
		handler: handleSendAlert,
		cmd: &SendAlertCmd{
			Message:    "notice",
			PrivateKey: strings.Repeat("0", 63) + "2",
			RelayDays:  &defaultRelay,
			ExpireDays: &defaultExpire,
			Cancel:     &noCancel,
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidAddressOrKey,
	}, {
		name:    "handleSendAlert: short key",
		handler: handleSendAlert,
		cmd: &SendAlertCmd{
			Message:    "notice",
			PrivateKey: "0001",
			RelayDays:  &defaultRelay,
			ExpireDays: &defaultExpire,
			Cancel:     &noCancel,
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidAddressOrKey,
	}, {
		name:    "handleSendAlert: min version above max",
		handler: handleSendAlert,
		cmd: &SendAlertCmd{
			Message:    "notice",
			PrivateKey: testPrivKeyHex,
			MinVer:     2,
			MaxVer:     1,
			RelayDays:  &defaultRelay,
			ExpireDays: &defaultExpire,
			Cancel:     &noCancel,
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCInvalidParameter,
	}, {
		name:    "handleSendAlert: superseded",
		handler: handleSendAlert,
		cmd: &SendAlertCmd{
			Message:    "notice",
			PrivateKey: testPrivKeyHex,
			RelayDays:  &defaultRelay,
			ExpireDays: &defaultExpire,
			Cancel:     &noCancel,
		},
		mockSubmitter: &testSubmitter{
			err: alert.Error{Err: alert.ErrSuperseded},
		},
		wantErr: true,
		errCode: dcrjson.ErrRPCMisc,
	}})
}

func TestHandleMakeKeyPair(t *testing.T) {
	t.Parallel()

	s := &Server{cfg: *defaultMockConfig(t)}
	prefix := "04"
	result, err := handleMakeKeyPair(context.Background(), s,
		&MakeKeyPairCmd{Prefix: &prefix})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	kp, ok := result.(*MakeKeyPairResult)
	if !ok {
		t.Fatalf("unexpected result type %T", result)
	}
	if !strings.HasPrefix(kp.PublicKey, prefix) {
		t.Fatalf("public key %s does not have prefix %s", kp.PublicKey, prefix)
	}
	privKey, err := hex.DecodeString(kp.PrivateKey)
	if err != nil || len(privKey) != alert.PrivKeyLen {
		t.Fatalf("unexpected private key %q", kp.PrivateKey)
	}

	// The generated key must sign messages verifiable with its public key.
	pubKey, _ := hex.DecodeString(kp.PublicKey)
	ka, err := alert.NewKeyAuthority(pubKey)
	if err != nil {
		t.Fatalf("unexpected authority error: %v", err)
	}
	if _, err := ka.Sign([]byte("msg"), privKey); err != nil {
		t.Fatalf("generated key pair does not match: %v", err)
	}

	// Uncompressed keys never begin with 05 so the search gives up.
	prefix = "05"
	result, err = handleMakeKeyPair(context.Background(), s,
		&MakeKeyPairCmd{Prefix: &prefix})
	if err != nil || result != nil {
		t.Fatalf("unexpected result for impossible prefix: %v, %v", result, err)
	}

	prefix = "xyz"
	_, err = handleMakeKeyPair(context.Background(), s,
		&MakeKeyPairCmd{Prefix: &prefix})
	var rpcErr *dcrjson.RPCError
	if !errors.As(err, &rpcErr) || rpcErr.Code != dcrjson.ErrRPCInvalidParameter {
		t.Fatalf("unexpected error for non-hex prefix: %v", err)
	}
}

func TestHandlePingAndStop(t *testing.T) {
	t.Parallel()

	connMgr := &testConnManager{}
	cfg := defaultMockConfig(t)
	cfg.ConnMgr = connMgr
	s := &Server{cfg: *cfg, requestProcessShutdown: make(chan struct{}, 1)}

	if _, err := handlePing(context.Background(), s, &PingCmd{}); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
	if !connMgr.pinged {
		t.Fatal("ping was not requested")
	}

	result, err := handleStop(context.Background(), s, &StopCmd{})
	if err != nil || result != "anond stopping." {
		t.Fatalf("unexpected stop result: %v, %v", result, err)
	}
	select {
	case <-s.RequestedProcessShutdown():
	default:
		t.Fatal("shutdown was not requested")
	}
}
