// Copyright (c) 2014 The btcsuite developers
// Copyright (c) 2015-2022 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"github.com/decred/dcrd/dcrjson/v4"
)

// Method describes the exact type used when registering methods with
// dcrjson.
type Method string

// AddNodeSubCmd defines the type used in the addnode JSON-RPC command for the
// sub command field.
type AddNodeSubCmd string

const (
	// ANAdd indicates the specified host should be added as a persistent
	// peer.
	ANAdd AddNodeSubCmd = "add"

	// ANRemove indicates the specified peer should be removed.
	ANRemove AddNodeSubCmd = "remove"

	// ANOneTry indicates the specified host should try to connect once,
	// but it should not be made persistent.
	ANOneTry AddNodeSubCmd = "onetry"
)

// AddNodeCmd defines the addnode JSON-RPC command.
type AddNodeCmd struct {
	Addr   string
	SubCmd AddNodeSubCmd `jsonrpcusage:"\"add|remove|onetry\""`
}

// GetAddedNodeInfoCmd defines the getaddednodeinfo JSON-RPC command.
type GetAddedNodeInfoCmd struct {
	DNS  bool
	Node *string
}

// GetConnectionCountCmd defines the getconnectioncount JSON-RPC command.
type GetConnectionCountCmd struct{}

// GetNetTotalsCmd defines the getnettotals JSON-RPC command.
type GetNetTotalsCmd struct{}

// GetNetworkInfoCmd defines the getnetworkinfo JSON-RPC command.
type GetNetworkInfoCmd struct{}

// GetPeerInfoCmd defines the getpeerinfo JSON-RPC command.
type GetPeerInfoCmd struct{}

// PingCmd defines the ping JSON-RPC command.
type PingCmd struct{}

// StopCmd defines the stop JSON-RPC command.
type StopCmd struct{}

// GetAlertsCmd defines the getalerts JSON-RPC command.
type GetAlertsCmd struct{}

// SendAlertCmd defines the sendalert JSON-RPC command.  SubVers is a BIP14
// user agent list such as "/anond:0.9.6/anond:0.9.7/" or empty to target
// every client.
type SendAlertCmd struct {
	Message    string
	PrivateKey string
	MinVer     int32
	MaxVer     int32
	SubVers    string
	Priority   int32
	ID         int32
	RelayDays  *int64 `jsonrpcdefault:"365"`
	ExpireDays *int64 `jsonrpcdefault:"365"`
	Cancel     *int32 `jsonrpcdefault:"0"`
}

// MakeKeyPairCmd defines the makekeypair JSON-RPC command.
type MakeKeyPairCmd struct {
	Prefix *string `jsonrpcdefault:"\"\""`
}

// SendAlertResult models the data returned by the sendalert command.
type SendAlertResult struct {
	AlertID    int32  `json:"AlertID"`
	Priority   int32  `json:"Priority"`
	Version    int32  `json:"Version"`
	MinVer     int32  `json:"MinVer"`
	MaxVer     int32  `json:"MaxVer"`
	SubVer     string `json:"SubVer"`
	RelayUntil int64  `json:"RelayUntil"`
	Expiration int64  `json:"Expiration"`
	StatusBar  string `json:"StatusBar"`
	Cancel     int32  `json:"Cancel,omitempty"`
	RelayedTo  int    `json:"RelayedTo"`
}

// MakeKeyPairResult models the data returned by the makekeypair command.
type MakeKeyPairResult struct {
	PublicKey  string `json:"PublicKey"`
	PrivateKey string `json:"PrivateKey"`
}

func init() {
	// No special flags for commands.
	flags := dcrjson.UsageFlag(0)

	dcrjson.MustRegister(Method("addnode"), (*AddNodeCmd)(nil), flags)
	dcrjson.MustRegister(Method("getaddednodeinfo"), (*GetAddedNodeInfoCmd)(nil), flags)
	dcrjson.MustRegister(Method("getalerts"), (*GetAlertsCmd)(nil), flags)
	dcrjson.MustRegister(Method("getconnectioncount"), (*GetConnectionCountCmd)(nil), flags)
	dcrjson.MustRegister(Method("getnettotals"), (*GetNetTotalsCmd)(nil), flags)
	dcrjson.MustRegister(Method("getnetworkinfo"), (*GetNetworkInfoCmd)(nil), flags)
	dcrjson.MustRegister(Method("getpeerinfo"), (*GetPeerInfoCmd)(nil), flags)
	dcrjson.MustRegister(Method("makekeypair"), (*MakeKeyPairCmd)(nil), flags)
	dcrjson.MustRegister(Method("ping"), (*PingCmd)(nil), flags)
	dcrjson.MustRegister(Method("sendalert"), (*SendAlertCmd)(nil), flags)
	dcrjson.MustRegister(Method("stop"), (*StopCmd)(nil), flags)
}
