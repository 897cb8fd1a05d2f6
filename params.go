// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"github.com/decred/dcrd/wire"
)

// params is used to group parameters for the various networks such as the
// main network and test networks.
type params struct {
	// Name is the human-readable network name used in directory names and
	// log output.
	Name string

	// DefaultPort is the default peer-to-peer port for the network.
	DefaultPort string

	// rpcPort is the default port for the RPC server.
	rpcPort string

	// Net is the magic number that begins every frame on the network.
	Net uint32

	// ProtocolVersion is the protocol version advertised in the version
	// handshake and matched against the version range of alerts.
	ProtocolVersion uint32

	// Services are the services advertised to peers.
	Services wire.ServiceFlag

	// AlertPubKeys are the hex encoded public keys trusted to sign alerts
	// on the network.
	AlertPubKeys []string
}

// protocolVersion is the version of the peer-to-peer protocol spoken by this
// daemon.
const protocolVersion = 70009

// mainNetParams contains parameters specific to the main network.
var mainNetParams = params{
	Name:            "mainnet",
	DefaultPort:     "9377",
	rpcPort:         "9376",
	Net:             0xfacabada,
	ProtocolVersion: protocolVersion,
	Services:        wire.SFNodeNetwork,
	AlertPubKeys: []string{
		"04fc9702847840aaf195de8442ebecedf5b095cdbb9bc716bda9110971b28a49e" +
			"0ead8564ff0db22209e0374782c093bb899692d524e9d6a6956e7c5ecbcd68284",
	},
}

// testNetParams contains parameters specific to the test network.
var testNetParams = params{
	Name:            "testnet",
	DefaultPort:     "19377",
	rpcPort:         "19376",
	Net:             0xfbc2b5f4,
	ProtocolVersion: protocolVersion,
	Services:        wire.SFNodeNetwork,
	AlertPubKeys: []string{
		"04302390343f91cc401d56d68b123028bf52e5fca1939df127f63c6467cdf9c8e" +
			"2c14b61104cf817d0b780da337893ecc4aaff1309e536162dabbdb45200ca2b0a",
	},
}

// regNetParams contains parameters specific to the regression test network.
// The alert key is the well known key whose private scalar is one, which
// lets test harnesses mint alerts.
var regNetParams = params{
	Name:            "regnet",
	DefaultPort:     "19477",
	rpcPort:         "19476",
	Net:             0xfabfb5da,
	ProtocolVersion: protocolVersion,
	Services:        wire.SFNodeNetwork,
	AlertPubKeys: []string{
		"0279be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d959f2815b16f81798",
	},
}
