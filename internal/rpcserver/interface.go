// Copyright (c) 2019-2023 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"context"
	"time"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/anoncoin/anond/internal/diag"
)

// ConnManager represents a connection manager for use with the RPC server.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type ConnManager interface {
	// AddNode appends the target to the added node list.
	AddNode(target string) error

	// RemoveNode removes the target from the added node list and
	// disconnects any connection made to it.
	RemoveNode(target string) error

	// TryOnce makes a single outbound connection attempt to the target.
	TryOnce(target string) error

	// RequestPingAll queues a ping to every connected peer.
	RequestPingAll()
}

// Diagnostics provides the read-only views rendered by the RPC server.
//
// The interface contract requires that all of these methods are safe for
// concurrent access.
type Diagnostics interface {
	ConnectionCount() int
	PeerInfo(now time.Time) []diag.PeerInfo
	NetTotals(now time.Time) diag.NetTotals
	NetworkInfo(now time.Time) diag.NetworkInfo
	Alerts(now time.Time) []diag.AlertInfo
	AddedNodeInfo(ctx context.Context, target string, dns bool) ([]diag.AddedNodeInfo, error)
}

// AlertSubmitter accepts operator signed alerts and floods them to peers.
type AlertSubmitter interface {
	// Submit accepts the alert at the provided unix time and returns the
	// decoded alert along with the number of peers it was sent to.
	Submit(sa *alert.SignedAlert, now int64) (*alert.Alert, int, error)
}

// Clock represents a clock for use with the RPC server.
type Clock interface {
	// Now returns the current local time.
	Now() time.Time
}

// realClock implements the Clock interface using the system clock.
type realClock struct{}

// Now returns the current local time.
func (realClock) Now() time.Time {
	return time.Now()
}
