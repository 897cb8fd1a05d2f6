// Copyright (c) 2019 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

/*
Package rpcserver implements the JSON-RPC interface of anond.

Requests are JSON-RPC 1.0 or 2.0 objects, optionally batched, sent with HTTP
POST and authenticated with HTTP basic auth.  The served methods cover the
peer registry (getconnectioncount, getpeerinfo, ping, addnode,
getaddednodeinfo, getnettotals, getnetworkinfo) and alert operations
(getalerts, sendalert, makekeypair) along with stop.

The server does not own any node state.  Everything it renders is obtained
from the interfaces in its Config, which keeps the handlers testable without
a running node.
*/
package rpcserver
