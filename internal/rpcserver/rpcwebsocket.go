// Copyright (c) 2013-2017 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// websocketPongTimeout is the maximum amount of time attempts to
	// respond to websocket ping messages with a pong will wait before
	// giving up.
	websocketPongTimeout = time.Second * 5

	// websocketWriteTimeout is the maximum amount of time a single reply
	// write may take.
	websocketWriteTimeout = time.Second * 30
)

// checkOrigin allows requests without an origin header, local resources and
// requests whose origin host matches the requested host.
func checkOrigin(r *http.Request) bool {
	origin := r.Header["Origin"]
	if len(origin) == 0 {
		return true
	}

	// Reject requests with origin headers that are not valid URLs.
	originURL, err := url.Parse(origin[0])
	if err != nil {
		return false
	}

	// Browsers set the origin of local resources to "null" or "file://".
	if originURL.Scheme == "file" || originURL.Path == "null" {
		return true
	}

	originHost := originURL.Host
	requestHost := r.Host
	if host, _, err := net.SplitHostPort(originHost); err == nil {
		originHost = host
	}
	if host, _, err := net.SplitHostPort(requestHost); err == nil {
		requestHost = host
	}
	return strings.EqualFold(originHost, requestHost)
}

// handleWebsocket upgrades an authenticated request to a websocket carrying
// the same JSON-RPC requests and replies as the HTTP endpoint, one request
// per message.
func (s *Server) handleWebsocket(w http.ResponseWriter, r *http.Request) {
	if s.limitConnections(w, r.RemoteAddr) {
		return
	}
	s.numClients.Add(1)
	defer s.numClients.Add(-1)
	if err := s.checkAuth(r); err != nil {
		jsonAuthFail(w)
		return
	}

	upgrader := websocket.Upgrader{CheckOrigin: checkOrigin}
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		var herr websocket.HandshakeError
		if !errors.As(err, &herr) {
			log.Errorf("Unexpected websocket error: %v", err)
		}
		return
	}
	ws.SetPingHandler(func(payload string) error {
		var netErr net.Error
		err := ws.WriteControl(websocket.PongMessage, []byte(payload),
			time.Now().Add(websocketPongTimeout))
		if err != nil && !errors.Is(err, websocket.ErrCloseSent) &&
			!(errors.As(err, &netErr) && netErr.Timeout()) {

			log.Errorf("Failed to send pong: %v", err)
			return err
		}
		return nil
	})
	ws.SetReadLimit(rpcReadLimit)

	s.serveWebsocket(r.Context(), ws, r.RemoteAddr)
}

// serveWebsocket answers requests from the websocket client until it
// disconnects or the context is cancelled.
func (s *Server) serveWebsocket(ctx context.Context, ws *websocket.Conn, remoteAddr string) {
	// Clear the read deadline that was set before the websocket hijacked
	// the connection.
	ws.SetReadDeadline(time.Time{})

	log.Infof("New websocket client %s", remoteAddr)
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			ws.Close()
		case <-done:
		}
	}()

	for {
		msgType, msg, err := ws.ReadMessage()
		if err != nil {
			if ctx.Err() == nil && !errors.Is(err, io.EOF) &&
				!websocket.IsCloseError(err, websocket.CloseNormalClosure,
					websocket.CloseAbnormalClosure) {

				log.Errorf("Websocket receive error from %s: %v",
					remoteAddr, err)
			}
			break
		}
		if msgType != websocket.TextMessage {
			continue
		}

		reply := s.processBody(ctx, msg)
		if reply == nil {
			continue
		}
		ws.SetWriteDeadline(time.Now().Add(websocketWriteTimeout))
		if err := ws.WriteMessage(websocket.TextMessage, reply); err != nil {
			log.Debugf("Unable to write reply to websocket client %s: %v",
				remoteAddr, err)
			break
		}
	}
	ws.Close()
	log.Infof("Disconnected websocket client %s", remoteAddr)
}
