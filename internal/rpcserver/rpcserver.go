// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2023 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package rpcserver

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"hash"
	"io"
	stdlog "log"
	"net"
	"net/http"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/anoncoin/anond/internal/peers"
	"github.com/decred/dcrd/crypto/rand"
	"github.com/decred/dcrd/dcrjson/v4"
)

const (
	// rpcAuthTimeoutSeconds is the number of seconds a connection to the
	// RPC server is allowed to stay open without authenticating before it
	// is closed.
	rpcAuthTimeoutSeconds = 10

	// rpcReadLimit is the maximum number of bytes allowed for a JSON-RPC
	// message read from a client.
	rpcReadLimit = 1 << 20 // 1 MiB

	// makeKeyPairTries is the number of keys makekeypair generates while
	// searching for the requested public key prefix.
	makeKeyPairTries = 10000

	// secondsPerDay converts the day counts of sendalert to seconds.
	secondsPerDay = 24 * 60 * 60
)

// Error codes that are not defined by dcrjson.
const (
	// ErrRPCClientNodeAlreadyAdded is returned when adding a node that is
	// already in the added node list.
	ErrRPCClientNodeAlreadyAdded dcrjson.RPCErrorCode = -23

	// ErrRPCClientNodeNotAdded is returned when removing or querying a node
	// that is not in the added node list.
	ErrRPCClientNodeNotAdded dcrjson.RPCErrorCode = -24
)

// batchedRequestPrefix is the first byte of a JSON 2.0 batched request.
var batchedRequestPrefix = []byte("[")

type commandHandler func(context.Context, *Server, interface{}) (interface{}, error)

// rpcHandlers maps RPC command strings to appropriate handler functions.
var rpcHandlers = map[Method]commandHandler{
	"addnode":            handleAddNode,
	"getaddednodeinfo":   handleGetAddedNodeInfo,
	"getalerts":          handleGetAlerts,
	"getconnectioncount": handleGetConnectionCount,
	"getnettotals":       handleGetNetTotals,
	"getnetworkinfo":     handleGetNetworkInfo,
	"getpeerinfo":        handleGetPeerInfo,
	"makekeypair":        handleMakeKeyPair,
	"ping":               handlePing,
	"sendalert":          handleSendAlert,
	"stop":               handleStop,
}

// rpcInternalError is a convenience function to convert an internal error to
// an RPC error with the appropriate code set.  It also logs the error to the
// RPC server subsystem since internal errors really should not occur.  The
// context parameter is only used in the log message and may be empty if it's
// not needed.
func rpcInternalError(errStr, context string) *dcrjson.RPCError {
	logStr := errStr
	if context != "" {
		logStr = context + ": " + errStr
	}
	log.Error(logStr)
	return dcrjson.NewRPCError(dcrjson.ErrRPCInternal.Code, errStr)
}

// rpcInvalidError is a convenience function to convert an invalid parameter
// error to an RPC error with the appropriate code set.
func rpcInvalidError(fmtStr string, args ...interface{}) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCInvalidParameter,
		fmt.Sprintf(fmtStr, args...))
}

// rpcAddressKeyError is a convenience function to convert an address/key
// error to an RPC error with the appropriate code set.
func rpcAddressKeyError(fmtStr string, args ...interface{}) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCInvalidAddressOrKey,
		fmt.Sprintf(fmtStr, args...))
}

// rpcMiscError is a convenience function for returning a nicely formatted RPC
// error which indicates there is an unquantifiable error.  Use this sparingly;
// misc return codes are a cop out.
func rpcMiscError(message string) *dcrjson.RPCError {
	return dcrjson.NewRPCError(dcrjson.ErrRPCMisc, message)
}

// rpcPeerError converts an error returned by the connection manager to an
// RPC error.
func rpcPeerError(err error) *dcrjson.RPCError {
	switch {
	case errors.Is(err, peers.ErrAlreadyAdded):
		return dcrjson.NewRPCError(ErrRPCClientNodeAlreadyAdded,
			"Error: Node already added")
	case errors.Is(err, peers.ErrNotFound):
		return dcrjson.NewRPCError(ErrRPCClientNodeNotAdded,
			"Error: Node has not been added.")
	case errors.Is(err, peers.ErrInvalidTarget):
		return rpcInvalidError("%v", err)
	}
	return rpcMiscError(err.Error())
}

// rpcAlertError converts an alert signing or acceptance error to an RPC
// error.
func rpcAlertError(err error) *dcrjson.RPCError {
	switch {
	case errors.Is(err, alert.ErrInvalidKey):
		return rpcAddressKeyError("Unable to sign alert: %v", err)
	case errors.Is(err, alert.ErrInvalidAlert):
		return rpcInvalidError("Invalid alert: %v", err)
	}
	return rpcMiscError(fmt.Sprintf("Failed to process alert: %v", err))
}

// handleAddNode handles addnode commands.
func handleAddNode(_ context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*AddNodeCmd)

	var err error
	switch c.SubCmd {
	case ANAdd:
		err = s.cfg.ConnMgr.AddNode(c.Addr)
	case ANRemove:
		err = s.cfg.ConnMgr.RemoveNode(c.Addr)
	case ANOneTry:
		err = s.cfg.ConnMgr.TryOnce(c.Addr)
	default:
		return nil, rpcInvalidError("Invalid subcommand for addnode")
	}
	if err != nil {
		return nil, rpcPeerError(err)
	}

	// No data returned unless an error.
	return nil, nil
}

// handleGetAddedNodeInfo handles getaddednodeinfo commands.
func handleGetAddedNodeInfo(ctx context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*GetAddedNodeInfoCmd)

	var target string
	if c.Node != nil {
		target = *c.Node
	}
	infos, err := s.cfg.Diagnostics.AddedNodeInfo(ctx, target, c.DNS)
	if err != nil {
		return nil, rpcPeerError(err)
	}
	return infos, nil
}

// handleGetAlerts handles getalerts commands.
func handleGetAlerts(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	return s.cfg.Diagnostics.Alerts(s.cfg.Clock.Now()), nil
}

// handleGetConnectionCount handles getconnectioncount commands.
func handleGetConnectionCount(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	return s.cfg.Diagnostics.ConnectionCount(), nil
}

// handleGetNetTotals handles getnettotals commands.
func handleGetNetTotals(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	return s.cfg.Diagnostics.NetTotals(s.cfg.Clock.Now()), nil
}

// handleGetNetworkInfo handles getnetworkinfo commands.
func handleGetNetworkInfo(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	return s.cfg.Diagnostics.NetworkInfo(s.cfg.Clock.Now()), nil
}

// handleGetPeerInfo handles getpeerinfo commands.
func handleGetPeerInfo(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	return s.cfg.Diagnostics.PeerInfo(s.cfg.Clock.Now()), nil
}

// handleMakeKeyPair handles makekeypair commands.  A null result is returned
// when no key with the requested prefix was found.
func handleMakeKeyPair(_ context.Context, _ *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*MakeKeyPairCmd)

	var prefix string
	if c.Prefix != nil {
		prefix = *c.Prefix
	}
	if _, err := hex.DecodeString(prefix + strings.Repeat("0", len(prefix)%2)); err != nil {
		return nil, rpcInvalidError("Prefix must be hexadecimal (not %q)",
			prefix)
	}
	kp, found, err := alert.GenerateKeyPair(prefix, makeKeyPairTries)
	if err != nil {
		return nil, rpcInternalError(err.Error(), "Failed to generate key")
	}
	if !found {
		return nil, nil
	}
	return &MakeKeyPairResult{
		PublicKey:  hex.EncodeToString(kp.PubKey),
		PrivateKey: hex.EncodeToString(kp.PrivKey),
	}, nil
}

// handlePing handles ping commands.
func handlePing(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	s.cfg.ConnMgr.RequestPingAll()

	// No data returned unless an error.
	return nil, nil
}

// handleSendAlert handles sendalert commands.
func handleSendAlert(_ context.Context, s *Server, cmd interface{}) (interface{}, error) {
	c := cmd.(*SendAlertCmd)

	if s.cfg.Authority == nil || s.cfg.Alerts == nil {
		return nil, rpcMiscError("Alerts are not enabled")
	}
	subVers, err := alert.ParseSubVersions(c.SubVers)
	if err != nil {
		return nil, rpcInvalidError("Invalid client subversion(s) string, "+
			"see BIP14 for specifications: %v", err)
	}
	privKey, err := hex.DecodeString(c.PrivateKey)
	if err != nil {
		return nil, rpcAddressKeyError("Private key must be hexadecimal")
	}

	now := s.cfg.Clock.Now().Unix()
	a := &alert.Alert{
		Version:    s.cfg.AlertVersion,
		RelayUntil: now + *c.RelayDays*secondsPerDay,
		Expiration: now + *c.ExpireDays*secondsPerDay,
		ID:         c.ID,
		Cancel:     *c.Cancel,
		MinVer:     c.MinVer,
		MaxVer:     c.MaxVer,
		SubVers:    subVers,
		Priority:   c.Priority,
		StatusBar:  c.Message,
	}
	sa, err := s.cfg.Authority.SignAlert(a, privKey, now)
	if err != nil {
		return nil, rpcAlertError(err)
	}
	accepted, relayed, err := s.cfg.Alerts.Submit(sa, now)
	if err != nil {
		return nil, rpcAlertError(err)
	}

	return &SendAlertResult{
		AlertID:    accepted.ID,
		Priority:   accepted.Priority,
		Version:    accepted.Version,
		MinVer:     accepted.MinVer,
		MaxVer:     accepted.MaxVer,
		SubVer:     strings.Join(accepted.SubVers, " or "),
		RelayUntil: accepted.RelayUntil,
		Expiration: accepted.Expiration,
		StatusBar:  accepted.StatusBar,
		Cancel:     accepted.Cancel,
		RelayedTo:  relayed,
	}, nil
}

// handleStop implements the stop command.
func handleStop(_ context.Context, s *Server, _ interface{}) (interface{}, error) {
	select {
	case s.requestProcessShutdown <- struct{}{}:
	default:
	}
	return "anond stopping.", nil
}

// Server provides a concurrent safe RPC server to a node.
type Server struct {
	numClients atomic.Int32

	cfg                    Config
	hmac                   hash.Hash
	hmacMu                 sync.Mutex
	authsha                [sha256.Size]byte
	wg                     sync.WaitGroup
	requestProcessShutdown chan struct{}
}

// RequestedProcessShutdown returns a channel that is sent to when an
// authorized RPC client requests the process to shutdown.  If the request can
// not be read immediately, it is dropped.
func (s *Server) RequestedProcessShutdown() <-chan struct{} {
	return s.requestProcessShutdown
}

// limitConnections responds with a 503 service unavailable and returns true
// if adding another client would exceed the maximum allowed RPC clients.
func (s *Server) limitConnections(w http.ResponseWriter, remoteAddr string) bool {
	if int(s.numClients.Load()+1) > s.cfg.RPCMaxClients {
		log.Infof("Max RPC clients exceeded [%d] - "+
			"disconnecting client %s", s.cfg.RPCMaxClients,
			remoteAddr)
		http.Error(w, "503 Too busy.  Try again later.",
			http.StatusServiceUnavailable)
		return true
	}
	return false
}

// authMAC calculates the MAC (currently HMAC-SHA256) of an Authorization
// header, keyed with a random key created during server creation.  The MAC is
// appended to dst, and the appended slice is returned.
func (s *Server) authMAC(dst, auth []byte) []byte {
	s.hmacMu.Lock()
	s.hmac.Reset()
	s.hmac.Write(auth)
	dst = s.hmac.Sum(dst)
	s.hmacMu.Unlock()
	return dst
}

// checkAuth checks the HTTP Basic authentication supplied by an RPC client in
// the HTTP request r.  If the supplied authentication does not match the
// username and password expected, a non-nil error is returned.
//
// This check is time-constant.
func (s *Server) checkAuth(r *http.Request) error {
	// If the RPC user and pass options are not set, this always succeeds.
	// This will be the case when TLS client certificates are being used for
	// authentication.
	if s.authsha == ([sha256.Size]byte{}) {
		return nil
	}

	authhdr := r.Header["Authorization"]
	if len(authhdr) == 0 {
		log.Warnf("RPC authentication failure from %s", r.RemoteAddr)
		return errors.New("auth failure")
	}

	mac := s.authMAC(make([]byte, 0, sha256.Size), []byte(authhdr[0]))
	if subtle.ConstantTimeCompare(mac, s.authsha[:]) != 1 {
		log.Warnf("RPC authentication failure from %s", r.RemoteAddr)
		return errors.New("auth failure")
	}
	return nil
}

// parsedRPCCmd represents a JSON-RPC request object that has been parsed into
// a known concrete command along with any error that might have happened while
// parsing it.
type parsedRPCCmd struct {
	method Method
	params interface{}
	err    *dcrjson.RPCError
}

// parseCmd parses a JSON-RPC request object into known concrete command.  The
// err field of the returned parsedRPCCmd struct will contain an RPC error that
// is suitable for use in replies if the command is invalid in some way such as
// an unregistered command or invalid parameters.
func parseCmd(request *dcrjson.Request) *parsedRPCCmd {
	method := Method(request.Method)
	parsedCmd := parsedRPCCmd{method: method}

	params, err := dcrjson.ParseParams(method, request.Params)
	if err != nil {
		if errors.Is(err, dcrjson.ErrUnregisteredMethod) {
			parsedCmd.err = dcrjson.ErrRPCMethodNotFound
			return &parsedCmd
		}

		// Otherwise, some type of invalid parameters is the cause, so
		// produce the equivalent RPC error.
		parsedCmd.err = rpcInvalidError("Failed to parse request: %v", err)
		return &parsedCmd
	}

	parsedCmd.params = params
	return &parsedCmd
}

// createMarshalledReply returns a new marshalled JSON-RPC response given the
// passed parameters.  It will automatically convert errors that are not of the
// type *dcrjson.RPCError to the appropriate type as needed.
func createMarshalledReply(rpcVersion string, id interface{}, result interface{}, replyErr error) ([]byte, error) {
	var jsonErr *dcrjson.RPCError
	if replyErr != nil && !errors.As(replyErr, &jsonErr) {
		jsonErr = rpcInternalError(replyErr.Error(), "")
	}

	return dcrjson.MarshalResponse(rpcVersion, id, result, jsonErr)
}

// processRequest parses a single request, runs its handler and returns the
// marshalled response.  Nil is returned for notifications.
func (s *Server) processRequest(ctx context.Context, request *dcrjson.Request) []byte {
	var result interface{}
	var jsonErr error

	switch {
	case request.Method == "":
		jsonErr = &dcrjson.RPCError{
			Code:    dcrjson.ErrRPCInvalidRequest.Code,
			Message: "Invalid request: malformed",
		}

	// Valid requests with no ID (notifications) must not have a response
	// per the JSON-RPC spec.
	case request.ID == nil:
		return nil

	default:
		parsedCmd := parseCmd(request)
		if parsedCmd.err != nil {
			jsonErr = parsedCmd.err
			break
		}
		handler, ok := rpcHandlers[parsedCmd.method]
		if !ok {
			jsonErr = dcrjson.ErrRPCMethodNotFound
			break
		}
		log.Debugf("Received command <%s>", parsedCmd.method)
		result, jsonErr = handler(ctx, s, parsedCmd.params)
	}

	msg, err := createMarshalledReply(request.Jsonrpc, request.ID, result, jsonErr)
	if err != nil {
		log.Errorf("Failed to marshal reply: %v", err)
		return nil
	}
	return msg
}

// parseErrorReply returns a marshalled parse error reply.
func parseErrorReply(rpcVersion string, code dcrjson.RPCErrorCode, err error) []byte {
	jsonErr := &dcrjson.RPCError{
		Code:    code,
		Message: fmt.Sprintf("Failed to parse request: %v", err),
	}
	resp, err := dcrjson.MarshalResponse(rpcVersion, nil, nil, jsonErr)
	if err != nil {
		log.Errorf("Failed to create reply: %v", err)
		return nil
	}
	return resp
}

// processBody handles a raw single or batched request body and returns the
// bytes to reply with.
func (s *Server) processBody(ctx context.Context, body []byte) []byte {
	if !bytes.HasPrefix(bytes.TrimSpace(body), batchedRequestPrefix) {
		var req dcrjson.Request
		if err := json.Unmarshal(body, &req); err != nil {
			return parseErrorReply("1.0", dcrjson.ErrRPCParse.Code, err)
		}
		return s.processRequest(ctx, &req)
	}

	var batchedRequests []json.RawMessage
	if err := json.Unmarshal(body, &batchedRequests); err != nil {
		return parseErrorReply("2.0", dcrjson.ErrRPCParse.Code, err)
	}
	if len(batchedRequests) == 0 {
		return parseErrorReply("2.0", dcrjson.ErrRPCInvalidRequest.Code,
			errors.New("empty batch"))
	}

	results := make([][]byte, 0, len(batchedRequests))
	for _, entry := range batchedRequests {
		var req dcrjson.Request
		if err := json.Unmarshal(entry, &req); err != nil {
			resp := parseErrorReply("", dcrjson.ErrRPCInvalidRequest.Code, err)
			if resp != nil {
				results = append(results, resp)
			}
			continue
		}
		if resp := s.processRequest(ctx, &req); resp != nil {
			results = append(results, resp)
		}
	}
	if len(results) == 0 {
		return nil
	}
	var buffer bytes.Buffer
	buffer.WriteByte('[')
	buffer.Write(bytes.Join(results, []byte{','}))
	buffer.WriteByte(']')
	return buffer.Bytes()
}

// jsonRPCRead handles reading and responding to RPC messages.
func (s *Server) jsonRPCRead(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, rpcReadLimit))
	r.Body.Close()
	if err != nil {
		errCode := http.StatusBadRequest
		http.Error(w, fmt.Sprintf("%d error reading JSON message: %v",
			errCode, err), errCode)
		return
	}

	msg := s.processBody(r.Context(), body)
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(msg); err != nil {
		log.Errorf("Failed to write marshalled reply: %v", err)
		return
	}

	// Terminate with newline to maintain compatibility with Bitcoin Core.
	if _, err := w.Write([]byte{'\n'}); err != nil {
		log.Errorf("Failed to append terminating newline to reply: %v", err)
	}
}

// jsonAuthFail sends a message back to the client if the http auth is rejected.
func jsonAuthFail(w http.ResponseWriter) {
	w.Header().Add("WWW-Authenticate", `Basic realm="anond RPC"`)
	http.Error(w, "401 Unauthorized.", http.StatusUnauthorized)
}

// logForwarder provides logic to forward log messages writing to an io.Writer
// to the rpcserver logger.
type logForwarder struct{}

// Write implements the io.Writer interface and forwards the message to the
// active rpcserver logger.
func (logForwarder) Write(p []byte) (int, error) {
	log.Error(strings.TrimRight(string(p), "\r\n"))
	return len(p), nil
}

// ServeHTTP implements http.Handler for the JSON-RPC endpoint.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Connection", "close")
	w.Header().Set("Content-Type", "application/json")
	r.Close = true

	if r.Method != http.MethodPost {
		http.Error(w, "405 Method not allowed.", http.StatusMethodNotAllowed)
		return
	}

	// Limit the number of connections to max allowed.
	if s.limitConnections(w, r.RemoteAddr) {
		return
	}

	// Keep track of the number of connected clients.
	s.numClients.Add(1)
	defer s.numClients.Add(-1)
	if err := s.checkAuth(r); err != nil {
		jsonAuthFail(w)
		return
	}

	// Read and respond to the request.
	s.jsonRPCRead(w, r)
}

// route sets up the endpoints of the rpc server.
func (s *Server) route(ctx context.Context) *http.Server {
	rpcServeMux := http.NewServeMux()
	rpcServeMux.Handle("/", s)
	rpcServeMux.HandleFunc("/ws", s.handleWebsocket)
	return &http.Server{
		Handler: rpcServeMux,

		// Use the provided context as the parent context for all requests to
		// ensure handlers are able to react to both client disconnects as well
		// as shutdown via the provided context.
		BaseContext: func(l net.Listener) context.Context {
			return ctx
		},

		// Timeout connections which don't complete the initial
		// handshake within the allowed timeframe.
		ReadTimeout: time.Second * rpcAuthTimeoutSeconds,

		// Reroute http server error logging through the rpcserver
		// logger.
		ErrorLog: stdlog.New(logForwarder{}, "", 0),
	}
}

// Run starts the rpc server and its listeners. It blocks until the
// provided context is cancelled.
func (s *Server) Run(ctx context.Context) {
	log.Trace("Starting RPC server")
	server := s.route(ctx)
	for _, listener := range s.cfg.Listeners {
		s.wg.Add(1)
		go func(listener net.Listener) {
			log.Infof("RPC server listening on %s", listener.Addr())
			server.Serve(listener)
			log.Tracef("RPC listener done for %s", listener.Addr())
			s.wg.Done()
		}(listener)
	}

	<-ctx.Done()
	log.Warnf("RPC server shutting down")
	if err := server.Close(); err != nil {
		log.Errorf("Problem shutting down rpc: %v", err)
	}
	s.wg.Wait()
	log.Infof("RPC server shutdown complete")
}

// Config is a descriptor containing the RPC server configuration.
type Config struct {
	// Listeners defines a slice of listeners for which the RPC server will
	// take ownership of and accept connections.  Since the RPC server takes
	// ownership of these listeners, they will be closed when the RPC server
	// is stopped.
	Listeners []net.Listener

	// ConnMgr provides the added node operations and ping requests.
	ConnMgr ConnManager

	// Diagnostics renders the peer, network and alert views.
	Diagnostics Diagnostics

	// Authority signs operator alerts and Alerts accepts and floods them.
	// Both must be set for sendalert to be available.
	Authority *alert.KeyAuthority
	Alerts    AlertSubmitter

	// AlertVersion is the version stamped on operator alerts.
	AlertVersion int32

	// Clock defines the clock for the RPC server to use.  It defaults to
	// the system clock.
	Clock Clock

	// These fields define the username and password for RPC connections.
	RPCUser string
	RPCPass string

	// RPCMaxClients defines the max number of RPC clients for standard
	// connections.
	RPCMaxClients int
}

// New returns a new instance of the Server struct.
func New(config *Config) (*Server, error) {
	rpc := Server{
		cfg:                    *config,
		requestProcessShutdown: make(chan struct{}),
	}
	if rpc.cfg.Clock == nil {
		rpc.cfg.Clock = realClock{}
	}
	if rpc.cfg.RPCMaxClients <= 0 {
		rpc.cfg.RPCMaxClients = 10
	}
	key := make([]byte, 32)
	rand.Read(key)
	rpc.hmac = hmac.New(sha256.New, key)
	if config.RPCUser != "" && config.RPCPass != "" {
		login := config.RPCUser + ":" + config.RPCPass
		auth := "Basic " + base64.StdEncoding.EncodeToString([]byte(login))
		rpc.authMAC(rpc.authsha[:0], []byte(auth))
	}
	return &rpc, nil
}
