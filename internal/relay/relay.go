// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package relay

import (
	"errors"
	"fmt"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/anoncoin/anond/internal/peers"
	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/container/lru"
)

// defaultRejectCacheSize is the number of rejected alert hashes remembered
// when the configuration does not specify a size.
const defaultRejectCacheSize = 1000

// Outcome is the result of processing an alert received from a peer.
type Outcome uint8

// These constants define the possible outcomes of processing a received
// alert.
const (
	OutcomeAccepted Outcome = iota
	OutcomeMalformed
	OutcomeBadSignature
	OutcomeSuperseded
	OutcomeExpired
	OutcomeInvalid
	OutcomeIgnored

	numOutcomes
)

// outcomeStrings is a map of outcomes back to their constant names for pretty
// printing.
var outcomeStrings = map[Outcome]string{
	OutcomeAccepted:     "accepted",
	OutcomeMalformed:    "malformed",
	OutcomeBadSignature: "bad signature",
	OutcomeSuperseded:   "superseded",
	OutcomeExpired:      "expired",
	OutcomeInvalid:      "invalid",
	OutcomeIgnored:      "ignored",
}

// String returns the Outcome in human-readable form.
func (o Outcome) String() string {
	if s, ok := outcomeStrings[o]; ok {
		return s
	}
	return fmt.Sprintf("Unknown Outcome (%d)", uint8(o))
}

// Outcomes returns every outcome in declaration order.
func Outcomes() []Outcome {
	outcomes := make([]Outcome, 0, numOutcomes)
	for o := OutcomeAccepted; o < numOutcomes; o++ {
		outcomes = append(outcomes, o)
	}
	return outcomes
}

// outcomeForError maps an acceptance error to the outcome reported for it.
func outcomeForError(err error) Outcome {
	switch {
	case errors.Is(err, alert.ErrMalformed):
		return OutcomeMalformed
	case errors.Is(err, alert.ErrBadSignature):
		return OutcomeBadSignature
	case errors.Is(err, alert.ErrSuperseded):
		return OutcomeSuperseded
	case errors.Is(err, alert.ErrAlreadyExpired):
		return OutcomeExpired
	default:
		return OutcomeInvalid
	}
}

// Sender hands serialized alerts to the transport.  Enqueue must not block;
// it returns false when the payload was dropped.  A dropped alert is not
// retried: the peer is already marked as having it.
type Sender interface {
	Enqueue(p *peers.Peer, payload []byte) bool
}

// Metrics receives relay events.
type Metrics interface {
	AlertProcessed(o Outcome)
	AlertRelayed(n int)
}

// Config houses the collaborators of a relay.
type Config struct {
	Store     *alert.Store
	Authority *alert.KeyAuthority
	Registry  *peers.Registry
	Sender    Sender

	// DisableRelay accepts alerts into the store without forwarding them.
	DisableRelay bool

	// RejectCacheSize bounds the number of rejected alert hashes that are
	// remembered to skip verifying repeats.
	RejectCacheSize uint32

	// Metrics optionally receives relay events.
	Metrics Metrics
}

// Relay floods alerts to connected peers, sending each alert at most once to
// each peer.
//
// All methods are safe for concurrent use.
type Relay struct {
	cfg      Config
	rejected *lru.Set[chainhash.Hash]
}

// New returns a relay using the provided collaborators.
func New(cfg *Config) *Relay {
	size := cfg.RejectCacheSize
	if size == 0 {
		size = defaultRejectCacheSize
	}
	return &Relay{
		cfg:      *cfg,
		rejected: lru.NewSet[chainhash.Hash](size),
	}
}

// OnAlertEvicted releases the per-peer bookkeeping of an alert dropped from
// the store.  It is intended to be wired as the store eviction callback.
func (r *Relay) OnAlertEvicted(a *alert.Alert, hash chainhash.Hash) {
	log.Tracef("Forgetting relay state of evicted %v", a)
	r.cfg.Registry.ForgetAlert(hash)
}

// sendTo transmits the alert to the peer unless it was already sent.  The
// marker is set under the peer lock and the send happens outside it.  The
// marker stays set when the send is dropped, so delivery is at most once.
func (r *Relay) sendTo(p *peers.Peer, hash chainhash.Hash, payload []byte) bool {
	if !p.MarkAlertSent(hash) {
		return false
	}
	if !r.cfg.Sender.Enqueue(p, payload) {
		log.Debugf("Dropped alert %v for peer %s", hash, p)
		return false
	}
	return true
}

// fanOut sends an accepted alert to every live peer that does not have it.
// The target set is computed once.
func (r *Relay) fanOut(sa *alert.SignedAlert, a *alert.Alert, now int64) int {
	if r.cfg.DisableRelay || !a.IsRelayable(now) {
		return 0
	}
	hash := sa.Hash()
	payload := sa.Bytes()
	var sent int
	for _, p := range r.cfg.Registry.Peers() {
		if r.sendTo(p, hash, payload) {
			sent++
		}
	}
	if r.cfg.Metrics != nil && sent > 0 {
		r.cfg.Metrics.AlertRelayed(sent)
	}
	log.Debugf("Relayed %v to %d peers", a, sent)
	return sent
}

// OnNewAlert floods an alert that was already accepted into the store to
// every connected peer that has not been sent it.  It returns the number of
// peers the alert was handed to.
func (r *Relay) OnNewAlert(sa *alert.SignedAlert, now int64) (int, error) {
	a, err := sa.Alert()
	if err != nil {
		return 0, err
	}
	return r.fanOut(sa, a, now), nil
}

// Submit accepts an operator signed alert into the store and floods it.
func (r *Relay) Submit(sa *alert.SignedAlert, now int64) (*alert.Alert, int, error) {
	a, err := r.cfg.Store.Accept(sa, r.cfg.Authority, now)
	if err != nil {
		if r.cfg.Metrics != nil {
			r.cfg.Metrics.AlertProcessed(outcomeForError(err))
		}
		return nil, 0, err
	}
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.AlertProcessed(OutcomeAccepted)
	}
	log.Infof("Accepted operator %v", a)
	return a, r.fanOut(sa, a, now), nil
}

// OnPeerConnected sends every alert that is active and still inside its
// relay window to a newly connected peer.
func (r *Relay) OnPeerConnected(p *peers.Peer, now int64) int {
	if r.cfg.DisableRelay {
		return 0
	}
	var sent int
	for _, ra := range r.cfg.Store.Relayable(now) {
		if r.sendTo(p, ra.Hash, ra.Signed.Bytes()) {
			sent++
		}
	}
	if r.cfg.Metrics != nil && sent > 0 {
		r.cfg.Metrics.AlertRelayed(sent)
	}
	return sent
}

// OnAlertReceived processes the wire encoding of a signed alert received
// from origin.  Accepted alerts are marked as sent to origin and flooded to
// the remaining peers.  Rejected alerts are dropped without penalizing the
// origin; the outcome is returned so the caller can apply its own policy.
func (r *Relay) OnAlertReceived(payload []byte, origin *peers.Peer, now int64) Outcome {
	outcome := r.processReceived(payload, origin, now)
	if r.cfg.Metrics != nil {
		r.cfg.Metrics.AlertProcessed(outcome)
	}
	return outcome
}

func (r *Relay) processReceived(payload []byte, origin *peers.Peer, now int64) Outcome {
	sa, err := alert.DecodeSigned(payload)
	if err != nil {
		log.Debugf("Malformed alert from %s: %v", origin, err)
		return OutcomeMalformed
	}
	hash := sa.Hash()
	if r.rejected.Contains(hash) {
		log.Tracef("Ignoring previously rejected alert %v from %s", hash,
			origin)
		return OutcomeIgnored
	}

	a, err := r.cfg.Store.Accept(sa, r.cfg.Authority, now)
	if err != nil {
		outcome := outcomeForError(err)
		if alert.IsFatal(err) {
			log.Errorf("Unable to process alert from %s: %v", origin, err)
			return outcome
		}
		log.Debugf("Rejected alert from %s: %v", origin, err)

		// Only rejections that can never turn into an acceptance are
		// remembered.  A superseded alert stays superseded as well, but it
		// is usually a duplicate of an accepted one and cheap to reject.
		if outcome != OutcomeSuperseded {
			r.rejected.Put(hash)
		}
		return outcome
	}

	log.Infof("Accepted %v from %s", a, origin)
	if origin != nil {
		origin.MarkAlertSent(hash)
	}
	r.fanOut(sa, a, now)
	return OutcomeAccepted
}
