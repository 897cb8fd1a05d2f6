// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package alert

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// DefaultRetention is the grace period an expired alert is kept in storage
// before being evicted.
const DefaultRetention = 24 * time.Hour

// Backend persists accepted alerts across restarts.  Implementations must be
// safe for concurrent use.
type Backend interface {
	// PutAlert stores the wire encoding of a signed alert under its hash.
	PutAlert(hash chainhash.Hash, signed []byte) error

	// DeleteAlert removes the alert with the provided hash.  Removing an
	// alert that does not exist is not an error.
	DeleteAlert(hash chainhash.Hash) error

	// ForEachAlert invokes fn for every stored alert.
	ForEachAlert(fn func(hash chainhash.Hash, signed []byte) error) error

	// PutCancel records that the alert id was cancelled by the alert with
	// the provided hash until the provided unix time.
	PutCancel(id int32, canceller chainhash.Hash, expires int64) error

	// DeleteCancel removes the cancellation record of the alert id.
	// Removing a record that does not exist is not an error.
	DeleteCancel(id int32) error

	// ForEachCancel invokes fn for every cancellation record.
	ForEachCancel(fn func(id int32, canceller chainhash.Hash, expires int64) error) error
}

// StoreConfig houses the parameters of an alert store.
type StoreConfig struct {
	// Retention is how long an alert is kept after its expiration.  The
	// zero value selects DefaultRetention.
	Retention time.Duration

	// Backend optionally persists accepted alerts.
	Backend Backend

	// OnEvict is invoked, without any store lock held, for every alert
	// dropped from storage.
	OnEvict func(a *Alert, hash chainhash.Hash)
}

// entry is a stored alert along with its store-local state.
type entry struct {
	alert     *Alert
	signed    *SignedAlert
	hash      chainhash.Hash
	cancelled bool
}

// evicted is an entry removed from the store that still needs its side
// effects applied once the lock is released.
type evicted struct {
	alert *Alert
	hash  chainhash.Hash
}

// tombstone records the cancellation of an alert id.  It outlives the
// cancelling alert and stays until the latest known expiration of either the
// canceller or the cancelled alert has passed the retention period.
type tombstone struct {
	canceller chainhash.Hash
	expires   int64
}

// cancelUpdate is a tombstone change that still needs to be persisted once
// the lock is released.
type cancelUpdate struct {
	id     int32
	ts     tombstone
	remove bool
}

// Store owns the set of known alerts keyed by alert ID.  It enforces the
// supersession and cancellation rules and answers activity queries.
//
// All methods are safe for concurrent use.
type Store struct {
	cfg StoreConfig

	mtx  sync.RWMutex
	byID map[int32]*entry

	// cancelled tracks ids revoked by an accepted alert, including ids that
	// were never seen, so a revoked alert arriving later is rejected.
	cancelled map[int32]tombstone
}

// NewStore returns an empty alert store.
func NewStore(cfg *StoreConfig) *Store {
	s := &Store{
		byID:      make(map[int32]*entry),
		cancelled: make(map[int32]tombstone),
	}
	if cfg != nil {
		s.cfg = *cfg
	}
	if s.cfg.Retention <= 0 {
		s.cfg.Retention = DefaultRetention
	}
	return s
}

// wins returns whether alert a takes precedence over alert b sharing its
// ID.  Version dominates and priority breaks ties.
func wins(a, b *Alert) bool {
	if a.Version != b.Version {
		return a.Version > b.Version
	}
	return a.Priority > b.Priority
}

// Accept verifies the signed alert against the authority and inserts it
// when it is not superseded by a known alert.  The decoded alert is
// returned on success.
//
// Rejections are reported with ErrMalformed, ErrBadSignature,
// ErrAlreadyExpired, ErrInvalidAlert or ErrSuperseded.  ErrStoreInvariant is
// returned when the stored state is found to be inconsistent.
func (s *Store) Accept(sa *SignedAlert, authority *KeyAuthority, now int64) (*Alert, error) {
	a, err := s.insert(sa, authority, now, false)
	if err != nil {
		return nil, err
	}

	if s.cfg.Backend != nil {
		if err := s.cfg.Backend.PutAlert(sa.Hash(), sa.Bytes()); err != nil {
			log.Errorf("Unable to persist %v: %v", a, err)
		}
	}
	return a, nil
}

// insert performs the atomic accept transition and returns a copy of the
// accepted alert.  When restoring, an alert whose id is covered by a
// tombstone is kept as a cancelled entry instead of being rejected, matching
// the state held before the restart.
func (s *Store) insert(sa *SignedAlert, authority *KeyAuthority, now int64, restoring bool) (*Alert, error) {
	a, err := sa.Alert()
	if err != nil {
		return nil, err
	}
	if err := a.checkFields(); err != nil {
		return nil, err
	}
	if !sa.Verify(authority) {
		str := fmt.Sprintf("%v has an invalid signature", a)
		return nil, alertError(ErrBadSignature, str)
	}
	if !a.IsActive(now) {
		str := fmt.Sprintf("%v expired at %d", a, a.Expiration)
		return nil, alertError(ErrAlreadyExpired, str)
	}

	hash := sa.Hash()
	var replaced *evicted
	var updates []cancelUpdate

	s.mtx.Lock()
	if _, ok := s.byID[a.ID]; !ok && restoring {
		if _, ok := s.cancelled[a.ID]; ok {
			s.byID[a.ID] = &entry{alert: a, signed: sa, hash: hash,
				cancelled: true}
			s.mtx.Unlock()
			return a.clone(), nil
		}
	}
	if ts, ok := s.cancelled[a.ID]; ok {
		// Keep the record for as long as the revoked alert could still be
		// offered by peers.
		if a.Expiration > ts.expires {
			ts.expires = a.Expiration
			s.cancelled[a.ID] = ts
			updates = append(updates, cancelUpdate{id: a.ID, ts: ts})
		}
		s.mtx.Unlock()
		s.applyCancelUpdates(updates)
		str := fmt.Sprintf("%v has been cancelled", a)
		return nil, alertError(ErrSuperseded, str)
	}
	if existing, ok := s.byID[a.ID]; ok {
		switch {
		case existing.hash == hash:
			s.mtx.Unlock()
			str := fmt.Sprintf("%v is already known", a)
			return nil, alertError(ErrSuperseded, str)

		case existing.cancelled:
			// Cancelled entries always have a tombstone, which was checked
			// above.
			s.mtx.Unlock()
			str := fmt.Sprintf("%v is marked cancelled without a "+
				"cancellation record", existing.alert)
			return nil, alertError(ErrStoreInvariant, str)

		case existing.alert.IsActive(now) && !wins(a, existing.alert):
			s.mtx.Unlock()
			str := fmt.Sprintf("%v is superseded by %v", a, existing.alert)
			return nil, alertError(ErrSuperseded, str)
		}
		replaced = &evicted{alert: existing.alert, hash: existing.hash}

		// A newer version of a canceller replaces its cancel instruction.
		c := existing.alert.Cancel
		if ts, ok := s.cancelled[c]; ok && c != 0 && c != a.Cancel &&
			ts.canceller == existing.hash {

			delete(s.cancelled, c)
			updates = append(updates, cancelUpdate{id: c, remove: true})
			if target, ok := s.byID[c]; ok {
				target.cancelled = false
				log.Debugf("%v no longer cancelled", target.alert)
			}
		}
	}

	s.byID[a.ID] = &entry{alert: a, signed: sa, hash: hash}
	if a.Cancel != 0 {
		ts := tombstone{canceller: hash, expires: a.Expiration}
		if old, ok := s.cancelled[a.Cancel]; ok && old.expires > ts.expires {
			ts.expires = old.expires
		}
		if target, ok := s.byID[a.Cancel]; ok {
			if target.alert.Expiration > ts.expires {
				ts.expires = target.alert.Expiration
			}
			if !target.cancelled {
				target.cancelled = true
				log.Debugf("%v cancelled by %v", target.alert, a)
			}
		}
		s.cancelled[a.Cancel] = ts
		updates = append(updates, cancelUpdate{id: a.Cancel, ts: ts})
	}
	accepted := a.clone()
	s.mtx.Unlock()

	s.applyCancelUpdates(updates)
	if replaced != nil {
		log.Debugf("%v replaced by %v", replaced.alert, a)
		s.applyEvictions([]evicted{*replaced})
	}
	return accepted, nil
}

// applyCancelUpdates persists tombstone changes.  It must be called without
// the store lock held.
func (s *Store) applyCancelUpdates(updates []cancelUpdate) {
	if s.cfg.Backend == nil {
		return
	}
	for _, u := range updates {
		var err error
		if u.remove {
			err = s.cfg.Backend.DeleteCancel(u.id)
		} else {
			err = s.cfg.Backend.PutCancel(u.id, u.ts.canceller, u.ts.expires)
		}
		if err != nil {
			log.Errorf("Unable to persist cancellation of alert %d: %v",
				u.id, err)
		}
	}
}

// applyEvictions performs the side effects of dropping alerts from storage.
// It must be called without the store lock held.
func (s *Store) applyEvictions(evictions []evicted) {
	for _, ev := range evictions {
		if s.cfg.Backend != nil {
			if err := s.cfg.Backend.DeleteAlert(ev.hash); err != nil {
				log.Errorf("Unable to remove %v: %v", ev.alert, err)
			}
		}
		if s.cfg.OnEvict != nil {
			s.cfg.OnEvict(ev.alert, ev.hash)
		}
	}
}

// grace returns the retention period in seconds.
func (s *Store) grace() int64 {
	return int64(s.cfg.Retention / time.Second)
}

// evictLocked drops every alert and tombstone whose expiration plus the
// retention grace period has passed.
//
// This function MUST be called with the store lock held (for writes).
func (s *Store) evictLocked(now int64) ([]evicted, []cancelUpdate) {
	grace := s.grace()
	var evictions []evicted
	for id, e := range s.byID {
		if now < e.alert.Expiration+grace {
			continue
		}
		delete(s.byID, id)
		evictions = append(evictions, evicted{alert: e.alert, hash: e.hash})
	}
	var updates []cancelUpdate
	for id, ts := range s.cancelled {
		if now < ts.expires+grace {
			continue
		}
		delete(s.cancelled, id)
		updates = append(updates, cancelUpdate{id: id, remove: true})
	}
	return evictions, updates
}

// activeEntries evicts stale alerts and returns the entries that are active
// at the provided time, most urgent first.
func (s *Store) activeEntries(now int64) []*entry {
	s.mtx.Lock()
	evictions, updates := s.evictLocked(now)
	active := make([]*entry, 0, len(s.byID))
	for _, e := range s.byID {
		if e.cancelled || !e.alert.IsActive(now) {
			continue
		}
		active = append(active, e)
	}
	s.mtx.Unlock()

	s.applyCancelUpdates(updates)
	s.applyEvictions(evictions)

	sort.Slice(active, func(i, j int) bool {
		a, b := active[i].alert, active[j].alert
		if a.Priority != b.Priority {
			return a.Priority > b.Priority
		}
		return a.ID < b.ID
	})
	return active
}

// ActiveSnapshot returns copies of the alerts that are neither expired nor
// cancelled at the provided unix time, ordered by descending priority.
// Alerts past their expiration by more than the retention period are
// evicted.
func (s *Store) ActiveSnapshot(now int64) []*Alert {
	active := s.activeEntries(now)
	alerts := make([]*Alert, 0, len(active))
	for _, e := range active {
		alerts = append(alerts, e.alert.clone())
	}
	return alerts
}

// RelayableAlert is an active alert that may still be forwarded to peers.
type RelayableAlert struct {
	Hash   chainhash.Hash
	Signed *SignedAlert
}

// Relayable returns the active alerts whose relay window is still open at
// the provided unix time.
func (s *Store) Relayable(now int64) []RelayableAlert {
	active := s.activeEntries(now)
	relayable := make([]RelayableAlert, 0, len(active))
	for _, e := range active {
		if !e.alert.IsRelayable(now) {
			continue
		}
		relayable = append(relayable, RelayableAlert{
			Hash:   e.hash,
			Signed: e.signed,
		})
	}
	return relayable
}

// StatusBar returns the status text of the most urgent active alert that
// applies to a node with the provided protocol version and user agent.
func (s *Store) StatusBar(now int64, pver int32, userAgent string) (string, bool) {
	for _, e := range s.activeEntries(now) {
		if e.alert.AppliesTo(pver, userAgent) {
			return e.alert.StatusBar, true
		}
	}
	return "", false
}

// Count returns the number of stored alerts, including cancelled alerts and
// expired alerts that have not been evicted yet.
func (s *Store) Count() int {
	s.mtx.RLock()
	n := len(s.byID)
	s.mtx.RUnlock()
	return n
}

// Load restores the persisted cancellations and replays the persisted
// alerts through the acceptance rules.  Alerts and cancellations that no
// longer apply are removed from the backend.
func (s *Store) Load(authority *KeyAuthority, now int64) (int, error) {
	if s.cfg.Backend == nil {
		return 0, nil
	}

	var expired []int32
	live := make(map[int32]tombstone)
	grace := s.grace()
	err := s.cfg.Backend.ForEachCancel(func(id int32, canceller chainhash.Hash, expires int64) error {
		if now >= expires+grace {
			expired = append(expired, id)
			return nil
		}
		live[id] = tombstone{canceller: canceller, expires: expires}
		return nil
	})
	if err != nil {
		return 0, err
	}
	s.mtx.Lock()
	for id, ts := range live {
		s.cancelled[id] = ts
	}
	s.mtx.Unlock()
	for _, id := range expired {
		if err := s.cfg.Backend.DeleteCancel(id); err != nil {
			log.Errorf("Unable to remove cancellation of alert %d: %v",
				id, err)
		}
	}

	type stored struct {
		hash chainhash.Hash
		sa   *SignedAlert
	}
	var all []stored
	var stale []chainhash.Hash
	err = s.cfg.Backend.ForEachAlert(func(hash chainhash.Hash, b []byte) error {
		sa, err := DecodeSigned(b)
		if err != nil {
			log.Warnf("Discarding unreadable stored alert %v: %v", hash, err)
			stale = append(stale, hash)
			return nil
		}
		all = append(all, stored{hash: hash, sa: sa})
		return nil
	})
	if err != nil {
		return 0, err
	}

	// Replay in version order so the surviving version of each id matches
	// the one held before the restart.
	decoded := make(map[chainhash.Hash]*Alert, len(all))
	for _, st := range all {
		a, err := st.sa.Alert()
		if err != nil {
			stale = append(stale, st.hash)
			continue
		}
		decoded[st.hash] = a
	}
	sort.SliceStable(all, func(i, j int) bool {
		a, b := decoded[all[i].hash], decoded[all[j].hash]
		if a == nil || b == nil {
			return b != nil
		}
		return a.Version < b.Version
	})

	var loaded int
	for _, st := range all {
		if decoded[st.hash] == nil {
			continue
		}
		if _, err := s.insert(st.sa, authority, now, true); err != nil {
			if IsFatal(err) {
				return loaded, err
			}
			log.Debugf("Discarding stored alert %v: %v", st.hash, err)
			stale = append(stale, st.hash)
			continue
		}
		loaded++
	}
	for _, hash := range stale {
		if err := s.cfg.Backend.DeleteAlert(hash); err != nil {
			log.Errorf("Unable to remove stored alert %v: %v", hash, err)
		}
	}
	return loaded, nil
}
