// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package nodedb persists the added node list, accepted alerts and alert
// cancellations in a LevelDB database.
package nodedb

import (
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"
	"sync"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// currentVersion is the version of the database layout written by this
// package.
const currentVersion = 1

var (
	// versionKey stores the database layout version.
	versionKey = []byte("version")

	// addedPrefix prefixes added node entries keyed by insertion sequence.
	addedPrefix = []byte("an")

	// addedIndexPrefix prefixes the target to sequence index.
	addedIndexPrefix = []byte("ai")

	// alertPrefix prefixes signed alerts keyed by hash.
	alertPrefix = []byte("al")

	// cancelPrefix prefixes alert cancellations keyed by the cancelled id.
	cancelPrefix = []byte("ac")
)

// cancelValueLen is the size of a serialized cancellation: the canceller
// hash followed by the expiration as a little-endian unix time.
const cancelValueLen = chainhash.HashSize + 8

// DB is a LevelDB backed store for the added node list and accepted alerts.
// It implements alert.Backend and peers.AddedNodeBackend.
//
// All methods are safe for concurrent use.
type DB struct {
	ldb *leveldb.DB

	// addedMtx serializes added node mutations so the sequence and index
	// stay consistent.
	addedMtx sync.Mutex
	nextSeq  uint64
}

// prefixedKey returns the concatenation of prefix and suffix.
func prefixedKey(prefix, suffix []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(suffix))
	key = append(key, prefix...)
	return append(key, suffix...)
}

// cancelKey returns the cancellation key for the provided alert id.
func cancelKey(id int32) []byte {
	var b [4]byte
	binary.BigEndian.PutUint32(b[:], uint32(id))
	return prefixedKey(cancelPrefix, b[:])
}

// seqKey returns the added node key for the provided sequence number.
func seqKey(seq uint64) []byte {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], seq)
	return prefixedKey(addedPrefix, b[:])
}

// Open opens or creates the database at the provided path.
func Open(path string) (*DB, error) {
	ldb, err := leveldb.OpenFile(filepath.Clean(path), nil)
	if err != nil {
		return nil, fmt.Errorf("open node database: %w", err)
	}
	db := &DB{ldb: ldb}
	if err := db.init(); err != nil {
		ldb.Close()
		return nil, err
	}
	return db, nil
}

// init checks the layout version and loads the next added node sequence.
func (db *DB) init() error {
	v, err := db.ldb.Get(versionKey, nil)
	switch {
	case errors.Is(err, leveldb.ErrNotFound):
		var b [4]byte
		binary.LittleEndian.PutUint32(b[:], currentVersion)
		if err := db.ldb.Put(versionKey, b[:], nil); err != nil {
			return fmt.Errorf("write node database version: %w", err)
		}
	case err != nil:
		return fmt.Errorf("read node database version: %w", err)
	case len(v) != 4:
		return fmt.Errorf("node database version is corrupt")
	default:
		if ver := binary.LittleEndian.Uint32(v); ver > currentVersion {
			return fmt.Errorf("node database version %d is newer than "+
				"the supported version %d", ver, currentVersion)
		}
	}

	iter := db.ldb.NewIterator(util.BytesPrefix(addedPrefix), nil)
	defer iter.Release()
	if iter.Last() {
		key := iter.Key()
		if len(key) != len(addedPrefix)+8 {
			return fmt.Errorf("added node key %x is corrupt", key)
		}
		db.nextSeq = binary.BigEndian.Uint64(key[len(addedPrefix):]) + 1
	}
	return iter.Error()
}

// Close closes the database.
func (db *DB) Close() error {
	return db.ldb.Close()
}

// PutAddedNode appends the target to the added node list.  Adding a target
// that is already present is a no-op.
func (db *DB) PutAddedNode(target string) error {
	db.addedMtx.Lock()
	defer db.addedMtx.Unlock()

	indexKey := prefixedKey(addedIndexPrefix, []byte(target))
	has, err := db.ldb.Has(indexKey, nil)
	if err != nil {
		return err
	}
	if has {
		return nil
	}

	var seq [8]byte
	binary.BigEndian.PutUint64(seq[:], db.nextSeq)
	batch := new(leveldb.Batch)
	batch.Put(seqKey(db.nextSeq), []byte(target))
	batch.Put(indexKey, seq[:])
	if err := db.ldb.Write(batch, nil); err != nil {
		return err
	}
	db.nextSeq++
	log.Tracef("Persisted added node %s", target)
	return nil
}

// DeleteAddedNode removes the target from the added node list.  Removing a
// target that is not present is a no-op.
func (db *DB) DeleteAddedNode(target string) error {
	db.addedMtx.Lock()
	defer db.addedMtx.Unlock()

	indexKey := prefixedKey(addedIndexPrefix, []byte(target))
	seq, err := db.ldb.Get(indexKey, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}
	if len(seq) != 8 {
		return fmt.Errorf("added node index for %q is corrupt", target)
	}
	batch := new(leveldb.Batch)
	batch.Delete(seqKey(binary.BigEndian.Uint64(seq)))
	batch.Delete(indexKey)
	return db.ldb.Write(batch, nil)
}

// ForEachAddedNode invokes fn for every added node in insertion order.
func (db *DB) ForEachAddedNode(fn func(target string) error) error {
	iter := db.ldb.NewIterator(util.BytesPrefix(addedPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		if err := fn(string(iter.Value())); err != nil {
			return err
		}
	}
	return iter.Error()
}

// PutAlert stores a signed alert under its hash.
func (db *DB) PutAlert(hash chainhash.Hash, signed []byte) error {
	return db.ldb.Put(prefixedKey(alertPrefix, hash[:]), signed, nil)
}

// DeleteAlert removes the alert with the provided hash.
func (db *DB) DeleteAlert(hash chainhash.Hash) error {
	return db.ldb.Delete(prefixedKey(alertPrefix, hash[:]), nil)
}

// ForEachAlert invokes fn for every stored alert.
func (db *DB) ForEachAlert(fn func(hash chainhash.Hash, signed []byte) error) error {
	iter := db.ldb.NewIterator(util.BytesPrefix(alertPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		var hash chainhash.Hash
		suffix := iter.Key()[len(alertPrefix):]
		if err := hash.SetBytes(suffix); err != nil {
			return fmt.Errorf("alert key %x is corrupt: %w", iter.Key(), err)
		}
		value := append([]byte(nil), iter.Value()...)
		if err := fn(hash, value); err != nil {
			return err
		}
	}
	return iter.Error()
}

// PutCancel records that the alert id was cancelled by the alert with the
// provided hash until the provided unix time.
func (db *DB) PutCancel(id int32, canceller chainhash.Hash, expires int64) error {
	var v [cancelValueLen]byte
	copy(v[:], canceller[:])
	binary.LittleEndian.PutUint64(v[chainhash.HashSize:], uint64(expires))
	return db.ldb.Put(cancelKey(id), v[:], nil)
}

// DeleteCancel removes the cancellation record of the alert id.
func (db *DB) DeleteCancel(id int32) error {
	return db.ldb.Delete(cancelKey(id), nil)
}

// ForEachCancel invokes fn for every cancellation record.
func (db *DB) ForEachCancel(fn func(id int32, canceller chainhash.Hash, expires int64) error) error {
	iter := db.ldb.NewIterator(util.BytesPrefix(cancelPrefix), nil)
	defer iter.Release()
	for iter.Next() {
		key, v := iter.Key(), iter.Value()
		if len(key) != len(cancelPrefix)+4 || len(v) != cancelValueLen {
			return fmt.Errorf("cancellation entry %x is corrupt", key)
		}
		id := int32(binary.BigEndian.Uint32(key[len(cancelPrefix):]))
		var canceller chainhash.Hash
		copy(canceller[:], v[:chainhash.HashSize])
		expires := int64(binary.LittleEndian.Uint64(v[chainhash.HashSize:]))
		if err := fn(id, canceller, expires); err != nil {
			return err
		}
	}
	return iter.Error()
}
