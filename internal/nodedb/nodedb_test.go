// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package nodedb

import (
	"bytes"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/decred/dcrd/chaincfg/chainhash"
)

// openTestDB opens a database in a temporary directory.
func openTestDB(t *testing.T, dir string) *DB {
	t.Helper()
	db, err := Open(filepath.Join(dir, "nodedb"))
	if err != nil {
		t.Fatalf("unable to open database: %v", err)
	}
	return db
}

// addedNodes returns the persisted added nodes in iteration order.
func addedNodes(t *testing.T, db *DB) []string {
	t.Helper()
	var targets []string
	err := db.ForEachAddedNode(func(target string) error {
		targets = append(targets, target)
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected iteration error: %v", err)
	}
	return targets
}

// TestAddedNodes ensures the added node list keeps insertion order across
// deletions and reopening.
func TestAddedNodes(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	for _, target := range []string{"c.example.org", "a.example.org",
		"10.0.0.5", "a.example.org"} {

		if err := db.PutAddedNode(target); err != nil {
			t.Fatalf("unexpected put error: %v", err)
		}
	}
	if err := db.DeleteAddedNode("a.example.org"); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := db.DeleteAddedNode("absent"); err != nil {
		t.Fatalf("unexpected delete error for absent node: %v", err)
	}
	want := []string{"c.example.org", "10.0.0.5"}
	if got := addedNodes(t, db); !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	db = openTestDB(t, dir)
	defer db.Close()
	if err := db.PutAddedNode("a.example.org"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	want = append(want, "a.example.org")
	if got := addedNodes(t, db); !reflect.DeepEqual(got, want) {
		t.Fatalf("after reopen got %v, want %v", got, want)
	}
}

// TestAlerts ensures alerts are stored and removed by hash.
func TestAlerts(t *testing.T) {
	db := openTestDB(t, t.TempDir())
	defer db.Close()

	h1, h2 := chainhash.Hash{1}, chainhash.Hash{2}
	if err := db.PutAlert(h1, []byte{0x01}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if err := db.PutAlert(h2, []byte{0x02, 0x02}); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if err := db.DeleteAlert(h1); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}

	got := make(map[chainhash.Hash][]byte)
	err := db.ForEachAlert(func(hash chainhash.Hash, signed []byte) error {
		got[hash] = signed
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected iteration error: %v", err)
	}
	if len(got) != 1 || !bytes.Equal(got[h2], []byte{0x02, 0x02}) {
		t.Fatalf("unexpected stored alerts %v", got)
	}

	// Added nodes and alerts live in separate key spaces.
	if err := db.PutAddedNode("10.0.0.1"); err != nil {
		t.Fatalf("unexpected put error: %v", err)
	}
	if n := len(addedNodes(t, db)); n != 1 {
		t.Fatalf("got %d added nodes, want 1", n)
	}
}

// TestCancels ensures alert cancellations are stored, replaced and removed by
// the cancelled id and survive reopening the database.
func TestCancels(t *testing.T) {
	dir := t.TempDir()
	db := openTestDB(t, dir)

	type record struct {
		canceller chainhash.Hash
		expires   int64
	}
	puts := []struct {
		id int32
		r  record
	}{
		{1, record{chainhash.Hash{0xaa}, 1700086400}},
		{-7, record{chainhash.Hash{0xbb}, 1731536000}},
		{1, record{chainhash.Hash{0xcc}, 1731536000}},
		{9, record{chainhash.Hash{0xdd}, 1700000000}},
	}
	for _, put := range puts {
		if err := db.PutCancel(put.id, put.r.canceller, put.r.expires); err != nil {
			t.Fatalf("unexpected put error: %v", err)
		}
	}
	if err := db.DeleteCancel(9); err != nil {
		t.Fatalf("unexpected delete error: %v", err)
	}
	if err := db.DeleteCancel(42); err != nil {
		t.Fatalf("unexpected delete error for absent id: %v", err)
	}
	if err := db.Close(); err != nil {
		t.Fatalf("unexpected close error: %v", err)
	}

	db = openTestDB(t, dir)
	defer db.Close()
	got := make(map[int32]record)
	err := db.ForEachCancel(func(id int32, canceller chainhash.Hash, expires int64) error {
		got[id] = record{canceller, expires}
		return nil
	})
	if err != nil {
		t.Fatalf("unexpected iteration error: %v", err)
	}
	want := map[int32]record{
		1:  {chainhash.Hash{0xcc}, 1731536000},
		-7: {chainhash.Hash{0xbb}, 1731536000},
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}

	// Cancellations do not show up as alerts.
	var alerts int
	err = db.ForEachAlert(func(chainhash.Hash, []byte) error {
		alerts++
		return nil
	})
	if err != nil || alerts != 0 {
		t.Fatalf("got %d alerts (%v), want 0", alerts, err)
	}
}
