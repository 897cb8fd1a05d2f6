// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package alert

import (
	"bytes"
	"encoding/hex"
	"errors"
	"strings"
	"testing"
)

// TestSignVerify ensures signatures produced with a trusted key verify and
// tampered messages do not.
func TestSignVerify(t *testing.T) {
	ka := testAuthority(t, testPrivKey)
	msg := []byte("upgrade required")

	sig, err := ka.Sign(msg, testPrivKey)
	if err != nil {
		t.Fatalf("unexpected sign error: %v", err)
	}
	if !ka.Verify(msg, sig) {
		t.Fatal("signature does not verify")
	}
	if ka.Verify([]byte("upgrade required!"), sig) {
		t.Fatal("signature verifies for a different message")
	}
	bad := append([]byte(nil), sig...)
	bad[len(bad)-1] ^= 0x01
	if ka.Verify(msg, bad) {
		t.Fatal("tampered signature verifies")
	}
	if ka.Verify(msg, []byte{0x30, 0x00}) {
		t.Fatal("malformed signature verifies")
	}

	// A key outside the authority signs but is refused by the authority.
	if _, err := Sign(msg, testPrivKey2); err != nil {
		t.Fatalf("unexpected sign error: %v", err)
	}
	if _, err := ka.Sign(msg, testPrivKey2); !errors.Is(err, ErrInvalidKey) {
		t.Fatalf("untrusted key: got err %v, want %v", err, ErrInvalidKey)
	}
}

// TestKeyRotation ensures a signature by any one of the trusted keys is
// accepted.
func TestKeyRotation(t *testing.T) {
	ka := testAuthority(t, testPrivKey2, testPrivKey)
	msg := []byte("rotated")
	for i, priv := range [][]byte{testPrivKey, testPrivKey2} {
		sig, err := Sign(msg, priv)
		if err != nil {
			t.Fatalf("#%d: unexpected sign error: %v", i, err)
		}
		if !ka.Verify(msg, sig) {
			t.Fatalf("#%d: signature does not verify", i)
		}
	}

	var empty KeyAuthority
	sig, _ := Sign(msg, testPrivKey)
	if empty.Verify(msg, sig) {
		t.Fatal("authority without keys verified a signature")
	}
}

// TestSignInvalidKey ensures malformed key material fails closed.
func TestSignInvalidKey(t *testing.T) {
	order := hexToBytes("fffffffffffffffffffffffffffffffe" +
		"baaedce6af48a03bbfd25e8cd0364141")
	tests := []struct {
		name string
		key  []byte
	}{
		{"nil", nil},
		{"short", testPrivKey[:31]},
		{"long", append(append([]byte(nil), testPrivKey...), 0x01)},
		{"zero", make([]byte, 32)},
		{"group order", order},
		{"all ones", bytes.Repeat([]byte{0xff}, 32)},
	}

	for _, test := range tests {
		sig, err := Sign([]byte("msg"), test.key)
		if !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%s: got err %v, want %v", test.name, err, ErrInvalidKey)
		}
		if sig != nil {
			t.Errorf("%s: produced a signature for an invalid key", test.name)
		}
	}
}

// TestParseKeyAuthority ensures hex keys are parsed and invalid keys are
// rejected.
func TestParseKeyAuthority(t *testing.T) {
	const generator = "0479be667ef9dcbbac55a06295ce870b07029bfcdb2dce28d9" +
		"59f2815b16f81798483ada7726a3c4655da4fbfc0e1108a8fd17b448a6855419" +
		"9c47d08ffb10d4b8"
	ka, err := ParseKeyAuthority([]string{generator})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	sig, err := Sign([]byte("msg"), testPrivKey)
	if err != nil {
		t.Fatalf("unexpected sign error: %v", err)
	}
	if !ka.Verify([]byte("msg"), sig) {
		t.Fatal("generator key does not verify signature by scalar one")
	}

	for _, bad := range []string{"zz", "04abcd"} {
		if _, err := ParseKeyAuthority([]string{bad}); !errors.Is(err, ErrInvalidKey) {
			t.Errorf("%q: got err %v, want %v", bad, err, ErrInvalidKey)
		}
	}
}

// TestGenerateKeyPair ensures generated pairs are usable and honor the
// requested prefix.
func TestGenerateKeyPair(t *testing.T) {
	kp, found, err := GenerateKeyPair("04", 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !found {
		t.Fatal("uncompressed key does not begin with 04")
	}
	ka, err := NewKeyAuthority(kp.PubKey)
	if err != nil {
		t.Fatalf("generated public key rejected: %v", err)
	}
	sig, err := ka.Sign([]byte("msg"), kp.PrivKey)
	if err != nil {
		t.Fatalf("generated private key rejected: %v", err)
	}
	if !ka.Verify([]byte("msg"), sig) {
		t.Fatal("signature by generated key does not verify")
	}

	kp, found, err = GenerateKeyPair("05", 3)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if found || !strings.HasPrefix(hex.EncodeToString(kp.PubKey), "04") {
		t.Fatalf("impossible prefix reported found=%v", found)
	}
}
