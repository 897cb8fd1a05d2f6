// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package alert

import (
	"encoding/hex"
	"testing"
)

// testPrivKey is the well-known private key with the scalar value one.  Its
// public key is the secp256k1 generator point.
var testPrivKey = hexToBytes("00000000000000000000000000000000" +
	"00000000000000000000000000000001")

// testPrivKey2 is a second signing key used to exercise key rotation.
var testPrivKey2 = hexToBytes("00000000000000000000000000000000" +
	"00000000000000000000000000000002")

// hexToBytes converts the passed hex string into bytes and will panic if
// there is an error.  This is only provided for the hard-coded constants so
// errors in the source code can be detected.  It will only (and must only) be
// called with hard-coded values.
func hexToBytes(s string) []byte {
	b, err := hex.DecodeString(s)
	if err != nil {
		panic("invalid hex in source file: " + s)
	}
	return b
}

// testAuthority returns an authority trusting the public keys of the
// provided private keys.
func testAuthority(t *testing.T, privKeys ...[]byte) *KeyAuthority {
	t.Helper()
	var pubKeys [][]byte
	for _, priv := range privKeys {
		p, err := parsePrivKey(priv)
		if err != nil {
			t.Fatalf("unexpected error parsing test key: %v", err)
		}
		pubKeys = append(pubKeys, p.PubKey().SerializeCompressed())
	}
	ka, err := NewKeyAuthority(pubKeys...)
	if err != nil {
		t.Fatalf("unexpected error creating authority: %v", err)
	}
	return ka
}

// mustSign returns the alert signed with the test key, failing the test on
// error.
func mustSign(t *testing.T, ka *KeyAuthority, a *Alert, now int64) *SignedAlert {
	t.Helper()
	sa, err := ka.SignAlert(a, testPrivKey, now)
	if err != nil {
		t.Fatalf("unable to sign %v: %v", a, err)
	}
	return sa
}
