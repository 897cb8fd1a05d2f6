// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package alert

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"github.com/decred/dcrd/dcrec/secp256k1/v4/ecdsa"
)

// PrivKeyLen is the length of a serialized alert signing key.
const PrivKeyLen = secp256k1.PrivKeyBytesLen

// KeyAuthority holds the public keys trusted to author alerts.  A signature
// produced by any one of the keys is accepted, which allows the keys to be
// rotated without a flag day.
//
// A KeyAuthority is immutable after creation and safe for concurrent use.
type KeyAuthority struct {
	keys []*secp256k1.PublicKey
}

// NewKeyAuthority returns an authority trusting the provided serialized
// secp256k1 public keys.  Both compressed and uncompressed encodings are
// accepted.
func NewKeyAuthority(pubKeys ...[]byte) (*KeyAuthority, error) {
	ka := &KeyAuthority{keys: make([]*secp256k1.PublicKey, 0, len(pubKeys))}
	for i, b := range pubKeys {
		pub, err := secp256k1.ParsePubKey(b)
		if err != nil {
			str := fmt.Sprintf("trusted alert key %d is invalid: %v", i, err)
			return nil, Error{Err: ErrInvalidKey, Description: str}
		}
		ka.keys = append(ka.keys, pub)
	}
	return ka, nil
}

// ParseKeyAuthority returns an authority trusting the provided hex encoded
// public keys.
func ParseKeyAuthority(hexKeys []string) (*KeyAuthority, error) {
	pubKeys := make([][]byte, 0, len(hexKeys))
	for _, h := range hexKeys {
		b, err := hex.DecodeString(strings.TrimSpace(h))
		if err != nil {
			str := fmt.Sprintf("trusted alert key %q is not hex: %v", h, err)
			return nil, Error{Err: ErrInvalidKey, Description: str}
		}
		pubKeys = append(pubKeys, b)
	}
	return NewKeyAuthority(pubKeys...)
}

// NumKeys returns the number of trusted keys.
func (ka *KeyAuthority) NumKeys() int {
	return len(ka.keys)
}

// Verify returns whether sig is a valid DER encoded signature of msg by any
// of the trusted keys.
func (ka *KeyAuthority) Verify(msg, sig []byte) bool {
	if len(ka.keys) == 0 {
		return false
	}
	signature, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false
	}
	digest := chainhash.HashB(msg)
	for _, pub := range ka.keys {
		if signature.Verify(digest, pub) {
			return true
		}
	}
	return false
}

// parsePrivKey converts raw key material to a private key, failing rather
// than reducing out of range values.
func parsePrivKey(privKey []byte) (*secp256k1.PrivateKey, error) {
	if len(privKey) != PrivKeyLen {
		str := fmt.Sprintf("private key is %d bytes, want %d", len(privKey),
			PrivKeyLen)
		return nil, alertError(ErrInvalidKey, str)
	}
	var scalar secp256k1.ModNScalar
	if overflow := scalar.SetByteSlice(privKey); overflow {
		return nil, alertError(ErrInvalidKey, "private key is not below the "+
			"group order")
	}
	if scalar.IsZero() {
		return nil, alertError(ErrInvalidKey, "private key is zero")
	}
	return secp256k1.NewPrivateKey(&scalar), nil
}

// Sign signs msg with the provided raw private key and returns the DER
// encoded signature.  Malformed key material results in ErrInvalidKey and no
// signature is produced.
func Sign(msg, privKey []byte) ([]byte, error) {
	priv, err := parsePrivKey(privKey)
	if err != nil {
		return nil, err
	}
	digest := chainhash.HashB(msg)
	sig := ecdsa.Sign(priv, digest)
	if !sig.Verify(digest, priv.PubKey()) {
		return nil, alertError(ErrInvalidKey, "produced signature does not "+
			"verify")
	}
	return sig.Serialize(), nil
}

// Sign signs msg with the provided raw private key.  In addition to the
// checks performed by the package level Sign, the key must belong to the
// authority so the signature is accepted by every node trusting it.
func (ka *KeyAuthority) Sign(msg, privKey []byte) ([]byte, error) {
	sig, err := Sign(msg, privKey)
	if err != nil {
		return nil, err
	}
	if !ka.Verify(msg, sig) {
		return nil, alertError(ErrInvalidKey, "private key does not match "+
			"any trusted alert key")
	}
	return sig, nil
}

// SignAlert validates the alert for minting at the provided unix time and
// returns it signed by the authority key.
func (ka *KeyAuthority) SignAlert(a *Alert, privKey []byte, now int64) (*SignedAlert, error) {
	if err := a.Validate(now); err != nil {
		return nil, err
	}
	payload, err := a.Bytes()
	if err != nil {
		return nil, err
	}
	sig, err := ka.Sign(payload, privKey)
	if err != nil {
		return nil, err
	}
	return &SignedAlert{Payload: payload, Signature: sig}, nil
}

// KeyPair is a freshly generated alert key pair.
type KeyPair struct {
	PrivKey []byte
	PubKey  []byte
}

// GenerateKeyPair creates a new key pair whose hex encoded uncompressed public
// key begins with the provided hex prefix.  At most maxTries keys are
// generated; when none matches the last generated pair is returned along
// with false.
func GenerateKeyPair(prefix string, maxTries int) (*KeyPair, bool, error) {
	prefix = strings.ToLower(prefix)
	if maxTries < 1 {
		maxTries = 1
	}
	var kp *KeyPair
	for i := 0; i < maxTries; i++ {
		priv, err := secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, false, err
		}
		kp = &KeyPair{
			PrivKey: priv.Serialize(),
			PubKey:  priv.PubKey().SerializeUncompressed(),
		}
		if strings.HasPrefix(hex.EncodeToString(kp.PubKey), prefix) {
			return kp, true, nil
		}
	}
	return kp, false, nil
}
