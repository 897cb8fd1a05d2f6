// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package alert

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/decred/dcrd/chaincfg/chainhash"
	"github.com/decred/dcrd/wire"
)

const (
	// MaxStringLen is the maximum length of any string field of an alert.
	MaxStringLen = 4096

	// MaxSubVers is the maximum number of user agent strings an alert may be
	// scoped to.
	MaxSubVers = 256

	// MaxSignatureLen is the maximum length of a DER encoded signature.
	MaxSignatureLen = 80

	// MaxPayloadLen is the maximum length of a serialized unsigned alert.
	MaxPayloadLen = 64 * 1024

	// codecPver is the protocol version handed to the wire var-length
	// encoders.  The alert encoding does not vary by protocol version.
	codecPver = 0
)

// Alert describes a network-wide advisory authored by the holder of one of
// the trusted alert keys.  Alerts are never modified once signed.
type Alert struct {
	// Version is the alert format version chosen by the author.  Among
	// alerts sharing an ID the higher version wins.
	Version int32

	// RelayUntil is the unix time after which the alert is no longer
	// forwarded to peers.
	RelayUntil int64

	// Expiration is the unix time after which the alert is no longer
	// considered active.
	Expiration int64

	// ID identifies the alert and is used as the deduplication key.
	ID int32

	// Cancel is the ID of a previously issued alert this one revokes, or 0.
	Cancel int32

	// MinVer and MaxVer bound the protocol versions the alert applies to.
	// Both ends are inclusive.
	MinVer int32
	MaxVer int32

	// SubVers restricts the alert to user agents containing one of the
	// entries.  An empty set applies to every user agent.
	SubVers []string

	// Priority orders alerts for display.  Higher is more urgent.
	Priority int32

	Comment   string
	StatusBar string
	Reserved  string
}

// Validate checks the constraints an alert must satisfy to be minted at the
// provided unix time.
func (a *Alert) Validate(now int64) error {
	if err := a.checkFields(); err != nil {
		return err
	}
	if a.RelayUntil < now {
		str := fmt.Sprintf("relay until %d is before the current time %d",
			a.RelayUntil, now)
		return alertError(ErrInvalidAlert, str)
	}
	if a.Expiration < now {
		str := fmt.Sprintf("expiration %d is before the current time %d",
			a.Expiration, now)
		return alertError(ErrInvalidAlert, str)
	}
	return nil
}

// checkFields performs the time independent sanity checks shared by minted
// and received alerts.
func (a *Alert) checkFields() error {
	if a.MinVer > a.MaxVer {
		str := fmt.Sprintf("minimum version %d exceeds maximum version %d",
			a.MinVer, a.MaxVer)
		return alertError(ErrInvalidAlert, str)
	}
	if a.Cancel != 0 && a.Cancel == a.ID {
		str := fmt.Sprintf("alert %d cancels itself", a.ID)
		return alertError(ErrInvalidAlert, str)
	}
	if len(a.SubVers) > MaxSubVers {
		str := fmt.Sprintf("alert is scoped to %d user agents, max %d",
			len(a.SubVers), MaxSubVers)
		return alertError(ErrInvalidAlert, str)
	}
	for _, s := range []string{a.Comment, a.StatusBar, a.Reserved} {
		if len(s) > MaxStringLen {
			str := fmt.Sprintf("alert string length %d exceeds max %d",
				len(s), MaxStringLen)
			return alertError(ErrInvalidAlert, str)
		}
	}
	return nil
}

// AppliesTo returns whether the alert targets a node running the provided
// protocol version and user agent.
func (a *Alert) AppliesTo(pver int32, userAgent string) bool {
	if pver < a.MinVer || pver > a.MaxVer {
		return false
	}
	if len(a.SubVers) == 0 {
		return true
	}
	for _, sub := range a.SubVers {
		if strings.Contains(userAgent, sub) {
			return true
		}
	}
	return false
}

// AppliesTo returns whether the alert targets a node running the provided
// protocol version and user agent.
func AppliesTo(a *Alert, pver int32, userAgent string) bool {
	return a.AppliesTo(pver, userAgent)
}

// IsActive returns whether the alert has not yet expired at the provided unix
// time.  Cancellation is tracked by the store.
func (a *Alert) IsActive(now int64) bool {
	return now < a.Expiration
}

// IsRelayable returns whether the alert may still be forwarded to peers at
// the provided unix time.
func (a *Alert) IsRelayable(now int64) bool {
	return now < a.RelayUntil && a.IsActive(now)
}

// clone returns a deep copy of the alert.
func (a *Alert) clone() *Alert {
	c := *a
	if a.SubVers != nil {
		c.SubVers = append([]string(nil), a.SubVers...)
	}
	return &c
}

// String returns a short human-readable description of the alert.
func (a *Alert) String() string {
	return fmt.Sprintf("alert %d (version %d, priority %d)", a.ID,
		a.Version, a.Priority)
}

// normalizeSubVers returns the sorted set of unique, non-empty entries.
func normalizeSubVers(subVers []string) []string {
	if len(subVers) == 0 {
		return nil
	}
	set := make(map[string]struct{}, len(subVers))
	out := make([]string, 0, len(subVers))
	for _, s := range subVers {
		if s == "" {
			continue
		}
		if _, ok := set[s]; ok {
			continue
		}
		set[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	if len(out) == 0 {
		return nil
	}
	return out
}

// Serialize writes the canonical encoding of the alert to w.  The encoding
// covers every field and is the message the alert signature commits to.
func (a *Alert) Serialize(w io.Writer) error {
	var buf [8]byte
	writeInt32 := func(v int32) error {
		binary.LittleEndian.PutUint32(buf[:4], uint32(v))
		_, err := w.Write(buf[:4])
		return err
	}
	writeInt64 := func(v int64) error {
		binary.LittleEndian.PutUint64(buf[:], uint64(v))
		_, err := w.Write(buf[:])
		return err
	}

	if err := writeInt32(a.Version); err != nil {
		return err
	}
	if err := writeInt64(a.RelayUntil); err != nil {
		return err
	}
	if err := writeInt64(a.Expiration); err != nil {
		return err
	}
	for _, v := range []int32{a.ID, a.Cancel, a.MinVer, a.MaxVer} {
		if err := writeInt32(v); err != nil {
			return err
		}
	}
	subVers := normalizeSubVers(a.SubVers)
	err := wire.WriteVarInt(w, codecPver, uint64(len(subVers)))
	if err != nil {
		return err
	}
	for _, s := range subVers {
		if err := wire.WriteVarString(w, codecPver, s); err != nil {
			return err
		}
	}
	if err := writeInt32(a.Priority); err != nil {
		return err
	}
	for _, s := range []string{a.Comment, a.StatusBar, a.Reserved} {
		if err := wire.WriteVarString(w, codecPver, s); err != nil {
			return err
		}
	}
	return nil
}

// Bytes returns the canonical encoding of the alert.
func (a *Alert) Bytes() ([]byte, error) {
	var b bytes.Buffer
	if err := a.Serialize(&b); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// readString reads a bounded var-length string.
func readString(r io.Reader, field string) (string, error) {
	b, err := wire.ReadVarBytes(r, codecPver, MaxStringLen, field)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Deserialize decodes an alert from r using the canonical encoding.
func (a *Alert) Deserialize(r io.Reader) error {
	var buf [8]byte
	readInt32 := func(v *int32) error {
		if _, err := io.ReadFull(r, buf[:4]); err != nil {
			return err
		}
		*v = int32(binary.LittleEndian.Uint32(buf[:4]))
		return nil
	}
	readInt64 := func(v *int64) error {
		if _, err := io.ReadFull(r, buf[:]); err != nil {
			return err
		}
		*v = int64(binary.LittleEndian.Uint64(buf[:]))
		return nil
	}

	if err := readInt32(&a.Version); err != nil {
		return err
	}
	if err := readInt64(&a.RelayUntil); err != nil {
		return err
	}
	if err := readInt64(&a.Expiration); err != nil {
		return err
	}
	for _, v := range []*int32{&a.ID, &a.Cancel, &a.MinVer, &a.MaxVer} {
		if err := readInt32(v); err != nil {
			return err
		}
	}
	count, err := wire.ReadVarInt(r, codecPver)
	if err != nil {
		return err
	}
	if count > MaxSubVers {
		return fmt.Errorf("too many user agent entries (%d, max %d)", count,
			MaxSubVers)
	}
	a.SubVers = nil
	for i := uint64(0); i < count; i++ {
		s, err := readString(r, "alert subver")
		if err != nil {
			return err
		}
		a.SubVers = append(a.SubVers, s)
	}
	if err := readInt32(&a.Priority); err != nil {
		return err
	}
	if a.Comment, err = readString(r, "alert comment"); err != nil {
		return err
	}
	if a.StatusBar, err = readString(r, "alert status bar"); err != nil {
		return err
	}
	if a.Reserved, err = readString(r, "alert reserved"); err != nil {
		return err
	}
	return nil
}

// Decode parses a canonical alert encoding.  Trailing bytes are rejected.
func Decode(payload []byte) (*Alert, error) {
	if len(payload) > MaxPayloadLen {
		str := fmt.Sprintf("alert payload is %d bytes, max %d",
			len(payload), MaxPayloadLen)
		return nil, alertError(ErrMalformed, str)
	}
	r := bytes.NewReader(payload)
	var a Alert
	if err := a.Deserialize(r); err != nil {
		str := fmt.Sprintf("unable to decode alert: %v", err)
		return nil, Error{Err: ErrMalformed, Description: str}
	}
	if r.Len() != 0 {
		str := fmt.Sprintf("alert has %d trailing bytes", r.Len())
		return nil, alertError(ErrMalformed, str)
	}
	return &a, nil
}

// SignedAlert pairs the canonical encoding of an alert with the signature
// over it.  It is the unit exchanged with peers and persisted to disk.
type SignedAlert struct {
	Payload   []byte
	Signature []byte
}

// Hash returns the identity hash of the alert payload.  Distinct versions of
// an alert sharing the same ID have distinct hashes.
func (sa *SignedAlert) Hash() chainhash.Hash {
	return chainhash.HashH(sa.Payload)
}

// Alert decodes the signed payload.
func (sa *SignedAlert) Alert() (*Alert, error) {
	return Decode(sa.Payload)
}

// Verify returns whether the signature verifies against the authority.
func (sa *SignedAlert) Verify(authority *KeyAuthority) bool {
	return authority.Verify(sa.Payload, sa.Signature)
}

// Bytes returns the wire encoding of the signed alert.
func (sa *SignedAlert) Bytes() []byte {
	var b bytes.Buffer
	b.Grow(len(sa.Payload) + len(sa.Signature) + 8)
	// Writes to a bytes.Buffer do not fail.
	_ = wire.WriteVarBytes(&b, codecPver, sa.Payload)
	_ = wire.WriteVarBytes(&b, codecPver, sa.Signature)
	return b.Bytes()
}

// DecodeSigned parses the wire encoding of a signed alert.  The payload is
// not decoded or verified.
func DecodeSigned(b []byte) (*SignedAlert, error) {
	r := bytes.NewReader(b)
	payload, err := wire.ReadVarBytes(r, codecPver, MaxPayloadLen,
		"alert payload")
	if err != nil {
		str := fmt.Sprintf("unable to read alert payload: %v", err)
		return nil, Error{Err: ErrMalformed, Description: str}
	}
	sig, err := wire.ReadVarBytes(r, codecPver, MaxSignatureLen,
		"alert signature")
	if err != nil {
		str := fmt.Sprintf("unable to read alert signature: %v", err)
		return nil, Error{Err: ErrMalformed, Description: str}
	}
	if r.Len() != 0 {
		str := fmt.Sprintf("signed alert has %d trailing bytes", r.Len())
		return nil, alertError(ErrMalformed, str)
	}
	return &SignedAlert{Payload: payload, Signature: sig}, nil
}

// ParseSubVersions parses a BIP0014 style user agent list such as
// "/Satoshi:0.8.5/Anoncoin:0.9.0/" into its individual entries, each
// wrapped in slashes so they can be substring matched against a full user
// agent.  An empty string yields an empty set.
func ParseSubVersions(s string) ([]string, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !strings.HasPrefix(s, "/") || !strings.HasSuffix(s, "/") {
		str := fmt.Sprintf("user agent list %q must begin and end with /", s)
		return nil, alertError(ErrInvalidAlert, str)
	}
	var out []string
	for _, part := range strings.Split(strings.Trim(s, "/"), "/") {
		if part == "" {
			str := fmt.Sprintf("user agent list %q has an empty entry", s)
			return nil, alertError(ErrInvalidAlert, str)
		}
		out = append(out, "/"+part+"/")
	}
	return normalizeSubVers(out), nil
}
