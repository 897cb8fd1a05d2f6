// Copyright (c) 2013-2016 The btcsuite developers
// Copyright (c) 2015-2024 The Decred developers
// Copyright (c) 2024 The Anoncoin developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"

	"github.com/anoncoin/anond/internal/alert"
	"github.com/decred/dcrd/wire"
)

const (
	// maxFramePayload is the maximum number of payload bytes a single frame
	// may carry.  It fits the largest signed alert along with its length
	// prefixes and signature.
	maxFramePayload = alert.MaxPayloadLen + 128

	// frameHeaderLen is the number of bytes preceding the var-length
	// payload: the network magic and the command.
	frameHeaderLen = 4 + 1

	// maxUserAgentWireLen bounds the user agent read from a version frame.
	// Longer values are rejected outright while shorter ones are truncated
	// on sanitization.
	maxUserAgentWireLen = 4096

	// framePver is handed to the wire var-length encoders.  The framing does
	// not vary by protocol version.
	framePver = 0
)

// frameCmd identifies the message carried by a frame.
type frameCmd uint8

// These constants define the frame commands.
const (
	cmdVersion frameCmd = iota + 1
	cmdVerAck
	cmdPing
	cmdPong
	cmdAlert
)

// frameCmdStrings is a map of frame commands back to their constant names for
// pretty printing.
var frameCmdStrings = map[frameCmd]string{
	cmdVersion: "version",
	cmdVerAck:  "verack",
	cmdPing:    "ping",
	cmdPong:    "pong",
	cmdAlert:   "alert",
}

// String returns the frameCmd as a human-readable name.
func (c frameCmd) String() string {
	if s := frameCmdStrings[c]; s != "" {
		return s
	}
	return fmt.Sprintf("Unknown frameCmd (%d)", uint8(c))
}

// errMalformedFrame is wrapped by every error caused by the content of a
// frame rather than by the underlying connection.
var errMalformedFrame = errors.New("malformed frame")

// malformedf returns an error wrapping errMalformedFrame.
func malformedf(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", errMalformedFrame, fmt.Sprintf(format, args...))
}

// frameSize returns the number of bytes a frame with the given payload length
// occupies on the wire.
func frameSize(payloadLen int) int {
	return frameHeaderLen + wire.VarIntSerializeSize(uint64(payloadLen)) +
		payloadLen
}

// encodeFrame returns the serialized frame carrying payload.
func encodeFrame(magic uint32, cmd frameCmd, payload []byte) ([]byte, error) {
	if len(payload) > maxFramePayload {
		return nil, fmt.Errorf("%v payload is %d bytes, max %d", cmd,
			len(payload), maxFramePayload)
	}
	var b bytes.Buffer
	b.Grow(frameSize(len(payload)))
	var hdr [frameHeaderLen]byte
	binary.LittleEndian.PutUint32(hdr[:4], magic)
	hdr[4] = byte(cmd)
	b.Write(hdr[:])
	if err := wire.WriteVarBytes(&b, framePver, payload); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

// readFrame reads a single frame from r.  It returns the command, the payload
// and the number of bytes consumed.  Errors caused by the frame content wrap
// errMalformedFrame.
func readFrame(r io.Reader, magic uint32) (frameCmd, []byte, int, error) {
	var hdr [frameHeaderLen]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return 0, nil, 0, err
	}
	if got := binary.LittleEndian.Uint32(hdr[:4]); got != magic {
		return 0, nil, frameHeaderLen, malformedf("network magic %08x, "+
			"want %08x", got, magic)
	}
	cmd := frameCmd(hdr[4])
	if _, ok := frameCmdStrings[cmd]; !ok {
		return 0, nil, frameHeaderLen, malformedf("unknown command %d",
			uint8(cmd))
	}
	payload, err := wire.ReadVarBytes(r, framePver, maxFramePayload,
		cmd.String()+" payload")
	if err != nil {
		var msgErr wire.MessageError
		if errors.As(err, &msgErr) {
			return 0, nil, frameHeaderLen, malformedf("%v", err)
		}
		return 0, nil, frameHeaderLen, err
	}
	return cmd, payload, frameSize(len(payload)), nil
}

// versionMsg is the handshake message exchanged when a connection is
// established.
type versionMsg struct {
	ProtocolVersion uint32
	Services        wire.ServiceFlag
	Timestamp       int64
	Nonce           uint64
	UserAgent       string
	StartingHeight  int64
}

// encode returns the serialized version message.
func (m *versionMsg) encode() []byte {
	var b bytes.Buffer
	var buf [8]byte
	binary.LittleEndian.PutUint32(buf[:4], m.ProtocolVersion)
	b.Write(buf[:4])
	binary.LittleEndian.PutUint64(buf[:], uint64(m.Services))
	b.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], uint64(m.Timestamp))
	b.Write(buf[:])
	binary.LittleEndian.PutUint64(buf[:], m.Nonce)
	b.Write(buf[:])
	// Writes to a bytes.Buffer do not fail.
	_ = wire.WriteVarBytes(&b, framePver, []byte(m.UserAgent))
	binary.LittleEndian.PutUint64(buf[:], uint64(m.StartingHeight))
	b.Write(buf[:])
	return b.Bytes()
}

// decodeVersion parses a version message payload.
func decodeVersion(payload []byte) (*versionMsg, error) {
	const fixedLen = 4 + 8 + 8 + 8
	if len(payload) < fixedLen {
		return nil, malformedf("version payload is %d bytes", len(payload))
	}
	var m versionMsg
	m.ProtocolVersion = binary.LittleEndian.Uint32(payload[0:4])
	m.Services = wire.ServiceFlag(binary.LittleEndian.Uint64(payload[4:12]))
	m.Timestamp = int64(binary.LittleEndian.Uint64(payload[12:20]))
	m.Nonce = binary.LittleEndian.Uint64(payload[20:28])
	r := bytes.NewReader(payload[fixedLen:])
	ua, err := wire.ReadVarBytes(r, framePver, maxUserAgentWireLen,
		"user agent")
	if err != nil {
		return nil, malformedf("version user agent: %v", err)
	}
	m.UserAgent = string(ua)
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return nil, malformedf("version starting height: %v", err)
	}
	m.StartingHeight = int64(binary.LittleEndian.Uint64(buf[:]))
	if r.Len() != 0 {
		return nil, malformedf("version has %d trailing bytes", r.Len())
	}
	return &m, nil
}

// encodeNonce returns the payload of a ping or pong frame.
func encodeNonce(nonce uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], nonce)
	return b[:]
}

// decodeNonce parses the payload of a ping or pong frame.
func decodeNonce(payload []byte) (uint64, error) {
	if len(payload) != 8 {
		return 0, malformedf("nonce payload is %d bytes", len(payload))
	}
	return binary.LittleEndian.Uint64(payload), nil
}
