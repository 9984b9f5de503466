// Package codec implements the fixed-width SCALE encoding the proxy uses to
// build the byte strings it hashes and signs, plus the hex/big-integer
// parsing rules the node's JSON-RPC boundary requires.
//
// Only the subset of parity-scale-codec actually exercised here is
// implemented: fixed-size 32-byte hashes, which SCALE-encode as their raw
// bytes in declared order, and 256-bit unsigned integers, which SCALE-encode
// as 32 bytes little-endian. There is no compact-integer or enum
// encoding anywhere in this wire format, so a general Substrate codec
// library would bring a great deal of unused surface for no behavioral gain
// over a direct implementation (recorded in DESIGN.md).
package codec

import (
	"github.com/holiman/uint256"
)

// Hash256 is a fixed-size 32-byte hash (pre_hash, parent_hash, obj_hash, ...).
type Hash256 [32]byte

// Encode appends the raw bytes of h, unchanged, to buf.
func (h Hash256) Encode(buf []byte) []byte {
	return append(buf, h[:]...)
}

// EncodeU256 appends the little-endian 32-byte SCALE encoding of x to buf.
func EncodeU256(buf []byte, x *uint256.Int) []byte {
	var le [32]byte
	b := x.Bytes32() // big-endian fixed width
	for i := range b {
		le[31-i] = b[i]
	}
	return append(buf, le[:]...)
}

// EncodeHashes SCALE-encodes an ordered sequence of 32-byte hashes.
func EncodeHashes(hashes ...Hash256) []byte {
	buf := make([]byte, 0, 32*len(hashes))
	for _, h := range hashes {
		buf = h.Encode(buf)
	}
	return buf
}

// EncodeDifficultyHashes SCALE-encodes (difficulty, pre_hash, poscan_hash) in
// that declared field order, matching work_hash's input tuple.
func EncodeDifficultyHashes(difficulty *uint256.Int, preHash, poscanHash Hash256) []byte {
	buf := make([]byte, 0, 96)
	buf = EncodeU256(buf, difficulty)
	buf = preHash.Encode(buf)
	buf = poscanHash.Encode(buf)
	return buf
}
