package codec

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
)

// HexToBytes strips an optional "0x" prefix and decodes the remainder.
func HexToBytes(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, errs.New(errs.Protocol, "HexToBytes", err)
	}
	return b, nil
}

// BytesToHex encodes b as "0x"-prefixed hex.
func BytesToHex(b []byte) string {
	return "0x" + hex.EncodeToString(b)
}

// ParseHash256 parses a hex string (optional "0x") into a Hash256. The
// decoded value must be exactly 32 bytes.
func ParseHash256(s string) (Hash256, error) {
	var h Hash256
	b, err := HexToBytes(s)
	if err != nil {
		return h, err
	}
	if len(b) != 32 {
		return h, errs.New(errs.Protocol, "ParseHash256", fmt.Errorf("want 32 bytes, got %d", len(b)))
	}
	copy(h[:], b)
	return h, nil
}

// ParseU256 parses a base-16 string (optional "0x") into a 256-bit integer.
func ParseU256(s string) (*uint256.Int, error) {
	s = strings.TrimPrefix(s, "0x")
	// uint256.FromHex rejects leading zero digits, which the node may send.
	s = strings.TrimLeft(s, "0")
	if s == "" {
		s = "0"
	}
	x, err := uint256.FromHex("0x" + s)
	if err != nil {
		return nil, errs.New(errs.Protocol, "ParseU256", err)
	}
	return x, nil
}

// ReverseBytes returns a byte-order-reversed copy of b.
func ReverseBytes(b []byte) []byte {
	out := make([]byte, len(b))
	for i, j := 0, len(b)-1; j >= 0; i, j = i+1, j-1 {
		out[i] = b[j]
	}
	return out
}

// ReversePubKey recovers the raw Curve25519 point bytes from the node's
// wire representation: the node advertises pub_key as big-endian hex of a
// 256-bit integer, and consumers must reverse its bytes before treating it
// as a Curve25519 point.
func ReversePubKey(pubKeyHex string) (Hash256, error) {
	b, err := HexToBytes(pubKeyHex)
	if err != nil {
		return Hash256{}, err
	}
	if len(b) != 32 {
		return Hash256{}, errs.New(errs.Protocol, "ReversePubKey", fmt.Errorf("want 32 bytes, got %d", len(b)))
	}
	var out Hash256
	copy(out[:], ReverseBytes(b))
	return out, nil
}
