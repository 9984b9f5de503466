package hashengine

import (
	"github.com/holiman/uint256"
	"golang.org/x/crypto/sha3"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
)

// PoscanHash computes poscan_hash = SHA3-256(SCALE(pre_hash, obj_hash)).
func PoscanHash(preHash, objHash codec.Hash256) codec.Hash256 {
	return codec.Hash256(sha3.Sum256(codec.EncodeHashes(preHash, objHash)))
}

// WorkHash computes work = SHA3-256(SCALE(difficulty, pre_hash, poscan_hash)).
func WorkHash(difficulty *uint256.Int, preHash, poscanHash codec.Hash256) codec.Hash256 {
	return codec.Hash256(sha3.Sum256(codec.EncodeDifficultyHashes(difficulty, preHash, poscanHash)))
}

// HashDifficulty computes floor(U256::MAX / be_uint(h)): higher is stronger.
// A hash of all zero bytes is treated as maximal difficulty rather than
// dividing by zero.
func HashDifficulty(h codec.Hash256) *uint256.Int {
	v := new(uint256.Int).SetBytes(h[:])
	if v.IsZero() {
		return new(uint256.Int).SetAllOne()
	}
	max := new(uint256.Int).SetAllOne()
	out := new(uint256.Int)
	return out.Div(max, v)
}
