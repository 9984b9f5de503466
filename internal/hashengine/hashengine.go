// Package hashengine runs the proof-of-scan algorithm against a miner's
// candidate object and derives the work-hash/poscan-hash/hash-difficulty
// chain the validator evaluates a candidate against.
//
// The mixing core below is a scratchpad-based hash (Blake3-seeded
// initialization, sequential memory passes, strided mixing, a final
// compression) generalized so that the algorithm, grid and section
// parameters, and the rotation seed all come from the caller, matching the
// proof-of-scan engine's (algo, grid, sect, rot) invocation contract instead
// of a single fixed hash function.
package hashengine

import (
	"encoding/binary"

	"github.com/zeebo/blake3"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
)

// AlgoType selects the proof-of-scan algorithm variant.
type AlgoType int

const (
	Grid2d AlgoType = iota
	Grid2dV2
	Grid2dV3
	Grid2dV3_1
)

func (a AlgoType) String() string {
	switch a {
	case Grid2d:
		return "Grid2d"
	case Grid2dV2:
		return "Grid2dV2"
	case Grid2dV3:
		return "Grid2dV3"
	case Grid2dV3_1:
		return "Grid2dV3.1"
	default:
		return "unknown"
	}
}

// ParseAlgoType maps the CLI/config algo name to an AlgoType.
func ParseAlgoType(s string) (AlgoType, error) {
	switch s {
	case "grid2d":
		return Grid2d, nil
	case "grid2d_v2":
		return Grid2dV2, nil
	case "grid2d_v3":
		return Grid2dV3, nil
	case "grid2d_v3.1":
		return Grid2dV3_1, nil
	default:
		return 0, errs.New(errs.Config, "ParseAlgoType", errUnknownAlgo(s))
	}
}

type errUnknownAlgo string

func (e errUnknownAlgo) Error() string { return "unknown algo: " + string(e) }

// UsesPreHashRotation reports whether this variant rotates from pre_hash
// (true) rather than parent_hash (false). Only Grid2dV3_1 differs.
func (a AlgoType) UsesPreHashRotation() bool { return a == Grid2dV3_1 }

// P3dParams are the three scalar parameters the proof-of-scan engine takes
// alongside the rotation seed. Grid is always 8; section count is 66 for
// plain Grid2d and 12 for every v2/v3/v3.1 variant.
type P3dParams struct {
	Algo AlgoType
	Grid uint8
	Sect uint8
}

// NewP3dParams builds the parameter set for an algo name exactly as the
// upstream proof-of-scan engine defines it.
func NewP3dParams(algoName string) (P3dParams, error) {
	algo, err := ParseAlgoType(algoName)
	if err != nil {
		return P3dParams{}, err
	}
	sect := uint8(12)
	if algo == Grid2d {
		sect = 66
	}
	return P3dParams{Algo: algo, Grid: 8, Sect: sect}, nil
}

const (
	memorySize      = 8192
	mixingRounds    = 8
	memoryPasses    = 4
	mixConstant     = 0x517cc1b727220a95
	minObjSize      = 1
)

var strides = [4]int{1, 64, 256, 1024}

// Process runs the proof-of-scan algorithm over obj for the given
// parameters and rotation seed, returning a possibly-empty list of
// hex-encoded 32-byte candidate hashes. An empty result is not an error; it
// means "try again with a fresher snapshot".
func Process(obj []byte, p P3dParams, rot [4]byte) ([]string, error) {
	if len(obj) < minObjSize {
		return nil, errs.New(errs.Engine, "Process", errEmptyObj{})
	}

	scratch := initScratchpad(obj, p, rot)
	sequentialMix(scratch)
	stridedMix(scratch, int(p.Sect)%len(strides)+1)
	out := finalize(scratch)

	return []string{codec.BytesToHex(out)}, nil
}

type errEmptyObj struct{}

func (errEmptyObj) Error() string { return "empty candidate object" }

func initScratchpad(obj []byte, p P3dParams, rot [4]byte) []uint64 {
	scratch := make([]uint64, memorySize)

	h := blake3.New()
	h.Write(obj)
	h.Write([]byte{byte(p.Algo), p.Grid, p.Sect})
	h.Write(rot[:])
	seed := h.Sum(nil)

	var state [4]uint64
	for i := 0; i < 4; i++ {
		state[i] = binary.LittleEndian.Uint64(seed[i*8 : (i+1)*8])
	}

	for i := 0; i < memorySize; i++ {
		idx := i % 4
		state[idx] = mix(state[idx], state[(idx+1)%4], i)
		scratch[i] = state[idx]
	}
	return scratch
}

func sequentialMix(scratch []uint64) {
	for pass := 0; pass < memoryPasses; pass++ {
		if pass%2 == 0 {
			carry := scratch[memorySize-1]
			for i := 0; i < memorySize; i++ {
				prev := scratch[memorySize-1]
				if i > 0 {
					prev = scratch[i-1]
				}
				scratch[i] = mix(scratch[i], prev^carry, pass)
				carry = scratch[i]
			}
		} else {
			carry := scratch[0]
			for i := memorySize - 1; i >= 0; i-- {
				next := scratch[0]
				if i < memorySize-1 {
					next = scratch[i+1]
				}
				scratch[i] = mix(scratch[i], next^carry, pass)
				carry = scratch[i]
			}
		}
	}
}

func stridedMix(scratch []uint64, rounds int) {
	for round := 0; round < mixingRounds; round++ {
		stride := strides[round%len(strides)]
		for i := 0; i < memorySize; i++ {
			j := (i + stride) % memorySize
			k := (i + stride*2) % memorySize
			a, b, c := scratch[i], scratch[j], scratch[k]
			scratch[i] = mix(a, b^c, round+rounds)
		}
	}
}

func finalize(scratch []uint64) []byte {
	var folded [4]uint64
	for i := 0; i < memorySize; i++ {
		folded[i%4] ^= scratch[i]
	}
	var raw [32]byte
	for i := 0; i < 4; i++ {
		binary.LittleEndian.PutUint64(raw[i*8:(i+1)*8], folded[i])
	}
	h := blake3.New()
	h.Write(raw[:])
	return h.Sum(nil)
}

func mix(a, b uint64, round int) uint64 {
	rot := uint((round * 7) % 64)
	x := a + b
	y := a ^ rotateLeft(b, rot)
	z := x * mixConstant
	return z ^ rotateRight(y, rot/2)
}

func rotateLeft(x uint64, k uint) uint64 {
	k &= 63
	return (x << k) | (x >> (64 - k))
}

func rotateRight(x uint64, k uint) uint64 {
	k &= 63
	return (x >> k) | (x << (64 - k))
}
