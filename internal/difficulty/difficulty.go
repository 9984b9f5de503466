// Package difficulty implements the sliding-window retargeting controller
// that adjusts a miner's dynamic share difficulty after every accepted
// share.
package difficulty

import (
	"sort"

	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/ledger"
)

const (
	// Window is the number of most recent accepted shares considered.
	Window = 60
	// MinSamples is the minimum number of samples required before the
	// controller trusts the window; below this it resets to Initial.
	MinSamples = 6
	// TargetBlockTimeMs is both the per-share target interval and the
	// value substituted for any missing inter-arrival delta in a short
	// window.
	TargetBlockTimeMs = 60_000
	// Initial is the cold-start dynamic difficulty.
	Initial = 2_000_000
	// DampFactor smooths the retarget towards the goal interval.
	DampFactor = 3
	// ClampFactor bounds how far a single retarget can move.
	ClampFactor = 2
)

// MinDifficulty is the floor the controller never retargets below.
var MinDifficulty = uint256.NewInt(Initial)

// MaxDifficulty is the ceiling the controller never retargets above.
var MaxDifficulty = new(uint256.Int).SetAllOne()

// Controller computes a new dynamic difficulty from a share-history window.
type Controller struct {
	shares ledger.Ledger
}

// New builds a Controller backed by the given share ledger.
func New(shares ledger.Ledger) *Controller {
	return &Controller{shares: shares}
}

// Retarget loads up to Window recent shares for (wallet, rig) and computes
// the next dynamic difficulty.
func (c *Controller) Retarget(wallet, rig string) (*uint256.Int, error) {
	recent, err := c.shares.LoadRecent(wallet, rig, Window)
	if err != nil {
		return nil, err
	}

	// LoadRecent returns newest-first; the controller reasons in
	// chronological (ascending) order.
	sort.Slice(recent, func(i, j int) bool { return recent[i].TimestampMs < recent[j].TimestampMs })

	if len(recent) < MinSamples {
		return uint256.NewInt(Initial), nil
	}

	n := len(recent)

	sumDelta := new(uint256.Int)
	for i := 1; i < n; i++ {
		delta := recent[i].TimestampMs - recent[i-1].TimestampMs
		if delta < 0 {
			delta = 0
		}
		sumDelta.Add(sumDelta, uint256.NewInt(uint64(delta)))
	}
	missingPairs := (Window - 1) - (n - 1)
	if missingPairs > 0 {
		sumDelta.Add(sumDelta, new(uint256.Int).Mul(uint256.NewInt(uint64(missingPairs)), uint256.NewInt(TargetBlockTimeMs)))
	}
	if sumDelta.IsZero() {
		sumDelta = uint256.NewInt(1)
	}

	sumDifficulty := new(uint256.Int)
	for _, s := range recent {
		if s.Difficulty != nil {
			sumDifficulty.Add(sumDifficulty, s.Difficulty)
		}
	}
	if sumDifficulty.Cmp(MinDifficulty) < 0 {
		sumDifficulty.Set(MinDifficulty)
	}

	blockTime := uint256.NewInt(TargetBlockTimeMs)
	// Damp and clamp the mean inter-share interval against one block time.
	meanDelta := new(uint256.Int).Div(sumDelta, uint256.NewInt(uint64(Window-1)))
	adjustedTs := clamp(damp(meanDelta, blockTime, DampFactor), blockTime, ClampFactor)

	newDiff := new(uint256.Int).Mul(sumDifficulty, uint256.NewInt(TargetBlockTimeMs))
	newDiff.Div(newDiff, adjustedTs)

	if newDiff.Cmp(MinDifficulty) < 0 {
		newDiff.Set(MinDifficulty)
	}
	if newDiff.Cmp(MaxDifficulty) > 0 {
		newDiff.Set(MaxDifficulty)
	}
	return newDiff, nil
}

// damp computes (actual + (factor-1)*goal) / factor.
func damp(actual, goal *uint256.Int, factor uint64) *uint256.Int {
	out := new(uint256.Int).Mul(uint256.NewInt(factor-1), goal)
	out.Add(out, actual)
	out.Div(out, uint256.NewInt(factor))
	return out
}

// clamp computes max(goal/factor, min(actual, goal*factor)).
func clamp(actual, goal *uint256.Int, factor uint64) *uint256.Int {
	upper := new(uint256.Int).Mul(goal, uint256.NewInt(factor))
	lower := new(uint256.Int).Div(goal, uint256.NewInt(factor))

	out := new(uint256.Int).Set(actual)
	if out.Cmp(upper) > 0 {
		out.Set(upper)
	}
	if out.Cmp(lower) < 0 {
		out.Set(lower)
	}
	return out
}
