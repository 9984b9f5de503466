package difficulty

import (
	"testing"

	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/ledger"
)

type fakeLedger struct {
	shares []ledger.Share
}

func (f *fakeLedger) WriteShare(s ledger.Share) error {
	f.shares = append(f.shares, s)
	return nil
}

func (f *fakeLedger) LoadRecent(wallet, rig string, limit int) ([]ledger.Share, error) {
	// newest-first, matching the Redis-backed implementation's contract
	out := make([]ledger.Share, len(f.shares))
	for i, s := range f.shares {
		out[len(f.shares)-1-i] = s
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func TestRetargetColdStart(t *testing.T) {
	f := &fakeLedger{}
	for i := 0; i < 5; i++ {
		f.WriteShare(ledger.Share{
			MinerWallet: "w", RigName: "r",
			TimestampMs: int64(i) * TargetBlockTimeMs,
			Difficulty:  uint256.NewInt(1_000_000),
		})
	}

	c := New(f)
	d, err := c.Retarget("w", "r")
	if err != nil {
		t.Fatalf("Retarget returned error: %v", err)
	}
	if !d.Eq(uint256.NewInt(Initial)) {
		t.Errorf("cold-start retarget = %s, want %d", d, Initial)
	}
}

func TestRetargetSteadyState(t *testing.T) {
	f := &fakeLedger{}
	const diff = 1_000_000
	for i := 0; i < Window; i++ {
		f.WriteShare(ledger.Share{
			MinerWallet: "w", RigName: "r",
			TimestampMs: int64(i) * TargetBlockTimeMs,
			Difficulty:  uint256.NewInt(diff),
		})
	}

	c := New(f)
	d, err := c.Retarget("w", "r")
	if err != nil {
		t.Fatalf("Retarget returned error: %v", err)
	}

	// Uniform deltas at the goal interval: damp/clamp are identity at the
	// goal, so adjusted_ts ~= BLOCK_TIME and new ~= Window * diff.
	want := uint256.NewInt(uint64(Window * diff))
	if d.Cmp(want) != 0 {
		t.Errorf("steady-state retarget = %s, want ~%s", d, want)
	}
}

func TestRetargetBounds(t *testing.T) {
	f := &fakeLedger{}
	// Extremely fast shares -> tiny adjusted_ts -> would push difficulty
	// very high, but MaxDifficulty must still bound it.
	for i := 0; i < Window; i++ {
		f.WriteShare(ledger.Share{
			MinerWallet: "w", RigName: "r",
			TimestampMs: int64(i), // 1ms apart
			Difficulty:  new(uint256.Int).Div(MaxDifficulty, uint256.NewInt(2)),
		})
	}

	c := New(f)
	d, err := c.Retarget("w", "r")
	if err != nil {
		t.Fatalf("Retarget returned error: %v", err)
	}
	if d.Cmp(MinDifficulty) < 0 || d.Cmp(MaxDifficulty) > 0 {
		t.Errorf("retarget %s escaped [%s, %s]", d, MinDifficulty, MaxDifficulty)
	}
}

func TestDampClampIdentityAtGoal(t *testing.T) {
	goal := uint256.NewInt(TargetBlockTimeMs)
	if !damp(goal, goal, DampFactor).Eq(goal) {
		t.Error("damp(goal, goal, f) should equal goal")
	}
	if !clamp(goal, goal, ClampFactor).Eq(goal) {
		t.Error("clamp(goal, goal, f) should equal goal")
	}
}
