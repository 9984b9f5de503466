package ledger

import (
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/holiman/uint256"
)

func setupTestLedger(t *testing.T) (*RedisLedger, *miniredis.Miniredis) {
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}

	l, err := NewRedisLedger(mr.Addr(), "", 0)
	if err != nil {
		mr.Close()
		t.Fatalf("NewRedisLedger returned error: %v", err)
	}
	return l, mr
}

func TestWriteAndLoadRecent(t *testing.T) {
	l, mr := setupTestLedger(t)
	defer mr.Close()
	defer l.Close()

	base := int64(1_700_000_000_000)
	for i := 0; i < 5; i++ {
		s := Share{
			MinerWallet: "wallet-1",
			RigName:     "rig-a",
			TimestampMs: base + int64(i)*60_000,
			Difficulty:  uint256.NewInt(uint64(1_000_000 + i)),
		}
		if err := l.WriteShare(s); err != nil {
			t.Fatalf("WriteShare returned error: %v", err)
		}
	}

	shares, err := l.LoadRecent("wallet-1", "rig-a", 60)
	if err != nil {
		t.Fatalf("LoadRecent returned error: %v", err)
	}
	if len(shares) != 5 {
		t.Fatalf("LoadRecent returned %d shares, want 5", len(shares))
	}
	for i := 0; i < len(shares)-1; i++ {
		if shares[i].TimestampMs < shares[i+1].TimestampMs {
			t.Error("LoadRecent should return shares ordered by timestamp descending")
		}
	}
}

func TestLoadRecentScopedPerWalletRig(t *testing.T) {
	l, mr := setupTestLedger(t)
	defer mr.Close()
	defer l.Close()

	l.WriteShare(Share{MinerWallet: "w1", RigName: "r1", TimestampMs: 1, Difficulty: uint256.NewInt(1)})
	l.WriteShare(Share{MinerWallet: "w2", RigName: "r1", TimestampMs: 2, Difficulty: uint256.NewInt(1)})

	shares, err := l.LoadRecent("w1", "r1", 60)
	if err != nil {
		t.Fatalf("LoadRecent returned error: %v", err)
	}
	if len(shares) != 1 {
		t.Errorf("LoadRecent leaked across wallets: got %d shares, want 1", len(shares))
	}
}

func TestBlacklistWhitelistRoundTrip(t *testing.T) {
	l, mr := setupTestLedger(t)
	defer mr.Close()
	defer l.Close()

	if err := l.AddToBlacklist("bad-wallet"); err != nil {
		t.Fatalf("AddToBlacklist returned error: %v", err)
	}
	bl, err := l.GetBlacklist()
	if err != nil {
		t.Fatalf("GetBlacklist returned error: %v", err)
	}
	if len(bl) != 1 || bl[0] != "bad-wallet" {
		t.Errorf("GetBlacklist = %v, want [bad-wallet]", bl)
	}
}
