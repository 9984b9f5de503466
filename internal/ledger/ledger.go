// Package ledger persists accepted shares and serves the recent-share
// window the difficulty controller retargets from.
package ledger

import (
	"github.com/holiman/uint256"
)

// Share is the ledger record for one accepted candidate. Accounted/Paid
// are owned by external accounting; the core only ever initializes them to
// false on write.
type Share struct {
	MinerWallet string       `json:"miner_wallet"`
	RigName     string       `json:"rig_name"`
	TimestampMs int64        `json:"timestamp"`
	Difficulty  *uint256.Int `json:"difficulty"`
	Accounted   bool         `json:"accounted"`
	Paid        bool         `json:"paid"`
}

// Ledger is the storage seam the core depends on. Implementations are
// expected to be append-mostly and never mutate a Share once written
// (external accounting aside).
type Ledger interface {
	// WriteShare appends a new accepted share.
	WriteShare(s Share) error
	// LoadRecent returns up to limit shares for (wallet, rig), ordered by
	// timestamp descending.
	LoadRecent(wallet, rig string, limit int) ([]Share, error)
}
