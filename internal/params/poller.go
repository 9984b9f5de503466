package params

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
	"github.com/p3d-network/p3d-pool-proxy/internal/util"
)

// Interval is the poll period.
const Interval = 1 * time.Second

// nodeClient is the seam ParamsPoller depends on — satisfied by
// *rpcnode.Client; named here to avoid an import cycle.
type nodeClient interface {
	GetMiningParams(ctx context.Context, poolID string) (json.RawMessage, error)
}

// Poller repeatedly fetches mining parameters for a configured pool id and
// writes the fused result into a Store.
type Poller struct {
	node   nodeClient
	store  *Store
	poolID string
}

// NewPoller builds a Poller for the given pool id.
func NewPoller(node nodeClient, store *Store, poolID string) *Poller {
	return &Poller{node: node, store: store, poolID: poolID}
}

// Run polls every Interval until ctx is cancelled. Poll errors are logged
// and do not stop the loop.
func (p *Poller) Run(ctx context.Context) {
	ticker := time.NewTicker(Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := p.pollOnce(ctx); err != nil {
				util.Warnf("params poll failed: %v", err)
			}
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) error {
	raw, err := p.node.GetMiningParams(ctx, p.poolID)
	if err != nil {
		return err
	}

	var fields []string
	if err := json.Unmarshal(raw, &fields); err != nil {
		return errs.New(errs.Protocol, "pollOnce", err)
	}
	if len(fields) < 5 {
		return errs.New(errs.Protocol, "pollOnce", fmt.Errorf("mining params response has %d fields, want 5", len(fields)))
	}

	preHash, err := codec.ParseHash256(fields[0])
	if err != nil {
		return errs.New(errs.Protocol, "pollOnce:pre_hash", err)
	}
	parentHash, err := codec.ParseHash256(fields[1])
	if err != nil {
		return errs.New(errs.Protocol, "pollOnce:parent_hash", err)
	}
	winDiff, err := codec.ParseU256(fields[2])
	if err != nil {
		return errs.New(errs.Protocol, "pollOnce:win_difficulty", err)
	}
	powDiff, err := codec.ParseU256(fields[3])
	if err != nil {
		return errs.New(errs.Protocol, "pollOnce:pow_difficulty", err)
	}
	// pub_key arrives as big-endian hex of a 256-bit integer; reverse it
	// into raw Curve25519 point bytes before it reaches sharecrypto.
	pubKey, err := codec.ReversePubKey(fields[4])
	if err != nil {
		return errs.New(errs.Protocol, "pollOnce:pub_key", err)
	}

	p.store.WriteParams(RawParams{
		PreHash:       preHash,
		ParentHash:    parentHash,
		WinDifficulty: winDiff,
		PowDifficulty: powDiff,
		PubKey:        [32]byte(pubKey),
	})
	return nil
}
