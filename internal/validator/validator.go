// Package validator implements the share-validation loop that sits between
// a miner's submission and the node's JSON-RPC endpoint: run the
// proof-of-scan engine, dedup, evaluate difficulty thresholds, and for a
// qualifying candidate encrypt, sign and submit it.
package validator

import (
	"context"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
	"github.com/p3d-network/p3d-pool-proxy/internal/difficulty"
	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
	"github.com/p3d-network/p3d-pool-proxy/internal/hashengine"
	"github.com/p3d-network/p3d-pool-proxy/internal/ledger"
	"github.com/p3d-network/p3d-pool-proxy/internal/params"
	"github.com/p3d-network/p3d-pool-proxy/internal/sharecrypto"
	"github.com/p3d-network/p3d-pool-proxy/internal/util"
)

// snapshotRetryInterval is how long the validator waits for an absent
// MiningParams snapshot before retrying.
const snapshotRetryInterval = 10 * time.Millisecond

// Payload is the share body handed to sharecrypto.Encrypt, serialised as
// JSON with a fixed field order.
type Payload struct {
	PoolID     string `json:"pool_id"`
	MemberID   string `json:"member_id"`
	PreHash    string `json:"pre_hash"`
	ParentHash string `json:"parent_hash"`
	Algo       string `json:"algo"`
	Dfclty     string `json:"dfclty"`
	Hash       string `json:"hash"`
	ObjID      string `json:"obj_id"`
	Obj        string `json:"obj"`
}

// submitter is the node-facing seam, satisfied by *rpcnode.Client.
type submitter interface {
	PushMiningObjectToPool(ctx context.Context, ciphertext []byte, memberID, sigHex string) (int, error)
}

// Validator is the per-proxy ShareValidator instance. One Validator serves
// all miners; dedup state is scoped per pre_hash epoch internally.
type Validator struct {
	store      *params.Store
	p3dParams  hashengine.P3dParams
	memberKey  *sharecrypto.MemberKey
	node       submitter
	shares     ledger.Ledger
	difficulty *difficulty.Controller
	poolID     string
	memberID   string

	mu         sync.Mutex
	dedupEpoch codec.Hash256
	dedupSeen  map[codec.Hash256]struct{}
}

// New builds a Validator. p3dParams fixes the proof-of-scan algorithm
// variant this proxy runs.
func New(store *params.Store, p3dParams hashengine.P3dParams, memberKey *sharecrypto.MemberKey, node submitter, shares ledger.Ledger, diffCtl *difficulty.Controller, poolID, memberID string) *Validator {
	return &Validator{
		store:      store,
		p3dParams:  p3dParams,
		memberKey:  memberKey,
		node:       node,
		shares:     shares,
		difficulty: diffCtl,
		poolID:     poolID,
		memberID:   memberID,
		dedupSeen:  make(map[codec.Hash256]struct{}),
	}
}

// Validate runs one full submission through the pipeline and returns a
// human-readable status, as RpcFacade.push_to_pool exposes to miners.
func (v *Validator) Validate(ctx context.Context, candidateHashHex, objBlob, wallet, rigName string) (string, error) {
	for {
		snap, ok := v.awaitSnapshot(ctx)
		if !ok {
			return "", errs.New(errs.Protocol, "Validate", fmt.Errorf("no mining params available"))
		}

		rotSource := snap.ParentHash
		if v.p3dParams.Algo.UsesPreHashRotation() {
			rotSource = snap.PreHash
		}
		var rot [4]byte
		copy(rot[:], rotSource[:4])

		results, err := hashengine.Process([]byte(objBlob), v.p3dParams, rot)
		if err != nil || len(results) == 0 {
			select {
			case <-ctx.Done():
				return "", errs.New(errs.Engine, "Validate", ctx.Err())
			case <-time.After(snapshotRetryInterval):
			}
			continue
		}

		objHash, err := codec.ParseHash256(results[0])
		if err != nil {
			return "", errs.New(errs.Engine, "Validate", err)
		}

		if v.checkAndInsertDedup(snap.PreHash, objHash) {
			return "duplicate candidate", nil
		}

		poscanHash := hashengine.PoscanHash(snap.PreHash, objHash)

		// pow_difficulty and win_difficulty are both candidate thresholds,
		// but only pow_difficulty is ever evaluated here: a candidate
		// strong enough to win the block still clears the pool threshold
		// first, so one comparison covers both outcomes for submission
		// purposes.
		threshold := snap.PowDifficulty
		w := hashengine.WorkHash(threshold, snap.PreHash, poscanHash)
		d := hashengine.HashDifficulty(w)

		if d.Cmp(threshold) < 0 {
			return "below threshold", nil
		}

		return v.submit(ctx, candidateHashHex, objBlob, objHash, poscanHash, d, snap, wallet, rigName)
	}
}

func (v *Validator) awaitSnapshot(ctx context.Context) (params.Snapshot, bool) {
	for {
		if snap, ok := v.store.ReadSnapshot(); ok {
			return snap, true
		}
		select {
		case <-ctx.Done():
			return params.Snapshot{}, false
		case <-time.After(snapshotRetryInterval):
		}
	}
}

func (v *Validator) checkAndInsertDedup(preHash, objHash codec.Hash256) (duplicate bool) {
	v.mu.Lock()
	defer v.mu.Unlock()

	if preHash != v.dedupEpoch {
		v.dedupEpoch = preHash
		v.dedupSeen = make(map[codec.Hash256]struct{})
	}
	if _, seen := v.dedupSeen[objHash]; seen {
		return true
	}
	v.dedupSeen[objHash] = struct{}{}
	return false
}

func (v *Validator) submit(ctx context.Context, candidateHashHex, objBlob string, objHash, poscanHash codec.Hash256, d *uint256.Int, snap params.Snapshot, wallet, rigName string) (string, error) {
	payload := Payload{
		PoolID:     v.poolID,
		MemberID:   v.memberID,
		PreHash:    codec.BytesToHex(snap.PreHash[:]),
		ParentHash: codec.BytesToHex(snap.ParentHash[:]),
		Algo:       v.p3dParams.Algo.String(),
		Dfclty:     d.Hex(),
		Hash:       codec.BytesToHex(poscanHash[:]),
		ObjID:      candidateHashHex,
		Obj:        objBlob,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return "", errs.New(errs.Protocol, "submit", err)
	}

	seed := codec.EncodeHashes(objHash)
	ciphertext, err := sharecrypto.Encrypt(snap.PubKey, body, seed)
	if err != nil {
		return "", err
	}

	sig, err := v.memberKey.Sign(ciphertext)
	if err != nil {
		return "", err
	}

	code, err := v.node.PushMiningObjectToPool(ctx, ciphertext, v.memberID, hex.EncodeToString(sig[:]))
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "rejected", nil
	}

	share := ledger.Share{
		MinerWallet: wallet,
		RigName:     rigName,
		TimestampMs: time.Now().UnixMilli(),
		Difficulty:  d,
	}
	if err := v.shares.WriteShare(share); err != nil {
		util.Warnf("ledger write failed for %s/%s: %v", wallet, rigName, err)
	}

	if newDiff, err := v.difficulty.Retarget(wallet, rigName); err != nil {
		util.Warnf("retarget failed for %s/%s: %v", wallet, rigName, err)
	} else {
		v.store.WriteDynamic(newDiff)
	}

	return "accepted", nil
}
