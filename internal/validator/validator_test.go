package validator

import (
	"context"
	"testing"

	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
	"github.com/p3d-network/p3d-pool-proxy/internal/difficulty"
	"github.com/p3d-network/p3d-pool-proxy/internal/hashengine"
	"github.com/p3d-network/p3d-pool-proxy/internal/ledger"
	"github.com/p3d-network/p3d-pool-proxy/internal/params"
	"github.com/p3d-network/p3d-pool-proxy/internal/sharecrypto"
)

type fakeLedger struct {
	written []ledger.Share
}

func (f *fakeLedger) WriteShare(s ledger.Share) error {
	f.written = append(f.written, s)
	return nil
}

func (f *fakeLedger) LoadRecent(wallet, rig string, limit int) ([]ledger.Share, error) {
	return nil, nil
}

type fakeSubmitter struct {
	code int
	err  error
	got  int
}

func (f *fakeSubmitter) PushMiningObjectToPool(ctx context.Context, ciphertext []byte, memberID, sigHex string) (int, error) {
	f.got++
	return f.code, f.err
}

func newTestSnapshot() params.RawParams {
	var h codec.Hash256
	for i := range h {
		h[i] = byte(i)
	}
	return params.RawParams{
		PreHash:       h,
		ParentHash:    h,
		WinDifficulty: new(uint256.Int).SetAllOne(),
		PowDifficulty: uint256.NewInt(1),
		PubKey:        [32]byte{1, 2, 3},
	}
}

func newTestValidator(t *testing.T, sub submitter) (*Validator, *fakeLedger) {
	t.Helper()
	store := params.New()
	store.WriteParams(newTestSnapshot())

	p3d, err := hashengine.NewP3dParams("grid2d")
	if err != nil {
		t.Fatalf("NewP3dParams: %v", err)
	}

	var miniSecret [32]byte
	for i := range miniSecret {
		miniSecret[i] = byte(100 + i)
	}
	mk, err := sharecrypto.NewMemberKey(miniSecret)
	if err != nil {
		t.Fatalf("NewMemberKey: %v", err)
	}

	fl := &fakeLedger{}
	diffCtl := difficulty.New(fl)

	return New(store, p3d, mk, sub, fl, diffCtl, "pool-1", "member-1"), fl
}

func TestValidateAcceptedSharePersistsAndRetargets(t *testing.T) {
	sub := &fakeSubmitter{code: 0}
	v, fl := newTestValidator(t, sub)

	status, err := v.Validate(context.Background(), "0xaa", "some candidate object bytes", "wallet-1", "rig-1")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	// PowDifficulty is 1, which any non-zero work hash clears, so the
	// candidate should always be accepted against this fixture snapshot.
	if status != "accepted" {
		t.Errorf("status = %q, want accepted", status)
	}
	if sub.got != 1 {
		t.Errorf("node should have been called once, got %d", sub.got)
	}
	if len(fl.written) != 1 {
		t.Errorf("ledger should have one share written, got %d", len(fl.written))
	}
}

func TestValidateDedupSkipsRepeatedCandidate(t *testing.T) {
	sub := &fakeSubmitter{code: 0}
	v, _ := newTestValidator(t, sub)

	obj := "some candidate object bytes"
	if _, err := v.Validate(context.Background(), "0xaa", obj, "wallet-1", "rig-1"); err != nil {
		t.Fatalf("first Validate returned error: %v", err)
	}
	status, err := v.Validate(context.Background(), "0xaa", obj, "wallet-1", "rig-1")
	if err != nil {
		t.Fatalf("second Validate returned error: %v", err)
	}
	if status != "duplicate candidate" {
		t.Errorf("status = %q, want duplicate candidate", status)
	}
	if sub.got != 1 {
		t.Errorf("node should not be called again for a duplicate, got %d calls", sub.got)
	}
}

func TestValidateRejectedShareIsNotPersisted(t *testing.T) {
	sub := &fakeSubmitter{code: 1}
	v, fl := newTestValidator(t, sub)

	status, err := v.Validate(context.Background(), "0xaa", "some candidate object bytes", "wallet-1", "rig-1")
	if err != nil {
		t.Fatalf("Validate returned error: %v", err)
	}
	if status != "rejected" {
		t.Errorf("status = %q, want rejected", status)
	}
	if len(fl.written) != 0 {
		t.Errorf("ledger should not record a node-rejected share, got %d writes", len(fl.written))
	}
}
