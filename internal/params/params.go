// Package params holds the latest mining parameters fetched from the node
// and the locally-computed dynamic difficulty, fusing them into a single
// effective share threshold on every params write — the cyclic shared-mutable
// state both ParamsPoller and DifficultyController write into and
// ShareValidator reads from.
package params

import (
	"sync"

	"github.com/holiman/uint256"

	"github.com/p3d-network/p3d-pool-proxy/internal/codec"
)

// Snapshot is an immutable view of the current mining parameters. Readers
// either get a fully populated Snapshot or ok=false; there is no partially
// initialized state.
type Snapshot struct {
	PreHash        codec.Hash256
	ParentHash     codec.Hash256
	WinDifficulty  *uint256.Int
	PowDifficulty  *uint256.Int // post-fusion effective threshold
	RawPowDifficulty *uint256.Int // pre-fusion value as reported by the node
	PubKey         [32]byte
}

// Store is the thread-safe slot holding the latest Snapshot. The critical
// section around the mutex never does more than clone a pointer-sized
// struct, so it is never held across I/O.
type Store struct {
	mu      sync.RWMutex
	current *Snapshot
	dynamic *uint256.Int
}

// New returns an empty Store. Until the first WriteParams, ReadSnapshot
// reports ok=false.
func New() *Store {
	return &Store{}
}

// ReadSnapshot returns the current snapshot, or ok=false if none has been
// written yet.
func (s *Store) ReadSnapshot() (Snapshot, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.current == nil {
		return Snapshot{}, false
	}
	return s.current.clone(), true
}

// clone returns a copy of the snapshot whose integers share no storage
// with the receiver.
func (snap *Snapshot) clone() Snapshot {
	out := *snap
	out.WinDifficulty = new(uint256.Int).Set(snap.WinDifficulty)
	out.PowDifficulty = new(uint256.Int).Set(snap.PowDifficulty)
	out.RawPowDifficulty = new(uint256.Int).Set(snap.RawPowDifficulty)
	return out
}

// ReadDynamic returns the current dynamic difficulty, or nil if
// DifficultyController hasn't written one yet.
func (s *Store) ReadDynamic() *uint256.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.dynamic == nil {
		return nil
	}
	return new(uint256.Int).Set(s.dynamic)
}

// WriteDynamic records a new dynamic difficulty, as computed by
// DifficultyController after an accepted share.
func (s *Store) WriteDynamic(d *uint256.Int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dynamic = new(uint256.Int).Set(d)
}

// RawParams is the unfused tuple as parsed from the node's response.
type RawParams struct {
	PreHash       codec.Hash256
	ParentHash    codec.Hash256
	WinDifficulty *uint256.Int
	PowDifficulty *uint256.Int
	PubKey        [32]byte
}

// WriteParams applies the fusion rule — effective = min(max(pow, dynamic),
// win) — using whatever dynamic difficulty is currently held, and replaces
// the stored snapshot.
func (s *Store) WriteParams(p RawParams) Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()

	effective := new(uint256.Int).Set(p.PowDifficulty)
	if s.dynamic != nil && s.dynamic.Cmp(effective) > 0 {
		effective.Set(s.dynamic)
	}
	if effective.Cmp(p.WinDifficulty) > 0 {
		effective.Set(p.WinDifficulty)
	}

	snap := &Snapshot{
		PreHash:          p.PreHash,
		ParentHash:       p.ParentHash,
		WinDifficulty:    new(uint256.Int).Set(p.WinDifficulty),
		PowDifficulty:    effective,
		RawPowDifficulty: new(uint256.Int).Set(p.PowDifficulty),
		PubKey:           p.PubKey,
	}
	s.current = snap
	return snap.clone()
}
