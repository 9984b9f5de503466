// Package sharecrypto implements the two cryptographic operations the share
// pipeline needs: ECIES-over-Curve25519 encryption of a share payload to the
// pool's advertised public key, and Schnorrkel signing of the resulting
// ciphertext under a fixed domain-separation context.
package sharecrypto

import (
	"crypto/sha256"
	"math/rand/v2"

	"github.com/ChainSafe/go-schnorrkel"
	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
)

// SigningContext is the fixed Schnorrkel domain-separation tag used for
// every share signature.
const SigningContext = "Mining pool"

// MemberKey is a member's expanded Schnorrkel signing key, derived once from
// the configured mini-secret at startup.
type MemberKey struct {
	secret *schnorrkel.SecretKey
	public *schnorrkel.PublicKey
}

// NewMemberKey expands a 32-byte mini-secret using standard Ed25519
// expansion, matching the Rust proxy's key derivation exactly.
func NewMemberKey(miniSecret [32]byte) (*MemberKey, error) {
	msk, err := schnorrkel.NewMiniSecretKeyFromRaw(miniSecret)
	if err != nil {
		return nil, errs.New(errs.Crypto, "NewMemberKey", err)
	}
	sk := msk.ExpandEd25519()
	pub, err := sk.Public()
	if err != nil {
		return nil, errs.New(errs.Crypto, "NewMemberKey", err)
	}
	return &MemberKey{secret: sk, public: pub}, nil
}

// Public returns the 32-byte encoded public key counterpart.
func (k *MemberKey) Public() [32]byte {
	return k.public.Encode()
}

// Sign signs msg (the ECIES ciphertext) under the fixed "Mining pool"
// context and returns the 64-byte encoded signature.
func (k *MemberKey) Sign(msg []byte) ([64]byte, error) {
	t := schnorrkel.NewSigningContext([]byte(SigningContext), msg)
	sig, err := k.secret.Sign(t)
	if err != nil {
		return [64]byte{}, errs.New(errs.Crypto, "Sign", err)
	}
	return sig.Encode(), nil
}

// Encrypt performs ECIES over Curve25519: an ephemeral keypair is derived
// deterministically from seed (the SCALE encoding of the candidate's
// obj_hash), a shared secret is computed via X25519 against the
// recipient's public key, HKDF-SHA256 derives a symmetric key from it, and
// the plaintext is sealed with ChaCha20-Poly1305. The output is
// ephemeral_pubkey(32) || nonce(12) || ciphertext.
//
// Seeding the ephemeral key from obj_hash rather than from a true random
// source is deliberate: retries of the same candidate produce byte-identical
// ciphertext, so the upstream node can reject a retried submission
// idempotently without the proxy needing its own retry-dedup state.
func Encrypt(recipientPub [32]byte, plaintext, seed []byte) ([]byte, error) {
	var seed32 [32]byte
	copy(seed32[:], seed)
	rng := rand.New(rand.NewChaCha8(seed32))

	var ephPriv [32]byte
	if _, err := rng.Read(ephPriv[:]); err != nil {
		return nil, errs.New(errs.Crypto, "Encrypt", err)
	}

	ephPub, err := curve25519.X25519(ephPriv[:], curve25519.Basepoint)
	if err != nil {
		return nil, errs.New(errs.Crypto, "Encrypt", err)
	}

	shared, err := curve25519.X25519(ephPriv[:], recipientPub[:])
	if err != nil {
		return nil, errs.New(errs.Crypto, "Encrypt", err)
	}

	kdf := hkdf.New(sha256.New, shared, ephPub, []byte("p3d-pool-proxy ecies"))
	key := make([]byte, chacha20poly1305.KeySize)
	if _, err := kdf.Read(key); err != nil {
		return nil, errs.New(errs.Crypto, "Encrypt", err)
	}

	aead, err := chacha20poly1305.New(key)
	if err != nil {
		return nil, errs.New(errs.Crypto, "Encrypt", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := rng.Read(nonce); err != nil {
		return nil, errs.New(errs.Crypto, "Encrypt", err)
	}

	ciphertext := aead.Seal(nil, nonce, plaintext, nil)

	out := make([]byte, 0, len(ephPub)+len(nonce)+len(ciphertext))
	out = append(out, ephPub...)
	out = append(out, nonce...)
	out = append(out, ciphertext...)
	return out, nil
}
