// Package seed derives a member's 32-byte mini-secret from a BIP-39
// mnemonic, for the CLI's `inspect` subcommand.
package seed

import (
	"crypto/sha512"
	"strings"

	"github.com/tyler-smith/go-bip39"
	"golang.org/x/crypto/pbkdf2"

	"github.com/p3d-network/p3d-pool-proxy/internal/errs"
)

const (
	pbkdf2Iterations = 2048
	miniSecretSize   = 32
)

// MiniSecretFromMnemonic reproduces substrate-bip39's mini_secret_from_entropy:
// PBKDF2-HMAC-SHA512 over the mnemonic's raw entropy bytes (not its word
// list), salted with "mnemonic"+password, truncated to the first 32 bytes.
// The CLI always calls this with an empty password.
func MiniSecretFromMnemonic(mnemonic, password string) ([32]byte, error) {
	var out [32]byte

	mnemonic = strings.TrimSpace(mnemonic)
	// raw=true strips the trailing checksum bits, leaving pure entropy.
	entropy, err := bip39.MnemonicToByteArray(mnemonic, true)
	if err != nil {
		return out, errs.New(errs.Config, "MiniSecretFromMnemonic", err)
	}

	salt := []byte("mnemonic" + password)
	derived := pbkdf2.Key(entropy, salt, pbkdf2Iterations, sha512.Size, sha512.New)
	copy(out[:], derived[:miniSecretSize])
	return out, nil
}
