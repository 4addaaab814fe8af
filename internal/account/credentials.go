package account

import (
	"crypto/rand"
	"math/big"
	"strings"
)

// Recovery credentials are three 4-character blocks of uppercase letters and
// digits joined by hyphens, e.g. AB12-CD34-EF56. Comparison is always
// case-insensitive. Uniqueness is enforced by the store, not the generator;
// the service retries generation when the store rejects a duplicate.

const (
	credentialAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	credentialBlocks   = 3
	credentialBlockLen = 4
)

// NewRecoveryCode returns a fresh recovery code from a cryptographically
// random source. Predictable codes would defeat the recovery channel.
func NewRecoveryCode() (string, error) {
	return newCredential()
}

// NewLicenseKey returns a fresh license key. Same format as a recovery code,
// independent value. License keys double as a legacy recovery proof.
func NewLicenseKey() (string, error) {
	return newCredential()
}

func newCredential() (string, error) {
	blocks := make([]string, credentialBlocks)
	buf := make([]byte, credentialBlockLen)
	max := big.NewInt(int64(len(credentialAlphabet)))
	for i := range blocks {
		for j := range buf {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			buf[j] = credentialAlphabet[n.Int64()]
		}
		blocks[i] = string(buf)
	}
	return strings.Join(blocks, "-"), nil
}

// NormalizeProof prepares a caller-supplied recovery proof for comparison:
// surrounding whitespace is dropped and the proof is uppercased.
func NormalizeProof(proof string) string {
	return strings.ToUpper(strings.TrimSpace(proof))
}

// proofMatches reports whether the normalized proof equals the account's
// recovery code or license key. Both are accepted; the license key fallback
// mirrors long-standing behavior and is kept deliberately.
func proofMatches(a *Account, proof string) bool {
	p := NormalizeProof(proof)
	if p == "" {
		return false
	}
	return p == NormalizeProof(a.RecoveryCode) || p == NormalizeProof(a.LicenseKey)
}
