package account

import "golang.org/x/crypto/bcrypt"

// BcryptCost is the fixed work factor. High enough that hashing dominates
// the wall-clock cost of the login path.
const BcryptCost = 12

// Hasher wraps bcrypt with a fixed cost. Each Hash call salts independently,
// so the same plaintext never produces the same token twice.
type Hasher struct {
	cost int
}

// NewHasher creates a Hasher with the standard cost.
func NewHasher() *Hasher {
	return &Hasher{cost: BcryptCost}
}

// Hash derives a salted token from plaintext.
func (h *Hasher) Hash(plaintext string) (string, error) {
	out, err := bcrypt.GenerateFromPassword([]byte(plaintext), h.cost)
	if err != nil {
		return "", err
	}
	return string(out), nil
}

// Verify reports whether plaintext matches the stored token. A malformed or
// non-matching token yields false, never an error; attacker-supplied garbage
// is treated the same as a wrong password.
func (h *Hasher) Verify(plaintext, token string) bool {
	return bcrypt.CompareHashAndPassword([]byte(token), []byte(plaintext)) == nil
}
