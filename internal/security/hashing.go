package security

import (
	"golang.org/x/crypto/bcrypt"
)

// Hasher hashes and verifies passwords using bcrypt. Callers must not log or
// persist plaintext passwords.
type Hasher struct {
	Cost int

	// decoy is a hash of a random value, compared against when the account does not exist
	// so unknown and known emails cost the same bcrypt work.
	decoy []byte
}

// NewHasher returns a Hasher with the given bcrypt cost, clamped to bcrypt's valid range.
func NewHasher(cost int) *Hasher {
	if cost <= 0 {
		cost = bcrypt.DefaultCost
	}
	if cost < bcrypt.MinCost {
		cost = bcrypt.MinCost
	}
	if cost > bcrypt.MaxCost {
		cost = bcrypt.MaxCost
	}
	h := &Hasher{Cost: cost}
	if secret, err := GenerateRefreshSecret(); err == nil {
		h.decoy, _ = bcrypt.GenerateFromPassword([]byte(secret), cost)
	}
	return h
}

// Hash produces a bcrypt hash of password suitable for storage.
func (h *Hasher) Hash(password []byte) (string, error) {
	b, err := bcrypt.GenerateFromPassword(password, h.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Compare verifies password against the stored hash. Returns nil on match;
// bcrypt.ErrMismatchedHashAndPassword or a parse error otherwise.
func (h *Hasher) Compare(hash string, password []byte) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), password)
}

// CompareDecoy burns the same work as Compare against a hash nobody knows the password for.
func (h *Hasher) CompareDecoy(password []byte) {
	if len(h.decoy) == 0 {
		return
	}
	_ = bcrypt.CompareHashAndPassword(h.decoy, password)
}
