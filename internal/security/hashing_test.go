package security

import (
	"errors"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func TestHasher_HashAndCompare(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	hash, err := h.Hash([]byte("Password123!dev"))
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if hash == "" || hash == "Password123!dev" {
		t.Fatalf("Hash returned %q", hash)
	}
	if err := h.Compare(hash, []byte("Password123!dev")); err != nil {
		t.Fatalf("Compare: %v", err)
	}
	if err := h.Compare(hash, []byte("password123!dev")); !errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
		t.Fatalf("Compare wrong password: want mismatch, got %v", err)
	}
}

func TestHasher_CompareGarbageHash(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if err := h.Compare("not-a-bcrypt-hash", []byte("x")); err == nil {
		t.Fatal("Compare against a malformed hash should fail")
	}
}

func TestHasher_CostClamped(t *testing.T) {
	for _, tc := range []struct {
		in, want int
	}{
		{0, bcrypt.DefaultCost},
		{-3, bcrypt.DefaultCost},
		{2, bcrypt.MinCost},
		{6, 6},
	} {
		if got := NewHasher(tc.in).Cost; got != tc.want {
			t.Errorf("NewHasher(%d).Cost = %d, want %d", tc.in, got, tc.want)
		}
	}
}

func TestHasher_CompareDecoy(t *testing.T) {
	h := NewHasher(bcrypt.MinCost)
	if len(h.decoy) == 0 {
		t.Fatal("decoy hash should be generated")
	}
	h.CompareDecoy([]byte("anything"))

	var zero Hasher
	zero.CompareDecoy([]byte("anything"))
}
