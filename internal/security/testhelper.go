package security

import "time"

// Test secrets for unit tests only. Do not use in production.
const (
	testAccessSecret  = "test-access-secret-0123456789abcdef0123456789"
	testRefreshSecret = "test-refresh-secret-0123456789abcdef012345678"
)

// NewTestTokenCodec returns a TokenCodec using the embedded test secret and a 15 minute TTL.
// For unit tests only.
func NewTestTokenCodec() (*TokenCodec, error) {
	return NewTokenCodec([]byte(testAccessSecret), "test-issuer", "test-audience", 15*time.Minute)
}

// NewTestRefreshHasher returns a RefreshHasher keyed with the embedded test secret.
// For unit tests only.
func NewTestRefreshHasher() *RefreshHasher {
	h, err := NewRefreshHasher([]byte(testRefreshSecret))
	if err != nil {
		panic(err)
	}
	return h
}
