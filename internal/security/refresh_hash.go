package security

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"github.com/google/uuid"
)

// refreshSecretBytes is the entropy of a refresh secret before encoding.
const refreshSecretBytes = 32

// ErrMalformedRefreshToken is returned when a presented refresh token is not "<credential id>.<secret>".
var ErrMalformedRefreshToken = errors.New("malformed refresh token")

// RefreshHasher derives the stored form of a refresh secret. Only the keyed hash is persisted;
// the plaintext secret leaves the process exactly once, in the login or refresh response.
type RefreshHasher struct {
	key []byte
}

// NewRefreshHasher returns a RefreshHasher keyed with the refresh signing secret.
func NewRefreshHasher(key []byte) (*RefreshHasher, error) {
	if len(key) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	k := make([]byte, len(key))
	copy(k, key)
	return &RefreshHasher{key: k}, nil
}

// Hash returns HMAC-SHA256(key, secret), hex-encoded.
func (h *RefreshHasher) Hash(secret string) string {
	mac := hmac.New(sha256.New, h.key)
	mac.Write([]byte(secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// Equal reports whether secret hashes to storedHash, in constant time.
func (h *RefreshHasher) Equal(secret, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(h.Hash(secret)), []byte(storedHash)) == 1
}

// GenerateRefreshSecret returns a fresh random secret, base64url-encoded without padding.
func GenerateRefreshSecret() (string, error) {
	b := make([]byte, refreshSecretBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// FormatRefreshToken joins the credential id and the plaintext secret into the token handed to clients.
// The id makes lookup a keyed fetch instead of a scan over stored hashes.
func FormatRefreshToken(credentialID, secret string) string {
	return credentialID + "." + secret
}

// ParseRefreshToken splits a presented refresh token into its credential id and secret.
func ParseRefreshToken(token string) (credentialID, secret string, err error) {
	id, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || len(id) != 36 || secret == "" {
		return "", "", ErrMalformedRefreshToken
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return "", "", ErrMalformedRefreshToken
	}
	raw, err := base64.RawURLEncoding.DecodeString(secret)
	if err != nil || len(raw) != refreshSecretBytes {
		return "", "", ErrMalformedRefreshToken
	}
	return parsed.String(), secret, nil
}
