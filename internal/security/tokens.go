package security

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// MinSecretLength is the minimum accepted length, in bytes, of a signing secret.
const MinSecretLength = 32

var (
	// ErrMalformedToken is returned when a token cannot be parsed or lacks a required claim.
	ErrMalformedToken = errors.New("malformed token")
	// ErrInvalidSignature is returned when a token was not signed by this service
	// (bad signature, unexpected algorithm, foreign issuer or audience).
	ErrInvalidSignature = errors.New("invalid token signature")
	// ErrTokenExpired is returned when the token's expiry is not after the current time.
	ErrTokenExpired = errors.New("token expired")
	// ErrWeakSecret is returned when a signing secret is shorter than MinSecretLength.
	ErrWeakSecret = errors.New("signing secret is too short")
	// ErrIncompleteClaims is returned by Encode when a required claim is empty.
	ErrIncompleteClaims = errors.New("claims: subject, email, role and org_id are required")
)

// Claims is the decoded content of an access token. Every field is required.
type Claims struct {
	Subject   string
	Email     string
	Role      string
	OrgID     string
	ExpiresAt time.Time
}

// accessClaims is the wire shape of Claims.
type accessClaims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Role  string `json:"role"`
	OrgID string `json:"org_id"`
}

// TokenCodec encodes and decodes HS256 access tokens with a process-wide secret.
type TokenCodec struct {
	secret   []byte
	issuer   string
	audience string
	ttl      time.Duration
	now      func() time.Time
}

// NewTokenCodec returns a TokenCodec that signs with secret and stamps issuer and audience on every token.
// ttl is the default access token lifetime used by Encode.
func NewTokenCodec(secret []byte, issuer, audience string, ttl time.Duration) (*TokenCodec, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if ttl <= 0 {
		return nil, errors.New("access token ttl must be positive")
	}
	s := make([]byte, len(secret))
	copy(s, secret)
	return &TokenCodec{
		secret:   s,
		issuer:   issuer,
		audience: audience,
		ttl:      ttl,
		now:      time.Now,
	}, nil
}

// WithClock returns a copy of the codec that reads the current time from now.
func (c *TokenCodec) WithClock(now func() time.Time) *TokenCodec {
	cp := *c
	cp.now = now
	return &cp
}

// TTL returns the default access token lifetime.
func (c *TokenCodec) TTL() time.Duration {
	return c.ttl
}

// Encode signs claims with the default TTL. claims.ExpiresAt is ignored and replaced.
func (c *TokenCodec) Encode(claims Claims) (string, time.Time, error) {
	return c.EncodeWithTTL(claims, c.ttl)
}

// EncodeWithTTL signs claims so that the token expires ttl from now (second precision).
func (c *TokenCodec) EncodeWithTTL(claims Claims, ttl time.Duration) (string, time.Time, error) {
	if claims.Subject == "" || claims.Email == "" || claims.Role == "" || claims.OrgID == "" {
		return "", time.Time{}, ErrIncompleteClaims
	}
	if ttl <= 0 {
		return "", time.Time{}, errors.New("token ttl must be positive")
	}
	jti, err := generateJTI()
	if err != nil {
		return "", time.Time{}, err
	}
	now := c.now().UTC().Truncate(time.Second)
	expiresAt := now.Add(ttl).Truncate(time.Second)
	wire := accessClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        jti,
			Subject:   claims.Subject,
			Issuer:    c.issuer,
			Audience:  jwt.ClaimStrings{c.audience},
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		Email: claims.Email,
		Role:  claims.Role,
		OrgID: claims.OrgID,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, wire).SignedString(c.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// Decode verifies the signature, issuer, audience and expiry of token and returns its claims.
// Errors are one of ErrMalformedToken, ErrInvalidSignature or ErrTokenExpired.
func (c *TokenCodec) Decode(token string) (*Claims, error) {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(c.issuer),
		jwt.WithAudience(c.audience),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	parsed, err := parser.ParseWithClaims(token, &accessClaims{}, func(*jwt.Token) (interface{}, error) {
		return c.secret, nil
	})
	if err != nil {
		return nil, classifyParseError(err)
	}
	wire, ok := parsed.Claims.(*accessClaims)
	if !ok || !parsed.Valid {
		return nil, ErrMalformedToken
	}
	if wire.Subject == "" || wire.Email == "" || wire.Role == "" || wire.OrgID == "" || wire.ExpiresAt == nil {
		return nil, ErrMalformedToken
	}
	return &Claims{
		Subject:   wire.Subject,
		Email:     wire.Email,
		Role:      wire.Role,
		OrgID:     wire.OrgID,
		ExpiresAt: wire.ExpiresAt.Time.UTC(),
	}, nil
}

// classifyParseError maps jwt parser errors onto the codec's three failure kinds.
// The parser verifies the signature before claims, so a forged expired token reports ErrInvalidSignature.
func classifyParseError(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return ErrMalformedToken
	case errors.Is(err, jwt.ErrTokenSignatureInvalid),
		errors.Is(err, jwt.ErrTokenUnverifiable),
		errors.Is(err, jwt.ErrTokenInvalidIssuer),
		errors.Is(err, jwt.ErrTokenInvalidAudience):
		return ErrInvalidSignature
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrTokenExpired
	default:
		return ErrMalformedToken
	}
}

func generateJTI() (string, error) {
	b := make([]byte, 16)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
