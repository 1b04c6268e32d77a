// Package cloudvm_exchange issues and verifies the bearer tokens handed to API clients, and
// hashes the passwords they log in with.
//
// Tokens are HS256 JSON Web Tokens carrying the user id together with issued-at and expiry
// times. They are self-contained: verification needs only the signing key, so no session
// state is kept on the server.
//
// Usage Example:
//
//	issuer, _ := cloudvm_exchange.NewTokenIssuer(secret, 7*24*time.Hour)
//	token, _ := issuer.Issue(userID)
//
//	// Later, in a middleware
//	payload, err := issuer.Verify(token)
//	if err != nil {
//	    // Invalid signature, malformed token or expired
//	}
//	userID := payload.UserId
package cloudvm_exchange

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// DefaultTokenTTL is how long an issued token stays valid.
const DefaultTokenTTL = 7 * 24 * time.Hour

const defaultSecret = "SOME_RANDOM_KEY_SOME_RANDOM_KEY_"

var (
	ErrEmptySecret  = errors.New("signing key must not be empty")
	ErrInvalidToken = errors.New("invalid or expired token")
)

// AuthPayload is the claim set inside every token.
//
// Fields:
//   - UserId: The id of the authenticated user
//   - RegisteredClaims: Issued-at ("iat") and expiry ("exp")
type AuthPayload struct {
	UserId string `json:"userId"`
	jwt.RegisteredClaims
}

// TokenIssuer signs and verifies tokens with one shared secret.
type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if secret == "" {
		return nil, ErrEmptySecret
	}
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// GetSecret reads the signing key from the SIGNING_KEY environment variable. Without it a
// fixed development key is returned and a warning is logged.
func GetSecret() string {
	key, exists := os.LookupEnv("SIGNING_KEY")
	if exists && key != "" {
		return key
	}
	slog.Warn("no signing key found, using the development default; do not use in production")
	return defaultSecret
}

// TTL returns the lifetime of issued tokens.
func (ti *TokenIssuer) TTL() time.Duration {
	return ti.ttl
}

// Issue creates a signed token for userId.
func (ti *TokenIssuer) Issue(userId string) (string, error) {
	if userId == "" {
		return "", fmt.Errorf("issue token: empty user id")
	}
	now := ti.now()
	payload := AuthPayload{
		UserId: userId,
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ti.ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, payload)
	signed, err := token.SignedString(ti.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify checks the signature and expiry of a token and returns its payload. Every
// failure is reported as an error wrapping ErrInvalidToken.
func (ti *TokenIssuer) Verify(token string) (*AuthPayload, error) {
	payload := &AuthPayload{}
	parsed, err := jwt.ParseWithClaims(token, payload, func(t *jwt.Token) (any, error) {
		return ti.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(ti.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if !parsed.Valid || payload.UserId == "" {
		return nil, ErrInvalidToken
	}
	return payload, nil
}
