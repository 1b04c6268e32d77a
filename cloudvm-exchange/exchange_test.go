package cloudvm_exchange

import (
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEndToEnd(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", 0)
	require.NoError(t, err)
	assert.Equal(t, DefaultTokenTTL, issuer.TTL())

	token, err := issuer.Issue("507f1f77bcf86cd799439011")
	require.NoError(t, err)
	assert.Len(t, strings.Split(token, "."), 3)

	payload, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "507f1f77bcf86cd799439011", payload.UserId)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), payload.ExpiresAt.Time, 5*time.Second)
	assert.WithinDuration(t, time.Now(), payload.IssuedAt.Time, 5*time.Second)
}

func TestVerifyRejectsTokens(t *testing.T) {
	issuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	other, err := NewTokenIssuer("other-secret", time.Hour)
	require.NoError(t, err)

	foreign, err := other.Issue("u1")
	require.NoError(t, err)

	expiredIssuer, err := NewTokenIssuer("test-secret", time.Hour)
	require.NoError(t, err)
	expiredIssuer.now = func() time.Time { return time.Now().Add(-2 * time.Hour) }
	expired, err := expiredIssuer.Issue("u1")
	require.NoError(t, err)

	none := jwt.NewWithClaims(jwt.SigningMethodNone, AuthPayload{UserId: "u1"})
	unsigned, err := none.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	noExpiry := jwt.NewWithClaims(jwt.SigningMethodHS256, AuthPayload{UserId: "u1"})
	withoutExp, err := noExpiry.SignedString([]byte("test-secret"))
	require.NoError(t, err)

	for name, token := range map[string]string{
		"garbage":        "not-a-token",
		"empty":          "",
		"wrong key":      foreign,
		"expired":        expired,
		"alg none":       unsigned,
		"missing expiry": withoutExp,
	} {
		t.Run(name, func(t *testing.T) {
			payload, err := issuer.Verify(token)
			assert.Nil(t, payload)
			assert.ErrorIs(t, err, ErrInvalidToken)
		})
	}
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	assert.ErrorIs(t, err, ErrEmptySecret)

	issuer, err := NewTokenIssuer("s", time.Hour)
	require.NoError(t, err)
	_, err = issuer.Issue("")
	assert.Error(t, err)
}

func TestGetSecret(t *testing.T) {
	t.Setenv("SIGNING_KEY", "from-env")
	assert.Equal(t, "from-env", GetSecret())

	t.Setenv("SIGNING_KEY", "")
	assert.Equal(t, defaultSecret, GetSecret())
}

func TestPasswordHasher(t *testing.T) {
	hasher := NewPasswordHasher()
	require.NoError(t, hasher.SetParams(1024, 1, 1))

	hash, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(hash, "$argon2id$v=19$m=1024,t=1,p=1$"))

	ok, err := hasher.Verify("correct horse", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = hasher.Verify("battery staple", hash)
	require.NoError(t, err)
	assert.False(t, ok)

	again, err := hasher.Hash("correct horse")
	require.NoError(t, err)
	assert.NotEqual(t, hash, again)
}

func TestPasswordHasherRejectsBadInput(t *testing.T) {
	hasher := NewPasswordHasher()
	assert.Error(t, hasher.SetParams(10, 1, 1))
	assert.Error(t, hasher.SetParams(1024, 0, 1))
	assert.Error(t, hasher.SetParams(1024, 1, 0))

	for _, encoded := range []string{
		"",
		"plain",
		"$bcrypt$v=19$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=x$m=1024,t=1,p=1$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024$c2FsdA$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$!!!$aGFzaA",
		"$argon2id$v=19$m=1024,t=1,p=1$c2FsdA$",
	} {
		_, err := hasher.Verify("pw", encoded)
		assert.ErrorIs(t, err, ErrInvalidHash, encoded)
	}

	_, err := hasher.Verify("pw", "$argon2id$v=16$m=1024,t=1,p=1$c2FsdA$aGFzaA")
	assert.ErrorIs(t, err, ErrIncompatibleHash)
}
