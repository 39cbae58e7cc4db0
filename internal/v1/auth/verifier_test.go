package auth

import (
	"crypto/rand"
	"crypto/rsa"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "this-is-a-very-long-secret-key-for-testing-purposes"

// signHS256 builds a token the way an external issuer would.
func signHS256(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestVerifier_ValidToken(t *testing.T) {
	v := NewVerifier(testSecret)

	signed := signHS256(t, testSecret, jwt.MapClaims{
		"sub":    "alice",
		"roomId": "standup",
		"name":   "Alice",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	claims, err := v.Verify(signed)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity())
	assert.Equal(t, "standup", claims.RoomID)
	assert.Equal(t, "Alice", claims.Name)
}

func TestVerifier_IdentityPrecedence(t *testing.T) {
	v := NewVerifier(testSecret)
	exp := time.Now().Add(time.Hour).Unix()

	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"sub wins over userId and uid", jwt.MapClaims{"sub": "a", "userId": "b", "uid": "c", "exp": exp}, "a"},
		{"userId wins over uid", jwt.MapClaims{"userId": "b", "uid": "c", "exp": exp}, "b"},
		{"uid alone", jwt.MapClaims{"uid": "c", "exp": exp}, "c"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			claims, err := v.Verify(signHS256(t, testSecret, tt.claims))
			require.NoError(t, err)
			assert.Equal(t, tt.want, claims.Identity())
		})
	}
}

func TestVerifier_NoSecret(t *testing.T) {
	v := NewVerifier("")

	_, err := v.Verify(signHS256(t, testSecret, jwt.MapClaims{"sub": "alice"}))
	assert.ErrorIs(t, err, ErrNoSecret)
	assert.Equal(t, ReasonNoSecret, FailureReason(err))
}

func TestVerifier_NoToken(t *testing.T) {
	v := NewVerifier(testSecret)

	_, err := v.Verify("")
	assert.ErrorIs(t, err, ErrNoToken)
	assert.Equal(t, ReasonNoToken, FailureReason(err))
}

func TestVerifier_Expired(t *testing.T) {
	v := NewVerifier(testSecret)

	signed := signHS256(t, testSecret, jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(-time.Minute).Unix(),
	})

	_, err := v.Verify(signed)
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Equal(t, ReasonExpired, FailureReason(err))
}

func TestVerifier_Garbage(t *testing.T) {
	v := NewVerifier(testSecret)

	_, err := v.Verify("not-a-jwt")
	assert.ErrorIs(t, err, ErrTokenInvalid)
	assert.Equal(t, ReasonInvalid, FailureReason(err))
}

func TestVerifier_WrongSecret(t *testing.T) {
	v := NewVerifier(testSecret)

	signed := signHS256(t, "a-completely-different-secret-of-sufficient-length", jwt.MapClaims{
		"sub": "alice",
		"exp": time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(signed)
	assert.ErrorIs(t, err, ErrTokenInvalid)
}

func TestVerifier_MissingIdentity(t *testing.T) {
	v := NewVerifier(testSecret)

	signed := signHS256(t, testSecret, jwt.MapClaims{
		"roomId": "standup",
		"exp":    time.Now().Add(time.Hour).Unix(),
	})

	_, err := v.Verify(signed)
	assert.ErrorIs(t, err, ErrNoIdentity)
	assert.Equal(t, ReasonNoIdentity, FailureReason(err))
}

// The verifier must never accept a token signed with an algorithm other than
// HS256, no matter how well-formed. RS256 and alg=none are the classic
// confusion vectors.
func TestVerifier_AlgorithmConfusion(t *testing.T) {
	v := NewVerifier(testSecret)

	t.Run("RS256 rejected", func(t *testing.T) {
		privateKey, err := rsa.GenerateKey(rand.Reader, 2048)
		require.NoError(t, err)

		token := jwt.NewWithClaims(jwt.SigningMethodRS256, jwt.MapClaims{
			"sub": "attacker",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(privateKey)
		require.NoError(t, err)

		_, err = v.Verify(signed)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})

	t.Run("alg none rejected", func(t *testing.T) {
		token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{
			"sub": "attacker",
			"exp": time.Now().Add(time.Hour).Unix(),
		})
		signed, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)

		_, err = v.Verify(signed)
		assert.ErrorIs(t, err, ErrTokenInvalid)
	})
}

func TestFailureReason_UnknownError(t *testing.T) {
	assert.Equal(t, ReasonInvalid, FailureReason(errors.New("something else")))
}
