package auth

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIssuer_RoundTrip(t *testing.T) {
	issuer := NewIssuer(testSecret, 2*time.Minute)
	verifier := NewVerifier(testSecret)

	token, expiresAt, err := issuer.Issue("alice", "standup")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity())
	assert.Equal(t, "standup", claims.RoomID)
	assert.NotEmpty(t, claims.ID, "tokens should carry a unique jti")

	assert.WithinDuration(t, time.Now().Add(2*time.Minute), expiresAt, 5*time.Second)
}

func TestIssuer_NoRoom(t *testing.T) {
	issuer := NewIssuer(testSecret, time.Minute)
	verifier := NewVerifier(testSecret)

	token, _, err := issuer.Issue("bob", "")
	require.NoError(t, err)

	claims, err := verifier.Verify(token)
	require.NoError(t, err)
	assert.Empty(t, claims.RoomID)
}

func TestIssuer_DefaultTTL(t *testing.T) {
	issuer := NewIssuer(testSecret, 0)

	_, expiresAt, err := issuer.Issue("alice", "")
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(DefaultTokenTTL), expiresAt, 5*time.Second)
}

func TestIssuer_Failures(t *testing.T) {
	t.Run("no secret", func(t *testing.T) {
		issuer := NewIssuer("", time.Minute)
		_, _, err := issuer.Issue("alice", "")
		assert.ErrorIs(t, err, ErrNoSecret)
	})

	t.Run("no user", func(t *testing.T) {
		issuer := NewIssuer(testSecret, time.Minute)
		_, _, err := issuer.Issue("", "")
		assert.ErrorIs(t, err, ErrNoIdentity)
	})
}

func newTokenRouter(issuer *Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/auth/token", issuer.Handler())
	return r
}

func TestTokenHandler_Success(t *testing.T) {
	r := newTokenRouter(NewIssuer(testSecret, time.Minute))

	body, _ := json.Marshal(map[string]string{"userId": "alice", "roomId": "standup"})
	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	require.Equal(t, http.StatusOK, resp.Code)

	var out struct {
		Token     string `json:"token"`
		ExpiresAt int64  `json:"expiresAt"`
	}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &out))
	assert.NotEmpty(t, out.Token)
	assert.Greater(t, out.ExpiresAt, time.Now().UnixMilli())

	claims, err := NewVerifier(testSecret).Verify(out.Token)
	require.NoError(t, err)
	assert.Equal(t, "alice", claims.Identity())
}

func TestTokenHandler_MissingUserID(t *testing.T) {
	r := newTokenRouter(NewIssuer(testSecret, time.Minute))

	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader([]byte(`{"roomId":"standup"}`)))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusBadRequest, resp.Code)
}

func TestTokenHandler_NoSecretConfigured(t *testing.T) {
	r := newTokenRouter(NewIssuer("", time.Minute))

	body, _ := json.Marshal(map[string]string{"userId": "alice"})
	req := httptest.NewRequest(http.MethodPost, "/auth/token", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()

	r.ServeHTTP(resp, req)

	assert.Equal(t, http.StatusServiceUnavailable, resp.Code)
}
