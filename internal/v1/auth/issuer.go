package auth

import (
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

// DefaultTokenTTL bounds how long a minted connection token stays usable.
// Short-lived by design; clients mint a fresh one per session.
const DefaultTokenTTL = 5 * time.Minute

// Issuer mints short-lived HS256 connection tokens signed with the same
// secret the Verifier checks against.
type Issuer struct {
	secret []byte
	ttl    time.Duration
}

// NewIssuer creates an Issuer. A non-positive ttl falls back to
// DefaultTokenTTL.
func NewIssuer(secret string, ttl time.Duration) *Issuer {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	return &Issuer{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for userID, optionally scoped to roomID. The returned
// time is the token's expiry.
func (i *Issuer) Issue(userID, roomID string) (string, time.Time, error) {
	if len(i.secret) == 0 {
		return "", time.Time{}, ErrNoSecret
	}
	if userID == "" {
		return "", time.Time{}, ErrNoIdentity
	}

	now := time.Now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		RoomID: roomID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("auth: signing token: %w", err)
	}

	return signed, expiresAt, nil
}

// tokenRequest is the POST /auth/token body.
type tokenRequest struct {
	UserID string `json:"userId" binding:"required"`
	RoomID string `json:"roomId"`
}

// Handler serves token issuance. Responds 400 without a userId, 503 when no
// signing secret is configured, otherwise the token and its expiry in
// milliseconds since epoch.
func (i *Issuer) Handler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req tokenRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "userId is required"})
			return
		}

		token, expiresAt, err := i.Issue(req.UserID, req.RoomID)
		if err != nil {
			if errors.Is(err, ErrNoSecret) {
				c.JSON(http.StatusServiceUnavailable, gin.H{"error": "token issuance is not configured"})
				return
			}
			logging.Error(c.Request.Context(), "token issuance failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to issue token"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"token":     token,
			"expiresAt": expiresAt.UnixMilli(),
		})
	}
}
