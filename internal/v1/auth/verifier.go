package auth

import (
	"errors"
	"fmt"

	"github.com/golang-jwt/jwt/v5"
)

// Verification failure sentinels. Callers branch with errors.Is and map the
// result onto a wire-safe reason via FailureReason.
var (
	ErrNoSecret     = errors.New("auth: no signing secret configured")
	ErrNoToken      = errors.New("auth: no token provided")
	ErrTokenExpired = errors.New("auth: token expired")
	ErrTokenInvalid = errors.New("auth: token invalid")
	ErrNoIdentity   = errors.New("auth: token carries no user identifier")
)

// Reason classifies a verification failure for clients. The strings travel on
// the wire, so internal error text never does.
type Reason string

const (
	ReasonNoSecret   Reason = "no_secret_configured"
	ReasonNoToken    Reason = "no_token_provided"
	ReasonExpired    Reason = "token_expired"
	ReasonInvalid    Reason = "invalid_token"
	ReasonNoIdentity Reason = "missing_user_identifier"
)

// FailureReason maps a Verify error to its Reason. Unknown errors are
// reported as invalid_token.
func FailureReason(err error) Reason {
	switch {
	case errors.Is(err, ErrNoSecret):
		return ReasonNoSecret
	case errors.Is(err, ErrNoToken):
		return ReasonNoToken
	case errors.Is(err, ErrTokenExpired):
		return ReasonExpired
	case errors.Is(err, ErrNoIdentity):
		return ReasonNoIdentity
	default:
		return ReasonInvalid
	}
}

// Claims holds the token claims the server reads. UserID and UID mirror the
// sub claim for issuers that put the identity in a custom field instead.
type Claims struct {
	UserID string `json:"userId,omitempty"`
	UID    string `json:"uid,omitempty"`
	RoomID string `json:"roomId,omitempty"`
	Name   string `json:"name,omitempty"`
	jwt.RegisteredClaims
}

// Identity returns the first non-empty of the sub, userId and uid claims.
func (c *Claims) Identity() string {
	if c.Subject != "" {
		return c.Subject
	}
	if c.UserID != "" {
		return c.UserID
	}
	return c.UID
}

// Verifier validates HS256 tokens against a shared secret. Exactly one
// algorithm is accepted: tokens signed any other way, including alg=none,
// fail as invalid. This closes the usual algorithm-confusion hole where an
// attacker downgrades to an algorithm the server did not intend.
type Verifier struct {
	secret []byte
}

// NewVerifier creates a Verifier for the given shared secret. An empty
// secret is allowed so development processes can boot without one; Verify
// then fails every token with ErrNoSecret.
func NewVerifier(secret string) *Verifier {
	return &Verifier{secret: []byte(secret)}
}

// Verify parses and validates tokenString and returns its claims. A token
// whose claims carry no user identity at all is rejected: every verified
// connection must map to a user.
func (v *Verifier) Verify(tokenString string) (*Claims, error) {
	if len(v.secret) == 0 {
		return nil, ErrNoSecret
	}
	if tokenString == "" {
		return nil, ErrNoToken
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{},
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return v.secret, nil
		},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrTokenInvalid
	}

	if claims.Identity() == "" {
		return nil, ErrNoIdentity
	}

	return claims, nil
}
