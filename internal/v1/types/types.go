package types

import (
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/auth"
)

// --- Core Domain Types ---

// ClientIdType represents a unique identifier for a client connection.
// It equals the authenticated user id when one is known, otherwise a
// server-generated UUID.
type ClientIdType string

// RoomIdType represents a unique identifier for a collaboration room.
type RoomIdType string

// PeerInfo is the presence descriptor shared with every member of a room.
// Optional fields are omitted from the wire when empty.
type PeerInfo struct {
	ID         ClientIdType `json:"id"`
	UserID     string       `json:"userId,omitempty"`
	RoomID     RoomIdType   `json:"roomId"`
	JoinedAt   int64        `json:"joinedAt"`
	RemoteAddr string       `json:"remoteAddress,omitempty"`
	UserAgent  string       `json:"userAgent,omitempty"`
	Origin     string       `json:"origin,omitempty"`
}

// --- Shared Interfaces ---

// TokenVerifier defines the interface for token verification services.
// The session layer depends on this rather than the concrete verifier so
// tests can substitute their own.
type TokenVerifier interface {
	Verify(tokenString string) (*auth.Claims, error)
}
