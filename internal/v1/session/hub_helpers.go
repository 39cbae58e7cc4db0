package session

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/auth"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/protocol"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// newClientID mints a transport id for connections without a user identity.
func newClientID() string {
	return uuid.NewString()
}

// resolveIdentity decides the connection's user id and room hint from the
// verified claims and the upgrade query. The token's identity wins in
// production; development lets the query supply or override it. The room
// hint comes from the query first, then the token, and is only a hint:
// joining stays explicit.
func (h *Hub) resolveIdentity(c *gin.Context, claims *auth.Claims) (userID, roomHint string) {
	queryUserID := c.Query("userId")

	if claims != nil {
		userID = claims.Identity()
		roomHint = claims.RoomID
	}
	if h.development && queryUserID != "" {
		userID = queryUserID
	}
	if userID == "" {
		userID = queryUserID
	}
	if q := c.Query("roomId"); q != "" {
		roomHint = q
	}
	return userID, roomHint
}

// pumpContext derives the long-lived context the pumps log under. It keeps
// the upgrade request's correlation id but drops its cancellation, which
// fires as soon as the HTTP handler returns.
func pumpContext(c *gin.Context, clientID types.ClientIdType, userID string) context.Context {
	ctx := context.WithoutCancel(c.Request.Context())
	ctx = context.WithValue(ctx, logging.ClientIDKey, string(clientID))
	if userID != "" {
		ctx = context.WithValue(ctx, logging.UserIDKey, userID)
	}
	return ctx
}

// connectedFrame greets a fresh connection with its id and, when the
// upgrade carried a room hint, a preview of who is in that room.
func (h *Hub) connectedFrame(c *Client, roomHint types.RoomIdType) *protocol.Outbound {
	var peers []types.PeerInfo
	if roomHint != "" {
		peers = h.peersOf(roomHint, h.registry.Members(roomHint))
	}
	if peers == nil {
		peers = []types.PeerInfo{}
	}
	return protocol.NewOutbound(protocol.TypeConnected, protocol.ServerSender, protocol.ConnectedPayload{
		ClientID: string(c.ID),
		RoomID:   string(roomHint),
		Peers:    peers,
		Total:    len(peers),
	})
}

// lookup returns the live connection for id.
func (h *Hub) lookup(id types.ClientIdType) (*Client, bool) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	c, ok := h.clients[id]
	return c, ok
}

// resolveMembers maps a membership snapshot onto live connections. Ids
// whose connection raced away between snapshot and lookup are skipped.
func (h *Hub) resolveMembers(memberIDs []types.ClientIdType) []*Client {
	h.mu.RLock()
	defer h.mu.RUnlock()
	clients := make([]*Client, 0, len(memberIDs))
	for _, id := range memberIDs {
		if c, ok := h.clients[id]; ok {
			clients = append(clients, c)
		}
	}
	return clients
}

// peersOf builds presence descriptors for a membership snapshot.
func (h *Hub) peersOf(roomID types.RoomIdType, memberIDs []types.ClientIdType) []types.PeerInfo {
	members := h.resolveMembers(memberIDs)
	peers := make([]types.PeerInfo, 0, len(members))
	for _, c := range members {
		peers = append(peers, c.peerInfo(roomID))
	}
	return peers
}

// broadcastPresence fans a peers-updated frame out to every member named in
// the snapshot. The snapshot was taken under the registry lock by whoever
// mutated membership, so each transition produces exactly one consistent
// announcement. An empty room announces nothing.
func (h *Hub) broadcastPresence(roomID types.RoomIdType, memberIDs []types.ClientIdType) {
	members := h.resolveMembers(memberIDs)
	if len(members) == 0 {
		return
	}

	peers := make([]types.PeerInfo, 0, len(members))
	for _, c := range members {
		peers = append(peers, c.peerInfo(roomID))
	}

	for _, c := range members {
		c.enqueue(protocol.NewOutbound(protocol.TypePeersUpdated, protocol.ServerSender, protocol.PeersUpdatedPayload{
			Peers: peers,
			Total: len(peers),
			Count: len(peers) - 1,
		}))
	}
}

// broadcast sends a frame to every member in the snapshot, optionally
// excluding one connection.
func (h *Hub) broadcast(memberIDs []types.ClientIdType, exclude types.ClientIdType, frame *protocol.Outbound) int {
	n := 0
	for _, c := range h.resolveMembers(memberIDs) {
		if c.ID == exclude {
			continue
		}
		c.enqueue(frame)
		n++
	}
	return n
}
