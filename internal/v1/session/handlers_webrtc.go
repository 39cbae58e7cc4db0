package session

import (
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/protocol"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// relaySignal forwards an offer, answer or ice-candidate frame. A frame
// addressed with to goes to that one peer when it resolves; otherwise, and
// for unaddressed frames, it fans out to the sender's room without echoing
// back. Delivery is best-effort: recipient trouble is never surfaced to
// the sender.
func (h *Hub) relaySignal(c *Client, frameType string, frame *protocol.Inbound) {
	out := protocol.NewOutbound(frameType, c.Identity(), frame.RelayPayload())

	roomID, inRoom := h.registry.CurrentRoom(c.ID)

	if frame.To != "" {
		if target, ok := h.resolveTarget(c, roomID, inRoom, frame.To); ok {
			out.To = frame.To
			target.enqueue(out)
			metrics.RelayFrames.WithLabelValues(frameType, "direct").Inc()
			return
		}
		logging.Warn(c.ctx, "Relay target not found, falling back to room fanout",
			zap.String("type", frameType), zap.String("to", frame.To))
	}

	if !inRoom {
		logging.Warn(c.ctx, "Dropping relay frame from client outside any room",
			zap.String("type", frameType))
		metrics.RelayFrames.WithLabelValues(frameType, "dropped").Inc()
		return
	}

	n := h.broadcast(h.registry.Members(roomID), c.ID, out)
	metrics.RelayFrames.WithLabelValues(frameType, "fanout").Inc()
	logging.Debug(c.ctx, "Relayed frame to room",
		zap.String("type", frameType), zap.String("roomId", string(roomID)), zap.Int("recipients", n))
}

// resolveTarget finds the connection a to field addresses. Clients may
// address peers by user id or transport id; user id wins, and a match
// inside the sender's own room wins over one anywhere else. The order is
// load-bearing for older clients and must not change.
func (h *Hub) resolveTarget(c *Client, roomID types.RoomIdType, inRoom bool, to string) (*Client, bool) {
	if inRoom {
		if target, ok := h.matchAmong(h.registry.Members(roomID), c.ID, to); ok {
			return target, true
		}
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, cl := range h.clients {
		if cl.ID != c.ID && cl.UserID == to {
			return cl, true
		}
	}
	if cl, ok := h.clients[types.ClientIdType(to)]; ok && cl.ID != c.ID {
		return cl, true
	}
	return nil, false
}

// matchAmong resolves to against a membership snapshot, user id first.
func (h *Hub) matchAmong(memberIDs []types.ClientIdType, sender types.ClientIdType, to string) (*Client, bool) {
	members := h.resolveMembers(memberIDs)
	for _, cl := range members {
		if cl.ID != sender && cl.UserID == to {
			return cl, true
		}
	}
	for _, cl := range members {
		if cl.ID != sender && cl.ID == types.ClientIdType(to) {
			return cl, true
		}
	}
	return nil, false
}
