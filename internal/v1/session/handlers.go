package session

import (
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/protocol"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/room"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// dispatch routes one inbound frame. It runs on the connection's read pump,
// so a client's frames are handled strictly in arrival order. Per-frame
// failures answer with an error frame and leave the connection open.
func (h *Hub) dispatch(c *Client, data []byte) {
	start := time.Now()
	frameType := "unknown"
	defer func() {
		if r := recover(); r != nil {
			logging.Error(c.ctx, "Dispatcher panic", zap.String("type", frameType), zap.Any("panic", r))
			metrics.WebsocketEvents.WithLabelValues(frameType, "panic").Inc()
			c.enqueue(protocol.NewError(protocol.ErrServerError, "internal server error"))
		}
		metrics.MessageProcessingDuration.WithLabelValues(frameType).Observe(time.Since(start).Seconds())
	}()

	if int64(len(data)) > h.maxMessageBytes {
		c.enqueue(protocol.NewError(protocol.ErrInvalidJSON,
			fmt.Sprintf("frame exceeds %d bytes", h.maxMessageBytes)))
		metrics.WebsocketEvents.WithLabelValues("oversize", "rejected").Inc()
		return
	}

	frame, err := protocol.Decode(data)
	if err != nil {
		h.sendDecodeError(c, err)
		metrics.WebsocketEvents.WithLabelValues("decode", "rejected").Inc()
		return
	}
	frameType = protocol.Canonical(frame.Type)

	if d := h.limiter.AllowMessage(c.ctx, c.ID); !d.Allowed {
		c.enqueue(protocol.NewRateLimited(int(d.RetryAfter.Seconds())))
		metrics.WebsocketEvents.WithLabelValues(frameType, "rate_limited").Inc()
		return
	}

	if err := frame.Validate(); err != nil {
		h.sendDecodeError(c, err)
		metrics.WebsocketEvents.WithLabelValues(frameType, "rejected").Inc()
		return
	}

	switch frameType {
	case protocol.TypeJoin:
		h.handleJoin(c, frame)
	case protocol.TypeLeave:
		h.handleLeave(c)
	case protocol.TypeGetPeers:
		h.handleGetPeers(c)
	case protocol.TypeGetDoc:
		h.handleGetDoc(c)
	case protocol.TypeUpdate:
		h.handleUpdate(c, frame)
	case protocol.TypeCursor:
		h.handleCursor(c, frame)
	case protocol.TypeOffer, protocol.TypeAnswer, protocol.TypeICECandidate:
		h.relaySignal(c, frameType, frame)
	default:
		c.enqueue(protocol.NewError(protocol.ErrUnknownType, fmt.Sprintf("unrecognized frame type %q", frame.Type)))
		metrics.WebsocketEvents.WithLabelValues("unknown", "rejected").Inc()
		return
	}
	metrics.WebsocketEvents.WithLabelValues(frameType, "ok").Inc()
}

func (h *Hub) sendDecodeError(c *Client, err error) {
	if de, ok := err.(*protocol.DecodeError); ok {
		c.enqueue(protocol.NewErrorDetails(de.Reason, "frame rejected", de.Details))
		return
	}
	c.enqueue(protocol.NewError(protocol.ErrInvalidMessage, "frame rejected"))
}

// handleJoin moves the connection into the named room. The join is
// acknowledged only after the registry mutation completed, so a joined
// frame always means the sender is already a member. A join while in
// another room leaves it implicitly, and both rooms hear about it.
func (h *Hub) handleJoin(c *Client, frame *protocol.Inbound) {
	if frame.RoomID == "" {
		c.enqueue(protocol.NewError(protocol.ErrJoinRequiresRoom, "join requires a roomId"))
		return
	}
	roomID := types.RoomIdType(frame.RoomID)

	res := h.registry.Join(c.ID, roomID)

	c.enqueue(protocol.NewOutbound(protocol.TypeJoined, protocol.ServerSender,
		protocol.JoinedPayload{RoomID: string(roomID)}))
	c.enqueue(protocol.NewOutbound(protocol.TypeDoc, protocol.ServerSender,
		protocol.DocPayload{Version: res.Doc.Version, Text: res.Doc.Text}))

	if res.AlreadyMember {
		return
	}

	logging.Info(c.ctx, "Client joined room",
		zap.String("roomId", string(roomID)), zap.Int("members", len(res.Members)))

	if res.Left {
		h.broadcastPresence(res.PrevRoomID, res.PrevMembers)
	}
	h.broadcastPresence(roomID, res.Members)
}

// handleLeave removes the connection from its room, if it is in one.
func (h *Hub) handleLeave(c *Client) {
	res := h.registry.Leave(c.ID)

	c.enqueue(protocol.NewOutbound(protocol.TypeLeft, protocol.ServerSender,
		protocol.LeftPayload{RoomID: string(res.RoomID)}))

	if res.Left {
		logging.Info(c.ctx, "Client left room", zap.String("roomId", string(res.RoomID)))
		h.broadcastPresence(res.RoomID, res.Members)
	}
}

// handleGetPeers answers the sender with a presence snapshot of its room.
// Outside a room the list is empty.
func (h *Hub) handleGetPeers(c *Client) {
	var peers []types.PeerInfo
	if roomID, ok := h.registry.CurrentRoom(c.ID); ok {
		peers = h.peersOf(roomID, h.registry.Members(roomID))
	}
	if peers == nil {
		peers = []types.PeerInfo{}
	}
	c.enqueue(protocol.NewOutbound(protocol.TypePeersUpdated, protocol.ServerSender, protocol.PeersUpdatedPayload{
		Peers: peers,
		Total: len(peers),
		Count: len(peers) - boolToInt(len(peers) > 0),
	}))
}

// handleGetDoc answers the sender with its room's current document.
// Outside a room the document is the zero document.
func (h *Hub) handleGetDoc(c *Client) {
	doc, _ := h.registry.GetDoc(c.ID)
	c.enqueue(protocol.NewOutbound(protocol.TypeDoc, protocol.ServerSender,
		protocol.DocPayload{Version: doc.Version, Text: doc.Text}))
}

// handleUpdate runs the optimistic-concurrency document write. An applied
// write is announced to the whole room, author included; a stale
// baseVersion bounces back to the sender with the state to rebase onto.
func (h *Hub) handleUpdate(c *Client, frame *protocol.Inbound) {
	res := h.registry.UpdateDoc(c.ID, types.RoomIdType(frame.RoomID), frame.TextString(), frame.BaseVersion)

	switch res.Status {
	case room.UpdateNotMember:
		c.enqueue(protocol.NewError(protocol.ErrInvalidMessage, "not in room"))

	case room.UpdateConflict:
		logging.Info(c.ctx, "Document update conflict",
			zap.String("roomId", frame.RoomID), zap.Int("currentVersion", res.Doc.Version))
		c.enqueue(protocol.NewOutbound(protocol.TypeUpdateRejected, protocol.ServerSender,
			protocol.UpdateRejectedPayload{CurrentVersion: res.Doc.Version, Text: res.Doc.Text}))

	case room.UpdateApplied:
		author := frame.UserID
		if author == "" {
			author = c.Identity()
		}
		payload := protocol.DocUpdatedPayload{Version: res.Doc.Version, Text: res.Doc.Text, Author: author}
		h.broadcast(res.Members, "", protocol.NewOutbound(protocol.TypeDocUpdated, protocol.ServerSender, payload))
	}
}

// handleCursor relays a cursor/selection frame to the sender's room,
// excluding the sender. Cursor state is ephemeral; nothing is stored.
func (h *Hub) handleCursor(c *Client, frame *protocol.Inbound) {
	roomID, ok := h.registry.CurrentRoom(c.ID)
	if !ok {
		return
	}
	out := protocol.NewOutbound(protocol.TypeCursor, c.Identity(), frame.RelayPayload())
	h.broadcast(h.registry.Members(roomID), c.ID, out)
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
