package session

import (
	"context"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/protocol"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// writeWait bounds how long a single frame write may block before the
// connection is considered wedged.
const writeWait = 10 * time.Second

// sendBufferSize is the outbound queue depth per connection. A full queue
// means the client is not draining; further frames are dropped rather than
// blocking the sender's dispatcher.
const sendBufferSize = 64

// wsConn is the slice of *websocket.Conn the session layer touches. Tests
// substitute a mock so pump and dispatch logic runs without real sockets.
type wsConn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetPongHandler(h func(appData string) error)
	SetWriteDeadline(t time.Time) error
	Close() error
}

// Client is one live WebSocket connection. The read pump is the only
// goroutine that dispatches the client's frames, the write pump is the only
// one that writes to the socket; everyone else communicates through the
// send queue.
type Client struct {
	ID     types.ClientIdType
	UserID string

	conn wsConn
	hub  *Hub

	// ctx carries the upgrade request's correlation id into pump logs. It
	// is detached from the request lifecycle so it survives the handler
	// returning.
	ctx context.Context

	remoteAddr string
	userAgent  string
	origin     string
	joinedAt   time.Time

	mu           sync.Mutex
	alive        bool
	missedPings  int
	lastActivity time.Time

	send      chan []byte
	done      chan struct{}
	closeOnce sync.Once
}

// Identity is the name this connection signs relayed frames with: the
// verified user id when there is one, the transport id otherwise.
func (c *Client) Identity() string {
	if c.UserID != "" {
		return c.UserID
	}
	return string(c.ID)
}

// peerInfo builds this connection's presence descriptor for roomID.
func (c *Client) peerInfo(roomID types.RoomIdType) types.PeerInfo {
	return types.PeerInfo{
		ID:         c.ID,
		UserID:     c.UserID,
		RoomID:     roomID,
		JoinedAt:   c.joinedAt.UnixMilli(),
		RemoteAddr: c.remoteAddr,
		UserAgent:  c.userAgent,
		Origin:     c.origin,
	}
}

// enqueue hands a frame to the write pump. Delivery is best-effort: when the
// queue is full the frame is dropped and counted, never blocking the caller.
func (c *Client) enqueue(frame *protocol.Outbound) {
	data, err := frame.Encode()
	if err != nil {
		logging.Error(c.ctx, "Dropping unencodable frame", zap.String("type", frame.Type), zap.Error(err))
		return
	}
	select {
	case c.send <- data:
	default:
		metrics.DroppedFrames.WithLabelValues("queue_full").Inc()
		logging.Warn(c.ctx, "Send queue full, dropping frame", zap.String("type", frame.Type))
	}
}

// close initiates teardown exactly once: a close frame with the given code,
// then the done signal that stops the write pump and closes the socket.
func (c *Client) close(code int, reason string) {
	c.closeOnce.Do(func() {
		msg := websocket.FormatCloseMessage(code, reason)
		_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		close(c.done)
	})
}

// pong is installed as the socket's pong handler: the peer answered the last
// ping, so the liveness flag and missed budget reset.
func (c *Client) pong() {
	c.mu.Lock()
	c.alive = true
	c.missedPings = 0
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// touch records inbound activity.
func (c *Client) touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// heartbeat runs one supervisor tick. While the peer keeps answering, each
// tick clears the liveness flag and sends a fresh ping; a tick that finds
// the flag still cleared counts a miss. Returns false once the missed
// budget is spent and the connection should be terminated.
func (c *Client) heartbeat(maxMissed int) bool {
	c.mu.Lock()
	if c.alive {
		c.alive = false
	} else {
		c.missedPings++
		if c.missedPings >= maxMissed {
			c.mu.Unlock()
			return false
		}
	}
	c.mu.Unlock()

	_ = c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
	return true
}

// readPump pulls frames off the socket and dispatches them in arrival
// order. It owns cleanup: whatever ends the connection, the read loop's
// exit is the one place membership and registry state get torn down.
func (c *Client) readPump() {
	defer func() {
		c.hub.cleanup(c)
		_ = c.conn.Close()
	}()

	c.conn.SetPongHandler(func(string) error {
		c.pong()
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logging.Warn(c.ctx, "Socket read failed", zap.Error(err))
			}
			return
		}
		c.touch()
		c.hub.dispatch(c, data)
	}
}

// writePump drains the send queue and runs the heartbeat supervisor. It is
// the only writer of data frames on the socket, so per-recipient ordering
// is the queue's ordering.
func (c *Client) writePump(interval time.Duration, maxMissed int) {
	ticker := time.NewTicker(interval)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()

	for {
		select {
		case data := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				logging.Warn(c.ctx, "Socket write failed", zap.Error(err))
				return
			}
		case <-ticker.C:
			if !c.heartbeat(maxMissed) {
				metrics.HeartbeatTerminations.Inc()
				logging.Warn(c.ctx, "Terminating dead connection",
					zap.String("clientId", string(c.ID)),
					zap.Int("missedPings", maxMissed))
				c.close(websocket.CloseGoingAway, "going away")
				return
			}
		case <-c.done:
			return
		}
	}
}
