// Package session owns the connection runtime: the upgrade gate, the
// per-connection pumps and heartbeat, the message dispatcher, and the
// fanout paths for signaling, presence and document frames. Room state
// itself lives in the room registry; this package holds the sockets.
package session

import (
	"context"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/auth"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/config"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/logging"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/metrics"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/protocol"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/ratelimit"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/room"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

// Hub is the central coordinator: it gates upgrades, tracks every live
// connection, and bridges sockets to the room registry.
type Hub struct {
	registry *room.Registry
	limiter  *ratelimit.Limiter
	verifier types.TokenVerifier
	origins  *auth.AllowedOrigins

	development        bool
	maxMessageBytes    int64
	heartbeatInterval  time.Duration
	heartbeatMaxMissed int

	mu      sync.RWMutex
	clients map[types.ClientIdType]*Client
	closed  bool
}

// NewHub wires the hub with its dependencies. The verifier is an interface
// so tests can substitute their own.
func NewHub(cfg *config.Config, registry *room.Registry, limiter *ratelimit.Limiter, verifier types.TokenVerifier, origins *auth.AllowedOrigins) *Hub {
	return &Hub{
		registry:           registry,
		limiter:            limiter,
		verifier:           verifier,
		origins:            origins,
		development:        cfg.Development,
		maxMessageBytes:    cfg.MaxMessageBytes,
		heartbeatInterval:  cfg.HeartbeatInterval,
		heartbeatMaxMissed: cfg.HeartbeatMaxMissed,
		clients:            make(map[types.ClientIdType]*Client),
	}
}

// ServeWS is the upgrade gate for GET /ws. The checks run in a fixed
// order: shutdown guard, origin, token, rate limits, then the handshake.
// Anything failing before the handshake answers with an HTTP status;
// failures after it speak close codes.
func (h *Hub) ServeWS(c *gin.Context) {
	ctx := c.Request.Context()

	if h.Closed() {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "server is shutting down"})
		return
	}

	origin := c.GetHeader("Origin")
	remoteAddr := c.ClientIP()

	if !h.development && !h.origins.Allows(origin) {
		logging.Warn(ctx, "Rejecting upgrade from disallowed origin",
			zap.String("origin", origin), zap.String("remoteAddr", remoteAddr))
		c.JSON(http.StatusForbidden, gin.H{"error": "origin not allowed"})
		return
	}

	claims, ok := h.authenticate(c)
	if !ok {
		return
	}

	if d := h.limiter.AllowConnect(ctx, remoteAddr); !d.Allowed {
		retryAfter(c, d)
		return
	}
	if !h.limiter.AcquireConn(remoteAddr) {
		c.Header("Retry-After", "1")
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "too many connections from this address"})
		return
	}

	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin: func(r *http.Request) bool {
			return h.development || h.origins.Allows(r.Header.Get("Origin"))
		},
	}
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade already wrote the HTTP error response.
		h.limiter.ReleaseConn(remoteAddr)
		logging.Warn(ctx, "WebSocket upgrade failed", zap.Error(err))
		return
	}

	h.HandleConnection(c, conn, claims)
}

// HandleConnection finishes setup on an established socket: it builds the
// connection record, registers it (evicting a stale connection with the
// same id), starts the pumps, and greets the client.
func (h *Hub) HandleConnection(c *gin.Context, conn wsConn, claims *auth.Claims) {
	userID, roomHint := h.resolveIdentity(c, claims)

	clientID := types.ClientIdType(userID)
	if clientID == "" {
		clientID = types.ClientIdType(newClientID())
	}

	client := &Client{
		ID:           clientID,
		UserID:       userID,
		conn:         conn,
		hub:          h,
		ctx:          pumpContext(c, clientID, userID),
		remoteAddr:   c.ClientIP(),
		userAgent:    c.Request.UserAgent(),
		origin:       c.GetHeader("Origin"),
		joinedAt:     time.Now(),
		alive:        true,
		lastActivity: time.Now(),
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
	}

	evicted, err := h.register(client)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "Server shutting down")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
		_ = conn.Close()
		h.limiter.ReleaseConn(client.remoteAddr)
		return
	}
	if evicted != nil {
		logging.Info(client.ctx, "Evicting superseded connection", zap.String("clientId", string(clientID)))
		evicted.close(websocket.ClosePolicyViolation, "superseded by a newer connection")
		h.finalize(evicted)
	}

	logging.Info(client.ctx, "Connection established",
		zap.String("clientId", string(clientID)),
		zap.String("userId", userID),
		zap.String("roomHint", roomHint))

	go client.writePump(h.heartbeatInterval, h.heartbeatMaxMissed)
	go client.readPump()

	client.enqueue(h.connectedFrame(client, types.RoomIdType(roomHint)))
}

// authenticate enforces the token requirement. Production demands a valid
// token; development tries to verify one when present, for identity only,
// and lets failures pass.
func (h *Hub) authenticate(c *gin.Context) (*auth.Claims, bool) {
	token := c.Query("token")

	if h.development {
		if token == "" {
			return nil, true
		}
		claims, err := h.verifier.Verify(token)
		if err != nil {
			logging.Warn(c.Request.Context(), "Ignoring unverifiable token in development",
				zap.String("reason", string(auth.FailureReason(err))))
			return nil, true
		}
		return claims, true
	}

	if token == "" {
		c.JSON(http.StatusUnauthorized, gin.H{"error": string(protocol.ErrAuthRequired)})
		return nil, false
	}
	claims, err := h.verifier.Verify(token)
	if err != nil {
		reason := auth.FailureReason(err)
		logging.Warn(c.Request.Context(), "Rejecting upgrade with invalid token", zap.String("reason", string(reason)))
		wire := protocol.ErrAuthFailed
		if reason == auth.ReasonExpired {
			wire = protocol.ErrTokenExpired
		}
		c.JSON(http.StatusUnauthorized, gin.H{"error": wire, "reason": string(reason)})
		return nil, false
	}
	return claims, true
}

// register installs the client in the connection table, returning a prior
// connection holding the same id so the caller can retire it.
func (h *Hub) register(c *Client) (evicted *Client, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil, context.Canceled
	}
	evicted = h.clients[c.ID]
	h.clients[c.ID] = c
	metrics.IncConnection()
	return evicted, nil
}

// cleanup tears a connection down exactly once. The connection table is the
// guard: only the goroutine that removes the entry runs finalize, so a
// superseded connection whose entry was already replaced does nothing here.
func (h *Hub) cleanup(c *Client) {
	h.mu.Lock()
	current, ok := h.clients[c.ID]
	if !ok || current != c {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c.ID)
	h.mu.Unlock()

	h.finalize(c)
}

// finalize runs the non-table half of teardown: leave the room, tell the
// remaining members, release the concurrency slot.
func (h *Hub) finalize(c *Client) {
	c.close(websocket.CloseGoingAway, "going away")

	res := h.registry.Leave(c.ID)
	if res.Left {
		logging.Info(c.ctx, "Connection left room on disconnect",
			zap.String("clientId", string(c.ID)), zap.String("roomId", string(res.RoomID)))
		h.broadcastPresence(res.RoomID, res.Members)
	}

	h.limiter.ReleaseConn(c.remoteAddr)
	metrics.DecConnection()
}

// Shutdown drains the hub: no more upgrades, a 1001 close to every
// connection, then a bounded wait for the pumps before forcing sockets
// shut. When it returns no connection or registry entry remains.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	clients := make([]*Client, 0, len(h.clients))
	for _, c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	logging.Info(ctx, "Hub draining connections", zap.Int("count", len(clients)))

	for _, c := range clients {
		c.close(websocket.CloseGoingAway, "Server shutting down")
	}

	var err error
	for _, c := range clients {
		select {
		case <-c.done:
		case <-ctx.Done():
			err = ctx.Err()
		}
		_ = c.conn.Close()
		h.cleanup(c)
	}

	logging.Info(ctx, "Hub drained")
	return err
}

// Closed reports whether the hub has stopped accepting upgrades.
func (h *Hub) Closed() bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.closed
}

// ConnectionCount returns the number of live connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// RoomCount returns the number of live rooms.
func (h *Hub) RoomCount() int {
	rooms, _ := h.registry.Stats()
	return rooms
}

// retryAfter writes the 429 response for a breached connect window.
func retryAfter(c *gin.Context, d ratelimit.Decision) {
	seconds := int(d.RetryAfter.Seconds())
	if seconds < 1 {
		seconds = 1
	}
	c.Header("Retry-After", strconv.Itoa(seconds))
	c.JSON(http.StatusTooManyRequests, gin.H{
		"error":      protocol.ErrRateLimited,
		"retryAfter": seconds,
	})
}
