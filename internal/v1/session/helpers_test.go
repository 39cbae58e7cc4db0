package session

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/auth"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/config"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/ratelimit"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/room"
	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/types"
)

func testConfig() *config.Config {
	return &config.Config{
		Port:                 "8080",
		GoEnv:                "development",
		Development:          true,
		TokenTTL:             time.Minute,
		HeartbeatInterval:    time.Minute,
		HeartbeatMaxMissed:   3,
		MaxMessageBytes:      65536,
		ConnectRateLimit:     "1000-S",
		ConnectMaxConcurrent: 32,
		MessageRateLimit:     1000,
		MessageRateWindow:    10 * time.Second,
		ShutdownTimeout:      time.Second,
	}
}

// mockVerifier implements types.TokenVerifier.
type mockVerifier struct {
	claims *auth.Claims
	err    error
}

func (m *mockVerifier) Verify(string) (*auth.Claims, error) {
	return m.claims, m.err
}

func newTestHub(t *testing.T, verifier types.TokenVerifier, mutate ...func(*config.Config)) *Hub {
	t.Helper()
	cfg := testConfig()
	for _, m := range mutate {
		m(cfg)
	}
	store, err := ratelimit.NewStore(nil)
	require.NoError(t, err)
	limiter, err := ratelimit.New(cfg, store)
	require.NoError(t, err)

	origins := auth.NewAllowedOrigins([]string{"https://app.example"})
	return NewHub(cfg, room.NewRegistry(), limiter, verifier, origins)
}

// mockConn implements wsConn and records everything written to it.
type mockConn struct {
	mu       sync.Mutex
	messages [][]byte
	controls []int
	closed   bool

	readCh      chan []byte
	pongHandler func(string) error
}

func newMockConn() *mockConn {
	return &mockConn{readCh: make(chan []byte)}
}

func (m *mockConn) ReadMessage() (int, []byte, error) {
	data, ok := <-m.readCh
	if !ok {
		return 0, nil, websocket.ErrCloseSent
	}
	return websocket.TextMessage, data, nil
}

func (m *mockConn) WriteMessage(_ int, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.messages = append(m.messages, data)
	return nil
}

func (m *mockConn) WriteControl(messageType int, _ []byte, _ time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.controls = append(m.controls, messageType)
	return nil
}

func (m *mockConn) SetPongHandler(h func(string) error) {
	m.pongHandler = h
}

func (m *mockConn) SetWriteDeadline(time.Time) error { return nil }

func (m *mockConn) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}

func (m *mockConn) controlCount(messageType int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.controls {
		if c == messageType {
			n++
		}
	}
	return n
}

// newTestClient builds a registered client on a mock socket. Pumps are not
// started; tests pull frames straight off the send queue.
func newTestClient(t *testing.T, h *Hub, id, userID string) *Client {
	t.Helper()
	c := &Client{
		ID:           types.ClientIdType(id),
		UserID:       userID,
		conn:         newMockConn(),
		hub:          h,
		ctx:          context.Background(),
		remoteAddr:   "192.0.2.1",
		userAgent:    "test-agent",
		origin:       "https://app.example",
		joinedAt:     time.Now(),
		alive:        true,
		lastActivity: time.Now(),
		send:         make(chan []byte, sendBufferSize),
		done:         make(chan struct{}),
	}
	_, err := h.register(c)
	require.NoError(t, err)
	return c
}

// wireFrame mirrors the outbound envelope with the payload left raw so each
// test can decode the shape it expects.
type wireFrame struct {
	Type      string          `json:"type"`
	From      string          `json:"from"`
	To        string          `json:"to"`
	Payload   json.RawMessage `json:"payload"`
	Timestamp int64           `json:"timestamp"`
}

func (f *wireFrame) decode(t *testing.T, into any) {
	t.Helper()
	require.NoError(t, json.Unmarshal(f.Payload, into))
}

// nextFrame pops the next queued frame for c, failing the test if none
// arrives promptly.
func nextFrame(t *testing.T, c *Client) *wireFrame {
	t.Helper()
	select {
	case data := <-c.send:
		var f wireFrame
		require.NoError(t, json.Unmarshal(data, &f))
		return &f
	case <-time.After(time.Second):
		t.Fatalf("no frame queued for %s", c.ID)
		return nil
	}
}

func requireNoFrame(t *testing.T, c *Client) {
	t.Helper()
	select {
	case data := <-c.send:
		t.Fatalf("unexpected frame for %s: %s", c.ID, data)
	default:
	}
}

// drainFrames discards everything currently queued for c.
func drainFrames(c *Client) {
	for {
		select {
		case <-c.send:
		default:
			return
		}
	}
}

// --- end-to-end helpers ---

// startServer runs the hub behind a real HTTP server and returns the ws URL.
func startServer(t *testing.T, h *Hub) (wsURL string) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/ws", h.ServeWS)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
}

func dial(t *testing.T, wsURL, query string) *websocket.Conn {
	t.Helper()
	if query != "" {
		wsURL += "?" + query
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readWire(t *testing.T, conn *websocket.Conn) *wireFrame {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f wireFrame
	require.NoError(t, json.Unmarshal(data, &f))
	return &f
}

// readUntil skips frames until one of the wanted type arrives.
func readUntil(t *testing.T, conn *websocket.Conn, frameType string) *wireFrame {
	t.Helper()
	for i := 0; i < 20; i++ {
		f := readWire(t, conn)
		if f.Type == frameType {
			return f
		}
	}
	t.Fatalf("never received a %s frame", frameType)
	return nil
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(v))
}
