package session

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/RoseWrightdev/Collab-Rooms/internal/v1/protocol"
)

func TestClient_Identity(t *testing.T) {
	h := newTestHub(t, &mockVerifier{})

	withUser := newTestClient(t, h, "alice", "alice")
	assert.Equal(t, "alice", withUser.Identity())

	anonymous := newTestClient(t, h, "uuid-42", "")
	assert.Equal(t, "uuid-42", anonymous.Identity())
}

func TestClient_HeartbeatMissBudget(t *testing.T) {
	h := newTestHub(t, &mockVerifier{})
	c := newTestClient(t, h, "alice", "alice")
	conn := c.conn.(*mockConn)

	// First tick finds the client alive: clears the flag, pings.
	require.True(t, c.heartbeat(3))
	assert.Equal(t, 1, conn.controlCount(websocket.PingMessage))

	// Silent ticks count misses until the budget is spent.
	require.True(t, c.heartbeat(3))
	require.True(t, c.heartbeat(3))
	assert.False(t, c.heartbeat(3))
}

func TestClient_PongResetsBudget(t *testing.T) {
	h := newTestHub(t, &mockVerifier{})
	c := newTestClient(t, h, "alice", "alice")

	require.True(t, c.heartbeat(3))
	require.True(t, c.heartbeat(3))

	c.pong()

	// Alive again: the next tick pings instead of counting a miss.
	for i := 0; i < 3; i++ {
		assert.True(t, c.heartbeat(3))
	}
}

func TestClient_WritePumpTerminatesDeadConnection(t *testing.T) {
	h := newTestHub(t, &mockVerifier{})
	c := newTestClient(t, h, "alice", "alice")
	conn := c.conn.(*mockConn)

	done := make(chan struct{})
	go func() {
		c.writePump(5*time.Millisecond, 2)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("write pump never terminated the silent connection")
	}

	assert.GreaterOrEqual(t, conn.controlCount(websocket.PingMessage), 1)
	assert.Equal(t, 1, conn.controlCount(websocket.CloseMessage))
	assert.True(t, conn.closed)
}

func TestClient_EnqueueDropsWhenQueueFull(t *testing.T) {
	h := newTestHub(t, &mockVerifier{})
	c := newTestClient(t, h, "alice", "alice")

	for i := 0; i < sendBufferSize+10; i++ {
		c.enqueue(protocol.NewError(protocol.ErrServerError, "x"))
	}

	// The queue holds exactly its capacity; the overflow was dropped, and
	// enqueue never blocked to tell us about it.
	assert.Len(t, c.send, sendBufferSize)
}

func TestClient_CloseIsIdempotent(t *testing.T) {
	h := newTestHub(t, &mockVerifier{})
	c := newTestClient(t, h, "alice", "alice")
	conn := c.conn.(*mockConn)

	c.close(websocket.CloseGoingAway, "going away")
	c.close(websocket.CloseGoingAway, "going away")

	assert.Equal(t, 1, conn.controlCount(websocket.CloseMessage))
	select {
	case <-c.done:
	default:
		t.Fatal("done channel not closed")
	}
}

func TestClient_ReadPumpCleansUpOnClose(t *testing.T) {
	h := newTestHub(t, &mockVerifier{})
	c := newTestClient(t, h, "alice", "alice")
	conn := c.conn.(*mockConn)

	finished := make(chan struct{})
	go func() {
		c.readPump()
		close(finished)
	}()

	// One frame flows through dispatch, then the transport dies.
	conn.readCh <- []byte(`{"type":"join","roomId":"r1"}`)
	close(conn.readCh)

	select {
	case <-finished:
	case <-time.After(2 * time.Second):
		t.Fatal("read pump never exited")
	}

	assert.Equal(t, 0, h.ConnectionCount())
	rooms, members := h.registry.Stats()
	assert.Equal(t, 0, rooms)
	assert.Equal(t, 0, members)
}
