package gateway

import (
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolcall"
)

func newBridgeFixture(t *testing.T) (*EventBridge, *websocket.Conn, func()) {
	t.Helper()

	serverConn, clientConn, cleanup := websocketConnPair(t)

	registry := NewClientRegistry()
	registry.Add(&Client{
		ID:            "client-1",
		Conn:          serverConn,
		Authenticated: true,
	})

	broadcaster := NewEventBroadcaster(registry, zerolog.Nop())
	return NewEventBridge(broadcaster), clientConn, cleanup
}

func readEvent(t *testing.T, conn *websocket.Conn) EventMessage {
	t.Helper()

	var evt EventMessage
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	require.NoError(t, conn.ReadJSON(&evt))
	return evt
}

func TestEventBridge_OnStateChange(t *testing.T) {
	bridge, clientConn, cleanup := newBridgeFixture(t)
	defer cleanup()

	bridge.OnStateChange(scheduler.StateChange{
		BatchID: "batch-1",
		CallID:  "call-1",
		Tool:    "file_stat",
		From:    toolcall.StateScheduled,
		To:      toolcall.StateExecuting,
	})

	evt := readEvent(t, clientConn)
	assert.Equal(t, "call.state_changed", evt.Event)
	assert.Equal(t, StreamTypeTool, evt.Stream)
	assert.Equal(t, "executing", evt.Phase)
	assert.Equal(t, "batch-1", evt.BatchID)
	assert.Equal(t, "call-1", evt.CallID)

	data := evt.Data.(map[string]interface{})
	assert.Equal(t, "file_stat", data["tool"])
	assert.Equal(t, "scheduled", data["from"])
	assert.Equal(t, "executing", data["to"])
}

func TestEventBridge_OnOutput(t *testing.T) {
	bridge, clientConn, cleanup := newBridgeFixture(t)
	defer cleanup()

	bridge.OnOutput(scheduler.OutputChunk{
		BatchID: "batch-1",
		CallID:  "call-1",
		Tool:    "long_task",
		Chunk:   "progress 40%",
	})

	evt := readEvent(t, clientConn)
	assert.Equal(t, "call.output", evt.Event)
	assert.Equal(t, StreamTypeTool, evt.Stream)
	assert.Equal(t, "output", evt.Phase)
	assert.Equal(t, "call-1", evt.CallID)

	data := evt.Data.(map[string]interface{})
	assert.Equal(t, "progress 40%", data["chunk"])
}

func TestEventBridge_OnBatchComplete(t *testing.T) {
	bridge, clientConn, cleanup := newBridgeFixture(t)
	defer cleanup()

	started := time.Now()
	bridge.OnBatchComplete(scheduler.BatchResult{
		BatchID: "batch-1",
		Results: []toolcall.Result{
			{ID: "c1", Tool: "clock", State: toolcall.StateSuccess, Payload: "12:00"},
			{ID: "c2", Tool: "rmdir", State: toolcall.StateCancelled, Error: toolcall.NewError(toolcall.ErrorKindUserDenied, "rmdir", "denied by user")},
		},
		StartedAt: started,
		EndedAt:   started.Add(120 * time.Millisecond),
	})

	evt := readEvent(t, clientConn)
	assert.Equal(t, "batch.completed", evt.Event)
	assert.Equal(t, StreamTypeLifecycle, evt.Stream)
	assert.Equal(t, "batch-1", evt.BatchID)

	data := evt.Data.(map[string]interface{})
	assert.EqualValues(t, 120, data["duration_ms"])

	results := data["results"].([]interface{})
	require.Len(t, results, 2)

	first := results[0].(map[string]interface{})
	assert.Equal(t, "c1", first["id"])
	assert.Equal(t, "success", first["state"])
	assert.Equal(t, "12:00", first["payload"])
	assert.NotContains(t, first, "error")

	second := results[1].(map[string]interface{})
	assert.Equal(t, "c2", second["id"])
	assert.Equal(t, "cancelled", second["state"])
	errInfo := second["error"].(map[string]interface{})
	assert.Equal(t, "user_denied", errInfo["kind"])
	assert.Equal(t, "denied by user", errInfo["message"])
}
