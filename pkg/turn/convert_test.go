package turn

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolcall"
	"github.com/harun/dispatch/pkg/toolregistry"
)

func TestToolSpecs_DeclaresEveryTool(t *testing.T) {
	registry := toolregistry.New()
	require.NoError(t, registry.Register(toolregistry.Definition{
		Name:        "file-stat",
		Description: "returns file metadata",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Parameters: []toolregistry.Parameter{
			{Name: "path", Type: "string", Description: "file path", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}))
	require.NoError(t, registry.Register(toolregistry.Definition{
		Name:        "clock",
		Description: "returns the current time",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, nil
		},
	}))

	specs, err := ToolSpecs(registry)
	require.NoError(t, err)
	require.Len(t, specs, 2)

	byName := map[string]ToolSpec{}
	for _, spec := range specs {
		byName[spec.Name] = spec
	}

	stat := byName["file-stat"]
	assert.Equal(t, "returns file metadata", stat.Description)
	assert.Equal(t, "object", stat.InputSchema["type"])
	props, ok := stat.InputSchema["properties"].(map[string]interface{})
	require.True(t, ok)
	assert.Contains(t, props, "path")
	assert.Equal(t, []string{"path"}, stat.InputSchema["required"])

	clock := byName["clock"]
	assert.NotContains(t, clock.InputSchema, "required")
}

func TestRequestsFrom_PreservesOrder(t *testing.T) {
	uses := []ToolUse{
		{ID: "u1", Name: "clock", Args: nil},
		{ID: "u2", Name: "file-stat", Args: map[string]interface{}{"path": "/etc/hosts"}},
		{ID: "u3", Name: "clock", Args: nil},
	}

	requests := RequestsFrom(uses)
	require.Len(t, requests, 3)
	assert.Equal(t, "u1", requests[0].ID)
	assert.Equal(t, "u2", requests[1].ID)
	assert.Equal(t, "u3", requests[2].ID)
	assert.Equal(t, "file-stat", requests[1].Tool)
	assert.Equal(t, "/etc/hosts", requests[1].Args["path"])
}

func TestResultMessages_RenderOutcomesInOrder(t *testing.T) {
	result := &scheduler.BatchResult{
		BatchID: "b1",
		Results: []toolcall.Result{
			{ID: "u1", Tool: "clock", State: toolcall.StateSuccess, Payload: "12:00"},
			{ID: "u2", Tool: "lookup", State: toolcall.StateSuccess, Payload: map[string]interface{}{"hits": 3}},
			{ID: "u3", Tool: "rm", State: toolcall.StateCancelled, Error: toolcall.NewError(toolcall.ErrorKindUserDenied, "rm", "denied by user")},
			{ID: "u4", Tool: "boom", State: toolcall.StateError, Error: toolcall.NewError(toolcall.ErrorKindExecutorFailure, "boom", "exploded")},
		},
	}

	messages := ResultMessages(result)
	require.Len(t, messages, 4)

	assert.Equal(t, RoleTool, messages[0].Role)
	assert.Equal(t, "u1", messages[0].ToolUseID)
	assert.Equal(t, "12:00", messages[0].Content)
	assert.False(t, messages[0].IsError)

	assert.JSONEq(t, `{"hits":3}`, messages[1].Content)

	assert.True(t, messages[2].IsError)
	assert.Contains(t, messages[2].Content, "user_denied")

	assert.True(t, messages[3].IsError)
	assert.Contains(t, messages[3].Content, "exploded")
}

func TestIsRetryable(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{name: "nil", err: nil, want: false},
		{name: "rate limit", err: errors.New("request failed: 429 Too Many Requests"), want: true},
		{name: "server error", err: errors.New("upstream returned 503"), want: true},
		{name: "connection reset", err: errors.New("read tcp: ECONNRESET"), want: true},
		{name: "auth failure", err: errors.New("401 unauthorized"), want: false},
		{name: "bad request", err: errors.New("invalid model name"), want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsRetryable(tt.err))
		})
	}
}
