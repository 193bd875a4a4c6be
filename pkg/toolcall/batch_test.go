package toolcall

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewBatch_OrderPreserved(t *testing.T) {
	batch, err := NewBatch([]Request{
		{ID: "c1", Tool: "read_file", Args: map[string]interface{}{"path": "a.txt"}},
		{ID: "c2", Tool: "write_file", Args: map[string]interface{}{"path": "b.txt"}},
		{ID: "c3", Tool: "read_file", Args: map[string]interface{}{"path": "c.txt"}},
	})

	require.NoError(t, err)
	assert.NotEmpty(t, batch.ID())
	assert.Equal(t, 3, batch.Len())

	records := batch.Records()
	assert.Equal(t, "c1", records[0].ID())
	assert.Equal(t, "c2", records[1].ID())
	assert.Equal(t, "c3", records[2].ID())
}

func TestNewBatch_InvalidInput(t *testing.T) {
	tests := []struct {
		name     string
		requests []Request
	}{
		{
			name:     "empty sequence",
			requests: nil,
		},
		{
			name: "duplicate id",
			requests: []Request{
				{ID: "c1", Tool: "read_file"},
				{ID: "c1", Tool: "write_file"},
			},
		},
		{
			name: "blank id",
			requests: []Request{
				{ID: "", Tool: "read_file"},
			},
		},
		{
			name: "blank tool name",
			requests: []Request{
				{ID: "c1", Tool: ""},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			batch, err := NewBatch(tt.requests)
			assert.Nil(t, batch)
			assert.ErrorIs(t, err, ErrInvalidRequest)
		})
	}
}

func TestBatch_RecordLookup(t *testing.T) {
	batch, err := NewBatch([]Request{
		{ID: "c1", Tool: "read_file"},
	})
	require.NoError(t, err)

	rec, err := batch.Record("c1")
	require.NoError(t, err)
	assert.Equal(t, "read_file", rec.Tool())
	assert.Equal(t, StateValidating, rec.State())

	_, err = batch.Record("missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestBatch_CompleteOnlyWhenAllTerminal(t *testing.T) {
	batch, err := NewBatch([]Request{
		{ID: "c1", Tool: "read_file"},
		{ID: "c2", Tool: "read_file"},
	})
	require.NoError(t, err)
	assert.False(t, batch.Complete())

	first, _ := batch.Record("c1")
	require.NoError(t, first.Transition(StateScheduled))
	require.NoError(t, first.Transition(StateExecuting))
	require.NoError(t, first.Finish(StateSuccess, "ok", nil))
	assert.False(t, batch.Complete())

	second, _ := batch.Record("c2")
	require.NoError(t, second.Transition(StateScheduled))
	require.NoError(t, second.Finish(StateCancelled, nil, NewError(ErrorKindCancelled, "read_file", "aborted")))
	assert.True(t, batch.Complete())
}

func TestBatch_ResultsInRequestOrder(t *testing.T) {
	batch, err := NewBatch([]Request{
		{ID: "c1", Tool: "read_file"},
		{ID: "c2", Tool: "write_file"},
		{ID: "c3", Tool: "read_file"},
	})
	require.NoError(t, err)

	// Finish out of order; results must still come back as c1, c2, c3.
	third, _ := batch.Record("c3")
	require.NoError(t, third.Transition(StateScheduled))
	require.NoError(t, third.Transition(StateExecuting))
	require.NoError(t, third.Finish(StateSuccess, "third", nil))

	first, _ := batch.Record("c1")
	require.NoError(t, first.Transition(StateScheduled))
	require.NoError(t, first.Transition(StateExecuting))
	require.NoError(t, first.Finish(StateError, nil, NewError(ErrorKindExecutorFailure, "read_file", "boom")))

	second, _ := batch.Record("c2")
	require.NoError(t, second.Transition(StateAwaitingApproval))
	require.NoError(t, second.Finish(StateCancelled, nil, NewError(ErrorKindUserDenied, "write_file", "denied")))

	results := batch.Results()
	require.Len(t, results, 3)
	assert.Equal(t, "c1", results[0].ID)
	assert.Equal(t, StateError, results[0].State)
	assert.Equal(t, "c2", results[1].ID)
	assert.Equal(t, StateCancelled, results[1].State)
	assert.Equal(t, "c3", results[2].ID)
	assert.Equal(t, "third", results[2].Payload)
}

func TestCallError_KindMapping(t *testing.T) {
	tests := []struct {
		name  string
		kind  ErrorKind
		state State
	}{
		{name: "user denied cancels", kind: ErrorKindUserDenied, state: StateCancelled},
		{name: "cancelled cancels", kind: ErrorKindCancelled, state: StateCancelled},
		{name: "executor failure errors", kind: ErrorKindExecutorFailure, state: StateError},
		{name: "schema validation errors", kind: ErrorKindSchemaValidation, state: StateError},
		{name: "unknown tool errors", kind: ErrorKindUnknownTool, state: StateError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			callErr := NewError(tt.kind, "some_tool", "detail")
			assert.Equal(t, tt.state, callErr.TerminalState())
			assert.Equal(t, tt.kind, KindOf(callErr))
		})
	}
}

func TestCallError_SentinelMatching(t *testing.T) {
	err := WrapError(ErrorKindUserDenied, "write_file", errors.New("user said no"))
	assert.ErrorIs(t, err, ErrUserDenied)
	assert.NotErrorIs(t, err, ErrCancelled)

	var ce *CallError
	require.ErrorAs(t, err, &ce)
	assert.Equal(t, "write_file", ce.Tool)
}

func TestKindOf_UnclassifiedDefaultsToExecutorFailure(t *testing.T) {
	assert.Equal(t, ErrorKindExecutorFailure, KindOf(errors.New("some tool blew up")))
}
