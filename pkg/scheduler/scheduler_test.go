package scheduler

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harun/dispatch/pkg/approval"
	"github.com/harun/dispatch/pkg/toolcall"
	"github.com/harun/dispatch/pkg/toolregistry"
)

// scriptedApproval replays a fixed list of decisions and counts prompts.
type scriptedApproval struct {
	mu        sync.Mutex
	decisions []approval.Decision
	asks      int
}

func (s *scriptedApproval) Ask(ctx context.Context, prompt approval.Prompt) (approval.Decision, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.asks++
	if len(s.decisions) == 0 {
		return approval.DecisionDeny, nil
	}
	d := s.decisions[0]
	s.decisions = s.decisions[1:]
	return d, nil
}

func (s *scriptedApproval) askCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.asks
}

func echoTool(name string, sideEffect toolregistry.SideEffect) toolregistry.Definition {
	return toolregistry.Definition{
		Name:        name,
		Description: "echoes its text argument",
		SideEffect:  sideEffect,
		Parameters: []toolregistry.Parameter{
			{Name: "text", Type: "string", Description: "text to echo"},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			text, _ := args["text"].(string)
			return text, nil
		},
	}
}

func newTestScheduler(t *testing.T, handler approval.Handler, defs ...toolregistry.Definition) *Scheduler {
	t.Helper()
	registry := toolregistry.New()
	for _, def := range defs {
		require.NoError(t, registry.Register(def))
	}
	sched := New(registry, approval.NewGate(approval.NewSession(), handler))
	t.Cleanup(sched.Close)
	return sched
}

func resultFor(t *testing.T, result *BatchResult, id string) toolcall.Result {
	t.Helper()
	for _, res := range result.Results {
		if res.ID == id {
			return res
		}
	}
	t.Fatalf("no result for call %s", id)
	return toolcall.Result{}
}

func TestScheduler_RunBatchPreservesRequestOrder(t *testing.T) {
	sched := newTestScheduler(t, approval.AutoApprove{}, echoTool("echo", toolregistry.SideEffectReadOnly))

	result, err := sched.RunBatch(context.Background(), []toolcall.Request{
		{ID: "c1", Tool: "echo", Args: map[string]interface{}{"text": "one"}},
		{ID: "c2", Tool: "echo", Args: map[string]interface{}{"text": "two"}},
		{ID: "c3", Tool: "echo", Args: map[string]interface{}{"text": "three"}},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 3)

	assert.Equal(t, []string{"c1", "c2", "c3"}, []string{result.Results[0].ID, result.Results[1].ID, result.Results[2].ID})
	for i, payload := range []string{"one", "two", "three"} {
		assert.Equal(t, toolcall.StateSuccess, result.Results[i].State)
		assert.Equal(t, payload, result.Results[i].Payload)
		assert.False(t, result.Results[i].StartedAt.IsZero())
		assert.False(t, result.Results[i].EndedAt.IsZero())
	}
	assert.False(t, result.Failed())
}

func TestScheduler_EmptyBatchRejected(t *testing.T) {
	sched := newTestScheduler(t, approval.AutoApprove{}, echoTool("echo", toolregistry.SideEffectReadOnly))

	result, err := sched.RunBatch(context.Background(), nil)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, toolcall.ErrInvalidRequest)
}

func TestScheduler_UnknownToolFailsOnlyThatCall(t *testing.T) {
	sched := newTestScheduler(t, approval.AutoApprove{}, echoTool("echo", toolregistry.SideEffectReadOnly))

	result, err := sched.RunBatch(context.Background(), []toolcall.Request{
		{ID: "good", Tool: "echo", Args: map[string]interface{}{"text": "hi"}},
		{ID: "bad", Tool: "no-such-tool"},
	})
	require.NoError(t, err)

	good := resultFor(t, result, "good")
	assert.Equal(t, toolcall.StateSuccess, good.State)

	bad := resultFor(t, result, "bad")
	assert.Equal(t, toolcall.StateError, bad.State)
	require.NotNil(t, bad.Error)
	assert.Equal(t, toolcall.ErrorKindUnknownTool, bad.Error.Kind)
	assert.True(t, bad.StartedAt.IsZero(), "a call that never executed has no execution window")
}

func TestScheduler_SchemaValidationFailureSkipsHandler(t *testing.T) {
	var invoked atomic.Int64
	strict := toolregistry.Definition{
		Name:        "strict",
		Description: "requires a path argument",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Parameters: []toolregistry.Parameter{
			{Name: "path", Type: "string", Description: "file path", Required: true},
		},
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			invoked.Add(1)
			return nil, nil
		},
	}
	sched := newTestScheduler(t, approval.AutoApprove{}, strict)

	result, err := sched.RunBatch(context.Background(), []toolcall.Request{
		{ID: "c1", Tool: "strict", Args: map[string]interface{}{"wrong": true}},
	})
	require.NoError(t, err)

	res := resultFor(t, result, "c1")
	assert.Equal(t, toolcall.StateError, res.State)
	require.NotNil(t, res.Error)
	assert.Equal(t, toolcall.ErrorKindSchemaValidation, res.Error.Kind)
	assert.Equal(t, int64(0), invoked.Load())
}

func TestScheduler_DeniedCallCancelledSiblingsRun(t *testing.T) {
	sched := newTestScheduler(t, approval.DenyAll{},
		echoTool("read", toolregistry.SideEffectReadOnly),
		echoTool("write", toolregistry.SideEffectMutating),
	)

	result, err := sched.RunBatch(context.Background(), []toolcall.Request{
		{ID: "r1", Tool: "read", Args: map[string]interface{}{"text": "safe"}},
		{ID: "w1", Tool: "write", Args: map[string]interface{}{"text": "blocked"}},
	})
	require.NoError(t, err)

	read := resultFor(t, result, "r1")
	assert.Equal(t, toolcall.StateSuccess, read.State)

	write := resultFor(t, result, "w1")
	assert.Equal(t, toolcall.StateCancelled, write.State)
	require.NotNil(t, write.Error)
	assert.Equal(t, toolcall.ErrorKindUserDenied, write.Error.Kind)
	assert.True(t, write.StartedAt.IsZero())
}

func TestScheduler_ApproveAlwaysPersistsAcrossBatches(t *testing.T) {
	script := &scriptedApproval{decisions: []approval.Decision{approval.DecisionApproveAlways}}
	sched := newTestScheduler(t, script, echoTool("write", toolregistry.SideEffectMutating))

	requests := []toolcall.Request{
		{ID: "c1", Tool: "write", Args: map[string]interface{}{"text": "first"}},
	}
	result, err := sched.RunBatch(context.Background(), requests)
	require.NoError(t, err)
	assert.Equal(t, toolcall.StateSuccess, resultFor(t, result, "c1").State)
	assert.Equal(t, 1, script.askCount())

	result, err = sched.RunBatch(context.Background(), requests)
	require.NoError(t, err)
	assert.Equal(t, toolcall.StateSuccess, resultFor(t, result, "c1").State)
	assert.Equal(t, 1, script.askCount(), "allowlisted tool must not prompt again")
	assert.True(t, sched.Gate().Session().Allowed("write"))
}

func TestScheduler_RejectsConcurrentBatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocker := toolregistry.Definition{
		Name:        "blocker",
		Description: "blocks until released",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			close(started)
			<-release
			return "done", nil
		},
	}
	sched := newTestScheduler(t, approval.AutoApprove{}, blocker)

	var firstResult *BatchResult
	var firstErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		firstResult, firstErr = sched.RunBatch(context.Background(), []toolcall.Request{{ID: "c1", Tool: "blocker"}})
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("first batch never started executing")
	}
	assert.True(t, sched.Running())

	_, err := sched.RunBatch(context.Background(), []toolcall.Request{{ID: "c2", Tool: "blocker"}})
	assert.ErrorIs(t, err, toolcall.ErrInvalidRequest)

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("first batch never completed")
	}
	require.NoError(t, firstErr)
	assert.Equal(t, toolcall.StateSuccess, resultFor(t, firstResult, "c1").State)
	assert.False(t, sched.Running())
}

func TestScheduler_CancelAllWaitsForExecutorAcknowledgment(t *testing.T) {
	started := make(chan struct{})
	ack := make(chan struct{})
	locked := toolregistry.Definition{
		Name:        "locked",
		Description: "holds the exclusive window until cancelled",
		SideEffect:  toolregistry.SideEffectMutating,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			close(started)
			<-ctx.Done()
			<-ack
			return nil, ctx.Err()
		},
	}
	sched := newTestScheduler(t, approval.AutoApprove{},
		locked,
		echoTool("read", toolregistry.SideEffectReadOnly),
	)

	var result *BatchResult
	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		result, runErr = sched.RunBatch(context.Background(), []toolcall.Request{
			{ID: "l1", Tool: "locked"},
			{ID: "r1", Tool: "read", Args: map[string]interface{}{"text": "queued"}},
		})
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("exclusive call never started executing")
	}

	sched.CancelAll("user interrupt")

	select {
	case <-done:
		t.Fatal("batch completed before the executor acknowledged cancellation")
	case <-time.After(50 * time.Millisecond):
	}

	close(ack)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("batch never completed after acknowledgment")
	}
	require.NoError(t, runErr)

	lockedRes := resultFor(t, result, "l1")
	assert.Equal(t, toolcall.StateCancelled, lockedRes.State)
	require.NotNil(t, lockedRes.Error)
	assert.Equal(t, toolcall.ErrorKindCancelled, lockedRes.Error.Kind)
	assert.False(t, lockedRes.StartedAt.IsZero(), "the executing call ran before cancellation")

	readRes := resultFor(t, result, "r1")
	assert.Equal(t, toolcall.StateCancelled, readRes.State)
	assert.True(t, readRes.StartedAt.IsZero(), "the queued call never reached execution")
}

func TestScheduler_CancelAllIdempotent(t *testing.T) {
	sched := newTestScheduler(t, approval.AutoApprove{}, echoTool("echo", toolregistry.SideEffectReadOnly))

	sched.CancelAll("nothing running")

	result, err := sched.RunBatch(context.Background(), []toolcall.Request{
		{ID: "c1", Tool: "echo", Args: map[string]interface{}{"text": "hi"}},
	})
	require.NoError(t, err)
	assert.Equal(t, toolcall.StateSuccess, resultFor(t, result, "c1").State)

	sched.CancelAll("already complete")
	sched.CancelAll("still complete")
	assert.False(t, sched.Running())
}

func TestScheduler_CompletionCallbackFiresOnce(t *testing.T) {
	sched := newTestScheduler(t, approval.AutoApprove{}, echoTool("echo", toolregistry.SideEffectReadOnly))

	var calls atomic.Int64
	var captured BatchResult
	result, err := sched.RunBatch(context.Background(),
		[]toolcall.Request{{ID: "c1", Tool: "echo", Args: map[string]interface{}{"text": "hi"}}},
		WithCompletion(func(r BatchResult) {
			calls.Add(1)
			captured = r
		}),
	)
	require.NoError(t, err)
	assert.Equal(t, int64(1), calls.Load())
	assert.Equal(t, result.BatchID, captured.BatchID)
	require.Len(t, captured.Results, 1)
	assert.Equal(t, toolcall.StateSuccess, captured.Results[0].State)
}

func TestScheduler_LiveOutputStreamsInOrder(t *testing.T) {
	streaming := toolregistry.Definition{
		Name:        "streaming",
		Description: "emits progress lines",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			toolregistry.Emit(ctx, "step 1")
			toolregistry.Emit(ctx, "step 2")
			toolregistry.Emit(ctx, "step 3")
			return "finished", nil
		},
	}
	sched := newTestScheduler(t, approval.AutoApprove{}, streaming)

	obs := &recordingObserver{}
	result, err := sched.RunBatch(context.Background(),
		[]toolcall.Request{{ID: "c1", Tool: "streaming"}},
		WithObserver(obs),
	)
	require.NoError(t, err)
	assert.Equal(t, "finished", resultFor(t, result, "c1").Payload)

	var chunks []string
	for _, ev := range obs.snapshot() {
		if len(ev) > 10 && ev[:10] == "output:c1:" {
			chunks = append(chunks, ev[10:])
		}
	}
	assert.Equal(t, []string{"step 1", "step 2", "step 3"}, chunks)
}

func TestScheduler_ExecutorFailureIsolated(t *testing.T) {
	failing := toolregistry.Definition{
		Name:        "failing",
		Description: "always fails",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			return nil, errors.New("disk on fire")
		},
	}
	sched := newTestScheduler(t, approval.AutoApprove{},
		failing,
		echoTool("echo", toolregistry.SideEffectReadOnly),
	)

	result, err := sched.RunBatch(context.Background(), []toolcall.Request{
		{ID: "f1", Tool: "failing"},
		{ID: "e1", Tool: "echo", Args: map[string]interface{}{"text": "fine"}},
	})
	require.NoError(t, err)

	failed := resultFor(t, result, "f1")
	assert.Equal(t, toolcall.StateError, failed.State)
	require.NotNil(t, failed.Error)
	assert.Equal(t, toolcall.ErrorKindExecutorFailure, failed.Error.Kind)
	assert.Contains(t, failed.Error.Error(), "disk on fire")
	assert.False(t, failed.StartedAt.IsZero())

	assert.Equal(t, toolcall.StateSuccess, resultFor(t, result, "e1").State)
	assert.True(t, result.Failed())
}

func TestScheduler_PerRunObserverDetaches(t *testing.T) {
	sched := newTestScheduler(t, approval.AutoApprove{}, echoTool("echo", toolregistry.SideEffectReadOnly))
	requests := []toolcall.Request{{ID: "c1", Tool: "echo", Args: map[string]interface{}{"text": "hi"}}}

	obs := &recordingObserver{}
	_, err := sched.RunBatch(context.Background(), requests, WithObserver(obs))
	require.NoError(t, err)
	firstCount := len(obs.snapshot())
	require.Greater(t, firstCount, 0)

	_, err = sched.RunBatch(context.Background(), requests)
	require.NoError(t, err)
	assert.Equal(t, firstCount, len(obs.snapshot()), "detached observer must not see later batches")
}

func TestScheduler_PersistentObserverSeesEveryBatch(t *testing.T) {
	sched := newTestScheduler(t, approval.AutoApprove{}, echoTool("echo", toolregistry.SideEffectReadOnly))
	requests := []toolcall.Request{{ID: "c1", Tool: "echo", Args: map[string]interface{}{"text": "hi"}}}

	obs := &recordingObserver{}
	unsubscribe := sched.Subscribe(obs)
	defer unsubscribe()

	_, err := sched.RunBatch(context.Background(), requests)
	require.NoError(t, err)
	_, err = sched.RunBatch(context.Background(), requests)
	require.NoError(t, err)

	obs.mu.Lock()
	completions := len(obs.completed)
	obs.mu.Unlock()
	assert.Equal(t, 2, completions)
}

func TestScheduler_ActivitySignalTracksBatch(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	blocker := toolregistry.Definition{
		Name:        "blocker",
		Description: "blocks until released",
		SideEffect:  toolregistry.SideEffectReadOnly,
		Handler: func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
			close(started)
			<-release
			return nil, nil
		},
	}
	sched := newTestScheduler(t, approval.AutoApprove{}, blocker)

	assert.False(t, sched.Activity().Active())

	var runErr error
	done := make(chan struct{})
	go func() {
		defer close(done)
		_, runErr = sched.RunBatch(context.Background(), []toolcall.Request{{ID: "c1", Tool: "blocker"}})
	}()

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("batch never started")
	}
	assert.True(t, sched.Activity().Active())

	close(release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("batch never completed")
	}
	require.NoError(t, runErr)
	assert.False(t, sched.Activity().Active())
}

// syncBuffer serializes log writes from concurrent per-call goroutines.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestScheduler_LogLinesCarrySingleCallID(t *testing.T) {
	var buf syncBuffer
	registry := toolregistry.New()
	require.NoError(t, registry.Register(echoTool("echo", toolregistry.SideEffectReadOnly)))

	sched := New(registry, approval.NewGate(approval.NewSession(), approval.AutoApprove{}),
		WithLogger(zerolog.New(&buf)))
	t.Cleanup(sched.Close)

	result, err := sched.RunBatch(context.Background(), []toolcall.Request{
		{ID: "c1", Tool: "echo", Args: map[string]interface{}{"text": "hi"}},
		{ID: "c2", Tool: "missing"},
	})
	require.NoError(t, err)
	require.Len(t, result.Results, 2)

	logs := buf.String()
	require.Contains(t, logs, `"call_id":"c1"`)
	require.Contains(t, logs, `"call_id":"c2"`)
	for _, line := range strings.Split(logs, "\n") {
		assert.LessOrEqual(t, strings.Count(line, `"call_id"`), 1,
			"log line repeats the call_id key: %s", line)
	}
}
