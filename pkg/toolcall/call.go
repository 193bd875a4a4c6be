package toolcall

import (
	"fmt"
	"sync"
	"time"
)

// Request is one tool invocation as supplied by the upstream turn producer.
// The id is assigned upstream and must be unique within the batch.
type Request struct {
	ID   string                 `json:"id"`
	Tool string                 `json:"tool"`
	Args map[string]interface{} `json:"args"`
}

// Result is the terminal outcome of a single call record.
type Result struct {
	ID        string     `json:"id"`
	Tool      string     `json:"tool"`
	State     State      `json:"state"`
	Payload   interface{} `json:"payload,omitempty"`
	Error     *CallError `json:"error,omitempty"`
	StartedAt time.Time  `json:"started_at,omitempty"`
	EndedAt   time.Time  `json:"ended_at,omitempty"`
}

// Duration reports how long the executing phase lasted. Zero for calls that
// never started executing.
func (r Result) Duration() time.Duration {
	if r.StartedAt.IsZero() || r.EndedAt.IsZero() {
		return 0
	}
	return r.EndedAt.Sub(r.StartedAt)
}

// Call is the mutable per-invocation record tracked by the scheduler. All
// mutation goes through Transition, Finish, AppendOutput, and RequestAbort,
// which enforce the lifecycle invariants; callers never write fields directly.
type Call struct {
	mu sync.RWMutex

	id   string
	tool string
	args map[string]interface{}

	state          State
	liveOutput     []string
	result         *Result
	startedAt      time.Time
	endedAt        time.Time
	abortRequested bool
}

func newCall(req Request) *Call {
	return &Call{
		id:    req.ID,
		tool:  req.Tool,
		args:  req.Args,
		state: StateValidating,
	}
}

// ID returns the batch-scoped call identifier.
func (c *Call) ID() string { return c.id }

// Tool returns the name of the tool this call invokes.
func (c *Call) Tool() string { return c.tool }

// Args returns the structured arguments supplied by the model.
func (c *Call) Args() map[string]interface{} { return c.args }

// State returns the current lifecycle state.
func (c *Call) State() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Result returns the terminal result, or false while the call is still live.
func (c *Call) Result() (Result, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.result == nil {
		return Result{}, false
	}
	return *c.result, true
}

// LiveOutput returns a copy of the partial output chunks emitted so far.
func (c *Call) LiveOutput() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]string, len(c.liveOutput))
	copy(out, c.liveOutput)
	return out
}

// StartedAt returns when the call entered executing, zero if it never did.
func (c *Call) StartedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.startedAt
}

// EndedAt returns when the call left executing, zero if it never did.
func (c *Call) EndedAt() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.endedAt
}

// RequestAbort marks the call for cancellation. Terminal records ignore it.
func (c *Call) RequestAbort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state.IsTerminal() {
		return
	}
	c.abortRequested = true
}

// AbortRequested reports whether cancellation has been requested.
func (c *Call) AbortRequested() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.abortRequested
}

// Transition moves the record to a non-terminal state, validating the edge
// against the lifecycle graph. Terminal states are entered through Finish so
// the result is always set atomically with the state.
func (c *Call) Transition(to State) error {
	if to.IsTerminal() {
		return fmt.Errorf("call %s: terminal state %s requires Finish", c.id, to)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := validateTransition(c.state, to); err != nil {
		return fmt.Errorf("call %s: %w", c.id, err)
	}
	c.state = to
	if to == StateExecuting {
		c.startedAt = time.Now()
	}
	return nil
}

// Finish moves the record to a terminal state and records its result. The
// result's identity fields and timestamps are filled in from the record.
func (c *Call) Finish(state State, payload interface{}, callErr *CallError) error {
	if !state.IsTerminal() {
		return fmt.Errorf("call %s: Finish requires a terminal state, got %s", c.id, state)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := validateTransition(c.state, state); err != nil {
		return fmt.Errorf("call %s: %w", c.id, err)
	}
	if c.state == StateExecuting {
		c.endedAt = time.Now()
	}
	c.state = state
	c.result = &Result{
		ID:        c.id,
		Tool:      c.tool,
		State:     state,
		Payload:   payload,
		Error:     callErr,
		StartedAt: c.startedAt,
		EndedAt:   c.endedAt,
	}
	return nil
}

// AppendOutput records one partial output chunk. Output is only accepted
// while the call is executing; it is frozen in every other state.
func (c *Call) AppendOutput(chunk string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != StateExecuting {
		return fmt.Errorf("call %s: output rejected in state %s", c.id, c.state)
	}
	c.liveOutput = append(c.liveOutput, chunk)
	return nil
}
