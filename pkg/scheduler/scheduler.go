package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"github.com/harun/dispatch/internal/observability"
	"github.com/harun/dispatch/internal/tracing"
	"github.com/harun/dispatch/pkg/approval"
	"github.com/harun/dispatch/pkg/toolcall"
	"github.com/harun/dispatch/pkg/toolregistry"
)

const tracerName = "dispatch.scheduler"

// ErrBusy rejects RunBatch while another batch is still in flight. It
// wraps toolcall.ErrInvalidRequest, so callers matching on either
// sentinel see it.
var ErrBusy = fmt.Errorf("%w: a batch is already running", toolcall.ErrInvalidRequest)

// Scheduler owns batch execution. A single scheduler serves one session: it
// runs at most one batch at a time while the approval gate's allowlist and
// any persistent observers live across batches.
type Scheduler struct {
	registry *toolregistry.Registry
	gate     *approval.Gate
	logger   zerolog.Logger
	notifier *notifier
	activity *ActivitySignal

	mu          sync.Mutex
	running     bool
	batch       *toolcall.Batch
	callCancels map[string]context.CancelFunc
	cancelled   bool
}

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger overrides the logger used for batch lifecycle events.
func WithLogger(logger zerolog.Logger) Option {
	return func(s *Scheduler) {
		s.logger = logger
	}
}

// New creates a scheduler backed by the given tool registry and approval
// gate. Call Close when the session ends to stop the event dispatcher.
func New(registry *toolregistry.Registry, gate *approval.Gate, opts ...Option) *Scheduler {
	observability.EnsureRegistered()

	s := &Scheduler{
		registry: registry,
		gate:     gate,
		logger:   log.Logger,
		notifier: newNotifier(),
		activity: &ActivitySignal{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Close stops the event dispatch goroutine. The scheduler must not be used
// afterwards.
func (s *Scheduler) Close() {
	s.notifier.close()
}

// Activity exposes the foreground-activity signal for rendering layers.
func (s *Scheduler) Activity() *ActivitySignal {
	return s.activity
}

// Gate returns the approval gate the scheduler consults before exclusive
// calls.
func (s *Scheduler) Gate() *approval.Gate {
	return s.gate
}

// Registry returns the tool registry batches execute against.
func (s *Scheduler) Registry() *toolregistry.Registry {
	return s.registry
}

// Subscribe registers a persistent observer that outlives individual
// batches. The returned function removes it.
func (s *Scheduler) Subscribe(o Observer) func() {
	return s.notifier.subscribe(o)
}

// Running reports whether a batch is currently in flight.
func (s *Scheduler) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// runConfig collects per-batch options.
type runConfig struct {
	observers  []Observer
	completion func(BatchResult)
}

// RunOption configures a single RunBatch invocation.
type RunOption func(*runConfig)

// WithObserver attaches an observer for the duration of one batch. It is
// detached automatically after OnBatchComplete.
func WithObserver(o Observer) RunOption {
	return func(cfg *runConfig) {
		cfg.observers = append(cfg.observers, o)
	}
}

// WithCompletion registers a callback invoked exactly once with the final
// batch result, after all records are terminal and all events delivered.
func WithCompletion(cb func(BatchResult)) RunOption {
	return func(cfg *runConfig) {
		cfg.completion = cb
	}
}

// RunBatch validates, approves, schedules and executes every request, then
// returns the aggregate result in request order. It blocks until each record
// reaches a terminal state; a failed or denied record never cancels its
// siblings. Only one batch may run at a time.
func (s *Scheduler) RunBatch(ctx context.Context, requests []toolcall.Request, opts ...RunOption) (*BatchResult, error) {
	cfg := runConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}

	batch, err := toolcall.NewBatch(requests)
	if err != nil {
		return nil, err
	}

	batchCtx := tracing.NewBatchContext(ctx, batch.ID())

	type callRuntime struct {
		rec    *toolcall.Call
		ctx    context.Context
		cancel context.CancelFunc
		seq    int
	}

	records := batch.Records()
	runtimes := make([]*callRuntime, len(records))
	cancels := make(map[string]context.CancelFunc, len(records))
	for i, rec := range records {
		cctx, cancel := context.WithCancel(batchCtx)
		cctx = tracing.NewCallContext(cctx, rec.ID())
		runtimes[i] = &callRuntime{rec: rec, ctx: cctx, cancel: cancel, seq: i}
		cancels[rec.ID()] = cancel
	}

	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		for _, rt := range runtimes {
			rt.cancel()
		}
		return nil, ErrBusy
	}
	s.running = true
	s.batch = batch
	s.callCancels = cancels
	s.cancelled = false
	s.mu.Unlock()

	batchCtx, span := tracing.StartSpan(
		batchCtx,
		tracerName,
		"scheduler.run_batch",
		attribute.Int("batch_size", batch.Len()),
	)
	defer span.End()

	logger := tracing.LoggerFromContext(batchCtx, s.logger)
	logger.Info().
		Int("calls", batch.Len()).
		Msg("Batch started")

	detach := make([]func(), 0, len(cfg.observers))
	for _, o := range cfg.observers {
		detach = append(detach, s.notifier.subscribe(o))
	}

	s.activity.Begin()
	observability.RecordBatchStart(batch.Len())
	startedAt := time.Now()

	admission := newAdmissionController()
	var g errgroup.Group
	for _, rt := range runtimes {
		rt := rt
		g.Go(func() error {
			s.driveCall(rt.ctx, batch.ID(), rt.rec, rt.seq, admission)
			return nil
		})
	}
	_ = g.Wait()

	endedAt := time.Now()
	for _, rt := range runtimes {
		rt.cancel()
	}

	result := BatchResult{
		BatchID:   batch.ID(),
		Results:   batch.Results(),
		StartedAt: startedAt,
		EndedAt:   endedAt,
	}

	s.mu.Lock()
	wasCancelled := s.cancelled
	s.running = false
	s.batch = nil
	s.callCancels = nil
	s.mu.Unlock()

	s.notifier.drain()
	s.notifier.complete(result)
	for _, d := range detach {
		d()
	}
	if cfg.completion != nil {
		cfg.completion(result)
	}
	s.activity.End()

	observability.RecordBatchCompletion(endedAt.Sub(startedAt), wasCancelled)
	counts := result.Counts()
	logger.Info().
		Dur("duration", result.Duration()).
		Int("succeeded", counts[toolcall.StateSuccess]).
		Int("failed", counts[toolcall.StateError]).
		Int("cancelled", counts[toolcall.StateCancelled]).
		Msg("Batch complete")

	return &result, nil
}

// CancelAll aborts the batch in flight, if any. Queued records turn
// cancelled as soon as their goroutine observes the flag; executing records
// turn cancelled only after their handler returns. It never blocks for
// completion and is safe to call repeatedly or with no batch running.
func (s *Scheduler) CancelAll(reason string) {
	s.mu.Lock()
	batch := s.batch
	cancels := s.callCancels
	if batch == nil {
		s.mu.Unlock()
		return
	}
	s.cancelled = true
	s.mu.Unlock()

	for _, rec := range batch.Records() {
		if !rec.State().IsTerminal() {
			rec.RequestAbort()
		}
	}
	// Abort flags first, contexts second: a goroutine woken by its context
	// always observes the flag already set.
	for _, cancel := range cancels {
		cancel()
	}

	log.Warn().
		Str("batch_id", batch.ID()).
		Str("reason", reason).
		Msg("Batch cancellation requested")
	observability.RecordBatchAudit(context.Background(), "batch_cancel_requested", "scheduler", "requested", map[string]interface{}{
		"batch_id": batch.ID(),
		"reason":   reason,
	})
}

// driveCall walks one record through its lifecycle. It always leaves the
// record in a terminal state.
func (s *Scheduler) driveCall(ctx context.Context, batchID string, rec *toolcall.Call, seq int, admission *admissionController) {
	logger := tracing.LoggerFromContext(ctx, s.logger)

	// Validation.
	desc, err := s.registry.Describe(rec.Tool())
	if err != nil {
		s.finish(logger, batchID, rec, nil, callErrorFrom(err, rec.Tool()))
		return
	}
	if err := s.registry.ValidateArgs(rec.Tool(), rec.Args()); err != nil {
		s.finish(logger, batchID, rec, nil, callErrorFrom(err, rec.Tool()))
		return
	}

	// Approval. Read-only tools and allowlisted tools skip the gate.
	if s.gate != nil && s.gate.RequiresApproval(desc) {
		if s.aborted(ctx, rec) {
			s.cancelQueued(logger, batchID, rec, "aborted before approval")
			return
		}
		if err := s.transition(logger, batchID, rec, toolcall.StateAwaitingApproval); err != nil {
			return
		}
		observability.ApprovalRequested()
		waitStart := time.Now()
		decision, err := s.gate.RequestApproval(ctx, rec, desc)
		wait := time.Since(waitStart)
		if err != nil {
			var ce *toolcall.CallError
			if errors.As(err, &ce) && ce.Kind == toolcall.ErrorKindUserDenied {
				observability.RecordApprovalDecision(string(approval.DecisionDeny), wait)
				logger.Info().
					Str("tool", rec.Tool()).
					Msg("Call denied by user")
				s.finish(logger, batchID, rec, nil, ce)
				return
			}
			observability.RecordApprovalDecision("abandoned", wait)
			s.finish(logger, batchID, rec, nil, toolcall.WrapError(toolcall.ErrorKindCancelled, rec.Tool(), err))
			return
		}
		observability.RecordApprovalDecision(string(decision), wait)
	}

	// Scheduling.
	if err := s.transition(logger, batchID, rec, toolcall.StateScheduled); err != nil {
		return
	}
	if s.aborted(ctx, rec) {
		s.finish(logger, batchID, rec, nil, toolcall.NewError(toolcall.ErrorKindCancelled, rec.Tool(), "aborted before execution"))
		return
	}

	t := admission.enqueue(rec.ID(), seq, desc.SideEffect.Exclusive())
	select {
	case <-t.admitted:
	case <-ctx.Done():
		if !admission.withdraw(t) {
			// Admission raced the abort; give the slot back.
			admission.release(rec.ID())
		}
		s.finish(logger, batchID, rec, nil, toolcall.NewError(toolcall.ErrorKindCancelled, rec.Tool(), "aborted before execution"))
		return
	}
	if s.aborted(ctx, rec) {
		s.finish(logger, batchID, rec, nil, toolcall.NewError(toolcall.ErrorKindCancelled, rec.Tool(), "aborted before execution"))
		admission.release(rec.ID())
		return
	}

	// Execution. The slot is held until the record is terminal so an
	// exclusive call never overlaps another call's executing window.
	s.execute(ctx, logger, batchID, rec, desc)
	admission.release(rec.ID())
}

// execute runs the tool handler and finishes the record from its outcome.
func (s *Scheduler) execute(ctx context.Context, logger zerolog.Logger, batchID string, rec *toolcall.Call, desc toolregistry.Descriptor) {
	if err := s.transition(logger, batchID, rec, toolcall.StateExecuting); err != nil {
		return
	}

	ctx, span := tracing.StartSpan(
		ctx,
		tracerName,
		"scheduler.execute_call",
		attribute.String("tool", rec.Tool()),
		attribute.String("side_effect", string(desc.SideEffect)),
	)
	defer span.End()

	observability.CallExecutionStarted()
	payload, err := s.registry.Invoke(ctx, rec.Tool(), rec.Args(), func(chunk string) {
		if appendErr := rec.AppendOutput(chunk); appendErr != nil {
			return
		}
		observability.RecordOutputChunk()
		s.notifier.publishOutput(OutputChunk{BatchID: batchID, CallID: rec.ID(), Tool: rec.Tool(), Chunk: chunk})
	})
	observability.CallExecutionEnded()

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		s.finish(logger, batchID, rec, nil, callErrorFrom(err, rec.Tool()))
		return
	}
	span.SetStatus(codes.Ok, "")
	s.finish(logger, batchID, rec, payload, nil)
}

// aborted reports whether the record should stop before entering its next
// lifecycle phase.
func (s *Scheduler) aborted(ctx context.Context, rec *toolcall.Call) bool {
	return rec.AbortRequested() || ctx.Err() != nil
}

// cancelQueued cancels a record that is still validating. The lifecycle has
// no direct edge from validating to cancelled, so it passes through
// scheduled first.
func (s *Scheduler) cancelQueued(logger zerolog.Logger, batchID string, rec *toolcall.Call, reason string) {
	if err := s.transition(logger, batchID, rec, toolcall.StateScheduled); err != nil {
		return
	}
	s.finish(logger, batchID, rec, nil, toolcall.NewError(toolcall.ErrorKindCancelled, rec.Tool(), reason))
}

// transition moves the record to a non-terminal state and publishes the
// change.
func (s *Scheduler) transition(logger zerolog.Logger, batchID string, rec *toolcall.Call, to toolcall.State) error {
	from := rec.State()
	if err := rec.Transition(to); err != nil {
		logger.Error().
			Err(err).
			Msg("Rejected state transition")
		return err
	}
	s.notifier.publishStateChange(StateChange{BatchID: batchID, CallID: rec.ID(), Tool: rec.Tool(), From: from, To: to})
	return nil
}

// finish moves the record to the terminal state implied by callErr (success
// when nil), publishes the change and records metrics.
func (s *Scheduler) finish(logger zerolog.Logger, batchID string, rec *toolcall.Call, payload interface{}, callErr *toolcall.CallError) {
	state := toolcall.StateSuccess
	if callErr != nil {
		state = callErr.TerminalState()
	}

	from := rec.State()
	if err := rec.Finish(state, payload, callErr); err != nil {
		logger.Error().
			Err(err).
			Str("target", string(state)).
			Msg("Rejected terminal transition")
		return
	}
	s.notifier.publishStateChange(StateChange{BatchID: batchID, CallID: rec.ID(), Tool: rec.Tool(), From: from, To: state})

	var executing time.Duration
	if res, ok := rec.Result(); ok && !res.StartedAt.IsZero() {
		executing = res.Duration()
	}
	observability.RecordCallCompletion(rec.Tool(), string(state), executing)

	switch state {
	case toolcall.StateSuccess:
		logger.Debug().
			Str("tool", rec.Tool()).
			Dur("duration", executing).
			Msg("Call succeeded")
	case toolcall.StateCancelled:
		logger.Info().
			Str("tool", rec.Tool()).
			Msg("Call cancelled")
	default:
		logger.Error().
			Str("tool", rec.Tool()).
			Err(callErr).
			Msg("Call failed")
	}
}

// callErrorFrom normalizes any error into a CallError for the given tool.
func callErrorFrom(err error, tool string) *toolcall.CallError {
	var ce *toolcall.CallError
	if errors.As(err, &ce) {
		return ce
	}
	return toolcall.WrapError(toolcall.KindOf(err), tool, err)
}
