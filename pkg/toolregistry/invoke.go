package toolregistry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/harun/dispatch/pkg/toolcall"
)

// Invoke runs the named tool with the supplied arguments. Partial output is
// streamed through onChunk as the handler emits it. Invoke blocks until the
// handler returns: when ctx is cancelled mid-flight the handler is expected
// to honor it promptly, and the cancellation is only reported once it has.
//
// Failures come back as *toolcall.CallError: schema mismatches as
// SchemaValidationFailed, unregistered names as UnknownTool, handler errors
// as ExecutorFailure, and acknowledged cancellation as Cancelled.
func (r *Registry) Invoke(ctx context.Context, name string, args map[string]interface{}, onChunk OutputFunc) (interface{}, error) {
	r.mu.RLock()
	def, ok := r.tools[name]
	defaultTimeout := r.defaultTimeout
	r.mu.RUnlock()

	if !ok {
		return nil, toolcall.WrapError(toolcall.ErrorKindUnknownTool, name,
			fmt.Errorf("%w: %q", toolcall.ErrUnknownTool, name))
	}

	if err := r.ValidateArgs(name, args); err != nil {
		return nil, err
	}

	timeout := def.Timeout
	if timeout == 0 {
		timeout = defaultTimeout
	}

	hctx := ContextWithEmitter(ctx, onChunk)
	if timeout > 0 {
		var cancel context.CancelFunc
		hctx, cancel = context.WithTimeout(hctx, timeout)
		defer cancel()
	}

	start := time.Now()
	payload, err := def.Handler(hctx, args)
	duration := time.Since(start)

	if err == nil {
		// A handler that finished its work despite a late cancellation
		// still produced a real result; report it.
		log.Debug().Str("tool", name).Dur("duration", duration).Msg("Tool invocation completed")
		return payload, nil
	}

	switch {
	case ctx.Err() == context.Canceled || errors.Is(err, context.Canceled):
		log.Debug().Str("tool", name).Dur("duration", duration).Msg("Tool invocation cancelled")
		return nil, toolcall.WrapError(toolcall.ErrorKindCancelled, name, err)
	case errors.Is(err, context.DeadlineExceeded):
		log.Error().Str("tool", name).Dur("duration", duration).Dur("timeout", timeout).Msg("Tool invocation timed out")
		return nil, toolcall.WrapError(toolcall.ErrorKindExecutorFailure, name,
			fmt.Errorf("execution timed out after %v: %w", timeout, err))
	default:
		log.Error().Str("tool", name).Dur("duration", duration).Err(err).Msg("Tool invocation failed")
		var ce *toolcall.CallError
		if errors.As(err, &ce) {
			return nil, ce
		}
		return nil, toolcall.WrapError(toolcall.ErrorKindExecutorFailure, name, err)
	}
}
