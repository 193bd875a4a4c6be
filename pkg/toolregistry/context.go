package toolregistry

import "context"

// OutputFunc receives one partial output chunk from an executing tool.
type OutputFunc func(chunk string)

type emitterKey struct{}

// ContextWithEmitter attaches a partial-output sink to the context handed to
// a tool handler.
func ContextWithEmitter(ctx context.Context, emit OutputFunc) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if emit == nil {
		return ctx
	}
	return context.WithValue(ctx, emitterKey{}, emit)
}

// EmitterFromContext extracts the partial-output sink, or nil.
func EmitterFromContext(ctx context.Context) OutputFunc {
	if ctx == nil {
		return nil
	}
	if v := ctx.Value(emitterKey{}); v != nil {
		if emit, ok := v.(OutputFunc); ok {
			return emit
		}
	}
	return nil
}

// Emit streams one chunk of partial output from inside a tool handler. It is
// a no-op when no sink is attached, so handlers can emit unconditionally.
func Emit(ctx context.Context, chunk string) {
	if emit := EmitterFromContext(ctx); emit != nil {
		emit(chunk)
	}
}
