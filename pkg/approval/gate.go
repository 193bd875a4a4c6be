package approval

import (
	"context"
	"fmt"
	"time"

	gonanoid "github.com/matoous/go-nanoid/v2"
	"github.com/rs/zerolog/log"

	"github.com/harun/dispatch/pkg/toolcall"
	"github.com/harun/dispatch/pkg/toolregistry"
)

// ReviewHook runs a deferred external review action, such as opening a diff
// editor, before the approval question is asked again.
type ReviewHook func(ctx context.Context, prompt Prompt) error

// Gate decides whether a call runs automatically or waits for the user, and
// collects the user's decision when it must.
type Gate struct {
	session    *Session
	handler    Handler
	reviewHook ReviewHook
}

// GateOption configures a Gate.
type GateOption func(*Gate)

// WithReviewHook installs the deferred-review action invoked when a prompt
// is answered with defer.
func WithReviewHook(hook ReviewHook) GateOption {
	return func(g *Gate) {
		g.reviewHook = hook
	}
}

// NewGate builds a gate around a session allowlist and a decision handler.
func NewGate(session *Session, handler Handler, opts ...GateOption) *Gate {
	if session == nil {
		session = NewSession()
	}
	g := &Gate{session: session, handler: handler}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Session exposes the gate's session allowlist.
func (g *Gate) Session() *Session { return g.session }

// RequiresApproval reports whether the described tool needs a user decision
// before executing. Read-only tools never do; everything else does unless
// the session allowlist already covers the tool.
func (g *Gate) RequiresApproval(desc toolregistry.Descriptor) bool {
	if desc.SideEffect == toolregistry.SideEffectReadOnly {
		return false
	}
	return !g.session.Allowed(desc.Name)
}

// RequestApproval asks the user about one call and blocks until a resolving
// decision arrives. Defer answers run the review hook and re-issue the same
// question under a fresh prompt id; the loop only exits on approve, deny, or
// ctx cancellation. Deny is returned as a UserDenied call error so the
// scheduler can finish the record directly.
func (g *Gate) RequestApproval(ctx context.Context, call *toolcall.Call, desc toolregistry.Descriptor) (Decision, error) {
	if g.handler == nil {
		return "", fmt.Errorf("approval handler is not configured")
	}

	for {
		promptID, _ := gonanoid.New()
		prompt := Prompt{
			ID:         promptID,
			CallID:     call.ID(),
			Tool:       desc.Name,
			SideEffect: desc.SideEffect,
			Args:       call.Args(),
			CreatedAt:  time.Now(),
		}
		if deadline, ok := ctx.Deadline(); ok {
			prompt.ExpiresAt = deadline
		}

		decision, err := g.handler.Ask(ctx, prompt)
		if err != nil {
			return "", fmt.Errorf("approval prompt %s: %w", promptID, err)
		}

		switch decision {
		case DecisionApproveOnce:
			log.Info().Str("call_id", call.ID()).Str("tool", desc.Name).Msg("Call approved once")
			return decision, nil

		case DecisionApproveAlways:
			g.session.Allow(desc.Name)
			log.Info().Str("call_id", call.ID()).Str("tool", desc.Name).Msg("Call approved, tool allowlisted")
			return decision, nil

		case DecisionDeny:
			log.Info().Str("call_id", call.ID()).Str("tool", desc.Name).Msg("Call denied by user")
			return decision, toolcall.NewError(toolcall.ErrorKindUserDenied, desc.Name, "denied by user")

		case DecisionDefer:
			if g.reviewHook != nil {
				if hookErr := g.reviewHook(ctx, prompt); hookErr != nil {
					log.Warn().Err(hookErr).Str("call_id", call.ID()).Msg("Review hook failed, re-asking")
				}
			}
			if ctx.Err() != nil {
				return "", ctx.Err()
			}
			// Ask again with a fresh prompt.

		default:
			return "", fmt.Errorf("approval prompt %s: unsupported decision %q", promptID, decision)
		}
	}
}
