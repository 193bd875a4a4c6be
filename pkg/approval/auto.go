package approval

import "context"

// AutoApprove answers every prompt with approve-once. Used when the operator
// explicitly opts out of interactive gating.
type AutoApprove struct{}

// Ask implements Handler.
func (AutoApprove) Ask(_ context.Context, _ Prompt) (Decision, error) {
	return DecisionApproveOnce, nil
}

// DenyAll answers every prompt with deny. Useful for locked-down sessions
// where gated tools must never run.
type DenyAll struct{}

// Ask implements Handler.
func (DenyAll) Ask(_ context.Context, _ Prompt) (Decision, error) {
	return DecisionDeny, nil
}
