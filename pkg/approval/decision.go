package approval

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/harun/dispatch/pkg/toolregistry"
)

// Decision is the user's answer to an approval prompt.
type Decision string

const (
	// DecisionApproveOnce clears this call only.
	DecisionApproveOnce Decision = "approve-once"
	// DecisionApproveAlways clears this call and allowlists its tool for the
	// rest of the session.
	DecisionApproveAlways Decision = "approve-always-this-tool"
	// DecisionDeny refuses the call; the record is cancelled as user-denied.
	DecisionDeny Decision = "deny"
	// DecisionDefer postpones the answer until an external review action,
	// such as opening a diff editor, has completed.
	DecisionDefer Decision = "defer"
)

// ParseDecision parses a user-supplied decision string.
func ParseDecision(value string) (Decision, error) {
	decision := Decision(strings.ToLower(strings.TrimSpace(value)))
	switch decision {
	case DecisionApproveOnce, DecisionApproveAlways, DecisionDeny, DecisionDefer:
		return decision, nil
	default:
		return "", fmt.Errorf("invalid approval decision %q", value)
	}
}

// Prompt is one approval question presented to the user. A deferred call
// produces a fresh prompt with a new id for the same underlying call.
type Prompt struct {
	ID         string                  `json:"id"`
	CallID     string                  `json:"call_id"`
	Tool       string                  `json:"tool"`
	SideEffect toolregistry.SideEffect `json:"side_effect"`
	Args       map[string]interface{}  `json:"args,omitempty"`
	CreatedAt  time.Time               `json:"created_at"`
	ExpiresAt  time.Time               `json:"expires_at,omitempty"`
}

// Handler supplies decisions for approval prompts. Implementations block
// until the user answers or ctx is cancelled.
type Handler interface {
	Ask(ctx context.Context, prompt Prompt) (Decision, error)
}
