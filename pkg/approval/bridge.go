package approval

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/rs/zerolog/log"
)

// Forwarder delivers a pending prompt to an out-of-band surface, such as a
// connected gateway client, which later answers through Resolve.
type Forwarder interface {
	ForwardPrompt(ctx context.Context, prompt Prompt) error
}

// Bridge adapts asynchronous surfaces to the Handler interface: Ask forwards
// the prompt and parks until some external caller resolves it by id.
type Bridge struct {
	forwarder Forwarder

	mu      sync.RWMutex
	pending map[string]chan Decision
	prompts map[string]Prompt
}

// NewBridge creates a bridge that forwards prompts through fw.
func NewBridge(fw Forwarder) *Bridge {
	return &Bridge{
		forwarder: fw,
		pending:   make(map[string]chan Decision),
		prompts:   make(map[string]Prompt),
	}
}

// Ask implements Handler. It blocks until Resolve supplies a decision for
// the prompt id or ctx is cancelled.
func (b *Bridge) Ask(ctx context.Context, prompt Prompt) (Decision, error) {
	if b.forwarder == nil {
		return "", fmt.Errorf("prompt forwarder is not configured")
	}

	decisionCh := make(chan Decision, 1)

	b.mu.Lock()
	b.pending[prompt.ID] = decisionCh
	b.prompts[prompt.ID] = prompt
	b.mu.Unlock()

	defer func() {
		b.mu.Lock()
		delete(b.pending, prompt.ID)
		delete(b.prompts, prompt.ID)
		b.mu.Unlock()
	}()

	if err := b.forwarder.ForwardPrompt(ctx, prompt); err != nil {
		return "", fmt.Errorf("failed to forward prompt %s: %w", prompt.ID, err)
	}

	select {
	case decision := <-decisionCh:
		return decision, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Resolve answers a pending prompt. It fails for unknown ids and for
// prompts that already received an answer.
func (b *Bridge) Resolve(promptID string, decision Decision, actor string) error {
	if _, err := ParseDecision(string(decision)); err != nil {
		return err
	}

	b.mu.RLock()
	decisionCh, exists := b.pending[promptID]
	prompt := b.prompts[promptID]
	b.mu.RUnlock()

	if !exists {
		return fmt.Errorf("prompt %s not found", promptID)
	}

	select {
	case decisionCh <- decision:
		log.Info().
			Str("prompt_id", promptID).
			Str("call_id", prompt.CallID).
			Str("tool", prompt.Tool).
			Str("decision", string(decision)).
			Str("actor", actor).
			Msg("Approval prompt resolved")
		return nil
	default:
		return fmt.Errorf("prompt %s already resolved", promptID)
	}
}

// Lookup returns the pending prompt with the given id, if any.
func (b *Bridge) Lookup(promptID string) (Prompt, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	prompt, ok := b.prompts[promptID]
	return prompt, ok
}

// Pending lists the prompts still waiting for an answer, ordered by
// creation time.
func (b *Bridge) Pending() []Prompt {
	b.mu.RLock()
	defer b.mu.RUnlock()

	out := make([]Prompt, 0, len(b.prompts))
	for _, prompt := range b.prompts {
		out = append(out, prompt)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out
}
