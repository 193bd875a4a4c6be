package turn

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/harun/dispatch/pkg/scheduler"
)

// TurnResult summarizes one finished turn.
type TurnResult struct {
	// Response is the model's final plain-text answer.
	Response string `json:"response"`
	// Messages is the full transcript including tool traffic.
	Messages []Message `json:"messages"`
	// ToolUses lists every tool call made during the turn.
	ToolUses []ToolUse `json:"tool_uses,omitempty"`
	// Usage sums token counts across all completions.
	Usage Usage `json:"usage"`
	// Rounds counts completions made before the turn ended.
	Rounds int `json:"rounds"`
	// Aborted is set when the turn stopped on context cancellation.
	Aborted bool `json:"aborted,omitempty"`
}

// Engine drives the completion/execution loop for one session.
type Engine struct {
	provider    Provider
	scheduler   *scheduler.Scheduler
	model       string
	system      string
	maxTokens   int
	temperature float64
	maxRounds   int
	maxRetries  int
	retryBase   time.Duration
	logger      zerolog.Logger
}

// EngineOption configures an Engine.
type EngineOption func(*Engine)

// WithModel sets the model identifier sent to the provider.
func WithModel(model string) EngineOption {
	return func(e *Engine) { e.model = model }
}

// WithSystemPrompt sets the system prompt for every completion.
func WithSystemPrompt(system string) EngineOption {
	return func(e *Engine) { e.system = system }
}

// WithMaxTokens caps the tokens requested per completion.
func WithMaxTokens(n int) EngineOption {
	return func(e *Engine) { e.maxTokens = n }
}

// WithTemperature sets the sampling temperature.
func WithTemperature(t float64) EngineOption {
	return func(e *Engine) { e.temperature = t }
}

// WithMaxRounds caps tool rounds per turn.
func WithMaxRounds(n int) EngineOption {
	return func(e *Engine) { e.maxRounds = n }
}

// WithMaxRetries caps provider call attempts.
func WithMaxRetries(n int) EngineOption {
	return func(e *Engine) { e.maxRetries = n }
}

// WithLogger overrides the engine logger.
func WithLogger(logger zerolog.Logger) EngineOption {
	return func(e *Engine) { e.logger = logger }
}

// NewEngine creates a turn engine over a provider and a scheduler.
func NewEngine(provider Provider, sched *scheduler.Scheduler, opts ...EngineOption) *Engine {
	e := &Engine{
		provider:   provider,
		scheduler:  sched,
		maxTokens:  4096,
		maxRounds:  10,
		maxRetries: 3,
		retryBase:  time.Second,
		logger:     log.Logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run drives one turn to completion. The model answers, or requests tool
// calls that run as one batch whose results feed the next round. Cancelling
// the context aborts the turn between rounds and cancels any batch in
// flight.
func (e *Engine) Run(ctx context.Context, messages []Message) (*TurnResult, error) {
	tools, err := ToolSpecs(e.scheduler.Registry())
	if err != nil {
		return nil, err
	}

	system := e.system
	if system == "" {
		for _, msg := range messages {
			if msg.Role == RoleSystem {
				system = msg.Content
				break
			}
		}
	}

	current := make([]Message, len(messages))
	copy(current, messages)
	allUses := []ToolUse{}
	var usage Usage

	for round := 0; round < e.maxRounds; round++ {
		select {
		case <-ctx.Done():
			return &TurnResult{Messages: current, ToolUses: allUses, Usage: usage, Rounds: round, Aborted: true}, nil
		default:
		}

		reply, err := e.completeWithRetry(ctx, Request{
			Model:       e.model,
			System:      system,
			Messages:    current,
			Tools:       tools,
			MaxTokens:   e.maxTokens,
			Temperature: e.temperature,
		})
		if err != nil {
			return nil, err
		}
		usage.InputTokens += reply.Usage.InputTokens
		usage.OutputTokens += reply.Usage.OutputTokens

		if len(reply.ToolUses) == 0 {
			current = append(current, Message{Role: RoleAssistant, Content: reply.Content})
			return &TurnResult{
				Response: reply.Content,
				Messages: current,
				ToolUses: allUses,
				Usage:    usage,
				Rounds:   round + 1,
			}, nil
		}

		e.logger.Info().
			Int("round", round+1).
			Int("tool_calls", len(reply.ToolUses)).
			Msg("Model requested tool calls")

		current = append(current, Message{Role: RoleAssistant, Content: reply.Content, ToolUses: reply.ToolUses})

		result, err := e.scheduler.RunBatch(ctx, RequestsFrom(reply.ToolUses))
		if err != nil {
			return nil, fmt.Errorf("batch execution failed: %w", err)
		}
		current = append(current, ResultMessages(result)...)
		allUses = append(allUses, reply.ToolUses...)
	}

	return nil, fmt.Errorf("maximum tool rounds (%d) exceeded", e.maxRounds)
}

// completeWithRetry calls the provider with exponential backoff on
// retryable errors.
func (e *Engine) completeWithRetry(ctx context.Context, req Request) (*Reply, error) {
	var lastErr error

	for attempt := 0; attempt < e.maxRetries; attempt++ {
		reply, err := e.provider.Complete(ctx, req)
		if err == nil {
			return reply, nil
		}

		lastErr = err
		if !IsRetryable(err) {
			return nil, err
		}
		if attempt == e.maxRetries-1 {
			break
		}

		delay := e.retryBase * (1 << attempt)
		e.logger.Info().
			Int("attempt", attempt+1).
			Dur("delay", delay).
			Str("provider", e.provider.Name()).
			Msg("Retrying after error")

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(delay):
		}
	}

	return nil, fmt.Errorf("max retries (%d) exceeded: %w", e.maxRetries, lastErr)
}
