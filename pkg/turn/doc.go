// Package turn connects an LLM provider to the batch scheduler.
//
// A turn starts with the conversation so far. The model either answers in
// plain text, which ends the turn, or requests tool calls. Requested calls
// become one batch, the scheduler drives them to terminal states, and every
// result flows back to the model as a tool message in the original request
// order, including denials and failures. The loop repeats until the model
// stops requesting tools or the round limit is hit.
//
// Providers translate between the neutral Message/Reply types and their
// wire formats; Anthropic and OpenAI adapters ship in this package.
package turn
