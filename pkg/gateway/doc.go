// Package gateway exposes the dispatch engine over WebSocket and HTTP.
//
// Clients authenticate with an HMAC challenge-response handshake, then call
// JSON-RPC methods to run batches, resolve approval prompts, cancel work and
// inspect status. Call state changes, live output and approval prompts are
// broadcast to every authenticated client as typed stream events with
// monotonic sequence numbers.
package gateway
