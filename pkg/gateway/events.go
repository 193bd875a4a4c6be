package gateway

import (
	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolcall"
)

// EventBridge adapts scheduler observer callbacks into gateway events.
// Subscribe it on a scheduler to mirror every state change, output
// chunk and batch completion onto the WebSocket stream.
type EventBridge struct {
	broadcaster *EventBroadcaster
}

// NewEventBridge creates a bridge publishing through the broadcaster
func NewEventBridge(broadcaster *EventBroadcaster) *EventBridge {
	return &EventBridge{broadcaster: broadcaster}
}

// OnStateChange publishes a call state transition
func (b *EventBridge) OnStateChange(change scheduler.StateChange) {
	b.broadcaster.BroadcastTyped(EventMessage{
		Event:   "call.state_changed",
		Stream:  StreamTypeTool,
		Phase:   string(change.To),
		BatchID: change.BatchID,
		CallID:  change.CallID,
		Data: map[string]interface{}{
			"tool": change.Tool,
			"from": string(change.From),
			"to":   string(change.To),
		},
	})
}

// OnOutput publishes a live output chunk
func (b *EventBridge) OnOutput(chunk scheduler.OutputChunk) {
	b.broadcaster.BroadcastTyped(EventMessage{
		Event:   "call.output",
		Stream:  StreamTypeTool,
		Phase:   "output",
		BatchID: chunk.BatchID,
		CallID:  chunk.CallID,
		Data: map[string]interface{}{
			"tool":  chunk.Tool,
			"chunk": chunk.Chunk,
		},
	})
}

// OnBatchComplete publishes the ordered batch outcome
func (b *EventBridge) OnBatchComplete(result scheduler.BatchResult) {
	b.broadcaster.BroadcastTyped(EventMessage{
		Event:   "batch.completed",
		Stream:  StreamTypeLifecycle,
		Phase:   "completed",
		BatchID: result.BatchID,
		Data: map[string]interface{}{
			"results":     renderResults(result.Results),
			"duration_ms": result.Duration().Milliseconds(),
		},
	})
}

// renderResults flattens call results into the wire shape shared by the
// batch.completed event and the batch.run response. Order follows the
// original request sequence.
func renderResults(results []toolcall.Result) []map[string]interface{} {
	out := make([]map[string]interface{}, 0, len(results))
	for _, res := range results {
		entry := map[string]interface{}{
			"id":    res.ID,
			"tool":  res.Tool,
			"state": string(res.State),
		}
		if res.Payload != nil {
			entry["payload"] = res.Payload
		}
		if res.Error != nil {
			entry["error"] = map[string]interface{}{
				"kind":    string(res.Error.Kind),
				"message": res.Error.Message,
			}
		}
		out = append(out, entry)
	}
	return out
}
