package gateway

import (
	"context"

	"github.com/harun/dispatch/internal/observability"
	"github.com/harun/dispatch/pkg/approval"
)

// PromptForwarder delivers approval prompts to connected clients as
// gateway events. It satisfies approval.Forwarder, so an
// approval.Bridge built over it parks each prompt until a client
// answers via the approvals.resolve method.
type PromptForwarder struct {
	server *Server
}

// NewPromptForwarder creates a forwarder publishing through the server
func NewPromptForwarder(server *Server) *PromptForwarder {
	return &PromptForwarder{server: server}
}

// ForwardPrompt broadcasts an approval prompt to authenticated clients
func (f *PromptForwarder) ForwardPrompt(ctx context.Context, prompt approval.Prompt) error {
	data := map[string]interface{}{
		"prompt_id":   prompt.ID,
		"call_id":     prompt.CallID,
		"tool":        prompt.Tool,
		"side_effect": string(prompt.SideEffect),
		"args":        prompt.Args,
		"created_at":  prompt.CreatedAt.UnixMilli(),
	}
	if !prompt.ExpiresAt.IsZero() {
		data["expires_at"] = prompt.ExpiresAt.UnixMilli()
	}

	f.server.broadcaster.BroadcastTyped(EventMessage{
		Event:  "approval.requested",
		Stream: StreamTypeApproval,
		Phase:  "pending",
		CallID: prompt.CallID,
		Data:   data,
	})

	return nil
}

// registerApprovalMethods wires the approval bridge onto RPC methods
func registerApprovalMethods(server *Server, bridge *approval.Bridge) {
	server.RegisterMethod("approvals.resolve", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		promptID, ok := params["prompt_id"].(string)
		if !ok || promptID == "" {
			return nil, &RPCError{
				Code:    InvalidParams,
				Message: "prompt_id parameter is required and must be a string",
			}
		}

		action, ok := params["action"].(string)
		if !ok || action == "" {
			return nil, &RPCError{
				Code:    InvalidParams,
				Message: "action parameter is required and must be a string",
			}
		}

		decision, err := approval.ParseDecision(action)
		if err != nil {
			return nil, &RPCError{
				Code:    InvalidParams,
				Message: err.Error(),
			}
		}

		actor := clientIDFromContext(ctx)
		if actor == "" {
			actor = "gateway"
		}

		// Capture the prompt before resolving; the bridge forgets it as
		// soon as the waiting call is released.
		prompt, _ := bridge.Lookup(promptID)

		if err := bridge.Resolve(promptID, decision, actor); err != nil {
			return nil, &RPCError{
				Code:    InvalidRequest,
				Message: err.Error(),
			}
		}

		observability.RecordApprovalAudit(ctx, prompt.Tool, actor, string(decision), map[string]interface{}{
			"prompt_id": promptID,
			"call_id":   prompt.CallID,
		})

		return map[string]interface{}{
			"resolved":  true,
			"prompt_id": promptID,
			"action":    string(decision),
		}, nil
	})

	server.RegisterMethod("approvals.pending", func(ctx context.Context, params map[string]interface{}) (interface{}, error) {
		prompts := bridge.Pending()

		out := make([]map[string]interface{}, 0, len(prompts))
		for _, prompt := range prompts {
			out = append(out, map[string]interface{}{
				"prompt_id":   prompt.ID,
				"call_id":     prompt.CallID,
				"tool":        prompt.Tool,
				"side_effect": string(prompt.SideEffect),
				"created_at":  prompt.CreatedAt.UnixMilli(),
			})
		}

		return map[string]interface{}{
			"prompts": out,
			"count":   len(out),
		}, nil
	})
}
