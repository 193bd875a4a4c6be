package gateway

import (
	"context"
	"errors"
	"fmt"

	gonanoid "github.com/matoous/go-nanoid/v2"

	"github.com/harun/dispatch/pkg/scheduler"
	"github.com/harun/dispatch/pkg/toolcall"
)

// registerBuiltinMethods wires the attached scheduler onto the RPC
// surface. batch.run blocks its handler goroutine until the batch
// completes; progress streams to clients as events in the meantime.
func (s *Server) registerBuiltinMethods() {
	s.RegisterMethod("batch.run", s.handleBatchRun)
	s.RegisterMethod("batch.cancel", s.handleBatchCancel)
	s.RegisterMethod("batch.status", s.handleBatchStatus)
	s.RegisterMethod("tools.list", s.handleToolsList)
}

func (s *Server) handleBatchRun(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	rawCalls, ok := params["calls"].([]interface{})
	if !ok || len(rawCalls) == 0 {
		return nil, &RPCError{
			Code:    InvalidParams,
			Message: "calls parameter is required and must be a non-empty array",
		}
	}

	requests := make([]toolcall.Request, 0, len(rawCalls))
	for i, raw := range rawCalls {
		entry, ok := raw.(map[string]interface{})
		if !ok {
			return nil, &RPCError{
				Code:    InvalidParams,
				Message: fmt.Sprintf("calls[%d] must be an object", i),
			}
		}

		tool, ok := entry["tool"].(string)
		if !ok || tool == "" {
			return nil, &RPCError{
				Code:    InvalidParams,
				Message: fmt.Sprintf("calls[%d].tool is required and must be a string", i),
			}
		}

		id, _ := entry["id"].(string)
		if id == "" {
			id, _ = gonanoid.New()
		}

		args, _ := entry["args"].(map[string]interface{})

		requests = append(requests, toolcall.Request{ID: id, Tool: tool, Args: args})
	}

	result, err := s.scheduler.RunBatch(ctx, requests)
	if err != nil {
		if errors.Is(err, scheduler.ErrBusy) {
			return nil, &RPCError{
				Code:    BatchAlreadyRunning,
				Message: err.Error(),
			}
		}
		return nil, &RPCError{
			Code:    InvalidParams,
			Message: err.Error(),
		}
	}

	counts := make(map[string]int)
	for state, n := range result.Counts() {
		counts[string(state)] = n
	}

	return map[string]interface{}{
		"batch_id":    result.BatchID,
		"results":     renderResults(result.Results),
		"counts":      counts,
		"duration_ms": result.Duration().Milliseconds(),
	}, nil
}

func (s *Server) handleBatchCancel(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	reason, _ := params["reason"].(string)
	if reason == "" {
		reason = "cancelled via gateway"
	}
	if actor := clientIDFromContext(ctx); actor != "" {
		reason = fmt.Sprintf("%s (client %s)", reason, actor)
	}

	wasRunning := s.scheduler.Running()
	s.scheduler.CancelAll(reason)

	return map[string]interface{}{
		"requested":   true,
		"was_running": wasRunning,
	}, nil
}

func (s *Server) handleBatchStatus(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	status := map[string]interface{}{
		"running": s.scheduler.Running(),
		"active":  s.scheduler.Activity().Active(),
	}
	if s.bridge != nil {
		status["pending_approvals"] = len(s.bridge.Pending())
	}
	return status, nil
}

func (s *Server) handleToolsList(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	registry := s.scheduler.Registry()

	descriptors := registry.List()
	tools := make([]map[string]interface{}, 0, len(descriptors))
	for _, desc := range descriptors {
		entry := map[string]interface{}{
			"name":        desc.Name,
			"description": desc.Description,
			"side_effect": string(desc.SideEffect),
			"exclusive":   desc.SideEffect.Exclusive(),
		}
		if schema, err := registry.Schema(desc.Name); err == nil {
			entry["schema"] = schema
		}
		tools = append(tools, entry)
	}

	return map[string]interface{}{
		"tools": tools,
		"count": len(tools),
	}, nil
}
