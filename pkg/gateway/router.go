package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"
)

// idempotencyTTL bounds how long cached responses are replayed for
// requests carrying the same idempotency key.
const idempotencyTTL = 5 * time.Minute

type cachedResponse struct {
	response  *RPCResponse
	expiresAt time.Time
}

// RPCRouter dispatches JSON-RPC requests to registered handlers
type RPCRouter struct {
	mu       sync.RWMutex
	handlers map[string]RequestHandler

	cacheMu sync.Mutex
	cache   map[string]cachedResponse
}

// NewRPCRouter creates a new RPC router
func NewRPCRouter() *RPCRouter {
	return &RPCRouter{
		handlers: make(map[string]RequestHandler),
		cache:    make(map[string]cachedResponse),
	}
}

// RegisterMethod registers a handler for an RPC method
func (r *RPCRouter) RegisterMethod(method string, handler RequestHandler) error {
	if handler == nil {
		return fmt.Errorf("handler cannot be nil")
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers[method] = handler
	return nil
}

// UnregisterMethod removes a handler for an RPC method
func (r *RPCRouter) UnregisterMethod(method string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.handlers, method)
}

// HasMethod reports whether a handler is registered for the method
func (r *RPCRouter) HasMethod(method string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.handlers[method]
	return ok
}

// GetMethods returns the names of all registered methods
func (r *RPCRouter) GetMethods() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	methods := make([]string, 0, len(r.handlers))
	for method := range r.handlers {
		methods = append(methods, method)
	}
	return methods
}

// ParseRequest parses and validates a raw JSON-RPC request
func (r *RPCRouter) ParseRequest(data []byte) (*RPCRequest, error) {
	var req RPCRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, &RPCError{
			Code:    ParseError,
			Message: fmt.Sprintf("failed to parse request: %v", err),
		}
	}

	if req.ID == "" {
		return nil, &RPCError{
			Code:    InvalidRequest,
			Message: "invalid request: missing id",
		}
	}
	if req.Method == "" {
		return nil, &RPCError{
			Code:    InvalidRequest,
			Message: "invalid request: missing method",
		}
	}

	if req.JSONRPC == "" {
		req.JSONRPC = "2.0"
	}

	return &req, nil
}

// RouteRequest dispatches a parsed request to its handler. Requests
// carrying an idempotency key replay the cached response while the key
// is fresh. Handler errors of type *RPCError keep their code; any other
// error is reported as an internal error.
func (r *RPCRouter) RouteRequest(ctx context.Context, req *RPCRequest) *RPCResponse {
	if req.IdempotencyKey != "" {
		if cached, ok := r.lookupCached(req.IdempotencyKey); ok {
			resp := cloneRPCResponse(cached)
			resp.ID = req.ID
			return resp
		}
	}

	r.mu.RLock()
	handler, ok := r.handlers[req.Method]
	r.mu.RUnlock()

	if !ok {
		return &RPCResponse{
			ID:      req.ID,
			JSONRPC: "2.0",
			Error: &RPCError{
				Code:    MethodNotFound,
				Message: fmt.Sprintf("method not found: %s", req.Method),
			},
		}
	}

	result, err := handler(ctx, req.Params)
	if err != nil {
		var rpcErr *RPCError
		if !errors.As(err, &rpcErr) {
			rpcErr = &RPCError{
				Code:    InternalError,
				Message: err.Error(),
			}
		}
		return &RPCResponse{
			ID:      req.ID,
			JSONRPC: "2.0",
			Error:   rpcErr,
		}
	}

	resp := &RPCResponse{
		ID:      req.ID,
		JSONRPC: "2.0",
		Result:  result,
	}

	if req.IdempotencyKey != "" {
		r.storeCached(req.IdempotencyKey, resp)
	}

	return resp
}

func (r *RPCRouter) lookupCached(key string) (*RPCResponse, bool) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	cached, ok := r.cache[key]
	if !ok {
		return nil, false
	}
	if time.Now().After(cached.expiresAt) {
		delete(r.cache, key)
		return nil, false
	}
	return cached.response, true
}

func (r *RPCRouter) storeCached(key string, resp *RPCResponse) {
	r.cacheMu.Lock()
	defer r.cacheMu.Unlock()

	// Opportunistic sweep keeps the cache from growing unbounded.
	now := time.Now()
	for k, v := range r.cache {
		if now.After(v.expiresAt) {
			delete(r.cache, k)
		}
	}

	r.cache[key] = cachedResponse{
		response:  cloneRPCResponse(resp),
		expiresAt: now.Add(idempotencyTTL),
	}
}

func cloneRPCResponse(resp *RPCResponse) *RPCResponse {
	clone := *resp
	if resp.Error != nil {
		errClone := *resp.Error
		clone.Error = &errClone
	}
	return &clone
}
