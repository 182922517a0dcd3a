package i2pcontrol

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/go-i2p/logger"
)

// RPCHandler serves one JSON-RPC method.
type RPCHandler interface {
	Handle(ctx context.Context, params json.RawMessage) (any, error)
}

type RPCHandlerFunc func(ctx context.Context, params json.RawMessage) (any, error)

func (f RPCHandlerFunc) Handle(ctx context.Context, params json.RawMessage) (any, error) {
	return f(ctx, params)
}

// MethodRegistry maps method names to handlers.
type MethodRegistry struct {
	mu       sync.RWMutex
	handlers map[string]RPCHandler
}

func NewMethodRegistry() *MethodRegistry {
	return &MethodRegistry{handlers: make(map[string]RPCHandler)}
}

func (mr *MethodRegistry) Register(method string, handler RPCHandler) {
	mr.mu.Lock()
	mr.handlers[method] = handler
	mr.mu.Unlock()
}

func (mr *MethodRegistry) IsRegistered(method string) bool {
	mr.mu.RLock()
	defer mr.mu.RUnlock()
	_, ok := mr.handlers[method]
	return ok
}

// Dispatch runs method. Handler errors that are not RPCErrors become
// internal errors.
func (mr *MethodRegistry) Dispatch(ctx context.Context, method string, params json.RawMessage) (any, *RPCError) {
	mr.mu.RLock()
	handler, ok := mr.handlers[method]
	mr.mu.RUnlock()
	if !ok {
		log.WithFields(logger.Fields{
			"at":     "(MethodRegistry) Dispatch",
			"method": method,
			"reason": "method_not_found",
		}).Warn("attempted to call unregistered method")
		return nil, NewRPCError(ErrCodeMethodNotFound, fmt.Sprintf("method %q not found", method))
	}

	result, err := handler.Handle(ctx, params)
	if err != nil {
		var rpcErr *RPCError
		if errors.As(err, &rpcErr) {
			return nil, rpcErr
		}
		log.WithFields(logger.Fields{
			"at":     "(MethodRegistry) Dispatch",
			"method": method,
			"error":  err.Error(),
		}).Error("method handler returned error")
		return nil, NewRPCErrorWithData(ErrCodeInternalError, "internal error", err.Error())
	}
	return result, nil
}

// HandleRequest runs req and returns nil for notifications.
func (mr *MethodRegistry) HandleRequest(ctx context.Context, req *Request) *Response {
	result, rpcErr := mr.Dispatch(ctx, req.Method, req.Params)
	if req.IsNotification() {
		return nil
	}
	if rpcErr != nil {
		return newErrorResponse(req.ID, rpcErr)
	}
	return newSuccessResponse(req.ID, result)
}
