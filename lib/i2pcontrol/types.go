package i2pcontrol

import (
	"encoding/json"
	"fmt"
)

// JSON-RPC 2.0 error codes, plus the I2PControl extensions.
const (
	ErrCodeParseError     = -32700
	ErrCodeInvalidRequest = -32600
	ErrCodeMethodNotFound = -32601
	ErrCodeInvalidParams  = -32602
	ErrCodeInternalError  = -32603

	ErrCodeAuthRequired = -32000
	ErrCodeAuthFailed   = -32001
	ErrCodeNotImpl      = -32002
)

// Request is a JSON-RPC 2.0 request. A request without an ID is a
// notification and gets no response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

func (r *Request) IsNotification() bool {
	return r.ID == nil
}

// Response carries either Result or Error.
type Response struct {
	JSONRPC string    `json:"jsonrpc"`
	ID      any       `json:"id"`
	Result  any       `json:"result,omitempty"`
	Error   *RPCError `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

func (e *RPCError) Error() string {
	if e.Data != nil {
		return fmt.Sprintf("JSON-RPC error %d: %s (data: %v)", e.Code, e.Message, e.Data)
	}
	return fmt.Sprintf("JSON-RPC error %d: %s", e.Code, e.Message)
}

func NewRPCError(code int, message string) *RPCError {
	return &RPCError{Code: code, Message: message}
}

func NewRPCErrorWithData(code int, message string, data any) *RPCError {
	return &RPCError{Code: code, Message: message, Data: data}
}

// ParseRequest decodes and checks a request body.
func ParseRequest(data []byte) (*Request, *RPCError) {
	if len(data) == 0 {
		return nil, NewRPCError(ErrCodeParseError, "empty request")
	}
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, NewRPCErrorWithData(ErrCodeParseError, "invalid JSON", err.Error())
	}
	if req.JSONRPC != "2.0" {
		return nil, NewRPCErrorWithData(ErrCodeInvalidRequest, "invalid JSON-RPC version",
			fmt.Sprintf("expected \"2.0\", got %q", req.JSONRPC))
	}
	if req.Method == "" {
		return nil, NewRPCError(ErrCodeInvalidRequest, "missing method name")
	}
	return &req, nil
}

func newSuccessResponse(id, result any) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Result: result}
}

func newErrorResponse(id any, err *RPCError) *Response {
	return &Response{JSONRPC: "2.0", ID: id, Error: err}
}
