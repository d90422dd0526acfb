// ABOUTME: JSON-RPC 2.0 request, response, and error framing types.
// ABOUTME: Shared by all connection transports regardless of channel.

package protocol

import (
	"encoding/json"
	"fmt"
)

// Version is the JSON-RPC protocol version sent on every message.
const Version = "2.0"

// Request represents a JSON-RPC 2.0 request.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// Response represents a JSON-RPC 2.0 response.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// Error represents a JSON-RPC 2.0 error object.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	return fmt.Sprintf("jsonrpc error %d: %s", e.Code, e.Message)
}

// Standard JSON-RPC error codes.
const (
	CodeParseError     = -32700
	CodeInvalidRequest = -32600
	CodeMethodNotFound = -32601
	CodeInvalidParams  = -32602
	CodeInternalError  = -32603
)

// NewRequest builds a request with the given id, method, and params.
// Params are marshaled immediately so encoding errors surface at call sites.
func NewRequest(id string, method string, params any) (*Request, error) {
	req := &Request{
		JSONRPC: Version,
		Method:  method,
	}
	if id != "" {
		rawID, err := json.Marshal(id)
		if err != nil {
			return nil, fmt.Errorf("marshaling request id: %w", err)
		}
		req.ID = rawID
	}
	if params != nil {
		rawParams, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("marshaling params for %s: %w", method, err)
		}
		req.Params = rawParams
	}
	return req, nil
}

// RequestID decodes the string id of a response, or returns "" when absent.
func (r *Response) RequestID() string {
	if len(r.ID) == 0 {
		return ""
	}
	var id string
	if err := json.Unmarshal(r.ID, &id); err != nil {
		// Numeric ids are tolerated but never produced by this host.
		return string(r.ID)
	}
	return id
}
