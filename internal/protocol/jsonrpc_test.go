// ABOUTME: Tests for JSON-RPC framing: request building and response ids.
// ABOUTME: Verifies the error type participates in errors.As matching.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewRequest(t *testing.T) {
	req, err := NewRequest("req-1", MethodCallTool, CallToolParams{Name: "lookup"})
	require.NoError(t, err)

	assert.Equal(t, Version, req.JSONRPC)
	assert.Equal(t, MethodCallTool, req.Method)
	assert.JSONEq(t, `"req-1"`, string(req.ID))
	assert.JSONEq(t, `{"name":"lookup"}`, string(req.Params))
}

func TestNewRequest_NilParamsOmitted(t *testing.T) {
	req, err := NewRequest("req-2", MethodListTools, nil)
	require.NoError(t, err)
	assert.Nil(t, req.Params)

	data, err := json.Marshal(req)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "params")
}

func TestResponse_RequestID(t *testing.T) {
	tests := []struct {
		name string
		id   string
		want string
	}{
		{"string id", `"abc"`, "abc"},
		{"numeric id tolerated", `42`, "42"},
		{"absent id", ``, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := Response{JSONRPC: Version}
			if tt.id != "" {
				resp.ID = json.RawMessage(tt.id)
			}
			assert.Equal(t, tt.want, resp.RequestID())
		})
	}
}

func TestError_MatchesWithErrorsAs(t *testing.T) {
	var err error = &Error{Code: CodeMethodNotFound, Message: "no such method"}
	wrapped := fmt.Errorf("calling server: %w", err)

	var rpcErr *Error
	require.True(t, errors.As(wrapped, &rpcErr))
	assert.Equal(t, CodeMethodNotFound, rpcErr.Code)
	assert.Contains(t, rpcErr.Error(), "no such method")
}
