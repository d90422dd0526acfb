// ABOUTME: Connection session interface, transport dispatch, and shared errors.
// ABOUTME: All transports expose the same six MCP operations plus initialize.

package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/2389/fold-host/internal/config"
	"github.com/2389/fold-host/internal/protocol"
)

// Session errors.
var (
	// ErrSessionClosed indicates the session was closed and cannot carry calls.
	ErrSessionClosed = errors.New("session closed")
	// ErrTransport wraps failures of the underlying channel after a call was
	// dispatched. The transport-specific detail is preserved in the wrap.
	ErrTransport = errors.New("transport error")
)

// Session is one open bidirectional channel to an external server.
// All methods are safe for concurrent use.
type Session interface {
	// Initialize performs the protocol handshake. Must be called once,
	// before any other operation.
	Initialize(ctx context.Context) error

	ListTools(ctx context.Context) ([]protocol.ToolInfo, error)
	ListPrompts(ctx context.Context) ([]protocol.PromptInfo, error)
	ListResources(ctx context.Context) ([]protocol.ResourceInfo, error)

	CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error)
	GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error)
	ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error)

	// Close releases the underlying channel. Idempotent.
	Close() error
}

// Open establishes a session for the given connection descriptor.
// The transport is chosen from the descriptor; the returned session is not
// yet initialized.
func Open(ctx context.Context, conn config.Connection, logger *slog.Logger) (Session, error) {
	switch conn.Transport {
	case config.TransportStdio:
		return openStdio(ctx, conn, logger)
	case config.TransportHTTP:
		return openStreamHTTP(ctx, conn, logger)
	case config.TransportSocket:
		return openSocket(ctx, conn, logger)
	default:
		return nil, fmt.Errorf("unknown transport %q", conn.Transport)
	}
}

// roundTripper sends one JSON-RPC request and returns the raw result.
type roundTripper interface {
	roundTrip(ctx context.Context, method string, params any) (json.RawMessage, error)
}

// ops implements the six operations over any roundTripper, applying the
// per-call timeout from the descriptor. Transports embed it.
type ops struct {
	rt      roundTripper
	timeout time.Duration
	name    string
}

// call runs one request with the descriptor timeout and decodes the result.
func (o *ops) call(ctx context.Context, method string, params, result any) error {
	if o.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, o.timeout)
		defer cancel()
	}

	raw, err := o.rt.roundTrip(ctx, method, params)
	if err != nil {
		return err
	}
	if result == nil {
		return nil
	}
	if err := json.Unmarshal(raw, result); err != nil {
		return fmt.Errorf("decoding %s result: %w", method, err)
	}
	return nil
}

func (o *ops) Initialize(ctx context.Context) error {
	params := protocol.InitializeParams{
		ProtocolVersion: protocol.ProtocolVersion,
		ClientInfo:      protocol.ClientInfo{Name: "fold-host", Version: "1.0"},
	}
	var result protocol.InitializeResult
	if err := o.call(ctx, protocol.MethodInitialize, params, &result); err != nil {
		return err
	}
	return nil
}

func (o *ops) ListTools(ctx context.Context) ([]protocol.ToolInfo, error) {
	var result protocol.ListToolsResult
	if err := o.call(ctx, protocol.MethodListTools, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Tools, nil
}

func (o *ops) ListPrompts(ctx context.Context) ([]protocol.PromptInfo, error) {
	var result protocol.ListPromptsResult
	if err := o.call(ctx, protocol.MethodListPrompts, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Prompts, nil
}

func (o *ops) ListResources(ctx context.Context) ([]protocol.ResourceInfo, error) {
	var result protocol.ListResourcesResult
	if err := o.call(ctx, protocol.MethodListResources, struct{}{}, &result); err != nil {
		return nil, err
	}
	return result.Resources, nil
}

func (o *ops) CallTool(ctx context.Context, name string, args json.RawMessage) (*protocol.CallToolResult, error) {
	params := protocol.CallToolParams{Name: name, Arguments: args}
	var result protocol.CallToolResult
	if err := o.call(ctx, protocol.MethodCallTool, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (o *ops) GetPrompt(ctx context.Context, name string, args map[string]string) (*protocol.GetPromptResult, error) {
	params := protocol.GetPromptParams{Name: name, Arguments: args}
	var result protocol.GetPromptResult
	if err := o.call(ctx, protocol.MethodGetPrompt, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

func (o *ops) ReadResource(ctx context.Context, uri string) (*protocol.ReadResourceResult, error) {
	params := protocol.ReadResourceParams{URI: uri}
	var result protocol.ReadResourceResult
	if err := o.call(ctx, protocol.MethodReadResource, params, &result); err != nil {
		return nil, err
	}
	return &result, nil
}
