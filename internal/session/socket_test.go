// ABOUTME: Tests for the persistent-socket transport against a local TCP listener.
// ABOUTME: Covers dialing, the framed round trip, and idempotent close.

package session

import (
	"bufio"
	"context"
	"encoding/json"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/fold-host/internal/config"
	"github.com/2389/fold-host/internal/protocol"
)

// startTCPServer answers framed JSON-RPC requests on a loopback listener.
func startTCPServer(t *testing.T, handle func(req protocol.Request) *protocol.Response) string {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(c net.Conn) {
				defer c.Close()
				scanner := bufio.NewScanner(c)
				for scanner.Scan() {
					var req protocol.Request
					if err := json.Unmarshal(scanner.Bytes(), &req); err != nil {
						continue
					}
					resp := handle(req)
					if resp == nil {
						continue
					}
					data, _ := json.Marshal(resp)
					data = append(data, '\n')
					if _, err := c.Write(data); err != nil {
						return
					}
				}
			}(conn)
		}
	}()

	return ln.Addr().String()
}

func TestSocket_RoundTrip(t *testing.T) {
	addr := startTCPServer(t, func(req protocol.Request) *protocol.Response {
		raw, _ := json.Marshal(protocol.ListToolsResult{
			Tools: []protocol.ToolInfo{{Name: "lookup"}},
		})
		return &protocol.Response{JSONRPC: protocol.Version, ID: req.ID, Result: raw}
	})

	sess, err := openSocket(context.Background(), config.Connection{
		Name:      "sock-test",
		Transport: config.TransportSocket,
		Address:   addr,
	}, slog.Default())
	require.NoError(t, err)
	t.Cleanup(func() { _ = sess.Close() })

	tools, err := sess.ListTools(context.Background())
	require.NoError(t, err)
	require.Len(t, tools, 1)
	assert.Equal(t, "lookup", tools[0].Name)
}

func TestSocket_DialFailure(t *testing.T) {
	_, err := openSocket(context.Background(), config.Connection{
		Name:      "sock-test",
		Transport: config.TransportSocket,
		// Reserved port on loopback that nothing listens on.
		Address: "127.0.0.1:1",
	}, slog.Default())
	require.Error(t, err)
}

func TestSocket_CloseIdempotent(t *testing.T) {
	addr := startTCPServer(t, func(req protocol.Request) *protocol.Response {
		return &protocol.Response{JSONRPC: protocol.Version, ID: req.ID, Result: json.RawMessage(`{}`)}
	})

	sess, err := openSocket(context.Background(), config.Connection{
		Name:      "sock-test",
		Transport: config.TransportSocket,
		Address:   addr,
	}, slog.Default())
	require.NoError(t, err)

	require.NoError(t, sess.Close())
	require.NoError(t, sess.Close())
}

func TestOpen_UnknownTransport(t *testing.T) {
	_, err := Open(context.Background(), config.Connection{
		Name:      "weird",
		Transport: "telegraph",
	}, slog.Default())
	require.Error(t, err)
}
