// Package session provides the connection session abstraction: one
// bidirectional channel to an external tool-providing server.
//
// Every session exposes the same six operations (list and invoke for tools,
// prompts, and resources) plus the initialize handshake, regardless of how
// bytes move. Three transports are provided:
//
//   - stdio: spawn a subprocess and speak newline-delimited JSON-RPC over
//     its stdin/stdout.
//   - streamhttp: POST JSON-RPC requests to an HTTP endpoint; an SSE stream
//     carries server-initiated messages.
//   - socket: a persistent TCP connection with the same newline-delimited
//     framing as stdio.
//
// Sessions are exclusively owned by the host's per-connection supervisor.
// Nothing else may close one; a call timeout never tears a session down.
package session
