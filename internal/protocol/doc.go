// Package protocol defines the JSON-RPC 2.0 message types and MCP method
// payloads shared by every connection transport.
//
// The host speaks the same six operations to every connected server
// regardless of transport:
//
//	tools/list      -> ListToolsResult
//	tools/call      -> CallToolResult
//	prompts/list    -> ListPromptsResult
//	prompts/get     -> GetPromptResult
//	resources/list  -> ListResourcesResult
//	resources/read  -> ReadResourceResult
//
// Transports frame these messages differently (newline-delimited over a pipe
// or socket, HTTP POST bodies with SSE for server pushes), but the types in
// this package are the single wire vocabulary.
package protocol
