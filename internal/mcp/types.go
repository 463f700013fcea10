// Package mcp serves the Model Context Protocol endpoint: a JSON-RPC 2.0
// dispatcher that exposes the memory store as MCP tools and resources.
package mcp

import "encoding/json"

const (
	// ProtocolVersion is the MCP revision this server speaks.
	ProtocolVersion = "2024-11-05"

	serverName    = "memory-api"
	serverVersion = "1.0.0"
)

// Request is an incoming JSON-RPC 2.0 call. The ID is kept raw so string,
// number and null ids round-trip untouched into the response.
type Request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
}

// Response is a JSON-RPC 2.0 reply. Exactly one of Result and Error is set.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Result  any             `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

type RPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// toolCallParams is the params shape of tools/call.
type toolCallParams struct {
	Name      string          `json:"name"`
	Arguments json.RawMessage `json:"arguments"`
}

// resourceReadParams is the params shape of resources/read.
type resourceReadParams struct {
	URI string `json:"uri"`
}

// textContent is the MCP content block returned by tool calls.
type textContent struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

func toolResult(text string) map[string]any {
	return map[string]any{
		"content": []textContent{{Type: "text", Text: text}},
	}
}
