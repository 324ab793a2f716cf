// Package mcptypes defines the wire-level JSON-RPC shapes shared by every
// component that crosses the public MCP boundary: the Compliance Normalizer,
// the Proxy Engine, the Session Manager and Request Ingress.
//
// Messages are kept as loosely-typed envelopes (json.RawMessage params and
// results) rather than the fully-typed structs mcp-go's client package
// produces for its own request/response calls. The gateway has to tolerate
// whatever shape a given backend actually sends, including shapes that
// don't match any recognized MCP revision, so manipulation happens on the
// raw envelope, the way mcp_compliance.py operates on plain dicts.
package mcptypes

import "encoding/json"

// ProtocolVersion enumerates the MCP revisions the gateway negotiates.
type ProtocolVersion string

const (
	ProtocolPrimary  ProtocolVersion = "2025-03-26"
	ProtocolFallback ProtocolVersion = "2024-11-05"
)

// SupportedProtocolVersions lists the revisions the gateway recognizes,
// newest first; IsSupported checks against it. Transport clients offer
// ProtocolPrimary in their initialize request.
var SupportedProtocolVersions = []ProtocolVersion{ProtocolPrimary, ProtocolFallback}

// IsSupported reports whether v is one of the revisions the gateway
// recognizes.
func IsSupported(v string) bool {
	for _, sv := range SupportedProtocolVersions {
		if string(sv) == v {
			return true
		}
	}
	return false
}

// Message is a JSON-RPC 2.0 envelope. Exactly one of Method (request or
// notification) or Result/Error (response) is populated; Method+ID marks a
// request, Method alone (no ID) marks a notification, and ID alone marks a
// response.
type Message struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the {code, message, data?} error object of a JSON-RPC
// response.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

// IsRequest reports whether m carries an id and is therefore a request
// awaiting a response (as opposed to a fire-and-forget notification).
func (m *Message) IsRequest() bool {
	return m.Method != "" && len(m.ID) > 0
}

// IsNotification reports whether m is a method call with no id.
func (m *Message) IsNotification() bool {
	return m.Method != "" && len(m.ID) == 0
}

// IsResponse reports whether m carries a result or error and no method.
func (m *Message) IsResponse() bool {
	return m.Method == "" && (m.Result != nil || m.Error != nil)
}

// NewResult builds a successful JSON-RPC response envelope echoing id.
func NewResult(id json.RawMessage, result any) (*Message, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Message{JSONRPC: "2.0", ID: id, Result: raw}, nil
}

// NewError builds a JSON-RPC error response envelope echoing id.
func NewError(id json.RawMessage, code int, message string, data any) *Message {
	msg := &Message{JSONRPC: "2.0", ID: id, Error: &RPCError{Code: code, Message: message}}
	if data != nil {
		if raw, err := json.Marshal(data); err == nil {
			msg.Error.Data = raw
		}
	}
	return msg
}

// ToolDef is a single MCP tool definition, opaque beyond the fields the
// gateway needs to route and filter on.
type ToolDef struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	InputSchema json.RawMessage `json:"inputSchema"`
}

// HandshakeResult is the normalized outcome of a successful MCP
// initialize exchange with a backend.
type HandshakeResult struct {
	ProtocolVersion string          `json:"protocolVersion"`
	Capabilities    json.RawMessage `json:"capabilities"`
	ServerInfo      ServerInfo      `json:"serverInfo"`
	Instructions    string          `json:"instructions,omitempty"`
}

// ServerInfo mirrors the MCP serverInfo object.
type ServerInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// ClientInfo mirrors the MCP clientInfo object sent by a client during
// initialize.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}
