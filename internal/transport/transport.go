// Package transport implements the gateway's backend-facing connections
// (spec §4.1, "Transport Clients"): one Client per backend, regardless of
// whether the backend speaks LOCAL stdio, EVENT (SSE) or HTTP underneath.
package transport

import (
	"context"
	"encoding/json"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcptypes"
)

// Client is the uniform surface the Backend Registry drives regardless of
// the concrete wire transport beneath it.
type Client interface {
	// Handshake performs (or re-performs) the MCP initialize exchange and
	// returns the backend's initialize result as JSON, for the Backend
	// Registry to normalize through compliance.FixHandshakeResult. The
	// client never normalizes its own replies; upstream servers disagree
	// too much on shape for that to live at the transport boundary.
	// LocalClient returns the result bytes exactly as the backend sent
	// them; EventClient and HTTPClient go through mcp-go's typed
	// Initialize call and re-encode its InitializeResult, so fields that
	// type does not model are not preserved.
	Handshake(ctx context.Context) (json.RawMessage, error)

	// ListTools fetches the backend's tool catalog.
	ListTools(ctx context.Context) (mcptypes.ToolCatalogReply, error)

	// Call performs a JSON-RPC request/response round trip for an
	// arbitrary method and returns the raw result payload.
	Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error)

	// Notify sends a fire-and-forget JSON-RPC notification.
	Notify(ctx context.Context, method string, params json.RawMessage) error

	// Subscribe registers a callback invoked for every server-initiated
	// notification the backend pushes (tool list changes, log messages,
	// etc). LocalClient invokes it for notification lines read from the
	// child's stdout; EventClient and HTTPClient invoke it from mcp-go's
	// OnNotification hook.
	Subscribe(fn func(method string, params json.RawMessage)) error

	Close() error
}

// New dials cfg's backend using the constructor matching its transport.
func New(cfg config.BackendConfig) (Client, error) {
	switch cfg.Transport {
	case config.TransportLocal:
		return NewLocal(cfg)
	case config.TransportEvent:
		return NewEvent(cfg)
	case config.TransportHTTP:
		return NewHTTP(cfg)
	default:
		return nil, mcperrorsConfig(cfg.Name, string(cfg.Transport))
	}
}

func mcperrorsConfig(name, transport string) error {
	return &unsupportedTransportError{name: name, transport: transport}
}

type unsupportedTransportError struct {
	name, transport string
}

func (e *unsupportedTransportError) Error() string {
	return "transport: backend " + e.name + ": unsupported transport " + e.transport
}
