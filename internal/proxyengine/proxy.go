// Package proxyengine implements the Proxy Engine (spec §4.4): the
// per-exposed-endpoint routing layer sitting between Request Ingress /
// the Session Manager and the Backend Registry.
package proxyengine

import (
	"context"
	"encoding/json"
	"strings"
	"sync"

	"github.com/mcpdock/gateway/internal/backend"
	"github.com/mcpdock/gateway/internal/compliance"
	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
)

// State mirrors a Proxy's position in the spec §3 state machine:
// Stopped | Running | Error. Running requires the referenced Backend to
// be Verified, but losing that does not itself stop the proxy: calls
// simply fail until the backend reverifies.
type State string

const (
	StateStopped State = "Stopped"
	StateRunning State = "Running"
	StateError   State = "Error"
)

// Proxy is a live proxy instance: its persistent config (whose
// BackendName names the backend it routes to), its state, and its
// cached effective tool list and instructions. For EVENT proxies the
// Session Manager lives in internal/session and is paired with the
// Proxy by the caller (gateway.New, ingress.Server.Register); Proxy
// itself holds no reference to it or to the Backend.
type Proxy struct {
	Config config.ProxyConfig

	mu            sync.RWMutex
	state         State
	lastError     error
	effectiveTools []mcptypes.ToolDef
	instructions  string
}

// NewProxy constructs a stopped Proxy from its persistent config.
func NewProxy(cfg config.ProxyConfig) *Proxy {
	return &Proxy{Config: cfg, state: StateStopped}
}

func (p *Proxy) State() State {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.state
}

func (p *Proxy) SetState(s State, err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.state = s
	p.lastError = err
}

// RefreshEffectiveTools recomputes the cached effective tool list from
// the backend's current catalog (spec §4.4: "cache invalidates on
// backend re-verification").
func (p *Proxy) RefreshEffectiveTools(b *backend.Backend) {
	all := b.Tools()
	filtered := make([]mcptypes.ToolDef, 0, len(all))
	for _, t := range all {
		if p.Config.ExposesTool(t.Name) {
			filtered = append(filtered, t)
		}
	}

	instructions := p.Config.InstructionsOverride
	if instructions == "" {
		instructions = b.Handshake().Instructions
	}

	p.mu.Lock()
	p.effectiveTools = filtered
	p.instructions = instructions
	p.mu.Unlock()
}

func (p *Proxy) tools() []mcptypes.ToolDef {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]mcptypes.ToolDef, len(p.effectiveTools))
	copy(out, p.effectiveTools)
	return out
}

func (p *Proxy) instructionsField() string {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.instructions
}

// Engine dispatches incoming JSON-RPC messages to the right Proxy per
// the spec §4.4 method table.
type Engine struct {
	Registry       *backend.Registry
	GatewayName    string
	GatewayVersion string
}

// NewEngine constructs an Engine bound to a Backend Registry.
func NewEngine(registry *backend.Registry, gatewayName, gatewayVersion string) *Engine {
	return &Engine{Registry: registry, GatewayName: gatewayName, GatewayVersion: gatewayVersion}
}

// Route dispatches msg for proxy p against its backend, per the method
// table in spec §4.4. It never returns a transport-level error; failed
// requests are encoded as a JSON-RPC error Message so the caller can
// write it straight back to the client. A notifications/* message is
// forwarded fire-and-forget and Route returns nil for it, whether or not
// the forward succeeded.
func (e *Engine) Route(ctx context.Context, p *Proxy, msg *mcptypes.Message) *mcptypes.Message {
	if p.State() != StateRunning {
		return mcperrors.ProxyNotRunning(p.Config.Name).ToMessage(msg.ID)
	}

	b, ok := e.Registry.Get(p.Config.BackendName)
	if !ok {
		return mcperrors.BackendNotVerified(p.Config.BackendName).ToMessage(msg.ID)
	}

	switch {
	case msg.Method == "initialize":
		return e.routeInitialize(p, b, msg)
	case msg.Method == "tools/list":
		return e.routeToolsList(p, msg)
	case msg.Method == "tools/call":
		return e.routeToolsCall(ctx, p, b, msg)
	case msg.Method == "resources/list":
		return e.routeResourcesList(b, msg, false)
	case msg.Method == "resources/templates/list":
		return e.routeResourcesList(b, msg, true)
	case strings.HasPrefix(msg.Method, "notifications/"):
		_ = e.Registry.Notify(ctx, b.Config.Name, msg.Method, msg.Params)
		return nil
	default:
		return e.routeGenericCall(ctx, b, msg)
	}
}

func (e *Engine) routeInitialize(p *Proxy, b *backend.Backend, msg *mcptypes.Message) *mcptypes.Message {
	result := map[string]any{
		"protocolVersion": b.Handshake().ProtocolVersion,
		"capabilities":    b.Capabilities(),
		"serverInfo": mcptypes.ServerInfo{
			Name:    e.GatewayName + "-" + p.Config.Name,
			Version: e.GatewayVersion,
		},
	}
	if instr := p.instructionsField(); instr != "" {
		result["instructions"] = instr
	}
	out, err := mcptypes.NewResult(msg.ID, result)
	if err != nil {
		return mcperrors.ProxyNotRunning(p.Config.Name).ToMessage(msg.ID)
	}
	return out
}

func (e *Engine) routeToolsList(p *Proxy, msg *mcptypes.Message) *mcptypes.Message {
	out, err := mcptypes.NewResult(msg.ID, map[string]any{
		"tools":      p.tools(),
		"nextCursor": "",
	})
	if err != nil {
		return mcptypes.NewError(msg.ID, mcperrors.CodeInternalError, err.Error(), nil)
	}
	return out
}

func (e *Engine) routeToolsCall(ctx context.Context, p *Proxy, b *backend.Backend, msg *mcptypes.Message) *mcptypes.Message {
	var call struct {
		Name string `json:"name"`
	}
	_ = json.Unmarshal(msg.Params, &call)

	if !p.Config.ExposesTool(call.Name) {
		return mcperrors.ToolNotExposed(call.Name).ToMessage(msg.ID)
	}

	result, err := e.Registry.Call(ctx, b.Config.Name, "tools/call", msg.Params)
	if err != nil {
		return toolError(msg.ID, err)
	}
	return &mcptypes.Message{JSONRPC: "2.0", ID: msg.ID, Result: result}
}

func (e *Engine) routeResourcesList(b *backend.Backend, msg *mcptypes.Message, templates bool) *mcptypes.Message {
	if compliance.SynthesizeResourcesList(b.Capabilities()) {
		return e.routeGenericCall(context.Background(), b, msg)
	}
	if templates {
		return &mcptypes.Message{JSONRPC: "2.0", ID: msg.ID, Result: compliance.EmptyResourceTemplatesList()}
	}
	return &mcptypes.Message{JSONRPC: "2.0", ID: msg.ID, Result: compliance.EmptyResourcesList()}
}

func (e *Engine) routeGenericCall(ctx context.Context, b *backend.Backend, msg *mcptypes.Message) *mcptypes.Message {
	result, err := e.Registry.Call(ctx, b.Config.Name, msg.Method, msg.Params)
	if err != nil {
		return toolError(msg.ID, err)
	}
	return &mcptypes.Message{JSONRPC: "2.0", ID: msg.ID, Result: result}
}

func toolError(id json.RawMessage, err error) *mcptypes.Message {
	if me, ok := err.(*mcperrors.Error); ok && me.Code != 0 {
		return mcptypes.NewError(id, me.Code, me.Error(), nil)
	}
	return mcptypes.NewError(id, mcperrors.CodeServerErrorRangeEnd, err.Error(), nil)
}
