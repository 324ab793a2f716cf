package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
)

// EventClient wraps mcp-go's SSE transport for backends configured with
// EVENT transport, the way the teacher's Proxy.Start wires
// transport.NewSSE + client.NewClient + client.Initialize, generalized to
// reconnect with backoff instead of failing the process on the first
// dropped connection.
type EventClient struct {
	cfg    config.BackendConfig
	logger *slog.Logger

	mu        sync.Mutex
	transport transport.Interface
	client    *client.Client
	cb        *circuitBreaker
	subFn     func(method string, params json.RawMessage)
}

// NewEvent dials cfg's SSE endpoint, probing cfg.URL and, when
// cfg.ProbeLegacySSE() is true, the legacy `cfg.URL + "/mcp/sse"` suffix
// (spec §9 open question, resolved in favor of trying both in order).
func NewEvent(cfg config.BackendConfig) (*EventClient, error) {
	c := &EventClient{
		cfg:    cfg,
		logger: slog.Default().With("backend", cfg.Name, "transport", "EVENT"),
		cb:     newCircuitBreaker(5, 30*time.Second),
	}
	if err := c.dial(context.Background()); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *EventClient) candidateURLs() []string {
	urls := []string{c.cfg.URL}
	if c.cfg.ProbeLegacySSE() {
		urls = append(urls, c.cfg.URL+"/mcp/sse")
	}
	return urls
}

func (c *EventClient) dial(ctx context.Context) error {
	var lastErr error
	for _, url := range c.candidateURLs() {
		tr, err := transport.NewSSE(url)
		if err != nil {
			lastErr = err
			continue
		}
		if err := tr.Start(ctx); err != nil {
			lastErr = err
			continue
		}

		cl := client.NewClient(tr)
		cl.OnNotification(func(n mcp.JSONRPCNotification) {
			c.mu.Lock()
			fn := c.subFn
			c.mu.Unlock()
			if fn == nil {
				return
			}
			raw, _ := json.Marshal(n.Params)
			fn(n.Method, raw)
		})

		c.mu.Lock()
		c.transport = tr
		c.client = cl
		c.mu.Unlock()
		return nil
	}
	return mcperrors.Transport("event.dial", fmt.Errorf("%w: %v", mcperrors.ErrConnectFailed, lastErr))
}

// reconnect re-dials with bounded exponential backoff, making up to five
// attempts before recording a circuit-breaker failure. Nothing calls it:
// Call and ListTools report a dropped connection as ErrPeerClosed
// without re-dialing, and the Backend Registry has no retry loop that
// invokes it.
func (c *EventClient) reconnect(ctx context.Context) error {
	if !c.cb.CanExecute() {
		return mcperrors.Transport("event.reconnect", fmt.Errorf("%w: circuit open", mcperrors.ErrConnectFailed))
	}
	bo := newBackoff(time.Second, 30*time.Second)
	var err error
	for attempt := 0; attempt < 5; attempt++ {
		if err = c.dial(ctx); err == nil {
			c.cb.RecordSuccess()
			bo.Reset()
			return nil
		}
		select {
		case <-time.After(bo.Next()):
		case <-ctx.Done():
			return mcperrors.Transport("event.reconnect", fmt.Errorf("%w: %v", mcperrors.ErrTimeout, ctx.Err()))
		}
	}
	c.cb.RecordFailure()
	return err
}

func (c *EventClient) Handshake(ctx context.Context) (json.RawMessage, error) {
	var initReq mcp.InitializeRequest
	initReq.Params.ProtocolVersion = string(mcptypes.ProtocolPrimary)
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcp-gateway", Version: "1.0.0"}

	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()

	res, err := cl.Initialize(ctx, initReq)
	if err != nil {
		return nil, mcperrors.Transport("initialize", fmt.Errorf("%w: %v", mcperrors.ErrConnectFailed, err))
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, mcperrors.Transport("initialize", fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
	}
	return raw, nil
}

func (c *EventClient) ListTools(ctx context.Context) (mcptypes.ToolCatalogReply, error) {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()

	res, err := cl.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return mcptypes.ToolCatalogReply{}, mcperrors.Transport("tools/list", fmt.Errorf("%w: %v", mcperrors.ErrPeerClosed, err))
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return mcptypes.ToolCatalogReply{}, mcperrors.Transport("tools/list", fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
	}
	return mcptypes.ParseToolCatalogReply(raw)
}

func (c *EventClient) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	c.mu.Lock()
	cl := c.client
	c.mu.Unlock()

	if method == "tools/call" {
		var req mcp.CallToolRequest
		if err := json.Unmarshal(params, &req.Params); err != nil {
			return nil, mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
		}
		res, err := cl.CallTool(ctx, req)
		if err != nil {
			return nil, mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrPeerClosed, err))
		}
		return json.Marshal(res)
	}
	// Fallback generic round trip through the underlying transport for
	// methods mcp-go's client doesn't expose a typed helper for.
	c.mu.Lock()
	tr := c.transport
	c.mu.Unlock()

	resp, err := tr.SendRequest(ctx, transport.JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		return nil, mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrPeerClosed, err))
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s (%d)", mcperrors.ErrPeerError, resp.Error.Message, resp.Error.Code)
	}
	return resp.Result, nil
}

func (c *EventClient) Notify(ctx context.Context, method string, params json.RawMessage) error {
	c.mu.Lock()
	tr := c.transport
	c.mu.Unlock()

	var np mcp.NotificationParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &np); err != nil {
			return err
		}
	}
	return tr.SendNotification(ctx, mcp.JSONRPCNotification{JSONRPC: "2.0", Notification: mcp.Notification{Method: method, Params: np}})
}

func (c *EventClient) Subscribe(fn func(method string, params json.RawMessage)) error {
	c.mu.Lock()
	c.subFn = fn
	c.mu.Unlock()
	return nil
}

func (c *EventClient) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.transport != nil {
		c.transport.Close()
	}
	return nil
}
