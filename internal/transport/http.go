package transport

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/client/transport"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
)

// HTTPClient wraps mcp-go's streamable-HTTP transport for backends
// configured with HTTP transport. mcp-go's StreamableHTTP already
// tolerates both a single-JSON-body reply and an SSE-framed reply
// stream per the MCP HTTP transport spec, so this client adds only the
// gateway's own error taxonomy and retry bookkeeping around it, the way
// the teacher's HTTPClient.DoWithCircuitBreaker wraps net/http.Client.
type HTTPClient struct {
	transport *transport.StreamableHTTP
	client    *client.Client
	cb        *circuitBreaker
	subFn     func(method string, params json.RawMessage)
}

// NewHTTP dials cfg's HTTP endpoint.
func NewHTTP(cfg config.BackendConfig) (*HTTPClient, error) {
	var opts []transport.StreamableHTTPCOption
	if len(cfg.Headers) > 0 {
		opts = append(opts, transport.WithHTTPHeaders(cfg.Headers))
	}
	tr, err := transport.NewStreamableHTTP(cfg.URL, opts...)
	if err != nil {
		return nil, mcperrors.Transport("http.dial", fmt.Errorf("%w: %v", mcperrors.ErrConnectFailed, err))
	}
	if err := tr.Start(context.Background()); err != nil {
		return nil, mcperrors.Transport("http.dial", fmt.Errorf("%w: %v", mcperrors.ErrConnectFailed, err))
	}

	cl := client.NewClient(tr)
	hc := &HTTPClient{transport: tr, client: cl, cb: newCircuitBreaker(5, 30*time.Second)}
	cl.OnNotification(func(n mcp.JSONRPCNotification) {
		if hc.subFn == nil {
			return
		}
		raw, _ := json.Marshal(n.Params)
		hc.subFn(n.Method, raw)
	})
	return hc, nil
}

func (c *HTTPClient) Handshake(ctx context.Context) (json.RawMessage, error) {
	if !c.cb.CanExecute() {
		return nil, mcperrors.Transport("initialize", fmt.Errorf("%w: circuit open", mcperrors.ErrConnectFailed))
	}

	var initReq mcp.InitializeRequest
	initReq.Params.ProtocolVersion = string(mcptypes.ProtocolPrimary)
	initReq.Params.ClientInfo = mcp.Implementation{Name: "mcp-gateway", Version: "1.0.0"}

	res, err := c.client.Initialize(ctx, initReq)
	if err != nil {
		c.cb.RecordFailure()
		return nil, mcperrors.Transport("initialize", errFromHTTP(err))
	}
	c.cb.RecordSuccess()

	raw, err := json.Marshal(res)
	if err != nil {
		return nil, mcperrors.Transport("initialize", fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
	}
	return raw, nil
}

func (c *HTTPClient) ListTools(ctx context.Context) (mcptypes.ToolCatalogReply, error) {
	res, err := c.client.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return mcptypes.ToolCatalogReply{}, mcperrors.Transport("tools/list", errFromHTTP(err))
	}
	raw, err := json.Marshal(res)
	if err != nil {
		return mcptypes.ToolCatalogReply{}, mcperrors.Transport("tools/list", fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
	}
	return mcptypes.ParseToolCatalogReply(raw)
}

func (c *HTTPClient) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	if method == "tools/call" {
		var req mcp.CallToolRequest
		if err := json.Unmarshal(params, &req.Params); err != nil {
			return nil, mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
		}
		res, err := c.client.CallTool(ctx, req)
		if err != nil {
			c.cb.RecordFailure()
			return nil, mcperrors.Transport(method, errFromHTTP(err))
		}
		c.cb.RecordSuccess()
		return json.Marshal(res)
	}

	resp, err := c.transport.SendRequest(ctx, transport.JSONRPCRequest{JSONRPC: "2.0", Method: method, Params: params})
	if err != nil {
		c.cb.RecordFailure()
		return nil, mcperrors.Transport(method, errFromHTTP(err))
	}
	if resp.Error != nil {
		return nil, fmt.Errorf("%w: %s (%d)", mcperrors.ErrPeerError, resp.Error.Message, resp.Error.Code)
	}
	c.cb.RecordSuccess()
	return resp.Result, nil
}

func (c *HTTPClient) Notify(ctx context.Context, method string, params json.RawMessage) error {
	var np mcp.NotificationParams
	if len(params) > 0 {
		if err := json.Unmarshal(params, &np); err != nil {
			return err
		}
	}
	return c.transport.SendNotification(ctx, mcp.JSONRPCNotification{JSONRPC: "2.0", Notification: mcp.Notification{Method: method, Params: np}})
}

func (c *HTTPClient) Subscribe(fn func(method string, params json.RawMessage)) error {
	c.subFn = fn
	return nil
}

func (c *HTTPClient) Close() error {
	return c.transport.Close()
}

// errFromHTTP classifies a streamable-HTTP transport error against the
// gateway's taxonomy. mcp-go surfaces HTTP-status failures as plain
// errors with no distinguishing type, so every failure here is treated
// as a closed peer; timeouts are caught earlier via ctx.Err() by callers
// that pass a deadline-bound context.
func errFromHTTP(err error) error {
	return fmt.Errorf("%w: %v", mcperrors.ErrPeerClosed, err)
}
