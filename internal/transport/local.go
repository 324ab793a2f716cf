package transport

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
)

// LocalClient owns a child process speaking newline-delimited JSON-RPC
// over stdin/stdout, for backends configured with LOCAL transport.
// Shutdown mirrors mcp_service.py.stop_server's SIGTERM-then-SIGKILL
// sequence: a graceful terminate signal followed by a bounded wait and a
// hard kill if the child hasn't exited.
type LocalClient struct {
	cmd    *exec.Cmd
	stdin  io.WriteCloser
	cancel context.CancelFunc

	mu       sync.Mutex
	pending  map[string]chan *mcptypes.Message
	nextID   atomic.Int64
	subFn    func(method string, params json.RawMessage)
	closed   chan struct{}
}

// NewLocal spawns the backend's command and starts its read loop.
func NewLocal(cfg config.BackendConfig) (*LocalClient, error) {
	ctx, cancel := context.WithCancel(context.Background())

	cmd := exec.CommandContext(ctx, cfg.Command, cfg.Args...)
	if cfg.Cwd != "" {
		cmd.Dir = cfg.Cwd
	}
	if len(cfg.Env) > 0 {
		env := os.Environ()
		for k, v := range cfg.Env {
			env = append(env, fmt.Sprintf("%s=%s", k, v))
		}
		cmd.Env = env
	}

	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, mcperrors.Transport("local.dial", fmt.Errorf("%w: stdin pipe: %v", mcperrors.ErrConnectFailed, err))
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, mcperrors.Transport("local.dial", fmt.Errorf("%w: stdout pipe: %v", mcperrors.ErrConnectFailed, err))
	}
	cmd.Stderr = os.Stderr

	if err := cmd.Start(); err != nil {
		cancel()
		return nil, mcperrors.Transport("local.dial", fmt.Errorf("%w: %v", mcperrors.ErrConnectFailed, err))
	}

	c := &LocalClient{
		cmd:     cmd,
		stdin:   stdin,
		cancel:  cancel,
		pending: make(map[string]chan *mcptypes.Message),
		closed:  make(chan struct{}),
	}
	go c.readLoop(stdout)
	return c, nil
}

func (c *LocalClient) readLoop(stdout io.ReadCloser) {
	defer close(c.closed)
	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg mcptypes.Message
		if err := json.Unmarshal(line, &msg); err != nil {
			continue
		}
		c.dispatch(&msg)
	}
}

func (c *LocalClient) dispatch(msg *mcptypes.Message) {
	if msg.IsResponse() && len(msg.ID) > 0 {
		c.mu.Lock()
		ch, ok := c.pending[string(msg.ID)]
		if ok {
			delete(c.pending, string(msg.ID))
		}
		c.mu.Unlock()
		if ok {
			ch <- msg
		}
		return
	}
	if msg.IsNotification() {
		c.mu.Lock()
		fn := c.subFn
		c.mu.Unlock()
		if fn != nil {
			fn(msg.Method, msg.Params)
		}
	}
}

func (c *LocalClient) request(ctx context.Context, method string, params json.RawMessage) (*mcptypes.Message, error) {
	id := fmt.Sprintf("%d", c.nextID.Add(1))
	idRaw, _ := json.Marshal(id)
	msg := mcptypes.Message{JSONRPC: "2.0", ID: idRaw, Method: method, Params: params}

	ch := make(chan *mcptypes.Message, 1)
	c.mu.Lock()
	c.pending[string(idRaw)] = ch
	c.mu.Unlock()

	data, err := json.Marshal(&msg)
	if err != nil {
		return nil, mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
	}
	data = append(data, '\n')
	if _, err := c.stdin.Write(data); err != nil {
		return nil, mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrPeerClosed, err))
	}

	select {
	case resp := <-ch:
		if resp.Error != nil {
			return resp, fmt.Errorf("%w: %s (%d)", mcperrors.ErrPeerError, resp.Error.Message, resp.Error.Code)
		}
		return resp, nil
	case <-c.closed:
		return nil, mcperrors.Transport(method, mcperrors.ErrPeerClosed)
	case <-ctx.Done():
		return nil, mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrTimeout, ctx.Err()))
	}
}

func (c *LocalClient) Handshake(ctx context.Context) (json.RawMessage, error) {
	params, _ := json.Marshal(map[string]any{
		"protocolVersion": mcptypes.ProtocolPrimary,
		"capabilities":    map[string]any{},
		"clientInfo":      mcptypes.ClientInfo{Name: "mcp-gateway", Version: "1.0.0"},
	})
	resp, err := c.request(ctx, "initialize", params)
	if err != nil {
		return nil, err
	}
	_ = c.Notify(ctx, "notifications/initialized", nil)
	return resp.Result, nil
}

func (c *LocalClient) ListTools(ctx context.Context) (mcptypes.ToolCatalogReply, error) {
	resp, err := c.request(ctx, "tools/list", nil)
	if err != nil {
		return mcptypes.ToolCatalogReply{}, err
	}
	reply, err := mcptypes.ParseToolCatalogReply(resp.Result)
	if err != nil {
		return mcptypes.ToolCatalogReply{}, mcperrors.Transport("tools/list", fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
	}
	return reply, nil
}

func (c *LocalClient) Call(ctx context.Context, method string, params json.RawMessage) (json.RawMessage, error) {
	resp, err := c.request(ctx, method, params)
	if err != nil {
		return nil, err
	}
	return resp.Result, nil
}

func (c *LocalClient) Notify(_ context.Context, method string, params json.RawMessage) error {
	msg := mcptypes.Message{JSONRPC: "2.0", Method: method, Params: params}
	data, err := json.Marshal(&msg)
	if err != nil {
		return mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrProtocolError, err))
	}
	data = append(data, '\n')
	if _, err := c.stdin.Write(data); err != nil {
		return mcperrors.Transport(method, fmt.Errorf("%w: %v", mcperrors.ErrPeerClosed, err))
	}
	return nil
}

func (c *LocalClient) Subscribe(fn func(method string, params json.RawMessage)) error {
	c.mu.Lock()
	c.subFn = fn
	c.mu.Unlock()
	return nil
}

// Close terminates the child process gracefully, escalating to a hard
// kill if it doesn't exit within 3 seconds.
func (c *LocalClient) Close() error {
	_ = c.stdin.Close()
	if c.cmd.Process != nil {
		_ = c.cmd.Process.Signal(os.Interrupt)
	}

	done := make(chan error, 1)
	go func() { done <- c.cmd.Wait() }()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		c.cancel()
		<-done
	}
	return nil
}
