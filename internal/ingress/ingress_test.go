package ingress

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/mcpdock/gateway/internal/backend"
	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/proxyengine"
	"github.com/mcpdock/gateway/internal/ratelimit"
	"github.com/mcpdock/gateway/internal/session"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestServer(t *testing.T) (*Server, *proxyengine.Proxy, *session.Manager) {
	store, err := config.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.PutBackend(config.BackendConfig{
		Name: "b1", Transport: config.TransportLocal, Command: "echo",
	}))
	registry, err := backend.New(store, nil)
	require.NoError(t, err)

	engine := proxyengine.NewEngine(registry, "gw", "1.0.0")
	srv := NewServer(engine, nil)

	p := proxyengine.NewProxy(config.ProxyConfig{Name: "p1", BackendName: "b1", Endpoint: "/mcp", Transport: config.TransportEvent})
	p.SetState(proxyengine.StateRunning, nil)

	admission := ratelimit.New(config.DefaultRateLimitConfig())
	mgr := session.New("p1", "b1", registry, admission, config.DefaultSessionConfig(), config.DefaultHeartbeatConfig(), nil)
	t.Cleanup(mgr.Shutdown)

	srv.Register(p, mgr)
	return srv, p, mgr
}

func TestHandleEndpoint_GETWithoutSSEAcceptIsRejected(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/p1/mcp", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleEndpoint_POSTRunsInlineCall(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req := httptest.NewRequest(http.MethodPost, "/p1/mcp", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"tools"`)
}

func TestHandleMessages_UnknownSessionIsNotFound(t *testing.T) {
	srv, _, _ := newTestServer(t)
	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req := httptest.NewRequest(http.MethodPost, "/p1/messages?sessionId=ghost", body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHandleMessages_DispatchesAndQueuesResponse(t *testing.T) {
	srv, _, mgr := newTestServer(t)

	sess, err := mgr.Open("1.2.3.4", "test-agent", "/p1/messages")
	require.NoError(t, err)
	<-sess.Outbound() // drain the discovery event

	body := strings.NewReader(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`)
	req := httptest.NewRequest(http.MethodPost, "/p1/messages?sessionId="+sess.ID, body)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusAccepted, rec.Code)

	select {
	case queued := <-sess.Outbound():
		assert.Contains(t, string(queued.Result), `"tools"`)
	default:
		t.Fatal("expected the tools/list response to be queued on the session")
	}
}

func TestHandleEndpoint_UnknownProxyIs404(t *testing.T) {
	srv, _, _ := newTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()

	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}
