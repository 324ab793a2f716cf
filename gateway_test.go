package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpandPath(t *testing.T) {
	t.Setenv("GATEWAY_TEST_DIR", "/srv/gw")
	assert.Equal(t, "/srv/gw/data", expandPath("$GATEWAY_TEST_DIR/data"))

	home, err := os.UserHomeDir()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(home, "data"), expandPath("~/data"))
}

func TestNew_SeedsConfigStoreFromConfig(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.StoreDir = t.TempDir()
	cfg.Backends = []config.BackendConfig{{Name: "b1", Transport: config.TransportLocal, Command: "echo"}}
	cfg.Proxies = []config.ProxyConfig{{Name: "p1", BackendName: "b1", Endpoint: "/mcp", Transport: config.TransportEvent}}

	gw, err := New(cfg)
	require.NoError(t, err)

	_, ok := gw.Registry().Get("b1")
	assert.True(t, ok)

	_, ok, err = gw.Store().GetProxy("p1")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestNew_DoesNotReseedAnExistingBackend(t *testing.T) {
	dir := t.TempDir()
	store, err := config.NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.PutBackend(config.BackendConfig{Name: "b1", Transport: config.TransportLocal, Command: "already-here"}))

	cfg := DefaultGatewayConfig()
	cfg.StoreDir = dir
	cfg.Backends = []config.BackendConfig{{Name: "b1", Transport: config.TransportLocal, Command: "seed-value"}}

	gw, err := New(cfg)
	require.NoError(t, err)

	b, ok := gw.Registry().Get("b1")
	require.True(t, ok)
	assert.Equal(t, "already-here", b.Config.Command, "an existing persisted backend is not overwritten by the seed config")
}

func TestGateway_StartAndClose(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.StoreDir = t.TempDir()
	cfg.Addr = "127.0.0.1:0"

	gw, err := New(cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, gw.Start(ctx))
	defer gw.Close()

	assert.Eventually(t, func() bool {
		return gw.httpServer != nil
	}, time.Second, 5*time.Millisecond)
}

func TestNew_RegistersProxiesAndSessionManagersForEventProxies(t *testing.T) {
	cfg := DefaultGatewayConfig()
	cfg.StoreDir = t.TempDir()
	cfg.Backends = []config.BackendConfig{{Name: "b1", Transport: config.TransportLocal, Command: "echo"}}
	cfg.Proxies = []config.ProxyConfig{
		{Name: "p-event", BackendName: "b1", Endpoint: "/mcp", Transport: config.TransportEvent},
		{Name: "p-http", BackendName: "b1", Endpoint: "/rest", Transport: config.TransportHTTP},
	}

	gw, err := New(cfg)
	require.NoError(t, err)

	assert.Contains(t, gw.proxies, "p-event")
	assert.Contains(t, gw.proxies, "p-http")
	assert.Contains(t, gw.sessionManagers, "p-event")
	assert.NotContains(t, gw.sessionManagers, "p-http")
}

