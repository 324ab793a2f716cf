package orchestrator

import (
	"context"
	"testing"

	"github.com/mcpdock/gateway/internal/backend"
	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/proxyengine"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopoSort_OrdersByDependsOn(t *testing.T) {
	backends := []config.BackendConfig{
		{Name: "c", Transport: config.TransportLocal, Command: "echo", DependsOn: []string{"b"}},
		{Name: "a", Transport: config.TransportLocal, Command: "echo"},
		{Name: "b", Transport: config.TransportLocal, Command: "echo", DependsOn: []string{"a"}},
	}

	order, err := TopoSort(backends)
	require.NoError(t, err)
	require.Len(t, order, 3)

	pos := map[string]int{}
	for i, n := range order {
		pos[n] = i
	}
	assert.Less(t, pos["a"], pos["b"])
	assert.Less(t, pos["b"], pos["c"])
}

func TestTopoSort_DetectsCycle(t *testing.T) {
	backends := []config.BackendConfig{
		{Name: "a", Transport: config.TransportLocal, Command: "echo", DependsOn: []string{"b"}},
		{Name: "b", Transport: config.TransportLocal, Command: "echo", DependsOn: []string{"a"}},
	}
	_, err := TopoSort(backends)
	assert.Error(t, err)
}

func TestTopoSort_IgnoresDanglingDependency(t *testing.T) {
	backends := []config.BackendConfig{
		{Name: "a", Transport: config.TransportLocal, Command: "echo", DependsOn: []string{"ghost"}},
	}
	order, err := TopoSort(backends)
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, order)
}

func TestRun_SkipsProxiesWhoseBackendIsNotVerified(t *testing.T) {
	store, err := config.NewFileStore(t.TempDir())
	require.NoError(t, err)

	require.NoError(t, store.PutBackend(config.BackendConfig{
		Name: "b1", Transport: config.TransportLocal, Command: "echo", AutoStart: false,
	}))
	require.NoError(t, store.PutProxy(config.ProxyConfig{
		Name: "p1", BackendName: "b1", Endpoint: "/mcp", Transport: config.TransportEvent, AutoStart: true,
	}))

	registry, err := backend.New(store, nil)
	require.NoError(t, err)

	proxies := map[string]*proxyengine.Proxy{
		"p1": proxyengine.NewProxy(config.ProxyConfig{Name: "p1", BackendName: "b1"}),
	}

	report, err := Run(context.Background(), registry, store, proxies, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, report.BackendsStarted, "b1 is not AutoStart")
	assert.Equal(t, 1, report.ProxiesSkipped, "b1 was never started, so it never reaches Verified")
	assert.Equal(t, 0, report.ProxiesStarted)
	assert.Equal(t, proxyengine.StateStopped, proxies["p1"].State())
}

func TestRun_ReportsCycleError(t *testing.T) {
	store, err := config.NewFileStore(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, store.PutBackend(config.BackendConfig{
		Name: "a", Transport: config.TransportLocal, Command: "echo", DependsOn: []string{"b"},
	}))
	require.NoError(t, store.PutBackend(config.BackendConfig{
		Name: "b", Transport: config.TransportLocal, Command: "echo", DependsOn: []string{"a"},
	}))

	registry, err := backend.New(store, nil)
	require.NoError(t, err)

	_, err = Run(context.Background(), registry, store, nil, nil)
	assert.Error(t, err)
}
