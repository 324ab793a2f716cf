package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_BackendRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := BackendConfig{Name: "b1", Transport: TransportLocal, Command: "echo"}
	require.NoError(t, store.PutBackend(cfg))

	got, ok, err := store.GetBackend("b1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg.Command, got.Command)

	all, err := store.ListBackends()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteBackend("b1"))
	_, ok, err = store.GetBackend("b1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_ProxyRoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	cfg := ProxyConfig{Name: "p1", BackendName: "b1", Endpoint: "/mcp", Transport: TransportEvent}
	require.NoError(t, store.PutProxy(cfg))

	got, ok, err := store.GetProxy("p1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, cfg.Endpoint, got.Endpoint)

	all, err := store.ListProxies()
	require.NoError(t, err)
	assert.Len(t, all, 1)

	require.NoError(t, store.DeleteProxy("p1"))
	_, ok, err = store.GetProxy("p1")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestFileStore_PutBackendRejectsInvalidConfig(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	err = store.PutBackend(BackendConfig{Name: "", Transport: TransportLocal, Command: "echo"})
	assert.Error(t, err)
}

func TestFileStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, store.PutBackend(BackendConfig{Name: "b1", Transport: TransportLocal, Command: "echo"}))

	reopened, err := NewFileStore(dir)
	require.NoError(t, err)
	_, ok, err := reopened.GetBackend("b1")
	require.NoError(t, err)
	assert.True(t, ok)
}
