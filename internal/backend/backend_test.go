package backend

import (
	"testing"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestNewBackend_StartsStoppedWithEmptyCatalog(t *testing.T) {
	b := newBackend(config.BackendConfig{Name: "b1", Transport: config.TransportLocal, Command: "echo"})

	assert.Equal(t, StateStopped, b.State())
	assert.Nil(t, b.LastError())
	assert.Empty(t, b.Tools())
	assert.False(t, b.HasTool("anything"))
}

func TestBackend_SnapshotReflectsState(t *testing.T) {
	b := newBackend(config.BackendConfig{Name: "b1", Transport: config.TransportLocal, Command: "echo"})
	snap := b.snapshot()

	assert.Equal(t, "b1", snap.Name)
	assert.Equal(t, StateStopped, snap.State)
	assert.Empty(t, snap.LastError)
}
