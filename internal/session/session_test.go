package session

import (
	"testing"

	"github.com/mcpdock/gateway/internal/mcptypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnqueue_OverflowsAtMaxQueue(t *testing.T) {
	s := newSession("p1", "1.2.3.4", "test-agent", 4)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Enqueue(&mcptypes.Message{JSONRPC: "2.0", Method: "notifications/ping"}))
	}
	err := s.Enqueue(&mcptypes.Message{JSONRPC: "2.0", Method: "notifications/ping"})
	assert.Error(t, err)
}

func TestNewSession_DefaultsMaxQueueWhenUnset(t *testing.T) {
	s := newSession("p1", "1.2.3.4", "test-agent", 0)
	assert.Equal(t, DefaultMaxQueue, s.MaxQueue)
}

func TestMarkInitialized(t *testing.T) {
	s := newSession("p1", "1.2.3.4", "test-agent", 0)
	assert.False(t, s.isInitialized())
	s.MarkInitialized()
	assert.True(t, s.isInitialized())
}

func TestDiscoveryEvent_CarriesMessagesEndpoint(t *testing.T) {
	msg := DiscoveryEvent("/proxy/messages")
	assert.Equal(t, "endpoint", msg.Method)
	assert.Contains(t, string(msg.Params), "/proxy/messages")
}

func TestSession_CloseIsIdempotent(t *testing.T) {
	s := newSession("p1", "1.2.3.4", "test-agent", 0)
	s.close()
	s.close()
	select {
	case <-s.Done():
	default:
		t.Fatal("expected Done channel to be closed")
	}
}
