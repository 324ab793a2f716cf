package mcptypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageClassification(t *testing.T) {
	req := Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Method: "tools/call"}
	assert.True(t, req.IsRequest())
	assert.False(t, req.IsNotification())
	assert.False(t, req.IsResponse())

	notif := Message{JSONRPC: "2.0", Method: "notifications/initialized"}
	assert.False(t, notif.IsRequest())
	assert.True(t, notif.IsNotification())
	assert.False(t, notif.IsResponse())

	resp := Message{JSONRPC: "2.0", ID: json.RawMessage("1"), Result: json.RawMessage(`{"ok":true}`)}
	assert.False(t, resp.IsRequest())
	assert.False(t, resp.IsNotification())
	assert.True(t, resp.IsResponse())
}

func TestNewResultAndNewError(t *testing.T) {
	id := json.RawMessage("7")

	res, err := NewResult(id, map[string]string{"status": "ok"})
	require.NoError(t, err)
	assert.Equal(t, id, res.ID)
	assert.JSONEq(t, `{"status":"ok"}`, string(res.Result))
	assert.Nil(t, res.Error)

	errMsg := NewError(id, -32601, "method not found", map[string]string{"method": "x"})
	assert.Equal(t, id, errMsg.ID)
	require.NotNil(t, errMsg.Error)
	assert.Equal(t, -32601, errMsg.Error.Code)
	assert.JSONEq(t, `{"method":"x"}`, string(errMsg.Error.Data))
}

func TestIsSupported(t *testing.T) {
	assert.True(t, IsSupported("2025-03-26"))
	assert.True(t, IsSupported("2024-11-05"))
	assert.False(t, IsSupported("1999-01-01"))
}
