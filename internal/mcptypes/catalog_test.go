package mcptypes

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolCatalogReply_Wrapped(t *testing.T) {
	reply, err := ParseToolCatalogReply(json.RawMessage(`{"tools":[{"name":"read"},{"name":"write"}]}`))
	require.NoError(t, err)
	assert.Len(t, reply.Tools(), 2)
	assert.Equal(t, "read", reply.Tools()[0].Name)
}

func TestParseToolCatalogReply_BareArray(t *testing.T) {
	reply, err := ParseToolCatalogReply(json.RawMessage(`[{"name":"read"}]`))
	require.NoError(t, err)
	assert.Len(t, reply.Tools(), 1)
}

func TestParseToolCatalogReply_SingleObject(t *testing.T) {
	reply, err := ParseToolCatalogReply(json.RawMessage(`{"name":"solo","description":"d"}`))
	require.NoError(t, err)
	assert.Equal(t, []ToolDef{{Name: "solo", Description: "d"}}, reply.Tools())
}

func TestParseToolCatalogReply_Empty(t *testing.T) {
	reply, err := ParseToolCatalogReply(nil)
	require.NoError(t, err)
	assert.Equal(t, []ToolDef{}, reply.Tools())

	reply, err = ParseToolCatalogReply(json.RawMessage(`null`))
	require.NoError(t, err)
	assert.Equal(t, []ToolDef{}, reply.Tools())
}

func TestParseToolCatalogReply_Unrecognized(t *testing.T) {
	_, err := ParseToolCatalogReply(json.RawMessage(`42`))
	assert.Error(t, err)
}
