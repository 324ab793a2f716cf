package config

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNormalizeLegacyFields(t *testing.T) {
	doc := map[string]json.RawMessage{
		"transport_type": json.RawMessage(`"local"`),
		"command":         json.RawMessage(`"npx"`),
		"args":            json.RawMessage(`"-y some-server --flag"`),
		"auto_start":      json.RawMessage(`"true"`),
		"description":     json.RawMessage(`"a legacy server"`),
	}

	cfg, err := NormalizeLegacyFields("legacy-one", doc)
	require.NoError(t, err)

	assert.Equal(t, "legacy-one", cfg.Name)
	assert.Equal(t, TransportLocal, cfg.Transport)
	assert.Equal(t, "npx", cfg.Command)
	assert.Equal(t, []string{"-y", "some-server", "--flag"}, cfg.Args)
	assert.True(t, cfg.AutoStart)
	assert.Equal(t, "a legacy server", cfg.Instructions)
}

func TestNormalizeLegacyFields_CamelCaseFallback(t *testing.T) {
	doc := map[string]json.RawMessage{
		"transport": json.RawMessage(`"EVENT"`),
		"url":       json.RawMessage(`"http://localhost:9000/sse"`),
		"autoStart": json.RawMessage(`true`),
	}

	cfg, err := NormalizeLegacyFields("legacy-two", doc)
	require.NoError(t, err)

	assert.Equal(t, TransportEvent, cfg.Transport)
	assert.Equal(t, "http://localhost:9000/sse", cfg.URL)
	assert.True(t, cfg.AutoStart)
}

func TestNormalizeLegacyFields_DefaultsToLocalTransport(t *testing.T) {
	cfg, err := NormalizeLegacyFields("bare", map[string]json.RawMessage{
		"command": json.RawMessage(`"echo"`),
	})
	require.NoError(t, err)
	assert.Equal(t, TransportLocal, cfg.Transport)
}

func TestParseArgs(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want []string
	}{
		{"nil", nil, nil},
		{"string slice", []string{"a", "b"}, []string{"a", "b"}},
		{"any slice", []any{"a", float64(2)}, []string{"a", "2"}},
		{"json array string", `["-y", "foo"]`, []string{"-y", "foo"}},
		{"newline delimited", "a\nb\nc", []string{"a", "b", "c"}},
		{"space delimited", "a b c", []string{"a", "b", "c"}},
		{"bare string", "solo", []string{"solo"}},
		{"empty string", "", nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ParseArgs(tc.in))
		})
	}
}
