package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBackendConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     BackendConfig
		wantErr bool
	}{
		{"valid local", BackendConfig{Name: "a", Transport: TransportLocal, Command: "echo"}, false},
		{"local missing command", BackendConfig{Name: "a", Transport: TransportLocal}, true},
		{"valid event", BackendConfig{Name: "a", Transport: TransportEvent, URL: "http://x"}, false},
		{"event missing url", BackendConfig{Name: "a", Transport: TransportEvent}, true},
		{"missing name", BackendConfig{Transport: TransportLocal, Command: "echo"}, true},
		{"invalid transport", BackendConfig{Name: "a", Transport: "BOGUS"}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestBackendConfigProbeLegacySSE(t *testing.T) {
	var cfg BackendConfig
	assert.True(t, cfg.ProbeLegacySSE(), "defaults to true when unset")

	off := false
	cfg.LegacySSEProbe = &off
	assert.False(t, cfg.ProbeLegacySSE())
}

func TestProxyConfigExposesTool(t *testing.T) {
	p := ProxyConfig{ExposedTools: nil}
	assert.True(t, p.ExposesTool("anything"), "empty list exposes all tools")

	p.ExposedTools = []string{"read", "write"}
	assert.True(t, p.ExposesTool("read"))
	assert.False(t, p.ExposesTool("delete"))
}

func TestProxyConfigValidate(t *testing.T) {
	cases := []struct {
		name    string
		cfg     ProxyConfig
		wantErr bool
	}{
		{"valid", ProxyConfig{Name: "p", BackendName: "b", Endpoint: "/mcp", Transport: TransportEvent}, false},
		{"missing endpoint slash", ProxyConfig{Name: "p", BackendName: "b", Endpoint: "mcp", Transport: TransportEvent}, true},
		{"wrong transport", ProxyConfig{Name: "p", BackendName: "b", Endpoint: "/mcp", Transport: TransportLocal}, true},
		{"missing backend", ProxyConfig{Name: "p", Endpoint: "/mcp", Transport: TransportHTTP}, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
