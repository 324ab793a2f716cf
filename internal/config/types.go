// Package config holds the persistent descriptors of spec §3
// (BackendConfig, ProxyConfig), the ConfigStore collaborator contract of
// spec §6, and the gateway's own ambient YAML settings.
package config

import "fmt"

// Transport enumerates the three MCP transports the gateway converts
// between (spec §1).
type Transport string

const (
	TransportLocal Transport = "LOCAL"
	TransportEvent Transport = "EVENT"
	TransportHTTP  Transport = "HTTP"
)

func (t Transport) Valid() bool {
	switch t {
	case TransportLocal, TransportEvent, TransportHTTP:
		return true
	default:
		return false
	}
}

// BackendConfig is the persistent descriptor of a backend MCP server
// (spec §3).
type BackendConfig struct {
	Name      string            `json:"name" yaml:"name"`
	Transport Transport         `json:"transport" yaml:"transport"`
	Command   string            `json:"command,omitempty" yaml:"command,omitempty"`
	Args      []string          `json:"args,omitempty" yaml:"args,omitempty"`
	Env       map[string]string `json:"env,omitempty" yaml:"env,omitempty"`
	Cwd       string            `json:"cwd,omitempty" yaml:"cwd,omitempty"`

	URL     string            `json:"url,omitempty" yaml:"url,omitempty"`
	Headers map[string]string `json:"headers,omitempty" yaml:"headers,omitempty"`

	// LegacySSEProbe enables the dual-endpoint (url, then url+"/mcp/sse")
	// compatibility probe for EVENT backends (spec §4.2, §9 open question).
	// Defaults to true to match the original behavior; operators targeting
	// a backend that errors on an unknown path can turn it off.
	LegacySSEProbe *bool `json:"legacySSEProbe,omitempty" yaml:"legacy_sse_probe,omitempty"`

	AutoStart    bool     `json:"autoStart" yaml:"auto_start"`
	Instructions string   `json:"instructions,omitempty" yaml:"instructions,omitempty"`
	DependsOn    []string `json:"dependsOn,omitempty" yaml:"depends_on,omitempty"`
}

// ProbeLegacySSE returns whether the dual-endpoint probe should run,
// defaulting to true when unset.
func (b *BackendConfig) ProbeLegacySSE() bool {
	if b.LegacySSEProbe == nil {
		return true
	}
	return *b.LegacySSEProbe
}

// Validate checks the structural invariants of a BackendConfig in isolation
// (cross-backend checks like dependsOn cycles are done by
// orchestrator.TopoSort).
func (b *BackendConfig) Validate() error {
	if b.Name == "" {
		return fmt.Errorf("backend: name is required")
	}
	if !b.Transport.Valid() {
		return fmt.Errorf("backend %q: invalid transport %q", b.Name, b.Transport)
	}
	switch b.Transport {
	case TransportLocal:
		if b.Command == "" {
			return fmt.Errorf("backend %q: command is required for LOCAL transport", b.Name)
		}
	case TransportEvent, TransportHTTP:
		if b.URL == "" {
			return fmt.Errorf("backend %q: url is required for %s transport", b.Name, b.Transport)
		}
	}
	return nil
}

// ProxyConfig is the persistent descriptor of an exposed proxy (spec §3).
type ProxyConfig struct {
	Name                 string    `json:"name" yaml:"name"`
	BackendName          string    `json:"backendName" yaml:"backend_name"`
	Endpoint             string    `json:"endpoint" yaml:"endpoint"`
	Transport            Transport `json:"transport" yaml:"transport"`
	ExposedTools         []string  `json:"exposedTools,omitempty" yaml:"exposed_tools,omitempty"`
	InstructionsOverride string    `json:"instructionsOverride,omitempty" yaml:"instructions_override,omitempty"`
	AutoStart            bool      `json:"autoStart" yaml:"auto_start"`
}

// Validate checks ProxyConfig's own invariants.
func (p *ProxyConfig) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("proxy: name is required")
	}
	if p.BackendName == "" {
		return fmt.Errorf("proxy %q: backendName is required", p.Name)
	}
	if p.Endpoint == "" || p.Endpoint[0] != '/' {
		return fmt.Errorf("proxy %q: endpoint must begin with '/'", p.Name)
	}
	switch p.Transport {
	case TransportEvent, TransportHTTP:
	default:
		return fmt.Errorf("proxy %q: transport must be EVENT or HTTP, got %q", p.Name, p.Transport)
	}
	return nil
}

// ExposesTool reports whether name is in the proxy's effective tool
// filter; an empty ExposedTools list means "all tools".
func (p *ProxyConfig) ExposesTool(name string) bool {
	if len(p.ExposedTools) == 0 {
		return true
	}
	for _, t := range p.ExposedTools {
		if t == name {
			return true
		}
	}
	return false
}

// RateLimitConfig holds the adjustable admission knobs of spec §4.8.
type RateLimitConfig struct {
	MaxSessionsPerClient int `json:"maxSessionsPerClient" yaml:"max_sessions_per_client"`
	MaxSessionsPerProxy  int `json:"maxSessionsPerProxy" yaml:"max_sessions_per_proxy"`
	CreationWindowSeconds int `json:"creationWindowSeconds" yaml:"creation_window_seconds"`
	BurstAllowance       int `json:"burstAllowance" yaml:"burst_allowance"`
}

// DefaultRateLimitConfig returns the spec §4.8 defaults.
func DefaultRateLimitConfig() RateLimitConfig {
	return RateLimitConfig{
		MaxSessionsPerClient: 10,
		MaxSessionsPerProxy:  50,
		CreationWindowSeconds: 60,
		BurstAllowance:       3,
	}
}

// SessionConfig holds the spec §4.5 session lifecycle knobs.
type SessionConfig struct {
	MaxQueue       int      `json:"maxQueue" yaml:"max_queue"`
	ReapInterval   Duration `json:"reapInterval" yaml:"reap_interval"`
	IdleTTL        Duration `json:"idleTTL" yaml:"idle_ttl"`
	InitDeadline   Duration `json:"initDeadline" yaml:"init_deadline"`
	BackendGrace   Duration `json:"backendGrace" yaml:"backend_grace"`
}

// DefaultSessionConfig returns the spec §4.5 defaults.
func DefaultSessionConfig() SessionConfig {
	return SessionConfig{
		MaxQueue:     1024,
		ReapInterval: Duration(60e9),
		IdleTTL:      Duration(300e9),
		InitDeadline: Duration(30e9),
		BackendGrace: Duration(30e9),
	}
}

// HeartbeatConfig holds the spec §4.6 heartbeat knobs.
type HeartbeatConfig struct {
	InitialInterval Duration `json:"initialInterval" yaml:"initial_interval"`
	MinInterval     Duration `json:"minInterval" yaml:"min_interval"`
	MaxInterval     Duration `json:"maxInterval" yaml:"max_interval"`
	EvaluateEvery   int      `json:"evaluateEvery" yaml:"evaluate_every"`
}

// DefaultHeartbeatConfig returns the spec §4.6 defaults.
func DefaultHeartbeatConfig() HeartbeatConfig {
	return HeartbeatConfig{
		InitialInterval: Duration(10e9),
		MinInterval:     Duration(5e9),
		MaxInterval:     Duration(30e9),
		EvaluateEvery:   6,
	}
}
