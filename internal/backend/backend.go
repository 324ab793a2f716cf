// Package backend implements the Backend Registry (spec §4.2): the
// authoritative owner of every upstream MCP server the gateway knows
// about, its live connection, and its state machine.
package backend

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcptypes"
	"github.com/mcpdock/gateway/internal/transport"
)

// State is a Backend's position in the spec §3 state machine:
// Stopped -> Starting -> Running -> Verified -> {Running, Error, Stopped}.
type State string

const (
	StateStopped  State = "Stopped"
	StateStarting State = "Starting"
	StateRunning  State = "Running"
	StateVerified State = "Verified"
	StateError    State = "Error"
)

// Backend is a live instance bound to a BackendConfig. Every mutable
// field below is guarded by mu, both Registry's own state transitions
// and any other package reading a Backend's accessors (proxyengine,
// orchestrator, session) go through the same lock, so the registry-map
// mutex (Registry.mu) only ever needs to guard the map structure itself
// (spec §5: "the Backend registry map is guarded by a single
// readers-writer policy").
type Backend struct {
	Config config.BackendConfig

	mu        sync.RWMutex
	state     State
	lastError error
	startedAt time.Time

	handshake mcptypes.HandshakeResult
	tools     []mcptypes.ToolDef

	client transport.Client
}

// Snapshot is an immutable observability view of a Backend (spec §4.2
// snapshot operation), safe to read without holding the registry lock.
type Snapshot struct {
	Name         string                    `json:"name"`
	Transport    config.Transport          `json:"transport"`
	State        State                     `json:"state"`
	LastError    string                    `json:"lastError,omitempty"`
	StartedAt    time.Time                 `json:"startedAt,omitempty"`
	Handshake    mcptypes.HandshakeResult  `json:"handshakeResult,omitempty"`
	Tools        []mcptypes.ToolDef        `json:"tools,omitempty"`
}

func newBackend(cfg config.BackendConfig) *Backend {
	return &Backend{Config: cfg, state: StateStopped}
}

// State returns the backend's current state machine position.
func (b *Backend) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LastError returns the most recently recorded transport/backend error,
// if any.
func (b *Backend) LastError() error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.lastError
}

// Tools returns the backend's cached tool catalog. Per spec §3's
// invariant, this is non-empty only once the backend has reached
// Verified at least once.
func (b *Backend) Tools() []mcptypes.ToolDef {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]mcptypes.ToolDef, len(b.tools))
	copy(out, b.tools)
	return out
}

// HasTool reports whether name appears in the backend's cached catalog.
func (b *Backend) HasTool(name string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, t := range b.tools {
		if t.Name == name {
			return true
		}
	}
	return false
}

// Handshake returns the normalized result of the backend's last
// successful initialize exchange.
func (b *Backend) Handshake() mcptypes.HandshakeResult {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handshake
}

// Capabilities returns the raw capabilities object from the backend's
// last handshake, or nil if it never completed one.
func (b *Backend) Capabilities() json.RawMessage {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.handshake.Capabilities
}

func (b *Backend) snapshot() Snapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Snapshot{
		Name:      b.Config.Name,
		Transport: b.Config.Transport,
		State:     b.state,
		StartedAt: b.startedAt,
		Handshake: b.handshake,
		Tools:     make([]mcptypes.ToolDef, len(b.tools)),
	}
	copy(s.Tools, b.tools)
	if b.lastError != nil {
		s.LastError = b.lastError.Error()
	}
	return s
}
