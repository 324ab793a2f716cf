package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpdock/gateway/internal/compliance"
	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
	"github.com/mcpdock/gateway/internal/transport"
)

// Subscriber is notified whenever a backend's tool catalog changes, so
// the Proxy Engine can invalidate its cached effective tool list (spec
// §4.4).
type Subscriber func(backendName string)

// StreamSubscriber is notified for every server-initiated notification a
// backend's client pushes outside of a request/response round trip
// (spec §4.1's subscribe() capability, fanned out to every session
// belonging to that backend by the caller; the Registry itself has no
// notion of sessions).
type StreamSubscriber func(backendName, method string, params json.RawMessage)

// Registry owns the map of every known Backend behind a single
// readers-writer lock (spec §5: "the Backend registry map is guarded by
// a single readers-writer policy; tool-catalog reads are frequent and
// hot-path"); each Backend's own mutable fields are guarded by its own
// lock (see Backend.mu) so that Backend's public accessors stay safe to
// call from proxyengine/orchestrator/session without going through the
// Registry.
type Registry struct {
	mu       sync.RWMutex
	backends map[string]*Backend
	store    config.ConfigStore
	logger   *slog.Logger

	subMu sync.Mutex
	subs  []Subscriber

	streamSubMu sync.Mutex
	streamSubs  []StreamSubscriber
}

// New constructs a Registry backed by store, loading any backends
// already persisted there.
func New(store config.ConfigStore, logger *slog.Logger) (*Registry, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Registry{backends: make(map[string]*Backend), store: store, logger: logger}

	cfgs, err := store.ListBackends()
	if err != nil {
		return nil, fmt.Errorf("backend: load configs: %w", err)
	}
	for _, cfg := range cfgs {
		r.backends[cfg.Name] = newBackend(cfg)
	}
	return r, nil
}

// Subscribe registers fn to be called on every tool-catalog change.
func (r *Registry) Subscribe(fn Subscriber) {
	r.subMu.Lock()
	r.subs = append(r.subs, fn)
	r.subMu.Unlock()
}

func (r *Registry) notify(name string) {
	r.subMu.Lock()
	subs := append([]Subscriber(nil), r.subs...)
	r.subMu.Unlock()
	for _, fn := range subs {
		fn(name)
	}
}

// SubscribeStream registers fn to be called for every backend-initiated
// stream notification arriving outside of a request/response round
// trip (spec §4.1/§4.5).
func (r *Registry) SubscribeStream(fn StreamSubscriber) {
	r.streamSubMu.Lock()
	r.streamSubs = append(r.streamSubs, fn)
	r.streamSubMu.Unlock()
}

func (r *Registry) notifyStream(name, method string, params json.RawMessage) {
	r.streamSubMu.Lock()
	subs := append([]StreamSubscriber(nil), r.streamSubs...)
	r.streamSubMu.Unlock()
	for _, fn := range subs {
		fn(name, method, params)
	}
}

// Get returns the named backend, if known.
func (r *Registry) Get(name string) (*Backend, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	return b, ok
}

// Names returns every known backend name.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]string, 0, len(r.backends))
	for name := range r.backends {
		out = append(out, name)
	}
	return out
}

// Create registers a new backend, validating name uniqueness.
func (r *Registry) Create(cfg config.BackendConfig) error {
	if err := cfg.Validate(); err != nil {
		return mcperrors.Config("create", "%v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.backends[cfg.Name]; exists {
		return mcperrors.Config("create", "backend %q already exists", cfg.Name)
	}
	if err := r.store.PutBackend(cfg); err != nil {
		return err
	}
	r.backends[cfg.Name] = newBackend(cfg)
	return nil
}

// Update replaces an existing backend's configuration. If the backend is
// running it keeps running under the old connection until the caller
// explicitly restarts it.
func (r *Registry) Update(name string, cfg config.BackendConfig) error {
	if err := cfg.Validate(); err != nil {
		return mcperrors.Config("update", "%v", err)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	b, ok := r.backends[name]
	if !ok {
		return mcperrors.Config("update", "backend %q not found", name)
	}
	if err := r.store.PutBackend(cfg); err != nil {
		return err
	}
	b.Config = cfg
	return nil
}

// Delete removes a backend, stopping it first.
func (r *Registry) Delete(name string) error {
	r.mu.Lock()
	b, ok := r.backends[name]
	r.mu.Unlock()
	if !ok {
		return mcperrors.Config("delete", "backend %q not found", name)
	}
	r.stopLocked(b)

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.backends, name)
	return r.store.DeleteBackend(name)
}

// Start is idempotent: valid from Stopped/Error, a no-op from
// Running/Verified/Starting. It dials via internal/transport, performs
// the handshake, then fetches the tool catalog (spec §4.2).
func (r *Registry) Start(ctx context.Context, name string) error {
	r.mu.Lock()
	b, ok := r.backends[name]
	r.mu.Unlock()
	if !ok {
		return mcperrors.Config("start", "backend %q not found", name)
	}

	b.mu.Lock()
	switch b.state {
	case StateRunning, StateVerified, StateStarting:
		b.mu.Unlock()
		return nil
	}
	b.state = StateStarting
	b.mu.Unlock()

	cl, err := transport.New(b.Config)
	if err != nil {
		b.mu.Lock()
		b.state = StateError
		b.lastError = err
		b.mu.Unlock()
		return mcperrors.Backend("start", err)
	}

	handshakeCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	raw, err := cl.Handshake(handshakeCtx)
	cancel()
	if err != nil {
		_ = cl.Close()
		b.mu.Lock()
		b.state = StateError
		b.lastError = err
		b.mu.Unlock()
		return mcperrors.Backend("start", err)
	}

	result, err := compliance.FixHandshakeResult(raw, string(mcptypes.ProtocolPrimary))
	if err != nil {
		_ = cl.Close()
		b.mu.Lock()
		b.state = StateError
		b.lastError = err
		b.mu.Unlock()
		return mcperrors.Backend("start", err)
	}

	if err := cl.Subscribe(func(method string, params json.RawMessage) {
		r.notifyStream(name, method, params)
	}); err != nil {
		r.logger.Warn("backend stream subscribe failed", "backend", name, "error", err)
	}

	b.mu.Lock()
	b.client = cl
	b.handshake = result
	b.startedAt = time.Now()
	b.state = StateRunning
	b.mu.Unlock()

	if err := r.fetchTools(ctx, b); err != nil {
		r.logger.Warn("backend handshake succeeded but tool fetch failed; retrying",
			"backend", name, "error", err)
		time.AfterFunc(5*time.Second, func() {
			_ = r.Verify(context.Background(), name)
		})
		return nil
	}
	return nil
}

func (r *Registry) fetchTools(ctx context.Context, b *Backend) error {
	listCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	b.mu.RLock()
	cl := b.client
	b.mu.RUnlock()
	if cl == nil {
		return mcperrors.Config("verify", "backend %q is not connected", b.Config.Name)
	}

	reply, err := cl.ListTools(listCtx)
	if err != nil {
		b.mu.Lock()
		b.lastError = err
		b.mu.Unlock()
		return err
	}

	b.mu.Lock()
	b.tools = compliance.FixToolCatalog(reply)
	b.state = StateVerified
	b.lastError = nil
	b.mu.Unlock()

	r.notify(b.Config.Name)
	return nil
}

// Stop sends close on the client handle and transitions to Stopped.
func (r *Registry) Stop(name string) error {
	r.mu.Lock()
	b, ok := r.backends[name]
	r.mu.Unlock()
	if !ok {
		return mcperrors.Config("stop", "backend %q not found", name)
	}
	r.stopLocked(b)
	return nil
}

func (r *Registry) stopLocked(b *Backend) {
	b.mu.Lock()
	cl := b.client
	b.client = nil
	b.state = StateStopped
	b.mu.Unlock()

	if cl != nil {
		_ = cl.Close()
	}
}

// Restart stops then starts the named backend.
func (r *Registry) Restart(ctx context.Context, name string) error {
	if err := r.Stop(name); err != nil {
		return err
	}
	return r.Start(ctx, name)
}

// Verify re-runs listTools, updates the cached catalog, and notifies
// subscribers so the Proxy Engine can refresh its effective tool list.
func (r *Registry) Verify(ctx context.Context, name string) error {
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return mcperrors.Config("verify", "backend %q not found", name)
	}
	return r.fetchTools(ctx, b)
}

// Snapshot returns an immutable view of a backend's current state.
func (r *Registry) Snapshot(name string) (Snapshot, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.backends[name]
	if !ok {
		return Snapshot{}, false
	}
	return b.snapshot(), true
}

// SnapshotAll returns a Snapshot for every known backend.
func (r *Registry) SnapshotAll() []Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Snapshot, 0, len(r.backends))
	for _, b := range r.backends {
		out = append(out, b.snapshot())
	}
	return out
}

// Notify forwards a fire-and-forget notification to the named backend's
// client.
func (r *Registry) Notify(ctx context.Context, name, method string, params []byte) error {
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return mcperrors.Config("notify", "backend %q not found", name)
	}
	b.mu.RLock()
	cl := b.client
	b.mu.RUnlock()
	if cl == nil {
		return mcperrors.BackendNotVerified(name)
	}
	return cl.Notify(ctx, method, params)
}

// Call routes a JSON-RPC call to the named backend's client, failing if
// the backend isn't Verified.
func (r *Registry) Call(ctx context.Context, name, method string, params []byte) ([]byte, error) {
	r.mu.RLock()
	b, ok := r.backends[name]
	r.mu.RUnlock()
	if !ok {
		return nil, mcperrors.Config("call", "backend %q not found", name)
	}
	b.mu.RLock()
	state, cl := b.state, b.client
	b.mu.RUnlock()
	if state != StateVerified {
		return nil, mcperrors.BackendNotVerified(name)
	}
	if cl == nil {
		return nil, mcperrors.BackendNotVerified(name)
	}
	return cl.Call(ctx, method, params)
}
