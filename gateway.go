// Package gateway wires the nine components of the unified multi-transport
// MCP gateway together: the config store, Backend Registry (C2), Proxy
// Engine (C4), Session Managers (C5) per EVENT proxy, Rate Limit &
// Admission (C8), Request Ingress (C7), and the Auto-Start Orchestrator
// (C9), following the teacher's functional-options `Proxy`/`Option`
// construction idiom.
package gateway

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mcpdock/gateway/internal/backend"
	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/ingress"
	"github.com/mcpdock/gateway/internal/orchestrator"
	"github.com/mcpdock/gateway/internal/proxyengine"
	"github.com/mcpdock/gateway/internal/ratelimit"
	"github.com/mcpdock/gateway/internal/session"
)

// GatewayConfig is the gateway's own ambient YAML settings document: the
// listen address plus an optional seed set of backend/proxy descriptors
// to import into the ConfigStore on first run. Grounded on the teacher's
// `config.go` Config/MCPConfig shape, with the REST Backend/Endpoint
// model replaced by this gateway's BackendConfig/ProxyConfig data model
// (spec §3).
type GatewayConfig struct {
	Name             string `yaml:"name"`
	Addr             string `yaml:"addr"`
	BaseURL          string `yaml:"base_url"`
	StoreDir         string `yaml:"store_dir"`
	Version          string `yaml:"version"`
	LegacyImportPath string `yaml:"legacy_import_path,omitempty"`

	RateLimit config.RateLimitConfig `yaml:"rate_limit"`
	Session   config.SessionConfig   `yaml:"session"`
	Heartbeat config.HeartbeatConfig `yaml:"heartbeat"`

	Backends []config.BackendConfig `yaml:"backends,omitempty"`
	Proxies  []config.ProxyConfig   `yaml:"proxies,omitempty"`
}

// DefaultGatewayConfig returns the spec's documented defaults for every
// adjustable knob (spec §4.5/§4.6/§4.8).
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		Name:      "mcpdock-gateway",
		Addr:      ":8888",
		StoreDir:  "./data",
		Version:   "1.0.0",
		RateLimit: config.DefaultRateLimitConfig(),
		Session:   config.DefaultSessionConfig(),
		Heartbeat: config.DefaultHeartbeatConfig(),
	}
}

// ParseGatewayConfig reads a YAML gateway config file over the
// DefaultGatewayConfig values, expanding environment variables and a
// leading `~/` in filename the way the teacher's `config.go` `expandPath`
// does. It does not validate the result; seeded backend and proxy
// descriptors are validated when New writes them into the ConfigStore.
func ParseGatewayConfig(filename string) (*GatewayConfig, error) {
	data, err := os.ReadFile(expandPath(filename))
	if err != nil {
		return nil, fmt.Errorf("gateway: read config %q: %w", filename, err)
	}
	cfg := DefaultGatewayConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("gateway: parse config %q: %w", filename, err)
	}
	return cfg, nil
}

func expandPath(path string) string {
	expanded := os.ExpandEnv(path)
	if strings.HasPrefix(expanded, "~/") {
		if home, err := os.UserHomeDir(); err == nil {
			expanded = filepath.Join(home, expanded[2:])
		}
	}
	return expanded
}

// Option configures a Gateway at construction time.
type Option func(*Gateway)

func WithLogger(logger *slog.Logger) Option {
	return func(g *Gateway) { g.logger = logger }
}

// Gateway is the assembled runtime: every component wired together and
// ready to Start.
type Gateway struct {
	cfg    *GatewayConfig
	logger *slog.Logger

	store     config.ConfigStore
	registry  *backend.Registry
	admission *ratelimit.Admission
	engine    *proxyengine.Engine
	ingress   *ingress.Server

	mu              sync.Mutex
	proxies         map[string]*proxyengine.Proxy
	sessionManagers map[string]*session.Manager

	httpServer *http.Server
	wg         sync.WaitGroup
}

// New constructs a Gateway from cfg, seeding the config store with any
// backends/proxies the config document carries, then building the
// Backend Registry, Proxy Engine, Admission controller, per-EVENT-proxy
// Session Managers, and Request Ingress mux.
func New(cfg *GatewayConfig, opts ...Option) (*Gateway, error) {
	if cfg == nil {
		cfg = DefaultGatewayConfig()
	}
	g := &Gateway{
		cfg:             cfg,
		logger:          slog.Default(),
		proxies:         make(map[string]*proxyengine.Proxy),
		sessionManagers: make(map[string]*session.Manager),
	}
	for _, opt := range opts {
		opt(g)
	}

	store, err := config.NewFileStore(cfg.StoreDir)
	if err != nil {
		return nil, err
	}
	g.store = store

	seedBackends := cfg.Backends
	if cfg.LegacyImportPath != "" {
		legacy, err := config.ImportLegacyFile(expandPath(cfg.LegacyImportPath))
		if err != nil {
			return nil, fmt.Errorf("gateway: import legacy config: %w", err)
		}
		seedBackends = append(append([]config.BackendConfig(nil), seedBackends...), legacy...)
	}
	for _, b := range seedBackends {
		if _, ok, _ := store.GetBackend(b.Name); !ok {
			if err := store.PutBackend(b); err != nil {
				return nil, fmt.Errorf("gateway: seed backend %q: %w", b.Name, err)
			}
		}
	}
	for _, p := range cfg.Proxies {
		if _, ok, _ := store.GetProxy(p.Name); !ok {
			if err := store.PutProxy(p); err != nil {
				return nil, fmt.Errorf("gateway: seed proxy %q: %w", p.Name, err)
			}
		}
	}

	registry, err := backend.New(store, g.logger)
	if err != nil {
		return nil, err
	}
	g.registry = registry

	g.admission = ratelimit.New(cfg.RateLimit)
	g.engine = proxyengine.NewEngine(registry, cfg.Name, cfg.Version)
	g.ingress = ingress.NewServer(g.engine, g.logger)

	proxyCfgs, err := store.ListProxies()
	if err != nil {
		return nil, err
	}
	for _, pc := range proxyCfgs {
		p := proxyengine.NewProxy(pc)
		g.proxies[pc.Name] = p

		var mgr *session.Manager
		if pc.Transport == config.TransportEvent {
			mgr = session.New(pc.Name, pc.BackendName, registry, g.admission, cfg.Session, cfg.Heartbeat, g.logger)
			g.sessionManagers[pc.Name] = mgr
		}
		g.ingress.Register(p, mgr)
	}

	registry.Subscribe(func(backendName string) {
		g.mu.Lock()
		defer g.mu.Unlock()
		b, ok := registry.Get(backendName)
		if !ok {
			return
		}
		for _, p := range g.proxies {
			if p.Config.BackendName == backendName {
				p.RefreshEffectiveTools(b)
			}
		}
	})

	registry.SubscribeStream(func(backendName, method string, params json.RawMessage) {
		g.mu.Lock()
		defer g.mu.Unlock()
		for name, mgr := range g.sessionManagers {
			p, ok := g.proxies[name]
			if !ok || p.Config.BackendName != backendName {
				continue
			}
			mgr.Broadcast(method, params)
		}
	})

	return g, nil
}

// Start runs the Auto-Start Orchestrator (spec §4.9) then begins serving
// HTTP traffic in a background goroutine. It returns once the orchestrator
// pass and the listener are both up; call Close (or cancel ctx) to shut
// down.
func (g *Gateway) Start(ctx context.Context) error {
	report, err := orchestrator.Run(ctx, g.registry, g.store, g.proxies, g.logger)
	if err != nil {
		return fmt.Errorf("gateway: auto-start: %w", err)
	}
	g.logger.Info("gateway auto-start complete",
		"backends_started", report.BackendsStarted,
		"proxies_started", report.ProxiesStarted,
	)

	ln, err := net.Listen("tcp", g.cfg.Addr)
	if err != nil {
		return fmt.Errorf("gateway: bind %s: %w", g.cfg.Addr, err)
	}

	g.httpServer = &http.Server{
		Addr:    g.cfg.Addr,
		Handler: g.ingress.Handler(),
	}

	g.wg.Add(1)
	go func() {
		defer g.wg.Done()
		g.logger.Info("gateway listening", "addr", g.cfg.Addr)
		if err := g.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			g.logger.Error("gateway http server error", "error", err)
		}
	}()

	go func() {
		<-ctx.Done()
		g.Close()
	}()

	return nil
}

// Close gracefully shuts down the HTTP listener, every session manager,
// and every backend connection.
func (g *Gateway) Close() {
	if g.httpServer != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := g.httpServer.Shutdown(shutdownCtx); err != nil {
			g.logger.Error("gateway http shutdown error", "error", err)
		}
	}

	g.mu.Lock()
	managers := make([]*session.Manager, 0, len(g.sessionManagers))
	for _, m := range g.sessionManagers {
		managers = append(managers, m)
	}
	g.mu.Unlock()
	for _, m := range managers {
		m.Shutdown()
	}

	for _, name := range g.registry.Names() {
		_ = g.registry.Stop(name)
	}

	g.wg.Wait()
}

// Registry exposes the Backend Registry for management-plane callers
// (config-management paths are reserved for the external UI collaborator
// per spec §4.7, but the registry itself is a public collaborator of this
// package).
func (g *Gateway) Registry() *backend.Registry { return g.registry }

// Store exposes the ConfigStore for management-plane callers.
func (g *Gateway) Store() config.ConfigStore { return g.store }
