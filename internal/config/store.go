package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// ConfigStore is the persistence collaborator of spec §6: the Backend
// Registry, the Auto-Start Orchestrator and gateway.New read and write
// backend/proxy descriptors
// through this interface rather than touching a file directly, so the
// gateway can be pointed at a database-backed store later without
// changing either component.
type ConfigStore interface {
	ListBackends() ([]BackendConfig, error)
	GetBackend(name string) (BackendConfig, bool, error)
	PutBackend(cfg BackendConfig) error
	DeleteBackend(name string) error

	ListProxies() ([]ProxyConfig, error)
	GetProxy(name string) (ProxyConfig, bool, error)
	PutProxy(cfg ProxyConfig) error
	DeleteProxy(name string) error
}

// fileStore is the default ConfigStore: two JSON documents on disk,
// one map of backend name to BackendConfig and one of proxy name to
// ProxyConfig, guarded by a mutex and rewritten atomically on every
// write. Grounded on mcp_service.py's _load_config/save_config; the
// Python original keeps everything in a single mcpServers document,
// whereas backends and proxies live in separate files here.
type fileStore struct {
	mu          sync.Mutex
	backendPath string
	proxyPath   string
}

// NewFileStore opens (or creates) a JSON-file-backed ConfigStore rooted
// at dir, so the gateway is runnable standalone without an external
// database.
func NewFileStore(dir string) (ConfigStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("config: create store dir: %w", err)
	}
	fs := &fileStore{
		backendPath: filepath.Join(dir, "backends.json"),
		proxyPath:   filepath.Join(dir, "proxies.json"),
	}
	for _, p := range []string{fs.backendPath, fs.proxyPath} {
		if _, err := os.Stat(p); os.IsNotExist(err) {
			if err := writeJSONAtomic(p, map[string]json.RawMessage{}); err != nil {
				return nil, err
			}
		}
	}
	return fs, nil
}

func writeJSONAtomic(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("config: marshal %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("config: write %s: %w", tmp, err)
	}
	return os.Rename(tmp, path)
}

func readJSONMap[T any](path string) (map[string]T, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return map[string]T{}, nil
		}
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	if len(data) == 0 {
		return map[string]T{}, nil
	}
	out := map[string]T{}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return out, nil
}

func (fs *fileStore) ListBackends() ([]BackendConfig, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[BackendConfig](fs.backendPath)
	if err != nil {
		return nil, err
	}
	out := make([]BackendConfig, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out, nil
}

func (fs *fileStore) GetBackend(name string) (BackendConfig, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[BackendConfig](fs.backendPath)
	if err != nil {
		return BackendConfig{}, false, err
	}
	cfg, ok := m[name]
	return cfg, ok, nil
}

func (fs *fileStore) PutBackend(cfg BackendConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[BackendConfig](fs.backendPath)
	if err != nil {
		return err
	}
	m[cfg.Name] = cfg
	return writeJSONAtomic(fs.backendPath, m)
}

func (fs *fileStore) DeleteBackend(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[BackendConfig](fs.backendPath)
	if err != nil {
		return err
	}
	delete(m, name)
	return writeJSONAtomic(fs.backendPath, m)
}

func (fs *fileStore) ListProxies() ([]ProxyConfig, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[ProxyConfig](fs.proxyPath)
	if err != nil {
		return nil, err
	}
	out := make([]ProxyConfig, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out, nil
}

func (fs *fileStore) GetProxy(name string) (ProxyConfig, bool, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[ProxyConfig](fs.proxyPath)
	if err != nil {
		return ProxyConfig{}, false, err
	}
	cfg, ok := m[name]
	return cfg, ok, nil
}

func (fs *fileStore) PutProxy(cfg ProxyConfig) error {
	if err := cfg.Validate(); err != nil {
		return err
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[ProxyConfig](fs.proxyPath)
	if err != nil {
		return err
	}
	m[cfg.Name] = cfg
	return writeJSONAtomic(fs.proxyPath, m)
}

func (fs *fileStore) DeleteProxy(name string) error {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	m, err := readJSONMap[ProxyConfig](fs.proxyPath)
	if err != nil {
		return err
	}
	delete(m, name)
	return writeJSONAtomic(fs.proxyPath, m)
}
