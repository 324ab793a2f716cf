package session

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/mcpdock/gateway/internal/backend"
	"github.com/mcpdock/gateway/internal/config"
	"github.com/mcpdock/gateway/internal/heartbeat"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
	"github.com/mcpdock/gateway/internal/ratelimit"
)

// Manager owns every open Session for one EVENT proxy. One Manager is
// created per proxy (spec §4.4: "a Session Manager instance scoped to
// this proxy").
type Manager struct {
	proxyName   string
	backendName string
	registry    *backend.Registry
	admission   *ratelimit.Admission
	cfg         config.SessionConfig
	heartbeat   config.HeartbeatConfig
	logger      *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*Session

	stopReaper chan struct{}
}

// New constructs a Manager for proxyName's sessions against backendName,
// wiring the Admission controller shared across the gateway and the
// session/heartbeat lifecycle constants from cfg.
func New(proxyName, backendName string, registry *backend.Registry, admission *ratelimit.Admission, cfg config.SessionConfig, hbCfg config.HeartbeatConfig, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{
		proxyName:   proxyName,
		backendName: backendName,
		registry:    registry,
		admission:   admission,
		cfg:         cfg,
		heartbeat:   hbCfg,
		logger:      logger,
		sessions:    make(map[string]*Session),
		stopReaper:  make(chan struct{}),
	}
	go m.reapLoop()
	return m
}

// Open admits and allocates a new session for a client opening an EVENT
// stream (spec §4.5 steps 1-2).
func (m *Manager) Open(clientAddr, userAgent, messagesPath string) (*Session, error) {
	ok, reason := m.admission.Admit(clientAddr, m.proxyName)
	if !ok {
		return nil, mcperrors.Session("open", "admission rejected: %s", reason)
	}

	s := newSession(m.proxyName, clientAddr, userAgent, m.cfg.MaxQueue)
	s.Heartbeat = heartbeat.NewController(m.heartbeat)

	if err := s.Enqueue(DiscoveryEvent(messagesPath)); err != nil {
		m.admission.Release(clientAddr, m.proxyName)
		return nil, err
	}

	m.mu.Lock()
	m.sessions[s.ID] = s
	m.mu.Unlock()

	go m.runHeartbeat(context.Background(), s)

	return s, nil
}

// Get returns the session for id, if it belongs to this proxy.
func (m *Manager) Get(id string) (*Session, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	return s, ok
}

// Close removes and closes a session, releasing its admission slot.
func (m *Manager) Close(id string) {
	m.mu.Lock()
	s, ok := m.sessions[id]
	if ok {
		delete(m.sessions, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	s.close()
	m.admission.Release(s.ClientAddr, m.proxyName)
}

// Broadcast fans a server-initiated stream message out to every open
// session's outbound queue (spec §4.5: "any server-initiated stream
// messages that arrive concurrently from the backend ... is enqueued
// onto this session's pendingQueue"). A session whose queue has
// overflowed is force-closed, the same way the heartbeat loop already
// treats an overflowed enqueue as fatal to that session.
func (m *Manager) Broadcast(method string, params json.RawMessage) {
	m.mu.RLock()
	sessions := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		sessions = append(sessions, s)
	}
	m.mu.RUnlock()

	msg := &mcptypes.Message{JSONRPC: "2.0", Method: method, Params: params}
	for _, s := range sessions {
		if err := s.Enqueue(msg); err != nil {
			m.logger.Warn("session queue overflow on backend stream message, closing", "session", s.ID, "proxy", m.proxyName)
			m.Close(s.ID)
		}
	}
}

// Count returns the number of open sessions.
func (m *Manager) Count() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.sessions)
}

// Shutdown stops the reap sweeper and closes every open session.
func (m *Manager) Shutdown() {
	close(m.stopReaper)
	m.mu.Lock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	m.mu.Unlock()
	for _, id := range ids {
		m.Close(id)
	}
}

// reapLoop runs the idle/uninitialized/backend-grace reap sweeper (spec
// §4.5's last paragraph), grounded on sse_session_manager.py's periodic
// cleanup task.
func (m *Manager) reapLoop() {
	interval := time.Duration(m.cfg.ReapInterval)
	if interval <= 0 {
		interval = 60 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			m.sweep()
		case <-m.stopReaper:
			return
		}
	}
}

func (m *Manager) sweep() {
	now := time.Now()

	m.mu.RLock()
	candidates := make([]*Session, 0, len(m.sessions))
	for _, s := range m.sessions {
		candidates = append(candidates, s)
	}
	m.mu.RUnlock()

	idleTTL := time.Duration(m.cfg.IdleTTL)
	initDeadline := time.Duration(m.cfg.InitDeadline)
	backendGrace := time.Duration(m.cfg.BackendGrace)

	b, backendKnown := m.registry.Get(m.backendName)

	for _, s := range candidates {
		reason := ""
		switch {
		case s.idleFor(now) > idleTTL:
			reason = "idle timeout"
		case !s.isInitialized() && s.ageFor(now) > initDeadline:
			reason = "uninitialized deadline exceeded"
		case backendKnown && b.State() != backend.StateVerified && m.backendUngraced(s, now, backendGrace):
			reason = "backend left verified beyond grace period"
		default:
			if backendKnown && b.State() == backend.StateVerified {
				s.clearBackendUnverified()
			}
		}
		if reason != "" {
			m.logger.Info("reaping session", "session", s.ID, "proxy", m.proxyName, "reason", reason)
			m.Close(s.ID)
		}
	}
}

// backendUngraced tracks, per session, how long the backend has been
// unverified and reports whether that exceeds grace. The timestamp is
// stamped lazily on the session the first time it's observed unverified,
// and cleared once the backend re-verifies.
func (m *Manager) backendUngraced(s *Session, now time.Time, grace time.Duration) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backendUnverifiedSince.IsZero() {
		s.backendUnverifiedSince = now
		return false
	}
	return now.Sub(s.backendUnverifiedSince) > grace
}
