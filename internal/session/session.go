// Package session implements the Session Manager (spec §4.5): per-EVENT-
// proxy bookkeeping of open client streams, translated from
// mcp_dock/core/sse_session_manager.py's singleton SSESessionManager +
// module-level Lock into an owned value with explicit goroutines (spec
// §9 redesign note: no ambient-process singleton).
package session

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/mcpdock/gateway/internal/heartbeat"
	"github.com/mcpdock/gateway/internal/mcperrors"
	"github.com/mcpdock/gateway/internal/mcptypes"
)

// DefaultMaxQueue is the spec §4.5 default bounded FIFO capacity of a
// session's pendingQueue, used when SessionConfig.MaxQueue is unset.
const DefaultMaxQueue = 1024

// Session is a per-client open EVENT stream (spec §3).
type Session struct {
	ID           string
	ProxyName    string
	ClientAddr   string
	UserAgent    string
	CreatedAt    time.Time
	MaxQueue     int

	mu            sync.Mutex
	lastActivity  time.Time
	initialized   bool
	backendUnverifiedSince time.Time

	pendingQueue chan *mcptypes.Message
	closed       chan struct{}
	closeOnce    sync.Once

	Metrics    *heartbeat.Metrics
	Heartbeat  *heartbeat.Controller
}

func newSession(proxyName, clientAddr, userAgent string, maxQueue int) *Session {
	if maxQueue <= 0 {
		maxQueue = DefaultMaxQueue
	}
	return &Session{
		ID:           uuid.NewString(),
		ProxyName:    proxyName,
		ClientAddr:   clientAddr,
		UserAgent:    userAgent,
		CreatedAt:    time.Now(),
		MaxQueue:     maxQueue,
		lastActivity: time.Now(),
		pendingQueue: make(chan *mcptypes.Message, maxQueue),
		closed:       make(chan struct{}),
		Metrics:      heartbeat.NewMetrics(),
	}
}

// Touch refreshes the session's last-activity timestamp.
func (s *Session) Touch() {
	s.mu.Lock()
	s.lastActivity = time.Now()
	s.mu.Unlock()
}

// MarkInitialized records that the session completed its initialize
// handshake.
func (s *Session) MarkInitialized() {
	s.mu.Lock()
	s.initialized = true
	s.mu.Unlock()
}

func (s *Session) isInitialized() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.initialized
}

func (s *Session) idleFor(now time.Time) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastActivity)
}

func (s *Session) ageFor(now time.Time) time.Duration {
	return now.Sub(s.CreatedAt)
}

// clearBackendUnverified resets the backend-left-verified timestamp once
// the backend has re-verified, so a later unverified spell starts its
// own grace window instead of being judged against a stale one.
func (s *Session) clearBackendUnverified() {
	s.mu.Lock()
	s.backendUnverifiedSince = time.Time{}
	s.mu.Unlock()
}

// Enqueue appends msg to the session's outbound FIFO. Returns a
// session-kind *mcperrors.Error if the queue is full, per spec §4.5's
// force-close-on-overflow rule; the caller is responsible for closing
// the session on that error.
func (s *Session) Enqueue(msg *mcptypes.Message) error {
	select {
	case s.pendingQueue <- msg:
		return nil
	default:
		return mcperrors.Session("enqueue", "session %s: pending queue full (max %d)", s.ID, s.MaxQueue)
	}
}

// Outbound returns the channel a writer goroutine should drain in FIFO
// order.
func (s *Session) Outbound() <-chan *mcptypes.Message { return s.pendingQueue }

// Done is closed when the session is closed.
func (s *Session) Done() <-chan struct{} { return s.closed }

func (s *Session) close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// DiscoveryEvent builds the initial message queued on session creation
// telling the client where to POST follow-up messages (spec §4.5 step
// 2).
func DiscoveryEvent(messagesPath string) *mcptypes.Message {
	params, _ := json.Marshal(map[string]string{"endpoint": messagesPath})
	return &mcptypes.Message{JSONRPC: "2.0", Method: "endpoint", Params: params}
}
