// Package ingress implements Request Ingress (spec §4.7): the `net/http`
// mux that accepts inbound connections on the gateway's listen address
// and routes them by path into the Proxy Engine (C4) and, for EVENT
// proxies, the Session Manager (C5).
package ingress

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/mcpdock/gateway/internal/mcptypes"
	"github.com/mcpdock/gateway/internal/proxyengine"
	"github.com/mcpdock/gateway/internal/session"
)

// route bundles everything Ingress needs to serve one registered proxy.
type route struct {
	proxy   *proxyengine.Proxy
	manager *session.Manager // nil for an HTTP-only proxy
}

// Server is the gateway's single net/http handler, multiplexing every
// registered proxy's endpoint plus its companion /messages path.
type Server struct {
	engine *proxyengine.Engine
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]*route // keyed by ProxyConfig.Name

	mux *http.ServeMux
}

// NewServer constructs an empty Ingress server bound to engine.
func NewServer(engine *proxyengine.Engine, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		engine: engine,
		logger: logger,
		routes: make(map[string]*route),
		mux:    http.NewServeMux(),
	}
	return s
}

// Register mounts a proxy's endpoint and /messages path on the mux. mgr
// is nil for an HTTP-transport-only proxy that never opens EVENT
// sessions.
func (s *Server) Register(p *proxyengine.Proxy, mgr *session.Manager) {
	s.mu.Lock()
	s.routes[p.Config.Name] = &route{proxy: p, manager: mgr}
	s.mu.Unlock()

	endpointPath := "/" + p.Config.Name + p.Config.Endpoint
	messagesPath := "/" + p.Config.Name + "/messages"

	s.mux.HandleFunc(endpointPath, s.traced(endpointPath, func(w http.ResponseWriter, r *http.Request) {
		s.handleEndpoint(w, r, p.Config.Name)
	}))
	s.mux.HandleFunc(messagesPath, s.traced(messagesPath, func(w http.ResponseWriter, r *http.Request) {
		s.handleMessages(w, r, p.Config.Name)
	}))
}

// Handler returns the composed http.Handler for all registered proxies.
func (s *Server) Handler() http.Handler { return s.mux }

// traced wraps a handler with the teacher's server.Hooks-style
// before/after/error request tracing idiom, rebuilt on top of slog
// since this gateway doesn't run mcp-go's own server.MCPServer.
func (s *Server) traced(path string, next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		s.logger.Debug("beforeAny", "path", path, "method", r.Method, "remote", r.RemoteAddr)
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next(rec, r)
		if rec.status >= 400 {
			s.logger.Error("onError", "path", path, "status", rec.status, "duration", time.Since(start))
		} else {
			s.logger.Debug("onSuccess", "path", path, "status", rec.status, "duration", time.Since(start))
		}
	}
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (s *Server) route(name string) (*route, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rt, ok := s.routes[name]
	return rt, ok
}

// handleEndpoint serves `{proxyName}{proxyEndpoint}` (spec §4.7 rules 1-2).
func (s *Server) handleEndpoint(w http.ResponseWriter, r *http.Request, proxyName string) {
	rt, ok := s.route(proxyName)
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch r.Method {
	case http.MethodGet:
		if !strings.Contains(r.Header.Get("Accept"), "text/event-stream") {
			http.Error(w, "expected Accept: text/event-stream for a GET session open", http.StatusBadRequest)
			return
		}
		s.openEventSession(w, r, rt)
	case http.MethodPost:
		s.handleInlineCall(w, r, rt)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// openEventSession implements spec §4.7 rule 1: GET+SSE opens an EVENT
// session via the Session Manager, then streams its pendingQueue to the
// client as server-sent events until the session closes.
func (s *Server) openEventSession(w http.ResponseWriter, r *http.Request, rt *route) {
	if rt.manager == nil {
		http.Error(w, "proxy does not support EVENT sessions", http.StatusBadRequest)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	messagesPath := "/" + rt.proxy.Config.Name + "/messages"
	sess, err := rt.manager.Open(clientAddr(r), r.UserAgent(), messagesPath)
	if err != nil {
		http.Error(w, err.Error(), http.StatusTooManyRequests)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case msg, ok := <-sess.Outbound():
			if !ok {
				return
			}
			data, err := json.Marshal(msg)
			if err != nil {
				continue
			}
			if _, err := w.Write([]byte("data: " + string(data) + "\n\n")); err != nil {
				rt.manager.Close(sess.ID)
				return
			}
			flusher.Flush()
		case <-sess.Done():
			return
		case <-ctx.Done():
			rt.manager.Close(sess.ID)
			return
		}
	}
}

// handleInlineCall implements spec §4.7 rule 2: a POST to the proxy's
// own endpoint is a single HTTP-transport request, handled inline by
// the Proxy Engine with a synchronous response.
func (s *Server) handleInlineCall(w http.ResponseWriter, r *http.Request, rt *route) {
	msg, err := readMessage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), 300*time.Second)
	defer cancel()

	out := s.engine.Route(ctx, rt.proxy, msg)
	writeMessage(w, out)
}

// handleMessages implements spec §4.7 rule 3: a POST to
// `{proxyName}/messages?sessionId=...` is dispatched against the
// proxy's backend and the response is queued onto the named session's
// outbound stream rather than returned synchronously, mirroring an
// SSE transport's decoupled request/response legs.
func (s *Server) handleMessages(w http.ResponseWriter, r *http.Request, proxyName string) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	rt, ok := s.route(proxyName)
	if !ok || rt.manager == nil {
		http.NotFound(w, r)
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	sess, ok := rt.manager.Get(sessionID)
	if !ok {
		http.Error(w, "unknown sessionId", http.StatusNotFound)
		return
	}

	msg, err := readMessage(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	sess.Touch()
	if msg.Method == "initialize" {
		sess.MarkInitialized()
	}

	ctx, cancel := context.WithTimeout(r.Context(), 300*time.Second)
	defer cancel()

	out := s.engine.Route(ctx, rt.proxy, msg)
	w.WriteHeader(http.StatusAccepted)

	if out == nil {
		return
	}
	if err := sess.Enqueue(out); err != nil {
		s.logger.Warn("session outbound queue overflow, closing", "session", sess.ID, "error", err)
		rt.manager.Close(sess.ID)
	}
}

func readMessage(r *http.Request) (*mcptypes.Message, error) {
	defer r.Body.Close()
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	var msg mcptypes.Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return nil, err
	}
	if msg.JSONRPC == "" {
		msg.JSONRPC = "2.0"
	}
	return &msg, nil
}

func writeMessage(w http.ResponseWriter, msg *mcptypes.Message) {
	w.Header().Set("Content-Type", "application/json")
	if msg == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	_ = json.NewEncoder(w).Encode(msg)
}

func clientAddr(r *http.Request) string {
	if fwd := r.Header.Get("X-Forwarded-For"); fwd != "" {
		if idx := strings.IndexByte(fwd, ','); idx >= 0 {
			return strings.TrimSpace(fwd[:idx])
		}
		return strings.TrimSpace(fwd)
	}
	return r.RemoteAddr
}
