// Package ratelimit implements the Rate Limit & Admission controller
// (spec §4.8), grounded on mcp_dock/core/sse_session_manager.py's
// _check_rate_limits/_record_rate_limit_violation/_calculate_violation_severity,
// translated from a dict-of-lists-under-one-lock into
// golang.org/x/time/rate token buckets plus a small rolling window.
package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcpdock/gateway/internal/config"
)

// Severity classifies how far over a limit a violation was.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Kind identifies which limit a violation tripped.
type Kind string

const (
	KindClientLimit Kind = "client_limit"
	KindProxyLimit  Kind = "proxy_limit"
	KindBurst       Kind = "burst"
)

// Violation is a recorded admission rejection, retained for a 1h window
// (spec §3 RateLimitState).
type Violation struct {
	Timestamp  time.Time
	ClientAddr string
	ProxyName  string
	Kind       Kind
	Severity   Severity
	Reason     string
}

const violationWindow = time.Hour

// clientState tracks one client IP's session count and creation
// history.
type clientState struct {
	sessionCount int
	creations    []time.Time // rolling window of session-creation timestamps
	limiter      *rate.Limiter
}

// Admission implements spec §4.8's session-creation admission control.
type Admission struct {
	cfg config.RateLimitConfig

	mu          sync.Mutex
	clients     map[string]*clientState
	proxyCounts map[string]int
	violations  []Violation
}

// New constructs an Admission controller with cfg's limits.
func New(cfg config.RateLimitConfig) *Admission {
	return &Admission{
		cfg:         cfg,
		clients:     make(map[string]*clientState),
		proxyCounts: make(map[string]int),
	}
}

func (a *Admission) clientFor(addr string) *clientState {
	cs, ok := a.clients[addr]
	if !ok {
		burstLimit := float64(a.cfg.MaxSessionsPerClient + a.cfg.BurstAllowance)
		window := time.Duration(a.cfg.CreationWindowSeconds) * time.Second
		cs = &clientState{limiter: rate.NewLimiter(rate.Limit(burstLimit/window.Seconds()), a.cfg.MaxSessionsPerClient+a.cfg.BurstAllowance)}
		a.clients[addr] = cs
	}
	return cs
}

// Admit decides whether clientAddr may open a new session on proxyName,
// per spec §4.8's three conditions, recording a Violation on rejection.
func (a *Admission) Admit(clientAddr, proxyName string) (bool, string) {
	a.mu.Lock()
	defer a.mu.Unlock()

	cs := a.clientFor(clientAddr)
	now := time.Now()
	a.pruneCreations(cs, now)

	if cs.sessionCount >= a.cfg.MaxSessionsPerClient {
		reason := "client exceeded session limit"
		a.recordViolation(clientAddr, proxyName, KindClientLimit, reason,
			cs.sessionCount, a.cfg.MaxSessionsPerClient)
		return false, reason
	}

	if a.proxyCounts[proxyName] >= a.cfg.MaxSessionsPerProxy {
		reason := "proxy exceeded session limit"
		a.recordViolation(clientAddr, proxyName, KindProxyLimit, reason,
			a.proxyCounts[proxyName], a.cfg.MaxSessionsPerProxy)
		return false, reason
	}

	if !cs.limiter.Allow() {
		reason := "client exceeded burst creation rate"
		a.recordViolation(clientAddr, proxyName, KindBurst, reason,
			len(cs.creations)+1, a.cfg.MaxSessionsPerClient+a.cfg.BurstAllowance)
		return false, reason
	}

	cs.sessionCount++
	cs.creations = append(cs.creations, now)
	a.proxyCounts[proxyName]++
	return true, ""
}

// Release decrements the session counts on session close.
func (a *Admission) Release(clientAddr, proxyName string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if cs, ok := a.clients[clientAddr]; ok && cs.sessionCount > 0 {
		cs.sessionCount--
	}
	if a.proxyCounts[proxyName] > 0 {
		a.proxyCounts[proxyName]--
	}
}

func (a *Admission) pruneCreations(cs *clientState, now time.Time) {
	cutoff := now.Add(-time.Duration(a.cfg.CreationWindowSeconds) * time.Second)
	kept := cs.creations[:0]
	for _, t := range cs.creations {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	cs.creations = kept
}

// recordViolation classifies severity per _calculate_violation_severity's
// threshold ladder and appends to the bounded recent-violations ring.
func (a *Admission) recordViolation(clientAddr, proxyName string, kind Kind, reason string, count, limit int) {
	a.violations = append(a.violations, Violation{
		Timestamp:  time.Now(),
		ClientAddr: clientAddr,
		ProxyName:  proxyName,
		Kind:       kind,
		Severity:   classifySeverity(kind, count, limit),
		Reason:     reason,
	})
	a.pruneViolations()
}

func classifySeverity(kind Kind, count, limit int) Severity {
	if limit <= 0 {
		return SeverityMedium
	}
	ratio := float64(count) / float64(limit)
	switch kind {
	case KindClientLimit, KindBurst:
		switch {
		case ratio > 2.0:
			return SeverityCritical
		case ratio > 1.5:
			return SeverityHigh
		case ratio > 1.2:
			return SeverityMedium
		default:
			return SeverityLow
		}
	case KindProxyLimit:
		switch {
		case ratio > 1.5:
			return SeverityCritical
		case ratio > 1.2:
			return SeverityHigh
		default:
			return SeverityMedium
		}
	default:
		return SeverityMedium
	}
}

func (a *Admission) pruneViolations() {
	cutoff := time.Now().Add(-violationWindow)
	kept := a.violations[:0]
	for _, v := range a.violations {
		if v.Timestamp.After(cutoff) {
			kept = append(kept, v)
		}
	}
	a.violations = kept
}

// Violations returns a copy of the recent-violations window, for
// observability (spec §6's "rate-limit inspection" collaborator
// capability).
func (a *Admission) Violations() []Violation {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Violation, len(a.violations))
	copy(out, a.violations)
	return out
}
