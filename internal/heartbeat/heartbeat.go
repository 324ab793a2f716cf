// Package heartbeat implements the Heartbeat Controller (spec §4.6): an
// adaptive per-session ping ticker. Grounded on (but deliberately
// simplified from) mcp_dock/core/heartbeat_manager.py's
// get_adaptive_interval, which independently scales on three factors
// (error rate, response time, load); spec §9 flags that three-factor
// version as one of the original's possibly-buggy behaviors, so this
// gateway implements the single canonical rule spec §4.6 specifies
// instead of porting the original verbatim.
package heartbeat

import (
	"container/ring"
	"time"

	"github.com/mcpdock/gateway/internal/config"
)

// Metrics tracks one session's heartbeat health: sent/failed counters,
// last RTT, and a sliding 64-sample RTT window (spec §4.6).
type Metrics struct {
	Sent   int
	Failed int

	LastRTT time.Duration

	rttWindow           *ring.Ring
	rttSamples          int
	consecutiveFailures int

	// sentSinceEval and failedSinceEval count sends and failures since
	// the last adaptation evaluation; Controller.Tick resets them.
	sentSinceEval   int
	failedSinceEval int
}

// NewMetrics constructs a Metrics with a 64-sample RTT window.
func NewMetrics() *Metrics {
	return &Metrics{rttWindow: ring.New(64)}
}

// RecordSuccess records a successful ping round trip.
func (m *Metrics) RecordSuccess(rtt time.Duration) {
	m.Sent++
	m.sentSinceEval++
	m.consecutiveFailures = 0
	m.LastRTT = rtt

	m.rttWindow.Value = rtt
	m.rttWindow = m.rttWindow.Next()
	if m.rttSamples < 64 {
		m.rttSamples++
	}
}

// RecordFailure records a failed ping send, returning true if this is
// the session's third consecutive failure (spec §4.6: "three
// consecutive failures mark the session unhealthy and trigger reap").
func (m *Metrics) RecordFailure() (unhealthy bool) {
	m.Sent++
	m.Failed++
	m.sentSinceEval++
	m.failedSinceEval++
	m.consecutiveFailures++
	return m.consecutiveFailures >= 3
}

// MeanRTT returns the mean of the sliding RTT window, or 0 if empty.
func (m *Metrics) MeanRTT() time.Duration {
	if m.rttSamples == 0 {
		return 0
	}
	var total time.Duration
	r := m.rttWindow
	for i := 0; i < m.rttSamples; i++ {
		r = r.Prev()
		if d, ok := r.Value.(time.Duration); ok {
			total += d
		}
	}
	return total / time.Duration(m.rttSamples)
}

// Controller adapts one session's heartbeat interval per spec §4.6's
// single canonical rule, evaluated every N ticks.
type Controller struct {
	cfg      config.HeartbeatConfig
	interval time.Duration
	ticks    int
}

// NewController constructs a Controller starting at cfg's initial
// interval.
func NewController(cfg config.HeartbeatConfig) *Controller {
	return &Controller{cfg: cfg, interval: time.Duration(cfg.InitialInterval)}
}

// Interval returns the controller's current adaptive interval.
func (c *Controller) Interval() time.Duration { return c.interval }

// Tick records one heartbeat cycle's outcome and, every EvaluateEvery
// ticks, re-evaluates the interval per spec §4.6:
//   - error_rate > 20%            -> interval *= 1.5, capped at MaxInterval
//   - error_rate < 2% and mean RTT < 200ms -> interval *= 0.8, floored at MinInterval
//   - otherwise unchanged
func (c *Controller) Tick(m *Metrics) {
	c.ticks++
	if c.ticks < c.cfg.EvaluateEvery {
		return
	}
	c.ticks = 0

	sent := m.sentSinceEval
	failed := m.failedSinceEval
	m.sentSinceEval, m.failedSinceEval = 0, 0
	if sent == 0 {
		return
	}

	errorRate := float64(failed) / float64(sent)
	meanRTT := m.MeanRTT()

	switch {
	case errorRate > 0.20:
		c.interval = minDuration(c.interval*3/2, time.Duration(c.cfg.MaxInterval))
	case errorRate < 0.02 && meanRTT > 0 && meanRTT < 200*time.Millisecond:
		c.interval = maxDuration(c.interval*4/5, time.Duration(c.cfg.MinInterval))
	}
}

func minDuration(a, b time.Duration) time.Duration {
	if a < b {
		return a
	}
	return b
}

func maxDuration(a, b time.Duration) time.Duration {
	if a > b {
		return a
	}
	return b
}
