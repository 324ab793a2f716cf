package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/mcpdock/gateway/internal/mcptypes"
)

// runHeartbeat drives one session's adaptive ping ticker (spec §4.6).
// Each tick enqueues a `notifications/ping` onto the session's outbound
// queue; success/failure of the enqueue (the queue accepting the frame
// at all) is what this gateway can observe without a matching pong
// round trip over a one-way SSE push channel, so RTT is measured as
// enqueue latency, a deliberate simplification of the original's full
// response-time sampling, noted in DESIGN.md.
func (m *Manager) runHeartbeat(ctx context.Context, s *Session) {
	for {
		interval := s.Heartbeat.Interval()
		select {
		case <-time.After(interval):
		case <-s.Done():
			return
		case <-ctx.Done():
			return
		}

		start := time.Now()
		if err := s.Enqueue(pingMessage()); err != nil {
			s.Metrics.RecordFailure()
			m.logger.Warn("session queue overflow on heartbeat, closing", "session", s.ID, "error", err)
			m.Close(s.ID)
			return
		}
		s.Metrics.RecordSuccess(time.Since(start))
		s.Heartbeat.Tick(s.Metrics)
	}
}

func pingMessage() *mcptypes.Message {
	params, _ := json.Marshal(map[string]any{})
	return &mcptypes.Message{JSONRPC: "2.0", Method: "notifications/ping", Params: params}
}
