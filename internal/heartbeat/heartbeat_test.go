package heartbeat

import (
	"testing"
	"time"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestMetrics_RecordFailure_UnhealthyAtThree(t *testing.T) {
	m := NewMetrics()
	assert.False(t, m.RecordFailure())
	assert.False(t, m.RecordFailure())
	assert.True(t, m.RecordFailure(), "third consecutive failure marks the session unhealthy")
}

func TestMetrics_RecordSuccess_ResetsConsecutiveFailures(t *testing.T) {
	m := NewMetrics()
	m.RecordFailure()
	m.RecordFailure()
	m.RecordSuccess(10 * time.Millisecond)
	assert.False(t, m.RecordFailure())
}

func TestMetrics_MeanRTT(t *testing.T) {
	m := NewMetrics()
	assert.Equal(t, time.Duration(0), m.MeanRTT())

	m.RecordSuccess(100 * time.Millisecond)
	m.RecordSuccess(200 * time.Millisecond)
	assert.Equal(t, 150*time.Millisecond, m.MeanRTT())
}

func testHeartbeatConfig() config.HeartbeatConfig {
	return config.HeartbeatConfig{
		InitialInterval: config.Duration(10 * time.Second),
		MinInterval:     config.Duration(5 * time.Second),
		MaxInterval:     config.Duration(30 * time.Second),
		EvaluateEvery:   6,
	}
}

func TestController_Tick_BacksOffOnHighErrorRate(t *testing.T) {
	c := NewController(testHeartbeatConfig())
	m := NewMetrics()

	for i := 0; i < 5; i++ {
		m.RecordFailure()
	}
	m.RecordSuccess(time.Millisecond)

	for i := 0; i < 6; i++ {
		c.Tick(m)
	}

	assert.Greater(t, c.Interval(), 10*time.Second)
}

func TestController_Tick_SpeedsUpOnLowErrorRateAndFastRTT(t *testing.T) {
	c := NewController(testHeartbeatConfig())
	m := NewMetrics()

	for i := 0; i < 6; i++ {
		m.RecordSuccess(50 * time.Millisecond)
	}
	for i := 0; i < 6; i++ {
		c.Tick(m)
	}

	assert.Less(t, c.Interval(), 10*time.Second)
}

func TestController_Tick_NoOpUntilEvaluationBoundary(t *testing.T) {
	c := NewController(testHeartbeatConfig())
	m := NewMetrics()
	m.RecordSuccess(time.Millisecond)
	c.Tick(m)
	assert.Equal(t, 10*time.Second, c.Interval())
}
