package ratelimit

import (
	"testing"

	"github.com/mcpdock/gateway/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig() config.RateLimitConfig {
	return config.RateLimitConfig{
		MaxSessionsPerClient: 2,
		MaxSessionsPerProxy:  3,
		CreationWindowSeconds: 60,
		BurstAllowance:        5,
	}
}

func TestAdmit_AllowsUnderLimit(t *testing.T) {
	a := New(testConfig())
	ok, reason := a.Admit("1.2.3.4", "proxy-a")
	assert.True(t, ok)
	assert.Empty(t, reason)
}

func TestAdmit_RejectsOverClientLimit(t *testing.T) {
	a := New(testConfig())
	require.True(t, first(a.Admit("1.2.3.4", "proxy-a")))
	require.True(t, first(a.Admit("1.2.3.4", "proxy-b")))

	ok, reason := a.Admit("1.2.3.4", "proxy-c")
	assert.False(t, ok)
	assert.Equal(t, "client exceeded session limit", reason)
}

func TestAdmit_RejectsOverProxyLimit(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionsPerClient = 100
	a := New(cfg)
	require.True(t, first(a.Admit("1.1.1.1", "proxy-a")))
	require.True(t, first(a.Admit("2.2.2.2", "proxy-a")))
	require.True(t, first(a.Admit("3.3.3.3", "proxy-a")))

	ok, reason := a.Admit("4.4.4.4", "proxy-a")
	assert.False(t, ok)
	assert.Equal(t, "proxy exceeded session limit", reason)
}

func TestRelease_FreesUpSlot(t *testing.T) {
	a := New(testConfig())
	require.True(t, first(a.Admit("1.2.3.4", "proxy-a")))
	require.True(t, first(a.Admit("1.2.3.4", "proxy-b")))

	a.Release("1.2.3.4", "proxy-a")

	ok, _ := a.Admit("1.2.3.4", "proxy-c")
	assert.True(t, ok)
}

func TestClassifySeverity(t *testing.T) {
	cases := []struct {
		kind  Kind
		count int
		limit int
		want  Severity
	}{
		{KindClientLimit, 1, 10, SeverityLow},
		{KindClientLimit, 13, 10, SeverityMedium},
		{KindClientLimit, 16, 10, SeverityHigh},
		{KindClientLimit, 21, 10, SeverityCritical},
		{KindProxyLimit, 10, 10, SeverityMedium},
		{KindProxyLimit, 13, 10, SeverityHigh},
		{KindProxyLimit, 16, 10, SeverityCritical},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, classifySeverity(tc.kind, tc.count, tc.limit))
	}
}

func TestViolations_RecordedOnRejection(t *testing.T) {
	cfg := testConfig()
	cfg.MaxSessionsPerClient = 1
	a := New(cfg)
	require.True(t, first(a.Admit("9.9.9.9", "proxy-a")))
	ok, _ := a.Admit("9.9.9.9", "proxy-b")
	require.False(t, ok)

	violations := a.Violations()
	require.Len(t, violations, 1)
	assert.Equal(t, KindClientLimit, violations[0].Kind)
}

func first(ok bool, _ string) bool { return ok }
