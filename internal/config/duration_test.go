package config

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDuration_UnmarshalJSON(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want time.Duration
	}{
		{"duration string", `"30s"`, 30 * time.Second},
		{"bare seconds number", `45`, 45 * time.Second},
		{"fractional seconds number", `1.5`, 1500 * time.Millisecond},
		{"numeric string seconds", `"10"`, 10 * time.Second},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var d Duration
			require.NoError(t, json.Unmarshal([]byte(tc.raw), &d))
			assert.Equal(t, tc.want, time.Duration(d))
		})
	}
}

func TestDuration_UnmarshalJSON_RejectsGarbage(t *testing.T) {
	var d Duration
	err := json.Unmarshal([]byte(`"not-a-duration"`), &d)
	assert.Error(t, err)
}

func TestDuration_MarshalJSON_RoundTripsAsString(t *testing.T) {
	d := Duration(90 * time.Second)
	out, err := json.Marshal(d)
	require.NoError(t, err)
	assert.Equal(t, `"1m30s"`, string(out))
}
