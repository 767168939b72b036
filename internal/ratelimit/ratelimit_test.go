package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	tests := []struct {
		in   string
		want Limit
	}{
		{"100/hour", Limit{Requests: 100, Window: time.Hour}},
		{"5/minutes", Limit{Requests: 5, Window: time.Minute}},
		{"10 per second", Limit{Requests: 10, Window: time.Second}},
		{" 1000/Day ", Limit{Requests: 1000, Window: 24 * time.Hour}},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := Parse(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	for _, bad := range []string{"", "100", "x/hour", "0/hour", "-1/hour", "100/fortnight"} {
		_, err := Parse(bad)
		assert.Error(t, err, bad)
	}
}

func TestMemoryStoreEnforcesBurst(t *testing.T) {
	store := NewMemoryStore(Limit{Requests: 3, Window: time.Hour})

	for i := 0; i < 3; i++ {
		allowed, err := store.Allow("10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed, "request %d", i)
	}
	allowed, err := store.Allow("10.0.0.1")
	require.NoError(t, err)
	assert.False(t, allowed)

	// Limits are per identifier.
	allowed, err = store.Allow("10.0.0.2")
	require.NoError(t, err)
	assert.True(t, allowed)
}

func TestRedisStoreFailsOpen(t *testing.T) {
	store := NewRedisStore(nil, Limit{Requests: 1, Window: time.Minute})
	for i := 0; i < 3; i++ {
		allowed, err := store.Allow("10.0.0.1")
		require.NoError(t, err)
		assert.True(t, allowed)
	}
}
