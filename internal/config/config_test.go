package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestLoadSessionConfigDefaults(t *testing.T) {
	t.Setenv("TOKEN_TTL", "")
	t.Setenv("INACTIVITY_TIMEOUT", "")
	t.Setenv("LOGIN_CODE_TTL", "")

	cfg := LoadSessionConfig()
	require.Equal(t, 24*time.Hour, cfg.TokenTTL)
	require.Equal(t, 1800*time.Second, cfg.InactivityTimeout)
	require.Equal(t, 10*time.Minute, cfg.LoginCodeTTL)
}

func TestLoadSessionConfigOverridesAndRejectsNonPositive(t *testing.T) {
	t.Setenv("TOKEN_TTL", "2h")
	t.Setenv("INACTIVITY_TIMEOUT", "-5m")
	t.Setenv("LOGIN_CODE_TTL", "garbage")

	cfg := LoadSessionConfig()
	require.Equal(t, 2*time.Hour, cfg.TokenTTL)
	require.Equal(t, 30*time.Minute, cfg.InactivityTimeout)
	require.Equal(t, 10*time.Minute, cfg.LoginCodeTTL)
}

func TestLoadRateLimitConfigClamps(t *testing.T) {
	t.Setenv("RATE_LIMIT_CAPACITY", "0")
	t.Setenv("RATE_LIMIT_REFILL_EVERY", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	require.Equal(t, 1, cfg.Capacity)
	require.Equal(t, time.Minute, cfg.RefillInterval)
	require.Equal(t, 5*time.Minute, cfg.TTL)
}

func TestParseMethods(t *testing.T) {
	m := parseMethods(" get, head ,,")
	require.Equal(t, map[string]bool{"GET": true, "HEAD": true}, m)
}
