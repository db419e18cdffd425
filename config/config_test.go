package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDefaults(t *testing.T) {
	cfg, err := Parse()
	require.NoError(t, err)

	assert.Equal(t, ":5200", cfg.HTTP.Addr)
	assert.Equal(t, []string{"http://localhost:3000"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, "https://dev.playsuper.club", cfg.RewardsBaseURL())
	assert.Equal(t, 3, cfg.Rewards.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Rewards.CacheTTL)
	assert.Equal(t, 10, cfg.Claims.MaxPerWindow)
	assert.Equal(t, 30*time.Second, cfg.Claims.DeathDiscountCooldown)
	assert.Equal(t, "memory", cfg.Store.Driver)
	assert.Equal(t, 6*time.Hour, cfg.Archive.Interval)
	assert.Equal(t, 10, cfg.Claims.LevelBonusCoins)
	assert.Equal(t, 10*time.Second, cfg.Claims.CoinFlushInterval)
	assert.False(t, cfg.ArchiveEnabled())
}

func TestParseOverrides(t *testing.T) {
	t.Setenv("REWARDS_ENV", "production")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example, https://b.example")
	t.Setenv("CLAIMS_TIMEZONE", "Asia/Kolkata")
	t.Setenv("DEATH_DISCOUNT_COOLDOWN", "45s")
	t.Setenv("R2_ACCOUNT_ID", "acc")
	t.Setenv("R2_ACCESS_KEY_ID", "id")
	t.Setenv("R2_SECRET_ACCESS_KEY", "secret")
	t.Setenv("R2_BUCKET", "ledgers")

	cfg, err := Parse()
	require.NoError(t, err)
	assert.Equal(t, "https://api.playsuper.club", cfg.RewardsBaseURL())
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.HTTP.AllowedOrigins)
	assert.Equal(t, 45*time.Second, cfg.Claims.DeathDiscountCooldown)
	assert.True(t, cfg.ArchiveEnabled())

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Asia/Kolkata", loc.String())

	t.Setenv("REWARDS_BASE_URL", "http://localhost:9999/")
	cfg, err = Parse()
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:9999", cfg.RewardsBaseURL())
}

func TestParseRejectsBadValues(t *testing.T) {
	cases := map[string]map[string]string{
		"unknown driver":    {"STORE_DRIVER": "mongo"},
		"postgres no dsn":   {"STORE_DRIVER": "postgres"},
		"unknown env":       {"REWARDS_ENV": "staging"},
		"bad timezone":      {"CLAIMS_TIMEZONE": "Mars/Olympus"},
		"malformed timeout": {"REWARDS_TIMEOUT": "soon"},
		"negative bonus":    {"LEVEL_BONUS_COINS": "-5"},
	}
	for name, vars := range cases {
		t.Run(name, func(t *testing.T) {
			for k, v := range vars {
				t.Setenv(k, v)
			}
			_, err := Parse()
			assert.Error(t, err)
		})
	}
}
