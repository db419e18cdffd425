// config/config.go
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

var rewardsHosts = map[string]string{
	"development": "https://dev.playsuper.club",
	"production":  "https://api.playsuper.club",
}

type Config struct {
	Debug bool `env:"DEBUG" envDefault:"false"`

	HTTP struct {
		Addr           string   `env:"HTTP_ADDR" envDefault:":5200"`
		AllowedOrigins []string `env:"ALLOWED_ORIGINS" envSeparator:"," envDefault:"http://localhost:3000"`
		ServiceToken   string   `env:"GAME_SERVICE_TOKEN"`
	}

	Rewards struct {
		Env             string        `env:"REWARDS_ENV" envDefault:"development"`
		BaseURL         string        `env:"REWARDS_BASE_URL"`
		APIKey          string        `env:"REWARDS_API_KEY"`
		CoinID          string        `env:"REWARDS_COIN_ID"`
		Language        string        `env:"REWARDS_LANGUAGE" envDefault:"en"`
		Timeout         time.Duration `env:"REWARDS_TIMEOUT" envDefault:"10s"`
		MaxAttempts     int           `env:"REWARDS_MAX_ATTEMPTS" envDefault:"3"`
		RetryBaseDelay  time.Duration `env:"REWARDS_RETRY_BASE_DELAY" envDefault:"1s"`
		CacheTTL        time.Duration `env:"REWARDS_CACHE_TTL" envDefault:"5m"`
		CacheMaxEntries int           `env:"REWARDS_CACHE_MAX_ENTRIES" envDefault:"100"`
	}

	Claims struct {
		MaxPerWindow          int           `env:"CLAIMS_MAX_PER_WINDOW" envDefault:"10"`
		Timezone              string        `env:"CLAIMS_TIMEZONE" envDefault:"Local"`
		PoolSize              int           `env:"CLAIMS_POOL_SIZE" envDefault:"6"`
		DeathDiscountCooldown time.Duration `env:"DEATH_DISCOUNT_COOLDOWN" envDefault:"30s"`
		TreasureChestCooldown time.Duration `env:"TREASURE_CHEST_COOLDOWN" envDefault:"0s"`
		DailyGuaranteedBrand  string        `env:"DAILY_GUARANTEED_BRAND"`
		FallbackCatalogPath   string        `env:"FALLBACK_CATALOG_PATH"`
		LedgerMaxRecords      int           `env:"LEDGER_MAX_RECORDS" envDefault:"1000"`
		LevelBonusCoins       int           `env:"LEVEL_BONUS_COINS" envDefault:"10"`
		CoinFlushInterval     time.Duration `env:"COIN_FLUSH_INTERVAL" envDefault:"10s"`
	}

	Store struct {
		Driver        string `env:"STORE_DRIVER" envDefault:"memory"`
		DatabaseURL   string `env:"DATABASE_URL"`
		RedisAddr     string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
		RedisPassword string `env:"REDIS_PASSWORD"`
		RedisDB       int    `env:"REDIS_DB" envDefault:"0"`
		KeyPrefix     string `env:"STORE_KEY_PREFIX" envDefault:"rewards"`
	}

	Archive struct {
		AccountID       string        `env:"R2_ACCOUNT_ID"`
		AccessKeyID     string        `env:"R2_ACCESS_KEY_ID"`
		SecretAccessKey string        `env:"R2_SECRET_ACCESS_KEY"`
		Bucket          string        `env:"R2_BUCKET"`
		Interval        time.Duration `env:"ARCHIVE_INTERVAL" envDefault:"6h"`
	}
}

// Load reads .env when present and parses the environment.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil {
		log.Debug().Msg("⚠️ no .env file found, reading environment variables directly")
	}
	return Parse()
}

// Parse builds a Config from the process environment only.
func Parse() (*Config, error) {
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Store.Driver {
	case "memory", "redis":
	case "postgres":
		if c.Store.DatabaseURL == "" {
			return fmt.Errorf("DATABASE_URL is required for the postgres store")
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", c.Store.Driver)
	}
	if c.Rewards.BaseURL == "" {
		if _, ok := rewardsHosts[c.Rewards.Env]; !ok {
			return fmt.Errorf("unknown REWARDS_ENV %q", c.Rewards.Env)
		}
	}
	if c.Claims.LevelBonusCoins < 0 {
		return fmt.Errorf("LEVEL_BONUS_COINS must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	for i, o := range c.HTTP.AllowedOrigins {
		c.HTTP.AllowedOrigins[i] = strings.TrimSpace(o)
	}
	return nil
}

// RewardsBaseURL is REWARDS_BASE_URL, or the host of REWARDS_ENV.
func (c *Config) RewardsBaseURL() string {
	if c.Rewards.BaseURL != "" {
		return strings.TrimRight(c.Rewards.BaseURL, "/")
	}
	return rewardsHosts[c.Rewards.Env]
}

// Location resolves CLAIMS_TIMEZONE for the claim window.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Claims.Timezone)
	if err != nil {
		return nil, fmt.Errorf("CLAIMS_TIMEZONE: %w", err)
	}
	return loc, nil
}

// ArchiveEnabled reports whether R2 credentials for ledger snapshots are set.
func (c *Config) ArchiveEnabled() bool {
	a := c.Archive
	return a.AccountID != "" && a.AccessKeyID != "" && a.SecretAccessKey != "" && a.Bucket != ""
}
