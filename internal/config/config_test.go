package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  redis:
    host: localhost
badges:
  - name: Bullseye
    criteria:
      category: guess_count
      threshold: 1
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Server.Port)
	assert.Equal(t, "datestreak.db", cfg.Database.SQLite.Path)
	assert.Equal(t, 5, cfg.Game.MaxGuesses)
	assert.Equal(t, 7, cfg.Game.LookbackLimit)
	assert.False(t, cfg.Game.AllowOfflineFreshStart)
	assert.Equal(t, 1, cfg.Entitlements.Free.StreakSaverAllowance)
	assert.Equal(t, 7, cfg.Entitlements.Pro.HolidayDurationDays)
	assert.Equal(t, 5*time.Second, cfg.Outbox.BaseBackoffDuration())
	assert.Equal(t, time.Hour, cfg.Outbox.MaxBackoffDuration())
	require.Len(t, cfg.Badges, 1)
	assert.Equal(t, "guess_count", cfg.Badges[0].Criteria["category"])
}

func TestLoad_EnvOverrides(t *testing.T) {
	path := writeConfig(t, `
database:
  driver: sqlite
  redis:
    host: localhost
`)
	t.Setenv("GAME_MAX_GUESSES", "6")
	t.Setenv("GAME_TIMEZONE", "America/New_York")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, 6, cfg.Game.MaxGuesses)

	loc, err := cfg.Game.Location()
	require.NoError(t, err)
	assert.Equal(t, "America/New_York", loc.String())
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		return &Config{
			Database: DatabaseConfig{
				Driver: "sqlite",
				SQLite: SQLiteConfig{Path: "x.db"},
				Redis:  RedisConfig{Host: "localhost"},
			},
			Game:   GameConfig{MaxGuesses: 5, LookbackLimit: 7, Timezone: "UTC"},
			Outbox: OutboxConfig{BaseBackoff: 5, MaxBackoff: 60},
		}
	}

	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{"valid", func(c *Config) {}, ""},
		{"unknown driver", func(c *Config) { c.Database.Driver = "mysql" }, "database.driver"},
		{"postgres without host", func(c *Config) { c.Database.Driver = "postgres" }, "database.postgres.host"},
		{"no redis", func(c *Config) { c.Database.Redis.Host = "" }, "database.redis.host"},
		{"no guesses", func(c *Config) { c.Game.MaxGuesses = 0 }, "game.max_guesses"},
		{"short lookback", func(c *Config) { c.Game.LookbackLimit = 1 }, "game.lookback_limit"},
		{"bad timezone", func(c *Config) { c.Game.Timezone = "Mars/Olympus" }, "game.timezone"},
		{"backoff inverted", func(c *Config) { c.Outbox.MaxBackoff = 1 }, "outbox.max_backoff"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEntitlementsConfig_IsPro(t *testing.T) {
	cfg := EntitlementsConfig{ProUsers: []string{"Alice"}}
	assert.True(t, cfg.IsPro("alice"))
	assert.False(t, cfg.IsPro("bob"))
}
