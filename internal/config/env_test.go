package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lijuuu/StakedChallengeService/internal/apperr"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg := LoadConfig()

	assert.Equal(t, 7*24*time.Hour, cfg.PeriodLength)
	assert.Equal(t, 5, cfg.TasksPerPeriod)
	assert.Equal(t, 10, cfg.PointsPerTask)
	assert.Equal(t, int64(500), cfg.PlatformFeeBP)
	assert.True(t, cfg.AutoDistribute)
	require.NoError(t, cfg.Validate())
}

func TestLoadConfigFromEnv(t *testing.T) {
	t.Setenv("PERIODLENGTH", "1h")
	t.Setenv("PLATFORMFEEBP", "250")
	t.Setenv("AUTODISTRIBUTE", "false")
	t.Setenv("LEDGERRETRIES", "not-a-number")
	t.Setenv("DBDRIVER", "sqlite")

	cfg := LoadConfig()

	assert.Equal(t, time.Hour, cfg.PeriodLength)
	assert.Equal(t, int64(250), cfg.PlatformFeeBP)
	assert.False(t, cfg.AutoDistribute)
	assert.Equal(t, 3, cfg.LedgerRetries, "unparsable values fall back to the default")
	assert.Equal(t, "sqlite", cfg.DBDriver)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero period", func(c *Config) { c.PeriodLength = 0 }},
		{"zero tick", func(c *Config) { c.SchedulerTick = 0 }},
		{"zero lock ttl", func(c *Config) { c.LockTTL = 0 }},
		{"negative ledger timeout", func(c *Config) { c.LedgerTimeout = -time.Second }},
		{"fee too high", func(c *Config) { c.PlatformFeeBP = 10000 }},
		{"negative fee", func(c *Config) { c.PlatformFeeBP = -1 }},
		{"no tasks", func(c *Config) { c.TasksPerPeriod = 0 }},
		{"unknown driver", func(c *Config) { c.DBDriver = "mysql" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := LoadConfig()
			cfg.DBDriver = "postgres"
			tt.mutate(&cfg)
			assert.True(t, apperr.IsValidation(cfg.Validate()))
		})
	}
}
