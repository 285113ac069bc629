package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Test helper to set env vars and clean up after
func setEnv(t *testing.T, key, value string) {
	t.Helper()
	old := os.Getenv(key)
	os.Setenv(key, value)
	t.Cleanup(func() {
		if old == "" {
			os.Unsetenv(key)
		} else {
			os.Setenv(key, old)
		}
	})
}

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "ENV", "LOG_LEVEL", "ESCROW_LOCK_HOURS",
		"FRAUD_SWEEP_INTERVAL", "RATE_LIMIT_RPS",
	} {
		setEnv(t, key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, DefaultPort, cfg.Port)
	assert.Equal(t, DefaultEnv, cfg.Env)
	assert.Equal(t, DefaultEscrowLockHours, cfg.EscrowLockHours)
	assert.Equal(t, DefaultSweepInterval, cfg.SweepInterval)
	assert.Equal(t, DefaultRateLimit, cfg.RateLimitRPS)
}

func TestLoad_Overrides(t *testing.T) {
	setEnv(t, "PORT", "9090")
	setEnv(t, "ESCROW_LOCK_HOURS", "48")
	setEnv(t, "FRAUD_SWEEP_INTERVAL", "5m")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, 48, cfg.EscrowLockHours)
	assert.Equal(t, 5*time.Minute, cfg.SweepInterval)
	assert.Equal(t, 48*time.Hour, cfg.EscrowLockDuration())
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr string
	}{
		{
			name: "valid config",
			config: Config{
				EscrowLockHours: 24,
				SweepInterval:   15 * time.Minute,
				RateLimitRPS:    100,
			},
			wantErr: "",
		},
		{
			name: "zero lock hours",
			config: Config{
				EscrowLockHours: 0,
				SweepInterval:   15 * time.Minute,
				RateLimitRPS:    100,
			},
			wantErr: "ESCROW_LOCK_HOURS must be positive",
		},
		{
			name: "sweep interval too short",
			config: Config{
				EscrowLockHours: 24,
				SweepInterval:   10 * time.Second,
				RateLimitRPS:    100,
			},
			wantErr: "FRAUD_SWEEP_INTERVAL must be at least 1m",
		},
		{
			name: "zero rate limit",
			config: Config{
				EscrowLockHours: 24,
				SweepInterval:   15 * time.Minute,
				RateLimitRPS:    0,
			},
			wantErr: "RATE_LIMIT_RPS must be positive",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
				assert.Contains(t, err.Error(), tt.wantErr)
			}
		})
	}
}

func TestConfig_IsDevelopment(t *testing.T) {
	cfg := &Config{Env: "development"}
	assert.True(t, cfg.IsDevelopment())
	assert.False(t, cfg.IsProduction())

	cfg.Env = "production"
	assert.False(t, cfg.IsDevelopment())
	assert.True(t, cfg.IsProduction())
}
