package config

import (
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

func TestNewDefaultConfig(t *testing.T) {
	cfg := NewDefaultConfig()
	require.NotNil(t, cfg)

	assert.Equal(t, "info", cfg.Logger.Level)
	assert.Equal(t, "prism-cli", cfg.Logger.ServiceName)
	assert.Equal(t, 12, cfg.Session.MaxSteps)
	assert.Equal(t, 4, cfg.Session.MinCompletionSteps)
	assert.Equal(t, 2, cfg.Session.LoopThreshold)
	assert.Equal(t, 20*time.Second, cfg.RateLimit.Ceiling)
	assert.Equal(t, 280, cfg.Platforms.CharLimits["twitter"])
	assert.Equal(t, 3000, cfg.Platforms.CharLimits["linkedin"])

	require.NoError(t, cfg.Validate())
}

func TestSettleDelayLookup(t *testing.T) {
	cfg := NewDefaultConfig()

	assert.Equal(t, 3*time.Second, cfg.Session.SettleDelay(schemas.StepFindAndClickPost))
	// Unknown step types fall back to the default budget.
	assert.Equal(t, cfg.Session.DefaultSettleDelay, cfg.Session.SettleDelay(schemas.StepType("unknown")))
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"zero max steps", func(c *Config) { c.Session.MaxSteps = 0 }},
		{"floor above max steps", func(c *Config) { c.Session.MinCompletionSteps = c.Session.MaxSteps }},
		{"zero loop threshold", func(c *Config) { c.Session.LoopThreshold = 0 }},
		{"backoff factor below one", func(c *Config) { c.RateLimit.BackoffFactor = 0.5 }},
		{"decay factor above one", func(c *Config) { c.RateLimit.DecayFactor = 1.5 }},
		{"ceiling below floor", func(c *Config) { c.RateLimit.Ceiling = time.Millisecond; c.RateLimit.Floor = time.Second }},
		{"unknown remote mode", func(c *Config) { c.Remote.Mode = "telnet" }},
		{"http mode without endpoint", func(c *Config) { c.Remote.Mode = "http"; c.Remote.Endpoint = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Remote.Endpoint = "http://localhost:9000"
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}
}

func TestCredentialsComeFromEnvironmentOnly(t *testing.T) {
	t.Setenv("PRISM_DECISION_API_KEY", "sk-primary-0001")
	t.Setenv("PRISM_DECISION_API_KEY_2", "sk-secondary-0002")

	creds := LoadCredentials()
	require.Len(t, creds, 2)
	assert.Equal(t, "sk-primary-0001", creds[0])
	assert.Equal(t, "sk-secondary-0002", creds[1])
}

func TestNewConfigFromViperAppliesOverrides(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("session.max_steps", 9)
	v.Set("remote.endpoint", "http://desktop.internal:9000")

	cfg, err := NewConfigFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, 9, cfg.Session.MaxSteps)
	assert.Equal(t, "http://desktop.internal:9000", cfg.Remote.Endpoint)
}
