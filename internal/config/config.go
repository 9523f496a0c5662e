// File: internal/config/config.go
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"

	"github.com/xkilldash9x/prism-cli/api/schemas"
)

// Config holds the entire application configuration.
type Config struct {
	Logger    LoggerConfig    `mapstructure:"logger" yaml:"logger"`
	Session   SessionConfig   `mapstructure:"session" yaml:"session"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit" yaml:"ratelimit"`
	Decision  DecisionConfig  `mapstructure:"decision" yaml:"decision"`
	Remote    RemoteConfig    `mapstructure:"remote" yaml:"remote"`
	Platforms PlatformsConfig `mapstructure:"platforms" yaml:"platforms"`
	Database  DatabaseConfig  `mapstructure:"database" yaml:"database"`
	Events    EventsConfig    `mapstructure:"events" yaml:"events"`

	// Publish gets its marching orders from CLI flags, not the config file.
	Publish PublishConfig `mapstructure:"-" yaml:"-"`
}

// LoggerConfig holds all the configuration for the logger.
type LoggerConfig struct {
	Level       string      `mapstructure:"level" yaml:"level"`
	Format      string      `mapstructure:"format" yaml:"format"`
	AddSource   bool        `mapstructure:"add_source" yaml:"add_source"`
	ServiceName string      `mapstructure:"service_name" yaml:"service_name"`
	LogFile     string      `mapstructure:"log_file" yaml:"log_file"`
	MaxSize     int         `mapstructure:"max_size" yaml:"max_size"`
	MaxBackups  int         `mapstructure:"max_backups" yaml:"max_backups"`
	MaxAge      int         `mapstructure:"max_age" yaml:"max_age"`
	Compress    bool        `mapstructure:"compress" yaml:"compress"`
	Colors      ColorConfig `mapstructure:"colors" yaml:"colors"`
}

// ColorConfig defines the color codes for different log levels.
type ColorConfig struct {
	Debug  string `mapstructure:"debug" yaml:"debug"`
	Info   string `mapstructure:"info" yaml:"info"`
	Warn   string `mapstructure:"warn" yaml:"warn"`
	Error  string `mapstructure:"error" yaml:"error"`
	DPanic string `mapstructure:"dpanic" yaml:"dpanic"`
	Panic  string `mapstructure:"panic" yaml:"panic"`
	Fatal  string `mapstructure:"fatal" yaml:"fatal"`
}

// SessionConfig parameterizes one publishing session's control loop. The
// eight historical tunings of this loop collapse into these knobs; variants
// are configuration presets, not code forks.
type SessionConfig struct {
	// MaxSteps is the wall-clock ceiling on executed steps, including
	// recovery cycles.
	MaxSteps int `mapstructure:"max_steps" yaml:"max_steps"`
	// MinCompletionSteps is the completion floor: no "done" signal from the
	// decision agent is honored before this many steps have executed.
	MinCompletionSteps int `mapstructure:"min_completion_steps" yaml:"min_completion_steps"`
	// LoopThreshold bounds consecutive loop interventions before the session
	// is forced to a terminal state. The streak resets on a clean step.
	LoopThreshold int `mapstructure:"loop_threshold" yaml:"loop_threshold"`
	// EditThreshold bounds consecutive edit/rewrite attempts before the
	// anti-perfectionism policy forces completion.
	EditThreshold int `mapstructure:"edit_threshold" yaml:"edit_threshold"`
	// SettleDelays gives the per-step-type UI latency budget waited after an
	// action executes, before re-observing.
	SettleDelays map[string]time.Duration `mapstructure:"settle_delays" yaml:"settle_delays"`
	// DefaultSettleDelay applies to step types absent from SettleDelays.
	DefaultSettleDelay time.Duration `mapstructure:"default_settle_delay" yaml:"default_settle_delay"`
	// VerifySettle is the extra wait before the post-action verification read.
	VerifySettle time.Duration `mapstructure:"verify_settle" yaml:"verify_settle"`
	// AssumeSuccessOnInconclusive biases verification toward progress: an
	// unclear verification answer counts as success. Deliberate, overridable.
	AssumeSuccessOnInconclusive bool `mapstructure:"assume_success_on_inconclusive" yaml:"assume_success_on_inconclusive"`
}

// SettleDelay returns the settle budget for a step type.
func (s SessionConfig) SettleDelay(st schemas.StepType) time.Duration {
	if d, ok := s.SettleDelays[string(st)]; ok {
		return d
	}
	return s.DefaultSettleDelay
}

// RateLimitConfig tunes per-session adaptive pacing around outbound calls.
type RateLimitConfig struct {
	// MinIntervalSingle spaces calls when only one credential is available.
	MinIntervalSingle time.Duration `mapstructure:"min_interval_single" yaml:"min_interval_single"`
	// MinIntervalPooled spaces calls when the credential pool holds several.
	MinIntervalPooled time.Duration `mapstructure:"min_interval_pooled" yaml:"min_interval_pooled"`
	// HitPenalty is added to the minimum interval per recent rate-limit hit.
	HitPenalty time.Duration `mapstructure:"hit_penalty" yaml:"hit_penalty"`
	// BackoffFactor multiplies the adaptive delay on a rate-limit error.
	BackoffFactor float64 `mapstructure:"backoff_factor" yaml:"backoff_factor"`
	// DecayFactor multiplies the adaptive delay on a successful call.
	DecayFactor float64 `mapstructure:"decay_factor" yaml:"decay_factor"`
	// Ceiling caps the adaptive delay.
	Ceiling time.Duration `mapstructure:"ceiling" yaml:"ceiling"`
	// Floor bounds the adaptive delay from below.
	Floor time.Duration `mapstructure:"floor" yaml:"floor"`
	// MaxRotations bounds credential rotations per session before the pacer
	// falls back to pure backoff.
	MaxRotations int `mapstructure:"max_rotations" yaml:"max_rotations"`
}

// DecisionConfig configures the decision-service client.
type DecisionConfig struct {
	Endpoint   string        `mapstructure:"endpoint" yaml:"endpoint"`
	Model      string        `mapstructure:"model" yaml:"model"`
	APITimeout time.Duration `mapstructure:"api_timeout" yaml:"api_timeout"`
	// Credentials are opaque tokens loaded from the environment, never from
	// the config file. See LoadCredentials.
	Credentials []string `mapstructure:"-" yaml:"-"`
}

// RemoteConfig configures remote-environment access.
type RemoteConfig struct {
	// Mode selects the environment implementation: "http" drives a remote
	// virtual desktop service, "browser" drives a local headless browser.
	Mode string `mapstructure:"mode" yaml:"mode"`
	// Endpoint is the virtual desktop service base URL (http mode).
	Endpoint string `mapstructure:"endpoint" yaml:"endpoint"`
	// APIKey authenticates against the virtual desktop service.
	APIKey string `mapstructure:"api_key" yaml:"-"`
	// ProjectIDs maps a platform to its dedicated VM project (http mode).
	ProjectIDs map[string]string `mapstructure:"project_ids" yaml:"project_ids"`
	// CallTimeout bounds screenshot and exec round-trips.
	CallTimeout time.Duration `mapstructure:"call_timeout" yaml:"call_timeout"`
	// Headless controls the local browser (browser mode).
	Headless bool `mapstructure:"headless" yaml:"headless"`
}

// PlatformsConfig declares the publishable targets and their content budgets.
type PlatformsConfig struct {
	Enabled    []string       `mapstructure:"enabled" yaml:"enabled"`
	CharLimits map[string]int `mapstructure:"char_limits" yaml:"char_limits"`
}

// DatabaseConfig holds the optional result-store connection details.
type DatabaseConfig struct {
	URL string `mapstructure:"url" yaml:"-"`
}

// EventsConfig configures the progress relay.
type EventsConfig struct {
	RelayEnabled bool   `mapstructure:"relay_enabled" yaml:"relay_enabled"`
	RelayAddr    string `mapstructure:"relay_addr" yaml:"relay_addr"`
}

// PublishConfig holds settings populated from CLI flags for one publish run.
type PublishConfig struct {
	Platforms []string
	Content   string
	Hashtags  []string
}

// SetDefaults initializes default values for all configuration parameters.
func SetDefaults(v *viper.Viper) {
	// -- Logger --
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.format", "console")
	v.SetDefault("logger.add_source", false)
	v.SetDefault("logger.service_name", "prism-cli")
	v.SetDefault("logger.log_file", "prism.log")
	v.SetDefault("logger.max_size", 100)
	v.SetDefault("logger.max_backups", 5)
	v.SetDefault("logger.max_age", 30)
	v.SetDefault("logger.compress", true)

	// -- Session --
	v.SetDefault("session.max_steps", 12)
	v.SetDefault("session.min_completion_steps", 4)
	v.SetDefault("session.loop_threshold", 2)
	v.SetDefault("session.edit_threshold", 2)
	v.SetDefault("session.default_settle_delay", 1500*time.Millisecond)
	v.SetDefault("session.verify_settle", 1500*time.Millisecond)
	v.SetDefault("session.assume_success_on_inconclusive", true)
	v.SetDefault("session.settle_delays", map[string]time.Duration{
		"navigate_to_compose":    2500 * time.Millisecond,
		"verify_composer_ready":  1 * time.Second,
		"enter_content":          2 * time.Second,
		"verify_content_entered": 1 * time.Second,
		"find_and_click_post":    3 * time.Second,
		"verify_published":       2500 * time.Millisecond,
	})

	// -- Rate limiting --
	v.SetDefault("ratelimit.min_interval_single", 1200*time.Millisecond)
	v.SetDefault("ratelimit.min_interval_pooled", 500*time.Millisecond)
	v.SetDefault("ratelimit.hit_penalty", 500*time.Millisecond)
	v.SetDefault("ratelimit.backoff_factor", 2.0)
	v.SetDefault("ratelimit.decay_factor", 0.9)
	v.SetDefault("ratelimit.ceiling", 20*time.Second)
	v.SetDefault("ratelimit.floor", 300*time.Millisecond)
	v.SetDefault("ratelimit.max_rotations", 3)

	// -- Decision service --
	v.SetDefault("decision.endpoint", "http://localhost:8080/v1/predict")
	v.SetDefault("decision.model", "gui-agent-s2")
	v.SetDefault("decision.api_timeout", 40*time.Second)

	// -- Remote environment --
	v.SetDefault("remote.mode", "http")
	v.SetDefault("remote.endpoint", "https://desktop.localdomain:8443")
	v.SetDefault("remote.call_timeout", 20*time.Second)
	v.SetDefault("remote.headless", true)

	// -- Platforms --
	v.SetDefault("platforms.enabled", []string{"twitter", "linkedin"})
	v.SetDefault("platforms.char_limits", map[string]int{
		"twitter":   280,
		"linkedin":  3000,
		"instagram": 2200,
	})

	// -- Events --
	v.SetDefault("events.relay_enabled", false)
	v.SetDefault("events.relay_addr", "127.0.0.1:8765")
}

// NewDefaultConfig creates a configuration struct populated with defaults.
func NewDefaultConfig() *Config {
	v := viper.New()
	SetDefaults(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		// Cannot happen with static defaults, but fail loudly if it does.
		panic(fmt.Sprintf("failed to unmarshal default config: %v", err))
	}
	cfg.Decision.Credentials = LoadCredentials()
	return &cfg
}

// NewConfigFromViper builds a validated configuration from a viper instance.
func NewConfigFromViper(v *viper.Viper) (*Config, error) {
	var cfg Config

	// Sensitive values come only from the environment.
	v.BindEnv("remote.api_key", "PRISM_REMOTE_API_KEY")
	v.BindEnv("database.url", "PRISM_DATABASE_URL")

	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}

	cfg.Decision.Credentials = LoadCredentials()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// LoadCredentials gathers decision-service credentials from the environment.
// PRISM_DECISION_API_KEY is the primary; PRISM_DECISION_API_KEY_2 through _8
// extend the pool for concurrent sessions.
func LoadCredentials() []string {
	var creds []string
	if key := os.Getenv("PRISM_DECISION_API_KEY"); key != "" {
		creds = append(creds, key)
	}
	for i := 2; i <= 8; i++ {
		if key := os.Getenv(fmt.Sprintf("PRISM_DECISION_API_KEY_%d", i)); key != "" {
			creds = append(creds, key)
		}
	}
	return creds
}

// Validate checks the configuration for required fields and sane values.
func (c *Config) Validate() error {
	if c.Session.MaxSteps <= 0 {
		return fmt.Errorf("session.max_steps must be a positive integer")
	}
	if c.Session.MinCompletionSteps < 0 {
		return fmt.Errorf("session.min_completion_steps must not be negative")
	}
	if c.Session.MinCompletionSteps >= c.Session.MaxSteps {
		return fmt.Errorf("session.min_completion_steps must be below session.max_steps")
	}
	if c.Session.LoopThreshold <= 0 {
		return fmt.Errorf("session.loop_threshold must be a positive integer")
	}
	if c.RateLimit.BackoffFactor <= 1.0 {
		return fmt.Errorf("ratelimit.backoff_factor must be greater than 1.0")
	}
	if c.RateLimit.DecayFactor <= 0 || c.RateLimit.DecayFactor >= 1.0 {
		return fmt.Errorf("ratelimit.decay_factor must be between 0 and 1")
	}
	if c.RateLimit.Ceiling < c.RateLimit.Floor {
		return fmt.Errorf("ratelimit.ceiling must not be below ratelimit.floor")
	}
	switch c.Remote.Mode {
	case "http", "browser":
	default:
		return fmt.Errorf("remote.mode must be either 'http' or 'browser', got %q", c.Remote.Mode)
	}
	if c.Remote.Mode == "http" && c.Remote.Endpoint == "" {
		return fmt.Errorf("remote.endpoint is required in http mode")
	}
	return nil
}
