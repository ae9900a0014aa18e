package config

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultCheckInterval          = 60 * time.Second
	DefaultMaxBaselineSamples     = 1440 // 24h of samples at one-minute ticks
	DefaultBaselineWindow         = 24 * time.Hour
	DefaultBaselineUpdateInterval = 5 * time.Minute
	DefaultMinimumDuration        = 5 * time.Minute
	DefaultUpperThreshold         = 2.0
	DefaultLowerThreshold         = 1.0
	DefaultRelativeUpper          = 2.0
	DefaultRelativeLower          = 1.5
	DefaultNormalLevel            = "medium"
	DefaultAPITimeout             = 10 * time.Second
	DefaultMaxRetries             = 4
	DefaultStatePath              = "/var/lib/uamguard/state.json"
	DefaultHealthListen           = ":8080"
	DefaultBroadcastInterval      = 5 * time.Second
)

// securityLevels is the set of Cloudflare zone security levels uamguard can
// restore when protection is lifted. "under_attack" is deliberately absent:
// it is the protection level itself, never the resting one.
var securityLevels = map[string]bool{
	"essentially_off": true,
	"low":             true,
	"medium":          true,
	"high":            true,
}

// Config is the top-level daemon configuration.
// Fields map 1:1 to config.example.yaml.
type Config struct {
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Thresholds ThresholdConfig  `yaml:"thresholds"`
	UAM        UAMConfig        `yaml:"uam"`
	Cloudflare CloudflareConfig `yaml:"cloudflare"`
	State      StateConfig      `yaml:"state"`
	Health     HealthConfig     `yaml:"health"`
	Notify     NotifyConfig     `yaml:"notifications"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// MonitoringConfig controls the sampling loop.
type MonitoringConfig struct {
	// CheckInterval is how often the load average is sampled and evaluated.
	CheckInterval time.Duration `yaml:"check_interval"`

	// MaxBaselineSamples bounds the in-memory sample window. Oldest samples
	// are evicted first once the window is full.
	MaxBaselineSamples int `yaml:"max_baseline_samples"`
}

// ThresholdConfig defines when load counts as high or low.
//
// When UseRelative is true and a baseline is available, the effective bounds
// are baseline*RelativeUpper and baseline*RelativeLower. Until enough samples
// exist to compute a baseline, the absolute Upper/Lower bounds apply.
type ThresholdConfig struct {
	// Upper and Lower are absolute bounds on the normalized load
	// (load average divided by CPU count).
	Upper float64 `yaml:"upper"`
	Lower float64 `yaml:"lower"`

	UseRelative   bool    `yaml:"use_relative"`
	RelativeUpper float64 `yaml:"relative_upper_multiplier"`
	RelativeLower float64 `yaml:"relative_lower_multiplier"`

	// BaselineWindow is how far back samples count toward the baseline.
	BaselineWindow time.Duration `yaml:"baseline_window"`

	// BaselineUpdateInterval is the minimum time between baseline
	// recomputations. The cached value is served in between.
	BaselineUpdateInterval time.Duration `yaml:"baseline_update_interval"`
}

// UAMConfig controls the protection state itself.
type UAMConfig struct {
	// MinimumDuration is how long protection stays engaged before low load
	// may lift it again. Prevents flapping near the lower bound.
	MinimumDuration time.Duration `yaml:"minimum_duration"`

	// NormalLevel is the zone security level restored when protection is
	// lifted: essentially_off | low | medium | high.
	NormalLevel string `yaml:"normal_level"`
}

// CloudflareConfig holds the API client settings.
type CloudflareConfig struct {
	// ZoneID is the Cloudflare zone whose security level is toggled.
	ZoneID string `yaml:"zone_id"`

	// APITokenEnv is the name of the environment variable that holds the
	// API token. The token itself never appears in the config file.
	APITokenEnv string `yaml:"api_token_env"`

	// BaseURL overrides the Cloudflare API endpoint. Used in tests.
	BaseURL string `yaml:"base_url"`

	// Timeout bounds each individual API attempt.
	Timeout time.Duration `yaml:"timeout"`

	// MaxRetries bounds the retry loop for retryable API failures
	// within a single tick.
	MaxRetries int `yaml:"max_retries"`
}

// Token returns the API token resolved from the environment.
// Returns empty string if APITokenEnv is unset or the variable is not found.
func (c CloudflareConfig) Token() string {
	if c.APITokenEnv == "" {
		return ""
	}
	return os.Getenv(c.APITokenEnv)
}

// StateConfig selects and configures the durable state backend.
type StateConfig struct {
	// Backend is one of: file | postgres.
	Backend string `yaml:"backend"`

	// Path is the state file location — used when Backend == "file".
	Path string `yaml:"path"`

	// DSNEnv is the name of the environment variable holding the postgres
	// connection string — used when Backend == "postgres".
	DSNEnv string `yaml:"dsn_env"`

	// Deployment identifies this daemon instance in the shared postgres
	// table. Defaults to the zone ID when empty.
	Deployment string `yaml:"deployment"`
}

// DSN returns the postgres connection string resolved from the environment.
func (s StateConfig) DSN() string {
	if s.DSNEnv == "" {
		return ""
	}
	return os.Getenv(s.DSNEnv)
}

// HealthConfig controls the HTTP status surface.
type HealthConfig struct {
	// Enabled toggles the whole HTTP server (health, status, metrics, ws).
	Enabled bool `yaml:"enabled"`

	// Listen is the host:port the HTTP server binds to.
	Listen string `yaml:"listen"`

	// BroadcastInterval is how often the WebSocket hub pushes the current
	// status snapshot to connected clients.
	BroadcastInterval time.Duration `yaml:"broadcast_interval"`
}

// NotifyConfig configures transition notifications.
type NotifyConfig struct {
	Webhooks []WebhookConfig `yaml:"webhooks"`
	Telegram TelegramConfig  `yaml:"telegram"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | pagerduty | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable holding the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// TelegramConfig configures the optional Telegram notification channel.
type TelegramConfig struct {
	// TokenEnv is the name of the environment variable holding the bot token.
	// Telegram delivery is disabled when empty.
	TokenEnv string `yaml:"token_env"`

	// ChatID is the chat the bot posts transition messages to.
	ChatID int64 `yaml:"chat_id"`
}

// Token returns the bot token resolved from the environment.
func (t TelegramConfig) Token() string {
	if t.TokenEnv == "" {
		return ""
	}
	return os.Getenv(t.TokenEnv)
}

// LoggingConfig controls slog output. Level is the only setting applied on
// config hot-reload; everything else is fixed for the process lifetime.
type LoggingConfig struct {
	// Level is one of: debug | info | warn | error.
	Level string `yaml:"level"`

	// Format is one of: json | text.
	Format string `yaml:"format"`
}

// SlogLevel maps the configured level name to a slog.Level.
func (l LoggingConfig) SlogLevel() slog.Level {
	switch l.Level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with sensible defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}

	cfg := defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	if cfg.State.Deployment == "" {
		cfg.State.Deployment = cfg.Cloudflare.ZoneID
	}

	return cfg, nil
}

// defaults returns a Config pre-populated with default values.
func defaults() *Config {
	return &Config{
		Monitoring: MonitoringConfig{
			CheckInterval:      DefaultCheckInterval,
			MaxBaselineSamples: DefaultMaxBaselineSamples,
		},
		Thresholds: ThresholdConfig{
			Upper:                  DefaultUpperThreshold,
			Lower:                  DefaultLowerThreshold,
			RelativeUpper:          DefaultRelativeUpper,
			RelativeLower:          DefaultRelativeLower,
			BaselineWindow:         DefaultBaselineWindow,
			BaselineUpdateInterval: DefaultBaselineUpdateInterval,
		},
		UAM: UAMConfig{
			MinimumDuration: DefaultMinimumDuration,
			NormalLevel:     DefaultNormalLevel,
		},
		Cloudflare: CloudflareConfig{
			Timeout:    DefaultAPITimeout,
			MaxRetries: DefaultMaxRetries,
		},
		State: StateConfig{
			Backend: "file",
			Path:    DefaultStatePath,
		},
		Health: HealthConfig{
			Enabled:           true,
			Listen:            DefaultHealthListen,
			BroadcastInterval: DefaultBroadcastInterval,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

// validate checks required fields and structural constraints.
// Thresholds are immutable after startup, so this is the only place
// their invariants are enforced.
func validate(cfg *Config) error {
	if cfg.Monitoring.CheckInterval <= 0 {
		return fmt.Errorf("monitoring.check_interval must be positive")
	}
	if cfg.Monitoring.MaxBaselineSamples <= 0 {
		return fmt.Errorf("monitoring.max_baseline_samples must be positive")
	}

	t := cfg.Thresholds
	if t.Upper <= t.Lower {
		return fmt.Errorf("thresholds.upper (%g) must be greater than thresholds.lower (%g)", t.Upper, t.Lower)
	}
	if t.RelativeUpper <= 0 || t.RelativeLower <= 0 {
		return fmt.Errorf("threshold multipliers must be positive")
	}
	if t.BaselineWindow <= 0 {
		return fmt.Errorf("thresholds.baseline_window must be positive")
	}
	if t.BaselineUpdateInterval <= 0 {
		return fmt.Errorf("thresholds.baseline_update_interval must be positive")
	}

	if cfg.UAM.MinimumDuration < 0 {
		return fmt.Errorf("uam.minimum_duration must not be negative")
	}
	if !securityLevels[cfg.UAM.NormalLevel] {
		return fmt.Errorf("uam.normal_level: unknown security level %q", cfg.UAM.NormalLevel)
	}

	if cfg.Cloudflare.ZoneID == "" {
		return fmt.Errorf("cloudflare.zone_id is required")
	}
	if cfg.Cloudflare.Timeout <= 0 {
		return fmt.Errorf("cloudflare.timeout must be positive")
	}
	if cfg.Cloudflare.MaxRetries < 1 {
		return fmt.Errorf("cloudflare.max_retries must be at least 1")
	}

	switch cfg.State.Backend {
	case "file":
		if cfg.State.Path == "" {
			return fmt.Errorf("state.path is required for the file backend")
		}
	case "postgres":
		if cfg.State.DSNEnv == "" {
			return fmt.Errorf("state.dsn_env is required for the postgres backend")
		}
	default:
		return fmt.Errorf("state.backend: unknown backend %q", cfg.State.Backend)
	}

	if cfg.Health.Enabled {
		if cfg.Health.Listen == "" {
			return fmt.Errorf("health.listen is required when health.enabled is true")
		}
		if cfg.Health.BroadcastInterval <= 0 {
			return fmt.Errorf("health.broadcast_interval must be positive")
		}
	}

	for i, wh := range cfg.Notify.Webhooks {
		switch wh.Type {
		case "slack", "teams", "pagerduty", "http":
		default:
			return fmt.Errorf("notifications.webhooks[%d]: unknown type %q", i, wh.Type)
		}
	}

	switch cfg.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unknown level %q", cfg.Logging.Level)
	}
	switch cfg.Logging.Format {
	case "json", "text":
	default:
		return fmt.Errorf("logging.format: unknown format %q", cfg.Logging.Format)
	}

	return nil
}
