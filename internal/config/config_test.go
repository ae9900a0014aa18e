package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// loadFromString writes yaml to a temp file and loads it.
func loadFromString(t *testing.T, yaml string) *Config {
	t.Helper()
	cfg, err := tryLoad(t, yaml)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	return cfg
}

func tryLoad(t *testing.T, yaml string) (*Config, error) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(yaml), 0o600); err != nil {
		t.Fatalf("write temp config: %v", err)
	}
	return Load(path)
}

func TestLoad_Valid(t *testing.T) {
	yaml := `
monitoring:
  check_interval: 30s
  max_baseline_samples: 720
thresholds:
  upper: 3.0
  lower: 1.5
  use_relative: true
cloudflare:
  zone_id: "abc123"
  api_token_env: CF_TOKEN
state:
  backend: file
  path: /tmp/state.json
`
	cfg := loadFromString(t, yaml)

	if cfg.Monitoring.CheckInterval != 30*time.Second {
		t.Errorf("check_interval: got %v", cfg.Monitoring.CheckInterval)
	}
	if cfg.Monitoring.MaxBaselineSamples != 720 {
		t.Errorf("max_baseline_samples: got %d", cfg.Monitoring.MaxBaselineSamples)
	}
	if cfg.Thresholds.Upper != 3.0 || cfg.Thresholds.Lower != 1.5 {
		t.Errorf("thresholds: got upper=%g lower=%g", cfg.Thresholds.Upper, cfg.Thresholds.Lower)
	}
	if !cfg.Thresholds.UseRelative {
		t.Error("use_relative: got false")
	}
	if cfg.Cloudflare.ZoneID != "abc123" {
		t.Errorf("zone_id: got %q", cfg.Cloudflare.ZoneID)
	}
}

func TestLoad_Defaults(t *testing.T) {
	yaml := `
cloudflare:
  zone_id: "abc123"
`
	cfg := loadFromString(t, yaml)

	if cfg.Monitoring.CheckInterval != DefaultCheckInterval {
		t.Errorf("default check_interval: got %v, want %v", cfg.Monitoring.CheckInterval, DefaultCheckInterval)
	}
	if cfg.Monitoring.MaxBaselineSamples != DefaultMaxBaselineSamples {
		t.Errorf("default max_baseline_samples: got %d, want %d", cfg.Monitoring.MaxBaselineSamples, DefaultMaxBaselineSamples)
	}
	if cfg.Thresholds.RelativeUpper != DefaultRelativeUpper {
		t.Errorf("default relative_upper_multiplier: got %g", cfg.Thresholds.RelativeUpper)
	}
	if cfg.UAM.MinimumDuration != DefaultMinimumDuration {
		t.Errorf("default minimum_duration: got %v", cfg.UAM.MinimumDuration)
	}
	if cfg.UAM.NormalLevel != DefaultNormalLevel {
		t.Errorf("default normal_level: got %q", cfg.UAM.NormalLevel)
	}
	if cfg.State.Backend != "file" || cfg.State.Path != DefaultStatePath {
		t.Errorf("default state backend: got %q %q", cfg.State.Backend, cfg.State.Path)
	}
	if !cfg.Health.Enabled {
		t.Error("health should be enabled by default")
	}
	if cfg.Logging.Level != "info" || cfg.Logging.Format != "json" {
		t.Errorf("default logging: got %q %q", cfg.Logging.Level, cfg.Logging.Format)
	}
}

func TestLoad_DeploymentDefaultsToZone(t *testing.T) {
	cfg := loadFromString(t, "cloudflare:\n  zone_id: zone-9\n")
	if cfg.State.Deployment != "zone-9" {
		t.Errorf("deployment: got %q, want zone-9", cfg.State.Deployment)
	}
}

func TestLoad_Invalid(t *testing.T) {
	cases := []struct {
		name    string
		yaml    string
		wantErr string
	}{
		{
			name:    "missing zone",
			yaml:    "thresholds:\n  upper: 2.0\n",
			wantErr: "zone_id is required",
		},
		{
			name:    "upper not above lower",
			yaml:    "cloudflare:\n  zone_id: z\nthresholds:\n  upper: 1.0\n  lower: 1.0\n",
			wantErr: "must be greater than",
		},
		{
			name:    "zero multiplier",
			yaml:    "cloudflare:\n  zone_id: z\nthresholds:\n  relative_upper_multiplier: 0\n",
			wantErr: "multipliers must be positive",
		},
		{
			name:    "negative minimum duration",
			yaml:    "cloudflare:\n  zone_id: z\nuam:\n  minimum_duration: -10s\n",
			wantErr: "minimum_duration",
		},
		{
			name:    "unknown security level",
			yaml:    "cloudflare:\n  zone_id: z\nuam:\n  normal_level: under_attack\n",
			wantErr: "unknown security level",
		},
		{
			name:    "unknown state backend",
			yaml:    "cloudflare:\n  zone_id: z\nstate:\n  backend: redis\n",
			wantErr: "unknown backend",
		},
		{
			name:    "postgres without dsn env",
			yaml:    "cloudflare:\n  zone_id: z\nstate:\n  backend: postgres\n",
			wantErr: "dsn_env is required",
		},
		{
			name:    "unknown webhook type",
			yaml:    "cloudflare:\n  zone_id: z\nnotifications:\n  webhooks:\n    - type: carrier-pigeon\n",
			wantErr: "unknown type",
		},
		{
			name:    "unknown log level",
			yaml:    "cloudflare:\n  zone_id: z\nlogging:\n  level: verbose\n",
			wantErr: "unknown level",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := tryLoad(t, tc.yaml)
			if err == nil {
				t.Fatal("expected error, got nil")
			}
			if !strings.Contains(err.Error(), tc.wantErr) {
				t.Errorf("error %q does not contain %q", err, tc.wantErr)
			}
		})
	}
}

func TestCloudflareConfig_TokenFromEnv(t *testing.T) {
	t.Setenv("UAMGUARD_TEST_TOKEN", "secret-token")
	c := CloudflareConfig{APITokenEnv: "UAMGUARD_TEST_TOKEN"}
	if got := c.Token(); got != "secret-token" {
		t.Errorf("Token: got %q", got)
	}

	empty := CloudflareConfig{}
	if got := empty.Token(); got != "" {
		t.Errorf("Token with no env: got %q", got)
	}
}
