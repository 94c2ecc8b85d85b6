// Package config loads ProxyCast's own process configuration: listen
// address, auth key, the credential pools to populate at startup, routing/
// injection rule tables, resilience knobs, flow-store settings, and
// telemetry. This is deliberately narrower than the desktop shell's
// TOML/YAML configuration loader named out of scope in spec.md §1 (system
// tray, window management, OS device-id lookups) — it only covers what
// cmd/proxycast needs to assemble an AppState. Grounded on the teacher's
// (github.com/BaSui01/agentflow) config/loader.go YAML-plus-override shape,
// trimmed to ProxyCast's own sections.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/tytsxai/proxycast/flow"
	"github.com/tytsxai/proxycast/resilience"
)

// Config is the full process configuration, loaded from a single YAML
// file.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Auth       AuthConfig       `yaml:"auth"`
	Providers  []ProviderConfig `yaml:"providers"`
	Routing    RoutingConfig    `yaml:"routing"`
	Resilience ResilienceConfig `yaml:"resilience"`
	Flow       FlowConfig       `yaml:"flow"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Log        LogConfig        `yaml:"log"`
}

// ServerConfig configures the ingress HTTP listener.
type ServerConfig struct {
	Addr            string        `yaml:"addr"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	IdleTimeout     time.Duration `yaml:"idle_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

// AuthConfig configures the AuthStep's expected client secret.
type AuthConfig struct {
	APIKey string `yaml:"api_key"`
}

// ProviderConfig declares one credential to register at startup, per
// spec.md §3's tagged Payload variant. Exactly one of APIKey/OAuthFilePath
// is expected to be set, matching the provider's Kind.
type ProviderConfig struct {
	Kind           string  `yaml:"kind"`
	APIKey         string  `yaml:"api_key"`
	BaseURL        string  `yaml:"base_url"`
	OAuthFilePath  string  `yaml:"oauth_file_path"`
	ProxyURL       string  `yaml:"proxy_url"`
	RateLimitRPS   float64 `yaml:"rate_limit_rps"`
	RateLimitBurst int     `yaml:"rate_limit_burst"`
}

// RoutingConfig configures the Routing pipeline step.
type RoutingConfig struct {
	DefaultProvider string           `yaml:"default_provider"`
	Routes          []RouteRule      `yaml:"routes"`
	ClientOverrides []ClientOverride `yaml:"client_overrides"`
}

// RouteRule maps a model glob to a provider kind and optional rename.
type RouteRule struct {
	Pattern       string `yaml:"pattern"`
	Provider      string `yaml:"provider"`
	ResolvedModel string `yaml:"resolved_model"`
}

// ClientOverride pins a detected client type to a provider.
type ClientOverride struct {
	Client   string `yaml:"client"`
	Provider string `yaml:"provider"`
}

// ResilienceConfig configures retry/failover/circuit-breaking, per
// spec.md §4.8.
type ResilienceConfig struct {
	MaxRetries       int           `yaml:"max_retries"`
	BaseDelay        time.Duration `yaml:"base_delay"`
	MaxDelay         time.Duration `yaml:"max_delay"`
	FailureThreshold int           `yaml:"failure_threshold"`
	SuccessThreshold int           `yaml:"success_threshold"`
	BreakerTimeout   time.Duration `yaml:"breaker_timeout"`
	SwitchOnQuota    bool          `yaml:"switch_on_quota"`
}

// FlowConfig configures the in-memory flow store and its durable sink.
type FlowConfig struct {
	Capacity          int           `yaml:"capacity"`
	CoalesceInterval  time.Duration `yaml:"coalesce_interval"`
	LatencyThreshold  time.Duration `yaml:"latency_threshold"`
	TokenThreshold    int           `yaml:"token_threshold"`
	StoreDir          string        `yaml:"store_dir"`
	MaxFileSizeBytes  int64         `yaml:"max_file_size_bytes"`
	RetentionDays     int           `yaml:"retention_days"`
	RedisAddr         string        `yaml:"redis_addr"`
	RedisChannel      string        `yaml:"redis_channel"`
	InterceptFilter   string        `yaml:"intercept_filter"`
	InterceptTimeout  time.Duration `yaml:"intercept_timeout"`
}

// TelemetryConfig configures OTel export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// LogConfig configures the zap logger.
type LogConfig struct {
	Level string `yaml:"level"`
	Dev   bool   `yaml:"dev"`
}

// Default returns a Config with the same defaults spec.md assigns each
// component (breaker failure_threshold=5, max_retries=3 hard-capped at 10,
// coalesce=100ms, flow capacity=10000, retention=7 days, etc.).
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8787",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    5 * time.Minute,
			IdleTimeout:     120 * time.Second,
			ShutdownTimeout: 30 * time.Second,
		},
		Routing: RoutingConfig{DefaultProvider: "openai"},
		Resilience: ResilienceConfig{
			MaxRetries:       3,
			BaseDelay:        time.Second,
			MaxDelay:         30 * time.Second,
			FailureThreshold: 5,
			SuccessThreshold: 2,
			BreakerTimeout:   30 * time.Second,
			SwitchOnQuota:    true,
		},
		Flow: FlowConfig{
			Capacity:         10000,
			CoalesceInterval: 100 * time.Millisecond,
			StoreDir:         "./data/flows",
			MaxFileSizeBytes: 10 * 1024 * 1024,
			RetentionDays:    7,
			RedisChannel:     "proxycast:flow_events",
		},
		Telemetry: TelemetryConfig{ServiceName: "proxycast", SampleRate: 1.0},
		Log:       LogConfig{Level: "info"},
	}
}

// Load reads and parses the YAML file at path over Default(), so a partial
// file only overrides the sections it sets, then validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config: read %s: %w", path, err)
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return Config{}, fmt.Errorf("config: parse %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("config: %s: %w", path, err)
	}
	return cfg, nil
}

// Validate rejects a configuration whose values fall outside spec.md
// §4.8's hard bounds, instead of silently clamping them once they reach
// an Executor. Grounded on the original desktop app's update_retry_config
// command, which validates at the same boundary: config ingestion, not
// dispatch time.
func (c Config) Validate() error {
	policy := resilience.RetryPolicy{
		MaxRetries: c.Resilience.MaxRetries,
		Base:       c.Resilience.BaseDelay,
		MaxDelay:   c.Resilience.MaxDelay,
	}
	if err := policy.Validate(); err != nil {
		return fmt.Errorf("resilience: %w", err)
	}
	if c.Resilience.FailureThreshold < 1 {
		return fmt.Errorf("resilience.failure_threshold must be at least 1, got %d", c.Resilience.FailureThreshold)
	}
	if c.Resilience.SuccessThreshold < 1 {
		return fmt.Errorf("resilience.success_threshold must be at least 1, got %d", c.Resilience.SuccessThreshold)
	}
	if c.Flow.Capacity < 1 {
		return fmt.Errorf("flow.capacity must be at least 1, got %d", c.Flow.Capacity)
	}
	if c.Flow.InterceptFilter != "" {
		if _, err := flow.Parse(c.Flow.InterceptFilter); err != nil {
			return fmt.Errorf("flow.intercept_filter: %w", err)
		}
	}
	return nil
}
