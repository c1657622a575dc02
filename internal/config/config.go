package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Default values for the configuration.
const (
	DefaultHTTPPort         = 3000
	DefaultBasePath         = "/wizbeat"
	DefaultLogLevel         = "info"
	DefaultReportInterval   = 5 * time.Second
	DefaultPollInterval     = 3 * time.Second
	DefaultStreamInterval   = 5 * time.Second
	DefaultAlertCooldown    = 15 * time.Minute
	defaultAPIKeyHeader     = "x-api-key"
	minimumReportInterval   = 100 * time.Millisecond
	minimumDashboardRefresh = 500 * time.Millisecond
)

// Config is the top-level configuration.
type Config struct {
	Server    ServerConfig           `yaml:"server"`
	Reporter  ReporterConfig         `yaml:"reporter"`
	Dashboard DashboardConfig        `yaml:"dashboard"`
	Routes    map[string]RouteConfig `yaml:"routes"`
	Alerts    AlertsConfig           `yaml:"alerts"`
}

// ServerConfig holds the HTTP-facing settings.
type ServerConfig struct {
	// HTTPPort is the port the host service and the routepulse endpoints listen on.
	HTTPPort int `yaml:"http_port"`

	// BasePath prefixes every routepulse endpoint: <base>/api, <base>/dashboard,
	// <base>/stream.
	BasePath string `yaml:"base_path"`

	// LogLevel is one of: debug | info | warn | error.
	LogLevel string `yaml:"log_level"`

	// Auth configures how the routepulse endpoints authenticate callers.
	Auth AuthConfig `yaml:"auth"`
}

// AuthConfig controls access to the routepulse endpoints.
type AuthConfig struct {
	// Mode is one of: apikey | none.
	Mode string `yaml:"mode"`

	// KeyEnv is the name of the environment variable that holds the expected API key.
	KeyEnv string `yaml:"key_env"`

	// Header is the HTTP header to read the key from. Defaults to "x-api-key".
	Header string `yaml:"header"`
}

// Key returns the expected API key resolved from the environment.
func (a AuthConfig) Key() string {
	if a.KeyEnv == "" {
		return ""
	}
	return os.Getenv(a.KeyEnv)
}

// EffectiveHeader returns the configured header name, or the default "x-api-key".
func (a AuthConfig) EffectiveHeader() string {
	if a.Header != "" {
		return a.Header
	}
	return defaultAPIKeyHeader
}

// ReporterConfig controls the periodic console report.
type ReporterConfig struct {
	// Interval is the time between automatic reports. Default: 5s.
	Interval time.Duration `yaml:"interval"`

	// Console enables writing the rendering to stdout. Default: true.
	Console bool `yaml:"console"`
}

// DashboardConfig controls the browser dashboard.
type DashboardConfig struct {
	// PollInterval is how often the dashboard page fetches <base>/api. Default: 3s.
	PollInterval time.Duration `yaml:"poll_interval"`

	// StreamInterval is how often <base>/stream pushes a report. Default: 5s.
	StreamInterval time.Duration `yaml:"stream_interval"`
}

// RouteConfig holds per-route alert limits. Zero values disable a limit.
type RouteConfig struct {
	// HealthThreshold fires an alert when the route's health drops below it.
	HealthThreshold float64 `yaml:"health_threshold"`

	// MaxResponseTime fires an alert when the average response time exceeds it.
	MaxResponseTime time.Duration `yaml:"max_response_time"`
}

// AlertsConfig holds alerting rules and webhook delivery targets.
type AlertsConfig struct {
	Rules    []AlertRule     `yaml:"rules"`
	Webhooks []WebhookConfig `yaml:"webhooks"`
}

// AlertRule defines one threshold-based alert condition evaluated per route.
type AlertRule struct {
	// Name is the human-readable alert identifier, used as the deduplication key.
	Name string `yaml:"name"`

	// Condition is a simple expression: "health < 60", "error_rate > 10",
	// "avg_response_ms > 500", "pulse_rate > 100", "state == critical".
	Condition string `yaml:"condition"`

	// Severity is one of: critical | warning | info.
	Severity string `yaml:"severity"`

	// Cooldown suppresses re-fires for this duration after an alert fires.
	// Defaults to 15 minutes if zero.
	Cooldown time.Duration `yaml:"cooldown"`
}

// WebhookConfig defines one webhook delivery target.
type WebhookConfig struct {
	// Type is one of: slack | teams | http.
	Type string `yaml:"type"`

	// URLEnv is the name of the environment variable that holds the webhook URL.
	URLEnv string `yaml:"url_env"`
}

// URL returns the webhook URL resolved from the environment.
func (w WebhookConfig) URL() string {
	if w.URLEnv == "" {
		return ""
	}
	return os.Getenv(w.URLEnv)
}

// SlogLevel maps LogLevel onto a slog.Level. Validation guarantees a known value.
func (s ServerConfig) SlogLevel() slog.Level {
	switch strings.ToLower(s.LogLevel) {
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

// Load reads and parses the config file at path.
// Missing fields are filled with defaults before validation.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %q: %w", path, err)
	}
	return Parse(data)
}

// Parse decodes YAML config data, applying defaults and validation.
func Parse(data []byte) (*Config, error) {
	cfg := Defaults()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}

	cfg.Server.BasePath = normaliseBasePath(cfg.Server.BasePath)

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}
	return cfg, nil
}

// LoadEnv loads KEY=VALUE pairs from a .env file in the config file's
// directory. Variables already present in the environment win. A missing
// file is not an error.
func LoadEnv(configPath string) error {
	envPath := filepath.Join(filepath.Dir(configPath), ".env")
	if err := godotenv.Load(envPath); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("config: load %q: %w", envPath, err)
	}
	slog.Debug("config: loaded environment file", "path", envPath)
	return nil
}

// Defaults returns a Config pre-populated with default values.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPPort: DefaultHTTPPort,
			BasePath: DefaultBasePath,
			LogLevel: DefaultLogLevel,
		},
		Reporter: ReporterConfig{
			Interval: DefaultReportInterval,
			Console:  true,
		},
		Dashboard: DashboardConfig{
			PollInterval:   DefaultPollInterval,
			StreamInterval: DefaultStreamInterval,
		},
	}
}

// normaliseBasePath returns p with a single leading slash and no trailing slash.
func normaliseBasePath(p string) string {
	p = strings.TrimRight(strings.TrimSpace(p), "/")
	if p == "" {
		return DefaultBasePath
	}
	if !strings.HasPrefix(p, "/") {
		p = "/" + p
	}
	return p
}

// validate checks structural constraints on the parsed configuration.
func validate(cfg *Config) error {
	if cfg.Server.HTTPPort <= 0 || cfg.Server.HTTPPort > 65535 {
		return fmt.Errorf("server.http_port %d is out of range [1, 65535]", cfg.Server.HTTPPort)
	}
	switch strings.ToLower(cfg.Server.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("server.log_level %q unknown: want debug|info|warn|error", cfg.Server.LogLevel)
	}
	switch cfg.Server.Auth.Mode {
	case "apikey", "none", "":
	default:
		return fmt.Errorf("server.auth.mode %q unknown: want apikey|none", cfg.Server.Auth.Mode)
	}
	if cfg.Reporter.Interval < minimumReportInterval {
		return fmt.Errorf("reporter.interval %v is below the minimum %v", cfg.Reporter.Interval, minimumReportInterval)
	}
	if cfg.Dashboard.PollInterval < minimumDashboardRefresh {
		return fmt.Errorf("dashboard.poll_interval %v is below the minimum %v", cfg.Dashboard.PollInterval, minimumDashboardRefresh)
	}
	if cfg.Dashboard.StreamInterval < minimumDashboardRefresh {
		return fmt.Errorf("dashboard.stream_interval %v is below the minimum %v", cfg.Dashboard.StreamInterval, minimumDashboardRefresh)
	}
	for route, rc := range cfg.Routes {
		if strings.TrimSpace(route) == "" {
			return fmt.Errorf("routes: empty route key")
		}
		if rc.HealthThreshold < 0 || rc.HealthThreshold > 100 {
			return fmt.Errorf("routes[%q].health_threshold %v is out of range [0, 100]", route, rc.HealthThreshold)
		}
		if rc.MaxResponseTime < 0 {
			return fmt.Errorf("routes[%q].max_response_time must not be negative", route)
		}
	}
	for i, r := range cfg.Alerts.Rules {
		if r.Name == "" {
			return fmt.Errorf("alerts.rules[%d]: name is required", i)
		}
		if len(strings.Fields(r.Condition)) != 3 {
			return fmt.Errorf("alerts.rules[%d] %q: condition %q must be \"<field> <op> <value>\"", i, r.Name, r.Condition)
		}
		switch r.Severity {
		case "critical", "warning", "info", "":
		default:
			return fmt.Errorf("alerts.rules[%d] %q: unknown severity %q", i, r.Name, r.Severity)
		}
		if r.Cooldown < 0 {
			return fmt.Errorf("alerts.rules[%d] %q: cooldown must not be negative", i, r.Name)
		}
	}
	for i, w := range cfg.Alerts.Webhooks {
		switch w.Type {
		case "slack", "teams", "http":
		default:
			return fmt.Errorf("alerts.webhooks[%d]: unknown type %q: want slack|teams|http", i, w.Type)
		}
	}
	return nil
}
