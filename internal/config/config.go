package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML. Every field can be
// overridden with a SALONFRONT_* environment variable.
type FileConfig struct {
	Port           string `yaml:"port"`
	LogLevel       string `yaml:"logLevel"`
	SalonAPIURL    string `yaml:"salonApiURL"`
	AuthHeader     string `yaml:"authHeader"` // bearer | x-auth-token
	BackendTimeout string `yaml:"backendTimeout"`

	SessionBackend    string `yaml:"sessionBackend"` // file | redis
	SessionDir        string `yaml:"sessionDir"`
	SessionMaxAgeDays int    `yaml:"sessionMaxAgeDays"`
	RedisAddr         string `yaml:"redisAddr"`
	RedisPassword     string `yaml:"redisPassword"`

	ConfirmationDelay string `yaml:"confirmationDelay"`
	SlotDayStartHour  int    `yaml:"slotDayStartHour"`
	SlotDayEndHour    int    `yaml:"slotDayEndHour"`

	LoginRateLimitPerMinute  int      `yaml:"loginRateLimitPerMinute"`
	SubmitRateLimitPerMinute int      `yaml:"submitRateLimitPerMinute"`
	TrustedProxyCIDRs        []string `yaml:"trustedProxyCidrs"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	applyEnv(&cfg)
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("SALONFRONT_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_SALON_API_URL"); v != "" {
		cfg.SalonAPIURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_AUTH_HEADER"); v != "" {
		cfg.AuthHeader = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_BACKEND_TIMEOUT"); v != "" {
		cfg.BackendTimeout = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_SESSION_BACKEND"); v != "" {
		cfg.SessionBackend = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_SESSION_DIR"); v != "" {
		cfg.SessionDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_SESSION_MAX_AGE_DAYS"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SessionMaxAgeDays = n
		}
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = strings.TrimSpace(v)
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("SALONFRONT_CONFIRMATION_DELAY"); v != "" {
		cfg.ConfirmationDelay = strings.TrimSpace(v)
	}
	if v := os.Getenv("SALONFRONT_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("SALONFRONT_SUBMIT_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.SubmitRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("SALONFRONT_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
}

// ParseDurationOr parses a Go duration string, returning def when the value
// is empty, and an error on malformed input.
func ParseDurationOr(raw string, def time.Duration) (time.Duration, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return def, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("parse duration %q: %w", raw, err)
	}
	if d <= 0 {
		return 0, fmt.Errorf("duration %q must be positive", raw)
	}
	return d, nil
}

// SessionMaxAge converts the configured day count into a duration,
// defaulting to seven days.
func (c FileConfig) SessionMaxAge() time.Duration {
	days := c.SessionMaxAgeDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}
