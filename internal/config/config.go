package config

import (
	"errors"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config holds the runtime configuration for the keygate service.
type Config struct {
	Env          string        `envconfig:"KEYGATE_ENV" default:"development"`
	Addr         string        `envconfig:"KEYGATE_ADDR" default:":8080"`
	ReadTimeout  time.Duration `envconfig:"KEYGATE_READ_TIMEOUT" default:"15s"`
	WriteTimeout time.Duration `envconfig:"KEYGATE_WRITE_TIMEOUT" default:"15s"`
	IdleTimeout  time.Duration `envconfig:"KEYGATE_IDLE_TIMEOUT" default:"60s"`

	LogFormat string `envconfig:"KEYGATE_LOG_FORMAT" default:"json"`

	PGDSN string `envconfig:"KEYGATE_PG_DSN" required:"true"`

	// The two token kinds are signed with independent secrets.
	JWTSecret        string        `envconfig:"KEYGATE_JWT_SECRET" required:"true"`
	JWTRefreshSecret string        `envconfig:"KEYGATE_JWT_REFRESH_SECRET" required:"true"`
	AccessTTL        time.Duration `envconfig:"KEYGATE_ACCESS_TTL" default:"15m"`
	RefreshDays      int           `envconfig:"KEYGATE_REFRESH_DAYS" default:"7"`

	VerificationHours int `envconfig:"KEYGATE_VERIFICATION_HOURS" default:"24"`

	// RedisAddr enables the redis-backed rate limiter and the email job
	// queue; empty falls back to the in-memory limiter and synchronous mail.
	RedisAddr string `envconfig:"KEYGATE_REDIS_ADDR" default:""`

	RateLimitWindow time.Duration `envconfig:"KEYGATE_RATE_LIMIT_WINDOW" default:"15m"`
	RateLimitMax    int           `envconfig:"KEYGATE_RATE_LIMIT_MAX" default:"100"`

	SMTPHost string `envconfig:"KEYGATE_SMTP_HOST" default:"127.0.0.1"`
	SMTPPort int    `envconfig:"KEYGATE_SMTP_PORT" default:"1025"`
	SMTPFrom string `envconfig:"KEYGATE_SMTP_FROM" default:"no-reply@keygate.local"`
	// BaseURL is embedded into verification and reset links.
	BaseURL string `envconfig:"KEYGATE_BASE_URL" default:"http://localhost:8080"`
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if cfg.JWTSecret == cfg.JWTRefreshSecret {
		return nil, errors.New("config: access and refresh secrets must differ")
	}
	return &cfg, nil
}

// RefreshTTL derives the refresh lifetime from the day-count knob.
func (c *Config) RefreshTTL() time.Duration {
	days := c.RefreshDays
	if days <= 0 {
		days = 7
	}
	return time.Duration(days) * 24 * time.Hour
}

// VerificationTTL derives the verification lifetime from the hour-count knob.
func (c *Config) VerificationTTL() time.Duration {
	hours := c.VerificationHours
	if hours <= 0 {
		hours = 24
	}
	return time.Duration(hours) * time.Hour
}

// IsProduction reports whether the service runs in production mode.
func (c *Config) IsProduction() bool {
	return c != nil && c.Env == "production"
}
