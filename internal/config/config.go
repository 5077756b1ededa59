package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath      = "CONFIG_PATH"
	EnvDBConnection    = "DB_CONNECTION"
	EnvLogLevel        = "LOG_LEVEL"
	EnvMailServer      = "MAIL_SERVER"
	EnvMailPort        = "MAIL_PORT"
	EnvMailUseTLS      = "MAIL_USE_TLS"
	EnvMailUsername    = "MAIL_USERNAME"
	EnvMailPassword    = "MAIL_PASSWORD"
	EnvMailSender      = "MAIL_DEFAULT_SENDER"
	EnvWebhookTimeout  = "WEBHOOK_TIMEOUT"
	EnvBotToken        = "BOT_TOKEN"
	EnvBotAPIBaseURL   = "BOT_API_BASE_URL"
	EnvRedisAddr       = "REDIS_ADDR"
	EnvRedisPassword   = "REDIS_PASSWORD"
	EnvTrustedProxies  = "TRUSTED_PROXIES"
	defaultSQLiteDSN   = "file:apigateway.db?_busy_timeout=5000&_journal_mode=WAL&_foreign_keys=on"
	defaultRedisPrefix = "apigw:rl"
)

// AppConfig holds resolved application configuration values.
type AppConfig struct {
	ConfigPath string
}

// LoadFromEnv loads app config from environment variables.
func LoadFromEnv() (AppConfig, error) {
	return AppConfig{ConfigPath: ResolveConfigPath(os.Getenv(EnvConfigPath))}, nil
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// ErrMissingDatabaseDSN indicates no database DSN could be resolved.
var ErrMissingDatabaseDSN = errors.New("missing database dsn (set `database-dsn` or `database.dsn` in config file)")

// Policy is a rate limit policy expressed in config units.
type Policy struct {
	MaxRequests   int `yaml:"max-requests"`
	WindowSeconds int `yaml:"window-seconds"`
}

// RateLimitConfig configures the in-process limiter and its diagnostics sink.
type RateLimitConfig struct {
	Authenticated    Policy `yaml:"authenticated"`
	Anonymous        Policy `yaml:"anonymous"`
	RetentionSeconds int    `yaml:"retention-seconds"`
	RedisAddr        string `yaml:"redis-addr"`
	RedisPassword    string `yaml:"redis-password"`
	RedisDB          int    `yaml:"redis-db"`
	RedisPrefix      string `yaml:"redis-prefix"`
}

// MailConfig holds SMTP settings.
// UseTLS only selects implicit TLS, and only on port 465. On other ports the
// sender always upgrades with STARTTLS when the server advertises it.
type MailConfig struct {
	Server        string `yaml:"server"`
	Port          int    `yaml:"port"`
	UseTLS        bool   `yaml:"use-tls"`
	Username      string `yaml:"username"`
	Password      string `yaml:"password"`
	DefaultSender string `yaml:"default-sender"`
}

// BotConfig holds the chat bot API credentials.
type BotConfig struct {
	Token      string `yaml:"token"`
	APIBaseURL string `yaml:"api-base-url"`
}

// Config is the full gateway configuration.
type Config struct {
	Port           int             `yaml:"port"`
	Debug          bool            `yaml:"debug"`
	LogLevel       string          `yaml:"log-level"`
	DatabaseDSN    string          `yaml:"database-dsn"`
	TrustedProxies []string        `yaml:"trusted-proxies"`
	RateLimit      RateLimitConfig `yaml:"rate-limit"`
	Mail           MailConfig      `yaml:"mail"`
	WebhookTimeout time.Duration   `yaml:"webhook-timeout"`
	Bot            BotConfig       `yaml:"bot"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() Config {
	return Config{
		Port:        8318,
		LogLevel:    "info",
		DatabaseDSN: defaultSQLiteDSN,
		RateLimit: RateLimitConfig{
			Authenticated:    Policy{MaxRequests: 100, WindowSeconds: 60},
			Anonymous:        Policy{MaxRequests: 20, WindowSeconds: 60},
			RetentionSeconds: 7200,
			RedisPrefix:      defaultRedisPrefix,
		},
		Mail: MailConfig{
			Server:        "smtp.gmail.com",
			Port:          587,
			UseTLS:        true,
			DefaultSender: "noreply@example.com",
		},
		WebhookTimeout: 5 * time.Second,
	}
}

// Load reads the YAML config file (optional) and applies environment overrides.
func Load(configPath string) (Config, error) {
	cfg := Defaults()

	// fileConfig maps the YAML fields, including the legacy nested DSN form.
	type fileConfig struct {
		Config   `yaml:",inline"`
		Database struct {
			DSN string `yaml:"dsn"`
		} `yaml:"database"`
	}

	data, errRead := os.ReadFile(configPath)
	switch {
	case errRead == nil:
		parsed := fileConfig{Config: cfg}
		if errUnmarshal := yaml.Unmarshal(data, &parsed); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
		cfg = parsed.Config
		if dsn := strings.TrimSpace(parsed.Database.DSN); dsn != "" && strings.TrimSpace(cfg.DatabaseDSN) == defaultSQLiteDSN {
			cfg.DatabaseDSN = dsn
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnv(&cfg)
	normalize(&cfg)

	if strings.TrimSpace(cfg.DatabaseDSN) == "" {
		return Config{}, ErrMissingDatabaseDSN
	}
	if errValidate := cfg.Validate(); errValidate != nil {
		return Config{}, errValidate
	}
	return cfg, nil
}

// Validate rejects settings the limiter cannot work with.
func (c Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Port)
	}
	for name, p := range map[string]Policy{"authenticated": c.RateLimit.Authenticated, "anonymous": c.RateLimit.Anonymous} {
		if p.MaxRequests <= 0 || p.WindowSeconds <= 0 {
			return fmt.Errorf("rate-limit.%s: max-requests and window-seconds must be positive", name)
		}
		if p.WindowSeconds > c.RateLimit.RetentionSeconds {
			return fmt.Errorf("rate-limit.%s: window exceeds retention-seconds", name)
		}
	}
	return nil
}

func applyEnv(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.DatabaseDSN = dsn
	}
	if level := strings.TrimSpace(os.Getenv(EnvLogLevel)); level != "" {
		cfg.LogLevel = level
	}
	if v := strings.TrimSpace(os.Getenv(EnvMailServer)); v != "" {
		cfg.Mail.Server = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMailPort)); v != "" {
		if port, errParse := strconv.Atoi(v); errParse == nil && port > 0 {
			cfg.Mail.Port = port
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvMailUseTLS)); v != "" {
		if useTLS, errParse := strconv.ParseBool(v); errParse == nil {
			cfg.Mail.UseTLS = useTLS
		}
	}
	if v := os.Getenv(EnvMailUsername); v != "" {
		cfg.Mail.Username = strings.TrimSpace(v)
	}
	if v := os.Getenv(EnvMailPassword); v != "" {
		cfg.Mail.Password = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMailSender)); v != "" {
		cfg.Mail.DefaultSender = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvWebhookTimeout)); v != "" {
		// Plain integers are seconds; Go duration strings are also accepted.
		if seconds, errAtoi := strconv.Atoi(v); errAtoi == nil && seconds > 0 {
			cfg.WebhookTimeout = time.Duration(seconds) * time.Second
		} else if d, errParse := time.ParseDuration(v); errParse == nil && d > 0 {
			cfg.WebhookTimeout = d
		}
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotToken)); v != "" {
		cfg.Bot.Token = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvBotAPIBaseURL)); v != "" {
		cfg.Bot.APIBaseURL = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvRedisAddr)); v != "" {
		cfg.RateLimit.RedisAddr = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		cfg.RateLimit.RedisPassword = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvTrustedProxies)); v != "" {
		var proxies []string
		for _, part := range strings.Split(v, ",") {
			if p := strings.TrimSpace(part); p != "" {
				proxies = append(proxies, p)
			}
		}
		cfg.TrustedProxies = proxies
	}
}

func normalize(cfg *Config) {
	cfg.DatabaseDSN = strings.TrimSpace(cfg.DatabaseDSN)
	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.RateLimit.RetentionSeconds <= 0 {
		cfg.RateLimit.RetentionSeconds = 7200
	}
	cfg.RateLimit.RedisAddr = strings.TrimSpace(cfg.RateLimit.RedisAddr)
	cfg.RateLimit.RedisPrefix = strings.TrimSpace(cfg.RateLimit.RedisPrefix)
	if cfg.RateLimit.RedisPrefix == "" {
		cfg.RateLimit.RedisPrefix = defaultRedisPrefix
	}
	if cfg.RateLimit.RedisDB < 0 {
		cfg.RateLimit.RedisDB = 0
	}
	if cfg.WebhookTimeout <= 0 {
		cfg.WebhookTimeout = 5 * time.Second
	}
	cfg.Bot.APIBaseURL = strings.TrimRight(strings.TrimSpace(cfg.Bot.APIBaseURL), "/")
	cfg.Mail.Server = strings.TrimSpace(cfg.Mail.Server)
}
