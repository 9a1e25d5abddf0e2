package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const DefaultPath = "config/config.yaml"

type ServerConfig struct {
	Port            int           `yaml:"port"`
	BasePath        string        `yaml:"base_path"`
	CORSOrigins     []string      `yaml:"cors_origins"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	Swagger         bool          `yaml:"swagger"`
}

type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // json | text
}

type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

type StoreConfig struct {
	Backend   string        `yaml:"backend"` // memory | postgres | redis
	Retention time.Duration `yaml:"retention"`
}

type OTPConfig struct {
	TTL         time.Duration `yaml:"ttl"`
	Cooldown    time.Duration `yaml:"cooldown"`
	MaxAttempts int           `yaml:"max_attempts"`
	MaxSends    int           `yaml:"max_sends"`
	SendWindow  time.Duration `yaml:"send_window"`
	CodeLength  int           `yaml:"code_length"`
	Alphabet    string        `yaml:"alphabet"` // numeric | alphanumeric
	BcryptCost  int           `yaml:"bcrypt_cost"`
}

type DeliveryConfig struct {
	Mode      string        `yaml:"mode"` // sync | async
	Timeout   time.Duration `yaml:"timeout"`
	Workers   int           `yaml:"workers"`
	QueueSize int           `yaml:"queue_size"`
}

type EmailConfig struct {
	Provider       string `yaml:"provider"` // smtp | sendgrid
	SMTPHost       string `yaml:"smtp_host"`
	SMTPPort       int    `yaml:"smtp_port"`
	SMTPUser       string `yaml:"smtp_user"`
	SMTPPassword   string `yaml:"smtp_password"`
	FromEmail      string `yaml:"from_email"`
	FromName       string `yaml:"from_name"`
	SendGridAPIKey string `yaml:"sendgrid_api_key"`
	DryRun         bool   `yaml:"dry_run"`
}

type MobizonConfig struct {
	APIKey   string `yaml:"api_key"`
	SenderID string `yaml:"sender_id"`
	DryRun   bool   `yaml:"dry_run"`
}

type TelegramConfig struct {
	BotToken      string `yaml:"bot_token"`
	WebhookSecret string `yaml:"webhook_secret"`
	DryRun        bool   `yaml:"dry_run"`
}

type JWTConfig struct {
	Secret string        `yaml:"secret"`
	Issuer string        `yaml:"issuer"`
	TTL    time.Duration `yaml:"ttl"`
}

type RateLimitConfig struct {
	Enabled bool    `yaml:"enabled"`
	Backend string  `yaml:"backend"` // memory | redis
	RPS     float64 `yaml:"rps"`
	Burst   int     `yaml:"burst"`
}

type JanitorConfig struct {
	Schedule string `yaml:"schedule"`
}

type TelemetryConfig struct {
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	ServiceName  string `yaml:"service_name"`
	Insecure     bool   `yaml:"insecure"`
}

type Config struct {
	Server   ServerConfig `yaml:"server"`
	Log      LogConfig    `yaml:"log"`
	Database struct {
		DSN     string `yaml:"url"`
		Migrate bool   `yaml:"migrate"`
	} `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	Store     StoreConfig     `yaml:"store"`
	OTP       OTPConfig       `yaml:"otp"`
	Delivery  DeliveryConfig  `yaml:"delivery"`
	Email     EmailConfig     `yaml:"email"`
	Mobizon   MobizonConfig   `yaml:"mobizon"`
	Telegram  TelegramConfig  `yaml:"telegram"`
	JWT       JWTConfig       `yaml:"jwt"`
	RateLimit RateLimitConfig `yaml:"rate_limit"`
	Janitor   JanitorConfig   `yaml:"janitor"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// LoadConfig читает CONFIG_PATH (или config/config.yaml) и паникует при ошибке.
func LoadConfig() *Config {
	path := os.Getenv("CONFIG_PATH")
	if path == "" {
		path = DefaultPath
	}
	cfg, err := Load(path)
	if err != nil {
		panic("Failed to load config: " + err.Error())
	}
	return cfg
}

// Load подхватывает .env (если есть), раскрывает ${VAR} в yaml и валидирует результат.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return Parse(raw)
}

func Parse(raw []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(raw))), &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проставляет значения по умолчанию и отклоняет несовместимые настройки.
func (c *Config) Validate() error {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.Server.BasePath == "" {
		c.Server.BasePath = "/api/otp"
	}
	if !strings.HasPrefix(c.Server.BasePath, "/") {
		c.Server.BasePath = "/" + c.Server.BasePath
	}
	if c.Server.ShutdownTimeout <= 0 {
		c.Server.ShutdownTimeout = 10 * time.Second
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}

	o := &c.OTP
	if o.TTL <= 0 {
		o.TTL = 5 * time.Minute
	}
	if o.Cooldown < 0 {
		return errors.New("otp.cooldown must not be negative")
	}
	if o.Cooldown == 0 {
		o.Cooldown = 30 * time.Second
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = 5
	}
	if o.MaxSends <= 0 {
		o.MaxSends = 3
	}
	if o.SendWindow <= 0 {
		o.SendWindow = 10 * time.Minute
	}
	if o.CodeLength == 0 {
		o.CodeLength = 6
	}
	if o.CodeLength < 4 || o.CodeLength > 12 {
		return fmt.Errorf("otp.code_length must be between 4 and 12, got %d", o.CodeLength)
	}
	switch o.Alphabet {
	case "":
		o.Alphabet = "numeric"
	case "numeric", "alphanumeric":
	default:
		return fmt.Errorf("otp.alphabet must be numeric or alphanumeric, got %q", o.Alphabet)
	}
	if o.BcryptCost == 0 {
		o.BcryptCost = 10
	}
	if o.BcryptCost < 4 || o.BcryptCost > 31 {
		return fmt.Errorf("otp.bcrypt_cost must be between 4 and 31, got %d", o.BcryptCost)
	}

	switch c.Store.Backend {
	case "":
		c.Store.Backend = "memory"
	case "memory":
	case "postgres":
		if c.Database.DSN == "" {
			return errors.New("store.backend postgres requires database.url")
		}
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("store.backend redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown store.backend %q", c.Store.Backend)
	}
	// окно троттлинга должно пережить очистку
	if c.Store.Retention < o.SendWindow {
		c.Store.Retention = o.SendWindow
	}

	d := &c.Delivery
	switch d.Mode {
	case "":
		d.Mode = "sync"
	case "sync", "async":
	default:
		return fmt.Errorf("delivery.mode must be sync or async, got %q", d.Mode)
	}
	if d.Timeout <= 0 {
		d.Timeout = 10 * time.Second
	}
	if d.Workers <= 0 {
		d.Workers = 4
	}
	if d.QueueSize <= 0 {
		d.QueueSize = 100
	}

	switch c.Email.Provider {
	case "":
		c.Email.Provider = "smtp"
	case "smtp", "sendgrid":
	default:
		return fmt.Errorf("email.provider must be smtp or sendgrid, got %q", c.Email.Provider)
	}
	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.FromName == "" {
		c.Email.FromName = "College Network"
	}

	// без секрета любой может прислать update с чужим chat.id
	if c.Telegram.BotToken != "" && !c.Telegram.DryRun && c.Telegram.WebhookSecret == "" {
		return errors.New("telegram.bot_token requires telegram.webhook_secret")
	}

	if c.JWT.Issuer == "" {
		c.JWT.Issuer = "college-network-otp"
	}
	if c.JWT.TTL <= 0 {
		c.JWT.TTL = 15 * time.Minute
	}

	switch c.RateLimit.Backend {
	case "":
		c.RateLimit.Backend = "memory"
	case "memory":
	case "redis":
		if c.Redis.Addr == "" {
			return errors.New("rate_limit.backend redis requires redis.addr")
		}
	default:
		return fmt.Errorf("unknown rate_limit.backend %q", c.RateLimit.Backend)
	}
	if c.RateLimit.RPS <= 0 {
		c.RateLimit.RPS = 1
	}
	if c.RateLimit.Burst <= 0 {
		c.RateLimit.Burst = 5
	}

	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "@every 1m"
	}
	if c.Telemetry.ServiceName == "" {
		c.Telemetry.ServiceName = "college-network-otp"
	}
	return nil
}
