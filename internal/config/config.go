// Package config loads service configuration from the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Sweep    SweepConfig
	Twilio   TwilioConfig
	SMTP     SMTPConfig
	Telegram TelegramConfig
	Auth     AuthConfig
}

type ServerConfig struct {
	Address string
	// LocalesDir optionally overrides the built-in reply texts.
	LocalesDir string
	// AllowedOrigins for CORS; empty allows any origin.
	AllowedOrigins []string
}

type DatabaseConfig struct {
	URL string
}

type RedisConfig struct {
	Enabled  bool
	Address  string
	Password string
	DB       int
}

type SweepConfig struct {
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	Autostart   bool
}

type TwilioConfig struct {
	AccountSID     string
	AuthToken      string
	WhatsAppNumber string
	SMSNumber      string
	// VerifyWebhook checks X-Twilio-Signature on the inbound webhook.
	VerifyWebhook bool
	// WebhookURL is the public webhook URL as configured in Twilio. When empty
	// it is rebuilt from the request.
	WebhookURL string
}

type SMTPConfig struct {
	Enabled     bool
	Host        string
	Port        int
	Username    string
	Password    string
	From        string
	MaxConns    int
	SendTimeout time.Duration
}

type TelegramConfig struct {
	Enabled     bool
	BotToken    string
	AlertChatID int64
}

type AuthConfig struct {
	JWTSecret string
	APIKey    string
}

// Load builds a Config from environment variables. Call godotenv.Load first
// if a .env file should be honored.
func Load() (*Config, error) {
	var errs []error
	must := func(key string) string {
		v := os.Getenv(key)
		if v == "" {
			errs = append(errs, fmt.Errorf("missing required env var: %s", key))
		}
		return v
	}
	num := func(key string, def int) int {
		v, err := getEnvInt(key, def)
		if err != nil {
			errs = append(errs, err)
		}
		return v
	}

	cfg := &Config{
		Server: ServerConfig{
			Address:        getEnv("SERVER_ADDRESS", ":8080"),
			LocalesDir:     os.Getenv("LOCALES_DIR"),
			AllowedOrigins: splitList(os.Getenv("CORS_ALLOWED_ORIGINS")),
		},
		Database: DatabaseConfig{
			URL: must("DATABASE_URL"),
		},
		Sweep: SweepConfig{
			Interval:    time.Duration(num("SWEEP_INTERVAL_SECONDS", int(DefaultSweepInterval/time.Second))) * time.Second,
			BatchSize:   num("SWEEP_BATCH_SIZE", 0),
			MaxAttempts: num("SWEEP_MAX_ATTEMPTS", DefaultSweepMaxAttempts),
			BackoffBase: time.Duration(num("SWEEP_BACKOFF_BASE_SECONDS", int(DefaultBackoffBase/time.Second))) * time.Second,
			BackoffMax:  time.Duration(num("SWEEP_BACKOFF_MAX_SECONDS", int(DefaultBackoffMax/time.Second))) * time.Second,
			Autostart:   getEnv("SWEEP_AUTOSTART", "true") != "false",
		},
		Twilio: TwilioConfig{
			AccountSID:     must("TWILIO_ACCOUNT_SID"),
			AuthToken:      must("TWILIO_AUTH_TOKEN"),
			WhatsAppNumber: must("TWILIO_WHATSAPP_NUMBER"),
			SMSNumber:      getEnv("TWILIO_SMS_NUMBER", os.Getenv("TWILIO_WHATSAPP_NUMBER")),
			VerifyWebhook:  getEnv("TWILIO_VERIFY_WEBHOOK", "true") != "false",
			WebhookURL:     os.Getenv("TWILIO_WEBHOOK_URL"),
		},
		Auth: AuthConfig{
			JWTSecret: must("JWT_SECRET"),
			APIKey:    must("API_KEY"),
		},
	}

	if addr := os.Getenv("REDIS_ADDR"); addr != "" {
		cfg.Redis = RedisConfig{
			Enabled:  true,
			Address:  addr,
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       num("REDIS_DB", 0),
		}
	}

	if host := os.Getenv("SMTP_HOST"); host != "" {
		cfg.SMTP = SMTPConfig{
			Enabled:     true,
			Host:        host,
			Port:        num("SMTP_PORT", 587),
			Username:    os.Getenv("SMTP_USERNAME"),
			Password:    os.Getenv("SMTP_PASSWORD"),
			From:        must("SMTP_FROM"),
			MaxConns:    num("SMTP_MAX_CONNS", 4),
			SendTimeout: time.Duration(num("SMTP_SEND_TIMEOUT_SECONDS", 10)) * time.Second,
		}
	}

	if token := os.Getenv("TELEGRAM_BOT_TOKEN"); token != "" {
		chatID, err := strconv.ParseInt(os.Getenv("TELEGRAM_ALERT_CHAT_ID"), 10, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid TELEGRAM_ALERT_CHAT_ID: %w", err))
		}
		cfg.Telegram = TelegramConfig{Enabled: true, BotToken: token, AlertChatID: chatID}
	}

	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Sweep.Interval <= 0 {
		return errors.New("SWEEP_INTERVAL_SECONDS must be > 0")
	}
	if cfg.Sweep.BatchSize < 0 {
		return errors.New("SWEEP_BATCH_SIZE must be >= 0")
	}
	if cfg.Sweep.MaxAttempts <= 0 {
		return errors.New("SWEEP_MAX_ATTEMPTS must be > 0")
	}
	if cfg.Sweep.BackoffBase <= 0 || cfg.Sweep.BackoffMax < cfg.Sweep.BackoffBase {
		return errors.New("sweep backoff must satisfy 0 < base <= max")
	}
	return nil
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, def int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def, fmt.Errorf("invalid int for env %s: %s", key, v)
	}
	return i, nil
}
