package common

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Port          string `envconfig:"PORT" default:"8080"`
	Env           string `envconfig:"APP_ENV" default:"development"`
	AppURL        string `envconfig:"APP_URL" default:"http://localhost:8080"`
	SessionSecret string `envconfig:"SESSION_SECRET" required:"true"`
	SecureCookies bool   `envconfig:"SECURE_COOKIES" default:"false"`

	DatabaseURL string `envconfig:"DATABASE_URL"`
	SQLitePath  string `envconfig:"SQLITE_DB" default:"jyurniq.db"`

	LogLevel  string `envconfig:"LOG_LEVEL" default:"info"`
	LogFormat string `envconfig:"LOG_FORMAT" default:"console"`

	AdminEmails []string `envconfig:"ADMIN_EMAILS"`
	CORSOrigins []string `envconfig:"CORS_ORIGINS" default:"http://localhost:3000"`

	SMTPHost     string `envconfig:"SMTP_HOST"`
	SMTPPort     int    `envconfig:"SMTP_PORT" default:"587"`
	SMTPUser     string `envconfig:"SMTP_USER"`
	SMTPPassword string `envconfig:"SMTP_PASSWORD"`
	SMTPFrom     string `envconfig:"SMTP_FROM"`

	StripeSecretKey     string `envconfig:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `envconfig:"STRIPE_WEBHOOK_SECRET"`

	RazorpayKeyID         string `envconfig:"RAZORPAY_KEY_ID"`
	RazorpayKeySecret     string `envconfig:"RAZORPAY_KEY_SECRET"`
	RazorpayWebhookSecret string `envconfig:"RAZORPAY_WEBHOOK_SECRET"`

	S3Bucket    string `envconfig:"S3_BUCKET"`
	S3Region    string `envconfig:"S3_REGION" default:"auto"`
	S3Endpoint  string `envconfig:"S3_ENDPOINT"`
	S3AccessKey string `envconfig:"S3_ACCESS_KEY"`
	S3SecretKey string `envconfig:"S3_SECRET_KEY"`
	S3PublicURL string `envconfig:"S3_PUBLIC_URL"`

	CacheBackend string        `envconfig:"CACHE_BACKEND" default:"file"`
	CacheDir     string        `envconfig:"CACHE_DIR" default:"cache"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"60s"`
	RedisURL     string        `envconfig:"REDIS_URL"`

	MetricsEnabled bool `envconfig:"METRICS_ENABLED" default:"true"`
}

// LoadConfig reads .env (when present) and then the process environment.
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	cfg.AppURL = strings.TrimRight(cfg.AppURL, "/")
	for i, e := range cfg.AdminEmails {
		cfg.AdminEmails[i] = strings.ToLower(strings.TrimSpace(e))
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func (c *Config) IsAdminEmail(email string) bool {
	email = strings.ToLower(strings.TrimSpace(email))
	for _, e := range c.AdminEmails {
		if e != "" && e == email {
			return true
		}
	}
	return false
}
