package config

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Port                string        `mapstructure:"PORT"`
	Env                 string        `mapstructure:"ENV"`
	AppName             string        `mapstructure:"APP_NAME"`
	DatabaseURL         string        `mapstructure:"DATABASE_URL"`
	DBMaxConns          int32         `mapstructure:"DB_MAX_CONNS"`
	DBMinConns          int32         `mapstructure:"DB_MIN_CONNS"`
	MigrationsSchema    string        `mapstructure:"MIGRATIONS_SCHEMA"`
	MigrationsDir       string        `mapstructure:"MIGRATIONS_DIR"`
	AuthIssuer          string        `mapstructure:"AUTH_ISSUER"`
	AuthJWKSURL         string        `mapstructure:"AUTH_JWKS_URL"`
	AuthAudience        string        `mapstructure:"AUTH_AUDIENCE"`
	AuthSigningKey      string        `mapstructure:"AUTH_SIGNING_KEY"`
	CORSOrigins         []string      `mapstructure:"CORS_ORIGINS"`
	BodyLimit           string        `mapstructure:"BODY_LIMIT"`
	UploadBodyLimit     string        `mapstructure:"UPLOAD_BODY_LIMIT"`
	SettingsStore       string        `mapstructure:"SETTINGS_STORE"`
	SettingsFile        string        `mapstructure:"SETTINGS_FILE"`
	RedisURL            string        `mapstructure:"REDIS_URL"`
	SendGridAPIKey      string        `mapstructure:"SENDGRID_API_KEY"`
	MailFrom            string        `mapstructure:"MAIL_FROM"`
	ReminderInterval    time.Duration `mapstructure:"REMINDER_INTERVAL"`
	ReminderConcurrency int           `mapstructure:"REMINDER_CONCURRENCY"`
	SignatureSessionTTL time.Duration `mapstructure:"SIGNATURE_SESSION_TTL"`
	PDFPageSize         string        `mapstructure:"PDF_PAGE_SIZE"`
	PDFMarginMM         float64       `mapstructure:"PDF_MARGIN_MM"`
}

var envKeys = []string{
	"PORT", "ENV", "APP_NAME",
	"DATABASE_URL", "DB_MAX_CONNS", "DB_MIN_CONNS", "MIGRATIONS_SCHEMA", "MIGRATIONS_DIR",
	"AUTH_ISSUER", "AUTH_JWKS_URL", "AUTH_AUDIENCE", "AUTH_SIGNING_KEY",
	"CORS_ORIGINS", "BODY_LIMIT", "UPLOAD_BODY_LIMIT",
	"SETTINGS_STORE", "SETTINGS_FILE", "REDIS_URL",
	"SENDGRID_API_KEY", "MAIL_FROM",
	"REMINDER_INTERVAL", "REMINDER_CONCURRENCY",
	"SIGNATURE_SESSION_TTL",
	"PDF_PAGE_SIZE", "PDF_MARGIN_MM",
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("PORT", "8000")
	v.SetDefault("ENV", "development")
	v.SetDefault("APP_NAME", "Client Records")
	v.SetDefault("DB_MAX_CONNS", 20)
	v.SetDefault("DB_MIN_CONNS", 2)
	v.SetDefault("MIGRATIONS_SCHEMA", "public")
	v.SetDefault("CORS_ORIGINS", "http://localhost:3000")
	v.SetDefault("BODY_LIMIT", "1M")
	v.SetDefault("UPLOAD_BODY_LIMIT", "8M")
	v.SetDefault("SETTINGS_STORE", "postgres")
	v.SetDefault("SETTINGS_FILE", "settings.yaml")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("REMINDER_INTERVAL", "1m")
	v.SetDefault("REMINDER_CONCURRENCY", 1)
	v.SetDefault("SIGNATURE_SESSION_TTL", "30m")
	v.SetDefault("PDF_PAGE_SIZE", "Letter")
	v.SetDefault("PDF_MARGIN_MM", 20)

	// Bind env vars explicitly so Unmarshal picks them up
	for _, k := range envKeys {
		_ = v.BindEnv(k)
	}

	// Try reading .env file, but don't fail if missing
	_ = v.ReadInConfig()

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if len(cfg.CORSOrigins) <= 1 {
		if origins := v.GetString("CORS_ORIGINS"); origins != "" {
			cfg.CORSOrigins = strings.Split(origins, ",")
		}
	}

	if cfg.DatabaseURL == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}

	if cfg.IsDev() {
		log.Println("WARNING: running in DEVELOPMENT mode (ENV=development); every request is treated as admin.")
	}

	return cfg, nil
}

func (c *Config) IsDev() bool {
	return c.Env == "development"
}

// IsProduction returns true when the server is configured for production mode.
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

// Validate checks that the configuration is safe to run.
func (c *Config) Validate() error {
	if !c.IsDev() && c.AuthSigningKey == "" && c.AuthJWKSURL == "" && c.AuthIssuer == "" {
		return fmt.Errorf("one of AUTH_SIGNING_KEY, AUTH_JWKS_URL or AUTH_ISSUER must be set when ENV=%q", c.Env)
	}

	switch c.SettingsStore {
	case "memory", "postgres":
	case "file":
		if c.SettingsFile == "" {
			return fmt.Errorf("SETTINGS_FILE is required when SETTINGS_STORE is \"file\"")
		}
	case "redis":
		if c.RedisURL == "" {
			return fmt.Errorf("REDIS_URL is required when SETTINGS_STORE is \"redis\"")
		}
	default:
		return fmt.Errorf("SETTINGS_STORE must be \"memory\", \"file\", \"redis\" or \"postgres\", got %q", c.SettingsStore)
	}

	if c.IsProduction() && c.SendGridAPIKey == "" {
		return fmt.Errorf("SENDGRID_API_KEY is required in production")
	}

	if c.ReminderConcurrency < 1 {
		return fmt.Errorf("REMINDER_CONCURRENCY must be at least 1, got %d", c.ReminderConcurrency)
	}
	if c.ReminderInterval <= 0 {
		return fmt.Errorf("REMINDER_INTERVAL must be positive")
	}

	switch strings.ToLower(c.PDFPageSize) {
	case "a4", "letter":
	default:
		return fmt.Errorf("PDF_PAGE_SIZE must be \"A4\" or \"Letter\", got %q", c.PDFPageSize)
	}
	if c.PDFMarginMM <= 0 || c.PDFMarginMM >= 80 {
		return fmt.Errorf("PDF_MARGIN_MM must be between 0 and 80, got %v", c.PDFMarginMM)
	}

	return nil
}
