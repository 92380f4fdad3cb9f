// Package config provides application configuration loading and management.
package config

import (
	"errors"
	"fmt"
	"log"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const defaultJWTSecret = "your-secret-key-change-in-production"

// Config holds application configuration values loaded from file or environment variables.
type Config struct {
	JWTSecret        string `mapstructure:"JWT_SECRET"`
	Port             string `mapstructure:"PORT"`
	Env              string `mapstructure:"APP_ENV"`
	AllowedOrigins   string `mapstructure:"ALLOWED_ORIGINS"`
	FeatureFlags     string `mapstructure:"FEATURE_FLAGS"`
	AppBaseURL       string `mapstructure:"APP_BASE_URL"`
	CronSecret       string `mapstructure:"CRON_SECRET"`
	OAuthStateSecret string `mapstructure:"OAUTH_STATE_SECRET"`

	DBHost                        string `mapstructure:"DB_HOST"`
	DBPort                        string `mapstructure:"DB_PORT"`
	DBUser                        string `mapstructure:"DB_USER"`
	DBPassword                    string `mapstructure:"DB_PASSWORD"`
	DBName                        string `mapstructure:"DB_NAME"`
	DBSSLMode                     string `mapstructure:"DB_SSLMODE"`
	DBReadHost                    string `mapstructure:"DB_READ_HOST"`
	DBReadPort                    string `mapstructure:"DB_READ_PORT"`
	DBReadUser                    string `mapstructure:"DB_READ_USER"`
	DBReadPassword                string `mapstructure:"DB_READ_PASSWORD"`
	DBSchemaMode                  string `mapstructure:"DB_SCHEMA_MODE"`
	DBAutoMigrateAllowDestructive bool   `mapstructure:"DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE"`
	DBMaxOpenConns                int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	DBMaxIdleConns                int    `mapstructure:"DB_MAX_IDLE_CONNS"`
	DBConnMaxLifetimeMinutes      int    `mapstructure:"DB_CONN_MAX_LIFETIME_MINUTES"`

	RedisURL string `mapstructure:"REDIS_URL"`

	LinkedInClientID      string  `mapstructure:"LINKEDIN_CLIENT_ID"`
	LinkedInClientSecret  string  `mapstructure:"LINKEDIN_CLIENT_SECRET"`
	LinkedInRedirectURL   string  `mapstructure:"LINKEDIN_REDIRECT_URL"`
	LinkedInAuthURL       string  `mapstructure:"LINKEDIN_AUTH_URL"`
	LinkedInTokenURL      string  `mapstructure:"LINKEDIN_TOKEN_URL"`
	LinkedInAPIBaseURL    string  `mapstructure:"LINKEDIN_API_BASE_URL"`
	LinkedInWebhookSecret string  `mapstructure:"LINKEDIN_WEBHOOK_SECRET"`
	LinkedInRPS           float64 `mapstructure:"LINKEDIN_RPS"`

	StripeSecretKey     string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripePricePro      string `mapstructure:"STRIPE_PRICE_PRO"`
	StripePriceAgency   string `mapstructure:"STRIPE_PRICE_AGENCY"`

	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`

	TracingEnabled  bool   `mapstructure:"TRACING_ENABLED"`
	TracingExporter string `mapstructure:"TRACING_EXPORTER"`
	OTLPEndpoint    string `mapstructure:"OTLP_ENDPOINT"`

	SchedulerAPIURL      string `mapstructure:"SCHEDULER_API_URL"`
	ScheduleSync         string `mapstructure:"SCHEDULE_SYNC"`
	ScheduleRollup       string `mapstructure:"SCHEDULE_ROLLUP"`
	SchedulePublish      string `mapstructure:"SCHEDULE_PUBLISH"`
	ScheduleWeeklyReport string `mapstructure:"SCHEDULE_WEEKLY_REPORT"`
}

// LoadConfig loads application configuration from file and environment variables.
func LoadConfig() (*Config, error) {
	// A local .env fills in variables the process environment leaves unset.
	if err := godotenv.Load(); err == nil {
		log.Println("Loaded environment from .env")
	}

	viper.AddConfigPath(".")
	viper.AddConfigPath("..")
	viper.AddConfigPath("../..")
	viper.SetConfigName("config")
	viper.SetConfigType("yml")
	viper.AutomaticEnv()

	// The base config file is optional.
	_ = viper.ReadInConfig()

	env := viper.GetString("APP_ENV")
	if env == "" {
		env = "development"
	}

	if env != "development" && env != "test" {
		viper.SetConfigName("config." + env)
		if err := viper.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("required profile-specific config 'config.%s.yml' not found: %w", env, err)
		}
		log.Printf("Loaded profile-specific configuration: config.%s.yml", env)
	}

	setDefaults()

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("unable to decode config into struct: %w", err)
	}
	config.normalize()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults() {
	viper.SetDefault("PORT", "8375")
	viper.SetDefault("APP_ENV", "development")
	viper.SetDefault("JWT_SECRET", defaultJWTSecret)
	viper.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173,http://localhost:3000")
	viper.SetDefault("FEATURE_FLAGS", "linkedin_publish=on,weekly_digest=on,analytics_webhook=on")
	viper.SetDefault("APP_BASE_URL", "http://localhost:3000")
	viper.SetDefault("CRON_SECRET", "")
	viper.SetDefault("OAUTH_STATE_SECRET", "")

	viper.SetDefault("DB_HOST", "localhost")
	viper.SetDefault("DB_PORT", "5432")
	viper.SetDefault("DB_USER", "user")
	viper.SetDefault("DB_PASSWORD", "password")
	viper.SetDefault("DB_NAME", "ghostwriter")
	viper.SetDefault("DB_SSLMODE", "disable")
	viper.SetDefault("DB_READ_HOST", "")
	viper.SetDefault("DB_READ_PORT", "5432")
	viper.SetDefault("DB_READ_USER", "user")
	viper.SetDefault("DB_READ_PASSWORD", "password")
	viper.SetDefault("DB_SCHEMA_MODE", "hybrid")
	viper.SetDefault("DB_AUTOMIGRATE_ALLOW_DESTRUCTIVE", false)
	viper.SetDefault("DB_MAX_OPEN_CONNS", 25)
	viper.SetDefault("DB_MAX_IDLE_CONNS", 5)
	viper.SetDefault("DB_CONN_MAX_LIFETIME_MINUTES", 5)

	viper.SetDefault("REDIS_URL", "localhost:6379")

	viper.SetDefault("LINKEDIN_CLIENT_ID", "")
	viper.SetDefault("LINKEDIN_CLIENT_SECRET", "")
	viper.SetDefault("LINKEDIN_REDIRECT_URL", "http://localhost:8375/api/linkedin/callback")
	viper.SetDefault("LINKEDIN_AUTH_URL", "https://www.linkedin.com/oauth/v2/authorization")
	viper.SetDefault("LINKEDIN_TOKEN_URL", "https://www.linkedin.com/oauth/v2/accessToken")
	viper.SetDefault("LINKEDIN_API_BASE_URL", "https://api.linkedin.com")
	viper.SetDefault("LINKEDIN_WEBHOOK_SECRET", "")
	viper.SetDefault("LINKEDIN_RPS", 5.0)

	viper.SetDefault("STRIPE_SECRET_KEY", "")
	viper.SetDefault("STRIPE_WEBHOOK_SECRET", "")
	viper.SetDefault("STRIPE_PRICE_PRO", "")
	viper.SetDefault("STRIPE_PRICE_AGENCY", "")

	viper.SetDefault("RESEND_API_KEY", "")
	viper.SetDefault("EMAIL_FROM", "Ghostwriter <no-reply@ghostwriter.local>")

	viper.SetDefault("TRACING_ENABLED", false)
	viper.SetDefault("TRACING_EXPORTER", "stdout")
	viper.SetDefault("OTLP_ENDPOINT", "localhost:4318")

	viper.SetDefault("SCHEDULER_API_URL", "http://localhost:8375/api")
	viper.SetDefault("SCHEDULE_SYNC", "0 */6 * * *")
	viper.SetDefault("SCHEDULE_ROLLUP", "15 0 * * *")
	viper.SetDefault("SCHEDULE_PUBLISH", "*/5 * * * *")
	viper.SetDefault("SCHEDULE_WEEKLY_REPORT", "0 8 * * MON")
}

func (c *Config) normalize() {
	c.Env = strings.ToLower(strings.TrimSpace(c.Env))
	c.DBSSLMode = strings.ToLower(strings.TrimSpace(c.DBSSLMode))
	c.DBSchemaMode = strings.ToLower(strings.TrimSpace(c.DBSchemaMode))
	c.AppBaseURL = strings.TrimRight(c.AppBaseURL, "/")
	c.LinkedInAPIBaseURL = strings.TrimRight(c.LinkedInAPIBaseURL, "/")
}

// IsProduction reports whether the config targets a production environment.
func (c *Config) IsProduction() bool {
	return c.Env == "production" || c.Env == "prod"
}

// StateSecret is the key used to sign OAuth state values.
func (c *Config) StateSecret() string {
	if c.OAuthStateSecret != "" {
		return c.OAuthStateSecret
	}
	return c.JWTSecret
}

// LinkedInSigningSecret is the key LinkedIn webhooks are signed with.
func (c *Config) LinkedInSigningSecret() string {
	if c.LinkedInWebhookSecret != "" {
		return c.LinkedInWebhookSecret
	}
	return c.LinkedInClientSecret
}

// Validate ensures that required configuration values are present and meet security standards.
func (c *Config) Validate() error {
	if c.Port == "" {
		return errors.New("PORT is required")
	}
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}
	if c.DBConnMaxLifetimeMinutes < 0 {
		return errors.New("DB_CONN_MAX_LIFETIME_MINUTES must not be negative")
	}

	if c.IsProduction() {
		if c.JWTSecret == defaultJWTSecret {
			return errors.New("JWT_SECRET must be changed from the default value in production")
		}
		if len(c.JWTSecret) < 32 {
			return errors.New("JWT_SECRET must be at least 32 characters in production")
		}
		if c.DBPassword == "password" || c.DBPassword == "" {
			return errors.New("a strong DB_PASSWORD is required in production")
		}
		if c.DBSSLMode == "disable" || c.DBSSLMode == "" {
			return errors.New("DB_SSLMODE must enable TLS in production")
		}
		if c.CronSecret == "" {
			return errors.New("CRON_SECRET is required in production")
		}
		if c.StripeSecretKey != "" && c.StripeWebhookSecret == "" {
			return errors.New("STRIPE_WEBHOOK_SECRET is required when STRIPE_SECRET_KEY is set")
		}
		if c.AllowedOrigins == "*" {
			log.Println("WARNING: ALLOWED_ORIGINS is set to '*' in production. This is insecure.")
		}
	} else if len(c.JWTSecret) < 32 {
		log.Println("WARNING: JWT_SECRET is shorter than 32 characters. Consider using a stronger secret for production.")
	}

	return nil
}
