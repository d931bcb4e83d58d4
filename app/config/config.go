// Package config loads runtime settings from the environment and an optional .env file.
package config

import (
	"fmt"
	"strings"
	"time"

	// this will automatically load your .env file:
	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

type Config struct {
	Port         string
	DB           PostgresConfig
	Stripe       StripeConfig
	Auth         AuthConfig
	Analysis     AnalysisConfig
	Storage      StorageConfig
	Events       EventsConfig
	QueueURL     string
	Housekeeping string
}

type PostgresConfig struct {
	Username string
	Password string
	URL      string
	Port     string
	Database string
	SSLMode  string
}

// Enabled reports whether a Postgres host is configured.
func (p PostgresConfig) Enabled() bool {
	return p.URL != ""
}

// DSN builds the lib/pq connection string.
func (p PostgresConfig) DSN() string {
	dsn := fmt.Sprintf("postgres://%s:%s@%s:%s/%s", p.Username, p.Password, p.URL, p.Port, p.Database)
	if p.SSLMode != "" {
		dsn += "?sslmode=" + p.SSLMode
	}
	return dsn
}

type StripeConfig struct {
	SecretKey       string
	WebhookSecret   string
	PublishableKey  string
	FrontendURL     string
	PriceIDTrader   string
	PriceIDAlphaPro string
	TestMode        bool
}

type AuthConfig struct {
	SupabaseURL         string
	SupabaseAnonKey     string
	ClerkPublishableKey string
	ClerkIssuer         string
	ClerkJWKSURL        string
	SessionSecret       string
	SessionTTL          time.Duration
	Disabled            bool
}

type AnalysisConfig struct {
	// Provider is one of endpoint, openai, gemini or fallback.
	Provider     string
	EndpointURL  string
	OpenAIKey    string
	OpenAIModel  string
	GeminiKey    string
	GeminiModel  string
	SignalDelay  time.Duration
	MarketQuotes bool
}

type StorageConfig struct {
	// Backend selects where subscriptions, analyses and signals live: postgres or local.
	Backend string
	// UsageBackend is postgres, redis or local.
	UsageBackend string
	// Local is the KV backend: memory, file, sqlite or redis.
	Local     string
	LocalPath string
	RedisURL  string
}

type EventsConfig struct {
	AMQPURL      string
	ResendAPIKey string
	EmailFrom    string
}

type env struct {
	Port string `mapstructure:"PORT"`

	PostgresUser     string `mapstructure:"POSTGRES_USER"`
	PostgresPassword string `mapstructure:"POSTGRES_PWD"`
	PostgresURL      string `mapstructure:"POSTGRES_URL"`
	PostgresPort     string `mapstructure:"POSTGRES_PORT"`
	PostgresDB       string `mapstructure:"POSTGRES_DB"`
	PostgresSSLMode  string `mapstructure:"POSTGRES_SSLMODE"`

	StripeSecretKey      string `mapstructure:"STRIPE_SECRET_KEY"`
	StripeWebhookSecret  string `mapstructure:"STRIPE_WEBHOOK_SECRET"`
	StripePublishableKey string `mapstructure:"VITE_STRIPE_PUBLISHABLE_KEY"`
	FrontendURL          string `mapstructure:"FRONTEND_URL"`
	PriceIDTrader        string `mapstructure:"PRICE_ID_TRADER"`
	PriceIDAlphaPro      string `mapstructure:"PRICE_ID_ALPHA_PRO"`
	BillingTestMode      bool   `mapstructure:"BILLING_TEST_MODE"`

	SupabaseURL         string        `mapstructure:"VITE_SUPABASE_URL"`
	SupabaseAnonKey     string        `mapstructure:"VITE_SUPABASE_ANON_KEY"`
	ClerkPublishableKey string        `mapstructure:"VITE_CLERK_PUBLISHABLE_KEY"`
	ClerkIssuer         string        `mapstructure:"CLERK_ISSUER"`
	ClerkJWKSURL        string        `mapstructure:"CLERK_JWKS_URL"`
	SessionSecret       string        `mapstructure:"SESSION_SECRET"`
	SessionTTL          time.Duration `mapstructure:"SESSION_TTL"`
	AuthDisabled        bool          `mapstructure:"AUTH_DISABLED"`

	AnalysisProvider string        `mapstructure:"ANALYSIS_PROVIDER"`
	APIURL           string        `mapstructure:"VITE_API_URL"`
	OpenAIKey        string        `mapstructure:"VITE_OPENAI_API_KEY"`
	OpenAIModel      string        `mapstructure:"OPENAI_MODEL"`
	GeminiKey        string        `mapstructure:"VITE_GEMINI_API_KEY"`
	GeminiModel      string        `mapstructure:"GEMINI_MODEL"`
	SignalDelay      time.Duration `mapstructure:"SIGNAL_DELAY"`
	MarketQuotes     bool          `mapstructure:"MARKET_QUOTES"`

	StorageBackend string `mapstructure:"STORAGE_BACKEND"`
	UsageBackend   string `mapstructure:"USAGE_BACKEND"`
	LocalStore     string `mapstructure:"LOCAL_STORE"`
	LocalStorePath string `mapstructure:"LOCAL_STORE_PATH"`
	RedisURL       string `mapstructure:"REDIS_URL"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	ResendAPIKey string `mapstructure:"RESEND_API_KEY"`
	EmailFrom    string `mapstructure:"EMAIL_FROM"`

	QueueURL     string `mapstructure:"QUEUE_URL"`
	Housekeeping string `mapstructure:"HOUSEKEEPING_SCHEDULE"`
}

var defaults = map[string]any{
	"PORT":                  "8080",
	"POSTGRES_PORT":         "5432",
	"POSTGRES_DB":           "postgres",
	"POSTGRES_SSLMODE":      "require",
	"FRONTEND_URL":          "http://localhost:5173",
	"PRICE_ID_TRADER":       "price_1RjU3gB1hl0IoocUWlz842SY",
	"PRICE_ID_ALPHA_PRO":    "price_1RjU4pB1hl0IoocUq8sVhT3n",
	"SESSION_TTL":           "168h",
	"ANALYSIS_PROVIDER":     "endpoint",
	"OPENAI_MODEL":          "gpt-4o",
	"GEMINI_MODEL":          "gemini-1.5-flash",
	"SIGNAL_DELAY":          "2s",
	"MARKET_QUOTES":         false,
	"STORAGE_BACKEND":       "local",
	"USAGE_BACKEND":         "local",
	"LOCAL_STORE":           "file",
	"LOCAL_STORE_PATH":      ".tickrify",
	"EMAIL_FROM":            "Tickrify <noreply@tickrify.com>",
	"HOUSEKEEPING_SCHEDULE": "0 3 1 * *", // 03:00 on day-of-month 1.
	"BILLING_TEST_MODE":     false,
	"AUTH_DISABLED":         false,
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	v := viper.New()
	for key, val := range defaults {
		v.SetDefault(key, val)
	}
	v.AutomaticEnv()

	// Bind every key so Unmarshal sees variables that have no default.
	for _, key := range envKeys() {
		_ = v.BindEnv(key)
	}

	var e env
	if err := v.Unmarshal(&e); err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	cfg := &Config{
		Port: e.Port,
		DB: PostgresConfig{
			Username: e.PostgresUser,
			Password: e.PostgresPassword,
			URL:      e.PostgresURL,
			Port:     e.PostgresPort,
			Database: e.PostgresDB,
			SSLMode:  e.PostgresSSLMode,
		},
		Stripe: StripeConfig{
			SecretKey:       e.StripeSecretKey,
			WebhookSecret:   e.StripeWebhookSecret,
			PublishableKey:  e.StripePublishableKey,
			FrontendURL:     strings.TrimRight(e.FrontendURL, "/"),
			PriceIDTrader:   e.PriceIDTrader,
			PriceIDAlphaPro: e.PriceIDAlphaPro,
			TestMode:        e.BillingTestMode,
		},
		Auth: AuthConfig{
			SupabaseURL:         strings.TrimRight(e.SupabaseURL, "/"),
			SupabaseAnonKey:     e.SupabaseAnonKey,
			ClerkPublishableKey: e.ClerkPublishableKey,
			ClerkIssuer:         e.ClerkIssuer,
			ClerkJWKSURL:        e.ClerkJWKSURL,
			SessionSecret:       e.SessionSecret,
			SessionTTL:          e.SessionTTL,
			Disabled:            e.AuthDisabled,
		},
		Analysis: AnalysisConfig{
			Provider:     strings.ToLower(e.AnalysisProvider),
			EndpointURL:  strings.TrimRight(e.APIURL, "/"),
			OpenAIKey:    e.OpenAIKey,
			OpenAIModel:  e.OpenAIModel,
			GeminiKey:    e.GeminiKey,
			GeminiModel:  e.GeminiModel,
			SignalDelay:  e.SignalDelay,
			MarketQuotes: e.MarketQuotes,
		},
		Storage: StorageConfig{
			Backend:      strings.ToLower(e.StorageBackend),
			UsageBackend: strings.ToLower(e.UsageBackend),
			Local:        strings.ToLower(e.LocalStore),
			LocalPath:    e.LocalStorePath,
			RedisURL:     e.RedisURL,
		},
		Events: EventsConfig{
			AMQPURL:      e.AMQPURL,
			ResendAPIKey: e.ResendAPIKey,
			EmailFrom:    e.EmailFrom,
		},
		QueueURL:     e.QueueURL,
		Housekeeping: e.Housekeeping,
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Storage.Backend {
	case "local", "postgres":
	default:
		return fmt.Errorf("config: STORAGE_BACKEND must be local or postgres, got %q", c.Storage.Backend)
	}
	switch c.Storage.UsageBackend {
	case "local", "postgres", "redis":
	default:
		return fmt.Errorf("config: USAGE_BACKEND must be local, postgres or redis, got %q", c.Storage.UsageBackend)
	}
	switch c.Storage.Local {
	case "memory", "file", "sqlite", "redis":
	default:
		return fmt.Errorf("config: LOCAL_STORE must be memory, file, sqlite or redis, got %q", c.Storage.Local)
	}
	if (c.Storage.Backend == "postgres" || c.Storage.UsageBackend == "postgres") && !c.DB.Enabled() {
		return fmt.Errorf("config: POSTGRES_URL is required when postgres storage is selected")
	}
	if (c.Storage.UsageBackend == "redis" || c.Storage.Local == "redis") && c.Storage.RedisURL == "" {
		return fmt.Errorf("config: REDIS_URL is required when redis storage is selected")
	}
	switch c.Analysis.Provider {
	case "endpoint", "openai", "gemini", "fallback":
	default:
		return fmt.Errorf("config: ANALYSIS_PROVIDER must be endpoint, openai, gemini or fallback, got %q", c.Analysis.Provider)
	}
	if c.Analysis.SignalDelay < 0 {
		return fmt.Errorf("config: SIGNAL_DELAY must not be negative")
	}
	return nil
}

func envKeys() []string {
	return []string{
		"PORT",
		"POSTGRES_USER", "POSTGRES_PWD", "POSTGRES_URL", "POSTGRES_PORT", "POSTGRES_DB", "POSTGRES_SSLMODE",
		"STRIPE_SECRET_KEY", "STRIPE_WEBHOOK_SECRET", "VITE_STRIPE_PUBLISHABLE_KEY", "FRONTEND_URL",
		"PRICE_ID_TRADER", "PRICE_ID_ALPHA_PRO", "BILLING_TEST_MODE",
		"VITE_SUPABASE_URL", "VITE_SUPABASE_ANON_KEY", "VITE_CLERK_PUBLISHABLE_KEY",
		"CLERK_ISSUER", "CLERK_JWKS_URL", "SESSION_SECRET", "SESSION_TTL", "AUTH_DISABLED",
		"ANALYSIS_PROVIDER", "VITE_API_URL", "VITE_OPENAI_API_KEY", "OPENAI_MODEL",
		"VITE_GEMINI_API_KEY", "GEMINI_MODEL", "SIGNAL_DELAY", "MARKET_QUOTES",
		"STORAGE_BACKEND", "USAGE_BACKEND", "LOCAL_STORE", "LOCAL_STORE_PATH", "REDIS_URL",
		"AMQP_URL", "RESEND_API_KEY", "EMAIL_FROM",
		"QUEUE_URL", "HOUSEKEEPING_SCHEDULE",
	}
}
