// Package config loads the bot configuration from defaults, an optional
// dotenv/config file and the environment, in increasing priority.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	BackendSQLite   = "sqlite"
	BackendSupabase = "supabase"
)

// Config holds all application configuration.
type Config struct {
	// Server
	Port     int
	LogLevel string

	// Telegram
	BotToken       string
	TelegramAPIURL string

	// Monobank
	MonobankAPIURL    string
	StatementInterval time.Duration

	// Storage
	StoreBackend  string
	DatabasePath  string
	SecretKeyFile string

	// Supabase
	SupabaseURL        string
	SupabaseAnonKey    string
	SupabaseServiceKey string

	// Reports
	Timezone          string
	ReportHour        int
	ReportMinute      int
	ReportInterval    time.Duration
	ReportConcurrency int
	DefaultLanguage   string

	// HTTP client
	HTTPTimeout time.Duration

	// Resilience
	MaxRetries     int
	InitialBackoff time.Duration
	MaxConcurrency int

	// Cache
	CacheTTL time.Duration

	// Observability
	OTLPEndpoint string

	// Admin API
	JWTSecret         string
	JWTAccessTTL      time.Duration
	AdminPasswordHash string
}

// defaults lists every key with its default value.
var defaults = map[string]any{
	"PORT":      8080,
	"LOG_LEVEL": "info",

	"BOT_TOKEN":        "",
	"TELEGRAM_API_URL": "https://api.telegram.org",

	"MONOBANK_API_URL":   "https://api.monobank.ua",
	"STATEMENT_INTERVAL": 60 * time.Second,

	"STORE_BACKEND":   BackendSQLite,
	"DATABASE_PATH":   "data/monobot.db",
	"SECRET_KEY_FILE": "data/secret.key",

	"SUPABASE_URL":              "",
	"SUPABASE_ANON_KEY":         "",
	"SUPABASE_SERVICE_ROLE_KEY": "",

	"TIMEZONE":           "Europe/Kyiv",
	"REPORT_HOUR":        21,
	"REPORT_MINUTE":      0,
	"REPORT_INTERVAL":    60 * time.Second,
	"REPORT_CONCURRENCY": 4,
	"DEFAULT_LANGUAGE":   "uk",

	"HTTP_TIMEOUT": 30 * time.Second,

	"MAX_RETRIES":     3,
	"INITIAL_BACKOFF": 500 * time.Millisecond,
	"MAX_CONCURRENCY": 50,

	"CACHE_TTL": 5 * time.Minute,

	"OTEL_EXPORTER_OTLP_ENDPOINT": "",

	"JWT_SECRET":          "",
	"JWT_ACCESS_TTL":      15 * time.Minute,
	"ADMIN_PASSWORD_HASH": "",
}

// Load reads the configuration. path names a config file (.env, .toml, .yaml,
// ...); when empty, ./.env is used if it exists. Environment variables always
// win over the file.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()

	if path == "" {
		if _, err := os.Stat(".env"); err == nil {
			path = ".env"
		}
	}
	if path != "" {
		v.SetConfigFile(path)
		if strings.HasSuffix(path, ".env") {
			v.SetConfigType("env")
		}
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	return &Config{
		Port:     v.GetInt("PORT"),
		LogLevel: v.GetString("LOG_LEVEL"),

		BotToken:       v.GetString("BOT_TOKEN"),
		TelegramAPIURL: v.GetString("TELEGRAM_API_URL"),

		MonobankAPIURL:    v.GetString("MONOBANK_API_URL"),
		StatementInterval: v.GetDuration("STATEMENT_INTERVAL"),

		StoreBackend:  strings.ToLower(v.GetString("STORE_BACKEND")),
		DatabasePath:  v.GetString("DATABASE_PATH"),
		SecretKeyFile: v.GetString("SECRET_KEY_FILE"),

		SupabaseURL:        v.GetString("SUPABASE_URL"),
		SupabaseAnonKey:    v.GetString("SUPABASE_ANON_KEY"),
		SupabaseServiceKey: v.GetString("SUPABASE_SERVICE_ROLE_KEY"),

		Timezone:          v.GetString("TIMEZONE"),
		ReportHour:        v.GetInt("REPORT_HOUR"),
		ReportMinute:      v.GetInt("REPORT_MINUTE"),
		ReportInterval:    v.GetDuration("REPORT_INTERVAL"),
		ReportConcurrency: v.GetInt("REPORT_CONCURRENCY"),
		DefaultLanguage:   v.GetString("DEFAULT_LANGUAGE"),

		HTTPTimeout: v.GetDuration("HTTP_TIMEOUT"),

		MaxRetries:     v.GetInt("MAX_RETRIES"),
		InitialBackoff: v.GetDuration("INITIAL_BACKOFF"),
		MaxConcurrency: v.GetInt("MAX_CONCURRENCY"),

		CacheTTL: v.GetDuration("CACHE_TTL"),

		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),

		JWTSecret:         v.GetString("JWT_SECRET"),
		JWTAccessTTL:      v.GetDuration("JWT_ACCESS_TTL"),
		AdminPasswordHash: v.GetString("ADMIN_PASSWORD_HASH"),
	}, nil
}

// Validate checks the settings the bot cannot run without.
func (c *Config) Validate() error {
	var errs []error
	if c.BotToken == "" {
		errs = append(errs, errors.New("BOT_TOKEN is required"))
	}
	switch c.StoreBackend {
	case BackendSQLite:
		if c.DatabasePath == "" {
			errs = append(errs, errors.New("DATABASE_PATH is required for the sqlite backend"))
		}
	case BackendSupabase:
		if c.SupabaseURL == "" || c.SupabaseServiceKey == "" {
			errs = append(errs, errors.New("SUPABASE_URL and SUPABASE_SERVICE_ROLE_KEY are required for the supabase backend"))
		}
	default:
		errs = append(errs, fmt.Errorf("STORE_BACKEND must be %q or %q, got %q", BackendSQLite, BackendSupabase, c.StoreBackend))
	}
	if _, err := time.LoadLocation(c.Timezone); err != nil {
		errs = append(errs, fmt.Errorf("TIMEZONE: %w", err))
	}
	if c.ReportHour < 0 || c.ReportHour > 23 {
		errs = append(errs, fmt.Errorf("REPORT_HOUR must be 0-23, got %d", c.ReportHour))
	}
	if c.ReportMinute < 0 || c.ReportMinute > 59 {
		errs = append(errs, fmt.Errorf("REPORT_MINUTE must be 0-59, got %d", c.ReportMinute))
	}
	if c.ReportInterval <= 0 || c.StatementInterval <= 0 {
		errs = append(errs, errors.New("REPORT_INTERVAL and STATEMENT_INTERVAL must be positive"))
	}
	return errors.Join(errs...)
}

// Location loads the configured timezone.
func (c *Config) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}
