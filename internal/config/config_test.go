package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/config"
)

func TestLoad_Defaults(t *testing.T) {
	t.Chdir(t.TempDir())

	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}

	if cfg.Port != 8080 || cfg.StoreBackend != config.BackendSQLite || cfg.Timezone != "Europe/Kyiv" {
		t.Errorf("unexpected defaults %+v", cfg)
	}
	if cfg.ReportHour != 21 || cfg.ReportMinute != 0 || cfg.ReportInterval != time.Minute {
		t.Errorf("unexpected report defaults %+v", cfg)
	}
	if cfg.StatementInterval != 60*time.Second {
		t.Errorf("expected a 60s statement interval, got %s", cfg.StatementInterval)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bot.env")
	content := "BOT_TOKEN=from-file\nREPORT_HOUR=7\nSTORE_BACKEND=Supabase\n"
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatal(err)
	}
	t.Setenv("BOT_TOKEN", "from-env")
	t.Setenv("HTTP_TIMEOUT", "5s")

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatal(err)
	}

	if cfg.BotToken != "from-env" {
		t.Errorf("expected env to win, got %q", cfg.BotToken)
	}
	if cfg.ReportHour != 7 {
		t.Errorf("expected the file value, got %d", cfg.ReportHour)
	}
	if cfg.StoreBackend != config.BackendSupabase {
		t.Errorf("expected a lowercased backend, got %q", cfg.StoreBackend)
	}
	if cfg.HTTPTimeout != 5*time.Second {
		t.Errorf("expected 5s, got %s", cfg.HTTPTimeout)
	}
}

func TestLoad_MissingExplicitFile(t *testing.T) {
	if _, err := config.Load(filepath.Join(t.TempDir(), "missing.env")); err == nil {
		t.Error("expected an error for a missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *config.Config {
		return &config.Config{
			BotToken:          "123:abc",
			StoreBackend:      config.BackendSQLite,
			DatabasePath:      "bot.db",
			Timezone:          "Europe/Kyiv",
			ReportHour:        21,
			ReportInterval:    time.Minute,
			StatementInterval: time.Minute,
		}
	}

	if err := valid().Validate(); err != nil {
		t.Fatalf("expected a valid config, got %v", err)
	}

	tests := []struct {
		name   string
		mutate func(*config.Config)
		want   string
	}{
		{"no token", func(c *config.Config) { c.BotToken = "" }, "BOT_TOKEN"},
		{"bad backend", func(c *config.Config) { c.StoreBackend = "redis" }, "STORE_BACKEND"},
		{"supabase without url", func(c *config.Config) { c.StoreBackend = config.BackendSupabase }, "SUPABASE_URL"},
		{"bad timezone", func(c *config.Config) { c.Timezone = "Mars/Olympus" }, "TIMEZONE"},
		{"bad hour", func(c *config.Config) { c.ReportHour = 24 }, "REPORT_HOUR"},
		{"bad minute", func(c *config.Config) { c.ReportMinute = -1 }, "REPORT_MINUTE"},
		{"zero interval", func(c *config.Config) { c.ReportInterval = 0 }, "REPORT_INTERVAL"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Errorf("expected an error mentioning %s, got %v", tt.want, err)
			}
		})
	}
}
