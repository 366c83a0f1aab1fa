package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/bot"
	chatinfra "github.com/boddenberg/monoreport-bot-go/internal/chat/infra"
	chatservice "github.com/boddenberg/monoreport-bot-go/internal/chat/service"
	"github.com/boddenberg/monoreport-bot-go/internal/chat/session"
	"github.com/boddenberg/monoreport-bot-go/internal/config"
	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/handler"
	"github.com/boddenberg/monoreport-bot-go/internal/i18n"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/cache"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/client"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/crypto"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/resilience"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/sqlite"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/supabase"
	"github.com/boddenberg/monoreport-bot-go/internal/port"
	"github.com/boddenberg/monoreport-bot-go/internal/service"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// telegramTimeout must exceed the long-polling timeout.
const telegramTimeout = 90 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the bot, the report job and the ops HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return serve(ctx, cfg)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func serve(ctx context.Context, cfg *config.Config) error {
	// --- Logger ---
	logger := observability.NewLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("configuration loaded",
		zap.Int("port", cfg.Port),
		zap.String("log_level", cfg.LogLevel),
		zap.String("store_backend", cfg.StoreBackend),
		zap.String("timezone", cfg.Timezone),
		zap.Duration("report_interval", cfg.ReportInterval),
		zap.Duration("statement_interval", cfg.StatementInterval),
		zap.Duration("http_timeout", cfg.HTTPTimeout),
		zap.Duration("cache_ttl", cfg.CacheTTL),
		zap.Int("max_retries", cfg.MaxRetries),
		zap.Bool("admin_api", cfg.JWTSecret != ""),
	)

	// --- Tracing ---
	shutdown, err := observability.InitTracer(cfg.OTLPEndpoint, "monobot")
	if err != nil {
		return fmt.Errorf("init tracer: %w", err)
	}
	defer shutdown(context.Background())

	// --- Metrics ---
	metrics := observability.NewMetrics()

	// --- Resilience ---
	resilienceCfg := resilience.Config{
		MaxRetries:     cfg.MaxRetries,
		InitialBackoff: cfg.InitialBackoff,
		MaxConcurrency: cfg.MaxConcurrency,
	}
	httpClient := &http.Client{Timeout: cfg.HTTPTimeout}

	// --- Users ---
	users, checks, closeStore, err := openUserStore(cfg, httpClient, resilienceCfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	sealer, err := crypto.LoadOrCreate(cfg.SecretKeyFile)
	if err != nil {
		return err
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}

	bundle, err := i18n.Load(cfg.DefaultLanguage)
	if err != nil {
		return err
	}

	// --- Monobank ---
	accounts := cache.New[[]domain.Account](cfg.CacheTTL)
	defer accounts.Close()

	monobank := client.NewMonobankClient(
		httpClient,
		cfg.MonobankAPIURL,
		resilience.NewCircuitBreaker("monobank", client.BreakerSuccess),
		resilienceCfg,
		resilience.NewRateGate(cfg.StatementInterval, resilience.SystemClock),
		accounts,
		metrics,
		logger,
	)

	// --- Telegram ---
	telegram, err := chatinfra.NewTelegram(cfg.BotToken, cfg.TelegramAPIURL, &http.Client{Timeout: telegramTimeout}, logger)
	if err != nil {
		return err
	}

	// --- Services ---
	spending := service.NewSpendingService(monobank, service.Sleep, metrics, logger)
	reports := service.NewReportService(spending, sealer, users, telegram, bundle, loc, metrics, logger)
	job := service.NewReportJob(reports, users, cfg.ReportInterval, cfg.ReportConcurrency, logger)
	admin := service.NewAdminAuth(cfg.JWTSecret, cfg.AdminPasswordHash, cfg.JWTAccessTTL)

	// --- Bot ---
	reconciler := chatservice.NewReconciler(telegram, metrics, logger)
	sessions := session.NewRegistry()
	start := bot.NewStartMenu(reports, telegram, time.Now, logger)
	settings := bot.NewSettingsMenu(monobank, sealer, reports, bundle, logger)
	router := bot.NewRouter(
		reconciler,
		telegram,
		telegram,
		sessions,
		users,
		bundle,
		start,
		[]bot.Menu{settings},
		cfg.MaxConcurrency,
		metrics,
		logger,
	).WithReportDefaults(cfg.ReportHour, cfg.ReportMinute)

	// --- Server ---
	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      handler.NewRouter(job, users, admin, checks, metrics, logger),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("server starting", zap.Int("port", cfg.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		logger.Info("server shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	g.Go(func() error {
		logger.Info("bot polling", zap.String("username", telegram.Username()))
		return ignoreCanceled(router.Run(ctx, telegram))
	})
	g.Go(func() error {
		return ignoreCanceled(job.Run(ctx))
	})

	err = g.Wait()
	logger.Info("stopped")
	return err
}

// openUserStore builds the configured user store and its readiness checks.
func openUserStore(cfg *config.Config, httpClient *http.Client, resilienceCfg resilience.Config, logger *zap.Logger) (port.UserStore, []handler.HealthCheck, func(), error) {
	switch cfg.StoreBackend {
	case config.BackendSupabase:
		logger.Info("using Supabase as user store", zap.String("supabase_url", cfg.SupabaseURL))
		sb := supabase.NewClient(
			httpClient,
			cfg.SupabaseURL,
			cfg.SupabaseAnonKey,
			cfg.SupabaseServiceKey,
			resilience.NewCircuitBreaker("supabase", nil),
			resilienceCfg,
			logger,
		)
		checks := []handler.HealthCheck{{Name: "supabase", Check: sb.Ping}}
		return sb, checks, func() {}, nil
	default:
		db, err := sqlite.Open(cfg.DatabasePath)
		if err != nil {
			return nil, nil, nil, err
		}
		schemaVersion, err := sqlite.Migrate(db)
		if err != nil {
			db.Close()
			return nil, nil, nil, err
		}
		logger.Info("using SQLite as user store",
			zap.String("path", cfg.DatabasePath),
			zap.Uint("schema_version", schemaVersion),
		)
		store := sqlite.NewUserStore(db)
		checks := []handler.HealthCheck{{Name: "sqlite", Check: store.Ping}}
		return store, checks, func() { db.Close() }, nil
	}
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
