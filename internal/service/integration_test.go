package service_test

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/i18n"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/cache"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/client"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/crypto"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/resilience"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/sqlite"
	"github.com/boddenberg/monoreport-bot-go/internal/service"

	"go.uber.org/zap"
)

// TestIntegration_DailyReport runs a tick against a mock Monobank API, a real
// SQLite store and the real token sealer.
func TestIntegration_DailyReport(t *testing.T) {
	// --- Mock Monobank API ---
	var statements atomic.Int32
	monobank := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("X-Token") != "u-integration-token" {
			w.WriteHeader(http.StatusUnauthorized)
			fmt.Fprint(w, `{"errorDescription":"Unknown 'X-Token'"}`)
			return
		}
		switch {
		case strings.HasPrefix(r.URL.Path, "/personal/statement/black/"):
			statements.Add(1)
			fmt.Fprint(w, `[
				{"id":"t1","time":1709658000,"description":"Silpo","mcc":5411,"amount":-15000,"currencyCode":980},
				{"id":"t2","time":1709661600,"description":"Uklon","mcc":4121,"amount":-12000,"currencyCode":980},
				{"id":"t3","time":1709665200,"description":"Salary","mcc":4829,"amount":500000,"currencyCode":980}
			]`)
		case strings.HasPrefix(r.URL.Path, "/personal/statement/white/"):
			statements.Add(1)
			fmt.Fprint(w, `[{"id":"t4","time":1709668800,"description":"ATB","mcc":5411,"amount":-5000,"currencyCode":980}]`)
		default:
			http.NotFound(w, r)
		}
	}))
	defer monobank.Close()

	// --- Store and sealer ---
	db, err := sqlite.Open(filepath.Join(t.TempDir(), "bot.db"))
	if err != nil {
		t.Fatal(err)
	}
	defer db.Close()
	if _, err := sqlite.Migrate(db); err != nil {
		t.Fatal(err)
	}
	users := sqlite.NewUserStore(db)

	sealer, err := crypto.NewSealer([]byte("0123456789abcdef0123456789abcdef"))
	if err != nil {
		t.Fatal(err)
	}

	// --- Wiring ---
	logger := zap.NewNop()
	metrics := observability.NewMetrics()
	bundle, err := i18n.Load("uk")
	if err != nil {
		t.Fatal(err)
	}
	accounts := cache.New[[]domain.Account](time.Minute)
	defer accounts.Close()

	mono := client.NewMonobankClient(
		monobank.Client(),
		monobank.URL,
		resilience.NewCircuitBreaker("monobank-integration", client.BreakerSuccess),
		resilience.Config{MaxRetries: 1, InitialBackoff: time.Millisecond},
		resilience.NewRateGate(time.Millisecond, nil),
		accounts,
		metrics,
		logger,
	)
	transport := newSendRecorder()
	spending := service.NewSpendingService(mono, service.Sleep, metrics, logger)
	reports := service.NewReportService(spending, sealer, users, transport, bundle, time.UTC, metrics, logger)
	job := service.NewReportJob(reports, users, time.Minute, 2, logger)

	// --- Users ---
	ctx := context.Background()
	sealed, err := sealer.Seal(42, "u-integration-token")
	if err != nil {
		t.Fatal(err)
	}
	u := domain.NewUser(42, "Lesya", "Ukrainka", "", "en")
	u.SealedToken = sealed
	u.SelectedAccounts = []string{"black", "white"}
	if err := users.Add(ctx, u); err != nil {
		t.Fatal(err)
	}

	stolen := domain.NewUser(43, "Mallory", "", "", "en")
	stolen.SealedToken = sealed // sealed for user 42
	stolen.SelectedAccounts = []string{"black"}
	if err := users.Add(ctx, stolen); err != nil {
		t.Fatal(err)
	}

	// --- Tick ---
	now := time.Date(2024, 3, 5, domain.DefaultReportHour, domain.DefaultReportMinute, 10, 0, time.UTC)
	result, err := job.Tick(ctx, now)
	if err != nil {
		t.Fatal(err)
	}

	if result.Statuses[service.ReportSent] != 1 || result.Statuses[service.ReportUnauthorized] != 1 {
		t.Errorf("unexpected statuses %v", result.Statuses)
	}
	if got := statements.Load(); got != 2 {
		t.Errorf("expected 2 statement requests, got %d", got)
	}

	texts := transport.texts(42)
	if len(texts) != 1 {
		t.Fatalf("expected one report, got %q", texts)
	}
	for _, part := range []string{
		"📊 Daily Report for 05.03.2024",
		"💰 Total spent: -320.00 ₴",
		"🛒 Groceries: -200.00 ₴",
		"📥 Income: +5 000.00 ₴",
		"📱 Transactions: 4",
	} {
		if !strings.Contains(texts[0], part) {
			t.Errorf("expected %q in report:\n%s", part, texts[0])
		}
	}

	// A token sealed for another user never reaches Monobank.
	if msgs := transport.texts(43); len(msgs) != 1 || strings.Contains(msgs[0], "Daily Report") {
		t.Errorf("expected a token notice for user 43, got %q", msgs)
	}

	// --- Manual trigger ---
	runID, status, err := job.SendOne(ctx, 42, now)
	if err != nil || status != service.ReportSent || runID == "" {
		t.Fatalf("unexpected manual result %s %s %v", runID, status, err)
	}
	if len(transport.texts(42)) != 2 {
		t.Error("expected a second report after the manual trigger")
	}
}
