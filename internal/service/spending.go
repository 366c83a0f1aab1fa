package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/port"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("service")

// SpendingService aggregates statements of several accounts into a
// per-category summary.
type SpendingService struct {
	fetcher port.StatementFetcher
	sleep   port.Sleeper
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewSpendingService creates the aggregator. A nil sleep uses a timer that
// honours context cancellation.
func NewSpendingService(fetcher port.StatementFetcher, sleep port.Sleeper, metrics *observability.Metrics, logger *zap.Logger) *SpendingService {
	if sleep == nil {
		sleep = Sleep
	}
	return &SpendingService{
		fetcher: fetcher,
		sleep:   sleep,
		metrics: metrics,
		logger:  logger,
	}
}

// Sleep waits for d unless ctx ends first.
func Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Aggregate fetches every account sequentially and sums its transactions.
//
// A rate-limited account is retried once after the advertised delay. An
// account that still fails is recorded in FailedAccounts and skipped. A
// rejected token aborts the whole aggregation with *domain.ErrUnauthorized.
func (s *SpendingService) Aggregate(ctx context.Context, cred domain.Credential, accounts []string, from, to time.Time, lang string) (*domain.SpendingSummary, error) {
	ctx, span := tracer.Start(ctx, "SpendingService.Aggregate")
	defer span.End()
	span.SetAttributes(
		attribute.String("credential.id", cred.ID),
		attribute.Int("accounts", len(accounts)),
	)

	start := time.Now()
	defer func() { s.metrics.RecordRequestDuration("spending.aggregate", time.Since(start)) }()

	var (
		summary = &domain.SpendingSummary{Categories: []domain.CategoryBucket{}}
		index   = make(map[string]int)
	)

	for _, accountID := range accounts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		txs, err := s.fetchAccount(ctx, domain.StatementRequest{
			Credential: cred,
			AccountID:  accountID,
			From:       from,
			To:         to,
		})
		if err != nil {
			var unauthorized *domain.ErrUnauthorized
			if errors.As(err, &unauthorized) {
				return nil, err
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			s.logger.Warn("skipping account in summary",
				zap.String("credential_id", cred.ID),
				zap.String("account_id", accountID),
				zap.Error(err),
			)
			summary.FailedAccounts = append(summary.FailedAccounts, accountID)
			continue
		}

		for _, tx := range txs {
			summary.TransactionCount++
			if tx.Amount >= 0 {
				summary.TotalIncome += tx.Amount
				continue
			}

			spent := -tx.Amount
			summary.TotalSpending += spent

			key := ClassifyMCC(tx.MCC)
			i, ok := index[key]
			if !ok {
				i = len(summary.Categories)
				index[key] = i
				summary.Categories = append(summary.Categories, domain.CategoryBucket{
					Key:  key,
					Name: CategoryName(key, lang),
				})
			}
			summary.Categories[i].Amount += spent
		}
	}

	sort.SliceStable(summary.Categories, func(i, j int) bool {
		return summary.Categories[i].Amount > summary.Categories[j].Amount
	})

	span.SetAttributes(
		attribute.Int("transactions", summary.TransactionCount),
		attribute.Int("failed_accounts", len(summary.FailedAccounts)),
	)
	return summary, nil
}

// fetchAccount fetches one statement, retrying a 429 exactly once.
func (s *SpendingService) fetchAccount(ctx context.Context, req domain.StatementRequest) ([]domain.Transaction, error) {
	txs, err := s.fetcher.FetchStatement(ctx, req)

	var limited *domain.ErrRateLimited
	if !errors.As(err, &limited) {
		return txs, err
	}

	s.logger.Info("statement rate limited, retrying once",
		zap.String("credential_id", req.Credential.ID),
		zap.String("account_id", req.AccountID),
		zap.Duration("retry_after", limited.RetryAfter),
	)
	if err := s.sleep(ctx, limited.RetryAfter); err != nil {
		return nil, err
	}
	return s.fetcher.FetchStatementNow(ctx, req)
}
