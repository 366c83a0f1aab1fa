package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/cache"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/resilience"

	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("client")

const (
	tokenHeader  = "X-Token"
	maxErrorBody = 4 << 10
)

// MonobankClient talks to the Monobank personal API.
//
// Statement requests go through a per-credential RateGate; client-info
// requests are retried with backoff on transport and 5xx failures. Both run
// inside the circuit breaker, which should be built with BreakerSuccess so
// that 4xx answers do not trip it.
type MonobankClient struct {
	httpClient *http.Client
	baseURL    string
	cb         *gobreaker.CircuitBreaker
	cfg        resilience.Config
	gate       *resilience.RateGate
	accounts   *cache.InMemory[[]domain.Account]
	metrics    *observability.Metrics
	logger     *zap.Logger
}

// NewMonobankClient creates a new MonobankClient.
func NewMonobankClient(
	httpClient *http.Client,
	baseURL string,
	cb *gobreaker.CircuitBreaker,
	cfg resilience.Config,
	gate *resilience.RateGate,
	accounts *cache.InMemory[[]domain.Account],
	metrics *observability.Metrics,
	logger *zap.Logger,
) *MonobankClient {
	return &MonobankClient{
		httpClient: httpClient,
		baseURL:    strings.TrimRight(baseURL, "/"),
		cb:         cb,
		cfg:        cfg,
		gate:       gate,
		accounts:   accounts,
		metrics:    metrics,
		logger:     logger,
	}
}

// BreakerSuccess tells the circuit breaker which results are healthy: any
// answer the API deliberately gave (401, 429, other 4xx) is not a failure.
func BreakerSuccess(err error) bool {
	if err == nil {
		return true
	}
	var unauthorized *domain.ErrUnauthorized
	var limited *domain.ErrRateLimited
	var apiErr *domain.ErrAPI
	switch {
	case errors.As(err, &unauthorized), errors.As(err, &limited):
		return true
	case errors.As(err, &apiErr):
		return apiErr.Status < 500
	}
	return false
}

// ============================================================
// Client info
// ============================================================

// ClientInfo fetches GET /personal/client-info.
func (c *MonobankClient) ClientInfo(ctx context.Context, cred domain.Credential) (*domain.ClientInfo, error) {
	ctx, span := tracer.Start(ctx, "MonobankClient.ClientInfo")
	defer span.End()
	span.SetAttributes(attribute.String("credential.id", cred.ID))

	start := time.Now()
	defer func() { c.metrics.RecordRequestDuration("monobank.client_info", time.Since(start)) }()

	var info domain.ClientInfo

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.get(ctx, cred, "/personal/client-info")
			if err != nil {
				if BreakerSuccess(err) {
					return resilience.Permanent(err)
				}
				return err
			}
			return json.Unmarshal(body, &info)
		})
	})
	if err != nil {
		return nil, c.wrapError(err)
	}

	return &info, nil
}

// Accounts returns the credential's accounts, cached per credential.
func (c *MonobankClient) Accounts(ctx context.Context, cred domain.Credential) ([]domain.Account, error) {
	accounts, hit, err := c.accounts.GetOrLoad(cred.ID, func() ([]domain.Account, error) {
		info, err := c.ClientInfo(ctx, cred)
		if err != nil {
			return nil, err
		}
		return info.Accounts, nil
	})
	if hit {
		c.metrics.IncrCacheHit("accounts")
	} else {
		c.metrics.IncrCacheMiss("accounts")
	}
	return accounts, err
}

// ForgetAccounts drops the cached account list of a credential.
func (c *MonobankClient) ForgetAccounts(cred domain.Credential) {
	c.accounts.Delete(cred.ID)
}

// ValidateToken reports whether the API accepts the credential.
func (c *MonobankClient) ValidateToken(ctx context.Context, cred domain.Credential) (bool, error) {
	info, err := c.ClientInfo(ctx, cred)
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if errors.As(err, &unauthorized) {
			return false, nil
		}
		return false, err
	}
	c.accounts.Set(cred.ID, info.Accounts)
	return true, nil
}

// ============================================================
// HTTP plumbing
// ============================================================

// get performs an authenticated GET and maps non-2xx answers to domain errors.
func (c *MonobankClient) get(ctx context.Context, cred domain.Credential, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set(tokenHeader, cred.Token)
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, &domain.ErrUnauthorized{}
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, &domain.ErrRateLimited{RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After"), time.Now())}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, &domain.ErrAPI{Status: resp.StatusCode, Body: string(body)}
	}

	return io.ReadAll(resp.Body)
}

// wrapError keeps API answers as they are and wraps everything else.
func (c *MonobankClient) wrapError(err error) error {
	var unauthorized *domain.ErrUnauthorized
	var limited *domain.ErrRateLimited
	var apiErr *domain.ErrAPI
	if errors.As(err, &unauthorized) || errors.As(err, &limited) || errors.As(err, &apiErr) {
		return err
	}
	c.metrics.IncrExternalError("monobank")
	return &domain.ErrExternalService{Service: "monobank", Err: err}
}

// parseRetryAfter reads delta-seconds or an HTTP date; anything unusable
// yields domain.DefaultRetryAfter.
func parseRetryAfter(v string, now time.Time) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return domain.DefaultRetryAfter
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs <= 0 {
			return domain.DefaultRetryAfter
		}
		return time.Duration(secs) * time.Second
	}
	if at, err := http.ParseTime(v); err == nil {
		if d := at.Sub(now); d > 0 {
			return d
		}
	}
	return domain.DefaultRetryAfter
}

func statementPath(req domain.StatementRequest) string {
	path := fmt.Sprintf("/personal/statement/%s/%d", req.AccountID, req.From.Unix())
	if !req.To.IsZero() {
		path += fmt.Sprintf("/%d", req.To.Unix())
	}
	return path
}
