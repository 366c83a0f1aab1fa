package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// FetchStatement fetches one account statement, waiting on the rate gate so
// that requests for the same credential are at least the gate interval apart.
// It never retries; a 429 comes back as *domain.ErrRateLimited.
func (c *MonobankClient) FetchStatement(ctx context.Context, req domain.StatementRequest) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "MonobankClient.FetchStatement")
	defer span.End()
	span.SetAttributes(
		attribute.String("credential.id", req.Credential.ID),
		attribute.String("account.id", req.AccountID),
	)

	var txs []domain.Transaction
	waited, err := c.gate.Do(ctx, req.Credential.ID, func() error {
		var fetchErr error
		txs, fetchErr = c.fetchStatement(ctx, req)
		return fetchErr
	})
	c.metrics.RecordRateGateWait(waited)
	if waited > 0 {
		c.logger.Debug("statement request held by rate gate",
			zap.String("credential_id", req.Credential.ID),
			zap.Duration("waited", waited),
		)
	}
	span.SetAttributes(attribute.Float64("rate_gate.wait_seconds", waited.Seconds()))

	return txs, err
}

// FetchStatementNow skips the wait but still records the dispatch, for the
// single retry after the API told us how long to back off.
func (c *MonobankClient) FetchStatementNow(ctx context.Context, req domain.StatementRequest) ([]domain.Transaction, error) {
	ctx, span := tracer.Start(ctx, "MonobankClient.FetchStatementNow")
	defer span.End()
	span.SetAttributes(
		attribute.String("credential.id", req.Credential.ID),
		attribute.String("account.id", req.AccountID),
	)

	c.gate.Mark(req.Credential.ID)
	return c.fetchStatement(ctx, req)
}

func (c *MonobankClient) fetchStatement(ctx context.Context, req domain.StatementRequest) ([]domain.Transaction, error) {
	result, err := c.cb.Execute(func() (any, error) {
		body, err := c.get(ctx, req.Credential, statementPath(req))
		if err != nil {
			return nil, err
		}

		var txs []domain.Transaction
		if err := json.Unmarshal(body, &txs); err != nil {
			return nil, fmt.Errorf("decode statement: %w", err)
		}
		return txs, nil
	})

	c.metrics.IncrStatementRequest(statementOutcome(err))
	if err != nil {
		c.logger.Debug("statement request failed",
			zap.String("credential_id", req.Credential.ID),
			zap.String("account_id", req.AccountID),
			zap.Error(err),
		)
		return nil, c.wrapError(err)
	}

	return result.([]domain.Transaction), nil
}

func statementOutcome(err error) string {
	var unauthorized *domain.ErrUnauthorized
	var limited *domain.ErrRateLimited
	var apiErr *domain.ErrAPI
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &unauthorized):
		return "unauthorized"
	case errors.As(err, &limited):
		return "rate_limited"
	case errors.As(err, &apiErr):
		return "api_error"
	default:
		return "transport_error"
	}
}
