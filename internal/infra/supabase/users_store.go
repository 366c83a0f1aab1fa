package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
)

// ============================================================
// Users: port.UserStore via PostgREST
// ============================================================

// Get returns (nil, nil) when the user is unknown.
func (c *Client) Get(ctx context.Context, id int64) (*domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", id))

	body, err := c.execute(ctx, http.MethodGet, fmt.Sprintf("users?id=eq.%d&limit=1", id), nil, "")
	if err != nil {
		return nil, err
	}

	var rows []userRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode user: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	u := rows[0].toDomain()
	return &u, nil
}

// Add upserts the user on its primary key.
func (c *Client) Add(ctx context.Context, u *domain.User) error {
	ctx, span := tracer.Start(ctx, "Supabase.AddUser")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", u.ID))

	_, err := c.execute(ctx, http.MethodPost, "users?on_conflict=id", toRow(u),
		"resolution=merge-duplicates,return=minimal")
	return err
}

// ListDue returns active users with a token whose report time is hour:minute.
func (c *Client) ListDue(ctx context.Context, hour, minute int) ([]domain.User, error) {
	ctx, span := tracer.Start(ctx, "Supabase.ListDueUsers")
	defer span.End()

	path := fmt.Sprintf(
		"users?block_date=is.null&monobank_token=neq.&report_hour=eq.%d&report_minute=eq.%d&order=id.asc",
		hour, minute,
	)
	body, err := c.execute(ctx, http.MethodGet, path, nil, "")
	if err != nil {
		return nil, err
	}

	var rows []userRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode users: %w", err)
	}

	users := make([]domain.User, 0, len(rows))
	for _, r := range rows {
		users = append(users, r.toDomain())
	}
	span.SetAttributes(attribute.Int("users", len(users)))
	return users, nil
}

// WithTx runs fn against the client itself. PostgREST has no client-side
// transactions; every write inside fn is a single-row upsert.
func (c *Client) WithTx(_ context.Context, fn func(port.UserStore) error) error {
	return fn(c)
}

// Ping issues a cheap HEAD-style read of the users table.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.doRequest(ctx, http.MethodGet, "users?select=id&limit=1", nil, "")
	return err
}
