package client_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/cache"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/client"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/resilience"

	"go.uber.org/zap"
)

func newClient(t *testing.T, srv *httptest.Server, interval time.Duration) *client.MonobankClient {
	t.Helper()
	accounts := cache.New[[]domain.Account](time.Minute)
	t.Cleanup(accounts.Close)

	return client.NewMonobankClient(
		srv.Client(),
		srv.URL,
		resilience.NewCircuitBreaker("monobank-test", client.BreakerSuccess),
		resilience.Config{MaxRetries: 2, InitialBackoff: time.Millisecond},
		resilience.NewRateGate(interval, nil),
		accounts,
		observability.NewMetrics(),
		zap.NewNop(),
	)
}

func statementReq(token string) domain.StatementRequest {
	return domain.StatementRequest{
		Credential: domain.NewCredential(token),
		AccountID:  "acc-1",
		From:       time.Unix(1700000000, 0),
		To:         time.Unix(1700086400, 0),
	}
}

func TestFetchStatement_OK(t *testing.T) {
	var gotPath, gotToken string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotToken = r.Header.Get("X-Token")
		fmt.Fprint(w, `[{"id":"t1","time":1700000100,"description":"Silpo","mcc":5411,"amount":-15000,"currencyCode":980,"balance":100000,"hold":false}]`)
	}))
	defer srv.Close()

	txs, err := newClient(t, srv, time.Millisecond).FetchStatement(context.Background(), statementReq("u-token"))
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	if gotPath != "/personal/statement/acc-1/1700000000/1700086400" {
		t.Errorf("unexpected path %s", gotPath)
	}
	if gotToken != "u-token" {
		t.Errorf("expected token header, got %q", gotToken)
	}
	if len(txs) != 1 || txs[0].MCC != 5411 || txs[0].Amount != -15000 {
		t.Errorf("unexpected transactions: %+v", txs)
	}
}

func TestFetchStatement_OmitsOpenEnd(t *testing.T) {
	var gotPath string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	req := statementReq("tok")
	req.To = time.Time{}
	if _, err := newClient(t, srv, time.Millisecond).FetchStatement(context.Background(), req); err != nil {
		t.Fatal(err)
	}
	if gotPath != "/personal/statement/acc-1/1700000000" {
		t.Errorf("unexpected path %s", gotPath)
	}
}

func TestFetchStatement_Unauthorized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, time.Millisecond).FetchStatement(context.Background(), statementReq("bad"))

	var unauthorized *domain.ErrUnauthorized
	if !errors.As(err, &unauthorized) {
		t.Fatalf("expected ErrUnauthorized, got %v", err)
	}
}

func TestFetchStatement_RateLimited(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   time.Duration
	}{
		{"seconds", "15", 15 * time.Second},
		{"missing", "", domain.DefaultRetryAfter},
		{"garbage", "soon", domain.DefaultRetryAfter},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if tt.header != "" {
					w.Header().Set("Retry-After", tt.header)
				}
				w.WriteHeader(http.StatusTooManyRequests)
			}))
			defer srv.Close()

			_, err := newClient(t, srv, time.Millisecond).FetchStatement(context.Background(), statementReq("tok"))

			var limited *domain.ErrRateLimited
			if !errors.As(err, &limited) {
				t.Fatalf("expected ErrRateLimited, got %v", err)
			}
			if limited.RetryAfter != tt.want {
				t.Errorf("expected retry after %s, got %s", tt.want, limited.RetryAfter)
			}
		})
	}
}

func TestFetchStatement_APIErrorNotRetried(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusInternalServerError)
		fmt.Fprint(w, `{"errorDescription":"oops"}`)
	}))
	defer srv.Close()

	_, err := newClient(t, srv, time.Millisecond).FetchStatement(context.Background(), statementReq("tok"))

	var apiErr *domain.ErrAPI
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected ErrAPI, got %v", err)
	}
	if apiErr.Status != 500 || apiErr.Body != `{"errorDescription":"oops"}` {
		t.Errorf("unexpected api error: %+v", apiErr)
	}
	if calls.Load() != 1 {
		t.Errorf("expected exactly 1 request, got %d", calls.Load())
	}
}

func TestFetchStatement_GatedPerCredential(t *testing.T) {
	var times []time.Time
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		times = append(times, time.Now())
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	interval := 100 * time.Millisecond
	c := newClient(t, srv, interval)
	req := statementReq("tok")

	for i := 0; i < 2; i++ {
		if _, err := c.FetchStatement(context.Background(), req); err != nil {
			t.Fatal(err)
		}
	}

	if gap := times[1].Sub(times[0]); gap < interval-10*time.Millisecond {
		t.Errorf("expected gap >= %s, got %s", interval, gap)
	}
}

func TestFetchStatementNow_SkipsWait(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, `[]`)
	}))
	defer srv.Close()

	c := newClient(t, srv, time.Hour)
	req := statementReq("tok")
	if _, err := c.FetchStatement(context.Background(), req); err != nil {
		t.Fatal(err)
	}

	done := make(chan error, 1)
	go func() {
		_, err := c.FetchStatementNow(context.Background(), req)
		done <- err
	}()

	select {
	case err := <-done:
		if err != nil {
			t.Fatal(err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("FetchStatementNow must not wait on the gate")
	}
}

func TestClientInfo_RetriesServerErrors(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls.Add(1) == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		fmt.Fprint(w, `{"clientId":"c1","name":"Taras","accounts":[{"id":"acc-1","type":"black","currencyCode":980,"maskedPan":["537541******1234"]}]}`)
	}))
	defer srv.Close()

	info, err := newClient(t, srv, time.Millisecond).ClientInfo(context.Background(), domain.NewCredential("tok"))
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected 2 calls, got %d", calls.Load())
	}
	if len(info.Accounts) != 1 || info.Accounts[0].Type != "black" {
		t.Errorf("unexpected accounts: %+v", info.Accounts)
	}
}

func TestValidateToken(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		if r.Header.Get("X-Token") != "good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		fmt.Fprint(w, `{"clientId":"c1","accounts":[]}`)
	}))
	defer srv.Close()

	c := newClient(t, srv, time.Millisecond)

	ok, err := c.ValidateToken(context.Background(), domain.NewCredential("bad"))
	if err != nil || ok {
		t.Fatalf("expected invalid token without error, got ok=%v err=%v", ok, err)
	}
	if calls.Load() != 1 {
		t.Errorf("401 must not be retried, got %d calls", calls.Load())
	}

	ok, err = c.ValidateToken(context.Background(), domain.NewCredential("good"))
	if err != nil || !ok {
		t.Fatalf("expected valid token, got ok=%v err=%v", ok, err)
	}
}

func TestAccounts_Cached(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		fmt.Fprint(w, `{"clientId":"c1","accounts":[{"id":"acc-1","type":"white","currencyCode":980}]}`)
	}))
	defer srv.Close()

	c := newClient(t, srv, time.Millisecond)
	cred := domain.NewCredential("tok")

	for i := 0; i < 3; i++ {
		accounts, err := c.Accounts(context.Background(), cred)
		if err != nil {
			t.Fatal(err)
		}
		if len(accounts) != 1 {
			t.Fatalf("expected 1 account, got %d", len(accounts))
		}
	}
	if calls.Load() != 1 {
		t.Errorf("expected a single client-info call, got %d", calls.Load())
	}
}
