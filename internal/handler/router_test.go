package handler_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/handler"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/port"
	"github.com/boddenberg/monoreport-bot-go/internal/service"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// --- Mocks ---

type fakeTrigger struct {
	calls []int64
}

func (f *fakeTrigger) SendOne(_ context.Context, userID int64, _ time.Time) (string, string, error) {
	f.calls = append(f.calls, userID)
	switch userID {
	case 404:
		return "run-404", service.ReportSkipped, &domain.ErrNotFound{Resource: "user", ID: "404"}
	case 403:
		return "run-403", service.ReportUnreachable, &domain.ErrUserUnreachable{ChatID: 403}
	default:
		return "run-" + strconv.FormatInt(userID, 10), service.ReportSent, nil
	}
}

type fakeUsers struct {
	users map[int64]*domain.User
}

func (f *fakeUsers) Get(_ context.Context, id int64) (*domain.User, error) {
	return f.users[id], nil
}

func (f *fakeUsers) Add(context.Context, *domain.User) error { return nil }

func (f *fakeUsers) ListDue(context.Context, int, int) ([]domain.User, error) { return nil, nil }

func (f *fakeUsers) WithTx(_ context.Context, fn func(port.UserStore) error) error { return fn(f) }

func (f *fakeUsers) Ping(context.Context) error { return nil }

func newRouter(t *testing.T, auth *service.AdminAuth, checks ...handler.HealthCheck) (http.Handler, *fakeTrigger) {
	t.Helper()
	u := domain.NewUser(7, "Taras", "Shevchenko", "kobzar", "uk")
	u.SealedToken = "sealed"
	trigger := &fakeTrigger{}
	users := &fakeUsers{users: map[int64]*domain.User{7: u}}
	return handler.NewRouter(trigger, users, auth, checks, observability.NewMetrics(), zap.NewNop()), trigger
}

func do(router http.Handler, method, path, token, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func issue(t *testing.T, auth *service.AdminAuth) string {
	t.Helper()
	token, _, err := auth.IssueToken("test")
	if err != nil {
		t.Fatal(err)
	}
	return token
}

// --- Operational endpoints ---

func TestHealthz(t *testing.T) {
	router, _ := newRouter(t, nil, handler.HealthCheck{Name: "users", Check: func(context.Context) error { return nil }})

	rec := do(router, http.MethodGet, "/healthz", "", "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var status domain.HealthStatus
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if status.Status != "healthy" || len(status.Services) != 2 {
		t.Errorf("unexpected status %+v", status)
	}
}

func TestHealthz_DegradedStillOK(t *testing.T) {
	router, _ := newRouter(t, nil, handler.HealthCheck{Name: "users", Check: func(context.Context) error { return errors.New("down") }})

	rec := do(router, http.MethodGet, "/healthz", "", "")

	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"degraded"`) {
		t.Errorf("expected a degraded 200, got %d %s", rec.Code, rec.Body.String())
	}
}

func TestReadyz(t *testing.T) {
	router, _ := newRouter(t, nil)
	if rec := do(router, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}

	router, _ = newRouter(t, nil, handler.HealthCheck{Name: "users", Check: func(context.Context) error { return errors.New("down") }})
	if rec := do(router, http.MethodGet, "/readyz", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestMetrics(t *testing.T) {
	router, _ := newRouter(t, nil)

	rec := do(router, http.MethodGet, "/metrics", "", "")

	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "monobot_") {
		t.Error("expected the bot metrics in the exposition")
	}
}

func TestBotMetrics(t *testing.T) {
	router, _ := newRouter(t, nil)

	rec := do(router, http.MethodGet, "/v1/metrics/bot", "", "")

	var snap domain.BotMetrics
	if rec.Code != http.StatusOK || json.NewDecoder(rec.Body).Decode(&snap) != nil {
		t.Errorf("expected a JSON snapshot, got %d %s", rec.Code, rec.Body.String())
	}
}

// --- Admin ---

func TestAdmin_DisabledWithoutSecret(t *testing.T) {
	router, _ := newRouter(t, service.NewAdminAuth("", "", time.Hour))

	if rec := do(router, http.MethodPost, "/v1/admin/reports/7", "", ""); rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
}

func TestAdmin_RequiresBearerToken(t *testing.T) {
	router, trigger := newRouter(t, service.NewAdminAuth("s3cret", "", time.Hour))

	for _, token := range []string{"", "bogus"} {
		if rec := do(router, http.MethodPost, "/v1/admin/reports/7", token, ""); rec.Code != http.StatusUnauthorized {
			t.Errorf("token %q: expected 401, got %d", token, rec.Code)
		}
	}
	if len(trigger.calls) != 0 {
		t.Error("unauthenticated requests must not trigger reports")
	}
}

func TestAdmin_SendReport(t *testing.T) {
	auth := service.NewAdminAuth("s3cret", "", time.Hour)
	router, trigger := newRouter(t, auth)

	rec := do(router, http.MethodPost, "/v1/admin/reports/7", issue(t, auth), "")

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d %s", rec.Code, rec.Body.String())
	}
	var result domain.ReportResult
	if err := json.NewDecoder(rec.Body).Decode(&result); err != nil {
		t.Fatal(err)
	}
	if result.UserID != 7 || result.Status != service.ReportSent || result.RunID != "run-7" {
		t.Errorf("unexpected result %+v", result)
	}
	if len(trigger.calls) != 1 {
		t.Errorf("expected one trigger, got %v", trigger.calls)
	}
}

func TestAdmin_SendReportErrors(t *testing.T) {
	auth := service.NewAdminAuth("s3cret", "", time.Hour)
	router, _ := newRouter(t, auth)
	token := issue(t, auth)

	tests := []struct {
		path   string
		status int
		body   string
	}{
		{"/v1/admin/reports/abc", http.StatusBadRequest, "positive integer"},
		{"/v1/admin/reports/404", http.StatusNotFound, "user not found"},
		{"/v1/admin/reports/403", http.StatusOK, `"status":"unreachable"`},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			rec := do(router, http.MethodPost, tt.path, token, "")
			if rec.Code != tt.status || !strings.Contains(rec.Body.String(), tt.body) {
				t.Errorf("expected %d with %q, got %d %s", tt.status, tt.body, rec.Code, rec.Body.String())
			}
		})
	}
}

func TestAdmin_GetUserHidesToken(t *testing.T) {
	auth := service.NewAdminAuth("s3cret", "", time.Hour)
	router, _ := newRouter(t, auth)
	token := issue(t, auth)

	rec := do(router, http.MethodGet, "/v1/admin/users/7", token, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()
	if strings.Contains(body, "sealed") || !strings.Contains(body, `"hasToken":true`) || !strings.Contains(body, `"reportTime":"21:00"`) {
		t.Errorf("unexpected body %s", body)
	}

	if rec := do(router, http.MethodGet, "/v1/admin/users/8", token, ""); rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

func TestAdmin_Login(t *testing.T) {
	hash, err := bcrypt.GenerateFromPassword([]byte("hunter2"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	router, _ := newRouter(t, service.NewAdminAuth("s3cret", string(hash), time.Hour))

	if rec := do(router, http.MethodPost, "/v1/admin/login", "", `{"password":"wrong"}`); rec.Code != http.StatusUnauthorized {
		t.Errorf("expected 401, got %d", rec.Code)
	}
	if rec := do(router, http.MethodPost, "/v1/admin/login", "", `{}`); rec.Code != http.StatusBadRequest {
		t.Errorf("expected 400, got %d", rec.Code)
	}

	rec := do(router, http.MethodPost, "/v1/admin/login", "", `{"password":"hunter2"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil || resp.AccessToken == "" {
		t.Fatalf("expected a token, got %v", err)
	}

	if rec := do(router, http.MethodGet, "/v1/admin/users/7", resp.AccessToken, ""); rec.Code != http.StatusOK {
		t.Errorf("the issued token must grant access, got %d", rec.Code)
	}
}
