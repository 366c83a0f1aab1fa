// Package handler exposes the ops and admin HTTP surface of the bot.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/port"
	"github.com/boddenberg/monoreport-bot-go/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

var tracer = otel.Tracer("handler")

// healthCheckTimeout bounds each dependency probe.
const healthCheckTimeout = 2 * time.Second

// HealthCheck probes one dependency.
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// ReportTrigger sends one user's report out of schedule.
type ReportTrigger interface {
	SendOne(ctx context.Context, userID int64, now time.Time) (runID, status string, err error)
}

// NewRouter creates the HTTP router with all routes and middleware. The admin
// routes are mounted only when auth is enabled.
func NewRouter(reports ReportTrigger, users port.UserStore, auth *service.AdminAuth, checks []HealthCheck, metrics *observability.Metrics, logger *zap.Logger) http.Handler {
	r := chi.NewRouter()

	// --- Middleware ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(observability.ZapLoggerMiddleware(logger))
	r.Use(observability.TracingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Heartbeat("/ping"))

	// --- Operational endpoints ---
	r.Get("/healthz", healthzHandler(checks))
	r.Get("/readyz", readyzHandler(checks, logger))
	r.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))

	// --- API v1 ---
	r.Route("/v1", func(r chi.Router) {
		r.Get("/metrics/bot", botMetricsHandler(metrics))

		r.Route("/admin", func(r chi.Router) {
			if auth == nil || !auth.Enabled() {
				r.Handle("/*", http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
					writeError(w, http.StatusServiceUnavailable, "admin api disabled: JWT_SECRET not configured")
				}))
				return
			}

			r.Post("/login", adminLoginHandler(auth, logger))

			r.Group(func(r chi.Router) {
				r.Use(AdminAuthMiddleware(auth, logger))
				r.Post("/reports/{userId}", sendReportHandler(reports, logger))
				r.Get("/users/{userId}", getUserHandler(users, logger))
			})
		})
	})

	return r
}

// ============================================================
// Operational endpoints
// ============================================================

// runChecks probes every dependency with its own timeout.
func runChecks(ctx context.Context, checks []HealthCheck) []domain.ServiceHealth {
	now := time.Now().Format(time.RFC3339)
	services := []domain.ServiceHealth{
		{Name: "monobot", Status: "healthy", LastChecked: now},
	}

	for _, c := range checks {
		checkCtx, cancel := context.WithTimeout(ctx, healthCheckTimeout)
		start := time.Now()
		err := c.Check(checkCtx)
		cancel()

		status := "healthy"
		if err != nil {
			status = "unhealthy"
		}
		services = append(services, domain.ServiceHealth{
			Name:        c.Name,
			Status:      status,
			LatencyMs:   time.Since(start).Milliseconds(),
			LastChecked: now,
		})
	}
	return services
}

// healthzHandler reports liveness; failing dependencies only degrade it.
func healthzHandler(checks []HealthCheck) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := runChecks(r.Context(), checks)

		overallStatus := "healthy"
		for _, s := range services {
			if s.Status != "healthy" {
				overallStatus = "degraded"
			}
		}

		writeJSON(w, http.StatusOK, domain.HealthStatus{
			Status:   overallStatus,
			Services: services,
		})
	}
}

// readyzHandler fails while any dependency is down.
func readyzHandler(checks []HealthCheck, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		for _, s := range runChecks(r.Context(), checks) {
			if s.Status != "healthy" {
				logger.Warn("not ready", zap.String("service", s.Name))
				writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready", "service": s.Name})
				return
			}
		}
		writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
	}
}

func botMetricsHandler(metrics *observability.Metrics) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, metrics.Snapshot())
	}
}

// ============================================================
// Admin: POST /v1/admin/login
// ============================================================

type loginRequest struct {
	Password string `json:"password"`
}

type loginResponse struct {
	AccessToken string `json:"accessToken"`
	TokenType   string `json:"tokenType"`
	ExpiresAt   string `json:"expiresAt"`
}

func adminLoginHandler(auth *service.AdminAuth, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		_, span := tracer.Start(r.Context(), "POST /v1/admin/login")
		defer span.End()

		var req loginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Password == "" {
			writeError(w, http.StatusBadRequest, "password is required")
			return
		}

		token, expires, err := auth.Login(req.Password)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, loginResponse{
			AccessToken: token,
			TokenType:   "Bearer",
			ExpiresAt:   expires.UTC().Format(time.RFC3339),
		})
	}
}

// ============================================================
// Admin: POST /v1/admin/reports/{userId}
// ============================================================

func sendReportHandler(reports ReportTrigger, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/admin/reports/{userId}")
		defer span.End()

		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}
		span.SetAttributes(attribute.Int64("user.id", userID))

		logger.Info("report requested",
			zap.Int64("user_id", userID),
			zap.String("subject", SubjectFromContext(ctx)),
		)

		runID, status, err := reports.SendOne(ctx, userID, time.Now())
		result := domain.ReportResult{UserID: userID, RunID: runID, Status: status}
		if err != nil {
			var notFound *domain.ErrNotFound
			if errors.As(err, &notFound) || status == "" {
				handleServiceError(w, err, logger)
				return
			}
			result.Message = err.Error()
		}

		writeJSON(w, http.StatusOK, result)
	}
}

// ============================================================
// Admin: GET /v1/admin/users/{userId}
// ============================================================

// userView is a user without the sealed token.
type userView struct {
	ID               int64      `json:"id"`
	Name             string     `json:"name"`
	Username         string     `json:"username,omitempty"`
	LanguageCode     string     `json:"languageCode"`
	HasToken         bool       `json:"hasToken"`
	SelectedAccounts int        `json:"selectedAccounts"`
	ReportTime       string     `json:"reportTime"`
	Active           bool       `json:"active"`
	JoinDate         time.Time  `json:"joinDate"`
	BlockDate        *time.Time `json:"blockDate,omitempty"`
}

func getUserHandler(users port.UserStore, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/admin/users/{userId}")
		defer span.End()

		userID, ok := parseUserID(w, r)
		if !ok {
			return
		}

		u, err := users.Get(ctx, userID)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		if u == nil {
			handleServiceError(w, &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(userID, 10)}, logger)
			return
		}

		writeJSON(w, http.StatusOK, userView{
			ID:               u.ID,
			Name:             u.Name(),
			Username:         u.Username,
			LanguageCode:     u.LanguageCode,
			HasToken:         u.HasToken(),
			SelectedAccounts: len(u.SelectedAccounts),
			ReportTime:       u.ReportTime(),
			Active:           u.IsActive(),
			JoinDate:         u.JoinDate,
			BlockDate:        u.BlockDate,
		})
	}
}

func parseUserID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil || userID <= 0 {
		writeError(w, http.StatusBadRequest, "userId must be a positive integer")
		return 0, false
	}
	return userID, true
}
