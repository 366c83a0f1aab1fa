package service

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/port"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ReportJob delivers daily reports to users whose configured report time
// matches the current minute.
type ReportJob struct {
	reports     *ReportService
	users       port.UserStore
	interval    time.Duration
	concurrency int
	now         func() time.Time
	logger      *zap.Logger
}

// maxCatchUp bounds how many missed minutes one wake-up evaluates, e.g. after
// the host was suspended.
const maxCatchUp = time.Hour

// NewReportJob creates the job. interval is the tick period and should not
// exceed one minute or report times would be skipped.
func NewReportJob(reports *ReportService, users port.UserStore, interval time.Duration, concurrency int, logger *zap.Logger) *ReportJob {
	if concurrency < 1 {
		concurrency = 1
	}
	return &ReportJob{
		reports:     reports,
		users:       users,
		interval:    interval,
		concurrency: concurrency,
		now:         time.Now,
		logger:      logger,
	}
}

// WithClock replaces the clock used to pick report minutes.
func (j *ReportJob) WithClock(now func() time.Time) *ReportJob {
	j.now = now
	return j
}

// Run wakes up every interval and ticks each report minute exactly once, each
// in its own goroutine. Minutes missed between wake-ups are caught up, up to
// maxCatchUp. In-flight ticks are awaited before Run returns.
func (j *ReportJob) Run(ctx context.Context) error {
	ticker := time.NewTicker(j.interval)
	defer ticker.Stop()

	var wg sync.WaitGroup
	defer wg.Wait()

	last := j.now().Truncate(time.Minute).Add(-time.Minute)

	j.logger.Info("report job started", zap.Duration("interval", j.interval))
	for {
		select {
		case <-ctx.Done():
			j.logger.Info("report job stopped")
			return ctx.Err()
		case <-ticker.C:
		}

		now := j.now()
		slot := now.Truncate(time.Minute)
		if !slot.After(last) {
			continue
		}
		if slot.Sub(last) > maxCatchUp {
			j.logger.Warn("report minutes skipped",
				zap.Time("from", last.Add(time.Minute)),
				zap.Time("to", slot.Add(-maxCatchUp)),
			)
			last = slot.Add(-maxCatchUp)
		}

		for m := last.Add(time.Minute); !m.After(slot); m = m.Add(time.Minute) {
			at := m
			if m.Equal(slot) {
				at = now
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				if _, err := j.Tick(ctx, at); err != nil {
					j.logger.Error("report tick failed", zap.Time("slot", at), zap.Error(err))
				}
			}()
		}
		last = slot
	}
}

// TickResult counts what one tick did, per report status.
type TickResult struct {
	RunID    string
	Statuses map[string]int
}

// Tick sends the reports due at now. Each user is handled independently; a
// failure for one user is logged and never stops the others. The returned
// error only reports a failure to list the due users.
func (j *ReportJob) Tick(ctx context.Context, now time.Time) (*TickResult, error) {
	ctx, span := tracer.Start(ctx, "ReportJob.Tick")
	defer span.End()

	local := now.In(j.reports.Location())
	users, err := j.users.ListDue(ctx, local.Hour(), local.Minute())
	if err != nil {
		return nil, err
	}

	runID := uuid.NewString()
	span.SetAttributes(attribute.String("run.id", runID), attribute.Int("users", len(users)))
	result := &TickResult{RunID: runID, Statuses: make(map[string]int)}
	if len(users) == 0 {
		return result, nil
	}

	j.logger.Info("sending daily reports",
		zap.String("run_id", runID),
		zap.String("slot", local.Format("15:04")),
		zap.Int("users", len(users)),
	)

	statuses := make([]string, len(users))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(j.concurrency)
	for i := range users {
		u := &users[i]
		g.Go(func() error {
			status, err := j.reports.Send(gCtx, u, now)
			statuses[i] = status
			if err != nil {
				j.logger.Warn("daily report not delivered",
					zap.String("run_id", runID),
					zap.Int64("user_id", u.ID),
					zap.String("status", status),
					zap.Error(err),
				)
			}
			return nil
		})
	}
	_ = g.Wait()

	for _, s := range statuses {
		result.Statuses[s]++
	}
	j.logger.Info("daily reports done",
		zap.String("run_id", runID),
		zap.Int("sent", result.Statuses[ReportSent]),
		zap.Int("failed", result.Statuses[ReportFailed]),
		zap.Int("unreachable", result.Statuses[ReportUnreachable]),
	)
	return result, nil
}

// SendOne delivers the daily report of one user right away, for the admin
// endpoint.
func (j *ReportJob) SendOne(ctx context.Context, userID int64, now time.Time) (string, string, error) {
	runID := uuid.NewString()

	u, err := j.users.Get(ctx, userID)
	if err != nil {
		return runID, ReportFailed, err
	}
	if u == nil {
		return runID, ReportSkipped, &domain.ErrNotFound{Resource: "user", ID: strconv.FormatInt(userID, 10)}
	}

	status, err := j.reports.Send(ctx, u, now)
	j.logger.Info("manual daily report",
		zap.String("run_id", runID),
		zap.Int64("user_id", userID),
		zap.String("status", status),
	)
	return runID, status, err
}
