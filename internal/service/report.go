package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
	chatport "github.com/boddenberg/monoreport-bot-go/internal/chat/port"
	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/i18n"
	"github.com/boddenberg/monoreport-bot-go/internal/infra/observability"
	"github.com/boddenberg/monoreport-bot-go/internal/port"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"
)

// Report statuses, also used as metric labels.
const (
	ReportSent         = "sent"
	ReportFailed       = "failed"
	ReportUnreachable  = "unreachable"
	ReportUnauthorized = "unauthorized"
	ReportSkipped      = "skipped"
)

// ReportKind selects the report header.
type ReportKind int

const (
	// DailyReport is the scheduled report.
	DailyReport ReportKind = iota
	// OnDemandReport is requested from the start menu.
	OnDemandReport
)

// Report is a built, not yet delivered, spending report.
type Report struct {
	Summary *domain.SpendingSummary
	Text    string
	From    time.Time
	To      time.Time
}

// ReportService builds spending reports and delivers them.
type ReportService struct {
	spending  *SpendingService
	sealer    port.Sealer
	users     port.UserStore
	transport chatport.Transport
	bundle    *i18n.Bundle
	location  *time.Location
	metrics   *observability.Metrics
	logger    *zap.Logger
}

// NewReportService creates the report service. Day boundaries are computed
// in loc.
func NewReportService(
	spending *SpendingService,
	sealer port.Sealer,
	users port.UserStore,
	transport chatport.Transport,
	bundle *i18n.Bundle,
	loc *time.Location,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *ReportService {
	return &ReportService{
		spending:  spending,
		sealer:    sealer,
		users:     users,
		transport: transport,
		bundle:    bundle,
		location:  loc,
		metrics:   metrics,
		logger:    logger,
	}
}

// Location is the timezone reports are computed in.
func (s *ReportService) Location() *time.Location {
	return s.location
}

// Credential opens the user's sealed token. A token that cannot be opened is
// reported as *domain.ErrUnauthorized so the user is asked to enter it again.
func (s *ReportService) Credential(u *domain.User) (domain.Credential, error) {
	if !u.HasToken() {
		return domain.Credential{}, &domain.ErrUnauthorized{Message: "no token"}
	}
	token, err := s.sealer.Open(u.ID, u.SealedToken)
	if err != nil {
		return domain.Credential{}, &domain.ErrUnauthorized{Message: "stored token cannot be opened"}
	}
	return domain.NewCredential(token), nil
}

// Build aggregates the user's selected accounts from the start of today (in
// the service timezone) up to now and renders the HTML report text. In the
// first minute after midnight the whole previous day is reported instead.
func (s *ReportService) Build(ctx context.Context, u *domain.User, now time.Time, kind ReportKind) (*Report, error) {
	ctx, span := tracer.Start(ctx, "ReportService.Build")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", u.ID))

	cred, err := s.Credential(u)
	if err != nil {
		return nil, err
	}

	to := now.In(s.location)
	from := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, s.location)
	day := to
	if to.Sub(from) < time.Minute {
		from = from.AddDate(0, 0, -1)
		day = from
	}
	tr := s.bundle.For(u.LanguageCode)

	summary, err := s.spending.Aggregate(ctx, cred, u.SelectedAccounts, from, to, tr.Lang())
	if err != nil {
		return nil, err
	}

	return &Report{
		Summary: summary,
		Text:    FormatReport(tr, summary, day, kind),
		From:    from,
		To:      to,
	}, nil
}

// FormatReport renders a summary as HTML.
func FormatReport(tr i18n.Translator, summary *domain.SpendingSummary, day time.Time, kind ReportKind) string {
	var b strings.Builder

	header := "report_daily_header"
	if kind == OnDemandReport {
		header = "report_manual_header"
	}
	b.WriteString(tr.T(header, day.Format("02.01.2006")))

	if summary.TotalSpending > 0 {
		b.WriteString(tr.T("report_total_spent", domain.FormatMoney(summary.TotalSpending)))
		if len(summary.Categories) > 0 {
			b.WriteString(tr.T("report_by_category"))
			for _, c := range summary.Categories {
				b.WriteString(tr.T("report_category_line", c.Name, domain.FormatMoney(c.Amount)))
			}
		}
	} else {
		b.WriteString(tr.T("report_no_spending"))
	}

	if summary.TotalIncome > 0 {
		b.WriteString(tr.T("report_income", domain.FormatMoney(summary.TotalIncome)))
	}
	b.WriteString(tr.T("report_transactions", summary.TransactionCount))

	if n := len(summary.FailedAccounts); n > 0 {
		b.WriteString(tr.T("report_failed_accounts", n))
	}
	return b.String()
}

// Send builds the daily report for u and delivers it. It returns one of the
// Report* statuses; the error is non-nil only for failed deliveries.
//
// A user who blocked the bot is deactivated. A rejected token gets a short
// message asking the user to update it.
func (s *ReportService) Send(ctx context.Context, u *domain.User, now time.Time) (status string, err error) {
	ctx, span := tracer.Start(ctx, "ReportService.Send")
	defer span.End()
	span.SetAttributes(attribute.Int64("user.id", u.ID))

	defer func() {
		s.metrics.IncrReport(status)
		span.SetAttributes(attribute.String("report.status", status))
	}()

	if !u.IsActive() || !u.HasToken() || len(u.SelectedAccounts) == 0 {
		return ReportSkipped, nil
	}

	tr := s.bundle.For(u.LanguageCode)

	report, err := s.Build(ctx, u, now, DailyReport)
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if !errors.As(err, &unauthorized) {
			return ReportFailed, fmt.Errorf("build report for %d: %w", u.ID, err)
		}
		s.logger.Info("monobank token rejected", zap.Int64("user_id", u.ID))
		if sendErr := s.deliver(ctx, u, tr.T("report_token_rejected"), now); sendErr != nil {
			return s.deliveryStatus(sendErr), sendErr
		}
		return ReportUnauthorized, nil
	}

	if err := s.deliver(ctx, u, report.Text, now); err != nil {
		return s.deliveryStatus(err), err
	}
	return ReportSent, nil
}

func (s *ReportService) deliveryStatus(err error) string {
	var unreachable *domain.ErrUserUnreachable
	if errors.As(err, &unreachable) {
		return ReportUnreachable
	}
	return ReportFailed
}

// deliver sends text as a standalone message. Forbidden deactivates the user.
func (s *ReportService) deliver(ctx context.Context, u *domain.User, text string, now time.Time) error {
	_, err := s.transport.Send(ctx, u.ID, chatdomain.TextRender(text, chatdomain.ParseHTML))
	if err == nil {
		return nil
	}

	if !chatdomain.IsTransportKind(err, chatdomain.TransportForbidden) {
		return &domain.ErrExternalService{Service: "telegram", Err: err}
	}

	s.logger.Info("user blocked the bot, deactivating", zap.Int64("user_id", u.ID))
	txErr := s.users.WithTx(ctx, func(tx port.UserStore) error {
		stored, err := tx.Get(ctx, u.ID)
		if err != nil || stored == nil {
			return err
		}
		stored.Deactivate(now)
		return tx.Add(ctx, stored)
	})
	if txErr != nil {
		s.logger.Error("failed to deactivate user", zap.Int64("user_id", u.ID), zap.Error(txErr))
	}
	return &domain.ErrUserUnreachable{ChatID: u.ID, Err: err}
}
