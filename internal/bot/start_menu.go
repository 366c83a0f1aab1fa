package bot

import (
	"errors"
	"time"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
	chatport "github.com/boddenberg/monoreport-bot-go/internal/chat/port"
	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/service"

	"go.uber.org/zap"
)

// StartMenu is the home screen: configuration status, report on demand and
// help.
type StartMenu struct {
	reports   *service.ReportService
	transport chatport.Transport
	now       func() time.Time
	logger    *zap.Logger
}

// NewStartMenu creates the start menu. A nil now uses time.Now.
func NewStartMenu(reports *service.ReportService, transport chatport.Transport, now func() time.Time, logger *zap.Logger) *StartMenu {
	if now == nil {
		now = time.Now
	}
	return &StartMenu{reports: reports, transport: transport, now: now, logger: logger}
}

func (m *StartMenu) Routes() []Route {
	return []Route{
		{Callback: "start", Handle: m.Enter},
		{States: []State{StateStart}, Callback: "help", Handle: m.help},
		{States: []State{StateStart}, Callback: "get_report", Handle: m.report},
	}
}

// Enter shows the start screen.
func (m *StartMenu) Enter(r *Request) (State, error) {
	r.Answer("", false)

	u := r.User
	ready := u.HasToken() && len(u.SelectedAccounts) > 0

	var status string
	switch {
	case ready:
		status = r.T.T("status_configured")
	case u.HasToken():
		status = r.T.T("status_no_accounts")
	default:
		status = r.T.T("status_no_token")
	}

	var rows [][]chatdomain.InlineButton
	if ready {
		rows = append(rows, row(r.Button("btn_get_report", "get_report")))
	}
	rows = append(rows,
		row(r.Button("btn_settings", "settings")),
		row(r.Button("btn_help", "help")),
	)

	return StateStart, r.Show(r.T.T("start_text", status, u.ReportTime()), rows...)
}

func (m *StartMenu) help(r *Request) (State, error) {
	r.Answer("", false)
	return StateStart, r.Show(r.T.T("help_text"), row(r.Button("btn_back", "start")))
}

// report sends today's spending as a separate message and moves the menu
// below it.
func (m *StartMenu) report(r *Request) (State, error) {
	u := r.User
	if !u.HasToken() {
		r.Answer(r.T.T("alert_add_token"), true)
		return StateStart, nil
	}
	if len(u.SelectedAccounts) == 0 {
		r.Answer(r.T.T("alert_select_accounts"), true)
		return StateStart, nil
	}
	r.Answer(r.T.T("loading"), false)

	var text string
	report, err := m.reports.Build(r.Ctx, u, m.now(), service.OnDemandReport)
	var unauthorized *domain.ErrUnauthorized
	switch {
	case err == nil:
		text = report.Text
	case errors.As(err, &unauthorized):
		text = r.T.T("report_token_rejected")
	default:
		m.logger.Warn("on-demand report failed", zap.Int64("chat_id", u.ID), zap.Error(err))
		text = r.T.T("report_error", errorText(err))
	}

	if _, err := m.transport.Send(r.Ctx, r.Update.ChatID, chatdomain.TextRender(text, chatdomain.ParseHTML)); err != nil {
		if chatdomain.IsTransportKind(err, chatdomain.TransportForbidden) {
			return StateStart, &domain.ErrUserUnreachable{ChatID: r.Update.ChatID, Err: err}
		}
		return StateStart, err
	}

	r.Reset()
	return m.Enter(r)
}
