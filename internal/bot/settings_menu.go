package bot

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	chatdomain "github.com/boddenberg/monoreport-bot-go/internal/chat/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/domain"
	"github.com/boddenberg/monoreport-bot-go/internal/i18n"
	"github.com/boddenberg/monoreport-bot-go/internal/port"
	"github.com/boddenberg/monoreport-bot-go/internal/service"

	"go.uber.org/zap"
)

// Token format accepted before asking the API.
const (
	tokenPrefix    = "u"
	tokenMinLength = 40
)

// Report minutes offered after an hour is picked.
var reportMinutes = []int{0, 15, 30, 45}

// Session value keys.
const (
	valueAccounts     = "settings.accounts"
	valueSelectedHour = "settings.selected_hour"
)

// SettingsMenu manages the token, tracked accounts, report time and language.
type SettingsMenu struct {
	accounts port.AccountLister
	sealer   port.Sealer
	reports  *service.ReportService
	bundle   *i18n.Bundle
	logger   *zap.Logger
}

// NewSettingsMenu creates the settings menu.
func NewSettingsMenu(accounts port.AccountLister, sealer port.Sealer, reports *service.ReportService, bundle *i18n.Bundle, logger *zap.Logger) *SettingsMenu {
	return &SettingsMenu{accounts: accounts, sealer: sealer, reports: reports, bundle: bundle, logger: logger}
}

func (m *SettingsMenu) Routes() []Route {
	nested := []State{StateSettings, StateWaitingToken, StateSelectAccounts, StateSelectHour, StateSelectMinute, StateSelectLanguage}
	return []Route{
		{States: append([]State{StateStart}, nested...), Callback: "settings", Handle: m.Enter},

		{States: []State{StateSettings}, Callback: "set_token", Handle: m.requestToken},
		{States: []State{StateSettings}, Callback: "remove_token", Handle: m.removeToken},
		{States: []State{StateSettings}, Callback: "select_accounts", Handle: m.showAccounts},
		{States: []State{StateSettings, StateSelectMinute}, Callback: "set_time", Handle: m.showHours},
		{States: []State{StateSettings}, Callback: "select_language", Handle: m.showLanguages},

		{States: []State{StateWaitingToken}, Text: true, Handle: m.processToken},

		{States: []State{StateSelectAccounts}, Callback: "toggle_account_", Prefix: true, Handle: m.toggleAccount},
		{States: []State{StateSelectAccounts}, Callback: "save_accounts", Handle: m.saveAccounts},

		{States: []State{StateSelectHour}, Callback: "set_hour_", Prefix: true, Handle: m.setHour},
		{States: []State{StateSelectMinute}, Callback: "set_minute_", Prefix: true, Handle: m.setMinute},

		{States: []State{StateSelectLanguage}, Callback: "set_language_", Prefix: true, Handle: m.setLanguage},
	}
}

// Enter shows the settings overview.
func (m *SettingsMenu) Enter(r *Request) (State, error) {
	r.Answer("", false)
	r.Session.DeleteValue(valueAccounts)
	r.Session.DeleteValue(valueSelectedHour)
	return StateSettings, m.show(r)
}

func (m *SettingsMenu) show(r *Request) error {
	u := r.User

	token := r.T.T("token_not_set")
	if u.HasToken() {
		token = r.T.T("token_set")
	}
	accounts := r.T.T("accounts_none")
	if n := len(u.SelectedAccounts); n > 0 {
		accounts = r.T.T("accounts_selected", n)
	}

	text := r.T.T("settings_text", token, accounts, u.ReportTime(), m.bundle.LanguageName(u.LanguageCode))

	var rows [][]chatdomain.InlineButton
	if u.HasToken() {
		rows = append(rows,
			row(r.Button("btn_change_token", "set_token")),
			row(r.Button("btn_select_accounts", "select_accounts")),
			row(r.Button("btn_change_time", "set_time")),
			row(r.Button("btn_remove_token", "remove_token")),
		)
	} else {
		rows = append(rows, row(r.Button("btn_add_token", "set_token")))
	}
	rows = append(rows,
		row(r.Button("btn_change_language", "select_language")),
		row(r.Button("btn_back", "start")),
	)
	return r.Show(text, rows...)
}

// ============================================================
// Token
// ============================================================

func (m *SettingsMenu) requestToken(r *Request) (State, error) {
	r.Answer("", false)
	return StateWaitingToken, r.Show(r.T.T("token_prompt"), m.cancelRow(r))
}

// processToken checks the format, validates the token against the API and
// stores it sealed. The message carrying the token is always deleted.
func (m *SettingsMenu) processToken(r *Request) (State, error) {
	token := strings.TrimSpace(r.Update.Text)
	r.DeleteMessage()

	if !strings.HasPrefix(token, tokenPrefix) || len(token) < tokenMinLength {
		return StateWaitingToken, r.Show(r.T.T("token_invalid_format"), m.cancelRow(r))
	}

	cred := domain.NewCredential(token)
	valid, err := m.accounts.ValidateToken(r.Ctx, cred)
	if err != nil {
		m.logger.Warn("token validation failed", zap.Int64("chat_id", r.User.ID), zap.String("credential_id", cred.ID), zap.Error(err))
		return StateWaitingToken, r.Show(r.T.T("token_validation_error", errorText(err)), m.cancelRow(r))
	}
	if !valid {
		return StateWaitingToken, r.Show(r.T.T("token_invalid"), m.cancelRow(r))
	}

	sealed, err := m.sealer.Seal(r.User.ID, token)
	if err != nil {
		return StateWaitingToken, fmt.Errorf("seal token: %w", err)
	}

	r.User.SealedToken = sealed
	r.User.SelectedAccounts = nil
	if err := r.Save(); err != nil {
		return StateWaitingToken, err
	}

	return StateSettings, r.Show(r.T.T("token_saved"),
		row(r.Button("btn_select_accounts", "select_accounts")),
		row(r.Button("btn_back_to_settings", "settings")),
	)
}

func (m *SettingsMenu) removeToken(r *Request) (State, error) {
	if cred, err := m.reports.Credential(r.User); err == nil {
		m.accounts.ForgetAccounts(cred)
	}

	r.User.SealedToken = ""
	r.User.SelectedAccounts = nil
	if err := r.Save(); err != nil {
		return StateSettings, err
	}

	r.Answer(r.T.T("token_removed"), false)
	return StateSettings, m.show(r)
}

// ============================================================
// Accounts
// ============================================================

func (m *SettingsMenu) showAccounts(r *Request) (State, error) {
	cred, err := m.reports.Credential(r.User)
	if err != nil {
		r.Answer(r.T.T("alert_add_token_short"), true)
		return StateSettings, nil
	}
	r.Answer(r.T.T("loading_accounts"), false)

	accounts, err := m.accounts.Accounts(r.Ctx, cred)
	if err != nil {
		var unauthorized *domain.ErrUnauthorized
		if !errors.As(err, &unauthorized) {
			m.logger.Warn("can't load accounts", zap.Int64("chat_id", r.User.ID), zap.String("credential_id", cred.ID), zap.Error(err))
		}
		return StateSettings, r.Show(r.T.T("accounts_load_error", errorText(err)), row(r.Button("btn_back", "settings")))
	}

	r.Session.SetValue(valueAccounts, accounts)
	return StateSelectAccounts, m.showAccountList(r, accounts)
}

func (m *SettingsMenu) showAccountList(r *Request, accounts []domain.Account) error {
	buttons := make([]chatdomain.InlineButton, 0, len(accounts))
	for _, a := range accounts {
		mark := "⬜ "
		if r.User.IsAccountSelected(a.ID) {
			mark = "✅ "
		}
		buttons = append(buttons, chatdomain.CallbackButton(mark+service.FormatAccountName(a), "toggle_account_"+a.ID))
	}

	rows := GroupButtons(buttons, 1)
	rows = append(rows,
		row(r.Button("btn_save", "save_accounts")),
		m.cancelRow(r),
	)
	return r.Show(r.T.T("accounts_title"), rows...)
}

// toggleAccount flips one account and saves the selection right away.
func (m *SettingsMenu) toggleAccount(r *Request) (State, error) {
	id := strings.TrimPrefix(r.Update.CallbackData, "toggle_account_")
	r.User.ToggleAccount(id)
	if err := r.Save(); err != nil {
		return StateSelectAccounts, err
	}
	r.Answer("", false)

	accounts, _ := r.Session.Value(valueAccounts)
	list, _ := accounts.([]domain.Account)
	return StateSelectAccounts, m.showAccountList(r, list)
}

func (m *SettingsMenu) saveAccounts(r *Request) (State, error) {
	n := len(r.User.SelectedAccounts)
	if n == 0 {
		r.Answer(r.T.T("accounts_empty"), true)
		return StateSelectAccounts, nil
	}
	r.Answer(r.T.T("accounts_saved", n), false)
	r.Session.DeleteValue(valueAccounts)
	return StateSettings, m.show(r)
}

// ============================================================
// Report time
// ============================================================

func (m *SettingsMenu) showHours(r *Request) (State, error) {
	r.Answer("", false)

	buttons := make([]chatdomain.InlineButton, 0, 24)
	for hour := 0; hour < 24; hour++ {
		label := fmt.Sprintf("%02d", hour)
		if hour == r.User.ReportHour {
			label = "✅ " + label
		}
		buttons = append(buttons, chatdomain.CallbackButton(label, "set_hour_"+strconv.Itoa(hour)))
	}

	rows := GroupButtons(buttons, 6)
	rows = append(rows, row(r.Button("btn_back", "settings")))
	return StateSelectHour, r.Show(r.T.T("hour_title"), rows...)
}

func (m *SettingsMenu) setHour(r *Request) (State, error) {
	hour, err := strconv.Atoi(strings.TrimPrefix(r.Update.CallbackData, "set_hour_"))
	if err != nil || hour < 0 || hour > 23 {
		return m.showHours(r)
	}
	r.Session.SetValue(valueSelectedHour, hour)
	r.Answer("", false)

	buttons := make([]chatdomain.InlineButton, 0, len(reportMinutes))
	for _, minute := range reportMinutes {
		label := fmt.Sprintf(":%02d", minute)
		if hour == r.User.ReportHour && minute == r.User.ReportMinute {
			label = "✅ " + label
		}
		buttons = append(buttons, chatdomain.CallbackButton(label, "set_minute_"+strconv.Itoa(minute)))
	}

	rows := GroupButtons(buttons, 4)
	rows = append(rows,
		row(r.Button("btn_back_to_hour", "set_time")),
		m.cancelRow(r),
	)
	return StateSelectMinute, r.Show(r.T.T("minute_title", hour), rows...)
}

func (m *SettingsMenu) setMinute(r *Request) (State, error) {
	minute, err := strconv.Atoi(strings.TrimPrefix(r.Update.CallbackData, "set_minute_"))
	if err != nil || minute < 0 || minute > 59 {
		return m.showHours(r)
	}

	hour := r.User.ReportHour
	if v, ok := r.Session.Value(valueSelectedHour); ok {
		if h, ok := v.(int); ok {
			hour = h
		}
	}

	r.User.ReportHour = hour
	r.User.ReportMinute = minute
	if err := r.Save(); err != nil {
		return StateSelectMinute, err
	}
	r.Session.DeleteValue(valueSelectedHour)

	r.Answer(r.T.T("time_set", r.User.ReportTime()), false)
	return StateSettings, m.show(r)
}

// ============================================================
// Language
// ============================================================

func (m *SettingsMenu) showLanguages(r *Request) (State, error) {
	r.Answer("", false)

	var rows [][]chatdomain.InlineButton
	for _, lang := range m.bundle.Languages() {
		label := lang.Name
		if lang.Code == r.User.LanguageCode {
			label = "✅ " + label
		}
		rows = append(rows, row(chatdomain.CallbackButton(label, "set_language_"+lang.Code)))
	}
	rows = append(rows, row(r.Button("btn_back", "settings")))
	return StateSelectLanguage, r.Show(r.T.T("language_title"), rows...)
}

// setLanguage switches the user's language; the confirmation is already in
// the new language.
func (m *SettingsMenu) setLanguage(r *Request) (State, error) {
	code := strings.TrimPrefix(r.Update.CallbackData, "set_language_")
	if !m.bundle.Supports(code) {
		return m.showLanguages(r)
	}

	if r.User.LanguageCode != code {
		r.User.LanguageCode = code
		if err := r.Save(); err != nil {
			return StateSelectLanguage, err
		}
	}
	r.T = m.bundle.For(code)

	r.Answer(r.T.T("language_set", m.bundle.LanguageName(code)), false)
	return StateSettings, m.show(r)
}

func (m *SettingsMenu) cancelRow(r *Request) []chatdomain.InlineButton {
	return row(r.Button("btn_cancel", "settings"))
}
