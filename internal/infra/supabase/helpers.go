package supabase

import (
	"time"

	"github.com/boddenberg/monoreport-bot-go/internal/domain"
)

// ============================================================
// Row mapping for the users table
// ============================================================

// userRow maps the PostgREST users table.
type userRow struct {
	ID               int64      `json:"id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name"`
	Username         string     `json:"username"`
	LanguageCode     string     `json:"language_code"`
	MonobankToken    string     `json:"monobank_token"`
	SelectedAccounts []string   `json:"selected_accounts"`
	ReportHour       int        `json:"report_hour"`
	ReportMinute     int        `json:"report_minute"`
	JoinDate         time.Time  `json:"join_date"`
	BlockDate        *time.Time `json:"block_date"`
}

func toRow(u *domain.User) userRow {
	accounts := u.SelectedAccounts
	if accounts == nil {
		accounts = []string{}
	}
	joined := u.JoinDate
	if joined.IsZero() {
		joined = time.Now().UTC()
	}
	return userRow{
		ID:               u.ID,
		FirstName:        u.FirstName,
		LastName:         u.LastName,
		Username:         u.Username,
		LanguageCode:     u.LanguageCode,
		MonobankToken:    u.SealedToken,
		SelectedAccounts: accounts,
		ReportHour:       u.ReportHour,
		ReportMinute:     u.ReportMinute,
		JoinDate:         joined,
		BlockDate:        u.BlockDate,
	}
}

func (r userRow) toDomain() domain.User {
	return domain.User{
		ID:               r.ID,
		FirstName:        r.FirstName,
		LastName:         r.LastName,
		Username:         r.Username,
		LanguageCode:     r.LanguageCode,
		SealedToken:      r.MonobankToken,
		SelectedAccounts: r.SelectedAccounts,
		ReportHour:       r.ReportHour,
		ReportMinute:     r.ReportMinute,
		JoinDate:         r.JoinDate.UTC(),
		BlockDate:        r.BlockDate,
	}
}
