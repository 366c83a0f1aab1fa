package domain

import (
	"fmt"
	"html"
	"time"
)

// Report time defaults used for new users.
const (
	DefaultReportHour   = 21
	DefaultReportMinute = 0
)

// User is the persisted bot user record. The Monobank token is stored sealed;
// see crypto.Sealer for how SealedToken is produced.
type User struct {
	ID               int64      `json:"id"`
	FirstName        string     `json:"first_name"`
	LastName         string     `json:"last_name,omitempty"`
	Username         string     `json:"username,omitempty"`
	LanguageCode     string     `json:"language_code"`
	SealedToken      string     `json:"monobank_token,omitempty"`
	SelectedAccounts []string   `json:"selected_accounts"`
	ReportHour       int        `json:"report_hour"`
	ReportMinute     int        `json:"report_minute"`
	JoinDate         time.Time  `json:"join_date"`
	BlockDate        *time.Time `json:"block_date,omitempty"`
}

// NewUser returns a user with default report settings.
func NewUser(id int64, firstName, lastName, username, lang string) *User {
	return &User{
		ID:           id,
		FirstName:    firstName,
		LastName:     lastName,
		Username:     username,
		LanguageCode: lang,
		ReportHour:   DefaultReportHour,
		ReportMinute: DefaultReportMinute,
		JoinDate:     time.Now().UTC(),
	}
}

// IsActive is false once the user blocked the bot.
func (u *User) IsActive() bool {
	return u.BlockDate == nil
}

// HasToken reports whether a sealed token is stored.
func (u *User) HasToken() bool {
	return u.SealedToken != ""
}

// Activate clears the block date.
func (u *User) Activate() {
	u.BlockDate = nil
}

// Deactivate marks the user as unreachable.
func (u *User) Deactivate(at time.Time) {
	t := at.UTC()
	u.BlockDate = &t
}

// Name is "First Last", "First" or empty.
func (u *User) Name() string {
	switch {
	case u.FirstName != "" && u.LastName != "":
		return u.FirstName + " " + u.LastName
	case u.FirstName != "":
		return u.FirstName
	default:
		return ""
	}
}

// Mention renders an HTML link to the user.
func (u *User) Mention() string {
	return fmt.Sprintf(`<a href="tg://user?id=%d">%s</a>`, u.ID, html.EscapeString(u.Name()))
}

// ReportTime formats the configured report time as HH:MM.
func (u *User) ReportTime() string {
	return fmt.Sprintf("%02d:%02d", u.ReportHour, u.ReportMinute)
}

// IsAccountSelected reports whether the account id is tracked.
func (u *User) IsAccountSelected(accountID string) bool {
	for _, id := range u.SelectedAccounts {
		if id == accountID {
			return true
		}
	}
	return false
}

// ToggleAccount adds or removes an account id from the selection.
func (u *User) ToggleAccount(accountID string) {
	for i, id := range u.SelectedAccounts {
		if id == accountID {
			u.SelectedAccounts = append(u.SelectedAccounts[:i:i], u.SelectedAccounts[i+1:]...)
			return
		}
	}
	u.SelectedAccounts = append(u.SelectedAccounts, accountID)
}
