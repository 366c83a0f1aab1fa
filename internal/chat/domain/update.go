package domain

// Sender is the profile of the user behind an update.
type Sender struct {
	ID           int64
	FirstName    string
	LastName     string
	Username     string
	LanguageCode string
}

// Update is an incoming message or button press, reduced to what menus need.
type Update struct {
	ChatID    int64
	From      Sender
	MessageID int

	// Text is set for text messages.
	Text string

	// CallbackID and CallbackData are set for inline button presses.
	CallbackID   string
	CallbackData string
}

// IsCallback reports whether the update is an inline button press.
func (u Update) IsCallback() bool {
	return u.CallbackID != ""
}
