package domain

import "time"

// ============================================================
// Accounts (Monobank client-info)
// ============================================================

// Account is a card or account returned by GET /personal/client-info.
type Account struct {
	ID           string   `json:"id"`
	SendID       string   `json:"sendId,omitempty"`
	Type         string   `json:"type"` // black, white, platinum, iron, fop, eAid, ...
	CurrencyCode int      `json:"currencyCode"`
	Balance      int64    `json:"balance"`
	CreditLimit  int64    `json:"creditLimit"`
	MaskedPan    []string `json:"maskedPan"`
	IBAN         string   `json:"iban,omitempty"`
}

// ClientInfo is the body of GET /personal/client-info.
type ClientInfo struct {
	ClientID string    `json:"clientId"`
	Name     string    `json:"name"`
	Accounts []Account `json:"accounts"`
}

// ============================================================
// Transactions (bank statement)
// ============================================================

// Transaction is a single statement item. Amounts are in minor currency units;
// negative amounts are spend, non-negative amounts are income.
type Transaction struct {
	ID           string `json:"id"`
	Time         int64  `json:"time"`
	Description  string `json:"description"`
	MCC          int    `json:"mcc"`
	Amount       int64  `json:"amount"`
	CurrencyCode int    `json:"currencyCode"`
	Balance      int64  `json:"balance"`
	Hold         bool   `json:"hold"`
}

// At returns the transaction timestamp.
func (t Transaction) At() time.Time {
	return time.Unix(t.Time, 0)
}

// StatementRequest identifies one statement fetch. It is never persisted.
type StatementRequest struct {
	Credential Credential
	AccountID  string
	From       time.Time
	To         time.Time // zero means "up to now"
}
