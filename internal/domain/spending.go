package domain

import (
	"strings"

	"github.com/shopspring/decimal"
)

// ============================================================
// Spending summary
// ============================================================

// CategoryBucket is the accumulated spend of one MCC category.
type CategoryBucket struct {
	Key    string `json:"key"`
	Name   string `json:"name"`
	Amount int64  `json:"amount"`
}

// SpendingSummary is the result of aggregating statements across accounts.
// Accounts whose statement could not be fetched are listed in FailedAccounts
// and contribute nothing to the totals.
type SpendingSummary struct {
	TotalSpending    int64            `json:"total_spending"`
	TotalIncome      int64            `json:"total_income"`
	Categories       []CategoryBucket `json:"categories"`
	TransactionCount int              `json:"transaction_count"`
	FailedAccounts   []string         `json:"failed_accounts,omitempty"`
}

// FormatMoney renders minor units as "1 500.00" (space thousands separator).
func FormatMoney(amount int64) string {
	d := decimal.New(amount, -2)
	neg := d.IsNegative()
	fixed := d.Abs().StringFixed(2)

	intPart, frac, _ := strings.Cut(fixed, ".")
	var b strings.Builder
	for i, r := range intPart {
		if i > 0 && (len(intPart)-i)%3 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}

	out := b.String() + "." + frac
	if neg {
		return "-" + out
	}
	return out
}
