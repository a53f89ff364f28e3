package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Settings keys as stored in the settings table.
const (
	SettingVisitPrice       = "visit_price"
	SettingCurrency         = "currency"
	SettingInvoiceDueDays   = "invoice_due_days"
	SettingRemindersEnabled = "reminders_enabled"
)

// Settings is an immutable snapshot of runtime business settings, loaded
// once per request or job run.
type Settings struct {
	VisitPrice       decimal.Decimal `json:"visit_price"`
	Currency         string          `json:"currency"`
	InvoiceDueDays   int             `json:"invoice_due_days"`
	RemindersEnabled bool            `json:"reminders_enabled"`
}

// InvoiceDueDate is the due date for an invoice issued at now.
func (s Settings) InvoiceDueDate(now time.Time) time.Time {
	return now.AddDate(0, 0, s.InvoiceDueDays)
}

// Setting is one key/value row.
type Setting struct {
	Key       string    `json:"key" db:"key"`
	Value     string    `json:"value" db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}
