package utils

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	TransactionPrefix = "HC"
	InvoicePrefix     = "INV"
)

// RandomSuffix returns n upper-case hex characters drawn from a random UUID.
func RandomSuffix(n int) string {
	s := strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", ""))
	if n > len(s) {
		n = len(s)
	}
	return s[:n]
}

// GenerateTransactionID builds HC-YYYYMMDD-XXXXXXXX using the UTC date
func GenerateTransactionID(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", TransactionPrefix, now.UTC().Format("20060102"), RandomSuffix(8))
}

// GenerateInvoiceNumber builds INV-YYYYMMDD-XXXXXX using the UTC date
func GenerateInvoiceNumber(now time.Time) string {
	return fmt.Sprintf("%s-%s-%s", InvoicePrefix, now.UTC().Format("20060102"), RandomSuffix(6))
}

// DecimalFromString converts string to decimal.Decimal
func DecimalFromString(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(strings.TrimSpace(s))
}

// AmountsEqual compares money exactly, ignoring representation scale
func AmountsEqual(a, b decimal.Decimal) bool {
	return a.Equal(b)
}
