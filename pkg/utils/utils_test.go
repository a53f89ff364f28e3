package utils

import (
	"regexp"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerateTransactionID(t *testing.T) {
	// 01:30 in Jakarta is still the previous day in UTC
	jakarta := time.FixedZone("WIB", 7*3600)
	now := time.Date(2025, 3, 2, 1, 30, 0, 0, jakarta)

	id := GenerateTransactionID(now)
	assert.Regexp(t, regexp.MustCompile(`^HC-20250301-[0-9A-F]{8}$`), id)
	assert.NotEqual(t, id, GenerateTransactionID(now))
}

func TestGenerateInvoiceNumber(t *testing.T) {
	now := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	assert.Regexp(t, regexp.MustCompile(`^INV-20251201-[0-9A-F]{6}$`), GenerateInvoiceNumber(now))
}

func TestDecimalFromString(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected decimal.Decimal
		wantErr  bool
	}{
		{name: "integer", input: "5000", expected: decimal.NewFromInt(5000)},
		{name: "two decimals", input: "5000.00", expected: decimal.NewFromInt(5000)},
		{name: "padded", input: " 150000 ", expected: decimal.NewFromInt(150000)},
		{name: "garbage", input: "5k", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result, err := DecimalFromString(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.True(t, AmountsEqual(result, tt.expected),
				"Expected %v, but got %v", tt.expected, result)
		})
	}
}
