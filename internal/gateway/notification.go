package gateway

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"mime"
	"net/url"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/segyhp/rental-billing/pkg/utils"
)

// Sign returns the hex HMAC-SHA256 of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifySignature checks a hex signature in constant time. An empty secret
// or signature never verifies.
func VerifySignature(secret string, body []byte, signature string) bool {
	if secret == "" || signature == "" {
		return false
	}
	got, err := hex.DecodeString(strings.TrimSpace(signature))
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hmac.Equal(got, mac.Sum(nil))
}

// Notification is the provider's asynchronous callback.
type Notification struct {
	TransactionID string
	Status        string
	Amount        decimal.Decimal
	AmountSet     bool
	PaymentMethod string
	PayID         string
	Phone         string
	ErrorMessage  string
	ResultCode    string
}

var ErrMalformedNotification = errors.New("gateway: malformed notification")

// ParseNotification decodes a JSON or form-encoded callback body.
func ParseNotification(body []byte, contentType string) (*Notification, error) {
	fields, err := decodeFields(body, contentType)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	n := &Notification{
		TransactionID: fields["cpm_trans_id"],
		Status:        fields["cpm_trans_status"],
		PaymentMethod: fields["payment_method"],
		PayID:         fields["cpm_payid"],
		Phone:         fields["cel_phone_num"],
		ErrorMessage:  fields["cpm_error_message"],
		ResultCode:    fields["cpm_result_code"],
	}
	if n.TransactionID == "" {
		return nil, fmt.Errorf("%w: cpm_trans_id is required", ErrMalformedNotification)
	}

	if raw, ok := fields["cpm_amount"]; ok && strings.TrimSpace(raw) != "" {
		amount, err := utils.DecimalFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: cpm_amount %q: %v", ErrMalformedNotification, raw, err)
		}
		n.Amount = amount
		n.AmountSet = true
	}

	return n, nil
}

// HasAmount reports whether the callback carried an amount field. A zero
// amount is still an amount.
func (n *Notification) HasAmount() bool {
	return n.AmountSet
}

func decodeFields(body []byte, contentType string) (map[string]string, error) {
	mediaType, _, _ := mime.ParseMediaType(contentType)
	trimmed := bytes.TrimSpace(body)

	if mediaType == "application/json" || (mediaType == "" && len(trimmed) > 0 && trimmed[0] == '{') {
		dec := json.NewDecoder(bytes.NewReader(trimmed))
		dec.UseNumber()
		var m map[string]interface{}
		if err := dec.Decode(&m); err != nil {
			return nil, err
		}
		out := make(map[string]string, len(m))
		for k, v := range m {
			switch tv := v.(type) {
			case nil:
			case string:
				out[k] = tv
			case json.Number:
				out[k] = tv.String()
			default:
				out[k] = fmt.Sprint(tv)
			}
		}
		return out, nil
	}

	values, err := url.ParseQuery(string(trimmed))
	if err != nil {
		return nil, err
	}
	out := make(map[string]string, len(values))
	for k := range values {
		out[k] = values.Get(k)
	}
	return out, nil
}
