package wompi

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
)

// Transaction statuses reported in webhook events
const (
	StatusApproved = "APPROVED"
	StatusDeclined = "DECLINED"
	StatusVoided   = "VOIDED"
	StatusError    = "ERROR"
)

// SignatureHeader carries the event checksum
const SignatureHeader = "X-Signature"

// Event is the webhook body sent on transaction updates
type Event struct {
	Event     string          `json:"event"`
	Timestamp json.RawMessage `json:"timestamp,omitempty"`
	Data      struct {
		Transaction EventTransaction `json:"transaction"`
	} `json:"data"`
}

type EventTransaction struct {
	ID            string `json:"id"`
	Status        string `json:"status"`
	Reference     string `json:"reference"`
	StatusMessage string `json:"status_message,omitempty"`
}

// TimestampString renders the timestamp whether it was sent as a number or a string
func (e *Event) TimestampString() string {
	raw := strings.TrimSpace(string(e.Timestamp))
	if raw == "" || raw == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(e.Timestamp, &s); err == nil {
		return s
	}
	return raw
}

// Sign computes the hex HMAC-SHA256 of transaction id, timestamp and secret
func Sign(transactionID, timestamp, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(transactionID + timestamp + secret))
	return hex.EncodeToString(mac.Sum(nil))
}

// VerifyWebhookSignature checks the header against the event. An empty header never verifies.
func (c *Client) VerifyWebhookSignature(event *Event, signature string) bool {
	if signature == "" || event == nil {
		return false
	}
	expected := Sign(event.Data.Transaction.ID, event.TimestampString(), c.eventsSecret)
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(strings.TrimSpace(signature))))
}
