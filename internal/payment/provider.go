package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/quartostays/booking-engine/internal/domain"
)

// Provider event types delivered to the payments webhook.
const (
	EventPaymentSucceeded = "payment.succeeded"
	EventPaymentFailed    = "payment.failed"
	EventRefundSucceeded  = "refund.succeeded"
)

// Event is a verified, parsed webhook delivery. ID is assigned by the
// provider and doubles as the idempotency key.
type Event struct {
	ID   string          `json:"id"`
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// PaymentContext references the hold a payment settles.
type PaymentContext struct {
	HoldID      string `json:"hold_id"`
	AmountCents int64  `json:"amount_cents"`
	Currency    string `json:"currency"`
}

// RefundContext references the booking a refund reverses.
type RefundContext struct {
	BookingID string `json:"booking_id"`
}

// Provider verifies and decodes webhook deliveries from the payment
// provider. Signatures are hex-encoded HMAC-SHA256 over the raw body.
type Provider struct {
	secret []byte
}

func NewProvider(secret string) *Provider {
	return &Provider{secret: []byte(secret)}
}

func (p *Provider) VerifyAndParse(payload []byte, signature string) (Event, error) {
	if !p.verify(payload, signature) {
		return Event{}, domain.ErrInvalidSignature
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return Event{}, domain.ErrMalformedWebhookEvent
	}
	if ev.ID == "" || ev.Type == "" {
		return Event{}, domain.ErrMalformedWebhookEvent
	}
	return ev, nil
}

func (p *Provider) verify(payload []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hmac.Equal(sig, mac.Sum(nil))
}

// Sign computes the signature the provider would attach to payload. Used by
// tests and local tooling.
func (p *Provider) Sign(payload []byte) string {
	mac := hmac.New(sha256.New, p.secret)
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func (e Event) PaymentContext() (PaymentContext, error) {
	var pc PaymentContext
	if err := json.Unmarshal(e.Data, &pc); err != nil {
		return PaymentContext{}, domain.ErrMalformedWebhookEvent
	}
	if pc.HoldID == "" {
		return PaymentContext{}, domain.ErrMalformedWebhookEvent
	}
	return pc, nil
}

func (e Event) RefundContext() (RefundContext, error) {
	var rc RefundContext
	if err := json.Unmarshal(e.Data, &rc); err != nil {
		return RefundContext{}, domain.ErrMalformedWebhookEvent
	}
	if rc.BookingID == "" {
		return RefundContext{}, domain.ErrMalformedWebhookEvent
	}
	return rc, nil
}
