package payments

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSignature is returned when a webhook payload fails signature verification.
	ErrInvalidSignature = errors.New("payments: invalid webhook signature")
	// ErrNotConfigured is returned when the provider lacks credentials for the requested operation.
	ErrNotConfigured = errors.New("payments: provider not configured")
)

// Webhook event types the marketplace reacts to.
const (
	EventCheckoutCompleted = "checkout.session.completed"
	EventCheckoutExpired   = "checkout.session.expired"
)

// CheckoutLineItem describes a single line item to include in a checkout session.
type CheckoutLineItem struct {
	Name        string
	Description string
	Quantity    int64
	// UnitAmount is in the currency's minor unit (paise for INR).
	UnitAmount int64
}

// CheckoutSessionRequest captures the payload required to create a checkout session.
type CheckoutSessionRequest struct {
	Currency          string
	CustomerEmail     string
	ClientReferenceID string
	SuccessURL        string
	CancelURL         string
	Metadata          map[string]string
	IdempotencyKey    string
	Items             []CheckoutLineItem
}

// CheckoutSession represents the hosted payment page returned to the client.
type CheckoutSession struct {
	ID        string
	URL       string
	ExpiresAt time.Time
}

// WebhookEvent is the verified subset of a PSP notification.
type WebhookEvent struct {
	ID                string
	Type              string
	SessionID         string
	PaymentIntentID   string
	PaymentStatus     string
	CustomerEmail     string
	AmountTotal       int64
	Currency          string
	ClientReferenceID string
	Metadata          map[string]string
}

// Provider defines the contract for PSP adapters.
type Provider interface {
	CreateCheckoutSession(ctx context.Context, req CheckoutSessionRequest) (CheckoutSession, error)
	ParseWebhook(payload []byte, signature string) (WebhookEvent, error)
}
