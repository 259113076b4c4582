package handlers

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/kalamitra/api/internal/platform/httpx"
	"github.com/kalamitra/api/internal/platform/requestctx"
	"github.com/kalamitra/api/internal/services"
)

const (
	maxCheckoutRequestBody = 8 * 1024
	maxWebhookBody         = 64 * 1024
	idempotencyHeader      = "Idempotency-Key"
	stripeSignatureHeader  = "Stripe-Signature"
)

// CheckoutHandlers starts checkout sessions for authenticated buyers.
type CheckoutHandlers struct {
	guard       *Guard
	checkout    services.CheckoutService
	idempotency func(http.Handler) http.Handler
}

// NewCheckoutHandlers constructs checkout handlers. idempotency, when set, replays responses for repeated
// Idempotency-Key headers.
func NewCheckoutHandlers(guard *Guard, checkout services.CheckoutService, idempotency func(http.Handler) http.Handler) *CheckoutHandlers {
	return &CheckoutHandlers{guard: guard, checkout: checkout, idempotency: idempotency}
}

// Routes registers checkout endpoints under the provided router.
func (h *CheckoutHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	mws := h.guard.Require()
	if h.idempotency != nil {
		mws = append(mws, h.idempotency)
	}
	r.With(mws...).Post("/sessions", h.createSession)
}

type checkoutSessionRequest struct {
	ListingID       string `json:"listingId" validate:"required,max=64"`
	Quantity        int    `json:"quantity" validate:"min=0,max=100"`
	ShippingAddress string `json:"shippingAddress" validate:"max=500"`
}

type checkoutSessionResponse struct {
	SessionID string `json:"sessionId"`
	URL       string `json:"url"`
	OrderID   string `json:"orderId"`
	ExpiresAt string `json:"expiresAt,omitempty"`
}

func (h *CheckoutHandlers) createSession(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	identity, ok := requireIdentity(w, r)
	if !ok {
		return
	}
	var req checkoutSessionRequest
	if !decodeJSONBody(w, r, maxCheckoutRequestBody, &req) {
		return
	}

	session, err := h.checkout.CreateSession(ctx, services.CheckoutCommand{
		ListingID:       req.ListingID,
		Quantity:        req.Quantity,
		BuyerID:         identity.UID,
		BuyerEmail:      identity.Email,
		ShippingAddress: req.ShippingAddress,
		IdempotencyKey:  strings.TrimSpace(r.Header.Get(idempotencyHeader)),
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, checkoutSessionResponse{
		SessionID: session.SessionID,
		URL:       session.URL,
		OrderID:   session.OrderID,
		ExpiresAt: formatTime(session.ExpiresAt),
	})
}

// WebhookHandlers receives PSP callbacks. They are authenticated by signature, not by Firebase.
type WebhookHandlers struct {
	checkout services.CheckoutService
}

// NewWebhookHandlers constructs webhook handlers.
func NewWebhookHandlers(checkout services.CheckoutService) *WebhookHandlers {
	return &WebhookHandlers{checkout: checkout}
}

// Routes registers the /webhooks endpoints.
func (h *WebhookHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/stripe", h.stripe)
}

type webhookAck struct {
	Received bool `json:"received"`
}

func (h *WebhookHandlers) stripe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		serviceUnavailable(ctx, w, "checkout")
		return
	}
	payload, err := readLimitedBody(r, maxWebhookBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_webhook", err.Error(), status))
		return
	}
	if err := h.checkout.HandleWebhook(ctx, payload, r.Header.Get(stripeSignatureHeader)); err != nil {
		if errors.Is(err, services.ErrCheckoutInvalidSignature) {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_signature", "webhook signature verification failed", http.StatusBadRequest))
			return
		}
		requestctx.Logger(ctx).Error("stripe webhook failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("webhook_error", "failed to process webhook", http.StatusInternalServerError))
		return
	}
	writeJSONResponse(w, http.StatusOK, webhookAck{Received: true})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutListingNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("listing_not_found", "listing not found", http.StatusNotFound))
	case errors.Is(err, services.ErrCheckoutUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("listing_unavailable", "listing is not available for purchase", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutInsufficientStock):
		httpx.WriteError(ctx, w, httpx.NewError("insufficient_stock", "not enough stock for the requested quantity", http.StatusConflict))
	case errors.Is(err, services.ErrCheckoutPaymentFailed):
		httpx.WriteError(ctx, w, httpx.NewError("payment_failed", "checkout session could not be created", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_error", "failed to process checkout request", http.StatusInternalServerError))
	}
}
