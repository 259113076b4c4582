package services

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kalamitra/api/internal/catalog"
	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/payments"
	"github.com/kalamitra/api/internal/platform/textutil"
	"github.com/kalamitra/api/internal/repositories"
)

const (
	defaultCheckoutCurrency     = "inr"
	checkoutDescriptionRunes    = 100
	checkoutIdempotencyPrefix   = "checkout-"
	stripePaymentStatusPaid     = "paid"
	stripePaymentStatusNoneReq  = "no_payment_required"
	checkoutMetadataListingKey  = "listing_id"
	checkoutMetadataOrderKey    = "order_id"
	checkoutMetadataQuantityKey = "quantity"
)

var (
	// ErrCheckoutInvalidInput indicates the caller supplied invalid input parameters.
	ErrCheckoutInvalidInput = errors.New("checkout: invalid input")
	// ErrCheckoutListingNotFound indicates the listing being purchased does not exist.
	ErrCheckoutListingNotFound = errors.New("checkout: listing not found")
	// ErrCheckoutUnavailable indicates the listing cannot be purchased right now.
	ErrCheckoutUnavailable = errors.New("checkout: listing unavailable")
	// ErrCheckoutInsufficientStock indicates the requested quantity exceeds stock.
	ErrCheckoutInsufficientStock = errors.New("checkout: insufficient stock")
	// ErrCheckoutPaymentFailed indicates the PSP session could not be created.
	ErrCheckoutPaymentFailed = errors.New("checkout: payment failed")
	// ErrCheckoutInvalidSignature indicates a webhook payload failed verification.
	ErrCheckoutInvalidSignature = errors.New("checkout: invalid webhook signature")
)

// CheckoutServiceDeps wires the dependencies required by the checkout service.
type CheckoutServiceDeps struct {
	Listings   repositories.ListingRepository
	Orders     repositories.OrderRepository
	OrderFlow  OrderService
	Payments   payments.Provider
	Assembler  *catalog.Assembler
	Events     EventPublisher
	Currency   string
	SuccessURL string
	CancelURL  string
	Clock      func() time.Time
	Logger     func(ctx context.Context, event string, fields map[string]any)
}

type checkoutService struct {
	listings   repositories.ListingRepository
	orders     repositories.OrderRepository
	orderFlow  OrderService
	payments   payments.Provider
	assembler  *catalog.Assembler
	events     EventPublisher
	currency   string
	successURL string
	cancelURL  string
	now        func() time.Time
	logger     func(ctx context.Context, event string, fields map[string]any)
}

// NewCheckoutService constructs a CheckoutService validating required dependencies.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Listings == nil {
		return nil, errors.New("checkout service: listing repository is required")
	}
	if deps.Orders == nil {
		return nil, errors.New("checkout service: order repository is required")
	}
	if deps.OrderFlow == nil {
		return nil, errors.New("checkout service: order service is required")
	}
	if deps.Payments == nil {
		return nil, errors.New("checkout service: payment provider is required")
	}
	successURL := strings.TrimSpace(deps.SuccessURL)
	cancelURL := strings.TrimSpace(deps.CancelURL)
	if successURL == "" || cancelURL == "" {
		return nil, errors.New("checkout service: success and cancel urls are required")
	}

	assembler := deps.Assembler
	if assembler == nil {
		assembler = catalog.NewAssembler(catalog.AssemblerConfig{})
	}
	currency := strings.ToLower(strings.TrimSpace(deps.Currency))
	if currency == "" {
		currency = defaultCheckoutCurrency
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		listings:   deps.Listings,
		orders:     deps.Orders,
		orderFlow:  deps.OrderFlow,
		payments:   deps.Payments,
		assembler:  assembler,
		events:     deps.Events,
		currency:   currency,
		successURL: successURL,
		cancelURL:  cancelURL,
		now: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

// CreateSession records a pending order for the listing and opens a hosted payment page for it.
func (s *checkoutService) CreateSession(ctx context.Context, cmd CheckoutCommand) (CheckoutSession, error) {
	listingID := strings.TrimSpace(cmd.ListingID)
	buyerEmail := strings.ToLower(strings.TrimSpace(cmd.BuyerEmail))
	switch {
	case listingID == "":
		return CheckoutSession{}, fmt.Errorf("%w: listing id is required", ErrCheckoutInvalidInput)
	case strings.TrimSpace(cmd.BuyerID) == "":
		return CheckoutSession{}, fmt.Errorf("%w: buyer id is required", ErrCheckoutInvalidInput)
	case buyerEmail == "":
		return CheckoutSession{}, fmt.Errorf("%w: buyer email is required", ErrCheckoutInvalidInput)
	case cmd.Quantity < 0:
		return CheckoutSession{}, fmt.Errorf("%w: quantity must be positive", ErrCheckoutInvalidInput)
	}
	quantity := cmd.Quantity
	if quantity == 0 {
		quantity = 1
	}

	listing, err := s.loadListing(ctx, listingID)
	if err != nil {
		return CheckoutSession{}, err
	}
	if err := validatePurchasable(listing, quantity); err != nil {
		return CheckoutSession{}, err
	}

	artistID := ""
	if listing.ArtistID != nil {
		artistID = *listing.ArtistID
	}
	order, err := s.orders.Insert(ctx, domain.Order{
		ProductID:       listing.ID,
		ArtistID:        artistID,
		BuyerID:         strings.TrimSpace(cmd.BuyerID),
		BuyerEmail:      buyerEmail,
		TotalAmount:     listing.Price * float64(quantity),
		Quantity:        quantity,
		Status:          domain.OrderStatusPending,
		OrderDate:       s.now(),
		ShippingAddress: strings.TrimSpace(cmd.ShippingAddress),
	})
	if err != nil {
		return CheckoutSession{}, err
	}

	idempotencyKey := strings.TrimSpace(cmd.IdempotencyKey)
	if idempotencyKey == "" {
		idempotencyKey = checkoutIdempotencyPrefix + order.ID
	}
	session, err := s.payments.CreateCheckoutSession(ctx, payments.CheckoutSessionRequest{
		Currency:          s.currency,
		CustomerEmail:     buyerEmail,
		ClientReferenceID: order.ID,
		SuccessURL:        s.successURL,
		CancelURL:         s.cancelURL,
		IdempotencyKey:    idempotencyKey,
		Metadata: map[string]string{
			checkoutMetadataListingKey:  listing.ID,
			checkoutMetadataOrderKey:    order.ID,
			checkoutMetadataQuantityKey: strconv.Itoa(quantity),
		},
		Items: []payments.CheckoutLineItem{{
			Name:        listing.Title,
			Description: textutil.Truncate(listing.Description, checkoutDescriptionRunes),
			Quantity:    int64(quantity),
			UnitAmount:  payments.MinorUnits(listing.Price),
		}},
	})
	if err != nil {
		s.logger(ctx, "checkout.payment_session_failed", map[string]any{
			"orderId":   order.ID,
			"listingId": listing.ID,
			"error":     err.Error(),
		})
		return CheckoutSession{}, fmt.Errorf("%w: %v", ErrCheckoutPaymentFailed, err)
	}

	if err := s.orders.AttachCheckoutSession(ctx, order.ID, session.ID); err != nil {
		s.logger(ctx, "checkout.attach_session_failed", map[string]any{
			"orderId":   order.ID,
			"sessionId": session.ID,
			"error":     err.Error(),
		})
		return CheckoutSession{}, err
	}

	publishEvent(ctx, s.events, s.logger, domain.Event{
		ID:          ulid.Make().String(),
		Type:        domain.EventOrderCreated,
		AggregateID: orderEventAggregate + "/" + order.ID,
		OccurredAt:  s.now(),
		Payload: map[string]any{
			"listingId": listing.ID,
			"artistId":  artistID,
			"quantity":  quantity,
			"amount":    order.TotalAmount,
			"sessionId": session.ID,
		},
	})

	return CheckoutSession{
		SessionID: session.ID,
		URL:       session.URL,
		OrderID:   order.ID,
		ExpiresAt: session.ExpiresAt.UTC(),
	}, nil
}

// HandleWebhook verifies a PSP notification and settles the order behind a completed session. Unknown
// sessions and unrelated event types are acknowledged without error.
func (s *checkoutService) HandleWebhook(ctx context.Context, payload []byte, signature string) error {
	event, err := s.payments.ParseWebhook(payload, signature)
	if err != nil {
		if errors.Is(err, payments.ErrInvalidSignature) {
			return ErrCheckoutInvalidSignature
		}
		return fmt.Errorf("%w: %v", ErrCheckoutInvalidInput, err)
	}

	if event.Type != payments.EventCheckoutCompleted {
		s.logger(ctx, "checkout.webhook.ignored", map[string]any{"eventId": event.ID, "type": event.Type})
		return nil
	}
	if status := event.PaymentStatus; status != "" && status != stripePaymentStatusPaid && status != stripePaymentStatusNoneReq {
		s.logger(ctx, "checkout.webhook.unpaid", map[string]any{"eventId": event.ID, "sessionId": event.SessionID, "paymentStatus": status})
		return nil
	}

	order, err := s.orderFlow.MarkPaid(ctx, MarkOrderPaidCommand{
		SessionID:       event.SessionID,
		PaymentIntentID: event.PaymentIntentID,
		PaidAt:          s.now(),
	})
	if err != nil {
		if errors.Is(err, ErrOrderNotFound) {
			s.logger(ctx, "checkout.webhook.unknown_session", map[string]any{"eventId": event.ID, "sessionId": event.SessionID})
			return nil
		}
		return err
	}
	s.logger(ctx, "checkout.webhook.completed", map[string]any{"eventId": event.ID, "orderId": order.ID})
	return nil
}

func (s *checkoutService) loadListing(ctx context.Context, listingID string) (Listing, error) {
	raw, err := s.listings.FindByID(ctx, listingID)
	if err != nil {
		var repoErr repositories.RepositoryError
		if errors.As(err, &repoErr) && repoErr.IsNotFound() {
			return Listing{}, ErrCheckoutListingNotFound
		}
		return Listing{}, err
	}
	listing, err := s.assembler.Assemble(raw)
	if err != nil {
		return Listing{}, fmt.Errorf("%w: %v", ErrCheckoutListingNotFound, err)
	}
	return listing, nil
}

func validatePurchasable(listing Listing, quantity int) error {
	if listing.Status != "" && listing.Status != domain.ListingStatusActive && listing.Status != domain.ListingStatusPublished {
		return fmt.Errorf("%w: listing is %s", ErrCheckoutUnavailable, listing.Status)
	}
	if !listing.InStock {
		return fmt.Errorf("%w: listing is out of stock", ErrCheckoutUnavailable)
	}
	if listing.Price <= 0 {
		return fmt.Errorf("%w: listing has no price", ErrCheckoutUnavailable)
	}
	if listing.StockCount > 0 && quantity > listing.StockCount {
		return fmt.Errorf("%w: requested %d, available %d", ErrCheckoutInsufficientStock, quantity, listing.StockCount)
	}
	return nil
}
