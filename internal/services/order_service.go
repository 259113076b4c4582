package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/kalamitra/api/internal/catalog"
	domain "github.com/kalamitra/api/internal/domain"
	"github.com/kalamitra/api/internal/platform/mail"
	"github.com/kalamitra/api/internal/repositories"
)

const (
	unknownProductTitle = "Unknown Product"
	unknownBuyerName    = "Unknown Buyer"
	orderFieldDefault   = "N/A"
	cardPaymentMethod   = "Card"
	orderEventAggregate = "order"
)

var (
	// ErrOrderInvalidInput indicates the request failed validation.
	ErrOrderInvalidInput = errors.New("order: invalid input")
	// ErrOrderNotFound indicates the order could not be located.
	ErrOrderNotFound = errors.New("order: not found")
)

// OrderServiceDeps bundles collaborators required to construct an OrderService.
type OrderServiceDeps struct {
	Orders    repositories.OrderRepository
	Listings  repositories.ListingRepository
	Profiles  ProfileLookup
	Assembler *catalog.Assembler
	Mailer    Mailer
	Events    EventPublisher
	Clock     func() time.Time
	Logger    func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders    repositories.OrderRepository
	listings  repositories.ListingRepository
	profiles  ProfileLookup
	assembler *catalog.Assembler
	mailer    Mailer
	events    EventPublisher
	clock     func() time.Time
	logger    func(ctx context.Context, event string, fields map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Listings == nil {
		return nil, errors.New("order service: listing repository is required")
	}
	assembler := deps.Assembler
	if assembler == nil {
		assembler = catalog.NewAssembler(catalog.AssemblerConfig{})
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{
		orders:    deps.Orders,
		listings:  deps.Listings,
		profiles:  deps.Profiles,
		assembler: assembler,
		mailer:    deps.Mailer,
		events:    deps.Events,
		clock: func() time.Time {
			return clock().UTC()
		},
		logger: logger,
	}, nil
}

func (s *orderService) ListForBuyer(ctx context.Context, email string) ([]OrderView, error) {
	email = strings.TrimSpace(email)
	if email == "" {
		return nil, fmt.Errorf("%w: buyer email is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.FindByBuyerEmail(ctx, email)
	if err != nil {
		return nil, s.mapOrderError(err)
	}
	return s.render(ctx, orders), nil
}

func (s *orderService) ListForArtisan(ctx context.Context, artistID string) ([]OrderView, error) {
	artistID = strings.TrimSpace(artistID)
	if artistID == "" {
		return nil, fmt.Errorf("%w: artist id is required", ErrOrderInvalidInput)
	}
	orders, err := s.orders.FindByArtist(ctx, artistID)
	if err != nil {
		return nil, s.mapOrderError(err)
	}
	return s.render(ctx, orders), nil
}

// MarkPaid confirms the order behind a completed checkout session. Orders that already left the pending
// state are returned unchanged and no side effects run again.
func (s *orderService) MarkPaid(ctx context.Context, cmd MarkOrderPaidCommand) (Order, error) {
	sessionID := strings.TrimSpace(cmd.SessionID)
	if sessionID == "" {
		return Order{}, fmt.Errorf("%w: checkout session id is required", ErrOrderInvalidInput)
	}
	order, err := s.orders.FindByCheckoutSession(ctx, sessionID)
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}
	if order.Status != domain.OrderStatusPending {
		s.logger(ctx, "order.mark_paid.skipped", map[string]any{"orderId": order.ID, "status": string(order.Status)})
		return order, nil
	}

	paidAt := cmd.PaidAt
	if paidAt.IsZero() {
		paidAt = s.clock()
	}
	updated, transitioned, err := s.orders.MarkPaid(ctx, order.ID, repositories.OrderPaymentUpdate{
		Status:          domain.OrderStatusConfirmed,
		PaymentMethod:   cardPaymentMethod,
		PaymentIntentID: strings.TrimSpace(cmd.PaymentIntentID),
		PaidAt:          paidAt.UTC(),
	})
	if err != nil {
		return Order{}, s.mapOrderError(err)
	}
	if !transitioned {
		s.logger(ctx, "order.mark_paid.skipped", map[string]any{"orderId": updated.ID, "status": string(updated.Status), "reason": "concurrent"})
		return updated, nil
	}

	quantity := updated.Quantity
	if quantity <= 0 {
		quantity = 1
	}
	if err := s.listings.AdjustStock(ctx, updated.ProductID, -quantity); err != nil {
		s.logger(ctx, "order.stock_adjust.failed", map[string]any{"orderId": updated.ID, "listingId": updated.ProductID, "error": err.Error()})
	}

	views := s.render(ctx, []Order{updated})
	s.sendConfirmation(ctx, updated, views[0])

	publishEvent(ctx, s.events, s.logger, domain.Event{
		ID:          ulid.Make().String(),
		Type:        domain.EventOrderPaid,
		AggregateID: orderEventAggregate + "/" + updated.ID,
		OccurredAt:  s.clock(),
		Payload: map[string]any{
			"listingId": updated.ProductID,
			"artistId":  updated.ArtistID,
			"amount":    updated.TotalAmount,
			"quantity":  quantity,
		},
	})
	s.logger(ctx, "order.paid", map[string]any{"orderId": updated.ID, "sessionId": sessionID})
	return updated, nil
}

func (s *orderService) sendConfirmation(ctx context.Context, order Order, view OrderView) {
	if s.mailer == nil || strings.TrimSpace(order.BuyerEmail) == "" {
		return
	}
	buyerName := view.Buyer
	if buyerName == order.BuyerEmail || buyerName == unknownBuyerName {
		buyerName = ""
	}
	msg, err := mail.RenderOrderConfirmation(mail.OrderConfirmation{
		BuyerName:    buyerName,
		BuyerEmail:   order.BuyerEmail,
		OrderID:      order.ID,
		ProductTitle: view.ProductTitle,
		Quantity:     view.Quantity,
		Amount:       view.Amount,
	})
	if err == nil {
		err = s.mailer.Send(ctx, msg)
	}
	if err != nil {
		s.logger(ctx, "order.confirmation_mail.failed", map[string]any{"orderId": order.ID, "error": err.Error()})
	}
}

// render projects orders for display, resolving listing titles, cover images and buyer names in bulk.
func (s *orderService) render(ctx context.Context, orders []Order) []OrderView {
	ids := make([]string, 0, len(orders))
	for _, order := range orders {
		if id := strings.TrimSpace(order.ProductID); id != "" {
			ids = append(ids, id)
		}
	}
	listings := map[string]catalog.Document{}
	if len(ids) > 0 {
		found, err := s.listings.FindByIDs(ctx, ids)
		if err != nil {
			s.logger(ctx, "order.listing_lookup.failed", map[string]any{"count": len(ids), "error": err.Error()})
		} else {
			listings = found
		}
	}

	names := make(map[string]string)
	views := make([]OrderView, 0, len(orders))
	for _, order := range orders {
		view := OrderView{
			ID:                order.ID,
			ProductTitle:      unknownProductTitle,
			ProductImage:      catalog.PlaceholderImage,
			Buyer:             s.buyerName(ctx, order, names),
			Amount:            catalog.FormatRupees(order.TotalAmount),
			Status:            string(order.Status),
			Date:              s.orderDate(order.OrderDate),
			Quantity:          order.Quantity,
			ShippingAddress:   orDefault(order.ShippingAddress, orderFieldDefault),
			PaymentMethod:     orDefault(order.PaymentMethod, orderFieldDefault),
			TrackingNumber:    order.TrackingNumber,
			EstimatedDelivery: order.EstimatedDelivery,
			DeliveredDate:     order.DeliveredDate,
		}
		if view.Status == "" {
			view.Status = string(domain.OrderStatusPending)
		}
		if view.Quantity <= 0 {
			view.Quantity = 1
		}
		if raw, ok := listings[strings.TrimSpace(order.ProductID)]; ok {
			if listing, err := s.assembler.Assemble(raw); err == nil {
				if title := strings.TrimSpace(listing.Title); title != "" {
					view.ProductTitle = title
				}
				view.ProductImage = s.assembler.FirstImageURL(listing.ID, listing.ImageIDs)
			}
		}
		views = append(views, view)
	}
	return views
}

func (s *orderService) buyerName(ctx context.Context, order Order, cache map[string]string) string {
	fallback := strings.TrimSpace(order.BuyerEmail)
	if fallback == "" {
		fallback = unknownBuyerName
	}
	buyerID := strings.TrimSpace(order.BuyerID)
	if buyerID == "" || s.profiles == nil {
		return fallback
	}
	if name, ok := cache[buyerID]; ok {
		if name == "" {
			return fallback
		}
		return name
	}
	name := ""
	if profile, err := s.profiles.FindByID(ctx, buyerID); err == nil {
		name = strings.TrimSpace(profile.DisplayName)
	}
	cache[buyerID] = name
	if name == "" {
		return fallback
	}
	return name
}

func (s *orderService) orderDate(t time.Time) string {
	if t.IsZero() {
		t = s.clock()
	}
	return t.UTC().Format(time.RFC3339)
}

func (s *orderService) mapOrderError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) && repoErr.IsNotFound() {
		return ErrOrderNotFound
	}
	return err
}

func orDefault(value, def string) string {
	if strings.TrimSpace(value) == "" {
		return def
	}
	return value
}
