package mongo

import (
	"context"
	"errors"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	domain "github.com/kalamitra/api/internal/domain"
	pmongo "github.com/kalamitra/api/internal/platform/mongodb"
	"github.com/kalamitra/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository stores orders in MongoDB using the field names the storefront has always written.
type OrderRepository struct {
	provider *pmongo.Provider
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)

// NewOrderRepository constructs a Mongo-backed order repository.
func NewOrderRepository(provider *pmongo.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires mongodb provider")
	}
	return &OrderRepository{provider: provider}, nil
}

type orderDocument struct {
	ID                primitive.ObjectID `bson:"_id,omitempty"`
	ProductID         string             `bson:"product_id"`
	ArtistID          string             `bson:"artist_id,omitempty"`
	BuyerID           string             `bson:"buyer_id,omitempty"`
	BuyerEmail        string             `bson:"buyerEmail"`
	TotalAmount       float64            `bson:"total_amount"`
	Quantity          int                `bson:"quantity"`
	Status            string             `bson:"status"`
	OrderDate         time.Time          `bson:"order_date"`
	ShippingAddress   string             `bson:"shipping_address,omitempty"`
	PaymentMethod     string             `bson:"payment_method,omitempty"`
	TrackingNumber    *string            `bson:"tracking_number,omitempty"`
	EstimatedDelivery *string            `bson:"estimated_delivery,omitempty"`
	DeliveredDate     *string            `bson:"delivered_date,omitempty"`
	CheckoutSessionID string             `bson:"checkout_session_id,omitempty"`
	PaymentIntentID   string             `bson:"payment_intent_id,omitempty"`
	PaidAt            *time.Time         `bson:"paid_at,omitempty"`
}

func (r *OrderRepository) collection(ctx context.Context) (*mongo.Collection, error) {
	if r == nil || r.provider == nil {
		return nil, errors.New("order repository not initialised")
	}
	return r.provider.Collection(ctx, orderCollection)
}

// Insert stores a new order and returns it with its generated id.
func (r *OrderRepository) Insert(ctx context.Context, order domain.Order) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	doc := fromDomainOrder(order)
	doc.ID = primitive.NewObjectID()
	if _, err := coll.InsertOne(ctx, doc); err != nil {
		return domain.Order{}, pmongo.WrapError("orders.insert", err)
	}
	return toDomainOrder(doc), nil
}

// FindByBuyerEmail lists a buyer's orders newest first.
func (r *OrderRepository) FindByBuyerEmail(ctx context.Context, email string) ([]domain.Order, error) {
	return r.find(ctx, "orders.find_by_buyer", bson.M{"buyerEmail": strings.TrimSpace(email)})
}

// FindByArtist lists orders for an artisan's listings newest first.
func (r *OrderRepository) FindByArtist(ctx context.Context, artistID string) ([]domain.Order, error) {
	return r.find(ctx, "orders.find_by_artist", bson.M{"artist_id": strings.TrimSpace(artistID)})
}

// FindByCheckoutSession loads the order created for a PSP checkout session.
func (r *OrderRepository) FindByCheckoutSession(ctx context.Context, sessionID string) (domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, err
	}
	var doc orderDocument
	if err := coll.FindOne(ctx, bson.M{"checkout_session_id": sessionID}).Decode(&doc); err != nil {
		return domain.Order{}, pmongo.WrapError("orders.find_by_session", err)
	}
	return toDomainOrder(doc), nil
}

// AttachCheckoutSession links a pending order to its PSP session.
func (r *OrderRepository) AttachCheckoutSession(ctx context.Context, orderID, sessionID string) error {
	coll, err := r.collection(ctx)
	if err != nil {
		return err
	}
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return pmongo.NotFound("orders.attach_session")
	}
	res, err := coll.UpdateOne(ctx, bson.M{"_id": oid}, bson.M{"$set": bson.M{"checkout_session_id": sessionID}})
	if err != nil {
		return pmongo.WrapError("orders.attach_session", err)
	}
	if res.MatchedCount == 0 {
		return pmongo.NotFound("orders.attach_session")
	}
	return nil
}

// MarkPaid records payment on a pending order. The status filter makes the transition atomic, so of two
// concurrent webhook deliveries only one reports transitioned.
func (r *OrderRepository) MarkPaid(ctx context.Context, orderID string, update repositories.OrderPaymentUpdate) (domain.Order, bool, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return domain.Order{}, false, err
	}
	oid, err := primitive.ObjectIDFromHex(orderID)
	if err != nil {
		return domain.Order{}, false, pmongo.NotFound("orders.mark_paid")
	}

	paidAt := update.PaidAt.UTC()
	set := bson.M{
		"status":         string(update.Status),
		"payment_method": update.PaymentMethod,
		"paid_at":        paidAt,
	}
	if update.PaymentIntentID != "" {
		set["payment_intent_id"] = update.PaymentIntentID
	}

	var doc orderDocument
	err = coll.FindOneAndUpdate(ctx,
		bson.M{"_id": oid, "status": string(domain.OrderStatusPending)},
		bson.M{"$set": set},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		if err := coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc); err != nil {
			return domain.Order{}, false, pmongo.WrapError("orders.mark_paid", err)
		}
		return toDomainOrder(doc), false, nil
	}
	if err != nil {
		return domain.Order{}, false, pmongo.WrapError("orders.mark_paid", err)
	}
	return toDomainOrder(doc), true, nil
}

func (r *OrderRepository) find(ctx context.Context, op string, filter bson.M) ([]domain.Order, error) {
	coll, err := r.collection(ctx)
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "order_date", Value: -1}}))
	if err != nil {
		return nil, pmongo.WrapError(op, err)
	}
	defer cursor.Close(ctx)

	var orders []domain.Order
	for cursor.Next(ctx) {
		var doc orderDocument
		if err := cursor.Decode(&doc); err != nil {
			return nil, pmongo.WrapError(op, err)
		}
		orders = append(orders, toDomainOrder(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, pmongo.WrapError(op, err)
	}
	return orders, nil
}

func fromDomainOrder(order domain.Order) orderDocument {
	return orderDocument{
		ProductID:         order.ProductID,
		ArtistID:          order.ArtistID,
		BuyerID:           order.BuyerID,
		BuyerEmail:        order.BuyerEmail,
		TotalAmount:       order.TotalAmount,
		Quantity:          order.Quantity,
		Status:            string(order.Status),
		OrderDate:         order.OrderDate.UTC(),
		ShippingAddress:   order.ShippingAddress,
		PaymentMethod:     order.PaymentMethod,
		TrackingNumber:    order.TrackingNumber,
		EstimatedDelivery: order.EstimatedDelivery,
		DeliveredDate:     order.DeliveredDate,
		CheckoutSessionID: order.CheckoutSessionID,
		PaymentIntentID:   order.PaymentIntentID,
	}
}

func toDomainOrder(doc orderDocument) domain.Order {
	return domain.Order{
		ID:                doc.ID.Hex(),
		ProductID:         doc.ProductID,
		ArtistID:          doc.ArtistID,
		BuyerID:           doc.BuyerID,
		BuyerEmail:        doc.BuyerEmail,
		TotalAmount:       doc.TotalAmount,
		Quantity:          doc.Quantity,
		Status:            domain.OrderStatus(doc.Status),
		OrderDate:         doc.OrderDate.UTC(),
		ShippingAddress:   doc.ShippingAddress,
		PaymentMethod:     doc.PaymentMethod,
		TrackingNumber:    doc.TrackingNumber,
		EstimatedDelivery: doc.EstimatedDelivery,
		DeliveredDate:     doc.DeliveredDate,
		CheckoutSessionID: doc.CheckoutSessionID,
		PaymentIntentID:   doc.PaymentIntentID,
	}
}
